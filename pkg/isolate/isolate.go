// Package isolate builds column-reduced datasets scoped to a single peptide.
package isolate

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/ChrisMcGann/RateKey/internal/logging"
	"github.com/ChrisMcGann/RateKey/pkg/core"
	"github.com/ChrisMcGann/RateKey/pkg/filter"
	"github.com/ChrisMcGann/RateKey/pkg/reader/spreadsheet"
)

// ErrPeptideNotFound is returned when no spreadsheet row carries the requested peptide name.
var ErrPeptideNotFound = errors.New("peptide not found")

// Isolator writes reduced spreadsheet and heavy water pairs into one directory.
// It is safe for concurrent use; every pair gets a unique file stem.
type Isolator struct {
	dir    string
	newID  func() string
	logger *slog.Logger
}

// Option configures an Isolator.
type Option func(*Isolator)

// WithLogger sets the logger used for fallback warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Isolator) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// WithIDFunc overrides the file stem generator.
func WithIDFunc(fn func() string) Option {
	return func(i *Isolator) {
		if fn != nil {
			i.newID = fn
		}
	}
}

// New returns an Isolator writing into dir.
func New(dir string, opts ...Option) *Isolator {
	i := &Isolator{
		dir:    dir,
		newID:  func() string { return uuid.NewString() },
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Isolate writes a spreadsheet holding the header rows and every row of the named
// peptide, and a matching heavy water file, both without the given sample columns.
func (i *Isolator) Isolate(sheet *core.Sheet, ds *core.Dataset, hw *core.HeavyWater, peptide string, columns []int) (*core.IsolatedDataset, error) {
	n := ds.SampleCount()
	if err := filter.ValidateColumns(columns, n); err != nil {
		return nil, err
	}
	peptide = strings.TrimSpace(peptide)

	// Header rows keep their position; only sample columns are dropped
	records := make([][]string, 0, sheet.HeaderRows+1)
	for _, rec := range sheet.Records[:sheet.HeaderRows] {
		records = append(records, filter.DropColumns(rec, core.MetadataColumns, columns))
	}

	matched := 0
	for _, p := range ds.Peptides {
		if p.Name != peptide {
			continue
		}
		records = append(records, filter.DropColumns(sheet.Records[p.Record], core.MetadataColumns, columns))
		matched++
	}
	if matched == 0 {
		return nil, fmt.Errorf("%w: %s", ErrPeptideNotFound, peptide)
	}

	reducedHW, err := i.reduceHeavyWater(ds, hw, columns)
	if err != nil {
		return nil, err
	}

	stem := i.newID()
	sheetPath := filepath.Join(i.dir, stem+".csv")
	hwPath := filepath.Join(i.dir, stem+".txt")

	if err := spreadsheet.WriteFile(sheetPath, records); err != nil {
		return nil, fmt.Errorf("failed to write isolated spreadsheet: %w", err)
	}
	if err := reducedHW.WriteFile(hwPath); err != nil {
		os.Remove(sheetPath)
		return nil, fmt.Errorf("failed to write isolated heavy water file: %w", err)
	}

	i.logger.Debug("isolated peptide",
		logging.FieldPeptide, peptide,
		logging.FieldSamplesOmitted, len(columns),
		"rows", matched,
		logging.FieldPath, sheetPath,
	)

	return &core.IsolatedDataset{
		Peptide:         peptide,
		SpreadsheetPath: sheetPath,
		HeavyWaterPath:  hwPath,
		Columns:         append([]int(nil), columns...),
		SamplesOmitted:  len(columns),
	}, nil
}

// reduceHeavyWater drops the heavy water entries of the omitted columns, or
// regenerates the file from the dataset when its entries do not line up.
func (i *Isolator) reduceHeavyWater(ds *core.Dataset, hw *core.HeavyWater, columns []int) (*core.HeavyWater, error) {
	if hw != nil && hw.Len() == ds.SampleCount() {
		return hw.Without(columns), nil
	}

	entries := 0
	if hw != nil {
		entries = hw.Len()
	}
	i.logger.Warn("heavy water entries do not match sample columns; regenerating from spreadsheet",
		"entries", entries,
		"samples", ds.SampleCount(),
	)

	meta := filter.ReduceDataset(&core.Dataset{Days: ds.Days, Mice: ds.Mice, Labels: ds.Labels}, columns)
	return core.NewHeavyWater(meta.Days, meta.Labels)
}
