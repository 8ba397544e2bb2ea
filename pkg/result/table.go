// Package result reads, patches and writes engine result tables.
package result

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ChrisMcGann/RateKey/pkg/core"
)

var (
	// ErrRowNotFound is returned when no result row carries the peptide name.
	ErrRowNotFound = errors.New("result row not found")
	// ErrAmbiguousRow is returned when several result rows carry the peptide name
	// and the duplicate policy requires uniqueness.
	ErrAmbiguousRow = errors.New("peptide name matches more than one result row")
)

// DuplicatePolicy decides how a peptide name matching several rows is resolved.
type DuplicatePolicy string

const (
	// RequireUnique fails when a name matches more than one row.
	RequireUnique DuplicatePolicy = "require-unique"
	// FirstMatch uses the first matching row.
	FirstMatch DuplicatePolicy = "first-match"
)

// ParseDuplicatePolicy converts a configuration value into a DuplicatePolicy.
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch DuplicatePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case RequireUnique, "":
		return RequireUnique, nil
	case FirstMatch:
		return FirstMatch, nil
	default:
		return "", fmt.Errorf("unknown duplicate policy %q", s)
	}
}

// Table is a parsed engine result. Rows before the column header are kept
// verbatim as the preamble.
type Table struct {
	Preamble [][]string
	Header   []string
	Rows     []core.ResultRow
}

// NewTable returns a table with the standard result header.
func NewTable(rows []core.ResultRow) *Table {
	return &Table{
		Header: append([]string(nil), core.ResultColumns...),
		Rows:   rows,
	}
}

// Read parses an engine result from r.
func Read(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read result: %w", err)
	}
	if len(records) == 0 {
		return nil, errors.New("result is empty")
	}

	header := 0
	for i, rec := range records {
		if isHeader(rec) {
			header = i
			break
		}
	}

	t := &Table{
		Preamble: records[:header],
		Header:   records[header],
	}
	for _, rec := range records[header+1:] {
		if isBlank(rec) {
			continue
		}
		t.Rows = append(t.Rows, core.ResultRowFromRecord(rec))
	}
	return t, nil
}

// ReadFile parses the engine result at path.
func ReadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open result: %w", err)
	}
	defer f.Close()

	return Read(f)
}

// Len returns the number of peptide rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Count returns the number of rows carrying the peptide name.
func (t *Table) Count(peptide string) int {
	peptide = strings.TrimSpace(peptide)
	n := 0
	for i := range t.Rows {
		if t.Rows[i].PeptideKey() == peptide {
			n++
		}
	}
	return n
}

// Find returns the index of the row carrying the peptide name, resolving
// duplicates according to policy.
func (t *Table) Find(peptide string, policy DuplicatePolicy) (int, error) {
	peptide = strings.TrimSpace(peptide)
	found := -1
	for i := range t.Rows {
		if t.Rows[i].PeptideKey() != peptide {
			continue
		}
		if found >= 0 {
			if policy == FirstMatch {
				return found, nil
			}
			return -1, fmt.Errorf("%w: %s", ErrAmbiguousRow, peptide)
		}
		found = i
	}
	if found < 0 {
		return -1, fmt.Errorf("%w: %s", ErrRowNotFound, peptide)
	}
	return found, nil
}

// Records returns the table as output records. A header without the
// annotation column gets an empty one appended.
func (t *Table) Records() [][]string {
	records := make([][]string, 0, len(t.Preamble)+1+len(t.Rows))
	records = append(records, t.Preamble...)

	header := append([]string(nil), t.Header...)
	if len(header) == len(core.ResultColumns) {
		header = append(header, "")
	}
	records = append(records, header)

	for _, row := range t.Rows {
		records = append(records, row.Record())
	}
	return records
}

// Write writes the table as CSV.
func (t *Table) Write(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(t.Records()); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	return nil
}

// WriteFile writes the table to path through a temporary file in the same
// directory, so path either holds the complete table or is left untouched.
func (t *Table) WriteFile(path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := t.Write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move result into place: %w", err)
	}
	return nil
}

func isHeader(rec []string) bool {
	return len(rec) >= 2 &&
		strings.EqualFold(strings.TrimSpace(rec[0]), "Protein") &&
		strings.EqualFold(strings.TrimSpace(rec[1]), "Peptide")
}

func isBlank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
