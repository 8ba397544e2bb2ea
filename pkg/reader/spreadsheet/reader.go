// Package spreadsheet provides streaming readers for peptide intensity spreadsheets
package spreadsheet

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/ChrisMcGann/RateKey/pkg/core"
)

// RecordSource yields spreadsheet records one at a time and returns io.EOF when exhausted.
// *csv.Reader satisfies it.
type RecordSource interface {
	Read() ([]string, error)
}

// Reader provides streaming access to a peptide spreadsheet. The three leading
// header rows (days, mice, labels) are read before the first peptide.
type Reader struct {
	src     RecordSource
	dataset *core.Dataset
	sheet   *core.Sheet

	headerRead bool
	pending    []string // First peptide record, read while probing for a title row
	current    *core.Peptide
	err        error
}

// NewReader creates a new reader over a record source
func NewReader(src RecordSource) *Reader {
	return &Reader{
		src:     src,
		dataset: &core.Dataset{},
		sheet:   &core.Sheet{},
	}
}

// NewCSVReader creates a reader for comma-separated input
func NewCSVReader(r io.Reader) *Reader {
	return NewReader(newCSVSource(r))
}

// Next advances to the next peptide. Returns false when no more peptides or error.
func (r *Reader) Next() bool {
	r.current = nil
	if r.err != nil {
		return false
	}

	if !r.headerRead {
		if err := r.readHeader(); err != nil {
			r.err = err
			return false
		}
	}

	record, index, err := r.nextRecord()
	if err != nil {
		if err != io.EOF {
			r.err = err
		}
		return false
	}

	p, err := r.parsePeptide(record, index)
	if err != nil {
		r.err = err
		return false
	}

	r.dataset.Peptides = append(r.dataset.Peptides, *p)
	r.current = &r.dataset.Peptides[len(r.dataset.Peptides)-1]
	return true
}

// Peptide returns the current peptide
func (r *Reader) Peptide() *core.Peptide {
	return r.current
}

// Err returns any error encountered during reading
func (r *Reader) Err() error {
	return r.err
}

// Dataset returns the header metadata and every peptide read so far
func (r *Reader) Dataset() *core.Dataset {
	return r.dataset
}

// Sheet returns the raw records read so far
func (r *Reader) Sheet() *core.Sheet {
	return r.sheet
}

// nextRecord returns the next non-blank record and its index in the sheet
func (r *Reader) nextRecord() ([]string, int, error) {
	if r.pending != nil {
		record := r.pending
		r.pending = nil
		return record, r.sheet.HeaderRows, nil
	}

	for {
		record, err := r.src.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, 0, io.EOF
			}
			return nil, 0, fmt.Errorf("failed to read record %d: %w", len(r.sheet.Records)+1, err)
		}

		if len(r.sheet.Records) == 0 && len(record) > 0 {
			record[0] = strings.TrimPrefix(record[0], "\ufeff")
		}

		r.sheet.Records = append(r.sheet.Records, record)
		if !isBlank(record) {
			return record, len(r.sheet.Records) - 1, nil
		}
	}
}

// readHeader parses the days, mice and labels rows and an optional column-title row
func (r *Reader) readHeader() error {
	r.headerRead = true

	var rows [3][]string
	var indexes [3]int
	for i, field := range []string{"days", "mice", "labels"} {
		record, index, err := r.nextRecord()
		if err == io.EOF {
			return &core.ParseError{Row: len(r.sheet.Records), Column: -1, Field: field,
				Err: errors.New("missing header row")}
		}
		if err != nil {
			return err
		}
		rows[i], indexes[i] = record, index
	}

	days, err := parseDays(rows[0], indexes[0])
	if err != nil {
		return err
	}
	n := len(days)

	mice, err := sampleText(rows[1], indexes[1], "mouse", n)
	if err != nil {
		return err
	}
	labels, err := sampleText(rows[2], indexes[2], "label", n)
	if err != nil {
		return err
	}

	r.dataset.Days = days
	r.dataset.Mice = mice
	r.dataset.Labels = labels

	// An optional fourth row titles the columns
	record, index, err := r.nextRecord()
	switch {
	case err == io.EOF:
		r.sheet.HeaderRows = len(r.sheet.Records)
		return nil
	case err != nil:
		return err
	}

	if !isTitleRow(record) {
		r.pending = record
		r.sheet.HeaderRows = index
		return nil
	}

	r.sheet.HeaderRows = index + 1
	return nil
}

// parsePeptide parses a single peptide row (format: protein, peptide, m/z, intensity...)
func (r *Reader) parsePeptide(record []string, index int) (*core.Peptide, error) {
	if len(record) < core.MetadataColumns {
		return nil, &core.ParseError{Row: index, Column: -1, Field: "peptide row",
			Err: fmt.Errorf("expected at least %d fields, got %d", core.MetadataColumns, len(record))}
	}

	mzText := strings.TrimSpace(record[2])
	mz, err := strconv.ParseFloat(mzText, 64)
	if err != nil {
		return nil, &core.ParseError{Row: index, Column: 2, Field: "m/z", Value: mzText, Err: err}
	}

	n := r.dataset.SampleCount()
	p := &core.Peptide{
		Protein:         strings.TrimSpace(record[0]),
		Name:            strings.TrimSpace(record[1]),
		MassChargeRatio: mz,
		Intensities:     make([]*float64, n),
		Record:          index,
	}

	for i, cell := range record[core.MetadataColumns:] {
		col := core.MetadataColumns + i
		cell = strings.TrimSpace(cell)

		if i >= n {
			if cell != "" {
				return nil, &core.ParseError{Row: index, Column: col, Field: "intensity", Value: cell,
					Err: fmt.Errorf("beyond the %d sample columns", n)}
			}
			continue
		}

		if cell == "" || cell == core.AbsentMarker {
			continue
		}

		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return nil, &core.ParseError{Row: index, Column: col, Field: "intensity", Value: cell, Err: err}
		}
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, &core.ParseError{Row: index, Column: col, Field: "intensity", Value: cell,
				Err: errors.New("must be a non-negative finite number")}
		}
		p.Intensities[i] = &v
	}

	return p, nil
}

// parseDays extracts the numeric timepoint of every sample column
func parseDays(record []string, index int) ([]float64, error) {
	cells := trimTrailing(record)
	if len(cells) <= core.MetadataColumns {
		return nil, &core.ParseError{Row: index, Column: -1, Field: "days",
			Err: errors.New("no sample columns")}
	}

	days := make([]float64, 0, len(cells)-core.MetadataColumns)
	for i, cell := range cells[core.MetadataColumns:] {
		cell = strings.TrimSpace(cell)
		day, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return nil, &core.ParseError{Row: index, Column: core.MetadataColumns + i, Field: "day", Value: cell, Err: err}
		}
		if math.IsNaN(day) || math.IsInf(day, 0) {
			return nil, &core.ParseError{Row: index, Column: core.MetadataColumns + i, Field: "day", Value: cell,
				Err: errors.New("must be finite")}
		}
		days = append(days, day)
	}
	return days, nil
}

// sampleText extracts n text cells starting at the first sample column, padding with "".
func sampleText(record []string, index int, field string, n int) ([]string, error) {
	values := make([]string, n)
	if len(record) <= core.MetadataColumns {
		return values, nil
	}

	for i, cell := range record[core.MetadataColumns:] {
		cell = strings.TrimSpace(cell)
		if i >= n {
			if cell != "" {
				return nil, &core.ParseError{Row: index, Column: core.MetadataColumns + i, Field: field, Value: cell,
					Err: fmt.Errorf("beyond the %d sample columns", n)}
			}
			continue
		}
		values[i] = cell
	}
	return values, nil
}

func trimTrailing(record []string) []string {
	end := len(record)
	for end > 0 && strings.TrimSpace(record[end-1]) == "" {
		end--
	}
	return record[:end]
}

func isBlank(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// isTitleRow reports whether a record carries column titles rather than peptide
// data. Anything else is parsed as a peptide row.
func isTitleRow(record []string) bool {
	if len(record) < 2 {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(record[0]), "Protein") &&
		strings.EqualFold(strings.TrimSpace(record[1]), "Peptide")
}
