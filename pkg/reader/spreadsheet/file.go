package spreadsheet

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ChrisMcGann/RateKey/pkg/core"
	"github.com/ChrisMcGann/RateKey/pkg/reader/workbook"
)

// Format identifies a spreadsheet container
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// DetectFormat returns the spreadsheet format implied by a file extension
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("unsupported spreadsheet format: %s", path)
	}
}

// Parse reads every peptide from src and validates the dataset alignment
func Parse(src RecordSource) (*core.Dataset, *core.Sheet, error) {
	reader := NewReader(src)
	for reader.Next() {
	}
	if err := reader.Err(); err != nil {
		return nil, nil, err
	}

	dataset := reader.Dataset()
	if err := dataset.Validate(); err != nil {
		return nil, nil, err
	}
	return dataset, reader.Sheet(), nil
}

// ParseFile opens a .csv or .xlsx spreadsheet and parses it
func ParseFile(path string) (*core.Dataset, *core.Sheet, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, nil, err
	}

	switch format {
	case FormatXLSX:
		wb, err := workbook.Open(path, "")
		if err != nil {
			return nil, nil, err
		}
		defer wb.Close()
		return Parse(wb)

	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open spreadsheet: %w", err)
		}
		defer f.Close()
		return Parse(newCSVSource(f))
	}
}

// WriteRecords writes records as comma-separated text
func WriteRecords(w io.Writer, records [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(records); err != nil {
		return fmt.Errorf("failed to write records: %w", err)
	}
	return nil
}

// WriteFile writes records to a new CSV file at path
func WriteFile(path string, records [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	if err := WriteRecords(f, records); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func newCSVSource(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	return cr
}
