// Package workbook provides a streaming record source over .xlsx worksheets
package workbook

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// Reader yields worksheet rows as string records. Trailing empty cells are not returned.
type Reader struct {
	file  *excelize.File
	rows  *excelize.Rows
	sheet string
}

// Open opens a workbook and positions a reader on the named sheet, or on the
// first sheet when sheet is empty.
func Open(path, sheet string) (*Reader, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		f.Close()
		return nil, fmt.Errorf("sheet %q not found in %s", sheet, path)
	}

	rows, err := f.Rows(sheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}

	return &Reader{file: f, rows: rows, sheet: sheet}, nil
}

// Sheet returns the name of the sheet being read
func (r *Reader) Sheet() string {
	return r.sheet
}

// Read returns the next row, or io.EOF when the sheet is exhausted
func (r *Reader) Read() ([]string, error) {
	if !r.rows.Next() {
		if err := r.rows.Error(); err != nil {
			return nil, fmt.Errorf("failed to read row: %w", err)
		}
		return nil, io.EOF
	}

	cols, err := r.rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read row: %w", err)
	}
	return cols, nil
}

// Close releases the workbook
func (r *Reader) Close() error {
	if err := r.rows.Close(); err != nil {
		r.file.Close()
		return err
	}
	return r.file.Close()
}
