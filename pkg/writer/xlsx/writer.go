// Package xlsx exports result tables as Excel workbooks
package xlsx

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/ChrisMcGann/RateKey/pkg/result"
)

// SheetName is the worksheet the table is written to
const SheetName = "RateConst"

// WriteFile writes the table to a workbook at path. Every cell is stored as
// text so engine numbers keep their exact formatting.
func WriteFile(path string, tbl *result.Table) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	records := tbl.Records()
	headerRow := len(tbl.Preamble) + 1
	for i, record := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}

		for j, field := range record {
			name, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				return err
			}
			if err := f.SetCellStr(SheetName, name, field); err != nil {
				return fmt.Errorf("failed to write row %d: %w", i+1, err)
			}
		}

		if i+1 == headerRow && len(record) > 0 {
			last, err := excelize.CoordinatesToCellName(len(record), i+1)
			if err != nil {
				return err
			}
			if err := f.SetCellStyle(SheetName, cell, last, headerStyle); err != nil {
				return fmt.Errorf("failed to style header: %w", err)
			}
		}
	}

	return save(f, path)
}

// save writes the workbook through a temporary file in the same directory,
// so path either holds the complete workbook or is left untouched.
func save(f *excelize.File, path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := f.WriteTo(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move workbook into place: %w", err)
	}
	return nil
}
