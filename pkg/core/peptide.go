// Package core provides the intermediate representation (IR) models and validation logic
// for peptide turnover data used by RateKey.
package core

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// AbsentMarker is the spreadsheet token for an intensity reading that is unavailable.
const AbsentMarker = "#N/A"

// MetadataColumns is the number of leading columns (protein, peptide, m/z) before
// the first sample column on every spreadsheet row.
const MetadataColumns = 3

// Peptide represents one peptide row of the intensity spreadsheet.
type Peptide struct {
	Protein         string
	Name            string
	MassChargeRatio float64
	Intensities     []*float64 // One per sample column; nil means absent

	// Internal tracking
	Record int // 0-based index of the source record
}

// Dataset holds the parsed sample-column metadata and peptide rows of one spreadsheet.
// Days, Mice, Labels and every peptide's Intensities are positionally aligned.
type Dataset struct {
	Days     []float64
	Mice     []string
	Labels   []string
	Peptides []Peptide
}

// Sheet is the raw record view of a spreadsheet as it was read.
type Sheet struct {
	Records    [][]string
	HeaderRows int // Records before the first peptide row
}

// MissingMap maps a peptide name to the sorted sample-column offsets where it has
// an absent intensity. Peptides without absent intensities are never present.
type MissingMap map[string][]int

// Names returns the peptide names in the map in sorted order.
func (m MissingMap) Names() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidationError represents an error found during dataset validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", e.Field, e.Message)
}

// SampleCount returns the number of sample columns.
func (d *Dataset) SampleCount() int {
	return len(d.Days)
}

// Validate checks that all sample-column sequences are aligned.
func (d *Dataset) Validate() error {
	var errs []string

	n := len(d.Days)
	if len(d.Mice) != n {
		errs = append(errs, fmt.Sprintf("%d mice for %d days", len(d.Mice), n))
	}
	if len(d.Labels) != n {
		errs = append(errs, fmt.Sprintf("%d labels for %d days", len(d.Labels), n))
	}

	for i, day := range d.Days {
		if math.IsNaN(day) || math.IsInf(day, 0) {
			errs = append(errs, fmt.Sprintf("day %d is not finite", i))
		}
	}

	for _, p := range d.Peptides {
		if len(p.Intensities) != n {
			errs = append(errs, fmt.Sprintf("peptide %s has %d intensities for %d samples", p.Name, len(p.Intensities), n))
		}
	}

	if len(errs) > 0 {
		return &ValidationError{
			Field:   "Dataset",
			Message: strings.Join(errs, "; "),
		}
	}

	return nil
}

// NumericLabel returns the label of sample column i, or "0" when it is not numeric.
func (d *Dataset) NumericLabel(i int) string {
	return NumericLabel(d.Labels[i])
}

// NumericLabel returns label trimmed when it parses as a number and "0" otherwise.
func NumericLabel(label string) string {
	label = strings.TrimSpace(label)
	if _, err := strconv.ParseFloat(label, 64); err != nil {
		return "0"
	}
	return label
}

// FormatDay renders a day value without trailing zeros.
func FormatDay(day float64) string {
	return strconv.FormatFloat(day, 'f', -1, 64)
}

// MissingColumns returns the sample-column offsets where the peptide has no reading.
func (p *Peptide) MissingColumns() []int {
	var cols []int
	for i, v := range p.Intensities {
		if v == nil {
			cols = append(cols, i)
		}
	}
	return cols
}

// HasMissing reports whether any intensity is absent.
func (p *Peptide) HasMissing() bool {
	for _, v := range p.Intensities {
		if v == nil {
			return true
		}
	}
	return false
}

// IntensityText returns the spreadsheet text of sample column i.
func (p *Peptide) IntensityText(i int) string {
	if p.Intensities[i] == nil {
		return AbsentMarker
	}
	return strconv.FormatFloat(*p.Intensities[i], 'f', -1, 64)
}
