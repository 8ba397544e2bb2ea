package core

import (
	"fmt"
	"strings"
)

// ResultColumns are the fixed column names of an engine result file, without the
// trailing annotation column.
var ResultColumns = []string{
	"Protein",
	"Peptide",
	"NEH",
	"Charge",
	"Mean",
	"nRet",
	"MPE_0",
	"MPE_1",
	"Two_SD_Minus",
	"nRet",
	"Two_SD_Plus",
	"nRet",
}

// ResultRow is one peptide row of an engine result. Every field except
// SamplesOmitted is engine text and is carried verbatim.
type ResultRow struct {
	Protein    string
	Peptide    string
	NEH        string
	Charge     string
	Mean       string
	NRet1      string
	MPE0       string
	MPE1       string
	TwoSDMinus string
	NRet2      string
	TwoSDPlus  string
	NRet3      string

	SamplesOmitted int
}

// ResultRowFromRecord maps a result record onto a ResultRow. Missing trailing
// fields are left empty.
func ResultRowFromRecord(record []string) ResultRow {
	field := func(i int) string {
		if i < len(record) {
			return record[i]
		}
		return ""
	}

	return ResultRow{
		Protein:    field(0),
		Peptide:    field(1),
		NEH:        field(2),
		Charge:     field(3),
		Mean:       field(4),
		NRet1:      field(5),
		MPE0:       field(6),
		MPE1:       field(7),
		TwoSDMinus: field(8),
		NRet2:      field(9),
		TwoSDPlus:  field(10),
		NRet3:      field(11),
	}
}

// Record returns the row as output fields, including the annotation column.
func (r ResultRow) Record() []string {
	return []string{
		r.Protein,
		r.Peptide,
		r.NEH,
		r.Charge,
		r.Mean,
		r.NRet1,
		r.MPE0,
		r.MPE1,
		r.TwoSDMinus,
		r.NRet2,
		r.TwoSDPlus,
		r.NRet3,
		OmissionNote(r.SamplesOmitted),
	}
}

// PeptideKey returns the peptide name used for row identity.
func (r ResultRow) PeptideKey() string {
	return strings.TrimSpace(r.Peptide)
}

// OmissionNote returns the annotation for n omitted samples, or "" when n is zero.
func OmissionNote(n int) string {
	switch {
	case n <= 0:
		return ""
	case n == 1:
		return "1 sample omitted"
	default:
		return fmt.Sprintf("%d samples omitted", n)
	}
}

// IsolatedDataset is a column-reduced spreadsheet and heavy water pair scoped to
// one peptide's rerun.
type IsolatedDataset struct {
	Peptide         string
	SpreadsheetPath string
	HeavyWaterPath  string
	Columns         []int // Omitted sample-column offsets
	SamplesOmitted  int
}
