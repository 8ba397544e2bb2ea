package grouping

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/ChrisMcGann/RateKey/pkg/core"
	"github.com/ChrisMcGann/RateKey/pkg/filter"
	"github.com/ChrisMcGann/RateKey/pkg/reader/spreadsheet"
)

// Dataset is a serialized bucket ready for one engine run.
type Dataset struct {
	SpreadsheetPath string
	HeavyWaterPath  string
	Columns         []int // Omitted sample-column offsets
	SamplesOmitted  int
	Peptides        []string
}

// Serialize writes the bucket as <dir>/<stem>.csv and a generated heavy water
// file <dir>/<stem>.txt. When removeNA is set the bucket's missing columns are
// left out of both files.
func Serialize(dir, stem string, ds *core.Dataset, b Bucket, removeNA bool) (*Dataset, error) {
	sub := &core.Dataset{Days: ds.Days, Mice: ds.Mice, Labels: ds.Labels, Peptides: b.Peptides}

	var cols []int
	if removeNA {
		cols = b.Columns()
		if err := filter.ValidateColumns(cols, ds.SampleCount()); err != nil {
			return nil, err
		}
		sub = filter.ReduceDataset(sub, cols)
	}

	hw, err := core.NewHeavyWater(sub.Days, sub.Labels)
	if err != nil {
		return nil, err
	}

	out := &Dataset{
		SpreadsheetPath: filepath.Join(dir, stem+".csv"),
		HeavyWaterPath:  filepath.Join(dir, stem+".txt"),
		Columns:         cols,
		SamplesOmitted:  len(cols),
		Peptides:        b.Names(),
	}

	if err := spreadsheet.WriteFile(out.SpreadsheetPath, Records(sub)); err != nil {
		return nil, fmt.Errorf("failed to write bucket spreadsheet: %w", err)
	}
	if err := hw.WriteFile(out.HeavyWaterPath); err != nil {
		return nil, fmt.Errorf("failed to write bucket heavy water file: %w", err)
	}
	return out, nil
}

// Records renders a dataset in the engine's spreadsheet layout: labelled day,
// mouse and enrichment rows separated by blank rows, a column title row, then
// one row per peptide.
func Records(ds *core.Dataset) [][]string {
	n := ds.SampleCount()
	width := core.MetadataColumns + n

	row := func(title string, values []string) []string {
		r := make([]string, 0, width)
		r = append(r, title, "", "")
		return append(r, values...)
	}
	blank := func() []string { return make([]string, width) }

	days := make([]string, n)
	titles := make([]string, n)
	for i, d := range ds.Days {
		days[i] = core.FormatDay(d)
		titles[i] = strconv.Itoa(i)
	}

	records := [][]string{
		row("Day", days),
		blank(),
		row("Mouse", ds.Mice),
		blank(),
		row("Body water enrichment", ds.Labels),
		blank(),
		append([]string{"Protein", "Peptide", "Product Mz"}, titles...),
	}

	for i := range ds.Peptides {
		p := &ds.Peptides[i]
		rec := make([]string, 0, width)
		rec = append(rec, p.Protein, p.Name, strconv.FormatFloat(p.MassChargeRatio, 'f', -1, 64))
		for c := range p.Intensities {
			rec = append(rec, p.IntensityText(c))
		}
		records = append(records, rec)
	}
	return records
}
