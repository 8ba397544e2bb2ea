package isolate

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChrisMcGann/RateKey/pkg/core"
	"github.com/ChrisMcGann/RateKey/pkg/reader/spreadsheet"
)

const input = `Day,,,0,3,7,14
Mouse,,,M1,M2,M3,M4
Body water enrichment,,,0,0.05,0.05,0.05
Protein,Peptide,Product Mz,0,1,2,3
P1,PEPA,512.27,1000,900,#N/A,700
P2,PEPB,633.81,1200,1100,1000,950
P1,PEPA,512.30,990,880,#N/A,690
`

const heavyWater = "Experiment, Labeling\n0, 0\n3, 0.05\n7, 0.05\n14,0.05\n"

func parse(t *testing.T) (*core.Dataset, *core.Sheet, *core.HeavyWater) {
	t.Helper()
	reader := spreadsheet.NewCSVReader(strings.NewReader(input))
	for reader.Next() {
	}
	require.NoError(t, reader.Err())

	hw, err := core.ParseHeavyWater(strings.NewReader(heavyWater))
	require.NoError(t, err)
	return reader.Dataset(), reader.Sheet(), hw
}

func TestIsolateDropsColumns(t *testing.T) {
	ds, sheet, hw := parse(t)
	dir := t.TempDir()

	iso := New(dir, WithIDFunc(func() string { return "fixed" }))
	out, err := iso.Isolate(sheet, ds, hw, "PEPA", []int{2})
	require.NoError(t, err)

	assert.Equal(t, "PEPA", out.Peptide)
	assert.Equal(t, 1, out.SamplesOmitted)
	assert.Equal(t, []int{2}, out.Columns)
	assert.Equal(t, filepath.Join(dir, "fixed.csv"), out.SpreadsheetPath)

	reduced, err := os.ReadFile(out.SpreadsheetPath)
	require.NoError(t, err)
	assert.Equal(t, `Day,,,0,3,14
Mouse,,,M1,M2,M4
Body water enrichment,,,0,0.05,0.05
Protein,Peptide,Product Mz,0,1,3
P1,PEPA,512.27,1000,900,700
P1,PEPA,512.30,990,880,690
`, string(reduced))

	water, err := os.ReadFile(out.HeavyWaterPath)
	require.NoError(t, err)
	assert.Equal(t, "Experiment, Labeling\n0, 0\n3, 0.05\n14,0.05\n", string(water))

	// The reduced pair parses back as a consistent dataset
	rds, _, err := spreadsheet.ParseFile(out.SpreadsheetPath)
	require.NoError(t, err)
	assert.Equal(t, 3, rds.SampleCount())
	assert.Len(t, rds.Peptides, 2)
	rhw, err := core.ParseHeavyWaterFile(out.HeavyWaterPath)
	require.NoError(t, err)
	assert.Equal(t, rds.SampleCount(), rhw.Len())
}

func TestIsolateRegeneratesMismatchedHeavyWater(t *testing.T) {
	ds, sheet, _ := parse(t)
	short, err := core.ParseHeavyWater(strings.NewReader("Experiment, Labeling\n0, 0\n"))
	require.NoError(t, err)

	out, err := New(t.TempDir()).Isolate(sheet, ds, short, "PEPA", []int{0, 2})
	require.NoError(t, err)
	assert.Equal(t, 2, out.SamplesOmitted)

	water, err := os.ReadFile(out.HeavyWaterPath)
	require.NoError(t, err)
	assert.Equal(t, "Experiment, Labeling\n3, 0.05\n14, 0.05\n", string(water))
}

func TestIsolateErrors(t *testing.T) {
	ds, sheet, hw := parse(t)
	iso := New(t.TempDir())

	_, err := iso.Isolate(sheet, ds, hw, "PEPZ", []int{2})
	assert.ErrorIs(t, err, ErrPeptideNotFound)

	_, err = iso.Isolate(sheet, ds, hw, "PEPA", []int{4})
	var verr *core.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = New("/nonexistent/dir").Isolate(sheet, ds, hw, "PEPA", []int{2})
	assert.Error(t, err)
}

func TestIsolateConcurrentUniqueFiles(t *testing.T) {
	ds, sheet, hw := parse(t)
	iso := New(t.TempDir())

	var wg sync.WaitGroup
	paths := make([]string, 8)
	for n := range paths {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := iso.Isolate(sheet, ds, hw, "PEPA", []int{2})
			if assert.NoError(t, err) {
				paths[n] = out.SpreadsheetPath
			}
		}()
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, p := range paths {
		assert.False(t, seen[p], "duplicate path %s", p)
		seen[p] = true
	}
}
