package grouping

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChrisMcGann/RateKey/pkg/core"
	"github.com/ChrisMcGann/RateKey/pkg/reader/spreadsheet"
)

func f(v float64) *float64 { return &v }

func pep(name string, mz float64, intensities ...*float64) core.Peptide {
	return core.Peptide{Protein: "P", Name: name, MassChargeRatio: mz, Intensities: intensities}
}

func TestClustersSplitByMassCharge(t *testing.T) {
	peptides := []core.Peptide{
		pep("PEPA", 500.00, f(1), f(1)),
		pep("PEPB", 600.00, f(1), f(1)),
		pep("PEPA", 500.02, f(1), nil),
		pep("PEPA", 500.01, f(1), f(1)),
		pep("PEPA", 750.00, f(1), f(1)),
	}

	clusters := Clusters(peptides, DefaultToleranceMultiplier)
	require.Len(t, clusters, 3)

	// Names keep first-appearance order; members are ordered by m/z
	assert.Equal(t, "PEPA", clusters[0].Name)
	require.Len(t, clusters[0].Peptides, 3)
	assert.Equal(t, 500.00, clusters[0].Peptides[0].MassChargeRatio)
	assert.Equal(t, 500.02, clusters[0].Peptides[2].MassChargeRatio)
	assert.Equal(t, []bool{false, true}, clusters[0].Missing)

	assert.Equal(t, "PEPA", clusters[1].Name)
	assert.Equal(t, 750.00, clusters[1].Peptides[0].MassChargeRatio)

	assert.Equal(t, "PEPB", clusters[2].Name)
}

func TestPartitionSeparatesSameNameClusters(t *testing.T) {
	clusters := []Cluster{
		{Name: "PEPA", Missing: []bool{false, false}, Peptides: []core.Peptide{pep("PEPA", 500)}},
		{Name: "PEPA", Missing: []bool{false, false}, Peptides: []core.Peptide{pep("PEPA", 750)}},
		{Name: "PEPB", Missing: []bool{false, false}, Peptides: []core.Peptide{pep("PEPB", 600)}},
		{Name: "PEPC", Missing: []bool{true, false}, Peptides: []core.Peptide{pep("PEPC", 700)}},
		{Name: "PEPA", Missing: []bool{false, false}, Peptides: []core.Peptide{pep("PEPA", 900)}},
	}

	buckets := Partition(clusters)
	require.Len(t, buckets, 4)

	assert.Equal(t, []string{"PEPA", "PEPB"}, buckets[0].Names())
	assert.Equal(t, 0, buckets[0].Ordinal)

	assert.Equal(t, []string{"PEPA"}, buckets[1].Names())
	assert.Equal(t, 1, buckets[1].Ordinal)

	assert.Equal(t, []string{"PEPC"}, buckets[2].Names())
	assert.Equal(t, []int{0}, buckets[2].Columns())

	assert.Equal(t, 2, buckets[3].Ordinal)

	for _, b := range buckets {
		names := map[string]int{}
		for _, p := range b.Peptides {
			names[p.Name]++
		}
		for name, n := range names {
			assert.Equal(t, 1, n, "bucket holds %s more than once", name)
		}
	}
}

func TestPartitionIsDeterministic(t *testing.T) {
	peptides := []core.Peptide{
		pep("PEPA", 500, f(1), nil, f(1)),
		pep("PEPB", 600, nil, f(1), f(1)),
		pep("PEPC", 700, f(1), nil, f(1)),
		pep("PEPD", 800, f(1), f(1), f(1)),
	}

	first := Group(peptides, DefaultToleranceMultiplier)
	for range 10 {
		assert.Equal(t, first, Group(peptides, DefaultToleranceMultiplier))
	}
	require.Len(t, first, 3)
	assert.Equal(t, []string{"PEPA", "PEPC"}, first[0].Names())
}

func TestSerializeRemovesMissingColumns(t *testing.T) {
	ds := &core.Dataset{
		Days:   []float64{0, 3, 7},
		Mice:   []string{"M1", "M2", "M3"},
		Labels: []string{"0", "0.05", "unlabeled"},
	}
	bucket := Bucket{
		Missing:  []bool{false, true, false},
		Peptides: []core.Peptide{pep("PEPA", 512.27, f(10), nil, f(30))},
	}
	dir := t.TempDir()

	out, err := Serialize(dir, "bucket", ds, bucket, true)
	require.NoError(t, err)
	assert.Equal(t, 1, out.SamplesOmitted)
	assert.Equal(t, []int{1}, out.Columns)
	assert.Equal(t, []string{"PEPA"}, out.Peptides)

	data, err := os.ReadFile(out.SpreadsheetPath)
	require.NoError(t, err)
	assert.Equal(t, `Day,,,0,7
,,,,
Mouse,,,M1,M3
,,,,
Body water enrichment,,,0,unlabeled
,,,,
Protein,Peptide,Product Mz,0,1
P,PEPA,512.27,10,30
`, string(data))

	water, err := os.ReadFile(out.HeavyWaterPath)
	require.NoError(t, err)
	assert.Equal(t, "Experiment, Labeling\n0, 0\n7, 0\n", string(water))

	// The serialized layout reads back through the spreadsheet parser
	parsed, sheet, err := spreadsheet.ParseFile(out.SpreadsheetPath)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 7}, parsed.Days)
	assert.Equal(t, 7, sheet.HeaderRows)
	require.Len(t, parsed.Peptides, 1)
	assert.False(t, parsed.Peptides[0].HasMissing())
}

func TestSerializeKeepsColumnsWhenNotRemoving(t *testing.T) {
	ds := &core.Dataset{
		Days:   []float64{0, 3},
		Mice:   []string{"M1", "M2"},
		Labels: []string{"0", "0.05"},
	}
	bucket := Bucket{
		Missing:  []bool{true, false},
		Peptides: []core.Peptide{pep("PEPA", 500, nil, f(2))},
	}

	out, err := Serialize(t.TempDir(), "keep", ds, bucket, false)
	require.NoError(t, err)
	assert.Equal(t, 0, out.SamplesOmitted)

	parsed, _, err := spreadsheet.ParseFile(out.SpreadsheetPath)
	require.NoError(t, err)
	assert.Equal(t, 2, parsed.SampleCount())
	assert.True(t, parsed.Peptides[0].HasMissing())
}
