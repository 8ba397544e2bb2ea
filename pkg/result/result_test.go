package result

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChrisMcGann/RateKey/pkg/core"
)

const master = `Protein,Peptide,NEH,Charge,Mean,nRet,MPE_0,MPE_1,Two_SD_Minus,nRet,Two_SD_Plus,nRet
P1,PEPA,31.2,2,0.1234567,4,0.001,0.002,0.09,4,0.15,4
P2, PEPB ,28.0,3,0.0500000,4,0.003,0.004,0.04,4,0.06,4
`

const rerun = `Protein,Peptide,NEH,Charge,Mean,nRet,MPE_0,MPE_1,Two_SD_Minus,nRet,Two_SD_Plus,nRet
P1,PEPA,31.2,2,0.1300001,3,0.001,0.002,0.10,3,0.16,3
`

func mustRead(t *testing.T, s string) *Table {
	t.Helper()
	tbl, err := Read(strings.NewReader(s))
	require.NoError(t, err)
	return tbl
}

func render(t *testing.T, tbl *Table) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, tbl.Write(&buf))
	return buf.String()
}

func TestReadPreservesPreambleAndText(t *testing.T) {
	tbl := mustRead(t, "engine v2.1\n\n"+master)

	assert.Len(t, tbl.Preamble, 1)
	assert.Equal(t, "Protein", tbl.Header[0])
	require.Equal(t, 2, tbl.Len())
	assert.Equal(t, "0.1234567", tbl.Rows[0].Mean)
	assert.Equal(t, " PEPB ", tbl.Rows[1].Peptide)

	out := render(t, tbl)
	assert.True(t, strings.HasPrefix(out, "engine v2.1\n"))
	assert.Contains(t, out, "Two_SD_Plus,nRet,\n")
	assert.Contains(t, out, "P1,PEPA,31.2,2,0.1234567,4,0.001,0.002,0.09,4,0.15,4,\n")
}

func TestReadWithoutHeaderUsesFirstRow(t *testing.T) {
	tbl := mustRead(t, "a,b,c\nP1,PEPA,1\n")
	assert.Empty(t, tbl.Preamble)
	assert.Equal(t, []string{"a", "b", "c"}, tbl.Header)
	assert.Equal(t, 1, tbl.Len())

	_, err := Read(strings.NewReader(""))
	assert.Error(t, err)
}

func TestParseDuplicatePolicy(t *testing.T) {
	p, err := ParseDuplicatePolicy("")
	require.NoError(t, err)
	assert.Equal(t, RequireUnique, p)

	p, err = ParseDuplicatePolicy("First-Match")
	require.NoError(t, err)
	assert.Equal(t, FirstMatch, p)

	_, err = ParseDuplicatePolicy("all")
	assert.Error(t, err)
}

func TestPatchReplacesRowAndAnnotates(t *testing.T) {
	tbl := mustRead(t, master)
	before := tbl.Rows[1]

	p := NewPatcher(tbl, RequireUnique)
	row := mustRead(t, rerun).Rows[0]
	require.NoError(t, p.Apply(row, 1))

	assert.Equal(t, 2, tbl.Len())
	assert.Equal(t, "0.1300001", tbl.Rows[0].Mean)
	assert.Equal(t, 1, tbl.Rows[0].SamplesOmitted)
	assert.Equal(t, before, tbl.Rows[1])

	out := render(t, tbl)
	assert.Contains(t, out, "P1,PEPA,31.2,2,0.1300001,3,0.001,0.002,0.10,3,0.16,3,1 sample omitted\n")
	assert.Contains(t, out, "P2,\" PEPB \",28.0,3,0.0500000,4,0.003,0.004,0.04,4,0.06,4,\n")
}

func TestPatchIsIdempotent(t *testing.T) {
	once := mustRead(t, master)
	twice := mustRead(t, master)
	row := mustRead(t, rerun).Rows[0]

	require.NoError(t, NewPatcher(once, RequireUnique).Apply(row, 2))
	p := NewPatcher(twice, RequireUnique)
	require.NoError(t, p.Apply(row, 2))
	require.NoError(t, p.Apply(row, 2))

	assert.Equal(t, render(t, once), render(t, twice))
	assert.Equal(t, once.Len(), twice.Len())
}

func TestPatchMatchesTrimmedNames(t *testing.T) {
	tbl := mustRead(t, master)
	row := core.ResultRow{Protein: "P2", Peptide: "PEPB", Mean: "0.06"}

	require.NoError(t, NewPatcher(tbl, RequireUnique).Apply(row, 3))
	assert.Equal(t, "0.06", tbl.Rows[1].Mean)
	assert.Equal(t, "3 samples omitted", tbl.Rows[1].Record()[12])
}

func TestPatchDuplicatePolicy(t *testing.T) {
	dup := master + "P3,PEPA,30.0,2,0.2,4,0.001,0.002,0.1,4,0.3,4\n"
	row := mustRead(t, rerun).Rows[0]

	strict := mustRead(t, dup)
	err := NewPatcher(strict, RequireUnique).Apply(row, 1)
	assert.ErrorIs(t, err, ErrAmbiguousRow)
	assert.Equal(t, "0.1234567", strict.Rows[0].Mean)
	assert.Equal(t, 2, strict.Count("PEPA"))

	loose := mustRead(t, dup)
	require.NoError(t, NewPatcher(loose, FirstMatch).Apply(row, 1))
	assert.Equal(t, "0.1300001", loose.Rows[0].Mean)
	assert.Equal(t, "0.2", loose.Rows[2].Mean)
}

func TestPatchUnknownPeptide(t *testing.T) {
	tbl := mustRead(t, master)
	err := NewPatcher(tbl, RequireUnique).Apply(core.ResultRow{Peptide: "PEPZ"}, 1)
	assert.ErrorIs(t, err, ErrRowNotFound)
}

func TestApplyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rerun.RateConst.csv")
	require.NoError(t, os.WriteFile(path, []byte(rerun), 0o644))

	tbl := mustRead(t, master)
	p := NewPatcher(tbl, RequireUnique)
	require.NoError(t, p.ApplyFile(path, "PEPA", 1))
	assert.Equal(t, "0.1300001", p.Table().Rows[0].Mean)

	assert.ErrorIs(t, p.ApplyFile(path, "PEPB", 1), ErrRowNotFound)
	assert.Error(t, p.ApplyFile(filepath.Join(dir, "missing.csv"), "PEPA", 1))
}

func TestConcurrentPatches(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("Protein,Peptide,NEH\n")
	names := []string{"A", "B", "C", "D", "E", "F", "G", "H"}
	for _, n := range names {
		sb.WriteString("P," + n + ",1\n")
	}
	tbl := mustRead(t, sb.String())
	p := NewPatcher(tbl, RequireUnique)

	var wg sync.WaitGroup
	for _, n := range names {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, p.Apply(core.ResultRow{Protein: "P", Peptide: n, NEH: "2"}, 1))
		}()
	}
	wg.Wait()

	require.Equal(t, len(names), tbl.Len())
	for i, n := range names {
		assert.Equal(t, n, tbl.Rows[i].Peptide)
		assert.Equal(t, "2", tbl.Rows[i].NEH)
	}
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.RateConst.csv")

	require.NoError(t, mustRead(t, master).WriteFile(path))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	back, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, back.Len())
	assert.Len(t, back.Header, len(core.ResultColumns)+1)

	assert.Error(t, mustRead(t, master).WriteFile(filepath.Join(dir, "missing", "out.csv")))
}
