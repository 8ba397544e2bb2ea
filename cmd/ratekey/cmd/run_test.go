package cmd

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChrisMcGann/RateKey/internal/config"
	"github.com/ChrisMcGann/RateKey/pkg/core"
	"github.com/ChrisMcGann/RateKey/pkg/pipeline"
	"github.com/ChrisMcGann/RateKey/pkg/result"
	"github.com/ChrisMcGann/RateKey/pkg/writer/sqlite"
)

// stubEngine emits one result row per peptide row; the Mean column is the
// number of sample columns the engine saw.
const stubEngine = `#!/bin/sh
out="${2%.*}.RateConst.csv"
echo "Protein,Peptide,NEH,Charge,Mean,nRet,MPE_0,MPE_1,Two_SD_Minus,nRet,Two_SD_Plus,nRet" > "$out"
awk -F, 'NR>3 && $2!="" {print $1","$2",20,2,"NF-3",1,0.1,0.2,0.01,1,0.03,1"}' "$2" >> "$out"
`

func TestRunCommandEndToEnd(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell stubs require a POSIX shell")
	}

	dir := t.TempDir()
	engine := filepath.Join(dir, "SRM_Rate")
	require.NoError(t, os.WriteFile(engine, []byte(stubEngine), 0o755))

	sheet := filepath.Join(dir, "liver.csv")
	require.NoError(t, os.WriteFile(sheet, []byte(`,,,0,3,7,14
,,,M1,M2,M3,M4
,,,0,0.05,0.05,0.05
P1,PEPA,512.27,1000,900,#N/A,700
P2,PEPB,633.81,1200,1100,1000,950
`), 0o644))
	heavy := filepath.Join(dir, "heavy.txt")
	require.NoError(t, os.WriteFile(heavy, []byte("Experiment, Labeling\n0, 0\n3, 0.05\n7, 0.05\n14, 0.05\n"), 0o644))

	audit := filepath.Join(dir, "audit.db")
	t.Setenv("RATEKEY_AUDIT_PATH", audit)
	t.Setenv("RATEKEY_WORK_DIR", filepath.Join(dir, "work"))

	out := filepath.Join(dir, "results")
	rootCmd.SetArgs([]string{
		"run",
		"--config", filepath.Join(dir, "absent.toml"),
		"--engine", engine,
		"-w", heavy,
		"-o", out,
		"--xlsx",
		sheet,
	})
	require.NoError(t, rootCmd.Execute())

	data, err := os.ReadFile(filepath.Join(out, "liver.RateConst.csv"))
	require.NoError(t, err)
	assert.Equal(t, `Protein,Peptide,NEH,Charge,Mean,nRet,MPE_0,MPE_1,Two_SD_Minus,nRet,Two_SD_Plus,nRet,
P1,PEPA,20,2,3,1,0.1,0.2,0.01,1,0.03,1,1 sample omitted
P2,PEPB,20,2,4,1,0.1,0.2,0.01,1,0.03,1,
`, string(data))

	_, err = os.Stat(filepath.Join(out, "liver.RateConst.xlsx"))
	assert.NoError(t, err)

	ledger, err := sqlite.NewWriter(audit)
	require.NoError(t, err)
	defer ledger.Close()

	runs, err := ledger.Runs(0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "ok", runs[0].Status)
	assert.Equal(t, 2, runs[0].EngineRuns)

	omissions, err := ledger.Omissions(runs[0].RunID)
	require.NoError(t, err)
	assert.Equal(t, []sqlite.Omission{{Peptide: "PEPA", Columns: []int{2}, SamplesOmitted: 1}}, omissions)
}

func TestOutputPath(t *testing.T) {
	cfg := config.Default()
	cfg.Engine.ResultSuffix = ".RateConst.csv"

	assert.Equal(t, filepath.Join("/data", "liver.RateConst.csv"), outputPath(&cfg, "/data/liver.xlsx"))

	cfg.Output.Dir = "/out"
	assert.Equal(t, filepath.Join("/out", "liver.RateConst.csv"), outputPath(&cfg, "/data/liver.csv"))
}

func TestCheckOutputCollisions(t *testing.T) {
	cfg := config.Default()
	cfg.Engine.ResultSuffix = ".RateConst.csv"

	in := func(paths ...string) []pipeline.Input {
		inputs := make([]pipeline.Input, len(paths))
		for i, p := range paths {
			inputs[i] = pipeline.Input{Spreadsheet: p}
		}
		return inputs
	}

	assert.NoError(t, checkOutputCollisions(&cfg, in("/a/liver.csv", "/b/liver.csv", "/a/heart.csv")))
	assert.Error(t, checkOutputCollisions(&cfg, in("/a/liver.csv", "/a/liver.xlsx")))

	cfg.Output.Dir = "/out"
	err := checkOutputCollisions(&cfg, in("/a/liver.csv", "/b/liver.csv"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), filepath.Join("/out", "liver.RateConst.csv"))
}

func TestRunCommandRejectsCollidingOutputs(t *testing.T) {
	dir := t.TempDir()
	heavy := filepath.Join(dir, "heavy.txt")
	require.NoError(t, os.WriteFile(heavy, []byte("Experiment, Labeling\n0, 0\n"), 0o644))
	for _, sub := range []string{"a", "b"} {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, sub), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, sub, "liver.csv"), []byte(",,,0\n,,,M1\n,,,0\n"), 0o644))
	}

	t.Setenv("RATEKEY_AUDIT_PATH", filepath.Join(dir, "audit.db"))
	t.Setenv("RATEKEY_WORK_DIR", filepath.Join(dir, "work"))

	out := filepath.Join(dir, "results")
	rootCmd.SetArgs([]string{
		"run",
		"--config", filepath.Join(dir, "absent.toml"),
		"--engine", "/bin/true",
		"-w", heavy,
		"-o", out,
		"--xlsx=false",
		filepath.Join(dir, "a", "liver.csv"),
		filepath.Join(dir, "b", "liver.csv"),
	})
	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "would both write")

	_, err = os.Stat(filepath.Join(out, "liver.RateConst.csv"))
	assert.True(t, os.IsNotExist(err))
}

func TestWriteOutputsWorkbookFailure(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Engine.ResultSuffix = ".RateConst.csv"
	cfg.Output.Dir = dir
	cfg.Output.XLSX = true

	// A directory in the workbook's place makes the workbook write fail
	require.NoError(t, os.Mkdir(filepath.Join(dir, "liver.RateConst.xlsx"), 0o755))

	out := &pipeline.Outcome{
		Input: pipeline.Input{Spreadsheet: "/data/liver.csv"},
		Table: result.NewTable([]core.ResultRow{{Protein: "P1", Peptide: "PEPA"}}),
	}
	path, err := writeOutputs(&cfg, out)
	require.Error(t, err)
	assert.Empty(t, path)

	_, err = os.Stat(filepath.Join(dir, "liver.RateConst.csv"))
	assert.True(t, os.IsNotExist(err), "result CSV must not be written when the workbook fails")

	cfg.Output.XLSX = false
	path, err = writeOutputs(&cfg, out)
	require.NoError(t, err)
	assert.FileExists(t, path)
}

func TestAuditRecord(t *testing.T) {
	started := time.Now()
	out := &pipeline.Outcome{
		RunID:      "id",
		Input:      pipeline.Input{Spreadsheet: "a.csv", HeavyWater: "h.txt"},
		Strategy:   pipeline.StrategyPatch,
		Dataset:    &core.Dataset{Peptides: make([]core.Peptide, 3)},
		Missing:    core.MissingMap{"PEPA": {1}},
		Omissions:  []pipeline.Omission{{Peptide: "PEPA", Columns: []int{1}, SamplesOmitted: 1}},
		EngineRuns: 2,
		Started:    started,
		Finished:   started.Add(time.Second),
	}

	run := auditRecord(out, "a.RateConst.csv")
	assert.Equal(t, "ok", run.Status)
	assert.Equal(t, 3, run.Peptides)
	assert.Equal(t, 1, run.Affected)
	assert.Len(t, run.Omissions, 1)

	out.Err = errors.New("engine failed\nstderr tail")
	run = auditRecord(out, "")
	assert.Equal(t, "error", run.Status)
	assert.Equal(t, "engine failed\nstderr tail", run.Error)

	rows := summaryRows([]*pipeline.Outcome{out}, nil)
	require.Len(t, rows, 1)
	assert.Equal(t, "failed", rows[0][1])
	assert.Equal(t, "engine failed", rows[0][6])
	assert.False(t, strings.Contains(rows[0][6], "\n"))
}
