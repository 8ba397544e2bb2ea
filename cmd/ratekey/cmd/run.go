package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ChrisMcGann/RateKey/internal/config"
	"github.com/ChrisMcGann/RateKey/internal/logging"
	"github.com/ChrisMcGann/RateKey/internal/metrics"
	"github.com/ChrisMcGann/RateKey/pkg/engine"
	"github.com/ChrisMcGann/RateKey/pkg/pipeline"
	"github.com/ChrisMcGann/RateKey/pkg/result"
	"github.com/ChrisMcGann/RateKey/pkg/writer/sqlite"
	"github.com/ChrisMcGann/RateKey/pkg/writer/xlsx"
)

var runCmd = &cobra.Command{
	Use:   "run [flags] input.csv [input2.xlsx ...]",
	Short: "Compute rate constants for peptide spreadsheets",
	Long: `Run the kinetics engine over each input spreadsheet and write the rate
constant table next to it (or into --out). Peptides with missing intensities are
recomputed without the missing samples unless --remove-na=false.

Examples:
  # One spreadsheet with default settings
  ratekey run -w heavy_water.txt liver.csv

  # Several files, grouped strategy, results and workbooks into results/
  ratekey run -w heavy_water.txt -o results --strategy grouped --xlsx liver.csv heart.xlsx`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	hwPath, err := config.ExpandPath(heavyWaterFile)
	if err != nil {
		return err
	}
	if _, err := os.Stat(hwPath); err != nil {
		return fmt.Errorf("heavy water file does not exist: %s", heavyWaterFile)
	}

	inputs := make([]pipeline.Input, 0, len(args))
	for _, arg := range args {
		path, err := config.ExpandPath(arg)
		if err != nil {
			return err
		}
		inputs = append(inputs, pipeline.Input{Spreadsheet: path, HeavyWater: hwPath})
	}
	if err := checkOutputCollisions(cfg, inputs); err != nil {
		return err
	}

	strat, err := pipeline.ParseStrategy(cfg.Pipeline.Strategy)
	if err != nil {
		return err
	}
	policy, err := result.ParseDuplicatePolicy(cfg.Pipeline.DuplicatePolicy)
	if err != nil {
		return err
	}

	eng, err := engine.New(cfg.Engine.Path, cfg.Engine.TimeoutSeconds,
		engine.WithResultSuffix(cfg.Engine.ResultSuffix),
		engine.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("failed to configure engine: %w", err)
	}

	recorder := metrics.New()
	p, err := pipeline.New(pipeline.Options{
		Engine:              eng,
		WorkRoot:            cfg.Work.Dir,
		KeepWorkdir:         cfg.Work.Keep,
		Strategy:            strat,
		RemoveNA:            cfg.Pipeline.RemoveNA,
		Duplicates:          policy,
		PeptideWorkers:      cfg.Pipeline.PeptideWorkers,
		ToleranceMultiplier: cfg.Pipeline.ToleranceMultiplier,
		Logger:              logger,
		Metrics:             recorder,
	})
	if err != nil {
		return err
	}

	var ledger *sqlite.Writer
	if cfg.Audit.Enabled {
		ledger, err = sqlite.NewWriter(cfg.Audit.Path)
		if err != nil {
			return fmt.Errorf("failed to open audit ledger: %w", err)
		}
		defer ledger.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Processing %d file(s) with strategy %s...\n", len(inputs), strat)

	outputs := make(map[string]string, len(inputs))
	outcomes := p.ProcessBatch(ctx, inputs, cfg.Pipeline.FileWorkers, func(out *pipeline.Outcome) {
		if out.Err == nil {
			path, err := writeOutputs(cfg, out)
			if err != nil {
				out.Err = err
			} else {
				outputs[out.RunID] = path
			}
		}
		if ledger != nil {
			if err := ledger.WriteRun(auditRecord(out, outputs[out.RunID])); err != nil {
				logger.Warn("failed to record run", logging.Error(err), logging.FieldRunID, out.RunID)
			}
		}
		reportOutcome(out, outputs[out.RunID])
	})

	if err := recorder.WriteTextfile(cfg.Metrics.Textfile); err != nil {
		logger.Warn("failed to write metrics", logging.Error(err))
	}

	fmt.Println()
	fmt.Println(renderTable(
		[]string{"Input", "Status", "Peptides", "Patched", "Engine runs", "Duration", "Output"},
		summaryRows(outcomes, outputs),
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft},
	))

	return batchError(outcomes, logger)
}

// writeOutputs writes the result table (and optional workbook) for a
// successful outcome and returns the CSV path. On error neither file is left
// behind.
func writeOutputs(cfg *config.Config, out *pipeline.Outcome) (string, error) {
	path := outputPath(cfg, out.Input.Spreadsheet)

	var workbook string
	if cfg.Output.XLSX {
		workbook = strings.TrimSuffix(path, filepath.Ext(path)) + ".xlsx"
		if err := xlsx.WriteFile(workbook, out.Table); err != nil {
			return "", fmt.Errorf("failed to write workbook: %w", err)
		}
	}

	if err := out.Table.WriteFile(path); err != nil {
		if workbook != "" {
			os.Remove(workbook)
		}
		return "", fmt.Errorf("failed to write result: %w", err)
	}
	return path, nil
}

// checkOutputCollisions rejects a batch in which two inputs would write the
// same result file.
func checkOutputCollisions(cfg *config.Config, inputs []pipeline.Input) error {
	seen := make(map[string]string, len(inputs))
	for _, in := range inputs {
		path := outputPath(cfg, in.Spreadsheet)
		key := path
		if abs, err := filepath.Abs(path); err == nil {
			key = abs
		}
		if prev, ok := seen[key]; ok {
			return fmt.Errorf("%s and %s would both write %s", prev, in.Spreadsheet, path)
		}
		seen[key] = in.Spreadsheet
	}
	return nil
}

func outputPath(cfg *config.Config, input string) string {
	dir := cfg.Output.Dir
	if dir == "" {
		dir = filepath.Dir(input)
	}
	stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	return filepath.Join(dir, stem+cfg.Engine.ResultSuffix)
}

func reportOutcome(out *pipeline.Outcome, path string) {
	name := filepath.Base(out.Input.Spreadsheet)
	if out.Err != nil {
		fmt.Fprintf(os.Stderr, "Failed %s: %v\n", name, out.Err)
		return
	}
	fmt.Printf("Processed %s: %d rows, %d patched, %d engine run(s) -> %s\n",
		name, out.Table.Len(), len(out.Omissions), out.EngineRuns, path)
}

func auditRecord(out *pipeline.Outcome, path string) *sqlite.Run {
	run := &sqlite.Run{
		RunID:      out.RunID,
		Input:      out.Input.Spreadsheet,
		HeavyWater: out.Input.HeavyWater,
		Output:     path,
		Strategy:   string(out.Strategy),
		Status:     "ok",
		Affected:   len(out.Missing),
		EngineRuns: out.EngineRuns,
		StartedAt:  out.Started,
		FinishedAt: out.Finished,
	}
	if out.Dataset != nil {
		run.Peptides = len(out.Dataset.Peptides)
	}
	if out.Err != nil {
		run.Status = "error"
		run.Error = out.Err.Error()
	}
	for _, o := range out.Omissions {
		run.Omissions = append(run.Omissions, sqlite.Omission{
			Peptide:        o.Peptide,
			Columns:        o.Columns,
			SamplesOmitted: o.SamplesOmitted,
		})
	}
	return run
}

func summaryRows(outcomes []*pipeline.Outcome, outputs map[string]string) [][]string {
	rows := make([][]string, 0, len(outcomes))
	for _, out := range outcomes {
		status, peptides, dest := "ok", "-", outputs[out.RunID]
		if out.Dataset != nil {
			peptides = fmt.Sprint(len(out.Dataset.Peptides))
		}
		if out.Err != nil {
			status = "failed"
			dest = firstLine(out.Err.Error())
		}
		rows = append(rows, []string{
			filepath.Base(out.Input.Spreadsheet),
			status,
			peptides,
			fmt.Sprint(len(out.Omissions)),
			fmt.Sprint(out.EngineRuns),
			out.Duration().Round(10 * time.Millisecond).String(),
			dest,
		})
	}
	return rows
}

func batchError(outcomes []*pipeline.Outcome, logger *slog.Logger) error {
	failed := 0
	for _, out := range outcomes {
		if out.Err != nil {
			failed++
			if errors.Is(out.Err, context.Canceled) {
				logger.Warn("run interrupted", logging.FieldInput, out.Input.Spreadsheet)
			}
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d file(s) failed", failed, len(outcomes))
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
