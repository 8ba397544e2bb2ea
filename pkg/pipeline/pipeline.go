// Package pipeline runs the rate-constant workflow for peptide spreadsheets:
// one engine run over the full data, then per-peptide reruns without the
// samples each peptide is missing, patched back into the full result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ChrisMcGann/RateKey/internal/logging"
	"github.com/ChrisMcGann/RateKey/internal/metrics"
	"github.com/ChrisMcGann/RateKey/pkg/core"
	"github.com/ChrisMcGann/RateKey/pkg/engine"
	"github.com/ChrisMcGann/RateKey/pkg/filter"
	"github.com/ChrisMcGann/RateKey/pkg/isolate"
	"github.com/ChrisMcGann/RateKey/pkg/reader/spreadsheet"
	"github.com/ChrisMcGann/RateKey/pkg/result"
)

// Strategy selects how peptides with missing samples are computed.
type Strategy string

const (
	// StrategyPatch runs the full dataset once and reruns each affected peptide.
	StrategyPatch Strategy = "patch"
	// StrategyGrouped runs one dataset per group of peptides sharing missing columns.
	StrategyGrouped Strategy = "grouped"
)

// ParseStrategy converts a configuration value into a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case StrategyPatch, "":
		return StrategyPatch, nil
	case StrategyGrouped:
		return StrategyGrouped, nil
	default:
		return "", fmt.Errorf("unknown strategy %q", s)
	}
}

// Options configures a Pipeline.
type Options struct {
	Engine              engine.Engine
	WorkRoot            string
	KeepWorkdir         bool
	Strategy            Strategy
	RemoveNA            bool
	Duplicates          result.DuplicatePolicy
	PeptideWorkers      int
	ToleranceMultiplier float64
	Logger              *slog.Logger
	Metrics             *metrics.Recorder
}

// Input is one spreadsheet and heavy water file pair.
type Input struct {
	Spreadsheet string
	HeavyWater  string
}

// Omission records the samples left out of one peptide's computation.
type Omission struct {
	Peptide        string
	Columns        []int
	SamplesOmitted int
}

// Outcome is the result of processing one input. Table is nil when Err is set.
type Outcome struct {
	RunID      string
	Input      Input
	Strategy   Strategy
	Workdir    string
	Dataset    *core.Dataset
	Missing    core.MissingMap
	Omissions  []Omission
	Table      *result.Table
	EngineRuns int
	Started    time.Time
	Finished   time.Time
	Err        error
}

// Duration returns the wall time of the run.
func (o *Outcome) Duration() time.Duration {
	return o.Finished.Sub(o.Started)
}

// Pipeline processes input files. It is safe for concurrent use.
type Pipeline struct {
	opts   Options
	logger *slog.Logger
}

// New validates opts and returns a Pipeline.
func New(opts Options) (*Pipeline, error) {
	if opts.Engine == nil {
		return nil, errors.New("engine required")
	}
	if strings.TrimSpace(opts.WorkRoot) == "" {
		return nil, errors.New("work root required")
	}
	if opts.Strategy == "" {
		opts.Strategy = StrategyPatch
	}
	if opts.Strategy != StrategyPatch && opts.Strategy != StrategyGrouped {
		return nil, fmt.Errorf("unknown strategy %q", opts.Strategy)
	}
	if opts.Duplicates == "" {
		opts.Duplicates = result.RequireUnique
	}
	if opts.PeptideWorkers < 1 {
		opts.PeptideWorkers = 1
	}
	if opts.ToleranceMultiplier <= 0 {
		opts.ToleranceMultiplier = 2.0
	}

	return &Pipeline{
		opts:   opts,
		logger: logging.NewComponentLogger(opts.Logger, "pipeline"),
	}, nil
}

// run holds the per-file state shared by the pipeline steps.
type run struct {
	*Outcome
	logger     *slog.Logger
	sheet      *core.Sheet
	heavyWater *core.HeavyWater
	engineRuns atomic.Int64
}

// Process runs the pipeline for one input. Failures are reported through
// Outcome.Err; no partial result is returned.
func (p *Pipeline) Process(ctx context.Context, in Input) *Outcome {
	out := &Outcome{
		RunID:    uuid.NewString(),
		Input:    in,
		Strategy: p.opts.Strategy,
		Started:  time.Now(),
	}
	r := &run{
		Outcome: out,
		logger: p.logger.With(
			logging.FieldRunID, out.RunID,
			logging.FieldInput, in.Spreadsheet,
			logging.FieldStrategy, string(p.opts.Strategy),
		),
	}

	r.logger.Info("run started")
	table, err := p.process(ctx, r)
	out.EngineRuns = int(r.engineRuns.Load())
	out.Finished = time.Now()

	if err != nil {
		out.Err = err
		out.Omissions = nil
		r.logger.Error("run failed", logging.Error(err), "duration", out.Duration())
	} else {
		out.Table = table
		r.logger.Info("run finished",
			"rows", table.Len(),
			"patched", len(out.Omissions),
			"engine_runs", out.EngineRuns,
			"duration", out.Duration(),
		)
	}
	p.opts.Metrics.FileProcessed(err)
	return out
}

func (p *Pipeline) process(ctx context.Context, r *run) (*result.Table, error) {
	ds, sheet, err := spreadsheet.ParseFile(r.Input.Spreadsheet)
	if err != nil {
		return nil, fmt.Errorf("failed to parse spreadsheet: %w", err)
	}
	hw, err := core.ParseHeavyWaterFile(r.Input.HeavyWater)
	if err != nil {
		return nil, fmt.Errorf("failed to parse heavy water file: %w", err)
	}
	r.Dataset, r.sheet, r.heavyWater = ds, sheet, hw
	r.Missing = filter.Detect(ds.Peptides)

	stem := strings.TrimSuffix(filepath.Base(r.Input.Spreadsheet), filepath.Ext(r.Input.Spreadsheet))
	wd, err := AcquireWorkdir(p.opts.WorkRoot, stem+"-"+r.RunID, p.opts.KeepWorkdir)
	if err != nil {
		return nil, err
	}
	r.Workdir = wd.Path
	defer func() {
		if err := wd.Release(); err != nil {
			r.logger.Warn("failed to release working directory", logging.Error(err), logging.FieldPath, wd.Path)
		}
	}()

	if p.opts.Strategy == StrategyGrouped {
		return p.processGrouped(ctx, r)
	}
	return p.processPatch(ctx, r)
}

func (p *Pipeline) processPatch(ctx context.Context, r *run) (*result.Table, error) {
	sheetPath, hwPath, err := p.stage(r)
	if err != nil {
		return nil, err
	}

	resultPath, err := p.runEngine(ctx, r, metrics.KindMaster, hwPath, sheetPath)
	if err != nil {
		return nil, fmt.Errorf("master run failed: %w", err)
	}
	master, err := result.ReadFile(resultPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read master result: %w", err)
	}
	r.logger.Info("master run complete", "rows", master.Len(), "affected", len(r.Missing))

	if !p.opts.RemoveNA || len(r.Missing) == 0 {
		return master, nil
	}

	names := r.Missing.Names()
	if p.opts.Duplicates == result.RequireUnique {
		for _, name := range names {
			if master.Count(name) > 1 {
				return nil, fmt.Errorf("%w: %s", result.ErrAmbiguousRow, name)
			}
		}
	}

	if err := p.patchAll(ctx, r, master, names); err != nil {
		return nil, err
	}
	return master, nil
}

// stage copies the inputs into the working directory under unique names. Workbook
// inputs are written as CSV, the format the engine reads.
func (p *Pipeline) stage(r *run) (string, string, error) {
	id := uuid.NewString()
	sheetPath := filepath.Join(r.Workdir, id+".csv")
	hwPath := filepath.Join(r.Workdir, id+".txt")

	format, err := spreadsheet.DetectFormat(r.Input.Spreadsheet)
	if err != nil {
		return "", "", err
	}
	if format == spreadsheet.FormatCSV {
		err = copyFile(r.Input.Spreadsheet, sheetPath)
	} else {
		err = spreadsheet.WriteFile(sheetPath, r.sheet.Records)
	}
	if err != nil {
		return "", "", fmt.Errorf("failed to stage spreadsheet: %w", err)
	}

	if err := copyFile(r.Input.HeavyWater, hwPath); err != nil {
		return "", "", fmt.Errorf("failed to stage heavy water file: %w", err)
	}
	return sheetPath, hwPath, nil
}

// patchAll isolates, reruns and patches every affected peptide. The first
// failure cancels the remaining reruns.
func (p *Pipeline) patchAll(ctx context.Context, r *run, master *result.Table, names []string) error {
	isolator := newIsolator(r)
	patcher := result.NewPatcher(master, p.opts.Duplicates)
	omissions := make([]Omission, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.PeptideWorkers)

	for i, name := range names {
		g.Go(func() error {
			iso, err := isolator.Isolate(r.sheet, r.Dataset, r.heavyWater, name, r.Missing[name])
			if err != nil {
				return fmt.Errorf("failed to isolate %s: %w", name, err)
			}

			resultPath, err := p.runEngine(gctx, r, metrics.KindRerun, iso.HeavyWaterPath, iso.SpreadsheetPath)
			if err != nil {
				return fmt.Errorf("rerun of %s failed: %w", name, err)
			}

			if err := patcher.ApplyFile(resultPath, name, iso.SamplesOmitted); err != nil {
				return fmt.Errorf("failed to patch %s: %w", name, err)
			}

			omissions[i] = Omission{Peptide: name, Columns: iso.Columns, SamplesOmitted: iso.SamplesOmitted}
			p.opts.Metrics.PeptidePatched(iso.SamplesOmitted)
			r.logger.Info("peptide patched",
				logging.FieldPeptide, name,
				logging.FieldSamplesOmitted, iso.SamplesOmitted,
			)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	r.Omissions = omissions
	return nil
}

func newIsolator(r *run) *isolate.Isolator {
	return isolate.New(r.Workdir, isolate.WithLogger(r.logger))
}

func (p *Pipeline) runEngine(ctx context.Context, r *run, kind, hwPath, sheetPath string) (string, error) {
	r.engineRuns.Add(1)
	start := time.Now()
	path, err := p.opts.Engine.Run(ctx, hwPath, sheetPath)
	p.opts.Metrics.EngineRun(kind, time.Since(start), err)
	if err != nil {
		r.logger.Debug("engine run failed", logging.FieldEngineKind, kind, logging.Error(err))
	}
	return path, err
}

// ProcessBatch processes inputs concurrently, at most workers at a time. A
// failing input never stops its siblings. onDone, when set, is called once per
// input as it finishes, never concurrently. Outcomes are returned in input order.
func (p *Pipeline) ProcessBatch(ctx context.Context, inputs []Input, workers int, onDone func(*Outcome)) []*Outcome {
	if workers < 1 {
		workers = 1
	}

	outcomes := make([]*Outcome, len(inputs))
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(workers)
	for i, in := range inputs {
		g.Go(func() error {
			out := p.Process(ctx, in)
			outcomes[i] = out
			if onDone != nil {
				mu.Lock()
				onDone(out)
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()

	return outcomes
}
