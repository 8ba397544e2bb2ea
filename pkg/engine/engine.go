// Package engine runs the external rate-constant engine.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/ChrisMcGann/RateKey/internal/logging"
)

// DefaultResultSuffix replaces the spreadsheet extension in the result file name.
const DefaultResultSuffix = ".RateConst.csv"

// stderrLimit bounds the diagnostic output kept from one engine run.
const stderrLimit = 64 << 10

var (
	// ErrTimeout is wrapped by Error when the engine exceeded its time budget.
	ErrTimeout = errors.New("engine timed out")
	// ErrNoResult is wrapped by Error when the engine exited cleanly without a result file.
	ErrNoResult = errors.New("engine produced no result file")
)

// Engine computes rate constants for a heavy water and spreadsheet file pair
// and returns the path of the result file.
type Engine interface {
	Run(ctx context.Context, heavyWaterPath, spreadsheetPath string) (string, error)
}

// Func adapts a function to the Engine interface.
type Func func(ctx context.Context, heavyWaterPath, spreadsheetPath string) (string, error)

// Run calls f.
func (f Func) Run(ctx context.Context, heavyWaterPath, spreadsheetPath string) (string, error) {
	return f(ctx, heavyWaterPath, spreadsheetPath)
}

// Error describes a failed engine invocation.
type Error struct {
	Binary      string
	Spreadsheet string
	ExitCode    int // -1 when the process did not exit on its own
	Stderr      string
	Err         error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("engine %s failed on %s", filepath.Base(e.Binary), filepath.Base(e.Spreadsheet))
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if line := lastLine(e.Stderr); line != "" {
		msg += ": " + line
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ResultPath returns the result file the engine writes for spreadsheetPath.
func ResultPath(spreadsheetPath, suffix string) string {
	ext := filepath.Ext(spreadsheetPath)
	return strings.TrimSuffix(spreadsheetPath, ext) + suffix
}

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, dir, binary string, args []string, stderr *TailBuffer) error
}

// Option configures the invoker.
type Option func(*Invoker)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(i *Invoker) {
		if exec != nil {
			i.exec = exec
		}
	}
}

// WithResultSuffix overrides the result file suffix.
func WithResultSuffix(suffix string) Option {
	return func(i *Invoker) {
		if suffix != "" {
			i.suffix = suffix
		}
	}
}

// WithLogger sets the invoker logger.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Invoker) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// Invoker runs the engine binary as a subprocess.
type Invoker struct {
	binary  string
	timeout time.Duration
	suffix  string
	exec    Executor
	logger  *slog.Logger
}

// New constructs an engine invoker. A timeout of zero leaves runs unbounded.
func New(binary string, timeoutSeconds int, opts ...Option) (*Invoker, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("engine binary required")
	}
	if timeoutSeconds < 0 {
		return nil, fmt.Errorf("engine timeout must be >= 0, got %d", timeoutSeconds)
	}

	inv := &Invoker{
		binary:  binary,
		timeout: time.Duration(timeoutSeconds) * time.Second,
		suffix:  DefaultResultSuffix,
		exec:    commandExecutor{},
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv, nil
}

// Run executes `binary <heavyWaterPath> <spreadsheetPath>` in the spreadsheet's
// directory and waits for it to exit.
func (i *Invoker) Run(ctx context.Context, heavyWaterPath, spreadsheetPath string) (string, error) {
	hwAbs, err := filepath.Abs(heavyWaterPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve heavy water path: %w", err)
	}
	sheetAbs, err := filepath.Abs(spreadsheetPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve spreadsheet path: %w", err)
	}

	resultPath := ResultPath(sheetAbs, i.suffix)
	if err := os.Remove(resultPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("failed to clear stale result: %w", err)
	}

	runCtx := ctx
	if i.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}

	stderr := NewTailBuffer(stderrLimit)
	start := time.Now()
	runErr := i.exec.Run(runCtx, filepath.Dir(sheetAbs), i.binary, []string{hwAbs, sheetAbs}, stderr)
	elapsed := time.Since(start)

	if runErr != nil {
		engErr := &Error{
			Binary:      i.binary,
			Spreadsheet: spreadsheetPath,
			ExitCode:    -1,
			Stderr:      stderr.String(),
			Err:         runErr,
		}

		var exitErr *exec.ExitError
		switch {
		case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
			engErr.Err = ErrTimeout
		case ctx.Err() != nil:
			engErr.Err = ctx.Err()
		case errors.As(runErr, &exitErr):
			engErr.ExitCode = exitErr.ExitCode()
		}

		i.logger.Debug("engine run failed",
			logging.FieldPath, spreadsheetPath,
			"duration", elapsed,
			logging.Error(engErr),
		)
		return "", engErr
	}

	if _, err := os.Stat(resultPath); err != nil {
		return "", &Error{
			Binary:      i.binary,
			Spreadsheet: spreadsheetPath,
			ExitCode:    0,
			Stderr:      stderr.String(),
			Err:         ErrNoResult,
		}
	}

	i.logger.Debug("engine run complete",
		logging.FieldPath, spreadsheetPath,
		"result", resultPath,
		"duration", elapsed,
	)
	return resultPath, nil
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, dir, binary string, args []string, stderr *TailBuffer) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	cmd.Dir = dir
	cmd.Stderr = stderr
	cmd.WaitDelay = 5 * time.Second
	return cmd.Run()
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.LastIndexByte(s, '\n'); idx >= 0 {
		s = s[idx+1:]
	}
	return strings.TrimSpace(s)
}
