// Package cmd provides CLI command implementations
package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ChrisMcGann/RateKey/internal/config"
	"github.com/ChrisMcGann/RateKey/internal/logging"
)

var (
	// Global flags
	configPath string
	logLevel   string

	// Flags for run command
	heavyWaterFile string
	outputDir      string
	strategy       string
	removeNA       bool
	duplicates     string
	jobs           int
	peptideJobs    int
	enginePath     string
	engineTimeout  int
	keepWorkdir    bool
	writeXLSX      bool
	metricsFile    string
	noAudit        bool

	// Flags for validate command
	validateHeavyWater string

	// Flags for history command
	historyLimit int
	historyRun   string

	// Flags for config init command
	overwriteConfig bool
)

var rootCmd = &cobra.Command{
	Use:   "ratekey",
	Short: "RateKey - peptide turnover rate-constant pipeline",
	Long: `RateKey computes protein turnover rate constants from heavy water labeling
experiments by driving the kinetics engine over peptide intensity spreadsheets.

Peptides with missing intensities are rerun without the samples they lack, and
their rows in the full result are replaced and annotated with the number of
omitted samples.`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(summarizeCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(configCmd)

	// Run command flags
	runCmd.Flags().StringVarP(&heavyWaterFile, "heavy-water", "w", "", "Heavy water enrichment file (required)")
	runCmd.Flags().StringVarP(&outputDir, "out", "o", "", "Output directory (default: next to each input)")
	runCmd.Flags().StringVar(&strategy, "strategy", "patch", "Missing-value strategy: patch or grouped")
	runCmd.Flags().BoolVar(&removeNA, "remove-na", true, "Recompute peptides with missing values without those samples")
	runCmd.Flags().StringVar(&duplicates, "duplicates", "require-unique", "Duplicate peptide policy: require-unique or first-match")
	runCmd.Flags().IntVarP(&jobs, "jobs", "j", 2, "Number of input files processed concurrently")
	runCmd.Flags().IntVar(&peptideJobs, "peptide-jobs", 4, "Number of concurrent engine reruns per file")
	runCmd.Flags().StringVar(&enginePath, "engine", "", "Kinetics engine executable")
	runCmd.Flags().IntVar(&engineTimeout, "engine-timeout", 0, "Seconds before an engine run is killed (0 = no limit)")
	runCmd.Flags().BoolVar(&keepWorkdir, "keep-workdir", false, "Keep working directories for inspection")
	runCmd.Flags().BoolVar(&writeXLSX, "xlsx", false, "Also write each result as an .xlsx workbook")
	runCmd.Flags().StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile")
	runCmd.Flags().BoolVar(&noAudit, "no-audit", false, "Do not record runs in the audit ledger")

	runCmd.MarkFlagRequired("heavy-water")

	// Validate command flags
	validateCmd.Flags().StringVarP(&validateHeavyWater, "heavy-water", "w", "", "Also check a heavy water file against the spreadsheet")

	// History command flags
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of runs to list (0 = all)")
	historyCmd.Flags().StringVar(&historyRun, "run", "", "Show the omitted samples of one run")

	// Config init flags
	configInitCmd.Flags().BoolVar(&overwriteConfig, "overwrite", false, "Overwrite existing configuration if present")
	configCmd.AddCommand(configInitCmd)
}

// loadConfig loads the configuration and applies explicitly set flags on top.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	flags := cmd.Flags()
	changed := func(name string) bool {
		f := flags.Lookup(name)
		return f != nil && f.Changed
	}

	if changed("out") {
		if cfg.Output.Dir, err = config.ExpandPath(outputDir); err != nil {
			return nil, err
		}
	}
	if changed("strategy") {
		cfg.Pipeline.Strategy = strings.ToLower(strings.TrimSpace(strategy))
	}
	if changed("remove-na") {
		cfg.Pipeline.RemoveNA = removeNA
	}
	if changed("duplicates") {
		cfg.Pipeline.DuplicatePolicy = strings.ToLower(strings.TrimSpace(duplicates))
	}
	if changed("jobs") {
		cfg.Pipeline.FileWorkers = jobs
	}
	if changed("peptide-jobs") {
		cfg.Pipeline.PeptideWorkers = peptideJobs
	}
	if changed("engine") {
		cfg.Engine.Path = enginePath
	}
	if changed("engine-timeout") {
		cfg.Engine.TimeoutSeconds = engineTimeout
	}
	if changed("keep-workdir") {
		cfg.Work.Keep = keepWorkdir
	}
	if changed("xlsx") {
		cfg.Output.XLSX = writeXLSX
	}
	if changed("metrics-file") {
		if cfg.Metrics.Textfile, err = config.ExpandPath(metricsFile); err != nil {
			return nil, err
		}
	}
	if changed("no-audit") && noAudit {
		cfg.Audit.Enabled = false
	}
	if changed("log-level") {
		cfg.Logging.Level = strings.ToLower(strings.TrimSpace(logLevel))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*slog.Logger, error) {
	logger, err := logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.LogOutputs(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger, nil
}
