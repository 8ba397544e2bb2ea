package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/ChrisMcGann/RateKey/internal/config"
	"github.com/ChrisMcGann/RateKey/pkg/pipeline"
	"github.com/ChrisMcGann/RateKey/pkg/writer/sqlite"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded runs",
	Long:  `List runs recorded in the audit ledger, or the omitted samples of one run with --run.`,
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove stale working directories",
	Long:  `Remove working directories left behind by interrupted runs. Directories locked by a running pipeline are kept.`,
	Args:  cobra.NoArgs,
	RunE:  runClean,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration utilities",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Create a sample configuration file",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runConfigInit,
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if _, err := os.Stat(cfg.Audit.Path); os.IsNotExist(err) {
		fmt.Println("No runs recorded")
		return nil
	}

	ledger, err := sqlite.NewWriter(cfg.Audit.Path)
	if err != nil {
		return fmt.Errorf("failed to open audit ledger: %w", err)
	}
	defer ledger.Close()

	if historyRun != "" {
		omissions, err := ledger.Omissions(historyRun)
		if err != nil {
			return err
		}
		if len(omissions) == 0 {
			fmt.Printf("No omitted samples recorded for run %s\n", historyRun)
			return nil
		}
		rows := make([][]string, 0, len(omissions))
		for _, o := range omissions {
			rows = append(rows, []string{o.Peptide, joinInts(o.Columns), strconv.Itoa(o.SamplesOmitted)})
		}
		fmt.Println(renderTable(
			[]string{"Peptide", "Omitted columns", "Samples omitted"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignRight},
		))
		return nil
	}

	runs, err := ledger.Runs(historyLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded")
		return nil
	}

	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		status := r.Status
		if r.Error != "" {
			status += ": " + firstLine(r.Error)
		}
		rows = append(rows, []string{
			r.RunID,
			r.StartedAt.Local().Format(time.DateTime),
			filepath.Base(r.Input),
			r.Strategy,
			strconv.Itoa(r.Peptides),
			strconv.Itoa(r.Affected),
			strconv.Itoa(r.EngineRuns),
			status,
		})
	}
	fmt.Println(renderTable(
		[]string{"Run", "Started", "Input", "Strategy", "Peptides", "Affected", "Engine runs", "Status"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
	))
	return nil
}

func runClean(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	removed, err := pipeline.CleanStale(cfg.Work.Dir)
	for _, path := range removed {
		fmt.Printf("Removed %s\n", path)
	}
	if err != nil {
		return err
	}
	fmt.Printf("Cleaned %d stale path(s) under %s\n", len(removed), cfg.Work.Dir)
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	var target string
	var err error
	if len(args) == 1 {
		target, err = config.ExpandPath(args[0])
	} else {
		target, err = config.DefaultConfigPath()
	}
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}

	if !overwriteConfig {
		if _, err := os.Stat(target); err == nil {
			return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("check config path: %w", err)
		}
	}

	if err := config.CreateSample(target); err != nil {
		return err
	}
	fmt.Printf("Wrote sample configuration to %s\n", target)
	return nil
}
