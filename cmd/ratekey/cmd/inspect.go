package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ChrisMcGann/RateKey/pkg/core"
	"github.com/ChrisMcGann/RateKey/pkg/filter"
	"github.com/ChrisMcGann/RateKey/pkg/reader/spreadsheet"
)

var validateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate a peptide spreadsheet",
	Long: `Parse a peptide spreadsheet, check that the header rows and intensity
columns line up, and list the peptides with missing samples.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

var summarizeCmd = &cobra.Command{
	Use:   "summarize [file]",
	Short: "Summarize a peptide spreadsheet",
	Long:  `Print one row per sample column with its day, mouse, label and the number of peptides missing it.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runSummarize,
}

func runValidate(cmd *cobra.Command, args []string) error {
	ds, _, err := spreadsheet.ParseFile(args[0])
	if err != nil {
		return err
	}

	if validateHeavyWater != "" {
		hw, err := core.ParseHeavyWaterFile(validateHeavyWater)
		if err != nil {
			return err
		}
		if hw.Len() != ds.SampleCount() {
			fmt.Printf("Warning: heavy water file has %d entries for %d sample columns; reruns will regenerate it from the spreadsheet header\n",
				hw.Len(), ds.SampleCount())
		}
	}

	missing := filter.Detect(ds.Peptides)
	fmt.Printf("Valid: %d peptides, %d sample columns\n", len(ds.Peptides), ds.SampleCount())
	if len(missing) == 0 {
		fmt.Println("No missing values")
		return nil
	}

	rows := make([][]string, 0, len(missing))
	for _, name := range missing.Names() {
		cols := missing[name]
		rows = append(rows, []string{name, joinInts(cols), strconv.Itoa(len(cols))})
	}
	fmt.Printf("%d peptide(s) with missing values:\n", len(missing))
	fmt.Println(renderTable(
		[]string{"Peptide", "Missing columns", "Count"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight},
	))
	return nil
}

func runSummarize(cmd *cobra.Command, args []string) error {
	ds, _, err := spreadsheet.ParseFile(args[0])
	if err != nil {
		return err
	}

	n := ds.SampleCount()
	absent := make([]int, n)
	complete := 0
	for i := range ds.Peptides {
		p := &ds.Peptides[i]
		if !p.HasMissing() {
			complete++
		}
		for _, c := range p.MissingColumns() {
			absent[c]++
		}
	}

	rows := make([][]string, n)
	for i := range n {
		rows[i] = []string{
			strconv.Itoa(i),
			core.FormatDay(ds.Days[i]),
			ds.Mice[i],
			ds.Labels[i],
			ds.NumericLabel(i),
			strconv.Itoa(absent[i]),
		}
	}
	fmt.Println(renderTable(
		[]string{"Column", "Day", "Mouse", "Label", "Numeric label", "Absent"},
		rows,
		[]columnAlignment{alignRight, alignRight, alignLeft, alignLeft, alignRight, alignRight},
	))

	fmt.Printf("Peptides: %d (%d complete, %d with missing values)\n", len(ds.Peptides), complete, len(ds.Peptides)-complete)
	if len(ds.Peptides) > 0 {
		fmt.Printf("Mean m/z: %.4f\n", core.RoundFloat(core.MeanMZ(ds.Peptides), 4))
	}
	return nil
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ", ")
}
