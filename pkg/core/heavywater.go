package core

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// HeavyWaterHeader is the header line of generated heavy water files.
const HeavyWaterHeader = "Experiment, Labeling"

// HeavyWaterEntry is one "day, label" line of a heavy water file.
type HeavyWaterEntry struct {
	Day   string
	Label string
	line  string // Original text, written back verbatim
}

// HeavyWater stores the timepoint/enrichment table fed to the kinetics engine.
type HeavyWater struct {
	Header  string // Empty when the source had no header line
	Entries []HeavyWaterEntry
}

// ParseHeavyWater loads a heavy water file (format: "Experiment, Labeling" header,
// then one "day, label" line per sample column).
func ParseHeavyWater(r io.Reader) (*HeavyWater, error) {
	hw := &HeavyWater{}
	scanner := bufio.NewScanner(r)

	lineNum := -1
	seenFirst := false
	for scanner.Scan() {
		lineNum++
		raw := strings.TrimRight(scanner.Text(), "\r")
		if !seenFirst {
			raw = strings.TrimPrefix(raw, "\ufeff")
		}
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		parts := strings.SplitN(line, ",", 2)

		// The first line is a header unless it already starts with a timepoint
		if !seenFirst {
			seenFirst = true
			if _, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64); err != nil {
				hw.Header = raw
				continue
			}
		}

		if len(parts) < 2 {
			return nil, &ParseError{Row: lineNum, Column: -1, Field: "heavy water entry", Value: line,
				Err: fmt.Errorf("expected 2 comma-separated fields")}
		}

		hw.Entries = append(hw.Entries, HeavyWaterEntry{
			Day:   strings.TrimSpace(parts[0]),
			Label: strings.TrimSpace(parts[1]),
			line:  raw,
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading heavy water file: %w", err)
	}

	return hw, nil
}

// NewHeavyWater generates a heavy water table from aligned days and labels,
// replacing non-numeric labels with "0".
func NewHeavyWater(days []float64, labels []string) (*HeavyWater, error) {
	if len(days) != len(labels) {
		return nil, &ValidationError{
			Field:   "HeavyWater",
			Message: fmt.Sprintf("%d days for %d labels", len(days), len(labels)),
		}
	}

	hw := &HeavyWater{Header: HeavyWaterHeader}
	for i, day := range days {
		hw.Entries = append(hw.Entries, HeavyWaterEntry{
			Day:   FormatDay(day),
			Label: NumericLabel(labels[i]),
		})
	}
	return hw, nil
}

// Len returns the number of entries.
func (hw *HeavyWater) Len() int {
	return len(hw.Entries)
}

// Without returns a copy with the entries at the given offsets removed. Order is preserved.
func (hw *HeavyWater) Without(offsets []int) *HeavyWater {
	drop := make(map[int]struct{}, len(offsets))
	for _, o := range offsets {
		drop[o] = struct{}{}
	}

	out := &HeavyWater{Header: hw.Header}
	for i, e := range hw.Entries {
		if _, ok := drop[i]; ok {
			continue
		}
		out.Entries = append(out.Entries, e)
	}
	return out
}

// WriteTo writes the heavy water file. Parsed entries keep their original text.
func (hw *HeavyWater) WriteTo(w io.Writer) (int64, error) {
	var total int64
	write := func(s string) error {
		n, err := io.WriteString(w, s+"\n")
		total += int64(n)
		return err
	}

	if hw.Header != "" {
		if err := write(hw.Header); err != nil {
			return total, err
		}
	}
	for _, e := range hw.Entries {
		line := e.line
		if line == "" {
			line = fmt.Sprintf("%s, %s", e.Day, e.Label)
		}
		if err := write(line); err != nil {
			return total, err
		}
	}
	return total, nil
}

// ParseHeavyWaterFile loads a heavy water file from disk.
func ParseHeavyWaterFile(path string) (*HeavyWater, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open heavy water file: %w", err)
	}
	defer f.Close()

	return ParseHeavyWater(f)
}

// WriteFile writes the heavy water table to a new file at path.
func (hw *HeavyWater) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := hw.WriteTo(f); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}
