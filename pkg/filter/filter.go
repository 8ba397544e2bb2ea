// Package filter provides missing-value detection and sample-column filtering
package filter

import (
	"fmt"
	"sort"

	"github.com/ChrisMcGann/RateKey/pkg/core"
)

// Detect returns the absent sample-column offsets of every peptide that has at
// least one. Rows sharing a name contribute the union of their offsets.
func Detect(peptides []core.Peptide) core.MissingMap {
	missing := make(core.MissingMap)

	for i := range peptides {
		cols := peptides[i].MissingColumns()
		if len(cols) == 0 {
			continue
		}
		missing[peptides[i].Name] = union(missing[peptides[i].Name], cols)
	}

	return missing
}

// union merges two ascending offset lists into one ascending list without duplicates
func union(a, b []int) []int {
	if len(a) == 0 {
		return append([]int(nil), b...)
	}

	seen := make(map[int]struct{}, len(a)+len(b))
	out := make([]int, 0, len(a)+len(b))
	for _, list := range [][]int{a, b} {
		for _, c := range list {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	sort.Ints(out)
	return out
}

// ValidateColumns checks that every offset addresses one of n sample columns
func ValidateColumns(columns []int, n int) error {
	for _, c := range columns {
		if c < 0 || c >= n {
			return &core.ValidationError{
				Field:   "Columns",
				Message: fmt.Sprintf("offset %d outside %d sample columns", c, n),
			}
		}
	}
	return nil
}

// DropColumns returns a copy of fields without the sample columns at the given
// offsets, where sample column c sits at fields[offset+c]. Order is preserved.
func DropColumns(fields []string, offset int, columns []int) []string {
	drop := make(map[int]struct{}, len(columns))
	for _, c := range columns {
		drop[offset+c] = struct{}{}
	}

	filtered := make([]string, 0, len(fields))
	for i, f := range fields {
		if _, ok := drop[i]; ok {
			continue
		}
		filtered = append(filtered, f)
	}
	return filtered
}

// ReduceDataset returns a copy of ds with the given sample columns removed from
// the metadata sequences and every peptide's intensities.
func ReduceDataset(ds *core.Dataset, columns []int) *core.Dataset {
	drop := make(map[int]struct{}, len(columns))
	for _, c := range columns {
		drop[c] = struct{}{}
	}
	keep := func(i int) bool {
		_, ok := drop[i]
		return !ok
	}

	reduced := &core.Dataset{}
	for i := range ds.Days {
		if !keep(i) {
			continue
		}
		reduced.Days = append(reduced.Days, ds.Days[i])
		reduced.Mice = append(reduced.Mice, ds.Mice[i])
		reduced.Labels = append(reduced.Labels, ds.Labels[i])
	}

	for _, p := range ds.Peptides {
		rp := p
		rp.Intensities = nil
		for i, v := range p.Intensities {
			if keep(i) {
				rp.Intensities = append(rp.Intensities, v)
			}
		}
		reduced.Peptides = append(reduced.Peptides, rp)
	}

	return reduced
}
