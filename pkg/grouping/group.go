// Package grouping partitions peptides into datasets that share one set of
// missing sample columns, so each dataset can be computed in a single engine run.
package grouping

import (
	"math"
	"sort"
	"strings"

	"github.com/ChrisMcGann/RateKey/pkg/core"
)

// DefaultToleranceMultiplier scales the m/z clustering threshold.
const DefaultToleranceMultiplier = 2.0

// Cluster is a run of same-name peptides with close m/z values.
type Cluster struct {
	Name     string
	Peptides []core.Peptide
	Missing  []bool // Missing[i] is set when any member lacks sample column i
}

// Bucket is a set of clusters sharing one missing-column bitmap. No two clusters
// in a bucket carry the same peptide name.
type Bucket struct {
	Missing  []bool
	Ordinal  int // Position of each member cluster among same-name clusters with this bitmap
	Peptides []core.Peptide
}

// Columns returns the missing sample-column offsets of the bucket.
func (b Bucket) Columns() []int {
	return columns(b.Missing)
}

// Names returns the distinct peptide names of the bucket in order.
func (b Bucket) Names() []string {
	seen := make(map[string]struct{})
	var names []string
	for _, p := range b.Peptides {
		if _, ok := seen[p.Name]; ok {
			continue
		}
		seen[p.Name] = struct{}{}
		names = append(names, p.Name)
	}
	return names
}

// Group clusters peptides and partitions the clusters into buckets.
func Group(peptides []core.Peptide, multiplier float64) []Bucket {
	return Partition(Clusters(peptides, multiplier))
}

// Clusters splits peptides by name in first-appearance order, then splits each
// name by m/z: a peptide joins the current cluster when its m/z is within
// 2 x stddev(cluster) x multiplier of the previous member.
func Clusters(peptides []core.Peptide, multiplier float64) []Cluster {
	var order []string
	byName := make(map[string][]core.Peptide)
	for _, p := range peptides {
		if _, ok := byName[p.Name]; !ok {
			order = append(order, p.Name)
		}
		byName[p.Name] = append(byName[p.Name], p)
	}

	var clusters []Cluster
	for _, name := range order {
		members := byName[name]
		sort.SliceStable(members, func(i, j int) bool {
			return members[i].MassChargeRatio < members[j].MassChargeRatio
		})

		current := []core.Peptide{members[0]}
		for _, p := range members[1:] {
			threshold := 2 * core.StdDevMZ(current) * multiplier
			last := current[len(current)-1].MassChargeRatio
			if math.Abs(p.MassChargeRatio-last) < threshold {
				current = append(current, p)
				continue
			}
			clusters = append(clusters, newCluster(name, current))
			current = []core.Peptide{p}
		}
		clusters = append(clusters, newCluster(name, current))
	}

	return clusters
}

func newCluster(name string, peptides []core.Peptide) Cluster {
	n := 0
	for _, p := range peptides {
		if len(p.Intensities) > n {
			n = len(p.Intensities)
		}
	}

	missing := make([]bool, n)
	for _, p := range peptides {
		for i, v := range p.Intensities {
			if v == nil {
				missing[i] = true
			}
		}
	}
	return Cluster{Name: name, Peptides: peptides, Missing: missing}
}

// Partition buckets clusters by (missing bitmap, ordinal), where the ordinal of
// a cluster counts earlier clusters with the same name and bitmap. Buckets are
// returned in order of first appearance.
func Partition(clusters []Cluster) []Bucket {
	type bucketKey struct {
		bitmap  string
		ordinal int
	}

	slots := make(map[string]int) // name + bitmap -> clusters seen
	index := make(map[bucketKey]int)
	var buckets []Bucket

	for _, c := range clusters {
		bitmap := bitmapKey(c.Missing)
		slot := c.Name + "\x00" + bitmap
		ordinal := slots[slot]
		slots[slot] = ordinal + 1

		key := bucketKey{bitmap: bitmap, ordinal: ordinal}
		i, ok := index[key]
		if !ok {
			i = len(buckets)
			index[key] = i
			buckets = append(buckets, Bucket{
				Missing: append([]bool(nil), c.Missing...),
				Ordinal: ordinal,
			})
		}
		buckets[i].Peptides = append(buckets[i].Peptides, c.Peptides...)
	}

	return buckets
}

func bitmapKey(missing []bool) string {
	var b strings.Builder
	b.Grow(len(missing))
	for _, m := range missing {
		if m {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

func columns(missing []bool) []int {
	var cols []int
	for i, m := range missing {
		if m {
			cols = append(cols, i)
		}
	}
	return cols
}
