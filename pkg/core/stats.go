// Package core provides m/z statistics used when clustering peptide rows
package core

import "math"

// MeanMZ returns the mean mass/charge ratio of the peptides.
func MeanMZ(peptides []Peptide) float64 {
	if len(peptides) == 0 {
		return 0
	}
	sum := 0.0
	for _, p := range peptides {
		sum += p.MassChargeRatio
	}
	return sum / float64(len(peptides))
}

// StdDevMZ returns the sample standard deviation (n-1) of the mass/charge ratios.
// It returns +Inf for fewer than two peptides.
func StdDevMZ(peptides []Peptide) float64 {
	if len(peptides) <= 1 {
		return math.Inf(1)
	}

	mean := MeanMZ(peptides)
	variance := 0.0
	for _, p := range peptides {
		d := p.MassChargeRatio - mean
		variance += d * d
	}
	variance /= float64(len(peptides) - 1)

	return math.Sqrt(variance)
}

// RoundFloat rounds a float to n decimal places
func RoundFloat(val float64, precision int) float64 {
	ratio := math.Pow(10, float64(precision))
	return math.Round(val*ratio) / ratio
}
