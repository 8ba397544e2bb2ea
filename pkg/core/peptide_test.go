package core

import (
	"math"
	"reflect"
	"testing"
)

func f(v float64) *float64 { return &v }

func TestDatasetValidation(t *testing.T) {
	tests := []struct {
		name    string
		data    *Dataset
		wantErr bool
	}{
		{
			name: "aligned dataset",
			data: &Dataset{
				Days:   []float64{0, 3},
				Mice:   []string{"M1", "M2"},
				Labels: []string{"0", "0.05"},
				Peptides: []Peptide{
					{Name: "PEPA", Intensities: []*float64{f(10), nil}},
				},
			},
			wantErr: false,
		},
		{
			name: "short mice",
			data: &Dataset{
				Days:   []float64{0, 3},
				Mice:   []string{"M1"},
				Labels: []string{"0", "0.05"},
			},
			wantErr: true,
		},
		{
			name: "short labels",
			data: &Dataset{
				Days:   []float64{0, 3},
				Mice:   []string{"M1", "M2"},
				Labels: []string{"0"},
			},
			wantErr: true,
		},
		{
			name: "peptide intensities misaligned",
			data: &Dataset{
				Days:   []float64{0, 3},
				Mice:   []string{"M1", "M2"},
				Labels: []string{"0", "0.05"},
				Peptides: []Peptide{
					{Name: "PEPA", Intensities: []*float64{f(10)}},
				},
			},
			wantErr: true,
		},
		{
			name: "NaN day",
			data: &Dataset{
				Days:   []float64{math.NaN()},
				Mice:   []string{"M1"},
				Labels: []string{"0"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.data.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMissingColumns(t *testing.T) {
	p := &Peptide{Name: "PEPA", Intensities: []*float64{f(1), nil, f(0), nil}}

	got := p.MissingColumns()
	want := []int{1, 3}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("MissingColumns() = %v, want %v", got, want)
	}
	if !p.HasMissing() {
		t.Error("Expected HasMissing() to be true")
	}

	full := &Peptide{Name: "PEPB", Intensities: []*float64{f(1), f(0)}}
	if full.HasMissing() {
		t.Error("Expected zero intensity not to count as missing")
	}
	if cols := full.MissingColumns(); len(cols) != 0 {
		t.Errorf("Expected no missing columns, got %v", cols)
	}
}

func TestNumericLabel(t *testing.T) {
	tests := []struct {
		label string
		want  string
	}{
		{"0.05", "0.05"},
		{" 2 ", "2"},
		{"1e-2", "1e-2"},
		{"unlabeled", "0"},
		{"", "0"},
	}

	for _, tt := range tests {
		if got := NumericLabel(tt.label); got != tt.want {
			t.Errorf("NumericLabel(%q) = %q, want %q", tt.label, got, tt.want)
		}
	}
}

func TestIntensityText(t *testing.T) {
	p := &Peptide{Intensities: []*float64{f(1200), nil, f(0.5)}}

	want := []string{"1200", AbsentMarker, "0.5"}
	for i := range want {
		if got := p.IntensityText(i); got != want[i] {
			t.Errorf("IntensityText(%d) = %q, want %q", i, got, want[i])
		}
	}
}

func TestMissingMapNames(t *testing.T) {
	m := MissingMap{"PEPC": {0}, "PEPA": {2}, "PEPB": {1, 3}}

	got := m.Names()
	want := []string{"PEPA", "PEPB", "PEPC"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
}

func TestOmissionNote(t *testing.T) {
	tests := []struct {
		n    int
		want string
	}{
		{0, ""},
		{1, "1 sample omitted"},
		{2, "2 samples omitted"},
		{12, "12 samples omitted"},
	}

	for _, tt := range tests {
		if got := OmissionNote(tt.n); got != tt.want {
			t.Errorf("OmissionNote(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestResultRowRecord(t *testing.T) {
	row := ResultRowFromRecord([]string{"P1", " PEPA ", "3", "2", "0.12"})
	row.SamplesOmitted = 1

	rec := row.Record()
	if len(rec) != len(ResultColumns)+1 {
		t.Fatalf("Expected %d fields, got %d", len(ResultColumns)+1, len(rec))
	}
	if rec[1] != " PEPA " {
		t.Errorf("Expected peptide text to be kept verbatim, got %q", rec[1])
	}
	if row.PeptideKey() != "PEPA" {
		t.Errorf("Expected trimmed key PEPA, got %q", row.PeptideKey())
	}
	if rec[12] != "1 sample omitted" {
		t.Errorf("Expected annotation, got %q", rec[12])
	}
	if rec[11] != "" {
		t.Errorf("Expected missing trailing field to be empty, got %q", rec[11])
	}
}
