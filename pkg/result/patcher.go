package result

import (
	"fmt"
	"sync"

	"github.com/ChrisMcGann/RateKey/pkg/core"
)

// Patcher replaces rows of a master table with peptide rerun rows.
// It is safe for concurrent use.
type Patcher struct {
	mu     sync.Mutex
	table  *Table
	policy DuplicatePolicy
}

// NewPatcher returns a Patcher writing into master.
func NewPatcher(master *Table, policy DuplicatePolicy) *Patcher {
	return &Patcher{table: master, policy: policy}
}

// Apply replaces the master row carrying row's peptide name with row, annotated
// with the number of omitted samples. The row count never changes.
func (p *Patcher) Apply(row core.ResultRow, samplesOmitted int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx, err := p.table.Find(row.PeptideKey(), p.policy)
	if err != nil {
		return err
	}

	row.SamplesOmitted = samplesOmitted
	p.table.Rows[idx] = row
	return nil
}

// ApplyFile reads a rerun result and applies its row for peptide.
func (p *Patcher) ApplyFile(path, peptide string, samplesOmitted int) error {
	rerun, err := ReadFile(path)
	if err != nil {
		return err
	}

	idx, err := rerun.Find(peptide, p.policy)
	if err != nil {
		return fmt.Errorf("rerun result: %w", err)
	}

	if err := p.Apply(rerun.Rows[idx], samplesOmitted); err != nil {
		return fmt.Errorf("master result: %w", err)
	}
	return nil
}

// Table returns the master table.
func (p *Patcher) Table() *Table {
	return p.table
}
