// Package metrics records pipeline counters and exports them in the Prometheus
// text format for the node exporter textfile collector.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Engine run kinds.
const (
	KindMaster = "master"
	KindRerun  = "rerun"
	KindBucket = "bucket"
)

// Recorder holds the ratekey collectors. A nil *Recorder discards everything.
type Recorder struct {
	registry       *prometheus.Registry
	files          *prometheus.CounterVec
	engineRuns     *prometheus.CounterVec
	engineDuration *prometheus.HistogramVec
	patched        prometheus.Counter
	omitted        prometheus.Counter
}

// New creates a recorder with its own registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ratekey",
			Name:      "files_total",
			Help:      "Input files processed, by outcome.",
		}, []string{"status"}),
		engineRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ratekey",
			Name:      "engine_runs_total",
			Help:      "Engine invocations, by kind and outcome.",
		}, []string{"kind", "status"}),
		engineDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ratekey",
			Name:      "engine_run_seconds",
			Help:      "Engine invocation wall time.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"kind"}),
		patched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ratekey",
			Name:      "peptides_patched_total",
			Help:      "Master result rows replaced by a peptide rerun.",
		}),
		omitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ratekey",
			Name:      "samples_omitted_total",
			Help:      "Sample columns left out of peptide reruns.",
		}),
	}

	r.registry.MustRegister(r.files, r.engineRuns, r.engineDuration, r.patched, r.omitted)
	return r
}

// EngineRun records one engine invocation.
func (r *Recorder) EngineRun(kind string, elapsed time.Duration, err error) {
	if r == nil {
		return
	}
	r.engineRuns.WithLabelValues(kind, status(err)).Inc()
	r.engineDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// PeptidePatched records one patched master row.
func (r *Recorder) PeptidePatched(samplesOmitted int) {
	if r == nil {
		return
	}
	r.patched.Inc()
	r.omitted.Add(float64(samplesOmitted))
}

// FileProcessed records the outcome of one input file.
func (r *Recorder) FileProcessed(err error) {
	if r == nil {
		return
	}
	r.files.WithLabelValues(status(err)).Inc()
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// WriteTextfile atomically writes the current values to path.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
