// Package metrics records run outcomes for the node_exporter textfile collector.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "panos_ike"

// Recorder holds the run metrics on a private registry.
// A nil *Recorder discards everything.
type Recorder struct {
	registry *prometheus.Registry

	reconciles *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	commits    *prometheus.CounterVec
	commitTime prometheus.Histogram
	lastRun    prometheus.Gauge
}

// NewRecorder creates a Recorder with all collectors registered
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		reconciles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "profile",
				Name:      "reconciles_total",
				Help:      "IKE crypto profile reconciliations by desired state, action and result.",
			},
			[]string{"state", "action", "result"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "profile",
				Name:      "reconcile_duration_seconds",
				Help:      "Time spent reconciling one profile, excluding commit.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"state", "action"},
		),
		commits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "commit",
				Name:      "total",
				Help:      "Commits issued by result.",
			},
			[]string{"success"},
		),
		commitTime: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "commit",
				Name:      "duration_seconds",
				Help:      "Time from commit request to job completion.",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
		),
		lastRun: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix time of the last completed run.",
			},
		),
	}

	r.registry.MustRegister(r.reconciles, r.duration, r.commits, r.commitTime, r.lastRun)
	return r
}

// ObserveReconcile records one profile reconciliation
func (r *Recorder) ObserveReconcile(state, action, result string, d time.Duration) {
	if r == nil {
		return
	}
	r.reconciles.WithLabelValues(state, action, result).Inc()
	r.duration.WithLabelValues(state, action).Observe(d.Seconds())
}

// ObserveCommit records one commit attempt
func (r *Recorder) ObserveCommit(success bool, d time.Duration) {
	if r == nil {
		return
	}
	r.commits.WithLabelValues(strconv.FormatBool(success)).Inc()
	r.commitTime.Observe(d.Seconds())
}

// Registry exposes the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// WriteTextfile stamps the run time and writes all metrics in text format to path
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	r.lastRun.SetToCurrentTime()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
