// Package metrics records pipeline run metrics with Prometheus collectors on a
// private registry, exposed over HTTP by the server.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder holds the run collectors. A nil *Recorder records nothing.
type Recorder struct {
	reg *prometheus.Registry

	runs        *prometheus.CounterVec   // cohort_pipeline_runs_total
	rowsRead    *prometheus.CounterVec   // cohort_rows_read_total
	rowsEmitted *prometheus.CounterVec   // cohort_rows_emitted_total
	groups      *prometheus.GaugeVec     // cohort_pipeline_groups
	duration    *prometheus.HistogramVec // cohort_pipeline_duration_seconds
}

// NewRecorder registers the collectors on a fresh registry.
func NewRecorder() (*Recorder, error) {
	reg := prometheus.NewRegistry()

	r := &Recorder{
		reg: reg,
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cohort_pipeline_runs_total",
				Help: "Pipeline runs partitioned by pipeline and status.",
			},
			[]string{"pipeline", "status"},
		),
		rowsRead: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cohort_rows_read_total",
				Help: "Rows read from pipeline sources.",
			},
			[]string{"pipeline"},
		),
		rowsEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cohort_rows_emitted_total",
				Help: "Aggregated rows accepted by pipeline sinks.",
			},
			[]string{"pipeline"},
		),
		groups: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cohort_pipeline_groups",
				Help: "Groups produced by the latest run of each pipeline.",
			},
			[]string{"pipeline"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cohort_pipeline_duration_seconds",
				Help:    "Pipeline run duration in seconds.",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
			},
			[]string{"pipeline"},
		),
	}

	for name, c := range map[string]prometheus.Collector{
		"runs":         r.runs,
		"rows read":    r.rowsRead,
		"rows emitted": r.rowsEmitted,
		"groups":       r.groups,
		"duration":     r.duration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("metrics: register %s collector: %w", name, err)
		}
	}
	reg.MustRegister(collectors.NewGoCollector())
	return r, nil
}

// Run is the outcome of one pipeline run.
type Run struct {
	Pipeline    string
	Status      string
	RowsRead    int64
	Groups      int64
	RowsEmitted int64
	Duration    time.Duration
}

// ObserveRun records one run.
func (r *Recorder) ObserveRun(run Run) {
	if r == nil {
		return
	}
	r.runs.WithLabelValues(run.Pipeline, run.Status).Inc()
	r.rowsRead.WithLabelValues(run.Pipeline).Add(float64(run.RowsRead))
	r.rowsEmitted.WithLabelValues(run.Pipeline).Add(float64(run.RowsEmitted))
	r.groups.WithLabelValues(run.Pipeline).Set(float64(run.Groups))
	r.duration.WithLabelValues(run.Pipeline).Observe(run.Duration.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.reg }
