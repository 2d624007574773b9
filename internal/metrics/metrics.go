// Package metrics exposes Prometheus collectors for snapshot runs.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type collectors struct {
	once sync.Once

	runs            *prometheus.CounterVec
	recordsUpserted *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	commitDuration  prometheus.Histogram
}

var m collectors

func (c *collectors) init() {
	c.once.Do(func() {
		buckets := []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}
		c.runs = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "symtab_snapshot_runs_total",
			Help: "Pipeline runs by final status",
		}, []string{"status"})
		c.recordsUpserted = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "symtab_snapshot_records_upserted_total",
			Help: "Records written by commit, per entity kind",
		}, []string{"kind"})
		c.stageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "symtab_snapshot_stage_duration_seconds",
			Help:    "Duration of each pipeline stage",
			Buckets: buckets,
		}, []string{"stage"})
		c.commitDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "symtab_snapshot_commit_duration_seconds",
			Help:    "Duration of one coordinator commit",
			Buckets: buckets,
		})
		prometheus.MustRegister(c.runs, c.recordsUpserted, c.stageDuration, c.commitDuration)
	})
}

// Run statuses.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// RecordRun counts a finished pipeline run.
func RecordRun(status string) { m.init(); m.runs.WithLabelValues(status).Inc() }

// RecordUpserted counts records committed for one kind.
func RecordUpserted(kind string, n int) {
	m.init()
	m.recordsUpserted.WithLabelValues(kind).Add(float64(n))
}

// ObserveStage records how long a pipeline stage took.
func ObserveStage(stage string, d time.Duration) {
	m.init()
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveCommit records how long a commit took.
func ObserveCommit(d time.Duration) { m.init(); m.commitDuration.Observe(d.Seconds()) }

// Register makes sure the collectors exist on the default registry, so that
// /metrics lists them before the first run.
func Register() { m.init() }
