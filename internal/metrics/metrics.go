// Package metrics records dump and snapshot statistics for Prometheus.
//
// jab runs as a short-lived CLI, so metrics are not served over HTTP. They
// are written in the text exposition format to a file per project, for
// node_exporter's textfile collector to pick up.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Operation labels.
const (
	OpDump    = "dump"
	OpRestore = "restore"
)

// Metrics holds Prometheus metrics for one jab invocation.
type Metrics struct {
	registry *prometheus.Registry

	DumpBytes       *prometheus.GaugeVec
	OpDuration      *prometheus.GaugeVec
	LastCommit      *prometheus.GaugeVec
	LastRestore     *prometheus.GaugeVec
	CommitsTotal    *prometheus.CounterVec
	OpFailuresTotal *prometheus.CounterVec
}

// New creates metrics on a private registry.
//
// Metrics:
//   - jab_dump_bytes{project} - size of the latest dump
//   - jab_operation_duration_seconds{project,op} - duration of the latest dump or restore
//   - jab_last_commit_timestamp_seconds{project} - time of the latest new snapshot
//   - jab_last_restore_timestamp_seconds{project} - time of the latest restore
//   - jab_commits_total{project,result} - commit attempts, result is "created" or "unchanged"
//   - jab_operation_failures_total{project,op} - failed dumps and restores
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		DumpBytes: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "jab_dump_bytes",
				Help: "Size in bytes of the latest dump",
			},
			[]string{"project"},
		),

		OpDuration: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "jab_operation_duration_seconds",
				Help: "Duration of the latest dump or restore in seconds",
			},
			[]string{"project", "op"},
		),

		LastCommit: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "jab_last_commit_timestamp_seconds",
				Help: "Unix time of the latest snapshot that created a commit",
			},
			[]string{"project"},
		),

		LastRestore: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "jab_last_restore_timestamp_seconds",
				Help: "Unix time of the latest restore",
			},
			[]string{"project"},
		),

		CommitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jab_commits_total",
				Help: "Commit attempts by outcome",
			},
			[]string{"project", "result"},
		),

		OpFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jab_operation_failures_total",
				Help: "Failed dump and restore operations",
			},
			[]string{"project", "op"},
		),
	}
}

// RecordDump records a successful dump.
func (m *Metrics) RecordDump(project string, size int, took time.Duration) {
	m.DumpBytes.WithLabelValues(project).Set(float64(size))
	m.OpDuration.WithLabelValues(project, OpDump).Set(took.Seconds())
}

// RecordCommit records a commit attempt. created is false when the dump
// matched HEAD.
func (m *Metrics) RecordCommit(project string, created bool, at time.Time) {
	if !created {
		m.CommitsTotal.WithLabelValues(project, "unchanged").Inc()
		return
	}
	m.CommitsTotal.WithLabelValues(project, "created").Inc()
	m.LastCommit.WithLabelValues(project).Set(float64(at.Unix()))
}

// RecordRestore records a successful restore.
func (m *Metrics) RecordRestore(project string, took time.Duration, at time.Time) {
	m.OpDuration.WithLabelValues(project, OpRestore).Set(took.Seconds())
	m.LastRestore.WithLabelValues(project).Set(float64(at.Unix()))
}

// RecordFailure records a failed dump or restore.
func (m *Metrics) RecordFailure(project, op string) {
	m.OpFailuresTotal.WithLabelValues(project, op).Inc()
}

// Gatherer exposes the underlying registry.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// TextfilePath returns <dir>/jab_<project>.prom.
func TextfilePath(dir, project string) string {
	return filepath.Join(dir, "jab_"+project+".prom")
}

// WriteTextfile writes all metrics to <dir>/jab_<project>.prom. The write
// is atomic.
func (m *Metrics) WriteTextfile(dir, project string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating metrics directory %s: %w", dir, err)
	}
	path := TextfilePath(dir, project)
	if err := prometheus.WriteToTextfile(path, m.Gatherer()); err != nil {
		return fmt.Errorf("writing metrics %s: %w", path, err)
	}
	return nil
}
