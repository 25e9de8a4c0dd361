// Package metrics holds the Prometheus collectors of the storage engine.
// Collectors are registered on a private registry so tests and multiple
// stores in one process do not collide on the global default registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the collectors
type Metrics struct {
	registry *prometheus.Registry

	DatabaseWrites     *prometheus.CounterVec
	MigrationsApplied  *prometheus.CounterVec
	DocumentWrites     *prometheus.CounterVec
	DocumentDeletes    *prometheus.CounterVec
	CorruptSkipped     *prometheus.CounterVec
	ScanDuration       *prometheus.HistogramVec
	NumbersIssued      *prometheus.CounterVec
	BackupSnapshots    *prometheus.CounterVec
	ReportComputations prometheus.Counter
}

// New creates and registers all collectors
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		DatabaseWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crm",
			Name:      "database_writes_total",
			Help:      "Versioned database writes by result.",
		}, []string{"result"}),
		MigrationsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crm",
			Name:      "migrations_applied_total",
			Help:      "Migration steps applied, by target kind (database or document).",
		}, []string{"kind"}),
		DocumentWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crm",
			Name:      "document_writes_total",
			Help:      "Document file writes by type and result.",
		}, []string{"type", "result"}),
		DocumentDeletes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crm",
			Name:      "document_deletes_total",
			Help:      "Document file deletions by type.",
		}, []string{"type"}),
		CorruptSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crm",
			Name:      "corrupt_documents_skipped_total",
			Help:      "Document files skipped during scans because they could not be read.",
		}, []string{"type"}),
		ScanDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "crm",
			Name:      "document_scan_duration_seconds",
			Help:      "Duration of corpus scans.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"operation"}),
		NumbersIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crm",
			Name:      "document_numbers_issued_total",
			Help:      "Document numbers issued by type.",
		}, []string{"type"}),
		BackupSnapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crm",
			Name:      "backup_snapshots_total",
			Help:      "Backup snapshots by result.",
		}, []string{"result"}),
		ReportComputations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "crm",
			Name:      "report_computations_total",
			Help:      "Financial overviews computed.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.DatabaseWrites,
		m.MigrationsApplied,
		m.DocumentWrites,
		m.DocumentDeletes,
		m.CorruptSkipped,
		m.ScanDuration,
		m.NumbersIssued,
		m.BackupSnapshots,
		m.ReportComputations,
	)
	return m
}

// Handler returns the HTTP handler exposing the registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveScan records the duration of a scan started at start
func (m *Metrics) ObserveScan(operation string, start time.Time) {
	m.ScanDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// Result returns the label value for an error
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
