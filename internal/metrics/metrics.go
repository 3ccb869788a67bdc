// Package metrics provides Prometheus metrics collection for the
// ingestion engine's three processes (worker pool, CDC manager,
// pruner).
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every collector the engine registers.
type Metrics struct {
	JobsProcessedTotal *prometheus.CounterVec
	JobDuration        *prometheus.HistogramVec
	JobsInFlight       prometheus.Gauge

	ErrorsTotal *prometheus.CounterVec

	RateLimitWaitSeconds *prometheus.HistogramVec
	RateLimitedTotal     *prometheus.CounterVec

	ArtifactsUpsertedTotal *prometheus.CounterVec
	ArtifactsPrunedTotal   *prometheus.CounterVec

	CDCEventsTotal  *prometheus.CounterVec
	CDCListenerInfo *prometheus.GaugeVec

	DatabaseQueriesTotal  *prometheus.CounterVec
	DatabaseQueryDuration *prometheus.HistogramVec

	ServiceUptime prometheus.Gauge
	ServiceInfo   *prometheus.GaugeVec
}

// New creates a Metrics instance registered against the default
// Prometheus registerer.
func New(serviceName string) *Metrics {
	return NewWithRegistry(serviceName, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a Metrics instance against a custom registerer,
// used by tests that don't want to pollute prometheus.DefaultRegisterer.
func NewWithRegistry(serviceName string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		JobsProcessedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "ingest_jobs_processed_total", Help: "Total number of ingest jobs processed"},
			[]string{"service", "kind", "source", "status"},
		),
		JobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ingest_job_duration_seconds",
				Help:    "Ingest job processing duration in seconds",
				Buckets: []float64{.1, .5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"service", "kind", "source"},
		),
		JobsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "ingest_jobs_in_flight", Help: "Current number of jobs being processed"},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "errors_total", Help: "Total number of errors"},
			[]string{"service", "type", "operation"},
		),
		RateLimitWaitSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rate_limit_wait_seconds",
				Help:    "Time spent waiting on a token bucket before an outbound connector call",
				Buckets: []float64{.01, .05, .1, .5, 1, 5, 10, 30},
			},
			[]string{"service", "source", "endpoint_class"},
		),
		RateLimitedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "rate_limited_total", Help: "Total number of connector calls that hit a vendor rate limit"},
			[]string{"service", "source", "endpoint_class"},
		),
		ArtifactsUpsertedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "artifacts_upserted_total", Help: "Total number of ingest artifacts upserted"},
			[]string{"service", "tenant_id", "entity"},
		),
		ArtifactsPrunedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "artifacts_pruned_total", Help: "Total number of ingest artifacts deleted by the pruner"},
			[]string{"service", "tenant_id", "entity", "reason"},
		),
		CDCEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "cdc_events_total", Help: "Total number of CDC events forwarded to the ingest queue"},
			[]string{"service", "source", "operation"},
		),
		CDCListenerInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "cdc_listener_state", Help: "CDC listener state per tenant (1 = current state)"},
			[]string{"service", "tenant_id", "source", "state"},
		),
		DatabaseQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "database_queries_total", Help: "Total number of database queries"},
			[]string{"service", "operation", "status"},
		),
		DatabaseQueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "database_query_duration_seconds",
				Help:    "Database query duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"service", "operation"},
		),
		ServiceUptime: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "service_uptime_seconds", Help: "Service uptime in seconds"},
		),
		ServiceInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "service_info", Help: "Service information"},
			[]string{"service", "version"},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.JobsProcessedTotal,
			m.JobDuration,
			m.JobsInFlight,
			m.ErrorsTotal,
			m.RateLimitWaitSeconds,
			m.RateLimitedTotal,
			m.ArtifactsUpsertedTotal,
			m.ArtifactsPrunedTotal,
			m.CDCEventsTotal,
			m.CDCListenerInfo,
			m.DatabaseQueriesTotal,
			m.DatabaseQueryDuration,
			m.ServiceUptime,
			m.ServiceInfo,
		)
	}

	m.ServiceInfo.WithLabelValues(serviceName, "1.0.0").Set(1)
	return m
}

func (m *Metrics) RecordJob(service, kind, source, status string, duration time.Duration) {
	m.JobsProcessedTotal.WithLabelValues(service, kind, source, status).Inc()
	m.JobDuration.WithLabelValues(service, kind, source).Observe(duration.Seconds())
}

func (m *Metrics) RecordError(service, errorType, operation string) {
	m.ErrorsTotal.WithLabelValues(service, errorType, operation).Inc()
}

func (m *Metrics) RecordRateLimitWait(service, source, endpointClass string, wait time.Duration) {
	m.RateLimitWaitSeconds.WithLabelValues(service, source, endpointClass).Observe(wait.Seconds())
}

func (m *Metrics) RecordRateLimited(service, source, endpointClass string) {
	m.RateLimitedTotal.WithLabelValues(service, source, endpointClass).Inc()
}

func (m *Metrics) RecordArtifactUpsert(service, tenantID, entity string) {
	m.ArtifactsUpsertedTotal.WithLabelValues(service, tenantID, entity).Inc()
}

func (m *Metrics) RecordArtifactPruned(service, tenantID, entity, reason string) {
	m.ArtifactsPrunedTotal.WithLabelValues(service, tenantID, entity, reason).Inc()
}

func (m *Metrics) RecordCDCEvent(service, source, operation string) {
	m.CDCEventsTotal.WithLabelValues(service, source, operation).Inc()
}

// SetCDCListenerState records the current per-tenant CDC listener
// state, clearing the previous state's gauge so only one state is ever
// set to 1 for a given (tenant, source) at a time.
func (m *Metrics) SetCDCListenerState(service, tenantID, source string, previousState, newState string) {
	if previousState != "" {
		m.CDCListenerInfo.WithLabelValues(service, tenantID, source, previousState).Set(0)
	}
	m.CDCListenerInfo.WithLabelValues(service, tenantID, source, newState).Set(1)
}

func (m *Metrics) RecordDatabaseQuery(service, operation, status string, duration time.Duration) {
	m.DatabaseQueriesTotal.WithLabelValues(service, operation, status).Inc()
	m.DatabaseQueryDuration.WithLabelValues(service, operation).Observe(duration.Seconds())
}

func (m *Metrics) SetUptime(seconds float64) {
	m.ServiceUptime.Set(seconds)
}
