// Package metrics exposes sync, webhook and remote transport counters in
// the Prometheus exposition format.
package metrics

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/erp/shopsync/internal/domain/integration"
)

const namespace = "shopsync"

// Config holds configuration for the collector
type Config struct {
	// Path is the URL path the router mounts Handler on
	Path string
	// JobBuckets are the histogram buckets of job durations in seconds
	JobBuckets []float64
	// RuntimeCollectors adds Go runtime and process metrics
	RuntimeCollectors bool
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		Path:              "/metrics",
		JobBuckets:        []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		RuntimeCollectors: true,
	}
}

// SyncMetrics owns a private registry so tests and multiple servers in one
// process never collide on the default registerer.
//
// Thread Safety: Safe for concurrent use by multiple goroutines.
type SyncMetrics struct {
	config   Config
	registry *prometheus.Registry

	jobsTotal       *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
	recordsTotal    *prometheus.CounterVec
	webhooksTotal   *prometheus.CounterVec
	remoteRequests  *prometheus.CounterVec
	remoteDuration  *prometheus.HistogramVec
	remoteRetries   *prometheus.CounterVec
	queueDepth      prometheus.Gauge
	lastJobFinished *prometheus.GaugeVec
}

// New creates the collector and registers every metric
func New(config Config) *SyncMetrics {
	if config.Path == "" {
		config.Path = "/metrics"
	}
	if len(config.JobBuckets) == 0 {
		config.JobBuckets = DefaultConfig().JobBuckets
	}

	m := &SyncMetrics{
		config:   config,
		registry: prometheus.NewRegistry(),
	}

	m.jobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_total",
		Help:      "Finished sync jobs by entity, direction, kind and final status.",
	}, []string{"entity", "direction", "kind", "status"})

	m.jobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "job_duration_seconds",
		Help:      "Wall time of finished sync jobs.",
		Buckets:   config.JobBuckets,
	}, []string{"entity", "direction"})

	m.recordsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "records_total",
		Help:      "Per-record outcomes written to the sync log.",
	}, []string{"entity", "direction", "action", "status"})

	m.webhooksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhooks_total",
		Help:      "Inbound webhook events by topic and resulting status.",
	}, []string{"topic", "status"})

	m.remoteRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "remote",
		Name:      "requests_total",
		Help:      "HTTP requests sent to the remote store by method and status code.",
	}, []string{"method", "code"})

	m.remoteDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "remote",
		Name:      "request_duration_seconds",
		Help:      "Latency of remote store requests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})

	m.remoteRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "remote",
		Name:      "retries_total",
		Help:      "Remote requests retried by reason.",
	}, []string{"reason"})

	m.queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "queue_depth",
		Help:      "Sync requests waiting for a worker.",
	})

	m.lastJobFinished = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_job_finished_timestamp_seconds",
		Help:      "Unix time the last job of an instance and entity finished.",
	}, []string{"instance_id", "entity", "direction"})

	m.registry.MustRegister(
		m.jobsTotal, m.jobDuration, m.recordsTotal, m.webhooksTotal,
		m.remoteRequests, m.remoteDuration, m.remoteRetries,
		m.queueDepth, m.lastJobFinished,
	)
	if config.RuntimeCollectors {
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return m
}

// RegisterDB exports the connection pool statistics of db. name becomes
// the db_name label.
func (m *SyncMetrics) RegisterDB(db *sql.DB, name string) error {
	return m.registry.Register(collectors.NewDBStatsCollector(db, name))
}

// Path returns the configured URL path
func (m *SyncMetrics) Path() string {
	return m.config.Path
}

// Registry returns the underlying registry
func (m *SyncMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *SyncMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveJob records a finished job
func (m *SyncMetrics) ObserveJob(job *integration.SyncJob) {
	m.jobsTotal.WithLabelValues(string(job.Entity), string(job.Direction), string(job.Kind), string(job.Status)).Inc()
	m.jobDuration.WithLabelValues(string(job.Entity), string(job.Direction)).Observe(job.Duration().Seconds())
	finished := time.Now()
	if job.FinishedAt != nil {
		finished = *job.FinishedAt
	}
	m.lastJobFinished.WithLabelValues(job.InstanceID.String(), string(job.Entity), string(job.Direction)).
		Set(float64(finished.Unix()))
}

// ObserveLogEntry records one per-record outcome
func (m *SyncMetrics) ObserveLogEntry(entry *integration.SyncLogEntry) {
	m.recordsTotal.WithLabelValues(string(entry.Entity), string(entry.Direction), string(entry.Action), string(entry.Status)).Inc()
}

// ObserveWebhook records the status an inbound event settled in
func (m *SyncMetrics) ObserveWebhook(event *integration.WebhookEvent) {
	topic := string(event.Topic)
	if !event.Topic.IsValid() {
		// unknown topics would otherwise grow the label set without bound
		topic = "unknown"
	}
	m.webhooksTotal.WithLabelValues(topic, string(event.Status)).Inc()
}

// ObserveRemoteRequest implements shopify.Observer
func (m *SyncMetrics) ObserveRemoteRequest(method string, statusCode int, duration time.Duration) {
	code := "error"
	if statusCode > 0 {
		code = strconv.Itoa(statusCode)
	}
	m.remoteRequests.WithLabelValues(method, code).Inc()
	m.remoteDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// ObserveRemoteRetry implements shopify.Observer
func (m *SyncMetrics) ObserveRemoteRetry(reason string) {
	m.remoteRetries.WithLabelValues(reason).Inc()
}

// SetQueueDepth reports how many requests wait in the scheduler queue
func (m *SyncMetrics) SetQueueDepth(n int) {
	m.queueDepth.Set(float64(n))
}
