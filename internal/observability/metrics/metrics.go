// Package metrics exposes prometheus instrumentation for the billing pipeline.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics captures billing lifecycle health signals.
type Metrics struct {
	webhookEvents   *prometheus.CounterVec
	webhookRejected *prometheus.CounterVec
	lookupMisses    *prometheus.CounterVec
	dunningActions  *prometheus.CounterVec
	notifications   *prometheus.CounterVec
	emailFailures   prometheus.Counter
	jobRuns         *prometheus.CounterVec
	jobErrors       *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

var (
	metricsOnce sync.Once
	metrics     *Metrics
)

// Default returns the singleton metrics registry.
func Default() *Metrics {
	metricsOnce.Do(func() {
		metrics = newMetrics(prometheus.DefaultRegisterer)
	})
	return metrics
}

// ResetForTest replaces the singleton with one backed by a throwaway
// registry, so repeated test setups never collide with the default
// registerer.
func ResetForTest() {
	metricsOnce = sync.Once{}
	metricsOnce.Do(func() {
		metrics = newMetrics(prometheus.NewRegistry())
	})
}

func newMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &Metrics{
		webhookEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "adpilot_webhook_events_total",
			Help: "Webhook events routed, by provider and event type.",
		}, []string{"provider", "event_type"}),
		webhookRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "adpilot_webhook_rejected_total",
			Help: "Webhook deliveries rejected before routing, by reason.",
		}, []string{"provider", "reason"}),
		lookupMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "adpilot_subscription_lookup_misses_total",
			Help: "Webhook events referencing no locally known subscription.",
		}, []string{"event_type"}),
		dunningActions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "adpilot_dunning_actions_total",
			Help: "Dunning sweep decisions, by action.",
		}, []string{"action"}),
		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "adpilot_notifications_total",
			Help: "Notifications dispatched, by type.",
		}, []string{"type"}),
		emailFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "adpilot_email_failures_total",
			Help: "Transactional email sends that failed (best-effort channel).",
		}),
		jobRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "adpilot_scheduler_job_runs_total",
			Help: "Scheduler job executions, by job.",
		}, []string{"job"}),
		jobErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "adpilot_scheduler_job_errors_total",
			Help: "Scheduler job executions that returned an error, by job.",
		}, []string{"job"}),
		jobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "adpilot_scheduler_job_duration_seconds",
			Help:    "Scheduler job wall time, by job.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "adpilot_http_requests_total",
			Help: "HTTP requests served, by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "adpilot_http_request_duration_seconds",
			Help:    "HTTP request latency, by method and route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func (m *Metrics) RecordHTTPRequest(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) RecordWebhookEvent(provider, eventType string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(provider, eventType).Inc()
}

func (m *Metrics) RecordWebhookRejected(provider, reason string) {
	if m == nil {
		return
	}
	m.webhookRejected.WithLabelValues(provider, reason).Inc()
}

func (m *Metrics) RecordLookupMiss(eventType string) {
	if m == nil {
		return
	}
	m.lookupMisses.WithLabelValues(eventType).Inc()
}

func (m *Metrics) RecordDunningAction(action string) {
	if m == nil {
		return
	}
	m.dunningActions.WithLabelValues(action).Inc()
}

func (m *Metrics) RecordNotification(notificationType string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(notificationType).Inc()
}

func (m *Metrics) RecordEmailFailure() {
	if m == nil {
		return
	}
	m.emailFailures.Inc()
}

func (m *Metrics) IncJobRun(job string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

func (m *Metrics) IncJobError(job string) {
	if m == nil {
		return
	}
	m.jobErrors.WithLabelValues(job).Inc()
}

func (m *Metrics) ObserveJobDuration(job string, d time.Duration) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}
