package client

import (
	"time"

	"conn-guard/internal/model"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PrometheusMetrics struct {
	// Record metrics
	RecordsTotal   prometheus.Counter
	RecordsDropped prometheus.Counter

	// Detection and enforcement metrics
	Detections  *prometheus.CounterVec
	Enforcement *prometheus.CounterVec

	// Window metrics
	WindowsTotal   prometheus.Counter
	WindowSources  prometheus.Gauge
	WindowBlocked  prometheus.Gauge
	WindowDuration prometheus.Histogram

	// Alert delivery metrics
	AlertsSent    *prometheus.CounterVec
	AlertErrors   *prometheus.CounterVec
	AlertsDropped prometheus.Counter

	// Source metrics
	SourceErrors *prometheus.CounterVec
	HubbleFlows  *prometheus.CounterVec
}

// NewPrometheusMetrics registers the metrics with reg. A nil reg uses the
// default registry.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		RecordsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "conn_guard_records_total",
				Help: "Total number of parsed connection records",
			},
		),

		RecordsDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "conn_guard_records_dropped_total",
				Help: "Total number of malformed lines skipped by the parser",
			},
		),

		Detections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conn_guard_detections_total",
				Help: "Total number of detections by kind",
			},
			[]string{"kind"},
		),

		Enforcement: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conn_guard_enforcement_total",
				Help: "Total number of enforcement outcomes by status",
			},
			[]string{"status"},
		),

		WindowsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "conn_guard_windows_total",
				Help: "Total number of closed observation windows",
			},
		),

		WindowSources: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "conn_guard_window_sources",
				Help: "Distinct sources seen in the last closed window",
			},
		),

		WindowBlocked: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "conn_guard_window_blocked_sources",
				Help: "Sources with an enforcement attempt in the last closed window",
			},
		),

		WindowDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "conn_guard_window_duration_seconds",
				Help:    "Time spent processing one observation window",
				Buckets: prometheus.DefBuckets,
			},
		),

		AlertsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conn_guard_alerts_sent_total",
				Help: "Total number of alerts delivered by notifier",
			},
			[]string{"notifier"},
		),

		AlertErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conn_guard_alert_errors_total",
				Help: "Total number of failed alert deliveries by notifier",
			},
			[]string{"notifier"},
		),

		AlertsDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "conn_guard_alerts_dropped_total",
				Help: "Alerts dropped because the queue was full, rate limited or cooling down",
			},
		),

		SourceErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conn_guard_source_errors_total",
				Help: "Total number of record source errors",
			},
			[]string{"error_type"},
		),

		HubbleFlows: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conn_guard_hubble_flows_total",
				Help: "Flows received from Hubble by verdict",
			},
			[]string{"verdict"},
		),
	}
}

func (m *PrometheusMetrics) RecordParsed() {
	m.RecordsTotal.Inc()
}

func (m *PrometheusMetrics) RecordDropped() {
	m.RecordsDropped.Inc()
}

func (m *PrometheusMetrics) RecordDetection(d model.Detection) {
	m.Detections.WithLabelValues(d.Kind.String()).Inc()
}

func (m *PrometheusMetrics) RecordEnforcement(o model.EnforcementOutcome) {
	m.Enforcement.WithLabelValues(o.Status.String()).Inc()
}

func (m *PrometheusMetrics) RecordWindow(report *model.WindowReport, elapsed time.Duration) {
	m.WindowsTotal.Inc()
	m.WindowSources.Set(float64(len(report.Entries)))
	blocked := 0
	for _, o := range report.Outcomes {
		if o.Attempted() {
			blocked++
		}
	}
	m.WindowBlocked.Set(float64(blocked))
	m.WindowDuration.Observe(elapsed.Seconds())
}

func (m *PrometheusMetrics) RecordAlertSent(notifier string) {
	m.AlertsSent.WithLabelValues(notifier).Inc()
}

func (m *PrometheusMetrics) RecordAlertError(notifier string) {
	m.AlertErrors.WithLabelValues(notifier).Inc()
}

func (m *PrometheusMetrics) RecordAlertDropped() {
	m.AlertsDropped.Inc()
}

func (m *PrometheusMetrics) RecordSourceError(errorType string) {
	m.SourceErrors.WithLabelValues(errorType).Inc()
}
