package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/perimetric/traceline/internal/correlation"
	"github.com/perimetric/traceline/internal/tracing"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Trace metrics
	TracesFinished *prometheus.CounterVec
	TraceDuration  prometheus.Histogram
	SpansFinished  *prometheus.CounterVec

	// Error correlation metrics
	ErrorsRecorded      *prometheus.CounterVec
	ClustersActive      prometheus.Gauge
	CorrelationDuration prometheus.Histogram

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSEvents      *prometheus.CounterVec

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time
}

// NewMetrics creates a metrics collector registered on the default
// Prometheus registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith creates a metrics collector on an explicit registerer,
// letting tests use isolated registries.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "traceline_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "traceline_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		TracesFinished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "traceline_traces_finished_total",
				Help: "Total number of finished traces by final status",
			},
			[]string{"status"},
		),
		TraceDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "traceline_trace_duration_seconds",
				Help:    "End-to-end trace duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
		),
		SpansFinished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "traceline_spans_finished_total",
				Help: "Total number of finished spans by type and status",
			},
			[]string{"span_type", "status"},
		),

		ErrorsRecorded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "traceline_errors_recorded_total",
				Help: "Total number of correlated errors by category and severity",
			},
			[]string{"category", "severity"},
		),
		ClustersActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "traceline_clusters_active",
				Help: "Number of live error clusters",
			},
		),
		CorrelationDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "traceline_correlation_duration_seconds",
				Help:    "Error recording and scoring duration in seconds",
				Buckets: []float64{.0001, .00025, .0005, .001, .0025, .005, .01, .025, .05},
			},
		),

		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "traceline_ws_connections",
				Help: "Number of active WebSocket subscribers",
			},
		),
		WSEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "traceline_ws_events_total",
				Help: "Total number of events broadcast to WebSocket subscribers",
			},
			[]string{"type"},
		),

		Uptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "traceline_uptime_seconds",
				Help: "Process uptime in seconds",
			},
		),
	}

	go m.updateUptime()

	return m
}

// updateUptime continuously updates the uptime metric
func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.Uptime.Set(time.Since(m.startTime).Seconds())
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordTraceFinished records a finished trace and all of its spans
func (m *Metrics) RecordTraceFinished(view tracing.TraceView) {
	m.TracesFinished.WithLabelValues(string(view.Status)).Inc()
	m.TraceDuration.Observe(view.DurationMS / 1000)
	for _, span := range view.Spans {
		m.SpansFinished.WithLabelValues(string(span.SpanType), string(span.Status)).Inc()
	}
}

// RecordError records a correlated error
func (m *Metrics) RecordError(view correlation.ErrorView) {
	m.ErrorsRecorded.WithLabelValues(string(view.Category), string(view.Severity)).Inc()
}

// SetClusters sets the live cluster count
func (m *Metrics) SetClusters(count int) {
	m.ClustersActive.Set(float64(count))
}

// ObserveCorrelation records how long one error took to record and score
func (m *Metrics) ObserveCorrelation(duration time.Duration) {
	m.CorrelationDuration.Observe(duration.Seconds())
}

// RecordWSEvent records one broadcast event
func (m *Metrics) RecordWSEvent(eventType string) {
	m.WSEvents.WithLabelValues(eventType).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	m.WSConnections.Inc()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	m.WSConnections.Dec()
}
