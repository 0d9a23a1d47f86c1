// Package metrics exposes Prometheus instrumentation for exports, deliveries,
// background jobs and the HTTP API. A nil *Metrics is valid and records
// nothing, so callers never need to guard their calls.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/document-export-api/internal/delivery"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "document_export"

var (
	durationBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}
	sizeBuckets     = prometheus.ExponentialBuckets(1024, 4, 8) // 1KB .. 16MB
)

// Metrics holds every collector registered by the service
type Metrics struct {
	registry *prometheus.Registry

	exportsTotal   *prometheus.CounterVec
	exportDuration *prometheus.HistogramVec
	exportSize     *prometheus.HistogramVec
	exportWarnings *prometheus.CounterVec

	deliveriesTotal  *prometheus.CounterVec
	deliveryDuration *prometheus.HistogramVec

	jobsTotal    *prometheus.CounterVec
	jobsInFlight prometheus.Gauge

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New creates and registers the collectors. A nil registry gets a fresh
// one with the Go runtime and process collectors attached.
func New(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	m := &Metrics{
		registry: registry,
		exportsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exports_total",
			Help:      "Exports by format and outcome",
		}, []string{"format", "status"}),
		exportDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "export_duration_seconds",
			Help:      "Time spent producing one export",
			Buckets:   durationBuckets,
		}, []string{"format"}),
		exportSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "export_size_bytes",
			Help:      "Size of generated files",
			Buckets:   sizeBuckets,
		}, []string{"format"}),
		exportWarnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "export_warnings_total",
			Help:      "Warnings attached to export results",
		}, []string{"format"}),
		deliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "File deliveries by sink and outcome",
		}, []string{"sink", "status"}),
		deliveryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "delivery_duration_seconds",
			Help:      "Time spent saving a file to a sink",
			Buckets:   durationBuckets,
		}, []string{"sink"}),
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Finished background export jobs by final status",
		}, []string{"status"}),
		jobsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_in_flight",
			Help:      "Background export jobs currently running",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code",
		}, []string{"method", "route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   durationBuckets,
		}, []string{"method", "route"}),
	}

	registry.MustRegister(
		m.exportsTotal, m.exportDuration, m.exportSize, m.exportWarnings,
		m.deliveriesTotal, m.deliveryDuration,
		m.jobsTotal, m.jobsInFlight,
		m.httpRequests, m.httpDuration,
	)
	return m
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}

// ObserveExport records one finished export
func (m *Metrics) ObserveExport(format string, success bool, d time.Duration, size int64, warnings int) {
	if m == nil {
		return
	}
	m.exportsTotal.WithLabelValues(format, outcome(success)).Inc()
	m.exportDuration.WithLabelValues(format).Observe(d.Seconds())
	if success {
		m.exportSize.WithLabelValues(format).Observe(float64(size))
	}
	if warnings > 0 {
		m.exportWarnings.WithLabelValues(format).Add(float64(warnings))
	}
}

// ObserveDelivery records one save attempt against a sink
func (m *Metrics) ObserveDelivery(sink string, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.deliveriesTotal.WithLabelValues(sink, outcome(err == nil)).Inc()
	m.deliveryDuration.WithLabelValues(sink).Observe(d.Seconds())
}

// JobStarted marks a background job as running
func (m *Metrics) JobStarted() {
	if m == nil {
		return
	}
	m.jobsInFlight.Inc()
}

// JobFinished records a job's final status
func (m *Metrics) JobFinished(status string) {
	if m == nil {
		return
	}
	m.jobsInFlight.Dec()
	m.jobsTotal.WithLabelValues(status).Inc()
}

// ObserveHTTP records one served request. route is the route template,
// never the raw path, to keep label cardinality bounded.
func (m *Metrics) ObserveHTTP(method, route string, code int, d time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "error"
}

// instrumentedSink times every Save of the wrapped sink
type instrumentedSink struct {
	name    string
	sink    delivery.Sink
	metrics *Metrics
}

// InstrumentSink wraps a delivery sink so each save is counted and timed
func InstrumentSink(name string, sink delivery.Sink, m *Metrics) delivery.Sink {
	if sink == nil || m == nil {
		return sink
	}
	return &instrumentedSink{name: name, sink: sink, metrics: m}
}

func (s *instrumentedSink) Save(ctx context.Context, blob *delivery.Blob, filename string) (string, error) {
	start := time.Now()
	location, err := s.sink.Save(ctx, blob, filename)
	s.metrics.ObserveDelivery(s.name, err, time.Since(start))
	return location, err
}
