// Package metrics exposes Prometheus collectors for inspections, damage
// translation and the HTTP front end.
package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	inspections      *prometheus.CounterVec
	inspectDuration  *prometheus.HistogramVec
	imagesPerArchive prometheus.Histogram
	detections       *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	pldsCreated      prometheus.Counter
}

// New registers all collectors on registry; a nil registry gets a fresh one
// with the Go runtime and process collectors.
func New(registry *prometheus.Registry) (*Metrics, error) {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	m := &Metrics{
		registry: registry,
		inspections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dents_inspections_total",
			Help: "Archive inspections by engine and result",
		}, []string{"engine", "result"}),
		inspectDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dents_inspection_duration_seconds",
			Help:    "Wall time of one inspection including upload and model call",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		}, []string{"engine"}),
		imagesPerArchive: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dents_images_per_archive",
			Help:    "Images sent to the model per inspection",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64},
		}),
		detections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dents_detections_total",
			Help: "Detections returned by the model, kept or dropped as unknown codes",
		}, []string{"outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dents_http_requests_total",
			Help: "HTTP requests by route and status code",
		}, []string{"route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dents_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		pldsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dents_plds_create_requests_total",
			Help: "Successful PLDS create-from calls",
		}),
	}
	for _, c := range m.collectors() {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.inspections, m.inspectDuration, m.imagesPerArchive,
		m.detections, m.httpRequests, m.httpDuration, m.pldsCreated,
	}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
}

// The Observe methods are safe on a nil *Metrics so callers can run without
// metrics configured.

func (m *Metrics) ObserveInspection(engine, result string, images int, took time.Duration) {
	if m == nil {
		return
	}
	m.inspections.WithLabelValues(engine, result).Inc()
	m.inspectDuration.WithLabelValues(engine).Observe(took.Seconds())
	if images > 0 {
		m.imagesPerArchive.Observe(float64(images))
	}
}

func (m *Metrics) ObserveTranslation(kept, dropped int) {
	if m == nil {
		return
	}
	m.detections.WithLabelValues("kept").Add(float64(kept))
	m.detections.WithLabelValues("dropped").Add(float64(dropped))
}

func (m *Metrics) ObserveRequest(route string, code int, took time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(took.Seconds())
}

func (m *Metrics) ObservePLDSCreated() {
	if m == nil {
		return
	}
	m.pldsCreated.Inc()
}
