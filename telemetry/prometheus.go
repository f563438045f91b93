package telemetry

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PromMetrics implements Metrics on top of github.com/prometheus/client_golang.
// Unlike a fixed set of named metrics, it lazily registers one CounterVec,
// HistogramVec, or GaugeVec per distinct metric name the first time that name
// is observed, keyed on however many tag values the caller passes each time.
type PromMetrics struct {
	registry *prometheus.Registry

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
	gauges     map[string]*prometheus.GaugeVec
}

// NewPromMetrics constructs a Metrics sink registered against its own
// prometheus.Registry, so callers can mount Handler() without colliding with
// other collectors registered against the default global registry.
func NewPromMetrics() *PromMetrics {
	return &PromMetrics{
		registry:   prometheus.NewRegistry(),
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
	}
}

// Handler returns an http.Handler exposing the registered collectors in the
// Prometheus text exposition format.
func (m *PromMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func tagLabels(n int) []string {
	labels := make([]string, n)
	for i := range labels {
		labels[i] = fmt.Sprintf("tag%d", i)
	}
	return labels
}

func (m *PromMetrics) counterVec(name string, n int) *prometheus.CounterVec {
	m.mu.Lock()
	defer m.mu.Unlock()
	cv, ok := m.counters[name]
	if !ok {
		cv = prometheus.NewCounterVec(prometheus.CounterOpts{Name: name}, tagLabels(n))
		m.registry.MustRegister(cv)
		m.counters[name] = cv
	}
	return cv
}

func (m *PromMetrics) histogramVec(name string, n int) *prometheus.HistogramVec {
	m.mu.Lock()
	defer m.mu.Unlock()
	hv, ok := m.histograms[name]
	if !ok {
		hv = prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: name}, tagLabels(n))
		m.registry.MustRegister(hv)
		m.histograms[name] = hv
	}
	return hv
}

func (m *PromMetrics) gaugeVec(name string, n int) *prometheus.GaugeVec {
	m.mu.Lock()
	defer m.mu.Unlock()
	gv, ok := m.gauges[name]
	if !ok {
		gv = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name}, tagLabels(n))
		m.registry.MustRegister(gv)
		m.gauges[name] = gv
	}
	return gv
}

// IncCounter increments the named counter by value, labeling it with tags.
func (m *PromMetrics) IncCounter(name string, value float64, tags ...string) {
	m.counterVec(name, len(tags)).WithLabelValues(tags...).Add(value)
}

// RecordTimer observes duration (in seconds) against the named histogram.
func (m *PromMetrics) RecordTimer(name string, duration time.Duration, tags ...string) {
	m.histogramVec(name, len(tags)).WithLabelValues(tags...).Observe(duration.Seconds())
}

// RecordGauge sets the named gauge to value, labeling it with tags.
func (m *PromMetrics) RecordGauge(name string, value float64, tags ...string) {
	m.gaugeVec(name, len(tags)).WithLabelValues(tags...).Set(value)
}
