package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sepsiswatch"

// Outcome labels for the prediction counter.
const (
	OutcomeOK         = "ok"
	OutcomeValidation = "validation"
	OutcomeInference  = "inference"
)

// Metrics owns a private registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	predictions   *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	probabilities prometheus.Histogram
	reloads       *prometheus.CounterVec
	sessions      prometheus.Gauge
	requests      *prometheus.CounterVec
}

// NewMetrics registers every collector on a fresh private registry.
func NewMetrics() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.predictions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "predictions_total",
		Help:      "Predictions served, by outcome.",
	}, []string{"transport", "outcome"})

	m.latency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "prediction_duration_seconds",
		Help:      "Time spent completing and scoring one input.",
		Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
	}, []string{"transport"})

	m.probabilities = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "predicted_probability",
		Help:      "Distribution of returned sepsis probabilities.",
		Buckets:   prometheus.LinearBuckets(0.1, 0.1, 9),
	})

	m.reloads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "artifact_reloads_total",
		Help:      "Artifact reload attempts, by result.",
	}, []string{"result"})

	m.sessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "live_sessions",
		Help:      "Open websocket assessment sessions.",
	})

	m.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests, by route and status code.",
	}, []string{"method", "route", "code"})

	m.registry.MustRegister(
		m.predictions,
		m.latency,
		m.probabilities,
		m.reloads,
		m.sessions,
		m.requests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObservePrediction records one prediction. probability is ignored unless
// outcome is OutcomeOK.
func (m *Metrics) ObservePrediction(transport, outcome string, probability float64, elapsed time.Duration) {
	m.predictions.WithLabelValues(transport, outcome).Inc()
	m.latency.WithLabelValues(transport).Observe(elapsed.Seconds())
	if outcome == OutcomeOK {
		m.probabilities.Observe(probability)
	}
}

// ObserveReload counts one artifact reload attempt by result.
func (m *Metrics) ObserveReload(err error) {
	if err != nil {
		m.reloads.WithLabelValues("failure").Inc()
		return
	}
	m.reloads.WithLabelValues("success").Inc()
}

// ObserveRequest counts one HTTP response under its route pattern.
func (m *Metrics) ObserveRequest(method, route, code string) {
	m.requests.WithLabelValues(method, route, code).Inc()
}

// SessionOpened increments the live websocket gauge.
func (m *Metrics) SessionOpened() {
	m.sessions.Inc()
}

// SessionClosed decrements the live websocket gauge.
func (m *Metrics) SessionClosed() {
	m.sessions.Dec()
}

// Registry exposes the private registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
