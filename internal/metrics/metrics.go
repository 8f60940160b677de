package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes application metrics that are safe to scrape via Prometheus.
type Metrics struct {
	registry              *prometheus.Registry
	httpRequests          *prometheus.CounterVec
	httpRequestDuration   *prometheus.HistogramVec
	generationRunsTotal   prometheus.Counter
	generationRunDuration prometheus.Histogram
	generationLayers      *prometheus.CounterVec
	deploySyncsTotal      *prometheus.CounterVec
	deploySyncDuration    *prometheus.HistogramVec
}

// New creates a fresh Metrics registry with HTTP, generation and deploy metrics registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mapviewer",
		Name:      "http_requests_total",
		Help:      "Count of HTTP requests processed by the preview server",
	}, []string{"method", "path", "status"})

	httpRequestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mapviewer",
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests served by the preview server",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	generationRunsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mapviewer",
		Name:      "generation_runs_total",
		Help:      "Total number of tile generation runs started",
	})

	generationRunDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "mapviewer",
		Name:      "generation_run_duration_seconds",
		Help:      "Duration of tile generation runs from start to finish",
		Buckets:   []float64{1, 10, 30, 60, 300, 900, 1800, 3600, 7200},
	})

	generationLayers := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mapviewer",
		Name:      "generation_layers_total",
		Help:      "Ortho layers processed, by outcome",
	}, []string{"status"})

	deploySyncsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mapviewer",
		Name:      "deploy_syncs_total",
		Help:      "Cloud sync invocations, by target and outcome",
	}, []string{"target", "status"})

	deploySyncDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mapviewer",
		Name:      "deploy_sync_duration_seconds",
		Help:      "Duration of cloud sync invocations",
		Buckets:   []float64{1, 5, 10, 30, 60, 300, 900, 1800},
	}, []string{"target"})

	registry.MustRegister(
		httpRequests,
		httpRequestDuration,
		generationRunsTotal,
		generationRunDuration,
		generationLayers,
		deploySyncsTotal,
		deploySyncDuration,
	)

	return &Metrics{
		registry:              registry,
		httpRequests:          httpRequests,
		httpRequestDuration:   httpRequestDuration,
		generationRunsTotal:   generationRunsTotal,
		generationRunDuration: generationRunDuration,
		generationLayers:      generationLayers,
		deploySyncsTotal:      deploySyncsTotal,
		deploySyncDuration:    deploySyncDuration,
	}
}

// ObserveHTTPRequest records a single HTTP request/response cycle.
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{
		"method": method,
		"path":   path,
		"status": strconv.Itoa(status),
	}
	m.httpRequests.With(labels).Inc()
	m.httpRequestDuration.With(labels).Observe(duration.Seconds())
}

// IncGenerationRun increments the generation run counter.
func (m *Metrics) IncGenerationRun() {
	if m == nil {
		return
	}
	m.generationRunsTotal.Inc()
}

// ObserveGenerationRunDuration observes a generation run duration.
func (m *Metrics) ObserveGenerationRunDuration(duration time.Duration) {
	if m == nil {
		return
	}
	m.generationRunDuration.Observe(duration.Seconds())
}

// IncGenerationLayer counts one processed layer; status is "ok" or "failed".
func (m *Metrics) IncGenerationLayer(status string) {
	if m == nil {
		return
	}
	m.generationLayers.WithLabelValues(status).Inc()
}

// ObserveDeploySync records one sync invocation for target.
func (m *Metrics) ObserveDeploySync(target string, ok bool, duration time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "failed"
	}
	m.deploySyncsTotal.WithLabelValues(target, status).Inc()
	m.deploySyncDuration.WithLabelValues(target).Observe(duration.Seconds())
}

// Handler exposes the Prometheus registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("metrics unavailable"))
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
