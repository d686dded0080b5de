package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	readyGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "service_ready",
		Help: "1 when the service reports ready, 0 otherwise.",
	})

	tokenConsumeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_consume_total",
			Help: "Capability token consumption attempts by result.",
		},
		[]string{"result"},
	)

	aiRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_requests_total",
			Help: "Outbound AI provider attempts by status.",
		},
		[]string{"status"},
	)

	aiRequestDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ai_request_duration_seconds",
		Help:    "Latency of outbound AI provider calls.",
		Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
	})

	reportJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "report_jobs_total",
			Help: "Dispatched report jobs by terminal result.",
		},
		[]string{"result"},
	)
)

// Init registers all metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration, readyGauge,
		tokenConsumeTotal, aiRequestsTotal, aiRequestDuration, reportJobsTotal,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetReady reflects the readiness probe result in metrics.
func SetReady(ready bool) {
	if ready {
		readyGauge.Set(1)
		return
	}
	readyGauge.Set(0)
}

// CountTokenConsume records a token consumption attempt result
// (ok, not_found, expired, already_used, error).
func CountTokenConsume(result string) {
	tokenConsumeTotal.WithLabelValues(result).Inc()
}

// ObserveAIRequest records one outbound AI attempt.
func ObserveAIRequest(status string, d time.Duration) {
	aiRequestsTotal.WithLabelValues(status).Inc()
	aiRequestDuration.Observe(d.Seconds())
}

// CountReportJob records a report job reaching a terminal state (done, failed).
func CountReportJob(result string) {
	reportJobsTotal.WithLabelValues(result).Inc()
}

// CanonicalPath collapses identifier path segments so metric label
// cardinality stays bounded.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	if rest, ok := strings.CutPrefix(path, "/v1/assistant/jobs/"); ok {
		if rest != "" && !strings.Contains(rest, "/") {
			return "/v1/assistant/jobs/:id"
		}
	}
	return path
}

// Instrument wraps a handler with RPS/latency/in-flight measurements.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
