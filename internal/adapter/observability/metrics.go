package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests served, by route, method and status code",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency; upper buckets sized for similarity queries",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"route", "method"},
	)

	JobsStartedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_started_total",
			Help: "Helper jobs started, by slot and source",
		},
		[]string{"kind", "source"},
	)
	JobsRunning = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "jobs_running",
			Help: "Helper jobs currently running",
		},
		[]string{"kind"},
	)
	JobsFinishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_finished_total",
			Help: "Helper jobs reaching a terminal status",
		},
		[]string{"kind", "status"},
	)
	JobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "job_duration_seconds",
			Help:    "Helper job wallclock duration",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
		},
		[]string{"kind"},
	)

	EmbedTextRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embed_text_requests_total",
			Help: "One-shot text embedding calls, by outcome",
		},
		[]string{"outcome"},
	)
	EmbedTextDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "embed_text_duration_seconds",
			Help:    "One-shot text embedding latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)

	DailyFallbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "daily_fallback_total",
			Help: "Daily-challenge fallback fetches, by site domain and outcome",
		},
		[]string{"domain", "outcome"},
	)

	SimilarQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "similar_queries_total",
			Help: "Similarity lookups, by entry point",
		},
		[]string{"mode"},
	)
)

// InitMetrics registers every collector with the default registry.
// Call once at startup; a second call panics on duplicate registration.
func InitMetrics() {
	for _, c := range []prometheus.Collector{
		HTTPRequestsTotal,
		HTTPRequestDuration,
		JobsStartedTotal,
		JobsRunning,
		JobsFinishedTotal,
		JobDuration,
		EmbedTextRequestsTotal,
		EmbedTextDuration,
		DailyFallbackTotal,
		SimilarQueriesTotal,
	} {
		prometheus.MustRegister(c)
	}
}

// HTTPMetricsMiddleware records request count and latency per chi route.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			route := metricRoute(r)
			HTTPRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(ww.Status())).Inc()
			HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
		}()
		next.ServeHTTP(ww, r)
	})
}

// metricRoute prefers the chi route pattern so path parameters
// (problem ids, sources) collapse into one label value per route.
func metricRoute(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

// StartJob records a helper job entering the running state.
func StartJob(kind, source string) {
	JobsStartedTotal.WithLabelValues(kind, source).Inc()
	JobsRunning.WithLabelValues(kind).Inc()
}

// FinishJob records a terminal transition for a helper job.
func FinishJob(kind, status string, dur time.Duration) {
	JobsRunning.WithLabelValues(kind).Dec()
	JobsFinishedTotal.WithLabelValues(kind, status).Inc()
	JobDuration.WithLabelValues(kind).Observe(dur.Seconds())
}

// ObserveEmbedText records a one-shot embedder call.
func ObserveEmbedText(outcome string, dur time.Duration) {
	EmbedTextRequestsTotal.WithLabelValues(outcome).Inc()
	EmbedTextDuration.Observe(dur.Seconds())
}

// ObserveDailyFallback records the outcome of a fallback fetch attempt.
func ObserveDailyFallback(domain, outcome string) {
	DailyFallbackTotal.WithLabelValues(domain, outcome).Inc()
}

// ObserveSimilarQuery counts a similarity lookup by entry point.
func ObserveSimilarQuery(mode string) {
	SimilarQueriesTotal.WithLabelValues(mode).Inc()
}
