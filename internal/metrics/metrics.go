package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tessera_http_requests_total",
		Help: "HTTP requests by method, path pattern, and status code.",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tessera_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	ingestJobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tessera_ingest_jobs_total",
		Help: "Ingest jobs by terminal outcome.",
	}, []string{"outcome"})

	chunksStoredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tessera_chunks_stored_total",
		Help: "Chunks written to the index across all documents.",
	})

	retrievalDegradedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tessera_retrieval_degraded_total",
		Help: "Retrievals served from a single search path.",
	})

	sessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tessera_sessions_total",
		Help: "Query sessions by terminal status.",
	}, []string{"status"})

	stepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tessera_agent_step_duration_seconds",
		Help:    "Time spent in each orchestration step.",
		Buckets: []float64{.01, .05, .1, .5, 1, 2.5, 5, 10, 30},
	}, []string{"step"})
)

// ObserveIngestJob records one job reaching a terminal outcome.
func ObserveIngestJob(outcome string) {
	ingestJobsTotal.WithLabelValues(outcome).Inc()
}

// AddChunksStored counts chunks written to the index.
func AddChunksStored(n int) {
	chunksStoredTotal.Add(float64(n))
}

// ObserveDegradedRetrieval counts a single-path retrieval.
func ObserveDegradedRetrieval() {
	retrievalDegradedTotal.Inc()
}

// ObserveSession records one session reaching a terminal status.
func ObserveSession(status string) {
	sessionsTotal.WithLabelValues(status).Inc()
}

// ObserveStep records the duration of one orchestration step.
func ObserveStep(step string, d time.Duration) {
	stepDuration.WithLabelValues(step).Observe(d.Seconds())
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// Middleware records request counts and latency per route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}

		next.ServeHTTP(rec, r)

		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		path := routePattern(r)
		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}
