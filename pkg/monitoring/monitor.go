package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "path"},
	)

	// CascadeOps counts archive cascades by kind (module|course) and
	// result (ok|partial).
	CascadeOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archive_cascade_total",
			Help: "Archive cascade operations",
		},
		[]string{"kind", "result"},
	)

	// RecomputeOps counts grade recomputes by kind
	// (attempt|assignment_average) and result (ok|skipped|error).
	RecomputeOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grade_recompute_total",
			Help: "Grade roll-up recompute operations",
		},
		[]string{"kind", "result"},
	)

	RecomputeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "grade_recompute_duration_seconds",
			Help:    "Duration of grade roll-up recomputes",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2},
		},
		[]string{"kind"},
	)

	// GuardConflicts counts optimistic write-guard version conflicts.
	GuardConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rollup_guard_conflicts_total",
			Help: "Optimistic roll-up write conflicts detected",
		},
	)
)

func Init() {
	prometheus.MustRegister(RequestCounter)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(CascadeOps)
	prometheus.MustRegister(RecomputeOps)
	prometheus.MustRegister(RecomputeDuration)
	prometheus.MustRegister(GuardConflicts)
}

// Middleware records request counts and latencies per route.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		RequestCounter.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(sw.status)).Inc()
		RequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func Handler() http.Handler { return promhttp.Handler() }
