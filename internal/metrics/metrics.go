// Package metrics holds the Prometheus collectors for the API and exposes
// them on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Saga outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"  // failed before anything was written
	OutcomePartial   = "partial" // failed after at least one step landed
)

var (
	// Registry holds the application collectors plus the Go and process
	// collectors. It is separate from prometheus.DefaultRegisterer so tests
	// and embedders get a predictable set.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "slapit",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "slapit",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "slapit",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "route"},
	)

	sagaRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "slapit",
			Subsystem: "saga",
			Name:      "runs_total",
			Help:      "Multi-step operations by outcome.",
		},
		[]string{"saga", "outcome"},
	)

	sagaStepFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "slapit",
			Subsystem: "saga",
			Name:      "step_failures_total",
			Help:      "Failed steps of multi-step operations.",
		},
		[]string{"saga", "step"},
	)

	reconcileRepairs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "slapit",
			Subsystem: "reconcile",
			Name:      "repairs_total",
			Help:      "Profile rows rewritten by the membership reconciler.",
		},
		[]string{"kind"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		sagaRuns,
		sagaStepFailures,
		reconcileRepairs,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler records request count, latency and in-flight requests.
// The route label is chi's route pattern ("/communities/{id}"), never the
// raw path, so ids do not blow up label cardinality.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, route, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	})
}

// RecordSagaRun counts one finished multi-step operation.
func RecordSagaRun(saga, outcome string) {
	sagaRuns.WithLabelValues(saga, outcome).Inc()
}

// RecordSagaStepFailure counts a failed step.
func RecordSagaStepFailure(saga, step string) {
	sagaStepFailures.WithLabelValues(saga, step).Inc()
}

// RecordReconcileRepairs adds n repairs of the given kind.
func RecordReconcileRepairs(kind string, n int) {
	if n <= 0 {
		return
	}
	reconcileRepairs.WithLabelValues(kind).Add(float64(n))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
