package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route"},
	)

	ActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_active_requests",
			Help: "Current number of active HTTP requests",
		},
	)

	// Analytics metrics
	ComputationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "habit_analytics_computation_seconds",
			Help:    "Duration of analytics computations including store reads",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"operation"}, // streak, overview, calendar, insights, leaderboard
	)

	ReconcileOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "habit_challenge_reconcile_total",
			Help: "Challenge reconciliation outcomes",
		},
		[]string{"outcome"}, // participant_updated, participant_completed, challenge_completed, failure
	)

	LeaderboardCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "habit_leaderboard_cache_lookups_total",
			Help: "Leaderboard cache lookups by result",
		},
		[]string{"result"}, // hit, miss, error
	)

	JobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "habit_jobs_processed_total",
			Help: "Background jobs processed by type and result",
		},
		[]string{"type", "result"},
	)
)

// Reconcile outcome labels
const (
	OutcomeParticipantUpdated   = "participant_updated"
	OutcomeParticipantCompleted = "participant_completed"
	OutcomeChallengeCompleted   = "challenge_completed"
	OutcomeFailure              = "failure"
)

// Handler serves the default registry in the Prometheus exposition format
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveComputation records the time elapsed since start for an analytics operation
func ObserveComputation(operation string, start time.Time) {
	ComputationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// TrackReconcileOutcome increments the reconciliation outcome counter
func TrackReconcileOutcome(outcome string) {
	ReconcileOutcomes.WithLabelValues(outcome).Inc()
}

// TrackLeaderboardCache records a cache lookup result
func TrackLeaderboardCache(result string) {
	LeaderboardCacheLookups.WithLabelValues(result).Inc()
}

// TrackJob records a processed background job
func TrackJob(jobType string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	JobsProcessed.WithLabelValues(jobType, result).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records request counts and latencies labelled by the matched
// mux route template, so path parameters do not explode label cardinality
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ActiveRequests.Inc()
		defer ActiveRequests.Dec()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := routeTemplate(r)
		HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}
