package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gitgateway_requests_total",
		Help: "Total number of HTTP requests.",
	}, []string{"method", "path", "status"})

	requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gitgateway_request_duration_seconds",
		Help:    "HTTP request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	policyDecisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gitgateway_policy_decisions_total",
		Help: "Policy decisions by matched rule.",
	}, []string{"rule", "allowed"})

	commandExecutionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gitgateway_command_executions_total",
		Help: "Subprocess executions by tool and outcome.",
	}, []string{"tool", "outcome"})

	activeSessionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gitgateway_active_sessions_total",
		Help: "Number of live agent sessions.",
	})
)

func init() {
	prometheus.MustRegister(requestsTotal, requestDuration, policyDecisionsTotal, commandExecutionsTotal, activeSessionsTotal)
}

// MetricsHandler returns the Prometheus metrics HTTP handler.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// metricsMiddleware records request metrics.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rr := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rr, r)

		dur := time.Since(start).Seconds()
		status := strconv.Itoa(rr.statusCode)
		requestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		requestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(dur)
	})
}
