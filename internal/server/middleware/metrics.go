package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics returns an HTTP middleware recording request counts and latency
// by method, route pattern and status. Collectors are registered with reg.
func Metrics(reg prometheus.Registerer) func(http.Handler) http.Handler {
	inFlight := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "turnstile_http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})
	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turnstile_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "turnstile_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
	reg.MustRegister(inFlight, requests, duration)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			inFlight.Inc()
			defer inFlight.Dec()

			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)

			// Label by pattern, not raw path, so ids don't explode cardinality.
			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if p := rctx.RoutePattern(); p != "" {
					route = p
				}
			}
			status := strconv.Itoa(ww.status)
			duration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
			requests.WithLabelValues(r.Method, route, status).Inc()
		})
	}
}
