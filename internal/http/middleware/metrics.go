// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file exposes Prometheus instrumentation for HTTP traffic. Labels are
// bounded: method, the registered Gin route (raw path when unmatched) and the
// status code. Replayed idempotent responses are counted separately so cache
// savings are visible.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "allergen_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	// Analysis routes can wait on a 45s search, so buckets reach a minute.
	httpLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "allergen_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: []float64{.005, .025, .1, .5, 1, 2.5, 5, 10, 30, 45, 60},
		},
		[]string{"method", "path"},
	)

	httpInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "allergen_http_requests_inflight",
			Help: "Current number of in-flight HTTP requests.",
		},
	)

	httpReplays = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "allergen_http_idempotent_replays_total",
			Help: "Responses served from the idempotency store.",
		},
		[]string{"path"},
	)
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpInflight, httpReplays)
}

// Metrics returns a Gin middleware that instruments requests. Mount the
// scrape endpoint separately with promhttp.Handler().
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		method := c.Request.Method
		httpReqs.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpLat.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
		if IsReplay(c) {
			httpReplays.WithLabelValues(path).Inc()
		}
	}
}
