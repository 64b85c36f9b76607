// Package metrics registers the Prometheus instrumentation for the
// gateway's HTTP surfaces and generation pipeline, grounded on
// BigKAA-goartstore's middleware/metrics.go promauto pattern.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_http_requests_total",
			Help: "Total HTTP requests handled by the gateway.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	TasksCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_tasks_created_total",
		Help: "Total generation tasks created.",
	})

	TasksCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_tasks_completed_total",
			Help: "Total generation tasks reaching a terminal state.",
		},
		[]string{"status"},
	)

	QuotaConsumedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_quota_consumed_total",
		Help: "Total quota credits consumed.",
	})

	RedemptionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_redemptions_total",
			Help: "Total redemption-code attempts, by outcome.",
		},
		[]string{"outcome"},
	)

	ObjectStoreOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_object_store_operations_total",
			Help: "Total object-store operations, by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)
)

// GinMiddleware records request count and latency per route template.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler returns the /metrics exposition endpoint as a gin.HandlerFunc.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
