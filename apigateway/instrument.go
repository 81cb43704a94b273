package gateway

import (
	"strconv"
	"time"

	"github.com/adonese/kaos/utils"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Instrumentation counts requests and observes their latency and sizes.
// Calling it again with the same registerer reuses the registered collectors.
func Instrumentation(reg prometheus.Registerer) gin.HandlerFunc {
	counterVec := utils.MustRegister(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kaos",
		Subsystem: "request",
		Name:      "requests_count",
		Help:      "Number of requests per each endpoint",
	}, []string{"code", "method", "handler", "url"}))

	resTime := utils.MustRegister(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "kaos",
		Subsystem: "response",
		Name:      "response_time_hist",
		Help:      "kaos response duration in milliseconds",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 16),
	}))

	resSize := utils.MustRegister(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "kaos",
		Subsystem: "response",
		Name:      "size_histogram",
		Help:      "kaos response size",
		Buckets:   prometheus.ExponentialBuckets(64, 4, 10),
	}))

	reqSize := utils.MustRegister(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "kaos",
		Subsystem: "request",
		Name:      "size_hist",
		Help:      "Request size instrumenter",
		Buckets:   prometheus.ExponentialBuckets(64, 4, 12),
	}))

	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		duration := float64(time.Since(start)) * 1e-6 // to millisecond

		status := strconv.Itoa(c.Writer.Status())
		counterVec.WithLabelValues(status, c.Request.Method, c.HandlerName(), routeOf(c)).Inc()
		resTime.Observe(duration)
		resSize.Observe(float64(c.Writer.Size()))
		reqSize.Observe(float64(c.Request.ContentLength))
	}
}

// routeOf is the matched route template, so that path parameters do not
// blow up the label cardinality.
func routeOf(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return "unmatched"
}
