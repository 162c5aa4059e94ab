// Package metrics holds the Prometheus collectors exported at /metrics.
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
			Name: "workbench_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "workbench_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	remoteCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workbench_remote_calls_total",
			Help: "Calls to the system of record by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	remoteCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "workbench_remote_call_duration_seconds",
			Help:    "Latency of calls to the system of record",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	commandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workbench_commands_total",
			Help: "Workbench commands by name and outcome",
		},
		[]string{"command", "outcome"},
	)

	prospectusRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workbench_prospectus_requests_total",
			Help: "Prospectus requests by stage (queued, duplicate, sent, failed)",
		},
		[]string{"stage"},
	)

	activeSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "workbench_active_sessions",
			Help: "Number of open agent sessions",
		},
	)
)

// Middleware records request counts and latency by route template.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the Prometheus exposition format.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

// RecordRemoteCall records one call to the system of record.
func RecordRemoteCall(operation, outcome string, latency time.Duration) {
	remoteCallsTotal.WithLabelValues(operation, outcome).Inc()
	remoteCallDuration.WithLabelValues(operation).Observe(latency.Seconds())
}

// RecordCommand records the outcome of a workbench command.
func RecordCommand(command, outcome string) {
	commandsTotal.WithLabelValues(command, outcome).Inc()
}

// SessionOpened increments the open session gauge.
func SessionOpened() { activeSessions.Inc() }

// SessionClosed decrements the open session gauge.
func SessionClosed() { activeSessions.Dec() }

// ProspectusProcessed counts a prospectus request reaching stage.
func ProspectusProcessed(stage string) {
	prospectusRequests.WithLabelValues(stage).Inc()
}
