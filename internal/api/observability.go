package api

import (
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

var (
	includeOrgLabel = os.Getenv("GATE_METRICS_LABELS_ORG") == "true"
	reqDuration     = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gate",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	reqTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "gate", Name: "http_requests_total", Help: "Total HTTP requests"},
		[]string{"method", "path", "status"},
	)
	checkinTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "gate", Name: "checkin_outcomes_total", Help: "Check-in attempts by outcome (optionally labeled by org)"},
		[]string{"outcome", "org"},
	)
	lockTimeoutTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "gate", Name: "checkin_lock_timeouts_total", Help: "Check-in attempts that hit the row-lock timeout"},
	)
	agentsOnline = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: "gate", Name: "agents_online", Help: "Agents with a heartbeat inside the freshness window"},
	)
)

func init() {
	prometheus.MustRegister(reqDuration, reqTotal, checkinTotal, lockTimeoutTotal, agentsOnline)
}

// MetricsMiddleware records basic HTTP metrics
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		dur := time.Since(start).Seconds()
		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		observer := reqDuration.WithLabelValues(c.Request.Method, path, toStr(status))
		// attach exemplar with trace_id if present
		if sc := trace.SpanContextFromContext(c.Request.Context()); sc.IsValid() {
			if eo, ok := observer.(prometheus.ExemplarObserver); ok {
				eo.ObserveWithExemplar(dur, prometheus.Labels{"trace_id": sc.TraceID().String()})
			} else {
				observer.Observe(dur)
			}
		} else {
			observer.Observe(dur)
		}
		reqTotal.With(prometheus.Labels{"method": c.Request.Method, "path": path, "status": toStr(status)}).Inc()
	}
}

func toStr(i int) string { return strconv.Itoa(i) }

// RecordCheckinOutcome increments the outcome counter for one scan attempt.
func RecordCheckinOutcome(outcome string, org string) {
	if !includeOrgLabel {
		org = ""
	}
	checkinTotal.With(prometheus.Labels{"outcome": outcome, "org": org}).Inc()
}

// RecordLockTimeout counts a scan that gave up waiting on a row lock.
func RecordLockTimeout() { lockTimeoutTotal.Inc() }

// SetAgentsOnline updates the online-agents gauge.
func SetAgentsOnline(n int64) { agentsOnline.Set(float64(n)) }
