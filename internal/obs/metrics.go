package obs

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Метрики движка авторизации.
var (
	checkDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "access_check_duration_seconds",
			Help:    "CheckAccess latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"layer", "granted"},
	)

	decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "access_decisions_total",
			Help: "Access decisions by winning layer and outcome.",
		},
		[]string{"layer", "granted"},
	)

	auditWriteFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audit_write_failures_total",
		Help: "Audit entries that could not be persisted after retries.",
	})

	auditQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "audit_queue_depth",
		Help: "Audit entries waiting for the background writer.",
	})

	codeGuardRejections = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "access_code_guard_rejections_total",
		Help: "Code validations rejected by the per-client rate guard.",
	})
)

// Init регистрирует метрики в default-регистре.
func Init() {
	prometheus.MustRegister(
		checkDuration,
		decisionsTotal,
		auditWriteFailures,
		auditQueueDepth,
		codeGuardRejections,
	)
}

// ObserveDecision records one finished CheckAccess call.
func ObserveDecision(layer string, granted bool, d time.Duration) {
	outcome := strconv.FormatBool(granted)
	decisionsTotal.WithLabelValues(layer, outcome).Inc()
	checkDuration.WithLabelValues(layer, outcome).Observe(d.Seconds())
}

// AuditWriteFailed counts an audit entry lost after all retries. Persistent
// failures must be visible to operations, never silently swallowed.
func AuditWriteFailed() {
	auditWriteFailures.Inc()
}

// SetAuditQueueDepth reports the backlog of the asynchronous audit writer.
func SetAuditQueueDepth(n int) {
	auditQueueDepth.Set(float64(n))
}

// CodeGuardRejected counts a validation refused before any storage lookup.
func CodeGuardRejected() {
	codeGuardRejections.Inc()
}
