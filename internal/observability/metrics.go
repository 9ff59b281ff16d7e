package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "diagipc",
			Subsystem: "admin",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "diagipc",
			Subsystem: "admin",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	accepts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "diagipc",
			Subsystem: "endpoint",
			Name:      "accepts_total",
			Help:      "Accept attempts on the diagnostics endpoint.",
		},
		[]string{"endpoint", "success"},
	)
	messages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "diagipc",
			Subsystem: "session",
			Name:      "messages_total",
			Help:      "Messages read from or written to diagnostic sessions.",
		},
		[]string{"direction", "command_set"},
	)
	rejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "diagipc",
			Subsystem: "session",
			Name:      "rejected_total",
			Help:      "Sessions ended because a message was rejected.",
		},
		[]string{"reason"},
	)
	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "diagipc",
			Subsystem: "session",
			Name:      "active",
			Help:      "Diagnostic sessions currently open.",
		},
	)
	sessionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "diagipc",
			Subsystem: "session",
			Name:      "duration_seconds",
			Help:      "Diagnostic session lifetime in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, accepts, messages, rejected, activeSessions, sessionDuration)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordAccept(endpoint string, success bool) {
	RegisterMetrics()
	accepts.WithLabelValues(endpoint, strconv.FormatBool(success)).Inc()
}

func RecordMessage(direction, commandSet string) {
	RegisterMetrics()
	messages.WithLabelValues(direction, commandSet).Inc()
}

func RecordRejected(reason string) {
	RegisterMetrics()
	rejected.WithLabelValues(reason).Inc()
}

func SessionOpened() {
	RegisterMetrics()
	activeSessions.Inc()
}

func SessionClosed(lifetime time.Duration) {
	RegisterMetrics()
	activeSessions.Dec()
	sessionDuration.Observe(lifetime.Seconds())
}
