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
			Namespace: "articgate",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"service", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "articgate",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path", "status"},
	)
	rpcCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "articgate",
			Subsystem: "rpc",
			Name:      "calls_total",
			Help:      "Sealed gateway calls by method and status.",
		},
		[]string{"method", "status"},
	)
	rpcDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "articgate",
			Subsystem: "rpc",
			Name:      "call_duration_seconds",
			Help:      "Gateway call duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method"},
	)
	rpcFaults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "articgate",
			Subsystem: "rpc",
			Name:      "faults_total",
			Help:      "Calls answered with a fault frame.",
		},
		[]string{"reason"},
	)
	sessions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "articgate",
			Subsystem: "session",
			Name:      "total",
			Help:      "Gateway sessions by start outcome.",
		},
		[]string{"outcome"},
	)
	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "articgate",
			Subsystem: "session",
			Name:      "active",
			Help:      "Sessions currently serving a caller.",
		},
	)
	handlesReleased = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "articgate",
			Subsystem: "handles",
			Name:      "released_total",
			Help:      "Handles force-released at session teardown.",
		},
	)
	checksumFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "articgate",
			Subsystem: "payload",
			Name:      "checksum_failures_total",
			Help:      "Decompressed payloads rejected by the checksum gate.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			rpcCalls, rpcDuration, rpcFaults,
			sessions, activeSessions,
			handlesReleased, checksumFailures,
		)
	})
}

func RecordHTTPRequest(service, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(service, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(service, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordCall(method string, status int32, duration time.Duration) {
	RegisterMetrics()
	rpcCalls.WithLabelValues(method, strconv.FormatInt(int64(status), 10)).Inc()
	rpcDuration.WithLabelValues(method).Observe(duration.Seconds())
}

func RecordFault(reason string) {
	RegisterMetrics()
	rpcFaults.WithLabelValues(reason).Inc()
}

func RecordSessionStart(ok bool) {
	RegisterMetrics()
	if !ok {
		sessions.WithLabelValues("startup_failed").Inc()
		return
	}
	sessions.WithLabelValues("started").Inc()
	activeSessions.Inc()
}

func RecordSessionEnd(released int) {
	RegisterMetrics()
	activeSessions.Dec()
	handlesReleased.Add(float64(released))
}

func RecordChecksumFailure() {
	RegisterMetrics()
	checksumFailures.Inc()
}
