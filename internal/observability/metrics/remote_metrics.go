package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	RemoteOutcomeOK       = "ok"
	RemoteOutcomeCanceled = "canceled"
	RemoteOutcomeTimeout  = "timeout"
	RemoteOutcomeError    = "error"
)

// RemoteMetrics tracks calls to downstream services, scraped from /metrics.
type RemoteMetrics struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

var (
	remoteMetricsOnce sync.Once
	remoteMetrics     *RemoteMetrics
)

// Remote returns the process-wide remote call metrics registered on the
// default Prometheus registerer.
func Remote(cfg Config) *RemoteMetrics {
	remoteMetricsOnce.Do(func() {
		remoteMetrics = NewRemoteMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return remoteMetrics
}

func NewRemoteMetrics(registerer prometheus.Registerer, cfg Config) *RemoteMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName(cfg),
		"env":     environment,
	}

	calls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "marketplace_remote_calls_total",
		Help:        "Calls to downstream services by operation and outcome.",
		ConstLabels: constLabels,
	}, []string{"target", "operation", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "marketplace_remote_call_duration_seconds",
		Help:        "Latency of calls to downstream services.",
		Buckets:     []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		ConstLabels: constLabels,
	}, []string{"target", "operation"})

	registerer.MustRegister(calls, duration)

	return &RemoteMetrics{calls: calls, duration: duration}
}

// Observe records one call. classify maps domain errors to a low-cardinality
// outcome and may be nil.
func (m *RemoteMetrics) Observe(target, operation string, started time.Time, err error, classify func(error) string) {
	if m == nil {
		return
	}
	outcome := RemoteOutcomeOK
	if err != nil {
		outcome = ""
		if classify != nil {
			outcome = classify(err)
		}
		if outcome == "" {
			outcome = classifyRemoteErr(err)
		}
	}
	m.calls.WithLabelValues(target, operation, outcome).Inc()
	m.duration.WithLabelValues(target, operation).Observe(time.Since(started).Seconds())
}

func classifyRemoteErr(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return RemoteOutcomeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return RemoteOutcomeTimeout
	default:
		return RemoteOutcomeError
	}
}
