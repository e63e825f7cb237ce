package metrics

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	RemoteOutcomeSuccess = "success"
	RemoteOutcomeFailure = "failure"
)

const (
	RemoteReasonDeadlineExceeded = "deadline_exceeded"
	RemoteReasonCanceled         = "canceled"
	RemoteReasonClientError      = "client_error"
	RemoteReasonServerError      = "server_error"
	RemoteReasonTransport        = "transport"
	RemoteReasonUnknown          = "unknown"
)

// RemoteMetrics tracks calls to the payment authority. Failures mean local history and the
// authority have diverged, so they are exported even when OTLP is disabled.
type RemoteMetrics struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	failures *prometheus.CounterVec
}

var (
	remoteMetricsOnce sync.Once
	remoteMetrics     *RemoteMetrics
)

// Remote returns the singleton remote metrics registry.
func Remote() *RemoteMetrics {
	return RemoteWithConfig(Config{})
}

// RemoteWithConfig returns the singleton remote metrics registry using config labels.
func RemoteWithConfig(cfg Config) *RemoteMetrics {
	remoteMetricsOnce.Do(func() {
		remoteMetrics = newRemoteMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return remoteMetrics
}

func newRemoteMetrics(registerer prometheus.Registerer, cfg Config) *RemoteMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "chargeback"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	calls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "chargeback_remote_calls_total",
		Help:        "Payment authority calls by operation and outcome.",
		ConstLabels: constLabels,
	}, []string{"operation", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "chargeback_remote_call_duration_seconds",
		Help:        "Payment authority call latency.",
		Buckets:     []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		ConstLabels: constLabels,
	}, []string{"operation"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "chargeback_remote_failures_total",
		Help:        "Payment authority failures after local history was committed.",
		ConstLabels: constLabels,
	}, []string{"operation", "reason"})

	registerer.MustRegister(calls, duration, failures)

	return &RemoteMetrics{
		calls:    calls,
		duration: duration,
		failures: failures,
	}
}

// ObserveCall records one authority call and its latency.
func (m *RemoteMetrics) ObserveCall(operation string, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := RemoteOutcomeSuccess
	if err != nil {
		outcome = RemoteOutcomeFailure
	}
	m.calls.WithLabelValues(operation, outcome).Inc()
	m.duration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncFailure counts a desynchronization between local history and the authority.
func (m *RemoteMetrics) IncFailure(operation string, err error) {
	if m == nil || err == nil {
		return
	}
	m.failures.WithLabelValues(operation, ClassifyRemoteReason(err)).Inc()
}

type statusCoder interface {
	StatusCode() int
}

// ClassifyRemoteReason maps an authority error to a low-cardinality reason label.
func ClassifyRemoteReason(err error) string {
	if err == nil {
		return RemoteReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return RemoteReasonDeadlineExceeded
	}
	if errors.Is(err, context.Canceled) {
		return RemoteReasonCanceled
	}
	var sc statusCoder
	if errors.As(err, &sc) {
		if sc.StatusCode() >= 500 {
			return RemoteReasonServerError
		}
		return RemoteReasonClientError
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return RemoteReasonDeadlineExceeded
		}
		return RemoteReasonTransport
	}
	return RemoteReasonUnknown
}
