// Package metrics provides Prometheus metrics for udpchan.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "udpchan"
)

// Metrics contains all Prometheus metrics for a channel.
type Metrics struct {
	// Receive path
	DatagramsReceived    prometheus.Counter
	BytesReceived        prometheus.Counter
	DuplicatesSuppressed prometheus.Counter
	ReceiveErrors        prometheus.Counter

	// Send path
	DatagramsSent prometheus.Counter
	BytesSent     prometheus.Counter
	SendFailures  prometheus.Counter
	WriteOverflow prometheus.Counter

	// Socket lifecycle
	SocketBinds   prometheus.Counter
	SocketRebinds prometheus.Counter
	BindFailures  prometheus.Counter
}

var (
	defaultMetrics *Metrics
	metricsOnce    sync.Once
)

// Default returns the default metrics instance.
func Default() *Metrics {
	metricsOnce.Do(func() {
		defaultMetrics = NewMetrics()
	})
	return defaultMetrics
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry creates a new Metrics instance with a custom registry.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		DatagramsReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "datagrams_received_total",
			Help:      "Number of datagrams delivered to the caller",
		}),
		BytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_received_total",
			Help:      "Payload bytes delivered to the caller",
		}),
		DuplicatesSuppressed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicates_suppressed_total",
			Help:      "Datagrams dropped by the deduplication filter",
		}),
		ReceiveErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "receive_errors_total",
			Help:      "Socket-level receive failures",
		}),
		DatagramsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "datagrams_sent_total",
			Help:      "Datagrams transmitted",
		}),
		BytesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_sent_total",
			Help:      "Payload bytes transmitted",
		}),
		SendFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_failures_total",
			Help:      "Failed datagram transmissions",
		}),
		WriteOverflow: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "write_overflow_total",
			Help:      "Writes truncated because the send buffer was full",
		}),
		SocketBinds: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "socket_binds_total",
			Help:      "Successful socket binds",
		}),
		SocketRebinds: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "socket_rebinds_total",
			Help:      "Socket recreations triggered by a failed liveness probe",
		}),
		BindFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bind_failures_total",
			Help:      "Failed bind attempts",
		}),
	}
}
