package udpchan

import (
	"log/slog"
	"time"

	"github.com/stormlink/udpchan/internal/metrics"
)

// NetworkReadyFunc reports whether the underlying network interface is up.
// Consulted before bind and send attempts.
type NetworkReadyFunc func() bool

// Option configures a Channel.
type Option func(*Channel)

// WithLogger sets the structured logger. Defaults to a nop logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Channel) {
		c.logger = logger
	}
}

// WithMetrics sets the metrics instance. Defaults to the process-wide
// metrics registered on the default Prometheus registry.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Channel) {
		c.metrics = m
	}
}

// WithNetworkReady sets the network readiness collaborator. Defaults to
// interface enumeration: ready when some up, non-loopback interface
// carries an IPv4 address.
func WithNetworkReady(ready NetworkReadyFunc) Option {
	return func(c *Channel) {
		c.ready = ready
	}
}

// WithSendBufferSize sets the fixed send buffer capacity in bytes.
func WithSendBufferSize(n int) Option {
	return func(c *Channel) {
		if n > 0 {
			c.sendCap = n
		}
	}
}

// WithRecvBufferSize sets the fixed receive buffer capacity in bytes.
func WithRecvBufferSize(n int) Option {
	return func(c *Channel) {
		if n > 0 {
			c.recvCap = n
		}
	}
}

// WithDedupWindow sets the duplicate suppression window. Zero disables
// suppression entirely.
func WithDedupWindow(d time.Duration) Option {
	return func(c *Channel) {
		c.dedupWindow = d
	}
}

// WithValidateInterval throttles socket liveness probes. Zero probes on
// every validation.
func WithValidateInterval(d time.Duration) Option {
	return func(c *Channel) {
		c.validateInterval = d
		c.hasValidateInterval = true
	}
}
