package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics(t *testing.T) {
	// Create a new registry for isolated testing
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	if m == nil {
		t.Fatal("NewMetricsWithRegistry returned nil")
	}

	// Verify metrics are registered
	if m.DatagramsReceived == nil {
		t.Error("DatagramsReceived metric is nil")
	}
	if m.DuplicatesSuppressed == nil {
		t.Error("DuplicatesSuppressed metric is nil")
	}
	if m.BytesSent == nil {
		t.Error("BytesSent metric is nil")
	}
	if m.SocketRebinds == nil {
		t.Error("SocketRebinds metric is nil")
	}
}

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.DatagramsReceived.Inc()
	m.DatagramsReceived.Inc()
	m.BytesReceived.Add(128)
	m.DuplicatesSuppressed.Inc()
	m.DatagramsSent.Inc()
	m.BytesSent.Add(64)
	m.SendFailures.Inc()

	if got := testutil.ToFloat64(m.DatagramsReceived); got != 2 {
		t.Errorf("DatagramsReceived = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.BytesReceived); got != 128 {
		t.Errorf("BytesReceived = %v, want 128", got)
	}
	if got := testutil.ToFloat64(m.DuplicatesSuppressed); got != 1 {
		t.Errorf("DuplicatesSuppressed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.BytesSent); got != 64 {
		t.Errorf("BytesSent = %v, want 64", got)
	}
	if got := testutil.ToFloat64(m.SendFailures); got != 1 {
		t.Errorf("SendFailures = %v, want 1", got)
	}
}

func TestDefaultMetrics(t *testing.T) {
	m1 := Default()
	m2 := Default()

	if m1 != m2 {
		t.Error("Default() should return same instance")
	}

	if m1 == nil {
		t.Error("Default() returned nil")
	}
}
