package socket

import (
	"errors"
	"testing"
	"time"

	"github.com/stormlink/udpchan/netaddr"
)

func alwaysReady() bool { return true }

func newBound(t *testing.T) *Handle {
	t.Helper()

	h := NewHandle(alwaysReady, nil)
	if err := h.Bind(0); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	t.Cleanup(h.Close)
	return h
}

func TestBindLifecycle(t *testing.T) {
	h := NewHandle(alwaysReady, nil)

	if h.State() != Unbound {
		t.Fatalf("initial state = %v, want UNBOUND", h.State())
	}
	if h.Validate() {
		t.Error("Validate on unbound handle = true")
	}

	if err := h.Bind(0); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	if h.State() != Bound {
		t.Errorf("state = %v, want BOUND", h.State())
	}
	if !h.Bound() {
		t.Error("Bound() = false")
	}
	if h.LocalPort() == 0 {
		t.Error("LocalPort = 0 after bind")
	}
	if !h.Validate() {
		t.Error("Validate on fresh socket = false")
	}

	h.Close()
	if h.State() != Unbound {
		t.Errorf("state after Close = %v, want UNBOUND", h.State())
	}
	if h.LocalPort() != 0 {
		t.Error("LocalPort != 0 after Close")
	}

	// Close is safe to repeat.
	h.Close()
}

func TestBindRequiresReadyNetwork(t *testing.T) {
	h := NewHandle(func() bool { return false }, nil)

	err := h.Bind(0)
	if !errors.Is(err, ErrNetworkNotReady) {
		t.Fatalf("Bind error = %v, want ErrNetworkNotReady", err)
	}
	if h.State() != Unbound {
		t.Errorf("state = %v, want UNBOUND after failed bind", h.State())
	}
}

func TestSendRequiresBound(t *testing.T) {
	h := NewHandle(alwaysReady, nil)

	err := h.SendTo([]byte("x"), netaddr.New(127, 0, 0, 1), 9)
	if !errors.Is(err, ErrNotBound) {
		t.Errorf("SendTo error = %v, want ErrNotBound", err)
	}

	if _, _, _, err := h.Recv(make([]byte, 16)); !errors.Is(err, ErrNotBound) {
		t.Errorf("Recv error = %v, want ErrNotBound", err)
	}
}

func TestSendAndRecv(t *testing.T) {
	a := newBound(t)
	b := newBound(t)

	payload := []byte("datagram")
	if err := a.SendTo(payload, netaddr.New(127, 0, 0, 1), b.LocalPort()); err != nil {
		t.Fatalf("SendTo failed: %v", err)
	}

	buf := make([]byte, 64)
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		n, sender, port, err := b.Recv(buf)
		if err != nil {
			t.Fatalf("Recv failed: %v", err)
		}
		if n == 0 {
			time.Sleep(time.Millisecond)
			continue
		}
		if string(buf[:n]) != "datagram" {
			t.Errorf("payload = %q, want %q", buf[:n], "datagram")
		}
		if sender != netaddr.New(127, 0, 0, 1) {
			t.Errorf("sender = %v, want 127.0.0.1", sender)
		}
		if port != a.LocalPort() {
			t.Errorf("sender port = %d, want %d", port, a.LocalPort())
		}
		return
	}
	t.Fatal("datagram never arrived")
}

func TestRecvPollsWithoutData(t *testing.T) {
	h := newBound(t)

	start := time.Now()
	n, _, _, err := h.Recv(make([]byte, 16))
	if err != nil {
		t.Fatalf("Recv failed: %v", err)
	}
	if n != 0 {
		t.Errorf("Recv = %d bytes, want 0", n)
	}
	if elapsed := time.Since(start); elapsed > 30*time.Millisecond {
		t.Errorf("poll took %v, want immediate return", elapsed)
	}
}

func TestRecvHonorsReadTimeout(t *testing.T) {
	h := newBound(t)
	h.SetReadTimeout(50 * time.Millisecond)

	start := time.Now()
	n, _, _, err := h.Recv(make([]byte, 16))
	if err != nil {
		t.Fatalf("Recv failed: %v", err)
	}
	if n != 0 {
		t.Errorf("Recv = %d bytes, want 0", n)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("Recv returned after %v, want a bounded wait near 50ms", elapsed)
	}
}

func TestValidateThrottling(t *testing.T) {
	h := newBound(t)

	// Within the throttle interval the last verdict is reused.
	h.SetValidateInterval(time.Hour)
	if !h.Validate() {
		t.Error("throttled Validate = false on healthy socket")
	}

	// With throttling off every call probes the descriptor.
	h.SetValidateInterval(0)
	for i := 0; i < 3; i++ {
		if !h.Validate() {
			t.Fatalf("unthrottled Validate #%d = false on healthy socket", i)
		}
	}
}

func TestValidateHealsDeadSocket(t *testing.T) {
	h := newBound(t)
	h.SetValidateInterval(0)

	// Kill the descriptor behind the handle's back, as an interface
	// reset would.
	_ = h.conn.Close()

	if !h.Validate() {
		t.Fatal("Validate failed to heal a dead socket")
	}
	if h.State() != Bound {
		t.Errorf("state after heal = %v, want BOUND", h.State())
	}

	// The healed socket must actually work.
	peer := newBound(t)
	if err := peer.SendTo([]byte("alive"), netaddr.New(127, 0, 0, 1), h.LocalPort()); err != nil {
		t.Fatalf("SendTo to healed socket failed: %v", err)
	}

	buf := make([]byte, 16)
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		n, _, _, err := h.Recv(buf)
		if err != nil {
			t.Fatalf("Recv on healed socket failed: %v", err)
		}
		if n > 0 {
			if string(buf[:n]) != "alive" {
				t.Errorf("payload = %q, want %q", buf[:n], "alive")
			}
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("healed socket never received")
}

func TestJoinGroupValidation(t *testing.T) {
	h := NewHandle(alwaysReady, nil)

	if err := h.JoinGroup(netaddr.New(239, 255, 250, 250), netaddr.Zero); !errors.Is(err, ErrNotBound) {
		t.Errorf("JoinGroup unbound error = %v, want ErrNotBound", err)
	}

	if err := h.Bind(0); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	t.Cleanup(h.Close)

	if err := h.JoinGroup(netaddr.New(192, 168, 1, 1), netaddr.Zero); err == nil {
		t.Error("JoinGroup accepted a unicast group")
	}
	if err := h.JoinGroup(netaddr.New(239, 255, 250, 250), netaddr.New(203, 0, 113, 77)); err == nil {
		t.Error("JoinGroup accepted an interface address that exists on no interface")
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{Unbound, "UNBOUND"},
		{Bound, "BOUND"},
		{Invalid, "INVALID"},
		{State(42), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
