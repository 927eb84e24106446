// Package socket owns the single OS datagram socket behind a channel:
// creation, option configuration, binding, multicast membership, and the
// lazy self-healing that recreates a silently-dead socket after a radio
// or interface reset.
package socket

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/stormlink/udpchan/internal/logging"
	"github.com/stormlink/udpchan/netaddr"
)

// Socket lifecycle errors.
var (
	// ErrNetworkNotReady means no usable IPv4 interface is up yet.
	ErrNetworkNotReady = errors.New("network not ready")
	// ErrNotBound means an operation needs a bound socket and there is none.
	ErrNotBound = errors.New("socket not bound")
)

// State is the socket lifecycle state.
type State int

const (
	// Unbound means no descriptor is held.
	Unbound State = iota
	// Bound means the descriptor is bound and believed usable.
	Bound
	// Invalid means the descriptor exists but the last liveness probe
	// failed; the next Validate recreates it.
	Invalid
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case Unbound:
		return "UNBOUND"
	case Bound:
		return "BOUND"
	case Invalid:
		return "INVALID"
	default:
		return "UNKNOWN"
	}
}

// DefaultValidateInterval throttles liveness probes so hot send/receive
// paths do not hit getsockopt on every call.
const DefaultValidateInterval = 5 * time.Second

// ReadyFunc reports whether the underlying network interface is up.
type ReadyFunc func() bool

// Handle owns one datagram socket descriptor and remembers enough of its
// configuration (port, multicast membership) to rebuild it transparently
// when the descriptor goes bad. Exactly one Handle exists per channel;
// it is not safe for concurrent use.
type Handle struct {
	conn  *net.UDPConn
	pconn *ipv4.PacketConn

	state       State
	boundPort   uint16
	group       netaddr.Address
	groupIface  netaddr.Address
	joined      bool
	readTimeout time.Duration

	ready            ReadyFunc
	validateInterval time.Duration
	lastValidate     time.Time
	onRebind         func()

	logger *slog.Logger
}

// NewHandle creates an unbound Handle. ready may be nil, in which case
// interface enumeration decides readiness. logger may be nil.
func NewHandle(ready ReadyFunc, logger *slog.Logger) *Handle {
	if ready == nil {
		ready = InterfacesReady
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Handle{
		state:            Unbound,
		ready:            ready,
		validateInterval: DefaultValidateInterval,
		logger:           logger,
	}
}

// SetValidateInterval adjusts liveness probe throttling. Zero or negative
// probes on every Validate call.
func (h *Handle) SetValidateInterval(d time.Duration) {
	h.validateInterval = d
}

// SetOnRebind registers a callback invoked after a successful self-heal
// rebind. Used for instrumentation.
func (h *Handle) SetOnRebind(fn func()) {
	h.onRebind = fn
}

// SetReadTimeout bounds how long Recv waits for a datagram. Zero or
// negative means poll only.
func (h *Handle) SetReadTimeout(d time.Duration) {
	if d < 0 {
		d = 0
	}
	h.readTimeout = d
}

// NetworkReady reports whether the network collaborator considers the
// interface usable. Checked before bind and send attempts; binding on a
// not-yet-ready interface fails spuriously.
func (h *Handle) NetworkReady() bool {
	return h.ready()
}

// State returns the current lifecycle state.
func (h *Handle) State() State {
	return h.state
}

// Bound reports whether the descriptor is held and believed usable.
func (h *Handle) Bound() bool {
	return h.state == Bound
}

// Bind creates the socket, applies options (address reuse, reuse-port
// where the platform has it) and binds the wildcard address on port.
// On failure no partial socket is retained.
func (h *Handle) Bind(port uint16) error {
	if !h.ready() {
		return ErrNetworkNotReady
	}

	h.closeConn()

	conn, err := listenReuse(port)
	if err != nil {
		h.state = Unbound
		return fmt.Errorf("bind udp4 port %d: %w", port, err)
	}

	h.conn = conn
	h.pconn = ipv4.NewPacketConn(conn)
	h.state = Bound
	h.boundPort = port
	h.joined = false
	h.group = netaddr.Zero
	h.groupIface = netaddr.Zero
	h.lastValidate = time.Now()

	h.logger.Debug("socket bound", "port", port)
	return nil
}

// JoinGroup joins the multicast group on the interface owning ifaceAddr.
// A zero ifaceAddr joins on the system default interface. The membership
// is recorded so a self-healing rebind can replay it.
func (h *Handle) JoinGroup(group, ifaceAddr netaddr.Address) error {
	if h.state != Bound {
		return ErrNotBound
	}
	if !group.IsMulticast() {
		return fmt.Errorf("join group: %s is not a multicast address", group)
	}

	ifi, err := interfaceByAddress(ifaceAddr)
	if err != nil {
		return fmt.Errorf("join group %s: %w", group, err)
	}

	if err := h.pconn.JoinGroup(ifi, &net.UDPAddr{IP: group.IP()}); err != nil {
		return fmt.Errorf("join group %s: %w", group, err)
	}

	// Loopback so group members on the same host see each other.
	if err := h.pconn.SetMulticastLoopback(true); err != nil {
		h.logger.Warn("multicast loopback not enabled", "error", err)
	}

	h.group = group
	h.groupIface = ifaceAddr
	h.joined = true

	h.logger.Debug("joined multicast group", "group", group.String(), "interface", ifaceAddr.String())
	return nil
}

// Validate performs a throttled liveness probe on the descriptor and, when
// the probe fails, recreates the socket and replays the recorded bind and
// multicast membership. Returns whether the socket is now usable.
func (h *Handle) Validate() bool {
	switch h.state {
	case Unbound:
		return false
	case Bound:
		if h.validateInterval > 0 && time.Since(h.lastValidate) < h.validateInterval {
			return true
		}
		h.lastValidate = time.Now()
		err := probeSocket(h.conn)
		if err == nil {
			return true
		}
		h.logger.Warn("socket liveness probe failed, reinitializing", "error", err)
		h.state = Invalid
		return h.heal()
	case Invalid:
		return h.heal()
	default:
		return false
	}
}

// heal rebinds the previously configured port and rejoins the recorded
// multicast group. One failed operation at the moment of detection is
// visible to the caller; afterwards the socket is as before.
func (h *Handle) heal() bool {
	port := h.boundPort
	group := h.group
	ifaceAddr := h.groupIface
	joined := h.joined

	if err := h.Bind(port); err != nil {
		h.state = Unbound
		h.logger.Warn("socket rebind failed", "port", port, "error", err)
		return false
	}
	if joined {
		if err := h.JoinGroup(group, ifaceAddr); err != nil {
			h.logger.Warn("multicast rejoin failed", "group", group.String(), "error", err)
			h.Close()
			return false
		}
	}

	h.logger.Info("socket reinitialized", "port", port, "multicast", joined)
	if h.onRebind != nil {
		h.onRebind()
	}
	return true
}

// SendTo transmits payload to dest:port in one datagram. Partial sends are
// errors: UDP is atomic at the syscall level, so a short write indicates a
// fault, not a resumable state.
func (h *Handle) SendTo(payload []byte, dest netaddr.Address, port uint16) error {
	if h.state != Bound {
		return ErrNotBound
	}

	n, err := h.conn.WriteToUDP(payload, &net.UDPAddr{IP: dest.IP(), Port: int(port)})
	if err != nil {
		h.state = Invalid
		return fmt.Errorf("send %d bytes to %s:%d: %w", len(payload), dest, port, err)
	}
	if n != len(payload) {
		return fmt.Errorf("partial send: %d/%d bytes to %s:%d", n, len(payload), dest, port)
	}
	return nil
}

// Recv attempts to receive one datagram into buf. With no configured read
// timeout it polls the descriptor without waiting; otherwise it waits at
// most the timeout. Returns n == 0 with a nil error when nothing arrived.
func (h *Handle) Recv(buf []byte) (int, netaddr.Address, uint16, error) {
	if h.state != Bound {
		return 0, netaddr.Zero, 0, ErrNotBound
	}

	if h.readTimeout <= 0 {
		return pollRecv(h.conn, buf)
	}

	if err := h.conn.SetReadDeadline(time.Now().Add(h.readTimeout)); err != nil {
		return 0, netaddr.Zero, 0, fmt.Errorf("set read deadline: %w", err)
	}

	n, from, err := h.conn.ReadFromUDP(buf)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return 0, netaddr.Zero, 0, nil
		}
		return 0, netaddr.Zero, 0, fmt.Errorf("receive: %w", err)
	}

	sender, ok := netaddr.FromIP(from.IP)
	if !ok {
		// IPv4-only channel; anything else is dropped.
		return 0, netaddr.Zero, 0, nil
	}
	return n, sender, uint16(from.Port), nil
}

// LocalPort returns the bound port, 0 when unbound.
func (h *Handle) LocalPort() uint16 {
	if h.conn == nil {
		return 0
	}
	if addr, ok := h.conn.LocalAddr().(*net.UDPAddr); ok {
		return uint16(addr.Port)
	}
	return 0
}

// LocalIP returns the primary interface address as a dotted string,
// "0.0.0.0" when it cannot be determined. The socket binds the wildcard
// address, so the answer comes from interface enumeration.
func (h *Handle) LocalIP() string {
	if addr, ok := firstInterfaceAddress(); ok {
		return addr.String()
	}
	return netaddr.Zero.String()
}

// Close leaves any joined multicast group, releases the descriptor and
// returns the handle to Unbound. Safe to call repeatedly.
func (h *Handle) Close() {
	if h.joined && h.pconn != nil {
		ifi, err := interfaceByAddress(h.groupIface)
		if err == nil {
			if err := h.pconn.LeaveGroup(ifi, &net.UDPAddr{IP: h.group.IP()}); err != nil {
				h.logger.Debug("multicast leave failed", "group", h.group.String(), "error", err)
			}
		}
	}

	h.closeConn()
	h.state = Unbound
	h.boundPort = 0
	h.group = netaddr.Zero
	h.groupIface = netaddr.Zero
	h.joined = false
}

func (h *Handle) closeConn() {
	if h.conn != nil {
		_ = h.conn.Close()
		h.conn = nil
		h.pconn = nil
	}
}

// InterfacesReady is the default readiness collaborator: true when some
// up, non-loopback interface carries an IPv4 address.
func InterfacesReady() bool {
	_, ok := firstInterfaceAddress()
	return ok
}

// firstInterfaceAddress finds the first IPv4 address on an up,
// non-loopback interface.
func firstInterfaceAddress() (netaddr.Address, bool) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return netaddr.Zero, false
	}
	for _, ifi := range ifaces {
		if ifi.Flags&net.FlagUp == 0 || ifi.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := ifi.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			if addr, ok := netaddr.FromIP(ipnet.IP); ok {
				return addr, true
			}
		}
	}
	return netaddr.Zero, false
}

// interfaceByAddress resolves the network interface carrying addr. A zero
// addr selects the system default interface (nil for the kernel to pick).
func interfaceByAddress(addr netaddr.Address) (*net.Interface, error) {
	if addr.IsZero() {
		return nil, nil
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("enumerate interfaces: %w", err)
	}
	for i := range ifaces {
		addrs, err := ifaces[i].Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			if got, ok := netaddr.FromIP(ipnet.IP); ok && got == addr {
				return &ifaces[i], nil
			}
		}
	}
	return nil, fmt.Errorf("no interface with address %s", addr)
}
