package udpchan

import (
	"log/slog"
	"time"

	"github.com/stormlink/udpchan/internal/dedup"
	"github.com/stormlink/udpchan/internal/logging"
	"github.com/stormlink/udpchan/internal/metrics"
	"github.com/stormlink/udpchan/internal/socket"
	"github.com/stormlink/udpchan/netaddr"
)

// DefaultBufferSize is the fixed send and receive buffer capacity used
// when none is configured.
const DefaultBufferSize = 1024

// Channel is a packet-oriented UDP channel over one datagram socket. It
// owns exactly one socket handle, one send buffer, one receive buffer and
// one deduplication filter; none of them are shared across channels.
//
// The API reports failure through return values (false, 0, -1) rather
// than errors: every failure is local and recoverable by caller retry,
// matching a cooperative polling loop. Details go to the structured
// logger.
type Channel struct {
	sock   *socket.Handle
	send   *SendBuffer
	recv   *ReceiveBuffer
	filter *dedup.Filter

	// scratch receives datagrams before the dedup decision so a rejected
	// or failed parse never touches the caller-visible receive buffer.
	scratch []byte

	logger  *slog.Logger
	metrics *metrics.Metrics
	ready   NetworkReadyFunc
	now     func() time.Time

	sendCap             int
	recvCap             int
	dedupWindow         time.Duration
	validateInterval    time.Duration
	hasValidateInterval bool
}

// New creates a stopped Channel. Call Begin or BeginMulticast to bind.
func New(opts ...Option) *Channel {
	c := &Channel{
		logger:      logging.NopLogger(),
		now:         time.Now,
		sendCap:     DefaultBufferSize,
		recvCap:     DefaultBufferSize,
		dedupWindow: dedup.DefaultWindow,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = metrics.Default()
	}

	c.sock = socket.NewHandle(socket.ReadyFunc(c.ready), c.logger)
	c.sock.SetOnRebind(c.metrics.SocketRebinds.Inc)
	if c.hasValidateInterval {
		c.sock.SetValidateInterval(c.validateInterval)
	}
	c.send = NewSendBuffer(c.sendCap)
	c.recv = NewReceiveBuffer(c.recvCap)
	c.filter = dedup.NewFilter(c.dedupWindow)
	c.scratch = make([]byte, c.recvCap)
	return c
}

// Begin binds the wildcard address on port. Returns false when the
// network is not ready or the bind fails; no partial state is kept.
// Idempotent: calling again after Stop rebinds cleanly.
func (c *Channel) Begin(port uint16) bool {
	c.resetState()

	if err := c.sock.Bind(port); err != nil {
		c.metrics.BindFailures.Inc()
		c.logger.Warn("bind failed", logging.KeyPort, port, logging.KeyError, err)
		return false
	}

	c.metrics.SocketBinds.Inc()
	c.logger.Info("channel bound", logging.KeyPort, port)
	return true
}

// BeginMulticast binds port and joins the multicast group on the system
// default interface.
func (c *Channel) BeginMulticast(group netaddr.Address, port uint16) bool {
	return c.beginMulticast(group, netaddr.Zero, port)
}

// BeginMulticastAddrs is the string form of BeginMulticast: groupIP is
// the dotted-decimal group, interfaceIP the join interface ("" or
// "0.0.0.0" for the default). Both forms converge on the same join logic.
func (c *Channel) BeginMulticastAddrs(groupIP, interfaceIP string, port uint16) bool {
	group, err := netaddr.Parse(groupIP)
	if err != nil {
		c.logger.Warn("invalid multicast group", logging.KeyGroup, groupIP, logging.KeyError, err)
		return false
	}

	ifaceAddr := netaddr.Zero
	if interfaceIP != "" {
		ifaceAddr, err = netaddr.Parse(interfaceIP)
		if err != nil {
			c.logger.Warn("invalid multicast interface", logging.KeyInterface, interfaceIP, logging.KeyError, err)
			return false
		}
	}

	return c.beginMulticast(group, ifaceAddr, port)
}

func (c *Channel) beginMulticast(group, ifaceAddr netaddr.Address, port uint16) bool {
	if !c.Begin(port) {
		return false
	}

	if err := c.sock.JoinGroup(group, ifaceAddr); err != nil {
		c.logger.Warn("multicast join failed",
			logging.KeyGroup, group.String(),
			logging.KeyInterface, ifaceAddr.String(),
			logging.KeyError, err)
		c.sock.Close()
		return false
	}

	c.logger.Info("joined multicast group",
		logging.KeyGroup, group.String(),
		logging.KeyPort, port)
	return true
}

// Stop leaves any joined multicast group, closes the socket and resets
// buffers, cursors and the deduplication filter. Safe on an already
// stopped channel.
func (c *Channel) Stop() {
	c.sock.Close()
	c.resetState()
	c.logger.Debug("channel stopped")
}

func (c *Channel) resetState() {
	c.send.Reset()
	c.recv.Reset()
	c.filter.Reset()
}

// BeginPacket records the destination for the next outgoing datagram and
// resets the write cursor. Returns false when the channel has no valid
// socket (a dead descriptor is recreated transparently first).
func (c *Channel) BeginPacket(dest netaddr.Address, port uint16) bool {
	if !c.sock.Validate() {
		c.logger.Warn("no valid socket for packet",
			logging.KeyDest, dest.String(),
			logging.KeyPort, port)
		return false
	}

	c.send.Begin(dest, port)
	return true
}

// BeginPacketString accepts a dotted-decimal destination.
func (c *Channel) BeginPacketString(ip string, port uint16) bool {
	dest, err := netaddr.Parse(ip)
	if err != nil {
		c.logger.Warn("invalid destination", logging.KeyDest, ip, logging.KeyError, err)
		return false
	}
	return c.BeginPacket(dest, port)
}

// BeginPacketUint32 accepts a host-order 32-bit destination.
func (c *Channel) BeginPacketUint32(ip uint32, port uint16) bool {
	return c.BeginPacket(netaddr.FromUint32(ip), port)
}

// WriteByte appends one byte to the staged datagram. Returns the number
// of bytes accepted (1, or 0 when full or no packet was begun).
func (c *Channel) WriteByte(b byte) int {
	n := c.send.WriteByte(b)
	if n == 0 {
		c.metrics.WriteOverflow.Inc()
	}
	return n
}

// Write appends p to the staged datagram, truncating at the fixed
// capacity. Returns the number of bytes accepted.
func (c *Channel) Write(p []byte) int {
	n := c.send.Write(p)
	if n < len(p) {
		c.metrics.WriteOverflow.Inc()
		c.logger.Debug("send buffer full, write truncated",
			logging.KeyBytes, n, "requested", len(p))
	}
	return n
}

// WriteString appends s to the staged datagram, truncating at capacity.
func (c *Channel) WriteString(s string) int {
	n := c.send.WriteString(s)
	if n < len(s) {
		c.metrics.WriteOverflow.Inc()
	}
	return n
}

// EndPacket transmits the staged bytes to the recorded destination in
// exactly one datagram. Returns true only when the full staged length was
// sent; a partial OS-level send is a failure, not a resumable state. The
// staged bytes are kept on failure so the caller may retry EndPacket at
// its own pace.
func (c *Channel) EndPacket() bool {
	dest, port, ok := c.send.Dest()
	if !ok {
		c.logger.Warn("end packet without begin")
		return false
	}

	payload := c.send.Payload()
	if len(payload) == 0 {
		c.logger.Warn("attempted to send empty packet",
			logging.KeyDest, dest.String(),
			logging.KeyPort, port)
		return false
	}

	if err := c.sock.SendTo(payload, dest, port); err != nil {
		c.metrics.SendFailures.Inc()
		c.logger.Warn("send failed",
			logging.KeyDest, dest.String(),
			logging.KeyPort, port,
			logging.KeyBytes, len(payload),
			logging.KeyError, err)
		return false
	}

	c.metrics.DatagramsSent.Inc()
	c.metrics.BytesSent.Add(float64(len(payload)))
	c.logger.Debug("datagram sent",
		logging.KeyDest, dest.String(),
		logging.KeyPort, port,
		logging.KeyBytes, len(payload))

	c.send.Clear()
	return true
}

// ParsePacket polls the socket for one datagram. Returns the buffered
// length when a datagram was admitted, 0 when nothing arrived or the
// datagram was suppressed as a duplicate. A zero return leaves previously
// buffered state untouched, so a caller may keep draining an earlier
// packet.
func (c *Channel) ParsePacket() int {
	if !c.sock.Validate() {
		return 0
	}

	n, sender, senderPort, err := c.sock.Recv(c.scratch)
	if err != nil {
		c.metrics.ReceiveErrors.Inc()
		c.logger.Warn("receive failed", logging.KeyError, err)
		return 0
	}
	if n == 0 {
		return 0
	}

	hash := dedup.Fingerprint(c.scratch[:n], sender, senderPort)
	if !c.filter.Admit(hash, c.now()) {
		c.metrics.DuplicatesSuppressed.Inc()
		c.logger.Debug("duplicate datagram suppressed",
			logging.KeySender, sender.String(),
			logging.KeyHash, hash)
		return 0
	}

	stored := c.recv.Store(c.scratch[:n], sender, senderPort)
	c.metrics.DatagramsReceived.Inc()
	c.metrics.BytesReceived.Add(float64(stored))
	c.logger.Debug("datagram received",
		logging.KeySender, sender.String(),
		logging.KeyPort, senderPort,
		logging.KeyBytes, stored)
	return stored
}

// Available returns the number of unread bytes in the current datagram.
func (c *Channel) Available() int {
	return c.recv.Available()
}

// Read returns the next buffered byte, or -1 when none remain.
func (c *Channel) Read() int {
	return c.recv.ReadByte()
}

// ReadBytes copies up to len(p) unread bytes into p, advancing the read
// cursor. Returns the count copied.
func (c *Channel) ReadBytes(p []byte) int {
	return c.recv.Read(p)
}

// Peek returns the next buffered byte without consuming it, or -1.
func (c *Channel) Peek() int {
	return c.recv.Peek()
}

// Flush discards the unread remainder of the current datagram. The send
// side is unaffected.
func (c *Channel) Flush() {
	c.recv.Flush()
}

// RemoteIP returns the sender address captured by the most recent
// successful ParsePacket, the zero address before any packet was parsed.
func (c *Channel) RemoteIP() netaddr.Address {
	addr, _ := c.recv.Sender()
	return addr
}

// RemotePort returns the sender port captured by the most recent
// successful ParsePacket.
func (c *Channel) RemotePort() uint16 {
	_, port := c.recv.Sender()
	return port
}

// Connected reports whether the socket is bound and passed its last
// liveness check. This is a socket liveness indicator, not a UDP session
// concept.
func (c *Channel) Connected() bool {
	return c.sock.Bound() && c.sock.Validate()
}

// SetTimeout bounds how long ParsePacket waits for a datagram, in
// milliseconds. Zero or negative means poll only, never wait.
func (c *Channel) SetTimeout(ms int) {
	if ms < 0 {
		ms = 0
	}
	c.sock.SetReadTimeout(time.Duration(ms) * time.Millisecond)
}

// LocalPort returns the bound local port, 0 when stopped.
func (c *Channel) LocalPort() uint16 {
	return c.sock.LocalPort()
}

// LocalIP returns the primary local interface address as a dotted string,
// "0.0.0.0" when unknown.
func (c *Channel) LocalIP() string {
	return c.sock.LocalIP()
}
