package udpchan

import (
	"github.com/stormlink/udpchan/netaddr"
)

// SendBuffer accumulates outgoing payload bytes between BeginPacket and
// EndPacket. Capacity is fixed at construction: writes beyond it are
// truncated and reported through the return count, never grown or
// overflowed.
type SendBuffer struct {
	buf        []byte
	dataLength int

	dest     netaddr.Address
	destPort uint16
	hasDest  bool
}

// NewSendBuffer creates a SendBuffer with the given capacity in bytes.
func NewSendBuffer(capacity int) *SendBuffer {
	return &SendBuffer{buf: make([]byte, capacity)}
}

// Begin records the destination for the next datagram and resets the
// write cursor. Must be called before any write.
func (b *SendBuffer) Begin(dest netaddr.Address, port uint16) {
	b.dest = dest
	b.destPort = port
	b.hasDest = true
	b.dataLength = 0
}

// WriteByte appends one byte. Returns 1, or 0 when no destination is set
// or the buffer is full.
func (b *SendBuffer) WriteByte(c byte) int {
	if !b.hasDest || b.dataLength >= len(b.buf) {
		return 0
	}
	b.buf[b.dataLength] = c
	b.dataLength++
	return 1
}

// Write appends p, truncating at capacity. Returns the number of bytes
// actually accepted.
func (b *SendBuffer) Write(p []byte) int {
	if !b.hasDest {
		return 0
	}
	n := copy(b.buf[b.dataLength:], p)
	b.dataLength += n
	return n
}

// WriteString appends s, truncating at capacity.
func (b *SendBuffer) WriteString(s string) int {
	if !b.hasDest {
		return 0
	}
	n := copy(b.buf[b.dataLength:], s)
	b.dataLength += n
	return n
}

// Len returns the number of staged bytes.
func (b *SendBuffer) Len() int {
	return b.dataLength
}

// Cap returns the buffer capacity.
func (b *SendBuffer) Cap() int {
	return len(b.buf)
}

// Payload returns the staged bytes. The slice aliases the buffer and is
// only valid until the next write or Begin.
func (b *SendBuffer) Payload() []byte {
	return b.buf[:b.dataLength]
}

// Dest returns the recorded destination. ok is false before any Begin.
func (b *SendBuffer) Dest() (dest netaddr.Address, port uint16, ok bool) {
	return b.dest, b.destPort, b.hasDest
}

// Clear resets the write cursor, keeping the destination.
func (b *SendBuffer) Clear() {
	b.dataLength = 0
}

// Reset clears the cursor and forgets the destination.
func (b *SendBuffer) Reset() {
	b.dataLength = 0
	b.dest = netaddr.Zero
	b.destPort = 0
	b.hasDest = false
}
