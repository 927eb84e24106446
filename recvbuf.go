package udpchan

import (
	"github.com/stormlink/udpchan/netaddr"
)

// ReceiveBuffer holds the most recently parsed datagram plus a read
// cursor and the sender captured at parse time. A new Store overwrites
// payload, length and sender atomically; read operations never advance
// past the stored length.
type ReceiveBuffer struct {
	buf          []byte
	dataLength   int
	readPosition int

	sender     netaddr.Address
	senderPort uint16
}

// NewReceiveBuffer creates a ReceiveBuffer with the given capacity in bytes.
func NewReceiveBuffer(capacity int) *ReceiveBuffer {
	return &ReceiveBuffer{buf: make([]byte, capacity)}
}

// Store replaces the buffered datagram with payload, truncated at
// capacity, and records the sender. The read cursor rewinds to the start.
// Returns the number of bytes stored.
func (b *ReceiveBuffer) Store(payload []byte, sender netaddr.Address, port uint16) int {
	n := copy(b.buf, payload)
	b.dataLength = n
	b.readPosition = 0
	b.sender = sender
	b.senderPort = port
	return n
}

// Available returns the number of unread bytes.
func (b *ReceiveBuffer) Available() int {
	return b.dataLength - b.readPosition
}

// ReadByte returns the next byte and advances the cursor, or -1 when no
// bytes remain.
func (b *ReceiveBuffer) ReadByte() int {
	if b.readPosition >= b.dataLength {
		return -1
	}
	c := b.buf[b.readPosition]
	b.readPosition++
	return int(c)
}

// Read copies up to len(p) unread bytes into p and advances the cursor.
// Returns the count copied, 0 when nothing remains.
func (b *ReceiveBuffer) Read(p []byte) int {
	if b.readPosition >= b.dataLength {
		return 0
	}
	n := copy(p, b.buf[b.readPosition:b.dataLength])
	b.readPosition += n
	return n
}

// Peek returns the next byte without advancing the cursor, or -1 when no
// bytes remain.
func (b *ReceiveBuffer) Peek() int {
	if b.readPosition >= b.dataLength {
		return -1
	}
	return int(b.buf[b.readPosition])
}

// Flush discards the remaining unread bytes.
func (b *ReceiveBuffer) Flush() {
	b.readPosition = b.dataLength
}

// Len returns the stored datagram length.
func (b *ReceiveBuffer) Len() int {
	return b.dataLength
}

// Cap returns the buffer capacity.
func (b *ReceiveBuffer) Cap() int {
	return len(b.buf)
}

// Sender returns the address and port captured at the most recent Store.
func (b *ReceiveBuffer) Sender() (netaddr.Address, uint16) {
	return b.sender, b.senderPort
}

// Reset clears the buffered datagram and the recorded sender.
func (b *ReceiveBuffer) Reset() {
	b.dataLength = 0
	b.readPosition = 0
	b.sender = netaddr.Zero
	b.senderPort = 0
}
