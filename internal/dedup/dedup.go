// Package dedup implements the duplicate-datagram filter that protects
// the channel from retransmission storms. The filter remembers one
// fingerprint: the most recently admitted datagram. A datagram with the
// same fingerprint arriving inside the suppression window is dropped; the
// same payload arriving after the window has elapsed is delivered again.
package dedup

import (
	"encoding/binary"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/stormlink/udpchan/netaddr"
)

// DefaultWindow is the suppression window applied when none is configured.
const DefaultWindow = 100 * time.Millisecond

// Filter tracks the fingerprint and arrival time of the last admitted
// datagram. Not safe for concurrent use; a channel owns exactly one
// Filter and drives it from its single polling context.
type Filter struct {
	window   time.Duration
	lastHash uint64
	lastTime time.Time
	haveLast bool
}

// NewFilter creates a Filter with the given suppression window.
// A window <= 0 disables suppression: every datagram is admitted.
func NewFilter(window time.Duration) *Filter {
	return &Filter{window: window}
}

// Fingerprint computes the content fingerprint for a datagram. The sender
// address and port are mixed in so the same payload from two different
// senders is never treated as a duplicate.
func Fingerprint(payload []byte, sender netaddr.Address, port uint16) uint64 {
	var d xxhash.Digest
	d.Reset()
	_, _ = d.Write(payload)

	var tail [6]byte
	copy(tail[:4], sender[:])
	binary.BigEndian.PutUint16(tail[4:], port)
	_, _ = d.Write(tail[:])

	return d.Sum64()
}

// Admit decides whether a datagram with the given fingerprint, arriving
// at the given time, should be delivered. Admitting updates the stored
// fingerprint and timestamp; rejecting leaves them untouched, so a
// steady stream of duplicates stays suppressed only until the window
// measured from the first admitted copy runs out.
func (f *Filter) Admit(hash uint64, now time.Time) bool {
	if f.window > 0 && f.haveLast && hash == f.lastHash && now.Sub(f.lastTime) < f.window {
		return false
	}

	f.lastHash = hash
	f.lastTime = now
	f.haveLast = true
	return true
}

// Reset forgets the last admitted datagram. Called on channel stop so a
// fresh bind starts with a clean slate.
func (f *Filter) Reset() {
	f.lastHash = 0
	f.lastTime = time.Time{}
	f.haveLast = false
}
