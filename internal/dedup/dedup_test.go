package dedup

import (
	"testing"
	"time"

	"github.com/stormlink/udpchan/netaddr"
)

var (
	senderA = netaddr.New(192, 168, 1, 10)
	senderB = netaddr.New(192, 168, 1, 11)
)

func TestAdmitFirstDatagram(t *testing.T) {
	f := NewFilter(DefaultWindow)
	h := Fingerprint([]byte("PING"), senderA, 5353)

	if !f.Admit(h, time.Now()) {
		t.Error("first datagram rejected")
	}
}

func TestDuplicateInsideWindowRejected(t *testing.T) {
	f := NewFilter(100 * time.Millisecond)
	h := Fingerprint([]byte("X"), senderA, 4447)
	base := time.Now()

	if !f.Admit(h, base) {
		t.Fatal("first datagram rejected")
	}
	if f.Admit(h, base.Add(10*time.Millisecond)) {
		t.Error("duplicate 10ms later admitted, want rejected")
	}
}

func TestDuplicateAfterWindowAdmitted(t *testing.T) {
	f := NewFilter(100 * time.Millisecond)
	h := Fingerprint([]byte("X"), senderA, 4447)
	base := time.Now()

	if !f.Admit(h, base) {
		t.Fatal("first datagram rejected")
	}
	if !f.Admit(h, base.Add(150*time.Millisecond)) {
		t.Error("repeat 150ms later rejected, want admitted")
	}
}

func TestRejectionDoesNotExtendWindow(t *testing.T) {
	f := NewFilter(100 * time.Millisecond)
	h := Fingerprint([]byte("burst"), senderA, 4447)
	base := time.Now()

	f.Admit(h, base)

	// A flood of duplicates inside the window must not push the window
	// forward; the copy after 100ms from the first is legitimate.
	for _, off := range []time.Duration{20, 40, 60, 80} {
		if f.Admit(h, base.Add(off*time.Millisecond)) {
			t.Fatalf("duplicate at +%dms admitted", off)
		}
	}
	if !f.Admit(h, base.Add(110*time.Millisecond)) {
		t.Error("datagram after window rejected; rejections extended the window")
	}
}

func TestDifferentPayloadAdmitted(t *testing.T) {
	f := NewFilter(100 * time.Millisecond)
	base := time.Now()

	f.Admit(Fingerprint([]byte("first"), senderA, 4447), base)
	if !f.Admit(Fingerprint([]byte("second"), senderA, 4447), base.Add(time.Millisecond)) {
		t.Error("different payload rejected")
	}
}

func TestSameSenderDifferentPortDistinct(t *testing.T) {
	a := Fingerprint([]byte("X"), senderA, 4447)
	b := Fingerprint([]byte("X"), senderA, 4448)
	if a == b {
		t.Error("fingerprint ignores sender port")
	}
}

func TestDifferentSenderDistinct(t *testing.T) {
	a := Fingerprint([]byte("X"), senderA, 4447)
	b := Fingerprint([]byte("X"), senderB, 4447)
	if a == b {
		t.Error("fingerprint ignores sender address")
	}
}

func TestZeroWindowDisablesSuppression(t *testing.T) {
	f := NewFilter(0)
	h := Fingerprint([]byte("X"), senderA, 4447)
	base := time.Now()

	if !f.Admit(h, base) || !f.Admit(h, base) {
		t.Error("zero window still suppressed duplicates")
	}
}

func TestReset(t *testing.T) {
	f := NewFilter(100 * time.Millisecond)
	h := Fingerprint([]byte("X"), senderA, 4447)
	base := time.Now()

	f.Admit(h, base)
	f.Reset()

	if !f.Admit(h, base.Add(time.Millisecond)) {
		t.Error("duplicate rejected after Reset")
	}
}
