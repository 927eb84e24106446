package udpchan

import (
	"bytes"
	"testing"

	"github.com/stormlink/udpchan/netaddr"
)

var testDest = netaddr.New(192, 168, 1, 20)

func TestSendBufferRequiresDestination(t *testing.T) {
	b := NewSendBuffer(16)

	if n := b.Write([]byte("data")); n != 0 {
		t.Errorf("Write before Begin = %d, want 0", n)
	}
	if n := b.WriteByte('x'); n != 0 {
		t.Errorf("WriteByte before Begin = %d, want 0", n)
	}
	if n := b.WriteString("s"); n != 0 {
		t.Errorf("WriteString before Begin = %d, want 0", n)
	}
}

func TestSendBufferWrite(t *testing.T) {
	b := NewSendBuffer(16)
	b.Begin(testDest, 4447)

	if n := b.Write([]byte("PING")); n != 4 {
		t.Fatalf("Write = %d, want 4", n)
	}
	if n := b.WriteByte('!'); n != 1 {
		t.Fatalf("WriteByte = %d, want 1", n)
	}
	if n := b.WriteString("end"); n != 3 {
		t.Fatalf("WriteString = %d, want 3", n)
	}

	if b.Len() != 8 {
		t.Errorf("Len = %d, want 8", b.Len())
	}
	if !bytes.Equal(b.Payload(), []byte("PING!end")) {
		t.Errorf("Payload = %q, want %q", b.Payload(), "PING!end")
	}
}

func TestSendBufferTruncatesAtCapacity(t *testing.T) {
	b := NewSendBuffer(4)
	b.Begin(testDest, 4447)

	if n := b.Write([]byte("toolong")); n != 4 {
		t.Errorf("Write = %d, want 4 (truncated)", n)
	}
	if n := b.Write([]byte("more")); n != 0 {
		t.Errorf("Write on full buffer = %d, want 0", n)
	}
	if n := b.WriteByte('x'); n != 0 {
		t.Errorf("WriteByte on full buffer = %d, want 0", n)
	}
	if b.Len() != 4 {
		t.Errorf("Len = %d, want capacity 4", b.Len())
	}
}

func TestSendBufferBeginResetsCursor(t *testing.T) {
	b := NewSendBuffer(16)
	b.Begin(testDest, 4447)
	b.Write([]byte("old"))

	other := netaddr.New(10, 0, 0, 1)
	b.Begin(other, 9000)

	if b.Len() != 0 {
		t.Errorf("Len after second Begin = %d, want 0", b.Len())
	}
	dest, port, ok := b.Dest()
	if !ok {
		t.Fatal("Dest not set after Begin")
	}
	if dest != other || port != 9000 {
		t.Errorf("Dest = %v:%d, want %v:9000", dest, port, other)
	}
}

func TestSendBufferClearKeepsDestination(t *testing.T) {
	b := NewSendBuffer(16)
	b.Begin(testDest, 4447)
	b.Write([]byte("payload"))
	b.Clear()

	if b.Len() != 0 {
		t.Errorf("Len after Clear = %d, want 0", b.Len())
	}
	if _, _, ok := b.Dest(); !ok {
		t.Error("Clear dropped the destination")
	}
	if n := b.Write([]byte("next")); n != 4 {
		t.Errorf("Write after Clear = %d, want 4", n)
	}
}

func TestSendBufferReset(t *testing.T) {
	b := NewSendBuffer(16)
	b.Begin(testDest, 4447)
	b.Write([]byte("payload"))
	b.Reset()

	if b.Len() != 0 {
		t.Errorf("Len after Reset = %d, want 0", b.Len())
	}
	if _, _, ok := b.Dest(); ok {
		t.Error("Reset kept the destination")
	}
	if n := b.Write([]byte("x")); n != 0 {
		t.Errorf("Write after Reset = %d, want 0", n)
	}
}
