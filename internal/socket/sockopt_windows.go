//go:build windows

package socket

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sys/windows"

	"github.com/stormlink/udpchan/netaddr"
)

// listenReuse binds a udp4 socket on the wildcard address with address
// reuse enabled. Windows has no SO_REUSEPORT; SO_REUSEADDR alone allows
// rebinding a recently used device-group port.
func listenReuse(port uint16) (*net.UDPConn, error) {
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var opErr error
			err := c.Control(func(fd uintptr) {
				opErr = windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return opErr
		},
	}

	pc, err := lc.ListenPacket(context.Background(), "udp4", net.JoinHostPort("0.0.0.0", strconv.Itoa(int(port))))
	if err != nil {
		return nil, err
	}

	conn, ok := pc.(*net.UDPConn)
	if !ok {
		_ = pc.Close()
		return nil, fmt.Errorf("unexpected packet conn type %T", pc)
	}
	return conn, nil
}

// pollRecv receives one datagram without waiting, approximated with a
// one-millisecond read deadline. Windows has no MSG_DONTWAIT equivalent
// reachable through the runtime poller; a queued datagram still comes
// back immediately and an empty queue costs at most the deadline.
func pollRecv(conn *net.UDPConn, buf []byte) (int, netaddr.Address, uint16, error) {
	if err := conn.SetReadDeadline(time.Now().Add(time.Millisecond)); err != nil {
		return 0, netaddr.Zero, 0, fmt.Errorf("set read deadline: %w", err)
	}

	n, from, err := conn.ReadFromUDP(buf)
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return 0, netaddr.Zero, 0, nil
		}
		return 0, netaddr.Zero, 0, fmt.Errorf("receive: %w", err)
	}

	sender, ok := netaddr.FromIP(from.IP)
	if !ok {
		return 0, netaddr.Zero, 0, nil
	}
	return n, sender, uint16(from.Port), nil
}

// probeSocket checks the descriptor's pending error slot.
func probeSocket(conn *net.UDPConn) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return fmt.Errorf("syscall conn: %w", err)
	}

	var opErr error
	ctrlErr := raw.Control(func(fd uintptr) {
		v, err := windows.GetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_ERROR)
		if err != nil {
			opErr = err
			return
		}
		if v != 0 {
			opErr = syscall.Errno(v)
		}
	})
	if ctrlErr != nil {
		return ctrlErr
	}
	return opErr
}
