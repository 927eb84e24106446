//go:build linux || darwin || freebsd || netbsd || openbsd

package socket

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/stormlink/udpchan/netaddr"
)

// listenReuse binds a udp4 socket on the wildcard address with
// SO_REUSEADDR and, best effort, SO_REUSEPORT so several group members on
// the same host can share a device-group port.
func listenReuse(port uint16) (*net.UDPConn, error) {
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var opErr error
			err := c.Control(func(fd uintptr) {
				opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
				if opErr != nil {
					return
				}
				// Not fatal on kernels without it.
				_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
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

// pollRecv receives one datagram without waiting. The raw descriptor is
// read with MSG_DONTWAIT so a queued datagram comes back immediately and
// an empty queue reports n == 0 instead of parking the goroutine.
func pollRecv(conn *net.UDPConn, buf []byte) (int, netaddr.Address, uint16, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return 0, netaddr.Zero, 0, fmt.Errorf("syscall conn: %w", err)
	}

	var (
		n    int
		sa   unix.Sockaddr
		rerr error
	)
	readErr := raw.Read(func(fd uintptr) bool {
		n, sa, rerr = unix.Recvfrom(int(fd), buf, unix.MSG_DONTWAIT)
		// Never park: an empty queue is a normal poll result.
		return true
	})
	if readErr != nil {
		return 0, netaddr.Zero, 0, readErr
	}
	if rerr != nil {
		if rerr == unix.EAGAIN || rerr == unix.EWOULDBLOCK {
			return 0, netaddr.Zero, 0, nil
		}
		return 0, netaddr.Zero, 0, fmt.Errorf("recvfrom: %w", rerr)
	}

	sa4, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		// IPv4-only channel; anything else is dropped.
		return 0, netaddr.Zero, 0, nil
	}
	return n, netaddr.Address(sa4.Addr), uint16(sa4.Port), nil
}

// probeSocket checks the descriptor's pending error slot. A socket that
// died underneath us (interface reset, address change) reports its fault
// here without a send or receive.
func probeSocket(conn *net.UDPConn) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return fmt.Errorf("syscall conn: %w", err)
	}

	var opErr error
	ctrlErr := raw.Control(func(fd uintptr) {
		v, err := unix.GetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_ERROR)
		if err != nil {
			opErr = err
			return
		}
		if v != 0 {
			opErr = unix.Errno(v)
		}
	})
	if ctrlErr != nil {
		return ctrlErr
	}
	return opErr
}
