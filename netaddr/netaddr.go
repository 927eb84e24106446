// Package netaddr provides the 4-byte IPv4 address value type used
// throughout udpchan. An Address is a plain value: copy it, compare it,
// index its octets. Conversions from dotted-decimal strings, host-order
// 32-bit integers and net.IP all normalize to the same representation.
package netaddr

import (
	"fmt"
	"net"
)

// Address is an IPv4 address as 4 ordered octets, most significant first.
// The zero value is 0.0.0.0.
type Address [4]byte

// Zero is the unspecified address 0.0.0.0.
var Zero Address

// New builds an Address from four octets.
func New(a, b, c, d byte) Address {
	return Address{a, b, c, d}
}

// FromUint32 converts a host-order 32-bit integer (0xC0A80101 is
// 192.168.1.1) to an Address.
func FromUint32(v uint32) Address {
	return Address{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

// FromIP converts a net.IP to an Address. Returns Zero and false when the
// IP is not a valid IPv4 address.
func FromIP(ip net.IP) (Address, bool) {
	v4 := ip.To4()
	if v4 == nil {
		return Zero, false
	}
	return Address{v4[0], v4[1], v4[2], v4[3]}, true
}

// Parse converts a dotted-decimal string to an Address. Returns an error
// for anything that is not a valid IPv4 address, including IPv6 forms.
func Parse(s string) (Address, error) {
	ip := net.ParseIP(s)
	if ip == nil {
		return Zero, fmt.Errorf("invalid IPv4 address %q", s)
	}
	addr, ok := FromIP(ip)
	if !ok {
		return Zero, fmt.Errorf("not an IPv4 address: %q", s)
	}
	return addr, nil
}

// Octet returns the i-th octet (0 is most significant).
func (a Address) Octet(i int) byte {
	return a[i]
}

// Equal reports byte-wise equality.
func (a Address) Equal(b Address) bool {
	return a == b
}

// IsZero reports whether the address is 0.0.0.0.
func (a Address) IsZero() bool {
	return a == Zero
}

// IsMulticast reports whether the address falls in 224.0.0.0/4.
func (a Address) IsMulticast() bool {
	return a[0]&0xf0 == 0xe0
}

// Uint32 returns the address as a host-order 32-bit integer.
func (a Address) Uint32() uint32 {
	return uint32(a[0])<<24 | uint32(a[1])<<16 | uint32(a[2])<<8 | uint32(a[3])
}

// IP returns the address as a net.IP.
func (a Address) IP() net.IP {
	return net.IPv4(a[0], a[1], a[2], a[3])
}

// String returns the dotted-decimal form.
func (a Address) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", a[0], a[1], a[2], a[3])
}
