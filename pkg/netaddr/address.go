// Package netaddr implements the address and CIDR primitives the NDP
// proxy core is built on: parsing, prefix containment, and the
// solicited-node multicast derivation used to address a Neighbor
// Solicitation.
package netaddr

import (
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"
)

// Address is a 128-bit IPv6 address with an optional prefix length.
// Prefix is metadata, not part of equality: two Addresses with the same
// 128 bits but different Prefix compare equal via Equal.
type Address struct {
	bits   [16]byte
	Prefix int // always in [0, 128]
}

// solicitedNodePrefix is ff02::1:ff00:0000, the fixed 104-bit prefix of
// every solicited-node multicast address.
var solicitedNodePrefix = [16]byte{0xff, 0x02, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1, 0xff, 0, 0, 0}

// Parse accepts "addr" or "addr/prefix". A missing prefix defaults to 128.
func Parse(s string) (Address, error) {
	prefix := 128
	addrPart := s
	if idx := strings.IndexByte(s, '/'); idx >= 0 {
		addrPart = s[:idx]
		p, err := strconv.Atoi(s[idx+1:])
		if err != nil {
			return Address{}, fmt.Errorf("netaddr: invalid prefix in %q: %w", s, err)
		}
		if p < 0 || p > 128 {
			return Address{}, fmt.Errorf("netaddr: prefix %d out of range in %q", p, s)
		}
		prefix = p
	}

	addr, err := netip.ParseAddr(addrPart)
	if err != nil {
		return Address{}, fmt.Errorf("netaddr: invalid address %q: %w", s, err)
	}
	// As16 already returns IPv4 literals in their IPv4-mapped IPv6 form,
	// so callers never have to special-case address length.
	addr16 := addr.As16()
	return Address{bits: addr16, Prefix: prefix}, nil
}

// MustParse is Parse but panics on error; useful for table-driven tests
// and constant-like initializers.
func MustParse(s string) Address {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// FromNetIP builds an Address from a netip.Addr with an explicit prefix.
func FromNetIP(addr netip.Addr, prefix int) Address {
	return Address{bits: addr.As16(), Prefix: prefix}
}

// NetIP returns the address as a netip.Addr, discarding the prefix.
func (a Address) NetIP() netip.Addr {
	return netip.AddrFrom16(a.bits)
}

// IP renders the address as a net.IP, for interop with net.IP-based
// APIs. (github.com/mdlayher/ndp takes a netip.Addr; see NetIP.)
func (a Address) IP() net.IP {
	b := a.bits
	return net.IP(b[:])
}

// String renders the bare address (no prefix suffix), matching how the
// core logs and compares addresses.
func (a Address) String() string {
	return a.NetIP().String()
}

// CIDRString renders "addr/prefix".
func (a Address) CIDRString() string {
	return fmt.Sprintf("%s/%d", a.String(), a.Prefix)
}

// Equal compares the full 128 bits; Prefix is not considered.
func (a Address) Equal(b Address) bool {
	return a.bits == b.bits
}

// IsZero reports whether a is the unset Address value.
func (a Address) IsZero() bool {
	return a.bits == [16]byte{}
}

// Contains reports whether other's high a.Prefix bits agree with a's.
// a.Prefix acts as the CIDR mask width; other's own Prefix is ignored.
func (a Address) Contains(other Address) bool {
	return maskEqual(a.bits, other.bits, a.Prefix)
}

func maskEqual(a, b [16]byte, prefix int) bool {
	if prefix < 0 {
		prefix = 0
	}
	if prefix > 128 {
		prefix = 128
	}
	fullBytes := prefix / 8
	for i := 0; i < fullBytes; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	rem := prefix % 8
	if rem == 0 {
		return true
	}
	mask := byte(0xff << (8 - rem))
	return a[fullBytes]&mask == b[fullBytes]&mask
}

// IsMulticast reports whether the address is in ff00::/8.
func (a Address) IsMulticast() bool {
	return a.bits[0] == 0xff
}

// IsUnicast is the complement of IsMulticast for the purposes of this
// daemon (it does not distinguish unspecified/loopback since neither is
// ever a legal NS/NA target).
func (a Address) IsUnicast() bool {
	return !a.IsMulticast()
}

// SolicitedNode computes ff02::1:ff00:0000 with its low 24 bits replaced
// by target's low 24 bits, per RFC 4861 §2.3.
func SolicitedNode(target Address) Address {
	var out [16]byte
	copy(out[:13], solicitedNodePrefix[:13])
	out[13] = target.bits[13]
	out[14] = target.bits[14]
	out[15] = target.bits[15]
	return Address{bits: out, Prefix: 128}
}

// Bytes returns the raw 16-byte big-endian representation.
func (a Address) Bytes() [16]byte {
	return a.bits
}

// FromBytes builds an Address (Prefix 128) from a raw 16-byte slice.
func FromBytes(b []byte) (Address, error) {
	if len(b) != 16 {
		return Address{}, fmt.Errorf("netaddr: need 16 bytes, got %d", len(b))
	}
	var out Address
	copy(out.bits[:], b)
	out.Prefix = 128
	return out, nil
}
