package ndpcore

import (
	"testing"

	"golang.org/x/net/bpf"
)

// frameLen is long enough to hold an Ethernet header, an IPv6 header, and
// an ICMPv6 type byte at offset 54.
const frameLen = 60

func sampleFrame(etherType uint16, nextHeader, icmp6Type byte) []byte {
	f := make([]byte, frameLen)
	f[12] = byte(etherType >> 8)
	f[13] = byte(etherType)
	f[20] = nextHeader
	f[54] = icmp6Type
	return f
}

func runFilter(t *testing.T, frame []byte) int {
	t.Helper()
	vm, err := bpf.NewVM(nsFilterInstructions())
	if err != nil {
		t.Fatalf("NewVM: %v", err)
	}
	n, err := vm.Run(frame)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return n
}

func TestNSFilterDropsNonIPv6(t *testing.T) {
	frame := sampleFrame(0x0800, icmp6NextHeader, icmp6TypeNeighborSolicit) // IPv4 ether_type
	if n := runFilter(t, frame); n != 0 {
		t.Fatalf("filter result = %d, want 0 (dropped) for a non-IPv6 frame", n)
	}
}

func TestNSFilterDropsIPv6NonICMPv6(t *testing.T) {
	frame := sampleFrame(0x86dd, 6 /* TCP */, icmp6TypeNeighborSolicit)
	if n := runFilter(t, frame); n != 0 {
		t.Fatalf("filter result = %d, want 0 (dropped) for IPv6 with a non-ICMPv6 next header", n)
	}
}

func TestNSFilterDropsICMPv6NonNS(t *testing.T) {
	frame := sampleFrame(0x86dd, icmp6NextHeader, icmp6TypeNeighborAdvert)
	if n := runFilter(t, frame); n != 0 {
		t.Fatalf("filter result = %d, want 0 (dropped) for an ICMPv6 message that isn't a solicitation", n)
	}
}

func TestNSFilterAcceptsNeighborSolicit(t *testing.T) {
	frame := sampleFrame(0x86dd, icmp6NextHeader, icmp6TypeNeighborSolicit)
	if n := runFilter(t, frame); n != len(frame) {
		t.Fatalf("filter result = %d, want %d (accepted in full) for a Neighbor Solicitation", n, len(frame))
	}
}
