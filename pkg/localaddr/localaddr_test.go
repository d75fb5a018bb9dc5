package localaddr

import (
	"net"
	"testing"

	"github.com/ndp6d/ndp6d/pkg/netaddr"
	"github.com/vishvananda/netlink"
)

func TestSeedAndIsLocal(t *testing.T) {
	table := New()
	addr := netaddr.MustParse("2001:db8::1")
	if table.IsLocal(addr) {
		t.Fatal("empty table should report nothing local")
	}
	table.Seed(Entry{Addr: addr, IfIndex: 3})
	if !table.IsLocal(addr) {
		t.Fatal("expected seeded address to be local")
	}
	idx, ok := table.IndexFor(addr)
	if !ok || idx != 3 {
		t.Fatalf("IndexFor = (%d,%v), want (3,true)", idx, ok)
	}
}

func TestEnumerateReturnsSnapshot(t *testing.T) {
	table := New()
	table.Seed(
		Entry{Addr: netaddr.MustParse("2001:db8::1"), IfIndex: 1},
		Entry{Addr: netaddr.MustParse("2001:db8::2"), IfIndex: 2},
	)
	entries := table.Enumerate()
	if len(entries) != 2 {
		t.Fatalf("Enumerate returned %d entries, want 2", len(entries))
	}
}

func TestApplyUpdateAddsAndRemoves(t *testing.T) {
	table := New()
	addr := netaddr.MustParse("2001:db8::1")

	table.applyUpdate(netlink.AddrUpdate{
		LinkAddress: mustIPNet(addr),
		LinkIndex:   5,
		NewAddr:     true,
	})
	if !table.IsLocal(addr) {
		t.Fatal("expected address added by an update to be local")
	}

	table.applyUpdate(netlink.AddrUpdate{
		LinkAddress: mustIPNet(addr),
		LinkIndex:   5,
		NewAddr:     false,
	})
	if table.IsLocal(addr) {
		t.Fatal("expected address removed by an update to no longer be local")
	}
}

func TestApplyUpdateIgnoresIPv4(t *testing.T) {
	table := New()
	table.applyUpdate(netlink.AddrUpdate{
		LinkAddress: netlinkIPv4Net(),
		LinkIndex:   5,
		NewAddr:     true,
	})
	if len(table.Enumerate()) != 0 {
		t.Fatal("expected an IPv4 address update to be ignored")
	}
}

func mustIPNet(a netaddr.Address) net.IPNet {
	b := a.Bytes()
	return net.IPNet{IP: net.IP(b[:]), Mask: net.CIDRMask(128, 128)}
}

func netlinkIPv4Net() net.IPNet {
	return net.IPNet{IP: net.IPv4(192, 0, 2, 1), Mask: net.CIDRMask(32, 32)}
}
