package ndpcore

import (
	"testing"
	"time"

	"github.com/ndp6d/ndp6d/pkg/netaddr"
)

func testAddrs() (saddr, daddr, taddr netaddr.Address) {
	return netaddr.MustParse("2001:db8::1"),
		netaddr.MustParse("2001:db8::2"),
		netaddr.MustParse("2001:db8::3")
}

func TestSessionStartsWaiting(t *testing.T) {
	pr := NewProxy(nil)
	saddr, daddr, taddr := testAddrs()
	s := newSession(pr, saddr, daddr, taddr)
	if s.Status != Waiting {
		t.Fatalf("Status = %v, want Waiting", s.Status)
	}
	if s.ttl != pr.timeout() {
		t.Errorf("ttl = %v, want %v", s.ttl, pr.timeout())
	}
}

func TestSessionWaitingTimesOutToInvalid(t *testing.T) {
	pr := NewProxy(nil)
	saddr, daddr, taddr := testAddrs()
	s := newSession(pr, saddr, daddr, taddr)

	remove := s.age(pr.timeout() + time.Millisecond)
	if remove {
		t.Fatal("a Waiting session timing out should not be removed, it becomes Invalid")
	}
	if s.Status != Invalid {
		t.Fatalf("Status = %v, want Invalid", s.Status)
	}
	if s.ttl != invalidTTL {
		t.Errorf("ttl = %v, want invalidTTL %v", s.ttl, invalidTTL)
	}
}

func TestSessionInvalidExpiresAndIsRemoved(t *testing.T) {
	pr := NewProxy(nil)
	saddr, daddr, taddr := testAddrs()
	s := newSession(pr, saddr, daddr, taddr)
	s.age(pr.timeout() + time.Millisecond) // Waiting -> Invalid

	if remove := s.age(invalidTTL + time.Millisecond); !remove {
		t.Fatal("expected an expired Invalid session to be removed")
	}
}

func TestSessionValidExpiresAndIsRemoved(t *testing.T) {
	pr := NewProxy(nil)
	saddr, daddr, taddr := testAddrs()
	s := newSession(pr, saddr, daddr, taddr)
	s.Status = Valid
	s.ttl = pr.ttl()

	if remove := s.age(pr.ttl() + time.Millisecond); !remove {
		t.Fatal("expected an expired Valid session to be removed")
	}
}

func TestSessionDoesNotAgeOutEarly(t *testing.T) {
	pr := NewProxy(nil)
	saddr, daddr, taddr := testAddrs()
	s := newSession(pr, saddr, daddr, taddr)

	if remove := s.age(1 * time.Millisecond); remove {
		t.Fatal("a fresh session should not be removed by a small tick")
	}
	if s.Status != Waiting {
		t.Fatalf("Status = %v, want still Waiting", s.Status)
	}
}

func TestAddIfaceDedups(t *testing.T) {
	pr := NewProxy(nil)
	saddr, daddr, taddr := testAddrs()
	s := newSession(pr, saddr, daddr, taddr)
	s.addIface("eth1")
	s.addIface("eth1")
	s.addIface("eth2")
	if len(s.ifaces) != 2 {
		t.Fatalf("ifaces = %v, want 2 distinct entries", s.ifaces)
	}
}

func TestKeyForDistinguishesBySaddr(t *testing.T) {
	_, _, taddr := testAddrs()
	a := netaddr.MustParse("2001:db8::10")
	b := netaddr.MustParse("2001:db8::20")
	if keyFor(taddr, a) == keyFor(taddr, b) {
		t.Fatal("keys for different solicitors should differ")
	}
}
