// Package localaddr snapshots the host's own IPv6 addresses so the NDP
// proxy core can short-circuit a solicitation for an address the host
// itself already owns (spec §4.B).
package localaddr

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ndp6d/ndp6d/pkg/netaddr"
	"github.com/vishvananda/netlink"
)

// pollFallback is how often the table refreshes itself if the netlink
// subscription could not be opened (e.g. no CAP_NET_ADMIN).
const pollFallback = 5 * time.Second

// Entry pairs a host-owned address with the interface index it lives on.
type Entry struct {
	Addr    netaddr.Address
	IfIndex int
}

// Table is a read-only-shared snapshot of host-owned IPv6 addresses,
// refreshed either by netlink push notifications or, failing that, by
// periodic polling.
type Table struct {
	mu      sync.RWMutex
	entries map[[16]byte]int // address bytes -> ifindex
}

// New creates an empty table. Call Start to begin refreshing it.
func New() *Table {
	return &Table{entries: make(map[[16]byte]int)}
}

// IsLocal reports whether addr is currently owned by any local interface.
func (t *Table) IsLocal(addr netaddr.Address) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.entries[addr.Bytes()]
	return ok
}

// IndexFor returns the interface index owning addr, if any.
func (t *Table) IndexFor(addr netaddr.Address) (int, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	idx, ok := t.entries[addr.Bytes()]
	return idx, ok
}

// Seed installs entries directly, bypassing netlink. Tests use this to
// populate a table without root or a real network namespace.
func (t *Table) Seed(entries ...Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range entries {
		t.entries[e.Addr.Bytes()] = e.IfIndex
	}
}

// Enumerate returns a snapshot copy of every known (address, ifindex) pair.
func (t *Table) Enumerate() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Entry, 0, len(t.entries))
	for bits, idx := range t.entries {
		a, _ := netaddr.FromBytes(bits[:])
		out = append(out, Entry{Addr: a, IfIndex: idx})
	}
	return out
}

// Start performs an initial full sync and then keeps the table current
// until ctx is cancelled, preferring a netlink address subscription and
// falling back to periodic polling if the subscription can't be opened.
func (t *Table) Start(ctx context.Context) {
	t.refresh()

	updates := make(chan netlink.AddrUpdate, 64)
	done := make(chan struct{})
	if err := netlink.AddrSubscribeWithOptions(updates, done, netlink.AddrSubscribeOptions{
		ErrorCallback: func(err error) {
			slog.Debug("localaddr: netlink subscription error", "err", err)
		},
	}); err != nil {
		slog.Warn("localaddr: netlink address subscription unavailable, polling instead", "err", err)
		go t.pollLoop(ctx)
		return
	}

	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case u, ok := <-updates:
				if !ok {
					return
				}
				t.applyUpdate(u)
			}
		}
	}()
}

func (t *Table) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(pollFallback)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.refresh()
		}
	}
}

func (t *Table) applyUpdate(u netlink.AddrUpdate) {
	ip := u.LinkAddress.IP
	if ip.To4() != nil {
		return // IPv4 addresses never appear as NDP targets
	}
	addr, err := netaddr.FromBytes(ip.To16())
	if err != nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if u.NewAddr {
		t.entries[addr.Bytes()] = u.LinkIndex
	} else {
		delete(t.entries, addr.Bytes())
	}
}

func (t *Table) refresh() {
	addrs, err := netlink.AddrList(nil, netlink.FAMILY_V6)
	if err != nil {
		slog.Warn("localaddr: failed to list addresses", "err", err)
		return
	}

	next := make(map[[16]byte]int, len(addrs))
	for _, a := range addrs {
		addr, err := netaddr.FromBytes(a.IP.To16())
		if err != nil {
			continue
		}
		next[addr.Bytes()] = a.LinkIndex
	}

	t.mu.Lock()
	t.entries = next
	t.mu.Unlock()
}
