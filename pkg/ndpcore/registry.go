package ndpcore

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/ndp6d/ndp6d/pkg/localaddr"
	"github.com/ndp6d/ndp6d/pkg/netaddr"
)

// Registry is the per-daemon context object that owns every live
// Interface and Proxy. It replaces the process-wide globals the
// original design used with something a test can instantiate in
// isolation.
type Registry struct {
	mu         sync.Mutex
	ifaces     map[string]*Interface
	ifacesByID map[int]*Interface
	proxies    []*Proxy
	localTable *localaddr.Table
}

// NewRegistry builds an empty Registry backed by table for local-address
// shortcutting.
func NewRegistry(table *localaddr.Table) *Registry {
	return &Registry{
		ifaces:     make(map[string]*Interface),
		ifacesByID: make(map[int]*Interface),
		localTable: table,
	}
}

// LocalTable returns the registry's local-address table.
func (r *Registry) LocalTable() *localaddr.Table {
	return r.localTable
}

// Interface returns the named interface, or nil if it was never created.
func (r *Registry) Interface(name string) *Interface {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ifaces[name]
}

// GetOrCreateInterface returns the existing Interface for name, or opens
// a new one, resolving its kernel index along the way. Per the interface
// invariant, at most one Interface exists per (index, name) for the
// lifetime of the Registry.
func (r *Registry) GetOrCreateInterface(name string) (*Interface, error) {
	r.mu.Lock()
	if ifc, ok := r.ifaces[name]; ok {
		r.mu.Unlock()
		return ifc, nil
	}
	r.mu.Unlock()

	netIfc, err := net.InterfaceByName(name)
	if err != nil {
		return nil, fmt.Errorf("ndpcore: interface %s: %w", name, err)
	}

	ifc := newInterface(netIfc.Index, name)
	if err := ifc.Open(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.ifaces[name] = ifc
	r.ifacesByID[ifc.Index] = ifc
	r.mu.Unlock()
	return ifc, nil
}

// AddProxy registers pr and wires its serves/parents relationships into
// the interfaces it touches.
func (r *Registry) AddProxy(pr *Proxy) {
	r.mu.Lock()
	r.proxies = append(r.proxies, pr)
	r.mu.Unlock()

	if pr.Upstream != nil {
		pr.Upstream.serves = append(pr.Upstream.serves, pr)
	}
	for _, rule := range pr.Rules {
		if ri, ok := rule.Target.(RuleInterface); ok {
			r.registerParent(pr, ri.Name)
		}
	}
}

// registerParent records pr as a parent of the named downstream
// interface, used when an advert arrives to find which proxies care
// about it. It is idempotent and also used at Auto-rule resolution
// time, when the downstream interface isn't known until runtime.
func (r *Registry) registerParent(pr *Proxy, ifaceName string) {
	ifc, err := r.GetOrCreateInterface(ifaceName)
	if err != nil {
		slog.Warn("ndpcore: cannot bind rule to interface", "iface", ifaceName, "err", err)
		return
	}
	for _, p := range ifc.parents {
		if p == pr {
			return
		}
	}
	ifc.parents = append(ifc.parents, pr)
}

// Interfaces returns a snapshot of every interface currently open.
func (r *Registry) Interfaces() []*Interface {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Interface, 0, len(r.ifaces))
	for _, ifc := range r.ifaces {
		out = append(out, ifc)
	}
	return out
}

// Proxies returns a snapshot of every configured proxy.
func (r *Registry) Proxies() []*Proxy {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Proxy, len(r.proxies))
	copy(out, r.proxies)
	return out
}

// CloseAll tears down every open interface, restoring promisc/allmulti.
func (r *Registry) CloseAll() {
	for _, ifc := range r.Interfaces() {
		if err := ifc.Close(); err != nil {
			slog.Warn("ndpcore: error closing interface", "iface", ifc.Name, "err", err)
		}
	}
}

// UpdateAll ages every session on every proxy by elapsed, per the
// event loop's periodic tick (spec §4.G update_all).
func (r *Registry) UpdateAll(elapsed time.Duration) {
	for _, pr := range r.Proxies() {
		pr.age(elapsed)
	}
}

// handleLocal implements the packet-handler's first step: if the
// solicited target is an address the host itself owns on one of a
// serving proxy's rule interfaces, answer immediately without ever
// touching a downstream session.
func (r *Registry) handleLocal(ifc *Interface, saddr, taddr netaddr.Address) bool {
	idx, ok := r.localTable.IndexFor(taddr)
	if !ok {
		return false
	}
	for _, pr := range ifc.serves {
		for _, rule := range pr.Rules {
			ri, ok := rule.Target.(RuleInterface)
			if !ok || !rule.Matches(taddr) {
				continue
			}
			dst := r.Interface(ri.Name)
			if dst != nil && dst.Index == idx {
				if err := ifc.WriteAdvert(saddr, taddr, false, true); err != nil {
					slog.Warn("ndpcore: local-shortcut advert failed", "iface", ifc.Name, "err", err)
				}
				return true
			}
		}
	}
	return false
}

// handleReverseAdvert implements the opt-in reverse-path priming
// described in the design notes: a parent proxy whose own upstream
// isn't bound gets a synthetic, session-less advert sent back so a
// peer that has never been solicited itself still learns reachability.
func (r *Registry) handleReverseAdvert(ifc *Interface, saddr, taddr netaddr.Address) {
	for _, pr := range ifc.parents {
		if pr.Upstream != nil || !pr.Autowire {
			continue
		}
		for _, rule := range pr.Rules {
			ri, ok := rule.Target.(RuleInterface)
			if !ok || ri.Name != ifc.Name || !rule.Matches(taddr) {
				continue
			}
			pr.HandleStatelessAdvert(ifc, saddr, taddr)
		}
	}
}

// dispatchSolicit hands an upstream solicit to every proxy the
// receiving interface serves.
func (r *Registry) dispatchSolicit(ifc *Interface, saddr, daddr, taddr netaddr.Address) {
	handled := false
	for _, pr := range ifc.serves {
		if pr.HandleSolicit(r, ifc, saddr, daddr, taddr) {
			handled = true
		}
	}
	if !handled {
		slog.Debug("ndpcore: solicit unhandled by any proxy", "iface", ifc.Name, "taddr", taddr)
	}
}

// dispatchAdvert hands a downstream advert to every parent proxy with a
// rule matching taddr on the interface it arrived on.
func (r *Registry) dispatchAdvert(ifc *Interface, saddr, taddr netaddr.Address) {
	for _, pr := range ifc.parents {
		for _, rule := range pr.Rules {
			ri, ok := rule.Target.(RuleInterface)
			if !ok || ri.Name != ifc.Name || !rule.Matches(taddr) {
				continue
			}
			pr.HandleAdvert(r, saddr, taddr, ifc.Name, rule.Autovia)
		}
	}
}
