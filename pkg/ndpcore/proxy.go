package ndpcore

import (
	"log/slog"
	"sync"
	"time"

	"github.com/ndp6d/ndp6d/pkg/netaddr"
)

const (
	defaultTTLMs     = 30000
	defaultTimeoutMs = 500
)

// Proxy is a per-upstream-interface policy engine: it holds the rules
// that decide how a solicited target resolves, and owns every in-flight
// Session for that upstream.
type Proxy struct {
	// Upstream is the interface solicits arrive on and adverts are sent
	// back out of. It may be nil for a proxy that only exists to prime
	// reverse-path adverts (see Autowire).
	Upstream  *Interface
	Rules     []Rule
	Router    bool
	TTLMs     int
	TimeoutMs int
	// Autowire opts this proxy into the reverse-advert priming path
	// described in the design notes; it only takes effect when Upstream
	// is nil.
	Autowire bool

	mu       sync.Mutex
	sessions map[sessionKey]*Session
}

// NewProxy builds a Proxy with the spec's documented defaults.
func NewProxy(upstream *Interface) *Proxy {
	return &Proxy{
		Upstream:  upstream,
		Router:    true,
		TTLMs:     defaultTTLMs,
		TimeoutMs: defaultTimeoutMs,
		sessions:  make(map[sessionKey]*Session),
	}
}

func (p *Proxy) ttl() time.Duration     { return time.Duration(p.TTLMs) * time.Millisecond }
func (p *Proxy) timeout() time.Duration { return time.Duration(p.TimeoutMs) * time.Millisecond }

// matchRule returns the first rule (in declaration order) whose CIDR
// contains taddr, per the pinned "first match wins, never reordered"
// behavior.
func (p *Proxy) matchRule(taddr netaddr.Address) (Rule, bool) {
	for _, r := range p.Rules {
		if r.Matches(taddr) {
			return r, true
		}
	}
	return Rule{}, false
}

// HandleSolicit implements the resolution state table from the session
// design: dedup against an existing session, or create one per the
// matching rule's target kind. Returns true if some rule or existing
// session accounted for the solicit; dispatchSolicit still offers the
// solicit to every serving proxy and uses the result only to log one
// that no proxy handled.
func (p *Proxy) HandleSolicit(reg *Registry, upstream *Interface, saddr, daddr, taddr netaddr.Address) bool {
	p.mu.Lock()
	key := keyFor(taddr, saddr)
	if s, ok := p.sessions[key]; ok {
		status := s.Status
		if status == Valid {
			s.ttl = p.ttl()
		}
		p.mu.Unlock()
		switch status {
		case Valid:
			if err := upstream.WriteAdvert(saddr, taddr, p.Router, true); err != nil {
				slog.Warn("ndpcore: advert write failed", "iface", upstream.Name, "taddr", taddr, "err", err)
			}
		case Waiting:
			// Dedup: the in-flight downstream solicit will resolve this.
		case Invalid:
			// Negative cache: drop silently.
		}
		return true
	}
	p.mu.Unlock()

	rule, ok := p.matchRule(taddr)
	if !ok {
		return false
	}

	switch target := rule.Target.(type) {
	case RuleStatic:
		s := newSession(p, saddr, daddr, taddr)
		s.Status = Valid
		s.ttl = p.ttl()
		p.putSession(key, s)
		if err := upstream.WriteAdvert(saddr, taddr, p.Router, true); err != nil {
			slog.Warn("ndpcore: static advert write failed", "iface", upstream.Name, "taddr", taddr, "err", err)
		}

	case RuleInterface:
		s := newSession(p, saddr, daddr, taddr)
		s.addIface(target.Name)
		p.putSession(key, s)
		s.sendSolicit(reg)

	case RuleAuto:
		ifaceName, err := ResolveAuto(taddr)
		if err != nil {
			slog.Warn("ndpcore: auto rule resolution failed", "taddr", taddr, "err", err)
			return false
		}
		reg.registerParent(p, ifaceName)
		s := newSession(p, saddr, daddr, taddr)
		s.addIface(ifaceName)
		p.putSession(key, s)
		s.sendSolicit(reg)
	}
	return true
}

func (p *Proxy) putSession(key sessionKey, s *Session) {
	p.mu.Lock()
	p.sessions[key] = s
	p.mu.Unlock()
}

// HandleAdvert resolves the Waiting session matching taddr, marks it
// Valid, and answers upstream. If autovia is set it also tries to
// install a host route for the return path.
func (p *Proxy) HandleAdvert(reg *Registry, saddr, taddr netaddr.Address, ifaceName string, autovia bool) {
	p.mu.Lock()
	var found *Session
	for _, s := range p.sessions {
		if s.Taddr.Equal(taddr) && s.Status == Waiting {
			s.Status = Valid
			s.ttl = p.ttl()
			found = s
			break
		}
	}
	p.mu.Unlock()

	if found == nil {
		return
	}
	if p.Upstream == nil {
		slog.Warn("ndpcore: advert resolved but proxy has no upstream", "taddr", taddr)
		return
	}
	if err := p.Upstream.WriteAdvert(found.Saddr, taddr, p.Router, true); err != nil {
		slog.Warn("ndpcore: upstream advert write failed", "iface", p.Upstream.Name, "taddr", taddr, "err", err)
	}
	if autovia {
		if err := InstallAutovia(taddr, ifaceName); err != nil {
			slog.Warn("ndpcore: autovia route install failed", "taddr", taddr, "iface", ifaceName, "err", err)
		}
	}
}

// HandleStatelessAdvert emits an unsolicited advert with no session
// bookkeeping, used by the reverse-path priming handler.
func (p *Proxy) HandleStatelessAdvert(ifc *Interface, saddr, taddr netaddr.Address) {
	if err := ifc.WriteAdvert(saddr, taddr, false, false); err != nil {
		slog.Warn("ndpcore: stateless advert write failed", "iface", ifc.Name, "taddr", taddr, "err", err)
	}
}

// age advances every session's ttl clock by elapsed and removes any
// session the transition table says should be destroyed.
func (p *Proxy) age(elapsed time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, s := range p.sessions {
		if s.age(elapsed) {
			delete(p.sessions, key)
		}
	}
}

// SessionCount reports how many sessions are currently tracked, split by
// status, for the metrics collector.
func (p *Proxy) SessionCount() (waiting, valid, invalid int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.sessions {
		switch s.Status {
		case Waiting:
			waiting++
		case Valid:
			valid++
		case Invalid:
			invalid++
		}
	}
	return
}
