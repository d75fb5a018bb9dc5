package ndpcore

import (
	"log/slog"
	"time"

	"github.com/ndp6d/ndp6d/pkg/netaddr"
)

// SessionStatus is one of the three explicit states a Session moves
// through. The original daemon this core is descended from conflated
// "waiting" and "just created" and tracked validity through a pair of
// integer fields; naming the three states directly removes that
// ambiguity.
type SessionStatus int

const (
	// Waiting means a downstream solicit was sent and no advert has
	// come back yet.
	Waiting SessionStatus = iota
	// Valid means the target has been confirmed reachable; the daemon
	// will answer future solicits for it immediately.
	Valid
	// Invalid is a negative cache entry: a Waiting session timed out
	// and further solicits for the same target are dropped until the
	// negative-cache ttl expires.
	Invalid
)

func (s SessionStatus) String() string {
	switch s {
	case Waiting:
		return "waiting"
	case Valid:
		return "valid"
	case Invalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// invalidTTL is the negative-cache lifetime once a Waiting session times
// out. This is deliberately the same for every proxy; shortening it
// changes the dedup guarantee that a second solicit within this window
// produces no downstream traffic.
const invalidTTL = 30 * time.Second

// sessionKey uniquely identifies an in-flight session for a given proxy.
type sessionKey struct {
	taddr [16]byte
	saddr [16]byte
}

func keyFor(taddr, saddr netaddr.Address) sessionKey {
	return sessionKey{taddr: taddr.Bytes(), saddr: saddr.Bytes()}
}

// Session tracks resolution state for one (proxy, taddr, saddr) triple.
type Session struct {
	proxy  *Proxy
	Saddr  netaddr.Address
	Daddr  netaddr.Address
	Taddr  netaddr.Address
	Status SessionStatus
	ttl    time.Duration

	// ifaces are the downstream interfaces this session is probing (or
	// probed, once Valid); a Static session has none. Interfaces are looked up by name through the
	// owning Registry rather than held as a direct pointer, matching
	// the weak-reference discipline the rest of the core follows.
	ifaces []string
}

func newSession(pr *Proxy, saddr, daddr, taddr netaddr.Address) *Session {
	return &Session{
		proxy:  pr,
		Saddr:  saddr,
		Daddr:  daddr,
		Taddr:  taddr,
		Status: Waiting,
		ttl:    pr.timeout(),
	}
}

// addIface records ifaceName as a downstream probe target, ignoring
// duplicates.
func (s *Session) addIface(ifaceName string) {
	for _, n := range s.ifaces {
		if n == ifaceName {
			return
		}
	}
	s.ifaces = append(s.ifaces, ifaceName)
}

// sendSolicit broadcasts a downstream Solicit on every recorded
// interface, mirroring session::send_solicit's fan-out to every member
// of _ifaces.
func (s *Session) sendSolicit(reg *Registry) {
	for _, name := range s.ifaces {
		ifc := reg.Interface(name)
		if ifc == nil {
			slog.Warn("ndpcore: session solicit target interface not found", "iface", name, "taddr", s.Taddr)
			continue
		}
		if err := ifc.WriteSolicit(s.Taddr); err != nil {
			slog.Warn("ndpcore: downstream solicit failed", "iface", name, "taddr", s.Taddr, "err", err)
		}
	}
}

// age subtracts elapsed from the session's ttl and applies the state
// transition table from the session-lifecycle diagram. It returns true
// if the session should be removed from the proxy's table.
func (s *Session) age(elapsed time.Duration) (remove bool) {
	s.ttl -= elapsed
	if s.ttl > 0 {
		return false
	}
	switch s.Status {
	case Waiting:
		slog.Debug("ndpcore: session timed out, now invalid", "taddr", s.Taddr, "saddr", s.Saddr)
		s.Status = Invalid
		s.ttl = invalidTTL
		return false
	default: // Valid or Invalid
		return true
	}
}
