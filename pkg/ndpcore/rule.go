package ndpcore

import "github.com/ndp6d/ndp6d/pkg/netaddr"

// RuleTarget selects how a matched Rule resolves a downstream interface.
type RuleTarget interface {
	isRuleTarget()
}

// RuleStatic answers a solicitation directly from the daemon, without a
// downstream verification round-trip.
type RuleStatic struct{}

func (RuleStatic) isRuleTarget() {}

// RuleInterface forwards a solicitation downstream on a named interface
// and waits for an advertisement before answering upstream.
type RuleInterface struct {
	Name string
}

func (RuleInterface) isRuleTarget() {}

// RuleAuto resolves the downstream interface at runtime via the host
// routing table, then behaves like RuleInterface.
type RuleAuto struct{}

func (RuleAuto) isRuleTarget() {}

// Rule binds a CIDR to a resolution strategy.
type Rule struct {
	CIDR    netaddr.Address
	Target  RuleTarget
	Autovia bool
}

// Matches reports whether addr falls within the rule's CIDR.
func (r Rule) Matches(addr netaddr.Address) bool {
	return r.CIDR.Contains(addr)
}
