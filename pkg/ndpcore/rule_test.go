package ndpcore

import (
	"testing"

	"github.com/ndp6d/ndp6d/pkg/netaddr"
)

func TestRuleMatchesCIDR(t *testing.T) {
	r := Rule{CIDR: netaddr.MustParse("2001:db8::/64"), Target: RuleStatic{}}
	if !r.Matches(netaddr.MustParse("2001:db8::1")) {
		t.Error("expected address inside /64 to match")
	}
	if r.Matches(netaddr.MustParse("2001:db8:1::1")) {
		t.Error("expected address outside /64 to not match")
	}
}

func TestFirstMatchWins(t *testing.T) {
	rules := []Rule{
		{CIDR: netaddr.MustParse("2001:db8::/32"), Target: RuleStatic{}},
		{CIDR: netaddr.MustParse("2001:db8::/64"), Target: RuleInterface{Name: "eth1"}},
	}
	addr := netaddr.MustParse("2001:db8::1")
	var matched Rule
	for _, r := range rules {
		if r.Matches(addr) {
			matched = r
			break
		}
	}
	if _, ok := matched.Target.(RuleStatic); !ok {
		t.Errorf("expected the first, broader rule to win, got %T", matched.Target)
	}
}
