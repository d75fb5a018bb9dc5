package ndpcore

import (
	"fmt"
	"net"

	"github.com/ndp6d/ndp6d/pkg/netaddr"
	"github.com/vishvananda/netlink"
)

// ndpAutoviaRTProto tags routes this daemon installs for the autovia
// capability with a private protocol id (the 8-bit RTPROT space above
// RTPROT_STATIC is reserved for exactly this kind of daemon-owned
// marking) so they can be told apart from operator-installed routes and
// swept independently.
const ndpAutoviaRTProto = 200

// ResolveAuto implements the "Auto" rule target: ask the host routing
// table which interface it would use to reach taddr, and use that as
// the downstream interface.
func ResolveAuto(taddr netaddr.Address) (string, error) {
	ip := net.IP(func() []byte { b := taddr.Bytes(); return b[:] }())
	routes, err := netlink.RouteGet(ip)
	if err != nil {
		return "", fmt.Errorf("ndpcore: route lookup for %s: %w", taddr, err)
	}
	if len(routes) == 0 {
		return "", fmt.Errorf("ndpcore: no route to %s", taddr)
	}
	link, err := netlink.LinkByIndex(routes[0].LinkIndex)
	if err != nil {
		return "", fmt.Errorf("ndpcore: resolve link index %d: %w", routes[0].LinkIndex, err)
	}
	return link.Attrs().Name, nil
}

// InstallAutovia installs a /128 host route for taddr via ifaceName, so
// that return traffic to the resolved target uses the interface it was
// actually confirmed reachable on rather than whatever the host's
// default routing would otherwise pick.
func InstallAutovia(taddr netaddr.Address, ifaceName string) error {
	link, err := netlink.LinkByName(ifaceName)
	if err != nil {
		return fmt.Errorf("ndpcore: autovia link %s: %w", ifaceName, err)
	}
	ip := net.IP(func() []byte { b := taddr.Bytes(); return b[:] }())
	route := &netlink.Route{
		LinkIndex: link.Attrs().Index,
		Dst:       &net.IPNet{IP: ip, Mask: net.CIDRMask(128, 128)},
		Protocol:  ndpAutoviaRTProto,
	}
	if err := netlink.RouteReplace(route); err != nil {
		return fmt.Errorf("ndpcore: install autovia route for %s via %s: %w", taddr, ifaceName, err)
	}
	return nil
}

// SweepAutovia removes every autovia route this daemon installed, called
// on shutdown so a restart starts from a clean slate.
func SweepAutovia() error {
	routes, err := netlink.RouteListFiltered(netlink.FAMILY_V6, &netlink.Route{Protocol: ndpAutoviaRTProto}, netlink.RT_FILTER_PROTOCOL)
	if err != nil {
		return fmt.Errorf("ndpcore: list autovia routes: %w", err)
	}
	var firstErr error
	for _, r := range routes {
		route := r
		if err := netlink.RouteDel(&route); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
