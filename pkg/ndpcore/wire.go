package ndpcore

import (
	"fmt"
	"net"

	"github.com/mdlayher/ndp"

	"github.com/ndp6d/ndp6d/pkg/netaddr"
)

// ICMPv6 message types this daemon speaks (RFC 4861 §4). Used by the
// AF_PACKET BPF filter program and by sendHook-based tests that classify
// a payload by its first byte instead of a full decode.
const (
	icmp6TypeNeighborSolicit = 135
	icmp6TypeNeighborAdvert  = 136
)

// icmp6NextHeader is the IPv6 next-header value for ICMPv6, used by the
// BPF filter and by handleFrame's manual IPv6 header walk.
const icmp6NextHeader = 58

// Solicit is a decoded Neighbor Solicitation.
type Solicit struct {
	Target        netaddr.Address
	SourceLinkHW  net.HardwareAddr // nil if the option was absent
	HasSourceLink bool
}

// Advert is a decoded Neighbor Advertisement.
type Advert struct {
	Target        netaddr.Address
	Router        bool
	Solicited     bool
	Override      bool
	TargetLinkHW  net.HardwareAddr
	HasTargetLink bool
}

// buildSolicit constructs an outgoing Neighbor Solicitation for taddr,
// carrying srcHW as the source link-layer address option (RFC 4861 §4.3).
func buildSolicit(taddr netaddr.Address, srcHW net.HardwareAddr) *ndp.NeighborSolicitation {
	msg := &ndp.NeighborSolicitation{TargetAddress: taddr.NetIP()}
	if len(srcHW) > 0 {
		msg.Options = []ndp.Option{&ndp.LinkLayerAddress{Direction: ndp.Source, Addr: srcHW}}
	}
	return msg
}

// buildAdvert constructs an outgoing Neighbor Advertisement (RFC 4861 §4.4).
func buildAdvert(taddr netaddr.Address, router, solicited, override bool, tgtHW net.HardwareAddr) *ndp.NeighborAdvertisement {
	msg := &ndp.NeighborAdvertisement{
		Router:        router,
		Solicited:     solicited,
		Override:      override,
		TargetAddress: taddr.NetIP(),
	}
	if len(tgtHW) > 0 {
		msg.Options = []ndp.Option{&ndp.LinkLayerAddress{Direction: ndp.Target, Addr: tgtHW}}
	}
	return msg
}

// EncodeSolicit renders an outgoing Neighbor Solicitation to wire bytes.
// The live send path never calls this: Interface.sendICMP hands the typed
// message straight to ndp.Conn.WriteTo, which lets the kernel compute the
// ICMPv6 checksum via IPV6_CHECKSUM instead of doing it in userspace.
// EncodeSolicit exists for tests: the round-trip tests and the tests that
// fabricate a raw AF_PACKET frame. The sendHook test seam marshals with
// ndp.MarshalMessage itself.
func EncodeSolicit(taddr netaddr.Address, srcHW net.HardwareAddr) []byte {
	payload, err := ndp.MarshalMessage(buildSolicit(taddr, srcHW))
	if err != nil {
		panic(fmt.Sprintf("ndpcore: marshal solicit: %v", err))
	}
	return payload
}

// EncodeAdvert renders an outgoing Neighbor Advertisement to wire bytes.
func EncodeAdvert(taddr netaddr.Address, router, solicited, override bool, tgtHW net.HardwareAddr) []byte {
	payload, err := ndp.MarshalMessage(buildAdvert(taddr, router, solicited, override, tgtHW))
	if err != nil {
		panic(fmt.Sprintf("ndpcore: marshal advert: %v", err))
	}
	return payload
}

// DecodeSolicit parses an ICMPv6 Neighbor Solicitation payload, as
// delivered by the AF_PACKET capture path once the caller has stripped
// the Ethernet and IPv6 headers.
func DecodeSolicit(payload []byte) (Solicit, error) {
	msg, err := ndp.ParseMessage(payload)
	if err != nil {
		return Solicit{}, fmt.Errorf("ndpcore: parse neighbor solicitation: %w", err)
	}
	ns, ok := msg.(*ndp.NeighborSolicitation)
	if !ok {
		return Solicit{}, fmt.Errorf("ndpcore: not a neighbor solicitation (%T)", msg)
	}
	targetBytes := ns.TargetAddress.As16()
	target, err := netaddr.FromBytes(targetBytes[:])
	if err != nil {
		return Solicit{}, err
	}
	s := Solicit{Target: target}
	if hw, ok := linkLayerAddr(ns.Options, ndp.Source); ok {
		s.SourceLinkHW = hw
		s.HasSourceLink = true
	}
	return s, nil
}

// DecodeAdvert parses an ICMPv6 Neighbor Advertisement payload.
func DecodeAdvert(payload []byte) (Advert, error) {
	msg, err := ndp.ParseMessage(payload)
	if err != nil {
		return Advert{}, fmt.Errorf("ndpcore: parse neighbor advertisement: %w", err)
	}
	na, ok := msg.(*ndp.NeighborAdvertisement)
	if !ok {
		return Advert{}, fmt.Errorf("ndpcore: not a neighbor advertisement (%T)", msg)
	}
	return advertFromMessage(na)
}

// advertFromMessage adapts a message already decoded by ndp.Conn.ReadFrom
// on the live-socket path, which never round-trips through raw bytes.
func advertFromMessage(na *ndp.NeighborAdvertisement) (Advert, error) {
	targetBytes := na.TargetAddress.As16()
	target, err := netaddr.FromBytes(targetBytes[:])
	if err != nil {
		return Advert{}, err
	}
	a := Advert{
		Target:    target,
		Router:    na.Router,
		Solicited: na.Solicited,
		Override:  na.Override,
	}
	if hw, ok := linkLayerAddr(na.Options, ndp.Target); ok {
		a.TargetLinkHW = hw
		a.HasTargetLink = true
	}
	return a, nil
}

func linkLayerAddr(opts []ndp.Option, dir ndp.Direction) (net.HardwareAddr, bool) {
	for _, o := range opts {
		lla, ok := o.(*ndp.LinkLayerAddress)
		if !ok || lla.Direction != dir {
			continue
		}
		return lla.Addr, true
	}
	return nil, false
}
