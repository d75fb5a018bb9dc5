package ndpcore

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"

	"github.com/mdlayher/ndp"
	"github.com/ndp6d/ndp6d/pkg/netaddr"
	"github.com/vishvananda/netlink"
	"golang.org/x/net/ipv6"
	"golang.org/x/sys/unix"
)

// maxDrainPerCall bounds how many packets a single readable-fd event, or
// a single icmpMsgs drain, processes before yielding back to the event
// loop, so one noisy interface cannot starve the others.
const maxDrainPerCall = 64

// icmpQueueDepth sizes the channel the background ICMPv6 reader goroutine
// hands decoded Neighbor Advertisements to the event loop through.
const icmpQueueDepth = 64

// ethHeaderLen is the Ethernet header size preceding the IPv6 header on
// the raw packet socket.
const ethHeaderLen = 14

// ip6HeaderLen is the fixed IPv6 header size.
const ip6HeaderLen = 40

// Interface owns the two raw sockets described in the wire spec for one
// NIC: an AF_PACKET socket (BPF-filtered to Neighbor Solicitations) used
// to capture upstream traffic, and an ICMPv6 raw socket (filtered to
// Neighbor Advertisements) used to both send and receive downstream.
// A given Interface may serve as somebody's upstream and somebody else's
// downstream at once, so both sockets are always opened together.
type Interface struct {
	Index  int
	Name   string
	HWAddr net.HardwareAddr

	// linkLocal records the link-local address ndp.Listen bound the ICMPv6
	// socket to; outgoing solicits and adverts leave from that address.
	linkLocal netaddr.Address

	packetFD int // -1 once closed
	icmp     *ndp.Conn

	// icmpMsgs receives Neighbor Advertisements decoded by readICMPLoop,
	// the background goroutine ndp.Conn's blocking ReadFrom requires.
	// DrainICMP, called from the single event-loop goroutine, is the only
	// reader, which keeps every Registry/Proxy/Interface mutation on one
	// goroutine despite the socket read happening on another.
	icmpMsgs chan icmpDatagram

	prevPromisc  bool
	prevAllmulti bool

	// serves holds the proxies whose upstream is this interface;
	// parents holds the proxies that use this interface as a rule's
	// downstream target. Both are populated by the Registry as proxies
	// are configured and consulted, never owned by the Interface.
	serves  []*Proxy
	parents []*Proxy

	solicitsOut atomic.Uint64
	solicitsIn  atomic.Uint64
	advertsOut  atomic.Uint64
	advertsIn   atomic.Uint64

	// sendHook, when set, replaces sendICMP's real socket write. Tests
	// use it to capture outgoing NS/NA payloads without opening raw
	// sockets or holding CAP_NET_RAW.
	sendHook func(payload []byte, dst netaddr.Address) error
}

// Counters returns a snapshot of this interface's NS/NA traffic counts,
// for the metrics collector.
func (ifc *Interface) Counters() (solicitsOut, solicitsIn, advertsOut, advertsIn uint64) {
	return ifc.solicitsOut.Load(), ifc.solicitsIn.Load(), ifc.advertsOut.Load(), ifc.advertsIn.Load()
}

func newInterface(index int, name string) *Interface {
	return &Interface{Index: index, Name: name, packetFD: -1}
}

// Open resolves the interface's hardware and link-local addresses, opens
// both raw sockets, and flips promisc/allmulti on, remembering their
// prior state for restoration in Close.
func (ifc *Interface) Open() error {
	link, err := netlink.LinkByName(ifc.Name)
	if err != nil {
		return fmt.Errorf("ndpcore: link %s: %w", ifc.Name, err)
	}
	attrs := link.Attrs()
	ifc.HWAddr = attrs.HardwareAddr
	ifc.prevPromisc = attrs.RawFlags&unix.IFF_PROMISC != 0
	ifc.prevAllmulti = attrs.RawFlags&unix.IFF_ALLMULTI != 0

	if err := ifc.openPacketSocket(); err != nil {
		return err
	}
	if err := ifc.openICMPSocket(); err != nil {
		ifc.closePacketSocket()
		return err
	}

	if err := netlink.SetPromiscOn(link); err != nil {
		slog.Warn("ndpcore: failed to enable promisc", "iface", ifc.Name, "err", err)
	}
	if err := netlink.LinkSetAllmulticastOn(link); err != nil {
		slog.Warn("ndpcore: failed to enable allmulti", "iface", ifc.Name, "err", err)
	}
	return nil
}

func (ifc *Interface) openPacketSocket() error {
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW|unix.SOCK_NONBLOCK, int(htons(unix.ETH_P_IPV6)))
	if err != nil {
		return fmt.Errorf("ndpcore: AF_PACKET socket: %w", err)
	}
	addr := &unix.SockaddrLinklayer{
		Protocol: htons(unix.ETH_P_IPV6),
		Ifindex:  ifc.Index,
	}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return fmt.Errorf("ndpcore: bind packet socket to %s: %w", ifc.Name, err)
	}
	prog, err := nsFilterProgram()
	if err != nil {
		unix.Close(fd)
		return fmt.Errorf("ndpcore: assemble BPF filter: %w", err)
	}
	if err := attachFilter(fd, prog); err != nil {
		unix.Close(fd)
		return fmt.Errorf("ndpcore: attach BPF filter on %s: %w", ifc.Name, err)
	}
	ifc.packetFD = fd
	return nil
}

func (ifc *Interface) closePacketSocket() {
	if ifc.packetFD >= 0 {
		unix.Close(ifc.packetFD)
		ifc.packetFD = -1
	}
}

// openICMPSocket opens the ICMPv6 socket via github.com/mdlayher/ndp,
// which owns the raw AF_INET6/SOCK_RAW/IPPROTO_ICMPV6 socket, the join to
// the interface's solicited-node multicast groups, and the hop-limit-255
// requirement of RFC 4861 §7.1. ndp.Listen resolves the interface's
// link-local address itself, which becomes ifc.linkLocal.
func (ifc *Interface) openICMPSocket() error {
	netIfc, err := net.InterfaceByName(ifc.Name)
	if err != nil {
		return fmt.Errorf("ndpcore: interface lookup %s: %w", ifc.Name, err)
	}
	conn, ll, err := ndp.Listen(netIfc, ndp.LinkLocal)
	if err != nil {
		return fmt.Errorf("ndpcore: ndp listen on %s: %w", ifc.Name, err)
	}

	filter := ipv6.ICMPFilter{}
	filter.SetAll(true)
	filter.Accept(ipv6.ICMPTypeNeighborAdvertisement)
	if err := conn.SetICMPFilter(&filter); err != nil {
		slog.Warn("ndpcore: set ICMP filter failed", "iface", ifc.Name, "err", err)
	}

	llBytes := ll.As16()
	if addr, err := netaddr.FromBytes(llBytes[:]); err == nil {
		ifc.linkLocal = addr
	} else {
		slog.Warn("ndpcore: link-local address unusable", "iface", ifc.Name, "err", err)
	}

	ifc.icmp = conn
	ifc.icmpMsgs = make(chan icmpDatagram, icmpQueueDepth)
	go ifc.readICMPLoop()
	return nil
}

// icmpDatagram is one decoded Neighbor Advertisement handed from
// readICMPLoop to the event loop.
type icmpDatagram struct {
	saddr netaddr.Address
	adv   Advert
}

// readICMPLoop blocks on ndp.Conn.ReadFrom until it errors, which happens
// once Close tears the socket down. mdlayher/ndp exposes no file
// descriptor for ndp.Conn, so unlike the AF_PACKET side this can't join
// the unix.Poll set directly; the channel hand-off is what keeps every
// registry and session mutation on the event-loop goroutine.
func (ifc *Interface) readICMPLoop() {
	for {
		msg, _, src, err := ifc.icmp.ReadFrom()
		if err != nil {
			return
		}
		na, ok := msg.(*ndp.NeighborAdvertisement)
		if !ok {
			continue
		}
		adv, err := advertFromMessage(na)
		if err != nil {
			continue
		}
		srcBytes := src.As16()
		saddr, err := netaddr.FromBytes(srcBytes[:])
		if err != nil {
			continue
		}
		select {
		case ifc.icmpMsgs <- icmpDatagram{saddr: saddr, adv: adv}:
		default:
			slog.Debug("ndpcore: icmp queue full, dropping advertisement", "iface", ifc.Name)
		}
	}
}

// Close restores promisc/allmulti to their pre-Open values and releases
// both sockets.
func (ifc *Interface) Close() error {
	ifc.closePacketSocket()
	if ifc.icmp != nil {
		ifc.icmp.Close()
		ifc.icmp = nil
	}

	link, err := netlink.LinkByName(ifc.Name)
	if err != nil {
		return fmt.Errorf("ndpcore: link %s on close: %w", ifc.Name, err)
	}
	if !ifc.prevPromisc {
		if err := netlink.SetPromiscOff(link); err != nil {
			slog.Warn("ndpcore: failed to restore promisc", "iface", ifc.Name, "err", err)
		}
	}
	if !ifc.prevAllmulti {
		if err := netlink.LinkSetAllmulticastOff(link); err != nil {
			slog.Warn("ndpcore: failed to restore allmulti", "iface", ifc.Name, "err", err)
		}
	}
	return nil
}

// PacketFD exposes the raw packet socket fd for the event loop's poll set.
func (ifc *Interface) PacketFD() int { return ifc.packetFD }

// WriteSolicit sends a Neighbor Solicitation for taddr to taddr's
// solicited-node multicast group on this interface.
func (ifc *Interface) WriteSolicit(taddr netaddr.Address) error {
	dst := netaddr.SolicitedNode(taddr)
	msg := buildSolicit(taddr, ifc.HWAddr)
	ifc.solicitsOut.Add(1)
	return ifc.sendICMP(msg, dst)
}

// WriteAdvert sends a Neighbor Advertisement for taddr to dst (typically
// unicast back to the original solicitor).
func (ifc *Interface) WriteAdvert(dst, taddr netaddr.Address, router, solicited bool) error {
	msg := buildAdvert(taddr, router, solicited, true, ifc.HWAddr)
	ifc.advertsOut.Add(1)
	return ifc.sendICMP(msg, dst)
}

// sendICMP hands msg to the ICMPv6 socket. When sendHook is set (tests),
// msg is marshaled to bytes so the hook can keep sniffing the wire type
// byte the way it always has, without touching a real socket.
func (ifc *Interface) sendICMP(msg ndp.Message, dst netaddr.Address) error {
	if ifc.sendHook != nil {
		payload, err := ndp.MarshalMessage(msg)
		if err != nil {
			return fmt.Errorf("ndpcore: marshal for send hook: %w", err)
		}
		return ifc.sendHook(payload, dst)
	}
	if ifc.icmp == nil {
		return fmt.Errorf("ndpcore: icmp6 socket not open on %s", ifc.Name)
	}
	return ifc.icmp.WriteTo(msg, nil, dst.NetIP())
}

// DrainPacket reads NS frames off the AF_PACKET socket until it would
// block or maxDrainPerCall is reached, dispatching each to handle.
func (ifc *Interface) DrainPacket(reg *Registry) {
	buf := make([]byte, 1500)
	for i := 0; i < maxDrainPerCall; i++ {
		n, _, err := unix.Recvfrom(ifc.packetFD, buf, 0)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return
			}
			slog.Debug("ndpcore: packet socket read error", "iface", ifc.Name, "err", err)
			return
		}
		ifc.handleFrame(reg, buf[:n])
	}
}

func (ifc *Interface) handleFrame(reg *Registry, frame []byte) {
	if len(frame) < ethHeaderLen+ip6HeaderLen {
		return
	}
	ip6 := frame[ethHeaderLen:]
	if ip6[6] != icmp6NextHeader {
		return
	}
	saddr, err := netaddr.FromBytes(ip6[8:24])
	if err != nil {
		return
	}
	daddr, err := netaddr.FromBytes(ip6[24:40])
	if err != nil {
		return
	}
	payload := ip6[ip6HeaderLen:]

	sol, err := DecodeSolicit(payload)
	if err != nil {
		return
	}
	ifc.solicitsIn.Add(1)

	if reg.LocalTable().IsLocal(saddr) {
		return // self-originated echo
	}

	if reg.handleLocal(ifc, saddr, sol.Target) {
		return // answered by the local-address shortcut
	}
	reg.handleReverseAdvert(ifc, saddr, sol.Target)
	reg.dispatchSolicit(ifc, saddr, daddr, sol.Target)
}

// DrainICMP dispatches Neighbor Advertisements the background
// readICMPLoop goroutine has already decoded and queued, up to
// maxDrainPerCall per event-loop pass so one busy interface cannot starve
// the others.
func (ifc *Interface) DrainICMP(reg *Registry) {
	for i := 0; i < maxDrainPerCall; i++ {
		select {
		case dg := <-ifc.icmpMsgs:
			ifc.handleAdvertDatagram(reg, dg.saddr, dg.adv)
		default:
			return
		}
	}
}

// handleAdvertDatagram dispatches one already-decoded advertisement known
// to come from saddr. Split out of DrainICMP so tests can inject an
// advertisement without a real socket or background goroutine.
func (ifc *Interface) handleAdvertDatagram(reg *Registry, saddr netaddr.Address, adv Advert) {
	ifc.advertsIn.Add(1)
	if reg.LocalTable().IsLocal(saddr) {
		return
	}
	reg.dispatchAdvert(ifc, saddr, adv.Target)
}

func htons(v uint16) uint16 {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return binary.NativeEndian.Uint16(b)
}
