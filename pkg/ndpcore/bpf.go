package ndpcore

import (
	"golang.org/x/net/bpf"
	"golang.org/x/sys/unix"
)

// nsFilterInstructions is the classic BPF program described in the wire
// spec: accept only frames that are IPv6, next-header ICMPv6, and ICMPv6
// type Neighbor Solicitation. Everything else is dropped in the kernel
// before it reaches this process. Each JumpIf's SkipFalse must land on
// index 8 (the drop instruction) so a failed comparison falls all the
// way through instead of short-circuiting into ACCEPT; bpf_test.go
// exercises this against sample frames.
func nsFilterInstructions() []bpf.Instruction {
	return []bpf.Instruction{
		bpf.LoadAbsolute{Off: 12, Size: 2}, // ether_type
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: 0x86dd, SkipFalse: 6},
		bpf.LoadAbsolute{Off: 20, Size: 1}, // ip6 next-header
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: icmp6NextHeader, SkipFalse: 4},
		bpf.LoadAbsolute{Off: 54, Size: 1}, // icmp6 type
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: icmp6TypeNeighborSolicit, SkipFalse: 2},
		bpf.LoadExtension{Num: bpf.ExtLen}, // frame length
		bpf.RetA{},                         // accept the whole frame
		bpf.RetConstant{Val: 0},            // drop
	}
}

// nsFilterProgram assembles nsFilterInstructions into the raw form
// SO_ATTACH_FILTER wants.
func nsFilterProgram() ([]bpf.RawInstruction, error) {
	raw, err := bpf.Assemble(nsFilterInstructions())
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// attachFilter installs prog on fd via SO_ATTACH_FILTER.
func attachFilter(fd int, prog []bpf.RawInstruction) error {
	sock := make([]unix.SockFilter, len(prog))
	for i, ins := range prog {
		sock[i] = unix.SockFilter{
			Code: ins.Op,
			Jt:   ins.Jt,
			Jf:   ins.Jf,
			K:    ins.K,
		}
	}
	fprog := unix.SockFprog{
		Len:    uint16(len(sock)),
		Filter: &sock[0],
	}
	return unix.SetsockoptSockFprog(fd, unix.SOL_SOCKET, unix.SO_ATTACH_FILTER, &fprog)
}
