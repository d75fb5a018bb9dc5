package ndpcore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sys/unix"
)

// pollInterval bounds how long a single unix.Poll call blocks, so the
// loop can notice context cancellation and still run UpdateAll promptly
// even when no socket is ever readable.
const pollInterval = 200 * time.Millisecond

// sessionSummaryInterval matches the original daemon's startup-verbosity
// summary cadence.
const sessionSummaryInterval = 30 * time.Second

// Run is the event loop described in the wire spec's Component G. It
// polls every registered interface's AF_PACKET socket and drains whichever
// are readable; the ICMPv6 side is drained unconditionally every pass,
// since github.com/mdlayher/ndp's Conn exposes no file descriptor to add
// to the poll set (its Neighbor Advertisements arrive via a background
// goroutine and a channel instead, see Interface.readICMPLoop). Every pass
// also ages sessions on a wall-clock tick. Run returns nil on context
// cancellation, or a non-nil error if poll itself fails.
func (r *Registry) Run(ctx context.Context) error {
	last := time.Now()
	lastSummary := last
	for {
		if ctx.Err() != nil {
			return nil
		}

		ifaces := r.Interfaces()
		fds := make([]unix.PollFd, 0, len(ifaces))
		owners := make([]*Interface, 0, len(ifaces))

		for _, ifc := range ifaces {
			if fd := ifc.PacketFD(); fd >= 0 {
				fds = append(fds, unix.PollFd{Fd: int32(fd), Events: unix.POLLIN})
				owners = append(owners, ifc)
			}
		}

		n, err := unix.Poll(fds, int(pollInterval/time.Millisecond))
		now := time.Now()
		r.UpdateAll(now.Sub(last))
		last = now

		for _, ifc := range ifaces {
			ifc.DrainICMP(r)
		}

		if now.Sub(lastSummary) >= sessionSummaryInterval {
			r.logSessionSummary()
			lastSummary = now
		}

		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("ndpcore: poll: %w", err)
		}
		if n == 0 {
			continue // timeout, nothing readable
		}

		for i, pfd := range fds {
			if pfd.Revents&unix.POLLIN == 0 {
				continue
			}
			owners[i].DrainPacket(r)
		}
	}
}

// logSessionSummary emits a periodic count of sessions per proxy at
// Debug level; pkg/metrics supersedes this for anything operators
// actually watch, matching the original daemon's startup-verbosity log
// line with a structured equivalent.
func (r *Registry) logSessionSummary() {
	for i, pr := range r.Proxies() {
		w, v, inv := pr.SessionCount()
		name := "?"
		if pr.Upstream != nil {
			name = pr.Upstream.Name
		}
		slog.Debug("ndpcore: proxy session summary", "proxy", i, "upstream", name,
			"waiting", w, "valid", v, "invalid", inv)
	}
}
