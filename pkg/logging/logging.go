// Package logging wires structured logging for the daemon: a text
// handler on stderr, optionally fanned out to a remote syslog server.
package logging

import (
	"log/slog"
	"os"
)

// Init installs a slog.TextHandler at the given level as the process
// default. It returns the SyslogSlogHandler so callers can attach syslog
// clients later once configuration is available.
func Init(level slog.Level) *SyslogSlogHandler {
	base := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	h := NewSyslogSlogHandler(base)
	slog.SetDefault(slog.New(h))
	return h
}
