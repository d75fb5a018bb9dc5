// ndp6d is an IPv6 Neighbor Discovery proxy daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/ndp6d/ndp6d/pkg/daemon"
	"github.com/ndp6d/ndp6d/pkg/logging"
)

func main() {
	configFile := flag.String("config", "/etc/ndp6d/ndp6d.yaml", "configuration file path")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics listen address (empty to disable)")
	pidFile := flag.String("pid-file", "", "PID file path (empty to disable)")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	handler := logging.Init(level)

	d := daemon.New(daemon.Options{
		ConfigFile:  *configFile,
		MetricsAddr: *metricsAddr,
		PIDFile:     *pidFile,
		LogHandler:  handler,
	})

	if err := d.Run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "ndp6d: %v\n", err)
		os.Exit(1)
	}
}
