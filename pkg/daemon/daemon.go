// Package daemon implements the ndp6d process lifecycle: load config,
// build the ndpcore Registry, run the event loop, and shut down cleanly.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ndp6d/ndp6d/pkg/config"
	"github.com/ndp6d/ndp6d/pkg/localaddr"
	"github.com/ndp6d/ndp6d/pkg/logging"
	"github.com/ndp6d/ndp6d/pkg/metrics"
	"github.com/ndp6d/ndp6d/pkg/ndpcore"
	"github.com/ndp6d/ndp6d/pkg/netaddr"
)

// Options configures the daemon.
type Options struct {
	ConfigFile  string
	MetricsAddr string // empty = metrics server disabled
	PIDFile     string // empty = no PID file

	// LogHandler receives syslog forwarding config, if any. Callers get
	// it from logging.Init; it is nil-safe when omitted.
	LogHandler *logging.SyslogSlogHandler
}

// Daemon owns one Registry for the lifetime of the process.
type Daemon struct {
	opts Options
	reg  *ndpcore.Registry
}

// New creates a Daemon from opts.
func New(opts Options) *Daemon {
	return &Daemon{opts: opts}
}

// Run loads configuration, opens every interface it names, and blocks
// running the event loop until ctx is cancelled or a fatal error occurs.
func (d *Daemon) Run(ctx context.Context) error {
	slog.Info("starting ndp6d", "config", d.opts.ConfigFile, "pid", os.Getpid())

	cfg, err := config.Load(d.opts.ConfigFile)
	if err != nil {
		return fmt.Errorf("daemon: %w", err)
	}
	warnings, err := cfg.Validate()
	if err != nil {
		return fmt.Errorf("daemon: %w", err)
	}
	for _, w := range warnings {
		slog.Warn("daemon: config warning", "warning", w)
	}

	d.applySyslogConfig(cfg)

	table := localaddr.New()
	d.reg = ndpcore.NewRegistry(table)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	table.Start(ctx)

	if err := d.applyConfig(cfg); err != nil {
		return fmt.Errorf("daemon: %w", err)
	}

	if err := d.writePIDFile(); err != nil {
		slog.Warn("daemon: failed to write PID file", "err", err)
	}
	defer d.removePIDFile()

	var httpServer *http.Server
	if d.opts.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(metrics.New(d.reg))
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		httpServer = &http.Server{Addr: d.opts.MetricsAddr, Handler: mux}
		go func() {
			slog.Info("daemon: metrics server listening", "addr", d.opts.MetricsAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Warn("daemon: metrics server stopped", "err", err)
			}
		}()
	}

	runErr := d.reg.Run(ctx)

	if httpServer != nil {
		_ = httpServer.Close()
	}
	if err := ndpcore.SweepAutovia(); err != nil {
		slog.Warn("daemon: failed to sweep autovia routes", "err", err)
	}
	d.reg.CloseAll()

	slog.Info("ndp6d shutdown complete")
	return runErr
}

// applyConfig turns the loaded config into Registry-owned Interfaces,
// Proxies, and Rules.
func (d *Daemon) applyConfig(cfg *config.Config) error {
	for _, pc := range cfg.Proxies {
		upstream, err := d.reg.GetOrCreateInterface(pc.Upstream)
		if err != nil {
			return fmt.Errorf("proxy upstream %s: %w", pc.Upstream, err)
		}

		pr := ndpcore.NewProxy(upstream)
		if pc.Router != nil {
			pr.Router = *pc.Router
		}
		if pc.TTLMs > 0 {
			pr.TTLMs = pc.TTLMs
		}
		if pc.TimeoutMs > 0 {
			pr.TimeoutMs = pc.TimeoutMs
		}

		for _, rc := range pc.Rules {
			cidr, err := netaddr.Parse(rc.CIDR)
			if err != nil {
				return fmt.Errorf("proxy %s rule %s: %w", pc.Upstream, rc.CIDR, err)
			}
			rule := ndpcore.Rule{CIDR: cidr, Autovia: rc.Autovia}
			switch rc.Iface {
			case "":
				rule.Target = ndpcore.RuleStatic{}
			case "auto":
				rule.Target = ndpcore.RuleAuto{}
			default:
				if _, err := d.reg.GetOrCreateInterface(rc.Iface); err != nil {
					return fmt.Errorf("proxy %s rule %s iface %s: %w", pc.Upstream, rc.CIDR, rc.Iface, err)
				}
				rule.Target = ndpcore.RuleInterface{Name: rc.Iface}
			}
			pr.Rules = append(pr.Rules, rule)
		}

		d.reg.AddProxy(pr)
	}
	return nil
}

// applySyslogConfig installs or clears the daemon's remote syslog client
// from cfg.Syslog. It is a no-op if the caller never supplied a
// LogHandler (e.g. in tests that construct a Daemon directly).
func (d *Daemon) applySyslogConfig(cfg *config.Config) {
	if d.opts.LogHandler == nil {
		return
	}
	if cfg.Syslog == nil {
		d.opts.LogHandler.SetClients(nil)
		return
	}
	client, err := logging.NewSyslogClient(cfg.Syslog.Host, cfg.Syslog.Port)
	if err != nil {
		slog.Warn("daemon: failed to start syslog forwarding", "host", cfg.Syslog.Host, "port", cfg.Syslog.Port, "err", err)
		return
	}
	client.MinSeverity = logging.ParseSeverity(cfg.Syslog.Severity)
	slog.Info("daemon: forwarding logs to syslog", "host", cfg.Syslog.Host, "port", cfg.Syslog.Port)
	d.opts.LogHandler.SetClients([]*logging.SyslogClient{client})
}

func (d *Daemon) writePIDFile() error {
	if d.opts.PIDFile == "" {
		return nil
	}
	return os.WriteFile(d.opts.PIDFile, []byte(strconv.Itoa(os.Getpid())+"\n"), 0644)
}

func (d *Daemon) removePIDFile() {
	if d.opts.PIDFile == "" {
		return
	}
	if err := os.Remove(d.opts.PIDFile); err != nil && !os.IsNotExist(err) {
		slog.Warn("daemon: failed to remove PID file", "err", err)
	}
}
