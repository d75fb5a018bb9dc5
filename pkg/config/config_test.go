package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ndp6d.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadParsesProxiesAndRules(t *testing.T) {
	path := writeTempConfig(t, `
proxies:
  - upstream: eth0
    ttl_ms: 60000
    rules:
      - cidr: 2001:db8::/64
        iface: eth1
      - cidr: 2001:db8:1::/64
        iface: auto
        autovia: true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Proxies) != 1 {
		t.Fatalf("Proxies = %d, want 1", len(cfg.Proxies))
	}
	pc := cfg.Proxies[0]
	if pc.Upstream != "eth0" || pc.TTLMs != 60000 {
		t.Fatalf("proxy = %+v, unexpected", pc)
	}
	if len(pc.Rules) != 2 || pc.Rules[1].Iface != "auto" || !pc.Rules[1].Autovia {
		t.Fatalf("rules = %+v, unexpected", pc.Rules)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/ndp6d.yaml"); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestValidateRequiresUpstream(t *testing.T) {
	cfg := &Config{Proxies: []ProxyConfig{{Rules: []RuleConfig{{CIDR: "2001:db8::/64"}}}}}
	if _, err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for a proxy with no upstream")
	}
}

func TestValidateRequiresCIDR(t *testing.T) {
	cfg := &Config{Proxies: []ProxyConfig{{Upstream: "eth0", Rules: []RuleConfig{{}}}}}
	if _, err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for a rule with no cidr")
	}
}

func TestValidateWarnsOnBroadStaticRule(t *testing.T) {
	cfg := &Config{Proxies: []ProxyConfig{{
		Upstream: "eth0",
		Rules:    []RuleConfig{{CIDR: "2001:db8::/64"}},
	}}}
	warnings, err := cfg.Validate()
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(warnings) != 1 {
		t.Fatalf("warnings = %v, want exactly one", warnings)
	}
}

func TestValidateNoWarningForNarrowStaticRule(t *testing.T) {
	cfg := &Config{Proxies: []ProxyConfig{{
		Upstream: "eth0",
		Rules:    []RuleConfig{{CIDR: "2001:db8::1/128"}},
	}}}
	warnings, err := cfg.Validate()
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("warnings = %v, want none for a /128 static rule", warnings)
	}
}

func TestLoadParsesSyslog(t *testing.T) {
	path := writeTempConfig(t, `
proxies:
  - upstream: eth0
    rules:
      - cidr: 2001:db8::/64
syslog:
  host: 10.0.0.5
  port: 514
  severity: warning
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Syslog == nil || cfg.Syslog.Host != "10.0.0.5" || cfg.Syslog.Port != 514 || cfg.Syslog.Severity != "warning" {
		t.Fatalf("syslog = %+v, unexpected", cfg.Syslog)
	}
}

func TestValidateRequiresSyslogHost(t *testing.T) {
	cfg := &Config{
		Proxies: []ProxyConfig{{Upstream: "eth0", Rules: []RuleConfig{{CIDR: "2001:db8::/64"}}}},
		Syslog:  &SyslogConfig{Port: 514},
	}
	if _, err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for a syslog block with no host")
	}
}

func TestValidateRequiresSyslogPort(t *testing.T) {
	cfg := &Config{
		Proxies: []ProxyConfig{{Upstream: "eth0", Rules: []RuleConfig{{CIDR: "2001:db8::/64"}}}},
		Syslog:  &SyslogConfig{Host: "10.0.0.5"},
	}
	if _, err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for a syslog block with no port")
	}
}

func TestValidateNoWarningForInterfaceRule(t *testing.T) {
	cfg := &Config{Proxies: []ProxyConfig{{
		Upstream: "eth0",
		Rules:    []RuleConfig{{CIDR: "2001:db8::/64", Iface: "eth1"}},
	}}}
	warnings, err := cfg.Validate()
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("warnings = %v, want none for a non-static rule", warnings)
	}
}
