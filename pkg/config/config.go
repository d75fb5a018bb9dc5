// Package config loads the semantic proxy/rule configuration the
// ndpcore engine consumes. The textual grammar is a small flat YAML
// shape; the engine only ever sees the typed structures below.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// staticWarnPrefix is the prefix threshold at or below which a Static
// rule generates a warning, per the Rule invariant.
const staticWarnPrefix = 120

// Config is the top-level configuration document: a list of proxy
// blocks, one per upstream interface, plus optional remote log
// forwarding.
type Config struct {
	Proxies []ProxyConfig `yaml:"proxies"`
	Syslog  *SyslogConfig `yaml:"syslog,omitempty"`
}

// SyslogConfig forwards a copy of every log record to a remote UDP
// syslog server (RFC 3164). Severity filters which records are sent;
// leaving it empty forwards everything.
type SyslogConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Severity string `yaml:"severity,omitempty"` // "error", "warning", or "info"
}

// ProxyConfig configures one Proxy.
type ProxyConfig struct {
	Upstream  string       `yaml:"upstream"`
	Router    *bool        `yaml:"router,omitempty"`
	TTLMs     int          `yaml:"ttl_ms,omitempty"`
	TimeoutMs int          `yaml:"timeout_ms,omitempty"`
	Rules     []RuleConfig `yaml:"rules"`
}

// RuleConfig configures one Rule. Iface is empty for a static rule and
// the literal "auto" for a routing-table-resolved rule.
type RuleConfig struct {
	CIDR    string `yaml:"cidr"`
	Iface   string `yaml:"iface,omitempty"`
	Autovia bool   `yaml:"autovia,omitempty"`
}

// Load reads and parses a YAML config file from path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks structural requirements and returns non-fatal
// warnings (e.g. an unusually broad Static rule) alongside a fatal error
// for anything the engine cannot start with.
func (c *Config) Validate() (warnings []string, err error) {
	for i, pc := range c.Proxies {
		if pc.Upstream == "" {
			return nil, fmt.Errorf("config: proxy[%d]: upstream is required", i)
		}
		for j, rc := range pc.Rules {
			if rc.CIDR == "" {
				return nil, fmt.Errorf("config: proxy[%d].rules[%d]: cidr is required", i, j)
			}
			if rc.Iface == "" {
				if p, ok := prefixOf(rc.CIDR); ok && p <= staticWarnPrefix {
					warnings = append(warnings, fmt.Sprintf(
						"proxy[%d].rules[%d]: static rule for %s covers a /%d or more, verify this is intentional",
						i, j, rc.CIDR, staticWarnPrefix))
				}
			}
		}
	}
	if c.Syslog != nil {
		if c.Syslog.Host == "" {
			return nil, fmt.Errorf("config: syslog: host is required")
		}
		if c.Syslog.Port <= 0 {
			return nil, fmt.Errorf("config: syslog: port is required")
		}
	}
	return warnings, nil
}

func prefixOf(cidr string) (int, bool) {
	for i := len(cidr) - 1; i >= 0; i-- {
		if cidr[i] == '/' {
			var p int
			if _, err := fmt.Sscanf(cidr[i+1:], "%d", &p); err != nil {
				return 0, false
			}
			return p, true
		}
	}
	return 128, true
}
