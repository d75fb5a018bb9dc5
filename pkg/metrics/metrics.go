// Package metrics exposes a Prometheus collector that reads live state
// out of the ndpcore Registry on every scrape, the same "no cached
// counters" shape the rest of the corpus uses for its own collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ndp6d/ndp6d/pkg/ndpcore"
)

// Collector implements prometheus.Collector over a *ndpcore.Registry.
type Collector struct {
	reg *ndpcore.Registry

	sessionsDesc *prometheus.Desc
	proxiesDesc  *prometheus.Desc
	solicitsDesc *prometheus.Desc
	advertsDesc  *prometheus.Desc
}

// New builds a Collector reading from reg.
func New(reg *ndpcore.Registry) *Collector {
	return &Collector{
		reg: reg,
		sessionsDesc: prometheus.NewDesc(
			"ndp6d_sessions",
			"Current sessions by upstream proxy and status.",
			[]string{"upstream", "status"}, nil,
		),
		proxiesDesc: prometheus.NewDesc(
			"ndp6d_proxies",
			"Number of configured proxies.",
			nil, nil,
		),
		solicitsDesc: prometheus.NewDesc(
			"ndp6d_solicits_total",
			"Neighbor solicitations sent or received, by interface and direction.",
			[]string{"iface", "direction"}, nil,
		),
		advertsDesc: prometheus.NewDesc(
			"ndp6d_adverts_total",
			"Neighbor advertisements sent or received, by interface and direction.",
			[]string{"iface", "direction"}, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.sessionsDesc
	ch <- c.proxiesDesc
	ch <- c.solicitsDesc
	ch <- c.advertsDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	proxies := c.reg.Proxies()
	ch <- prometheus.MustNewConstMetric(c.proxiesDesc, prometheus.GaugeValue, float64(len(proxies)))

	// Proxies sharing an upstream label (including every proxy with no
	// upstream, reported as "?") are summed into one series per status.
	type sessionCounts struct{ waiting, valid, invalid int }
	byUpstream := make(map[string]*sessionCounts)
	for _, pr := range proxies {
		name := "?"
		if pr.Upstream != nil {
			name = pr.Upstream.Name
		}
		waiting, valid, invalid := pr.SessionCount()
		sc := byUpstream[name]
		if sc == nil {
			sc = &sessionCounts{}
			byUpstream[name] = sc
		}
		sc.waiting += waiting
		sc.valid += valid
		sc.invalid += invalid
	}
	for name, sc := range byUpstream {
		ch <- prometheus.MustNewConstMetric(c.sessionsDesc, prometheus.GaugeValue, float64(sc.waiting), name, "waiting")
		ch <- prometheus.MustNewConstMetric(c.sessionsDesc, prometheus.GaugeValue, float64(sc.valid), name, "valid")
		ch <- prometheus.MustNewConstMetric(c.sessionsDesc, prometheus.GaugeValue, float64(sc.invalid), name, "invalid")
	}

	for _, ifc := range c.reg.Interfaces() {
		solOut, solIn, advOut, advIn := ifc.Counters()
		ch <- prometheus.MustNewConstMetric(c.solicitsDesc, prometheus.CounterValue, float64(solOut), ifc.Name, "sent")
		ch <- prometheus.MustNewConstMetric(c.solicitsDesc, prometheus.CounterValue, float64(solIn), ifc.Name, "received")
		ch <- prometheus.MustNewConstMetric(c.advertsDesc, prometheus.CounterValue, float64(advOut), ifc.Name, "sent")
		ch <- prometheus.MustNewConstMetric(c.advertsDesc, prometheus.CounterValue, float64(advIn), ifc.Name, "received")
	}
}
