package metric

import "github.com/prometheus/client_golang/prometheus"

// ActiveSessionsFunc reports the number of live connection handles.
type ActiveSessionsFunc func() int

// activeCollector samples the session registry at scrape time so the gauge
// can never drift from the registry it describes.
type activeCollector struct {
	desc *prometheus.Desc
	fn   ActiveSessionsFunc
}

// RegisterActiveSessions exposes pairmesh_sessions_active backed by fn.
func (r *Registry) RegisterActiveSessions(fn ActiveSessionsFunc) error {
	return r.registry.Register(&activeCollector{
		desc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "sessions_active"),
			"Live connection handles in the session registry.",
			nil, nil,
		),
		fn: fn,
	})
}

// Describe implements prometheus.Collector.
func (c *activeCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

// Collect implements prometheus.Collector.
func (c *activeCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(c.fn()))
}
