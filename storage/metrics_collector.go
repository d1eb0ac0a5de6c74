package storage

import "github.com/prometheus/client_golang/prometheus"

// Collector exports Metrics and device counters to Prometheus. All series
// carry a constant policy label.
type Collector struct {
	metrics *Metrics
	dev     BlockDevice

	requests     *prometheus.Desc
	hits         *prometheus.Desc
	misses       *prometheus.Desc
	ghostHits    *prometheus.Desc
	evictions    *prometheus.Desc
	writeBacks   *prometheus.Desc
	forgotten    *prometheus.Desc
	flushes      *prometheus.Desc
	hitRatio     *prometheus.Desc
	deviceReads  *prometheus.Desc
	deviceWrites *prometheus.Desc
}

// NewCollector creates a collector for one manager. dev may be nil.
func NewCollector(policy string, m *Metrics, dev BlockDevice) *Collector {
	labels := prometheus.Labels{"policy": policy}
	desc := func(name, help string, variable ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName("hexsim", "", name), help, variable, labels)
	}
	return &Collector{
		metrics:      m,
		dev:          dev,
		requests:     desc("requests_total", "Page requests by access type.", "op"),
		hits:         desc("cache_hits_total", "Requests served from a resident frame."),
		misses:       desc("cache_misses_total", "Requests for pages without history."),
		ghostHits:    desc("ghost_hits_total", "Requests for pages remembered but not resident."),
		evictions:    desc("evictions_total", "Frames that gave up their slot."),
		writeBacks:   desc("write_backs_total", "Dirty frames written to the device."),
		forgotten:    desc("forgotten_total", "Pages whose history was dropped."),
		flushes:      desc("flushes_total", "Completed flushes."),
		hitRatio:     desc("hit_ratio", "Resident hits over all requests."),
		deviceReads:  desc("device_reads_total", "Reads served by the device."),
		deviceWrites: desc("device_writes_total", "Writes served by the device."),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.requests, c.hits, c.misses, c.ghostHits, c.evictions, c.writeBacks,
		c.forgotten, c.flushes, c.hitRatio, c.deviceReads, c.deviceWrites,
	} {
		ch <- d
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.metrics.Snapshot()
	counter := func(d *prometheus.Desc, v uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}

	counter(c.requests, s.ReadRequests, "read")
	counter(c.requests, s.WriteRequests, "write")
	counter(c.hits, s.CacheHits)
	counter(c.misses, s.CacheMisses)
	counter(c.ghostHits, s.GhostHits)
	counter(c.evictions, s.Evictions)
	counter(c.writeBacks, s.WriteBacks)
	counter(c.forgotten, s.Forgotten)
	counter(c.flushes, s.Flushes)
	ch <- prometheus.MustNewConstMetric(c.hitRatio, prometheus.GaugeValue, s.HitRate/100)

	if c.dev != nil {
		counter(c.deviceReads, c.dev.ReadCount())
		counter(c.deviceWrites, c.dev.WriteCount())
	}
}
