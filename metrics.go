package heapkv

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	opPut    = "put"
	opGet    = "get"
	opRemove = "remove"
	opBatch  = "batch"
)

// metrics is a prometheus.Collector bound to one heap file, register it with Collector
type metrics struct {
	ops       *prometheus.CounterVec
	cacheHits prometheus.Counter
	gauges    []prometheus.Collector
}

var _ prometheus.Collector = (*metrics)(nil)

func newMetrics(pages, lockPoolSize, lockPoolInUse func() float64) *metrics {
	return &metrics{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "heapkv",
			Name:      "operations_total",
			Help:      "Number of completed heap file operations.",
		}, []string{"op"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "heapkv",
			Name:      "front_cache_hits_total",
			Help:      "Number of gets served by the front cache.",
		}),
		gauges: []prometheus.Collector{
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: "heapkv",
				Name:      "pages",
				Help:      "Number of pages in the heap file.",
			}, pages),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: "heapkv",
				Name:      "lock_pool_size",
				Help:      "Number of page locks created by the lock pool.",
			}, lockPoolSize),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: "heapkv",
				Name:      "lock_pool_in_use",
				Help:      "Number of page locks currently borrowed.",
			}, lockPoolInUse),
		},
	}
}

func (m *metrics) Describe(ch chan<- *prometheus.Desc) {
	m.ops.Describe(ch)
	m.cacheHits.Describe(ch)
	for _, g := range m.gauges {
		g.Describe(ch)
	}
}

func (m *metrics) Collect(ch chan<- prometheus.Metric) {
	m.ops.Collect(ch)
	m.cacheHits.Collect(ch)
	for _, g := range m.gauges {
		g.Collect(ch)
	}
}

func (m *metrics) observe(op string) {
	m.ops.WithLabelValues(op).Inc()
}
