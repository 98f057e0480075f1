package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// IndexStats is satisfied by *index.Chronological. Each accessor is O(1).
type IndexStats interface {
	Len() int
	Height() int
	Dropped() uint64
}

// Metrics holds the service collectors.
type Metrics struct {
	IngestTotal      *prometheus.CounterVec
	FanoutFailures   *prometheus.CounterVec
	RehydrateEvents  prometheus.Gauge
	RehydrateSkipped prometheus.Gauge
}

// New registers the service collectors on reg. Index gauges are read from
// idx at scrape time.
func New(reg prometheus.Registerer, idx IndexStats) *Metrics {
	factory := promauto.With(reg)

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "cuida_index_size",
		Help: "Number of events held by the chronological index",
	}, func() float64 { return float64(idx.Len()) })

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "cuida_index_height",
		Help: "Longest root-to-leaf path of the chronological index",
	}, func() float64 { return float64(idx.Height()) })

	factory.NewCounterFunc(prometheus.CounterOpts{
		Name: "cuida_index_duplicates_dropped_total",
		Help: "Live inserts dropped because an event with the same timestamp was already indexed",
	}, func() float64 { return float64(idx.Dropped()) })

	return &Metrics{
		IngestTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cuida_events_ingested_total",
			Help: "Ingestion attempts by source and result",
		}, []string{"source", "result"}),
		FanoutFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cuida_event_fanout_failures_total",
			Help: "Post-commit fan-out failures by sink",
		}, []string{"sink"}),
		RehydrateEvents: factory.NewGauge(prometheus.GaugeOpts{
			Name: "cuida_rehydrate_events",
			Help: "Events replayed from the durable store on the last rehydration",
		}),
		RehydrateSkipped: factory.NewGauge(prometheus.GaugeOpts{
			Name: "cuida_rehydrate_skipped_duplicates",
			Help: "Stored events left out of the index on the last rehydration because an earlier event holds their timestamp",
		}),
	}
}
