package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var RequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "api_requests_total",
		Help: "Network calls issued by the request coordinator, by method and outcome",
	},
	[]string{"method", "outcome"},
)

var RequestsDeduplicated = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "api_requests_deduplicated_total",
		Help: "Calls that joined an identical in-flight request instead of issuing a new one",
	},
	[]string{"method"},
)

var RequestsInFlight = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "api_requests_in_flight",
		Help: "Currently outstanding network calls",
	},
)

var RequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "api_request_duration_ms",
		Buckets: []float64{10, 25, 50, 100, 150, 250, 500, 750, 1000, 2000, 5000},
	},
	[]string{"method"},
)

var BatchSize = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "batch_drain_size",
		Help:    "Items handed to a batch drain function",
		Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500},
	},
	[]string{"batcher"},
)

var PlayerCacheLookups = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "player_cache_fetch_total",
		Help: "Player fetches by result: hit, joined, queued",
	},
	[]string{"result"},
)

var PlayerCacheSize = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "player_cache_records",
	},
)

var registerOnce sync.Once

// Register adds every collector to reg. Only the first call has an effect.
func Register(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		reg.MustRegister(
			RequestsTotal,
			RequestsDeduplicated,
			RequestsInFlight,
			RequestDuration,
			BatchSize,
			PlayerCacheLookups,
			PlayerCacheSize,
		)
	})
}
