package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	InitiationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "payment",
			Name:      "initiations_total",
			Help:      "Payment initiations by result and error classification",
		},
		[]string{"result", "classification"},
	)

	GatewayDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "payment",
			Name:      "gateway_request_duration_seconds",
			Help:      "Latency of the outbound gateway initiation call",
			Buckets: []float64{
				0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 8, 13, 21, 30,
			},
		},
		[]string{"result"},
	)

	StoreWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "payment",
			Name:      "store_writes_total",
			Help:      "Payment store writes by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	CallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "payment",
			Name:      "callbacks_total",
			Help:      "Gateway callbacks by reconciliation outcome",
		},
		[]string{"outcome"},
	)

	CacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "payment",
			Name:      "fallback_cache_entries",
			Help:      "Entries currently held by the fallback cache",
		},
	)

	CacheEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "payment",
			Name:      "fallback_cache_evictions_total",
			Help:      "Entries removed from the fallback cache by the sweeper",
		},
	)
)

func init() {
	prometheus.MustRegister(
		InitiationsTotal,
		GatewayDuration,
		StoreWritesTotal,
		CallbacksTotal,
		CacheEntries,
		CacheEvictionsTotal,
	)
}

func IncInitiation(result, classification string) {
	InitiationsTotal.WithLabelValues(result, classification).Inc()
}

func ObserveGateway(result string, seconds float64) {
	GatewayDuration.WithLabelValues(result).Observe(seconds)
}

func IncStoreWrite(operation, outcome string) {
	StoreWritesTotal.WithLabelValues(operation, outcome).Inc()
}

func IncCallback(outcome string) {
	CallbacksTotal.WithLabelValues(outcome).Inc()
}

func SetCacheEntries(n int) {
	CacheEntries.Set(float64(n))
}

func AddCacheEvictions(n int) {
	CacheEvictionsTotal.Add(float64(n))
}
