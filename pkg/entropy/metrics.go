package entropy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// fetchTotal counts source fetches by kind and result
	fetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qevo_entropy_fetch_total",
		Help: "Total entropy source fetches by kind and result",
	}, []string{"kind", "result"})

	// fetchValues counts values pulled from the source
	fetchValues = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qevo_entropy_fetch_values_total",
		Help: "Total values fetched from the entropy source",
	}, []string{"kind"})

	// servedValues counts values handed to callers from the buffers
	servedValues = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qevo_entropy_served_values_total",
		Help: "Total values served from entropy pool buffers",
	}, []string{"kind"})

	// fetchDuration tracks source round-trip latency
	fetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "qevo_entropy_fetch_duration_seconds",
		Help:    "Entropy source fetch duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10), // 0.1ms to ~26s
	}, []string{"kind"})
)
