package multicall

import "github.com/prometheus/client_golang/prometheus"

var (
	roundTripsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "discovery",
			Subsystem: "multicall",
			Name:      "round_trips_total",
			Help:      "Read port calls issued, by batching contract generation.",
		},
		[]string{"generation"},
	)

	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "discovery",
			Subsystem: "multicall",
			Name:      "requests_total",
			Help:      "Logical call requests served, by batching contract generation.",
		},
		[]string{"generation"},
	)

	roundTripDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "discovery",
			Subsystem: "multicall",
			Name:      "round_trip_duration_seconds",
			Help:      "Latency of a single read port call.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"generation"},
	)
)

func init() {
	prometheus.MustRegister(roundTripsTotal, requestsTotal, roundTripDuration)
}
