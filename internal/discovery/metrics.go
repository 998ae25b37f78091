package discovery

import "github.com/prometheus/client_golang/prometheus"

var fieldsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "discovery",
		Subsystem: "engine",
		Name:      "fields_total",
		Help:      "Recorded field results, by outcome.",
	},
	[]string{"outcome"},
)

func init() {
	prometheus.MustRegister(fieldsTotal)
}
