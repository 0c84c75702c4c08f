package controller

import "github.com/prometheus/client_golang/prometheus"

var (
	startsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "lmctld",
		Subsystem: "controller",
		Name:      "starts_total",
		Help:      "Total accepted start requests",
	})

	startFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "lmctld",
		Subsystem: "controller",
		Name:      "start_failures_total",
		Help:      "Total start attempts that ended in the error state",
	})

	stopsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "lmctld",
		Subsystem: "controller",
		Name:      "stops_total",
		Help:      "Total accepted stop requests",
	})

	serviceUp = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "lmctld",
		Subsystem: "controller",
		Name:      "service_up",
		Help:      "1 while the supervised service is running",
	})
)

func init() {
	prometheus.MustRegister(startsTotal, startFailuresTotal, stopsTotal, serviceUp)
}
