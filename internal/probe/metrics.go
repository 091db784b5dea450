package probe

import "github.com/prometheus/client_golang/prometheus"

var (
	probeErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gpflash",
			Subsystem: "probe",
			Name:      "errors_total",
			Help:      "Probe failures treated as absence",
		},
		[]string{"source"},
	)

	probeEdgesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gpflash",
			Subsystem: "probe",
			Name:      "edges_total",
			Help:      "Absent to present transitions observed",
		},
		[]string{"source"},
	)

	probeRearmsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gpflash",
			Subsystem: "probe",
			Name:      "rearms_total",
			Help:      "Watcher re-arm requests",
		},
	)
)

func init() {
	prometheus.MustRegister(probeErrorsTotal, probeEdgesTotal, probeRearmsTotal)
}
