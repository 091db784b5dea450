package orchestrator

import "github.com/prometheus/client_golang/prometheus"

var (
	presenceEdgesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gpflash",
			Name:      "presence_edges_total",
			Help:      "Presence edges received, by whether they started an operation",
		},
		[]string{"handled"},
	)

	operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gpflash",
			Name:      "operations_total",
			Help:      "Board operations by kind and result",
		},
		[]string{"op", "result"},
	)

	operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gpflash",
			Name:      "operation_duration_seconds",
			Help:      "Duration of session operations",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 40, 80},
		},
		[]string{"op"},
	)

	stateGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "gpflash",
			Name:      "state",
			Help:      "1 for the current session state, 0 otherwise",
		},
		[]string{"state"},
	)
)

func init() {
	prometheus.MustRegister(presenceEdgesTotal, operationsTotal, operationDuration, stateGauge)
	resetStateGauge()
}

// resetStateGauge exports every state series at 0.
func resetStateGauge() {
	for _, st := range AllStates {
		stateGauge.WithLabelValues(string(st)).Set(0)
	}
}
