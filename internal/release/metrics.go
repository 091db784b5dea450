package release

import "github.com/prometheus/client_golang/prometheus"

var downloadsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "gpflash",
		Name:      "downloads_total",
		Help:      "Image downloads by result (ok, cached, error)",
	},
	[]string{"result"},
)

func init() {
	prometheus.MustRegister(downloadsTotal)
}
