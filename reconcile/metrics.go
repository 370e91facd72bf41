package reconcile

import (
	"github.com/prometheus/client_golang/prometheus"
)

var outcomesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "reconcile_outcomes_total",
		Help: "Terminal outcomes of payment reconciliation sessions",
	},
	[]string{"outcome"},
)

func init() {
	prometheus.MustRegister(outcomesTotal)
}
