package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sendflow",
			Name:      "protocol_operations_total",
			Help:      "Protocol operations by name and outcome.",
		},
		[]string{"operation", "result"},
	)

	balanceMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sendflow",
			Name:      "balance_mutations_total",
			Help:      "Balance Primitive calls issued by sagas, by direction.",
		},
		[]string{"direction"},
	)

	compensationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sendflow",
			Name:      "compensations_total",
			Help:      "Compensation attempts by outcome.",
		},
		[]string{"result"},
	)

	balanceDiscrepancies = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sendflow",
			Name:      "balance_discrepancies_total",
			Help:      "Accounts whose stored balance disagrees with the history sum.",
		},
	)
)

func observe(operation string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	operationsTotal.WithLabelValues(operation, result).Inc()
}
