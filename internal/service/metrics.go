package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"wallet-service/internal/errors"
)

var (
	ledgerOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wallet_service",
			Name:      "ledger_operations_total",
			Help:      "Ledger operations by operation and outcome code.",
		},
		[]string{"operation", "outcome"},
	)

	ledgerConflictRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wallet_service",
			Name:      "ledger_conflict_retries_total",
			Help:      "Fetch-compute-save retries caused by concurrent updates.",
		},
		[]string{"operation"},
	)
)

func observe(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(errors.AsAppError(err).Code)
	}
	ledgerOperationsTotal.WithLabelValues(operation, outcome).Inc()
}
