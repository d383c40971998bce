// Package metrics exposes process-level prometheus counters for the
// distribution pipeline. Ledger-derived business metrics live in the
// metrics repository instead.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PipelineRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dca_pipeline_runs_total",
		Help: "Pipeline runs by mode and outcome.",
	}, []string{"mode", "outcome"})

	TransactionsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dca_transactions_processed_total",
		Help: "Kiosk transactions recorded in the dedup ledger.",
	})

	DistributionsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dca_distributions_created_total",
		Help: "Distribution lines created by type.",
	}, []string{"type"})

	PayoutFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dca_payout_failures_total",
		Help: "Payment issuances that failed and were recorded for review.",
	})
)
