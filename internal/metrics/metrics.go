// Package metrics exposes the engine's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RoutesComputed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dextra_routes_computed_total",
		Help: "Total number of routes computed by the optimizer",
	})

	RoutesExecuted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dextra_routes_executed_total",
		Help: "Total number of routes executed to completion",
	})

	ExecutionFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dextra_execution_failures_total",
			Help: "Total number of failed executions by reason",
		},
		[]string{"reason"},
	)

	FlashExecutions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dextra_flash_executions_total",
		Help: "Total number of completed flash-funded arbitrages",
	})

	FlashNetProfit = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dextra_flash_net_profit_units_total",
		Help: "Cumulative net profit of flash arbitrages in token base units",
	})

	ProtectedTransactionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dextra_protected_transactions_created_total",
		Help: "Total number of protected transactions created",
	})

	ProtectedTransactionsBlocked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dextra_protected_transactions_blocked_total",
		Help: "Total number of protected transactions blocked by MEV detection",
	})

	SandwichDetections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dextra_sandwich_detections_total",
		Help: "Total number of sandwich/front-run patterns detected",
	})

	RiskAssessments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dextra_risk_assessments_total",
			Help: "Total number of risk assessments by resulting level",
		},
		[]string{"level"},
	)
)
