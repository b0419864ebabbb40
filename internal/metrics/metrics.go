package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BoardActionsTotal counts board actions by action and outcome
	// (saved, rolled_back, rejected, abandoned, failed).
	BoardActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recboard_board_actions_total",
			Help: "Total number of recommendation board actions by outcome",
		},
		[]string{"action", "outcome"},
	)

	// BoardRollbacksTotal is the alerting signal for optimistic updates that
	// had to be reverted.
	BoardRollbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recboard_board_rollbacks_total",
			Help: "Total number of optimistic board mutations rolled back",
		},
		[]string{"action"},
	)

	// OpenBoards tracks live boards held by the session registry.
	OpenBoards = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "recboard_open_boards",
			Help: "Number of recommendation boards currently open",
		},
	)

	// StoreRequestDuration tracks latency of calls to the system of record.
	StoreRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recboard_store_request_duration_seconds",
			Help:    "Duration of store requests in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"driver", "operation", "status"},
	)
)

// RecordAction increments BoardActionsTotal.
func RecordAction(action, outcome string) {
	BoardActionsTotal.WithLabelValues(action, outcome).Inc()
}

// ObserveStore records one store call that started at start.
func ObserveStore(driver, operation string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	StoreRequestDuration.WithLabelValues(driver, operation, status).Observe(time.Since(start).Seconds())
}
