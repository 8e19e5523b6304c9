package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Outcome string

const (
	Success Outcome = "success"
	// Rejected marks validation failures.
	Rejected Outcome = "rejected"
	Error    Outcome = "error"
)

func (o Outcome) String() string {
	return string(o)
}

var (
	operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "staking_operations_total",
			Help: "Ledger operations by type and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "staking_operation_duration_seconds",
			Help:    "Histogram of ledger operation durations in seconds.",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"operation"},
	)

	rewardsClaimed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "staking_rewards_claimed_total",
			Help: "Reward-token base units paid out by claims.",
		},
	)
)

func init() {
	prometheus.MustRegister(operationsTotal, operationDuration, rewardsClaimed)
}

// RecordOperation counts an operation and observes its duration.
func RecordOperation(operation string, outcome Outcome, elapsed time.Duration) {
	operationsTotal.WithLabelValues(operation, outcome.String()).Inc()
	operationDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// RecordClaim adds a claimed reward amount.
func RecordClaim(amount uint64) {
	rewardsClaimed.Add(float64(amount))
}

// Handler serves the registered metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
