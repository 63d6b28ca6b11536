package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeError   = "error"
)

var (
	// CommandDuration tracks the latency of state-changing calls, including every
	// instruction they trigger.
	CommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "pledge_command_duration_seconds",
			Help: "Duration of pledge commands in seconds",
			Buckets: []float64{
				0.001, // 1ms
				0.005, // 5ms
				0.01,  // 10ms
				0.025, // 25ms
				0.05,  // 50ms
				0.1,   // 100ms
				0.25,  // 250ms
				0.5,   // 500ms
				1.0,   // 1s
				2.5,   // 2.5s
			},
		},
		[]string{"operation", "outcome"},
	)

	// InstructionsExecuted counts outbound instructions by kind.
	InstructionsExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pledge_instructions_executed_total",
			Help: "Outbound instructions executed by the host",
		},
		[]string{"kind"},
	)

	// CampaignsExpired counts campaigns expired by the sweeper.
	CampaignsExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pledge_campaigns_expired_total",
			Help: "Campaigns moved to expired by the deadline sweeper",
		},
	)

	// RateLimited counts commands rejected by the per-sender limiter.
	RateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pledge_rate_limited_total",
			Help: "Commands rejected by the per-sender rate limiter",
		},
	)
)

// RecordCommand records the duration and outcome of a command.
func RecordCommand(operation, outcome string, duration float64) {
	CommandDuration.WithLabelValues(operation, outcome).Observe(duration)
}

// RecordInstruction counts one executed instruction.
func RecordInstruction(kind string) {
	InstructionsExecuted.WithLabelValues(kind).Inc()
}
