package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Poll results
const (
	PollOK           = "ok"
	PollRateLimited  = "rate_limited"
	PollUnauthorized = "unauthorized"
	PollError        = "error"
)

// Credential budget metrics
var (
	// TokenCallsInWindow calls spent from the shared budget in the current window
	TokenCallsInWindow = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sismo_token_calls_in_window",
			Help: "Upstream calls spent from the shared credential budget in the current window",
		},
	)

	// TokenWaits times the rotator blocked the fleet on an exhausted budget
	TokenWaits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sismo_token_waits_total",
			Help: "Times the credential rotator blocked waiting for the window to roll over",
		},
	)

	// TokenBudgetRemaining calls left before the rotator blocks, refreshed by the telemetry job
	TokenBudgetRemaining = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sismo_token_budget_remaining",
			Help: "Upstream calls left in the current window before the rotator blocks",
		},
	)

	// TokenStalled 1 while the rotator is blocked on an exhausted budget
	TokenStalled = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sismo_token_stalled",
			Help: "1 while the credential rotator is waiting for the window to roll over",
		},
	)
)

// Monitor metrics
var (
	// PollsTotal polls by result
	PollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sismo_polls_total",
			Help: "Recent-posts polls by result",
		},
		[]string{"result"},
	)

	// PollDuration latency of a fetch and filter pass
	PollDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sismo_poll_duration_seconds",
			Help:    "Duration of one poll iteration before the interval sleep",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	// MatchesTotal posts that matched the alert query
	MatchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sismo_matches_total",
			Help: "Fresh posts that matched the alert query",
		},
	)

	// ActiveWorkers poll workers currently running
	ActiveWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sismo_active_workers",
			Help: "Poll workers currently running",
		},
	)

	// WorkerRestarts restarts after a transient worker failure
	WorkerRestarts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sismo_worker_restarts_total",
			Help: "Poll worker restarts after a transient failure",
		},
	)
)

// Alert metrics
var (
	// AlertsTotal trigger attempts by source and outcome (accepted/suppressed)
	AlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sismo_alerts_total",
			Help: "Alert trigger attempts by source and outcome",
		},
		[]string{"source", "outcome"},
	)

	// WebhookRequestsTotal webhook deliveries by status class
	WebhookRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sismo_webhook_requests_total",
			Help: "Webhook deliveries by status class",
		},
		[]string{"status"},
	)
)
