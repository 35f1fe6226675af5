// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Ticks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "silentjack_ticks_total",
			Help: "Total number of evaluation ticks",
		},
	)

	PeakDB = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "silentjack_peak_db",
			Help: "Peak input level of the last evaluated tick in dBFS",
		},
	)

	Status = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "silentjack_status",
			Help: "Current detection status code",
		},
	)

	Connected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "silentjack_input_connected",
			Help: "Whether the audio input is fed (1) or not (0)",
		},
	)

	Triggers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "silentjack_triggers_total",
			Help: "Total number of detection triggers",
		},
		[]string{"reason"},
	)

	ActionRuns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "silentjack_action_runs_total",
			Help: "Total number of action command invocations",
		},
	)

	ActionFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "silentjack_action_failures_total",
			Help: "Total number of action commands that failed to start or exited non-zero",
		},
	)

	ActionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "silentjack_action_duration_seconds",
			Help:    "Action command run time in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		},
	)

	ControlMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "silentjack_control_messages_total",
			Help: "Total number of control messages by address and result",
		},
		[]string{"address", "result"},
	)

	EventsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "silentjack_events_emitted_total",
			Help: "Total number of status events emitted by address",
		},
		[]string{"address"},
	)

	SinkErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "silentjack_sink_errors_total",
			Help: "Total number of failed event deliveries by sink",
		},
		[]string{"sink"},
	)

	WebSocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "silentjack_websocket_clients",
			Help: "Number of connected WebSocket clients",
		},
	)
)

// Trigger reasons.
const (
	ReasonSilence   = "silence"
	ReasonNoDynamic = "nodynamic"
)

// Control message results.
const (
	ResultAccepted  = "accepted"
	ResultRejected  = "rejected"
	ResultMalformed = "malformed"
)
