// Package metrics holds the engine's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SignalsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aurum_signals_ingested_total",
			Help: "Signals accepted by source; duplicates are counted under result=duplicate",
		},
		[]string{"source", "result"},
	)

	Ticks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aurum_ticks_total",
			Help: "Total number of engine ticks",
		},
	)

	TickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "aurum_tick_duration_seconds",
			Help: "Engine tick duration in seconds",
		},
	)

	Decisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aurum_decisions_total",
			Help: "Per-behaviour tick decisions",
		},
		[]string{"decision", "explored"},
	)

	StreakTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aurum_streak_transitions_total",
			Help: "Streak tracker transitions",
		},
		[]string{"transition"},
	)

	CommandsIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aurum_commands_issued_total",
			Help: "Actuation commands compiled, by device",
		},
		[]string{"device"},
	)

	CommandsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aurum_commands_skipped_total",
			Help: "Actuation targets skipped because a parameter could not be resolved",
		},
		[]string{"device"},
	)

	DispatchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aurum_dispatch_errors_total",
			Help: "Dispatcher failures",
		},
		[]string{"dispatcher"},
	)

	FeedbackEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aurum_feedback_events_total",
			Help: "Feedback events by outcome and result",
		},
		[]string{"outcome", "result"},
	)

	WriteConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aurum_write_conflicts_total",
			Help: "Compare-and-swap conflicts by record kind",
		},
		[]string{"kind"},
	)

	Degraded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aurum_degraded_reads_total",
			Help: "Store reads that fell back to a default value",
		},
		[]string{"kind"},
	)

	InferenceLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "aurum_inference_latency_seconds",
			Help: "Text inference latency in seconds",
		},
	)

	DeviceConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "aurum_device_connections",
			Help: "Number of connected device WebSocket clients",
		},
	)

	CatalogReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aurum_catalog_reloads_total",
			Help: "Catalog reload attempts by result",
		},
		[]string{"result"},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Bool renders a label value for a boolean.
func Bool(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
