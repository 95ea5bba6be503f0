// Package metrics provides Prometheus instrumentation for the edge engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PriceTicks counts price ticks accepted from the CLOB feed.
	PriceTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polyedge_price_ticks_total",
		Help: "Price ticks accepted from the market feed",
	})

	// ModelUpdates counts model probability updates accepted.
	ModelUpdates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polyedge_model_updates_total",
		Help: "Model probability updates accepted from the prediction feed",
	})

	// SignalsEmitted counts edge signals that cleared the threshold gate.
	SignalsEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polyedge_signals_emitted_total",
		Help: "Edge signals emitted above the configured threshold",
	})

	// TradesExecuted counts booked fills.
	TradesExecuted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polyedge_trades_executed_total",
		Help: "Trades booked by the executor",
	})

	// PositionsSettled counts positions closed by market resolution.
	PositionsSettled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polyedge_positions_settled_total",
		Help: "Positions settled by the resolution reconciler",
	})

	// AlertsFired counts risk alerts published after debounce.
	AlertsFired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polyedge_alerts_fired_total",
		Help: "Risk alerts published by the alert gate",
	})

	// WebSocketClients tracks connected dashboard websocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polyedge_websocket_clients",
		Help: "Connected dashboard websocket clients",
	})
)
