package engine

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/polyedge/internal/bus"
	"github.com/alejandrodnm/polyedge/internal/domain"
	"github.com/alejandrodnm/polyedge/internal/metrics"
	"github.com/alejandrodnm/polyedge/internal/ports"
)

// Executor consumes edge signals and books simulated fills: an immutable
// trade record plus a weighted-average position upsert, committed together.
type Executor struct {
	store       ports.Storage
	bus         *bus.Bus
	maxTradeUsd float64
	now         func() time.Time
}

func NewExecutor(b *bus.Bus, store ports.Storage, maxTradeUsd float64) *Executor {
	ex := &Executor{store: store, bus: b, maxTradeUsd: maxTradeUsd, now: time.Now}
	b.OnSignal(ex.Execute)
	return ex
}

// Execute books one BUY fill for the signal. The size cap is re-applied
// here as a final clamp even though the evaluator already bounded it; a
// zero or negative size drops the signal silently. A fault mid-reaction
// drops the event (logged, not retried) — the next tick re-derives state.
func (ex *Executor) Execute(sig domain.EdgeSignal) {
	size := math.Min(sig.SuggestedSize, ex.maxTradeUsd)
	if size <= 0 {
		return
	}

	ctx := context.Background()
	pos, exists, err := ex.store.GetPosition(ctx, sig.MarketID, sig.Outcome)
	if err != nil {
		slog.Error("executor: read position", "market", sig.MarketID, "outcome", sig.Outcome, "err", err)
		return
	}

	now := ex.now()
	trade := domain.Trade{
		ID:            uuid.New().String(),
		Ts:            now,
		MarketID:      sig.MarketID,
		Outcome:       sig.Outcome,
		Side:          domain.SideBuy,
		Price:         sig.Price,
		Size:          size,
		Edge:          sig.Edge,
		Kelly:         sig.Kelly,
		ExpectedValue: sig.Edge * size,
		Status:        domain.StatusSimulatedFilled,
		Meta:          map[string]any{"probability": sig.Probability},
	}

	newSize := pos.Size + size
	avgPrice := sig.Price
	if exists && pos.Size > 0 {
		// Size-weighted average cost basis. BUY-only: a SELL fill would
		// need a realized-pnl-on-reduction branch that does not exist yet.
		avgPrice = (pos.AvgPrice*pos.Size + sig.Price*size) / newSize
	}

	next := domain.Position{
		MarketID:      sig.MarketID,
		Outcome:       sig.Outcome,
		Size:          newSize,
		AvgPrice:      avgPrice,
		LastPrice:     sig.Price,
		RealizedPnl:   pos.RealizedPnl,
		UnrealizedPnl: pos.UnrealizedPnl,
		Resolved:      pos.Resolved,
		Winner:        pos.Winner,
	}

	if err := ex.store.RecordFill(ctx, trade, next); err != nil {
		slog.Error("executor: record fill", "market", sig.MarketID, "outcome", sig.Outcome, "err", err)
		return
	}

	metrics.TradesExecuted.Inc()
	slog.Info("executor: simulated fill",
		"market", sig.MarketID,
		"outcome", sig.Outcome,
		"size", size,
		"price", sig.Price,
		"edge", sig.Edge,
		"kelly", sig.Kelly,
	)
	ex.bus.PublishTrade(trade)
}
