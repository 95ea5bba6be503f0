package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/polyedge/internal/bus"
	"github.com/alejandrodnm/polyedge/internal/domain"
	"github.com/alejandrodnm/polyedge/internal/metrics"
	"github.com/alejandrodnm/polyedge/internal/ports"
)

// Reconciler settles open positions when a market resolves on-chain.
// Positions move OPEN → RESOLVED exactly once: the open-positions predicate
// excludes already-settled rows, so a repeated resolution event finds
// nothing to do.
type Reconciler struct {
	store ports.Storage
	now   func() time.Time
}

func NewReconciler(b *bus.Bus, store ports.Storage) *Reconciler {
	r := &Reconciler{store: store, now: time.Now}
	b.OnResolution(r.Settle)
	return r
}

// Settle finalizes every still-open position of the resolved market. A
// winning binary contract pays $1/share, a losing one pays $0, so the
// realized delta is size×(1−avgPrice) or −size×avgPrice respectively.
// Each position is settled with its redemption in one transaction.
func (r *Reconciler) Settle(res domain.Resolution) {
	ctx := context.Background()
	open, err := r.store.OpenPositions(ctx, res.MarketID)
	if err != nil {
		slog.Error("reconciler: list open positions", "market", res.MarketID, "err", err)
		return
	}
	if len(open) == 0 {
		// Markets we never traded, or a repeat event. Not an error.
		return
	}

	for _, pos := range open {
		won := pos.Outcome == res.WinningOutcome
		var delta float64
		if won {
			delta = pos.Size * (1 - pos.AvgPrice)
		} else {
			delta = -pos.Size * pos.AvgPrice
		}

		w := won
		pos.RealizedPnl += delta
		pos.UnrealizedPnl = 0
		pos.Resolved = true
		pos.Winner = &w

		amount := 0.0
		if won {
			amount = pos.Size
		}
		red := domain.Redemption{
			ID:       uuid.New().String(),
			Ts:       r.now(),
			MarketID: pos.MarketID,
			Amount:   amount,
			TxHash:   "auto-" + uuid.New().String(),
		}

		if err := r.store.SettlePosition(ctx, pos, red); err != nil {
			slog.Error("reconciler: settle position", "market", pos.MarketID, "outcome", pos.Outcome, "err", err)
			continue
		}

		metrics.PositionsSettled.Inc()
		slog.Info("reconciler: position settled",
			"market", pos.MarketID,
			"outcome", pos.Outcome,
			"won", won,
			"pnl_delta", delta,
			"redeemed", amount,
		)
	}

	if err := r.store.SettleObservations(ctx, res.MarketID, res.WinningOutcome); err != nil {
		slog.Warn("reconciler: settle observations", "market", res.MarketID, "err", err)
	}
}
