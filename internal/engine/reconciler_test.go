package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polyedge/internal/bus"
	"github.com/alejandrodnm/polyedge/internal/domain"
)

func seedPosition(t *testing.T, store interface {
	RecordFill(ctx context.Context, trade domain.Trade, pos domain.Position) error
}, marketID, outcome string, size, avgPrice float64) {
	t.Helper()
	err := store.RecordFill(context.Background(),
		domain.Trade{
			ID: marketID + "-" + outcome + "-seed", Ts: time.Now(),
			MarketID: marketID, Outcome: outcome, Side: domain.SideBuy,
			Price: avgPrice, Size: size, Status: domain.StatusSimulatedFilled,
		},
		domain.Position{
			MarketID: marketID, Outcome: outcome,
			Size: size, AvgPrice: avgPrice, LastPrice: avgPrice,
		})
	require.NoError(t, err)
}

func TestReconciler_WinningSettlement(t *testing.T) {
	store := newTestStorage(t)
	b := bus.New()
	r := NewReconciler(b, store)
	seedPosition(t, store, "m1", "YES", 50, 0.40)

	r.Settle(domain.Resolution{MarketID: "m1", WinningOutcome: "YES", Ts: time.Now()})

	pos, ok, err := store.GetPosition(context.Background(), "m1", "YES")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, pos.Resolved)
	require.NotNil(t, pos.Winner)
	assert.True(t, *pos.Winner)
	// 50 × (1 − 0.40) = 30
	assert.InDelta(t, 30, pos.RealizedPnl, 1e-9)
	assert.InDelta(t, 0, pos.UnrealizedPnl, 1e-9)
}

func TestReconciler_LosingSettlement(t *testing.T) {
	store := newTestStorage(t)
	b := bus.New()
	r := NewReconciler(b, store)
	seedPosition(t, store, "m1", "YES", 50, 0.40)

	r.Settle(domain.Resolution{MarketID: "m1", WinningOutcome: "NO", Ts: time.Now()})

	pos, _, err := store.GetPosition(context.Background(), "m1", "YES")
	require.NoError(t, err)
	assert.True(t, pos.Resolved)
	require.NotNil(t, pos.Winner)
	assert.False(t, *pos.Winner)
	// −50 × 0.40 = −20
	assert.InDelta(t, -20, pos.RealizedPnl, 1e-9)
}

func TestReconciler_SettlementIsIdempotent(t *testing.T) {
	store := newTestStorage(t)
	b := bus.New()
	r := NewReconciler(b, store)
	seedPosition(t, store, "m1", "YES", 50, 0.40)

	res := domain.Resolution{MarketID: "m1", WinningOutcome: "YES", Ts: time.Now()}
	r.Settle(res)
	r.Settle(res)

	pos, _, err := store.GetPosition(context.Background(), "m1", "YES")
	require.NoError(t, err)
	// Second event found no open positions: pnl applied exactly once.
	assert.InDelta(t, 30, pos.RealizedPnl, 1e-9)
}

func TestReconciler_SettlesBothOutcomes(t *testing.T) {
	store := newTestStorage(t)
	b := bus.New()
	r := NewReconciler(b, store)
	seedPosition(t, store, "m1", "YES", 50, 0.40)
	seedPosition(t, store, "m1", "NO", 20, 0.60)

	r.Settle(domain.Resolution{MarketID: "m1", WinningOutcome: "YES", Ts: time.Now()})

	ctx := context.Background()
	yes, _, err := store.GetPosition(ctx, "m1", "YES")
	require.NoError(t, err)
	no, _, err := store.GetPosition(ctx, "m1", "NO")
	require.NoError(t, err)

	assert.InDelta(t, 30, yes.RealizedPnl, 1e-9)
	assert.InDelta(t, -12, no.RealizedPnl, 1e-9) // −20 × 0.60
	assert.True(t, yes.Resolved)
	assert.True(t, no.Resolved)
}

func TestReconciler_UnknownMarketIsNoop(t *testing.T) {
	store := newTestStorage(t)
	b := bus.New()
	r := NewReconciler(b, store)

	// No positions for this market: must not error or create rows.
	r.Settle(domain.Resolution{MarketID: "never-traded", WinningOutcome: "YES", Ts: time.Now()})

	positions, err := store.ListPositions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestReconciler_SettlesObservations(t *testing.T) {
	store := newTestStorage(t)
	b := bus.New()
	r := NewReconciler(b, store)
	seedPosition(t, store, "m1", "YES", 50, 0.40)

	ctx := context.Background()
	require.NoError(t, store.InsertObservation(ctx, domain.EdgeObservation{
		Ts: time.Now(), MarketID: "m1", Outcome: "YES", ModelProb: 0.55, MarketProb: 0.40, Edge: 0.15,
	}))
	require.NoError(t, store.InsertObservation(ctx, domain.EdgeObservation{
		Ts: time.Now(), MarketID: "m1", Outcome: "NO", ModelProb: 0.50, MarketProb: 0.45, Edge: 0.05,
	}))

	r.Settle(domain.Resolution{MarketID: "m1", WinningOutcome: "YES", Ts: time.Now()})

	acc, err := store.EdgeAccuracy(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, acc, 1e-9)
}
