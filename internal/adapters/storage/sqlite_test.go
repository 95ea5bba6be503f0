package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polyedge/internal/adapters/storage"
	"github.com/alejandrodnm/polyedge/internal/domain"
)

func newStore(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func makeTrade(id string, price, size float64) domain.Trade {
	return domain.Trade{
		ID:            id,
		Ts:            time.Now(),
		MarketID:      "m1",
		Outcome:       "YES",
		Side:          domain.SideBuy,
		Price:         price,
		Size:          size,
		Edge:          0.15,
		Kelly:         0.125,
		ExpectedValue: 0.15 * size,
		Status:        domain.StatusSimulatedFilled,
		Meta:          map[string]any{"probability": 0.55},
	}
}

func makePosition(size, avgPrice float64) domain.Position {
	return domain.Position{
		MarketID:  "m1",
		Outcome:   "YES",
		Size:      size,
		AvgPrice:  avgPrice,
		LastPrice: avgPrice,
	}
}

func TestRecordFill_TradeAndPositionTogether(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordFill(ctx, makeTrade("t1", 0.40, 50), makePosition(50, 0.40)))

	pos, ok, err := store.GetPosition(ctx, "m1", "YES")
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 50, pos.Size, 1e-9)
	assert.InDelta(t, 0.40, pos.AvgPrice, 1e-9)

	trades, err := store.ListTrades(ctx, 10)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "t1", trades[0].ID)
	assert.InDelta(t, 0.55, trades[0].Meta["probability"].(float64), 1e-9)
}

func TestRecordFill_DuplicateTradeIDRollsBackAtomically(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordFill(ctx, makeTrade("t1", 0.40, 50), makePosition(50, 0.40)))

	// Same PK: the whole transaction fails, the position keeps its state.
	err := store.RecordFill(ctx, makeTrade("t1", 0.60, 30), makePosition(80, 0.475))
	require.Error(t, err)

	pos, _, err := store.GetPosition(ctx, "m1", "YES")
	require.NoError(t, err)
	assert.InDelta(t, 50, pos.Size, 1e-9)
	assert.InDelta(t, 0.40, pos.AvgPrice, 1e-9)
}

func TestPositionUpsert(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordFill(ctx, makeTrade("t1", 0.40, 50), makePosition(50, 0.40)))
	require.NoError(t, store.RecordFill(ctx, makeTrade("t2", 0.60, 30), makePosition(80, 0.475)))

	positions, err := store.ListPositions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.InDelta(t, 80, positions[0].Size, 1e-9)
}

func TestGetPosition_Missing(t *testing.T) {
	store := newStore(t)
	_, ok, err := store.GetPosition(context.Background(), "nope", "YES")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMarkPosition_TouchesOnlyMarkFields(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	require.NoError(t, store.RecordFill(ctx, makeTrade("t1", 0.40, 50), makePosition(50, 0.40)))

	require.NoError(t, store.MarkPosition(ctx, "m1", "YES", 0.50, 5))

	pos, _, err := store.GetPosition(ctx, "m1", "YES")
	require.NoError(t, err)
	assert.InDelta(t, 0.50, pos.LastPrice, 1e-9)
	assert.InDelta(t, 5, pos.UnrealizedPnl, 1e-9)
	assert.InDelta(t, 0.40, pos.AvgPrice, 1e-9)
	assert.InDelta(t, 50, pos.Size, 1e-9)
}

func TestSettlePosition_AndOpenPredicate(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	require.NoError(t, store.RecordFill(ctx, makeTrade("t1", 0.40, 50), makePosition(50, 0.40)))

	open, err := store.OpenPositions(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, open, 1)

	won := true
	settled := open[0]
	settled.RealizedPnl = 30
	settled.UnrealizedPnl = 0
	settled.Resolved = true
	settled.Winner = &won

	require.NoError(t, store.SettlePosition(ctx, settled, domain.Redemption{
		ID: "r1", Ts: time.Now(), MarketID: "m1", Amount: 50, TxHash: "auto-1",
	}))

	open, err = store.OpenPositions(ctx, "m1")
	require.NoError(t, err)
	assert.Empty(t, open)

	pos, _, err := store.GetPosition(ctx, "m1", "YES")
	require.NoError(t, err)
	assert.True(t, pos.Resolved)
	require.NotNil(t, pos.Winner)
	assert.True(t, *pos.Winner)
	assert.InDelta(t, 30, pos.RealizedPnl, 1e-9)
}

func TestObservations_SettleAndAccuracy(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	obs := domain.EdgeObservation{
		Ts: time.Now(), MarketID: "m1", Outcome: "YES",
		ModelProb: 0.55, MarketProb: 0.40, Edge: 0.15, Slippage: 0.01,
	}
	require.NoError(t, store.InsertObservation(ctx, obs))
	obs.Outcome = "NO"
	require.NoError(t, store.InsertObservation(ctx, obs))

	// Nothing settled yet: accuracy reads 0, not an error.
	acc, err := store.EdgeAccuracy(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.0, acc)

	require.NoError(t, store.SettleObservations(ctx, "m1", "YES"))
	acc, err = store.EdgeAccuracy(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, acc, 1e-9)

	eff, err := store.ObservationStats(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.01, eff.AvgSlippage, 1e-9)
	assert.InDelta(t, 0.15, eff.EdgeDecay, 1e-9)
}

func TestExposure_OpenPositionsOnly(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordFill(ctx, makeTrade("t1", 0.40, 50), makePosition(50, 0.40)))

	resolved := makePosition(20, 0.60)
	resolved.MarketID = "m2"
	resolved.Resolved = true
	require.NoError(t, store.RecordFill(ctx, func() domain.Trade {
		tr := makeTrade("t2", 0.60, 20)
		tr.MarketID = "m2"
		return tr
	}(), resolved))

	exposure, err := store.Exposure(ctx)
	require.NoError(t, err)
	// Only m1 counts: 50 × 0.40 = 20.
	assert.InDelta(t, 20, exposure, 1e-9)
}

func TestTimeseries_LastWriteWins(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	ts := time.UnixMilli(1700000000000)

	require.NoError(t, store.InsertSample(ctx, domain.EquitySample{Ts: ts, Metric: "equity", Value: 1000}))
	require.NoError(t, store.InsertSample(ctx, domain.EquitySample{Ts: ts, Metric: "equity", Value: 1007.5}))

	series, err := store.GetSeries(ctx, "equity", 10)
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.InDelta(t, 1007.5, series[0].Value, 1e-9)
}

func TestBalances_LatestWins(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	_, ok, err := store.LatestBalance(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	base := time.Now()
	require.NoError(t, store.RecordBalance(ctx, domain.BalanceSnapshot{Ts: base, Usdc: 100, Exposure: 20, Equity: 1000}))
	require.NoError(t, store.RecordBalance(ctx, domain.BalanceSnapshot{Ts: base.Add(30 * time.Second), Usdc: 95, Exposure: 25, Equity: 1007.5}))

	bal, ok, err := store.LatestBalance(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 95, bal.Usdc, 1e-9)
	assert.InDelta(t, 1007.5, bal.Equity, 1e-9)
}

func TestListTrades_OrderAndLimit(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	for i, id := range []string{"t1", "t2", "t3"} {
		tr := makeTrade(id, 0.40, 50)
		tr.Ts = time.Now().Add(time.Duration(i) * time.Minute)
		pos := makePosition(float64(50*(i+1)), 0.40)
		require.NoError(t, store.RecordFill(ctx, tr, pos))
	}

	trades, err := store.ListTrades(ctx, 2)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "t3", trades[0].ID)
	assert.Equal(t, "t2", trades[1].ID)
}
