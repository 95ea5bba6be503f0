package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polyedge/internal/adapters/storage"
	"github.com/alejandrodnm/polyedge/internal/bus"
	"github.com/alejandrodnm/polyedge/internal/domain"
)

func newTestStorage(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func signal(size float64) domain.EdgeSignal {
	return domain.EdgeSignal{
		MarketID:      "m1",
		Outcome:       "YES",
		Edge:          0.15,
		Kelly:         0.125,
		SuggestedSize: size,
		Price:         0.40,
		Probability:   0.55,
		Ts:            time.Now(),
	}
}

func TestExecutor_FirstFill(t *testing.T) {
	store := newTestStorage(t)
	b := bus.New()
	var published []domain.Trade
	b.OnTrade(func(tr domain.Trade) { published = append(published, tr) })

	ex := NewExecutor(b, store, 50)
	ex.Execute(signal(50))
	b.Drain()

	ctx := context.Background()
	pos, ok, err := store.GetPosition(ctx, "m1", "YES")
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 50, pos.Size, 1e-9)
	assert.InDelta(t, 0.40, pos.AvgPrice, 1e-9)
	assert.False(t, pos.Resolved)

	trades, err := store.ListTrades(ctx, 10)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, domain.SideBuy, trades[0].Side)
	assert.Equal(t, domain.StatusSimulatedFilled, trades[0].Status)
	assert.InDelta(t, 0.15*50, trades[0].ExpectedValue, 1e-9)
	assert.NotEmpty(t, trades[0].ID)

	require.Len(t, published, 1)
	assert.Equal(t, trades[0].ID, published[0].ID)
}

func TestExecutor_WeightedAverageAccumulation(t *testing.T) {
	store := newTestStorage(t)
	b := bus.New()
	ex := NewExecutor(b, store, 100)

	first := signal(50)
	ex.Execute(first)

	second := signal(30)
	second.Price = 0.60
	ex.Execute(second)

	pos, ok, err := store.GetPosition(context.Background(), "m1", "YES")
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 80, pos.Size, 1e-9)
	// (0.40×50 + 0.60×30) / 80 = 0.475
	assert.InDelta(t, 0.475, pos.AvgPrice, 1e-9)
	assert.InDelta(t, 0.60, pos.LastPrice, 1e-9)
}

func TestExecutor_SizeCapReapplied(t *testing.T) {
	store := newTestStorage(t)
	b := bus.New()
	ex := NewExecutor(b, store, 50)

	ex.Execute(signal(500))

	pos, _, err := store.GetPosition(context.Background(), "m1", "YES")
	require.NoError(t, err)
	assert.InDelta(t, 50, pos.Size, 1e-9)
}

func TestExecutor_ZeroSizeDropped(t *testing.T) {
	store := newTestStorage(t)
	b := bus.New()
	var published []domain.Trade
	b.OnTrade(func(tr domain.Trade) { published = append(published, tr) })
	ex := NewExecutor(b, store, 50)

	ex.Execute(signal(0))
	b.Drain()

	_, ok, err := store.GetPosition(context.Background(), "m1", "YES")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, published)
}

func TestExecutor_EachFillGetsUniqueTradeID(t *testing.T) {
	store := newTestStorage(t)
	b := bus.New()
	ex := NewExecutor(b, store, 50)

	ex.Execute(signal(50))
	ex.Execute(signal(50))

	trades, err := store.ListTrades(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.NotEqual(t, trades[0].ID, trades[1].ID)
}
