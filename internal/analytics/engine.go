package analytics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/polyedge/internal/bus"
	"github.com/alejandrodnm/polyedge/internal/domain"
	"github.com/alejandrodnm/polyedge/internal/ports"
)

// startingCapital is the fixed equity baseline. The equity curve starts
// here and every sample is baseline + realized + unrealized.
const startingCapital = 1000.0

// Aggregator owns the equity curve and all derived statistics. Trade
// executions and price ticks both funnel into update(), which appends one
// equity sample, persists the series and runs the drawdown alert check.
//
// Writers run on the bus dispatcher; the mutex only exists so the API can
// call Snapshot from its own goroutine.
type Aggregator struct {
	store         ports.Storage
	gate          *Gate
	drawdownAlert float64
	now           func() time.Time

	mu          sync.Mutex
	equityCurve []float64
	returns     []float64
	wins        int
	losses      int
	realized    float64
	unrealized  float64
}

func NewAggregator(b *bus.Bus, store ports.Storage, gate *Gate, drawdownAlert float64) *Aggregator {
	a := &Aggregator{
		store:         store,
		gate:          gate,
		drawdownAlert: drawdownAlert,
		now:           time.Now,
		equityCurve:   []float64{startingCapital},
	}
	b.OnTrade(a.onTrade)
	b.OnPrice(a.onPrice)
	b.OnSignal(a.onSignal)
	b.OnResolution(a.onResolution)
	return a
}

func (a *Aggregator) onTrade(t domain.Trade) {
	a.mu.Lock()
	a.realized += t.Edge * t.Size
	if t.Edge > 0 {
		a.wins++
	} else {
		a.losses++
	}
	a.update()
	a.mu.Unlock()
}

// onPrice re-marks the one position whose price moved. The unrealized
// total is adjusted by the delta against the previously stored mark, not
// recomputed across all positions.
func (a *Aggregator) onPrice(p domain.PriceTick) {
	ctx := context.Background()
	pos, ok, err := a.store.GetPosition(ctx, p.MarketID, p.Outcome)
	if err != nil {
		slog.Warn("analytics: read position", "market", p.MarketID, "outcome", p.Outcome, "err", err)
		return
	}
	if !ok || pos.Size == 0 || pos.Resolved {
		// Resolved positions are frozen; price ticks must not touch them.
		return
	}

	pnl := (p.Price - pos.AvgPrice) * pos.Size
	if err := a.store.MarkPosition(ctx, p.MarketID, p.Outcome, p.Price, pnl); err != nil {
		slog.Warn("analytics: mark position", "market", p.MarketID, "outcome", p.Outcome, "err", err)
		return
	}

	a.mu.Lock()
	a.unrealized += pnl - pos.UnrealizedPnl
	a.update()
	a.mu.Unlock()
}

// onResolution removes the final marks of a market about to settle from the
// unrealized total. Without this the last tick of every resolved position
// would offset equity forever. Must be subscribed before the reconciler,
// which zeroes the stored marks on settlement.
func (a *Aggregator) onResolution(r domain.Resolution) {
	open, err := a.store.OpenPositions(context.Background(), r.MarketID)
	if err != nil {
		slog.Warn("analytics: read open positions", "market", r.MarketID, "err", err)
		return
	}

	stale := 0.0
	for _, pos := range open {
		stale += pos.UnrealizedPnl
	}
	if stale == 0 {
		return
	}

	a.mu.Lock()
	a.unrealized -= stale
	a.update()
	a.mu.Unlock()
}

// onSignal records the observation so accuracy can be scored after the
// market resolves.
func (a *Aggregator) onSignal(s domain.EdgeSignal) {
	obs := domain.EdgeObservation{
		Ts:         s.Ts,
		MarketID:   s.MarketID,
		Outcome:    s.Outcome,
		ModelProb:  s.Probability,
		MarketProb: s.Price,
		Edge:       s.Edge,
	}
	if err := a.store.InsertObservation(context.Background(), obs); err != nil {
		slog.Warn("analytics: insert observation", "market", s.MarketID, "err", err)
	}
}

// update appends one equity/return sample and re-derives drawdown. Caller
// holds the mutex.
func (a *Aggregator) update() {
	equity := startingCapital + a.realized + a.unrealized
	prev := a.equityCurve[len(a.equityCurve)-1]
	ret := 0.0
	if prev > 0 {
		ret = (equity - prev) / prev
	}
	a.equityCurve = append(a.equityCurve, equity)
	a.returns = append(a.returns, ret)

	dd := MaxDrawdown(a.equityCurve)
	now := a.now()
	ctx := context.Background()
	a.persist(ctx, now, "equity", equity)
	a.persist(ctx, now, "drawdown", dd)

	a.gate.Check("drawdown", dd, a.drawdownAlert, "portfolio drawdown exceeded threshold")
}

func (a *Aggregator) persist(ctx context.Context, ts time.Time, metric string, value float64) {
	err := a.store.InsertSample(ctx, domain.EquitySample{Ts: ts, Metric: metric, Value: value})
	if err != nil {
		slog.Warn("analytics: persist sample", "metric", metric, "err", err)
	}
}

// Equity returns the current equity point of the curve.
func (a *Aggregator) Equity() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.equityCurve[len(a.equityCurve)-1]
}

// Snapshot derives the full metrics view from aggregator state plus ad-hoc
// position and observation queries. Pure read.
func (a *Aggregator) Snapshot(ctx context.Context) domain.AnalyticsSnapshot {
	a.mu.Lock()
	snap := domain.AnalyticsSnapshot{
		PnL: domain.PnL{
			Realized:   a.realized,
			Unrealized: a.unrealized,
			Total:      a.realized + a.unrealized,
		},
		ROI:         (a.realized + a.unrealized) / startingCapital,
		Sharpe:      Sharpe(a.returns),
		MaxDrawdown: MaxDrawdown(a.equityCurve),
	}
	if total := a.wins + a.losses; total > 0 {
		snap.WinRate = float64(a.wins) / float64(total)
	}
	a.mu.Unlock()

	if acc, err := a.store.EdgeAccuracy(ctx); err == nil {
		snap.EdgeAccuracy = acc
	} else {
		slog.Warn("analytics: edge accuracy", "err", err)
	}
	if exp, err := a.store.Exposure(ctx); err == nil {
		snap.Exposure = exp
	} else {
		slog.Warn("analytics: exposure", "err", err)
	}
	if eff, err := a.store.ObservationStats(ctx); err == nil {
		snap.Efficiency = eff
	} else {
		slog.Warn("analytics: observation stats", "err", err)
	}
	if trades, err := a.store.ListTrades(ctx, breakdownTradeLimit); err == nil {
		snap.ByOutcome = BreakdownByOutcome(trades)
		snap.ByMarket = BreakdownByMarket(trades)
	} else {
		slog.Warn("analytics: list trades", "err", err)
	}
	return snap
}
