package domain

import "time"

// TradeSide is the direction of a fill. Position accounting is BUY-only:
// SELL exists in the taxonomy for future reduction support but the
// weighted-average formula does not accept it yet.
type TradeSide string

const (
	SideBuy  TradeSide = "BUY"
	SideSell TradeSide = "SELL"
)

// TradeStatus reflects the execution mode the trade was booked under.
type TradeStatus string

const (
	StatusSimulatedFilled TradeStatus = "SIMULATED_FILLED"
	StatusPending         TradeStatus = "pending"
	StatusMatched         TradeStatus = "matched"
	StatusFailed          TradeStatus = "FAILED"
)

// EdgeSignal is the ephemeral output of the edge evaluator. It is consumed
// immediately by the executor and never persisted as an entity.
type EdgeSignal struct {
	MarketID      string
	Outcome       string
	Edge          float64
	Kelly         float64
	SuggestedSize float64
	Price         float64
	Probability   float64
	Ts            time.Time
}

// Trade is one immutable execution record. The trades table is the sole
// audit trail of execution decisions; rows are never updated.
type Trade struct {
	ID            string
	Ts            time.Time
	MarketID      string
	Outcome       string
	Side          TradeSide
	Price         float64
	Size          float64
	Edge          float64
	Kelly         float64
	ExpectedValue float64
	Status        TradeStatus
	TxHash        string
	Meta          map[string]any
}

// Position is the mutable aggregate per (marketId, outcome). AvgPrice is
// the size-weighted average entry price across all fills while the
// position is open; once Resolved, RealizedPnl is final and price ticks no
// longer touch the row.
type Position struct {
	MarketID      string
	Outcome       string
	Size          float64
	AvgPrice      float64
	LastPrice     float64
	RealizedPnl   float64
	UnrealizedPnl float64
	Resolved      bool
	Winner        *bool
}

// Key devuelve la MarketKey de la posición.
func (p Position) Key() MarketKey {
	return MarketKey{MarketID: p.MarketID, Outcome: p.Outcome}
}

// Redemption records the settlement payout of one resolved position:
// Size dollars for a winner, zero for a loser.
type Redemption struct {
	ID       string
	Ts       time.Time
	MarketID string
	Amount   float64
	TxHash   string
}

// EquitySample is one point of the analytics time series.
type EquitySample struct {
	Ts     time.Time
	Metric string
	Value  float64
}

// EdgeObservation captures an emitted signal for later accuracy scoring
// against the market's eventual resolution.
type EdgeObservation struct {
	Ts         time.Time
	MarketID   string
	Outcome    string
	ModelProb  float64
	MarketProb float64
	Edge       float64
	Slippage   float64
	Settled    bool
	Correct    *bool
}

// Alert is a published risk alert, post-debounce.
type Alert struct {
	Type      string
	Message   string
	Value     float64
	Threshold float64
	Ts        time.Time
}

// SystemError is a non-fatal fault reported by an adapter.
type SystemError struct {
	Module string
	Err    string
	Ts     time.Time
}

// BalanceSnapshot is a periodic wallet/exposure/equity reading.
type BalanceSnapshot struct {
	Ts       time.Time
	Usdc     float64
	Exposure float64
	Equity   float64
}

// PnL splits profit into booked and mark-to-market components.
type PnL struct {
	Realized   float64
	Unrealized float64
	Total      float64
}

// Efficiency aggregates execution quality over all edge observations.
type Efficiency struct {
	AvgSlippage float64
	EdgeDecay   float64
}

// AnalyticsSnapshot is the pure-read metrics view served by the API.
// BucketStats aggregates trade count and expected value per grouping key.
type BucketStats struct {
	Count int
	Pnl   float64
}

type AnalyticsSnapshot struct {
	PnL          PnL
	WinRate      float64
	ROI          float64
	Sharpe       float64
	MaxDrawdown  float64
	EdgeAccuracy float64
	Exposure     float64
	Efficiency   Efficiency
	ByOutcome    map[string]BucketStats
	ByMarket     map[string]BucketStats
}
