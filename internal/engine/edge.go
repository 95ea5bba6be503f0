package engine

import (
	"math"
	"time"

	"github.com/alejandrodnm/polyedge/internal/bus"
	"github.com/alejandrodnm/polyedge/internal/domain"
	"github.com/alejandrodnm/polyedge/internal/metrics"
)

const (
	// probFloor/probCeil keep both sides of the edge computation away from
	// the 0 and 1 singularities. The price must be clamped BEFORE deriving
	// net odds, or b blows up on a zero tick.
	probFloor = 0.0001
	probCeil  = 0.9999

	// defaultBankroll is the fixed sizing reference for Kelly. It is
	// deliberately NOT the live equity from analytics: sizing stays
	// constant across portfolio growth and drawdown in paper mode.
	defaultBankroll = 1000.0
)

// Config are the risk knobs of the evaluator.
type Config struct {
	EdgeThreshold float64
	KellyFraction float64
	MaxTradeUsd   float64
	Bankroll      float64
}

// Edge fuses the price and model feeds per (marketId, outcome) key and
// emits a sizing signal whenever a completed pair clears the threshold.
// Evaluation is push-driven: each feed update re-evaluates exactly its key,
// so one signal fires at most once per state change.
type Edge struct {
	cache *Cache
	cfg   Config
	bus   *bus.Bus
	now   func() time.Time
}

func NewEdge(b *bus.Bus, cfg Config) *Edge {
	if cfg.Bankroll <= 0 {
		cfg.Bankroll = defaultBankroll
	}
	e := &Edge{cache: NewCache(), cfg: cfg, bus: b, now: time.Now}
	b.OnPrice(e.onPrice)
	b.OnModel(e.onModel)
	return e
}

func (e *Edge) onPrice(p domain.PriceTick) {
	e.cache.SetPrice(p.MarketID, p.Outcome, p.Price, p.Ts)
	e.evaluate(p.MarketID, p.Outcome)
}

func (e *Edge) onModel(m domain.ModelUpdate) {
	e.cache.SetProbability(m.MarketID, m.Outcome, m.Probability, m.Ts)
	e.evaluate(m.MarketID, m.Outcome)
}

// evaluate computes the edge for one key. It is a no-op while either feed
// side is missing (normal intermediate state) and below the threshold
// (hard gate — no signal, however close).
func (e *Edge) evaluate(marketID, outcome string) {
	s, ok := e.cache.Get(marketID, outcome)
	if !ok || !s.Complete() {
		return
	}

	marketProb := clamp(s.Price, probFloor, probCeil)
	modelProb := clamp(s.Probability, probFloor, probCeil)

	edge := modelProb - marketProb
	if edge < e.cfg.EdgeThreshold {
		return
	}

	// Net odds-to-1 implied by a binary contract at this price.
	b := 1/marketProb - 1
	kellyRaw := clamp((b*modelProb-(1-modelProb))/b, 0, 1)
	kelly := kellyRaw * e.cfg.KellyFraction
	size := math.Min(e.cfg.Bankroll*kelly, e.cfg.MaxTradeUsd)

	metrics.SignalsEmitted.Inc()
	e.bus.PublishSignal(domain.EdgeSignal{
		MarketID:      marketID,
		Outcome:       outcome,
		Edge:          edge,
		Kelly:         kelly,
		SuggestedSize: size,
		Price:         s.Price,
		Probability:   modelProb,
		Ts:            e.now(),
	})
}

// PruneStale evicts state entries not updated within ttl. Scheduled by the
// composition root through bus.Exec so it shares the dispatcher with the
// feed handlers.
func (e *Edge) PruneStale(ttl time.Duration, now time.Time) int {
	return e.cache.PruneStale(ttl, now)
}

// TrackedKeys returns the number of keys currently cached.
func (e *Edge) TrackedKeys() int {
	return e.cache.Len()
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
