package engine

import (
	"time"

	"github.com/alejandrodnm/polyedge/internal/domain"
)

// Cache holds the latest (price, probability) pair per market outcome.
// Entries are created on the first observation of either field and only
// leave through PruneStale. No locking: every mutation runs as a bus
// reaction on the dispatcher goroutine.
type Cache struct {
	states map[domain.MarketKey]*domain.MarketState
}

func NewCache() *Cache {
	return &Cache{states: make(map[domain.MarketKey]*domain.MarketState)}
}

func (c *Cache) state(marketID, outcome string) *domain.MarketState {
	key := domain.MarketKey{MarketID: marketID, Outcome: outcome}
	s, ok := c.states[key]
	if !ok {
		s = &domain.MarketState{}
		c.states[key] = s
	}
	return s
}

// SetPrice upserts the price field, preserving any probability already
// observed for the key.
func (c *Cache) SetPrice(marketID, outcome string, price float64, ts time.Time) {
	s := c.state(marketID, outcome)
	s.Price = price
	s.HasPrice = true
	s.LastUpdate = ts
}

// SetProbability upserts the model probability, preserving any price
// already observed for the key.
func (c *Cache) SetProbability(marketID, outcome string, prob float64, ts time.Time) {
	s := c.state(marketID, outcome)
	s.Probability = prob
	s.HasProb = true
	s.LastUpdate = ts
}

// Get returns the current state for the key. Absent data is represented as
// "field not yet set", never as an error.
func (c *Cache) Get(marketID, outcome string) (domain.MarketState, bool) {
	s, ok := c.states[domain.MarketKey{MarketID: marketID, Outcome: outcome}]
	if !ok {
		return domain.MarketState{}, false
	}
	return *s, true
}

// Len returns the number of tracked keys.
func (c *Cache) Len() int {
	return len(c.states)
}

// PruneStale drops every key whose last update is older than ttl and
// returns how many were removed. Keys reappear on the next tick for their
// market, so a too-aggressive sweep self-heals.
func (c *Cache) PruneStale(ttl time.Duration, now time.Time) int {
	cutoff := now.Add(-ttl)
	removed := 0
	for key, s := range c.states {
		if s.LastUpdate.Before(cutoff) {
			delete(c.states, key)
			removed++
		}
	}
	return removed
}
