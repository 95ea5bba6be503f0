package analytics

import "github.com/alejandrodnm/polyedge/internal/domain"

// breakdownTradeLimit caps how many recent trades the snapshot groups.
const breakdownTradeLimit = 500

// BreakdownByOutcome groups trades by outcome with expected value as the
// pnl proxy (realized pnl only exists after resolution).
func BreakdownByOutcome(trades []domain.Trade) map[string]domain.BucketStats {
	out := make(map[string]domain.BucketStats)
	for _, t := range trades {
		key := t.Outcome
		if key == "" {
			key = "UNKNOWN"
		}
		row := out[key]
		row.Count++
		row.Pnl += t.ExpectedValue
		out[key] = row
	}
	return out
}

// BreakdownByMarket groups trades by market.
func BreakdownByMarket(trades []domain.Trade) map[string]domain.BucketStats {
	out := make(map[string]domain.BucketStats)
	for _, t := range trades {
		key := t.MarketID
		if key == "" {
			key = "UNKNOWN"
		}
		row := out[key]
		row.Count++
		row.Pnl += t.ExpectedValue
		out[key] = row
	}
	return out
}
