package analytics

import (
	"time"

	"github.com/alejandrodnm/polyedge/internal/bus"
	"github.com/alejandrodnm/polyedge/internal/domain"
	"github.com/alejandrodnm/polyedge/internal/metrics"
)

// alertCooldown is the per-type debounce window. Part of the gate's
// contract, not a tuning knob.
const alertCooldown = 30 * time.Second

// Gate publishes risk alerts with a per-type cooldown so a flapping metric
// produces one alert per window instead of one per tick. It knows nothing
// about severity or delivery; that is the notifier's problem.
type Gate struct {
	bus      *bus.Bus
	lastSent map[string]time.Time
	now      func() time.Time
}

func NewGate(b *bus.Bus) *Gate {
	return &Gate{bus: b, lastSent: make(map[string]time.Time), now: time.Now}
}

// Check publishes an alert when value exceeds threshold, unless the same
// type already fired within the cooldown window.
func (g *Gate) Check(typ string, value, threshold float64, message string) {
	if value <= threshold {
		return
	}
	now := g.now()
	if last, ok := g.lastSent[typ]; ok && now.Sub(last) < alertCooldown {
		return
	}
	g.lastSent[typ] = now

	metrics.AlertsFired.Inc()
	g.bus.PublishAlert(domain.Alert{
		Type:      typ,
		Message:   message,
		Value:     value,
		Threshold: threshold,
		Ts:        now,
	})
}
