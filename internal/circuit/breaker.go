// Package circuit implements a minimal failure-count circuit breaker used
// by the chain monitor to stop emitting events while the RPC connection is
// flapping.
package circuit

import "time"

// State of the breaker.
type State string

const (
	Closed   State = "CLOSED"
	Open     State = "OPEN"
	HalfOpen State = "HALF_OPEN"
)

// Breaker opens after threshold consecutive failures and allows execution
// again once the cooldown has elapsed (half-open probe). A success fully
// closes it.
type Breaker struct {
	threshold int
	cooldown  time.Duration
	failures  int
	openedAt  time.Time
	now       func() time.Time
}

func New(threshold int, cooldown time.Duration) *Breaker {
	return &Breaker{threshold: threshold, cooldown: cooldown, now: time.Now}
}

// CanExecute reports whether the guarded operation may run.
func (b *Breaker) CanExecute() bool {
	if b.failures < b.threshold {
		return true
	}
	return b.now().Sub(b.openedAt) > b.cooldown
}

// OnSuccess resets the breaker to closed.
func (b *Breaker) OnSuccess() {
	b.failures = 0
	b.openedAt = time.Time{}
}

// OnFailure records one failure, opening the breaker at the threshold.
func (b *Breaker) OnFailure() {
	b.failures++
	if b.failures >= b.threshold && b.openedAt.IsZero() {
		b.openedAt = b.now()
	}
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	if b.failures < b.threshold {
		return Closed
	}
	if b.now().Sub(b.openedAt) > b.cooldown {
		return HalfOpen
	}
	return Open
}
