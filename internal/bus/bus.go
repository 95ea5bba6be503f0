// Package bus is the in-process event bus connecting feeds, the edge
// engine, the executor, the reconciler, analytics and the outbound
// adapters. One dispatcher goroutine drains a FIFO queue and invokes every
// handler sequentially: handlers never run concurrently, events are
// delivered in publish order, and all core-state mutations funnel through
// this single point. The bus is passed into each component's constructor —
// there is no package-level singleton.
package bus

import (
	"context"
	"sync"

	"github.com/alejandrodnm/polyedge/internal/domain"
)

// Bus fans out typed events to their subscribers. Subscribe before calling
// Run; subscription is not synchronized against dispatch.
type Bus struct {
	mu    sync.Mutex
	queue []func()
	wake  chan struct{}

	priceSubs    []func(domain.PriceTick)
	modelSubs    []func(domain.ModelUpdate)
	signalSubs   []func(domain.EdgeSignal)
	tradeSubs    []func(domain.Trade)
	resolveSubs  []func(domain.Resolution)
	transferSubs []func(domain.Transfer)
	alertSubs    []func(domain.Alert)
	errorSubs    []func(domain.SystemError)
}

func New() *Bus {
	return &Bus{wake: make(chan struct{}, 1)}
}

// Run dispatches queued events until ctx is done. Call it once, in its own
// goroutine.
func (b *Bus) Run(ctx context.Context) {
	for {
		b.Drain()
		select {
		case <-ctx.Done():
			return
		case <-b.wake:
		}
	}
}

// Drain processes every queued event on the calling goroutine and returns
// once the queue is empty. Used by Run and by tests that want synchronous
// delivery without a dispatcher goroutine.
func (b *Bus) Drain() {
	for {
		b.mu.Lock()
		if len(b.queue) == 0 {
			b.mu.Unlock()
			return
		}
		fn := b.queue[0]
		b.queue = b.queue[1:]
		b.mu.Unlock()
		fn()
	}
}

// enqueue appends one dispatch to the queue. The queue is unbounded so a
// handler can publish follow-up events without ever blocking the
// dispatcher that is running it.
func (b *Bus) enqueue(fn func()) {
	b.mu.Lock()
	b.queue = append(b.queue, fn)
	b.mu.Unlock()
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// Exec schedules an arbitrary function on the dispatcher, giving periodic
// maintenance (cache sweeps) the same serialization as event handlers.
func (b *Bus) Exec(fn func()) {
	b.enqueue(fn)
}

func (b *Bus) OnPrice(fn func(domain.PriceTick)) {
	b.priceSubs = append(b.priceSubs, fn)
}

func (b *Bus) OnModel(fn func(domain.ModelUpdate)) {
	b.modelSubs = append(b.modelSubs, fn)
}

func (b *Bus) OnSignal(fn func(domain.EdgeSignal)) {
	b.signalSubs = append(b.signalSubs, fn)
}

func (b *Bus) OnTrade(fn func(domain.Trade)) {
	b.tradeSubs = append(b.tradeSubs, fn)
}

func (b *Bus) OnResolution(fn func(domain.Resolution)) {
	b.resolveSubs = append(b.resolveSubs, fn)
}

func (b *Bus) OnTransfer(fn func(domain.Transfer)) {
	b.transferSubs = append(b.transferSubs, fn)
}

func (b *Bus) OnAlert(fn func(domain.Alert)) {
	b.alertSubs = append(b.alertSubs, fn)
}

func (b *Bus) OnError(fn func(domain.SystemError)) {
	b.errorSubs = append(b.errorSubs, fn)
}

func (b *Bus) PublishPrice(p domain.PriceTick) {
	b.enqueue(func() {
		for _, fn := range b.priceSubs {
			fn(p)
		}
	})
}

func (b *Bus) PublishModel(m domain.ModelUpdate) {
	b.enqueue(func() {
		for _, fn := range b.modelSubs {
			fn(m)
		}
	})
}

func (b *Bus) PublishSignal(s domain.EdgeSignal) {
	b.enqueue(func() {
		for _, fn := range b.signalSubs {
			fn(s)
		}
	})
}

func (b *Bus) PublishTrade(t domain.Trade) {
	b.enqueue(func() {
		for _, fn := range b.tradeSubs {
			fn(t)
		}
	})
}

func (b *Bus) PublishResolution(r domain.Resolution) {
	b.enqueue(func() {
		for _, fn := range b.resolveSubs {
			fn(r)
		}
	})
}

func (b *Bus) PublishTransfer(t domain.Transfer) {
	b.enqueue(func() {
		for _, fn := range b.transferSubs {
			fn(t)
		}
	})
}

func (b *Bus) PublishAlert(a domain.Alert) {
	b.enqueue(func() {
		for _, fn := range b.alertSubs {
			fn(a)
		}
	})
}

func (b *Bus) PublishError(e domain.SystemError) {
	b.enqueue(func() {
		for _, fn := range b.errorSubs {
			fn(e)
		}
	})
}
