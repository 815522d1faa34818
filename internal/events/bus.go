// Package events is the in-process bus between the trade service and its
// listeners. Publishing happens after the triggering write has committed.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"barter/internal/models"
)

// Event is any payload published on the bus.
type Event interface {
	EventName() string
}

type TradeStatusChanged struct {
	Trade          models.Trade
	From           models.TradeStatus
	ActorProfileID string
}

func (TradeStatusChanged) EventName() string { return "trade.status_changed" }

type MessageCreated struct {
	Message models.Message
	Trade   models.Trade
}

func (MessageCreated) EventName() string { return "trade.message_created" }

type Handler func(ctx context.Context, event Event)

type subscription struct {
	name    string
	handler Handler
}

// Bus delivers each event to every subscriber synchronously, in the order
// they subscribed. A panicking handler is logged and does not stop the rest.
type Bus struct {
	mu   sync.RWMutex
	subs []subscription
}

func NewBus() *Bus {
	return &Bus{}
}

func (b *Bus) Subscribe(name string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, subscription{name: name, handler: handler})
}

// Publish runs after the state change has been committed, so handlers must
// finish even if the request that caused it has gone away.
func (b *Bus) Publish(ctx context.Context, event Event) {
	ctx = context.WithoutCancel(ctx)

	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, sub := range subs {
		b.deliver(ctx, sub, event)
	}
}

func (b *Bus) deliver(ctx context.Context, sub subscription, event Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("event handler panicked",
				"component", "events",
				"handler", sub.name,
				"event", event.EventName(),
				"panic", fmt.Sprint(r),
			)
		}
	}()
	sub.handler(ctx, event)
}
