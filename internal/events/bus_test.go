package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"barter/internal/models"
)

func TestBusDeliversInOrderAndSurvivesPanics(t *testing.T) {
	bus := NewBus()
	var calls []string

	bus.Subscribe("first", func(ctx context.Context, e Event) {
		calls = append(calls, "first:"+e.EventName())
	})
	bus.Subscribe("broken", func(ctx context.Context, e Event) {
		panic("boom")
	})
	bus.Subscribe("last", func(ctx context.Context, e Event) {
		if ev, ok := e.(TradeStatusChanged); ok {
			calls = append(calls, "last:"+string(ev.Trade.Status))
		}
	})

	bus.Publish(context.Background(), TradeStatusChanged{Trade: models.Trade{Status: models.TradeAccepted}})

	assert.Equal(t, []string{"first:trade.status_changed", "last:ACCEPTED"}, calls)
}

func TestBusWithoutSubscribers(t *testing.T) {
	assert.NotPanics(t, func() {
		NewBus().Publish(context.Background(), MessageCreated{})
	})
}

func TestBusHandlersOutliveCancelledCaller(t *testing.T) {
	bus := NewBus()
	var handlerErr error = context.Canceled
	bus.Subscribe("persist", func(ctx context.Context, e Event) {
		handlerErr = ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	bus.Publish(ctx, TradeStatusChanged{})

	assert.NoError(t, handlerErr)
}
