package notify

import (
	"context"
	"log/slog"

	"barter/internal/events"
	"barter/internal/pubsub"
)

// Relay forwards chat messages and status changes to the trade's own topics
// so an open trade view updates live.
type Relay struct {
	publisher pubsub.Publisher
}

func NewRelay(publisher pubsub.Publisher) *Relay {
	return &Relay{publisher: publisher}
}

func (r *Relay) Register(bus *events.Bus) {
	bus.Subscribe("notify.relay", func(ctx context.Context, e events.Event) {
		var msg pubsub.Message
		switch ev := e.(type) {
		case events.MessageCreated:
			msg = pubsub.Message{Topic: pubsub.TradeMessagesTopic(ev.Trade.ID), Type: pubsub.TypeMessage, Data: ev.Message}
		case events.TradeStatusChanged:
			msg = pubsub.Message{Topic: pubsub.TradeStatusTopic(ev.Trade.ID), Type: pubsub.TypeTrade, Data: ev.Trade.View()}
		default:
			return
		}

		if err := r.publisher.Publish(ctx, msg); err != nil {
			slog.Debug("relay push skipped", "component", "notify", "topic", msg.Topic, "error", err)
		}
	})
}
