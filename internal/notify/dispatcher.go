// Package notify turns trade events into persisted notifications and pushes
// them to the recipient's realtime topic.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"barter/internal/constants"
	"barter/internal/events"
	"barter/internal/models"
	"barter/internal/pubsub"
)

const (
	MessageTitle       = "New message on your trade"
	TradeTitle         = "Trade update"
	MessagePlaceholder = "You have a new message."
)

type NotificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
	ListByRecipient(ctx context.Context, recipientID string) ([]models.Notification, error)
	MarkRead(ctx context.Context, recipientID string, ids []string) (int64, error)
	MarkAllRead(ctx context.Context, recipientID string) (int64, error)
}

type Dispatcher struct {
	store     NotificationStore
	publisher pubsub.Publisher
}

func NewDispatcher(store NotificationStore, publisher pubsub.Publisher) *Dispatcher {
	return &Dispatcher{store: store, publisher: publisher}
}

// Register subscribes the dispatcher to the events it turns into
// notifications.
func (d *Dispatcher) Register(bus *events.Bus) {
	bus.Subscribe("notify.dispatcher", func(ctx context.Context, e events.Event) {
		switch ev := e.(type) {
		case events.MessageCreated:
			recipient := ev.Trade.Counterpart(ev.Message.SenderID)
			if recipient == "" || recipient == ev.Message.SenderID {
				return
			}
			if _, err := d.NotifyMessage(ctx, recipient, ev.Message); err != nil {
				slog.Error("failed to notify message", "component", "notify", "trade_id", ev.Trade.ID, "error", err)
			}
		case events.TradeStatusChanged:
			if _, err := d.NotifyTradeStatusChange(ctx, ev.Trade, ev.ActorProfileID); err != nil {
				slog.Error("failed to notify trade status change", "component", "notify", "trade_id", ev.Trade.ID, "error", err)
			}
		}
	})
}

func (d *Dispatcher) NotifyMessage(ctx context.Context, recipientID string, msg models.Message) (*models.Notification, error) {
	tradeID, messageID := msg.TradeID, msg.ID
	n := &models.Notification{
		RecipientID: recipientID,
		Type:        models.NotificationMessage,
		Title:       MessageTitle,
		Body:        Preview(msg.Content),
		TradeID:     &tradeID,
		MessageID:   &messageID,
	}
	if err := d.store.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("storing message notification: %w", err)
	}

	d.push(ctx, n)
	return n, nil
}

// NotifyTradeStatusChange notifies each participant other than the actor.
func (d *Dispatcher) NotifyTradeStatusChange(ctx context.Context, trade models.Trade, actorID string) ([]models.Notification, error) {
	body := StatusSentence(trade)
	var sent []models.Notification

	for _, recipient := range uniqueParticipants(trade) {
		if recipient == actorID {
			continue
		}

		tradeID := trade.ID
		n := &models.Notification{
			RecipientID: recipient,
			Type:        models.NotificationTrade,
			Title:       TradeTitle,
			Body:        body,
			TradeID:     &tradeID,
		}
		if err := d.store.Create(ctx, n); err != nil {
			return sent, fmt.Errorf("storing trade notification: %w", err)
		}

		d.push(ctx, n)
		sent = append(sent, *n)
	}
	return sent, nil
}

func (d *Dispatcher) List(ctx context.Context, recipientID string) ([]models.Notification, error) {
	list, err := d.store.ListByRecipient(ctx, recipientID)
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	return list, nil
}

// MarkAsRead ignores IDs that do not belong to the recipient.
func (d *Dispatcher) MarkAsRead(ctx context.Context, recipientID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := d.store.MarkRead(ctx, recipientID, ids); err != nil {
		return fmt.Errorf("marking notifications read: %w", err)
	}
	return nil
}

func (d *Dispatcher) MarkAllAsRead(ctx context.Context, recipientID string) error {
	if _, err := d.store.MarkAllRead(ctx, recipientID); err != nil {
		return fmt.Errorf("marking all notifications read: %w", err)
	}
	return nil
}

// push is best effort: the notification is already stored, so a recipient
// who is offline still sees it on the next List.
func (d *Dispatcher) push(ctx context.Context, n *models.Notification) {
	err := d.publisher.Publish(ctx, pubsub.Message{
		Topic: pubsub.NotificationsTopic(n.RecipientID),
		Type:  pubsub.TypeNotification,
		Data:  n,
	})
	if err != nil {
		slog.Debug("notification not pushed", "component", "notify", "recipient_id", n.RecipientID, "error", err)
	}
}

// Preview trims content to the notification budget, ending in "..." when cut.
func Preview(content string) string {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return MessagePlaceholder
	}

	limit := constants.NotificationPreviewLimit
	if utf8.RuneCountInString(trimmed) <= limit {
		return trimmed
	}
	runes := []rune(trimmed)
	return string(runes[:limit-3]) + "..."
}

func StatusSentence(trade models.Trade) string {
	label := trade.Status.Label()
	if title := strings.TrimSpace(trade.OwnerItemTitle); title != "" {
		return fmt.Sprintf("The trade for \"%s\" was %s.", title, label)
	}
	return fmt.Sprintf("The trade status changed to %s.", label)
}

func uniqueParticipants(trade models.Trade) []string {
	var out []string
	for _, id := range []string{trade.OwnerID, trade.RequesterID} {
		if id == "" {
			continue
		}
		if len(out) == 1 && out[0] == id {
			continue
		}
		out = append(out, id)
	}
	return out
}
