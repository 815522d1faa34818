// Package trade owns the trade lifecycle: who may propose, who may move a
// trade between statuses and which moves are legal.
package trade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"barter/internal/apperr"
	"barter/internal/db"
	"barter/internal/events"
	"barter/internal/models"
)

type TradeStore interface {
	Create(ctx context.Context, t *models.Trade, opening string) (*models.Message, error)
	FindByID(ctx context.Context, id string) (*models.Trade, error)
	UpdateStatus(ctx context.Context, id string, from, to models.TradeStatus) (*models.Trade, error)
	ListForProfile(ctx context.Context, profileID string, statuses []models.TradeStatus) ([]models.Trade, error)
}

type ItemStore interface {
	FindByID(ctx context.Context, id string) (*models.Item, error)
}

type ProfileStore interface {
	FindByID(ctx context.Context, id string) (*models.Profile, error)
}

type MessageStore interface {
	Create(ctx context.Context, tradeID, senderID, content string) (*models.Message, error)
	ListByTrade(ctx context.Context, tradeID string) ([]models.Message, error)
}

type Publisher interface {
	Publish(ctx context.Context, event events.Event)
}

type CreateInput struct {
	OwnerItemID     string
	RequesterItemID *string
	Message         string
}

type Service struct {
	trades   TradeStore
	items    ItemStore
	profiles ProfileStore
	messages MessageStore
	bus      Publisher
	sanitize func(string) string
}

func NewService(trades TradeStore, items ItemStore, profiles ProfileStore, messages MessageStore, bus Publisher) *Service {
	return &Service{
		trades:   trades,
		items:    items,
		profiles: profiles,
		messages: messages,
		bus:      bus,
		sanitize: newSanitizer(),
	}
}

func (s *Service) Create(ctx context.Context, in CreateInput, requesterID string) (*models.Trade, error) {
	ownerItem, err := s.items.FindByID(ctx, in.OwnerItemID)
	if err != nil {
		return nil, notFoundOr(err, "Item not found", "loading owner item")
	}

	if _, err := s.profiles.FindByID(ctx, requesterID); err != nil {
		return nil, notFoundOr(err, "Profile not found", "loading requester profile")
	}

	if ownerItem.OwnerID == requesterID {
		return nil, apperr.New(apperr.InvalidArgument, "You cannot propose a trade for your own item")
	}

	var requesterItemID *string
	if in.RequesterItemID != nil && strings.TrimSpace(*in.RequesterItemID) != "" {
		requesterItem, err := s.items.FindByID(ctx, *in.RequesterItemID)
		if err != nil {
			return nil, notFoundOr(err, "Offered item not found", "loading requester item")
		}
		if requesterItem.OwnerID != requesterID {
			return nil, apperr.New(apperr.InvalidArgument, "The offered item does not belong to you")
		}
		requesterItemID = &requesterItem.ID
	}

	opening, err := s.cleanMessage(in.Message, true)
	if err != nil {
		return nil, err
	}

	t := &models.Trade{
		OwnerID:         ownerItem.OwnerID,
		RequesterID:     requesterID,
		OwnerItemID:     ownerItem.ID,
		OwnerItemTitle:  ownerItem.Title,
		RequesterItemID: requesterItemID,
		Message:         opening,
	}
	msg, err := s.trades.Create(ctx, t, opening)
	if err != nil {
		return nil, fmt.Errorf("creating trade: %w", err)
	}

	slog.Info("trade created", "component", "trade", "trade_id", t.ID, "owner_id", t.OwnerID, "requester_id", t.RequesterID)

	if msg != nil {
		s.bus.Publish(ctx, events.MessageCreated{Message: *msg, Trade: *t})
	}
	return t, nil
}

// UpdateStatus checks existence, then ownership, then the transition table,
// in that order. The event is published only after the write is confirmed.
func (s *Service) UpdateStatus(ctx context.Context, tradeID string, status models.TradeStatus, actorID string) (*models.Trade, error) {
	current, err := s.trades.FindByID(ctx, tradeID)
	if err != nil {
		return nil, notFoundOr(err, "Trade not found", "loading trade")
	}

	if current.OwnerID != actorID {
		return nil, apperr.New(apperr.Forbidden, "Only the owner can change the status of this trade")
	}

	if !CanTransition(current.Status, status) {
		return nil, invalidTransition(current.Status, status)
	}

	updated, err := s.trades.UpdateStatus(ctx, tradeID, current.Status, status)
	if errors.Is(err, db.ErrStale) {
		// Someone else moved the trade first; report against what they left.
		latest, findErr := s.trades.FindByID(ctx, tradeID)
		if findErr != nil {
			return nil, fmt.Errorf("reloading trade: %w", findErr)
		}
		return nil, invalidTransition(latest.Status, status)
	}
	if err != nil {
		return nil, fmt.Errorf("updating trade status: %w", err)
	}

	slog.Info("trade status changed",
		"component", "trade",
		"trade_id", tradeID,
		"from", current.Status,
		"to", updated.Status,
		"actor_id", actorID,
	)

	s.bus.Publish(ctx, events.TradeStatusChanged{Trade: *updated, From: current.Status, ActorProfileID: actorID})
	return updated, nil
}

func (s *Service) Accept(ctx context.Context, tradeID, actorID string) (*models.Trade, error) {
	return s.UpdateStatus(ctx, tradeID, models.TradeAccepted, actorID)
}

func (s *Service) Reject(ctx context.Context, tradeID, actorID string) (*models.Trade, error) {
	return s.UpdateStatus(ctx, tradeID, models.TradeRejected, actorID)
}

func (s *Service) Cancel(ctx context.Context, tradeID, actorID string) (*models.Trade, error) {
	return s.UpdateStatus(ctx, tradeID, models.TradeCancelled, actorID)
}

func (s *Service) Complete(ctx context.Context, tradeID, actorID string) (*models.Trade, error) {
	return s.UpdateStatus(ctx, tradeID, models.TradeCompleted, actorID)
}

// ListTrades returns trades where profileID is owner or requester, newest
// first. Duplicate statuses in the filter are ignored; an empty filter
// matches every status.
func (s *Service) ListTrades(ctx context.Context, profileID string, statuses []models.TradeStatus) ([]models.Trade, error) {
	seen := make(map[models.TradeStatus]struct{}, len(statuses))
	filter := make([]models.TradeStatus, 0, len(statuses))
	for _, st := range statuses {
		if _, dup := seen[st]; dup {
			continue
		}
		seen[st] = struct{}{}
		filter = append(filter, st)
	}

	trades, err := s.trades.ListForProfile(ctx, profileID, filter)
	if err != nil {
		return nil, fmt.Errorf("listing trades: %w", err)
	}
	return trades, nil
}

func (s *Service) GetTrade(ctx context.Context, tradeID, profileID string) (*models.Trade, error) {
	t, err := s.trades.FindByID(ctx, tradeID)
	if err != nil {
		return nil, notFoundOr(err, "Trade not found", "loading trade")
	}
	if !t.IsParticipant(profileID) {
		return nil, apperr.New(apperr.Forbidden, "You are not a participant of this trade")
	}
	return t, nil
}

func invalidTransition(from, to models.TradeStatus) error {
	return apperr.New(apperr.InvalidTransition,
		fmt.Sprintf("Cannot change trade status from %s to %s", from, to))
}

func notFoundOr(err error, message, op string) error {
	if errors.Is(err, db.ErrNotFound) {
		return apperr.New(apperr.NotFound, message)
	}
	return fmt.Errorf("%s: %w", op, err)
}
