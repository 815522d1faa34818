package ws

import (
	"context"
	"errors"

	"barter/internal/db"
	"barter/internal/models"
	"barter/internal/pubsub"
)

var (
	ErrUnknownTopic   = errors.New("unknown topic")
	ErrTopicForbidden = errors.New("topic not allowed")
)

type TopicAuthorizer interface {
	Authorize(ctx context.Context, profileID, topic string) error
}

type TradeFinder interface {
	FindByID(ctx context.Context, id string) (*models.Trade, error)
}

// ParticipantAuthorizer lets a profile read its own notification topic and
// the topics of trades it takes part in.
type ParticipantAuthorizer struct {
	trades TradeFinder
}

func NewParticipantAuthorizer(trades TradeFinder) *ParticipantAuthorizer {
	return &ParticipantAuthorizer{trades: trades}
}

func (a *ParticipantAuthorizer) Authorize(ctx context.Context, profileID, topic string) error {
	kind, id, _, ok := pubsub.ParseTopic(topic)
	if !ok {
		return ErrUnknownTopic
	}

	switch kind {
	case "profiles":
		if id != profileID {
			return ErrTopicForbidden
		}
		return nil
	case "trades":
		t, err := a.trades.FindByID(ctx, id)
		if errors.Is(err, db.ErrNotFound) {
			return ErrTopicForbidden
		}
		if err != nil {
			return err
		}
		if !t.IsParticipant(profileID) {
			return ErrTopicForbidden
		}
		return nil
	}
	return ErrUnknownTopic
}
