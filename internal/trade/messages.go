package trade

import (
	"context"
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"barter/internal/apperr"
	"barter/internal/constants"
	"barter/internal/events"
	"barter/internal/models"
)

// newSanitizer strips all markup from chat text. Entities are decoded again
// so the stored text is what the user typed minus tags.
func newSanitizer() func(string) string {
	policy := bluemonday.StrictPolicy()
	return func(s string) string {
		return html.UnescapeString(policy.Sanitize(s))
	}
}

func (s *Service) PostMessage(ctx context.Context, tradeID, senderID, content string) (*models.Message, error) {
	t, err := s.trades.FindByID(ctx, tradeID)
	if err != nil {
		return nil, notFoundOr(err, "Trade not found", "loading trade")
	}
	if !t.IsParticipant(senderID) {
		return nil, apperr.New(apperr.Forbidden, "You are not a participant of this trade")
	}

	text, err := s.cleanMessage(content, false)
	if err != nil {
		return nil, err
	}

	msg, err := s.messages.Create(ctx, tradeID, senderID, text)
	if err != nil {
		return nil, fmt.Errorf("creating message: %w", err)
	}

	s.bus.Publish(ctx, events.MessageCreated{Message: *msg, Trade: *t})
	return msg, nil
}

// ListMessages returns the chat of a trade, oldest first.
func (s *Service) ListMessages(ctx context.Context, tradeID, profileID string) ([]models.Message, error) {
	if _, err := s.GetTrade(ctx, tradeID, profileID); err != nil {
		return nil, err
	}

	messages, err := s.messages.ListByTrade(ctx, tradeID)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	return messages, nil
}

// cleanMessage sanitizes and bounds chat text. An opening message may be
// empty; a posted one may not.
func (s *Service) cleanMessage(content string, optional bool) (string, error) {
	text := strings.TrimSpace(s.sanitize(content))
	if text == "" {
		if optional {
			return "", nil
		}
		return "", apperr.New(apperr.InvalidArgument, "Message content is required")
	}
	if utf8.RuneCountInString(text) > constants.MessageMaxLength {
		return "", apperr.New(apperr.InvalidArgument,
			fmt.Sprintf("Message must be at most %d characters", constants.MessageMaxLength))
	}
	return text, nil
}
