package db

import (
	"context"
	"fmt"
	"time"

	"barter/internal/models"
)

type MessageRepository struct {
	db *DB
}

func NewMessageRepository(db *DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(ctx context.Context, tradeID, senderID, content string) (*models.Message, error) {
	id, err := GenerateID("msg")
	if err != nil {
		return nil, fmt.Errorf("generating message ID: %w", err)
	}
	now := time.Now().UTC()

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO messages (id, trade_id, sender_id, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, tradeID, senderID, content, now,
	)
	if err != nil {
		return nil, fmt.Errorf("creating message: %w", err)
	}

	return &models.Message{
		ID:        id,
		TradeID:   tradeID,
		SenderID:  senderID,
		Content:   content,
		CreatedAt: now,
	}, nil
}

// ListByTrade returns the chat of a trade, oldest first.
func (r *MessageRepository) ListByTrade(ctx context.Context, tradeID string) ([]models.Message, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, trade_id, sender_id, content, created_at
		   FROM messages
		  WHERE trade_id = ?
		  ORDER BY created_at ASC, rowid ASC`,
		tradeID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.TradeID, &m.SenderID, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}
	return messages, nil
}
