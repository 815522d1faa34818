package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"barter/internal/models"
)

type NotificationRepository struct {
	db *DB
}

func NewNotificationRepository(db *DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create persists n, filling in its ID and CreatedAt.
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	id, err := GenerateID("ntf")
	if err != nil {
		return fmt.Errorf("generating notification ID: %w", err)
	}
	now := time.Now().UTC()

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO notifications (id, recipient_id, type, title, body, read, trade_id, message_id, created_at)
		 VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?)`,
		id, n.RecipientID, n.Type, n.Title, n.Body,
		ptrToNullString(n.TradeID), ptrToNullString(n.MessageID), now,
	)
	if err != nil {
		return fmt.Errorf("creating notification: %w", err)
	}

	n.ID = id
	n.Read = false
	n.CreatedAt = now
	return nil
}

// ListByRecipient returns the recipient's notifications, newest first.
func (r *NotificationRepository) ListByRecipient(ctx context.Context, recipientID string) ([]models.Notification, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, recipient_id, type, title, body, read, trade_id, message_id, created_at
		   FROM notifications
		  WHERE recipient_id = ?
		  ORDER BY created_at DESC, rowid DESC`,
		recipientID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	defer rows.Close()

	list := []models.Notification{}
	for rows.Next() {
		var n models.Notification
		var tradeID, messageID sql.NullString
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.Type, &n.Title, &n.Body, &n.Read, &tradeID, &messageID, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning notification: %w", err)
		}
		n.TradeID = nullStringToPtr(tradeID)
		n.MessageID = nullStringToPtr(messageID)
		list = append(list, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating notifications: %w", err)
	}
	return list, nil
}

// MarkRead flags the given notifications as read. IDs that belong to another
// recipient are ignored.
func (r *NotificationRepository) MarkRead(ctx context.Context, recipientID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	args := make([]any, 0, len(ids)+1)
	args = append(args, recipientID)
	for _, id := range ids {
		args = append(args, id)
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET read = 1 WHERE recipient_id = ? AND read = 0 AND id IN (`+inClause(len(ids))+`)`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("marking notifications read: %w", err)
	}
	return result.RowsAffected()
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET read = 1 WHERE recipient_id = ? AND read = 0`,
		recipientID,
	)
	if err != nil {
		return 0, fmt.Errorf("marking all notifications read: %w", err)
	}
	return result.RowsAffected()
}
