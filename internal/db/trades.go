package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"barter/internal/models"
)

type TradeRepository struct {
	db *DB
}

func NewTradeRepository(db *DB) *TradeRepository {
	return &TradeRepository{db: db}
}

const tradeColumns = `t.id, t.owner_id, t.requester_id, t.owner_item_id, i.title, t.requester_item_id,
       t.message, t.status, t.created_at, t.updated_at`

// Create stores a new PENDING trade. A non-empty opening message is stored as
// the first chat message of the trade in the same transaction and returned.
func (r *TradeRepository) Create(ctx context.Context, t *models.Trade, opening string) (*models.Message, error) {
	id, err := GenerateID("trd")
	if err != nil {
		return nil, fmt.Errorf("generating trade ID: %w", err)
	}

	var msg *models.Message
	if opening != "" {
		msgID, err := GenerateID("msg")
		if err != nil {
			return nil, fmt.Errorf("generating message ID: %w", err)
		}
		msg = &models.Message{ID: msgID, TradeID: id, SenderID: t.RequesterID, Content: opening}
	}

	now := time.Now().UTC()
	err = r.db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO trades (id, owner_id, requester_id, owner_item_id, requester_item_id, message, status, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, t.OwnerID, t.RequesterID, t.OwnerItemID, ptrToNullString(t.RequesterItemID),
			t.Message, models.TradePending, now, now,
		); err != nil {
			return fmt.Errorf("creating trade: %w", err)
		}

		if msg == nil {
			return nil
		}
		msg.CreatedAt = now
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (id, trade_id, sender_id, content, created_at) VALUES (?, ?, ?, ?, ?)`,
			msg.ID, msg.TradeID, msg.SenderID, msg.Content, msg.CreatedAt,
		); err != nil {
			return fmt.Errorf("creating opening message: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	t.ID = id
	t.Status = models.TradePending
	t.CreatedAt = now
	t.UpdatedAt = now
	return msg, nil
}

func (r *TradeRepository) FindByID(ctx context.Context, id string) (*models.Trade, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+tradeColumns+`
		   FROM trades t
		   JOIN items i ON i.id = t.owner_item_id
		  WHERE t.id = ?`,
		id,
	)

	t, err := scanTrade(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying trade: %w", err)
	}
	return t, nil
}

// UpdateStatus moves a trade from one status to another only if it is still
// in from. ErrStale means another writer changed the status first.
func (r *TradeRepository) UpdateStatus(ctx context.Context, id string, from, to models.TradeStatus) (*models.Trade, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE trades SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to, time.Now().UTC(), id, from,
	)
	if err != nil {
		return nil, fmt.Errorf("updating trade status: %w", err)
	}
	if err := checkRowsAffected(result); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrStale
		}
		return nil, err
	}

	return r.FindByID(ctx, id)
}

// ListForProfile returns trades the profile owns or requested, newest first.
// An empty statuses slice means no status filter.
func (r *TradeRepository) ListForProfile(ctx context.Context, profileID string, statuses []models.TradeStatus) ([]models.Trade, error) {
	query := `SELECT ` + tradeColumns + `
	            FROM trades t
	            JOIN items i ON i.id = t.owner_item_id
	           WHERE (t.owner_id = ? OR t.requester_id = ?)`
	args := []any{profileID, profileID}

	if len(statuses) > 0 {
		query += ` AND t.status IN (` + inClause(len(statuses)) + `)`
		for _, s := range statuses {
			args = append(args, s)
		}
	}
	query += ` ORDER BY t.created_at DESC, t.rowid DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing trades: %w", err)
	}
	defer rows.Close()

	trades := []models.Trade{}
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning trade: %w", err)
		}
		trades = append(trades, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating trades: %w", err)
	}
	return trades, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrade(row rowScanner) (*models.Trade, error) {
	var t models.Trade
	var requesterItemID sql.NullString

	err := row.Scan(
		&t.ID, &t.OwnerID, &t.RequesterID, &t.OwnerItemID, &t.OwnerItemTitle, &requesterItemID,
		&t.Message, &t.Status, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.RequesterItemID = nullStringToPtr(requesterItemID)
	return &t, nil
}
