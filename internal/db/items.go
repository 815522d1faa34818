package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"barter/internal/models"
)

// ItemRepository stores the minimal listing reference trades point at.
type ItemRepository struct {
	db *DB
}

func NewItemRepository(db *DB) *ItemRepository {
	return &ItemRepository{db: db}
}

func (r *ItemRepository) Create(ctx context.Context, ownerID, title string) (*models.Item, error) {
	id, err := GenerateID("itm")
	if err != nil {
		return nil, fmt.Errorf("generating item ID: %w", err)
	}
	now := time.Now().UTC()

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO items (id, owner_id, title, created_at) VALUES (?, ?, ?, ?)`,
		id, ownerID, title, now,
	)
	if err != nil {
		return nil, fmt.Errorf("creating item: %w", err)
	}

	return &models.Item{ID: id, OwnerID: ownerID, Title: title, CreatedAt: now}, nil
}

func (r *ItemRepository) FindByID(ctx context.Context, id string) (*models.Item, error) {
	var it models.Item
	err := r.db.QueryRowContext(ctx,
		`SELECT id, owner_id, title, created_at FROM items WHERE id = ?`,
		id,
	).Scan(&it.ID, &it.OwnerID, &it.Title, &it.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying item: %w", err)
	}
	return &it, nil
}
