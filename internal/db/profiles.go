package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"barter/internal/models"
)

type ProfileRepository struct {
	db *DB
}

func NewProfileRepository(db *DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

func (r *ProfileRepository) FindByID(ctx context.Context, id string) (*models.Profile, error) {
	var p models.Profile
	var updatedAt sql.NullTime

	err := r.db.QueryRowContext(ctx,
		`SELECT id, display_name, location, created_at, updated_at FROM profiles WHERE id = ?`,
		id,
	).Scan(&p.ID, &p.DisplayName, &p.Location, &p.CreatedAt, &updatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying profile: %w", err)
	}

	p.UpdatedAt = nullTimeToPtr(updatedAt)
	return &p, nil
}
