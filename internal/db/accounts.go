package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"barter/internal/models"
)

type AccountRepository struct {
	db *DB
}

func NewAccountRepository(db *DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// CreateWithProfile inserts a profile and its owning account in one
// transaction. Returns ErrDuplicate when the email is already registered.
func (r *AccountRepository) CreateWithProfile(ctx context.Context, email, passwordHash, displayName, location string) (*models.Account, *models.Profile, error) {
	accountID, err := GenerateID("acc")
	if err != nil {
		return nil, nil, fmt.Errorf("generating account ID: %w", err)
	}
	profileID, err := GenerateID("prf")
	if err != nil {
		return nil, nil, fmt.Errorf("generating profile ID: %w", err)
	}

	now := time.Now().UTC()
	email = strings.ToLower(strings.TrimSpace(email))

	err = r.db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO profiles (id, display_name, location, created_at) VALUES (?, ?, ?, ?)`,
			profileID, displayName, location, now,
		); err != nil {
			return fmt.Errorf("creating profile: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO accounts (id, email, password_hash, profile_id, created_at) VALUES (?, ?, ?, ?, ?)`,
			accountID, email, passwordHash, profileID, now,
		); err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicate
			}
			return fmt.Errorf("creating account: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	account := &models.Account{
		ID:           accountID,
		Email:        email,
		PasswordHash: passwordHash,
		ProfileID:    profileID,
		CreatedAt:    now,
	}
	profile := &models.Profile{
		ID:          profileID,
		DisplayName: displayName,
		Location:    location,
		CreatedAt:   now,
	}
	return account, profile, nil
}

func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	return r.findOne(ctx, `WHERE email = ?`, strings.TrimSpace(email))
}

func (r *AccountRepository) FindByID(ctx context.Context, id string) (*models.Account, error) {
	return r.findOne(ctx, `WHERE id = ?`, id)
}

func (r *AccountRepository) findOne(ctx context.Context, where string, arg any) (*models.Account, error) {
	var a models.Account
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, profile_id, created_at FROM accounts `+where,
		arg,
	).Scan(&a.ID, &a.Email, &a.PasswordHash, &a.ProfileID, &a.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying account: %w", err)
	}
	return &a, nil
}
