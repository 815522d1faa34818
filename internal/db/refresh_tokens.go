package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"barter/internal/models"
)

type RefreshTokenRepository struct {
	db *DB
}

func NewRefreshTokenRepository(db *DB) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

func (r *RefreshTokenRepository) Create(ctx context.Context, accountID, tokenHash string, expiresAt time.Time) (*models.RefreshToken, error) {
	id, err := GenerateID("rft")
	if err != nil {
		return nil, fmt.Errorf("generating refresh token ID: %w", err)
	}
	now := time.Now().UTC()

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (id, account_id, token_hash, expires_at, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, accountID, tokenHash, expiresAt.UTC(), now,
	)
	if err != nil {
		return nil, fmt.Errorf("creating refresh token: %w", err)
	}

	return &models.RefreshToken{
		ID:        id,
		AccountID: accountID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt.UTC(),
		CreatedAt: now,
	}, nil
}

func (r *RefreshTokenRepository) FindByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	var t models.RefreshToken

	err := r.db.QueryRowContext(ctx,
		`SELECT id, account_id, token_hash, expires_at, revoked, created_at FROM refresh_tokens WHERE token_hash = ?`,
		tokenHash,
	).Scan(&t.ID, &t.AccountID, &t.TokenHash, &t.ExpiresAt, &t.Revoked, &t.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying refresh token: %w", err)
	}

	return &t, nil
}

// Rotate revokes the consumed token and inserts its replacement atomically.
// ErrNotFound means the consumed token was already revoked or had expired,
// which is how the loser of two concurrent rotations finds out.
func (r *RefreshTokenRepository) Rotate(ctx context.Context, consumedTokenID, accountID, newTokenHash string, newExpiresAt time.Time) error {
	newID, err := GenerateID("rft")
	if err != nil {
		return fmt.Errorf("generating rotated refresh token ID: %w", err)
	}

	return r.db.withTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		result, err := tx.ExecContext(ctx,
			`UPDATE refresh_tokens
			    SET revoked = 1
			  WHERE id = ?
			    AND revoked = 0
			    AND expires_at > ?`,
			consumedTokenID,
			now,
		)
		if err != nil {
			return fmt.Errorf("revoking token during rotation: %w", err)
		}
		if err := checkRowsAffected(result); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO refresh_tokens (id, account_id, token_hash, expires_at, created_at) VALUES (?, ?, ?, ?, ?)`,
			newID, accountID, newTokenHash, newExpiresAt.UTC(), now,
		)
		if err != nil {
			return fmt.Errorf("creating rotated refresh token: %w", err)
		}
		return nil
	})
}

func (r *RefreshTokenRepository) RevokeAllForAccount(ctx context.Context, accountID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE refresh_tokens SET revoked = 1 WHERE account_id = ? AND revoked = 0`, accountID)
	if err != nil {
		return fmt.Errorf("revoking account tokens: %w", err)
	}
	return nil
}

func (r *RefreshTokenRepository) DeleteExpiredOrRevoked(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE revoked = 1 OR expires_at < ?`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("deleting stale refresh tokens: %w", err)
	}

	return result.RowsAffected()
}
