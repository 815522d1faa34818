package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"barter/internal/models"
)

type ResetTokenRepository struct {
	db *DB
}

func NewResetTokenRepository(db *DB) *ResetTokenRepository {
	return &ResetTokenRepository{db: db}
}

// Replace drops every reset token of the account and stores a new one, so at
// most one is live at a time.
func (r *ResetTokenRepository) Replace(ctx context.Context, accountID, tokenHash string, expiresAt time.Time) (*models.PasswordResetToken, error) {
	id, err := GenerateID("rst")
	if err != nil {
		return nil, fmt.Errorf("generating reset token ID: %w", err)
	}
	now := time.Now().UTC()

	err = r.db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM password_reset_tokens WHERE account_id = ?`, accountID); err != nil {
			return fmt.Errorf("deleting previous reset tokens: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO password_reset_tokens (id, account_id, token_hash, expires_at, created_at) VALUES (?, ?, ?, ?, ?)`,
			id, accountID, tokenHash, expiresAt.UTC(), now,
		); err != nil {
			return fmt.Errorf("creating reset token: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &models.PasswordResetToken{
		ID:        id,
		AccountID: accountID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt.UTC(),
		CreatedAt: now,
	}, nil
}

func (r *ResetTokenRepository) FindByHash(ctx context.Context, tokenHash string) (*models.PasswordResetToken, error) {
	var t models.PasswordResetToken
	err := r.db.QueryRowContext(ctx,
		`SELECT id, account_id, token_hash, expires_at, used, created_at FROM password_reset_tokens WHERE token_hash = ?`,
		tokenHash,
	).Scan(&t.ID, &t.AccountID, &t.TokenHash, &t.ExpiresAt, &t.Used, &t.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying reset token: %w", err)
	}
	return &t, nil
}

// Consume marks the token used, sets the new password hash and clears every
// reset token of the account in one transaction. ErrNotFound means the token
// was already used or has expired.
func (r *ResetTokenRepository) Consume(ctx context.Context, tokenID, accountID, passwordHash string) error {
	return r.db.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE password_reset_tokens SET used = 1 WHERE id = ? AND used = 0 AND expires_at > ?`,
			tokenID, time.Now().UTC(),
		)
		if err != nil {
			return fmt.Errorf("marking reset token used: %w", err)
		}
		if err := checkRowsAffected(result); err != nil {
			return err
		}

		result, err = tx.ExecContext(ctx, `UPDATE accounts SET password_hash = ? WHERE id = ?`, passwordHash, accountID)
		if err != nil {
			return fmt.Errorf("updating password: %w", err)
		}
		if err := checkRowsAffected(result); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM password_reset_tokens WHERE account_id = ?`, accountID); err != nil {
			return fmt.Errorf("deleting reset tokens: %w", err)
		}
		return nil
	})
}

func (r *ResetTokenRepository) DeleteExpiredOrUsed(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM password_reset_tokens WHERE used = 1 OR expires_at < ?`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("deleting stale reset tokens: %w", err)
	}
	return result.RowsAffected()
}
