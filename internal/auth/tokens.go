package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"barter/internal/apperr"
	"barter/internal/db"
	"barter/internal/models"
)

type RefreshTokenStore interface {
	Create(ctx context.Context, accountID, tokenHash string, expiresAt time.Time) (*models.RefreshToken, error)
	FindByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error)
	Rotate(ctx context.Context, consumedTokenID, accountID, newTokenHash string, newExpiresAt time.Time) error
	RevokeAllForAccount(ctx context.Context, accountID string) error
}

type TokenPair struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
	AccountID    string    `json:"-"`
	ProfileID    string    `json:"-"`
}

type TokenService struct {
	jwt   *JWTService
	store RefreshTokenStore
}

func NewTokenService(jwtService *JWTService, store RefreshTokenStore) *TokenService {
	return &TokenService{jwt: jwtService, store: store}
}

func (s *TokenService) Issue(ctx context.Context, account *models.Account) (*TokenPair, error) {
	pair, refreshExpiry, err := s.sign(account.ID, account.ProfileID)
	if err != nil {
		return nil, err
	}

	if _, err := s.store.Create(ctx, account.ID, HashToken(pair.RefreshToken), refreshExpiry); err != nil {
		return nil, fmt.Errorf("storing refresh token: %w", err)
	}
	return pair, nil
}

// Rotate exchanges a refresh token for a new pair. The presented token is
// revoked in the same transaction that stores its replacement, so of two
// concurrent calls with the same token only one succeeds.
func (s *TokenService) Rotate(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.jwt.Validate(refreshToken, TokenRefresh)
	if err != nil {
		return nil, err
	}

	stored, err := s.store.FindByHash(ctx, HashToken(refreshToken))
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.New(apperr.InvalidToken, "Invalid refresh token")
	}
	if err != nil {
		return nil, fmt.Errorf("looking up refresh token: %w", err)
	}
	if !stored.Usable(time.Now()) {
		return nil, apperr.New(apperr.InvalidToken, "Refresh token revoked or expired")
	}
	if stored.AccountID != claims.Subject {
		slog.Warn("refresh token subject mismatch", "component", "auth", "token_id", stored.ID)
		return nil, apperr.New(apperr.InvalidToken, "Invalid refresh token")
	}

	pair, refreshExpiry, err := s.sign(stored.AccountID, claims.ProfileID)
	if err != nil {
		return nil, err
	}

	err = s.store.Rotate(ctx, stored.ID, stored.AccountID, HashToken(pair.RefreshToken), refreshExpiry)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.New(apperr.InvalidToken, "Refresh token revoked or expired")
	}
	if err != nil {
		return nil, fmt.Errorf("rotating refresh token: %w", err)
	}

	return pair, nil
}

func (s *TokenService) RevokeAll(ctx context.Context, accountID string) error {
	if err := s.store.RevokeAllForAccount(ctx, accountID); err != nil {
		return fmt.Errorf("revoking refresh tokens: %w", err)
	}
	return nil
}

func (s *TokenService) Validate(token string, expected TokenType) (*Claims, error) {
	return s.jwt.Validate(token, expected)
}

func (s *TokenService) sign(accountID, profileID string) (*TokenPair, time.Time, error) {
	access, accessExpiry, err := s.jwt.Sign(accountID, profileID, TokenAccess)
	if err != nil {
		return nil, time.Time{}, err
	}
	refresh, refreshExpiry, err := s.jwt.Sign(accountID, profileID, TokenRefresh)
	if err != nil {
		return nil, time.Time{}, err
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    accessExpiry,
		AccountID:    accountID,
		ProfileID:    profileID,
	}, refreshExpiry, nil
}
