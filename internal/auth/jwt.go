package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"barter/internal/apperr"
)

type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
)

type JWTService struct {
	secret          []byte
	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
	now             func() time.Time
}

// Claims carries the account ID in sub and the profile ID alongside it so
// handlers never need a lookup to authorize by profile.
type Claims struct {
	Type      TokenType `json:"type"`
	ProfileID string    `json:"pid"`
	jwt.RegisteredClaims
}

func NewJWTService(secret string, accessTTL, refreshTTL time.Duration) *JWTService {
	return &JWTService{
		secret:          []byte(secret),
		accessTokenTTL:  accessTTL,
		refreshTokenTTL: refreshTTL,
		now:             time.Now,
	}
}

// Sign issues a token of the given type and returns it with its expiry.
func (s *JWTService) Sign(accountID, profileID string, typ TokenType) (string, time.Time, error) {
	now := s.now()
	ttl := s.accessTokenTTL
	if typ == TokenRefresh {
		ttl = s.refreshTokenTTL
	}
	expiry := now.Add(ttl)

	claims := Claims{
		Type:      typ,
		ProfileID: profileID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiry),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing %s token: %w", typ, err)
	}
	return signed, expiry, nil
}

// Validate checks signature, expiry and type. Any failure is InvalidToken.
func (s *JWTService) Validate(tokenString string, expected TokenType) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, apperr.Wrap(apperr.InvalidToken, "Invalid or expired token", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, apperr.New(apperr.InvalidToken, "Invalid or expired token")
	}
	if claims.Type != expected {
		return nil, apperr.New(apperr.InvalidToken, "Invalid token type")
	}
	if claims.Subject == "" {
		return nil, apperr.New(apperr.InvalidToken, "Invalid token subject")
	}

	return claims, nil
}

// HashToken is the at-rest form of refresh and reset tokens.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
