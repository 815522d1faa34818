package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"barter/internal/apperr"
	"barter/internal/db"
	"barter/internal/models"
)

type AccountStore interface {
	CreateWithProfile(ctx context.Context, email, passwordHash, displayName, location string) (*models.Account, *models.Profile, error)
	FindByEmail(ctx context.Context, email string) (*models.Account, error)
	FindByID(ctx context.Context, id string) (*models.Account, error)
}

type ProfileStore interface {
	FindByID(ctx context.Context, id string) (*models.Profile, error)
}

type ResetTokenStore interface {
	Replace(ctx context.Context, accountID, tokenHash string, expiresAt time.Time) (*models.PasswordResetToken, error)
	FindByHash(ctx context.Context, tokenHash string) (*models.PasswordResetToken, error)
	Consume(ctx context.Context, tokenID, accountID, passwordHash string) error
}

type Mailer interface {
	SendPasswordReset(to, token string) error
}

// Session is what every successful authentication returns to the client.
type Session struct {
	*TokenPair
	Profile *models.Profile `json:"profile"`
}

type AccountServiceConfig struct {
	ResetTokenTTL time.Duration
	BcryptCost    int
}

type AccountService struct {
	accounts    AccountStore
	profiles    ProfileStore
	resetTokens ResetTokenStore
	tokens      *TokenService
	mailer      Mailer
	cfg         AccountServiceConfig

	dummyOnce sync.Once
	dummyHash string
	mailWG    sync.WaitGroup
}

func NewAccountService(
	accounts AccountStore,
	profiles ProfileStore,
	resetTokens ResetTokenStore,
	tokens *TokenService,
	mailer Mailer,
	cfg AccountServiceConfig,
) *AccountService {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.ResetTokenTTL <= 0 {
		cfg.ResetTokenTTL = 15 * time.Minute
	}
	return &AccountService{
		accounts:    accounts,
		profiles:    profiles,
		resetTokens: resetTokens,
		tokens:      tokens,
		mailer:      mailer,
		cfg:         cfg,
	}
}

func (s *AccountService) Register(ctx context.Context, email, password, displayName, location string) (*Session, error) {
	if err := ValidatePasswordStrength(password); err != nil {
		return nil, err
	}

	hash, err := HashPassword(password, s.cfg.BcryptCost)
	if err != nil {
		return nil, err
	}

	account, profile, err := s.accounts.CreateWithProfile(ctx, normalizeEmail(email), hash, strings.TrimSpace(displayName), strings.TrimSpace(location))
	if errors.Is(err, db.ErrDuplicate) {
		return nil, apperr.New(apperr.Conflict, "Email already registered")
	}
	if err != nil {
		return nil, fmt.Errorf("creating account: %w", err)
	}

	pair, err := s.tokens.Issue(ctx, account)
	if err != nil {
		return nil, err
	}

	slog.Info("account registered", "component", "auth", "account_id", account.ID)
	return &Session{TokenPair: pair, Profile: profile}, nil
}

// Login never reveals whether the email exists: an unknown email still pays
// for a bcrypt comparison and gets the same error as a wrong password.
func (s *AccountService) Login(ctx context.Context, email, password string) (*Session, error) {
	account, err := s.accounts.FindByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, db.ErrNotFound) {
		CheckPassword(s.dummyPasswordHash(), password)
		return nil, errInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("looking up account: %w", err)
	}

	if !CheckPassword(account.PasswordHash, password) {
		return nil, errInvalidCredentials
	}

	return s.reissue(ctx, account)
}

func (s *AccountService) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, apperr.New(apperr.InvalidToken, "Refresh token must not be empty")
	}

	pair, err := s.tokens.Rotate(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	profile, err := s.profiles.FindByID(ctx, pair.ProfileID)
	if err != nil {
		return nil, fmt.Errorf("loading profile: %w", err)
	}
	return &Session{TokenPair: pair, Profile: profile}, nil
}

// Session re-issues tokens for an already authenticated account.
func (s *AccountService) Session(ctx context.Context, accountID string) (*Session, error) {
	account, err := s.accounts.FindByID(ctx, accountID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.New(apperr.Unauthorized, "Account not found")
	}
	if err != nil {
		return nil, fmt.Errorf("looking up account: %w", err)
	}
	return s.reissue(ctx, account)
}

func (s *AccountService) Logout(ctx context.Context, accountID string) error {
	return s.tokens.RevokeAll(ctx, accountID)
}

// RequestPasswordReset stores a fresh reset token and mails it in the
// background. Unknown emails are accepted silently.
func (s *AccountService) RequestPasswordReset(ctx context.Context, email string) error {
	account, err := s.accounts.FindByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, db.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("looking up account: %w", err)
	}

	token := uuid.NewString()
	if _, err := s.resetTokens.Replace(ctx, account.ID, HashToken(token), time.Now().Add(s.cfg.ResetTokenTTL)); err != nil {
		return fmt.Errorf("storing reset token: %w", err)
	}

	if s.mailer == nil {
		slog.Warn("no mailer configured, password reset token not delivered", "component", "auth", "account_id", account.ID)
		return nil
	}

	s.mailWG.Add(1)
	go func(to string) {
		defer s.mailWG.Done()
		if err := s.mailer.SendPasswordReset(to, token); err != nil {
			slog.Warn("failed to send password reset email", "component", "auth", "account_id", account.ID, "error", err)
		}
	}(account.Email)

	return nil
}

func (s *AccountService) ResetPassword(ctx context.Context, token, password, confirmation string) error {
	if password != confirmation {
		return apperr.New(apperr.InvalidArgument, "Passwords do not match")
	}
	if err := ValidatePasswordStrength(password); err != nil {
		return err
	}

	stored, err := s.resetTokens.FindByHash(ctx, HashToken(strings.TrimSpace(token)))
	if errors.Is(err, db.ErrNotFound) {
		return errInvalidResetToken
	}
	if err != nil {
		return fmt.Errorf("looking up reset token: %w", err)
	}
	if stored.Used || !time.Now().Before(stored.ExpiresAt) {
		return errInvalidResetToken
	}

	hash, err := HashPassword(password, s.cfg.BcryptCost)
	if err != nil {
		return err
	}

	err = s.resetTokens.Consume(ctx, stored.ID, stored.AccountID, hash)
	if errors.Is(err, db.ErrNotFound) {
		return errInvalidResetToken
	}
	if err != nil {
		return fmt.Errorf("consuming reset token: %w", err)
	}

	if err := s.tokens.RevokeAll(ctx, stored.AccountID); err != nil {
		return err
	}

	slog.Info("password reset", "component", "auth", "account_id", stored.AccountID)
	return nil
}

// WaitForMail blocks until background reset emails have been handed off.
func (s *AccountService) WaitForMail() {
	s.mailWG.Wait()
}

func (s *AccountService) reissue(ctx context.Context, account *models.Account) (*Session, error) {
	if err := s.tokens.RevokeAll(ctx, account.ID); err != nil {
		return nil, err
	}

	pair, err := s.tokens.Issue(ctx, account)
	if err != nil {
		return nil, err
	}

	profile, err := s.profiles.FindByID(ctx, account.ProfileID)
	if err != nil {
		return nil, fmt.Errorf("loading profile: %w", err)
	}
	return &Session{TokenPair: pair, Profile: profile}, nil
}

func (s *AccountService) dummyPasswordHash() string {
	s.dummyOnce.Do(func() {
		hash, err := HashPassword(uuid.NewString(), s.cfg.BcryptCost)
		if err != nil {
			slog.Error("failed to prepare dummy password hash", "component", "auth", "error", err)
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var (
	errInvalidCredentials = apperr.New(apperr.Unauthorized, "Invalid credentials")
	errInvalidResetToken  = apperr.New(apperr.InvalidToken, "Invalid or expired reset token")
)
