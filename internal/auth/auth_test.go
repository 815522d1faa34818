package auth

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"barter/internal/apperr"
	"barter/internal/db"
)

const testSecret = "test-secret-that-is-at-least-32-characters"

type fakeMailer struct {
	mu    sync.Mutex
	sent  map[string]string
	fails bool
}

func (m *fakeMailer) SendPasswordReset(to, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fails {
		return assert.AnError
	}
	if m.sent == nil {
		m.sent = map[string]string{}
	}
	m.sent[to] = token
	return nil
}

func (m *fakeMailer) tokenFor(to string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent[to]
}

type fixture struct {
	accounts *AccountService
	tokens   *TokenService
	jwt      *JWTService
	mailer   *fakeMailer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	jwtService := NewJWTService(testSecret, 15*time.Minute, 7*24*time.Hour)
	tokens := NewTokenService(jwtService, db.NewRefreshTokenRepository(database))
	mailer := &fakeMailer{}
	accounts := NewAccountService(
		db.NewAccountRepository(database),
		db.NewProfileRepository(database),
		db.NewResetTokenRepository(database),
		tokens,
		mailer,
		AccountServiceConfig{ResetTokenTTL: 15 * time.Minute, BcryptCost: bcrypt.MinCost},
	)
	return &fixture{accounts: accounts, tokens: tokens, jwt: jwtService, mailer: mailer}
}

func TestValidatePasswordStrength(t *testing.T) {
	tests := []struct {
		password string
		ok       bool
	}{
		{"Str0ng!pw", true},
		{"Sh0rt!", false},
		{"alllower1!", false},
		{"ALLUPPER1!", false},
		{"NoDigits!!", false},
		{"NoSymbol12", false},
		{"Spaces 0k", true},
	}

	for _, tt := range tests {
		t.Run(tt.password, func(t *testing.T) {
			err := ValidatePasswordStrength(tt.password)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.True(t, apperr.Is(err, apperr.InvalidArgument), "err = %v", err)
			}
		})
	}
}

func TestJWTValidateRejectsWrongTypeAndSecret(t *testing.T) {
	svc := NewJWTService(testSecret, time.Minute, time.Hour)

	access, _, err := svc.Sign("acc_1", "prf_1", TokenAccess)
	require.NoError(t, err)

	claims, err := svc.Validate(access, TokenAccess)
	require.NoError(t, err)
	assert.Equal(t, "acc_1", claims.Subject)
	assert.Equal(t, "prf_1", claims.ProfileID)
	assert.NotEmpty(t, claims.ID)

	_, err = svc.Validate(access, TokenRefresh)
	assert.True(t, apperr.Is(err, apperr.InvalidToken))

	other := NewJWTService("another-secret-that-is-at-least-32-chars", time.Minute, time.Hour)
	_, err = other.Validate(access, TokenAccess)
	assert.True(t, apperr.Is(err, apperr.InvalidToken))
}

func TestJWTValidateRejectsExpired(t *testing.T) {
	svc := NewJWTService(testSecret, time.Minute, time.Hour)
	svc.now = func() time.Time { return time.Now().Add(-2 * time.Minute) }

	token, _, err := svc.Sign("acc_1", "prf_1", TokenAccess)
	require.NoError(t, err)

	svc.now = time.Now
	_, err = svc.Validate(token, TokenAccess)
	assert.True(t, apperr.Is(err, apperr.InvalidToken))
}

func TestRegisterAndLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.accounts.Register(ctx, "Alice@Example.com", "Str0ng!pw", "Alice", "Lisbon")
	require.NoError(t, err)
	assert.Equal(t, "Alice", session.Profile.DisplayName)

	_, err = f.accounts.Register(ctx, "alice@example.com", "Str0ng!pw", "Other", "")
	assert.True(t, apperr.Is(err, apperr.Conflict), "err = %v", err)

	_, err = f.accounts.Login(ctx, "alice@example.com", "wrong")
	assert.True(t, apperr.Is(err, apperr.Unauthorized))
	_, err = f.accounts.Login(ctx, "nobody@example.com", "Str0ng!pw")
	assert.True(t, apperr.Is(err, apperr.Unauthorized))
	assert.Equal(t, "Invalid credentials", apperr.Message(err))

	login, err := f.accounts.Login(ctx, "ALICE@example.com", "Str0ng!pw")
	require.NoError(t, err)
	assert.Equal(t, session.Profile.ID, login.Profile.ID)

	// Logging in again revokes the refresh token of the earlier session.
	_, err = f.accounts.Refresh(ctx, session.RefreshToken)
	assert.True(t, apperr.Is(err, apperr.InvalidToken))
}

func TestRefreshRotatesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.accounts.Register(ctx, "alice@example.com", "Str0ng!pw", "Alice", "")
	require.NoError(t, err)

	rotated, err := f.accounts.Refresh(ctx, session.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, session.RefreshToken, rotated.RefreshToken)
	assert.Equal(t, session.Profile.ID, rotated.Profile.ID)

	_, err = f.accounts.Refresh(ctx, session.RefreshToken)
	assert.True(t, apperr.Is(err, apperr.InvalidToken), "reused token err = %v", err)

	_, err = f.accounts.Refresh(ctx, rotated.RefreshToken)
	assert.NoError(t, err)
}

func TestConcurrentRotationYieldsOneSuccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.accounts.Register(ctx, "alice@example.com", "Str0ng!pw", "Alice", "")
	require.NoError(t, err)

	const workers = 6
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.tokens.Rotate(ctx, session.RefreshToken)
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		assert.True(t, apperr.Is(err, apperr.InvalidToken), "err = %v", err)
	}
	assert.Equal(t, 1, successes)
}

func TestRotateRejectsAccessToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.accounts.Register(ctx, "alice@example.com", "Str0ng!pw", "Alice", "")
	require.NoError(t, err)

	_, err = f.tokens.Rotate(ctx, session.AccessToken)
	assert.True(t, apperr.Is(err, apperr.InvalidToken))
}

func TestRotateRejectsSubjectMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice, err := f.accounts.Register(ctx, "alice@example.com", "Str0ng!pw", "Alice", "")
	require.NoError(t, err)

	forged, expiry, err := f.jwt.Sign("acc_someone_else", alice.ProfileID, TokenRefresh)
	require.NoError(t, err)
	_, err = f.tokens.store.Create(ctx, alice.AccountID, HashToken(forged), expiry)
	require.NoError(t, err)

	_, err = f.tokens.Rotate(ctx, forged)
	assert.True(t, apperr.Is(err, apperr.InvalidToken))
}

func TestLogoutRevokesAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.accounts.Register(ctx, "alice@example.com", "Str0ng!pw", "Alice", "")
	require.NoError(t, err)

	require.NoError(t, f.accounts.Logout(ctx, session.AccountID))

	_, err = f.accounts.Refresh(ctx, session.RefreshToken)
	assert.True(t, apperr.Is(err, apperr.InvalidToken))
}

func TestPasswordResetFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.accounts.Register(ctx, "alice@example.com", "Str0ng!pw", "Alice", "")
	require.NoError(t, err)

	require.NoError(t, f.accounts.RequestPasswordReset(ctx, "nobody@example.com"))
	require.NoError(t, f.accounts.RequestPasswordReset(ctx, "Alice@example.com"))
	f.accounts.WaitForMail()

	token := f.mailer.tokenFor("alice@example.com")
	require.NotEmpty(t, token)

	err = f.accounts.ResetPassword(ctx, token, "N3w!password", "N3w!different")
	assert.True(t, apperr.Is(err, apperr.InvalidArgument))

	err = f.accounts.ResetPassword(ctx, token, "weak", "weak")
	assert.True(t, apperr.Is(err, apperr.InvalidArgument))

	require.NoError(t, f.accounts.ResetPassword(ctx, token, "N3w!password", "N3w!password"))

	err = f.accounts.ResetPassword(ctx, token, "An0ther!pw", "An0ther!pw")
	assert.True(t, apperr.Is(err, apperr.InvalidToken), "reused reset token err = %v", err)

	_, err = f.accounts.Refresh(ctx, session.RefreshToken)
	assert.True(t, apperr.Is(err, apperr.InvalidToken), "refresh tokens must be revoked after reset")

	_, err = f.accounts.Login(ctx, "alice@example.com", "Str0ng!pw")
	assert.True(t, apperr.Is(err, apperr.Unauthorized))
	_, err = f.accounts.Login(ctx, "alice@example.com", "N3w!password")
	assert.NoError(t, err)
}

func TestPasswordResetMailFailureIsNotReturned(t *testing.T) {
	f := newFixture(t)
	f.mailer.fails = true
	ctx := context.Background()

	_, err := f.accounts.Register(ctx, "alice@example.com", "Str0ng!pw", "Alice", "")
	require.NoError(t, err)

	assert.NoError(t, f.accounts.RequestPasswordReset(ctx, "alice@example.com"))
	f.accounts.WaitForMail()
}
