package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/BradenHooton/twofactor/internal/auth"
	"github.com/BradenHooton/twofactor/internal/models"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestTOTPManager() *auth.TOTPManager {
	return auth.NewTOTPManager("2FA Auth App", auth.DefaultTOTPSkew).WithClock(fixedClock)
}

// codeFor returns the code an authenticator app shows for secret at fixedNow
func codeFor(t *testing.T, secret string) string {
	t.Helper()
	code, err := totp.GenerateCode(secret, fixedNow)
	require.NoError(t, err)
	return code
}

// wrongCodeFor returns a well-formed code that no step inside the window accepts
func wrongCodeFor(t *testing.T, secret string) string {
	t.Helper()
	inWindow := map[string]bool{}
	for step := -auth.DefaultTOTPSkew; step <= auth.DefaultTOTPSkew; step++ {
		code, err := totp.GenerateCode(secret, fixedNow.Add(time.Duration(step*auth.TOTPPeriod)*time.Second))
		require.NoError(t, err)
		inWindow[code] = true
	}
	for n := 0; ; n++ {
		candidate := fmt.Sprintf("%06d", n)
		if !inWindow[candidate] {
			return candidate
		}
	}
}

func authenticatedSession(userID string) *models.Session {
	return &models.Session{
		TokenHash: auth.HashSessionToken("token-" + userID),
		UserID:    userID,
		CreatedAt: fixedNow.Add(-time.Hour),
		ExpiresAt: fixedNow.Add(23 * time.Hour),
	}
}

func pendingSession(userID string) *models.Session {
	s := authenticatedSession(userID)
	s.PendingSecondFactor = true
	return s
}

func strPtr(s string) *string { return &s }

// MockUserRepository implements UserRepository for testing
type MockUserRepository struct {
	GetByIDFunc         func(ctx context.Context, id string) (*models.User, error)
	GetByEmailFunc      func(ctx context.Context, email string) (*models.User, error)
	GetByUsernameFunc   func(ctx context.Context, username string) (*models.User, error)
	CreateFunc          func(ctx context.Context, user *models.User) (*models.User, error)
	UpdateTwoFactorFunc func(ctx context.Context, id string, secret *string, enabled bool) error
	ListFunc            func(ctx context.Context, limit, offset int) ([]*models.User, error)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	if m.GetByUsernameFunc != nil {
		return m.GetByUsernameFunc(ctx, username)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	return nil, models.ErrInternalServer
}

func (m *MockUserRepository) UpdateTwoFactor(ctx context.Context, id string, secret *string, enabled bool) error {
	if m.UpdateTwoFactorFunc != nil {
		return m.UpdateTwoFactorFunc(ctx, id, secret, enabled)
	}
	return nil
}

func (m *MockUserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, limit, offset)
	}
	return []*models.User{}, nil
}

// MockSessionRepository implements SessionRepository for testing
type MockSessionRepository struct {
	CreateFunc                   func(ctx context.Context, session *models.Session) error
	GetByTokenHashFunc           func(ctx context.Context, tokenHash string) (*models.Session, error)
	MarkSecondFactorVerifiedFunc func(ctx context.Context, tokenHash string, now time.Time) error
	SetPendingSetupSecretFunc    func(ctx context.Context, tokenHash string, secret *string) error
	DeleteFunc                   func(ctx context.Context, tokenHash string) error
	CleanupExpiredFunc           func(ctx context.Context, now time.Time) (int64, error)
}

func (m *MockSessionRepository) Create(ctx context.Context, session *models.Session) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, session)
	}
	return nil
}

func (m *MockSessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error) {
	if m.GetByTokenHashFunc != nil {
		return m.GetByTokenHashFunc(ctx, tokenHash)
	}
	return nil, models.ErrNotFound
}

func (m *MockSessionRepository) MarkSecondFactorVerified(ctx context.Context, tokenHash string, now time.Time) error {
	if m.MarkSecondFactorVerifiedFunc != nil {
		return m.MarkSecondFactorVerifiedFunc(ctx, tokenHash, now)
	}
	return nil
}

func (m *MockSessionRepository) SetPendingSetupSecret(ctx context.Context, tokenHash string, secret *string) error {
	if m.SetPendingSetupSecretFunc != nil {
		return m.SetPendingSetupSecretFunc(ctx, tokenHash, secret)
	}
	return nil
}

func (m *MockSessionRepository) Delete(ctx context.Context, tokenHash string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, tokenHash)
	}
	return nil
}

func (m *MockSessionRepository) CleanupExpired(ctx context.Context, now time.Time) (int64, error) {
	if m.CleanupExpiredFunc != nil {
		return m.CleanupExpiredFunc(ctx, now)
	}
	return 0, nil
}

// memoryStore is an in-memory UserRepository and SessionRepository with the
// same uniqueness and not-found behaviour as the Postgres repositories.
type memoryStore struct {
	mu       sync.Mutex
	nextID   int
	users    map[string]*models.User
	sessions map[string]*models.Session
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		users:    map[string]*models.User{},
		sessions: map[string]*models.Session{},
	}
}

type memoryUsers struct{ *memoryStore }

type memorySessions struct{ *memoryStore }

func copyUser(u *models.User) *models.User {
	c := *u
	if u.TwoFactorSecret != nil {
		c.TwoFactorSecret = strPtr(*u.TwoFactorSecret)
	}
	return &c
}

func (m memoryUsers) GetByID(ctx context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		return copyUser(u), nil
	}
	return nil, models.ErrNotFound
}

func (m memoryUsers) find(match func(*models.User) bool) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if match(u) {
			return copyUser(u), nil
		}
	}
	return nil, models.ErrNotFound
}

func (m memoryUsers) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return m.find(func(u *models.User) bool { return u.Email == email })
}

func (m memoryUsers) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return m.find(func(u *models.User) bool { return u.Username == username })
}

func (m memoryUsers) Create(ctx context.Context, user *models.User) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == user.Username {
			return nil, &models.UniqueViolationError{Constraint: "users_username_key", Field: "username"}
		}
		if u.Email == user.Email {
			return nil, &models.UniqueViolationError{Constraint: "users_email_key", Field: "email"}
		}
	}
	m.nextID++
	user.ID = fmt.Sprintf("user-%d", m.nextID)
	user.CreatedAt = fixedNow
	user.UpdatedAt = fixedNow
	m.users[user.ID] = copyUser(user)
	return copyUser(user), nil
}

func (m memoryUsers) UpdateTwoFactor(ctx context.Context, id string, secret *string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return models.ErrNotFound
	}
	u.TwoFactorSecret = nil
	if secret != nil {
		u.TwoFactorSecret = strPtr(*secret)
	}
	u.TwoFactorEnabled = enabled
	return nil
}

func (m memoryUsers) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, copyUser(u))
	}
	return out, nil
}

func (m memorySessions) Create(ctx context.Context, session *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *session
	m.sessions[session.TokenHash] = &c
	return nil
}

func (m memorySessions) GetByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[tokenHash]
	if !ok {
		return nil, models.ErrNotFound
	}
	c := *s
	return &c, nil
}

func (m memorySessions) MarkSecondFactorVerified(ctx context.Context, tokenHash string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[tokenHash]
	if !ok || !s.PendingSecondFactor || s.IsExpired(now) {
		return models.ErrNotFound
	}
	s.PendingSecondFactor = false
	return nil
}

func (m memorySessions) SetPendingSetupSecret(ctx context.Context, tokenHash string, secret *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[tokenHash]
	if !ok {
		return models.ErrNotFound
	}
	s.PendingSetupSecret = secret
	return nil
}

func (m memorySessions) Delete(ctx context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, tokenHash)
	return nil
}

func (m memorySessions) CleanupExpired(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, s := range m.sessions {
		if s.IsExpired(now) {
			delete(m.sessions, k)
			n++
		}
	}
	return n, nil
}
