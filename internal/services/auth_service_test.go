package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/BradenHooton/twofactor/internal/auth"
	"github.com/BradenHooton/twofactor/internal/models"
	pkgauth "github.com/BradenHooton/twofactor/pkg/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAuthService(users UserRepository, sessions SessionRepository) *AuthService {
	return NewAuthService(users, sessions, 24*time.Hour, testLogger()).WithClock(fixedClock)
}

func validRegistration() RegisterInput {
	return RegisterInput{
		Username:        "alice",
		Email:           "alice@x.com",
		Password:        "secret1",
		ConfirmPassword: "secret1",
	}
}

// ============================================================================
// Register Tests
// ============================================================================

func TestAuthService_Register_Success(t *testing.T) {
	var created *models.User
	users := &MockUserRepository{
		CreateFunc: func(ctx context.Context, user *models.User) (*models.User, error) {
			user.ID = "user-1"
			created = user
			return user, nil
		},
	}

	in := validRegistration()
	in.Email = "  Alice@X.com "
	res, err := newTestAuthService(users, &MockSessionRepository{}).Register(context.Background(), in)

	require.NoError(t, err)
	assert.NotEmpty(t, res.Message)
	assert.Nil(t, res.User)

	require.NotNil(t, created)
	assert.Equal(t, "alice", created.Username)
	assert.Equal(t, "alice@x.com", created.Email)
	assert.NotEqual(t, "secret1", created.PasswordHash)
	assert.True(t, pkgauth.VerifyPassword(created.PasswordHash, "secret1"))
	assert.False(t, created.TwoFactorEnabled)
	assert.Nil(t, created.TwoFactorSecret)
}

func TestAuthService_Register_InvalidInput(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RegisterInput)
		field  string
	}{
		{"missing username", func(in *RegisterInput) { in.Username = "  " }, ""},
		{"missing email", func(in *RegisterInput) { in.Email = "" }, ""},
		{"missing password", func(in *RegisterInput) { in.Password = "" }, ""},
		{"missing confirmation", func(in *RegisterInput) { in.ConfirmPassword = "" }, ""},
		{"mismatch", func(in *RegisterInput) { in.ConfirmPassword = "secret2" }, "confirm_password"},
		{"too short", func(in *RegisterInput) { in.Password, in.ConfirmPassword = "abc12", "abc12" }, "password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := &MockUserRepository{
				CreateFunc: func(ctx context.Context, user *models.User) (*models.User, error) {
					t.Fatal("Create must not be called for invalid input")
					return nil, nil
				},
			}

			in := validRegistration()
			tt.mutate(&in)
			_, err := newTestAuthService(users, &MockSessionRepository{}).Register(context.Background(), in)

			assert.ErrorIs(t, err, models.ErrInvalidInput)
			var ve *models.ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.field, ve.Field)
			assert.NotEmpty(t, ve.Message)
		})
	}
}

func TestAuthService_Register_PasswordOverBcryptLimit(t *testing.T) {
	users := &MockUserRepository{
		CreateFunc: func(ctx context.Context, user *models.User) (*models.User, error) {
			t.Fatal("Create must not be called for an over-long password")
			return nil, nil
		},
	}

	in := validRegistration()
	in.Password = strings.Repeat("a", pkgauth.MaxPasswordLen+1)
	in.ConfirmPassword = in.Password
	_, err := newTestAuthService(users, &MockSessionRepository{}).Register(context.Background(), in)

	var ve *models.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "password", ve.Field)
	assert.Equal(t, "Password must be at most 72 bytes", ve.Message)
}

func TestAuthService_Register_DuplicatePreCheck(t *testing.T) {
	existing := &models.User{ID: "user-1", Username: "alice", Email: "alice@x.com"}

	t.Run("email", func(t *testing.T) {
		users := &MockUserRepository{
			GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
				return existing, nil
			},
		}
		_, err := newTestAuthService(users, &MockSessionRepository{}).Register(context.Background(), validRegistration())
		assert.ErrorIs(t, err, models.ErrDuplicateEmail)
	})

	t.Run("username", func(t *testing.T) {
		users := &MockUserRepository{
			GetByUsernameFunc: func(ctx context.Context, username string) (*models.User, error) {
				return existing, nil
			},
		}
		_, err := newTestAuthService(users, &MockSessionRepository{}).Register(context.Background(), validRegistration())
		assert.ErrorIs(t, err, models.ErrDuplicateUsername)
	})
}

func TestAuthService_Register_BothTakenReportsUsername(t *testing.T) {
	existing := &models.User{ID: "user-1", Username: "alice", Email: "alice@x.com"}
	emailLooked := false
	users := &MockUserRepository{
		GetByUsernameFunc: func(ctx context.Context, username string) (*models.User, error) {
			return existing, nil
		},
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			emailLooked = true
			return existing, nil
		},
	}

	_, err := newTestAuthService(users, &MockSessionRepository{}).Register(context.Background(), validRegistration())

	assert.ErrorIs(t, err, models.ErrDuplicateUsername)
	assert.NotErrorIs(t, err, models.ErrDuplicateEmail)
	assert.False(t, emailLooked, "email lookup should not run once the username is taken")
}

func TestAuthService_Register_UniqueViolationAtInsert(t *testing.T) {
	tests := []struct {
		field string
		want  error
	}{
		{"username", models.ErrDuplicateUsername},
		{"email", models.ErrDuplicateEmail},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			users := &MockUserRepository{
				CreateFunc: func(ctx context.Context, user *models.User) (*models.User, error) {
					return nil, &models.UniqueViolationError{Constraint: "users_" + tt.field + "_key", Field: tt.field}
				},
			}
			_, err := newTestAuthService(users, &MockSessionRepository{}).Register(context.Background(), validRegistration())
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestAuthService_Register_PersistenceUnavailable(t *testing.T) {
	users := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return nil, fmt.Errorf("%w: 08006", models.ErrPersistenceUnavailable)
		},
	}

	_, err := newTestAuthService(users, &MockSessionRepository{}).Register(context.Background(), validRegistration())
	assert.Equal(t, models.ErrPersistenceUnavailable, err)
}

// ============================================================================
// Login Tests
// ============================================================================

func userWithPassword(t *testing.T, password string) *models.User {
	t.Helper()
	hash, err := pkgauth.HashPassword(password)
	require.NoError(t, err)
	return &models.User{ID: "user-1", Username: "alice", Email: "alice@x.com", PasswordHash: hash}
}

func TestAuthService_Login_InvalidCredentialsAreIndistinguishable(t *testing.T) {
	user := userWithPassword(t, "secret1")
	users := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			if email == user.Email {
				return user, nil
			}
			return nil, models.ErrNotFound
		},
	}
	sessions := &MockSessionRepository{
		CreateFunc: func(ctx context.Context, session *models.Session) error {
			t.Fatal("no session may be created on failed login")
			return nil
		},
	}
	svc := newTestAuthService(users, sessions)

	_, unknownErr := svc.Login(context.Background(), "nobody@x.com", "secret1")
	_, wrongErr := svc.Login(context.Background(), "alice@x.com", "wrong-password")
	_, emptyErr := svc.Login(context.Background(), "", "")

	assert.Equal(t, models.ErrInvalidCredentials, unknownErr)
	assert.Equal(t, models.ErrInvalidCredentials, wrongErr)
	assert.Equal(t, models.ErrInvalidCredentials, emptyErr)
}

func TestAuthService_Login_WithoutTwoFactorIsAuthenticated(t *testing.T) {
	user := userWithPassword(t, "secret1")
	var stored *models.Session
	users := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) { return user, nil },
	}
	sessions := &MockSessionRepository{
		CreateFunc: func(ctx context.Context, session *models.Session) error {
			stored = session
			return nil
		},
	}

	res, err := newTestAuthService(users, sessions).Login(context.Background(), "Alice@X.com", "secret1")
	require.NoError(t, err)

	assert.Equal(t, auth.StateAuthenticated, res.State)
	assert.NotEmpty(t, res.Token)
	require.NotNil(t, stored)
	assert.Equal(t, auth.HashSessionToken(res.Token), stored.TokenHash)
	assert.Equal(t, "user-1", stored.UserID)
	assert.False(t, stored.PendingSecondFactor)
	assert.Equal(t, fixedNow.Add(24*time.Hour), stored.ExpiresAt)
	assert.Equal(t, "alice", res.User.Username)
}

func TestAuthService_Login_WithTwoFactorAwaitsSecondFactor(t *testing.T) {
	user := userWithPassword(t, "secret1")
	user.TwoFactorEnabled = true
	user.TwoFactorSecret = strPtr("JBSWY3DPEHPK3PXP")

	var stored *models.Session
	users := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) { return user, nil },
	}
	sessions := &MockSessionRepository{
		CreateFunc: func(ctx context.Context, session *models.Session) error {
			stored = session
			return nil
		},
	}

	res, err := newTestAuthService(users, sessions).Login(context.Background(), "alice@x.com", "secret1")
	require.NoError(t, err)

	assert.Equal(t, auth.StateAwaitingSecondFactor, res.State)
	require.NotNil(t, stored)
	assert.True(t, stored.PendingSecondFactor)
	assert.Equal(t, auth.StateAwaitingSecondFactor, auth.StateOf(stored, fixedNow))
}

func TestAuthService_Login_SessionStoreUnavailable(t *testing.T) {
	user := userWithPassword(t, "secret1")
	users := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) { return user, nil },
	}
	sessions := &MockSessionRepository{
		CreateFunc: func(ctx context.Context, session *models.Session) error {
			return fmt.Errorf("%w: 53300", models.ErrPersistenceUnavailable)
		},
	}

	_, err := newTestAuthService(users, sessions).Login(context.Background(), "alice@x.com", "secret1")
	assert.Equal(t, models.ErrPersistenceUnavailable, err)
}

// ============================================================================
// Logout / ResolveSession Tests
// ============================================================================

func TestAuthService_Logout(t *testing.T) {
	var deleted []string
	sessions := &MockSessionRepository{
		DeleteFunc: func(ctx context.Context, tokenHash string) error {
			deleted = append(deleted, tokenHash)
			return nil
		},
	}
	svc := newTestAuthService(&MockUserRepository{}, sessions)

	require.NoError(t, svc.Logout(context.Background(), "tok"))
	require.NoError(t, svc.Logout(context.Background(), ""))

	assert.Equal(t, []string{auth.HashSessionToken("tok")}, deleted)
}

func TestAuthService_ResolveSession(t *testing.T) {
	live := authenticatedSession("user-1")
	expired := authenticatedSession("user-2")
	expired.ExpiresAt = fixedNow.Add(-time.Second)

	var deleted []string
	sessions := &MockSessionRepository{
		GetByTokenHashFunc: func(ctx context.Context, tokenHash string) (*models.Session, error) {
			switch tokenHash {
			case auth.HashSessionToken("live"):
				return live, nil
			case auth.HashSessionToken("expired"):
				return expired, nil
			case auth.HashSessionToken("broken"):
				return nil, fmt.Errorf("%w: 08001", models.ErrPersistenceUnavailable)
			}
			return nil, models.ErrNotFound
		},
		DeleteFunc: func(ctx context.Context, tokenHash string) error {
			deleted = append(deleted, tokenHash)
			return nil
		},
	}
	svc := newTestAuthService(&MockUserRepository{}, sessions)
	ctx := context.Background()

	got, err := svc.ResolveSession(ctx, "live")
	require.NoError(t, err)
	assert.Same(t, live, got)

	got, err = svc.ResolveSession(ctx, "unknown")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = svc.ResolveSession(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = svc.ResolveSession(ctx, "expired")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, []string{expired.TokenHash}, deleted)

	_, err = svc.ResolveSession(ctx, "broken")
	assert.Equal(t, models.ErrPersistenceUnavailable, err)
}
