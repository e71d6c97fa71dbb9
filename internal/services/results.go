package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/BradenHooton/twofactor/internal/auth"
	"github.com/BradenHooton/twofactor/internal/models"
)

// UserRepository defines the interface for user data access
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
	UpdateTwoFactor(ctx context.Context, id string, secret *string, enabled bool) error
	List(ctx context.Context, limit, offset int) ([]*models.User, error)
}

// SessionRepository defines the interface for the server-side session store
type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error)
	MarkSecondFactorVerified(ctx context.Context, tokenHash string, now time.Time) error
	SetPendingSetupSecret(ctx context.Context, tokenHash string, secret *string) error
	Delete(ctx context.Context, tokenHash string) error
	CleanupExpired(ctx context.Context, now time.Time) (int64, error)
}

// UserView is the part of a user a page may render
type UserView struct {
	ID               string `json:"id"`
	Username         string `json:"username"`
	Email            string `json:"email"`
	TwoFactorEnabled bool   `json:"two_factor_enabled"`
}

func NewUserView(u *models.User) *UserView {
	return &UserView{
		ID:               u.ID,
		Username:         u.Username,
		Email:            u.Email,
		TwoFactorEnabled: u.TwoFactorEnabled,
	}
}

// Result is the user-facing outcome of an orchestrator operation
type Result struct {
	Message string    `json:"message"`
	User    *UserView `json:"user,omitempty"`
}

// LoginResult carries the new session token back to the transport layer.
// The token must be handed to the client and never logged.
type LoginResult struct {
	Result
	Token string            `json:"-"`
	State auth.SessionState `json:"-"`
}

// SetupResult is the setup view: either the in-flight secret with its
// provisioning artifacts, or AlreadyEnabled.
type SetupResult struct {
	Result
	AlreadyEnabled  bool   `json:"already_enabled"`
	Secret          string `json:"secret,omitempty"`
	ProvisioningURI string `json:"provisioning_uri,omitempty"`
	QRCode          string `json:"qr_code,omitempty"`
}

// storeFailure logs a persistence error and reduces it to what callers may see
func storeFailure(logger *slog.Logger, msg string, err error, attrs ...any) error {
	logger.Error(msg, append(attrs, slog.Any("error", err))...)
	if errors.Is(err, models.ErrPersistenceUnavailable) {
		return models.ErrPersistenceUnavailable
	}
	return models.ErrInternalServer
}

// authenticatedUser loads the user behind a fully authenticated session.
// A pending session gets ErrSecondFactorRequired, anything else ErrUnauthenticated.
func authenticatedUser(ctx context.Context, users UserRepository, session *models.Session, now time.Time, logger *slog.Logger) (*models.User, error) {
	switch auth.StateOf(session, now) {
	case auth.StateAuthenticated:
	case auth.StateAwaitingSecondFactor:
		return nil, models.ErrSecondFactorRequired
	default:
		return nil, models.ErrUnauthenticated
	}

	user, err := users.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			logger.Warn("session references missing user", slog.String("user_id", session.UserID))
			return nil, models.ErrUnauthenticated
		}
		return nil, storeFailure(logger, "failed to load session user", err, slog.String("user_id", session.UserID))
	}
	return user, nil
}
