package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/BradenHooton/twofactor/internal/auth"
	"github.com/BradenHooton/twofactor/internal/models"
	pkgauth "github.com/BradenHooton/twofactor/pkg/auth"
	pkglogger "github.com/BradenHooton/twofactor/pkg/logger"
)

// AuthService handles registration, login, logout and session lookup
type AuthService struct {
	users      UserRepository
	sessions   SessionRepository
	sessionTTL time.Duration
	now        func() time.Time
	logger     *slog.Logger
	events     *pkglogger.EventLogger
}

// NewAuthService creates a new AuthService
func NewAuthService(users UserRepository, sessions SessionRepository, sessionTTL time.Duration, logger *slog.Logger) *AuthService {
	return &AuthService{
		users:      users,
		sessions:   sessions,
		sessionTTL: sessionTTL,
		now:        time.Now,
		logger:     logger,
		events:     pkglogger.NewEventLogger(logger),
	}
}

// WithClock replaces the time source, for tests
func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	s.now = now
	return s
}

// RegisterInput is a registration form as submitted
type RegisterInput struct {
	Username        string
	Email           string
	Password        string
	ConfirmPassword string
}

// dummyHash is compared against when the email is unknown so that both
// failure paths cost one bcrypt comparison.
var (
	dummyHash     string
	dummyHashOnce sync.Once
)

func compareAgainstDummy(password string) {
	dummyHashOnce.Do(func() {
		dummyHash, _ = pkgauth.HashPassword("not-a-real-password")
	})
	_ = pkgauth.VerifyPassword(dummyHash, password)
}

// Register creates a user. It does not log the user in.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*Result, error) {
	username := strings.TrimSpace(in.Username)
	email := strings.ToLower(strings.TrimSpace(in.Email))

	if username == "" || email == "" || in.Password == "" || in.ConfirmPassword == "" {
		return nil, models.NewValidationError("", "All fields are required")
	}
	if in.Password != in.ConfirmPassword {
		return nil, models.NewValidationError("confirm_password", "Passwords do not match")
	}
	if err := pkgauth.ValidatePassword(in.Password); err != nil {
		switch {
		case errors.Is(err, pkgauth.ErrPasswordTooShort):
			return nil, models.NewValidationError("password", "Password must be at least 6 characters")
		default:
			return nil, models.NewValidationError("password", "Password must be at most 72 bytes")
		}
	}

	// Pre-checks give a friendly answer in the common case; the unique
	// constraints below remain the authority under concurrency. Username
	// is checked first, so a request colliding on both reports the username.
	if err := s.ensureAvailable(ctx, s.users.GetByUsername, username, models.ErrDuplicateUsername); err != nil {
		return nil, err
	}
	if err := s.ensureAvailable(ctx, s.users.GetByEmail, email, models.ErrDuplicateEmail); err != nil {
		return nil, err
	}

	hash, err := pkgauth.HashPassword(in.Password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	user, err := s.users.Create(ctx, &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
	})
	if err != nil {
		if dup := duplicateError(err); dup != nil {
			s.logger.Info("registration lost uniqueness race", slog.String("email", pkglogger.SanitizedEmail(email)))
			return nil, dup
		}
		return nil, storeFailure(s.logger, "failed to create user", err, slog.String("email", pkglogger.SanitizedEmail(email)))
	}

	s.events.LogAuthEvent(ctx, pkglogger.AuthEvent{
		EventType: pkglogger.EventRegistered,
		UserID:    user.ID,
		Success:   true,
	})

	return &Result{Message: "Registration successful. Please log in."}, nil
}

func (s *AuthService) ensureAvailable(ctx context.Context, lookup func(context.Context, string) (*models.User, error), value string, taken error) error {
	_, err := lookup(ctx, value)
	switch {
	case err == nil:
		return taken
	case errors.Is(err, models.ErrNotFound):
		return nil
	default:
		return storeFailure(s.logger, "failed uniqueness pre-check", err)
	}
}

// duplicateError converts a unique violation from the store into the
// per-field error a pre-check would have produced.
func duplicateError(err error) error {
	var uv *models.UniqueViolationError
	if !errors.As(err, &uv) {
		return nil
	}
	switch uv.Field {
	case "email":
		return models.ErrDuplicateEmail
	case "username":
		return models.ErrDuplicateUsername
	default:
		return models.ErrConflict
	}
}

// Login checks credentials and opens a session. Users with 2FA enabled get a
// session that still owes the second factor.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, models.ErrInvalidCredentials
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			compareAgainstDummy(password)
			s.events.LogAuthEvent(ctx, pkglogger.AuthEvent{
				EventType:     pkglogger.EventLoginFailed,
				Email:         email,
				FailureReason: "invalid_credentials",
			})
			return nil, models.ErrInvalidCredentials
		}
		return nil, storeFailure(s.logger, "failed to get user by email", err)
	}

	if !pkgauth.VerifyPassword(user.PasswordHash, password) {
		s.events.LogAuthEvent(ctx, pkglogger.AuthEvent{
			EventType:     pkglogger.EventLoginFailed,
			UserID:        user.ID,
			FailureReason: "invalid_credentials",
		})
		return nil, models.ErrInvalidCredentials
	}

	state, err := auth.Transition(auth.StateAnonymous, auth.EventLoginSucceeded, user.TwoFactorEnabled)
	if err != nil {
		s.logger.Error("unexpected login transition", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	token, tokenHash, err := auth.GenerateSessionToken()
	if err != nil {
		s.logger.Error("failed to generate session token", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	now := s.now().UTC()
	session := &models.Session{
		TokenHash:           tokenHash,
		UserID:              user.ID,
		PendingSecondFactor: state == auth.StateAwaitingSecondFactor,
		CreatedAt:           now,
		ExpiresAt:           now.Add(s.sessionTTL),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, storeFailure(s.logger, "failed to create session", err, slog.String("user_id", user.ID))
	}

	message := "Login successful"
	if session.PendingSecondFactor {
		message = "Please enter your 2FA code"
	}

	s.events.LogAuthEvent(ctx, pkglogger.AuthEvent{
		EventType: pkglogger.EventLoginSucceeded,
		UserID:    user.ID,
		Success:   true,
	})
	s.logger.Info("session created", slog.String("user_id", user.ID), slog.String("state", state.String()))

	return &LoginResult{
		Result: Result{Message: message, User: NewUserView(user)},
		Token:  token,
		State:  state,
	}, nil
}

// Logout destroys the session behind token. Unknown tokens are ignored.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.sessions.Delete(ctx, auth.HashSessionToken(token)); err != nil {
		return storeFailure(s.logger, "failed to delete session", err)
	}
	s.events.LogAuthEvent(ctx, pkglogger.AuthEvent{EventType: pkglogger.EventLogout, Success: true})
	return nil
}

// ResolveSession returns the live session for token, or nil when the token is
// unknown or expired. Expired sessions are removed on sight.
func (s *AuthService) ResolveSession(ctx context.Context, token string) (*models.Session, error) {
	if token == "" {
		return nil, nil
	}

	session, err := s.sessions.GetByTokenHash(ctx, auth.HashSessionToken(token))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil
		}
		return nil, storeFailure(s.logger, "failed to load session", err)
	}

	if session.IsExpired(s.now()) {
		if err := s.sessions.Delete(ctx, session.TokenHash); err != nil {
			s.logger.Warn("failed to delete expired session", slog.Any("error", err))
		}
		return nil, nil
	}

	return session, nil
}
