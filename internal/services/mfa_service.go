package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/twofactor/internal/auth"
	"github.com/BradenHooton/twofactor/internal/models"
	pkglogger "github.com/BradenHooton/twofactor/pkg/logger"
)

// MFAService handles TOTP setup, confirmation, verification and disablement
type MFAService struct {
	users    UserRepository
	sessions SessionRepository
	totpMgr  *auth.TOTPManager
	now      func() time.Time
	logger   *slog.Logger
	events   *pkglogger.EventLogger
}

// NewMFAService creates a new MFA service
func NewMFAService(users UserRepository, sessions SessionRepository, totpMgr *auth.TOTPManager, logger *slog.Logger) *MFAService {
	return &MFAService{
		users:    users,
		sessions: sessions,
		totpMgr:  totpMgr,
		now:      time.Now,
		logger:   logger,
		events:   pkglogger.NewEventLogger(logger),
	}
}

// WithClock replaces the time source used for session expiry, for tests
func (s *MFAService) WithClock(now func() time.Time) *MFAService {
	s.now = now
	return s
}

// BeginSetup generates a new secret and parks it on the caller's session.
// Nothing is written to the user until ConfirmSetup succeeds.
func (s *MFAService) BeginSetup(ctx context.Context, session *models.Session) (*SetupResult, error) {
	user, err := authenticatedUser(ctx, s.users, session, s.now(), s.logger)
	if err != nil {
		return nil, err
	}

	if user.TwoFactorEnabled {
		return &SetupResult{
			Result:         Result{Message: "2FA is already enabled", User: NewUserView(user)},
			AlreadyEnabled: true,
		}, nil
	}

	key, err := s.totpMgr.GenerateSecret(user.Username)
	if err != nil {
		s.logger.Error("failed to generate TOTP secret", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	qrCode, err := auth.RenderQRCode(key.ProvisioningURI)
	if err != nil {
		s.logger.Error("failed to render QR code", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := s.sessions.SetPendingSetupSecret(ctx, session.TokenHash, &key.Secret); err != nil {
		return nil, storeFailure(s.logger, "failed to store pending setup secret", err, slog.String("user_id", user.ID))
	}
	session.PendingSetupSecret = &key.Secret

	s.logger.Info("2FA setup started", slog.String("user_id", user.ID))

	return &SetupResult{
		Result:          Result{Message: "Scan the QR code with your authenticator app, then enter the code to confirm", User: NewUserView(user)},
		Secret:          key.Secret,
		ProvisioningURI: key.ProvisioningURI,
		QRCode:          qrCode,
	}, nil
}

// ConfirmSetup enables 2FA if code matches the secret from BeginSetup.
// On a rejected code the returned SetupResult still carries the same secret
// and QR code, alongside the error, so the user can retry without rescanning.
func (s *MFAService) ConfirmSetup(ctx context.Context, session *models.Session, code string) (*SetupResult, error) {
	user, err := authenticatedUser(ctx, s.users, session, s.now(), s.logger)
	if err != nil {
		return nil, err
	}

	if user.TwoFactorEnabled {
		return &SetupResult{
			Result:         Result{Message: "2FA is already enabled", User: NewUserView(user)},
			AlreadyEnabled: true,
		}, nil
	}

	if session.PendingSetupSecret == nil || *session.PendingSetupSecret == "" {
		return nil, models.ErrSetupNotStarted
	}
	secret := *session.PendingSetupSecret

	view, err := s.setupView(user, secret)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(code) == "" {
		view.Message = "Please enter the code from your authenticator app"
		return view, models.NewValidationError("code", view.Message)
	}

	if !s.totpMgr.Validate(secret, code) {
		s.logger.Info("2FA confirmation rejected", slog.String("user_id", user.ID))
		view.Message = "Invalid code, please try again"
		return view, models.ErrInvalidSecondFactorCode
	}

	if err := s.users.UpdateTwoFactor(ctx, user.ID, &secret, true); err != nil {
		return nil, storeFailure(s.logger, "failed to enable 2FA", err, slog.String("user_id", user.ID))
	}

	if err := s.sessions.SetPendingSetupSecret(ctx, session.TokenHash, nil); err != nil {
		// 2FA is already on; a stale pending secret dies with the session
		s.logger.Warn("failed to clear pending setup secret", slog.String("user_id", user.ID), slog.Any("error", err))
	}
	session.PendingSetupSecret = nil

	user.TwoFactorSecret = &secret
	user.TwoFactorEnabled = true

	s.events.LogAuthEvent(ctx, pkglogger.AuthEvent{
		EventType: pkglogger.EventTwoFactorEnabled,
		UserID:    user.ID,
		Success:   true,
	})

	return &SetupResult{
		Result: Result{Message: "2FA enabled successfully", User: NewUserView(user)},
	}, nil
}

func (s *MFAService) setupView(user *models.User, secret string) (*SetupResult, error) {
	uri, err := s.totpMgr.ProvisioningURI(secret, user.Username)
	if err != nil {
		s.logger.Error("pending setup secret is unusable", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, fmt.Errorf("%w: %v", models.ErrSetupNotStarted, err)
	}

	qrCode, err := auth.RenderQRCode(uri)
	if err != nil {
		s.logger.Error("failed to render QR code", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return &SetupResult{
		Result:          Result{User: NewUserView(user)},
		Secret:          secret,
		ProvisioningURI: uri,
		QRCode:          qrCode,
	}, nil
}

// Disable turns 2FA off and forgets the secret. No re-authentication is asked for.
func (s *MFAService) Disable(ctx context.Context, session *models.Session) (*Result, error) {
	user, err := authenticatedUser(ctx, s.users, session, s.now(), s.logger)
	if err != nil {
		return nil, err
	}

	if err := s.users.UpdateTwoFactor(ctx, user.ID, nil, false); err != nil {
		return nil, storeFailure(s.logger, "failed to disable 2FA", err, slog.String("user_id", user.ID))
	}

	user.TwoFactorSecret = nil
	user.TwoFactorEnabled = false

	s.events.LogAuthEvent(ctx, pkglogger.AuthEvent{
		EventType: pkglogger.EventTwoFactorDisabled,
		UserID:    user.ID,
		Success:   true,
	})

	return &Result{Message: "2FA disabled", User: NewUserView(user)}, nil
}

// VerifySecondFactor completes a login that is waiting on a TOTP code.
// A wrong code leaves the session waiting; there is no retry limit.
func (s *MFAService) VerifySecondFactor(ctx context.Context, session *models.Session, code string) (*Result, error) {
	state := auth.StateOf(session, s.now())
	if _, err := auth.Transition(state, auth.EventSecondFactorAccepted, true); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrUnauthenticated, err)
	}

	if strings.TrimSpace(code) == "" {
		return nil, models.NewValidationError("code", "Please enter the code from your authenticator app")
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUnauthenticated
		}
		return nil, storeFailure(s.logger, "failed to load user for 2FA", err, slog.String("user_id", session.UserID))
	}

	// 2FA may have been disabled from another session since login
	if !user.HasTwoFactor() || !s.totpMgr.Validate(*user.TwoFactorSecret, code) {
		s.events.LogAuthEvent(ctx, pkglogger.AuthEvent{
			EventType:     pkglogger.EventSecondFactorRejected,
			UserID:        user.ID,
			FailureReason: "invalid_code",
		})
		return nil, models.ErrInvalidSecondFactorCode
	}

	if err := s.sessions.MarkSecondFactorVerified(ctx, session.TokenHash, s.now().UTC()); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUnauthenticated
		}
		return nil, storeFailure(s.logger, "failed to mark session verified", err, slog.String("user_id", user.ID))
	}
	session.PendingSecondFactor = false

	s.events.LogAuthEvent(ctx, pkglogger.AuthEvent{
		EventType: pkglogger.EventSecondFactorAccepted,
		UserID:    user.ID,
		Success:   true,
	})

	return &Result{Message: "Login successful", User: NewUserView(user)}, nil
}
