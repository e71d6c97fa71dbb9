package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/twofactor/internal/auth"
	"github.com/BradenHooton/twofactor/internal/models"
	pkghttp "github.com/BradenHooton/twofactor/pkg/http"
)

// writeServiceError maps an orchestrator error onto a response. Anything not
// recognised is a generic 500; internal detail never reaches the client.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var ve *models.ValidationError
	switch {
	case errors.As(err, &ve):
		pkghttp.WriteErrorWithDetails(w, http.StatusBadRequest, "invalid_input", ve.Message, ve.Field)
	case errors.Is(err, models.ErrInvalidInput):
		pkghttp.WriteBadRequest(w, "Invalid input")
	case errors.Is(err, models.ErrInvalidCredentials):
		pkghttp.WriteError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password")
	case errors.Is(err, models.ErrDuplicateEmail):
		pkghttp.WriteErrorWithDetails(w, http.StatusConflict, "duplicate_email", "Email already registered", "email")
	case errors.Is(err, models.ErrDuplicateUsername):
		pkghttp.WriteErrorWithDetails(w, http.StatusConflict, "duplicate_username", "Username already taken", "username")
	case errors.Is(err, models.ErrConflict):
		pkghttp.WriteConflict(w, "Already exists")
	case errors.Is(err, models.ErrInvalidSecondFactorCode):
		pkghttp.WriteError(w, http.StatusUnauthorized, "invalid_code", "Invalid 2FA code")
	case errors.Is(err, models.ErrSetupNotStarted):
		pkghttp.WriteError(w, http.StatusBadRequest, "setup_not_started", "Start 2FA setup first")
	case errors.Is(err, models.ErrSecondFactorRequired):
		pkghttp.WriteRedirect(w, http.StatusForbidden, "second_factor_required",
			"Second factor verification required", auth.VerifyPath)
	case errors.Is(err, models.ErrUnauthenticated):
		pkghttp.WriteUnauthorized(w, "Login required", auth.LoginPath)
	case errors.Is(err, models.ErrPersistenceUnavailable):
		pkghttp.WriteServiceUnavailable(w, "Service temporarily unavailable")
	default:
		if !errors.Is(err, models.ErrInternalServer) {
			logger.Error("unhandled service error", slog.Any("error", err))
		}
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}
