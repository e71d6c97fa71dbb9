package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/twofactor/internal/auth"
	"github.com/BradenHooton/twofactor/internal/models"
	"github.com/BradenHooton/twofactor/internal/services"
	pkghttp "github.com/BradenHooton/twofactor/pkg/http"
)

// MFAServiceInterface defines the interface for second factor operations
type MFAServiceInterface interface {
	BeginSetup(ctx context.Context, session *models.Session) (*services.SetupResult, error)
	ConfirmSetup(ctx context.Context, session *models.Session, code string) (*services.SetupResult, error)
	Disable(ctx context.Context, session *models.Session) (*services.Result, error)
	VerifySecondFactor(ctx context.Context, session *models.Session, code string) (*services.Result, error)
}

// MFAHandler handles 2FA setup, confirmation, disablement and verification
type MFAHandler struct {
	service MFAServiceInterface
	logger  *slog.Logger
}

// NewMFAHandler creates a new MFAHandler
func NewMFAHandler(service MFAServiceInterface, logger *slog.Logger) *MFAHandler {
	return &MFAHandler{service: service, logger: logger}
}

// CodeRequest carries a TOTP code. Its content is judged by the service only,
// so a rejected confirm can always return the setup view.
type CodeRequest struct {
	Code string `json:"code"`
}

// SetupRetryResponse is a rejected confirm: the error plus the unchanged setup view
type SetupRetryResponse struct {
	pkghttp.ErrorResponse
	Setup *services.SetupResult `json:"setup"`
}

// Setup starts 2FA enrolment
// @Router /auth/setup-2fa [post]
func (h *MFAHandler) Setup(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.BeginSetup(r.Context(), auth.GetSession(r))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, res)
}

// Confirm finishes 2FA enrolment with a code from the new secret
// @Router /auth/confirm-2fa [post]
func (h *MFAHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req CodeRequest
	if err := pkghttp.DecodeJSON(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	res, err := h.service.ConfirmSetup(r.Context(), auth.GetSession(r), req.Code)
	if err != nil {
		if res != nil {
			h.writeSetupRetry(w, err, res)
			return
		}
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, res)
}

func (h *MFAHandler) writeSetupRetry(w http.ResponseWriter, err error, view *services.SetupResult) {
	status, code := http.StatusUnprocessableEntity, "invalid_code"
	if errors.Is(err, models.ErrInvalidInput) {
		status, code = http.StatusBadRequest, "invalid_input"
	}

	pkghttp.WriteJSON(w, status, SetupRetryResponse{
		ErrorResponse: pkghttp.ErrorResponse{Error: code, Message: view.Message},
		Setup:         view,
	})
}

// Disable turns 2FA off for the current user
// @Router /auth/disable-2fa [post]
func (h *MFAHandler) Disable(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.Disable(r.Context(), auth.GetSession(r))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, res)
}

// Verify completes a login that is waiting on the second factor
// @Router /auth/verify-2fa [post]
func (h *MFAHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req CodeRequest
	if err := pkghttp.DecodeJSON(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	res, err := h.service.VerifySecondFactor(r.Context(), auth.GetSession(r), req.Code)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, LoginResponse{
		Result:   *res,
		State:    auth.StateAuthenticated.String(),
		Redirect: auth.DashboardPath,
	})
}
