package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/BradenHooton/twofactor/internal/auth"
	"github.com/BradenHooton/twofactor/internal/models"
	"github.com/BradenHooton/twofactor/internal/services"
	pkghttp "github.com/BradenHooton/twofactor/pkg/http"
)

// UserServiceInterface defines the interface for user views
type UserServiceInterface interface {
	Profile(ctx context.Context, session *models.Session) (*services.UserView, error)
}

// UserHandler serves the dashboard and the root redirect
type UserHandler struct {
	service UserServiceInterface
	logger  *slog.Logger
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(service UserServiceInterface, logger *slog.Logger) *UserHandler {
	return &UserHandler{service: service, logger: logger}
}

// DashboardResponse is the authenticated landing view
type DashboardResponse struct {
	User *services.UserView `json:"user"`
}

// Dashboard returns the current user
// @Router /auth/dashboard [get]
func (h *UserHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Profile(r.Context(), auth.GetSession(r))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, DashboardResponse{User: view})
}

// Root sends the caller to wherever their session state belongs
// @Router / [get]
func (h *UserHandler) Root(w http.ResponseWriter, r *http.Request) {
	target := auth.LoginPath
	switch auth.StateOf(auth.GetSession(r), time.Now()) {
	case auth.StateAuthenticated:
		target = auth.DashboardPath
	case auth.StateAwaitingSecondFactor:
		target = auth.VerifyPath
	}

	http.Redirect(w, r, target, http.StatusSeeOther)
}
