package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/BradenHooton/twofactor/internal/auth"
	"github.com/BradenHooton/twofactor/internal/services"
	pkghttp "github.com/BradenHooton/twofactor/pkg/http"
)

// AuthServiceInterface defines the interface for auth business logic
type AuthServiceInterface interface {
	Register(ctx context.Context, in services.RegisterInput) (*services.Result, error)
	Login(ctx context.Context, email, password string) (*services.LoginResult, error)
	Logout(ctx context.Context, token string) error
}

// AuthHandler handles registration, login and logout
type AuthHandler struct {
	service    AuthServiceInterface
	cookies    auth.CookieConfig
	sessionTTL time.Duration
	logger     *slog.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthServiceInterface, cookies auth.CookieConfig, sessionTTL time.Duration, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		service:    service,
		cookies:    cookies,
		sessionTTL: sessionTTL,
		logger:     logger,
	}
}

// Request DTOs

// RegisterRequest represents the request body for registration
type RegisterRequest struct {
	Username        string `json:"username" validate:"required,max=255"`
	Email           string `json:"email" validate:"required,email,max=255"`
	Password        string `json:"password" validate:"required,min=6"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=Password"`
}

// LoginRequest represents the request body for login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse tells the client where the login left it
type LoginResponse struct {
	services.Result
	State    string `json:"state"`
	Redirect string `json:"redirect"`
}

// MessageResponse is a plain acknowledgement
type MessageResponse struct {
	Message  string `json:"message"`
	Redirect string `json:"redirect,omitempty"`
}

// Register handles user registration
// @Router /auth/register [post]
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := pkghttp.DecodeJSON(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if ve := ValidateRequest(req); ve != nil {
		pkghttp.WriteErrorWithDetails(w, http.StatusBadRequest, "invalid_input", registrationMessage(ve), ve.Field)
		return
	}

	res, err := h.service.Register(r.Context(), services.RegisterInput{
		Username:        req.Username,
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, MessageResponse{Message: res.Message, Redirect: auth.LoginPath})
}

// Login handles user login. Any session presented with the request is
// destroyed first so a login always starts from a fresh token.
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := pkghttp.DecodeJSON(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if ve := ValidateRequest(req); ve != nil {
		pkghttp.WriteErrorWithDetails(w, http.StatusBadRequest, "invalid_input", ve.Message, ve.Field)
		return
	}

	res, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	if previous := auth.GetSessionCookie(r); previous != "" {
		if err := h.service.Logout(r.Context(), previous); err != nil {
			h.logger.Warn("failed to destroy previous session", slog.Any("error", err))
		}
	}

	auth.SetSessionCookie(w, res.Token, h.sessionTTL, h.cookies)

	redirect := auth.DashboardPath
	if res.State == auth.StateAwaitingSecondFactor {
		redirect = auth.VerifyPath
	}

	pkghttp.WriteJSON(w, http.StatusOK, LoginResponse{
		Result:   res.Result,
		State:    res.State.String(),
		Redirect: redirect,
	})
}

// Logout destroys the session and clears the cookie. It is safe to call
// without a session.
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := auth.GetSessionToken(r)
	if token == "" {
		token = auth.GetSessionCookie(r)
	}

	auth.ClearSessionCookie(w, h.cookies)

	if err := h.service.Logout(r.Context(), token); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{Message: "Logged out", Redirect: auth.LoginPath})
}

// registrationMessage keeps the form's wording in line with the service's own checks
func registrationMessage(ve *ValidationErrorResponse) string {
	switch ve.Tag {
	case "required":
		return "All fields are required"
	case "eqfield":
		return "Passwords do not match"
	case "min":
		return "Password must be at least 6 characters"
	case "email":
		return "Please enter a valid email address"
	}
	return ve.Message
}
