package routes

import (
	"log/slog"
	"net/http"

	"github.com/BradenHooton/twofactor/internal/auth"
	"github.com/BradenHooton/twofactor/internal/handlers"
	pkghttp "github.com/BradenHooton/twofactor/pkg/http"
	"github.com/go-chi/chi/v5"
)

// Handlers groups everything the router dispatches to
type Handlers struct {
	Auth   *handlers.AuthHandler
	MFA    *handlers.MFAHandler
	User   *handlers.UserHandler
	Health *handlers.HealthHandler
}

// RegisterRoutes registers all application routes
func RegisterRoutes(router chi.Router, h Handlers, sessions auth.SessionResolver, logger *slog.Logger) {
	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		pkghttp.WriteNotFound(w, "Not found")
	})

	router.Get("/health", h.Health.Health)

	router.Group(func(r chi.Router) {
		r.Use(auth.LoadSession(sessions, logger))

		// Public routes
		r.Get("/", h.User.Root)
		r.Post("/auth/register", h.Auth.Register)
		r.Post("/auth/login", h.Auth.Login)
		r.Post("/auth/logout", h.Auth.Logout)

		// Only a login that still owes its second factor
		r.With(auth.RequireState(auth.RequirePendingSecondFactor)).Post("/auth/verify-2fa", h.MFA.Verify)

		// Fully authenticated sessions
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireState(auth.RequireAuthenticated))
			r.Get("/auth/dashboard", h.User.Dashboard)
			r.Post("/auth/setup-2fa", h.MFA.Setup)
			r.Post("/auth/confirm-2fa", h.MFA.Confirm)
			r.Post("/auth/disable-2fa", h.MFA.Disable)
		})
	})
}
