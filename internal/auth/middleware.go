package auth

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/BradenHooton/twofactor/internal/models"
	pkghttp "github.com/BradenHooton/twofactor/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	sessionContextKey contextKey = "session"
	tokenContextKey   contextKey = "session_token"
)

const (
	LoginPath     = "/auth/login"
	VerifyPath    = "/auth/verify-2fa"
	DashboardPath = "/auth/dashboard"
)

// SessionResolver looks up the live session for a client token.
// It returns (nil, nil) when the token is unknown or expired.
type SessionResolver interface {
	ResolveSession(ctx context.Context, token string) (*models.Session, error)
}

// LoadSession resolves the session cookie, if any, and stores the session and
// its token in the request context. A request without a live session passes
// through as anonymous. A store failure is answered with 503 rather than
// treating the caller as anonymous.
func LoadSession(resolver SessionResolver, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := GetSessionCookie(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			session, err := resolver.ResolveSession(r.Context(), token)
			if err != nil {
				logger.Error("failed to resolve session", slog.String("error", err.Error()))
				pkghttp.WriteServiceUnavailable(w, "Session store unavailable")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), session, token)))
		})
	}
}

// RequireState admits only callers whose session satisfies requirement and
// answers everyone else with a JSON redirect.
// Must be used after LoadSession.
func RequireState(requirement Requirement) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			state := StateOf(GetSession(r), time.Now())

			switch Guard(state, requirement) {
			case Allow:
				next.ServeHTTP(w, r)
			case RedirectToVerify:
				pkghttp.WriteRedirect(w, http.StatusForbidden, "second_factor_required",
					"Second factor verification required", VerifyPath)
			case RedirectToDashboard:
				pkghttp.WriteRedirect(w, http.StatusConflict, "already_authenticated",
					"Session is already authenticated", DashboardPath)
			default:
				pkghttp.WriteUnauthorized(w, "Login required", LoginPath)
			}
		})
	}
}

// WithSession returns ctx carrying session (which may be nil) and the raw token
func WithSession(ctx context.Context, session *models.Session, token string) context.Context {
	ctx = context.WithValue(ctx, tokenContextKey, token)
	if session != nil {
		ctx = context.WithValue(ctx, sessionContextKey, session)
	}
	return ctx
}

// GetSession returns the session loaded for this request, or nil
func GetSession(r *http.Request) *models.Session {
	session, ok := r.Context().Value(sessionContextKey).(*models.Session)
	if !ok {
		return nil
	}
	return session
}

// GetSessionToken returns the raw session token presented with this request
func GetSessionToken(r *http.Request) string {
	token, _ := r.Context().Value(tokenContextKey).(string)
	return token
}
