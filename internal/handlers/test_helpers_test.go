package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/twofactor/internal/auth"
	"github.com/BradenHooton/twofactor/internal/models"
	"github.com/BradenHooton/twofactor/internal/services"
	pkghttp "github.com/BradenHooton/twofactor/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithSessionContext attaches a session as LoadSession would
func WithSessionContext(req *http.Request, session *models.Session, token string) *http.Request {
	return req.WithContext(auth.WithSession(req.Context(), session, token))
}

func authenticatedSession() *models.Session {
	return &models.Session{
		TokenHash: auth.HashSessionToken("authenticated-token"),
		UserID:    "user-1",
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

func pendingSession() *models.Session {
	s := authenticatedSession()
	s.PendingSecondFactor = true
	return s
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	if target != nil {
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), target), "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) pkghttp.ErrorResponse {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
	return resp
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	RegisterFunc func(ctx context.Context, in services.RegisterInput) (*services.Result, error)
	LoginFunc    func(ctx context.Context, email, password string) (*services.LoginResult, error)
	LogoutFunc   func(ctx context.Context, token string) error
}

func (m *MockAuthService) Register(ctx context.Context, in services.RegisterInput) (*services.Result, error) {
	if m.RegisterFunc == nil {
		return nil, models.ErrConflict
	}
	return m.RegisterFunc(ctx, in)
}

func (m *MockAuthService) Login(ctx context.Context, email, password string) (*services.LoginResult, error) {
	if m.LoginFunc == nil {
		return nil, models.ErrInvalidCredentials
	}
	return m.LoginFunc(ctx, email, password)
}

func (m *MockAuthService) Logout(ctx context.Context, token string) error {
	if m.LogoutFunc == nil {
		return nil
	}
	return m.LogoutFunc(ctx, token)
}

// MockMFAService implements MFAServiceInterface for testing
type MockMFAService struct {
	BeginSetupFunc         func(ctx context.Context, session *models.Session) (*services.SetupResult, error)
	ConfirmSetupFunc       func(ctx context.Context, session *models.Session, code string) (*services.SetupResult, error)
	DisableFunc            func(ctx context.Context, session *models.Session) (*services.Result, error)
	VerifySecondFactorFunc func(ctx context.Context, session *models.Session, code string) (*services.Result, error)
}

func (m *MockMFAService) BeginSetup(ctx context.Context, session *models.Session) (*services.SetupResult, error) {
	if m.BeginSetupFunc == nil {
		return nil, models.ErrUnauthenticated
	}
	return m.BeginSetupFunc(ctx, session)
}

func (m *MockMFAService) ConfirmSetup(ctx context.Context, session *models.Session, code string) (*services.SetupResult, error) {
	if m.ConfirmSetupFunc == nil {
		return nil, models.ErrUnauthenticated
	}
	return m.ConfirmSetupFunc(ctx, session, code)
}

func (m *MockMFAService) Disable(ctx context.Context, session *models.Session) (*services.Result, error) {
	if m.DisableFunc == nil {
		return nil, models.ErrUnauthenticated
	}
	return m.DisableFunc(ctx, session)
}

func (m *MockMFAService) VerifySecondFactor(ctx context.Context, session *models.Session, code string) (*services.Result, error) {
	if m.VerifySecondFactorFunc == nil {
		return nil, models.ErrUnauthenticated
	}
	return m.VerifySecondFactorFunc(ctx, session, code)
}

// MockUserService implements UserServiceInterface for testing
type MockUserService struct {
	ProfileFunc func(ctx context.Context, session *models.Session) (*services.UserView, error)
}

func (m *MockUserService) Profile(ctx context.Context, session *models.Session) (*services.UserView, error) {
	if m.ProfileFunc == nil {
		return nil, models.ErrUnauthenticated
	}
	return m.ProfileFunc(ctx, session)
}
