package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/BradenHooton/twofactor/internal/models"
)

// UserService serves read-only views of users
type UserService struct {
	repo   UserRepository
	now    func() time.Time
	logger *slog.Logger
}

// NewUserService creates a new UserService
func NewUserService(repo UserRepository, logger *slog.Logger) *UserService {
	return &UserService{
		repo:   repo,
		now:    time.Now,
		logger: logger,
	}
}

// Profile returns the dashboard view for an authenticated session
func (s *UserService) Profile(ctx context.Context, session *models.Session) (*UserView, error) {
	user, err := authenticatedUser(ctx, s.repo, session, s.now(), s.logger)
	if err != nil {
		return nil, err
	}
	return NewUserView(user), nil
}

// ListUsers retrieves a page of users, newest first
func (s *UserService) ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	users, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, storeFailure(s.logger, "failed to list users", err, slog.Int("limit", limit), slog.Int("offset", offset))
	}

	return users, nil
}
