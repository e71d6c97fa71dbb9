package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/BradenHooton/twofactor/internal/config"
	"github.com/BradenHooton/twofactor/internal/database"
	"github.com/BradenHooton/twofactor/internal/models"
	"github.com/BradenHooton/twofactor/internal/repositories"
	"github.com/BradenHooton/twofactor/internal/services"
)

// dbStore backs the commands with the application database
type dbStore struct {
	db    *database.DB
	repo  *repositories.UserRepository
	users *services.UserService
}

func (s *dbStore) ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error) {
	return s.users.ListUsers(ctx, limit, offset)
}

func (s *dbStore) CountUsers(ctx context.Context) (int64, error) {
	return s.repo.Count(ctx)
}

func (s *dbStore) Reset(ctx context.Context) error {
	return s.db.Truncate(ctx, "sessions", "users")
}

func openStore(logger *slog.Logger) func(ctx context.Context) (store, func(), error) {
	return func(ctx context.Context) (store, func(), error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, nil, fmt.Errorf("load configuration: %w", err)
		}

		db, err := database.NewConnection(&cfg.Database, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to database: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("apply migrations: %w", err)
		}

		repo := repositories.NewUserRepository(db.Pool)
		return &dbStore{
			db:    db,
			repo:  repo,
			users: services.NewUserService(repo, logger),
		}, db.Close, nil
	}
}

func main() {
	// connection chatter goes to stderr so stdout stays a clean table
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	if err := newRootCmd(openStore(logger)).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
