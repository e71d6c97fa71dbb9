package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BradenHooton/twofactor/internal/auth"
	"github.com/BradenHooton/twofactor/internal/background"
	"github.com/BradenHooton/twofactor/internal/config"
	"github.com/BradenHooton/twofactor/internal/database"
	"github.com/BradenHooton/twofactor/internal/handlers"
	middlewareCustom "github.com/BradenHooton/twofactor/internal/middleware"
	"github.com/BradenHooton/twofactor/internal/repositories"
	"github.com/BradenHooton/twofactor/internal/routes"
	"github.com/BradenHooton/twofactor/internal/services"
	pkghttp "github.com/BradenHooton/twofactor/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Server.SlogLevel()}))
	slog.SetDefault(logger)

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	ipConfig, err := pkghttp.NewIPConfig(cfg.Server.TrustedProxies)
	if err != nil {
		logger.Error("invalid TRUSTED_PROXIES", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = db.Migrate(migrateCtx)
	migrateCancel()
	if err != nil {
		logger.Error("failed to apply migrations", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db.Pool)
	sessionRepo := repositories.NewSessionRepository(db.Pool)

	cleanupManager := background.NewCleanupManager(sessionRepo, logger, cfg.Auth.SessionCleanupInterval)

	totpManager := auth.NewTOTPManager(cfg.Auth.TOTPIssuer, uint(cfg.Auth.TOTPSkew))
	logger.Info("totp configured",
		slog.String("issuer", cfg.Auth.TOTPIssuer),
		slog.Int("window_steps", int(totpManager.Skew())),
	)

	// Initialize services
	authService := services.NewAuthService(userRepo, sessionRepo, cfg.Auth.SessionTTL, logger)
	mfaService := services.NewMFAService(userRepo, sessionRepo, totpManager, logger)
	userService := services.NewUserService(userRepo, logger)

	cookies := auth.CookieConfig{
		Domain:   cfg.Auth.CookieDomain,
		Secure:   cfg.Auth.CookieSecure,
		SameSite: cfg.Auth.CookieSameSite,
	}

	// Initialize handlers
	h := routes.Handlers{
		Auth:   handlers.NewAuthHandler(authService, cookies, cfg.Auth.SessionTTL, logger),
		MFA:    handlers.NewMFAHandler(mfaService, logger),
		User:   handlers.NewUserHandler(userService, logger),
		Health: handlers.NewHealthHandler(db, logger),
	}

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.SecureLogger(logger, ipConfig))
	router.Use(middlewareCustom.Recover(logger))
	router.Use(middleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(router, h, authService, logger)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}
