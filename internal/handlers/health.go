package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/BradenHooton/twofactor/internal/database"
	pkghttp "github.com/BradenHooton/twofactor/pkg/http"
)

// HealthChecker reports whether the database answers and how its pool is doing
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
	PoolStats() database.PoolStats
}

type HealthHandler struct {
	db     HealthChecker
	logger *slog.Logger
}

func NewHealthHandler(db HealthChecker, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{db: db, logger: logger}
}

type HealthResponse struct {
	Status   string              `json:"status"`
	Database string              `json:"database"`
	Pool     *database.PoolStats `json:"pool,omitempty"`
}

// Health pings the database
// @Router /health [get]
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.HealthCheck(ctx); err != nil {
		h.logger.Warn("health check failed", slog.Any("error", err))
		pkghttp.WriteJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unhealthy", Database: "down"})
		return
	}

	stats := h.db.PoolStats()
	pkghttp.WriteJSON(w, http.StatusOK, HealthResponse{Status: "healthy", Database: "up", Pool: &stats})
}
