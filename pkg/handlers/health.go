package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/config"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/logging"
)

const serviceName = "table-engine"

// CatalogPinger is the slice of *sql.DB the health check needs.
type CatalogPinger interface {
	PingContext(ctx context.Context) error
	Stats() sql.DBStats
}

// HealthResponse reports catalog database reachability.
type HealthResponse struct {
	Status          string `json:"status"`
	Dialect         string `json:"dialect"`
	OpenConnections int    `json:"open_connections"`
	InUse           int    `json:"in_use"`
}

// PingResponse contains service status and version information.
type PingResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Service     string `json:"service"`
	GoVersion   string `json:"go_version"`
	Hostname    string `json:"hostname"`
	Environment string `json:"environment"`
	Dialect     string `json:"dialect"`
}

// HealthHandler handles health check and ping endpoints.
type HealthHandler struct {
	cfg    *config.Config
	db     CatalogPinger
	logger *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. db may be nil, in which case
// /health reports only process liveness.
func NewHealthHandler(cfg *config.Config, db CatalogPinger, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{cfg: cfg, db: db, logger: logger}
}

// RegisterRoutes registers the health handler's routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.Health)
	mux.HandleFunc("/ping", h.Ping)
}

// Health handles GET /health requests. It returns 503 when the catalog
// database does not answer a ping within two seconds.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{Status: "ok", Dialect: h.cfg.Database.Dialect}

	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			h.logger.Warn("Catalog database ping failed", zap.String("error", logging.SanitizeError(err)))
			if err := ErrorResponse(w, http.StatusServiceUnavailable, "catalog_unavailable", "catalog database is unreachable"); err != nil {
				h.logger.Error("Failed to encode health response", zap.Error(err))
			}
			return
		}
		stats := h.db.Stats()
		response.OpenConnections = stats.OpenConnections
		response.InUse = stats.InUse
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode health response", zap.Error(err))
	}
}

// Ping handles GET /ping requests.
// Returns detailed service information including version and environment.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	hostname, err := os.Hostname()
	if err != nil {
		http.Error(w, "failed to get hostname", http.StatusInternalServerError)
		return
	}

	response := PingResponse{
		Status:      "ok",
		Version:     h.cfg.Version,
		Service:     serviceName,
		GoVersion:   runtime.Version(),
		Hostname:    hostname,
		Environment: h.cfg.Env,
		Dialect:     h.cfg.Database.Dialect,
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode ping response", zap.Error(err))
	}
}
