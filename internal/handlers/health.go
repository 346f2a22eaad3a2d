package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/jwebster45206/fateweaver/pkg/storage"
)

const serviceName = "fateweaver"

type HealthResponse struct {
	Status     string         `json:"status"`
	Timestamp  time.Time      `json:"timestamp"`
	Service    string         `json:"service"`
	Components map[string]any `json:"components"`
}

type HealthHandler struct {
	storage storage.Storage
	scenes  int
	logger  *slog.Logger
}

// NewHealthHandler reports storage reachability and how many scenes were loaded.
func NewHealthHandler(store storage.Storage, scenes int, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		storage: store,
		scenes:  scenes,
		logger:  logger,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	h.logger.Debug("Health check requested",
		"method", r.Method,
		"path", r.URL.Path,
		"remote_addr", r.RemoteAddr)

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	components := make(map[string]any)
	overallStatus := "healthy"

	if err := h.storage.Ping(ctx); err != nil {
		h.logger.Warn("Storage health check failed", "error", err)
		components["storage"] = "unhealthy"
		overallStatus = "degraded"
	} else {
		components["storage"] = "healthy"
	}

	if h.scenes > 0 {
		components["content"] = map[string]any{"status": "healthy", "scenes": h.scenes}
	} else {
		components["content"] = map[string]any{"status": "unhealthy", "scenes": 0}
		overallStatus = "degraded"
	}

	statusCode := http.StatusOK
	if overallStatus != "healthy" {
		statusCode = http.StatusServiceUnavailable
	}

	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(HealthResponse{
		Status:     overallStatus,
		Timestamp:  time.Now(),
		Service:    serviceName,
		Components: components,
	}); err != nil {
		h.logger.Error("Error encoding health response", "error", err)
	}
}
