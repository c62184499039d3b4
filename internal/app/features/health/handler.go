// internal/app/features/health/handler.go
package health

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/dalemusser/bandhub/internal/app/store/docstore"
	"github.com/dalemusser/bandhub/internal/app/system/timeouts"
	"go.uber.org/zap"
)

// Handler holds dependencies needed for health checks.
type Handler struct {
	Store   docstore.Pinger
	Version string
	Log     *zap.Logger
}

// NewHandler constructs a health Handler with the store and logger.
func NewHandler(store docstore.Pinger, version string, logger *zap.Logger) *Handler {
	return &Handler{
		Store:   store,
		Version: version,
		Log:     logger,
	}
}

// healthResponse is the JSON structure for the health check response.
type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Version  string `json:"version,omitempty"`
	Message  string `json:"message,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Serve handles GET /health.
//
// On success: 200 and
//
//	{ "status":"ok", "database":"connected", "version":"…" }
//
// On DB failure: 503 and
//
//	{ "status":"error", "database":"disconnected", "message":"Database unavailable", "error":"…"}
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Ping())
	defer cancel()

	w.Header().Set("Content-Type", "application/json")

	resp := healthResponse{
		Status:   "ok",
		Database: "connected",
		Version:  h.Version,
	}

	if h.Store == nil {
		resp.Database = "none"
	} else if err := h.Store.Ping(ctx); err != nil {
		h.Log.Error("health-check: store ping failed", zap.Error(err))
		w.WriteHeader(http.StatusServiceUnavailable)
		resp.Status = "error"
		resp.Database = "disconnected"
		resp.Message = "Database unavailable"
		resp.Error = err.Error()
		_ = json.NewEncoder(w).Encode(resp)
		return
	}

	_ = json.NewEncoder(w).Encode(resp)
}
