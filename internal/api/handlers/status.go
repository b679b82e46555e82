package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"stormsurge/internal/core"
	"stormsurge/internal/types"
)

// CapacityFetcher reads live cluster capacity. Implemented by *spot.Client.
type CapacityFetcher interface {
	GetCapacity(ctx context.Context) (types.CapacitySnapshot, error)
}

// StatusHandler serves the read-only cluster status endpoint used by the
// dashboard. It queries the Spot API live on every request; an upstream
// failure is reported as status "unavailable" with a 200, not an error, so
// the dashboard keeps rendering.
type StatusHandler struct {
	client    CapacityFetcher
	clusterID string
	logger    *slog.Logger
}

// NewStatusHandler creates a StatusHandler with the provided dependencies.
func NewStatusHandler(client CapacityFetcher, clusterID string, logger *slog.Logger) *StatusHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusHandler{
		client:    client,
		clusterID: clusterID,
		logger:    logger,
	}
}

// RegisterRoutes mounts the cluster status endpoint.
func (h *StatusHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/cluster/status", h.Handle)
}

// clusterStatusResponse is the JSON response body for the status endpoint.
type clusterStatusResponse struct {
	ClusterID string            `json:"cluster_id"`
	Status    string            `json:"status"`
	Capacity  *capacityResponse `json:"capacity,omitempty"`
	Timestamp string            `json:"timestamp"`
}

type capacityResponse struct {
	Target  int `json:"target"`
	Minimum int `json:"minimum"`
	Maximum int `json:"maximum"`
}

// Handle reports the cluster's current capacity as seen by the Spot API.
func (h *StatusHandler) Handle(w http.ResponseWriter, r *http.Request) {
	resp := clusterStatusResponse{
		ClusterID: h.clusterID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	snap, err := h.client.GetCapacity(r.Context())
	if err != nil {
		h.logger.WarnContext(r.Context(), "cluster status fetch failed",
			"cluster_id", h.clusterID,
			"error", err,
		)
		resp.Status = "unavailable"
		core.JSON(w, r, http.StatusOK, resp)
		return
	}

	resp.Status = "active"
	resp.Capacity = &capacityResponse{
		Target:  snap.Current,
		Minimum: snap.Min,
		Maximum: snap.Max,
	}
	core.JSON(w, r, http.StatusOK, resp)
}
