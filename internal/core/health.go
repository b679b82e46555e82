package core

import (
	"net/http"
	"time"
)

// healthResponse is the JSON response body for the health check endpoint.
type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// HandleHealth reports process liveness. It never probes the Spot API or the
// telemetry backends: an unreachable upstream must not make orchestrators
// restart an otherwise functional middleware. Always returns 200 OK.
//
// This endpoint is public and is mounted at GET /health.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	JSON(w, r, http.StatusOK, healthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   s.Config.Build.Version,
	})
}
