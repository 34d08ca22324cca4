package http

import (
	"net/http"

	"github.com/resonancehq/resonance/internal/monitor"
)

// processListLimit caps the rows returned by the processes endpoint.
const processListLimit = 15

// SystemHandler serves host resource metrics for the dashboard.
type SystemHandler struct{}

// NewSystemHandler creates a handler for system monitoring endpoints.
func NewSystemHandler() *SystemHandler { return &SystemHandler{} }

// RegisterRoutes registers all system routes on the given mux.
// /api/status is an alias older frontends poll for the metrics payload.
func (h *SystemHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/system/metrics", h.handleMetrics)
	mux.HandleFunc("GET /api/system/processes", h.handleProcesses)
	mux.HandleFunc("GET /api/system/disk", h.handleDisk)
	mux.HandleFunc("GET /api/status", h.handleMetrics)
}

func (h *SystemHandler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, monitor.CollectMetrics(r.Context()))
}

func (h *SystemHandler) handleProcesses(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, monitor.TopProcesses(r.Context(), processListLimit))
}

func (h *SystemHandler) handleDisk(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, monitor.DiskUsage(r.Context()))
}
