package http

import (
	"encoding/json"
	"net/http"

	"github.com/resonancehq/resonance/internal/sentinel"
)

// SentinelsHandler serves sentinel inspection plus the hotkey injection
// endpoint desktop shells call to forward captured key presses.
type SentinelsHandler struct {
	engine  *sentinel.Engine
	hotkeys *sentinel.ChannelListener
}

// NewSentinelsHandler creates a handler for sentinel endpoints. hotkeys may
// be nil when a native capture backend replaces the channel listener.
func NewSentinelsHandler(engine *sentinel.Engine, hotkeys *sentinel.ChannelListener) *SentinelsHandler {
	return &SentinelsHandler{engine: engine, hotkeys: hotkeys}
}

// RegisterRoutes registers all sentinel routes on the given mux.
func (h *SentinelsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/sentinels", h.handleList)
	mux.HandleFunc("DELETE /api/sentinels/{kind}/{id}", h.handleDelete)
	mux.HandleFunc("POST /api/sentinels/hotkey/press", h.handlePress)
}

func (h *SentinelsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.List())
}

func (h *SentinelsHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if !h.engine.Remove(r.PathValue("kind"), r.PathValue("id")) {
		writeError(w, http.StatusNotFound, "Sentinel not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *SentinelsHandler) handlePress(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Combo string `json:"combo"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Combo == "" {
		writeError(w, http.StatusBadRequest, "combo is required")
		return
	}
	if h.hotkeys == nil {
		writeError(w, http.StatusServiceUnavailable, "hotkey injection not available")
		return
	}

	h.hotkeys.Press(req.Combo)
	writeJSON(w, http.StatusOK, map[string]string{"status": "pressed", "combo": req.Combo})
}
