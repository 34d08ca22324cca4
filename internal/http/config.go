package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/resonancehq/resonance/internal/config"
	"github.com/resonancehq/resonance/internal/memory"
)

// ConfigHandler serves model profile CRUD and retrieval strategy
// configuration. Profile secrets are masked on the way out; a masked key
// round-tripping back through save keeps the stored value.
type ConfigHandler struct {
	store *config.Store
}

// NewConfigHandler creates a handler for configuration endpoints.
func NewConfigHandler(store *config.Store) *ConfigHandler {
	return &ConfigHandler{store: store}
}

// RegisterRoutes registers all config routes on the given mux.
func (h *ConfigHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/config", h.handleGet)
	mux.HandleFunc("POST /api/config/active", h.handleSetActive)
	mux.HandleFunc("POST /api/config/profiles/save", h.handleSaveProfile)
	mux.HandleFunc("DELETE /api/config/profiles/{id}", h.handleDeleteProfile)
	mux.HandleFunc("GET /api/config/rag", h.handleGetRAG)
	mux.HandleFunc("POST /api/config/rag", h.handleSetRAG)
}

func (h *ConfigHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	snap := h.store.Snapshot()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"active_profile": snap.Config.ActiveProfile,
		"profiles":       h.store.MaskedProfiles(),
	})
}

func (h *ConfigHandler) handleSetActive(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProfileID string `json:"profile_id"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := h.store.SetActiveProfile(req.ProfileID); err != nil {
		writeError(w, http.StatusNotFound, "Profile not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated", "active_profile": req.ProfileID})
}

func (h *ConfigHandler) handleSaveProfile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProfileID   string  `json:"profile_id"`
		APIKey      string  `json:"api_key"`
		BaseURL     string  `json:"base_url"`
		Model       string  `json:"model"`
		Temperature float64 `json:"temperature"`
		MaxTokens   int     `json:"max_tokens"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.ProfileID == "" || req.Model == "" {
		writeError(w, http.StatusBadRequest, "profile_id and model are required")
		return
	}
	if req.Temperature == 0 {
		req.Temperature = 0.7
	}

	p := h.store.UnmaskProfile(req.ProfileID, config.Profile{
		APIKey:      req.APIKey,
		BaseURL:     req.BaseURL,
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	err := h.store.UpdateProfiles(func(profiles map[string]config.Profile) error {
		profiles[req.ProfileID] = p
		return nil
	})
	if err != nil {
		slog.Error("http.profiles.save", "profile", req.ProfileID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to persist profile")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "profile_id": req.ProfileID})
}

func (h *ConfigHandler) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	snap := h.store.Snapshot()
	if id == snap.Config.ActiveProfile {
		writeError(w, http.StatusBadRequest, "Cannot delete active profile. Switch first.")
		return
	}
	if _, ok := snap.Profiles[id]; !ok {
		writeError(w, http.StatusNotFound, "Profile not found")
		return
	}

	err := h.store.UpdateProfiles(func(profiles map[string]config.Profile) error {
		delete(profiles, id)
		return nil
	})
	if err != nil {
		slog.Error("http.profiles.delete", "profile", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to persist profiles")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *ConfigHandler) handleGetRAG(w http.ResponseWriter, r *http.Request) {
	snap := h.store.Snapshot()
	writeJSON(w, http.StatusOK, map[string]string{"strategy": snap.Config.System.Memory.RAGStrategy})
}

func (h *ConfigHandler) handleSetRAG(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Strategy string `json:"strategy"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	switch req.Strategy {
	case memory.StrategySemantic, memory.StrategyHybridTime, memory.StrategyHybridLexical:
	default:
		writeError(w, http.StatusBadRequest, "Invalid strategy. Use 'semantic', 'hybrid_time' or 'hybrid_lexical'.")
		return
	}

	err := h.store.UpdateConfig(func(cfg *config.Config) error {
		cfg.System.Memory.RAGStrategy = req.Strategy
		return nil
	})
	if err != nil {
		slog.Error("http.rag.update", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to persist strategy")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated", "strategy": req.Strategy})
}
