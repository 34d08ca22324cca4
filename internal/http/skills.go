package http

import (
	"encoding/json"
	"net/http"

	"github.com/resonancehq/resonance/internal/config"
	"github.com/resonancehq/resonance/internal/skills"
)

// SkillsHandler serves skill listing, learning and removal.
type SkillsHandler struct {
	registry *skills.Registry
	config   *config.Store
}

// NewSkillsHandler creates a handler for skill management endpoints.
func NewSkillsHandler(reg *skills.Registry, cfg *config.Store) *SkillsHandler {
	return &SkillsHandler{registry: reg, config: cfg}
}

// RegisterRoutes registers all skill routes on the given mux.
func (h *SkillsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/skills/list", h.handleList)
	mux.HandleFunc("POST /api/skills/learn", h.handleLearn)
	mux.HandleFunc("DELETE /api/skills/{name}", h.handleDelete)
}

// handleList returns legacy scripts (config-defined commands, kept until
// migration backs them up) alongside imported skill directories.
func (h *SkillsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	snap := h.config.Snapshot()
	legacy := snap.Config.Scripts
	if legacy == nil {
		legacy = map[string]config.ScriptSpec{}
	}
	imported := make(map[string]*skills.Skill)
	for _, sk := range h.registry.List() {
		imported[sk.Name] = sk
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"legacy":   legacy,
		"imported": imported,
	})
}

// handleLearn clones or copies a skill into the registry. Cloning and
// dependency installs can take minutes; the request blocks until the
// registry reports either way, and the outcome text is returned verbatim.
func (h *SkillsHandler) handleLearn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URLOrPath string `json:"url_or_path"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.URLOrPath == "" {
		writeError(w, http.StatusBadRequest, "url_or_path is required")
		return
	}

	_, result := h.registry.Learn(r.Context(), req.URLOrPath)
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "result": result})
}

func (h *SkillsHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !h.registry.Delete(name) {
		writeError(w, http.StatusNotFound, "Skill not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "skill": name})
}
