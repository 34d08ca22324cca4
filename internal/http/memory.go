package http

import (
	"net/http"

	"github.com/resonancehq/resonance/internal/memory"
)

// MemoryHandler serves long-term memory inspection endpoints.
type MemoryHandler struct {
	store *memory.Store
}

// NewMemoryHandler creates a handler for memory management endpoints.
func NewMemoryHandler(store *memory.Store) *MemoryHandler {
	return &MemoryHandler{store: store}
}

// RegisterRoutes registers all memory routes on the given mux.
func (h *MemoryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/memory", h.handleList)
	mux.HandleFunc("DELETE /api/memory/{id}", h.handleDelete)
}

func (h *MemoryHandler) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.ExportAll())
}

func (h *MemoryHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !h.store.Delete(r.Context(), id) {
		writeError(w, http.StatusInternalServerError, "Failed to delete memory")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
}
