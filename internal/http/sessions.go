package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/resonancehq/resonance/internal/bridge"
	"github.com/resonancehq/resonance/internal/transcript"
)

// SessionsHandler serves transcript inspection, session lifecycle and the
// synchronous chat endpoint CLI clients use.
type SessionsHandler struct {
	store  *transcript.Store
	bridge *bridge.Bridge
}

// NewSessionsHandler creates a handler for session management endpoints.
func NewSessionsHandler(store *transcript.Store, br *bridge.Bridge) *SessionsHandler {
	return &SessionsHandler{store: store, bridge: br}
}

// RegisterRoutes registers all session routes on the given mux.
func (h *SessionsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/history", h.handleHistory)
	mux.HandleFunc("GET /api/sessions", h.handleList)
	mux.HandleFunc("POST /api/sessions", h.handleCreate)
	mux.HandleFunc("PATCH /api/sessions/{id}", h.handleRename)
	mux.HandleFunc("DELETE /api/sessions/{id}", h.handleDelete)
	mux.HandleFunc("DELETE /api/sessions/{id}/messages", h.handleClear)
	mux.HandleFunc("POST /api/chat/sync", h.handleChatSync)
}

func (h *SessionsHandler) handleHistory(w http.ResponseWriter, r *http.Request) {
	session := r.URL.Query().Get("session_id")
	if session == "" {
		session = transcript.MainSession
	}
	msgs, err := h.store.Read(session)
	if err != nil {
		slog.Error("http.history", "session", session, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read history")
		return
	}
	if msgs == nil {
		msgs = []transcript.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (h *SessionsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	infos, err := h.store.List()
	if err != nil {
		slog.Error("http.sessions.list", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	if infos == nil {
		infos = []transcript.SessionInfo{}
	}
	writeJSON(w, http.StatusOK, infos)
}

func (h *SessionsHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	if err := h.store.Create(req.SessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "created", "id": req.SessionID})
}

func (h *SessionsHandler) handleRename(w http.ResponseWriter, r *http.Request) {
	session := r.PathValue("id")
	var req struct {
		NewName string `json:"new_name"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.NewName == "" {
		writeError(w, http.StatusBadRequest, "new_name is required")
		return
	}

	switch err := h.store.Rename(session, req.NewName); {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "renamed", "new_name": req.NewName})
	case errors.Is(err, transcript.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "Session not found")
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

func (h *SessionsHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	session := r.PathValue("id")
	switch err := h.store.Delete(session); {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	case errors.Is(err, transcript.ErrReservedSession):
		writeError(w, http.StatusForbidden, "Cannot delete main process session.")
	case errors.Is(err, transcript.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "Session not found")
	default:
		slog.Error("http.sessions.delete", "session", session, "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

func (h *SessionsHandler) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Clear(r.PathValue("id")); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// handleChatSync runs the whole turn on the request goroutine and replies
// once with the aggregated assistant text. Turn failures still answer 200
// with status "error" so scripting clients get one uniform shape.
func (h *SessionsHandler) handleChatSync(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message   string `json:"message"`
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	session := req.SessionID
	if session == "" {
		session = transcript.MainSession
	}

	content, err := h.bridge.RunSync(r.Context(), session, req.Message)
	if err != nil {
		slog.Error("http.chat_sync", "session", session, "error", err)
		writeJSON(w, http.StatusOK, map[string]string{"status": "error", "content": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":     "success",
		"content":    content,
		"session_id": session,
	})
}
