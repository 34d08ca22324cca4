// Package http holds the REST handler groups the gateway mounts. Each
// handler owns one resource (sessions, memory, config, skills, sentinels,
// system) and registers its routes on the shared mux.
package http

import (
	"encoding/json"
	"net/http"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError emits the {"detail": ...} envelope every error response uses.
func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
