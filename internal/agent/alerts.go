package agent

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/resonancehq/resonance/internal/transcript"
)

// IngestSentinelAlert records a sentinel trigger in the reserved main
// session as a system message the context filter keeps visible, so the
// model sees the alert on its next turn there. The bridge separately
// drives the autonomous reaction turn.
func (h *Host) IngestSentinelAlert(message string) {
	stamp := time.Now().Format("2006-01-02 15:04:05")
	_, err := h.transcripts.Append(transcript.MainSession, transcript.Message{
		Role:    transcript.RoleSystem,
		Content: fmt.Sprintf("[Sentinel Alert %s]: %s", stamp, message),
	})
	if err != nil {
		slog.Warn("agent.sentinel.ingest_failed", "error", err)
		return
	}
	slog.Info("agent.sentinel.ingested", "session", transcript.MainSession)
}
