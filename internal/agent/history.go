package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/resonancehq/resonance/internal/providers"
)

const summaryPrompt = `You are a memory compressor.

Current Summary:
%s

New Conversation Log to Append:
%s

Task: Update the summary to include the key information from the new log. Keep it concise.
Return ONLY the updated summary text.`

const extractionPrompt = `You are a Memory Extractor. Analyze the following interaction Turn (User input, AI thoughts, and Tool outputs).
Your goal is to extract NEW, PERMANENT facts about the user, their projects, or technical solutions found.

[Interaction Turn Log]:
%s

[Instructions]:
1. Focus on: Project paths, User preferences, recurring technical issues/solutions, specific facts.
2. Ignore: Transient states (e.g., current CPU usage), casual greetings, or "OK" messages.
3. If no permanent fact is found, output "NO_INFO".
4. If facts are found, output them as concise, independent statements.
5. Example Output: "The user's project 'Resonance' is located at ~/Develop/Resonance."

[Output]:`

// extractionTimeout caps the background fact-extraction task, which
// outlives its turn.
const extractionTimeout = 90 * time.Second

// maybeSummarize compacts scrolled-out history into the rolling summary.
// Runs every tenth message, synchronously, so the next turn already sees
// the updated summary. All failures log and leave the old summary alone.
func (h *Host) maybeSummarize(ctx context.Context, t *turn) {
	if !t.snap.Config.System.Memory.SummaryEnabled() {
		return
	}
	full, err := h.transcripts.Read(t.session)
	if err != nil || len(full) == 0 || len(full)%10 != 0 {
		return
	}
	tail := h.transcripts.MessagesForSummary(t.session, contextWindow(t.snap))
	if tail == "" {
		return
	}
	current := h.transcripts.LoadSummary(t.session)

	// Survives turn cancellation: an interrupted turn still compacts.
	ctx = context.WithoutCancel(ctx)
	ctx, span := h.tracer.Start(ctx, "llm.summarize",
		trace.WithAttributes(attribute.String("session.id", t.session)))
	defer span.End()

	resp, err := t.provider.Chat(ctx, providers.ChatRequest{
		Messages: []providers.Message{{
			Role:    "user",
			Content: fmt.Sprintf(summaryPrompt, current, tail),
		}},
		Model:   t.profile.Model,
		Options: map[string]interface{}{providers.OptTemperature: 0.3},
	})
	if err != nil {
		slog.Warn("agent.summary.call_failed", "session", t.session, "error", err)
		return
	}
	if err := h.transcripts.SaveSummary(t.session, strings.TrimSpace(resp.Content)); err != nil {
		slog.Warn("agent.summary.save_failed", "session", t.session, "error", err)
		return
	}
	slog.Info("agent.summary.updated", "session", t.session, "messages", len(full))
}

// spawnExtraction distills permanent facts from the turn log into the
// retrieval store. Fire and forget: no retries, errors logged only, and
// the next turn never waits on it.
func (h *Host) spawnExtraction(session, turnLog string) {
	if h.memory == nil {
		return
	}
	h.extractions.Add(1)
	go func() {
		defer h.extractions.Done()
		ctx, cancel := context.WithTimeout(context.Background(), extractionTimeout)
		defer cancel()
		h.extractFacts(ctx, session, turnLog)
	}()
}

func (h *Host) extractFacts(ctx context.Context, session, turnLog string) {
	provider, profile := h.resolveProvider(h.cfg.Snapshot())

	ctx, span := h.tracer.Start(ctx, "llm.extract",
		trace.WithAttributes(attribute.String("session.id", session)))
	defer span.End()

	resp, err := provider.Chat(ctx, providers.ChatRequest{
		Messages: []providers.Message{{
			Role:    "user",
			Content: fmt.Sprintf(extractionPrompt, turnLog),
		}},
		Model: profile.Model,
		Options: map[string]interface{}{
			providers.OptTemperature: 0.1,
			providers.OptMaxTokens:   256,
		},
	})
	if err != nil {
		slog.Warn("agent.extract.call_failed", "session", session, "error", err)
		return
	}

	extracted := strings.TrimSpace(resp.Content)
	if extracted == "" || strings.Contains(extracted, "NO_INFO") {
		return
	}
	_, err = h.memory.Add(ctx, extracted, map[string]string{
		"type":                "conversation_insight",
		"session":             session,
		"original_user_input": fmt.Sprintf("%.50s", turnLog),
	})
	if err != nil {
		slog.Warn("agent.extract.store_failed", "session", session, "error", err)
		return
	}
	slog.Debug("agent.extract.archived", "session", session, "chars", len(extracted))
}
