package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/resonancehq/resonance/internal/providers"
)

// Verdict statuses returned by the supervisor check.
const (
	VerdictComplete   = "COMPLETE"
	VerdictIncomplete = "INCOMPLETE"
)

// Verdict is the supervisor's JSON reply.
type Verdict struct {
	Status      string `json:"status"`
	Instruction string `json:"instruction"`
}

const supervisorPrompt = `You are a strict task supervisor. Decide whether the assistant has completed the user's request.

[User Request]:
%s

[Recent Conversation]:
%s

[Instructions]:
1. If the request is fully handled (answered, executed, or reasonably declined), set status to "COMPLETE".
2. If work is clearly missing or the assistant stopped short, set status to "INCOMPLETE" and give one concrete instruction for what to do next.
3. Respond with ONLY a JSON object: {"status": "COMPLETE" or "INCOMPLETE", "instruction": "..."}`

// supervise asks the model to self-verify the finished pass. Any failure
// along the way counts as COMPLETE: supervision may re-open a turn, never
// break one.
func (h *Host) supervise(ctx context.Context, t *turn) Verdict {
	complete := Verdict{Status: VerdictComplete}

	tail := h.transcriptTail(t.session, 5)
	if tail == "" {
		return complete
	}

	ctx, span := h.tracer.Start(ctx, "llm.supervise",
		trace.WithAttributes(attribute.String("session.id", t.session)))
	defer span.End()

	resp, err := t.provider.Chat(ctx, providers.ChatRequest{
		Messages: []providers.Message{{
			Role:    "user",
			Content: fmt.Sprintf(supervisorPrompt, t.userText, tail),
		}},
		Model: t.profile.Model,
		Options: map[string]interface{}{
			providers.OptTemperature:    0.1,
			providers.OptMaxTokens:      256,
			providers.OptResponseFormat: providers.JSONObjectFormat(),
		},
	})
	if err != nil {
		slog.Warn("agent.supervisor.call_failed", "session", t.session, "error", err)
		return complete
	}

	var v Verdict
	if err := json.Unmarshal([]byte(resp.Content), &v); err != nil {
		slog.Warn("agent.supervisor.bad_verdict", "session", t.session, "error", err)
		return complete
	}
	v.Status = strings.ToUpper(strings.TrimSpace(v.Status))
	if v.Status != VerdictIncomplete {
		return complete
	}
	if strings.TrimSpace(v.Instruction) == "" {
		v.Instruction = "The task looks unfinished. Continue working on the user's request."
	}
	span.SetAttributes(attribute.String("supervisor.status", v.Status))
	return v
}

// transcriptTail renders the last n messages as plain "role: content"
// lines, with tool-call stubs, for the evaluation prompt.
func (h *Host) transcriptTail(session string, n int) string {
	full, err := h.transcripts.Read(session)
	if err != nil || len(full) == 0 {
		return ""
	}
	if len(full) > n {
		full = full[len(full)-n:]
	}
	var b strings.Builder
	for _, m := range full {
		content := m.Content
		if len(m.ToolCalls) > 0 {
			content += fmt.Sprintf(" [Tool Call: %s]", m.ToolCalls[0].Name)
		}
		fmt.Fprintf(&b, "%s: %s\n", m.Role, content)
	}
	return b.String()
}
