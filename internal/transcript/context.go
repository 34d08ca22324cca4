package transcript

import (
	"fmt"
	"strings"

	"github.com/resonancehq/resonance/internal/providers"
)

// RecoveryContent fills synthesized tool results for calls whose real
// response never made it into the log (crash, cancellation, window split).
const RecoveryContent = "Tool execution was interrupted; recovered at next turn."

// BuildContext returns the LLM-consumable window for a session: filtered,
// sliced, chain-repaired, and stripped of non-wire fields.
func (s *Store) BuildContext(session string, window int) []providers.Message {
	full, err := s.Read(session)
	if err != nil || len(full) == 0 {
		return nil
	}
	return BuildWindow(full, window)
}

// BuildWindow is the pure half of BuildContext, exposed for reuse on an
// already-loaded transcript.
func BuildWindow(full []Message, window int) []providers.Message {
	conv := filterConversational(full)
	if window > 0 && len(conv) > window {
		conv = conv[len(conv)-window:]
	}
	repaired := Sanitize(conv)

	wire := make([]providers.Message, 0, len(repaired))
	for _, m := range repaired {
		wire = append(wire, providers.Message{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCalls:  m.ToolCalls,
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
		})
	}
	return wire
}

// filterConversational drops internal system-role log entries unless their
// content marks a Supervisor or Sentinel event the model must see.
func filterConversational(msgs []Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == RoleSystem &&
			!strings.Contains(m.Content, "Supervisor") &&
			!strings.Contains(m.Content, "Sentinel") {
			continue
		}
		out = append(out, m)
	}
	return out
}

// Sanitize repairs tool-call chains in a message window so every assistant
// tool_call is answered by exactly one tool message before any other role.
// Pure and deterministic; running it twice yields the same slice.
//
//  1. An assistant with tool_calls opens a pending set of call ids.
//  2. A tool message answering a pending id closes it and is kept.
//  3. A tool message answering nothing is an orphan and is dropped.
//  4. Any other role arriving while calls are pending gets preceded by one
//     synthesized tool result per unanswered id.
//  5. Residual pending ids at the end of the window are synthesized too.
func Sanitize(msgs []Message) []Message {
	if len(msgs) == 0 {
		return nil
	}

	sanitized := make([]Message, 0, len(msgs))
	var pending []string

	removePending := func(id string) bool {
		for i, p := range pending {
			if p == id {
				pending = append(pending[:i], pending[i+1:]...)
				return true
			}
		}
		return false
	}
	flushPending := func() {
		for _, id := range pending {
			sanitized = append(sanitized, Message{
				Role:       RoleTool,
				ToolCallID: id,
				Content:    RecoveryContent,
			})
		}
		pending = nil
	}

	for _, msg := range msgs {
		switch {
		case msg.Role == RoleTool:
			if removePending(msg.ToolCallID) {
				sanitized = append(sanitized, msg)
			}
			// Orphan tool results are dropped: the API rejects a tool
			// message with no preceding call.

		case len(pending) > 0:
			flushPending()
			sanitized = append(sanitized, msg)
			if msg.Role == RoleAssistant && len(msg.ToolCalls) > 0 {
				pending = callIDs(msg.ToolCalls)
			}

		case msg.Role == RoleAssistant && len(msg.ToolCalls) > 0:
			pending = callIDs(msg.ToolCalls)
			sanitized = append(sanitized, msg)

		default:
			sanitized = append(sanitized, msg)
		}
	}

	flushPending()
	return sanitized
}

func callIDs(calls []providers.ToolCall) []string {
	ids := make([]string, len(calls))
	for i, c := range calls {
		ids[i] = c.ID
	}
	return ids
}

// MessagesForSummary returns the text of every message older than the
// trailing window, one "role: content" line each, with tool-call stubs
// rendered as [Tool Call: name]. Empty when nothing has scrolled out yet.
func (s *Store) MessagesForSummary(session string, window int) string {
	full, err := s.Read(session)
	if err != nil || len(full) <= window {
		return ""
	}

	older := full[:len(full)-window]
	var b strings.Builder
	for _, m := range older {
		content := m.Content
		if len(m.ToolCalls) > 0 {
			content += fmt.Sprintf(" [Tool Call: %s]", m.ToolCalls[0].Name)
		}
		fmt.Fprintf(&b, "%s: %s\n", m.Role, content)
	}
	return b.String()
}
