package skills

import (
	"context"
	"log/slog"

	"github.com/resonancehq/resonance/internal/providers"
)

// Active is the loaded context of an activated skill: its SOP, its tool
// definitions, and an MCP session when the skill ships an mcp.json.
type Active struct {
	Name  string
	SOP   string
	Tools []providers.ToolDefinition
	MCP   *MCPSession
}

// Activate loads the full skill context just in time. A failed MCP
// connection does not fail activation; the skill still works with its SOP
// and static tools.
func (r *Registry) Activate(ctx context.Context, name string) (*Active, error) {
	sop, tools, err := r.LoadContext(name)
	if err != nil {
		return nil, err
	}
	act := &Active{Name: name, SOP: sop, Tools: tools}

	sk, ok := r.Get(name)
	if !ok {
		return act, nil
	}
	cfg, err := loadMCPConfig(sk.Path)
	if err != nil {
		slog.Warn("mcp.json unreadable", "skill", name, "error", err)
		return act, nil
	}
	if cfg == nil {
		return act, nil
	}

	session, err := ConnectMCP(ctx, name, cfg)
	if err != nil {
		slog.Error("mcp connect failed", "skill", name, "error", err)
		return act, nil
	}
	act.MCP = session
	act.Tools = append(act.Tools, session.Tools()...)
	return act, nil
}

// Close releases the activation's resources.
func (a *Active) Close() {
	if a == nil || a.MCP == nil {
		return
	}
	a.MCP.Close()
}
