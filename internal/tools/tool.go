package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/resonancehq/resonance/internal/providers"
	"github.com/resonancehq/resonance/internal/skills"
)

// Tool is one capability callable by the model. Execute must honor ctx
// cancellation at every blocking point and report failures as textual
// results, never panics.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) *Result
}

// conditional is implemented by tools that may hide themselves from the
// manifest when they have nothing to offer (the legacy script wrapper).
type conditional interface {
	Enabled() bool
}

// Registry holds the native tool set and dispatches execution. Tools
// declared by the active skill are not registered here; Execute routes
// them to the skill runtime.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	order  []string
	skills *skills.Registry
}

// NewRegistry creates a registry backed by the given skill runtime.
func NewRegistry(skillsReg *skills.Registry) *Registry {
	return &Registry{
		tools:  make(map[string]Tool),
		skills: skillsReg,
	}
}

// Register adds a tool. Manifest order follows registration order.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; !exists {
		r.order = append(r.order, t.Name())
	}
	r.tools[t.Name()] = t
}

// Get returns the registered tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns registered tool names in manifest order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// ToProviderDef converts a Tool to its wire-format definition.
func ToProviderDef(t Tool) providers.ToolDefinition {
	return providers.ToolDefinition{
		Type: "function",
		Function: providers.ToolFunctionSchema{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		},
	}
}

// Manifest assembles the tool definitions for one turn: the native set
// (conditional tools may hide themselves) plus the active skill's declared
// tools, deduplicated by name. Native names win.
func (r *Registry) Manifest(active *skills.Active) []providers.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool, len(r.order))
	defs := make([]providers.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		if c, ok := t.(conditional); ok && !c.Enabled() {
			continue
		}
		defs = append(defs, ToProviderDef(t))
		seen[name] = true
	}

	if active != nil {
		for _, td := range active.Tools {
			if seen[td.Function.Name] {
				continue
			}
			seen[td.Function.Name] = true
			defs = append(defs, td)
		}
	}
	return defs
}

// Execute dispatches one tool call. Unknown names come back as a
// validation error result so the model can correct itself.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]interface{}) *Result {
	if args == nil {
		args = map[string]interface{}{}
	}

	if tool, ok := r.Get(name); ok {
		slog.Debug("tool.execute", "tool", name)
		return tool.Execute(ctx, args)
	}

	// Active-skill tools live outside the registry; route them to the
	// skill runtime (MCP session first, then the entrypoint).
	if st := SkillStateFromCtx(ctx); st != nil {
		if act := st.Active(); act != nil && declaresTool(act, name) {
			return r.executeSkillTool(ctx, act, name, args)
		}
	}

	return ErrorResult(fmt.Sprintf("Error: Unknown tool '%s'", name))
}

func (r *Registry) executeSkillTool(ctx context.Context, act *skills.Active, name string, args map[string]interface{}) *Result {
	slog.Debug("tool.execute.skill", "skill", act.Name, "tool", name)
	if act.MCP != nil && act.MCP.Has(name) {
		out, err := act.MCP.Call(ctx, name, args)
		if err != nil {
			return ErrorResult(fmt.Sprintf("MCP tool '%s' failed: %v", name, err))
		}
		return NewResult(out)
	}
	if r.skills == nil {
		return ErrorResult(fmt.Sprintf("Error: no skill runtime to execute '%s'.", name))
	}
	return NewResult(r.skills.Execute(ctx, act.Name, name, args))
}

func declaresTool(act *skills.Active, name string) bool {
	for _, td := range act.Tools {
		if td.Function.Name == name {
			return true
		}
	}
	return false
}

// SkillState is the per-session active-skill slot. The orchestrator owns
// one per session and threads it through tool execution via context; the
// manage_skills tool mutates it. Never process-global: concurrent sessions
// must not contaminate each other's manifests.
type SkillState struct {
	mu  sync.Mutex
	cur *skills.Active
}

// Active returns the current activation, nil when none.
func (s *SkillState) Active() *skills.Active {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

// Swap installs a new activation (nil deactivates) and releases the
// previous one's resources.
func (s *SkillState) Swap(a *skills.Active) {
	s.mu.Lock()
	prev := s.cur
	s.cur = a
	s.mu.Unlock()
	prev.Close()
}

type toolContextKey string

const ctxSkillState toolContextKey = "tool_skill_state"

// WithSkillState injects the per-session skill slot into a tool execution
// context.
func WithSkillState(ctx context.Context, st *SkillState) context.Context {
	return context.WithValue(ctx, ctxSkillState, st)
}

// SkillStateFromCtx returns the session's skill slot, nil when absent.
func SkillStateFromCtx(ctx context.Context) *SkillState {
	v, _ := ctx.Value(ctxSkillState).(*SkillState)
	return v
}
