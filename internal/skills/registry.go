// Package skills manages the on-disk skill library: discovery of SKILL.md
// directories, JIT activation context, out-of-process execution, learning
// from git or local sources, and migration of legacy script config.
package skills

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/titanous/json5"

	"github.com/resonancehq/resonance/internal/providers"
)

// Skill is the cached header of one skill directory. Only metadata lives in
// memory; the SOP body and tool schemas are read on activation.
type Skill struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Path        string                 `json:"path"`
	Meta        map[string]interface{} `json:"-"`
}

// Registry indexes every subdirectory of the skills root that carries a
// readable SKILL.md. Safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	root   string
	skills map[string]*Skill
}

func NewRegistry(root string) (*Registry, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create skills root: %w", err)
	}
	r := &Registry{root: root, skills: make(map[string]*Skill)}
	if err := r.Scan(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) Root() string { return r.root }

// Scan rebuilds the registry from disk. Directories without SKILL.md are
// ignored; a malformed header skips that skill and logs.
func (r *Registry) Scan() error {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		return fmt.Errorf("read skills root: %w", err)
	}

	found := make(map[string]*Skill)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(r.root, entry.Name())
		raw, err := os.ReadFile(filepath.Join(dir, "SKILL.md"))
		if err != nil {
			continue
		}
		meta, _, err := splitFrontmatter(string(raw))
		if err != nil {
			slog.Error("skill header parse failed", "skill", entry.Name(), "error", err)
			continue
		}
		desc := "No description."
		if d, ok := meta["description"].(string); ok && d != "" {
			desc = d
		}
		found[entry.Name()] = &Skill{
			Name:        entry.Name(),
			Description: desc,
			Path:        dir,
			Meta:        meta,
		}
	}

	r.mu.Lock()
	r.skills = found
	r.mu.Unlock()
	return nil
}

func (r *Registry) Get(name string) (*Skill, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sk, ok := r.skills[name]
	return sk, ok
}

// List returns all skills sorted by name.
func (r *Registry) List() []*Skill {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Skill, 0, len(r.skills))
	for _, sk := range r.skills {
		out = append(out, sk)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Index renders the lightweight Discovery listing shown to the model when no
// skill is active.
func (r *Registry) Index() string {
	skills := r.List()
	if len(skills) == 0 {
		return "No specialized skills found."
	}
	lines := make([]string, len(skills))
	for i, sk := range skills {
		lines[i] = fmt.Sprintf("- %s: %s", sk.Name, sk.Description)
	}
	return strings.Join(lines, "\n")
}

// LoadContext reads the full activation context for a skill: the SOP body
// with the header stripped, and the tool schemas from tools.json when
// present. tools.json is parsed as JSON5 so hand-authored files may carry
// comments and trailing commas.
func (r *Registry) LoadContext(name string) (string, []providers.ToolDefinition, error) {
	sk, ok := r.Get(name)
	if !ok {
		return "", nil, fmt.Errorf("skill %q not found", name)
	}

	raw, err := os.ReadFile(filepath.Join(sk.Path, "SKILL.md"))
	if err != nil {
		return "", nil, fmt.Errorf("read SKILL.md: %w", err)
	}
	_, sop, err := splitFrontmatter(string(raw))
	if err != nil {
		return "", nil, fmt.Errorf("parse SKILL.md: %w", err)
	}

	var tools []providers.ToolDefinition
	toolsRaw, err := os.ReadFile(filepath.Join(sk.Path, "tools.json"))
	switch {
	case err == nil:
		if err := json5.Unmarshal(toolsRaw, &tools); err != nil {
			slog.Error("tools.json parse failed", "skill", name, "error", err)
			tools = nil
		}
	case !os.IsNotExist(err):
		slog.Warn("tools.json read failed", "skill", name, "error", err)
	}

	return strings.TrimSpace(sop), tools, nil
}

// Delete removes a skill directory and rescans. Reports whether the skill
// existed and was removed.
func (r *Registry) Delete(name string) bool {
	sk, ok := r.Get(name)
	if !ok {
		return false
	}
	if err := os.RemoveAll(sk.Path); err != nil {
		slog.Error("skill delete failed", "skill", name, "error", err)
		return false
	}
	if err := r.Scan(); err != nil {
		slog.Warn("rescan after delete failed", "error", err)
	}
	return true
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
