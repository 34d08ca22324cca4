package tools

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/resonancehq/resonance/internal/config"
)

// LegacyScriptTool runs pre-registered automation scripts from the config's
// scripts map. Startup migration normally converts these into skill
// packages, so the tool hides itself once the map is empty.
type LegacyScriptTool struct {
	cfg *config.Store
}

func NewLegacyScriptTool(cfg *config.Store) *LegacyScriptTool {
	return &LegacyScriptTool{cfg: cfg}
}

func (t *LegacyScriptTool) Name() string { return "invoke_legacy_script" }

func (t *LegacyScriptTool) Enabled() bool {
	return len(t.cfg.Snapshot().Config.Scripts) > 0
}

func (t *LegacyScriptTool) Description() string {
	scripts := t.cfg.Snapshot().Config.Scripts
	aliases := make([]string, 0, len(scripts))
	for alias := range scripts {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)

	var parts []string
	for _, alias := range aliases {
		parts = append(parts, fmt.Sprintf("'%s' (%s)", alias, scripts[alias].Description))
	}
	return fmt.Sprintf("Execute a pre-registered legacy automation script. Available: %s", strings.Join(parts, ", "))
}

func (t *LegacyScriptTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"alias": map[string]interface{}{"type": "string", "description": "The exact script alias name."},
			"args":  map[string]interface{}{"type": "string", "description": "Optional arguments."},
		},
		"required": []string{"alias"},
	}
}

func (t *LegacyScriptTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	alias, _ := args["alias"].(string)
	extra, _ := args["args"].(string)

	snap := t.cfg.Snapshot()
	script, ok := snap.Config.Scripts[alias]
	if !ok {
		return ErrorResult(fmt.Sprintf("Error: Legacy Script '%s' not found.", alias))
	}

	// Scripts without an explicit cwd run in the workspace so build
	// artifacts don't pile up in the data root.
	cwd := script.Cwd
	if cwd == "" {
		cwd = snap.WorkspaceDir()
		if err := os.MkdirAll(cwd, 0o755); err != nil {
			return ErrorResult(fmt.Sprintf("[System Error]: %v", err))
		}
	}

	command := script.Command
	if extra != "" {
		command = command + " " + extra
	}

	if script.Delay > 0 {
		if !sleepWithCancel(ctx, time.Duration(script.Delay*float64(time.Second))) {
			return NewResult("[System]: Skill delayed execution interrupted.")
		}
	}

	timeout := shellTimeout
	if script.Timeout > 0 {
		timeout = time.Duration(script.Timeout) * time.Second
	}
	return RunShell(ctx, command, cwd, timeout)
}

// sleepWithCancel waits d, checking for cancellation every 100 ms.
// Returns false when the wait was interrupted.
func sleepWithCancel(ctx context.Context, d time.Duration) bool {
	deadline := time.Now().Add(d)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if !time.Now().Before(deadline) {
				return true
			}
		}
	}
}
