package skills

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// executeTimeout caps a single skill tool run.
const executeTimeout = 4 * time.Minute

// Execute runs a skill's entrypoint out of process in the skill directory
// and returns the combined output as text. Errors are reported in the text
// so the result can be relayed to the model unchanged. The run is capped at
// four minutes and the process is killed when ctx is cancelled.
func (r *Registry) Execute(ctx context.Context, skillName, toolName string, args map[string]interface{}) string {
	sk, ok := r.Get(skillName)
	if !ok {
		return fmt.Sprintf("Error: Skill '%s' not found.", skillName)
	}

	entry := entrypointFor(sk)
	if entry == "" {
		return fmt.Sprintf("Error: No executable entrypoint found for skill %s.", skillName)
	}
	slog.Info("executing skill tool", "skill", skillName, "tool", toolName, "entrypoint", entry)

	runCtx, cancel := context.WithTimeout(ctx, executeTimeout)
	defer cancel()

	argv := append(interpreterFor(entry), entry)
	argv = append(argv, flattenArgs(args)...)

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = sk.Path
	cmd.Env = append(os.Environ(), "PYTHONIOENCODING=utf-8")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := stdout.String()
	if stderr.Len() > 0 {
		out += fmt.Sprintf("\n[STDERR]: %s", stderr.String())
	}
	if err != nil {
		if ctxErr := runCtx.Err(); ctxErr != nil {
			return fmt.Sprintf("Execution failed: %v", ctxErr)
		}
		// A nonzero exit is normal tool behavior; its output still goes
		// back to the model. Only spawn failures are reported as errors.
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return fmt.Sprintf("Execution failed: %v", err)
		}
	}
	return out
}

// entrypointFor resolves the executable for a skill: the header's
// `entrypoint` key if present, otherwise the first run.* file, otherwise a
// wrapper.py left by older skill layouts. Returns "" when nothing runnable
// exists.
func entrypointFor(sk *Skill) string {
	if name, ok := sk.Meta["entrypoint"].(string); ok && name != "" {
		p := filepath.Join(sk.Path, name)
		if pathExists(p) {
			return p
		}
	}
	matches, _ := filepath.Glob(filepath.Join(sk.Path, "run.*"))
	sort.Strings(matches)
	for _, m := range matches {
		return m
	}
	if p := filepath.Join(sk.Path, "wrapper.py"); pathExists(p) {
		return p
	}
	return ""
}

func interpreterFor(entry string) []string {
	switch strings.ToLower(filepath.Ext(entry)) {
	case ".py":
		return []string{"python3"}
	case ".js":
		return []string{"node"}
	case ".sh":
		return []string{"sh"}
	default:
		return nil
	}
}

// flattenArgs renders tool arguments as positional strings in key order,
// skipping empty values.
func flattenArgs(args map[string]interface{}) []string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		switch v := args[k].(type) {
		case nil:
			continue
		case string:
			if v == "" {
				continue
			}
			out = append(out, v)
		case bool:
			if !v {
				continue
			}
			out = append(out, "true")
		case float64:
			if v == 0 {
				continue
			}
			out = append(out, strconv.FormatFloat(v, 'f', -1, 64))
		default:
			out = append(out, fmt.Sprintf("%v", v))
		}
	}
	return out
}
