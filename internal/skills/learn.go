package skills

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// installTimeout caps optional dependency installation during Learn.
const installTimeout = 5 * time.Minute

// Learn fetches a skill from a git URL or a local directory into the skills
// root, validates its structure, installs optional dependencies, and
// registers it. The returned message is user-facing text.
func (r *Registry) Learn(ctx context.Context, source string) (bool, string) {
	name := strings.ReplaceAll(filepath.Base(strings.TrimRight(source, "/\\")), ".git", "")
	target := filepath.Join(r.root, name)

	if pathExists(target) {
		return false, fmt.Sprintf("Error: Skill '%s' already exists.", name)
	}

	switch {
	case strings.HasPrefix(source, "http"):
		slog.Info("cloning skill", "url", source)
		cmd := exec.CommandContext(ctx, "git", "clone", source, target)
		if out, err := cmd.CombinedOutput(); err != nil {
			msg := strings.TrimSpace(string(out))
			if msg == "" {
				msg = err.Error()
			}
			slog.Error("git clone failed", "url", source, "error", err)
			return false, fmt.Sprintf("Error during git/pip operation: %s", msg)
		}
	case pathExists(source):
		slog.Info("copying skill", "path", source)
		if err := os.CopyFS(target, os.DirFS(source)); err != nil {
			slog.Error("skill copy failed", "path", source, "error", err)
			os.RemoveAll(target)
			return false, fmt.Sprintf("Error copying files: %s", err)
		}
	default:
		return false, "Error: Invalid URL or Path. Please check if the path exists or the URL is correct."
	}

	if !pathExists(filepath.Join(target, "SKILL.md")) {
		os.RemoveAll(target)
		return false, "Error: Invalid Skill format. 'SKILL.md' is missing in the skill folder."
	}

	installDependencies(ctx, target)

	if err := r.Scan(); err != nil {
		slog.Warn("rescan after learn failed", "error", err)
	}
	if _, ok := r.Get(name); ok {
		slog.Info("skill learned", "skill", name)
		return true, fmt.Sprintf("Success: Skill '%s' learned and registered.", name)
	}
	slog.Warn("skill folder created but not registered", "skill", name)
	return false, "Warning: Skill folder created but failed to load. Please check the skill format."
}

// installDependencies runs pip against an optional requirements.txt.
// Failures are logged and the learn continues.
func installDependencies(ctx context.Context, dir string) {
	req := filepath.Join(dir, "requirements.txt")
	if !pathExists(req) {
		return
	}
	slog.Info("installing skill dependencies", "manifest", req)

	installCtx, cancel := context.WithTimeout(ctx, installTimeout)
	defer cancel()

	cmd := exec.CommandContext(installCtx, "python3", "-m", "pip", "install", "-r", req)
	if out, err := cmd.CombinedOutput(); err != nil {
		slog.Warn("dependency installation failed, continuing",
			"error", err, "output", strings.TrimSpace(string(out)))
	}
}
