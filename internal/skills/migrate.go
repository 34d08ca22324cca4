package skills

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/resonancehq/resonance/internal/config"
	"github.com/resonancehq/resonance/internal/providers"
)

const migratedSkillTemplate = `---
name: %s
description: %q
entrypoint: run.sh
---

# %s SOP

## Overview
This skill executes a legacy automation script originally defined in config.yaml.

## Usage
Trigger this skill when the user asks to: %s

## Execution
The system will run the underlying command:
` + "`%s`" + `

## Validation
After execution, check the output logs to ensure the script ran without errors (Exit Code 0).
`

// MigrateLegacyScripts rewrites legacy script config entries into skill
// directories (SOP, tool schema, entrypoint), then moves the entries to the
// scripts_backup key and rescans the registry. Existing skill directories
// are left untouched.
func MigrateLegacyScripts(st *config.Store, reg *Registry) error {
	scripts := st.Snapshot().Config.Scripts
	if len(scripts) == 0 {
		return nil
	}
	slog.Info("migrating legacy scripts to skill structure", "count", len(scripts))

	for alias, script := range scripts {
		if strings.ContainsAny(alias, `/\`) || alias == "" || alias == "." || alias == ".." {
			slog.Warn("skipping legacy script with unusable alias", "alias", alias)
			continue
		}
		dir := filepath.Join(reg.Root(), alias)
		if pathExists(dir) {
			continue
		}
		if err := writeMigratedSkill(dir, alias, script); err != nil {
			slog.Error("legacy script migration failed", "alias", alias, "error", err)
		}
	}

	err := st.UpdateConfig(func(c *config.Config) error {
		c.ScriptsBackup = c.Scripts
		c.Scripts = nil
		return nil
	})
	if err != nil {
		return fmt.Errorf("clear migrated scripts: %w", err)
	}
	slog.Info("legacy scripts migrated and removed from main config")

	return reg.Scan()
}

func writeMigratedSkill(dir, alias string, script config.ScriptSpec) error {
	desc := script.Description
	if desc == "" {
		desc = "Migrated legacy script."
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	skillMD := fmt.Sprintf(migratedSkillTemplate, alias, desc, alias, desc, script.Command)
	if err := os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte(skillMD), 0o644); err != nil {
		return err
	}

	tools := []providers.ToolDefinition{{
		Type: "function",
		Function: providers.ToolFunctionSchema{
			Name:        "run_" + alias,
			Description: fmt.Sprintf("Execute the %s script. %s", alias, desc),
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"additional_args": map[string]interface{}{
						"type":        "string",
						"description": "Optional arguments to append to the command.",
					},
				},
				"required": []string{},
			},
		},
	}}
	toolsJSON, err := json.MarshalIndent(tools, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "tools.json"), toolsJSON, 0o644); err != nil {
		return err
	}

	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	if script.Cwd != "" {
		fmt.Fprintf(&b, "cd '%s' || exit 1\n", script.Cwd)
	}
	if script.Delay > 0 {
		fmt.Fprintf(&b, "sleep %g\n", script.Delay)
	}
	fmt.Fprintf(&b, "%s \"$@\"\n", script.Command)
	return os.WriteFile(filepath.Join(dir, "run.sh"), []byte(b.String()), 0o755)
}
