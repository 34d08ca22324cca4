package tools

import (
	"context"
	"fmt"

	"github.com/resonancehq/resonance/internal/skills"
)

// ManageSkillsTool is the discovery tool: it lists the skill index and
// performs just-in-time activation. Activation mutates the session's
// SkillState, so the next manifest carries the skill's tools and the next
// prompt carries its SOP.
type ManageSkillsTool struct {
	registry *skills.Registry
}

func NewManageSkillsTool(reg *skills.Registry) *ManageSkillsTool {
	return &ManageSkillsTool{registry: reg}
}

func (t *ManageSkillsTool) Name() string { return "manage_skills" }

func (t *ManageSkillsTool) Description() string {
	return "Manage AI Skills. Use 'list_available' to see the index of skills. Use 'activate' to load a specific skill's SOP and tools."
}

func (t *ManageSkillsTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"action": map[string]interface{}{
				"type": "string",
				"enum": []string{"list_available", "activate", "deactivate_all"},
			},
			"skill_name": map[string]interface{}{
				"type":        "string",
				"description": "Required if action is 'activate'.",
			},
		},
		"required": []string{"action"},
	}
}

func (t *ManageSkillsTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	action, _ := args["action"].(string)
	st := SkillStateFromCtx(ctx)

	switch action {
	case "list_available":
		return NewResult(t.registry.Index())

	case "activate":
		name, _ := args["skill_name"].(string)
		if name == "" {
			return ErrorResult("Error: skill_name is required for activation.")
		}
		if st == nil {
			return ErrorResult("Error: no skill context available for this session.")
		}
		act, err := t.registry.Activate(ctx, name)
		if err != nil {
			return ErrorResult(fmt.Sprintf("Error: %v", err))
		}
		st.Swap(act)
		return NewResult(fmt.Sprintf("Skill '%s' activated. Its SOP and tools are now loaded; follow the SOP.", name))

	case "deactivate_all":
		if st != nil {
			st.Swap(nil)
		}
		return NewResult("All skills deactivated. Context cleaned.")
	}

	return ErrorResult("Unknown action.")
}

// LearnSkillTool acquires a new skill package from a git URL or local path.
type LearnSkillTool struct {
	registry *skills.Registry
}

func NewLearnSkillTool(reg *skills.Registry) *LearnSkillTool {
	return &LearnSkillTool{registry: reg}
}

func (t *LearnSkillTool) Name() string { return "learn_new_skill" }

func (t *LearnSkillTool) Description() string {
	return "Dynamically learn a new skill from a GitHub URL or local path. Use this when the user asks you to 'learn' something or provides a link to an MCP tool/python script."
}

func (t *LearnSkillTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"url_or_path": map[string]interface{}{
				"type":        "string",
				"description": "The GitHub URL (starts with http) or absolute local file path to the skill folder.",
			},
		},
		"required": []string{"url_or_path"},
	}
}

func (t *LearnSkillTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	source, _ := args["url_or_path"].(string)
	if source == "" {
		return ErrorResult("Error: url_or_path is required.")
	}
	ok, msg := t.registry.Learn(ctx, source)
	if !ok {
		return ErrorResult(msg)
	}
	return NewResult(msg)
}
