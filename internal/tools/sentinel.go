package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/resonancehq/resonance/internal/sentinel"
)

// Sentinel management tools. Each wraps one engine operation; trigger
// delivery happens out of band through the engine callback.

type AddTimeSentinelTool struct {
	engine *sentinel.Engine
}

func NewAddTimeSentinelTool(engine *sentinel.Engine) *AddTimeSentinelTool {
	return &AddTimeSentinelTool{engine: engine}
}

func (t *AddTimeSentinelTool) Name() string { return "add_time_sentinel" }

func (t *AddTimeSentinelTool) Description() string {
	return "Set a timer trigger. Provide interval+unit for periodic firing, or cron_expr for calendar schedules."
}

func (t *AddTimeSentinelTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"interval": map[string]interface{}{"type": "integer"},
			"unit": map[string]interface{}{
				"type": "string",
				"enum": []string{"seconds", "minutes", "hours", "days"},
			},
			"cron_expr": map[string]interface{}{
				"type":        "string",
				"description": "Standard 5-field cron expression. Overrides interval+unit.",
			},
			"description": map[string]interface{}{"type": "string"},
		},
		"required": []string{"description"},
	}
}

func (t *AddTimeSentinelTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	description, _ := args["description"].(string)
	if description == "" {
		return ErrorResult("Error: description is required.")
	}

	if expr, _ := args["cron_expr"].(string); expr != "" {
		id, err := t.engine.AddCron(expr, description)
		if err != nil {
			return NewResult(fmt.Sprintf("Error: %v", err))
		}
		return NewResult(id)
	}

	interval, ok := args["interval"].(float64)
	if !ok {
		return ErrorResult("Error: interval is required when cron_expr is not set.")
	}
	unit, _ := args["unit"].(string)
	id, err := t.engine.AddTime(int(interval), unit, description)
	if err != nil {
		return NewResult(fmt.Sprintf("Error: %v", err))
	}
	return NewResult(id)
}

type AddFileSentinelTool struct {
	engine *sentinel.Engine
}

func NewAddFileSentinelTool(engine *sentinel.Engine) *AddFileSentinelTool {
	return &AddFileSentinelTool{engine: engine}
}

func (t *AddFileSentinelTool) Name() string { return "add_file_sentinel" }

func (t *AddFileSentinelTool) Description() string {
	return "Watch a file/folder for changes."
}

func (t *AddFileSentinelTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path":        map[string]interface{}{"type": "string"},
			"description": map[string]interface{}{"type": "string"},
		},
		"required": []string{"path", "description"},
	}
}

func (t *AddFileSentinelTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	path, _ := args["path"].(string)
	description, _ := args["description"].(string)
	if path == "" {
		return ErrorResult("Error: path is required.")
	}

	id, err := t.engine.AddFile(path, description)
	if errors.Is(err, sentinel.ErrPathNotFound) {
		return NewResult("Error: Path does not exist.")
	}
	if err != nil {
		return NewResult(fmt.Sprintf("Error: %v", err))
	}
	return NewResult(id)
}

type AddBehaviorSentinelTool struct {
	engine *sentinel.Engine
}

func NewAddBehaviorSentinelTool(engine *sentinel.Engine) *AddBehaviorSentinelTool {
	return &AddBehaviorSentinelTool{engine: engine}
}

func (t *AddBehaviorSentinelTool) Name() string { return "add_behavior_sentinel" }

func (t *AddBehaviorSentinelTool) Description() string {
	return "Register global hotkey."
}

func (t *AddBehaviorSentinelTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"key_combo":   map[string]interface{}{"type": "string"},
			"description": map[string]interface{}{"type": "string"},
		},
		"required": []string{"key_combo", "description"},
	}
}

func (t *AddBehaviorSentinelTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	keyCombo, _ := args["key_combo"].(string)
	description, _ := args["description"].(string)

	id, err := t.engine.AddBehavior(keyCombo, description)
	if err != nil {
		return NewResult(fmt.Sprintf("Error: %v", err))
	}
	return NewResult(id)
}

type ListSentinelsTool struct {
	engine *sentinel.Engine
}

func NewListSentinelsTool(engine *sentinel.Engine) *ListSentinelsTool {
	return &ListSentinelsTool{engine: engine}
}

func (t *ListSentinelsTool) Name() string { return "list_active_sentinels" }

func (t *ListSentinelsTool) Description() string {
	return "List sentinels."
}

func (t *ListSentinelsTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}

func (t *ListSentinelsTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	data, err := json.MarshalIndent(t.engine.List(), "", "  ")
	if err != nil {
		return NewResult(fmt.Sprintf("Error: %v", err))
	}
	return NewResult(string(data))
}

type RemoveSentinelTool struct {
	engine *sentinel.Engine
}

func NewRemoveSentinelTool(engine *sentinel.Engine) *RemoveSentinelTool {
	return &RemoveSentinelTool{engine: engine}
}

func (t *RemoveSentinelTool) Name() string { return "remove_sentinel" }

func (t *RemoveSentinelTool) Description() string {
	return "Remove sentinel."
}

func (t *RemoveSentinelTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"type": map[string]interface{}{"type": "string"},
			"id":   map[string]interface{}{"type": "string"},
		},
		"required": []string{"type", "id"},
	}
}

func (t *RemoveSentinelTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	kind, _ := args["type"].(string)
	id, _ := args["id"].(string)
	return NewResult(strconv.FormatBool(t.engine.Remove(kind, id)))
}
