package tools

import (
	"context"
	"fmt"

	"github.com/resonancehq/resonance/internal/config"
)

// RememberFactTool persists a key/value fact into the user profile. The
// prompt builder reads the profile on every iteration, so saved facts are
// visible to the model from the next thinking step onward.
type RememberFactTool struct {
	cfg *config.Store
}

func NewRememberFactTool(cfg *config.Store) *RememberFactTool {
	return &RememberFactTool{cfg: cfg}
}

func (t *RememberFactTool) Name() string { return "remember_user_fact" }

func (t *RememberFactTool) Description() string {
	return "Save a fact to long-term memory."
}

func (t *RememberFactTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"key": map[string]interface{}{
				"type":        "string",
				"description": "Category (e.g., 'name', 'ssh_key_path').",
			},
			"value": map[string]interface{}{
				"type":        "string",
				"description": "The information to save.",
			},
		},
		"required": []string{"key", "value"},
	}
}

func (t *RememberFactTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	key, _ := args["key"].(string)
	value, _ := args["value"].(string)
	if key == "" {
		return ErrorResult("Error: key is required.")
	}

	err := t.cfg.UpdateUserProfile(func(u *config.UserProfile) error {
		u.UserInfo[key] = value
		return nil
	})
	if err != nil {
		return NewResult(fmt.Sprintf("Error saving fact: %v", err))
	}
	return NewResult(fmt.Sprintf("Memory updated: %s = %s", key, value))
}
