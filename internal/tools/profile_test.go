package tools

import (
	"context"
	"testing"

	"github.com/resonancehq/resonance/internal/config"
)

func TestRememberFactTool(t *testing.T) {
	store, err := config.Open(t.TempDir())
	if err != nil {
		t.Fatalf("config.Open: %v", err)
	}
	tool := NewRememberFactTool(store)

	res := tool.Execute(context.Background(), map[string]interface{}{
		"key":   "editor",
		"value": "helix",
	})
	if res.ForLLM != "Memory updated: editor = helix" {
		t.Errorf("ForLLM = %q", res.ForLLM)
	}
	if got := store.Snapshot().User.UserInfo["editor"]; got != "helix" {
		t.Errorf("profile value = %q", got)
	}

	res = tool.Execute(context.Background(), map[string]interface{}{"value": "dangling"})
	if !res.IsError {
		t.Error("missing key should fail")
	}
}
