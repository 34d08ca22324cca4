package tools

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestRunShellCapturesOutput(t *testing.T) {
	res := RunShell(context.Background(), "echo hello", "", time.Minute)
	if strings.TrimSpace(res.ForLLM) != "hello" {
		t.Errorf("ForLLM = %q", res.ForLLM)
	}
}

func TestRunShellStderr(t *testing.T) {
	res := RunShell(context.Background(), "echo oops 1>&2", "", time.Minute)
	if !strings.Contains(res.ForLLM, "[STDERR]: oops") {
		t.Errorf("ForLLM = %q", res.ForLLM)
	}
}

func TestRunShellNoOutput(t *testing.T) {
	res := RunShell(context.Background(), "true", "", time.Minute)
	if res.ForLLM != "[System]: Command executed successfully (No visual output)." {
		t.Errorf("ForLLM = %q", res.ForLLM)
	}
}

func TestRunShellExitFailure(t *testing.T) {
	res := RunShell(context.Background(), "exit 3", "", time.Minute)
	if !strings.HasPrefix(res.ForLLM, "[Error]:") {
		t.Errorf("ForLLM = %q", res.ForLLM)
	}
}

func TestRunShellWorkingDir(t *testing.T) {
	dir := t.TempDir()
	res := RunShell(context.Background(), "pwd", dir, time.Minute)
	// Some platforms resolve the temp dir through symlinks; compare tails.
	if got := strings.TrimSpace(res.ForLLM); !strings.HasSuffix(got, filepath.Base(dir)) {
		t.Errorf("pwd = %q, want suffix %q", got, filepath.Base(dir))
	}
}

func TestRunShellTimeout(t *testing.T) {
	start := time.Now()
	res := RunShell(context.Background(), "sleep 5", "", time.Second)
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Fatalf("kill took %v", elapsed)
	}
	if res.ForLLM != "[Error]: Command timed out after 1s." {
		t.Errorf("ForLLM = %q", res.ForLLM)
	}
}

func TestRunShellCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	res := RunShell(ctx, "sleep 5", "", time.Minute)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("cancel took %v", elapsed)
	}
	if res.ForLLM != "[System]: Command execution was interrupted by user." {
		t.Errorf("ForLLM = %q", res.ForLLM)
	}
}

func TestRunShellPreCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := RunShell(ctx, "echo never", "", time.Minute)
	if res.ForLLM != "[System]: Command cancelled before execution." {
		t.Errorf("ForLLM = %q", res.ForLLM)
	}
}

func TestShellToolRequiresCommand(t *testing.T) {
	res := NewShellTool().Execute(context.Background(), map[string]interface{}{})
	if !res.IsError || res.ForLLM != "Error: command is required." {
		t.Errorf("result = %+v", res)
	}
}
