package tools

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"
)

const shellTimeout = 120 * time.Second

// ShellTool executes raw shell commands on the host.
type ShellTool struct {
	timeout time.Duration
}

func NewShellTool() *ShellTool {
	return &ShellTool{timeout: shellTimeout}
}

func (t *ShellTool) Name() string { return "execute_shell_command" }

func (t *ShellTool) Description() string {
	return "Execute a raw shell command. Use cautiously."
}

func (t *ShellTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"command": map[string]interface{}{"type": "string"},
		},
		"required": []string{"command"},
	}
}

func (t *ShellTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	command, _ := args["command"].(string)
	if command == "" {
		return ErrorResult("Error: command is required.")
	}
	return RunShell(ctx, command, "", t.timeout)
}

// RunShell starts `sh -c command` in dir and waits for exit, cancel, or
// timeout. Failures come back as "[Error]:"/"[System]:" prefixed text —
// normal tool results the model reacts to, never Go errors. Shared with
// the legacy script wrapper.
func RunShell(ctx context.Context, command, dir string, timeout time.Duration) *Result {
	if ctx.Err() != nil {
		return NewResult("[System]: Command cancelled before execution.")
	}

	cmd := exec.Command("sh", "-c", command)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "LANG=C.UTF-8")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return NewResult(fmt.Sprintf("[System Error]: %v", err))
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return shellOutput(&stdout, &stderr, err)
	case <-ctx.Done():
		cmd.Process.Kill()
		<-done
		return NewResult("[System]: Command execution was interrupted by user.")
	case <-timer.C:
		cmd.Process.Kill()
		<-done
		return NewResult(fmt.Sprintf("[Error]: Command timed out after %ds.", int(timeout.Seconds())))
	}
}

func shellOutput(stdout, stderr *bytes.Buffer, err error) *Result {
	out := stdout.String()
	if stderr.Len() > 0 {
		out += fmt.Sprintf("\n[STDERR]: %s", stderr.String())
	}
	if len(bytes.TrimSpace([]byte(out))) == 0 {
		if err != nil {
			return NewResult(fmt.Sprintf("[Error]: %v", err))
		}
		return NewResult("[System]: Command executed successfully (No visual output).")
	}
	return NewResult(out)
}
