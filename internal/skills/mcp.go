package skills

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/titanous/json5"

	"github.com/resonancehq/resonance/internal/providers"
)

const (
	mcpHealthInterval    = 30 * time.Second
	mcpInitialBackoff    = 2 * time.Second
	mcpMaxBackoff        = 60 * time.Second
	mcpMaxReconnects     = 10
	defaultMCPTimeoutSec = 60
)

// MCPConfig is the optional mcp.json sidecar of a skill directory. It is
// parsed as JSON5. Transport defaults to stdio.
type MCPConfig struct {
	Transport  string            `json:"transport"`
	Command    string            `json:"command"`
	Args       []string          `json:"args"`
	Env        map[string]string `json:"env"`
	URL        string            `json:"url"`
	Headers    map[string]string `json:"headers"`
	TimeoutSec int               `json:"timeout_sec"`
}

// loadMCPConfig reads mcp.json from a skill directory. A missing file is
// not an error; the skill simply has no MCP server.
func loadMCPConfig(dir string) (*MCPConfig, error) {
	raw, err := os.ReadFile(filepath.Join(dir, "mcp.json"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var cfg MCPConfig
	if err := json5.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse mcp.json: %w", err)
	}
	if cfg.Transport == "" {
		cfg.Transport = "stdio"
	}
	return &cfg, nil
}

// MCPSession is a live connection to a skill's MCP server. Tools discovered
// during the handshake are merged into the skill's activation context and
// dispatched through Call for as long as the session is open.
type MCPSession struct {
	skill     string
	client    *mcpclient.Client
	tools     []providers.ToolDefinition
	names     map[string]struct{}
	timeout   time.Duration
	connected atomic.Bool
	cancel    context.CancelFunc

	mu             sync.Mutex
	reconnAttempts int
	lastErr        string
}

// ConnectMCP dials the configured server, runs the MCP handshake, and
// discovers its tools.
func ConnectMCP(ctx context.Context, skillName string, cfg *MCPConfig) (*MCPSession, error) {
	client, err := newMCPClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	// SSE and streamable-http need an explicit Start; stdio auto-starts.
	if cfg.Transport != "stdio" {
		if err := client.Start(ctx); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("start transport: %w", err)
		}
	}

	initReq := mcpgo.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcpgo.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcpgo.Implementation{
		Name:    "resonance",
		Version: "1.0.0",
	}
	if _, err := client.Initialize(ctx, initReq); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("initialize: %w", err)
	}

	toolsResult, err := client.ListTools(ctx, mcpgo.ListToolsRequest{})
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("list tools: %w", err)
	}

	timeoutSec := cfg.TimeoutSec
	if timeoutSec <= 0 {
		timeoutSec = defaultMCPTimeoutSec
	}

	s := &MCPSession{
		skill:   skillName,
		client:  client,
		names:   make(map[string]struct{}, len(toolsResult.Tools)),
		timeout: time.Duration(timeoutSec) * time.Second,
	}
	s.connected.Store(true)

	for _, t := range toolsResult.Tools {
		s.tools = append(s.tools, providers.ToolDefinition{
			Type: "function",
			Function: providers.ToolFunctionSchema{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  schemaToMap(t.InputSchema),
			},
		})
		s.names[t.Name] = struct{}{}
	}

	hctx, hcancel := context.WithCancel(context.Background())
	s.cancel = hcancel
	go s.healthLoop(hctx)

	slog.Info("mcp server connected",
		"skill", skillName,
		"transport", cfg.Transport,
		"tools", len(s.tools),
	)
	return s, nil
}

func newMCPClient(cfg *MCPConfig) (*mcpclient.Client, error) {
	switch cfg.Transport {
	case "stdio":
		return mcpclient.NewStdioMCPClient(cfg.Command, envSlice(cfg.Env), cfg.Args...)

	case "sse":
		var opts []transport.ClientOption
		if len(cfg.Headers) > 0 {
			opts = append(opts, mcpclient.WithHeaders(cfg.Headers))
		}
		return mcpclient.NewSSEMCPClient(cfg.URL, opts...)

	case "streamable-http":
		var opts []transport.StreamableHTTPCOption
		if len(cfg.Headers) > 0 {
			opts = append(opts, transport.WithHTTPHeaders(cfg.Headers))
		}
		return mcpclient.NewStreamableHttpClient(cfg.URL, opts...)

	default:
		return nil, fmt.Errorf("unsupported transport: %q", cfg.Transport)
	}
}

// Tools returns the definitions discovered at connect time.
func (s *MCPSession) Tools() []providers.ToolDefinition { return s.tools }

// Has reports whether the session serves the named tool.
func (s *MCPSession) Has(name string) bool {
	_, ok := s.names[name]
	return ok
}

// Connected reports the last known health state.
func (s *MCPSession) Connected() bool { return s.connected.Load() }

// Call invokes a tool on the server and returns its text content. A result
// flagged as an error by the server comes back as a Go error carrying the
// server's text.
func (s *MCPSession) Call(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	if !s.connected.Load() {
		return "", fmt.Errorf("mcp server for skill %s is not connected", s.skill)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req := mcpgo.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	resp, err := s.client.CallTool(callCtx, req)
	if err != nil {
		return "", fmt.Errorf("mcp call failed: %w", err)
	}

	text := textContent(resp.Content)
	if resp.IsError {
		if text == "" {
			text = "unknown error"
		}
		return "", errors.New(text)
	}
	return text, nil
}

// Close stops health monitoring and tears down the transport.
func (s *MCPSession) Close() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.client != nil {
		_ = s.client.Close()
	}
	s.connected.Store(false)
	slog.Debug("mcp session closed", "skill", s.skill)
}

func (s *MCPSession) healthLoop(ctx context.Context) {
	ticker := time.NewTicker(mcpHealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := s.client.Ping(ctx)
			if err == nil {
				s.markHealthy()
				continue
			}
			// Servers without a "ping" handler are still alive.
			if strings.Contains(strings.ToLower(err.Error()), "method not found") {
				s.markHealthy()
				continue
			}
			s.connected.Store(false)
			s.mu.Lock()
			s.lastErr = err.Error()
			s.mu.Unlock()

			slog.Warn("mcp health check failed", "skill", s.skill, "error", err)
			s.tryReconnect(ctx)
		}
	}
}

func (s *MCPSession) markHealthy() {
	s.connected.Store(true)
	s.mu.Lock()
	s.reconnAttempts = 0
	s.lastErr = ""
	s.mu.Unlock()
}

func (s *MCPSession) tryReconnect(ctx context.Context) {
	s.mu.Lock()
	if s.reconnAttempts >= mcpMaxReconnects {
		s.lastErr = fmt.Sprintf("max reconnect attempts (%d) reached", mcpMaxReconnects)
		s.mu.Unlock()
		slog.Error("mcp reconnect attempts exhausted", "skill", s.skill)
		return
	}
	s.reconnAttempts++
	attempt := s.reconnAttempts
	s.mu.Unlock()

	backoff := mcpInitialBackoff * time.Duration(1<<(attempt-1))
	if backoff > mcpMaxBackoff {
		backoff = mcpMaxBackoff
	}
	slog.Info("mcp reconnecting", "skill", s.skill, "attempt", attempt, "backoff", backoff)

	select {
	case <-ctx.Done():
		return
	case <-time.After(backoff):
	}

	// The transport may have recovered on its own; a ping settles it.
	if err := s.client.Ping(ctx); err == nil {
		s.markHealthy()
		slog.Info("mcp reconnected", "skill", s.skill)
	}
}

// textContent concatenates the text parts of a tool result, one per line.
// Non-text parts (images, audio, resources) are skipped.
func textContent(content []mcpgo.Content) string {
	var parts []string
	for _, c := range content {
		if tc, ok := mcpgo.AsTextContent(c); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// schemaToMap converts an MCP input schema to the generic JSON-schema map
// used in tool definitions.
func schemaToMap(schema mcpgo.ToolInputSchema) map[string]interface{} {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

func envSlice(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	s := make([]string, 0, len(env))
	for k, v := range env {
		s = append(s, k+"="+v)
	}
	return s
}
