package providers

import "context"

// Provider abstracts an OpenAI-compatible chat completion endpoint.
type Provider interface {
	// Chat sends a conversation and returns the complete response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// ChatStream sends a conversation and streams the response.
	// onChunk is called for each delta; the returned ChatResponse carries
	// the fully accumulated content and tool calls.
	ChatStream(ctx context.Context, req ChatRequest, onChunk func(StreamChunk)) (*ChatResponse, error)

	// DefaultModel returns the model used when a request omits one.
	DefaultModel() string

	// Name returns the provider name for logging.
	Name() string
}

// Request option keys merged into the wire body.
const (
	OptMaxTokens      = "max_tokens"
	OptTemperature    = "temperature"
	OptResponseFormat = "response_format"
)

// JSONObjectFormat forces the model to emit a single JSON object.
// Used by the supervisor verdict call.
func JSONObjectFormat() map[string]interface{} {
	return map[string]interface{}{"type": "json_object"}
}

// ChatRequest is a provider-agnostic chat completion request.
type ChatRequest struct {
	Messages []Message
	Tools    []ToolDefinition
	Model    string
	Options  map[string]interface{}
}

// ChatResponse is the provider's complete answer for one call.
type ChatResponse struct {
	Content      string
	Thinking     string
	ToolCalls    []ToolCall
	FinishReason string // "stop", "tool_calls", "length"
	Usage        *Usage
}

// StreamChunk is one incremental piece of a streamed response.
type StreamChunk struct {
	Content  string
	Thinking string
	Done     bool
}

// Usage reports token consumption for one call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Message is a single wire-format conversation message.
type Message struct {
	Role       string     `json:"role"` // "system", "user", "assistant", "tool"
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // for role="tool"
	Name       string     `json:"name,omitempty"`         // tool name echo for role="tool"
}

// ToolCall is a parsed tool invocation request from the model.
type ToolCall struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// ToolDefinition describes a callable tool in JSON-schema form.
type ToolDefinition struct {
	Type     string             `json:"type"` // always "function"
	Function ToolFunctionSchema `json:"function"`
}

// ToolFunctionSchema is the function portion of a tool definition.
type ToolFunctionSchema struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}
