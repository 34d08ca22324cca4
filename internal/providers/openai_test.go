package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestChatStreamAccumulatesToolCalls(t *testing.T) {
	// Arguments for one tool call arrive fragmented across SSE events.
	events := []string{
		`{"choices":[{"delta":{"content":"Let me check."}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"execute_shell_command","arguments":"{\"comm"}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"and\": \"ls\"}"}}]}}]}`,
		`{"choices":[{"delta":{},"finish_reason":"tool_calls"}],"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`,
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, e := range events {
			fmt.Fprintf(w, "data: %s\n\n", e)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	p := NewOpenAIProvider("test", "key", srv.URL, "test-model")

	var deltas []string
	var done bool
	resp, err := p.ChatStream(context.Background(), ChatRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
	}, func(c StreamChunk) {
		if c.Done {
			done = true
		}
		if c.Content != "" {
			deltas = append(deltas, c.Content)
		}
	})
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}

	if resp.Content != "Let me check." {
		t.Errorf("content = %q", resp.Content)
	}
	if len(deltas) != 1 || deltas[0] != "Let me check." {
		t.Errorf("deltas = %v", deltas)
	}
	if !done {
		t.Error("missing Done chunk")
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("tool calls = %d, want 1", len(resp.ToolCalls))
	}
	tc := resp.ToolCalls[0]
	if tc.ID != "call_1" || tc.Name != "execute_shell_command" {
		t.Errorf("tool call = %+v", tc)
	}
	if tc.Arguments["command"] != "ls" {
		t.Errorf("arguments = %v", tc.Arguments)
	}
	if resp.FinishReason != "tool_calls" {
		t.Errorf("finish reason = %q", resp.FinishReason)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 15 {
		t.Errorf("usage = %+v", resp.Usage)
	}
}

func TestChatStreamMultipleSlots(t *testing.T) {
	events := []string{
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"a","function":{"name":"read_file_content","arguments":"{}"}},{"index":1,"id":"b","function":{"name":"browse_url","arguments":"{\"url\":\"http://x\"}"}}]}}]}`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, e := range events {
			fmt.Fprintf(w, "data: %s\n\n", e)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	p := NewOpenAIProvider("test", "key", srv.URL, "m")
	resp, err := p.ChatStream(context.Background(), ChatRequest{}, nil)
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}
	if len(resp.ToolCalls) != 2 {
		t.Fatalf("tool calls = %d, want 2", len(resp.ToolCalls))
	}
	if resp.ToolCalls[0].ID != "a" || resp.ToolCalls[1].ID != "b" {
		t.Errorf("slot order broken: %+v", resp.ToolCalls)
	}
}

func TestChatRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "upstream overloaded", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]interface{}{"content": "ok"}, "finish_reason": "stop"},
			},
		})
	}))
	defer srv.Close()

	p := NewOpenAIProvider("test", "key", srv.URL, "m")
	p.retryConfig = RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

	resp, err := p.Chat(context.Background(), ChatRequest{})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "ok" {
		t.Errorf("content = %q", resp.Content)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestChatDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	p := NewOpenAIProvider("test", "key", srv.URL, "m")
	p.retryConfig = RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

	_, err := p.Chat(context.Background(), ChatRequest{})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 (no retry on 400)", calls.Load())
	}
}

func TestBuildRequestBodyWireFormat(t *testing.T) {
	p := NewOpenAIProvider("test", "key", "http://localhost", "m")

	req := ChatRequest{
		Messages: []Message{
			{Role: "system", Content: "sys"},
			{Role: "assistant", ToolCalls: []ToolCall{
				{ID: "c1", Name: "read_file_content", Arguments: map[string]interface{}{"file_path": "/tmp/a"}},
			}},
			{Role: "tool", ToolCallID: "c1", Name: "read_file_content", Content: "data"},
		},
		Tools: []ToolDefinition{{
			Type:     "function",
			Function: ToolFunctionSchema{Name: "read_file_content", Parameters: map[string]interface{}{"type": "object"}},
		}},
		Options: map[string]interface{}{
			OptTemperature:    0.3,
			OptResponseFormat: JSONObjectFormat(),
		},
	}

	body := p.buildRequestBody("m", req, false)

	msgs := body["messages"].([]map[string]interface{})
	if len(msgs) != 3 {
		t.Fatalf("messages = %d", len(msgs))
	}

	// Assistant with tool_calls and empty content must omit the content key.
	if _, ok := msgs[1]["content"]; ok {
		t.Error("assistant tool-call message should omit empty content")
	}
	tcs := msgs[1]["tool_calls"].([]map[string]interface{})
	fn := tcs[0]["function"].(map[string]interface{})
	if fn["name"] != "read_file_content" {
		t.Errorf("function name = %v", fn["name"])
	}
	var args map[string]interface{}
	if err := json.Unmarshal([]byte(fn["arguments"].(string)), &args); err != nil {
		t.Fatalf("arguments not a JSON string: %v", err)
	}
	if args["file_path"] != "/tmp/a" {
		t.Errorf("arguments = %v", args)
	}

	if msgs[2]["tool_call_id"] != "c1" {
		t.Errorf("tool_call_id = %v", msgs[2]["tool_call_id"])
	}

	if body["tool_choice"] != "auto" {
		t.Errorf("tool_choice = %v", body["tool_choice"])
	}
	if body["temperature"] != 0.3 {
		t.Errorf("temperature = %v", body["temperature"])
	}
	rf := body["response_format"].(map[string]interface{})
	if rf["type"] != "json_object" {
		t.Errorf("response_format = %v", rf)
	}
}

func TestHTTPErrorRetryAfter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewOpenAIProvider("test", "key", srv.URL, "m")
	p.retryConfig = RetryConfig{MaxRetries: 0}

	_, err := p.Chat(context.Background(), ChatRequest{})
	if err == nil {
		t.Fatal("expected error")
	}
	httpErr, ok := err.(*HTTPError)
	if !ok {
		t.Fatalf("error type = %T", err)
	}
	if httpErr.Status != http.StatusTooManyRequests {
		t.Errorf("status = %d", httpErr.Status)
	}
	if httpErr.RetryAfter != 7*time.Second {
		t.Errorf("retry after = %v", httpErr.RetryAfter)
	}
	if !httpErr.Retryable() {
		t.Error("429 should be retryable")
	}
	if !strings.Contains(httpErr.Error(), "429") {
		t.Errorf("error string = %q", httpErr.Error())
	}
}
