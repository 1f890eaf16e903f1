package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Completer is the structured-completion capability: given a prompt and a
// target schema name, return the model's output as raw JSON for the caller
// to decode and validate.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
}

// ToolCaller produces one turn of a tool-calling conversation: the model is
// given the running history and the available tools and answers with zero or
// more tool calls, or a final message.
type ToolCaller interface {
	NextTurn(ctx context.Context, req TurnRequest) (Turn, error)
}

// CompletionRequest asks the LLM service for output conforming to a named schema.
type CompletionRequest struct {
	Prompt  string                 `json:"prompt"`
	Schema  string                 `json:"schema"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// CompletionResponse carries the validated-by-service JSON output plus usage metadata.
type CompletionResponse struct {
	Output       json.RawMessage `json:"output"`
	Model        string          `json:"model,omitempty"`
	Provider     string          `json:"provider,omitempty"`
	InputTokens  int             `json:"input_tokens,omitempty"`
	OutputTokens int             `json:"output_tokens,omitempty"`
}

// Message is one entry of a tool-calling conversation history.
type Message struct {
	Role       string `json:"role"` // "system", "user", "assistant", "tool"
	Content    string `json:"content,omitempty"`
	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`
	IsError    bool   `json:"is_error,omitempty"`
}

// ToolCall is a single tool invocation requested by the model.
type ToolCall struct {
	ID    string                 `json:"id"`
	Name  string                 `json:"name"`
	Input map[string]interface{} `json:"input,omitempty"`
}

// ToolSpec advertises a tool to the model.
type ToolSpec struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema,omitempty"`
}

// TurnRequest is the input for one reason-act iteration.
type TurnRequest struct {
	SystemPrompt string    `json:"system_prompt"`
	History      []Message `json:"history"`
	Tools        []ToolSpec `json:"tools"`
}

// Turn is the model's decision for one iteration: tool calls to execute, or a
// final message with Done set.
type Turn struct {
	ToolCalls    []ToolCall `json:"tool_calls,omitempty"`
	Message      string     `json:"message,omitempty"`
	Done         bool       `json:"done"`
	InputTokens  int        `json:"input_tokens,omitempty"`
	OutputTokens int        `json:"output_tokens,omitempty"`
}

// Client talks to the LLM service over HTTP. The service owns prompt
// rendering and provider selection; this client only moves JSON.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient builds a Client for the given service base URL.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Complete implements Completer against POST {base}/v1/completions/structured.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	var out CompletionResponse
	if err := c.post(ctx, "/v1/completions/structured", req, &out); err != nil {
		return CompletionResponse{}, err
	}
	if len(out.Output) == 0 {
		return CompletionResponse{}, fmt.Errorf("completion for schema %q returned empty output", req.Schema)
	}
	return out, nil
}

// NextTurn implements ToolCaller against POST {base}/v1/agent/turn.
func (c *Client) NextTurn(ctx context.Context, req TurnRequest) (Turn, error) {
	var out Turn
	if err := c.post(ctx, "/v1/agent/turn", req, &out); err != nil {
		return Turn{}, err
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, path string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request for %s: %w", path, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("llm service call %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Error("LLM service returned error",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", respBody),
		)
		return fmt.Errorf("llm service %s returned status %d: %s", path, resp.StatusCode, string(respBody))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response from %s: %w", path, err)
	}
	return nil
}
