package tools

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

// ThinkInvoker returns the scratchpad tool implementation. The model uses it
// to record intermediate reasoning between searches; the note is echoed back
// so it stays in the transcript.
func ThinkInvoker() InvokeFunc {
	return func(_ context.Context, input map[string]interface{}) (string, error) {
		note, _ := input["thought"].(string)
		if note == "" {
			return "", fmt.Errorf("think: missing thought")
		}
		return "Noted: " + note, nil
	}
}

// GatewayClient invokes catalog tools over HTTP against the tool gateway
// service, which fronts the concrete search/fetch backends.
type GatewayClient struct {
	base   string
	http   *http.Client
	logger *zap.Logger
}

func NewGatewayClient(baseURL string, timeout time.Duration, logger *zap.Logger) *GatewayClient {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &GatewayClient{
		base:   baseURL,
		http:   &http.Client{Timeout: timeout},
		logger: logger,
	}
}

type gatewayExecuteRequest struct {
	Tool  string                 `json:"tool"`
	Input map[string]interface{} `json:"input"`
}

type gatewayExecuteResponse struct {
	Output string `json:"output"`
	Error  string `json:"error,omitempty"`
}

// Invoker returns an InvokeFunc bound to a single catalog tool name.
func (g *GatewayClient) Invoker(toolName string) InvokeFunc {
	return func(ctx context.Context, input map[string]interface{}) (string, error) {
		return g.execute(ctx, toolName, input)
	}
}

// Invokers builds the implementation map LoadCatalog expects, one HTTP-backed
// invoker per named tool, plus the local think scratchpad.
func (g *GatewayClient) Invokers(names []string) map[string]InvokeFunc {
	impls := make(map[string]InvokeFunc, len(names)+1)
	for _, name := range names {
		impls[name] = g.Invoker(name)
	}
	impls["think"] = ThinkInvoker()
	return impls
}

func (g *GatewayClient) execute(ctx context.Context, tool string, input map[string]interface{}) (string, error) {
	body, err := json.Marshal(gatewayExecuteRequest{Tool: tool, Input: input})
	if err != nil {
		return "", fmt.Errorf("marshal tool request: %w", err)
	}

	url := g.base + "/tools/execute"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build tool request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("tool gateway call: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read tool response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		g.logger.Warn("tool gateway returned non-200",
			zap.String("tool", tool),
			zap.Int("status", resp.StatusCode))
		return "", fmt.Errorf("tool gateway status %d: %s", resp.StatusCode, truncate(string(data), 200))
	}

	var out gatewayExecuteResponse
	if err := json.Unmarshal(data, &out); err != nil {
		// some backends return plain text
		return string(data), nil
	}
	if out.Error != "" {
		return "", fmt.Errorf("tool %s: %s", tool, out.Error)
	}
	return out.Output, nil
}

// Ping probes the gateway health endpoint.
func (g *GatewayClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.base+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := g.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tool gateway health status %d", resp.StatusCode)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
