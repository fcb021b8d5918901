// Package httpprovider implements the provider.Client interface (§6) over
// plain HTTP against an OpenAI-compatible chat-completions endpoint. It is
// the one concrete, network-talking adapter the module ships, even though
// the provider adapter is formally an external collaborator — a runtime
// with no real implementation of its own narrowest interface isn't usable
// end to end.
package httpprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/stepforge/flowrt/core"
	"github.com/stepforge/flowrt/provider"
)

// OpenAIClient talks to an OpenAI-compatible /chat/completions endpoint,
// forcing tool-call selection so the response carries structured output.
type OpenAIClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     core.Logger
	maxRetries uint
}

// NewOpenAIClient builds a client. If apiKey is empty, OPENAI_API_KEY is
// used. The HTTP client is wrapped with otelhttp so outbound calls produce
// spans under whatever global TracerProvider is configured.
func NewOpenAIClient(apiKey string, logger core.Logger) *OpenAIClient {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	return &OpenAIClient{
		apiKey:  apiKey,
		baseURL: "https://api.openai.com/v1",
		httpClient: &http.Client{
			Timeout:   60 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger:     logger,
		maxRetries: 3,
	}
}

type chatRequest struct {
	Model       string                 `json:"model"`
	Messages    []chatMessage          `json:"messages"`
	Temperature *float32               `json:"temperature,omitempty"`
	Tools       []map[string]interface{} `json:"tools"`
	ToolChoice  map[string]interface{} `json:"tool_choice"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			ToolCalls []struct {
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Call sends req as a forced tool-call chat completion. Connection-level
// failures (timeouts, resets, 5xx) are retried with exponential backoff;
// 4xx and malformed-body failures are returned immediately as parse-class
// errors for the step executor to handle.
func (c *OpenAIClient) Call(ctx context.Context, req provider.Request) (*provider.Response, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("httpprovider: OPENAI_API_KEY not configured")
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	messages := make([]chatMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, chatMessage{Role: m.Role, Content: m.Content})
	}

	body := chatRequest{
		Model:       req.ModelID,
		Messages:    messages,
		Temperature: req.Temperature,
		Tools: []map[string]interface{}{{
			"type": "function",
			"function": map[string]interface{}{
				"name":        req.Tool.Name,
				"description": req.Tool.Description,
				"parameters":  req.Tool.Parameters,
			},
		}},
		ToolChoice: map[string]interface{}{
			"type":     "function",
			"function": map[string]interface{}{"name": req.ForcedName},
		},
	}

	op := func() (*chatResponse, error) {
		return c.doRequest(ctx, body)
	}

	resp, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(c.maxRetries),
	)
	if err != nil {
		return nil, fmt.Errorf("httpprovider: request failed: %w", err)
	}

	if len(resp.Choices) == 0 || len(resp.Choices[0].Message.ToolCalls) == 0 {
		return nil, fmt.Errorf("httpprovider: no tool call in response")
	}

	calls := make([]provider.ToolCallResult, 0, len(resp.Choices[0].Message.ToolCalls))
	for _, tc := range resp.Choices[0].Message.ToolCalls {
		calls = append(calls, provider.ToolCallResult{Name: tc.Function.Name, Arguments: tc.Function.Arguments})
	}

	return &provider.Response{
		ToolCalls:      calls,
		ProviderSystem: "openai",
		ModelID:        resp.Model,
		InputTokens:    resp.Usage.PromptTokens,
		OutputTokens:   resp.Usage.CompletionTokens,
	}, nil
}

func (c *OpenAIClient) doRequest(ctx context.Context, body chatRequest) (*chatResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err // transient network error: retry
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("httpprovider: server error (status %d)", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, backoff.Permanent(fmt.Errorf("httpprovider: API error (status %d): %s", resp.StatusCode, string(raw)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("parse response: %w", err))
	}
	return &parsed, nil
}

// Cost estimates USD cost from token usage using a flat per-1k-token rate;
// callers that need provider-accurate pricing should wrap or replace this.
func (c *OpenAIClient) Cost(resp *provider.Response) *float64 {
	if resp == nil {
		return nil
	}
	const inputPer1K = 0.0025
	const outputPer1K = 0.01
	cost := float64(resp.InputTokens)/1000*inputPer1K + float64(resp.OutputTokens)/1000*outputPer1K
	return &cost
}
