package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/SHINZO111/llm-smart-router/internal/coretypes"
	"github.com/SHINZO111/llm-smart-router/internal/executor"
)

const (
	anthropicAPIVersion = "2023-06-01"
	anthropicBaseURL    = "https://api.anthropic.com/v1/messages"
)

type anthropicRequest struct {
	Model     string             `json:"model"`
	Messages  []anthropicMessage `json:"messages"`
	MaxTokens int                `json:"max_tokens"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []anthropicContentBlock `json:"content"`
	Usage   anthropicUsage          `json:"usage"`
	Error   *anthropicAPIError      `json:"error,omitempty"`
}

type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicAPIError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// AnthropicAdapter talks to Claude's native messages API through the
// unified Adapter shape.
type AnthropicAdapter struct {
	httpClient *http.Client
	apiKey     Credential
	model      string
	pricing    coretypes.Pricing
	fxRate     float64
}

// NewAnthropicAdapter constructs an adapter for one Anthropic model.
func NewAnthropicAdapter(apiKey Credential, model string, pricing coretypes.Pricing, fxRate float64) *AnthropicAdapter {
	return &AnthropicAdapter{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		apiKey:     apiKey,
		model:      model,
		pricing:    pricing,
		fxRate:     fxRate,
	}
}

func (a *AnthropicAdapter) Generate(ctx context.Context, input string) (executor.Response, error) {
	payload := anthropicRequest{
		Model:     a.model,
		Messages:  []anthropicMessage{{Role: "user", Content: input}},
		MaxTokens: 4096,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return executor.Response{}, fmt.Errorf("marshal anthropic request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, anthropicBaseURL, bytes.NewReader(body))
	if err != nil {
		return executor.Response{}, fmt.Errorf("build anthropic request: %w", err)
	}
	req.Header.Set("x-api-key", a.apiKey.String())
	req.Header.Set("anthropic-version", anthropicAPIVersion)
	req.Header.Set("content-type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return executor.Response{}, &executor.AdapterError{Kind: coretypes.ErrConnectionRefused, Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		retryAfter := retryAfterDuration(resp.Header.Get("Retry-After"))
		return executor.Response{}, &executor.AdapterError{
			Kind:       httpErrorKind(resp.StatusCode),
			RetryAfter: retryAfter,
			Err:        fmt.Errorf("anthropic returned status %d: %s", resp.StatusCode, string(raw)),
		}
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return executor.Response{}, &executor.AdapterError{Kind: coretypes.ErrMalformedResponse, Err: err}
	}
	if parsed.Error != nil {
		return executor.Response{}, &executor.AdapterError{
			Kind: coretypes.ErrMalformedResponse,
			Err:  fmt.Errorf("anthropic API error: %s: %s", parsed.Error.Type, parsed.Error.Message),
		}
	}

	var text string
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return executor.Response{}, &executor.AdapterError{Kind: coretypes.ErrMalformedResponse, Err: fmt.Errorf("no text content in response")}
	}

	cost := computeCost(parsed.Usage.InputTokens, parsed.Usage.OutputTokens, a.pricing, a.fxRate)
	return executor.Response{
		Text:      text,
		TokensIn:  parsed.Usage.InputTokens,
		TokensOut: parsed.Usage.OutputTokens,
		Cost:      cost,
	}, nil
}

func (a *AnthropicAdapter) CountTokens(text string) int { return countTokens(text) }

func (a *AnthropicAdapter) ValidateCredentials(ctx context.Context) bool {
	if !a.apiKey.Present() {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://api.anthropic.com/v1/models", nil)
	if err != nil {
		return false
	}
	req.Header.Set("x-api-key", a.apiKey.String())
	req.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
