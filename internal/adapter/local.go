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

// ollamaChatMessage is one turn in Ollama's /api/chat request/response body.
type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
}

type ollamaChatResponse struct {
	Message ollamaChatMessage `json:"message"`
	Done    bool              `json:"done"`
}

// LocalAdapter speaks the Ollama-native chat dialect, and doubles as
// the generic OpenAI-compatible local adapter for the other runtime
// kinds once probe.ProbeAll confirms a `/v1/chat/completions` endpoint
// — both paths return plain text, so the unification stays at this
// adapter rather than duplicating one per local runtime dialect. It
// always costs zero but still computes the would-have-been cloud cost
// for the savings statistic.
type LocalAdapter struct {
	httpClient     *http.Client
	baseURL        string
	model          string
	cloudPricing   coretypes.Pricing
	fxRate         float64
}

// NewLocalAdapter constructs an adapter against one local runtime
// endpoint. cloudPricing/fxRate are the configured default cloud
// model's pricing, used only to populate SavedCost.
func NewLocalAdapter(baseURL, model string, cloudPricing coretypes.Pricing, fxRate float64) *LocalAdapter {
	return &LocalAdapter{
		httpClient:   &http.Client{Timeout: 120 * time.Second},
		baseURL:      baseURL,
		model:        model,
		cloudPricing: cloudPricing,
		fxRate:       fxRate,
	}
}

func (a *LocalAdapter) Generate(ctx context.Context, input string) (executor.Response, error) {
	payload := ollamaChatRequest{
		Model:    a.model,
		Messages: []ollamaChatMessage{{Role: "user", Content: input}},
		Stream:   false,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return executor.Response{}, fmt.Errorf("marshal local chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return executor.Response{}, fmt.Errorf("build local chat request: %w", err)
	}
	req.Header.Set("content-type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return executor.Response{}, &executor.AdapterError{Kind: coretypes.ErrConnectionRefused, Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusNotFound {
		return executor.Response{}, &executor.AdapterError{Kind: coretypes.ErrModelNotLoaded, Err: fmt.Errorf("model not loaded: %s", string(raw))}
	}
	if resp.StatusCode >= 400 {
		return executor.Response{}, &executor.AdapterError{Kind: httpErrorKind(resp.StatusCode), Err: fmt.Errorf("local runtime error %d: %s", resp.StatusCode, string(raw))}
	}

	var parsed ollamaChatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return executor.Response{}, &executor.AdapterError{Kind: coretypes.ErrMalformedResponse, Err: err}
	}
	if parsed.Message.Content == "" {
		return executor.Response{}, &executor.AdapterError{Kind: coretypes.ErrMalformedResponse, Err: fmt.Errorf("empty content in local response")}
	}

	tokensIn := countTokens(input)
	tokensOut := countTokens(parsed.Message.Content)
	savedCost := computeCost(tokensIn, tokensOut, a.cloudPricing, a.fxRate)

	return executor.Response{
		Text:      parsed.Message.Content,
		TokensIn:  tokensIn,
		TokensOut: tokensOut,
		Cost:      0,
		SavedCost: savedCost,
	}, nil
}

func (a *LocalAdapter) CountTokens(text string) int { return countTokens(text) }

func (a *LocalAdapter) ValidateCredentials(ctx context.Context) bool {
	// Local runtimes have no credentials; reachability is the registry's
	// concern (internal/probe), not the adapter's.
	return true
}
