package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/SHINZO111/llm-smart-router/internal/coretypes"
	"github.com/SHINZO111/llm-smart-router/internal/executor"
)

const googleBaseURL = "https://generativelanguage.googleapis.com"

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiCandidate struct {
	Content geminiContent `json:"content"`
}

type geminiUsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
}

type geminiResponse struct {
	Candidates    []geminiCandidate    `json:"candidates"`
	UsageMetadata *geminiUsageMetadata `json:"usageMetadata,omitempty"`
}

type geminiErrorEnvelope struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// GoogleAdapter is a hand-rolled REST client for Gemini's
// generateContent dialect — no Go SDK for it is in use elsewhere in
// this module, so it speaks the REST wire format directly.
type GoogleAdapter struct {
	httpClient *http.Client
	apiKey     Credential
	model      string
	pricing    coretypes.Pricing
	fxRate     float64
}

// NewGoogleAdapter constructs an adapter for one Gemini model.
func NewGoogleAdapter(apiKey Credential, model string, pricing coretypes.Pricing, fxRate float64) *GoogleAdapter {
	return &GoogleAdapter{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		apiKey:     apiKey,
		model:      model,
		pricing:    pricing,
		fxRate:     fxRate,
	}
}

func (a *GoogleAdapter) Generate(ctx context.Context, input string) (executor.Response, error) {
	payload := geminiRequest{Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: input}}}}}
	body, err := json.Marshal(payload)
	if err != nil {
		return executor.Response{}, fmt.Errorf("marshal gemini request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", googleBaseURL, a.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return executor.Response{}, fmt.Errorf("build gemini request: %w", err)
	}
	req.Header.Set("x-goog-api-key", a.apiKey.String())
	req.Header.Set("content-type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return executor.Response{}, &executor.AdapterError{Kind: coretypes.ErrConnectionRefused, Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return executor.Response{}, &executor.AdapterError{
			Kind:       httpErrorKind(resp.StatusCode),
			RetryAfter: retryAfterDuration(resp.Header.Get("Retry-After")),
			Err:        fmt.Errorf("gemini error: %s", readGeminiErrMessage(raw)),
		}
	}

	var parsed geminiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return executor.Response{}, &executor.AdapterError{Kind: coretypes.ErrMalformedResponse, Err: err}
	}

	var text string
	for _, cand := range parsed.Candidates {
		for _, part := range cand.Content.Parts {
			text += part.Text
		}
	}
	if text == "" {
		return executor.Response{}, &executor.AdapterError{Kind: coretypes.ErrMalformedResponse, Err: fmt.Errorf("no text in gemini response")}
	}

	var tokensIn, tokensOut int
	if parsed.UsageMetadata != nil {
		tokensIn = parsed.UsageMetadata.PromptTokenCount
		tokensOut = parsed.UsageMetadata.CandidatesTokenCount
	} else {
		tokensIn = countTokens(input)
		tokensOut = countTokens(text)
	}

	cost := computeCost(tokensIn, tokensOut, a.pricing, a.fxRate)
	return executor.Response{Text: text, TokensIn: tokensIn, TokensOut: tokensOut, Cost: cost}, nil
}

func (a *GoogleAdapter) CountTokens(text string) int { return countTokens(text) }

func (a *GoogleAdapter) ValidateCredentials(ctx context.Context) bool {
	if !a.apiKey.Present() {
		return false
	}
	endpoint := fmt.Sprintf("%s/v1beta/models", googleBaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false
	}
	req.Header.Set("x-goog-api-key", a.apiKey.String())
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func readGeminiErrMessage(raw []byte) string {
	var env geminiErrorEnvelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Error.Message != "" {
		return fmt.Sprintf("%s (%s)", env.Error.Message, env.Error.Status)
	}
	return strings.TrimSpace(string(raw))
}
