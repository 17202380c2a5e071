package adapter

import (
	"context"
	"errors"

	"github.com/SHINZO111/llm-smart-router/internal/coretypes"
	"github.com/SHINZO111/llm-smart-router/internal/executor"
	openai "github.com/sashabaranov/go-openai"
)

// openAICompatAdapter backs OpenAI, OpenRouter, and Moonshot: all three
// speak the OpenAI chat-completions dialect against a different base
// URL, so github.com/sashabaranov/go-openai serves all three with a
// client config swap.
type openAICompatAdapter struct {
	client  *openai.Client
	model   string
	pricing coretypes.Pricing
	fxRate  float64
	apiKey  Credential
}

func newOpenAICompatAdapter(apiKey Credential, baseURL, model string, pricing coretypes.Pricing, fxRate float64) *openAICompatAdapter {
	cfg := openai.DefaultConfig(apiKey.String())
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &openAICompatAdapter{
		client:  openai.NewClientWithConfig(cfg),
		model:   model,
		pricing: pricing,
		fxRate:  fxRate,
		apiKey:  apiKey,
	}
}

func (a *openAICompatAdapter) Generate(ctx context.Context, input string) (executor.Response, error) {
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: input},
		},
	})
	if err != nil {
		return executor.Response{}, classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return executor.Response{}, &executor.AdapterError{Kind: coretypes.ErrMalformedResponse, Err: errors.New("no choices in response")}
	}

	text := resp.Choices[0].Message.Content
	cost := computeCost(resp.Usage.PromptTokens, resp.Usage.CompletionTokens, a.pricing, a.fxRate)
	return executor.Response{
		Text:      text,
		TokensIn:  resp.Usage.PromptTokens,
		TokensOut: resp.Usage.CompletionTokens,
		Cost:      cost,
	}, nil
}

func (a *openAICompatAdapter) CountTokens(text string) int { return countTokens(text) }

func (a *openAICompatAdapter) ValidateCredentials(ctx context.Context) bool {
	if !a.apiKey.Present() {
		return false
	}
	_, err := a.client.ListModels(ctx)
	return err == nil
}

// classifyOpenAIError maps a go-openai error into the executor's
// AdapterError taxonomy, preferring the structured *openai.APIError
// when present over a generic transport failure.
func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &executor.AdapterError{
			Kind:       httpErrorKind(apiErr.HTTPStatusCode),
			RetryAfter: 0,
			Err:        err,
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &executor.AdapterError{Kind: httpErrorKind(reqErr.HTTPStatusCode), Err: err}
	}
	return &executor.AdapterError{Kind: coretypes.ErrConnectionRefused, Err: err}
}

// OpenAIAdapter is the openai_compat adapter configured against the
// official OpenAI API.
type OpenAIAdapter struct{ *openAICompatAdapter }

// NewOpenAIAdapter constructs an adapter for an OpenAI chat model.
func NewOpenAIAdapter(apiKey Credential, model string, pricing coretypes.Pricing, fxRate float64) *OpenAIAdapter {
	return &OpenAIAdapter{newOpenAICompatAdapter(apiKey, "", model, pricing, fxRate)}
}

// OpenRouterAdapter is the openai_compat adapter configured against
// OpenRouter's gateway, which re-exposes many providers' models behind
// one OpenAI-shaped endpoint.
type OpenRouterAdapter struct{ *openAICompatAdapter }

const openRouterBaseURL = "https://openrouter.ai/api/v1"

// NewOpenRouterAdapter constructs an adapter for a model served
// through OpenRouter.
func NewOpenRouterAdapter(apiKey Credential, model string, pricing coretypes.Pricing, fxRate float64) *OpenRouterAdapter {
	return &OpenRouterAdapter{newOpenAICompatAdapter(apiKey, openRouterBaseURL, model, pricing, fxRate)}
}

// MoonshotAdapter is the openai_compat adapter configured against
// Moonshot AI's Kimi models, which speak the same chat-completions
// wire format as OpenAI.
type MoonshotAdapter struct{ *openAICompatAdapter }

const moonshotBaseURL = "https://api.moonshot.cn/v1"

// NewMoonshotAdapter constructs an adapter for a Moonshot Kimi model.
func NewMoonshotAdapter(apiKey Credential, model string, pricing coretypes.Pricing, fxRate float64) *MoonshotAdapter {
	return &MoonshotAdapter{newOpenAICompatAdapter(apiKey, moonshotBaseURL, model, pricing, fxRate)}
}
