package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/SHINZO111/llm-smart-router/internal/coretypes"
)

// openAICompatDialect speaks the OpenAI-compatible GET /v1/models endpoint,
// used by LM Studio, llama.cpp's server, vLLM, Jan, and GPT4All's local
// server mode.
type openAICompatDialect struct{}

type openAIModelsResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

func (openAICompatDialect) Probe(ctx context.Context, baseURL string, client *http.Client) ([]coretypes.ModelEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+"/v1/models", nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("openai-compat probe: status %d", resp.StatusCode)
	}

	var body openAIModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("openai-compat probe: %w", err)
	}

	entries := make([]coretypes.ModelEntry, 0, len(body.Data))
	for _, m := range body.Data {
		entries = append(entries, coretypes.ModelEntry{
			ID:           m.ID,
			DisplayName:  m.ID,
			Capabilities: inferCapabilities(m.ID),
		})
	}
	return entries, nil
}

// koboldDialect speaks KoboldCpp's GET /api/v1/model, which names a
// single currently-loaded model rather than listing several.
type koboldDialect struct{}

type koboldModelResponse struct {
	Result string `json:"result"`
}

func (koboldDialect) Probe(ctx context.Context, baseURL string, client *http.Client) ([]coretypes.ModelEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+"/api/v1/model", nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("koboldcpp probe: status %d", resp.StatusCode)
	}

	var body koboldModelResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("koboldcpp probe: %w", err)
	}
	if body.Result == "" {
		return nil, nil
	}
	return []coretypes.ModelEntry{{
		ID:           body.Result,
		DisplayName:  body.Result,
		Capabilities: inferCapabilities(body.Result),
	}}, nil
}
