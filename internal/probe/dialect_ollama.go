package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/SHINZO111/llm-smart-router/internal/coretypes"
)

// ollamaDialect speaks Ollama's GET /api/tags, adapted from the response
// shape used by llama-swap's Ollama-compatible proxy handlers.
type ollamaDialect struct{}

type ollamaTagsResponse struct {
	Models []struct {
		Name    string `json:"name"`
		Model   string `json:"model"`
		Details struct {
			Family            string `json:"family"`
			ParameterSize     string `json:"parameter_size"`
		} `json:"details"`
	} `json:"models"`
}

func (ollamaDialect) Probe(ctx context.Context, baseURL string, client *http.Client) ([]coretypes.ModelEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("ollama probe: status %d", resp.StatusCode)
	}

	var body ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("ollama probe: %w", err)
	}

	entries := make([]coretypes.ModelEntry, 0, len(body.Models))
	for _, m := range body.Models {
		id := m.Model
		if id == "" {
			id = m.Name
		}
		entries = append(entries, coretypes.ModelEntry{
			ID:           id,
			DisplayName:  m.Name,
			Capabilities: inferCapabilities(id),
		})
	}
	return entries, nil
}

// inferCapabilities applies substring heuristics to a model id:
// "vision"/"vl" implies vision support, "reason"/"r1"/"think" implies
// a reasoning model, everything gets text and, conservatively, tools.
func inferCapabilities(id string) map[coretypes.Capability]bool {
	lower := strings.ToLower(id)
	caps := map[coretypes.Capability]bool{coretypes.CapText: true}
	if strings.Contains(lower, "vision") || strings.Contains(lower, "-vl") || strings.Contains(lower, "vl-") {
		caps[coretypes.CapVision] = true
	}
	if strings.Contains(lower, "reason") || strings.Contains(lower, "think") || strings.Contains(lower, "r1") {
		caps[coretypes.CapReasoning] = true
	}
	if strings.Contains(lower, "tool") || strings.Contains(lower, "function") || strings.Contains(lower, "instruct") {
		caps[coretypes.CapTools] = true
	}
	return caps
}
