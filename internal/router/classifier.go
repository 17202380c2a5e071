package router

import (
	"context"
	"fmt"

	"github.com/SHINZO111/llm-smart-router/internal/coretypes"
	"github.com/SHINZO111/llm-smart-router/internal/executor"
)

// modelClassifier implements triage.Classifier by dispatching the
// triage prompt to the configured classifier model through the same
// registry/adapter wiring the executor uses — the soft classifier is
// just another backend call, not a bespoke HTTP client.
type modelClassifier struct {
	registry executor.Registry
	adapters map[coretypes.Provider]executor.Adapter
	modelRef string
}

func (c *modelClassifier) Classify(ctx context.Context, prompt string) (string, error) {
	entry, ok := c.registry.Lookup(c.modelRef)
	if !ok {
		return "", fmt.Errorf("router: classifier model %q not in registry", c.modelRef)
	}
	adapter, ok := c.adapters[entry.ProviderName]
	if !ok {
		return "", fmt.Errorf("router: no adapter registered for provider %q", entry.ProviderName)
	}
	resp, err := adapter.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}
