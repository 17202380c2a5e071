package triage

import (
	"context"
	"errors"
	"testing"

	"github.com/SHINZO111/llm-smart-router/internal/coretypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClassifier struct {
	response string
	err      error
}

func (f fakeClassifier) Classify(context.Context, string) (string, error) {
	return f.response, f.err
}

func TestTriage_ForcedOverrideShortCircuits(t *testing.T) {
	e := New(Config{}, nil)
	d := e.Triage(context.Background(), Input{Text: "anything"}, Options{ForceModelRef: "cloud:claude-opus"})
	assert.Equal(t, "cloud:claude-opus", d.PreferredRef)
	assert.Equal(t, 1.0, d.Confidence)
	assert.Equal(t, coretypes.OriginForced, d.Origin)
}

func TestTriage_VisionFastPath(t *testing.T) {
	e := New(Config{VisionModelRef: "local:qwen3-vl"}, nil)
	d := e.Triage(context.Background(), Input{Text: "describe this", HasImage: true}, Options{})
	assert.Equal(t, "local:qwen3-vl", d.PreferredRef)
	assert.Equal(t, coretypes.OriginHardRule, d.Origin)
}

func TestTriage_HardRuleDispatch(t *testing.T) {
	e := New(Config{
		HardRules: []coretypes.HardRule{
			{Triggers: []string{"見積"}, PreferredRef: "cloud:claude-sonnet", Justification: "cost estimate needs reasoning"},
		},
	}, nil)
	d := e.Triage(context.Background(), Input{Text: "このコスト見積もりを分析して"}, Options{})
	assert.Equal(t, "cloud:claude-sonnet", d.PreferredRef)
	assert.Equal(t, coretypes.OriginHardRule, d.Origin)
	assert.Equal(t, 1.0, d.Confidence)
}

func TestTriage_HardRuleFirstMatchWins(t *testing.T) {
	e := New(Config{
		HardRules: []coretypes.HardRule{
			{Triggers: []string{"code"}, PreferredRef: "local:qwen3-4b"},
			{Triggers: []string{"code"}, PreferredRef: "cloud:claude-sonnet"},
		},
	}, nil)
	d := e.Triage(context.Background(), Input{Text: "write some code"}, Options{})
	assert.Equal(t, "local:qwen3-4b", d.PreferredRef)
}

func TestTriage_EmptyTriggerListMatchesUnconditionally(t *testing.T) {
	e := New(Config{
		HardRules: []coretypes.HardRule{{Triggers: nil, PreferredRef: "local:qwen3-4b"}},
	}, nil)
	d := e.Triage(context.Background(), Input{Text: "whatever text"}, Options{})
	assert.Equal(t, "local:qwen3-4b", d.PreferredRef)
}

func TestTriage_SoftClassificationJSON(t *testing.T) {
	e := New(Config{
		Soft:       coretypes.SoftRuleSpec{Enabled: true, ConfidenceThreshold: 0.5},
		Classifier: fakeClassifier{response: `{"model":"cloud:claude-sonnet","confidence":0.9,"reason":"complex reasoning"}`},
	}, nil)
	d := e.Triage(context.Background(), Input{Text: "explain quantum entanglement"}, Options{})
	assert.Equal(t, "cloud:claude-sonnet", d.PreferredRef)
	assert.Equal(t, 0.9, d.Confidence)
	assert.Equal(t, coretypes.OriginClassifier, d.Origin)
}

func TestTriage_SoftClassificationHeuristicFallback(t *testing.T) {
	e := New(Config{
		Soft:       coretypes.SoftRuleSpec{Enabled: true, ConfidenceThreshold: 0.5},
		Classifier: fakeClassifier{response: "I think this is a complex task, best sent to the cloud model."},
	}, nil)
	d := e.Triage(context.Background(), Input{Text: "hello"}, Options{})
	assert.Equal(t, "cloud", d.PreferredRef)
	assert.Equal(t, 0.8, d.Confidence)
}

func TestTriage_ConfidenceUpgrade(t *testing.T) {
	e := New(Config{
		Soft:            coretypes.SoftRuleSpec{Enabled: true, ConfidenceThreshold: 0.75},
		DefaultCloudRef: "cloud:claude-sonnet",
		Classifier:      fakeClassifier{response: `{"model":"local","confidence":0.6,"reason":"simple"}`},
	}, nil)
	d := e.Triage(context.Background(), Input{Text: "hi"}, Options{})
	assert.Equal(t, "cloud:claude-sonnet", d.PreferredRef)
	assert.Equal(t, coretypes.OriginClassifier, d.Origin)
	assert.Equal(t, "simple", d.UpgradeReason)
}

func TestTriage_ClassifierUnreachableFallsBackToDefault(t *testing.T) {
	e := New(Config{
		Soft:          coretypes.SoftRuleSpec{Enabled: true},
		Classifier:    fakeClassifier{err: errors.New("connection refused")},
		FallbackChain: coretypes.FallbackChain{"local:qwen3-4b", "cloud:claude-sonnet"},
	}, nil)
	d := e.Triage(context.Background(), Input{Text: "hi"}, Options{})
	assert.Equal(t, "local:qwen3-4b", d.PreferredRef)
	assert.Equal(t, 0.5, d.Confidence)
	assert.Equal(t, coretypes.OriginDefault, d.Origin)
}

func TestTriage_ClassifierDisabledUsesDefault(t *testing.T) {
	e := New(Config{FallbackChain: coretypes.FallbackChain{"local:qwen3-4b"}}, nil)
	d := e.Triage(context.Background(), Input{Text: "hi"}, Options{})
	assert.Equal(t, "local:qwen3-4b", d.PreferredRef)
	assert.Equal(t, coretypes.OriginDefault, d.Origin)
}

func TestTriage_Deterministic(t *testing.T) {
	e := New(Config{
		HardRules:     []coretypes.HardRule{{Triggers: []string{"urgent"}, PreferredRef: "cloud:claude-sonnet"}},
		FallbackChain: coretypes.FallbackChain{"local:qwen3-4b"},
	}, nil)
	in := Input{Text: "this is urgent, please help"}
	first := e.Triage(context.Background(), in, Options{})
	for i := 0; i < 10; i++ {
		next := e.Triage(context.Background(), in, Options{})
		require.Equal(t, first, next)
	}
}

func TestParseClassifierResponse_MarkdownFence(t *testing.T) {
	raw := "```json\n{\"model\":\"local:qwen3-4b\",\"confidence\":0.95,\"reason\":\"trivial\"}\n```"
	result := parseClassifierResponse(raw)
	require.Equal(t, ClassifierOk, result.Kind)
	assert.Equal(t, "local:qwen3-4b", result.Decision.Model)
}

func TestParseClassifierResponse_Unparseable(t *testing.T) {
	result := parseClassifierResponse("I am not sure what to say here.")
	assert.Equal(t, ClassifierError, result.Kind)
}
