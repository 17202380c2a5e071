package router

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/SHINZO111/llm-smart-router/internal/config"
	"github.com/SHINZO111/llm-smart-router/internal/coretypes"
	"github.com/SHINZO111/llm-smart-router/internal/executor"
	"github.com/SHINZO111/llm-smart-router/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRegistry struct {
	entries map[string]coretypes.ModelEntry
}

func (f *fakeRegistry) Lookup(ref string) (coretypes.ModelEntry, bool) {
	e, ok := f.entries[ref]
	return e, ok
}

type fakeAdapter struct {
	text string
	err  error
}

func (f *fakeAdapter) Generate(ctx context.Context, input string) (executor.Response, error) {
	if f.err != nil {
		return executor.Response{}, f.err
	}
	return executor.Response{Text: f.text}, nil
}

func newTestRouter(t *testing.T, reg *fakeRegistry, adapters Adapters) (*Router, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "conversations.db"), slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := &config.Config{
		Models:   config.Models{Cloud: config.CloudModels{Provider: "anthropic", Model: "claude-sonnet"}},
		Fallback: config.Fallback{Chain: coretypes.FallbackChain{"local:qwen3-4b", "anthropic:claude-sonnet"}},
	}
	r := New(cfg, reg, adapters, st, slog.Default())
	return r, st
}

func baseRegistry() *fakeRegistry {
	return &fakeRegistry{entries: map[string]coretypes.ModelEntry{
		"local:qwen3-4b":        {ID: "qwen3-4b", ProviderName: coretypes.ProviderLocal},
		"anthropic:claude-sonnet": {ID: "claude-sonnet", ProviderName: coretypes.ProviderAnthropic},
	}}
}

func TestQuery_SuccessPersistsBothMessages(t *testing.T) {
	reg := baseRegistry()
	adapters := Adapters{
		coretypes.ProviderLocal: &fakeAdapter{text: "hi from local"},
	}
	r, st := newTestRouter(t, reg, adapters)

	outcome, err := r.Query(context.Background(), Request{Input: "hello there"})
	require.NoError(t, err)
	assert.Equal(t, "local:qwen3-4b", outcome.ModelRef)
	assert.True(t, outcome.Succeeded())

	convs, err := st.ListConversations(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, convs, 1)

	full, err := st.GetConversation(context.Background(), convs[0].ID)
	require.NoError(t, err)
	require.Len(t, full.Messages, 2)
	assert.Equal(t, coretypes.RoleUser, full.Messages[0].Role)
	assert.Equal(t, coretypes.RoleAssistant, full.Messages[1].Role)
	require.NotNil(t, full.Messages[1].ModelRef)
	assert.Equal(t, "local:qwen3-4b", *full.Messages[1].ModelRef)
}

func TestQuery_AllBackendsFail_AppendsFailureStub(t *testing.T) {
	reg := baseRegistry()
	adapters := Adapters{
		coretypes.ProviderLocal:     &fakeAdapter{err: &executor.AdapterError{Kind: coretypes.ErrConnectionRefused}},
		coretypes.ProviderAnthropic: &fakeAdapter{err: &executor.AdapterError{Kind: coretypes.ErrAuth}},
	}
	r, st := newTestRouter(t, reg, adapters)

	outcome, err := r.Query(context.Background(), Request{Input: "hello"})
	require.NoError(t, err)
	assert.False(t, outcome.Succeeded())
	assert.Empty(t, outcome.ModelRef)

	convs, err := st.ListConversations(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, convs, 1)
	full, err := st.GetConversation(context.Background(), convs[0].ID)
	require.NoError(t, err)
	require.Len(t, full.Messages, 2)
	assert.Equal(t, coretypes.RoleSystem, full.Messages[1].Role)
	assert.Equal(t, "(all backends failed)", full.Messages[1].Content)
}

func TestQuery_StoreFailureSurfacesWarningButStillReturnsText(t *testing.T) {
	reg := baseRegistry()
	adapters := Adapters{
		coretypes.ProviderLocal: &fakeAdapter{text: "hi from local"},
	}
	r, st := newTestRouter(t, reg, adapters)
	require.NoError(t, st.Close())

	outcome, err := r.Query(context.Background(), Request{Input: "hello there"})
	require.NoError(t, err)
	assert.Equal(t, "local:qwen3-4b", outcome.ModelRef)
	assert.Equal(t, "hi from local", outcome.Response)
	assert.True(t, outcome.Succeeded())
	assert.NotEmpty(t, outcome.Warning)
}

func TestQuery_BusyWhenAtConcurrencyLimit(t *testing.T) {
	reg := baseRegistry()
	adapters := Adapters{coretypes.ProviderLocal: &fakeAdapter{text: "ok"}}
	r, _ := newTestRouter(t, reg, adapters)

	for i := 0; i < MaxConcurrentRequests; i++ {
		require.True(t, r.sem.TryAcquire(1))
	}
	_, err := r.Query(context.Background(), Request{Input: "overflow"})
	assert.ErrorIs(t, err, ErrBusy)
}

func TestReloadConfig_SwapsChainForNewRequests(t *testing.T) {
	reg := baseRegistry()
	reg.entries["openai:gpt-5"] = coretypes.ModelEntry{ID: "gpt-5", ProviderName: coretypes.ProviderOpenAI}
	adapters := Adapters{
		coretypes.ProviderLocal:  &fakeAdapter{err: &executor.AdapterError{Kind: coretypes.ErrConnectionRefused}},
		coretypes.ProviderOpenAI: &fakeAdapter{text: "from openai"},
	}
	r, _ := newTestRouter(t, reg, adapters)

	newCfg := &config.Config{
		Models:   config.Models{Cloud: config.CloudModels{Provider: "openai", Model: "gpt-5"}},
		Fallback: config.Fallback{Chain: coretypes.FallbackChain{"openai:gpt-5"}},
	}
	r.ReloadConfig(newCfg)

	outcome, err := r.Query(context.Background(), Request{Input: "hi", ForceModelRef: "openai:gpt-5"})
	require.NoError(t, err)
	assert.Equal(t, "openai:gpt-5", outcome.ModelRef)
}

func TestStats_AccumulateAcrossRequests(t *testing.T) {
	reg := baseRegistry()
	adapters := Adapters{coretypes.ProviderLocal: &fakeAdapter{text: "ok"}}
	r, _ := newTestRouter(t, reg, adapters)

	for i := 0; i < 3; i++ {
		_, err := r.Query(context.Background(), Request{Input: "hi"})
		require.NoError(t, err)
	}

	snap := r.Stats()
	assert.Equal(t, int64(3), snap.TotalRequests)
	assert.Equal(t, int64(3), snap.LocalUsed)
	assert.Equal(t, int64(0), snap.CloudUsed)
}
