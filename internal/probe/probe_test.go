package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/SHINZO111/llm-smart-router/internal/coretypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbe_OllamaSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tags", r.URL.Path)
		w.Write([]byte(`{"models":[{"name":"qwen3-4b:latest","model":"qwen3-4b:latest"}]}`))
	}))
	defer srv.Close()

	result := Probe(context.Background(), coretypes.RuntimeOllama, srv.URL, time.Second, AllowList{})
	require.NoError(t, result.Err)
	assert.True(t, result.Descriptor.Reachable)
	require.Len(t, result.Models, 1)
	assert.Equal(t, "qwen3-4b:latest", result.Models[0].ID)
	assert.Equal(t, coretypes.ProviderLocal, result.Models[0].ProviderName)
}

func TestProbe_ConnectionRefused(t *testing.T) {
	result := Probe(context.Background(), coretypes.RuntimeOllama, "http://127.0.0.1:1", time.Second, AllowList{})
	assert.False(t, result.Descriptor.Reachable)
	assert.Error(t, result.Err)
}

func TestProbe_RejectsNonLoopback(t *testing.T) {
	result := Probe(context.Background(), coretypes.RuntimeOllama, "http://evil.example.com:11434", time.Second, AllowList{})
	assert.False(t, result.Descriptor.Reachable)
	require.Error(t, result.Err)
	assert.Contains(t, result.Err.Error(), "not loopback")
}

func TestProbe_AllowListPermitsExtraHost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"id":"local-vl-7b"}]}`))
	}))
	defer srv.Close()

	allow := NewAllowList([]string{"127.0.0.1"})
	result := Probe(context.Background(), coretypes.RuntimeLMStudio, srv.URL, time.Second, allow)
	require.NoError(t, result.Err)
	require.Len(t, result.Models, 1)
	assert.True(t, result.Models[0].HasCapability(coretypes.CapVision))
}

func TestProbeAll_PreservesOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"models":[]}`))
	}))
	defer srv.Close()

	targets := make([]Target, 20)
	for i := range targets {
		targets[i] = Target{Kind: coretypes.RuntimeOllama, BaseURL: srv.URL}
	}
	results := ProbeAll(context.Background(), targets, time.Second, AllowList{})
	require.Len(t, results, 20)
	for _, r := range results {
		assert.True(t, r.Descriptor.Reachable)
	}
}
