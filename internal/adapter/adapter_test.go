package adapter

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/SHINZO111/llm-smart-router/internal/coretypes"
	"github.com/SHINZO111/llm-smart-router/internal/executor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredential_RoundTrips(t *testing.T) {
	c := NewCredential("sk-test-123")
	assert.True(t, c.Present())
	assert.Equal(t, "sk-test-123", c.String())
}

func TestCredential_EmptyIsAbsent(t *testing.T) {
	c := NewCredential("")
	assert.False(t, c.Present())
	assert.Equal(t, "", c.String())
}

func TestComputeCost(t *testing.T) {
	pricing := coretypes.Pricing{InputPerMTokens: 3, OutputPerMTokens: 15}
	cost := computeCost(1_000_000, 1_000_000, pricing, 1.0)
	assert.InDelta(t, 18.0, cost, 0.0001)
}

func TestHTTPErrorKind(t *testing.T) {
	assert.Equal(t, coretypes.ErrAuth, httpErrorKind(401))
	assert.Equal(t, coretypes.ErrAuth, httpErrorKind(403))
	assert.Equal(t, coretypes.ErrHTTP429, httpErrorKind(429))
	assert.Equal(t, coretypes.ErrHTTP5xx, httpErrorKind(503))
	assert.Equal(t, coretypes.ErrHTTP4xx, httpErrorKind(404))
}

func TestAnthropicAdapter_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		w.Write([]byte(`{"content":[{"type":"text","text":"hello there"}],"usage":{"input_tokens":5,"output_tokens":3}}`))
	}))
	defer srv.Close()

	a := NewAnthropicAdapter(NewCredential("test-key"), "claude-sonnet", coretypes.Pricing{InputPerMTokens: 3, OutputPerMTokens: 15}, 1.0)

	resp, err := callAgainstServer(t, srv, a)
	require.NoError(t, err)
	assert.Equal(t, "hello there", resp.Text)
	assert.Equal(t, 5, resp.TokensIn)
}

// callAgainstServer points the adapter's httpClient at srv for this one
// call by relying on http.Client.Transport being swappable; simpler
// than rewriting the package-level URL constant.
func callAgainstServer(t *testing.T, srv *httptest.Server, a *AnthropicAdapter) (executor.Response, error) {
	t.Helper()
	a.httpClient = &http.Client{Transport: redirectTransport{target: srv.URL}}
	return a.Generate(context.Background(), "hi")
}

type redirectTransport struct{ target string }

func (t redirectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	u := *req.URL
	parsedTarget, err := url.Parse(t.target)
	if err != nil {
		return nil, err
	}
	u.Scheme = parsedTarget.Scheme
	u.Host = parsedTarget.Host
	req.URL = &u
	req.Host = parsedTarget.Host
	return http.DefaultTransport.RoundTrip(req)
}

func TestAnthropicAdapter_AuthFailureIsTerminal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"type":"authentication_error","message":"bad key"}}`))
	}))
	defer srv.Close()

	a := NewAnthropicAdapter(NewCredential("bad-key"), "claude-sonnet", coretypes.Pricing{}, 1.0)
	_, err := callAgainstServer(t, srv, a)
	require.Error(t, err)
	var adapterErr *executor.AdapterError
	require.True(t, errors.As(err, &adapterErr))
	assert.Equal(t, coretypes.ErrAuth, adapterErr.Kind)
}

func TestLocalAdapter_ComputesSavedCostNotCost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":{"role":"assistant","content":"a local answer"},"done":true}`))
	}))
	defer srv.Close()

	a := NewLocalAdapter(srv.URL, "qwen3-4b", coretypes.Pricing{InputPerMTokens: 3, OutputPerMTokens: 15}, 1.0)
	resp, err := a.Generate(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "a local answer", resp.Text)
	assert.Equal(t, 0.0, resp.Cost)
	assert.Greater(t, resp.SavedCost, 0.0)
}

func TestLocalAdapter_ModelNotLoaded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	a := NewLocalAdapter(srv.URL, "missing-model", coretypes.Pricing{}, 1.0)
	_, err := a.Generate(context.Background(), "hello")
	require.Error(t, err)
	var adapterErr *executor.AdapterError
	require.True(t, errors.As(err, &adapterErr))
	assert.Equal(t, coretypes.ErrModelNotLoaded, adapterErr.Kind)
}
