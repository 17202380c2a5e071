package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// apiClient is a thin HTTP client against a running `router serve`
// daemon: every subcommand but serve itself talks to the daemon over
// HTTP rather than re-wiring its internals into the CLI process.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient() *apiClient {
	return &apiClient{
		baseURL: "http://" + apiAddr(),
		http:    &http.Client{Timeout: 120 * time.Second},
	}
}

// do sends method/path with an optional JSON body and decodes the
// response body into out (if non-nil). It returns the HTTP status code
// alongside any transport error so callers can map it to an exit code.
func (c *apiClient) do(method, path string, body any, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if secret := envOr("ROUTER_JWT_SECRET", ""); secret != "" {
		if token := envOr("ROUTER_JWT_TOKEN", ""); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	return resp.StatusCode, nil
}

// statusExitCode maps an HTTP response status to the exit code family
// a CLI client command should return.
func statusExitCode(status int) int {
	switch {
	case status >= 200 && status < 300:
		return exitSuccess
	case status == http.StatusBadRequest || status == http.StatusUnauthorized:
		return exitUsageError
	case status == http.StatusServiceUnavailable || status == http.StatusBadGateway:
		return exitBackendFailed
	case status == http.StatusNotFound:
		return exitStoreError
	default:
		return exitStoreError
	}
}
