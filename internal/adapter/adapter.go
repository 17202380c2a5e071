// Package adapter implements the Backend Adapter (C6): one file per
// provider, each translating the common request shape into a
// provider's native wire format and back into the unified response the
// executor expects.
package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/SHINZO111/llm-smart-router/internal/coretypes"
	"github.com/SHINZO111/llm-smart-router/internal/executor"
	"github.com/awnumar/memguard"
	"github.com/pkoukk/tiktoken-go"
)

// Adapter is the full per-provider contract. GenerateStream is
// deliberately absent: streaming is optional and out of scope for the
// router core.
type Adapter interface {
	Generate(ctx context.Context, input string) (executor.Response, error)
	CountTokens(text string) int
	ValidateCredentials(ctx context.Context) bool
}

// Credential holds API key material in a memguard locked buffer so it
// never appears in a heap dump, core dump, or accidental %+v log of an
// adapter's internal state.
type Credential struct {
	enclave *memguard.Enclave
}

// NewCredential seals key into a locked enclave. An empty key produces
// a zero-value Credential whose String always returns "".
func NewCredential(key string) Credential {
	if key == "" {
		return Credential{}
	}
	buf := memguard.NewBufferFromBytes([]byte(key))
	return Credential{enclave: buf.Seal()}
}

// String opens the enclave for the duration of the call and returns a
// copy of the plaintext key. Callers must not retain or log the
// result.
func (c Credential) String() string {
	if c.enclave == nil {
		return ""
	}
	buf, err := c.enclave.Open()
	if err != nil {
		return ""
	}
	defer buf.Destroy()
	return string(buf.Bytes())
}

// Present reports whether a key was configured.
func (c Credential) Present() bool { return c.enclave != nil }

// tokenizerEncoding is shared across adapters that don't return usage
// counts in their response body (local runtimes, Google's REST API).
const tokenizerEncoding = "cl100k_base"

var sharedTokenizer = mustTokenizer()

func mustTokenizer() *tiktoken.Tiktoken {
	enc, err := tiktoken.GetEncoding(tokenizerEncoding)
	if err != nil {
		// cl100k_base is embedded in tiktoken-go's bundled ranks; this
		// can only fail if the module's data files are missing.
		panic(fmt.Sprintf("adapter: loading tokenizer encoding: %v", err))
	}
	return enc
}

// countTokens approximates token count with the cl100k_base BPE
// encoding, shared by every adapter below that can't read a usage
// field from its own response.
func countTokens(text string) int {
	return len(sharedTokenizer.Encode(text, nil, nil))
}

// computeCost is (tokensIn/1e6)*priceIn + (tokensOut/1e6)*priceOut,
// scaled by the configured FX rate.
func computeCost(tokensIn, tokensOut int, pricing coretypes.Pricing, fxRate float64) float64 {
	if fxRate == 0 {
		fxRate = 1
	}
	cost := float64(tokensIn)/1e6*pricing.InputPerMTokens + float64(tokensOut)/1e6*pricing.OutputPerMTokens
	return cost * fxRate
}

// httpErrorKind maps an HTTP status code to the ErrorKind taxonomy.
func httpErrorKind(status int) coretypes.ErrorKind {
	switch {
	case status == 401 || status == 403:
		return coretypes.ErrAuth
	case status == 429:
		return coretypes.ErrHTTP429
	case status >= 500:
		return coretypes.ErrHTTP5xx
	case status >= 400:
		return coretypes.ErrHTTP4xx
	default:
		return coretypes.ErrMalformedResponse
	}
}

// retryAfterDuration parses an HTTP Retry-After header value expressed
// in seconds (the only form the providers in this package emit).
func retryAfterDuration(seconds string) time.Duration {
	var n int
	if _, err := fmt.Sscanf(seconds, "%d", &n); err != nil || n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}
