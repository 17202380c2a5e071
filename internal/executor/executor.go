// Package executor implements the Fallback Executor (C5): running a
// request against the preferred backend and, on failure, stepping
// through the configured fallback chain with retry-with-backoff inside
// each candidate.
package executor

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"

	"github.com/SHINZO111/llm-smart-router/internal/coretypes"
	"golang.org/x/time/rate"
)

// Response is the unified shape C6 adapters return to the executor.
type Response struct {
	Text      string
	TokensIn  int
	TokensOut int
	Cost      float64
	SavedCost float64
}

// AdapterError is the error shape adapters must produce so the
// executor can classify failures without inspecting transport
// internals. RetryAfter is non-zero only for rate-limited responses
// that advertised a server-side delay.
type AdapterError struct {
	Kind       coretypes.ErrorKind
	RetryAfter time.Duration
	Err        error
}

func (e *AdapterError) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Err.Error()
	}
	return string(e.Kind)
}

func (e *AdapterError) Unwrap() error { return e.Err }

// Adapter is the narrow interface executor needs from a C6 backend
// adapter.
type Adapter interface {
	Generate(ctx context.Context, input string) (Response, error)
}

// Registry is the narrow interface executor needs from C2.
type Registry interface {
	Lookup(ref string) (coretypes.ModelEntry, bool)
}

// RetryPolicy configures the per-candidate retry loop.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Base        float64
}

// DefaultRetryPolicy is the exponential-backoff policy used when a
// caller doesn't configure its own.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second, Base: 2}
}

// Config wires an Executor's collaborators.
type Config struct {
	Chain    coretypes.FallbackChain
	Registry Registry
	Adapters map[coretypes.Provider]Adapter
	Retry    RetryPolicy
	// Limiters paces requests per provider (ROUTER_RATE_LIMIT_MS).
	// A nil map or a missing provider entry means unlimited.
	Limiters map[coretypes.Provider]*rate.Limiter
	// sleep is overridable in tests so retry-backoff tests don't block
	// on real wall-clock delays.
	sleep func(ctx context.Context, d time.Duration)
}

// Executor runs requests through the fallback chain.
type Executor struct {
	cfg    Config
	logger *slog.Logger
}

// New constructs an Executor.
func New(cfg Config, logger *slog.Logger) *Executor {
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	if cfg.sleep == nil {
		cfg.sleep = sleepCtx
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{cfg: cfg, logger: logger}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// Execute builds the try order, walks it invoking the retry loop
// against each candidate, and stops at the first success.
func (e *Executor) Execute(ctx context.Context, input, preferredRef string) coretypes.RequestOutcome {
	tryOrder := buildTryOrder(preferredRef, e.cfg.Chain)

	var outcome coretypes.RequestOutcome
	hadPriorFailure := false

	for _, ref := range tryOrder {
		entry, ok := e.cfg.Registry.Lookup(ref)
		if !ok {
			outcome.Attempts = append(outcome.Attempts, coretypes.AttemptRecord{
				ModelRef: ref,
				Outcome:  coretypes.OutcomeSkipped,
			})
			continue
		}

		adapter, ok := e.cfg.Adapters[entry.ProviderName]
		if !ok {
			outcome.Attempts = append(outcome.Attempts, coretypes.AttemptRecord{
				ModelRef: entry.Ref(),
				Outcome:  coretypes.OutcomeSkipped,
			})
			continue
		}

		resp, attempts, ok := e.runCandidate(ctx, entry.Ref(), adapter, input)
		outcome.Attempts = append(outcome.Attempts, attempts...)
		for _, a := range attempts {
			if a.Outcome == coretypes.OutcomeTransientFailure || a.Outcome == coretypes.OutcomeTerminalFailure {
				hadPriorFailure = true
			}
		}
		if ok {
			outcome.ModelRef = entry.Ref()
			outcome.Response = resp.Text
			outcome.SavedCost = resp.SavedCost
			if hadPriorFailure && isLocalRef(preferredRef) && !entry.IsLocal() {
				outcome.CostWarning = true
			}
			return outcome
		}
	}

	return outcome
}

// buildTryOrder constructs [preferredRef] ++ (chain \ {preferredRef}).
func buildTryOrder(preferredRef string, chain coretypes.FallbackChain) []string {
	order := make([]string, 0, len(chain)+1)
	if preferredRef != "" {
		order = append(order, preferredRef)
	}
	for _, ref := range chain {
		if ref != preferredRef {
			order = append(order, ref)
		}
	}
	return order
}

// runCandidate executes the retry loop against one resolved candidate.
// Every physical attempt (including retries) produces its own
// AttemptRecord, so a Retry-After-honored second attempt is directly
// observable in the returned attempt list.
func (e *Executor) runCandidate(ctx context.Context, ref string, adapter Adapter, input string) (Response, []coretypes.AttemptRecord, bool) {
	var attempts []coretypes.AttemptRecord
	policy := e.cfg.Retry

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if lim := e.limiterFor(ref); lim != nil {
			if err := lim.Wait(ctx); err != nil {
				attempts = append(attempts, coretypes.AttemptRecord{
					ModelRef: ref, StartedAt: time.Now(), Outcome: coretypes.OutcomeTerminalFailure,
					ErrorKind: coretypes.ErrDeadlineExceeded,
				})
				return Response{}, attempts, false
			}
		}

		start := time.Now()
		resp, err := adapter.Generate(ctx, input)
		elapsed := time.Since(start)

		if err == nil {
			attempts = append(attempts, coretypes.AttemptRecord{
				ModelRef: ref, StartedAt: start, Elapsed: elapsed,
				Outcome: coretypes.OutcomeSuccess, TokensIn: resp.TokensIn, TokensOut: resp.TokensOut, Cost: resp.Cost,
			})
			return resp, attempts, true
		}

		kind, retryAfter := classifyErr(err)
		retryable := kind.Retryable()
		if kind == coretypes.ErrMalformedResponse && attempt > 1 {
			retryable = false
		}

		if !retryable || attempt == policy.MaxAttempts {
			attempts = append(attempts, coretypes.AttemptRecord{
				ModelRef: ref, StartedAt: start, Elapsed: elapsed,
				Outcome: coretypes.OutcomeTerminalFailure, ErrorKind: kind,
			})
			return Response{}, attempts, false
		}

		attempts = append(attempts, coretypes.AttemptRecord{
			ModelRef: ref, StartedAt: start, Elapsed: elapsed,
			Outcome: coretypes.OutcomeTransientFailure, ErrorKind: kind,
		})

		delay := retryAfter
		if delay <= 0 {
			delay = backoffDelay(policy, attempt)
		}
		e.cfg.sleep(ctx, delay)
	}
	return Response{}, attempts, false
}

func (e *Executor) limiterFor(ref string) *rate.Limiter {
	if e.cfg.Limiters == nil {
		return nil
	}
	entry, ok := e.cfg.Registry.Lookup(ref)
	if !ok {
		return nil
	}
	return e.cfg.Limiters[entry.ProviderName]
}

// backoffDelay computes min(baseDelay * base^attempt, maxDelay) with
// ±25% jitter.
func backoffDelay(policy RetryPolicy, attempt int) time.Duration {
	raw := float64(policy.BaseDelay) * pow(policy.Base, float64(attempt))
	if maxDelay := float64(policy.MaxDelay); raw > maxDelay {
		raw = maxDelay
	}
	jitter := 1 + (rand.Float64()*0.5 - 0.25) // [0.75, 1.25]
	return time.Duration(raw * jitter)
}

func pow(base, exp float64) float64 {
	result := 1.0
	for i := 0; i < int(exp); i++ {
		result *= base
	}
	return result
}

// classifyErr maps an adapter error to its ErrorKind and any
// server-advertised retry-after delay.
func classifyErr(err error) (coretypes.ErrorKind, time.Duration) {
	var ae *AdapterError
	if errors.As(err, &ae) {
		return ae.Kind, ae.RetryAfter
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return coretypes.ErrDeadlineExceeded, 0
	}
	return coretypes.ErrConnectionRefused, 0
}

func isLocalRef(ref string) bool {
	return ref == "local" || len(ref) >= 6 && ref[:6] == "local:"
}
