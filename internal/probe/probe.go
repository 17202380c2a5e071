// Package probe implements Runtime Probe (C1): speaking each local LLM
// runtime's "list models" dialect over HTTP and returning a normalized
// descriptor. Probes are pure functions of (kind, baseURL) — they never
// mutate shared state; internal/registry consumes their return values.
package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/SHINZO111/llm-smart-router/internal/coretypes"
	"golang.org/x/sync/semaphore"
)

// DefaultTimeout is the suggested per-probe timeout: probes sit on the
// startup/refresh critical path, so they must fail fast.
const DefaultTimeout = 3 * time.Second

// maxInFlight bounds probeAll's concurrency.
const maxInFlight = 8

// Result is what one probe call returns for one runtime.
type Result struct {
	Descriptor coretypes.RuntimeDescriptor
	Models     []coretypes.ModelEntry
	DiagKind   string // "connection-refused" | "timeout" | "bad-response", empty on success
	Err        error
}

// loopbackHosts is the default SSRF allow-list: only loopback addresses
// may be probed unless explicitly added via WithAllowedHosts.
var loopbackHosts = map[string]bool{
	"localhost": true,
	"127.0.0.1": true,
	"::1":       true,
}

// AllowList is an explicit allow-list knob, since a hardcoded
// loopback-only check would reject legitimate LAN-hosted runtimes.
// Empty AllowList means loopback-only.
type AllowList struct {
	extra map[string]bool
}

// NewAllowList builds an AllowList from operator-configured hostnames, in
// addition to the built-in loopback set.
func NewAllowList(hosts []string) AllowList {
	extra := make(map[string]bool, len(hosts))
	for _, h := range hosts {
		extra[strings.ToLower(h)] = true
	}
	return AllowList{extra: extra}
}

// Allows reports whether baseURL's host may be probed/invoked.
func (a AllowList) Allows(baseURL string) bool {
	u, err := url.Parse(baseURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if loopbackHosts[host] {
		return true
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		return true
	}
	return a.extra[host]
}

// Prober speaks one runtime kind's dialect.
type Prober interface {
	Probe(ctx context.Context, baseURL string, client *http.Client) ([]coretypes.ModelEntry, error)
}

var dialects = map[coretypes.RuntimeKind]Prober{
	coretypes.RuntimeOllama:        ollamaDialect{},
	coretypes.RuntimeLMStudio:      openAICompatDialect{},
	coretypes.RuntimeLlamaCpp:      openAICompatDialect{},
	coretypes.RuntimeVLLM:          openAICompatDialect{},
	coretypes.RuntimeGenericOpenAI: openAICompatDialect{},
	coretypes.RuntimeJan:           openAICompatDialect{},
	coretypes.RuntimeGPT4All:       openAICompatDialect{},
	coretypes.RuntimeKoboldCpp:     koboldDialect{},
}

// Probe performs one HTTP call to the kind-specific "list models" endpoint
// and returns a fresh RuntimeDescriptor plus model stubs.
func Probe(ctx context.Context, kind coretypes.RuntimeKind, baseURL string, timeout time.Duration, allow AllowList) Result {
	now := time.Now()
	desc := coretypes.RuntimeDescriptor{Kind: kind, BaseURL: baseURL, LastProbedAt: now}

	if !allow.Allows(baseURL) {
		desc.Reachable = false
		return Result{Descriptor: desc, DiagKind: "bad-response", Err: fmt.Errorf("probe: %q is not loopback or allow-listed", baseURL)}
	}

	dialect, ok := dialects[kind]
	if !ok {
		return Result{Descriptor: desc, DiagKind: "bad-response", Err: fmt.Errorf("probe: unknown runtime kind %q", kind)}
	}

	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client := &http.Client{Timeout: timeout}
	models, err := dialect.Probe(ctx, baseURL, client)
	if err != nil {
		desc.Reachable = false
		return Result{Descriptor: desc, DiagKind: diagnose(err), Err: err}
	}

	desc.Reachable = true
	for i := range models {
		models[i].RuntimeRef = &desc
		models[i].ProviderName = coretypes.ProviderLocal
	}
	return Result{Descriptor: desc, Models: models}
}

func diagnose(err error) string {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return "connection-refused"
	}
	return "bad-response"
}

// Target names one runtime to probe, for use with ProbeAll.
type Target struct {
	Kind    coretypes.RuntimeKind
	BaseURL string
}

// ProbeAll runs probes in parallel, bounded to maxInFlight in-flight calls.
// The result slice's order matches the input order.
func ProbeAll(ctx context.Context, targets []Target, perProbeTimeout time.Duration, allow AllowList) []Result {
	results := make([]Result, len(targets))
	sem := semaphore.NewWeighted(maxInFlight)
	done := make(chan int, len(targets))

	for i, t := range targets {
		i, t := i, t
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i] = Result{Descriptor: coretypes.RuntimeDescriptor{Kind: t.Kind, BaseURL: t.BaseURL}, Err: err}
			done <- i
			continue
		}
		go func() {
			defer sem.Release(1)
			results[i] = Probe(ctx, t.Kind, t.BaseURL, perProbeTimeout, allow)
			done <- i
		}()
	}
	for range targets {
		<-done
	}
	return results
}
