// Package router implements the Router Facade (C8): the single public
// entry point that orchestrates triage, fallback execution, and
// conversation persistence, and exposes read-only statistics.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/SHINZO111/llm-smart-router/internal/config"
	"github.com/SHINZO111/llm-smart-router/internal/coretypes"
	"github.com/SHINZO111/llm-smart-router/internal/executor"
	"github.com/SHINZO111/llm-smart-router/internal/store"
	"github.com/SHINZO111/llm-smart-router/internal/triage"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/semaphore"
)

// MaxConcurrentRequests is the default backpressure limit.
const MaxConcurrentRequests = 16

// ErrBusy is returned immediately when the router is at its concurrency
// limit; the router never queues requests indefinitely.
var ErrBusy = fmt.Errorf("router: busy, retry later")

// Request is the public query shape accepted by Query.
type Request struct {
	Input         string
	HasImage      bool
	SessionID     string
	ForceModelRef string
}

// snapshot bundles one atomically-swappable generation of the
// collaborators reloadConfig replaces together, so in-flight requests
// that already read the pointer keep a self-consistent triage+executor
// pairing even if a reload lands mid-request.
type snapshot struct {
	triageEngine *triage.Engine
	exec         *executor.Executor
	cfg          *config.Config
}

// Adapters is the provider→backend map the router wires into both the
// fallback executor and the soft classifier.
type Adapters map[coretypes.Provider]executor.Adapter

// Router is the facade coordinating triage, fallback execution, and
// conversation persistence behind a single Query call.
type Router struct {
	registry executor.Registry
	adapters Adapters
	store    *store.Store
	logger   *slog.Logger

	current atomic.Pointer[snapshot]
	sem     *semaphore.Weighted

	stats Stats
}

// New builds a Router from an already-validated config, a live
// registry, and the set of backend adapters keyed by provider.
func New(cfg *config.Config, reg executor.Registry, adapters Adapters, st *store.Store, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		registry: reg,
		adapters: adapters,
		store:    st,
		logger:   logger,
		sem:      semaphore.NewWeighted(MaxConcurrentRequests),
	}
	r.stats.registry = prometheus.NewRegistry()
	r.stats.prom = newPromMetrics(r.stats.registry)
	r.current.Store(buildSnapshot(cfg, reg, adapters, logger))
	return r
}

func buildSnapshot(cfg *config.Config, reg executor.Registry, adapters Adapters, logger *slog.Logger) *snapshot {
	ir := cfg.Routing.IntelligentRouting
	var classifier triage.Classifier
	if ir.Enabled && ir.ClassifierModel != "" {
		classifier = &modelClassifier{registry: reg, adapters: adapters, modelRef: ir.ClassifierModel}
	}

	triageEngine := triage.New(triage.Config{
		HardRules: cfg.Routing.HardRules,
		Soft: coretypes.SoftRuleSpec{
			Enabled:             ir.Enabled,
			ClassifierModelRef:  ir.ClassifierModel,
			PromptTemplate:      ir.TriagePrompt,
			ConfidenceThreshold: ir.ConfidenceThreshold,
		},
		DefaultCloudRef: cfg.Models.Cloud.Provider + ":" + cfg.Models.Cloud.Model,
		FallbackChain:   cfg.Fallback.Chain,
		Classifier:      classifier,
		VisionModelRef:  cfg.Models.Vision,
	}, logger)

	exec := executor.New(executor.Config{
		Chain:    cfg.Fallback.Chain,
		Registry: reg,
		Adapters: adapters,
	}, logger)

	return &snapshot{triageEngine: triageEngine, exec: exec, cfg: cfg}
}

// ReloadConfig atomically swaps in a freshly parsed configuration.
// Requests already in flight keep their prior snapshot.
func (r *Router) ReloadConfig(cfg *config.Config) {
	r.current.Store(buildSnapshot(cfg, r.registry, r.adapters, r.logger))
	r.logger.Info("router config reloaded")
}

// Query is the single public entry point: triage → fallback execution
// → store writes → stats update.
func (r *Router) Query(ctx context.Context, req Request) (coretypes.RequestOutcome, error) {
	if !r.sem.TryAcquire(1) {
		return coretypes.RequestOutcome{}, ErrBusy
	}
	defer r.sem.Release(1)

	snap := r.current.Load()

	decision := snap.triageEngine.Triage(ctx, triage.Input{Text: req.Input, HasImage: req.HasImage}, triage.Options{ForceModelRef: req.ForceModelRef})

	convID, warning := r.persistUserMessage(ctx, req)

	outcome := snap.exec.Execute(ctx, req.Input, decision.PreferredRef)
	if warning != "" {
		outcome.Warning = warning
	}

	if convID != "" {
		r.appendAssistantMessage(ctx, convID, outcome, ctx.Err())
	}
	r.updateStats(req.HasImage, outcome)

	return outcome, nil
}

// persistUserMessage resolves or creates the conversation and appends
// the user's turn, on a best-effort basis: a store failure here never
// fails the request's text response. It is logged and classified as
// ErrStoreIO, and surfaced back as a warning for the outcome metadata
// instead of aborting before the backend ever runs.
func (r *Router) persistUserMessage(ctx context.Context, req Request) (convID, warning string) {
	convID, err := r.ensureConversation(ctx, req)
	if err != nil {
		r.logger.Error("failed to resolve conversation", "error", err, "error_kind", coretypes.ErrStoreIO)
		return "", "conversation history unavailable: " + err.Error()
	}

	if _, err := r.store.AppendMessage(ctx, convID, coretypes.Message{Role: coretypes.RoleUser, Content: req.Input}); err != nil {
		r.logger.Error("failed to persist user message", "error", err, "error_kind", coretypes.ErrStoreIO)
		return convID, "failed to persist message history: " + err.Error()
	}

	return convID, ""
}

// ensureConversation resolves SessionID to a conversation id, creating
// one on first contact.
func (r *Router) ensureConversation(ctx context.Context, req Request) (string, error) {
	if req.SessionID == "" {
		conv, err := r.store.CreateConversation(ctx, truncateTitle(req.Input), "")
		if err != nil {
			return "", err
		}
		return conv.ID, nil
	}
	// SessionID doubles as the conversation id: the caller is expected to
	// pass back whatever id CreateConversation returned on the first
	// exchange of a session.
	if _, err := r.store.GetConversation(ctx, req.SessionID); err == nil {
		return req.SessionID, nil
	}
	conv, err := r.store.CreateConversation(ctx, truncateTitle(req.Input), "")
	if err != nil {
		return "", err
	}
	return conv.ID, nil
}

func truncateTitle(input string) string {
	const maxLen = 80
	if len(input) <= maxLen {
		return input
	}
	return input[:maxLen]
}

// appendAssistantMessage persists the outcome's response, or, when the
// request was interrupted before any backend attempt succeeded, an
// "(interrupted)" system stub.
func (r *Router) appendAssistantMessage(ctx context.Context, convID string, outcome coretypes.RequestOutcome, deadlineErr error) {
	// AppendMessage must not itself be cancelled by the same deadline
	// that interrupted the backend call, or the stub could never be
	// written — give it a short grace window on a fresh context.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if outcome.Succeeded() {
		model := outcome.ModelRef
		if _, err := r.store.AppendMessage(writeCtx, convID, coretypes.Message{
			Role: coretypes.RoleAssistant, Content: outcome.Response, ModelRef: &model,
		}); err != nil {
			r.logger.Error("failed to persist assistant message", "error", err, "error_kind", coretypes.ErrStoreIO)
		}
		return
	}

	content := "(interrupted)"
	if deadlineErr == nil {
		content = "(all backends failed)"
	}
	if _, err := r.store.AppendMessage(writeCtx, convID, coretypes.Message{
		Role: coretypes.RoleSystem, Content: content,
	}); err != nil {
		r.logger.Error("failed to persist failure stub message", "error", err, "error_kind", coretypes.ErrStoreIO)
	}
}
