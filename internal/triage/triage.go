// Package triage implements the Triage Engine (C4): deciding which
// model should handle a request, in a strict six-step order.
package triage

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/SHINZO111/llm-smart-router/internal/coretypes"
)

// DefaultClassifierTimeout bounds the soft-classification round trip.
const DefaultClassifierTimeout = 10 * time.Second

// Input is the triage-relevant subset of an incoming request.
type Input struct {
	Text     string
	HasImage bool
}

// Options carries per-request overrides.
type Options struct {
	ForceModelRef string
}

// Classifier is the narrow interface the triage engine needs from a
// backend adapter: one text completion call. Kept decoupled from
// internal/adapter so triage never imports C6's provider-specific
// dependency tree.
type Classifier interface {
	Classify(ctx context.Context, prompt string) (string, error)
}

// Config wires the triage engine's rule set and collaborators.
type Config struct {
	HardRules         []coretypes.HardRule
	Soft              coretypes.SoftRuleSpec
	VisionModelRef    string
	DefaultCloudRef   string
	FallbackChain     coretypes.FallbackChain
	Classifier        Classifier // nil disables soft classification regardless of Soft.Enabled
	ClassifierTimeout time.Duration
}

// Engine evaluates Config's rules against requests.
type Engine struct {
	cfg    Config
	logger *slog.Logger
}

// New constructs an Engine.
func New(cfg Config, logger *slog.Logger) *Engine {
	if cfg.ClassifierTimeout <= 0 {
		cfg.ClassifierTimeout = DefaultClassifierTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{cfg: cfg, logger: logger}
}

// Triage runs the six-step algorithm and returns the resulting
// decision. It never returns an error: an unreachable or
// disabled classifier falls through to the fallback-default step
// rather than failing the request.
func (e *Engine) Triage(ctx context.Context, input Input, opts Options) coretypes.TriageDecision {
	if opts.ForceModelRef != "" {
		return coretypes.TriageDecision{
			PreferredRef: opts.ForceModelRef,
			Confidence:   1,
			Reason:       "forced by caller",
			Origin:       coretypes.OriginForced,
		}
	}

	if input.HasImage {
		return coretypes.TriageDecision{
			PreferredRef: e.cfg.VisionModelRef,
			Confidence:   1,
			Reason:       "input carries an image",
			Origin:       coretypes.OriginHardRule,
		}
	}

	if d, ok := e.matchHardRule(input.Text); ok {
		return d
	}

	if e.cfg.Soft.Enabled && e.cfg.Classifier != nil {
		if d, ok := e.classify(ctx, input.Text); ok {
			return e.applyConfidenceUpgrade(d)
		}
	}

	return e.fallbackDefault()
}

// matchHardRule iterates the configured rules in declaration order.
// An empty trigger list matches unconditionally; matching is plain,
// case-sensitive substring containment unless the rule carries the
// opt-in Regex extension.
func (e *Engine) matchHardRule(text string) (coretypes.TriageDecision, bool) {
	for _, rule := range e.cfg.HardRules {
		if ruleMatches(rule, text) {
			return coretypes.TriageDecision{
				PreferredRef: rule.PreferredRef,
				Confidence:   1,
				Reason:       rule.Justification,
				Origin:       coretypes.OriginHardRule,
			}, true
		}
	}
	return coretypes.TriageDecision{}, false
}

func ruleMatches(rule coretypes.HardRule, text string) bool {
	if len(rule.Triggers) == 0 {
		return true
	}
	if rule.Regex != "" {
		re, err := compiledRegexCache.get(rule.Regex)
		if err == nil && re.MatchString(text) {
			return true
		}
		return false
	}
	for _, trig := range rule.Triggers {
		if strings.Contains(text, trig) {
			return true
		}
	}
	return false
}

// classify invokes the soft classifier with the configured timeout and
// parses its response via parseClassifierResponse. It reports ok=false
// only for ClassifierError (unreachable classifier); a heuristic
// fallback parse still counts as a usable decision.
func (e *Engine) classify(ctx context.Context, text string) (coretypes.TriageDecision, bool) {
	cctx, cancel := context.WithTimeout(ctx, e.cfg.ClassifierTimeout)
	defer cancel()

	prompt := buildPrompt(e.cfg.Soft.PromptTemplate, text)
	raw, err := e.cfg.Classifier.Classify(cctx, prompt)
	if err != nil {
		e.logger.Warn("soft classifier unreachable, falling through to default", "error", err)
		return coretypes.TriageDecision{}, false
	}

	result := parseClassifierResponse(raw)
	switch result.Kind {
	case ClassifierOk:
		return coretypes.TriageDecision{
			PreferredRef: result.Decision.Model,
			Confidence:   result.Decision.Confidence,
			Reason:       result.Decision.Reason,
			Origin:       coretypes.OriginClassifier,
		}, true
	case ClassifierFallback:
		return coretypes.TriageDecision{
			PreferredRef: result.HeuristicRef,
			Confidence:   result.HeuristicConfidence,
			Reason:       "heuristic text match on unparsed classifier response",
			Origin:       coretypes.OriginClassifier,
		}, true
	default: // ClassifierError
		e.logger.Warn("classifier response unparseable and no heuristic token found")
		return coretypes.TriageDecision{}, false
	}
}

// applyConfidenceUpgrade implements step 5: a local recommendation
// below threshold is replaced with the default cloud ref, with the
// original reason preserved as metadata.
func (e *Engine) applyConfidenceUpgrade(d coretypes.TriageDecision) coretypes.TriageDecision {
	if !isLocalRef(d.PreferredRef) || d.Confidence >= e.cfg.Soft.ConfidenceThreshold {
		return d
	}
	return coretypes.TriageDecision{
		PreferredRef:  e.cfg.DefaultCloudRef,
		Confidence:    d.Confidence,
		Reason:        "confidence upgrade: local recommendation below threshold",
		Origin:        coretypes.OriginClassifier,
		UpgradeReason: d.Reason,
	}
}

// fallbackDefault implements step 6: the classifier disabled, absent,
// or unreachable.
func (e *Engine) fallbackDefault() coretypes.TriageDecision {
	var ref string
	if len(e.cfg.FallbackChain) > 0 {
		ref = e.cfg.FallbackChain[0]
	}
	return coretypes.TriageDecision{
		PreferredRef: ref,
		Confidence:   0.5,
		Reason:       "classifier disabled or unreachable",
		Origin:       coretypes.OriginDefault,
	}
}

func isLocalRef(ref string) bool {
	return ref == "local" || strings.HasPrefix(ref, "local:")
}

// buildPrompt substitutes {{input}} in template with text, or appends
// text to the template if no placeholder is present.
func buildPrompt(template, text string) string {
	const placeholder = "{{input}}"
	if strings.Contains(template, placeholder) {
		return strings.ReplaceAll(template, placeholder, text)
	}
	if template == "" {
		return text
	}
	return template + "\n\n" + text
}

// classifierJSON is the expected shape of a well-formed classifier
// response.
type classifierJSON struct {
	Model      string  `json:"model"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// ClassifierResultKind tags which variant of ClassifierResult is
// populated, since the classifier's JSON reply is parsed dynamically
// and may be malformed or unreachable.
type ClassifierResultKind int

const (
	ClassifierOk ClassifierResultKind = iota
	ClassifierFallback
	ClassifierError
)

// ClassifierResult is the tagged-union parse result of a raw
// classifier response.
type ClassifierResult struct {
	Kind                ClassifierResultKind
	Decision            classifierJSON
	HeuristicRef        string
	HeuristicConfidence float64
}

// parseClassifierResponse first tries to decode a JSON object out of
// raw (the model may wrap it in prose or a markdown fence); on failure
// it falls back to a token heuristic, and only reports ClassifierError
// if neither succeeds.
func parseClassifierResponse(raw string) ClassifierResult {
	if obj, ok := extractJSONObject(raw); ok {
		var parsed classifierJSON
		if err := json.Unmarshal([]byte(obj), &parsed); err == nil && parsed.Model != "" {
			return ClassifierResult{Kind: ClassifierOk, Decision: parsed}
		}
	}

	lower := strings.ToLower(raw)
	switch {
	case strings.Contains(lower, "cloud"), strings.Contains(lower, "complex"):
		return ClassifierResult{Kind: ClassifierFallback, HeuristicRef: "cloud", HeuristicConfidence: 0.8}
	case strings.Contains(lower, "local"), strings.Contains(lower, "simple"):
		return ClassifierResult{Kind: ClassifierFallback, HeuristicRef: "local", HeuristicConfidence: 0.8}
	default:
		return ClassifierResult{Kind: ClassifierError}
	}
}

// extractJSONObject returns the first balanced-looking {...} span in s.
func extractJSONObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}
