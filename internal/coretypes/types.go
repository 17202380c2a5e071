// Package coretypes holds the data model shared by every component of the
// router: runtime/model descriptors, routing rules and decisions, fallback
// chains, attempt records, and the conversation store's persistent shapes.
//
// Keeping these types in one leaf package avoids import cycles between
// registry, triage, executor and store, which all need to see the same
// vocabulary without depending on each other.
package coretypes

import "time"

// RuntimeKind identifies the wire dialect a local LLM runtime speaks.
type RuntimeKind string

const (
	RuntimeLMStudio     RuntimeKind = "lmstudio"
	RuntimeOllama       RuntimeKind = "ollama"
	RuntimeLlamaCpp     RuntimeKind = "llamacpp"
	RuntimeKoboldCpp     RuntimeKind = "koboldcpp"
	RuntimeJan          RuntimeKind = "jan"
	RuntimeGPT4All      RuntimeKind = "gpt4all"
	RuntimeVLLM         RuntimeKind = "vllm"
	RuntimeGenericOpenAI RuntimeKind = "generic-openai"
)

// RuntimeDescriptor identifies one local LLM endpoint.
//
// Invariant: BaseURL must resolve to loopback or an explicitly allow-listed
// host. A descriptor that fails this check must never be invoked for a
// routing request — see internal/probe's SSRF guard.
type RuntimeDescriptor struct {
	Kind         RuntimeKind `json:"kind"`
	BaseURL      string      `json:"base_url"`
	Reachable    bool        `json:"reachable"`
	LastProbedAt time.Time   `json:"last_probed_at"`
}

// Provider identifies who serves a ModelEntry.
type Provider string

const (
	ProviderLocal      Provider = "local"
	ProviderAnthropic  Provider = "anthropic"
	ProviderOpenAI     Provider = "openai"
	ProviderGoogle     Provider = "google"
	ProviderOpenRouter Provider = "openrouter"
	ProviderMoonshot   Provider = "moonshot"
)

// Capability is a single modelling capability a ModelEntry may advertise.
type Capability string

const (
	CapText      Capability = "text"
	CapVision    Capability = "vision"
	CapReasoning Capability = "reasoning"
	CapTools     Capability = "tools"
)

// Pricing holds per-million-token prices for a cloud model. Zero for local.
type Pricing struct {
	InputPerMTokens  float64 `yaml:"input_per_mtokens" json:"input_per_mtokens"`
	OutputPerMTokens float64 `yaml:"output_per_mtokens" json:"output_per_mtokens"`
}

// IsZero reports whether both prices are zero (the local-model case).
func (p Pricing) IsZero() bool {
	return p.InputPerMTokens == 0 && p.OutputPerMTokens == 0
}

// ModelEntry is one loadable model, local or cloud.
//
// Invariant: locally-hosted entries carry a non-nil RuntimeRef; cloud
// entries carry a nil RuntimeRef and non-zero Pricing.
type ModelEntry struct {
	ID                string             `json:"id"`
	DisplayName       string             `json:"display_name"`
	RuntimeRef        *RuntimeDescriptor `json:"runtime_ref,omitempty"`
	ProviderName      Provider           `json:"provider"`
	Capabilities      map[Capability]bool `json:"capabilities"`
	ContextTokens     int                `json:"context_tokens"`
	Pricing           Pricing            `json:"pricing"`
}

// Ref returns the canonical "provider:id" reference string for this entry.
func (m ModelEntry) Ref() string {
	return string(m.ProviderName) + ":" + m.ID
}

// HasCapability reports whether the entry advertises the given capability.
func (m ModelEntry) HasCapability(c Capability) bool {
	return m.Capabilities != nil && m.Capabilities[c]
}

// IsLocal reports whether the entry is served by a local runtime.
func (m ModelEntry) IsLocal() bool {
	return m.ProviderName == ProviderLocal
}

// RegistryMeta carries the freshness bookkeeping for a Registry snapshot.
type RegistryMeta struct {
	LastScanAt time.Time `json:"last_scan_at"`
	TTLSeconds int       `json:"ttl_seconds"`
}

// Stale reports whether the snapshot has outlived its TTL as of now.
func (m RegistryMeta) Stale(now time.Time) bool {
	return m.LastScanAt.Add(time.Duration(m.TTLSeconds) * time.Second).Before(now)
}

// HardRule is a deterministic triage rule: the first rule whose Triggers
// list contains a substring present in the input wins.
type HardRule struct {
	Triggers      []string `yaml:"triggers" json:"triggers"`
	PreferredRef  string   `yaml:"preferred_model" json:"preferred_model"`
	Justification string   `yaml:"justification" json:"justification"`
	// Regex is an opt-in extension: when set, it is matched instead of
	// plain substring containment. Substring matching stays the default.
	Regex string `yaml:"regex,omitempty" json:"regex,omitempty"`
}

// SoftRuleSpec configures the delegated-classifier triage step.
type SoftRuleSpec struct {
	Enabled             bool    `yaml:"enabled" json:"enabled"`
	ClassifierModelRef  string  `yaml:"classifier_model" json:"classifier_model"`
	PromptTemplate      string  `yaml:"triage_prompt" json:"triage_prompt"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold" json:"confidence_threshold"`
}

// TriageOrigin records which stage of the triage algorithm produced a
// TriageDecision.
type TriageOrigin string

const (
	OriginHardRule  TriageOrigin = "hard-rule"
	OriginClassifier TriageOrigin = "classifier"
	OriginDefault   TriageOrigin = "default"
	OriginForced    TriageOrigin = "forced"
)

// TriageDecision is the output of the triage engine.
type TriageDecision struct {
	PreferredRef string       `json:"preferred_ref"`
	Confidence   float64      `json:"confidence"`
	Reason       string       `json:"reason"`
	Origin       TriageOrigin `json:"origin"`
	// UpgradeReason preserves the pre-upgrade reason when a confidence
	// upgrade replaces a local recommendation.
	UpgradeReason string `json:"upgrade_reason,omitempty"`
}

// FallbackChain is an ordered, non-empty sequence of model references.
type FallbackChain []string

// ErrorKind enumerates the adapter failure taxonomy.
type ErrorKind string

const (
	ErrConnectionRefused ErrorKind = "connection-refused"
	ErrDNSFailure        ErrorKind = "dns-failure"
	ErrTCPTimeout        ErrorKind = "tcp-timeout"
	ErrHTTP5xx           ErrorKind = "http-5xx"
	ErrHTTP429           ErrorKind = "http-429"
	ErrHTTP4xx           ErrorKind = "http-4xx"
	ErrAuth              ErrorKind = "http-401-403"
	ErrMalformedResponse ErrorKind = "malformed-response"
	ErrModelNotLoaded    ErrorKind = "model-not-loaded"
	ErrContextTooLarge   ErrorKind = "context-too-large"
	ErrDeadlineExceeded  ErrorKind = "deadline-exceeded"
	ErrConfigInvalid     ErrorKind = "config-invalid"
	ErrStoreIO           ErrorKind = "store-io"
)

// Retryable reports the default retry policy for an ErrorKind. Callers must
// still honor the "malformed-response retryable only on first attempt"
// special case and the server-advertised retry-after for ErrHTTP429
// themselves; this only covers the static part of the table.
func (k ErrorKind) Retryable() bool {
	switch k {
	case ErrConnectionRefused, ErrDNSFailure, ErrTCPTimeout, ErrHTTP5xx, ErrHTTP429:
		return true
	default:
		return false
	}
}

// AttemptOutcome is the terminal state of one execution attempt.
type AttemptOutcome string

const (
	OutcomeSuccess           AttemptOutcome = "success"
	OutcomeTransientFailure  AttemptOutcome = "transient-failure"
	OutcomeTerminalFailure   AttemptOutcome = "terminal-failure"
	OutcomeSkipped           AttemptOutcome = "skipped"
)

// AttemptRecord is one execution attempt against one candidate model.
type AttemptRecord struct {
	ModelRef  string         `json:"model_ref"`
	StartedAt time.Time      `json:"started_at"`
	Elapsed   time.Duration  `json:"elapsed"`
	Outcome   AttemptOutcome `json:"outcome"`
	ErrorKind ErrorKind      `json:"error_kind,omitempty"`
	TokensIn  int            `json:"tokens_in"`
	TokensOut int            `json:"tokens_out"`
	Cost      float64        `json:"cost"`
}

// RequestOutcome is returned by the router facade for one request.
type RequestOutcome struct {
	ModelRef    string          `json:"model_ref,omitempty"`
	Response    string          `json:"response"`
	Attempts    []AttemptRecord `json:"attempts"`
	CostWarning bool            `json:"cost_warning"`
	SavedCost   float64         `json:"saved_cost"`
	Warning     string          `json:"warning,omitempty"`
}

// Succeeded reports whether any attempt in the outcome succeeded.
func (o RequestOutcome) Succeeded() bool {
	return o.ModelRef != "" && len(o.Attempts) > 0 &&
		o.Attempts[len(o.Attempts)-1].Outcome == OutcomeSuccess
}

// ConversationStatus is the lifecycle state of a Conversation.
type ConversationStatus string

const (
	StatusActive   ConversationStatus = "active"
	StatusPaused   ConversationStatus = "paused"
	StatusClosed   ConversationStatus = "closed"
	StatusArchived ConversationStatus = "archived"
)

// Role identifies the speaker of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Topic groups conversations into a (acyclic) forest.
type Topic struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	ParentID *string `json:"parent_id,omitempty"`
}

// Message is one append-only entry in a Conversation.
//
// Invariant: a Message with Role == RoleAssistant must carry a non-nil
// ModelRef.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	ModelRef  *string   `json:"model_ref,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation is a persistent session with its ordered messages.
//
// Invariant: UpdatedAt >= max(Messages[i].Timestamp).
type Conversation struct {
	ID        string             `json:"id"`
	Title     string             `json:"title"`
	TopicID   *string            `json:"topic_id,omitempty"`
	Status    ConversationStatus `json:"status"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
	Messages  []Message          `json:"messages"`
}
