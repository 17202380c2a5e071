// Package config implements the Config Loader (C3): parsing and
// validating the router's declarative YAML configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/SHINZO111/llm-smart-router/internal/coretypes"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// LocalModels configures the primary local runtime and its preferred
// model id.
type LocalModels struct {
	Endpoint string `yaml:"endpoint" validate:"required,url"`
	Model    string `yaml:"model"`
}

// CloudModels configures the default cloud provider and model.
type CloudModels struct {
	Provider string `yaml:"provider" validate:"required,oneof=anthropic openai google openrouter moonshot"`
	Model    string `yaml:"model" validate:"required"`
}

// Models is the models.* config section.
type Models struct {
	Local  LocalModels `yaml:"local"`
	Cloud  CloudModels `yaml:"cloud"`
	Vision string      `yaml:"vision"`
}

// IntelligentRouting is the routing.intelligent_routing.* config section.
type IntelligentRouting struct {
	Enabled             bool    `yaml:"enabled"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold" validate:"gte=0,lte=1"`
	TriagePrompt        string  `yaml:"triage_prompt"`
	ClassifierModel     string  `yaml:"classifier_model"`
}

// Routing is the routing.* config section.
type Routing struct {
	HardRules          []coretypes.HardRule `yaml:"hard_rules"`
	IntelligentRouting IntelligentRouting   `yaml:"intelligent_routing"`
}

// Fallback is the fallback.* config section.
type Fallback struct {
	Chain coretypes.FallbackChain `yaml:"chain" validate:"required,min=1"`
}

// Cost is the cost.* config section.
type Cost struct {
	Pricing map[string]coretypes.Pricing `yaml:"pricing"`
	FXRate  float64                      `yaml:"fx_rate"`
}

// Scanner is the scanner.* config section.
type Scanner struct {
	CacheTTLSeconds int `yaml:"cache_ttl" validate:"gte=1"`
}

// Database is the database.* config section.
type Database struct {
	Path string `yaml:"path" validate:"required"`
}

// Config is the full declarative configuration document.
type Config struct {
	Models   Models   `yaml:"models"`
	Routing  Routing  `yaml:"routing"`
	Fallback Fallback `yaml:"fallback"`
	Cost     Cost     `yaml:"cost"`
	Scanner  Scanner  `yaml:"scanner"`
	Database Database `yaml:"database"`
}

// CacheTTL returns Scanner.CacheTTLSeconds as a time.Duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Scanner.CacheTTLSeconds) * time.Second
}

var validate = validator.New()

// Load reads, parses, and validates the config file at path. Parse and
// validation failures are terminal — the caller should treat a non-nil
// error as ErrConfigInvalid and refuse to start.
func Load(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrConfigInvalid, path, err)
	}
	return Parse(buf)
}

// Parse parses and validates an in-memory YAML document.
func Parse(buf []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return nil, fmt.Errorf("%w: yaml parse: %v", ErrConfigInvalid, err)
	}
	applyDefaults(&cfg)
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}
	if err := crossCheck(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Scanner.CacheTTLSeconds == 0 {
		cfg.Scanner.CacheTTLSeconds = 300
	}
	if cfg.Cost.FXRate == 0 {
		cfg.Cost.FXRate = 1.0
	}
}

// crossCheck implements the cross-field validation struct tags can't
// express: unconditional hard rules warn rather than fail, pricing
// entries for unknown models warn, but a chain referencing a model that
// could never exist (malformed ref syntax) fails at load time.
func crossCheck(cfg *Config) error {
	for i, rule := range cfg.Routing.HardRules {
		if len(rule.Triggers) == 0 {
			logWarnf("hard rule %d has no triggers and will match unconditionally", i)
		}
		if rule.PreferredRef == "" {
			return fmt.Errorf("%w: hard rule %d has no preferred_model", ErrConfigInvalid, i)
		}
	}
	for _, ref := range cfg.Fallback.Chain {
		if !looksLikeRef(ref) {
			return fmt.Errorf("%w: fallback chain entry %q is not a valid model reference", ErrConfigInvalid, ref)
		}
	}
	if cfg.Models.Vision != "" && !looksLikeRef(cfg.Models.Vision) {
		return fmt.Errorf("%w: models.vision %q is not a valid model reference", ErrConfigInvalid, cfg.Models.Vision)
	}
	for model := range cfg.Cost.Pricing {
		if !chainContains(cfg.Fallback.Chain, model) && model != cfg.Models.Cloud.Provider+":"+cfg.Models.Cloud.Model {
			logWarnf("pricing entry for %q does not match any configured model", model)
		}
	}
	return nil
}

func looksLikeRef(ref string) bool {
	if ref == "local" || ref == "cloud" || ref == "claude" {
		return true
	}
	for i := 0; i < len(ref); i++ {
		if ref[i] == ':' {
			return i > 0 && i < len(ref)-1
		}
	}
	return false
}

func chainContains(chain coretypes.FallbackChain, ref string) bool {
	for _, r := range chain {
		if r == ref {
			return true
		}
	}
	return false
}

// logWarnf is a tiny indirection so tests can assert on loader warnings
// without wiring a full logger through every call site.
var logWarnf = func(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "config: warning: "+format+"\n", args...)
}
