package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
models:
  local:
    endpoint: http://127.0.0.1:11434
    model: qwen3-4b
  cloud:
    provider: anthropic
    model: claude-sonnet-4
routing:
  hard_rules:
    - triggers: ["```", "def ", "func "]
      preferred_model: "local"
      justification: "code fences stay local"
  intelligent_routing:
    enabled: true
    confidence_threshold: 0.7
    classifier_model: "local"
fallback:
  chain: ["local", "anthropic:claude-sonnet-4"]
cost:
  pricing:
    anthropic:claude-sonnet-4:
      input_per_mtokens: 3.0
      output_per_mtokens: 15.0
  fx_rate: 1.0
scanner:
  cache_ttl: 60
database:
  path: /var/lib/router/router.db
`

func TestParse_ValidDocument(t *testing.T) {
	cfg, err := Parse([]byte(validYAML))
	require.NoError(t, err)
	assert.Equal(t, "qwen3-4b", cfg.Models.Local.Model)
	assert.Equal(t, "anthropic", cfg.Models.Cloud.Provider)
	assert.Len(t, cfg.Routing.HardRules, 1)
	assert.Equal(t, 60*time.Second, cfg.CacheTTL())
}

func TestParse_MissingFallbackChainFails(t *testing.T) {
	bad := `
models:
  local:
    endpoint: http://127.0.0.1:11434
  cloud:
    provider: anthropic
    model: claude-sonnet-4
database:
  path: /tmp/x.db
`
	_, err := Parse([]byte(bad))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfigInvalid))
}

func TestParse_MalformedFallbackRefFails(t *testing.T) {
	bad := `
models:
  local:
    endpoint: http://127.0.0.1:11434
  cloud:
    provider: anthropic
    model: claude-sonnet-4
fallback:
  chain: ["not-a-valid-ref:"]
database:
  path: /tmp/x.db
`
	_, err := Parse([]byte(bad))
	require.Error(t, err)
}

func TestParse_UnconditionalHardRuleWarnsNotFails(t *testing.T) {
	var warned string
	old := logWarnf
	logWarnf = func(format string, args ...any) { warned = format }
	defer func() { logWarnf = old }()

	doc := `
models:
  local:
    endpoint: http://127.0.0.1:11434
  cloud:
    provider: anthropic
    model: claude-sonnet-4
routing:
  hard_rules:
    - triggers: []
      preferred_model: "local"
fallback:
  chain: ["local"]
database:
  path: /tmp/x.db
`
	cfg, err := Parse([]byte(doc))
	require.NoError(t, err)
	assert.Len(t, cfg.Routing.HardRules, 1)
	assert.Contains(t, warned, "unconditionally")
}

func TestParse_DefaultsApplied(t *testing.T) {
	doc := `
models:
  local:
    endpoint: http://127.0.0.1:11434
  cloud:
    provider: anthropic
    model: claude-sonnet-4
fallback:
  chain: ["local"]
database:
  path: /tmp/x.db
`
	cfg, err := Parse([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, 300, cfg.Scanner.CacheTTLSeconds)
	assert.Equal(t, 1.0, cfg.Cost.FXRate)
}

func TestLoad_FromDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "router.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validYAML), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "claude-sonnet-4", cfg.Models.Cloud.Model)
}

func TestLoad_MissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfigInvalid))
}
