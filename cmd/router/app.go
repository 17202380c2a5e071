package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/SHINZO111/llm-smart-router/internal/adapter"
	"github.com/SHINZO111/llm-smart-router/internal/config"
	"github.com/SHINZO111/llm-smart-router/internal/coretypes"
	"github.com/SHINZO111/llm-smart-router/internal/probe"
	"github.com/SHINZO111/llm-smart-router/internal/registry"
	"github.com/SHINZO111/llm-smart-router/internal/router"
	"github.com/SHINZO111/llm-smart-router/internal/store"
	badger "github.com/dgraph-io/badger/v4"
	"github.com/redis/go-redis/v9"
)

// localDialects is every runtime kind probe speaks. The declarative
// config names one local endpoint, not its wire dialect, so a fresh
// scan tries each dialect against it and keeps whichever answers.
var localDialects = []coretypes.RuntimeKind{
	coretypes.RuntimeOllama,
	coretypes.RuntimeLMStudio,
	coretypes.RuntimeLlamaCpp,
	coretypes.RuntimeVLLM,
	coretypes.RuntimeGenericOpenAI,
	coretypes.RuntimeJan,
	coretypes.RuntimeGPT4All,
	coretypes.RuntimeKoboldCpp,
}

// app bundles every long-lived collaborator the serve command and the
// reload path need.
type app struct {
	cfg         *config.Config
	logger      *slog.Logger
	registry    *registry.Registry
	store       *store.Store
	router      *router.Router
	badgerDB    *badger.DB
	redisClient *redis.Client
	stopPeers   func()
}

// buildApp wires C1-C8 together into the one request/response surface
// the serve command hosts.
func buildApp(logger *slog.Logger) (*app, error) {
	cfg, err := config.Load(configPath())
	if err != nil {
		return nil, err
	}

	dbPath := storagePath(cfg.Database.Path)
	st, err := store.Open(dbPath, logger)
	if err != nil {
		return nil, fmt.Errorf("router: open store: %w", err)
	}

	registryDBPath := filepath.Join(filepath.Dir(dbPath), "model_registry.badger")
	badgerDB, err := badger.Open(badger.DefaultOptions(registryDBPath).WithLogger(nil))
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("router: open registry snapshot db: %w", err)
	}

	applyFallbackOverride(cfg, badgerDB, logger)

	targets := make([]probe.Target, 0, len(localDialects))
	if cfg.Models.Local.Endpoint != "" {
		for _, kind := range localDialects {
			targets = append(targets, probe.Target{Kind: kind, BaseURL: cfg.Models.Local.Endpoint})
		}
	}

	var redisClient *redis.Client
	var publisher registry.Publisher
	if peerAddr := envOr("ROUTER_REGISTRY_PEERS", ""); peerAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: peerAddr})
		publisher = registry.NewRedisPublisher(redisClient)
	}

	reg := registry.New(registry.Config{
		TTL:            cfg.CacheTTL(),
		PreferredLocal: cfg.Models.Local.Model,
		DefaultCloud:   cfg.Models.Cloud.Provider + ":" + cfg.Models.Cloud.Model,
		AllowList:      probe.NewAllowList(envOrigins("ROUTER_ALLOWED_PROBE_HOSTS")),
		Targets:        targets,
		ProbeTimeout:   probe.DefaultTimeout,
		DB:             badgerDB,
		Publisher:      publisher,
	}, logger)

	reg.RegisterCloud(cloudEntries(cfg))

	var stopPeers func()
	if redisClient != nil {
		stop, err := reg.SubscribeRemotePeer(context.Background(), redisClient)
		if err != nil {
			logger.Warn("registry peer subscription failed, staying single-instance", "error", err)
		} else {
			stopPeers = stop
		}
	}

	adapters := buildAdapters(cfg)

	r := router.New(cfg, reg, adapters, st, logger)

	return &app{
		cfg: cfg, logger: logger, registry: reg, store: st, router: r,
		badgerDB: badgerDB, redisClient: redisClient, stopPeers: stopPeers,
	}, nil
}

// buildAdapters constructs one adapter per provider the fallback chain
// or cloud default can reference, reading each provider's credential
// from its conventional *_API_KEY environment variable.
func buildAdapters(cfg *config.Config) router.Adapters {
	cloudPricing := cfg.Cost.Pricing[cfg.Models.Cloud.Provider+":"+cfg.Models.Cloud.Model]
	adapters := router.Adapters{}

	if cfg.Models.Local.Endpoint != "" {
		adapters[coretypes.ProviderLocal] = adapter.NewLocalAdapter(
			cfg.Models.Local.Endpoint, cfg.Models.Local.Model, cloudPricing, cfg.Cost.FXRate)
	}

	pricingFor := func(provider coretypes.Provider) coretypes.Pricing {
		if cfg.Models.Cloud.Provider == string(provider) {
			return cloudPricing
		}
		return cfg.Cost.Pricing[string(provider)+":"+cfg.Models.Cloud.Model]
	}

	if key := envOr("ANTHROPIC_API_KEY", ""); key != "" {
		adapters[coretypes.ProviderAnthropic] = adapter.NewAnthropicAdapter(
			adapter.NewCredential(key), cfg.Models.Cloud.Model, pricingFor(coretypes.ProviderAnthropic), cfg.Cost.FXRate)
	}
	if key := envOr("OPENAI_API_KEY", ""); key != "" {
		adapters[coretypes.ProviderOpenAI] = adapter.NewOpenAIAdapter(
			adapter.NewCredential(key), cfg.Models.Cloud.Model, pricingFor(coretypes.ProviderOpenAI), cfg.Cost.FXRate)
	}
	if key := envOr("GOOGLE_API_KEY", ""); key != "" {
		adapters[coretypes.ProviderGoogle] = adapter.NewGoogleAdapter(
			adapter.NewCredential(key), cfg.Models.Cloud.Model, pricingFor(coretypes.ProviderGoogle), cfg.Cost.FXRate)
	}
	if key := envOr("OPENROUTER_API_KEY", ""); key != "" {
		adapters[coretypes.ProviderOpenRouter] = adapter.NewOpenRouterAdapter(
			adapter.NewCredential(key), cfg.Models.Cloud.Model, pricingFor(coretypes.ProviderOpenRouter), cfg.Cost.FXRate)
	}
	if key := envOr("MOONSHOT_API_KEY", ""); key != "" {
		adapters[coretypes.ProviderMoonshot] = adapter.NewMoonshotAdapter(
			adapter.NewCredential(key), cfg.Models.Cloud.Model, pricingFor(coretypes.ProviderMoonshot), cfg.Cost.FXRate)
	}
	return adapters
}

// cloudEntries builds the registry's cloud-side ModelEntry set straight
// from cfg.Cost.Pricing, the only source of truth for which cloud refs
// the fallback chain and hard rules are allowed to name — unlike local
// models, cloud models are never probed, so this is the one place that
// seeds them.
func cloudEntries(cfg *config.Config) []coretypes.ModelEntry {
	entries := make([]coretypes.ModelEntry, 0, len(cfg.Cost.Pricing))
	for ref, pricing := range cfg.Cost.Pricing {
		provider, model, ok := strings.Cut(ref, ":")
		if !ok {
			continue
		}
		entries = append(entries, coretypes.ModelEntry{
			ID:           model,
			DisplayName:  model,
			ProviderName: coretypes.Provider(provider),
			Pricing:      pricing,
		})
	}
	return entries
}

// applyFallbackOverride replaces cfg's fallback chain with the
// operator-edited priority file, if one was ever saved.
func applyFallbackOverride(cfg *config.Config, db *badger.DB, logger *slog.Logger) {
	chain, ok := registry.LoadFallbackPriority(db)
	if !ok {
		return
	}
	logger.Info("applying operator fallback priority override", "chain", chain)
	cfg.Fallback.Chain = chain
}

func (a *app) Close() {
	if a.stopPeers != nil {
		a.stopPeers()
	}
	if a.redisClient != nil {
		a.redisClient.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
	if a.badgerDB != nil {
		a.badgerDB.Close()
	}
}
