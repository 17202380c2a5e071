// Package registry implements the Model Registry (C2): the process-wide
// table of reachable models, refreshed by internal/probe and consumed by
// internal/triage and internal/executor.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/SHINZO111/llm-smart-router/internal/coretypes"
	"github.com/SHINZO111/llm-smart-router/internal/probe"
	badger "github.com/dgraph-io/badger/v4"
)

const snapshotKey = "registry:snapshot"

// Snapshot is the JSON-serializable table persisted after every refresh.
type Snapshot struct {
	Entries map[string]coretypes.ModelEntry `json:"entries"`
	Meta    coretypes.RegistryMeta          `json:"meta"`
}

// Diff describes what changed between two refreshes.
type Diff struct {
	Added   []coretypes.ModelEntry
	Removed []coretypes.ModelEntry
	Updated []coretypes.ModelEntry
}

// Observer is notified, synchronously and after the table swap, of a
// refresh's diff. Observers must be non-blocking — offload slow work to a
// goroutine they own.
type Observer func(Diff)

// Publisher fans registry change notifications out to peer router
// instances. The only production implementation is the Redis-backed
// pub/sub bridge in redispublisher.go; tests use a no-op.
type Publisher interface {
	Publish(ctx context.Context, diff Diff) error
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, Diff) error { return nil }

// Config configures a Registry.
type Config struct {
	TTL            time.Duration
	PreferredLocal string // models.local.model: preferred local id
	DefaultCloud   string // models.cloud.provider:model, e.g. "anthropic:claude-sonnet"
	AllowList      probe.AllowList
	Targets        []probe.Target
	ProbeTimeout   time.Duration
	DB             *badger.DB // snapshot persistence; may be nil (in-memory only)
	Publisher      Publisher  // optional multi-instance fan-out; may be nil
}

// Registry holds the authoritative mapping of "provider:id" -> ModelEntry.
//
// Reads take the RWMutex's read side so lookups never block each other;
// writes (only Refresh) take the write side for the duration of the
// in-memory swap, never across the network calls that produce the new
// table.
type Registry struct {
	cfg Config

	mu      sync.RWMutex
	entries map[string]coretypes.ModelEntry
	meta    coretypes.RegistryMeta

	obsMu     sync.Mutex
	observers []Observer

	logger *slog.Logger
}

// New constructs a Registry and, if cfg.DB is set, loads its last
// persisted snapshot as the initial (stale-until-first-refresh) state.
func New(cfg Config, logger *slog.Logger) *Registry {
	if cfg.Publisher == nil {
		cfg.Publisher = noopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		cfg:     cfg,
		entries: make(map[string]coretypes.ModelEntry),
		logger:  logger,
	}
	if cfg.DB != nil {
		if snap, err := loadSnapshot(cfg.DB); err == nil {
			r.entries = snap.Entries
			r.meta = snap.Meta
			logger.Warn("loaded registry snapshot from disk; marked stale until next refresh", "entries", len(snap.Entries))
		}
	}
	return r
}

// Subscribe registers an Observer for future refreshes.
func (r *Registry) Subscribe(obs Observer) {
	r.obsMu.Lock()
	defer r.obsMu.Unlock()
	r.observers = append(r.observers, obs)
}

// Refresh invokes probes concurrently, diffs against the current table,
// atomically swaps, persists the snapshot, and fires observers.
func (r *Registry) Refresh(ctx context.Context) (Diff, error) {
	results := probe.ProbeAll(ctx, r.cfg.Targets, r.cfg.ProbeTimeout, r.cfg.AllowList)

	fresh := make(map[string]coretypes.ModelEntry)
	for _, res := range results {
		if !res.Descriptor.Reachable {
			r.logger.Warn("probe unreachable", "kind", res.Descriptor.Kind, "base_url", res.Descriptor.BaseURL, "diag", res.DiagKind)
			continue
		}
		for _, m := range res.Models {
			fresh[m.Ref()] = m
		}
	}
	// Cloud entries are static, configured, and never destroyed by probing
	// an unrelated local endpoint — carry them forward from the existing
	// table. A real deployment supplies these from internal/config.
	r.mu.RLock()
	for ref, e := range r.entries {
		if !e.IsLocal() {
			fresh[ref] = e
		}
	}
	r.mu.RUnlock()

	diff := computeDiff(r.currentLocked(), fresh)

	r.mu.Lock()
	r.entries = fresh
	r.meta = coretypes.RegistryMeta{LastScanAt: time.Now(), TTLSeconds: int(r.cfg.TTL.Seconds())}
	snap := Snapshot{Entries: copyEntries(fresh), Meta: r.meta}
	r.mu.Unlock()

	if r.cfg.DB != nil {
		if err := saveSnapshot(r.cfg.DB, snap); err != nil {
			r.logger.Error("failed to persist registry snapshot", "error", err)
		}
	}

	r.fireObservers(diff)
	if err := r.cfg.Publisher.Publish(ctx, diff); err != nil {
		r.logger.Warn("failed to publish registry diff to peers", "error", err)
	}
	return diff, nil
}

// RegisterCloud seeds or replaces the registry's cloud entries, keyed
// by their own Ref(). Unlike Refresh, this never touches local entries
// or the staleness clock: cloud models are config-defined, not probed,
// so every cloud entry must carry non-zero pricing from the moment
// Config is loaded, before any scan runs.
func (r *Registry) RegisterCloud(entries []coretypes.ModelEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range entries {
		r.entries[e.Ref()] = e
	}
}

func (r *Registry) currentLocked() map[string]coretypes.ModelEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyEntries(r.entries)
}

func (r *Registry) fireObservers(diff Diff) {
	if len(diff.Added) == 0 && len(diff.Removed) == 0 && len(diff.Updated) == 0 {
		return
	}
	r.obsMu.Lock()
	obs := append([]Observer(nil), r.observers...)
	r.obsMu.Unlock()
	for _, o := range obs {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					r.logger.Error("registry observer panicked", "recover", rec)
				}
			}()
			o(diff)
		}()
	}
}

func computeDiff(before, after map[string]coretypes.ModelEntry) Diff {
	var d Diff
	for ref, e := range after {
		if old, ok := before[ref]; !ok {
			d.Added = append(d.Added, e)
		} else if !entriesEqual(old, e) {
			d.Updated = append(d.Updated, e)
		}
	}
	for ref, e := range before {
		if _, ok := after[ref]; !ok {
			d.Removed = append(d.Removed, e)
		}
	}
	sortEntries(d.Added)
	sortEntries(d.Removed)
	sortEntries(d.Updated)
	return d
}

func sortEntries(es []coretypes.ModelEntry) {
	sort.Slice(es, func(i, j int) bool { return es[i].Ref() < es[j].Ref() })
}

func entriesEqual(a, b coretypes.ModelEntry) bool {
	ab, _ := json.Marshal(a)
	bb, _ := json.Marshal(b)
	return string(ab) == string(bb)
}

func copyEntries(m map[string]coretypes.ModelEntry) map[string]coretypes.ModelEntry {
	out := make(map[string]coretypes.ModelEntry, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Lookup resolves ref, which is either "provider:id", the bare word
// "local" (first reachable local entry, preferring cfg.PreferredLocal),
// or a cloud alias ("cloud"/"claude" resolve to cfg.DefaultCloud).
func (r *Registry) Lookup(ref string) (coretypes.ModelEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.meta.Stale(time.Now()) {
		r.logger.Warn("registry read while stale", "ref", ref)
	}

	switch ref {
	case "local":
		return r.firstLocalLocked()
	case "cloud", "claude":
		if e, ok := r.entries[r.cfg.DefaultCloud]; ok {
			return e, true
		}
		return coretypes.ModelEntry{}, false
	default:
		e, ok := r.entries[ref]
		return e, ok
	}
}

func (r *Registry) firstLocalLocked() (coretypes.ModelEntry, bool) {
	var fallback coretypes.ModelEntry
	found := false
	for _, e := range r.entries {
		if !e.IsLocal() {
			continue
		}
		if r.cfg.PreferredLocal != "" && e.ID == r.cfg.PreferredLocal {
			return e, true
		}
		if !found {
			fallback = e
			found = true
		}
	}
	return fallback, found
}

// ListAll, ListLocal and ListCloud return snapshots of the current table.
func (r *Registry) ListAll() []coretypes.ModelEntry  { return r.list(func(coretypes.ModelEntry) bool { return true }) }
func (r *Registry) ListLocal() []coretypes.ModelEntry { return r.list(coretypes.ModelEntry.IsLocal) }
func (r *Registry) ListCloud() []coretypes.ModelEntry {
	return r.list(func(e coretypes.ModelEntry) bool { return !e.IsLocal() })
}

func (r *Registry) list(pred func(coretypes.ModelEntry) bool) []coretypes.ModelEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]coretypes.ModelEntry, 0, len(r.entries))
	for _, e := range r.entries {
		if pred(e) {
			out = append(out, e)
		}
	}
	sortEntries(out)
	return out
}

// Meta returns the current freshness bookkeeping.
func (r *Registry) Meta() coretypes.RegistryMeta {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.meta
}

func loadSnapshot(db *badger.DB) (Snapshot, error) {
	var snap Snapshot
	err := db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(snapshotKey))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &snap)
		})
	})
	return snap, err
}

func saveSnapshot(db *badger.DB, snap Snapshot) error {
	buf, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal registry snapshot: %w", err)
	}
	return db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(snapshotKey), buf)
	})
}

// fallbackPriorityKey persists the operator-edited fallback chain
// override, equivalent to an on-disk fallback_priority.json.
const fallbackPriorityKey = "fallback:priority"

// SaveFallbackPriority persists an operator override of the config's
// fallback chain.
func SaveFallbackPriority(db *badger.DB, chain coretypes.FallbackChain) error {
	buf, err := json.Marshal(chain)
	if err != nil {
		return err
	}
	return db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(fallbackPriorityKey), buf)
	})
}

// LoadFallbackPriority reads the operator override, if one was ever
// saved.
func LoadFallbackPriority(db *badger.DB) (coretypes.FallbackChain, bool) {
	var chain coretypes.FallbackChain
	err := db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(fallbackPriorityKey))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &chain)
		})
	})
	if err != nil {
		return nil, false
	}
	return chain, true
}

// refString is a tiny helper used by tests and callers building refs by
// hand rather than through ModelEntry.Ref().
func refString(provider coretypes.Provider, id string) string {
	return strings.Join([]string{string(provider), id}, ":")
}
