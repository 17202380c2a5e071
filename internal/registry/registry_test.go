package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/SHINZO111/llm-smart-router/internal/coretypes"
	"github.com/SHINZO111/llm-smart-router/internal/probe"
	"github.com/alicebob/miniredis/v2"
	badger "github.com/dgraph-io/badger/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	opts := badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR)
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestRegistry_RefreshAddsAndPersists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"models":[{"name":"qwen3-4b","model":"qwen3-4b"}]}`))
	}))
	defer srv.Close()
	db := openTestDB(t)

	reg := New(Config{
		TTL:          300 * time.Second,
		Targets:      []probe.Target{{Kind: coretypes.RuntimeOllama, BaseURL: srv.URL}},
		ProbeTimeout: time.Second,
		DB:           db,
	}, nil)

	var seen Diff
	reg.Subscribe(func(d Diff) { seen = d })

	diff, err := reg.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, diff.Added, 1)
	require.Len(t, seen.Added, 1)

	entries := reg.ListLocal()
	require.Len(t, entries, 1)
	require.Equal(t, "qwen3-4b", entries[0].ID)

	// Snapshot should survive a fresh Registry loading from the same DB.
	reloaded := New(Config{DB: db}, nil)
	require.Len(t, reloaded.ListAll(), 1)
}

func TestRegistry_LookupLocalPrefersConfigured(t *testing.T) {
	reg := New(Config{PreferredLocal: "granite4:micro-h"}, nil)
	reg.mu.Lock()
	reg.entries = map[string]coretypes.ModelEntry{
		"local:qwen3-4b":       {ID: "qwen3-4b", ProviderName: coretypes.ProviderLocal},
		"local:granite4:micro-h": {ID: "granite4:micro-h", ProviderName: coretypes.ProviderLocal},
	}
	reg.mu.Unlock()

	e, ok := reg.Lookup("local")
	require.True(t, ok)
	require.Equal(t, "granite4:micro-h", e.ID)
}

func TestRegistry_LookupCloudAlias(t *testing.T) {
	reg := New(Config{DefaultCloud: "anthropic:claude-sonnet"}, nil)
	reg.mu.Lock()
	reg.entries = map[string]coretypes.ModelEntry{
		"anthropic:claude-sonnet": {ID: "claude-sonnet", ProviderName: coretypes.ProviderAnthropic, Pricing: coretypes.Pricing{InputPerMTokens: 3}},
	}
	reg.mu.Unlock()

	e, ok := reg.Lookup("cloud")
	require.True(t, ok)
	require.Equal(t, "claude-sonnet", e.ID)

	e, ok = reg.Lookup("claude")
	require.True(t, ok)
	require.Equal(t, "claude-sonnet", e.ID)
}

func TestRegistry_StaleAfterTTL(t *testing.T) {
	reg := New(Config{TTL: time.Nanosecond}, nil)
	reg.mu.Lock()
	reg.meta = coretypes.RegistryMeta{LastScanAt: time.Now().Add(-time.Hour), TTLSeconds: 1}
	reg.mu.Unlock()
	require.True(t, reg.Meta().Stale(time.Now()))
}

func TestRegistry_RedisFanOut(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	publisher := NewRedisPublisher(client)

	receiver := New(Config{}, nil)
	stop, err := receiver.SubscribeRemotePeer(context.Background(), client)
	require.NoError(t, err)
	defer stop()

	var seen Diff
	received := make(chan struct{})
	receiver.Subscribe(func(d Diff) {
		seen = d
		close(received)
	})

	entry := coretypes.ModelEntry{ID: "qwen3-4b", ProviderName: coretypes.ProviderLocal}
	err = publisher.Publish(context.Background(), Diff{Added: []coretypes.ModelEntry{entry}})
	require.NoError(t, err)

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for remote diff to apply")
	}
	require.Len(t, seen.Added, 1)
	require.Equal(t, "qwen3-4b", seen.Added[0].ID)

	e, ok := receiver.Lookup("local:qwen3-4b")
	require.True(t, ok)
	require.Equal(t, "qwen3-4b", e.ID)
}
