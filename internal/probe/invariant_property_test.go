package probe

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/SHINZO111/llm-smart-router/internal/coretypes"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// Every ModelEntry a reachable probe produces carries a non-nil
// RuntimeRef, regardless of how many models the endpoint reports.
func TestProbe_LocalEntriesAlwaysCarryRuntimeRef(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 8).Draw(rt, "numModels")
		names := make([]string, n)
		for i := range names {
			names[i] = rapid.StringMatching(`[a-z][a-z0-9-]{2,15}`).Draw(rt, "modelName")
		}

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			type tagsModel struct {
				Name  string `json:"name"`
				Model string `json:"model"`
			}
			models := make([]tagsModel, len(names))
			for i, name := range names {
				models[i] = tagsModel{Name: name, Model: name}
			}
			json.NewEncoder(w).Encode(map[string]any{"models": models})
		}))
		defer srv.Close()

		result := Probe(context.Background(), coretypes.RuntimeOllama, srv.URL, time.Second, AllowList{})
		require.NoError(t, result.Err)
		require.True(t, result.Descriptor.Reachable)
		require.Len(t, result.Models, n)

		for _, m := range result.Models {
			if m.RuntimeRef == nil {
				t.Fatalf("local entry %q missing RuntimeRef", m.ID)
			}
			if m.ProviderName != coretypes.ProviderLocal {
				t.Fatalf("local entry %q has provider %q, want local", m.ID, m.ProviderName)
			}
		}
	})
}
