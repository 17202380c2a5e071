package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatch_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "router.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validYAML), 0o644))

	reloaded := make(chan *Config, 1)
	w, err := Watch(path, nil, func(c *Config) { reloaded <- c })
	require.NoError(t, err)
	defer w.Close()

	updated := validYAML + "\n" // trivial change, still valid
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	select {
	case cfg := <-reloaded:
		require.Equal(t, "claude-sonnet-4", cfg.Models.Cloud.Model)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}
}
