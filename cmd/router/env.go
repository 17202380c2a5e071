package main

import (
	"os"
	"strconv"
	"strings"
	"time"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDurationMS(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	ms, err := strconv.Atoi(v)
	if err != nil || ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

func envOrigins(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			origins = append(origins, p)
		}
	}
	return origins
}

// configPath resolves ROUTER_CONFIG_PATH, falling back to the
// conventional path a fresh install ships with.
func configPath() string {
	return envOr("ROUTER_CONFIG_PATH", "config.yaml")
}

// apiAddr resolves the HTTP bind/dial address the daemon listens on
// and the CLI client commands talk to.
func apiAddr() string {
	host := envOr("ROUTER_API_HOST", "127.0.0.1")
	port := envOr("ROUTER_API_PORT", "8080")
	return host + ":" + port
}

func storagePath(cfgDefault string) string {
	return envOr("ROUTER_STORAGE_PATH", cfgDefault)
}
