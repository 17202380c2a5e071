package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/SHINZO111/llm-smart-router/internal/config"
	"github.com/SHINZO111/llm-smart-router/internal/httpapi"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the router as a long-lived HTTP daemon",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := buildApp(rootLogger)
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), err)
		if errors.Is(err, config.ErrConfigInvalid) {
			return exitErr(exitConfigError)
		}
		return exitErr(exitStoreError)
	}
	defer a.Close()

	if _, err := a.registry.Refresh(context.Background()); err != nil {
		a.logger.Warn("initial registry scan failed, starting with a stale/empty table", "error", err)
	}

	watcher, err := config.Watch(configPath(), a.logger, func(cfg *config.Config) {
		applyFallbackOverride(cfg, a.badgerDB, a.logger)
		a.router.ReloadConfig(cfg)
	})
	if err != nil {
		a.logger.Warn("config file watch unavailable, reload will require POST /router/config/reload", "error", err)
	} else {
		defer watcher.Close()
	}

	srv := httpapi.NewServer(a.router, a.store, a.registry, httpapi.Options{
		ConfigPath:     configPath(),
		JWTSecret:      envOr("ROUTER_JWT_SECRET", ""),
		AllowedOrigins: envOrigins("ROUTER_ALLOWED_ORIGINS"),
		RateLimit:      envDurationMS("ROUTER_RATE_LIMIT_MS", 0),
		FallbackDB:     a.badgerDB,
	}, a.logger)

	addr := apiAddr()
	a.logger.Info("router listening", "addr", addr)
	if err := srv.Run(addr); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), err)
		return exitErr(exitConfigError)
	}
	return nil
}
