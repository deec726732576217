// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ManuGH/clubsync/internal/config"
	"github.com/ManuGH/clubsync/internal/daemon"
	"github.com/ManuGH/clubsync/internal/log"
	"github.com/ManuGH/clubsync/internal/version"
)

func newServeCommand() *cobra.Command {
	var backend, listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sync daemon and its diagnostics API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Safe defaults until config is loaded.
			log.Configure(log.Config{Level: "info", Service: "clubsync", Version: version.Version})
			logger := log.WithComponent("daemon")

			path := configPath(cmd)
			loader := config.NewLoader(path, version.Version)
			cfg, err := loader.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cmd.Flags().Changed("backend") {
				cfg.Backend = backend
			}
			if cmd.Flags().Changed("listen") {
				cfg.API.ListenAddr = listen
			}

			log.Configure(log.Config{Level: cfg.LogLevel, Service: cfg.LogService, Version: version.Version})
			logger = log.WithComponent("daemon")
			logger.Info().
				Str(log.FieldEvent, "daemon.starting").
				Str("config", path).
				Str("backend", cfg.Backend).
				Str("listen", cfg.API.ListenAddr).
				Msg("starting clubsync")

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := daemon.Bootstrap(ctx, cfg, version.Version)
			if err != nil {
				return err
			}

			var holder *config.Holder
			if path != "" {
				holder = config.NewHolder(cfg, loader)
			}
			app := daemon.NewApp(logger, rt.Manager, holder, rt.Orchestrator)
			if err := app.Run(ctx); err != nil {
				return err
			}
			logger.Info().Str(log.FieldEvent, "daemon.stopped").Msg("clubsync stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&backend, "backend", "memory", "collaborator backend (memory)")
	cmd.Flags().StringVar(&listen, "listen", "", "API listen address, overrides api.listenAddr")
	return cmd
}
