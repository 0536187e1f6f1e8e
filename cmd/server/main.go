// Wikivault - Wiki Backup and Restore Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wikivault

package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/tomtom215/wikivault/internal/config"
	"github.com/tomtom215/wikivault/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Default logger, the configured one is not available yet
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})

	logging.Info().
		Str("data_dir", cfg.Paths.DataDir).
		Str("backup_dir", cfg.Paths.BackupDir).
		Str("remote_provider", cfg.Remote.Provider).
		Bool("metrics_enabled", cfg.Server.Enabled).
		Msg("Starting Wikivault")

	c, err := buildComponents(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize backup service")
	}

	tree, err := buildTree(cfg, c)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := tree.ServeBackground(ctx)
	logging.Info().Msg("Supervisor tree running")

	// ServeBackground delivers exactly one value
	select {
	case <-ctx.Done():
		stop()
		logging.Info().Msg("Shutdown signal received, stopping services")
		err = <-errCh
	case err = <-errCh:
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree stopped with error")
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service did not stop within the shutdown timeout")
	}

	logging.Info().Msg("Wikivault stopped")
}
