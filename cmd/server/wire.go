// Wikivault - Wiki Backup and Restore Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wikivault

package main

import (
	"fmt"
	"net/http"

	"github.com/tomtom215/wikivault/internal/backup"
	"github.com/tomtom215/wikivault/internal/config"
	"github.com/tomtom215/wikivault/internal/logging"
	"github.com/tomtom215/wikivault/internal/supervisor"
	"github.com/tomtom215/wikivault/internal/supervisor/services"
)

// components are the long-lived objects built from the process config
type components struct {
	service   *backup.Service
	scheduler *backup.Scheduler
	remote    backup.RemoteClient
	server    *http.Server
}

// buildRemote selects the remote store. Providers are wrapped with timeout,
// rate limit, retry and circuit breaker; "none" is a plain NoopClient.
func buildRemote(cfg config.RemoteConfig) backup.RemoteClient {
	var inner backup.RemoteClient
	switch cfg.Provider {
	case config.ProviderS3:
		inner = backup.NewS3Client(backup.S3Options{
			Endpoint:     cfg.S3.Endpoint,
			Region:       cfg.S3.Region,
			Bucket:       cfg.S3.Bucket,
			Prefix:       cfg.S3.Prefix,
			AccessKey:    cfg.S3.AccessKey,
			SecretKey:    cfg.S3.SecretKey,
			UsePathStyle: cfg.S3.UsePathStyle,
		})
		logging.Info().
			Str("provider", cfg.Provider).
			Str("bucket", cfg.S3.Bucket).
			Str("prefix", cfg.S3.Prefix).
			Str("access_key", logging.SanitizeValue("access_key_id", cfg.S3.AccessKey)).
			Msg("Remote store configured")
	case config.ProviderGDrive:
		inner = backup.NewDriveClient(backup.DriveOptions{
			CredentialsFile: cfg.GDrive.CredentialsFile,
			TokenFile:       cfg.GDrive.TokenFile,
			FolderName:      cfg.GDrive.FolderName,
		})
		logging.Info().
			Str("provider", cfg.Provider).
			Str("folder_name", cfg.GDrive.FolderName).
			Msg("Remote store configured")
	default:
		logging.Info().Msg("No remote store configured; backups stay local")
		return backup.NewNoopClient()
	}

	if !inner.IsConfigured() {
		logging.Warn().Str("provider", cfg.Provider).Msg("Remote store is missing credentials; remote sync will be skipped")
	}
	return backup.NewResilientClient(inner, cfg.ResilientOptions())
}

// buildComponents wires the backup service, its scheduler and the metrics
// server. The runtime backup config is loaded here so a corrupt file stops
// startup instead of being replaced by defaults.
func buildComponents(cfg *config.Config) (*components, error) {
	store := backup.NewConfigStore(cfg.Paths.RuntimeConfigPath(), cfg.Backup)
	if err := store.Load(); err != nil {
		return nil, fmt.Errorf("load runtime backup config: %w", err)
	}

	remote := buildRemote(cfg.Remote)

	svc, err := backup.NewService(backup.Options{
		Paths: backup.Paths{
			BackupDir:  cfg.Paths.BackupDir,
			DataDir:    cfg.Paths.DataDir,
			LogsDir:    cfg.Paths.LogsDir,
			UploadsDir: cfg.Paths.UploadsDir,
		},
		KeyStore: backup.NewKeyStore(cfg.Paths.KeyFile),
		Config:   store,
		Remote:   remote,
		Activity: logging.NewActivityLog(),
	})
	if err != nil {
		return nil, fmt.Errorf("create backup service: %w", err)
	}

	c := &components{
		service: svc,
		scheduler: backup.NewScheduler(svc, backup.SchedulerOptions{
			PollInterval: cfg.Supervisor.SchedulerPoll,
			RetryDelay:   cfg.Supervisor.SchedulerRetryDelay,
		}),
		remote: remote,
	}

	if cfg.Server.Enabled {
		router := services.NewObservabilityRouter(svc, services.RateLimit{
			Requests: cfg.Server.RateLimitRequests,
			Window:   cfg.Server.RateLimitWindow,
		})
		c.server = &http.Server{
			Addr:              cfg.Server.MetricsAddr,
			Handler:           router,
			ReadHeaderTimeout: cfg.Server.ReadTimeout,
			ReadTimeout:       cfg.Server.ReadTimeout,
		}
	}
	return c, nil
}

// buildTree places the scheduler in the backup layer and the metrics server
// in the api layer.
func buildTree(cfg *config.Config, c *components) (*supervisor.SupervisorTree, error) {
	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		FailureThreshold: cfg.Supervisor.FailureThreshold,
		FailureDecay:     cfg.Supervisor.FailureDecay,
		FailureBackoff:   cfg.Supervisor.FailureBackoff,
		ShutdownTimeout:  cfg.Supervisor.ShutdownTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("create supervisor tree: %w", err)
	}

	tree.AddBackupService(c.scheduler)
	if c.server != nil {
		tree.AddAPIService(services.NewHTTPServerService(c.server, cfg.Server.ShutdownTimeout))
	}
	return tree, nil
}
