// Wikivault - Wiki Backup and Restore Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wikivault

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/tomtom215/wikivault/internal/backup"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/wikivault/config.yaml",
	"/etc/wikivault/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			DataDir:    "/data/wiki",
			LogsDir:    "/data/logs",
			UploadsDir: "/data/uploads",
			BackupDir:  "/data/backups",
			KeyFile:    "/data/secrets/backup_key.key",
		},
		Backup: backup.DefaultBackupConfig(),
		Remote: RemoteConfig{
			Provider: ProviderNone,
			S3: S3Config{
				Region: "us-east-1",
				Prefix: "wikivault",
			},
			GDrive: GDriveConfig{
				FolderName: "Wiki Backups",
			},
			Timeout:       2 * time.Minute,
			RetryAttempts: 3,
			RatePerSecond: 5,
			Breaker: BreakerConfig{
				Failures:    5,
				Timeout:     2 * time.Minute,
				Interval:    5 * time.Minute,
				MaxRequests: 1,
			},
		},
		Server: ServerConfig{
			Enabled:         true,
			MetricsAddr:     "127.0.0.1:9464",
			ReadTimeout:     10 * time.Second,
			ShutdownTimeout: 10 * time.Second,

			RateLimitRequests: 120,
			RateLimitWindow:   time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Supervisor: SupervisorConfig{
			FailureThreshold:    5,
			FailureDecay:        30,
			FailureBackoff:      15 * time.Second,
			ShutdownTimeout:     30 * time.Second,
			SchedulerPoll:       15 * time.Minute,
			SchedulerRetryDelay: time.Hour,
		},
	}
}

// Load loads configuration using Koanf with layered sources.
//
// Configuration is loaded in the following order (later sources override earlier):
//  1. Built-in defaults
//  2. Config file (config.yaml or the file named by CONFIG_PATH)
//  3. Environment variables
//
// The configuration is validated before it is returned.
func Load() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional)
	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: Environment variables (highest priority)
	// BACKUP_DIR -> paths.backup_dir, S3_BUCKET -> remote.s3.bucket
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the config file to load, or "" when none exists.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// envMappings maps lower-cased environment variable names to koanf paths.
var envMappings = map[string]string{
	// Paths
	"data_dir":            "paths.data_dir",
	"logs_dir":            "paths.logs_dir",
	"uploads_dir":         "paths.uploads_dir",
	"backup_dir":          "paths.backup_dir",
	"backup_key_file":     "paths.key_file",
	"backup_runtime_file": "paths.runtime_config_file",

	// Initial BackupConfig, used until an administrator saves one
	"backup_auto_enabled":      "backup.auto_backup_enabled",
	"backup_interval_hours":    "backup.interval_hours",
	"backup_max_backups":       "backup.max_backups",
	"backup_retention_days":    "backup.retention_days",
	"backup_encrypt":           "backup.encrypt_backups",
	"backup_include_logs":      "backup.include_logs",
	"backup_include_uploads":   "backup.include_uploads",
	"backup_remote_sync":       "backup.remote_sync_enabled",
	"backup_remote_folder_id":  "backup.remote_folder_id",
	"backup_compression_level": "backup.compression_level",

	// Remote store
	"remote_provider":         "remote.provider",
	"remote_timeout":          "remote.timeout",
	"remote_retry_attempts":   "remote.retry_attempts",
	"remote_rate_per_second":  "remote.rate_per_second",
	"remote_breaker_failures": "remote.breaker.failures",
	"remote_breaker_timeout":  "remote.breaker.timeout",

	"s3_endpoint":       "remote.s3.endpoint",
	"s3_region":         "remote.s3.region",
	"s3_bucket":         "remote.s3.bucket",
	"s3_prefix":         "remote.s3.prefix",
	"s3_access_key":     "remote.s3.access_key",
	"s3_secret_key":     "remote.s3.secret_key",
	"s3_use_path_style": "remote.s3.use_path_style",

	"gdrive_credentials_file": "remote.gdrive.credentials_file",
	"gdrive_token_file":       "remote.gdrive.token_file",
	"gdrive_folder_name":      "remote.gdrive.folder_name",

	// Metrics server
	"metrics_enabled":           "server.enabled",
	"metrics_addr":              "server.metrics_addr",
	"metrics_rate_limit":        "server.rate_limit_requests",
	"metrics_rate_limit_window": "server.rate_limit_window",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	// Supervisor
	"supervisor_failure_threshold": "supervisor.failure_threshold",
	"supervisor_failure_backoff":   "supervisor.failure_backoff",
	"supervisor_shutdown_timeout":  "supervisor.shutdown_timeout",
	"scheduler_poll_interval":      "supervisor.scheduler_poll",
	"scheduler_retry_delay":        "supervisor.scheduler_retry_delay",
}

// envTransformFunc transforms environment variable names to koanf config paths.
// Unmapped variables return "" and are skipped so unrelated environment
// variables never reach the configuration.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
