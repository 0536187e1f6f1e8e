// Wikivault - Wiki Backup and Restore Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wikivault

package config

import (
	"path/filepath"
	"time"

	"github.com/tomtom215/wikivault/internal/backup"
)

// Remote store providers
const (
	ProviderNone   = "none"
	ProviderS3     = "s3"
	ProviderGDrive = "gdrive"
)

// Config holds all process configuration
type Config struct {
	Paths      PathsConfig         `koanf:"paths"`
	Backup     backup.BackupConfig `koanf:"backup"`
	Remote     RemoteConfig        `koanf:"remote"`
	Server     ServerConfig        `koanf:"server"`
	Logging    LoggingConfig       `koanf:"logging"`
	Supervisor SupervisorConfig    `koanf:"supervisor"`
}

// PathsConfig locates the live wiki data and the backup storage
type PathsConfig struct {
	DataDir    string `koanf:"data_dir" validate:"required"`
	LogsDir    string `koanf:"logs_dir"`
	UploadsDir string `koanf:"uploads_dir"`
	BackupDir  string `koanf:"backup_dir" validate:"required"`

	// KeyFile holds the archive encryption key. It must live outside
	// BackupDir so a copied backup directory does not carry its own key.
	KeyFile string `koanf:"key_file" validate:"required"`

	// RuntimeConfigFile is the administrator-edited BackupConfig.
	// Default: backup_config.json in the parent of backup_dir
	RuntimeConfigFile string `koanf:"runtime_config_file"`
}

// RuntimeConfigPath returns the effective runtime config file path. The
// default sits beside the backup directory, not in it, so wiping backups
// keeps the settings.
func (p PathsConfig) RuntimeConfigPath() string {
	if p.RuntimeConfigFile != "" {
		return p.RuntimeConfigFile
	}
	return filepath.Join(filepath.Dir(filepath.Clean(p.BackupDir)), backup.ConfigFileName)
}

// RemoteConfig selects and tunes the off-site store
type RemoteConfig struct {
	Provider string       `koanf:"provider" validate:"oneof=none s3 gdrive"`
	S3       S3Config     `koanf:"s3"`
	GDrive   GDriveConfig `koanf:"gdrive"`

	// Timeout bounds every remote call
	Timeout       time.Duration `koanf:"timeout" validate:"min=0"`
	RetryAttempts uint          `koanf:"retry_attempts" validate:"max=10"`
	RatePerSecond float64       `koanf:"rate_per_second" validate:"min=0"`

	Breaker BreakerConfig `koanf:"breaker"`
}

// S3Config holds S3-compatible object store settings
type S3Config struct {
	Endpoint     string `koanf:"endpoint" validate:"omitempty,url"`
	Region       string `koanf:"region"`
	Bucket       string `koanf:"bucket"`
	Prefix       string `koanf:"prefix"`
	AccessKey    string `koanf:"access_key"`
	SecretKey    string `koanf:"secret_key"`
	UsePathStyle bool   `koanf:"use_path_style"`
}

// GDriveConfig holds Google Drive settings. The token file is produced by
// an out-of-band OAuth consent and refreshed in place.
type GDriveConfig struct {
	CredentialsFile string `koanf:"credentials_file"`
	TokenFile       string `koanf:"token_file"`
	FolderName      string `koanf:"folder_name"`
}

// BreakerConfig tunes the remote circuit breaker
type BreakerConfig struct {
	Failures    uint32        `koanf:"failures" validate:"min=1"`
	Timeout     time.Duration `koanf:"timeout"`
	Interval    time.Duration `koanf:"interval"`
	MaxRequests uint32        `koanf:"max_requests" validate:"min=1"`
}

// ServerConfig holds the internal metrics and health server settings
type ServerConfig struct {
	Enabled         bool          `koanf:"enabled"`
	MetricsAddr     string        `koanf:"metrics_addr" validate:"required_if=Enabled true"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// Per-IP limit on the observability endpoints. Zero requests disables it.
	RateLimitRequests int           `koanf:"rate_limit_requests" validate:"min=0"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn warning error disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// SupervisorConfig tunes the suture tree and the scheduler loop
type SupervisorConfig struct {
	FailureThreshold float64       `koanf:"failure_threshold" validate:"min=0"`
	FailureDecay     float64       `koanf:"failure_decay" validate:"min=0"`
	FailureBackoff   time.Duration `koanf:"failure_backoff"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout"`

	// SchedulerPoll caps how long the scheduler sleeps between config reads
	SchedulerPoll time.Duration `koanf:"scheduler_poll"`

	// SchedulerRetryDelay is the wait after a failed automatic backup
	SchedulerRetryDelay time.Duration `koanf:"scheduler_retry_delay"`
}

// ResilientOptions maps the remote settings onto the backup client wrapper
func (r RemoteConfig) ResilientOptions() backup.ResilientOptions {
	opts := backup.DefaultResilientOptions()
	if r.Timeout > 0 {
		opts.Timeout = r.Timeout
	}
	if r.RetryAttempts > 0 {
		opts.RetryAttempts = r.RetryAttempts
	}
	if r.RatePerSecond > 0 {
		opts.RatePerSecond = r.RatePerSecond
	}
	if r.Breaker.Failures > 0 {
		opts.BreakerFailures = r.Breaker.Failures
	}
	if r.Breaker.Timeout > 0 {
		opts.BreakerTimeout = r.Breaker.Timeout
	}
	if r.Breaker.Interval > 0 {
		opts.BreakerInterval = r.Breaker.Interval
	}
	if r.Breaker.MaxRequests > 0 {
		opts.BreakerMaxRequests = r.Breaker.MaxRequests
	}
	return opts
}
