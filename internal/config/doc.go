// Wikivault - Wiki Backup and Restore Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wikivault

/*
Package config loads the Wikivault process configuration.

Configuration is layered with Koanf v2. Later sources override earlier ones:

 1. Built-in defaults (structs provider)
 2. An optional YAML file: $CONFIG_PATH, ./config.yaml, or /etc/wikivault/config.yaml
 3. Environment variables, through an explicit mapping table

Unmapped environment variables are ignored.

# Sections

  - paths: data_dir, logs_dir, uploads_dir, backup_dir, key_file, runtime_config_file
  - backup: initial backup settings, used until an administrator saves a
    runtime configuration (see backup.ConfigStore)
  - remote: provider (none, s3, gdrive), credentials, timeout, retries,
    rate limit and circuit breaker
  - server: internal metrics and health endpoint
  - logging: level, format, caller
  - supervisor: suture failure policy and scheduler timing

# Environment Variables

Paths:
  - DATA_DIR, LOGS_DIR, UPLOADS_DIR, BACKUP_DIR
  - BACKUP_KEY_FILE: encryption key file (must be outside BACKUP_DIR)
  - BACKUP_RUNTIME_FILE: runtime config (default: backup_config.json beside $BACKUP_DIR)

Remote store:
  - REMOTE_PROVIDER: none, s3 or gdrive
  - S3_ENDPOINT, S3_REGION, S3_BUCKET, S3_PREFIX, S3_ACCESS_KEY, S3_SECRET_KEY, S3_USE_PATH_STYLE
  - GDRIVE_CREDENTIALS_FILE, GDRIVE_TOKEN_FILE, GDRIVE_FOLDER_NAME
  - REMOTE_TIMEOUT, REMOTE_RETRY_ATTEMPTS, REMOTE_RATE_PER_SECOND

Logging:
  - LOG_LEVEL, LOG_FORMAT, LOG_CALLER

# Example

	cfg, err := config.Load()
	if err != nil {
	    logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
*/
package config
