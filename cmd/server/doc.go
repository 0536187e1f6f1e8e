// Wikivault - Wiki Backup and Restore Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wikivault

/*
Package main is the entry point for the Wikivault backup service.

Wikivault snapshots a wiki's JSON data files (plus optional logs and
uploads) into encrypted zip archives, keeps a catalog of them, prunes old
archives by count and age, and mirrors new archives to S3 or Google Drive.

# Startup

 1. Configuration: Koanf v2 (defaults, config.yaml, environment)
 2. Logging: zerolog at the configured level and format
 3. Backup stores: key store, catalog, runtime backup config
 4. Remote store: S3 or Google Drive behind the resilient wrapper, or none
 5. Backup service and scheduler
 6. Supervisor tree with the scheduler and the metrics server

# Supervisor Tree

	RootSupervisor ("wikivault")
	├── BackupSupervisor ("backup-layer")
	│   └── backup-scheduler
	└── APISupervisor ("api-layer")
	    └── metrics-server (/metrics, /healthz)

SIGINT and SIGTERM cancel the root context. A backup in progress finishes
its current stage; the scheduler then returns and the tree shuts down.

# Example

	BACKUP_DIR=/srv/wikivault/backups \
	DATA_DIR=/srv/wiki/data \
	BACKUP_KEY_FILE=/srv/wikivault/secrets/backup_key.key \
	REMOTE_PROVIDER=s3 S3_BUCKET=wiki-backups \
	S3_ACCESS_KEY=... S3_SECRET_KEY=... \
	./wikivault
*/
package main
