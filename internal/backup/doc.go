// Wikivault - Wiki Backup and Restore Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wikivault

// Package backup produces point-in-time, compressed and encrypted snapshots of
// the wiki's mutable state (JSON data files, logs, uploaded attachments),
// stores them locally and optionally on a remote object store, enforces
// retention, and restores a snapshot back over the live data directory.
//
// # Overview
//
// The package is built from small components, leaf first:
//
//	KeyStore         - owns backup_key.key, AES-256-GCM encrypt/decrypt
//	ArchiveBuilder   - walks data/, logs/, uploads/ into a zip with manifest.json
//	Catalog          - backups/backups_info.json, atomic write-then-rename
//	RetentionManager - union of count and age policies, local + remote cleanup
//	RemoteClient     - S3 or Google Drive adapter, wrapped by ResilientClient
//	Service          - create, list, restore, delete, stats, config
//
// Only Service is meant to be called by the host application. It is
// constructed explicitly by the composition root; there is no package-level
// instance.
//
// # Backup Pipeline
//
// A single CreateBackup call moves through these stages:
//
//	STARTED -> BUILT -> ENCRYPTED -> STORED_LOCAL -> SYNCED | SYNC_SKIPPED | SYNC_FAILED -> CATALOGED -> RETAINED
//
// A failure before STORED_LOCAL leaves neither a file nor a catalog record.
// From STORED_LOCAL onward the record exists (status pending) so a backup on
// disk is always discoverable; it becomes completed once CATALOGED.
//
// # Retention
//
// Count and age are evaluated independently and the result is their union:
//
//	excess  = records sorted newest first, from index max_backups on
//	expired = records older than retention_days
//
// Failed records are always collected. The newest record is never collected.
//
// # Restore Process
//
//  1. Look up the record (ErrNotFound) and check its file (ErrCorruptBackup)
//  2. Take a mandatory "pre-restore safety snapshot" backup
//  3. Decrypt, verify every manifest entry, extract data/ entries
//  4. Each file is written next to its target and renamed over it
//
// Restore is atomic per file, not across files. A failure after the safety
// snapshot returns a *RestoreError naming the stage, together with the
// safety record so it can be restored manually.
//
// # File Layout
//
//	<backup_dir>/backups_info.json                 catalog
//	<backup_dir>/wiki_backup_<ts>.zip[.encrypted]  archives
//	<runtime_config_file>                          BackupConfig
//	<key_file>                                     raw key bytes, outside backup_dir
//
// # Thread Safety
//
// Service serializes every mutating operation with one mutex. Catalog reads
// do not lock: the file is only ever replaced by rename, so a reader always
// sees a complete version.
package backup
