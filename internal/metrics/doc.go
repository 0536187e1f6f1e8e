// Wikivault - Wiki Backup and Restore Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wikivault

/*
Package metrics provides Prometheus metrics for the backup subsystem.

All metrics are registered with the default registry through promauto and are
exposed by the supervised HTTP server at /metrics.

# Available Metrics

Backup Metrics:
  - backup_operations_total: Operations by outcome (counter)
    Labels: operation (create, restore, delete, retention, validate), result
  - backup_duration_seconds: Operation latency (histogram)
    Labels: operation
  - backup_archive_size_bytes: Stored archive sizes (histogram)
  - backup_catalog_records: Records currently in the catalog (gauge)
  - backup_last_success_timestamp: Unix time of the last stored backup (gauge)

Retention Metrics:
  - backup_retention_deleted_total: Removed backups (counter)
    Labels: reason (excess, expired, failed)

Remote Store Metrics:
  - backup_remote_requests_total: Remote calls (counter)
    Labels: provider (s3, gdrive), operation, result (success, failure, rejected)
  - backup_remote_request_duration_seconds: Remote call latency (histogram)
    Labels: provider, operation
  - backup_remote_circuit_state: Breaker state (gauge)
    Labels: provider
    Values: 0=closed, 1=half-open, 2=open
  - backup_remote_circuit_transitions_total: Breaker transitions (counter)
    Labels: provider, from, to

# Usage

	start := time.Now()
	record, err := svc.CreateBackup(ctx, "nightly")
	metrics.RecordBackupOperation("create", time.Since(start), err)

# Thread Safety

All recording functions are safe for concurrent use.
*/
package metrics
