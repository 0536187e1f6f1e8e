// Wikivault - Wiki Backup and Restore Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wikivault

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result label values
const (
	ResultSuccess  = "success"
	ResultFailure  = "failure"
	ResultRejected = "rejected"
)

var (
	// Backup Operation Metrics
	BackupOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backup_operations_total",
			Help: "Total number of backup subsystem operations",
		},
		[]string{"operation", "result"}, // operation: create, restore, delete, retention, validate
	)

	BackupDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backup_duration_seconds",
			Help:    "Duration of backup subsystem operations in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"operation"},
	)

	BackupArchiveSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "backup_archive_size_bytes",
			Help:    "Size of stored backup archives in bytes",
			Buckets: prometheus.ExponentialBuckets(64*1024, 4, 10), // 64KiB .. 16GiB
		},
	)

	BackupCatalogRecords = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "backup_catalog_records",
			Help: "Current number of records in the backup catalog",
		},
	)

	BackupLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "backup_last_success_timestamp",
			Help: "Unix timestamp of the last successful backup",
		},
	)

	// Retention Metrics
	RetentionDeleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backup_retention_deleted_total",
			Help: "Total number of backups removed by retention, by reason",
		},
		[]string{"reason"}, // excess, expired, failed
	)

	// Remote Sync Metrics
	RemoteRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backup_remote_requests_total",
			Help: "Total number of remote store requests",
		},
		[]string{"provider", "operation", "result"},
	)

	RemoteRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backup_remote_request_duration_seconds",
			Help:    "Duration of remote store requests in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120},
		},
		[]string{"provider", "operation"},
	)

	RemoteCircuitState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "backup_remote_circuit_state",
			Help: "Remote store circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"provider"},
	)

	RemoteCircuitTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backup_remote_circuit_transitions_total",
			Help: "Total number of remote store circuit breaker state transitions",
		},
		[]string{"provider", "from", "to"},
	)
)

func resultLabel(err error) string {
	if err != nil {
		return ResultFailure
	}
	return ResultSuccess
}

// RecordBackupOperation records the outcome and duration of a backup operation
func RecordBackupOperation(operation string, duration time.Duration, err error) {
	BackupOperations.WithLabelValues(operation, resultLabel(err)).Inc()
	BackupDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordBackupCreated records a stored archive
func RecordBackupCreated(sizeBytes int64, at time.Time) {
	BackupArchiveSize.Observe(float64(sizeBytes))
	BackupLastSuccess.Set(float64(at.Unix()))
}

// SetCatalogRecords updates the catalog size gauge
func SetCatalogRecords(count int) {
	BackupCatalogRecords.Set(float64(count))
}

// RecordRetentionDeletion counts one removed backup under each reason
func RecordRetentionDeletion(reasons []string) {
	for _, reason := range reasons {
		RetentionDeleted.WithLabelValues(reason).Inc()
	}
}

// RecordRemoteRequest records a remote store call. result is one of
// ResultSuccess, ResultFailure or ResultRejected.
func RecordRemoteRequest(provider, operation, result string, duration time.Duration) {
	RemoteRequests.WithLabelValues(provider, operation, result).Inc()
	if result != ResultRejected {
		RemoteRequestDuration.WithLabelValues(provider, operation).Observe(duration.Seconds())
	}
}

// SetRemoteCircuitState records a breaker transition
func SetRemoteCircuitState(provider, from, to string, value float64) {
	RemoteCircuitState.WithLabelValues(provider).Set(value)
	if from != "" {
		RemoteCircuitTransitions.WithLabelValues(provider, from, to).Inc()
	}
}
