// Wikivault - Wiki Backup and Restore Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wikivault

package backup

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/tomtom215/wikivault/internal/logging"
	"github.com/tomtom215/wikivault/internal/metrics"
)

// GetStats summarizes the catalog. It is computed on every call.
func (s *Service) GetStats() (*BackupStats, error) {
	records, err := s.catalog.List()
	if err != nil {
		return nil, err
	}

	stats := &BackupStats{TotalBackups: len(records)}
	for i := range records {
		r := &records[i]
		stats.TotalSizeBytes += r.SizeBytes
		if r.Encrypted {
			stats.EncryptedBackups++
		}
		if r.RemoteID != "" {
			stats.RemoteBackups++
		}
		if r.Status == StatusFailed {
			stats.FailedBackups++
		}
	}
	stats.TotalSizeHuman = humanize.IBytes(uint64(stats.TotalSizeBytes)) //nolint:gosec // sizes are non-negative

	if len(records) > 0 {
		oldest := records[0].CreatedAt
		newest := records[len(records)-1].CreatedAt
		latest := records[len(records)-1]
		stats.OldestBackup = &oldest
		stats.NewestBackup = &newest
		stats.LatestBackup = &latest
	}
	return stats, nil
}

// GetConfig returns the current runtime configuration
func (s *Service) GetConfig() BackupConfig {
	return s.config.Get()
}

// UpdateConfig validates and persists a partial update. Invalid patches
// leave the stored config unchanged.
func (s *Service) UpdateConfig(ctx context.Context, patch ConfigPatch) (BackupConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if patch.IsEmpty() {
		return s.config.Get(), nil
	}

	cfg, err := s.config.Update(patch)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Backup config update rejected")
		return cfg, err
	}
	if fr, ok := s.remote.(FolderResolver); ok && patch.RemoteFolderID != nil {
		fr.SetFolderID(cfg.RemoteFolderID)
	}

	logging.Ctx(ctx).Info().
		Bool("auto_backup_enabled", cfg.AutoBackupEnabled).
		Int("interval_hours", cfg.IntervalHours).
		Int("max_backups", cfg.MaxBackups).
		Int("retention_days", cfg.RetentionDays).
		Bool("encrypt_backups", cfg.EncryptBackups).
		Bool("remote_sync_enabled", cfg.RemoteSyncEnabled).
		Msg("Backup config updated")

	s.logActivity(ctx, ActionConfigUpdated, fmt.Sprintf("Updated backup settings: interval %dh, keep %d for %d days", cfg.IntervalHours, cfg.MaxBackups, cfg.RetentionDays))
	return cfg, nil
}

// CleanupOldBackups applies retention now and returns the removed records
func (s *Service) CleanupOldBackups(ctx context.Context) ([]BackupRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.now()
	removed, err := s.retention.Apply(ctx, s.config.Get(), s.now())
	metrics.RecordBackupOperation("retention", time.Since(start), err)
	s.refreshCatalogGauge()
	return removed, err
}

// PreviewRetention reports what CleanupOldBackups would delete
func (s *Service) PreviewRetention() (*RetentionPreview, error) {
	return s.retention.Preview(s.config.Get(), s.now())
}

// LatestBackupTime returns the creation time of the newest record, or the
// zero time when the catalog is empty
func (s *Service) LatestBackupTime() (time.Time, error) {
	records, err := s.catalog.List()
	if err != nil {
		return time.Time{}, err
	}
	if len(records) == 0 {
		return time.Time{}, nil
	}
	return records[len(records)-1].CreatedAt, nil
}
