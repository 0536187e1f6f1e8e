// Wikivault - Wiki Backup and Restore Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wikivault

package backup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/tomtom215/wikivault/internal/logging"
	"github.com/tomtom215/wikivault/internal/metrics"
)

// Retention reasons
const (
	ReasonExcess  = "excess"
	ReasonExpired = "expired"
	ReasonFailed  = "failed"

	// keep reasons, preview only
	reasonNewest       = "newest"
	reasonWithinLimits = "within_limits"
)

// Selection is a record chosen for deletion together with every rule that
// excluded it
type Selection struct {
	Record  BackupRecord `json:"record"`
	Reasons []string     `json:"reasons"`
}

// sortByCreatedDesc returns a copy of records, newest first. Records with
// equal CreatedAt keep the reverse of their input order, so of two backups
// made in the same second the later catalog append counts as newer.
func sortByCreatedDesc(records []BackupRecord) []BackupRecord {
	sorted := make([]BackupRecord, len(records))
	for i, r := range records {
		sorted[len(records)-1-i] = r
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})
	return sorted
}

// SelectForDeletion applies the count and age budgets independently and
// returns the union of their exclusions, oldest first. Failed records are
// always selected. The newest record is never selected.
func SelectForDeletion(records []BackupRecord, cfg BackupConfig, now time.Time) []Selection {
	if len(records) < 2 {
		return nil
	}

	sorted := sortByCreatedDesc(records)
	maxBackups := cfg.MaxBackups
	if maxBackups < 1 {
		maxBackups = 1
	}
	maxAge := time.Duration(cfg.RetentionDays) * 24 * time.Hour

	var selected []Selection
	for i := len(sorted) - 1; i >= 1; i-- {
		r := sorted[i]

		var reasons []string
		if i >= maxBackups {
			reasons = append(reasons, ReasonExcess)
		}
		if now.Sub(r.CreatedAt) > maxAge {
			reasons = append(reasons, ReasonExpired)
		}
		if r.Status == StatusFailed {
			reasons = append(reasons, ReasonFailed)
		}

		if len(reasons) > 0 {
			selected = append(selected, Selection{Record: r, Reasons: reasons})
		}
	}
	return selected
}

// RetentionManager deletes the backups selected by SelectForDeletion
type RetentionManager struct {
	catalog   *Catalog
	remote    RemoteClient
	backupDir string
}

// NewRetentionManager creates a retention manager. remote may be nil.
func NewRetentionManager(catalog *Catalog, remote RemoteClient, backupDir string) *RetentionManager {
	if remote == nil {
		remote = NewNoopClient()
	}
	return &RetentionManager{
		catalog:   catalog,
		remote:    remote,
		backupDir: backupDir,
	}
}

// Apply deletes every selected backup and returns the records actually
// removed. A record whose local file cannot be deleted stays in the catalog.
// Ids in protected are never deleted, whatever the policy says.
func (m *RetentionManager) Apply(ctx context.Context, cfg BackupConfig, now time.Time, protected ...string) ([]BackupRecord, error) {
	records, err := m.catalog.List()
	if err != nil {
		return nil, err
	}

	var removed []BackupRecord
	var freed int64
	for _, sel := range SelectForDeletion(records, cfg, now) {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if slices.Contains(protected, sel.Record.ID) {
			logging.Debug().Str("backup_id", sel.Record.ID).Strs("reasons", sel.Reasons).Msg("Retention skipped protected backup")
			continue
		}

		if err := m.remove(ctx, sel.Record); err != nil {
			logging.Warn().Err(err).Str("backup_id", sel.Record.ID).Strs("reasons", sel.Reasons).Msg("Failed to delete backup")
			continue
		}

		metrics.RecordRetentionDeletion(sel.Reasons)
		removed = append(removed, sel.Record)
		freed += sel.Record.SizeBytes
	}

	if len(removed) > 0 {
		logging.Info().
			Int("deleted_count", len(removed)).
			Int64("freed_bytes", freed).
			Str("freed", humanize.IBytes(uint64(freed))). //nolint:gosec // sizes are non-negative
			Msg("Retention policy applied")
	}
	return removed, nil
}

// remove deletes one backup: local file, then remote copy, then catalog entry
func (m *RetentionManager) remove(ctx context.Context, record BackupRecord) error {
	if err := removeArchive(m.backupDir, record); err != nil {
		return err
	}

	if record.RemoteID != "" && m.remote.IsConfigured() {
		if err := m.remote.Delete(ctx, record.RemoteID); err != nil {
			logging.Warn().Err(err).
				Str("backup_id", record.ID).
				Str("remote_id", record.RemoteID).
				Str("provider", m.remote.Name()).
				Msg("Failed to delete remote copy, leaving orphan")
		}
	}

	if _, err := m.catalog.Remove(record.ID); err != nil {
		return err
	}
	return nil
}

// archivePath resolves a catalog filename inside backupDir. Only the base
// name is used so a tampered catalog cannot point outside the directory.
func archivePath(backupDir, filename string) string {
	return filepath.Join(backupDir, filepath.Base(filename))
}

// removeArchive deletes a stored archive. A file that is already gone is not
// an error, but a completed record without its file is logged.
func removeArchive(backupDir string, record BackupRecord) error {
	err := os.Remove(archivePath(backupDir, record.Filename))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fs.ErrNotExist):
		if record.Status == StatusCompleted {
			logging.Warn().
				Str("backup_id", record.ID).
				Str("filename", record.Filename).
				Msg("Completed backup file was already missing, dropping record")
		}
		return nil
	default:
		return fmt.Errorf("failed to delete backup file: %w", err)
	}
}

// RetentionPreview shows what the current policy would delete
type RetentionPreview struct {
	WouldDelete      []*PreviewItem `json:"would_delete"`
	WouldKeep        []*PreviewItem `json:"would_keep"`
	DeletedCount     int            `json:"deleted_count"`
	KeptCount        int            `json:"kept_count"`
	TotalDeletedSize int64          `json:"total_deleted_size"`
	TotalKeptSize    int64          `json:"total_kept_size"`
}

// PreviewItem is one backup in a RetentionPreview
type PreviewItem struct {
	ID        string       `json:"id"`
	CreatedAt time.Time    `json:"created_at"`
	SizeBytes int64        `json:"size_bytes"`
	Status    BackupStatus `json:"status"`
	Reasons   []string     `json:"reasons"`
}

// Preview reports the outcome of Apply without deleting anything. Items are
// listed newest first.
func (m *RetentionManager) Preview(cfg BackupConfig, now time.Time) (*RetentionPreview, error) {
	records, err := m.catalog.List()
	if err != nil {
		return nil, err
	}

	preview := &RetentionPreview{
		WouldDelete: make([]*PreviewItem, 0),
		WouldKeep:   make([]*PreviewItem, 0),
	}

	deleteReasons := make(map[string][]string)
	for _, sel := range SelectForDeletion(records, cfg, now) {
		deleteReasons[sel.Record.ID] = sel.Reasons
	}

	for i, r := range sortByCreatedDesc(records) {
		item := &PreviewItem{
			ID:        r.ID,
			CreatedAt: r.CreatedAt,
			SizeBytes: r.SizeBytes,
			Status:    r.Status,
		}

		if reasons, ok := deleteReasons[r.ID]; ok {
			item.Reasons = reasons
			preview.WouldDelete = append(preview.WouldDelete, item)
			preview.TotalDeletedSize += r.SizeBytes
			continue
		}

		item.Reasons = []string{reasonWithinLimits}
		if i == 0 {
			item.Reasons = []string{reasonNewest}
		}
		preview.WouldKeep = append(preview.WouldKeep, item)
		preview.TotalKeptSize += r.SizeBytes
	}

	preview.DeletedCount = len(preview.WouldDelete)
	preview.KeptCount = len(preview.WouldKeep)
	return preview, nil
}
