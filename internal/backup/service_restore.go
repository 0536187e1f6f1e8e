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
	"time"

	"github.com/tomtom215/wikivault/internal/logging"
	"github.com/tomtom215/wikivault/internal/metrics"
)

// RestoreBackup replaces the data directory, and the uploads directory when
// configured, with the contents of backup id.
//
// A safety snapshot of the current data is always taken first; if it fails
// nothing is touched. After the snapshot, a failure returns the partial
// result (with Safety set) together with a *RestoreError naming the stage.
func (s *Service) RestoreBackup(ctx context.Context, id string) (*RestoreResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restoreLocked(ctx, id)
}

// RestoreFromRemote downloads the remote copy of backup id over the local
// archive and restores it. Remote errors are fatal here.
func (s *Service) RestoreFromRemote(ctx context.Context, id string) (*RestoreResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.GetBackup(id)
	if err != nil {
		return nil, err
	}
	if rec.RemoteID == "" {
		return nil, fmt.Errorf("%w: backup %s has no remote copy", ErrNotFound, id)
	}
	if !s.remote.IsConfigured() {
		return nil, fmt.Errorf("%w: no remote provider configured", ErrRemoteSync)
	}

	dest := archivePath(s.paths.BackupDir, rec.Filename)
	logging.Ctx(ctx).Info().Str("backup_id", id).Str("remote_id", rec.RemoteID).Str("provider", s.remote.Name()).Msg("Downloading backup from remote")
	if err := s.remote.Download(ctx, rec.RemoteID, dest); err != nil {
		return nil, err
	}

	return s.restoreLocked(ctx, id)
}

func (s *Service) restoreLocked(ctx context.Context, id string) (result *RestoreResult, err error) {
	start := s.now()
	defer func() {
		metrics.RecordBackupOperation("restore", time.Since(start), err)
	}()

	rec, err := s.GetBackup(id)
	if err != nil {
		return nil, err
	}
	path := archivePath(s.paths.BackupDir, rec.Filename)
	if err := checkArchiveFile(path); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptBackup, id, err)
	}

	log := logging.CtxWith(ctx).Str("backup_id", id).Logger()
	log.Info().Msg("Restore started")

	safety, err := s.createLocked(ctx, SafetySnapshotDescription, TriggerPreRestore)
	if err != nil {
		log.Error().Err(err).Msg("Safety snapshot failed, restore aborted")
		return nil, &RestoreError{Stage: RestoreSafetyBackup, Err: err}
	}
	log.Info().Str("safety_id", safety.ID).Msg("Safety snapshot created")

	result = &RestoreResult{Restored: rec, Safety: safety}
	fail := func(stage RestoreStage, cause error) (*RestoreResult, error) {
		result.Duration = time.Since(start)
		log.Error().Err(cause).Str("restore_stage", string(stage)).Strs("files_restored", result.FilesRestored).Msg("Restore failed")
		return result, &RestoreError{Stage: stage, Err: cause}
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: base name inside backup dir
	if err != nil {
		return fail(RestoreRead, fmt.Errorf("%w: %v", ErrCorruptBackup, err))
	}
	if rec.Encrypted {
		if data, err = s.keys.Decrypt(data); err != nil {
			return fail(RestoreDecrypt, err)
		}
	}

	archive, err := OpenArchive(data)
	if err != nil {
		return fail(RestoreVerify, err)
	}
	if err := archive.Verify(); err != nil {
		return fail(RestoreVerify, err)
	}
	if mid := archive.Manifest().BackupID; mid != rec.ID {
		result.Warnings = append(result.Warnings, fmt.Sprintf("manifest backup id %q does not match record %q", mid, rec.ID))
	}

	files, err := archive.ExtractPrefix(PrefixData, s.paths.DataDir)
	result.FilesRestored = files
	if err != nil {
		return fail(RestoreExtract, err)
	}
	if len(files) == 0 {
		result.Warnings = append(result.Warnings, "backup contained no data files")
	}

	// Uploads absent from the archive are left in place, as for data files
	if n := archive.CountPrefix(PrefixUploads); n > 0 {
		if s.paths.UploadsDir == "" {
			result.Warnings = append(result.Warnings, fmt.Sprintf("backup contains %d uploads but no uploads directory is configured", n))
		} else {
			uploads, err := archive.ExtractPrefix(PrefixUploads, s.paths.UploadsDir)
			result.FilesRestored = append(result.FilesRestored, uploads...)
			if err != nil {
				return fail(RestoreExtract, err)
			}
			log.Debug().Int("uploads_restored", len(uploads)).Msg("Uploads restored")
		}
	}

	result.Duration = time.Since(start)
	log.Info().
		Str("safety_id", safety.ID).
		Int("files_restored", len(result.FilesRestored)).
		Dur("duration", result.Duration).
		Msg("Restore completed")

	s.logActivity(ctx, ActionBackupRestored, fmt.Sprintf("Restored backup %s (%d files, safety snapshot %s)", id, len(result.FilesRestored), safety.ID))
	return result, nil
}

// checkArchiveFile requires a non-empty regular file at path
func checkArchiveFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return errors.New("archive file is missing")
		}
		return err
	}
	if !info.Mode().IsRegular() {
		return errors.New("archive is not a regular file")
	}
	if info.Size() == 0 {
		return errors.New("archive file is empty")
	}
	return nil
}

// ValidateBackup checks that backup id can be read, decrypted and verified
// without restoring it. Problems are reported in the result; the error is
// reserved for unknown ids and catalog failures.
func (s *Service) ValidateBackup(id string) (*ValidationResult, error) {
	start := s.now()

	rec, err := s.GetBackup(id)
	if err != nil {
		return nil, err
	}

	result := &ValidationResult{Valid: true}
	invalid := func(format string, args ...interface{}) (*ValidationResult, error) {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf(format, args...))
		metrics.RecordBackupOperation("validate", time.Since(start), errors.New(result.Errors[0]))
		return result, nil
	}

	path := archivePath(s.paths.BackupDir, rec.Filename)
	if err := checkArchiveFile(path); err != nil {
		return invalid("%v", err)
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: base name inside backup dir
	if err != nil {
		return invalid("failed to read archive: %v", err)
	}
	if rec.SizeBytes > 0 && int64(len(data)) != rec.SizeBytes {
		result.Errors = append(result.Errors, fmt.Sprintf("size %d differs from catalog size %d", len(data), rec.SizeBytes))
		result.Valid = false
	}

	if rec.Encrypted {
		if data, err = s.keys.Decrypt(data); err != nil {
			return invalid("%v", err)
		}
	}

	archive, err := OpenArchive(data)
	if err != nil {
		return invalid("%v", err)
	}
	result.FileCount = len(archive.Manifest().Files)
	if err := archive.Verify(); err != nil {
		return invalid("%v", err)
	}

	var opErr error
	if !result.Valid {
		opErr = errors.New(result.Errors[0])
	}
	metrics.RecordBackupOperation("validate", time.Since(start), opErr)
	return result, nil
}
