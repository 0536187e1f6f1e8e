// Wikivault - Wiki Backup and Restore Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wikivault

package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/wikivault/internal/logging"
	"github.com/tomtom215/wikivault/internal/metrics"
	"github.com/tomtom215/wikivault/internal/validation"
)

const (
	// MaxDescriptionLength is the longest accepted backup description, in characters
	MaxDescriptionLength = 500

	// SafetySnapshotDescription labels the backup taken before every restore
	SafetySnapshotDescription = "pre-restore safety snapshot"

	// ScheduledBackupDescription labels backups created by the scheduler
	ScheduledBackupDescription = "Automatic backup"

	idTimeFormat    = "20060102_150405"
	encryptedSuffix = ".encrypted"
)

// Activity actions
const (
	ActionBackupCreated  = "backup_created"
	ActionBackupRestored = "backup_restored"
	ActionBackupDeleted  = "backup_deleted"
	ActionConfigUpdated  = "backup_config_updated"
)

// ActivityLogger receives an audit entry after each mutating operation.
// Errors and panics are logged and never affect the operation.
type ActivityLogger interface {
	Log(userID, action, details string) error
}

// ActivityLoggerFunc adapts a function to ActivityLogger
type ActivityLoggerFunc func(userID, action, details string) error

func (f ActivityLoggerFunc) Log(userID, action, details string) error {
	return f(userID, action, details)
}

// Paths locates the live data and the backup storage
type Paths struct {
	// BackupDir holds archives, the catalog and the runtime config
	BackupDir string

	// DataDir holds the wiki JSON files. It is required for backup and
	// is the restore target.
	DataDir string

	// LogsDir and UploadsDir are optional sources
	LogsDir    string
	UploadsDir string
}

// Options wires a Service. Catalog, Config, Remote, Activity and Now are
// optional and default to stores inside BackupDir, no remote, no audit log
// and time.Now.
type Options struct {
	Paths    Paths
	KeyStore *KeyStore
	Catalog  *Catalog
	Config   *ConfigStore
	Remote   RemoteClient
	Activity ActivityLogger
	Now      func() time.Time
}

// Service runs the backup pipeline, restores, deletion and retention. A
// single mutex serializes every mutating operation.
type Service struct {
	paths     Paths
	keys      *KeyStore
	catalog   *Catalog
	config    *ConfigStore
	remote    RemoteClient
	retention *RetentionManager
	activity  ActivityLogger
	now       func() time.Time

	mu sync.Mutex
}

// NewService validates opts, creates the backup directory and removes temp
// files left behind by an interrupted run.
func NewService(opts Options) (*Service, error) {
	if opts.Paths.BackupDir == "" {
		return nil, fmt.Errorf("%w: backup directory is required", ErrInvalidConfig)
	}
	if opts.Paths.DataDir == "" {
		return nil, fmt.Errorf("%w: data directory is required", ErrInvalidConfig)
	}
	if opts.KeyStore == nil {
		return nil, fmt.Errorf("%w: key store is required", ErrInvalidConfig)
	}

	if err := os.MkdirAll(opts.Paths.BackupDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create backup directory %s: %w", opts.Paths.BackupDir, err)
	}

	s := &Service{
		paths:    opts.Paths,
		keys:     opts.KeyStore,
		catalog:  opts.Catalog,
		config:   opts.Config,
		remote:   opts.Remote,
		activity: opts.Activity,
		now:      opts.Now,
	}
	if s.catalog == nil {
		s.catalog = NewCatalog(filepath.Join(opts.Paths.BackupDir, CatalogFileName))
	}
	if s.config == nil {
		s.config = NewConfigStore(filepath.Join(opts.Paths.BackupDir, ConfigFileName), DefaultBackupConfig())
	}
	if s.remote == nil {
		s.remote = NewNoopClient()
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.retention = NewRetentionManager(s.catalog, s.remote, opts.Paths.BackupDir)

	removeStaleTempFiles(opts.Paths.BackupDir)

	if records, err := s.catalog.List(); err != nil {
		logging.Error().Err(err).Str("catalog", s.catalog.Path()).Msg("Backup catalog unreadable, writes are refused until it is repaired")
	} else {
		metrics.SetCatalogRecords(len(records))
	}

	return s, nil
}

// removeStaleTempFiles deletes build and atomic-write temp files from a crashed run
func removeStaleTempFiles(dir string) {
	for _, pattern := range []string{".build-*.zip", ".*.tmp"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			continue
		}
		for _, m := range matches {
			if err := os.Remove(m); err == nil {
				logging.Debug().Str("path", m).Msg("Removed stale backup temp file")
			}
		}
	}
}

// CreateBackup runs the full pipeline for a manual backup and returns the
// cataloged record
func (s *Service) CreateBackup(ctx context.Context, description string) (*BackupRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(ctx, description, TriggerManual)
}

// CreateScheduledBackup runs the pipeline on behalf of the scheduler
func (s *Service) CreateScheduledBackup(ctx context.Context) (*BackupRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(ctx, ScheduledBackupDescription, TriggerScheduled)
}

// createLocked runs STARTED through RETAINED. The caller holds s.mu.
func (s *Service) createLocked(ctx context.Context, description string, trigger BackupTrigger) (record *BackupRecord, err error) {
	start := s.now()
	defer func() {
		metrics.RecordBackupOperation("create", time.Since(start), err)
	}()

	description = strings.TrimSpace(description)
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		return nil, fmt.Errorf("%w: description exceeds %d characters", ErrInvalidInput, MaxDescriptionLength)
	}

	cfg := s.config.Get()
	createdAt := start.UTC().Truncate(time.Second)

	id, err := s.nextID(createdAt)
	if err != nil {
		return nil, err
	}
	name := "wiki_backup_" + strings.TrimPrefix(id, "backup_")
	filename := name + ".zip"
	if cfg.EncryptBackups {
		filename += encryptedSuffix
	}

	log := logging.CtxWith(ctx).Str("backup_id", id).Str("trigger", string(trigger)).Logger()
	log.Info().Str("stage", string(StageStarted)).Bool("encrypted", cfg.EncryptBackups).Msg("Backup started")

	builder := NewArchiveBuilder(s.paths.BackupDir, cfg.CompressionLevel)
	built, err := builder.Build(ctx, BuildRequest{
		ID:          id,
		Name:        name,
		Description: description,
		CreatedAt:   createdAt,
		Sources:     s.sources(cfg),
	})
	if err != nil {
		log.Error().Err(err).Str("stage", string(StageStarted)).Msg("Backup archive build failed")
		return nil, err
	}
	defer os.Remove(built.Path) //nolint:errcheck // Best effort cleanup, already renamed on success

	logSize(log.Info(), built.Size).
		Str("stage", string(StageBuilt)).
		Int("file_count", len(built.Manifest.Files)).
		Int("skipped", len(built.Skipped)).
		Msg("Backup archive built")

	finalPath := archivePath(s.paths.BackupDir, filename)
	if err := s.storeArchive(built.Path, finalPath, cfg.EncryptBackups); err != nil {
		log.Error().Err(err).Str("stage", string(StageEncrypted)).Msg("Backup could not be stored")
		return nil, err
	}
	if cfg.EncryptBackups {
		log.Debug().Str("stage", string(StageEncrypted)).Msg("Backup archive encrypted")
	}

	rec := BackupRecord{
		ID:          id,
		Name:        name,
		Filename:    filename,
		SizeBytes:   getFileSize(finalPath),
		CreatedAt:   createdAt,
		Description: description,
		Encrypted:   cfg.EncryptBackups,
		Compressed:  true,
		Status:      StatusPending,
		Trigger:     trigger,
		FileCount:   len(built.Manifest.Files),
	}
	if err := s.catalog.Append(rec); err != nil {
		os.Remove(finalPath) //nolint:errcheck // Best effort cleanup on error
		log.Error().Err(err).Str("stage", string(StageStoredLocal)).Msg("Failed to catalog backup")
		return nil, err
	}
	logSize(log.Info(), rec.SizeBytes).Str("stage", string(StageStoredLocal)).Msg("Backup stored locally")

	rec.RemoteStatus, rec.RemoteID = s.syncRemote(ctx, cfg, finalPath, filename, log)

	rec.Status = StatusCompleted
	upd := RecordUpdate{RemoteStatus: &rec.RemoteStatus, Status: &rec.Status}
	if rec.RemoteID != "" {
		upd.RemoteID = &rec.RemoteID
	}
	if _, err := s.catalog.Update(id, upd); err != nil {
		log.Error().Err(err).Str("stage", string(StageCataloged)).Msg("Failed to mark backup completed")
		failed := StatusFailed
		s.catalog.Update(id, RecordUpdate{Status: &failed}) //nolint:errcheck // Best effort, catalog already failing
		return nil, err
	}
	log.Info().Str("stage", string(StageCataloged)).Msg("Backup cataloged")

	metrics.RecordBackupCreated(rec.SizeBytes, createdAt)

	// A safety snapshot must not prune the backup about to be restored
	if trigger != TriggerPreRestore {
		s.applyRetention(ctx, cfg, id, log)
	}
	s.refreshCatalogGauge()

	s.logActivity(ctx, ActionBackupCreated, fmt.Sprintf("Created backup %s (%s, %d files)", id, humanize.IBytes(uint64(rec.SizeBytes)), rec.FileCount)) //nolint:gosec // sizes are non-negative
	return &rec, nil
}

// nextID derives the id from the timestamp, adding a short random suffix
// when a record or file with that id already exists
func (s *Service) nextID(createdAt time.Time) (string, error) {
	records, _, err := s.catalog.Load()
	if err != nil {
		return "", err
	}
	taken := make(map[string]bool, len(records))
	for _, r := range records {
		taken[r.ID] = true
	}

	inUse := func(id string) bool {
		if taken[id] {
			return true
		}
		base := "wiki_backup_" + strings.TrimPrefix(id, "backup_") + ".zip"
		return fileExists(archivePath(s.paths.BackupDir, base)) ||
			fileExists(archivePath(s.paths.BackupDir, base+encryptedSuffix))
	}

	id := "backup_" + createdAt.Format(idTimeFormat)
	if !inUse(id) {
		return id, nil
	}
	for i := 0; i < 5; i++ {
		candidate := id + "_" + uuid.NewString()[:8]
		if !inUse(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: could not allocate a unique id for %s", ErrDuplicateID, id)
}

// sources returns the archive inputs selected by cfg
func (s *Service) sources(cfg BackupConfig) []Source {
	sources := []Source{{
		Prefix:     PrefixData,
		Root:       s.paths.DataDir,
		Extensions: []string{".json"},
		Required:   true,
	}}
	if cfg.IncludeLogs && s.paths.LogsDir != "" {
		sources = append(sources, Source{
			Prefix:     PrefixLogs,
			Root:       s.paths.LogsDir,
			Extensions: []string{".log"},
		})
	}
	if cfg.IncludeUploads && s.paths.UploadsDir != "" {
		sources = append(sources, Source{
			Prefix:    PrefixUploads,
			Root:      s.paths.UploadsDir,
			Recursive: true,
		})
	}
	return sources
}

// storeArchive moves the built zip to finalPath, encrypting it first when
// asked. Nothing exists at finalPath unless this returns nil.
func (s *Service) storeArchive(builtPath, finalPath string, encrypt bool) error {
	if !encrypt {
		if err := os.Chmod(builtPath, 0o600); err != nil {
			return fmt.Errorf("failed to set archive permissions: %w", err)
		}
		if err := os.Rename(builtPath, finalPath); err != nil {
			return fmt.Errorf("failed to store archive: %w", err)
		}
		syncDir(filepath.Dir(finalPath))
		return nil
	}

	plaintext, err := os.ReadFile(builtPath) //nolint:gosec // G304: temp file created by ArchiveBuilder
	if err != nil {
		return fmt.Errorf("failed to read built archive: %w", err)
	}
	ciphertext, err := s.keys.Encrypt(plaintext)
	if err != nil {
		return err
	}
	if err := writeBytesAtomic(finalPath, ciphertext, 0o600); err != nil {
		return fmt.Errorf("failed to store encrypted archive: %w", err)
	}
	return nil
}

// syncRemote uploads the stored archive when remote sync is enabled and
// configured. Failures are logged and recorded, never returned.
func (s *Service) syncRemote(ctx context.Context, cfg BackupConfig, path, filename string, log zerolog.Logger) (RemoteStatus, string) {
	if !cfg.RemoteSyncEnabled || !s.remote.IsConfigured() {
		log.Debug().Str("stage", string(StageSyncSkipped)).Bool("enabled", cfg.RemoteSyncEnabled).Msg("Remote sync skipped")
		return RemoteSkipped, ""
	}

	if fr, ok := s.remote.(FolderResolver); ok {
		fr.SetFolderID(cfg.RemoteFolderID)
	}

	remoteID, err := s.remote.Upload(ctx, path, filename)
	if err != nil {
		log.Warn().Err(err).Str("stage", string(StageSyncFailed)).Str("provider", s.remote.Name()).Msg("Remote sync failed, backup kept locally")
		return RemoteFailed, ""
	}

	log.Info().Str("stage", string(StageSynced)).Str("provider", s.remote.Name()).Str("remote_id", remoteID).Msg("Backup synced to remote")
	return RemoteSynced, remoteID
}

// applyRetention runs retention after a create, never deleting createdID.
// Errors never fail the create.
func (s *Service) applyRetention(ctx context.Context, cfg BackupConfig, createdID string, log zerolog.Logger) {
	start := s.now()
	removed, err := s.retention.Apply(ctx, cfg, s.now(), createdID)
	metrics.RecordBackupOperation("retention", time.Since(start), err)
	if err != nil {
		log.Warn().Err(err).Str("stage", string(StageRetained)).Msg("Retention failed")
		return
	}
	log.Debug().Str("stage", string(StageRetained)).Int("deleted_count", len(removed)).Msg("Retention applied")
}

// ListBackups returns every record, newest first
func (s *Service) ListBackups() ([]BackupRecord, error) {
	records, err := s.catalog.List()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

// GetBackup returns the record with id or ErrNotFound
func (s *Service) GetBackup(id string) (*BackupRecord, error) {
	if err := validation.ValidateVar(id, "backupid"); err != nil {
		return nil, fmt.Errorf("%w: %q is not a backup id", ErrInvalidInput, id)
	}
	rec, ok, err := s.catalog.Get(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, nil
}

// DeleteBackup removes the local file, the remote copy (best effort) and the
// catalog entry. Deleting an unknown id succeeds without doing anything.
func (s *Service) DeleteBackup(ctx context.Context, id string) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.now()
	defer func() {
		metrics.RecordBackupOperation("delete", time.Since(start), err)
	}()

	rec, err := s.GetBackup(id)
	if errors.Is(err, ErrNotFound) {
		logging.Ctx(ctx).Debug().Str("backup_id", id).Msg("Delete of unknown backup ignored")
		return nil
	}
	if err != nil {
		return err
	}

	if err := s.retention.remove(ctx, *rec); err != nil {
		return err
	}
	s.refreshCatalogGauge()

	logging.Ctx(ctx).Info().Str("backup_id", id).Msg("Backup deleted")
	s.logActivity(ctx, ActionBackupDeleted, fmt.Sprintf("Deleted backup %s", id))
	return nil
}

// DownloadBackup opens the stored archive (ciphertext when encrypted). The
// caller closes the reader.
func (s *Service) DownloadBackup(id string) (io.ReadCloser, *BackupRecord, error) {
	rec, err := s.GetBackup(id)
	if err != nil {
		return nil, nil, err
	}

	f, err := os.Open(archivePath(s.paths.BackupDir, rec.Filename)) //nolint:gosec // G304: base name inside backup dir
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("%w: file for %s is missing", ErrCorruptBackup, id)
		}
		return nil, nil, fmt.Errorf("failed to open backup %s: %w", id, err)
	}
	return f, rec, nil
}

// ListRemoteBackups lists the objects held by the remote store
func (s *Service) ListRemoteBackups(ctx context.Context) ([]RemoteObject, error) {
	if !s.remote.IsConfigured() {
		return nil, fmt.Errorf("%w: no remote provider configured", ErrRemoteSync)
	}
	return s.remote.List(ctx)
}

func (s *Service) refreshCatalogGauge() {
	if records, _, err := s.catalog.Load(); err == nil {
		metrics.SetCatalogRecords(len(records))
	}
}

// logActivity forwards an audit entry. It never fails the caller.
func (s *Service) logActivity(ctx context.Context, action, details string) {
	if s.activity == nil {
		return
	}

	userID := logging.UserIDFromContext(ctx)
	defer func() {
		if r := recover(); r != nil {
			logging.Ctx(ctx).Error().Interface("panic", r).Str("action", action).Msg("Activity logger panicked")
		}
	}()

	if err := s.activity.Log(userID, action, details); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("action", action).Msg("Failed to record activity")
	}
}

func logSize(e *zerolog.Event, size int64) *zerolog.Event {
	return e.Int64("size_bytes", size).Str("size", humanize.IBytes(uint64(size))) //nolint:gosec // sizes are non-negative
}
