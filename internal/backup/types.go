// Wikivault - Wiki Backup and Restore Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wikivault

package backup

import (
	"time"
)

// BackupStatus represents the lifecycle state of a catalog record
type BackupStatus string

const (
	// StatusPending marks a record whose archive is stored locally but whose
	// pipeline has not reached CATALOGED yet
	StatusPending BackupStatus = "pending"

	// StatusCompleted marks a record whose archive is verified on disk and
	// whose catalog entry is persisted
	StatusCompleted BackupStatus = "completed"

	// StatusFailed marks a record whose pipeline aborted after STORED_LOCAL
	StatusFailed BackupStatus = "failed"
)

// RemoteStatus records the outcome of the remote sync stage
type RemoteStatus string

const (
	RemoteSynced  RemoteStatus = "synced"
	RemoteSkipped RemoteStatus = "skipped"
	RemoteFailed  RemoteStatus = "failed"
)

// BackupTrigger identifies what initiated a backup
type BackupTrigger string

const (
	// TriggerManual is a backup requested by a user
	TriggerManual BackupTrigger = "manual"

	// TriggerScheduled is a backup created by the scheduler
	TriggerScheduled BackupTrigger = "scheduled"

	// TriggerPreRestore is the safety snapshot taken before a restore
	TriggerPreRestore BackupTrigger = "pre_restore"
)

// Stage is a step of the create pipeline
type Stage string

const (
	StageStarted     Stage = "started"
	StageBuilt       Stage = "built"
	StageEncrypted   Stage = "encrypted"
	StageStoredLocal Stage = "stored_local"
	StageSynced      Stage = "synced"
	StageSyncSkipped Stage = "sync_skipped"
	StageSyncFailed  Stage = "sync_failed"
	StageCataloged   Stage = "cataloged"
	StageRetained    Stage = "retained"
)

// BackupRecord is one catalog entry. Only RemoteID, RemoteStatus and Status
// change after the record is appended.
type BackupRecord struct {
	// ID is derived from the creation timestamp, e.g. backup_20260314_020000
	ID string `json:"id"`

	// Name is the archive base name
	Name string `json:"name"`

	// Filename is the stored archive, relative to the backup directory
	Filename string `json:"filename"`

	// SizeBytes is the size of the stored (possibly encrypted) file
	SizeBytes int64 `json:"size_bytes"`

	// CreatedAt is UTC
	CreatedAt time.Time `json:"created_at"`

	Description string `json:"description,omitempty"`

	Encrypted bool `json:"encrypted"`

	// Compressed is always true; zip entries are deflated
	Compressed bool `json:"compressed"`

	// RemoteID is the object-store identifier, empty until sync succeeds
	RemoteID string `json:"remote_id,omitempty"`

	// RemoteStatus is synced, skipped or failed
	RemoteStatus RemoteStatus `json:"remote_status,omitempty"`

	Status BackupStatus `json:"status"`

	Trigger BackupTrigger `json:"trigger,omitempty"`

	// FileCount is the number of files listed in the manifest
	FileCount int `json:"file_count"`
}

// RecordUpdate carries the mutable fields of a record. Nil fields are left unchanged.
type RecordUpdate struct {
	RemoteID     *string
	RemoteStatus *RemoteStatus
	Status       *BackupStatus
}

// Manifest is embedded in every archive as manifest.json
type Manifest struct {
	BackupID    string         `json:"backup_id"`
	BackupName  string         `json:"backup_name"`
	CreatedAt   time.Time      `json:"created_at"`
	Description string         `json:"description,omitempty"`
	Version     string         `json:"version"`
	Files       []ManifestFile `json:"files"`
}

// ManifestFile describes one archived file
type ManifestFile struct {
	// Path is the logical path inside the archive (data/pages.json)
	Path string `json:"path"`

	Size int64 `json:"size"`

	// SHA256 is the hex digest of the file contents
	SHA256 string `json:"sha256"`
}

// RestoreResult is returned by RestoreBackup
type RestoreResult struct {
	// Restored is the record that was restored
	Restored *BackupRecord `json:"restored"`

	// Safety is the pre-restore snapshot. It is set whenever the snapshot
	// succeeded, including when a later stage failed.
	Safety *BackupRecord `json:"safety"`

	// FilesRestored lists the logical paths written over the data directory
	FilesRestored []string `json:"files_restored"`

	Warnings []string `json:"warnings,omitempty"`

	Duration time.Duration `json:"duration"`
}

// BackupStats is computed from the catalog on every call
type BackupStats struct {
	TotalBackups     int           `json:"total_backups"`
	TotalSizeBytes   int64         `json:"total_size_bytes"`
	TotalSizeHuman   string        `json:"total_size_human"`
	EncryptedBackups int           `json:"encrypted_backups"`
	RemoteBackups    int           `json:"remote_backups"`
	FailedBackups    int           `json:"failed_backups"`
	OldestBackup     *time.Time    `json:"oldest_backup,omitempty"`
	NewestBackup     *time.Time    `json:"newest_backup,omitempty"`
	LatestBackup     *BackupRecord `json:"latest_backup,omitempty"`
}

// ValidationResult contains the outcome of ValidateBackup
type ValidationResult struct {
	Valid     bool     `json:"valid"`
	FileCount int      `json:"file_count"`
	Errors    []string `json:"errors,omitempty"`
}
