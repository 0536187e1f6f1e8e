// Wikivault - Wiki Backup and Restore Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wikivault

package backup

import (
	"errors"
	"fmt"
)

var (
	// ErrKeyStore is returned when the key file cannot be read or written.
	ErrKeyStore = errors.New("key store error")

	// ErrArchiveBuild is returned when source enumeration fails entirely.
	ErrArchiveBuild = errors.New("archive build failed")

	// ErrDecryption is returned for a wrong key, a tampered archive or malformed ciphertext.
	ErrDecryption = errors.New("decryption failed")

	// ErrCatalogCorruption is returned when the catalog file cannot be parsed.
	// Writes are refused while this condition holds.
	ErrCatalogCorruption = errors.New("backup catalog is corrupt")

	// ErrRemoteSync is returned for network, auth or quota failures against the remote store.
	ErrRemoteSync = errors.New("remote sync failed")

	// ErrNotFound is returned when an operation references an unknown backup id.
	ErrNotFound = errors.New("backup not found")

	// ErrCorruptBackup is returned when a record's file is missing or fails manifest verification.
	ErrCorruptBackup = errors.New("backup is corrupt")

	// ErrDuplicateID is returned when appending a record whose id already exists.
	ErrDuplicateID = errors.New("duplicate backup id")

	// ErrInvalidConfig is returned when a BackupConfig fails validation.
	ErrInvalidConfig = errors.New("invalid backup configuration")

	// ErrUnknownConfigKey is returned when a config patch names a field that does not exist.
	ErrUnknownConfigKey = errors.New("unknown backup configuration key")

	// ErrInvalidInput is returned for malformed caller input such as an overlong description.
	ErrInvalidInput = errors.New("invalid input")
)

// RestoreStage names the step of a restore that failed.
type RestoreStage string

const (
	RestoreSafetyBackup RestoreStage = "safety_backup"
	RestoreRead         RestoreStage = "read"
	RestoreDecrypt      RestoreStage = "decrypt"
	RestoreVerify       RestoreStage = "verify"
	RestoreExtract      RestoreStage = "extract"
)

// RestoreError reports the stage at which a restore failed.
type RestoreError struct {
	Stage RestoreStage
	Err   error
}

func (e *RestoreError) Error() string {
	return fmt.Sprintf("restore failed at %s: %v", e.Stage, e.Err)
}

func (e *RestoreError) Unwrap() error {
	return e.Err
}
