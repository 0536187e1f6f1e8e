// Wikivault - Wiki Backup and Restore Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wikivault

package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/tomtom215/wikivault/internal/validation"
)

// Validate checks field bounds and the cross-field rules the tags cannot express
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return err
	}

	if err := c.validatePaths(); err != nil {
		return err
	}

	return c.validateRemote()
}

func (c *Config) validatePaths() error {
	backupDir, err := filepath.Abs(c.Paths.BackupDir)
	if err != nil {
		return fmt.Errorf("paths.backup_dir: %w", err)
	}
	keyFile, err := filepath.Abs(c.Paths.KeyFile)
	if err != nil {
		return fmt.Errorf("paths.key_file: %w", err)
	}
	dataDir, err := filepath.Abs(c.Paths.DataDir)
	if err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}

	if isWithin(backupDir, keyFile) {
		return errors.New("paths.key_file must not be inside paths.backup_dir")
	}
	if isWithin(dataDir, backupDir) {
		return errors.New("paths.backup_dir must not be inside paths.data_dir")
	}
	return nil
}

func (c *Config) validateRemote() error {
	switch c.Remote.Provider {
	case ProviderS3:
		if c.Remote.S3.Bucket == "" {
			return errors.New("remote.s3.bucket is required when remote.provider is s3")
		}
		if (c.Remote.S3.AccessKey == "") != (c.Remote.S3.SecretKey == "") {
			return errors.New("remote.s3.access_key and remote.s3.secret_key must be set together")
		}
	case ProviderGDrive:
		if c.Remote.GDrive.CredentialsFile == "" || c.Remote.GDrive.TokenFile == "" {
			return errors.New("remote.gdrive.credentials_file and remote.gdrive.token_file are required when remote.provider is gdrive")
		}
	}
	return nil
}

// isWithin reports whether path is dir or lies below it. Both must be absolute.
func isWithin(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
