// Wikivault - Wiki Backup and Restore Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wikivault

package backup

import (
	"context"
	"fmt"
	"time"
)

// RemoteClient mirrors stored archives to an off-site object store. Every
// error returned wraps ErrRemoteSync.
type RemoteClient interface {
	// Name identifies the provider in logs and metrics (s3, gdrive, none)
	Name() string

	// IsConfigured reports whether credentials are present. An unconfigured
	// client makes CreateBackup record RemoteSkipped.
	IsConfigured() bool

	// Upload stores the file at localPath and returns its remote identifier
	Upload(ctx context.Context, localPath, displayName string) (string, error)

	// Download writes the object to destPath, replacing it atomically
	Download(ctx context.Context, remoteID, destPath string) error

	// Delete removes the object. Deleting an unknown id is not an error.
	Delete(ctx context.Context, remoteID string) error

	// List returns the objects stored by this service
	List(ctx context.Context) ([]RemoteObject, error)
}

// RemoteObject is one stored archive as seen by the remote store
type RemoteObject struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	SizeBytes int64     `json:"size_bytes"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// FolderResolver is implemented by remote clients whose target location can
// be pinned from BackupConfig.RemoteFolderID
type FolderResolver interface {
	SetFolderID(id string)
}

// NoopClient is the remote client used when no provider is configured
type NoopClient struct{}

// NewNoopClient returns the not-configured client
func NewNoopClient() *NoopClient {
	return &NoopClient{}
}

func (NoopClient) Name() string { return "none" }

func (NoopClient) IsConfigured() bool { return false }

func (NoopClient) Upload(context.Context, string, string) (string, error) {
	return "", fmt.Errorf("%w: no remote provider configured", ErrRemoteSync)
}

func (NoopClient) Download(context.Context, string, string) error {
	return fmt.Errorf("%w: no remote provider configured", ErrRemoteSync)
}

func (NoopClient) Delete(context.Context, string) error {
	return fmt.Errorf("%w: no remote provider configured", ErrRemoteSync)
}

func (NoopClient) List(context.Context) ([]RemoteObject, error) {
	return nil, fmt.Errorf("%w: no remote provider configured", ErrRemoteSync)
}
