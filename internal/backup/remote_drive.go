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
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/tomtom215/wikivault/internal/logging"
)

const driveFolderMimeType = "application/vnd.google-apps.folder"

// DriveOptions configures the Google Drive client. Consent happens out of
// band: TokenFile must already hold an OAuth token for CredentialsFile.
type DriveOptions struct {
	CredentialsFile string
	TokenFile       string

	// FolderName is created in My Drive when no folder id is pinned
	FolderName string
}

// DriveClient stores archives as files in a single Drive folder. The remote
// id is the Drive file id.
type DriveClient struct {
	opts DriveOptions

	mu       sync.Mutex
	svc      *drive.Service
	folderID string
}

// NewDriveClient creates a client. Nothing is read until the first call.
func NewDriveClient(opts DriveOptions) *DriveClient {
	if opts.FolderName == "" {
		opts.FolderName = "Wikivault Backups"
	}
	return &DriveClient{opts: opts}
}

func (c *DriveClient) Name() string { return "gdrive" }

// IsConfigured reports whether both the client credentials and a token exist
func (c *DriveClient) IsConfigured() bool {
	return c.opts.CredentialsFile != "" && c.opts.TokenFile != "" &&
		fileExists(c.opts.CredentialsFile) && fileExists(c.opts.TokenFile)
}

// SetFolderID pins the target folder. An empty id re-enables lookup by name.
func (c *DriveClient) SetFolderID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.folderID = strings.TrimSpace(id)
}

// service lazily builds the Drive service from the credential and token files
func (c *DriveClient) service(ctx context.Context) (*drive.Service, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.svc != nil {
		return c.svc, nil
	}
	if !c.IsConfigured() {
		return nil, fmt.Errorf("%w: google drive not configured", ErrRemoteSync)
	}

	creds, err := os.ReadFile(c.opts.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read drive credentials: %v", ErrRemoteSync, err)
	}
	oauthCfg, err := google.ConfigFromJSON(creds, drive.DriveFileScope)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid drive credentials: %v", ErrRemoteSync, err)
	}

	token, err := loadToken(c.opts.TokenFile)
	if err != nil {
		return nil, err
	}

	// The token source outlives ctx, so it gets its own background context
	ts := &persistingTokenSource{
		base: oauthCfg.TokenSource(context.Background(), token),
		path: c.opts.TokenFile,
		last: token.AccessToken,
	}

	svc, err := drive.NewService(ctx, option.WithTokenSource(oauth2.ReuseTokenSource(token, ts)))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create drive service: %v", ErrRemoteSync, err)
	}

	c.svc = svc
	return svc, nil
}

// folder returns the pinned folder id, or finds or creates the named folder
func (c *DriveClient) folder(ctx context.Context, svc *drive.Service) (string, error) {
	c.mu.Lock()
	pinned := c.folderID
	c.mu.Unlock()
	if pinned != "" {
		return pinned, nil
	}

	list, err := svc.Files.List().
		Q(folderQuery(c.opts.FolderName)).
		Fields("files(id,name)").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("%w: failed to look up drive folder: %v", ErrRemoteSync, err)
	}

	var id string
	if len(list.Files) > 0 {
		id = list.Files[0].Id
	} else {
		created, err := svc.Files.Create(&drive.File{
			Name:     c.opts.FolderName,
			MimeType: driveFolderMimeType,
		}).Fields("id").Context(ctx).Do()
		if err != nil {
			return "", fmt.Errorf("%w: failed to create drive folder: %v", ErrRemoteSync, err)
		}
		id = created.Id
		logging.Info().Str("folder", c.opts.FolderName).Str("folder_id", id).Msg("Created Google Drive backup folder")
	}

	c.mu.Lock()
	if c.folderID == "" {
		c.folderID = id
	}
	c.mu.Unlock()
	return id, nil
}

// Upload creates a file named displayName in the backup folder
func (c *DriveClient) Upload(ctx context.Context, localPath, displayName string) (string, error) {
	svc, err := c.service(ctx)
	if err != nil {
		return "", err
	}
	folderID, err := c.folder(ctx, svc)
	if err != nil {
		return "", err
	}

	f, err := os.Open(localPath) //nolint:gosec // G304: path is a stored archive
	if err != nil {
		return "", fmt.Errorf("%w: failed to open %s: %v", ErrRemoteSync, localPath, err)
	}
	defer f.Close() //nolint:errcheck // Best effort cleanup

	created, err := svc.Files.Create(&drive.File{
		Name:    displayName,
		Parents: []string{folderID},
	}).Media(f).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("%w: drive upload of %s: %v", ErrRemoteSync, displayName, err)
	}

	logging.Debug().Str("file_id", created.Id).Str("name", displayName).Msg("Uploaded backup to Google Drive")
	return created.Id, nil
}

// Download fetches the file media into destPath
func (c *DriveClient) Download(ctx context.Context, remoteID, destPath string) error {
	svc, err := c.service(ctx)
	if err != nil {
		return err
	}

	resp, err := svc.Files.Get(remoteID).Context(ctx).Download()
	if err != nil {
		if isDriveNotFound(err) {
			return fmt.Errorf("%w: %w: drive file %s", ErrRemoteSync, errRemoteNotFound, remoteID)
		}
		return fmt.Errorf("%w: drive download of %s: %v", ErrRemoteSync, remoteID, err)
	}
	defer resp.Body.Close() //nolint:errcheck // Best effort cleanup

	if err := writeFileAtomic(destPath, 0o600, func(w io.Writer) error {
		_, err := io.Copy(w, resp.Body)
		return err
	}); err != nil {
		return fmt.Errorf("%w: failed to write download: %v", ErrRemoteSync, err)
	}
	return nil
}

// Delete removes the file. A file that no longer exists is not an error.
func (c *DriveClient) Delete(ctx context.Context, remoteID string) error {
	svc, err := c.service(ctx)
	if err != nil {
		return err
	}

	if err := svc.Files.Delete(remoteID).Context(ctx).Do(); err != nil {
		if isDriveNotFound(err) {
			return nil
		}
		return fmt.Errorf("%w: drive delete of %s: %v", ErrRemoteSync, remoteID, err)
	}
	return nil
}

// List returns the files in the backup folder
func (c *DriveClient) List(ctx context.Context) ([]RemoteObject, error) {
	svc, err := c.service(ctx)
	if err != nil {
		return nil, err
	}
	folderID, err := c.folder(ctx, svc)
	if err != nil {
		return nil, err
	}

	var objects []RemoteObject
	err = svc.Files.List().
		Q(fmt.Sprintf("'%s' in parents and trashed=false", escapeDriveQuery(folderID))).
		Fields("nextPageToken, files(id,name,size,modifiedTime)").
		Context(ctx).
		Pages(ctx, func(page *drive.FileList) error {
			for _, f := range page.Files {
				modified, _ := time.Parse(time.RFC3339, f.ModifiedTime) //nolint:errcheck // zero time on bad input
				objects = append(objects, RemoteObject{
					ID:        f.Id,
					Name:      f.Name,
					SizeBytes: f.Size,
					UpdatedAt: modified,
				})
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("%w: drive list: %v", ErrRemoteSync, err)
	}
	return objects, nil
}

// folderQuery builds the Drive search for a non-trashed folder by name
func folderQuery(name string) string {
	return fmt.Sprintf("name='%s' and mimeType='%s' and trashed=false", escapeDriveQuery(name), driveFolderMimeType)
}

// escapeDriveQuery escapes a value for use inside single quotes in a Drive query
func escapeDriveQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

func isDriveNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}

// loadToken reads an oauth2.Token saved as JSON
func loadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: token path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read drive token: %v", ErrRemoteSync, err)
	}
	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("%w: invalid drive token file: %v", ErrRemoteSync, err)
	}
	if token.AccessToken == "" && token.RefreshToken == "" {
		return nil, fmt.Errorf("%w: drive token file holds no token", ErrRemoteSync)
	}
	return &token, nil
}

// persistingTokenSource writes refreshed tokens back to the token file
type persistingTokenSource struct {
	base oauth2.TokenSource
	path string

	mu   sync.Mutex
	last string
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if token.AccessToken != s.last {
		s.last = token.AccessToken
		if err := saveToken(s.path, token); err != nil {
			logging.Warn().Err(err).Msg("Failed to persist refreshed Google Drive token")
		}
	}
	return token, nil
}

func saveToken(path string, token *oauth2.Token) error {
	data, err := json.Marshal(token)
	if err != nil {
		return err
	}
	return writeBytesAtomic(path, data, 0o600)
}
