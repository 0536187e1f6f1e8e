// Wikivault - Wiki Backup and Restore Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wikivault

package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// testEnv holds the common test environment setup
type testEnv struct {
	root       string
	dataDir    string
	logsDir    string
	uploadsDir string
	backupDir  string
	keyFile    string

	clock    *fakeClock
	remote   *fakeRemote
	activity *recordingActivity
}

// newTestEnv creates a temp tree with a small wiki data set
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	root := t.TempDir()
	env := &testEnv{
		root:       root,
		dataDir:    filepath.Join(root, "data"),
		logsDir:    filepath.Join(root, "logs"),
		uploadsDir: filepath.Join(root, "uploads"),
		backupDir:  filepath.Join(root, "backups"),
		keyFile:    filepath.Join(root, "keys", "backup_key.key"),
		clock:      newFakeClock(time.Date(2026, 3, 14, 2, 0, 0, 0, time.UTC)),
		remote:     newFakeRemote(),
		activity:   &recordingActivity{},
	}

	writeTestFile(t, filepath.Join(env.dataDir, "pages.json"), `{"pages":[{"id":1,"title":"Home"}]}`)
	writeTestFile(t, filepath.Join(env.dataDir, "users.json"), `{"users":[{"id":"admin"}]}`)
	writeTestFile(t, filepath.Join(env.dataDir, "settings.json"), `{"theme":"light"}`)
	writeTestFile(t, filepath.Join(env.dataDir, "notes.txt"), "not a json file")
	writeTestFile(t, filepath.Join(env.logsDir, "app.log"), "started\n")
	writeTestFile(t, filepath.Join(env.uploadsDir, "images", "logo.png"), "\x89PNG fake")

	return env
}

// testConfig returns a config with encryption on and remote sync off
func testConfig() BackupConfig {
	cfg := DefaultBackupConfig()
	cfg.RemoteSyncEnabled = false
	return cfg
}

// newService creates a service using the env paths, fake clock, fake remote
// and recording activity logger
func (e *testEnv) newService(t *testing.T, cfg BackupConfig) *Service {
	t.Helper()

	svc, err := NewService(Options{
		Paths: Paths{
			BackupDir:  e.backupDir,
			DataDir:    e.dataDir,
			LogsDir:    e.logsDir,
			UploadsDir: e.uploadsDir,
		},
		KeyStore: NewKeyStore(e.keyFile),
		Config:   NewConfigStore(filepath.Join(e.backupDir, ConfigFileName), cfg),
		Remote:   e.remote,
		Activity: e.activity,
		Now:      e.clock.Now,
	})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return svc
}

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func readTestFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(data)
}

// fakeClock is a settable time source
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeRemote is an in-memory RemoteClient
type fakeRemote struct {
	mu         sync.Mutex
	configured bool
	objects    map[string][]byte
	nextID     int
	folderID   string

	uploadErr   error
	downloadErr error
	deleteErr   error

	uploads   int
	downloads int
	deletes   []string
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{configured: true, objects: make(map[string][]byte)}
}

func (f *fakeRemote) Name() string { return "fake" }

func (f *fakeRemote) IsConfigured() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.configured
}

func (f *fakeRemote) SetFolderID(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.folderID = id
}

func (f *fakeRemote) Upload(_ context.Context, localPath, displayName string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads++
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRemoteSync, err)
	}
	f.nextID++
	id := fmt.Sprintf("remote-%d-%s", f.nextID, displayName)
	f.objects[id] = data
	return id, nil
}

func (f *fakeRemote) Download(_ context.Context, remoteID, destPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloads++
	if f.downloadErr != nil {
		return f.downloadErr
	}
	data, ok := f.objects[remoteID]
	if !ok {
		return fmt.Errorf("%w: %w", ErrRemoteSync, errRemoteNotFound)
	}
	return writeBytesAtomic(destPath, data, 0o600)
}

func (f *fakeRemote) Delete(_ context.Context, remoteID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, remoteID)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.objects, remoteID)
	return nil
}

func (f *fakeRemote) List(context.Context) ([]RemoteObject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	objects := make([]RemoteObject, 0, len(f.objects))
	for id, data := range f.objects {
		objects = append(objects, RemoteObject{ID: id, Name: id, SizeBytes: int64(len(data))})
	}
	return objects, nil
}

func (f *fakeRemote) objectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

// recordingActivity captures activity entries
type recordingActivity struct {
	mu      sync.Mutex
	entries []activityEntry
	err     error
	panics  bool
}

type activityEntry struct {
	userID  string
	action  string
	details string
}

func (r *recordingActivity) Log(userID, action, details string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, activityEntry{userID: userID, action: action, details: details})
	if r.panics {
		panic("activity sink exploded")
	}
	return r.err
}

func (r *recordingActivity) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	actions := make([]string, len(r.entries))
	for i, e := range r.entries {
		actions[i] = e.action
	}
	return actions
}

var errInjected = errors.New("injected failure")

// record builds a catalog record for retention tests
func record(id string, createdAt time.Time, status BackupStatus) BackupRecord {
	return BackupRecord{
		ID:         id,
		Name:       "wiki_" + id,
		Filename:   "wiki_" + id + ".zip",
		SizeBytes:  100,
		CreatedAt:  createdAt,
		Compressed: true,
		Status:     status,
	}
}
