// Wikivault - Wiki Backup and Restore Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wikivault

package backup

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/zip"
)

func buildTestArchive(t *testing.T, env *testEnv, sources []Source) (*BuildResult, []byte) {
	t.Helper()

	builder := NewArchiveBuilder(env.backupDir, 6)
	result, err := builder.Build(context.Background(), BuildRequest{
		ID:        "backup_20260314_020000",
		Name:      "wiki_backup_20260314_020000",
		CreatedAt: env.clock.Now(),
		Sources:   sources,
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	t.Cleanup(func() { os.Remove(result.Path) }) //nolint:errcheck // Best effort cleanup

	data, err := os.ReadFile(result.Path)
	if err != nil {
		t.Fatalf("failed to read built archive: %v", err)
	}
	return result, data
}

func manifestPaths(m Manifest) []string {
	paths := make([]string, len(m.Files))
	for i, f := range m.Files {
		paths[i] = f.Path
	}
	return paths
}

func TestArchiveBuilder_BuildAndVerify(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	result, data := buildTestArchive(t, env, []Source{
		{Prefix: PrefixData, Root: env.dataDir, Extensions: []string{".json"}, Required: true},
		{Prefix: PrefixLogs, Root: env.logsDir, Extensions: []string{".log"}},
		{Prefix: PrefixUploads, Root: env.uploadsDir, Recursive: true},
	})

	want := []string{
		"data/pages.json",
		"data/settings.json",
		"data/users.json",
		"logs/app.log",
		"uploads/images/logo.png",
	}
	got := manifestPaths(result.Manifest)
	if len(got) != len(want) {
		t.Fatalf("manifest files = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("manifest file[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	if result.Manifest.Version != ManifestVersion {
		t.Errorf("manifest version = %s, want %s", result.Manifest.Version, ManifestVersion)
	}
	if result.Size != int64(len(data)) {
		t.Errorf("BuildResult.Size = %d, want %d", result.Size, len(data))
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("archive is not a zip: %v", err)
	}
	if last := zr.File[len(zr.File)-1].Name; last != ManifestName {
		t.Errorf("last entry = %s, want %s", last, ManifestName)
	}

	archive, err := OpenArchive(data)
	if err != nil {
		t.Fatalf("OpenArchive() error = %v", err)
	}
	if err := archive.Verify(); err != nil {
		t.Errorf("Verify() error = %v", err)
	}
	if archive.Manifest().BackupID != "backup_20260314_020000" {
		t.Errorf("manifest backup id = %s", archive.Manifest().BackupID)
	}
}

func TestArchiveBuilder_NonRecursiveSkipsSubdirectories(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	writeTestFile(t, filepath.Join(env.dataDir, "archive", "old.json"), `{}`)

	result, _ := buildTestArchive(t, env, []Source{
		{Prefix: PrefixData, Root: env.dataDir, Extensions: []string{".json"}, Required: true},
	})

	for _, p := range manifestPaths(result.Manifest) {
		if p == "data/archive/old.json" {
			t.Error("non-recursive source included a nested file")
		}
		if p == "data/notes.txt" {
			t.Error("extension filter let a .txt file through")
		}
	}
}

func TestArchiveBuilder_MissingSources(t *testing.T) {
	t.Parallel()

	t.Run("required source missing", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		builder := NewArchiveBuilder(env.backupDir, 6)
		_, err := builder.Build(context.Background(), BuildRequest{
			ID:      "backup_x",
			Sources: []Source{{Prefix: PrefixData, Root: filepath.Join(env.root, "nope"), Required: true}},
		})
		if !errors.Is(err, ErrArchiveBuild) {
			t.Errorf("Build() error = %v, want ErrArchiveBuild", err)
		}
	})

	t.Run("optional source missing", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		result, _ := buildTestArchive(t, env, []Source{
			{Prefix: PrefixData, Root: env.dataDir, Extensions: []string{".json"}, Required: true},
			{Prefix: PrefixLogs, Root: filepath.Join(env.root, "nope")},
		})
		if len(result.Manifest.Files) != 3 {
			t.Errorf("manifest has %d files, want 3", len(result.Manifest.Files))
		}
	})
}

func TestArchiveBuilder_EmptySourceSet(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	result, data := buildTestArchive(t, env, nil)

	if len(result.Manifest.Files) != 0 {
		t.Errorf("manifest has %d files, want 0", len(result.Manifest.Files))
	}
	archive, err := OpenArchive(data)
	if err != nil {
		t.Fatalf("OpenArchive() error = %v", err)
	}
	if err := archive.Verify(); err != nil {
		t.Errorf("Verify() error = %v", err)
	}
}

func TestArchiveBuilder_VanishedFileSkipped(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	builder := NewArchiveBuilder(env.backupDir, 6)
	files, err := builder.collect([]Source{
		{Prefix: PrefixData, Root: env.dataDir, Extensions: []string{".json"}, Required: true},
	})
	if err != nil {
		t.Fatalf("collect() error = %v", err)
	}

	if err := os.Remove(filepath.Join(env.dataDir, "settings.json")); err != nil {
		t.Fatalf("failed to remove file: %v", err)
	}

	result, err := builder.write(context.Background(), BuildRequest{ID: "backup_x"}, files)
	if err != nil {
		t.Fatalf("write() error = %v", err)
	}
	defer os.Remove(result.Path) //nolint:errcheck // Best effort cleanup

	if len(result.Skipped) != 1 || result.Skipped[0] != "data/settings.json" {
		t.Errorf("Skipped = %v, want [data/settings.json]", result.Skipped)
	}
	if len(result.Manifest.Files) != 2 {
		t.Errorf("manifest has %d files, want 2", len(result.Manifest.Files))
	}
}

func TestArchiveBuilder_CancelledContextCleansUp(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	builder := NewArchiveBuilder(env.backupDir, 6)
	_, err := builder.Build(ctx, BuildRequest{
		ID:      "backup_x",
		Sources: []Source{{Prefix: PrefixData, Root: env.dataDir, Required: true}},
	})
	if !errors.Is(err, ErrArchiveBuild) {
		t.Errorf("Build() error = %v, want ErrArchiveBuild", err)
	}

	leftovers, _ := filepath.Glob(filepath.Join(env.backupDir, ".build-*.zip"))
	if len(leftovers) != 0 {
		t.Errorf("temp archives left behind: %v", leftovers)
	}
}

// handmadeArchive writes a zip with the given entries and manifest
func handmadeArchive(t *testing.T, entries map[string]string, manifest Manifest) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range entries {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("failed to create entry: %v", err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("failed to write entry: %v", err)
		}
	}
	mdata, err := json.Marshal(manifest)
	if err != nil {
		t.Fatalf("failed to marshal manifest: %v", err)
	}
	w, err := zw.Create(ManifestName)
	if err != nil {
		t.Fatalf("failed to create manifest: %v", err)
	}
	if _, err := w.Write(mdata); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("failed to close zip: %v", err)
	}
	return buf.Bytes()
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func TestArchiveReader_VerifyDetectsCorruption(t *testing.T) {
	t.Parallel()

	content := `{"pages":[]}`
	tests := []struct {
		name     string
		entries  map[string]string
		manifest []ManifestFile
	}{
		{
			name:     "checksum mismatch",
			entries:  map[string]string{"data/pages.json": content},
			manifest: []ManifestFile{{Path: "data/pages.json", Size: int64(len(content)), SHA256: sha256Hex("other")}},
		},
		{
			name:     "size mismatch",
			entries:  map[string]string{"data/pages.json": content},
			manifest: []ManifestFile{{Path: "data/pages.json", Size: 1, SHA256: sha256Hex(content)}},
		},
		{
			name:     "entry missing",
			entries:  map[string]string{},
			manifest: []ManifestFile{{Path: "data/pages.json", Size: int64(len(content)), SHA256: sha256Hex(content)}},
		},
		{
			name:     "path traversal",
			entries:  map[string]string{"../evil.json": content},
			manifest: []ManifestFile{{Path: "../evil.json", Size: int64(len(content)), SHA256: sha256Hex(content)}},
		},
		{
			name:     "absolute path",
			entries:  map[string]string{"/etc/passwd": content},
			manifest: []ManifestFile{{Path: "/etc/passwd", Size: int64(len(content)), SHA256: sha256Hex(content)}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			data := handmadeArchive(t, tt.entries, Manifest{BackupID: "b", Files: tt.manifest})
			archive, err := OpenArchive(data)
			if err != nil {
				// Some zip readers reject unsafe names up front
				if !errors.Is(err, ErrCorruptBackup) {
					t.Errorf("OpenArchive() error = %v, want ErrCorruptBackup", err)
				}
				return
			}
			if err := archive.Verify(); !errors.Is(err, ErrCorruptBackup) {
				t.Errorf("Verify() error = %v, want ErrCorruptBackup", err)
			}
		})
	}
}

func TestOpenArchive_Invalid(t *testing.T) {
	t.Parallel()

	var noManifest bytes.Buffer
	zw := zip.NewWriter(&noManifest)
	if _, err := zw.Create("data/pages.json"); err != nil {
		t.Fatalf("failed to create entry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("failed to close zip: %v", err)
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"not a zip", []byte("definitely not a zip file")},
		{"empty", nil},
		{"no manifest", noManifest.Bytes()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := OpenArchive(tt.data); !errors.Is(err, ErrCorruptBackup) {
				t.Errorf("OpenArchive() error = %v, want ErrCorruptBackup", err)
			}
		})
	}
}

func TestArchiveReader_ExtractPrefix(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	_, data := buildTestArchive(t, env, []Source{
		{Prefix: PrefixData, Root: env.dataDir, Extensions: []string{".json"}, Required: true},
		{Prefix: PrefixLogs, Root: env.logsDir},
	})

	dest := filepath.Join(t.TempDir(), "restored")
	writeTestFile(t, filepath.Join(dest, "pages.json"), `{"pages":"stale"}`)
	writeTestFile(t, filepath.Join(dest, "extra.json"), `{"kept":true}`)

	archive, err := OpenArchive(data)
	if err != nil {
		t.Fatalf("OpenArchive() error = %v", err)
	}
	restored, err := archive.ExtractPrefix(PrefixData, dest)
	if err != nil {
		t.Fatalf("ExtractPrefix() error = %v", err)
	}
	if len(restored) != 3 {
		t.Errorf("restored %d files, want 3: %v", len(restored), restored)
	}

	if got := readTestFile(t, filepath.Join(dest, "pages.json")); got != readTestFile(t, filepath.Join(env.dataDir, "pages.json")) {
		t.Errorf("pages.json = %s, want original contents", got)
	}
	// Files absent from the archive are left alone
	if got := readTestFile(t, filepath.Join(dest, "extra.json")); got != `{"kept":true}` {
		t.Errorf("extra.json = %s, want untouched", got)
	}
	if fileExists(filepath.Join(dest, "app.log")) {
		t.Error("logs prefix was extracted into the data directory")
	}

	leftovers, _ := filepath.Glob(filepath.Join(dest, ".*.tmp"))
	if len(leftovers) != 0 {
		t.Errorf("temp files left behind: %v", leftovers)
	}
}

func TestArchiveBuilder_CompressionLevelFallback(t *testing.T) {
	t.Parallel()

	b := NewArchiveBuilder(t.TempDir(), 42)
	if b.level != -1 {
		t.Errorf("level = %d, want default (-1)", b.level)
	}

	b = NewArchiveBuilder(t.TempDir(), 0)
	if b.level != 0 {
		t.Errorf("level = %d, want 0", b.level)
	}
}
