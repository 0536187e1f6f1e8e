// Wikivault - Wiki Backup and Restore Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wikivault

package backup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"

	"github.com/tomtom215/wikivault/internal/logging"
)

const (
	// ManifestName is the archive entry holding the Manifest
	ManifestName = "manifest.json"

	// ManifestVersion is written into every manifest
	ManifestVersion = "1.0"

	// Logical prefixes inside the archive
	PrefixData    = "data"
	PrefixLogs    = "logs"
	PrefixUploads = "uploads"
)

// Source is one directory contributing files to an archive under Prefix
type Source struct {
	// Prefix is the logical directory inside the archive (data, logs, uploads)
	Prefix string

	// Root is the filesystem directory to read
	Root string

	// Extensions limits the files taken from Root (".json"). Empty means all files.
	Extensions []string

	// Recursive walks subdirectories of Root
	Recursive bool

	// Required makes a missing Root an ErrArchiveBuild instead of a skip
	Required bool
}

// BuildRequest describes the archive to produce
type BuildRequest struct {
	ID          string
	Name        string
	Description string
	CreatedAt   time.Time
	Sources     []Source
}

// BuildResult is a finished archive in a temp file that the caller owns
type BuildResult struct {
	// Path is the temp file holding the zip
	Path string

	Manifest Manifest

	// Size is the size of the zip in bytes
	Size int64

	// Skipped lists logical paths that vanished while the backup ran
	Skipped []string
}

// ArchiveBuilder writes sources into a single deflate-compressed zip
type ArchiveBuilder struct {
	tempDir string
	level   int
}

// NewArchiveBuilder creates a builder writing temp files into tempDir with
// the given deflate level (0-9). Out of range levels use the default.
func NewArchiveBuilder(tempDir string, level int) *ArchiveBuilder {
	if level < flate.NoCompression || level > flate.BestCompression {
		level = flate.DefaultCompression
	}
	return &ArchiveBuilder{tempDir: tempDir, level: level}
}

// sourceFile is one enumerated file waiting to be archived
type sourceFile struct {
	logicalPath string
	fsPath      string
}

// Build enumerates every source and writes the archive. An empty source set
// still produces a valid archive containing only the manifest.
func (b *ArchiveBuilder) Build(ctx context.Context, req BuildRequest) (*BuildResult, error) {
	files, err := b.collect(req.Sources)
	if err != nil {
		return nil, err
	}
	return b.write(ctx, req, files)
}

// collect enumerates all sources in deterministic (lexical) order
func (b *ArchiveBuilder) collect(sources []Source) ([]sourceFile, error) {
	var files []sourceFile
	for _, src := range sources {
		info, err := os.Stat(src.Root)
		if err != nil || !info.IsDir() {
			if src.Required {
				return nil, fmt.Errorf("%w: source directory %s unavailable: %v", ErrArchiveBuild, src.Root, errOrNotDir(err))
			}
			logging.Debug().Str("prefix", src.Prefix).Str("root", src.Root).Msg("Optional backup source missing, skipping")
			continue
		}

		found, err := enumerateSource(src)
		if err != nil {
			return nil, err
		}
		files = append(files, found...)
	}
	return files, nil
}

func errOrNotDir(err error) error {
	if err != nil {
		return err
	}
	return errors.New("not a directory")
}

// enumerateSource lists the regular files of one source
func enumerateSource(src Source) ([]sourceFile, error) {
	var files []sourceFile

	walkErr := filepath.WalkDir(src.Root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && p != src.Root {
				logging.Warn().Str("path", p).Msg("Backup source vanished during walk, skipping")
				return nil
			}
			return err
		}
		if d.IsDir() {
			if p != src.Root && !src.Recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !matchesExtension(d.Name(), src.Extensions) {
			return nil
		}

		rel, err := filepath.Rel(src.Root, p)
		if err != nil {
			return err
		}
		files = append(files, sourceFile{
			logicalPath: path.Join(src.Prefix, filepath.ToSlash(rel)),
			fsPath:      p,
		})
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("%w: failed to enumerate %s: %v", ErrArchiveBuild, src.Root, walkErr)
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].logicalPath < files[j].logicalPath
	})
	return files, nil
}

func matchesExtension(name string, exts []string) bool {
	if len(exts) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}

// write archives the enumerated files plus the manifest into a temp file
func (b *ArchiveBuilder) write(ctx context.Context, req BuildRequest, files []sourceFile) (result *BuildResult, err error) {
	if err := os.MkdirAll(b.tempDir, 0o750); err != nil {
		return nil, fmt.Errorf("%w: failed to create temp directory: %v", ErrArchiveBuild, err)
	}

	tmp, err := os.CreateTemp(b.tempDir, ".build-*.zip")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create temp archive: %v", ErrArchiveBuild, err)
	}
	defer func() {
		if err != nil {
			tmp.Close()           //nolint:errcheck // Best effort cleanup on error
			os.Remove(tmp.Name()) //nolint:errcheck // Best effort cleanup on error
		}
	}()

	zw := zip.NewWriter(tmp)
	level := b.level
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, level)
	})

	manifest := Manifest{
		BackupID:    req.ID,
		BackupName:  req.Name,
		CreatedAt:   req.CreatedAt,
		Description: req.Description,
		Version:     ManifestVersion,
		Files:       make([]ManifestFile, 0, len(files)),
	}
	var skipped []string

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrArchiveBuild, err)
		}

		entry, err := addFileToArchive(zw, f)
		if errors.Is(err, fs.ErrNotExist) {
			logging.Warn().Str("path", f.logicalPath).Msg("Backup source file vanished, skipping")
			skipped = append(skipped, f.logicalPath)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: failed to add %s: %v", ErrArchiveBuild, f.logicalPath, err)
		}
		manifest.Files = append(manifest.Files, entry)
	}

	if err := addManifestToArchive(zw, &manifest); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArchiveBuild, err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("%w: failed to finalize archive: %v", ErrArchiveBuild, err)
	}
	if err := tmp.Sync(); err != nil {
		return nil, fmt.Errorf("%w: failed to sync archive: %v", ErrArchiveBuild, err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("%w: failed to close archive: %v", ErrArchiveBuild, err)
	}

	return &BuildResult{
		Path:     tmp.Name(),
		Manifest: manifest,
		Size:     getFileSize(tmp.Name()),
		Skipped:  skipped,
	}, nil
}

// addFileToArchive copies one file into the zip while hashing it. A file
// that disappears before it is opened returns fs.ErrNotExist untouched.
//
//nolint:gosec // G304: paths come from enumerating configured source roots
func addFileToArchive(zw *zip.Writer, f sourceFile) (ManifestFile, error) {
	file, err := os.Open(f.fsPath)
	if err != nil {
		return ManifestFile{}, err
	}
	defer file.Close() //nolint:errcheck // Best effort cleanup

	info, err := file.Stat()
	if err != nil {
		return ManifestFile{}, err
	}

	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     f.logicalPath,
		Method:   zip.Deflate,
		Modified: info.ModTime(),
	})
	if err != nil {
		return ManifestFile{}, fmt.Errorf("failed to create archive entry: %w", err)
	}

	hasher := sha256.New()
	n, err := io.Copy(io.MultiWriter(w, hasher), file)
	if err != nil {
		return ManifestFile{}, fmt.Errorf("failed to write file content: %w", err)
	}

	return ManifestFile{
		Path:   f.logicalPath,
		Size:   n,
		SHA256: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// addManifestToArchive writes manifest.json as the last entry
func addManifestToArchive(zw *zip.Writer, manifest *Manifest) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     ManifestName,
		Method:   zip.Deflate,
		Modified: manifest.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to create manifest entry: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}
