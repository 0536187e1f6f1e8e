// Wikivault - Wiki Backup and Restore Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wikivault

package backup

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/zip"
)

// maxEntrySize limits a single extracted file (decompression bomb guard)
const maxEntrySize = 1 << 30

// ArchiveReader reads a plaintext archive produced by ArchiveBuilder
type ArchiveReader struct {
	zr       *zip.Reader
	entries  map[string]*zip.File
	manifest Manifest
}

// OpenArchive parses a plaintext zip and its manifest. A missing or
// unreadable manifest is an ErrCorruptBackup.
func OpenArchive(data []byte) (*ArchiveReader, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: not a readable archive: %v", ErrCorruptBackup, err)
	}

	r := &ArchiveReader{
		zr:      zr,
		entries: make(map[string]*zip.File, len(zr.File)),
	}
	for _, f := range zr.File {
		r.entries[f.Name] = f
	}

	mf, ok := r.entries[ManifestName]
	if !ok {
		return nil, fmt.Errorf("%w: archive has no %s", ErrCorruptBackup, ManifestName)
	}
	data, err = readEntry(mf)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read manifest: %v", ErrCorruptBackup, err)
	}
	if err := json.Unmarshal(data, &r.manifest); err != nil {
		return nil, fmt.Errorf("%w: failed to parse manifest: %v", ErrCorruptBackup, err)
	}

	return r, nil
}

// Manifest returns the embedded manifest
func (r *ArchiveReader) Manifest() Manifest {
	return r.manifest
}

// Verify checks that every manifest entry is present with the recorded size
// and checksum, and that no entry escapes the archive root.
func (r *ArchiveReader) Verify() error {
	for _, mf := range r.manifest.Files {
		if !isSafeLogicalPath(mf.Path) {
			return fmt.Errorf("%w: unsafe path in manifest: %s", ErrCorruptBackup, mf.Path)
		}

		f, ok := r.entries[mf.Path]
		if !ok {
			return fmt.Errorf("%w: %s listed in manifest but missing from archive", ErrCorruptBackup, mf.Path)
		}

		size, sum, err := hashEntry(f)
		if err != nil {
			return fmt.Errorf("%w: failed to read %s: %v", ErrCorruptBackup, mf.Path, err)
		}
		if size != mf.Size {
			return fmt.Errorf("%w: %s size mismatch (manifest %d, archive %d)", ErrCorruptBackup, mf.Path, mf.Size, size)
		}
		if sum != mf.SHA256 {
			return fmt.Errorf("%w: %s checksum mismatch", ErrCorruptBackup, mf.Path)
		}
	}
	return nil
}

// CountPrefix is the number of manifest entries under prefix
func (r *ArchiveReader) CountPrefix(prefix string) int {
	n := 0
	for _, mf := range r.manifest.Files {
		if strings.HasPrefix(mf.Path, prefix+"/") {
			n++
		}
	}
	return n
}

// ExtractPrefix writes every manifest entry under prefix into destDir. Each
// file is written to a temp file next to its target and renamed over it, so
// no single file is ever left half-written. It returns the logical paths
// replaced so far, also when it fails partway.
func (r *ArchiveReader) ExtractPrefix(prefix, destDir string) ([]string, error) {
	var restored []string
	base := prefix + "/"

	for _, mf := range r.manifest.Files {
		if !strings.HasPrefix(mf.Path, base) {
			continue
		}

		f, ok := r.entries[mf.Path]
		if !ok {
			return restored, fmt.Errorf("%w: %s missing from archive", ErrCorruptBackup, mf.Path)
		}

		destPath, err := validateAndBuildDestPath(destDir, strings.TrimPrefix(mf.Path, base))
		if err != nil {
			return restored, err
		}

		if err := extractEntryAtomic(f, destPath, mf.Size); err != nil {
			return restored, fmt.Errorf("failed to restore %s: %w", mf.Path, err)
		}
		restored = append(restored, mf.Path)
	}
	return restored, nil
}

// validateAndBuildDestPath joins a relative archive path onto destDir and
// rejects anything that would land outside it
func validateAndBuildDestPath(destDir, rel string) (string, error) {
	destPath := filepath.Join(destDir, filepath.FromSlash(rel))
	if !strings.HasPrefix(destPath, filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: invalid file path in archive: %s", ErrCorruptBackup, rel)
	}
	return destPath, nil
}

func isSafeLogicalPath(p string) bool {
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, "\\") {
		return false
	}
	cleaned := path.Clean(p)
	return cleaned == p && cleaned != ".." && !strings.HasPrefix(cleaned, "../")
}

// extractEntryAtomic writes one entry next to destPath and renames it over
// the original
func extractEntryAtomic(f *zip.File, destPath string, expectedSize int64) error {
	if expectedSize > maxEntrySize {
		return fmt.Errorf("file too large: %d bytes (max %d)", expectedSize, maxEntrySize)
	}

	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close() //nolint:errcheck // Best effort cleanup

	return writeFileAtomic(destPath, 0o640, func(w io.Writer) error {
		n, err := io.Copy(w, io.LimitReader(rc, maxEntrySize+1))
		if err != nil {
			return err
		}
		if n != expectedSize {
			return fmt.Errorf("%w: size mismatch for %s", ErrCorruptBackup, f.Name)
		}
		return nil
	})
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close() //nolint:errcheck // Best effort cleanup

	data, err := io.ReadAll(io.LimitReader(rc, maxEntrySize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxEntrySize {
		return nil, fmt.Errorf("entry exceeds %d bytes", maxEntrySize)
	}
	return data, nil
}

func hashEntry(f *zip.File) (int64, string, error) {
	rc, err := f.Open()
	if err != nil {
		return 0, "", err
	}
	defer rc.Close() //nolint:errcheck // Best effort cleanup

	hasher := sha256.New()
	n, err := io.Copy(hasher, io.LimitReader(rc, maxEntrySize+1))
	if err != nil {
		return 0, "", err
	}
	return n, hex.EncodeToString(hasher.Sum(nil)), nil
}
