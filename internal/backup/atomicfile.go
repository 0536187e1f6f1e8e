// Wikivault - Wiki Backup and Restore Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wikivault

package backup

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// writeFileAtomic writes path through a temp file in the same directory and
// renames it into place. A failure at any point leaves the previous contents
// of path untouched and removes the temp file.
func writeFileAtomic(path string, perm os.FileMode, write func(w io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	committed := false
	defer func() {
		if !committed {
			tmp.Close()        //nolint:errcheck // Best effort cleanup on error
			os.Remove(tmpPath) //nolint:errcheck // Best effort cleanup on error
		}
	}()

	if err := write(tmp); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	committed = true

	syncDir(dir)
	return nil
}

// writeBytesAtomic is writeFileAtomic for an in-memory payload
func writeBytesAtomic(path string, data []byte, perm os.FileMode) error {
	return writeFileAtomic(path, perm, func(w io.Writer) error {
		_, err := io.Copy(w, bytes.NewReader(data))
		return err
	})
}

// syncDir flushes directory entries so a completed rename survives a crash
func syncDir(dir string) {
	d, err := os.Open(dir) //nolint:gosec // G304: dir is owned by this package
	if err != nil {
		return
	}
	d.Sync()  //nolint:errcheck // Not supported on every platform
	d.Close() //nolint:errcheck // Best effort cleanup
}

// fileExists checks if a regular file exists
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// getFileSize returns the size of a file, or 0 when it cannot be stat'd
func getFileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
