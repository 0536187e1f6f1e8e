// Wikivault - Wiki Backup and Restore Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wikivault

package backup

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	return NewCatalog(filepath.Join(t.TempDir(), CatalogFileName))
}

func TestCatalog_LoadMissingVsCorrupt(t *testing.T) {
	t.Parallel()

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		c := newTestCatalog(t)
		records, found, err := c.Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if found {
			t.Error("found = true for a missing catalog")
		}
		if len(records) != 0 {
			t.Errorf("records = %v, want none", records)
		}
	})

	t.Run("corrupt file", func(t *testing.T) {
		t.Parallel()
		c := newTestCatalog(t)
		writeTestFile(t, c.Path(), `[{"id": "backup_1",`)
		_, found, err := c.Load()
		if !errors.Is(err, ErrCatalogCorruption) {
			t.Errorf("Load() error = %v, want ErrCatalogCorruption", err)
		}
		if !found {
			t.Error("found = false for a corrupt catalog")
		}
	})

	t.Run("empty array", func(t *testing.T) {
		t.Parallel()
		c := newTestCatalog(t)
		writeTestFile(t, c.Path(), `[]`)
		records, found, err := c.Load()
		if err != nil || !found || len(records) != 0 {
			t.Errorf("Load() = %v, %v, %v; want empty, true, nil", records, found, err)
		}
	})
}

func TestCatalog_CorruptCatalogRefusesWrites(t *testing.T) {
	t.Parallel()

	c := newTestCatalog(t)
	const garbage = `{not json`
	writeTestFile(t, c.Path(), garbage)

	now := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	if err := c.Append(record("b1", now, StatusCompleted)); !errors.Is(err, ErrCatalogCorruption) {
		t.Errorf("Append() error = %v, want ErrCatalogCorruption", err)
	}
	if _, err := c.Remove("b1"); !errors.Is(err, ErrCatalogCorruption) {
		t.Errorf("Remove() error = %v, want ErrCatalogCorruption", err)
	}
	if got := readTestFile(t, c.Path()); got != garbage {
		t.Errorf("corrupt catalog was overwritten: %q", got)
	}
}

func TestCatalog_ListOrdersByCreatedAt(t *testing.T) {
	t.Parallel()

	c := newTestCatalog(t)
	base := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	for _, r := range []BackupRecord{
		record("b3", base.Add(3*time.Hour), StatusCompleted),
		record("b1", base.Add(1*time.Hour), StatusCompleted),
		record("b2", base.Add(2*time.Hour), StatusFailed),
	} {
		if err := c.Append(r); err != nil {
			t.Fatalf("Append(%s) error = %v", r.ID, err)
		}
	}

	// File order is append order
	raw, _, err := c.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if raw[0].ID != "b3" {
		t.Errorf("first stored record = %s, want b3", raw[0].ID)
	}

	records, err := c.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	for i, want := range []string{"b1", "b2", "b3"} {
		if records[i].ID != want {
			t.Errorf("List()[%d] = %s, want %s", i, records[i].ID, want)
		}
	}

	failed, err := c.ListByStatus(StatusFailed)
	if err != nil {
		t.Fatalf("ListByStatus() error = %v", err)
	}
	if len(failed) != 1 || failed[0].ID != "b2" {
		t.Errorf("ListByStatus(failed) = %v, want [b2]", failed)
	}

	between, err := c.ListBetween(base.Add(90*time.Minute), base.Add(4*time.Hour))
	if err != nil {
		t.Fatalf("ListBetween() error = %v", err)
	}
	if len(between) != 2 {
		t.Errorf("ListBetween() returned %d records, want 2", len(between))
	}
}

func TestCatalog_AppendRejectsDuplicate(t *testing.T) {
	t.Parallel()

	c := newTestCatalog(t)
	now := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	if err := c.Append(record("b1", now, StatusCompleted)); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := c.Append(record("b1", now, StatusCompleted)); !errors.Is(err, ErrDuplicateID) {
		t.Errorf("Append() duplicate error = %v, want ErrDuplicateID", err)
	}
}

func TestCatalog_UpdateAndRemove(t *testing.T) {
	t.Parallel()

	c := newTestCatalog(t)
	now := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	if err := c.Append(record("b1", now, StatusPending)); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	remoteID := "remote-1"
	synced := RemoteSynced
	completed := StatusCompleted
	found, err := c.Update("b1", RecordUpdate{RemoteID: &remoteID, RemoteStatus: &synced, Status: &completed})
	if err != nil || !found {
		t.Fatalf("Update() = %v, %v; want true, nil", found, err)
	}

	rec, ok, err := c.Get("b1")
	if err != nil || !ok {
		t.Fatalf("Get() = %v, %v", ok, err)
	}
	if rec.RemoteID != remoteID || rec.RemoteStatus != RemoteSynced || rec.Status != StatusCompleted {
		t.Errorf("record after update = %+v", rec)
	}
	if rec.SizeBytes != 100 || rec.Filename != "wiki_b1.zip" {
		t.Error("update changed immutable fields")
	}

	found, err = c.Update("missing", RecordUpdate{Status: &completed})
	if err != nil || found {
		t.Errorf("Update(missing) = %v, %v; want false, nil", found, err)
	}

	found, err = c.Remove("b1")
	if err != nil || !found {
		t.Fatalf("Remove() = %v, %v; want true, nil", found, err)
	}
	found, err = c.Remove("b1")
	if err != nil || found {
		t.Errorf("second Remove() = %v, %v; want false, nil", found, err)
	}
	if _, ok, _ := c.Get("b1"); ok {
		t.Error("record still present after Remove")
	}
}

func TestCatalog_ConcurrentAppends(t *testing.T) {
	t.Parallel()

	c := newTestCatalog(t)
	base := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	const writers = 20
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := "b" + string(rune('a'+i))
			errs <- c.Append(record(id, base.Add(time.Duration(i)*time.Minute), StatusCompleted))
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Append() error = %v", err)
		}
	}
	records, err := c.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(records) != writers {
		t.Errorf("catalog has %d records, want %d", len(records), writers)
	}
}

func TestWriteFileAtomic_FailedWriteKeepsPrevious(t *testing.T) {
	t.Parallel()

	c := newTestCatalog(t)
	now := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	if err := c.Append(record("b1", now, StatusCompleted)); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	before := readTestFile(t, c.Path())

	// Simulate a crash halfway through writing the next version
	err := writeFileAtomic(c.Path(), 0o600, func(w io.Writer) error {
		if _, err := w.Write([]byte(`[{"id":"b1"`)); err != nil {
			return err
		}
		return errInjected
	})
	if !errors.Is(err, errInjected) {
		t.Fatalf("writeFileAtomic() error = %v, want injected failure", err)
	}

	if after := readTestFile(t, c.Path()); after != before {
		t.Error("catalog changed after a failed write")
	}
	records, err := c.List()
	if err != nil || len(records) != 1 {
		t.Errorf("List() = %v, %v; want the original record", records, err)
	}

	leftovers, _ := filepath.Glob(filepath.Join(filepath.Dir(c.Path()), ".*.tmp"))
	if len(leftovers) != 0 {
		t.Errorf("temp files left behind: %v", leftovers)
	}
}

func TestWriteBytesAtomic_Permissions(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "file.json")
	if err := writeBytesAtomic(path, []byte(`{}`), 0o600); err != nil {
		t.Fatalf("writeBytesAtomic() error = %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat error = %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("permissions = %o, want 600", perm)
	}
}
