// Wikivault - Wiki Backup and Restore Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wikivault

package backup

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// CatalogFileName is the catalog file inside the backup directory
const CatalogFileName = "backups_info.json"

// Catalog is the authoritative list of backup records, persisted as a JSON
// array. It is the only writer of its file.
//
// Writers (Append, Update, Remove) serialize on a mutex and persist through
// write-to-temp-then-rename. Readers take no lock: the file is only ever
// replaced whole, so every read sees one complete version.
type Catalog struct {
	path string
	mu   sync.Mutex
}

// NewCatalog creates a catalog stored at path
func NewCatalog(path string) *Catalog {
	return &Catalog{path: path}
}

// Path returns the catalog file location
func (c *Catalog) Path() string {
	return c.path
}

// Load reads every record in file order. found is false when the catalog
// file does not exist yet, which is not an error. An unparsable file returns
// ErrCatalogCorruption.
func (c *Catalog) Load() (records []BackupRecord, found bool, err error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read catalog: %w", err)
	}

	if err := json.Unmarshal(data, &records); err != nil {
		return nil, true, fmt.Errorf("%w: %s: %v", ErrCatalogCorruption, c.path, err)
	}
	return records, true, nil
}

// List returns all records ordered by CreatedAt ascending
func (c *Catalog) List() ([]BackupRecord, error) {
	records, _, err := c.Load()
	if err != nil {
		return nil, err
	}
	sortByCreatedAsc(records)
	return records, nil
}

// ListByStatus returns records with the given status, oldest first
func (c *Catalog) ListByStatus(status BackupStatus) ([]BackupRecord, error) {
	records, err := c.List()
	if err != nil {
		return nil, err
	}
	filtered := records[:0]
	for _, r := range records {
		if r.Status == status {
			filtered = append(filtered, r)
		}
	}
	return filtered, nil
}

// ListBetween returns records created in [start, end], oldest first
func (c *Catalog) ListBetween(start, end time.Time) ([]BackupRecord, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end is before start", ErrInvalidInput)
	}
	records, err := c.List()
	if err != nil {
		return nil, err
	}
	filtered := records[:0]
	for _, r := range records {
		if !r.CreatedAt.Before(start) && !r.CreatedAt.After(end) {
			filtered = append(filtered, r)
		}
	}
	return filtered, nil
}

// Get returns the record with id. ok is false if no such record exists.
func (c *Catalog) Get(id string) (record *BackupRecord, ok bool, err error) {
	records, _, err := c.Load()
	if err != nil {
		return nil, false, err
	}
	for i := range records {
		if records[i].ID == id {
			r := records[i]
			return &r, true, nil
		}
	}
	return nil, false, nil
}

// Append adds a record and persists the catalog atomically
func (c *Catalog) Append(record BackupRecord) error {
	return c.mutate(func(records []BackupRecord) ([]BackupRecord, bool, error) {
		for _, r := range records {
			if r.ID == record.ID {
				return nil, false, fmt.Errorf("%w: %s", ErrDuplicateID, record.ID)
			}
		}
		return append(records, record), true, nil
	})
}

// Update applies the non-nil fields of upd to the record with id. It returns
// false if the id is unknown.
func (c *Catalog) Update(id string, upd RecordUpdate) (bool, error) {
	var found bool
	err := c.mutate(func(records []BackupRecord) ([]BackupRecord, bool, error) {
		for i := range records {
			if records[i].ID != id {
				continue
			}
			found = true
			if upd.RemoteID != nil {
				records[i].RemoteID = *upd.RemoteID
			}
			if upd.RemoteStatus != nil {
				records[i].RemoteStatus = *upd.RemoteStatus
			}
			if upd.Status != nil {
				records[i].Status = *upd.Status
			}
			return records, true, nil
		}
		return records, false, nil
	})
	return found, err
}

// Remove deletes the record with id. It returns false if the id is unknown.
func (c *Catalog) Remove(id string) (bool, error) {
	var found bool
	err := c.mutate(func(records []BackupRecord) ([]BackupRecord, bool, error) {
		kept := make([]BackupRecord, 0, len(records))
		for _, r := range records {
			if r.ID == id {
				found = true
				continue
			}
			kept = append(kept, r)
		}
		return kept, found, nil
	})
	return found, err
}

// mutate runs a read-modify-write cycle under the writer lock. fn reports
// whether anything changed; unchanged catalogs are not rewritten. A corrupt
// catalog is never overwritten.
func (c *Catalog) mutate(fn func([]BackupRecord) ([]BackupRecord, bool, error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	records, _, err := c.Load()
	if err != nil {
		return err
	}
	if records == nil {
		records = []BackupRecord{}
	}

	updated, changed, err := fn(records)
	if err != nil || !changed {
		return err
	}
	return c.persist(updated)
}

// persist writes the full catalog through a temp file and rename
func (c *Catalog) persist(records []BackupRecord) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal catalog: %w", err)
	}
	return writeBytesAtomic(c.path, data, 0o600)
}

func sortByCreatedAsc(records []BackupRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
}
