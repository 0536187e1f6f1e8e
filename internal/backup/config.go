// Wikivault - Wiki Backup and Restore Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wikivault

package backup

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/goccy/go-json"

	"github.com/tomtom215/wikivault/internal/validation"
)

// ConfigFileName is the runtime config file inside the backup directory
const ConfigFileName = "backup_config.json"

// BackupConfig is the runtime configuration edited by administrators. It is
// persisted separately from the catalog and re-read by the scheduler on
// every tick.
type BackupConfig struct {
	// AutoBackupEnabled turns the scheduler on
	AutoBackupEnabled bool `json:"auto_backup_enabled" koanf:"auto_backup_enabled"`

	// IntervalHours between automatic backups
	IntervalHours int `json:"interval_hours" koanf:"interval_hours" validate:"min=1,max=168"`

	// MaxBackups is the retention-by-count budget
	MaxBackups int `json:"max_backups" koanf:"max_backups" validate:"min=1,max=100"`

	// RetentionDays is the retention-by-age budget
	RetentionDays int `json:"retention_days" koanf:"retention_days" validate:"min=1,max=365"`

	EncryptBackups bool `json:"encrypt_backups" koanf:"encrypt_backups"`
	IncludeLogs    bool `json:"include_logs" koanf:"include_logs"`
	IncludeUploads bool `json:"include_uploads" koanf:"include_uploads"`

	RemoteSyncEnabled bool `json:"remote_sync_enabled" koanf:"remote_sync_enabled"`

	// RemoteFolderID pins the Drive folder; empty means resolve by name
	RemoteFolderID string `json:"remote_folder_id,omitempty" koanf:"remote_folder_id" validate:"omitempty,max=256"`

	// CompressionLevel is the deflate level (0 stores, 9 is smallest)
	CompressionLevel int `json:"compression_level" koanf:"compression_level" validate:"min=0,max=9"`
}

// DefaultBackupConfig returns the configuration used when nothing is persisted
func DefaultBackupConfig() BackupConfig {
	return BackupConfig{
		AutoBackupEnabled: true,
		IntervalHours:     24,
		MaxBackups:        30,
		RetentionDays:     90,
		EncryptBackups:    true,
		IncludeLogs:       true,
		IncludeUploads:    true,
		RemoteSyncEnabled: false,
		CompressionLevel:  6,
	}
}

// Validate checks the field bounds. Errors wrap ErrInvalidConfig and the
// underlying *validation.StructValidationError.
func (c BackupConfig) Validate() error {
	if err := validation.ValidateStruct(&c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// ConfigPatch is a partial update. Nil fields are left unchanged.
type ConfigPatch struct {
	AutoBackupEnabled *bool   `json:"auto_backup_enabled"`
	IntervalHours     *int    `json:"interval_hours"`
	MaxBackups        *int    `json:"max_backups"`
	RetentionDays     *int    `json:"retention_days"`
	EncryptBackups    *bool   `json:"encrypt_backups"`
	IncludeLogs       *bool   `json:"include_logs"`
	IncludeUploads    *bool   `json:"include_uploads"`
	RemoteSyncEnabled *bool   `json:"remote_sync_enabled"`
	RemoteFolderID    *string `json:"remote_folder_id"`
	CompressionLevel  *int    `json:"compression_level"`
}

// knownConfigKeys holds the json names of every BackupConfig field
var knownConfigKeys = func() map[string]struct{} {
	keys := make(map[string]struct{})
	t := reflect.TypeOf(BackupConfig{})
	for i := 0; i < t.NumField(); i++ {
		name := strings.SplitN(t.Field(i).Tag.Get("json"), ",", 2)[0]
		if name != "" && name != "-" {
			keys[name] = struct{}{}
		}
	}
	return keys
}()

// ParseConfigPatch decodes a JSON object into a ConfigPatch. Keys that are
// not BackupConfig fields fail with ErrUnknownConfigKey, naming every
// offending key.
func ParseConfigPatch(data []byte) (ConfigPatch, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return ConfigPatch{}, fmt.Errorf("%w: config patch must be a JSON object: %v", ErrInvalidInput, err)
	}

	var unknown []string
	for key := range raw {
		if _, ok := knownConfigKeys[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return ConfigPatch{}, fmt.Errorf("%w: %s", ErrUnknownConfigKey, strings.Join(unknown, ", "))
	}

	var patch ConfigPatch
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&patch); err != nil {
		return ConfigPatch{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return patch, nil
}

// IsEmpty reports whether the patch changes nothing
func (p ConfigPatch) IsEmpty() bool {
	return p == ConfigPatch{}
}

// Apply returns cfg with the non-nil patch fields set. The result is not validated.
func (p ConfigPatch) Apply(cfg BackupConfig) BackupConfig {
	if p.AutoBackupEnabled != nil {
		cfg.AutoBackupEnabled = *p.AutoBackupEnabled
	}
	if p.IntervalHours != nil {
		cfg.IntervalHours = *p.IntervalHours
	}
	if p.MaxBackups != nil {
		cfg.MaxBackups = *p.MaxBackups
	}
	if p.RetentionDays != nil {
		cfg.RetentionDays = *p.RetentionDays
	}
	if p.EncryptBackups != nil {
		cfg.EncryptBackups = *p.EncryptBackups
	}
	if p.IncludeLogs != nil {
		cfg.IncludeLogs = *p.IncludeLogs
	}
	if p.IncludeUploads != nil {
		cfg.IncludeUploads = *p.IncludeUploads
	}
	if p.RemoteSyncEnabled != nil {
		cfg.RemoteSyncEnabled = *p.RemoteSyncEnabled
	}
	if p.RemoteFolderID != nil {
		cfg.RemoteFolderID = strings.TrimSpace(*p.RemoteFolderID)
	}
	if p.CompressionLevel != nil {
		cfg.CompressionLevel = *p.CompressionLevel
	}
	return cfg
}

// ConfigStore holds the current BackupConfig and persists changes to disk
type ConfigStore struct {
	path     string
	defaults BackupConfig

	mu      sync.RWMutex
	current BackupConfig
}

// NewConfigStore creates a store at path. defaults apply until Load finds a
// persisted file, and fill any field the file omits.
func NewConfigStore(path string, defaults BackupConfig) *ConfigStore {
	return &ConfigStore{
		path:     path,
		defaults: defaults,
		current:  defaults,
	}
}

// Path returns the config file location
func (s *ConfigStore) Path() string {
	return s.path
}

// Load reads the persisted config. A missing file keeps the defaults. An
// unparsable or out-of-bounds file is an error and the current value is kept.
func (s *ConfigStore) Load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.mu.Lock()
			s.current = s.defaults
			s.mu.Unlock()
			return nil
		}
		return fmt.Errorf("failed to read backup config: %w", err)
	}

	cfg := s.defaults
	if err := json.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, s.path, err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%s: %w", s.path, err)
	}

	s.mu.Lock()
	s.current = cfg
	s.mu.Unlock()
	return nil
}

// Get returns a copy of the current config
func (s *ConfigStore) Get() BackupConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Update merges patch into the current config, validates the result and
// persists it atomically. On any error the stored config is unchanged.
func (s *ConfigStore) Update(patch ConfigPatch) (BackupConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := patch.Apply(s.current)
	if err := next.Validate(); err != nil {
		return s.current, err
	}

	data, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return s.current, fmt.Errorf("failed to marshal backup config: %w", err)
	}
	if err := writeBytesAtomic(s.path, data, 0o600); err != nil {
		return s.current, fmt.Errorf("failed to persist backup config: %w", err)
	}

	s.current = next
	return next, nil
}
