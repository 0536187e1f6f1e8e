// Wikivault - Wiki Backup and Restore Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wikivault

package backup

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestKeyStore_GetOrCreateKey(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "keys", "backup.key")
	ks := NewKeyStore(path)

	key, err := ks.GetOrCreateKey()
	if err != nil {
		t.Fatalf("GetOrCreateKey() error = %v", err)
	}
	if len(key) != rawKeySize {
		t.Errorf("key length = %d, want %d", len(key), rawKeySize)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("key file not created: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("key file permissions = %o, want 600", perm)
	}

	again, err := NewKeyStore(path).GetOrCreateKey()
	if err != nil {
		t.Fatalf("second GetOrCreateKey() error = %v", err)
	}
	if !bytes.Equal(key, again) {
		t.Error("second store returned a different key")
	}
}

func TestKeyStore_EmptyKeyFileReplaced(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "backup.key")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatalf("failed to create empty key file: %v", err)
	}

	key, err := NewKeyStore(path).GetOrCreateKey()
	if err != nil {
		t.Fatalf("GetOrCreateKey() error = %v", err)
	}
	if len(key) != rawKeySize {
		t.Errorf("key length = %d, want %d", len(key), rawKeySize)
	}
	if got := getFileSize(path); got != rawKeySize {
		t.Errorf("key file size = %d, want %d", got, rawKeySize)
	}
}

func TestKeyStore_ConcurrentCreateSharesKey(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "backup.key")

	const workers = 8
	keys := make([][]byte, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			keys[i], errs[i] = NewKeyStore(path).GetOrCreateKey()
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d error = %v", i, errs[i])
		}
		if !bytes.Equal(keys[0], keys[i]) {
			t.Errorf("worker %d saw a different key", i)
		}
	}
}

func TestKeyStore_UnreadableKeyPath(t *testing.T) {
	t.Parallel()

	// A directory where the key file should be cannot be read as a key
	path := t.TempDir()

	_, err := NewKeyStore(path).GetOrCreateKey()
	if !errors.Is(err, ErrKeyStore) {
		t.Errorf("GetOrCreateKey() error = %v, want ErrKeyStore", err)
	}
}

func TestKeyStore_EncryptDecrypt(t *testing.T) {
	t.Parallel()

	ks := NewKeyStore(filepath.Join(t.TempDir(), "backup.key"))

	tests := []struct {
		name      string
		plaintext []byte
	}{
		{"empty", []byte{}},
		{"short", []byte("wiki")},
		{"zip header", []byte("PK\x03\x04 rest of archive")},
		{"large", bytes.Repeat([]byte("page content "), 10000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ciphertext, err := ks.Encrypt(tt.plaintext)
			if err != nil {
				t.Fatalf("Encrypt() error = %v", err)
			}
			if !bytes.HasPrefix(ciphertext, ciphertextMagic) {
				t.Error("ciphertext missing magic prefix")
			}
			if len(tt.plaintext) > 0 && bytes.Contains(ciphertext, tt.plaintext) {
				t.Error("ciphertext contains plaintext")
			}

			got, err := ks.Decrypt(ciphertext)
			if err != nil {
				t.Fatalf("Decrypt() error = %v", err)
			}
			if !bytes.Equal(got, tt.plaintext) {
				t.Error("Decrypt() did not return the original plaintext")
			}
		})
	}
}

func TestKeyStore_EncryptUsesFreshNonce(t *testing.T) {
	t.Parallel()

	ks := NewKeyStore(filepath.Join(t.TempDir(), "backup.key"))
	a, err := ks.Encrypt([]byte("same input"))
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	b, err := ks.Encrypt([]byte("same input"))
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if bytes.Equal(a, b) {
		t.Error("two encryptions of the same plaintext are identical")
	}
}

func TestKeyStore_DecryptRejectsBadInput(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ks := NewKeyStore(filepath.Join(dir, "backup.key"))
	other := NewKeyStore(filepath.Join(dir, "other.key"))

	valid, err := ks.Encrypt([]byte("secret wiki pages"))
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	fromOther, err := other.Encrypt([]byte("secret wiki pages"))
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	tampered := append([]byte(nil), valid...)
	tampered[len(tampered)-1] ^= 0xff

	badMagic := append([]byte(nil), valid...)
	copy(badMagic, "PK\x03\x04")

	tests := []struct {
		name  string
		input []byte
	}{
		{"nil", nil},
		{"too short", valid[:len(ciphertextMagic)+gcmNonceSize]},
		{"tampered tag", tampered},
		{"plaintext zip", badMagic},
		{"wrong key", fromOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ks.Decrypt(tt.input)
			if !errors.Is(err, ErrDecryption) {
				t.Errorf("Decrypt() error = %v, want ErrDecryption", err)
			}
			if got != nil {
				t.Error("Decrypt() returned partial plaintext")
			}
		})
	}
}
