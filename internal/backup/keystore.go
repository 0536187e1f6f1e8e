// Wikivault - Wiki Backup and Restore Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wikivault

package backup

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/hkdf"
)

const (
	// rawKeySize is the number of random bytes stored in the key file
	rawKeySize = 32

	// aesKeySize is the derived AES-256 key size
	aesKeySize = 32

	// gcmNonceSize is the size of the GCM nonce in bytes
	gcmNonceSize = 12

	keyDerivationSalt = "wikivault-backup-archives"
	keyDerivationInfo = "archive-encryption-v1"
)

// ciphertextMagic prefixes every encrypted archive so a plaintext zip cannot
// be mistaken for ciphertext and vice versa.
var ciphertextMagic = []byte("WVK1")

// KeyStore owns the single symmetric key used for backup archives.
//
// Ciphertext format: magic(4) || nonce(12) || AES-256-GCM(ciphertext || tag)
type KeyStore struct {
	path string

	mu   sync.Mutex
	aead cipher.AEAD
}

// NewKeyStore creates a key store backed by the key file at path. The file is
// not touched until the key is first needed.
func NewKeyStore(path string) *KeyStore {
	return &KeyStore{path: path}
}

// Path returns the key file location
func (k *KeyStore) Path() string {
	return k.path
}

// GetOrCreateKey returns the raw key bytes, generating and persisting a new
// key if the file is absent or empty. Creation uses O_EXCL so two processes
// racing at startup end up sharing one key.
func (k *KeyStore) GetOrCreateKey() ([]byte, error) {
	key, err := k.readKey()
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	key = make([]byte, rawKeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("%w: failed to generate key: %v", ErrKeyStore, err)
	}

	if err := os.MkdirAll(filepath.Dir(k.path), 0o700); err != nil {
		return nil, fmt.Errorf("%w: failed to create key directory: %v", ErrKeyStore, err)
	}

	if err := k.createKeyFile(key); err != nil {
		if errors.Is(err, fs.ErrExist) {
			// Lost the race, use the winner's key
			return k.readKey()
		}
		return nil, err
	}

	return key, nil
}

// readKey returns fs.ErrNotExist for a missing or empty key file so the
// caller can generate one; any other failure is an ErrKeyStore.
func (k *KeyStore) readKey() ([]byte, error) {
	data, err := os.ReadFile(k.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fs.ErrNotExist
		}
		return nil, fmt.Errorf("%w: failed to read key file: %v", ErrKeyStore, err)
	}
	if len(data) == 0 {
		return nil, fs.ErrNotExist
	}
	return data, nil
}

func (k *KeyStore) createKeyFile(key []byte) error {
	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if info, err := os.Stat(k.path); err == nil && info.Size() == 0 {
		// An empty leftover from an interrupted write is replaced
		flags = os.O_WRONLY | os.O_TRUNC
	}

	f, err := os.OpenFile(k.path, flags, 0o600) //nolint:gosec // G304: key path comes from configuration
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return err
		}
		return fmt.Errorf("%w: failed to create key file: %v", ErrKeyStore, err)
	}

	if _, err := f.Write(key); err != nil {
		f.Close() //nolint:errcheck // Best effort cleanup on error
		return fmt.Errorf("%w: failed to write key file: %v", ErrKeyStore, err)
	}
	if err := f.Sync(); err != nil {
		f.Close() //nolint:errcheck // Best effort cleanup on error
		return fmt.Errorf("%w: failed to sync key file: %v", ErrKeyStore, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: failed to close key file: %v", ErrKeyStore, err)
	}
	return nil
}

// aeadCipher lazily derives the AEAD from the stored key
func (k *KeyStore) aeadCipher() (cipher.AEAD, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.aead != nil {
		return k.aead, nil
	}

	raw, err := k.GetOrCreateKey()
	if err != nil {
		return nil, err
	}

	derived := make([]byte, aesKeySize)
	kdf := hkdf.New(sha256.New, raw, []byte(keyDerivationSalt), []byte(keyDerivationInfo))
	if _, err := io.ReadFull(kdf, derived); err != nil {
		return nil, fmt.Errorf("%w: failed to derive key: %v", ErrKeyStore, err)
	}

	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create AES cipher: %v", ErrKeyStore, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create GCM: %v", ErrKeyStore, err)
	}

	k.aead = gcm
	return gcm, nil
}

// Encrypt seals plaintext with a fresh random nonce. Empty plaintext is allowed.
func (k *KeyStore) Encrypt(plaintext []byte) ([]byte, error) {
	aead, err := k.aeadCipher()
	if err != nil {
		return nil, err
	}

	out := make([]byte, len(ciphertextMagic)+gcmNonceSize, len(ciphertextMagic)+gcmNonceSize+len(plaintext)+aead.Overhead())
	copy(out, ciphertextMagic)
	nonce := out[len(ciphertextMagic):]
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("%w: failed to generate nonce: %v", ErrKeyStore, err)
	}

	return aead.Seal(out, nonce, plaintext, ciphertextMagic), nil
}

// Decrypt opens ciphertext produced by Encrypt. It never returns partial
// plaintext: any malformed or tampered input yields ErrDecryption.
func (k *KeyStore) Decrypt(ciphertext []byte) ([]byte, error) {
	aead, err := k.aeadCipher()
	if err != nil {
		return nil, err
	}

	headerLen := len(ciphertextMagic) + gcmNonceSize
	if len(ciphertext) < headerLen+aead.Overhead() {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrDecryption)
	}
	if !bytes.Equal(ciphertext[:len(ciphertextMagic)], ciphertextMagic) {
		return nil, fmt.Errorf("%w: unrecognized ciphertext header", ErrDecryption)
	}

	nonce := ciphertext[len(ciphertextMagic):headerLen]
	plaintext, err := aead.Open(nil, nonce, ciphertext[headerLen:], ciphertextMagic)
	if err != nil {
		return nil, fmt.Errorf("%w: authentication failed", ErrDecryption)
	}
	return plaintext, nil
}
