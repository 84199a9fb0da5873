// Package secure holds the key material and authenticated encryption used for
// data at rest: the master key file, derived subkeys, sealed values and
// encrypted export files.
package secure

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
)

// KeySize is the size of every symmetric key in bytes (AES-256).
const KeySize = 32

// Info strings for keys derived from the master key.
const (
	InfoPrefsKey   = "inventar prefs key"
	InfoPrefsValue = "inventar prefs value"
	InfoExport     = "inventar export"
)

// Argon2id parameters for passphrase-derived store keys.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

// ErrBadKeyFile is returned when the master key file exists but has the wrong size.
var ErrBadKeyFile = errors.New("master key file is corrupt")

// LoadOrCreateMasterKey reads the master key from path. If the file does not
// exist, a new random key is generated and written with 0600 permissions.
func LoadOrCreateMasterKey(path string) ([]byte, error) {
	key, err := os.ReadFile(path)
	if err == nil {
		if len(key) != KeySize {
			return nil, ErrBadKeyFile
		}
		return key, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading master key: %w", err)
	}

	key = make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generating master key: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating key directory: %w", err)
	}
	// O_EXCL so two processes starting at once cannot overwrite each other's key.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if os.IsExist(err) {
			return LoadOrCreateMasterKey(path)
		}
		return nil, fmt.Errorf("creating master key file: %w", err)
	}
	if _, err := f.Write(key); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("writing master key: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("closing master key file: %w", err)
	}
	return key, nil
}

// DeriveKey derives a KeySize subkey from secret with HKDF-SHA256.
func DeriveKey(secret, salt []byte, info string) ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, salt, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("deriving %q: %w", info, err)
	}
	return key, nil
}

// PassphraseKey stretches a passphrase into a store key with argon2id.
func PassphraseKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, argonTime, argonMemory, argonThreads, KeySize)
}

// RandomBytes returns n bytes from crypto/rand.
func RandomBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}
