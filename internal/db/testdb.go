package db

import (
	"path/filepath"
	"testing"

	"github.com/erazemk/inventar/internal/secure"
)

// NewTestDB creates a fresh encrypted database in a temporary directory.
// The store key is random rather than passphrase-derived to keep tests fast.
func NewTestDB(t *testing.T) *Encrypted {
	t.Helper()

	database, err := Open(filepath.Join(t.TempDir(), "test.sqlite3"))
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := Migrate(database); err != nil {
		t.Fatalf("creating test database schema: %v", err)
	}

	key, err := secure.RandomBytes(secure.KeySize)
	if err != nil {
		t.Fatalf("generating test key: %v", err)
	}
	enc, err := newEncrypted(database, key)
	if err != nil {
		t.Fatalf("creating test sealer: %v", err)
	}

	return enc
}
