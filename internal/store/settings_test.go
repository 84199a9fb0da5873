package store

import (
	"bytes"
	"context"
	"testing"

	"github.com/erazemk/inventar/internal/db"
)

func TestGetJWTSecretGeneratesAndPersists(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	secret1, err := GetJWTSecret(ctx, database)
	if err != nil {
		t.Fatal(err)
	}
	if len(secret1) != 64 { // 32 bytes = 64 hex chars
		t.Fatalf("expected 64 hex chars, got %d", len(secret1))
	}

	secret2, err := GetJWTSecret(ctx, database)
	if err != nil {
		t.Fatal(err)
	}
	if secret1 != secret2 {
		t.Fatalf("expected same secret, got %q and %q", secret1, secret2)
	}
}

func TestGetOrCreateSecretSeparateKeys(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	a, _ := GetOrCreateSecret(ctx, database, "a", 16)
	b, _ := GetOrCreateSecret(ctx, database, "b", 16)
	if a == b {
		t.Error("expected independent secrets per key")
	}
	if len(a) != 32 {
		t.Errorf("expected 32 hex chars, got %d", len(a))
	}
}

func TestJWTSecretIsSealed(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	secret, err := GetJWTSecret(ctx, database)
	if err != nil {
		t.Fatal(err)
	}

	var stored []byte
	if err := database.QueryRow(`SELECT value FROM settings WHERE key = ?`, SettingJWTSecret).Scan(&stored); err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(stored, []byte(secret)) {
		t.Error("settings row contains the plaintext secret")
	}

	// A sealed value moved under another key name does not open.
	if _, err := database.Exec(`INSERT INTO settings (key, value) VALUES ('other', ?)`, stored); err != nil {
		t.Fatal(err)
	}
	if _, err := GetOrCreateSecret(ctx, database, "other", 32); err == nil {
		t.Error("expected sealed value to be bound to its key name")
	}
}
