package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/erazemk/inventar/internal/db"
)

// SettingJWTSecret is the settings key of the sealed token signing secret.
const SettingJWTSecret = "jwt_key"

// GetOrCreateSecret returns the hex secret stored under key, generating and
// storing size random bytes on first use. Values are sealed with the store
// key. INSERT OR IGNORE followed by a re-read keeps concurrent first starts
// consistent.
func GetOrCreateSecret(ctx context.Context, database *db.Encrypted, key string, size int) (string, error) {
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating %s: %w", key, err)
	}
	sealed, err := database.SealSetting(key, []byte(hex.EncodeToString(buf)))
	if err != nil {
		return "", fmt.Errorf("sealing %s: %w", key, err)
	}

	_, err = database.ExecContext(ctx,
		`INSERT OR IGNORE INTO settings (key, value) VALUES (?, ?)`,
		key, sealed,
	)
	if err != nil {
		return "", fmt.Errorf("storing %s: %w", key, err)
	}

	var stored []byte
	err = database.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = ?`, key,
	).Scan(&stored)
	if err != nil {
		return "", fmt.Errorf("querying %s: %w", key, err)
	}

	secret, err := database.OpenSetting(key, stored)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", key, err)
	}
	return string(secret), nil
}

// GetJWTSecret returns the token signing secret, creating it on first run.
func GetJWTSecret(ctx context.Context, database *db.Encrypted) (string, error) {
	return GetOrCreateSecret(ctx, database, SettingJWTSecret, 32)
}
