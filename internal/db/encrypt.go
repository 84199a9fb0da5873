package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/erazemk/inventar/internal/model"
)

// State describes what is on disk at a database path.
type State int

const (
	StateDoesNotExist State = iota
	StateUnencrypted
	StateEncrypted
)

func (s State) String() string {
	switch s {
	case StateDoesNotExist:
		return "does not exist"
	case StateUnencrypted:
		return "unencrypted"
	case StateEncrypted:
		return "encrypted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Names of the scratch files used while encrypting, next to the database.
const (
	tempName   = "_temp"
	backupName = "_backup"
)

// rename is swapped in tests to simulate filesystem failures.
var rename = os.Rename

// DatabaseState reports whether path is missing, a plaintext database, or a
// database already carrying store metadata.
func DatabaseState(ctx context.Context, path string) (State, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return StateDoesNotExist, nil
	} else if err != nil {
		return 0, fmt.Errorf("checking database file: %w", err)
	}

	database, err := openPlain(path)
	if err != nil {
		return 0, err
	}
	defer database.Close()

	var n int
	err = database.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'store_meta'`,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("inspecting %s: %w", path, err)
	}
	if n > 0 {
		return StateEncrypted, nil
	}
	return StateUnencrypted, nil
}

// EncryptTo copies the plaintext database at src into a new encrypted
// database at dst, keyed by passphrase. Item ids are preserved.
func EncryptTo(ctx context.Context, src, dst string, passphrase []byte) (err error) {
	items, err := readLegacyItems(ctx, src)
	if err != nil {
		return err
	}

	database, err := Open(dst)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := database.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing %s: %w", dst, cerr)
		}
	}()

	if err := Migrate(database); err != nil {
		return err
	}
	key, err := initStoreKey(ctx, database, passphrase)
	if err != nil {
		return err
	}
	enc, err := newEncrypted(database, key)
	if err != nil {
		return err
	}

	tx, err := database.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, item := range items {
		payload, err := enc.SealItem(item)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO items (id, payload) VALUES (?, ?)`, item.ID, payload,
		); err != nil {
			return fmt.Errorf("copying item %d: %w", item.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing encrypted copy: %w", err)
	}
	return nil
}

// readLegacyItems reads every row of the plaintext items table. A database
// without that table yields no rows.
func readLegacyItems(ctx context.Context, path string) ([]model.Item, error) {
	database, err := openPlain(path)
	if err != nil {
		return nil, err
	}
	defer database.Close()

	var n int
	err = database.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'items'`,
	).Scan(&n)
	if err != nil {
		return nil, fmt.Errorf("inspecting %s: %w", path, err)
	}
	if n == 0 {
		return nil, nil
	}

	rows, err := database.QueryContext(ctx,
		`SELECT id, name, price, quantity, provider_name, provider_email, provider_phone, source
		 FROM items ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("reading plaintext items: %w", err)
	}
	defer rows.Close()

	var items []model.Item
	for rows.Next() {
		var item model.Item
		var name, providerName, providerEmail, providerPhone, source sql.NullString
		var price sql.NullFloat64
		var quantity sql.NullInt64
		if err := rows.Scan(&item.ID, &name, &price, &quantity,
			&providerName, &providerEmail, &providerPhone, &source); err != nil {
			return nil, fmt.Errorf("scanning plaintext item: %w", err)
		}
		item.Name = name.String
		item.Price = price.Float64
		if math.IsInf(item.Price, 0) || math.IsNaN(item.Price) {
			slog.Warn("replacing non-finite legacy price", "id", item.ID, "price", item.Price)
			item.Price = 0
		}
		item.Quantity = int(quantity.Int64)
		item.ProviderName = providerName.String
		item.ProviderEmail = providerEmail.String
		item.ProviderPhone = providerPhone.String
		item.Source = source.String
		items = append(items, item)
	}
	return items, rows.Err()
}

// EncryptInPlace replaces the plaintext database at path with an encrypted
// copy. The copy is written to _temp, the original is moved to _backup, the
// copy is moved into place and the backup is deleted. A failed rename is
// returned as an error and leaves the original database at path.
func EncryptInPlace(ctx context.Context, path string, passphrase []byte) error {
	dir := filepath.Dir(path)
	temp := filepath.Join(dir, tempName)
	backup := filepath.Join(dir, backupName)

	removeDatabaseFiles(temp)

	if err := EncryptTo(ctx, path, temp, passphrase); err != nil {
		removeDatabaseFiles(temp)
		return fmt.Errorf("encrypting database: %w", err)
	}

	if err := rename(path, backup); err != nil {
		removeDatabaseFiles(temp)
		return fmt.Errorf("could not rename %s to %s: %w", path, backup, err)
	}

	if err := rename(temp, path); err != nil {
		if rerr := rename(backup, path); rerr != nil {
			slog.Error("failed to restore database backup", "backup", backup, "error", rerr)
		}
		return fmt.Errorf("could not rename %s to %s: %w", temp, path, err)
	}

	if err := os.Remove(backup); err != nil {
		slog.Warn("failed to delete plaintext backup", "path", backup, "error", err)
	}
	return nil
}

// recoverBackup restores _backup to path when an earlier encryption stopped
// after moving the original away.
func recoverBackup(path string) error {
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		return nil
	}
	backup := filepath.Join(filepath.Dir(path), backupName)
	if _, err := os.Stat(backup); err != nil {
		return nil
	}
	slog.Warn("restoring database from interrupted encryption", "backup", backup, "path", path)
	if err := rename(backup, path); err != nil {
		return fmt.Errorf("could not rename %s to %s: %w", backup, path, err)
	}
	return nil
}

func removeDatabaseFiles(path string) {
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		os.Remove(p)
	}
}

// OpenEncrypted opens the encrypted database at path, creating it when
// missing and encrypting it first when it holds plaintext data.
func OpenEncrypted(ctx context.Context, path string, passphrase []byte) (*Encrypted, error) {
	if err := recoverBackup(path); err != nil {
		return nil, err
	}

	state, err := DatabaseState(ctx, path)
	if err != nil {
		return nil, err
	}
	if state == StateUnencrypted {
		slog.Info("encrypting plaintext database", "path", path)
		if err := EncryptInPlace(ctx, path, passphrase); err != nil {
			return nil, err
		}
	}

	database, err := Open(path)
	if err != nil {
		return nil, err
	}
	if err := Migrate(database); err != nil {
		database.Close()
		return nil, err
	}

	key, err := loadStoreKey(ctx, database, passphrase)
	if err != nil {
		database.Close()
		return nil, err
	}

	enc, err := newEncrypted(database, key)
	if err != nil {
		database.Close()
		return nil, err
	}
	return enc, nil
}
