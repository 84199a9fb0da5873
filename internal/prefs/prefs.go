// Package prefs is an encrypted key-value store for user preferences.
//
// Key names are replaced by an HMAC so lookups stay deterministic; values are
// sealed with AES-256-GCM bound to their key name. Both keys are derived
// from the master key. Writes are immediate and the last write wins.
package prefs

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/erazemk/inventar/internal/db"
	"github.com/erazemk/inventar/internal/model"
	"github.com/erazemk/inventar/internal/secure"
)

const schema = `
CREATE TABLE IF NOT EXISTS prefs (
    key   BLOB PRIMARY KEY,
    value BLOB NOT NULL
);
`

// Store is an open preferences file.
type Store struct {
	db     *sql.DB
	keyTag []byte
	values *secure.Sealer
}

// Open opens or creates the preferences file at path.
func Open(path string, master []byte) (*Store, error) {
	keyTag, err := secure.DeriveKey(master, nil, secure.InfoPrefsKey)
	if err != nil {
		return nil, err
	}
	valueKey, err := secure.DeriveKey(master, nil, secure.InfoPrefsValue)
	if err != nil {
		return nil, err
	}
	values, err := secure.NewSealer(valueKey)
	if err != nil {
		return nil, err
	}

	database, err := db.Open(path)
	if err != nil {
		return nil, err
	}
	if _, err := database.Exec(schema); err != nil {
		database.Close()
		return nil, fmt.Errorf("creating preferences schema: %w", err)
	}

	return &Store{db: database, keyTag: keyTag, values: values}, nil
}

// Close closes the underlying file.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) get(ctx context.Context, key string) (string, bool, error) {
	var sealed []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM prefs WHERE key = ?`, secure.Tag(s.keyTag, []byte(key)),
	).Scan(&sealed)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading preference %s: %w", key, err)
	}

	plain, err := s.values.Open(sealed, []byte(key))
	if err != nil {
		return "", false, fmt.Errorf("opening preference %s: %w", key, err)
	}
	return string(plain), true, nil
}

func (s *Store) put(ctx context.Context, key, value string) error {
	sealed, err := s.values.Seal([]byte(value), []byte(key))
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO prefs (key, value) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		secure.Tag(s.keyTag, []byte(key)), sealed,
	)
	if err != nil {
		return fmt.Errorf("writing preference %s: %w", key, err)
	}
	return nil
}

// GetString returns the value stored under key, or def if unset.
func (s *Store) GetString(ctx context.Context, key, def string) (string, error) {
	v, ok, err := s.get(ctx, key)
	if err != nil || !ok {
		return def, err
	}
	return v, nil
}

// PutString stores value under key.
func (s *Store) PutString(ctx context.Context, key, value string) error {
	return s.put(ctx, key, value)
}

// GetBool returns the boolean stored under key, or def if unset.
func (s *Store) GetBool(ctx context.Context, key string, def bool) (bool, error) {
	v, ok, err := s.get(ctx, key)
	if err != nil || !ok {
		return def, err
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("parsing preference %s: %w", key, err)
	}
	return b, nil
}

// PutBool stores value under key.
func (s *Store) PutBool(ctx context.Context, key string, value bool) error {
	return s.put(ctx, key, strconv.FormatBool(value))
}

// Load reads all settings. Unset strings are empty and unset toggles are off.
func (s *Store) Load(ctx context.Context) (model.Settings, error) {
	var st model.Settings
	var err error

	bools := []struct {
		key string
		dst *bool
	}{
		{model.KeyFillDefault, &st.FillDefault},
		{model.KeyHide, &st.HideSensitive},
		{model.KeyForbid, &st.ForbidShare},
	}
	for _, b := range bools {
		if *b.dst, err = s.GetBool(ctx, b.key, false); err != nil {
			return model.Settings{}, err
		}
	}

	strs := []struct {
		key string
		dst *string
	}{
		{model.KeyProviderDefault, &st.ProviderDefault},
		{model.KeyEmailDefault, &st.EmailDefault},
		{model.KeyPhoneDefault, &st.PhoneDefault},
	}
	for _, v := range strs {
		if *v.dst, err = s.GetString(ctx, v.key, ""); err != nil {
			return model.Settings{}, err
		}
	}

	return st, nil
}

// Save writes every setting.
func (s *Store) Save(ctx context.Context, st model.Settings) error {
	_, err := s.Apply(ctx, model.SettingsPatch{
		FillDefault:     &st.FillDefault,
		ProviderDefault: &st.ProviderDefault,
		EmailDefault:    &st.EmailDefault,
		PhoneDefault:    &st.PhoneDefault,
		HideSensitive:   &st.HideSensitive,
		ForbidShare:     &st.ForbidShare,
	})
	return err
}

// Apply writes every set field of patch and returns the resulting settings.
func (s *Store) Apply(ctx context.Context, patch model.SettingsPatch) (model.Settings, error) {
	bools := []struct {
		key string
		val *bool
	}{
		{model.KeyFillDefault, patch.FillDefault},
		{model.KeyHide, patch.HideSensitive},
		{model.KeyForbid, patch.ForbidShare},
	}
	for _, b := range bools {
		if b.val == nil {
			continue
		}
		if err := s.PutBool(ctx, b.key, *b.val); err != nil {
			return model.Settings{}, err
		}
	}

	strs := []struct {
		key string
		val *string
	}{
		{model.KeyProviderDefault, patch.ProviderDefault},
		{model.KeyEmailDefault, patch.EmailDefault},
		{model.KeyPhoneDefault, patch.PhoneDefault},
	}
	for _, v := range strs {
		if v.val == nil {
			continue
		}
		if err := s.PutString(ctx, v.key, *v.val); err != nil {
			return model.Settings{}, err
		}
	}

	return s.Load(ctx)
}
