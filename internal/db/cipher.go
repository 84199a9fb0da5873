package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/erazemk/inventar/internal/model"
	"github.com/erazemk/inventar/internal/secure"
)

// Store metadata keys.
const (
	metaCipher   = "cipher"
	metaSalt     = "kdf_salt"
	metaVerifier = "verifier"

	cipherName    = "aes-256-gcm+argon2id"
	verifierPlain = "inventar"
	saltSize      = 16
)

// Additional data for each kind of sealed value.
var (
	adItem     = []byte("items.payload")
	adImage    = []byte("items.image")
	adVerifier = []byte("store_meta.verifier")
)

// ErrWrongPassphrase is returned when the store key does not open the verifier.
var ErrWrongPassphrase = errors.New("wrong database passphrase")

// Encrypted is an open database together with the key that seals its item rows.
type Encrypted struct {
	*sql.DB
	sealer *secure.Sealer
}

func newEncrypted(database *sql.DB, key []byte) (*Encrypted, error) {
	sealer, err := secure.NewSealer(key)
	if err != nil {
		return nil, err
	}
	return &Encrypted{DB: database, sealer: sealer}, nil
}

// itemPayload is the sealed part of an item row.
type itemPayload struct {
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	Quantity      int     `json:"quantity"`
	ProviderName  string  `json:"provider_name"`
	ProviderEmail string  `json:"provider_email"`
	ProviderPhone string  `json:"provider_phone"`
	Source        string  `json:"source"`
}

// SealItem encrypts the non-key fields of item.
func (e *Encrypted) SealItem(item model.Item) ([]byte, error) {
	plain, err := json.Marshal(itemPayload{
		Name:          item.Name,
		Price:         item.Price,
		Quantity:      item.Quantity,
		ProviderName:  item.ProviderName,
		ProviderEmail: item.ProviderEmail,
		ProviderPhone: item.ProviderPhone,
		Source:        item.Source,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding item: %w", err)
	}
	return e.sealer.Seal(plain, adItem)
}

// OpenItem decrypts a payload produced by SealItem into item.
func (e *Encrypted) OpenItem(sealed []byte, item *model.Item) error {
	plain, err := e.sealer.Open(sealed, adItem)
	if err != nil {
		return fmt.Errorf("opening item %d: %w", item.ID, err)
	}
	var p itemPayload
	if err := json.Unmarshal(plain, &p); err != nil {
		return fmt.Errorf("decoding item %d: %w", item.ID, err)
	}
	item.Name = p.Name
	item.Price = p.Price
	item.Quantity = p.Quantity
	item.ProviderName = p.ProviderName
	item.ProviderEmail = p.ProviderEmail
	item.ProviderPhone = p.ProviderPhone
	item.Source = p.Source
	return nil
}

// SealImage encrypts image bytes.
func (e *Encrypted) SealImage(data []byte) ([]byte, error) {
	return e.sealer.Seal(data, adImage)
}

// OpenImage decrypts image bytes produced by SealImage.
func (e *Encrypted) OpenImage(sealed []byte) ([]byte, error) {
	return e.sealer.Open(sealed, adImage)
}

// SealSetting encrypts the value of the settings row named key.
func (e *Encrypted) SealSetting(key string, value []byte) ([]byte, error) {
	return e.sealer.Seal(value, settingAD(key))
}

// OpenSetting decrypts a settings value produced by SealSetting.
func (e *Encrypted) OpenSetting(key string, sealed []byte) ([]byte, error) {
	return e.sealer.Open(sealed, settingAD(key))
}

func settingAD(key string) []byte {
	return []byte("settings." + key)
}

// initStoreKey writes a fresh salt and verifier and returns the derived key.
func initStoreKey(ctx context.Context, database *sql.DB, passphrase []byte) ([]byte, error) {
	salt, err := secure.RandomBytes(saltSize)
	if err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}
	key := secure.PassphraseKey(passphrase, salt)

	sealer, err := secure.NewSealer(key)
	if err != nil {
		return nil, err
	}
	verifier, err := sealer.Seal([]byte(verifierPlain), adVerifier)
	if err != nil {
		return nil, fmt.Errorf("sealing verifier: %w", err)
	}

	tx, err := database.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for k, v := range map[string][]byte{
		metaCipher:   []byte(cipherName),
		metaSalt:     salt,
		metaVerifier: verifier,
	} {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO store_meta (key, value) VALUES (?, ?)`, k, v,
		); err != nil {
			return nil, fmt.Errorf("storing %s: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing store key: %w", err)
	}
	return key, nil
}

// loadStoreKey derives the store key from passphrase and checks it against
// the stored verifier. A store without metadata is initialized.
func loadStoreKey(ctx context.Context, database *sql.DB, passphrase []byte) ([]byte, error) {
	var salt, verifier []byte
	err := database.QueryRowContext(ctx,
		`SELECT value FROM store_meta WHERE key = ?`, metaSalt,
	).Scan(&salt)
	if err == sql.ErrNoRows {
		return initStoreKey(ctx, database, passphrase)
	}
	if err != nil {
		return nil, fmt.Errorf("reading kdf salt: %w", err)
	}

	err = database.QueryRowContext(ctx,
		`SELECT value FROM store_meta WHERE key = ?`, metaVerifier,
	).Scan(&verifier)
	if err != nil {
		return nil, fmt.Errorf("reading verifier: %w", err)
	}

	key := secure.PassphraseKey(passphrase, salt)
	sealer, err := secure.NewSealer(key)
	if err != nil {
		return nil, err
	}
	plain, err := sealer.Open(verifier, adVerifier)
	if err != nil || string(plain) != verifierPlain {
		return nil, ErrWrongPassphrase
	}
	return key, nil
}
