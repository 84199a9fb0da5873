// Package export writes items to encrypted per-item files.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/erazemk/inventar/internal/model"
	"github.com/erazemk/inventar/internal/secure"
)

// FileName returns the export file name of an item: "<name> - <provider>",
// with characters that are unsafe in paths replaced by underscores.
func FileName(item model.Item) string {
	name := sanitize(item.Name + " - " + item.ProviderName)
	if strings.Trim(name, " ._-") == "" {
		return fmt.Sprintf("item-%d", item.ID)
	}
	return name
}

func sanitize(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r < 0x20, r == 0x7f:
			return '_'
		case strings.ContainsRune(`/\:*?"<>|`, r):
			return '_'
		}
		return r
	}, s)
	return strings.TrimLeft(strings.TrimSpace(s), ".")
}

// Item writes item as encrypted JSON into dir and returns the file path.
// An existing export of the same name is replaced.
func Item(ctx context.Context, dir string, item model.Item, master []byte) (string, error) {
	data, err := json.Marshal(item)
	if err != nil {
		return "", fmt.Errorf("encoding item: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("creating export directory: %w", err)
	}

	path := filepath.Join(dir, FileName(item))
	tmp := filepath.Join(dir, "."+uuid.NewString()+".tmp")

	if err := writeEncrypted(tmp, data, master); err != nil {
		os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("moving export into place: %w", err)
	}
	return path, nil
}

func writeEncrypted(path string, data, master []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("creating export file: %w", err)
	}

	w, err := secure.NewStreamWriter(f, master)
	if err != nil {
		f.Close()
		return err
	}
	if _, err := w.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("writing export: %w", err)
	}
	if err := w.Close(); err != nil {
		f.Close()
		return fmt.Errorf("finishing export: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("syncing export: %w", err)
	}
	return f.Close()
}

// Decrypt reads an export file and returns its JSON content.
func Decrypt(path string, master []byte) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening export: %w", err)
	}
	defer f.Close()

	r, err := secure.NewStreamReader(f, master)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return nil, fmt.Errorf("decrypting export: %w", err)
	}
	return buf.Bytes(), nil
}

// DecryptItem reads an export file into an item.
func DecryptItem(path string, master []byte) (*model.Item, error) {
	data, err := Decrypt(path, master)
	if err != nil {
		return nil, err
	}
	var item model.Item
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("decoding exported item: %w", err)
	}
	return &item, nil
}
