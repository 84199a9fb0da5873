package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/erazemk/inventar/internal/model"
	"github.com/erazemk/inventar/internal/secure"
)

func testItem() model.Item {
	return model.Item{
		ID:            4,
		Name:          "Widget",
		Price:         9.99,
		Quantity:      5,
		ProviderName:  "Acme",
		ProviderEmail: "sales@acme.com",
		ProviderPhone: "12345678901",
		Source:        model.SourceManual,
		CreatedAt:     time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		UpdatedAt:     time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC),
	}
}

func testMaster(t *testing.T) []byte {
	t.Helper()
	master, err := secure.RandomBytes(secure.KeySize)
	if err != nil {
		t.Fatal(err)
	}
	return master
}

func TestFileName(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		want     string
	}{
		{"Widget", "Acme", "Widget - Acme"},
		{"a/b", `c\d`, "a_b - c_d"},
		{"What?", "<x>", "What_ - _x_"},
		{"..hidden", "p", "hidden - p"},
	}
	for _, tt := range tests {
		got := FileName(model.Item{Name: tt.name, ProviderName: tt.provider})
		if got != tt.want {
			t.Errorf("FileName(%q, %q) = %q, want %q", tt.name, tt.provider, got, tt.want)
		}
	}

	if got := FileName(model.Item{ID: 9}); got != "item-9" {
		t.Errorf("expected fallback name, got %q", got)
	}
}

func TestExportRoundTrip(t *testing.T) {
	master := testMaster(t)
	dir := t.TempDir()
	item := testItem()

	path, err := Item(context.Background(), dir, item, master)
	if err != nil {
		t.Fatalf("Item: %v", err)
	}
	if filepath.Base(path) != "Widget - Acme" {
		t.Errorf("unexpected file name %q", filepath.Base(path))
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(raw, []byte("Widget")) || bytes.Contains(raw, []byte("acme.com")) {
		t.Error("export file contains plaintext")
	}

	got, err := Decrypt(path, master)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	want, _ := json.Marshal(item)
	if !bytes.Equal(got, want) {
		t.Errorf("expected %s, got %s", want, got)
	}

	decoded, err := DecryptItem(path, master)
	if err != nil {
		t.Fatal(err)
	}
	if decoded.Name != item.Name || decoded.Quantity != item.Quantity || !decoded.CreatedAt.Equal(item.CreatedAt) {
		t.Errorf("unexpected decoded item: %+v", decoded)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("expected only the export file, found %d entries", len(entries))
	}
}

func TestExportReplacesExisting(t *testing.T) {
	master := testMaster(t)
	dir := t.TempDir()
	item := testItem()

	if _, err := Item(context.Background(), dir, item, master); err != nil {
		t.Fatal(err)
	}
	item.Quantity = 1
	path, err := Item(context.Background(), dir, item, master)
	if err != nil {
		t.Fatal(err)
	}

	decoded, err := DecryptItem(path, master)
	if err != nil {
		t.Fatal(err)
	}
	if decoded.Quantity != 1 {
		t.Errorf("expected replaced export, got quantity %d", decoded.Quantity)
	}
}

func TestDecryptWrongKey(t *testing.T) {
	dir := t.TempDir()
	path, err := Item(context.Background(), dir, testItem(), testMaster(t))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := Decrypt(path, testMaster(t)); !errors.Is(err, secure.ErrCorrupt) {
		t.Errorf("expected ErrCorrupt, got %v", err)
	}
}

func TestExportCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dir := filepath.Join(t.TempDir(), "out")
	if _, err := Item(ctx, dir, testItem(), testMaster(t)); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
