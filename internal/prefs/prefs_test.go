package prefs

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/erazemk/inventar/internal/model"
	"github.com/erazemk/inventar/internal/secure"
)

func openTestStore(t *testing.T) (*Store, string, []byte) {
	t.Helper()
	master, err := secure.RandomBytes(secure.KeySize)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "preferences.sqlite3")
	s, err := Open(path, master)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, path, master
}

func TestDefaults(t *testing.T) {
	s, _, _ := openTestStore(t)
	ctx := context.Background()

	v, err := s.GetString(ctx, model.KeyProviderDefault, "fallback")
	if err != nil || v != "fallback" {
		t.Errorf("expected default string, got %q (%v)", v, err)
	}
	b, err := s.GetBool(ctx, model.KeyHide, true)
	if err != nil || !b {
		t.Errorf("expected default bool, got %v (%v)", b, err)
	}

	st, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st != (model.Settings{}) {
		t.Errorf("expected zero settings, got %+v", st)
	}
}

func TestPutGetLastWriteWins(t *testing.T) {
	s, _, _ := openTestStore(t)
	ctx := context.Background()

	s.PutString(ctx, model.KeyEmailDefault, "a@acme.com")
	s.PutString(ctx, model.KeyEmailDefault, "b@acme.com")

	v, err := s.GetString(ctx, model.KeyEmailDefault, "")
	if err != nil {
		t.Fatal(err)
	}
	if v != "b@acme.com" {
		t.Errorf("expected last write, got %q", v)
	}

	s.PutBool(ctx, model.KeyForbid, true)
	if b, _ := s.GetBool(ctx, model.KeyForbid, false); !b {
		t.Error("expected Forbid to be true")
	}
}

func TestApplyPartial(t *testing.T) {
	s, _, _ := openTestStore(t)
	ctx := context.Background()

	on := true
	name := "Acme"
	st, err := s.Apply(ctx, model.SettingsPatch{FillDefault: &on, ProviderDefault: &name})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !st.FillDefault || st.ProviderDefault != "Acme" || st.HideSensitive {
		t.Errorf("unexpected settings: %+v", st)
	}

	off := false
	st, err = s.Apply(ctx, model.SettingsPatch{FillDefault: &off})
	if err != nil {
		t.Fatal(err)
	}
	if st.FillDefault || st.ProviderDefault != "Acme" {
		t.Errorf("expected only FillDefault to change, got %+v", st)
	}
}

func TestSaveLoad(t *testing.T) {
	s, _, _ := openTestStore(t)
	ctx := context.Background()

	want := model.Settings{
		FillDefault:     true,
		ProviderDefault: "Acme",
		EmailDefault:    "orders@acme.com",
		PhoneDefault:    "12345678901",
		HideSensitive:   true,
	}
	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("expected %+v, got %+v", want, got)
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	s, path, master := openTestStore(t)
	ctx := context.Background()

	s.PutBool(ctx, model.KeyHide, true)
	s.Close()

	reopened, err := Open(path, master)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	if b, _ := reopened.GetBool(ctx, model.KeyHide, false); !b {
		t.Error("expected Hide to persist")
	}

	other, _ := secure.RandomBytes(secure.KeySize)
	wrong, err := Open(path, other)
	if err != nil {
		t.Fatal(err)
	}
	defer wrong.Close()
	// Under another master key the tagged key name does not match.
	if b, err := wrong.GetBool(ctx, model.KeyHide, false); err != nil || b {
		t.Errorf("expected preference to be unreadable with another key, got %v (%v)", b, err)
	}
}

func TestValuesNotStoredInPlaintext(t *testing.T) {
	s, path, _ := openTestStore(t)
	ctx := context.Background()

	s.PutString(ctx, model.KeyProviderDefault, "Secret Supplier Ltd")
	s.Close()

	for _, p := range []string{path, path + "-wal"} {
		raw, err := os.ReadFile(p)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			t.Fatal(err)
		}
		if bytes.Contains(raw, []byte("Secret Supplier")) {
			t.Errorf("%s contains plaintext value", filepath.Base(p))
		}
		if bytes.Contains(raw, []byte(model.KeyProviderDefault)) {
			t.Errorf("%s contains plaintext key name", filepath.Base(p))
		}
	}
}
