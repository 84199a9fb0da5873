package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if *cfg != Default() {
		t.Errorf("expected defaults, got %+v", cfg)
	}
	if cfg.Database.Passphrase != "password" {
		t.Errorf("unexpected default passphrase %q", cfg.Database.Passphrase)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: "127.0.0.1:9000"
  read_timeout: 5s
database:
  path: /var/lib/inventar/items.db
export:
  dir: /tmp/out
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:9000" {
		t.Errorf("expected addr override, got %q", cfg.Server.Addr)
	}
	if cfg.Server.ReadTimeout != 5*time.Second {
		t.Errorf("expected 5s read timeout, got %v", cfg.Server.ReadTimeout)
	}
	if cfg.Server.WriteTimeout != 60*time.Second {
		t.Errorf("expected default write timeout, got %v", cfg.Server.WriteTimeout)
	}
	if cfg.Database.Path != "/var/lib/inventar/items.db" {
		t.Errorf("unexpected database path %q", cfg.Database.Path)
	}
	if cfg.Database.Passphrase != DefaultPassphrase {
		t.Errorf("expected default passphrase, got %q", cfg.Database.Passphrase)
	}
	if cfg.Export.Dir != "/tmp/out" {
		t.Errorf("unexpected export dir %q", cfg.Export.Dir)
	}
}

func TestLoadNormalizesEmptyValues(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ""
  idle_timeout: -1s
prefs:
  path: ""
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != DefaultAddr {
		t.Errorf("expected default addr, got %q", cfg.Server.Addr)
	}
	if cfg.Server.IdleTimeout != 120*time.Second {
		t.Errorf("expected default idle timeout, got %v", cfg.Server.IdleTimeout)
	}
	if cfg.Prefs.Path != DefaultPrefsPath {
		t.Errorf("expected default prefs path, got %q", cfg.Prefs.Path)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := Load(writeConfig(t, "server: [unclosed")); err == nil {
		t.Error("expected error for invalid YAML")
	}
}
