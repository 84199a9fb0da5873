// Package config holds the server settings and their YAML loader.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Prefs    PrefsConfig    `yaml:"prefs"`
	Keys     KeysConfig     `yaml:"keys"`
	Export   ExportConfig   `yaml:"export"`
	Log      LogConfig      `yaml:"log"`
	Admin    AdminConfig    `yaml:"admin"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr              string        `yaml:"addr"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig locates the item database and the passphrase its key is
// derived from.
type DatabaseConfig struct {
	Path       string `yaml:"path"`
	Passphrase string `yaml:"passphrase"`
}

// PrefsConfig locates the encrypted preferences file.
type PrefsConfig struct {
	Path string `yaml:"path"`
}

// KeysConfig locates the master key file.
type KeysConfig struct {
	MasterKeyPath string `yaml:"master_key_path"`
}

// ExportConfig is the root directory for encrypted item exports.
type ExportConfig struct {
	Dir string `yaml:"dir"`
}

// LogConfig sets an optional log file in addition to stdout/stderr.
type LogConfig struct {
	Path string `yaml:"path"`
}

// AdminConfig names the admin account created on first run.
type AdminConfig struct {
	Username string `yaml:"username"`
}

// Defaults.
const (
	DefaultAddr          = ":8080"
	DefaultDatabasePath  = "inventar.sqlite3"
	DefaultPassphrase    = "password"
	DefaultPrefsPath     = "preferences.sqlite3"
	DefaultMasterKeyPath = "master.key"
	DefaultExportDir     = "exports"
	DefaultAdminUsername = "Admin"
)

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:              DefaultAddr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
			ShutdownTimeout:   5 * time.Second,
		},
		Database: DatabaseConfig{
			Path:       DefaultDatabasePath,
			Passphrase: DefaultPassphrase,
		},
		Prefs:  PrefsConfig{Path: DefaultPrefsPath},
		Keys:   KeysConfig{MasterKeyPath: DefaultMasterKeyPath},
		Export: ExportConfig{Dir: DefaultExportDir},
		Admin:  AdminConfig{Username: DefaultAdminUsername},
	}
}

// Load reads the YAML file at path over the defaults. An empty path returns
// the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return &cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %q: %w", path, err)
	}

	cfg.Normalize()
	return &cfg, nil
}

// Normalize replaces empty or invalid values with defaults.
func (c *Config) Normalize() {
	def := Default()

	if c.Server.Addr == "" {
		c.Server.Addr = def.Server.Addr
	}
	if c.Server.ReadHeaderTimeout <= 0 {
		c.Server.ReadHeaderTimeout = def.Server.ReadHeaderTimeout
	}
	if c.Server.ReadTimeout <= 0 {
		c.Server.ReadTimeout = def.Server.ReadTimeout
	}
	if c.Server.WriteTimeout <= 0 {
		c.Server.WriteTimeout = def.Server.WriteTimeout
	}
	if c.Server.IdleTimeout <= 0 {
		c.Server.IdleTimeout = def.Server.IdleTimeout
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = def.Server.ShutdownTimeout
	}
	if c.Database.Path == "" {
		c.Database.Path = def.Database.Path
	}
	if c.Database.Passphrase == "" {
		c.Database.Passphrase = def.Database.Passphrase
	}
	if c.Prefs.Path == "" {
		c.Prefs.Path = def.Prefs.Path
	}
	if c.Keys.MasterKeyPath == "" {
		c.Keys.MasterKeyPath = def.Keys.MasterKeyPath
	}
	if c.Export.Dir == "" {
		c.Export.Dir = def.Export.Dir
	}
	if c.Admin.Username == "" {
		c.Admin.Username = def.Admin.Username
	}
}
