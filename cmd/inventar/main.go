package main

import (
	"context"
	"crypto/rand"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/inventar/internal/api"
	"github.com/erazemk/inventar/internal/auth"
	"github.com/erazemk/inventar/internal/config"
	"github.com/erazemk/inventar/internal/db"
	"github.com/erazemk/inventar/internal/export"
	"github.com/erazemk/inventar/internal/metrics"
	"github.com/erazemk/inventar/internal/model"
	"github.com/erazemk/inventar/internal/prefs"
	"github.com/erazemk/inventar/internal/secure"
	"github.com/erazemk/inventar/internal/store"
)

// purgeInterval is how often expired token revocations are dropped.
const purgeInterval = time.Hour

type options struct {
	configPath string
	decrypt    string

	// Overrides for the config file. Empty means not set.
	dbPath    string
	addr      string
	adminUser string
	logPath   string
	prefsPath string
	keyPath   string
	exportDir string
}

func parseFlags(args []string) (*options, error) {
	fs := flag.NewFlagSet("inventar", flag.ContinueOnError)
	var o options

	str := func(p *string, long, short string) {
		fs.StringVar(p, long, "", "")
		if short != "" {
			fs.StringVar(p, short, "", "")
		}
	}
	str(&o.configPath, "config", "c")
	str(&o.dbPath, "db", "d")
	str(&o.addr, "addr", "a")
	str(&o.adminUser, "user", "u")
	str(&o.logPath, "log", "l")
	str(&o.prefsPath, "prefs", "p")
	str(&o.keyPath, "key", "k")
	str(&o.exportDir, "export", "e")
	str(&o.decrypt, "decrypt", "")

	fs.Usage = func() {
		fmt.Fprint(os.Stdout, `Usage: inventar [flags]

Flags:
  -c, -config <path>      YAML config file (default: built-in defaults)
  -d, -db <path>          SQLite database path (default: inventar.sqlite3)
  -a, -addr <host:port>   listen address (default: :8080)
  -u, -user <name>        admin username on first run (default: Admin)
  -l, -log <path>         log file path (default: no file, stdout/stderr only)
  -p, -prefs <path>       encrypted preferences file (default: preferences.sqlite3)
  -k, -key <path>         master key file, created on first run (default: master.key)
  -e, -export <dir>       export directory (default: exports)
  -decrypt <file>         print a decrypted item export and exit
  -h, -help               show this help and exit
`)
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		fs.Usage()
		return nil, fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}
	return &o, nil
}

// apply layers the flags that were set over cfg.
func (o *options) apply(cfg *config.Config) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.Database.Path, o.dbPath)
	set(&cfg.Server.Addr, o.addr)
	set(&cfg.Admin.Username, o.adminUser)
	set(&cfg.Log.Path, o.logPath)
	set(&cfg.Prefs.Path, o.prefsPath)
	set(&cfg.Keys.MasterKeyPath, o.keyPath)
	set(&cfg.Export.Dir, o.exportDir)
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	opts.apply(cfg)

	closeLog, err := setupLogger(cfg.Log.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	master, err := secure.LoadOrCreateMasterKey(cfg.Keys.MasterKeyPath)
	if err != nil {
		slog.Error("failed to load master key", "path", cfg.Keys.MasterKeyPath, "error", err)
		os.Exit(1)
	}

	if opts.decrypt != "" {
		data, err := export.Decrypt(opts.decrypt, master)
		if err != nil {
			slog.Error("failed to decrypt export", "path", opts.decrypt, "error", err)
			os.Exit(1)
		}
		os.Stdout.Write(append(data, '\n'))
		return
	}

	if err := run(cfg, master); err != nil {
		slog.Error("fatal", "error", err)
		closeLog()
		os.Exit(1)
	}
}

func run(cfg *config.Config, master []byte) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Plaintext databases are encrypted here. Any failure is fatal; the
	// original file is left in place.
	database, err := db.OpenEncrypted(ctx, cfg.Database.Path, []byte(cfg.Database.Passphrase))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer database.Close()
	slog.Info("database ready", "path", cfg.Database.Path)

	if err := ensureAdmin(ctx, database, cfg.Admin.Username); err != nil {
		return err
	}

	settings, err := prefs.Open(cfg.Prefs.Path, master)
	if err != nil {
		return fmt.Errorf("opening preferences: %w", err)
	}
	defer settings.Close()

	jwtSecret, err := store.GetJWTSecret(ctx, database)
	if err != nil {
		return fmt.Errorf("loading JWT secret: %w", err)
	}

	m := metrics.New()
	router := api.NewRouter(api.Deps{
		DB:        database,
		Prefs:     settings,
		Tokens:    auth.NewTokens(jwtSecret, auth.DefaultTTL),
		Metrics:   m,
		ExportDir: cfg.Export.Dir,
		MasterKey: master,
	})

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.LoggingMiddleware(m, router),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	go purgeTokens(ctx, database)

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server forced to shutdown", "error", err)
		}
	}()

	slog.Info("server started", "addr", cfg.Server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving: %w", err)
	}

	slog.Info("server stopped, closing database")
	return nil
}

func purgeTokens(ctx context.Context, database *db.Encrypted) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := store.PurgeExpiredTokens(ctx, database.DB, now)
			if err != nil {
				slog.Warn("failed to purge revoked tokens", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("purged revoked tokens", "count", n)
			}
		}
	}
}

// ensureAdmin creates the admin account when there are no users yet and
// prints its generated password.
func ensureAdmin(ctx context.Context, database *db.Encrypted, username string) error {
	n, err := store.CountUsers(ctx, database.DB)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	password, err := generatePassword(16)
	if err != nil {
		return fmt.Errorf("generating password: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	if _, err := store.CreateUser(ctx, database.DB, username, string(hash), model.RoleAdmin); err != nil {
		return fmt.Errorf("creating admin user: %w", err)
	}

	fmt.Println("Admin account created:")
	fmt.Printf("  Username: %s\n", username)
	fmt.Printf("  Password: %s\n", password)
	fmt.Println()
	fmt.Println("Save this password, it cannot be recovered.")
	fmt.Println("The admin can change it after logging in.")
	fmt.Println()
	return nil
}

// generatePassword creates a random password of the given length.
func generatePassword(length int) (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%&*"
	result := make([]byte, length)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		result[i] = charset[n.Int64()]
	}
	return string(result), nil
}
