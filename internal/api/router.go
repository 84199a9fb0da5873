package api

import (
	"net/http"

	"github.com/erazemk/inventar/internal/auth"
	"github.com/erazemk/inventar/internal/db"
	"github.com/erazemk/inventar/internal/metrics"
	"github.com/erazemk/inventar/internal/model"
	"github.com/erazemk/inventar/internal/prefs"
)

// Deps are the services the API handlers use.
type Deps struct {
	DB        *db.Encrypted
	Prefs     *prefs.Store
	Tokens    *auth.Tokens
	Metrics   *metrics.Metrics
	ExportDir string
	MasterKey []byte
}

// NewRouter creates the API router with all endpoints registered.
func NewRouter(d Deps) http.Handler {
	mux := http.NewServeMux()

	authHandler := &AuthHandler{DB: d.DB.DB, Tokens: d.Tokens}
	usersHandler := &UsersHandler{DB: d.DB.DB}
	itemsHandler := &ItemsHandler{
		DB:        d.DB,
		Prefs:     d.Prefs,
		Metrics:   d.Metrics,
		ExportDir: d.ExportDir,
		MasterKey: d.MasterKey,
	}
	settingsHandler := &SettingsHandler{Prefs: d.Prefs}

	authMW := AuthMiddleware(d.Tokens, d.DB.DB)
	requireAdmin := RequireRole(model.RoleAdmin)
	requireManager := RequireRole(model.RoleManager)

	// Public: login.
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)

	// Authenticated routes.
	mux.Handle("PUT /api/auth/password", authMW(http.HandlerFunc(authHandler.ChangePassword)))
	mux.Handle("POST /api/auth/logout", authMW(http.HandlerFunc(authHandler.Logout)))

	// Users (admin only).
	mux.Handle("GET /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.List))))
	mux.Handle("POST /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.Create))))
	mux.Handle("DELETE /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Delete))))

	// Items: read and sell (all roles), write (manager+).
	mux.Handle("GET /api/items", authMW(http.HandlerFunc(itemsHandler.List)))
	mux.Handle("GET /api/items/new", authMW(http.HandlerFunc(itemsHandler.New)))
	mux.Handle("POST /api/items/validate", authMW(http.HandlerFunc(itemsHandler.Validate)))
	mux.Handle("POST /api/items", authMW(requireManager(http.HandlerFunc(itemsHandler.Create))))
	mux.Handle("GET /api/items/{id}", authMW(http.HandlerFunc(itemsHandler.Get)))
	mux.Handle("GET /api/items/{id}/edit", authMW(requireManager(http.HandlerFunc(itemsHandler.Edit))))
	mux.Handle("PUT /api/items/{id}", authMW(requireManager(http.HandlerFunc(itemsHandler.Update))))
	mux.Handle("DELETE /api/items/{id}", authMW(requireManager(http.HandlerFunc(itemsHandler.Delete))))
	mux.Handle("POST /api/items/{id}/sell", authMW(http.HandlerFunc(itemsHandler.Sell)))
	mux.Handle("GET /api/items/{id}/share", authMW(http.HandlerFunc(itemsHandler.Share)))
	mux.Handle("POST /api/items/{id}/export", authMW(requireManager(http.HandlerFunc(itemsHandler.Export))))
	mux.Handle("PUT /api/items/{id}/image", authMW(requireManager(http.HandlerFunc(itemsHandler.UploadImage))))
	mux.Handle("GET /api/items/{id}/image", authMW(http.HandlerFunc(itemsHandler.GetImage)))

	// Settings: read (all roles), write (manager+).
	mux.Handle("GET /api/settings", authMW(http.HandlerFunc(settingsHandler.Get)))
	mux.Handle("PUT /api/settings", authMW(requireManager(http.HandlerFunc(settingsHandler.Update))))
	mux.Handle("DELETE /api/settings", authMW(requireManager(http.HandlerFunc(settingsHandler.Reset))))

	if d.Metrics != nil {
		mux.Handle("GET /metrics", d.Metrics.Handler())
	}

	return mux
}
