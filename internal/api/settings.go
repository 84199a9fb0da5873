package api

import (
	"log/slog"
	"net/http"

	"github.com/erazemk/inventar/internal/model"
	"github.com/erazemk/inventar/internal/prefs"
)

// SettingsHandler serves the supplier defaults and display toggles.
type SettingsHandler struct {
	Prefs *prefs.Store
}

// Get handles GET /api/settings.
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	st, err := h.Prefs.Load(r.Context())
	if err != nil {
		slog.Error("failed to load settings", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}
	jsonResponse(w, http.StatusOK, st)
}

// Update handles PUT /api/settings. Only the fields present in the body change.
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var patch model.SettingsPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	st, err := h.Prefs.Apply(r.Context(), patch)
	if err != nil {
		slog.Error("failed to save settings", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to save settings")
		return
	}

	slog.Info("settings updated", "user", GetClaims(r.Context()).Username)
	jsonResponse(w, http.StatusOK, st)
}

// Reset handles DELETE /api/settings. Every toggle is turned off and the
// supplier defaults are cleared.
func (h *SettingsHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if err := h.Prefs.Save(r.Context(), model.Settings{}); err != nil {
		slog.Error("failed to reset settings", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to reset settings")
		return
	}

	slog.Info("settings reset", "user", GetClaims(r.Context()).Username)
	jsonResponse(w, http.StatusOK, model.Settings{})
}
