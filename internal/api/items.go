package api

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/erazemk/inventar/internal/db"
	"github.com/erazemk/inventar/internal/export"
	"github.com/erazemk/inventar/internal/imaging"
	"github.com/erazemk/inventar/internal/metrics"
	"github.com/erazemk/inventar/internal/model"
	"github.com/erazemk/inventar/internal/prefs"
	"github.com/erazemk/inventar/internal/store"
)

// ItemsHandler handles item endpoints.
type ItemsHandler struct {
	DB        *db.Encrypted
	Prefs     *prefs.Store
	Metrics   *metrics.Metrics
	ExportDir string
	MasterKey []byte
}

// itemView is the detail screen state of an item.
type itemView struct {
	model.Item
	OutOfStock     bool   `json:"out_of_stock"`
	FormattedPrice string `json:"formatted_price"`
	ShareEnabled   bool   `json:"share_enabled"`
	Masked         bool   `json:"masked"`
}

func newItemView(item model.Item, st model.Settings) itemView {
	v := itemView{
		Item:           item,
		OutOfStock:     item.OutOfStock(),
		FormattedPrice: item.FormattedPrice(),
		ShareEnabled:   !st.ForbidShare,
		Masked:         st.HideSensitive,
	}
	if st.HideSensitive {
		v.Item = item.Masked()
	}
	return v
}

type entryState struct {
	ItemDetails  model.ItemDetails  `json:"item_details"`
	IsEntryValid bool               `json:"is_entry_valid"`
	Errors       []model.FieldError `json:"errors"`
}

func newEntryState(d model.ItemDetails) entryState {
	errs := model.ValidateItemDetails(d)
	if errs == nil {
		errs = []model.FieldError{}
	}
	return entryState{ItemDetails: d, IsEntryValid: len(errs) == 0, Errors: errs}
}

type exportRequest struct {
	Subdir string `json:"subdir"`
}

// loadItem fetches the {id} item, writing an error response and returning
// nil if it cannot.
func (h *ItemsHandler) loadItem(w http.ResponseWriter, r *http.Request) *model.Item {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return nil
	}
	item, err := store.GetItem(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to get item", "id", id, "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get item")
		return nil
	}
	if item == nil {
		jsonError(w, http.StatusNotFound, "item not found")
		return nil
	}
	return item
}

func (h *ItemsHandler) settings(w http.ResponseWriter, r *http.Request) (model.Settings, bool) {
	st, err := h.Prefs.Load(r.Context())
	if err != nil {
		slog.Error("failed to load settings", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to load settings")
		return model.Settings{}, false
	}
	return st, true
}

// List handles GET /api/items.
func (h *ItemsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit", 0)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	offset, ok := queryInt(r, "offset", 0)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid offset")
		return
	}

	items, err := store.ListItems(r.Context(), h.DB, store.ItemFilter{
		Query:  r.URL.Query().Get("q"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		slog.Error("failed to list items", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list items")
		return
	}
	st, ok := h.settings(w, r)
	if !ok {
		return
	}
	if items == nil {
		items = []model.Item{}
	}
	if st.HideSensitive {
		for i := range items {
			items[i] = items[i].Masked()
		}
	}
	jsonResponse(w, http.StatusOK, items)
}

// New handles GET /api/items/new. The form is pre-filled with the supplier
// defaults when FillDefault is on.
func (h *ItemsHandler) New(w http.ResponseWriter, r *http.Request) {
	st, ok := h.settings(w, r)
	if !ok {
		return
	}
	jsonResponse(w, http.StatusOK, newEntryState(st.EntryDefaults()))
}

// Edit handles GET /api/items/{id}/edit. The form carries the stored values
// unmasked so that saving it keeps the supplier fields.
func (h *ItemsHandler) Edit(w http.ResponseWriter, r *http.Request) {
	item := h.loadItem(w, r)
	if item == nil {
		return
	}
	jsonResponse(w, http.StatusOK, newEntryState(item.Details()))
}

// Validate handles POST /api/items/validate.
func (h *ItemsHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var d model.ItemDetails
	if err := decodeJSON(w, r, &d); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	jsonResponse(w, http.StatusOK, newEntryState(d))
}

// Create handles POST /api/items.
func (h *ItemsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var d model.ItemDetails
	if err := decodeJSON(w, r, &d); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !model.IsEntryValid(d) {
		jsonResponse(w, http.StatusUnprocessableEntity, newEntryState(d))
		return
	}

	item, err := store.CreateItem(r.Context(), h.DB, d.ToItem())
	if err != nil {
		slog.Error("failed to create item", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to create item")
		return
	}

	slog.Info("item created", "user", GetClaims(r.Context()).Username, "item_id", item.ID)
	jsonResponse(w, http.StatusCreated, item)
}

// Get handles GET /api/items/{id}.
func (h *ItemsHandler) Get(w http.ResponseWriter, r *http.Request) {
	item := h.loadItem(w, r)
	if item == nil {
		return
	}
	st, ok := h.settings(w, r)
	if !ok {
		return
	}
	jsonResponse(w, http.StatusOK, newItemView(*item, st))
}

// Update handles PUT /api/items/{id}.
func (h *ItemsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	var d model.ItemDetails
	if err := decodeJSON(w, r, &d); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !model.IsEntryValid(d) {
		jsonResponse(w, http.StatusUnprocessableEntity, newEntryState(d))
		return
	}

	item := d.ToItem()
	item.ID = id
	err := store.UpdateItem(r.Context(), h.DB, item)
	if errors.Is(err, store.ErrItemNotFound) {
		jsonError(w, http.StatusNotFound, "item not found")
		return
	}
	if err != nil {
		slog.Error("failed to update item", "id", id, "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to update item")
		return
	}

	updated, err := store.GetItem(r.Context(), h.DB, id)
	if err != nil || updated == nil {
		slog.Error("failed to reload item", "id", id, "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get item")
		return
	}

	slog.Info("item updated", "user", GetClaims(r.Context()).Username, "item_id", id)
	jsonResponse(w, http.StatusOK, updated)
}

// Delete handles DELETE /api/items/{id}.
func (h *ItemsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	err := store.DeleteItem(r.Context(), h.DB, id)
	if errors.Is(err, store.ErrItemNotFound) {
		jsonError(w, http.StatusNotFound, "item not found")
		return
	}
	if err != nil {
		slog.Error("failed to delete item", "id", id, "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to delete item")
		return
	}

	slog.Info("item deleted", "user", GetClaims(r.Context()).Username, "item_id", id)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "item deleted"})
}

// Sell handles POST /api/items/{id}/sell. Selling an item that is out of
// stock succeeds without changing it.
func (h *ItemsHandler) Sell(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	item, sold, err := store.SellItem(r.Context(), h.DB, id)
	if errors.Is(err, store.ErrItemNotFound) {
		jsonError(w, http.StatusNotFound, "item not found")
		return
	}
	if err != nil {
		slog.Error("failed to sell item", "id", id, "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to sell item")
		return
	}

	if sold {
		if h.Metrics != nil {
			h.Metrics.ItemSold()
		}
		slog.Info("item sold", "user", GetClaims(r.Context()).Username, "item_id", id, "remaining", item.Quantity)
	}

	st, ok := h.settings(w, r)
	if !ok {
		return
	}
	jsonResponse(w, http.StatusOK, map[string]any{
		"sold": sold,
		"item": newItemView(*item, st),
	})
}

// Share handles GET /api/items/{id}/share.
func (h *ItemsHandler) Share(w http.ResponseWriter, r *http.Request) {
	st, ok := h.settings(w, r)
	if !ok {
		return
	}
	if st.ForbidShare {
		jsonError(w, http.StatusForbidden, model.ErrShareForbidden.Error())
		return
	}

	item := h.loadItem(w, r)
	if item == nil {
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(model.ShareText(*item)))
}

// Export handles POST /api/items/{id}/export.
func (h *ItemsHandler) Export(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	dir := h.ExportDir
	if req.Subdir != "" {
		if !filepath.IsLocal(req.Subdir) {
			jsonError(w, http.StatusBadRequest, "subdir must be a relative path inside the export directory")
			return
		}
		dir = filepath.Join(dir, req.Subdir)
	}

	item := h.loadItem(w, r)
	if item == nil {
		return
	}

	path, err := export.Item(r.Context(), dir, *item, h.MasterKey)
	if h.Metrics != nil {
		h.Metrics.Export(err)
	}
	if err != nil {
		slog.Error("failed to export item", "id", item.ID, "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to export item")
		return
	}

	slog.Info("item exported", "user", GetClaims(r.Context()).Username, "item_id", item.ID, "path", path)
	jsonResponse(w, http.StatusOK, map[string]string{"path": path})
}

// UploadImage handles PUT /api/items/{id}/image. The body is the raw JPEG or
// PNG file.
func (h *ItemsHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return
	}
	defer r.Body.Close()

	photo, err := imaging.Photo(r.Body)
	switch {
	case errors.Is(err, imaging.ErrTooLarge):
		jsonError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	case err != nil:
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	err = store.SetItemImage(r.Context(), h.DB, id, photo)
	if errors.Is(err, store.ErrItemNotFound) {
		jsonError(w, http.StatusNotFound, "item not found")
		return
	}
	if err != nil {
		slog.Error("failed to store item image", "id", id, "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to store image")
		return
	}

	jsonResponse(w, http.StatusOK, map[string]string{"message": "image updated"})
}

// GetImage handles GET /api/items/{id}/image.
func (h *ItemsHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	photo, err := store.GetItemImage(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to get item image", "id", id, "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get image")
		return
	}
	if photo == nil {
		jsonError(w, http.StatusNotFound, "image not found")
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "private, no-store")
	http.ServeContent(w, r, "", time.Time{}, bytes.NewReader(photo))
}
