package store

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/erazemk/inventar/internal/db"
	"github.com/erazemk/inventar/internal/model"
)

func widget() model.Item {
	return model.Item{
		Name:          "Widget",
		Price:         12.5,
		Quantity:      2,
		ProviderName:  "Acme",
		ProviderEmail: "sales@acme.com",
		ProviderPhone: "79001234567",
		Source:        model.SourceManual,
	}
}

func sameFields(a, b model.Item) bool {
	return a.Name == b.Name && a.Price == b.Price && a.Quantity == b.Quantity &&
		a.ProviderName == b.ProviderName && a.ProviderEmail == b.ProviderEmail &&
		a.ProviderPhone == b.ProviderPhone && a.Source == b.Source
}

func TestCreateAndGetItem(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	item, err := CreateItem(ctx, database, widget())
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	if item.ID == 0 {
		t.Error("expected generated id")
	}
	if !sameFields(*item, widget()) {
		t.Errorf("created item differs: %+v", item)
	}

	got, err := GetItem(ctx, database, item.ID)
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if !sameFields(*got, widget()) {
		t.Errorf("retrieved item differs: %+v", got)
	}

	missing, err := GetItem(ctx, database, item.ID+100)
	if err != nil {
		t.Fatalf("GetItem missing: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for missing item")
	}
}

func TestCreateItemDefaultsSource(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	w := widget()
	w.Source = ""
	item, err := CreateItem(ctx, database, w)
	if err != nil {
		t.Fatal(err)
	}
	if item.Source != model.SourceManual {
		t.Errorf("expected source %q, got %q", model.SourceManual, item.Source)
	}
}

func TestItemRowIsSealed(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	item, _ := CreateItem(ctx, database, widget())

	var payload []byte
	if err := database.QueryRow(`SELECT payload FROM items WHERE id = ?`, item.ID).Scan(&payload); err != nil {
		t.Fatal(err)
	}
	if len(payload) == 0 {
		t.Fatal("expected payload")
	}
	for _, s := range []string{"Widget", "Acme", "sales@acme.com"} {
		if bytes.Contains(payload, []byte(s)) {
			t.Errorf("payload contains plaintext %q", s)
		}
	}
}

func TestListItems(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	for _, name := range []string{"Red Widget", "Blue Widget", "Gadget"} {
		w := widget()
		w.Name = name
		if _, err := CreateItem(ctx, database, w); err != nil {
			t.Fatal(err)
		}
	}

	all, err := ListItems(ctx, database, ItemFilter{})
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 items, got %d", len(all))
	}
	if all[0].Name != "Red Widget" {
		t.Errorf("expected items ordered by id, first is %q", all[0].Name)
	}

	page, _ := ListItems(ctx, database, ItemFilter{Limit: 1, Offset: 1})
	if len(page) != 1 || page[0].Name != "Blue Widget" {
		t.Errorf("unexpected page: %+v", page)
	}

	tail, _ := ListItems(ctx, database, ItemFilter{Offset: 2})
	if len(tail) != 1 || tail[0].Name != "Gadget" {
		t.Errorf("unexpected offset-only page: %+v", tail)
	}

	widgets, _ := ListItems(ctx, database, ItemFilter{Query: "widget"})
	if len(widgets) != 2 {
		t.Errorf("expected 2 widgets, got %d", len(widgets))
	}

	second, _ := ListItems(ctx, database, ItemFilter{Query: "widget", Offset: 1, Limit: 5})
	if len(second) != 1 || second[0].Name != "Blue Widget" {
		t.Errorf("unexpected filtered page: %+v", second)
	}

	none, _ := ListItems(ctx, database, ItemFilter{Query: "widget", Offset: 5})
	if len(none) != 0 {
		t.Errorf("expected empty page, got %d", len(none))
	}
}

func TestUpdateItem(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	item, _ := CreateItem(ctx, database, widget())
	item.Name = "Renamed"
	item.Quantity = 9
	item.ProviderEmail = ""
	if err := UpdateItem(ctx, database, *item); err != nil {
		t.Fatalf("UpdateItem: %v", err)
	}

	got, _ := GetItem(ctx, database, item.ID)
	if got.Name != "Renamed" || got.Quantity != 9 || got.ProviderEmail != "" {
		t.Errorf("update not applied: %+v", got)
	}

	missing := widget()
	missing.ID = 999
	if err := UpdateItem(ctx, database, missing); !errors.Is(err, ErrItemNotFound) {
		t.Errorf("expected ErrItemNotFound, got %v", err)
	}
}

func TestDeleteItem(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	item, _ := CreateItem(ctx, database, widget())
	if err := DeleteItem(ctx, database, item.ID); err != nil {
		t.Fatalf("DeleteItem: %v", err)
	}

	got, _ := GetItem(ctx, database, item.ID)
	if got != nil {
		t.Error("expected item to be gone")
	}

	if err := DeleteItem(ctx, database, item.ID); !errors.Is(err, ErrItemNotFound) {
		t.Errorf("expected ErrItemNotFound on second delete, got %v", err)
	}
}

func TestDeletedItemIDNotReused(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	CreateItem(ctx, database, widget())
	last, _ := CreateItem(ctx, database, widget())
	if err := DeleteItem(ctx, database, last.ID); err != nil {
		t.Fatal(err)
	}

	next, err := CreateItem(ctx, database, widget())
	if err != nil {
		t.Fatal(err)
	}
	if next.ID <= last.ID {
		t.Errorf("expected id above deleted %d, got %d", last.ID, next.ID)
	}
}

func TestSellItem(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	item, _ := CreateItem(ctx, database, widget()) // quantity 2

	for want := 1; want >= 0; want-- {
		sold, ok, err := SellItem(ctx, database, item.ID)
		if err != nil {
			t.Fatalf("SellItem: %v", err)
		}
		if !ok {
			t.Fatalf("expected a sale at quantity %d", want+1)
		}
		if sold.Quantity != want {
			t.Errorf("expected quantity %d, got %d", want, sold.Quantity)
		}
	}

	// At zero selling is a no-op.
	sold, ok, err := SellItem(ctx, database, item.ID)
	if err != nil {
		t.Fatalf("SellItem at zero: %v", err)
	}
	if ok {
		t.Error("expected no sale at quantity 0")
	}
	if sold.Quantity != 0 {
		t.Errorf("expected quantity to stay 0, got %d", sold.Quantity)
	}

	got, _ := GetItem(ctx, database, item.ID)
	if got.Quantity != 0 || !sameFields(*got, func() model.Item { w := widget(); w.Quantity = 0; return w }()) {
		t.Errorf("unexpected stored item: %+v", got)
	}

	if _, _, err := SellItem(ctx, database, 999); !errors.Is(err, ErrItemNotFound) {
		t.Errorf("expected ErrItemNotFound, got %v", err)
	}
}

func TestItemImage(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	item, _ := CreateItem(ctx, database, widget())
	if item.HasImage {
		t.Error("new item should have no image")
	}

	data, err := GetItemImage(ctx, database, item.ID)
	if err != nil || data != nil {
		t.Fatalf("expected no image, got %v (%v)", data, err)
	}

	if err := SetItemImage(ctx, database, item.ID, []byte("fake image data")); err != nil {
		t.Fatalf("SetItemImage: %v", err)
	}

	data, err = GetItemImage(ctx, database, item.ID)
	if err != nil {
		t.Fatalf("GetItemImage: %v", err)
	}
	if string(data) != "fake image data" {
		t.Errorf("expected image data, got %q", string(data))
	}

	got, _ := GetItem(ctx, database, item.ID)
	if !got.HasImage {
		t.Error("expected HasImage after upload")
	}

	if err := SetItemImage(ctx, database, 999, []byte("x")); !errors.Is(err, ErrItemNotFound) {
		t.Errorf("expected ErrItemNotFound, got %v", err)
	}
}
