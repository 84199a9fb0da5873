package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/erazemk/inventar/internal/db"
	"github.com/erazemk/inventar/internal/model"
)

// ErrItemNotFound is returned by writes that target a missing item.
var ErrItemNotFound = errors.New("item not found")

// ItemFilter narrows ListItems. Zero values mean no restriction.
type ItemFilter struct {
	// Query matches item names case-insensitively. Names are sealed, so the
	// match happens after decryption.
	Query  string
	Limit  int
	Offset int
}

var itemColumns = []string{"id", "payload", "image IS NOT NULL", "created_at", "updated_at"}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(database *db.Encrypted, row rowScanner) (*model.Item, error) {
	item := &model.Item{}
	var payload []byte
	if err := row.Scan(&item.ID, &payload, &item.HasImage, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return nil, err
	}
	if err := database.OpenItem(payload, item); err != nil {
		return nil, err
	}
	return item, nil
}

// CreateItem stores a new item and returns it with its generated id.
func CreateItem(ctx context.Context, database *db.Encrypted, item model.Item) (*model.Item, error) {
	if item.Source == "" {
		item.Source = model.SourceManual
	}
	payload, err := database.SealItem(item)
	if err != nil {
		return nil, err
	}

	result, err := database.ExecContext(ctx,
		`INSERT INTO items (payload) VALUES (?)`, payload,
	)
	if err != nil {
		return nil, fmt.Errorf("creating item: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting item id: %w", err)
	}

	return GetItem(ctx, database, id)
}

// GetItem returns an item by ID, or nil if it does not exist.
func GetItem(ctx context.Context, database *db.Encrypted, id int64) (*model.Item, error) {
	query, args, err := sq.Select(itemColumns...).From("items").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("building item query: %w", err)
	}

	item, err := scanItem(database, database.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting item: %w", err)
	}
	return item, nil
}

// ListItems returns items ordered by id.
func ListItems(ctx context.Context, database *db.Encrypted, f ItemFilter) ([]model.Item, error) {
	b := sq.Select(itemColumns...).From("items").OrderBy("id")
	// Without a name query the database can paginate; otherwise rows are
	// filtered after decryption and paginated here.
	if f.Query == "" {
		if f.Limit > 0 {
			b = b.Limit(uint64(f.Limit))
		}
		if f.Offset > 0 {
			if f.Limit <= 0 {
				b = b.Limit(1<<63 - 1)
			}
			b = b.Offset(uint64(f.Offset))
		}
	}

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building item list query: %w", err)
	}

	rows, err := database.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	defer rows.Close()

	var items []model.Item
	for rows.Next() {
		item, err := scanItem(database, rows)
		if err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}

	if f.Query == "" {
		return items, nil
	}
	return paginate(filterByName(items, f.Query), f.Offset, f.Limit), nil
}

func filterByName(items []model.Item, query string) []model.Item {
	q := strings.ToLower(query)
	var out []model.Item
	for _, it := range items {
		if strings.Contains(strings.ToLower(it.Name), q) {
			out = append(out, it)
		}
	}
	return out
}

func paginate(items []model.Item, offset, limit int) []model.Item {
	if offset >= len(items) {
		return nil
	}
	if offset > 0 {
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// UpdateItem replaces every field of an existing item.
func UpdateItem(ctx context.Context, database *db.Encrypted, item model.Item) error {
	if item.Source == "" {
		item.Source = model.SourceManual
	}
	payload, err := database.SealItem(item)
	if err != nil {
		return err
	}
	return writePayload(ctx, database.DB, item.ID, payload)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func writePayload(ctx context.Context, ex execer, id int64, payload []byte) error {
	query, args, err := sq.Update("items").
		Set("payload", payload).
		Set("updated_at", sq.Expr("CURRENT_TIMESTAMP")).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building item update: %w", err)
	}

	result, err := ex.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating item: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating item: %w", err)
	}
	if n == 0 {
		return ErrItemNotFound
	}
	return nil
}

// DeleteItem permanently removes an item.
func DeleteItem(ctx context.Context, database *db.Encrypted, id int64) error {
	result, err := database.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting item: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting item: %w", err)
	}
	if n == 0 {
		return ErrItemNotFound
	}
	return nil
}

// SellItem decrements the quantity of an item by one. Selling an item that
// is out of stock leaves it unchanged. The returned flag reports whether a
// unit was sold.
func SellItem(ctx context.Context, database *db.Encrypted, id int64) (*model.Item, bool, error) {
	tx, err := database.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	query, args, err := sq.Select(itemColumns...).From("items").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, false, fmt.Errorf("building item query: %w", err)
	}
	item, err := scanItem(database, tx.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, false, ErrItemNotFound
	}
	if err != nil {
		return nil, false, fmt.Errorf("getting item: %w", err)
	}

	if item.OutOfStock() {
		return item, false, nil
	}

	item.Quantity--
	payload, err := database.SealItem(*item)
	if err != nil {
		return nil, false, err
	}
	if err := writePayload(ctx, tx, id, payload); err != nil {
		return nil, false, err
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("committing sale: %w", err)
	}
	return item, true, nil
}

// SetItemImage stores an item's photo, sealed.
func SetItemImage(ctx context.Context, database *db.Encrypted, id int64, image []byte) error {
	sealed, err := database.SealImage(image)
	if err != nil {
		return err
	}
	result, err := database.ExecContext(ctx,
		`UPDATE items SET image = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		sealed, id,
	)
	if err != nil {
		return fmt.Errorf("setting item image: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("setting item image: %w", err)
	}
	if n == 0 {
		return ErrItemNotFound
	}
	return nil
}

// GetItemImage returns an item's photo, or nil if it has none.
func GetItemImage(ctx context.Context, database *db.Encrypted, id int64) ([]byte, error) {
	var sealed []byte
	err := database.QueryRowContext(ctx,
		`SELECT image FROM items WHERE id = ?`, id,
	).Scan(&sealed)
	if err == sql.ErrNoRows || (err == nil && sealed == nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting item image: %w", err)
	}
	image, err := database.OpenImage(sealed)
	if err != nil {
		return nil, fmt.Errorf("opening item image: %w", err)
	}
	return image, nil
}
