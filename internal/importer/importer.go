// Package importer loads finished crawl batches into the relational schema.
// Every entity is upserted by its natural key, so re-importing a batch file
// is a no-op; there is no file-level transaction and a failed import is
// recovered by simply rerunning it.
package importer

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"

	"pricecrawler/internal/domain/models"
)

type Importer struct {
	db  *sql.DB
	log *slog.Logger
}

func New(db *sql.DB, log *slog.Logger) *Importer {
	if log == nil {
		log = slog.Default()
	}
	return &Importer{db: db, log: log}
}

// ImportBatch reads one batch file and upserts its contents. Returns the
// number of products imported; a database error aborts the rest of the file
// but keeps rows already written.
func (im *Importer) ImportBatch(ctx context.Context, path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read batch %s: %w", path, err)
	}
	var batch models.Batch
	if err := json.Unmarshal(b, &batch); err != nil {
		return 0, fmt.Errorf("parse batch %s: %w", path, err)
	}

	im.log.Info("importing batch", "path", path, "store", batch.StoreName, "date", batch.DateTime)

	storeID, err := im.upsertStore(ctx, batch.StoreName)
	if err != nil {
		return 0, err
	}

	imported := 0
	for _, categoryName := range sortedCategories(batch.Categories) {
		categoryID, err := im.upsertCategory(ctx, categoryName)
		if err != nil {
			return imported, err
		}

		for _, product := range batch.Categories[categoryName] {
			productID, err := im.upsertProduct(ctx, product, storeID, categoryID)
			if err != nil {
				return imported, err
			}
			if err := im.upsertCurrentPrice(ctx, productID, product, batch.DateTime); err != nil {
				return imported, err
			}
			imported++
		}
	}

	im.log.Info("batch imported", "path", path, "store", batch.StoreName, "count", imported)
	return imported, nil
}

func (im *Importer) upsertStore(ctx context.Context, name string) (int64, error) {
	var id int64
	err := im.db.QueryRowContext(ctx, "SELECT id FROM stores WHERE name = $1", name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("select store %q: %w", name, err)
	}

	err = im.db.QueryRowContext(ctx, "INSERT INTO stores (name) VALUES ($1) RETURNING id", name).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert store %q: %w", name, err)
	}
	return id, nil
}

func (im *Importer) upsertCategory(ctx context.Context, name string) (int64, error) {
	var id int64
	err := im.db.QueryRowContext(ctx, "SELECT id FROM categories WHERE name = $1", name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("select category %q: %w", name, err)
	}

	err = im.db.QueryRowContext(ctx, "INSERT INTO categories (name) VALUES ($1) RETURNING id", name).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert category %q: %w", name, err)
	}
	return id, nil
}

// upsertProduct matches on the natural key (title, store). The id is
// generated only on insert; on conflict the category and URL follow the new
// listing, since titles migrate categories across crawls.
func (im *Importer) upsertProduct(ctx context.Context, p models.Product, storeID, categoryID int64) (string, error) {
	var id string
	err := im.db.QueryRowContext(ctx,
		"SELECT id FROM products WHERE title = $1 AND store_id = $2",
		p.Title, storeID,
	).Scan(&id)
	if err == nil {
		_, err = im.db.ExecContext(ctx,
			"UPDATE products SET category_id = $1, product_url = $2 WHERE id = $3",
			categoryID, p.ProductURL, id,
		)
		if err != nil {
			return "", fmt.Errorf("update product %q: %w", p.Title, err)
		}
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("select product %q: %w", p.Title, err)
	}

	id = uuid.NewString()
	_, err = im.db.ExecContext(ctx,
		"INSERT INTO products (id, category_id, store_id, title, product_url) VALUES ($1, $2, $3, $4, $5)",
		id, categoryID, storeID, p.Title, p.ProductURL,
	)
	if err != nil {
		return "", fmt.Errorf("insert product %q: %w", p.Title, err)
	}
	return id, nil
}

// upsertCurrentPrice fully overwrites the price row; the schema tracks the
// current price only. Percentages are stored verbatim from the extractor.
func (im *Importer) upsertCurrentPrice(ctx context.Context, productID string, p models.Product, updated time.Time) error {
	_, err := im.db.ExecContext(ctx,
		`INSERT INTO current_extended_prices (
			product_id,
			retail_comparable_price, discount_comparable_price, loyalty_comparable_price,
			retail_price, discount_price, loyalty_price,
			discount_percentage, loyalty_discount_percentage,
			unit, date_updated
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (product_id) DO UPDATE SET
			retail_comparable_price = $2,
			discount_comparable_price = $3,
			loyalty_comparable_price = $4,
			retail_price = $5,
			discount_price = $6,
			loyalty_price = $7,
			discount_percentage = $8,
			loyalty_discount_percentage = $9,
			unit = $10,
			date_updated = $11`,
		productID,
		p.RetailPrice.UnitPrice, facetUnitPrice(p.DiscountPrice), facetUnitPrice(p.LoyaltyPrice),
		p.RetailPrice.Amount, facetAmount(p.DiscountPrice), facetAmount(p.LoyaltyPrice),
		facetDiscount(p.DiscountPrice), facetDiscount(p.LoyaltyPrice),
		nullString(p.Unit), updated,
	)
	if err != nil {
		return fmt.Errorf("upsert price for %q: %w", p.Title, err)
	}
	return nil
}

func facetAmount(f *models.PriceFacet) *float64 {
	if f == nil {
		return nil
	}
	return f.Amount
}

func facetUnitPrice(f *models.PriceFacet) *float64 {
	if f == nil {
		return nil
	}
	return f.UnitPrice
}

func facetDiscount(f *models.PriceFacet) *float64 {
	if f == nil {
		return nil
	}
	return f.Discount
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func sortedCategories(m map[string][]models.Product) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
