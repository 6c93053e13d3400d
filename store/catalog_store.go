package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"storepulse/api/models"
)

// CatalogStore reads products from the storefront catalog database.
type CatalogStore struct {
	db *sql.DB
}

func NewCatalogStore(db *sql.DB) *CatalogStore {
	return &CatalogStore{db: db}
}

func (s *CatalogStore) Products(ctx context.Context, storeID string) ([]models.Product, error) {
	query := `
		SELECT id, name, price, sales, views
		FROM products
		WHERE store_id = $1
		ORDER BY id;
	`
	rows, err := s.db.QueryContext(ctx, query, storeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query products for store %s: %w", storeID, err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Sales, &p.Views); err != nil {
			return nil, fmt.Errorf("failed to scan product row: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating product rows: %w", err)
	}
	return products, nil
}

// StaticCatalog serves a fixed product list per store. A "*" entry applies
// to stores without their own list. Used for demos and when no catalog
// database is configured.
type StaticCatalog struct {
	mu       sync.RWMutex
	products map[string][]models.Product
}

func NewStaticCatalog() *StaticCatalog {
	return &StaticCatalog{products: make(map[string][]models.Product)}
}

func (c *StaticCatalog) Set(storeID string, products []models.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[storeID] = append([]models.Product(nil), products...)
}

func (c *StaticCatalog) Products(_ context.Context, storeID string) ([]models.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	products, ok := c.products[storeID]
	if !ok {
		products = c.products["*"]
	}
	return append([]models.Product(nil), products...), nil
}

// DemoProducts is the catalog used by the demo store.
func DemoProducts() []models.Product {
	return []models.Product{
		{ID: "sku-widget", Name: "Widget", Price: 9.99, Sales: 120, Views: 2400},
		{ID: "sku-gadget", Name: "Gadget", Price: 24.50, Sales: 45, Views: 1300},
		{ID: "sku-gizmo", Name: "Gizmo", Price: 4.25, Sales: 310, Views: 5100},
	}
}
