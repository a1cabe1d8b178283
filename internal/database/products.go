package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/kosarica/feed-service/internal/types"
)

const productInsertColumns = 8

// DeleteProducts removes every product of a feed.
func DeleteProducts(ctx context.Context, q Querier, tenantID, feedID string) (int64, error) {
	tag, err := q.Exec(ctx, `DELETE FROM products WHERE tenant_id = $1 AND feed_id = $2`, tenantID, feedID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete products: %w", err)
	}
	return tag.RowsAffected(), nil
}

// InsertProducts writes products with one multi-row INSERT. Callers bound
// the slice length to keep the statement size in check.
func InsertProducts(ctx context.Context, q Querier, tenantID, feedID string, products []types.Product) (int64, error) {
	if len(products) == 0 {
		return 0, nil
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO products (tenant_id, feed_id, sku, gtin, title, description, url, price) VALUES ")
	args := make([]any, 0, len(products)*productInsertColumns)
	for i, p := range products {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for c := 0; c < productInsertColumns; c++ {
			if c > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", i*productInsertColumns+c+1)
		}
		sb.WriteByte(')')
		args = append(args, tenantID, feedID, p.SKU, p.GTIN, p.Title, p.Description, p.URL, p.Price)
	}

	tag, err := q.Exec(ctx, sb.String(), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert %d products: %w", len(products), err)
	}
	return tag.RowsAffected(), nil
}

// ListProducts pages through a feed's products ordered by sku.
func (r *Repository) ListProducts(ctx context.Context, tenantID, feedID string, limit, offset int) ([]types.Product, error) {
	rows, err := r.db.Query(ctx, `
		SELECT sku, gtin, title, description, url, price::float8
		FROM products
		WHERE tenant_id = $1 AND feed_id = $2
		ORDER BY sku
		LIMIT $3 OFFSET $4
	`, tenantID, feedID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var products []types.Product
	for rows.Next() {
		var p types.Product
		if err := rows.Scan(&p.SKU, &p.GTIN, &p.Title, &p.Description, &p.URL, &p.Price); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// CountProducts returns the number of products stored for a feed.
func (r *Repository) CountProducts(ctx context.Context, tenantID, feedID string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM products WHERE tenant_id = $1 AND feed_id = $2
	`, tenantID, feedID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count products: %w", err)
	}
	return n, nil
}
