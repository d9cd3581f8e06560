package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fjod/go_cart/market/internal/domain"
)

const productColumns = `id, market_id, title, stock, normal_price, discounted_price, expiration_date, city, district, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	p := &domain.Product{}
	err := row.Scan(
		&p.ID,
		&p.MarketID,
		&p.Title,
		&p.Stock,
		&p.NormalPrice,
		&p.DiscountedPrice,
		&p.ExpirationDate,
		&p.City,
		&p.District,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (q *queries) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	p, err := scanProduct(q.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query product by id: %w", err)
	}
	return p, nil
}

// GetProductsByIDs returns the products that still exist, ordered by id.
// Missing ids are skipped silently.
func (q *queries) GetProductsByIDs(ctx context.Context, ids []int64) ([]domain.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := `SELECT ` + productColumns + ` FROM products WHERE id IN (` +
		strings.Join(placeholders, ", ") + `) ORDER BY id`

	return q.queryProducts(ctx, query, args...)
}

// ProductFilter narrows a catalog listing. Zero fields do not filter.
type ProductFilter struct {
	City    string
	Keyword string
	// AvailableOn hides products whose expiration date lies before this day.
	AvailableOn time.Time
	Limit       int
	Offset      int
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ListProducts returns the matching products, soonest expiry first. The
// keyword matches anywhere in the title, case-insensitively.
func (q *queries) ListProducts(ctx context.Context, f ProductFilter) ([]domain.Product, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.City != "" {
		where = append(where, "city = "+arg(f.City))
	}
	if kw := strings.TrimSpace(f.Keyword); kw != "" {
		pattern := "%" + likeEscaper.Replace(strings.ToLower(kw)) + "%"
		where = append(where, "LOWER(title) LIKE "+arg(pattern)+` ESCAPE '\'`)
	}
	if !f.AvailableOn.IsZero() {
		where = append(where, "expiration_date >= "+arg(f.AvailableOn.UTC().Format(time.DateOnly)))
	}

	query := `SELECT ` + productColumns + ` FROM products`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY expiration_date, id`
	if f.Limit > 0 {
		query += ` LIMIT ` + arg(f.Limit) + ` OFFSET ` + arg(max(f.Offset, 0))
	}

	return q.queryProducts(ctx, query, args...)
}

func (q *queries) queryProducts(ctx context.Context, query string, args ...any) ([]domain.Product, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return products, nil
}

func (q *queries) CreateProduct(ctx context.Context, p *domain.Product) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO products (market_id, title, stock, normal_price, discounted_price, expiration_date, city, district, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	          RETURNING id`

	err := q.db.QueryRowContext(ctx, query,
		p.MarketID,
		p.Title,
		p.Stock,
		p.NormalPrice,
		p.DiscountedPrice,
		p.ExpirationDate.UTC(),
		p.City,
		p.District,
		p.CreatedAt.UTC(),
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (q *queries) DecrementStock(ctx context.Context, productID int64, quantity int) (int, error) {
	query := `UPDATE products SET stock = stock - $1
	          WHERE id = $2 AND stock >= $3
	          RETURNING stock`

	var remaining int
	err := q.db.QueryRowContext(ctx, query, quantity, productID, quantity).Scan(&remaining)
	if errors.Is(err, sql.ErrNoRows) {
		if _, errGet := q.GetProduct(ctx, productID); errors.Is(errGet, ErrProductNotFound) {
			return 0, ErrProductNotFound
		}
		return 0, ErrInsufficientStock
	}
	if err != nil {
		return 0, fmt.Errorf("decrement stock: %w", err)
	}
	return remaining, nil
}

func (q *queries) DeleteProduct(ctx context.Context, productID int64) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM cart_lines WHERE product_id = $1`, productID); err != nil {
		return fmt.Errorf("delete cart lines of product: %w", err)
	}

	result, err := q.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if affected == 0 {
		return ErrProductNotFound
	}
	return nil
}
