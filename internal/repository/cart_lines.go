package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_cart/market/internal/domain"
)

const lineColumns = `id, consumer_id, product_id, quantity, added_at`

func scanLine(row rowScanner) (*domain.CartLine, error) {
	l := &domain.CartLine{}
	if err := row.Scan(&l.ID, &l.ConsumerID, &l.ProductID, &l.Quantity, &l.AddedAt); err != nil {
		return nil, err
	}
	return l, nil
}

func (q *queries) GetLines(ctx context.Context, consumerID int64) ([]domain.CartLine, error) {
	return q.getLines(ctx, consumerID, "")
}

// GetLinesForUpdate row-locks the consumer's lines on Postgres. SQLite
// already serializes writers, so the plain read is enough there.
func (q *queries) GetLinesForUpdate(ctx context.Context, consumerID int64) ([]domain.CartLine, error) {
	if q.dialect == DialectPostgres {
		return q.getLines(ctx, consumerID, " FOR UPDATE")
	}
	return q.getLines(ctx, consumerID, "")
}

func (q *queries) getLines(ctx context.Context, consumerID int64, lock string) ([]domain.CartLine, error) {
	query := `SELECT ` + lineColumns + ` FROM cart_lines
	          WHERE consumer_id = $1
	          ORDER BY added_at DESC, id DESC` + lock

	rows, err := q.db.QueryContext(ctx, query, consumerID)
	if err != nil {
		return nil, fmt.Errorf("query cart lines: %w", err)
	}
	defer rows.Close()

	var lines []domain.CartLine
	for rows.Next() {
		l, err := scanLine(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		lines = append(lines, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return lines, nil
}

// FindLine resolves key by line id first, then by product id. Both lookups
// only see lines owned by consumerID.
func (q *queries) FindLine(ctx context.Context, consumerID int64, key domain.LineKey) (*domain.CartLine, error) {
	if key.LineID > 0 {
		query := `SELECT ` + lineColumns + ` FROM cart_lines WHERE id = $1 AND consumer_id = $2`
		l, err := scanLine(q.db.QueryRowContext(ctx, query, key.LineID, consumerID))
		if err == nil {
			return l, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("query cart line by id: %w", err)
		}
	}

	if key.ProductID > 0 {
		query := `SELECT ` + lineColumns + ` FROM cart_lines WHERE consumer_id = $1 AND product_id = $2`
		l, err := scanLine(q.db.QueryRowContext(ctx, query, consumerID, key.ProductID))
		if err == nil {
			return l, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("query cart line by product: %w", err)
		}
	}

	return nil, ErrLineNotFound
}

func (q *queries) UpsertLine(ctx context.Context, line domain.CartLine, maxQuantity int) (*domain.CartLine, error) {
	if line.Quantity <= 0 {
		return nil, fmt.Errorf("upsert cart line: non-positive quantity %d", line.Quantity)
	}
	if line.Quantity > maxQuantity {
		return nil, ErrInsufficientStock
	}
	if line.AddedAt.IsZero() {
		line.AddedAt = time.Now()
	}

	// the WHERE on DO UPDATE turns an over-ceiling increment into "no row"
	query := `INSERT INTO cart_lines (consumer_id, product_id, quantity, added_at)
	          VALUES ($1, $2, $3, $4)
	          ON CONFLICT (consumer_id, product_id) DO UPDATE
	          SET quantity = cart_lines.quantity + excluded.quantity,
	              added_at = excluded.added_at
	          WHERE cart_lines.quantity + excluded.quantity <= $5
	          RETURNING ` + lineColumns

	l, err := scanLine(q.db.QueryRowContext(ctx, query,
		line.ConsumerID,
		line.ProductID,
		line.Quantity,
		line.AddedAt.UTC(),
		maxQuantity))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInsufficientStock
	}
	if err != nil {
		return nil, fmt.Errorf("upsert cart line: %w", err)
	}
	return l, nil
}

func (q *queries) SetQuantity(ctx context.Context, consumerID, lineID int64, quantity int, at time.Time) error {
	query := `UPDATE cart_lines SET quantity = $1, added_at = $2
	          WHERE id = $3 AND consumer_id = $4`

	result, err := q.db.ExecContext(ctx, query, quantity, at.UTC(), lineID, consumerID)
	if err != nil {
		return fmt.Errorf("failed to update line quantity: %w", err)
	}
	return requireAffected(result, "update line quantity")
}

func (q *queries) RemoveLine(ctx context.Context, consumerID, lineID int64) error {
	result, err := q.db.ExecContext(ctx,
		`DELETE FROM cart_lines WHERE id = $1 AND consumer_id = $2`, lineID, consumerID)
	if err != nil {
		return fmt.Errorf("failed to remove line: %w", err)
	}
	return requireAffected(result, "remove line")
}

func (q *queries) RemoveLineByProduct(ctx context.Context, consumerID, productID int64) error {
	result, err := q.db.ExecContext(ctx,
		`DELETE FROM cart_lines WHERE consumer_id = $1 AND product_id = $2`, consumerID, productID)
	if err != nil {
		return fmt.Errorf("failed to remove line by product: %w", err)
	}
	return requireAffected(result, "remove line by product")
}

func requireAffected(result sql.Result, op string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		return ErrLineNotFound
	}
	return nil
}
