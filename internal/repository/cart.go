package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wildcart/storefront/internal/domain/cart"
)

const (
	getCartLinesSQL = `SELECT product_id, quantity FROM cart_items WHERE owner_email = $1 ORDER BY product_id`
	clearCartSQL    = `DELETE FROM cart_items WHERE owner_email = $1`
)

var _ cart.Reader = (*CartRepository)(nil)

// CartRepository implements cart.Reader backed by PostgreSQL.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// Lines returns the owner's cart lines as an immutable snapshot.
func (r *CartRepository) Lines(ctx context.Context, ownerEmail string) ([]cart.Line, error) {
	rows, err := r.pool.Query(ctx, getCartLinesSQL, ownerEmail)
	if err != nil {
		return nil, errors.Wrapf(err, "read cart of %s", ownerEmail)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (cart.Line, error) {
		var l cart.Line
		err := row.Scan(&l.ProductID, &l.Quantity)
		return l, err
	})
}

// Clear removes every line from the owner's cart.
func (r *CartRepository) Clear(ctx context.Context, ownerEmail string) error {
	if _, err := r.pool.Exec(ctx, clearCartSQL, ownerEmail); err != nil {
		return errors.Wrapf(err, "clear cart of %s", ownerEmail)
	}
	return nil
}
