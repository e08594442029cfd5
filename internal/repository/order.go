package repository

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wildcart/storefront/internal/domain/order"
	"github.com/wildcart/storefront/internal/domain/payment"
	"github.com/wildcart/storefront/internal/domain/product"
)

const (
	reserveStockSQL = `UPDATE products SET stock = stock - $2 WHERE id = $1 AND stock >= $2`

	insertOrderSQL = `INSERT INTO orders (id, owner_email, status, total_amount, order_date, shipped_date, tracking_number, carrier, address_id)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), $9)`

	insertOrderItemSQL = `INSERT INTO order_items (id, order_id, product_id, product_name, quantity, unit_price)
		VALUES ($1, $2, $3, $4, $5, $6)`

	insertPaymentSQL = `INSERT INTO payments (id, order_id, payment_method, external_payment_id, external_status)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''))`

	orderColumns = `id, owner_email, status, total_amount, order_date, shipped_date,
		COALESCE(tracking_number, ''), COALESCE(carrier, ''), address_id`

	getOrderSQL       = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	lockOrderSQL      = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`
	lockOrderStateSQL = `SELECT status FROM orders WHERE id = $1 FOR UPDATE`

	getOrderItemsSQL = `SELECT id, product_id, product_name, quantity, unit_price
		FROM order_items WHERE order_id = $1 ORDER BY id`

	getPaymentSQL = `SELECT id, order_id, payment_method, COALESCE(external_payment_id, ''), COALESCE(external_status, '')
		FROM payments WHERE order_id = $1`

	updateOrderSQL = `UPDATE orders SET status = $2, shipped_date = $3, tracking_number = NULLIF($4, ''),
		carrier = NULLIF($5, ''), address_id = $6 WHERE id = $1`

	updatePaymentSQL = `UPDATE payments SET external_payment_id = NULLIF($2, ''), external_status = NULLIF($3, '')
		WHERE order_id = $1`

	deleteOrderSQL = `DELETE FROM orders WHERE id = $1`

	restockItemsSQL = `UPDATE products p SET stock = p.stock + i.quantity
		FROM order_items i WHERE i.order_id = $1 AND i.product_id = p.id`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. Stock
// reservation and restoration run inside the order transactions, so checkout
// and deletion are all-or-nothing.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists the order with its items and payment and decrements stock
// for every item in one transaction. The decrement is conditional on
// sufficient stock; when it matches no row the whole transaction rolls back
// with a product.InsufficientStockError.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	for _, item := range o.Items {
		tag, err := tx.Exec(ctx, reserveStockSQL, item.ProductID, item.Quantity)
		if err != nil {
			return errors.Wrapf(err, "reserve stock for product %s", item.ProductID)
		}
		if tag.RowsAffected() == 0 {
			return &product.InsufficientStockError{ProductID: item.ProductID, Name: item.ProductName}
		}
	}

	_, err = tx.Exec(ctx, insertOrderSQL,
		o.ID, o.OwnerEmail, string(o.Status), o.TotalAmount, o.OrderDate,
		o.ShippedDate, o.TrackingNumber, o.Carrier, o.AddressID,
	)
	if err != nil {
		return errors.Wrapf(err, "insert order %s", o.ID)
	}

	for _, item := range o.Items {
		_, err = tx.Exec(ctx, insertOrderItemSQL,
			item.ID, o.ID, item.ProductID, item.ProductName, item.Quantity, item.UnitPrice,
		)
		if err != nil {
			return errors.Wrapf(err, "insert order item %s", item.ID)
		}
	}

	_, err = tx.Exec(ctx, insertPaymentSQL,
		o.Payment.ID, o.ID, string(o.Payment.Method),
		o.Payment.ExternalPaymentID, o.Payment.ExternalStatus,
	)
	if err != nil {
		return errors.Wrapf(err, "insert payment %s", o.Payment.ID)
	}

	return errors.Wrap(tx.Commit(ctx), "commit")
}

// GetByID returns a single order with its items and payment.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	return r.fetch(ctx, r.pool, getOrderSQL, id)
}

// List returns a page of the owner's orders (without their items) and the
// total order count for that owner.
func (r *OrderRepository) List(ctx context.Context, ownerEmail string, p order.Page) ([]order.Order, int64, error) {
	p = p.Normalize()
	query, args, err := sq.Select(
		"id", "owner_email", "status", "total_amount", "order_date", "shipped_date",
		"COALESCE(tracking_number, '')", "COALESCE(carrier, '')", "address_id",
	).
		From("orders").
		Where(sq.Eq{"owner_email": ownerEmail}).
		OrderBy(sortClause(p)).
		Limit(uint64(p.Size)).
		Offset(uint64(p.Number * p.Size)).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, 0, errors.Wrap(err, "build list query")
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "list orders")
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, 0, errors.Wrap(err, "scan orders")
	}

	var total int64
	err = r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders WHERE owner_email = $1`, ownerEmail).Scan(&total)
	if err != nil {
		return nil, 0, errors.Wrap(err, "count orders")
	}

	return orders, total, nil
}

// sortColumns whitelists the columns a listing may be sorted by.
var sortColumns = map[string]string{
	"id":          "id",
	"orderDate":   "order_date",
	"totalAmount": "total_amount",
	"status":      "status",
}

func sortClause(p order.Page) string {
	col, ok := sortColumns[p.SortBy]
	if !ok {
		col = "id"
	}
	if p.Desc {
		return col + " DESC"
	}
	return col + " ASC"
}

// Update loads the order under a row lock, applies mutate, and writes back
// the mutable columns. Concurrent transitions on the same order serialize on
// the lock.
func (r *OrderRepository) Update(ctx context.Context, id string, mutate func(*order.Order) error) (*order.Order, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "begin")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	o, err := r.fetch(ctx, tx, lockOrderSQL, id)
	if err != nil {
		return nil, err
	}

	if err := mutate(o); err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, updateOrderSQL,
		o.ID, string(o.Status), o.ShippedDate, o.TrackingNumber, o.Carrier, o.AddressID,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "update order %s", id)
	}

	_, err = tx.Exec(ctx, updatePaymentSQL, o.ID, o.Payment.ExternalPaymentID, o.Payment.ExternalStatus)
	if err != nil {
		return nil, errors.Wrapf(err, "update payment for order %s", id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit")
	}
	return o, nil
}

// Delete restores the stock of every item and removes the order (items and
// payment cascade) in one transaction. Deletability is re-checked under the
// row lock.
func (r *OrderRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var rawStatus string
	if err := tx.QueryRow(ctx, lockOrderStateSQL, id).Scan(&rawStatus); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return order.ErrNotFound
		}
		return errors.Wrapf(err, "lock order %s", id)
	}
	status := order.Status(rawStatus)
	if status != order.StatusPending && status != order.StatusCancelled {
		return &order.InvalidTransitionError{From: status, Op: "delete"}
	}

	if _, err := tx.Exec(ctx, restockItemsSQL, id); err != nil {
		return errors.Wrapf(err, "restock items of order %s", id)
	}
	if _, err := tx.Exec(ctx, deleteOrderSQL, id); err != nil {
		return errors.Wrapf(err, "delete order %s", id)
	}

	return errors.Wrap(tx.Commit(ctx), "commit")
}

// querier is satisfied by both pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *OrderRepository) fetch(ctx context.Context, q querier, orderQuery, id string) (*order.Order, error) {
	rows, err := q.Query(ctx, orderQuery, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %s", id)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get order %s", id)
	}

	itemRows, err := q.Query(ctx, getOrderItemsSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get items of order %s", id)
	}
	o.Items, err = pgx.CollectRows(itemRows, scanOrderItem)
	if err != nil {
		return nil, errors.Wrapf(err, "scan items of order %s", id)
	}

	payRows, err := q.Query(ctx, getPaymentSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get payment of order %s", id)
	}
	o.Payment, err = pgx.CollectExactlyOneRow(payRows, scanPayment)
	if err != nil {
		return nil, errors.Wrapf(err, "scan payment of order %s", id)
	}

	return &o, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		status string
	)
	err := row.Scan(
		&o.ID, &o.OwnerEmail, &status, &o.TotalAmount, &o.OrderDate,
		&o.ShippedDate, &o.TrackingNumber, &o.Carrier, &o.AddressID,
	)
	o.Status = order.Status(status)
	return o, err
}

func scanOrderItem(row pgx.CollectableRow) (order.Item, error) {
	var i order.Item
	err := row.Scan(&i.ID, &i.ProductID, &i.ProductName, &i.Quantity, &i.UnitPrice)
	return i, err
}

func scanPayment(row pgx.CollectableRow) (payment.Payment, error) {
	var (
		p      payment.Payment
		method string
	)
	err := row.Scan(&p.ID, &p.OrderID, &method, &p.ExternalPaymentID, &p.ExternalStatus)
	p.Method = payment.Method(method)
	return p, err
}
