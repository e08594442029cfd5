package product

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// InsufficientStockError indicates that a product's available stock cannot
// cover the requested quantity. The whole checkout aborts when any line
// fails the stock check.
type InsufficientStockError struct {
	ProductID string
	Name      string
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("not enough stock for product %q", e.Name)
}

// Product is a catalog item. Stock is the inventory ledger counter: it is
// never decremented below zero, and every checkout decrement has a matching
// increment when a non-delivered order is deleted.
type Product struct {
	ID    string
	Name  string
	Price decimal.Decimal
	Stock int
}

// Repository defines read operations on the product catalog. The conditional
// stock decrement/increment primitives run inside the order repository's
// transactions and are not exposed here.
type Repository interface {
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
