package cart

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when the caller has no cart.
var ErrNotFound = errors.New("cart not found")

// Line is one cart position. Prices are not stored on the cart; checkout
// snapshots the current catalog price per line.
type Line struct {
	ProductID string
	Quantity  int
}

// Reader exposes the cart operations the order engine needs: an immutable
// snapshot of the caller's cart at checkout time, and clearing it once the
// order and payment request both succeeded.
type Reader interface {
	Lines(ctx context.Context, ownerEmail string) ([]Line, error)
	Clear(ctx context.Context, ownerEmail string) error
}
