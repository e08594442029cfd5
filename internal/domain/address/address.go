package address

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a requested address does not exist.
var ErrNotFound = errors.New("address not found")

// Address is a shipping address owned by a single user.
type Address struct {
	ID         string
	OwnerEmail string
	Street     string
	City       string
	State      string
	Country    string
	PostalCode string
}

// Repository defines read operations for addresses. Address CRUD itself is
// owned by the catalog side of the system; the order engine only resolves
// and ownership-checks them.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Address, error)
}
