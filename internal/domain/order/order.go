package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/wildcart/storefront/internal/domain/payment"
)

// Sentinel errors shared by order operations.
var (
	// ErrNotFound is returned when a requested order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrForbidden is returned when the caller does not own the resource
	// referenced by the operation.
	ErrForbidden = errors.New("does not belong to the user")
	// ErrEmptyCart is returned when an order is placed against an empty cart.
	ErrEmptyCart = errors.New("cannot place order with empty cart")
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusShipped   Status = "SHIPPED"
	StatusDelivered Status = "DELIVERED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// transitions is the allowed edge set of the order state machine.
// DELIVERED and FAILED are terminal; CANCELLED is terminal but the order
// remains eligible for deletion.
var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusFailed, StatusCancelled},
	StatusConfirmed: {StatusShipped, StatusCancelled},
	StatusShipped:   {StatusDelivered},
}

// ParseStatus converts a string into a Status, rejecting unknown values.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusConfirmed, StatusShipped, StatusDelivered, StatusFailed, StatusCancelled:
		return st, nil
	default:
		return "", errors.Errorf("unknown order status %q", s)
	}
}

// CanTransition reports whether the state machine allows moving from s to next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// InvalidTransitionError indicates an operation that the order's current
// status does not permit. Op is set when the operation is not itself a status
// change (e.g. deletion).
type InvalidTransitionError struct {
	From Status
	To   Status
	Op   string
}

func (e *InvalidTransitionError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("cannot %s order in status %s", e.Op, e.From)
	}
	return fmt.Sprintf("transition %s -> %s is not allowed", e.From, e.To)
}

// Order is the aggregate root for a placed order. It owns its Items and the
// linked Payment outright: they are created and deleted together.
type Order struct {
	ID             string
	OwnerEmail     string
	Status         Status
	TotalAmount    decimal.Decimal
	OrderDate      time.Time
	ShippedDate    *time.Time
	TrackingNumber string
	Carrier        string
	AddressID      string
	Items          []Item
	Payment        payment.Payment
}

// Item is a single order line. The unit price is a snapshot of the product
// price at order time and is never re-read from the catalog afterwards.
type Item struct {
	ID          string
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
}

// Total returns the line total (unit price times quantity).
func (i Item) Total() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// OwnedBy reports whether the order belongs to the given caller.
func (o *Order) OwnedBy(email string) bool {
	return o.OwnerEmail == email
}

// TransitionTo moves the order to the next status, or fails with an
// InvalidTransitionError without mutating the order.
func (o *Order) TransitionTo(next Status) error {
	if !o.Status.CanTransition(next) {
		return &InvalidTransitionError{From: o.Status, To: next}
	}
	o.Status = next
	return nil
}

// Deletable reports whether the order is in a state that permits deletion.
// Only PENDING and CANCELLED orders may be deleted; deletion restores the
// reserved stock of every item.
func (o *Order) Deletable() bool {
	return o.Status == StatusPending || o.Status == StatusCancelled
}

// Pagination bounds for order listings.
const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Page describes pagination and sorting for order listings.
type Page struct {
	Number int
	Size   int
	SortBy string
	Desc   bool
}

// Normalize clamps the page to valid bounds: a non-positive or missing size
// falls back to the default, oversized pages are capped, and negative page
// numbers become zero.
func (p Page) Normalize() Page {
	if p.Size <= 0 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	if p.Number < 0 {
		p.Number = 0
	}
	return p
}

// Repository defines persistence operations for order aggregates.
//
// Create persists the order together with its items and payment shell and
// reserves stock for every item in the same transaction; it fails with
// product.InsufficientStockError when any reservation cannot be satisfied,
// leaving nothing persisted.
//
// Update loads the order under a per-order lock, applies mutate, and persists
// the result. Concurrent updates of the same order never interleave. Errors
// returned by mutate abort the update unchanged.
//
// Delete removes the order and restores the reserved stock of every item in
// one transaction. It fails with InvalidTransitionError unless the order is
// deletable at the time of deletion.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	List(ctx context.Context, ownerEmail string, p Page) ([]Order, int64, error)
	Update(ctx context.Context, id string, mutate func(*Order) error) (*Order, error)
	Delete(ctx context.Context, id string) error
}
