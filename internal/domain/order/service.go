package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/wildcart/storefront/internal/domain/address"
	"github.com/wildcart/storefront/internal/domain/cart"
	"github.com/wildcart/storefront/internal/domain/payment"
	"github.com/wildcart/storefront/internal/domain/product"
)

// PlaceOrderRequest holds the input for placing an order. CallerEmail is the
// already-authenticated identity supplied by the surrounding auth layer; the
// engine never derives it itself.
type PlaceOrderRequest struct {
	AddressID     string
	PaymentMethod payment.Method
	CallerEmail   string
}

// UpdateOrderRequest is an explicit partial update: nil fields are left
// untouched. Status changes must satisfy the state machine; address changes
// are ownership-checked.
type UpdateOrderRequest struct {
	Status    *Status
	AddressID *string
}

// Service owns the order lifecycle: checkout, reads, partial updates, and
// deletion with stock restoration.
type Service struct {
	carts     cart.Reader
	addresses address.Repository
	products  product.Repository
	orders    Repository
	gateway   payment.Gateway
	currency  string
	now       func() time.Time
}

// NewService creates an order Service with the required collaborators.
func NewService(
	carts cart.Reader,
	addresses address.Repository,
	products product.Repository,
	orders Repository,
	gateway payment.Gateway,
	currency string,
) *Service {
	return &Service{
		carts:     carts,
		addresses: addresses,
		products:  products,
		orders:    orders,
		gateway:   gateway,
		currency:  currency,
		now:       time.Now,
	}
}

// PlaceOrder converts the caller's cart into a persisted PENDING order,
// reserves stock, requests a payment authorization from the gateway, and
// clears the cart.
//
// Stock is reserved and the order committed before the gateway call. When the
// gateway call fails the order stays PENDING with its stock reserved and the
// cart untouched; the failure surfaces as a payment.ProcessingError and
// reconciliation happens through the deletion flow or a later webhook.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*Order, error) {
	lines, err := s.carts.Lines(ctx, req.CallerEmail)
	if err != nil {
		return nil, errors.Wrap(err, "read cart")
	}
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	addr, err := s.addresses.GetByID(ctx, req.AddressID)
	if err != nil {
		return nil, errors.Wrapf(err, "get address %s", req.AddressID)
	}
	if addr.OwnerEmail != req.CallerEmail {
		return nil, errors.Wrap(ErrForbidden, "address")
	}

	ids := make([]string, len(lines))
	for i, line := range lines {
		ids[i] = line.ProductID
	}
	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	// Snapshot the cart: current unit prices are frozen onto the items and
	// the total is computed once, here.
	orderID := uuid.New().String()
	items := make([]Item, len(lines))
	total := decimal.Zero
	for i, line := range lines {
		p, ok := byID[line.ProductID]
		if !ok {
			return nil, errors.Wrapf(product.ErrNotFound, "product %s", line.ProductID)
		}
		if p.Stock < line.Quantity {
			return nil, &product.InsufficientStockError{ProductID: p.ID, Name: p.Name}
		}
		items[i] = Item{
			ID:          uuid.New().String(),
			ProductID:   p.ID,
			ProductName: p.Name,
			Quantity:    line.Quantity,
			UnitPrice:   p.Price,
		}
		total = total.Add(items[i].Total())
	}

	o := &Order{
		ID:          orderID,
		OwnerEmail:  req.CallerEmail,
		Status:      StatusPending,
		TotalAmount: total.Round(2),
		OrderDate:   s.now(),
		AddressID:   addr.ID,
		Items:       items,
		Payment: payment.Payment{
			ID:      uuid.New().String(),
			OrderID: orderID,
			Method:  req.PaymentMethod,
		},
	}

	// Persist the order and reserve stock atomically. The conditional
	// decrement inside re-checks availability, so a concurrent checkout
	// cannot oversell past the snapshot read above.
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	auth := payment.Authorization{
		Amount:      total.Round(2).Shift(2).IntPart(),
		Currency:    s.currency,
		Buyer:       payment.Buyer{Email: req.CallerEmail},
		Address:     *addr,
		Description: "Order " + orderID,
		Metadata:    map[string]string{"orderId": orderID},
	}
	res, err := s.gateway.CreateAuthorization(ctx, auth)
	if err != nil {
		zctx.From(ctx).Warn("Payment authorization failed, order left pending",
			zap.String("order_id", orderID), zap.Error(err))
		return nil, &payment.ProcessingError{Cause: err}
	}

	// Record the synchronous gateway view under the per-order lock. The
	// webhook for this intent can land before this write; whatever it
	// recorded is fresher than the synchronous response and must not be
	// overwritten.
	o, err = s.orders.Update(ctx, orderID, func(o *Order) error {
		if o.Payment.ExternalPaymentID == "" {
			o.Payment.ExternalPaymentID = res.ExternalID
		}
		if o.Payment.ExternalStatus == "" {
			o.Payment.ExternalStatus = res.Status
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "record external payment")
	}

	// The order itself succeeded at this point. A cart-clear failure must
	// not fail the call, or a retry would place the same order twice.
	if err := s.carts.Clear(ctx, req.CallerEmail); err != nil {
		zctx.From(ctx).Warn("Cart clear failed after successful checkout",
			zap.String("order_id", orderID), zap.Error(err))
	}

	zctx.From(ctx).Info("Order placed",
		zap.String("order_id", orderID),
		zap.String("owner", req.CallerEmail),
		zap.String("total", o.TotalAmount.String()))

	return o, nil
}

// GetOrder returns a single order with its items and payment. Only the owner
// may read it.
func (s *Service) GetOrder(ctx context.Context, id, callerEmail string) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %s", id)
	}
	if !o.OwnedBy(callerEmail) {
		return nil, errors.Wrap(ErrForbidden, "order")
	}
	return o, nil
}

// ListOrders returns a page of the caller's orders and the total count.
func (s *Service) ListOrders(ctx context.Context, callerEmail string, p Page) ([]Order, int64, error) {
	orders, total, err := s.orders.List(ctx, callerEmail, p.Normalize())
	if err != nil {
		return nil, 0, errors.Wrap(err, "list orders")
	}
	return orders, total, nil
}

// UpdateOrder applies an explicit partial update to the order under the
// per-order lock.
func (s *Service) UpdateOrder(ctx context.Context, id string, req UpdateOrderRequest, callerEmail string) (*Order, error) {
	return s.orders.Update(ctx, id, func(o *Order) error {
		if !o.OwnedBy(callerEmail) {
			return errors.Wrap(ErrForbidden, "order")
		}
		if req.Status != nil {
			if err := o.TransitionTo(*req.Status); err != nil {
				return err
			}
		}
		if req.AddressID != nil {
			addr, err := s.addresses.GetByID(ctx, *req.AddressID)
			if err != nil {
				return errors.Wrapf(err, "get address %s", *req.AddressID)
			}
			if addr.OwnerEmail != callerEmail {
				return errors.Wrap(ErrForbidden, "address")
			}
			o.AddressID = addr.ID
		}
		return nil
	})
}

// DeleteOrder removes a PENDING or CANCELLED order owned by the caller,
// restoring the stock reserved for every item. Deleting an order in any other
// state fails with an InvalidTransitionError.
func (s *Service) DeleteOrder(ctx context.Context, id, callerEmail string) error {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return errors.Wrapf(err, "get order %s", id)
	}
	if !o.OwnedBy(callerEmail) {
		return errors.Wrap(ErrForbidden, "order")
	}
	if !o.Deletable() {
		return &InvalidTransitionError{From: o.Status, Op: "delete"}
	}

	// The repository re-checks deletability under the row lock, so a
	// concurrent confirmation between the read above and the delete cannot
	// slip through.
	if err := s.orders.Delete(ctx, id); err != nil {
		return errors.Wrapf(err, "delete order %s", id)
	}

	zctx.From(ctx).Info("Order deleted, stock restored",
		zap.String("order_id", id), zap.String("owner", callerEmail))
	return nil
}
