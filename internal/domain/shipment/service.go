// Package shipment advances confirmed orders through SHIPPED and DELIVERED
// and exposes tracking projections.
package shipment

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/wildcart/storefront/internal/domain/order"
)

// Info is the result of a shipment transition.
type Info struct {
	OrderID        string
	Status         order.Status
	Carrier        string
	TrackingNumber string
	ShippedDate    *time.Time
}

// TrackingInfo is the read-only tracking projection for an order. Unset
// tracking fields hold "N/A" rather than being empty.
type TrackingInfo struct {
	OrderID        string
	Status         order.Status
	TrackingNumber string
	Carrier        string
	OrderDate      time.Time
	ShippedDate    *time.Time
	Message        string
}

// Service drives shipment progression for orders.
type Service struct {
	orders order.Repository
	now    func() time.Time
}

// NewService creates a shipment Service over the given order store.
func NewService(orders order.Repository) *Service {
	return &Service{orders: orders, now: time.Now}
}

// Ship moves a CONFIRMED order owned by the caller to SHIPPED, recording the
// carrier, the shipped date, and a tracking number. When no tracking number
// is supplied one is generated; the generated code is unique with high
// probability but not guaranteed globally unique.
func (s *Service) Ship(ctx context.Context, orderID, carrier, trackingNumber, callerEmail string) (*Info, error) {
	if trackingNumber == "" {
		trackingNumber = generateTrackingNumber(s.now())
	}

	o, err := s.orders.Update(ctx, orderID, func(o *order.Order) error {
		if !o.OwnedBy(callerEmail) {
			return errors.Wrap(order.ErrForbidden, "order")
		}
		if err := o.TransitionTo(order.StatusShipped); err != nil {
			return err
		}
		shipped := s.now()
		o.ShippedDate = &shipped
		o.Carrier = carrier
		o.TrackingNumber = trackingNumber
		return nil
	})
	if err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Order shipped",
		zap.String("order_id", orderID),
		zap.String("carrier", carrier),
		zap.String("tracking_number", trackingNumber))

	return infoFrom(o), nil
}

// MarkDelivered moves a SHIPPED order owned by the caller to DELIVERED.
func (s *Service) MarkDelivered(ctx context.Context, orderID, callerEmail string) (*Info, error) {
	o, err := s.orders.Update(ctx, orderID, func(o *order.Order) error {
		if !o.OwnedBy(callerEmail) {
			return errors.Wrap(order.ErrForbidden, "order")
		}
		return o.TransitionTo(order.StatusDelivered)
	})
	if err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Order delivered", zap.String("order_id", orderID))
	return infoFrom(o), nil
}

// Tracking returns the tracking projection for an order owned by the caller.
func (s *Service) Tracking(ctx context.Context, orderID, callerEmail string) (*TrackingInfo, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %s", orderID)
	}
	if !o.OwnedBy(callerEmail) {
		return nil, errors.Wrap(order.ErrForbidden, "order")
	}

	return &TrackingInfo{
		OrderID:        o.ID,
		Status:         o.Status,
		TrackingNumber: orNA(o.TrackingNumber),
		Carrier:        orNA(o.Carrier),
		OrderDate:      o.OrderDate,
		ShippedDate:    o.ShippedDate,
		Message:        statusMessage(o.Status),
	}, nil
}

func infoFrom(o *order.Order) *Info {
	return &Info{
		OrderID:        o.ID,
		Status:         o.Status,
		Carrier:        o.Carrier,
		TrackingNumber: o.TrackingNumber,
		ShippedDate:    o.ShippedDate,
	}
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// generateTrackingNumber builds a carrier-agnostic code from a time-derived
// prefix and a random suffix.
func generateTrackingNumber(now time.Time) string {
	return fmt.Sprintf("TRK%d%06d", now.UnixMilli()%10000000, rand.IntN(1000000))
}

// statusMessage returns the human-readable tracking message for a status.
func statusMessage(s order.Status) string {
	switch s {
	case order.StatusPending:
		return "Order is pending payment confirmation"
	case order.StatusConfirmed:
		return "Order confirmed, preparing for shipment"
	case order.StatusShipped:
		return "Order has been shipped and is on the way"
	case order.StatusDelivered:
		return "Order has been delivered"
	case order.StatusFailed:
		return "Payment failed, order cannot be processed"
	case order.StatusCancelled:
		return "Order has been cancelled"
	default:
		return "Unknown order status"
	}
}
