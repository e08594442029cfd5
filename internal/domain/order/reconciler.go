package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/wildcart/storefront/internal/domain/payment"
)

// Reconciler advances order status from asynchronous gateway webhook events.
//
// Events may be delivered more than once and out of order. Replaying an event
// whose target status the order already holds is a no-op; an event whose
// transition the state machine rejects (e.g. a late "failed" after the order
// shipped) is logged and ignored rather than reverting progress. Once the
// signature verifies, every event is acknowledged so the gateway stops
// retrying.
type Reconciler struct {
	orders   Repository
	verifier payment.Verifier
}

// NewReconciler creates a Reconciler over the given order store and verifier.
func NewReconciler(orders Repository, verifier payment.Verifier) *Reconciler {
	return &Reconciler{orders: orders, verifier: verifier}
}

// statusForEvent maps actionable event kinds to their target order status.
func statusForEvent(kind payment.EventKind) (Status, bool) {
	switch kind {
	case payment.EventSucceeded:
		return StatusConfirmed, true
	case payment.EventFailed:
		return StatusFailed, true
	case payment.EventCanceled:
		return StatusCancelled, true
	default:
		return "", false
	}
}

// HandleEvent verifies the raw payload's signature and applies the resulting
// status transition. It returns payment.ErrInvalidSignature before touching
// any order when verification fails; every other outcome is an acknowledged
// success, including events without an order id and events for unknown
// orders.
func (r *Reconciler) HandleEvent(ctx context.Context, payload []byte, sigHeader string) error {
	ev, err := r.verifier.Verify(payload, sigHeader)
	if err != nil {
		return errors.Wrap(payment.ErrInvalidSignature, err.Error())
	}

	lg := zctx.From(ctx)

	target, actionable := statusForEvent(ev.Kind)
	if !actionable {
		lg.Debug("Ignoring webhook event kind", zap.String("kind", string(ev.Kind)))
		return nil
	}
	if ev.OrderID == "" {
		lg.Warn("Webhook event without order id", zap.String("kind", string(ev.Kind)))
		return nil
	}

	_, err = r.orders.Update(ctx, ev.OrderID, func(o *Order) error {
		// The transition is a status overwrite, never an increment, so
		// replays converge on the same final state.
		if o.Status == target {
			return nil
		}
		if !o.Status.CanTransition(target) {
			lg.Warn("Webhook transition rejected by state machine",
				zap.String("order_id", o.ID),
				zap.String("from", string(o.Status)),
				zap.String("to", string(target)))
			return nil
		}
		o.Status = target

		// Mirror the gateway's view of the payment. The webhook can arrive
		// before the synchronous gateway response was recorded, in which
		// case the external id is filled in here.
		if ev.ExternalID != "" {
			o.Payment.ExternalPaymentID = ev.ExternalID
		}
		if ev.ExternalStatus != "" {
			o.Payment.ExternalStatus = ev.ExternalStatus
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			lg.Warn("Webhook event for unknown order", zap.String("order_id", ev.OrderID))
			return nil
		}
		return errors.Wrapf(err, "reconcile order %s", ev.OrderID)
	}

	lg.Info("Order reconciled from webhook",
		zap.String("order_id", ev.OrderID),
		zap.String("kind", string(ev.Kind)))
	return nil
}
