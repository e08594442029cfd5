package api

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/wildcart/storefront/internal/domain/address"
	"github.com/wildcart/storefront/internal/domain/cart"
	"github.com/wildcart/storefront/internal/domain/order"
	"github.com/wildcart/storefront/internal/domain/payment"
	"github.com/wildcart/storefront/internal/domain/product"
)

// writeError maps domain errors onto stable status codes so clients can
// build retries and idempotency keys on top of them.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		writeJSON(w, status, errorBody{Code: status, Message: "internal error"})
		return
	}
	writeJSON(w, status, errorBody{Code: status, Message: err.Error()})
}

func statusFor(err error) int {
	var (
		stockErr      *product.InsufficientStockError
		transitionErr *order.InvalidTransitionError
		processingErr *payment.ProcessingError
	)
	switch {
	case errors.Is(err, order.ErrNotFound),
		errors.Is(err, address.ErrNotFound),
		errors.Is(err, product.ErrNotFound),
		errors.Is(err, cart.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, order.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, order.ErrEmptyCart):
		return http.StatusBadRequest
	case errors.As(err, &stockErr), errors.As(err, &transitionErr):
		return http.StatusConflict
	case errors.As(err, &processingErr):
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}
