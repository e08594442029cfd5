package api

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/wildcart/storefront/internal/domain/payment"
)

// maxWebhookBody bounds the accepted webhook payload size.
const maxWebhookBody = 1 << 20

// stripeWebhook receives asynchronous payment events from the gateway.
// The response contract is deliberately narrow: bad-request when the
// signature does not verify, success otherwise. Even reconciliation failures
// come back as success, so the gateway does not retry indefinitely and no
// internal detail leaks; they are logged for manual follow-up.
func (h *Handler) stripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "Invalid signature", http.StatusBadRequest)
		return
	}

	err = h.webhooks.HandleEvent(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, payment.ErrInvalidSignature) {
			http.Error(w, "Invalid signature", http.StatusBadRequest)
			return
		}
		zctx.From(r.Context()).Error("Webhook reconciliation failed", zap.Error(err))
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Webhook received"))
}
