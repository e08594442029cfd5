package payment

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/wildcart/storefront/internal/domain/address"
)

// ErrInvalidSignature is returned when a webhook payload fails signature
// verification. No order state is touched when this error is produced.
var ErrInvalidSignature = errors.New("invalid signature")

// Method enumerates the supported payment methods.
type Method string

const (
	MethodCard   Method = "CARD"
	MethodWallet Method = "WALLET"
	MethodCOD    Method = "COD"
)

// ParseMethod converts a string into a Method, rejecting unknown values.
func ParseMethod(s string) (Method, error) {
	switch m := Method(s); m {
	case MethodCard, MethodWallet, MethodCOD:
		return m, nil
	default:
		return "", errors.Errorf("unknown payment method %q", s)
	}
}

// Payment is the payment record created together with its order. The external
// fields stay empty until the gateway responds or a webhook event arrives.
type Payment struct {
	ID                string
	OrderID           string
	Method            Method
	ExternalPaymentID string
	ExternalStatus    string
}

// Buyer identifies the paying customer towards the gateway.
type Buyer struct {
	Email string
	Name  string
}

// Authorization is the input for requesting a payment authorization from the
// external gateway. Amount is in the currency's minor unit (cents).
type Authorization struct {
	Amount      int64
	Currency    string
	Buyer       Buyer
	Address     address.Address
	Description string
	Metadata    map[string]string
}

// AuthorizationResult is the gateway's answer to an authorization request.
type AuthorizationResult struct {
	ExternalID string
	Status     string
}

// Gateway creates payment authorizations with an external payment provider.
// Implementations must bound the call with a timeout; failures surface to the
// caller as a ProcessingError.
type Gateway interface {
	CreateAuthorization(ctx context.Context, a Authorization) (*AuthorizationResult, error)
}

// ProcessingError indicates that the gateway call failed or timed out after
// the order was already committed. The order is left in PENDING state; stock
// is not restored automatically.
type ProcessingError struct {
	Cause error
}

func (e *ProcessingError) Error() string {
	return "payment processing failed: " + e.Cause.Error()
}

func (e *ProcessingError) Unwrap() error { return e.Cause }

// EventKind classifies an inbound gateway webhook event.
type EventKind string

const (
	EventSucceeded EventKind = "succeeded"
	EventFailed    EventKind = "failed"
	EventCanceled  EventKind = "canceled"
	// EventOther covers every event kind the reconciler does not act on.
	// Such events are acknowledged but produce no state change.
	EventOther EventKind = "other"
)

// Event is a verified, decoded gateway webhook event. OrderID is extracted
// from the event metadata and may be empty.
type Event struct {
	Kind           EventKind
	OrderID        string
	ExternalID     string
	ExternalStatus string
}

// Verifier authenticates a raw webhook payload against the shared signing
// secret and decodes it. Verification runs before any business field of the
// payload is interpreted; failures yield ErrInvalidSignature.
type Verifier interface {
	Verify(payload []byte, sigHeader string) (Event, error)
}
