// Package stripe implements the payment gateway client and webhook verifier
// on top of the official Stripe SDK.
package stripe

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	stripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"github.com/wildcart/storefront/internal/domain/payment"
)

var _ payment.Gateway = (*Client)(nil)

// Client implements payment.Gateway against the Stripe API. Every call is
// bounded by the configured timeout.
type Client struct {
	api     *client.API
	timeout time.Duration
}

// NewClient creates a Stripe gateway client with the given secret key.
func NewClient(secretKey string, timeout time.Duration) *Client {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &Client{api: api, timeout: timeout}
}

// CreateAuthorization finds or creates the Stripe customer for the buyer and
// creates a payment intent carrying the order id as opaque metadata. The
// returned identifier is the payment intent id.
func (c *Client) CreateAuthorization(ctx context.Context, a payment.Authorization) (*payment.AuthorizationResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cust, err := c.findOrCreateCustomer(ctx, a)
	if err != nil {
		return nil, errors.Wrap(err, "resolve customer")
	}

	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(a.Amount),
		Currency:    stripe.String(a.Currency),
		Customer:    stripe.String(cust.ID),
		Description: stripe.String(a.Description),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
	}
	params.Context = ctx
	for k, v := range a.Metadata {
		params.AddMetadata(k, v)
	}

	intent, err := c.api.PaymentIntents.New(params)
	if err != nil {
		return nil, errors.Wrap(err, "create payment intent")
	}

	return &payment.AuthorizationResult{
		ExternalID: intent.ID,
		Status:     string(intent.Status),
	}, nil
}

func (c *Client) findOrCreateCustomer(ctx context.Context, a payment.Authorization) (*stripe.Customer, error) {
	searchParams := &stripe.CustomerSearchParams{
		SearchParams: stripe.SearchParams{
			Query:   fmt.Sprintf("email:'%s'", a.Buyer.Email),
			Context: ctx,
		},
	}
	iter := c.api.Customers.Search(searchParams)
	if iter.Next() {
		return iter.Customer(), nil
	}
	if err := iter.Err(); err != nil {
		return nil, errors.Wrap(err, "search customer")
	}

	createParams := &stripe.CustomerParams{
		Name:  stripe.String(a.Buyer.Name),
		Email: stripe.String(a.Buyer.Email),
		Address: &stripe.AddressParams{
			Line1:      stripe.String(a.Address.Street),
			City:       stripe.String(a.Address.City),
			State:      stripe.String(a.Address.State),
			Country:    stripe.String(a.Address.Country),
			PostalCode: stripe.String(a.Address.PostalCode),
		},
	}
	createParams.Context = ctx

	cust, err := c.api.Customers.New(createParams)
	if err != nil {
		return nil, errors.Wrap(err, "create customer")
	}
	return cust, nil
}
