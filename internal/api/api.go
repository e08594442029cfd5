// Package api exposes the order engine over HTTP. The surrounding routing
// concerns (auth, TLS, rate limiting) live in the upstream gateway; this
// layer only decodes requests, delegates to the domain services, and maps
// domain errors to stable status codes.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wildcart/storefront/internal/domain/order"
	"github.com/wildcart/storefront/internal/domain/shipment"
)

// OrderService is the order lifecycle surface the API depends on.
type OrderService interface {
	PlaceOrder(ctx context.Context, req order.PlaceOrderRequest) (*order.Order, error)
	GetOrder(ctx context.Context, id, callerEmail string) (*order.Order, error)
	ListOrders(ctx context.Context, callerEmail string, p order.Page) ([]order.Order, int64, error)
	UpdateOrder(ctx context.Context, id string, req order.UpdateOrderRequest, callerEmail string) (*order.Order, error)
	DeleteOrder(ctx context.Context, id, callerEmail string) error
}

// ShipmentService is the shipment progression surface the API depends on.
type ShipmentService interface {
	Ship(ctx context.Context, orderID, carrier, trackingNumber, callerEmail string) (*shipment.Info, error)
	MarkDelivered(ctx context.Context, orderID, callerEmail string) (*shipment.Info, error)
	Tracking(ctx context.Context, orderID, callerEmail string) (*shipment.TrackingInfo, error)
}

// WebhookHandler reconciles inbound gateway webhook events.
type WebhookHandler interface {
	HandleEvent(ctx context.Context, payload []byte, sigHeader string) error
}

// Handler wires the HTTP routes to the domain services.
type Handler struct {
	orders    OrderService
	shipments ShipmentService
	webhooks  WebhookHandler
}

// NewHandler constructs a Handler with the required services.
func NewHandler(orders OrderService, shipments ShipmentService, webhooks WebhookHandler) *Handler {
	return &Handler{orders: orders, shipments: shipments, webhooks: webhooks}
}

// Router builds the chi router for the API.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/orders", func(r chi.Router) {
			r.Use(requireIdentity)
			r.Post("/", h.placeOrder)
			r.Get("/", h.listOrders)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.getOrder)
				r.Patch("/", h.updateOrder)
				r.Delete("/", h.deleteOrder)
				r.Post("/ship", h.shipOrder)
				r.Patch("/deliver", h.markDelivered)
				r.Get("/tracking", h.trackingInfo)
			})
		})
		r.Post("/stripe/webhooks", h.stripeWebhook)
	})

	return r
}

// identityHeader carries the authenticated caller's email, injected by the
// upstream auth gateway. The engine never validates credentials itself.
const identityHeader = "X-User-Email"

type identityKey struct{}

// requireIdentity rejects requests without an authenticated identity and
// stores the caller's email in the request context.
func requireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		email := r.Header.Get(identityHeader)
		if email == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody{
				Code:    http.StatusUnauthorized,
				Message: "missing caller identity",
			})
			return
		}
		ctx := context.WithValue(r.Context(), identityKey{}, email)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// callerEmail extracts the authenticated caller from the request context.
func callerEmail(r *http.Request) string {
	email, _ := r.Context().Value(identityKey{}).(string)
	return email
}

type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
