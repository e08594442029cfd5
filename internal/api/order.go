package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wildcart/storefront/internal/domain/order"
	"github.com/wildcart/storefront/internal/domain/payment"
)

type placeOrderRequest struct {
	AddressID     string `json:"address_id"`
	PaymentMethod string `json:"payment_method"`
}

type updateOrderRequest struct {
	Status    *string `json:"status"`
	AddressID *string `json:"address_id"`
}

type orderItemResponse struct {
	ID          string  `json:"id"`
	ProductID   string  `json:"product_id"`
	ProductName string  `json:"product_name"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
}

type paymentResponse struct {
	ID                string `json:"id"`
	Method            string `json:"method"`
	ExternalPaymentID string `json:"external_payment_id,omitempty"`
	ExternalStatus    string `json:"external_status,omitempty"`
}

type orderResponse struct {
	ID             string              `json:"id"`
	Status         string              `json:"status"`
	TotalAmount    float64             `json:"total_amount"`
	OrderDate      time.Time           `json:"order_date"`
	ShippedDate    *time.Time          `json:"shipped_date,omitempty"`
	TrackingNumber string              `json:"tracking_number,omitempty"`
	Carrier        string              `json:"carrier,omitempty"`
	AddressID      string              `json:"address_id"`
	Items          []orderItemResponse `json:"items,omitempty"`
	Payment        *paymentResponse    `json:"payment,omitempty"`
}

type orderPageResponse struct {
	Orders     []orderResponse `json:"orders"`
	PageNumber int             `json:"page_number"`
	PageSize   int             `json:"page_size"`
	Total      int64           `json:"total"`
}

// toOrderResponse converts an order aggregate to its transport representation.
func toOrderResponse(o *order.Order) orderResponse {
	resp := orderResponse{
		ID:             o.ID,
		Status:         string(o.Status),
		TotalAmount:    o.TotalAmount.InexactFloat64(),
		OrderDate:      o.OrderDate,
		ShippedDate:    o.ShippedDate,
		TrackingNumber: o.TrackingNumber,
		Carrier:        o.Carrier,
		AddressID:      o.AddressID,
	}
	for _, item := range o.Items {
		resp.Items = append(resp.Items, orderItemResponse{
			ID:          item.ID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice.InexactFloat64(),
		})
	}
	if o.Payment.ID != "" {
		resp.Payment = &paymentResponse{
			ID:                o.Payment.ID,
			Method:            string(o.Payment.Method),
			ExternalPaymentID: o.Payment.ExternalPaymentID,
			ExternalStatus:    o.Payment.ExternalStatus,
		}
	}
	return resp
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: http.StatusBadRequest, Message: "invalid request body"})
		return
	}
	if req.AddressID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: http.StatusBadRequest, Message: "address_id is required"})
		return
	}
	method, err := payment.ParseMethod(req.PaymentMethod)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: http.StatusBadRequest, Message: err.Error()})
		return
	}

	o, err := h.orders.PlaceOrder(r.Context(), order.PlaceOrderRequest{
		AddressID:     req.AddressID,
		PaymentMethod: method,
		CallerEmail:   callerEmail(r),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(o))
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	p := pageFromQuery(r)
	orders, total, err := h.orders.ListOrders(r.Context(), callerEmail(r), p)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := orderPageResponse{
		Orders:     make([]orderResponse, 0, len(orders)),
		PageNumber: p.Number,
		PageSize:   p.Size,
		Total:      total,
	}
	for i := range orders {
		resp.Orders = append(resp.Orders, toOrderResponse(&orders[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.GetOrder(r.Context(), chi.URLParam(r, "id"), callerEmail(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *Handler) updateOrder(w http.ResponseWriter, r *http.Request) {
	var req updateOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: http.StatusBadRequest, Message: "invalid request body"})
		return
	}

	var patch order.UpdateOrderRequest
	if req.Status != nil {
		status, err := order.ParseStatus(*req.Status)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Code: http.StatusBadRequest, Message: err.Error()})
			return
		}
		patch.Status = &status
	}
	patch.AddressID = req.AddressID

	o, err := h.orders.UpdateOrder(r.Context(), chi.URLParam(r, "id"), patch, callerEmail(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.orders.DeleteOrder(r.Context(), chi.URLParam(r, "id"), callerEmail(r)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// pageFromQuery parses pagination parameters, clamping sizes to a sane range.
func pageFromQuery(r *http.Request) order.Page {
	q := r.URL.Query()
	p := order.Page{
		Number: 0,
		Size:   10,
		SortBy: q.Get("sortBy"),
		Desc:   q.Get("sortOrder") == "DESC",
	}
	if n, err := strconv.Atoi(q.Get("pageNumber")); err == nil && n >= 0 {
		p.Number = n
	}
	if s, err := strconv.Atoi(q.Get("pageSize")); err == nil && s > 0 && s <= 100 {
		p.Size = s
	}
	return p
}
