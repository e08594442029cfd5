package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wildcart/storefront/internal/domain/shipment"
)

type shipOrderRequest struct {
	Carrier        string `json:"carrier"`
	TrackingNumber string `json:"tracking_number"`
}

type shipmentInfoResponse struct {
	OrderID        string     `json:"order_id"`
	Status         string     `json:"status"`
	Carrier        string     `json:"carrier"`
	TrackingNumber string     `json:"tracking_number"`
	ShippedDate    *time.Time `json:"shipped_date,omitempty"`
}

type trackingInfoResponse struct {
	OrderID        string     `json:"order_id"`
	Status         string     `json:"status"`
	TrackingNumber string     `json:"tracking_number"`
	Carrier        string     `json:"carrier"`
	OrderDate      time.Time  `json:"order_date"`
	ShippedDate    *time.Time `json:"shipped_date,omitempty"`
	Message        string     `json:"message"`
}

func toShipmentInfoResponse(info *shipment.Info) shipmentInfoResponse {
	return shipmentInfoResponse{
		OrderID:        info.OrderID,
		Status:         string(info.Status),
		Carrier:        info.Carrier,
		TrackingNumber: info.TrackingNumber,
		ShippedDate:    info.ShippedDate,
	}
}

func (h *Handler) shipOrder(w http.ResponseWriter, r *http.Request) {
	var req shipOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: http.StatusBadRequest, Message: "invalid request body"})
		return
	}
	if req.Carrier == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: http.StatusBadRequest, Message: "carrier is required"})
		return
	}

	info, err := h.shipments.Ship(r.Context(), chi.URLParam(r, "id"), req.Carrier, req.TrackingNumber, callerEmail(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toShipmentInfoResponse(info))
}

func (h *Handler) markDelivered(w http.ResponseWriter, r *http.Request) {
	info, err := h.shipments.MarkDelivered(r.Context(), chi.URLParam(r, "id"), callerEmail(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toShipmentInfoResponse(info))
}

func (h *Handler) trackingInfo(w http.ResponseWriter, r *http.Request) {
	t, err := h.shipments.Tracking(r.Context(), chi.URLParam(r, "id"), callerEmail(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trackingInfoResponse{
		OrderID:        t.OrderID,
		Status:         string(t.Status),
		TrackingNumber: t.TrackingNumber,
		Carrier:        t.Carrier,
		OrderDate:      t.OrderDate,
		ShippedDate:    t.ShippedDate,
		Message:        t.Message,
	})
}
