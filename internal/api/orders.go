package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/pharmadesk/pharmadesk/internal/auth"
	"github.com/pharmadesk/pharmadesk/internal/ops"
)

type orderPayload struct {
	OrderID    int64     `json:"order_id"`
	ClientID   int64     `json:"client_id"`
	Status     string    `json:"status"`
	ShipperID  *int64    `json:"shipper_id,omitempty"`
	TotalValue float64   `json:"total_value"`
	PlacedAt   time.Time `json:"placed_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func orderToPayload(o ops.Order) orderPayload {
	return orderPayload{
		OrderID:    o.OrderID,
		ClientID:   o.ClientID,
		Status:     string(o.Status),
		ShipperID:  o.ShipperID,
		TotalValue: o.TotalValue,
		PlacedAt:   o.PlacedAt,
		UpdatedAt:  o.UpdatedAt,
	}
}

func handleListOrders(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	in := ops.ListOrdersInput{
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := ops.OrderStatus(raw)
		if !status.Valid() {
			writeError(w, http.StatusBadRequest, "invalid_request", "unknown order status")
			return
		}
		in.Status = status
	}
	in.ClientID = int64(queryInt(r, "client_id", 0))

	orders, err := deps.Repo.ListOrders(r.Context(), in)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list_failed", "failed to list orders")
		return
	}
	payloads := make([]orderPayload, 0, len(orders))
	for _, o := range orders {
		payloads = append(payloads, orderToPayload(o))
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": payloads})
}

func handleCreateOrder(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	var req struct {
		ClientID   int64   `json:"client_id"`
		TotalValue float64 `json:"total_value"`
		ShipperID  *int64  `json:"shipper_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body must be valid JSON")
		return
	}
	if req.ClientID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "client_id is required")
		return
	}
	if req.TotalValue < 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "total_value must not be negative")
		return
	}

	order, err := deps.Repo.CreateOrder(r.Context(), ops.CreateOrderInput{
		Actor:      auth.Actor(r.Context(), deps.DefaultActor),
		ClientID:   req.ClientID,
		TotalValue: req.TotalValue,
		ShipperID:  req.ShipperID,
	})
	if err != nil {
		if errors.Is(err, ops.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "client not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "create_failed", "failed to create order")
		return
	}
	writeJSON(w, http.StatusCreated, orderToPayload(order))
}

func handleGetOrder(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	order, err := deps.Repo.GetOrder(r.Context(), id)
	if err != nil {
		if errors.Is(err, ops.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "order not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "load_failed", "failed to load order")
		return
	}
	writeJSON(w, http.StatusOK, orderToPayload(order))
}

func handleOrderStatus(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body must be valid JSON")
		return
	}
	status := ops.OrderStatus(req.Status)
	if !status.Valid() {
		writeError(w, http.StatusBadRequest, "invalid_request", "unknown order status")
		return
	}

	order, err := deps.Repo.UpdateOrderStatus(r.Context(), ops.UpdateOrderStatusInput{
		Actor:   auth.Actor(r.Context(), deps.DefaultActor),
		OrderID: id,
		Status:  status,
	})
	if err != nil {
		if errors.Is(err, ops.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "order not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "update_failed", "failed to update order status")
		return
	}
	writeJSON(w, http.StatusOK, orderToPayload(order))
}

func handleOrderShipper(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		ShipperID int64 `json:"shipper_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body must be valid JSON")
		return
	}
	if req.ShipperID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "shipper_id is required")
		return
	}

	order, err := deps.Repo.AssignOrderShipper(r.Context(), ops.AssignOrderShipperInput{
		Actor:     auth.Actor(r.Context(), deps.DefaultActor),
		OrderID:   id,
		ShipperID: req.ShipperID,
	})
	if err != nil {
		if errors.Is(err, ops.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "order or shipper not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "update_failed", "failed to assign shipper")
		return
	}
	writeJSON(w, http.StatusOK, orderToPayload(order))
}
