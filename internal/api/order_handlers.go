package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sokoni-collective/sokoni/internal/auth"
	"github.com/sokoni-collective/sokoni/internal/middleware"
	"github.com/sokoni-collective/sokoni/internal/order"
)

// OrderHandlers holds dependencies for order-related HTTP handlers.
type OrderHandlers struct {
	orders order.Repository
}

// NewOrderHandlers creates a new OrderHandlers instance.
func NewOrderHandlers(orders order.Repository) *OrderHandlers {
	return &OrderHandlers{orders: orders}
}

// List returns the authenticated user's orders. The role query parameter
// selects the buyer view (default) or the seller view.
// GET /orders?role=buyer|seller
func (h *OrderHandlers) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := middleware.GetUserID(ctx)
	if userID == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeUnauthorized)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return
	}

	var (
		orders []*order.Order
		err    error
	)
	switch role := r.URL.Query().Get("role"); role {
	case "", "buyer":
		orders, err = h.orders.ListByBuyer(userID)
	case "seller":
		orders, err = h.orders.ListBySeller(userID)
	default:
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "role must be buyer or seller")
		return
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to list orders", "error", err)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "failed to load orders")
		return
	}

	WriteJSON(w, ctx, http.StatusOK, orders)
}

// OrderResponse joins an order with its line items.
type OrderResponse struct {
	Order *order.Order      `json:"order"`
	Items []*order.LineItem `json:"items"`
}

// Get returns one order with its line items. Only the buyer, the seller,
// and admins may view an order.
// GET /orders/{id}
func (h *OrderHandlers) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := middleware.GetUserID(ctx)
	if userID == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeUnauthorized)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return
	}

	ord, err := h.orders.GetByID(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			ctx = middleware.SetErrorCode(ctx, ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "order not found")
			return
		}
		slog.ErrorContext(ctx, "failed to get order", "error", err)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "failed to load order")
		return
	}

	isAdmin := middleware.GetUserRole(ctx) == auth.RoleAdmin
	if ord.BuyerID != userID && ord.SellerID != userID && !isAdmin {
		ctx = middleware.SetErrorCode(ctx, ErrCodeForbidden)
		WriteError(w, ctx, http.StatusForbidden, ErrCodeForbidden, "order belongs to another user")
		return
	}

	items, err := h.orders.ListLineItems(ord.ID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list order line items", "order_id", ord.ID, "error", err)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "failed to load order")
		return
	}

	WriteJSON(w, ctx, http.StatusOK, OrderResponse{Order: ord, Items: items})
}

// UpdateStatusRequest represents the request body for an order status change.
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

// UpdateStatus moves an order through its status state machine. Only the
// seller (or an admin) may advance an order.
// PATCH /orders/{id}/status
func (h *OrderHandlers) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := middleware.GetUserID(ctx)
	if userID == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeUnauthorized)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return
	}

	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}

	ord, err := h.orders.GetByID(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			ctx = middleware.SetErrorCode(ctx, ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "order not found")
			return
		}
		slog.ErrorContext(ctx, "failed to get order", "error", err)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "failed to load order")
		return
	}

	isAdmin := middleware.GetUserRole(ctx) == auth.RoleAdmin
	if ord.SellerID != userID && !isAdmin {
		ctx = middleware.SetErrorCode(ctx, ErrCodeForbidden)
		WriteError(w, ctx, http.StatusForbidden, ErrCodeForbidden, "only the seller can update order status")
		return
	}

	updated, err := h.orders.UpdateStatus(ord.ID, req.Status)
	if err != nil {
		if errors.Is(err, order.ErrInvalidTransition) {
			ctx = middleware.SetErrorCode(ctx, ErrCodeInvalidTransition)
			WriteError(w, ctx, http.StatusConflict, ErrCodeInvalidTransition, err.Error())
			return
		}
		slog.ErrorContext(ctx, "failed to update order status", "order_id", ord.ID, "error", err)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "failed to update order")
		return
	}

	WriteJSON(w, ctx, http.StatusOK, updated)
}
