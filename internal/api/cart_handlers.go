package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sokoni-collective/sokoni/internal/cart"
	"github.com/sokoni-collective/sokoni/internal/catalog"
	"github.com/sokoni-collective/sokoni/internal/middleware"
)

// CartHandlers holds dependencies for cart-related HTTP handlers.
type CartHandlers struct {
	carts    cart.Repository
	products catalog.ProductRepository
}

// NewCartHandlers creates a new CartHandlers instance.
func NewCartHandlers(carts cart.Repository, products catalog.ProductRepository) *CartHandlers {
	return &CartHandlers{
		carts:    carts,
		products: products,
	}
}

// CartItemResponse is one cart line joined with its current product view.
// Prices shown here are informational; checkout re-reads prices when the
// snapshot is taken.
type CartItemResponse struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
	Subtotal    int64  `json:"subtotal"`
}

// CartResponse represents the response for listing a cart.
type CartResponse struct {
	Items []CartItemResponse `json:"items"`
	Total int64              `json:"total"`
}

// Get lists the authenticated user's cart.
// GET /cart
func (h *CartHandlers) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := middleware.GetUserID(ctx)
	if userID == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeUnauthorized)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return
	}

	items, err := h.carts.ListByUser(userID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list cart", "error", err)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "failed to load cart")
		return
	}

	response := CartResponse{Items: make([]CartItemResponse, 0, len(items))}
	for _, item := range items {
		line := CartItemResponse{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		}
		if product, err := h.products.GetByID(item.ProductID); err == nil {
			line.ProductName = product.Name
			line.UnitPrice = product.Price
			line.Subtotal = product.Price * int64(item.Quantity)
		}
		response.Total += line.Subtotal
		response.Items = append(response.Items, line)
	}

	WriteJSON(w, ctx, http.StatusOK, response)
}

// AddItemRequest represents the request body for adding a cart line.
type AddItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// AddItem adds or replaces a product line in the user's cart.
// POST /cart/items
func (h *CartHandlers) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := middleware.GetUserID(ctx)
	if userID == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeUnauthorized)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return
	}

	var req AddItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}

	if req.ProductID == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "product_id is required")
		return
	}
	if req.Quantity <= 0 {
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "quantity must be positive")
		return
	}

	product, err := h.products.GetByID(req.ProductID)
	if err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			ctx = middleware.SetErrorCode(ctx, ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "product not found")
			return
		}
		slog.ErrorContext(ctx, "failed to get product", "product_id", req.ProductID, "error", err)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "failed to load product")
		return
	}

	if !product.IsActive() {
		ctx = middleware.SetErrorCode(ctx, ErrCodeProductUnavailable)
		WriteError(w, ctx, http.StatusConflict, ErrCodeProductUnavailable, "product is not available")
		return
	}

	item := &cart.Item{
		UserID:    userID,
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
	}
	if err := h.carts.Upsert(item); err != nil {
		slog.ErrorContext(ctx, "failed to upsert cart item", "product_id", req.ProductID, "error", err)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "failed to update cart")
		return
	}

	WriteJSON(w, ctx, http.StatusCreated, item)
}

// RemoveItem deletes a single product line from the user's cart.
// DELETE /cart/items/{product_id}
func (h *CartHandlers) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := middleware.GetUserID(ctx)
	if userID == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeUnauthorized)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return
	}

	if err := h.carts.Remove(userID, r.PathValue("product_id")); err != nil {
		if errors.Is(err, cart.ErrItemNotFound) {
			ctx = middleware.SetErrorCode(ctx, ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "cart item not found")
			return
		}
		slog.ErrorContext(ctx, "failed to remove cart item", "error", err)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "failed to update cart")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Clear empties the user's cart.
// DELETE /cart
func (h *CartHandlers) Clear(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := middleware.GetUserID(ctx)
	if userID == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeUnauthorized)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return
	}

	removed, err := h.carts.ClearUser(userID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to clear cart", "error", err)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "failed to clear cart")
		return
	}

	WriteJSON(w, ctx, http.StatusOK, map[string]int{"removed": removed})
}
