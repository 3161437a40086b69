package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sokoni-collective/sokoni/internal/catalog"
	"github.com/sokoni-collective/sokoni/internal/middleware"
)

// ProductHandlers holds dependencies for catalog HTTP handlers.
type ProductHandlers struct {
	products catalog.ProductRepository
}

// NewProductHandlers creates a new ProductHandlers instance.
func NewProductHandlers(products catalog.ProductRepository) *ProductHandlers {
	return &ProductHandlers{products: products}
}

// CreateProductRequest represents the request body for listing a product.
type CreateProductRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Price       int64  `json:"price"`
	Currency    string `json:"currency"`
	Stock       int    `json:"stock"`
}

// Create lists a new product for the authenticated seller.
// POST /products
func (h *ProductHandlers) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := middleware.GetUserID(ctx)
	if userID == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeUnauthorized)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return
	}

	var req CreateProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}

	if req.Name == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "name is required")
		return
	}
	if req.Price <= 0 {
		ctx = middleware.SetErrorCode(ctx, ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "price must be positive")
		return
	}
	if len(req.Currency) != 3 {
		ctx = middleware.SetErrorCode(ctx, ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "currency must be a 3-letter code")
		return
	}
	if req.Stock < 0 {
		ctx = middleware.SetErrorCode(ctx, ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "stock cannot be negative")
		return
	}

	product := &catalog.Product{
		SellerID:    userID,
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Currency:    req.Currency,
		Stock:       req.Stock,
		Status:      catalog.StatusActive,
	}
	if err := h.products.Insert(product); err != nil {
		slog.ErrorContext(ctx, "failed to insert product", "error", err)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "failed to create product")
		return
	}

	WriteJSON(w, ctx, http.StatusCreated, product)
}

// Get returns a single product.
// GET /products/{id}
func (h *ProductHandlers) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	product, err := h.products.GetByID(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			ctx = middleware.SetErrorCode(ctx, ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "product not found")
			return
		}
		slog.ErrorContext(ctx, "failed to get product", "error", err)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "failed to load product")
		return
	}

	WriteJSON(w, ctx, http.StatusOK, product)
}

// List returns a seller's products.
// GET /products?seller_id={id}
func (h *ProductHandlers) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sellerID := r.URL.Query().Get("seller_id")
	if sellerID == "" {
		// Default to the authenticated seller's own catalog.
		sellerID = middleware.GetUserID(ctx)
	}
	if sellerID == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "seller_id is required")
		return
	}

	products, err := h.products.ListBySeller(sellerID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list products", "seller_id", sellerID, "error", err)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "failed to load products")
		return
	}

	WriteJSON(w, ctx, http.StatusOK, products)
}

// UpdateProductRequest represents the request body for updating a product.
// Nil fields are left unchanged.
type UpdateProductRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Price       *int64  `json:"price,omitempty"`
	Stock       *int    `json:"stock,omitempty"`
	Status      *string `json:"status,omitempty"`
}

// Update patches a product. Only the owning seller may update it.
// PATCH /products/{id}
func (h *ProductHandlers) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := middleware.GetUserID(ctx)
	if userID == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeUnauthorized)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return
	}

	var req UpdateProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}

	product, err := h.products.GetByID(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			ctx = middleware.SetErrorCode(ctx, ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "product not found")
			return
		}
		slog.ErrorContext(ctx, "failed to get product", "error", err)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "failed to load product")
		return
	}

	if product.SellerID != userID {
		ctx = middleware.SetErrorCode(ctx, ErrCodeForbidden)
		WriteError(w, ctx, http.StatusForbidden, ErrCodeForbidden, "product belongs to another seller")
		return
	}

	if req.Name != nil {
		product.Name = *req.Name
	}
	if req.Description != nil {
		product.Description = *req.Description
	}
	if req.Price != nil {
		if *req.Price <= 0 {
			ctx = middleware.SetErrorCode(ctx, ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "price must be positive")
			return
		}
		product.Price = *req.Price
	}
	if req.Stock != nil {
		if *req.Stock < 0 {
			ctx = middleware.SetErrorCode(ctx, ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "stock cannot be negative")
			return
		}
		product.Stock = *req.Stock
	}
	if req.Status != nil {
		switch *req.Status {
		case catalog.StatusActive, catalog.StatusInactive, catalog.StatusArchived:
			product.Status = *req.Status
		default:
			ctx = middleware.SetErrorCode(ctx, ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "invalid status")
			return
		}
	}

	if err := h.products.Update(product); err != nil {
		slog.ErrorContext(ctx, "failed to update product", "product_id", product.ID, "error", err)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "failed to update product")
		return
	}

	WriteJSON(w, ctx, http.StatusOK, product)
}
