package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sokoni-collective/sokoni/internal/catalog"
)

func newTestProductHandlers() (*ProductHandlers, catalog.ProductRepository) {
	products := catalog.NewInMemoryProductRepository()
	return NewProductHandlers(products), products
}

func TestProductCreate(t *testing.T) {
	handlers, _ := newTestProductHandlers()

	body, _ := json.Marshal(CreateProductRequest{
		Name:     "Wholesale flour 25kg",
		Price:    4500,
		Currency: "USD",
		Stock:    40,
	})
	req := authedRequest(http.MethodPost, "/products", bytes.NewReader(body), "seller-1")

	w := httptest.NewRecorder()
	handlers.Create(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	var product catalog.Product
	if err := json.NewDecoder(w.Body).Decode(&product); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if product.ID == "" {
		t.Error("created product has no id")
	}
	if product.SellerID != "seller-1" {
		t.Errorf("seller_id = %q, want seller-1", product.SellerID)
	}
	if product.Status != catalog.StatusActive {
		t.Errorf("status = %q, want %q", product.Status, catalog.StatusActive)
	}
}

func TestProductCreate_Validation(t *testing.T) {
	handlers, _ := newTestProductHandlers()

	tests := []struct {
		name string
		req  CreateProductRequest
	}{
		{"missing name", CreateProductRequest{Price: 100, Currency: "USD"}},
		{"zero price", CreateProductRequest{Name: "x", Price: 0, Currency: "USD"}},
		{"negative price", CreateProductRequest{Name: "x", Price: -5, Currency: "USD"}},
		{"bad currency", CreateProductRequest{Name: "x", Price: 100, Currency: "DOLLARS"}},
		{"negative stock", CreateProductRequest{Name: "x", Price: 100, Currency: "USD", Stock: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, _ := json.Marshal(tt.req)
			req := authedRequest(http.MethodPost, "/products", bytes.NewReader(body), "seller-1")

			w := httptest.NewRecorder()
			handlers.Create(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
			if code := decodeErrorCode(t, w); code != ErrCodeValidation {
				t.Errorf("error code = %q, want %q", code, ErrCodeValidation)
			}
		})
	}
}

func TestProductGet(t *testing.T) {
	handlers, products := newTestProductHandlers()
	product := &catalog.Product{SellerID: "seller-1", Name: "Coffee beans", Price: 2500, Currency: "USD", Stock: 10, Status: catalog.StatusActive}
	if err := products.Insert(product); err != nil {
		t.Fatalf("failed to insert product: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/products/"+product.ID, nil)
	req.SetPathValue("id", product.ID)

	w := httptest.NewRecorder()
	handlers.Get(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var got catalog.Product
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.ID != product.ID || got.Name != "Coffee beans" {
		t.Errorf("got product {%s %s}, want {%s Coffee beans}", got.ID, got.Name, product.ID)
	}
}

func TestProductGet_NotFound(t *testing.T) {
	handlers, _ := newTestProductHandlers()

	req := httptest.NewRequest(http.MethodGet, "/products/ghost", nil)
	req.SetPathValue("id", "ghost")

	w := httptest.NewRecorder()
	handlers.Get(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}
}

func TestProductList(t *testing.T) {
	handlers, products := newTestProductHandlers()
	for _, name := range []string{"Coffee beans", "Thermal paper rolls"} {
		p := &catalog.Product{SellerID: "seller-1", Name: name, Price: 1000, Currency: "USD", Status: catalog.StatusActive}
		if err := products.Insert(p); err != nil {
			t.Fatalf("failed to insert product: %v", err)
		}
	}

	t.Run("by query parameter", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/products?seller_id=seller-1", nil)
		w := httptest.NewRecorder()
		handlers.List(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", w.Code)
		}
		var got []*catalog.Product
		if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if len(got) != 2 {
			t.Errorf("got %d products, want 2", len(got))
		}
	})

	t.Run("defaults to the authenticated seller", func(t *testing.T) {
		req := authedRequest(http.MethodGet, "/products", nil, "seller-1")
		w := httptest.NewRecorder()
		handlers.List(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", w.Code)
		}
		var got []*catalog.Product
		if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if len(got) != 2 {
			t.Errorf("got %d products, want 2", len(got))
		}
	})

	t.Run("no seller at all", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/products", nil)
		w := httptest.NewRecorder()
		handlers.List(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", w.Code)
		}
	})
}

func TestProductUpdate(t *testing.T) {
	handlers, products := newTestProductHandlers()
	product := &catalog.Product{SellerID: "seller-1", Name: "Coffee beans", Price: 2500, Currency: "USD", Stock: 10, Status: catalog.StatusActive}
	if err := products.Insert(product); err != nil {
		t.Fatalf("failed to insert product: %v", err)
	}

	patch := func(userID string, body interface{}) *httptest.ResponseRecorder {
		raw, _ := json.Marshal(body)
		req := authedRequest(http.MethodPatch, "/products/"+product.ID, bytes.NewReader(raw), userID)
		req.SetPathValue("id", product.ID)
		w := httptest.NewRecorder()
		handlers.Update(w, req)
		return w
	}

	t.Run("owner patches price and stock", func(t *testing.T) {
		price := int64(2200)
		stock := 25
		w := patch("seller-1", UpdateProductRequest{Price: &price, Stock: &stock})

		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
		}
		var got catalog.Product
		if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if got.Price != 2200 || got.Stock != 25 {
			t.Errorf("got price=%d stock=%d, want 2200/25", got.Price, got.Stock)
		}
		if got.Name != "Coffee beans" {
			t.Errorf("name changed to %q on a partial patch", got.Name)
		}
	})

	t.Run("another seller is rejected", func(t *testing.T) {
		price := int64(1)
		w := patch("seller-2", UpdateProductRequest{Price: &price})
		if w.Code != http.StatusForbidden {
			t.Errorf("expected status 403, got %d", w.Code)
		}
	})

	t.Run("invalid status value", func(t *testing.T) {
		status := "sold_out"
		w := patch("seller-1", UpdateProductRequest{Status: &status})
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", w.Code)
		}
	})

	t.Run("archive", func(t *testing.T) {
		status := catalog.StatusArchived
		w := patch("seller-1", UpdateProductRequest{Status: &status})
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", w.Code)
		}
		var got catalog.Product
		if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if got.Status != catalog.StatusArchived {
			t.Errorf("status = %q, want %q", got.Status, catalog.StatusArchived)
		}
	})
}
