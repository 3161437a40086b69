package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sokoni-collective/sokoni/internal/order"
)

func newTestOrderHandlers() (*OrderHandlers, order.Repository) {
	orders := order.NewInMemoryRepository()
	return NewOrderHandlers(orders), orders
}

func seedOrder(t *testing.T, orders order.Repository, buyerID, sellerID string) *order.Order {
	t.Helper()
	ord := &order.Order{
		BuyerID:  buyerID,
		SellerID: sellerID,
		Title:    "Order from " + sellerID,
		Amount:   5000,
		Currency: "USD",
		Status:   order.StatusProcessing,
	}
	if err := orders.Insert(ord); err != nil {
		t.Fatalf("failed to insert order: %v", err)
	}
	return ord
}

func TestOrderList(t *testing.T) {
	handlers, orders := newTestOrderHandlers()
	seedOrder(t, orders, "buyer-1", "seller-1")
	seedOrder(t, orders, "buyer-1", "seller-2")
	seedOrder(t, orders, "buyer-2", "seller-1")

	t.Run("buyer view is the default", func(t *testing.T) {
		req := authedRequest(http.MethodGet, "/orders", nil, "buyer-1")
		w := httptest.NewRecorder()
		handlers.List(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", w.Code)
		}
		var got []*order.Order
		if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if len(got) != 2 {
			t.Errorf("got %d orders, want 2", len(got))
		}
	})

	t.Run("seller view", func(t *testing.T) {
		req := authedRequest(http.MethodGet, "/orders?role=seller", nil, "seller-1")
		w := httptest.NewRecorder()
		handlers.List(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", w.Code)
		}
		var got []*order.Order
		if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if len(got) != 2 {
			t.Errorf("got %d orders, want 2", len(got))
		}
	})

	t.Run("unknown role", func(t *testing.T) {
		req := authedRequest(http.MethodGet, "/orders?role=spectator", nil, "buyer-1")
		w := httptest.NewRecorder()
		handlers.List(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", w.Code)
		}
	})

	t.Run("unauthenticated", func(t *testing.T) {
		req := authedRequest(http.MethodGet, "/orders", nil, "")
		w := httptest.NewRecorder()
		handlers.List(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("expected status 401, got %d", w.Code)
		}
	})
}

func TestOrderGet(t *testing.T) {
	handlers, orders := newTestOrderHandlers()
	ord := seedOrder(t, orders, "buyer-1", "seller-1")
	if err := orders.InsertLineItem(&order.LineItem{OrderID: ord.ID, ProductID: "p-1", Quantity: 2, UnitPrice: 2500}); err != nil {
		t.Fatalf("failed to insert line item: %v", err)
	}

	get := func(userID string, admin bool) *httptest.ResponseRecorder {
		req := authedRequest(http.MethodGet, "/orders/"+ord.ID, nil, userID)
		if admin {
			req = asAdmin(req)
		}
		req.SetPathValue("id", ord.ID)
		w := httptest.NewRecorder()
		handlers.Get(w, req)
		return w
	}

	t.Run("buyer sees order with line items", func(t *testing.T) {
		w := get("buyer-1", false)
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
		}
		var resp OrderResponse
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.Order.ID != ord.ID {
			t.Errorf("order id = %q, want %q", resp.Order.ID, ord.ID)
		}
		if len(resp.Items) != 1 {
			t.Errorf("got %d line items, want 1", len(resp.Items))
		}
	})

	t.Run("seller sees order", func(t *testing.T) {
		if w := get("seller-1", false); w.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", w.Code)
		}
	})

	t.Run("admin sees order", func(t *testing.T) {
		if w := get("admin-1", true); w.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", w.Code)
		}
	})

	t.Run("stranger is rejected", func(t *testing.T) {
		w := get("buyer-2", false)
		if w.Code != http.StatusForbidden {
			t.Errorf("expected status 403, got %d", w.Code)
		}
		if code := decodeErrorCode(t, w); code != ErrCodeForbidden {
			t.Errorf("error code = %q, want %q", code, ErrCodeForbidden)
		}
	})

	t.Run("unknown order", func(t *testing.T) {
		req := authedRequest(http.MethodGet, "/orders/ghost", nil, "buyer-1")
		req.SetPathValue("id", "ghost")
		w := httptest.NewRecorder()
		handlers.Get(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", w.Code)
		}
	})
}

func TestOrderUpdateStatus(t *testing.T) {
	handlers, orders := newTestOrderHandlers()
	ord := seedOrder(t, orders, "buyer-1", "seller-1")

	update := func(userID, status string, admin bool) *httptest.ResponseRecorder {
		body, _ := json.Marshal(UpdateStatusRequest{Status: status})
		req := authedRequest(http.MethodPatch, "/orders/"+ord.ID+"/status", bytes.NewReader(body), userID)
		if admin {
			req = asAdmin(req)
		}
		req.SetPathValue("id", ord.ID)
		w := httptest.NewRecorder()
		handlers.UpdateStatus(w, req)
		return w
	}

	t.Run("buyer cannot advance the order", func(t *testing.T) {
		w := update("buyer-1", order.StatusCompleted, false)
		if w.Code != http.StatusForbidden {
			t.Errorf("expected status 403, got %d", w.Code)
		}
	})

	t.Run("seller completes the order", func(t *testing.T) {
		w := update("seller-1", order.StatusCompleted, false)
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
		}
		var got order.Order
		if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if got.Status != order.StatusCompleted {
			t.Errorf("status = %q, want %q", got.Status, order.StatusCompleted)
		}
	})

	t.Run("completed is terminal", func(t *testing.T) {
		w := update("seller-1", order.StatusCancelled, false)
		if w.Code != http.StatusConflict {
			t.Errorf("expected status 409, got %d", w.Code)
		}
		if code := decodeErrorCode(t, w); code != ErrCodeInvalidTransition {
			t.Errorf("error code = %q, want %q", code, ErrCodeInvalidTransition)
		}
	})
}
