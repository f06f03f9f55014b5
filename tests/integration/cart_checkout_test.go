//go:build integration

package integration

import (
	"math"
	"net/http"
	"testing"
	"time"
)

type cartItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity,omitempty"`
}

type quantityRequest struct {
	Quantity int `json:"quantity"`
}

type checkoutRequest struct {
	AddressID     string `json:"addressId,omitempty"`
	PaymentMethod string `json:"paymentMethod"`
}

// checkoutUntilReady retries checkout while the session's address snapshot is
// still in flight from the store subscription.
func checkoutUntilReady(t *testing.T, sessionID string, req checkoutRequest) *http.Response {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for {
		resp := doAuth(t, http.MethodPost, "/api/checkout", sessionID, req)
		if resp.StatusCode == http.StatusBadRequest && time.Now().Before(deadline) {
			errResp := decodeJSON[errorResponse](t, resp)
			resp.Body.Close()
			if errResp.Message == "no delivery address selected" {
				time.Sleep(100 * time.Millisecond)
				continue
			}
			t.Fatalf("checkout failed: %d %s", http.StatusBadRequest, errResp.Message)
		}
		return resp
	}
}

func TestCart_AddAndAggregate(t *testing.T) {
	const sid = "cart-aggregate"

	resp := doAuth(t, http.MethodPost, "/api/cart/items", sid, cartItemRequest{ProductID: "1", Quantity: 2})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	resp = doAuth(t, http.MethodPost, "/api/cart/items", sid, cartItemRequest{ProductID: "1", Quantity: 3})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	cart := decodeJSON[cartResponse](t, resp)
	if len(cart.Items) != 1 {
		t.Fatalf("expected 1 aggregated line, got %d", len(cart.Items))
	}
	if cart.Items[0].Quantity != 5 {
		t.Errorf("quantity: got %d, want 5", cart.Items[0].Quantity)
	}
}

func TestCart_SetQuantityZeroRejected(t *testing.T) {
	const sid = "cart-zero"

	resp := doAuth(t, http.MethodPost, "/api/cart/items", sid, cartItemRequest{ProductID: "2"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	resp = doAuth(t, http.MethodPut, "/api/cart/items/2", sid, quantityRequest{Quantity: 0})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
}

func TestCart_RemoveAbsentIsNoop(t *testing.T) {
	const sid = "cart-remove-absent"

	resp := doAuth(t, http.MethodDelete, "/api/cart/items/999", sid, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestCheckout_FullFlow(t *testing.T) {
	const sid = "checkout-flow"

	// 2 x product 1 (14.99) + 1 x product 2 (9.99) = 39.97.
	resp := doAuth(t, http.MethodPost, "/api/cart/items", sid, cartItemRequest{ProductID: "1", Quantity: 2})
	resp.Body.Close()
	resp = doAuth(t, http.MethodPost, "/api/cart/items", sid, cartItemRequest{ProductID: "2"})
	resp.Body.Close()

	resp = checkoutUntilReady(t, sid, checkoutRequest{PaymentMethod: "Credit Card"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	order := decodeJSON[orderResponse](t, resp)
	if order.ID == "" {
		t.Error("order id is empty")
	}
	if math.Abs(order.Total-39.97) > 0.001 {
		t.Errorf("total: got %v, want 39.97", order.Total)
	}
	if order.PaymentMethod != "Credit Card" {
		t.Errorf("paymentMethod: got %q", order.PaymentMethod)
	}
	if order.Address == "" {
		t.Error("address is empty")
	}
	if len(order.Items) != 2 {
		t.Fatalf("expected 2 order items, got %d", len(order.Items))
	}
	if _, err := time.Parse(time.RFC3339, order.CreatedAt); err != nil {
		t.Errorf("createdAt not RFC3339: %v", err)
	}

	// The cart is empty after a committed checkout.
	cr := doAuth(t, http.MethodGet, "/api/cart", sid, nil)
	defer cr.Body.Close()
	cart := decodeJSON[cartResponse](t, cr)
	if len(cart.Items) != 0 {
		t.Errorf("cart not emptied: %d items remain", len(cart.Items))
	}

	// The order shows up in history.
	or := doAuth(t, http.MethodGet, "/api/orders", sid, nil)
	defer or.Body.Close()
	orders := decodeJSON[[]orderResponse](t, or)
	found := false
	for _, o := range orders {
		if o.ID == order.ID {
			found = true
		}
	}
	if !found {
		t.Errorf("order %s not found in history", order.ID)
	}
}

func TestCheckout_EmptyCart(t *testing.T) {
	const sid = "checkout-empty"

	// Touch the session first so the address snapshot can settle, then
	// expect the empty-cart rejection.
	resp := doAuth(t, http.MethodGet, "/api/cart", sid, nil)
	resp.Body.Close()

	deadline := time.Now().Add(5 * time.Second)
	for {
		resp = doAuth(t, http.MethodPost, "/api/checkout", sid, checkoutRequest{PaymentMethod: "PayPal"})
		errResp := decodeJSON[errorResponse](t, resp)
		resp.Body.Close()

		if errResp.Message == "no delivery address selected" && time.Now().Before(deadline) {
			time.Sleep(100 * time.Millisecond)
			continue
		}
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", resp.StatusCode)
		}
		if errResp.Message != "cart is empty" {
			t.Fatalf("message: got %q, want %q", errResp.Message, "cart is empty")
		}
		return
	}
}

func TestCheckout_InvalidPaymentMethod(t *testing.T) {
	const sid = "checkout-bad-method"

	resp := doAuth(t, http.MethodPost, "/api/cart/items", sid, cartItemRequest{ProductID: "3"})
	resp.Body.Close()

	deadline := time.Now().Add(5 * time.Second)
	for {
		resp = doAuth(t, http.MethodPost, "/api/checkout", sid, checkoutRequest{PaymentMethod: "Bitcoin"})
		errResp := decodeJSON[errorResponse](t, resp)
		resp.Body.Close()

		if errResp.Message == "no delivery address selected" && time.Now().Before(deadline) {
			time.Sleep(100 * time.Millisecond)
			continue
		}
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", resp.StatusCode)
		}
		if errResp.Message != "invalid payment method" {
			t.Fatalf("message: got %q, want %q", errResp.Message, "invalid payment method")
		}
		return
	}
}
