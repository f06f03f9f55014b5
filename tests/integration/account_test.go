//go:build integration

package integration

import (
	"net/http"
	"testing"
)

type addressRequest struct {
	Label      string `json:"label"`
	Street     string `json:"street"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Phone      string `json:"phone"`
}

type paymentMethodRequest struct {
	Label  string `json:"label"`
	Last4  string `json:"last4"`
	Expiry string `json:"expiry"`
}

func TestAddresses_SeededDefaults(t *testing.T) {
	resp := doAuth(t, http.MethodGet, "/api/addresses", "acct-seeded", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	addrs := decodeJSON[[]addressResponse](t, resp)
	if len(addrs) < 2 {
		t.Fatalf("expected at least 2 seeded addresses, got %d", len(addrs))
	}

	defaults := 0
	for _, a := range addrs {
		if a.IsDefault {
			defaults++
		}
	}
	if defaults != 1 {
		t.Errorf("expected exactly one default address, got %d", defaults)
	}
}

func TestAddresses_SetDefaultMovesFlag(t *testing.T) {
	const sid = "acct-default"

	// Add a fresh address; it must not steal the default flag.
	resp := doAuth(t, http.MethodPost, "/api/addresses", sid, addressRequest{
		Label:      "Cottage",
		Street:     "7 Birch Way",
		City:       "Shelbyville",
		PostalCode: "62565",
		Phone:      "555-0199",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	created := decodeJSON[addressResponse](t, resp)
	resp.Body.Close()
	if created.IsDefault {
		t.Error("new address on a populated account must not be the default")
	}

	resp = doAuth(t, http.MethodPost, "/api/addresses/"+created.ID+"/default", sid, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}

	resp = doAuth(t, http.MethodGet, "/api/addresses", sid, nil)
	defer resp.Body.Close()
	addrs := decodeJSON[[]addressResponse](t, resp)

	defaults := 0
	for _, a := range addrs {
		if a.IsDefault {
			defaults++
			if a.ID != created.ID {
				t.Errorf("default is %s, want %s", a.ID, created.ID)
			}
		}
	}
	if defaults != 1 {
		t.Errorf("expected exactly one default address, got %d", defaults)
	}

	// Cleanup so other tests see the seeded layout.
	resp = doAuth(t, http.MethodDelete, "/api/addresses/"+created.ID, sid, nil)
	resp.Body.Close()
}

func TestPaymentMethods_CRUD(t *testing.T) {
	const sid = "acct-payments"

	resp := doAuth(t, http.MethodPost, "/api/payment-methods", sid, paymentMethodRequest{
		Label:  "Mastercard",
		Last4:  "5100",
		Expiry: "03/29",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	created := decodeJSON[paymentMethodResponse](t, resp)
	resp.Body.Close()

	resp = doAuth(t, http.MethodPut, "/api/payment-methods/"+created.ID, sid, paymentMethodRequest{
		Label:  "Mastercard Business",
		Last4:  "5100",
		Expiry: "03/31",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}

	resp = doAuth(t, http.MethodGet, "/api/payment-methods", sid, nil)
	methods := decodeJSON[[]paymentMethodResponse](t, resp)
	resp.Body.Close()

	var updated *paymentMethodResponse
	for i := range methods {
		if methods[i].ID == created.ID {
			updated = &methods[i]
		}
	}
	if updated == nil {
		t.Fatalf("method %s not found after update", created.ID)
	}
	if updated.Label != "Mastercard Business" || updated.Expiry != "03/31" {
		t.Errorf("update not applied: %+v", updated)
	}

	resp = doAuth(t, http.MethodDelete, "/api/payment-methods/"+created.ID, sid, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
}

func TestPaymentMethods_RejectsBadLast4(t *testing.T) {
	resp := doAuth(t, http.MethodPost, "/api/payment-methods", "acct-bad-last4", paymentMethodRequest{
		Label:  "Broken",
		Last4:  "12ab",
		Expiry: "01/30",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}
