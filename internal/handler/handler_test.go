package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playtopia/storefront/internal/auth"
	"github.com/playtopia/storefront/internal/domain/account"
	"github.com/playtopia/storefront/internal/domain/catalog"
	"github.com/playtopia/storefront/internal/session"
	"github.com/playtopia/storefront/internal/store/memstore"
)

// --- Mock implementations ---

type mockProductRepo struct {
	products []catalog.Product
	byID     map[string]*catalog.Product
	listErr  error
}

func (m *mockProductRepo) List(_ context.Context) ([]catalog.Product, error) {
	return m.products, m.listErr
}

func (m *mockProductRepo) GetByID(_ context.Context, id string) (*catalog.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return p, nil
}

type mockKeyRepo struct {
	byHash map[string]*auth.KeyInfo
}

func (m *mockKeyRepo) FindByHash(_ context.Context, hash string) (*auth.KeyInfo, error) {
	info, ok := m.byHash[hash]
	if !ok {
		return nil, auth.ErrUnauthorized
	}
	return info, nil
}

// --- Helpers ---

const (
	testPepper = "test-pepper"
	testAPIKey = "test-api-key"
	testUserID = "user-1"
)

func newTestProduct(id, name, price string) catalog.Product {
	return catalog.Product{
		ID:       id,
		Name:     name,
		Price:    decimal.RequireFromString(price),
		Category: "test",
		Image:    "/images/" + id + ".png",
	}
}

func newProductRepo(products ...catalog.Product) *mockProductRepo {
	byID := make(map[string]*catalog.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}
	return &mockProductRepo{products: products, byID: byID}
}

type env struct {
	mux      *http.ServeMux
	store    *memstore.Store
	sessions *session.Manager
}

func newEnv(t *testing.T, products ...catalog.Product) *env {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	st := memstore.New()
	sessions := session.NewManager(ctx, st, time.Minute)
	keys := &mockKeyRepo{byHash: map[string]*auth.KeyInfo{
		auth.HashKey([]byte(testPepper), testAPIKey): {
			ID:      "key-1",
			UserID:  testUserID,
			KeyHash: auth.HashKey([]byte(testPepper), testAPIKey),
			Name:    "test",
		},
	}}

	h := New(
		Config{},
		newProductRepo(products...),
		account.NewService(st),
		sessions,
		st,
		auth.NewAuthenticator(keys, []byte(testPepper)),
	)
	mux := http.NewServeMux()
	h.Routes(mux)

	return &env{mux: mux, store: st, sessions: sessions}
}

// do performs a request as the authenticated test user with session "s1".
func (e *env) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("api_key", testAPIKey)
	req.Header.Set("X-Session-ID", "s1")

	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func decodeList(t *testing.T, w *httptest.ResponseRecorder) []map[string]any {
	t.Helper()
	var out []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

// waitFor polls cond until it holds or the deadline passes. Store snapshots
// reach session selectors asynchronously.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if cond() {
			return
		}
		select {
		case <-deadline:
			t.Fatal("condition not reached in time")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func (e *env) waitForAddress(t *testing.T) {
	t.Helper()
	s, err := e.sessions.Get("s1", testUserID)
	require.NoError(t, err)
	waitFor(t, func() bool {
		_, ok := s.Addresses.Selected()
		return ok
	})
}

const addressBody = `{"label":"Home","street":"12 Oak Lane","city":"Springfield","postalCode":"62704","phone":"555-0101"}`

// --- Tests ---

func TestListProducts(t *testing.T) {
	e := newEnv(t,
		newTestProduct("p1", "Plush Bear", "14.99"),
		newTestProduct("p2", "Wooden Blocks", "9.99"),
	)

	req := httptest.NewRequest(http.MethodGet, "/api/products", nil)
	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	products := decodeList(t, w)
	require.Len(t, products, 2)
	assert.Equal(t, "p1", products[0]["id"])
	assert.Equal(t, "Plush Bear", products[0]["name"])
	assert.InDelta(t, 14.99, products[0]["price"], 0.001)
}

func TestGetProduct(t *testing.T) {
	e := newEnv(t, newTestProduct("p1", "Plush Bear", "14.99"))

	t.Run("found", func(t *testing.T) {
		w := e.do(t, http.MethodGet, "/api/products/p1", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "Plush Bear", decodeBody(t, w)["name"])
	})

	t.Run("missing returns 404", func(t *testing.T) {
		w := e.do(t, http.MethodGet, "/api/products/nope", "")
		require.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "product not found", decodeBody(t, w)["message"])
	})
}

func TestRequireAuth(t *testing.T) {
	e := newEnv(t)

	t.Run("missing key returns 401", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/cart", nil)
		req.Header.Set("X-Session-ID", "s1")
		w := httptest.NewRecorder()
		e.mux.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("wrong key returns 401", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/cart", nil)
		req.Header.Set("api_key", "bogus")
		req.Header.Set("X-Session-ID", "s1")
		w := httptest.NewRecorder()
		e.mux.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("bearer form accepted", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/cart", nil)
		req.Header.Set("Authorization", "Bearer "+testAPIKey)
		req.Header.Set("X-Session-ID", "s1")
		w := httptest.NewRecorder()
		e.mux.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("missing session header returns 400", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/cart", nil)
		req.Header.Set("api_key", testAPIKey)
		w := httptest.NewRecorder()
		e.mux.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestCartFlow(t *testing.T) {
	e := newEnv(t,
		newTestProduct("p1", "Plush Bear", "14.99"),
		newTestProduct("p2", "Wooden Blocks", "9.99"),
	)

	// Default quantity is 1.
	w := e.do(t, http.MethodPost, "/api/cart/items", `{"productId":"p1"}`)
	require.Equal(t, http.StatusOK, w.Code)

	// Adding the same product aggregates into one line.
	w = e.do(t, http.MethodPost, "/api/cart/items", `{"productId":"p1","quantity":2}`)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	items := body["items"].([]any)
	require.Len(t, items, 1)
	line := items[0].(map[string]any)
	assert.EqualValues(t, 3, line["quantity"])
	assert.InDelta(t, 44.97, body["subtotal"], 0.001)

	w = e.do(t, http.MethodPost, "/api/cart/items", `{"productId":"p2"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.InDelta(t, 54.96, decodeBody(t, w)["subtotal"], 0.001)

	t.Run("unknown product returns 404", func(t *testing.T) {
		w := e.do(t, http.MethodPost, "/api/cart/items", `{"productId":"ghost"}`)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("set quantity replaces", func(t *testing.T) {
		w := e.do(t, http.MethodPut, "/api/cart/items/p1", `{"quantity":5}`)
		require.Equal(t, http.StatusOK, w.Code)
		assert.InDelta(t, 84.94, decodeBody(t, w)["subtotal"], 0.001)
	})

	t.Run("zero quantity rejected", func(t *testing.T) {
		w := e.do(t, http.MethodPut, "/api/cart/items/p1", `{"quantity":0}`)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("set quantity on absent line returns 404", func(t *testing.T) {
		w := e.do(t, http.MethodPut, "/api/cart/items/ghost", `{"quantity":1}`)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("remove absent line succeeds", func(t *testing.T) {
		w := e.do(t, http.MethodDelete, "/api/cart/items/ghost", "")
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("remove and clear", func(t *testing.T) {
		w := e.do(t, http.MethodDelete, "/api/cart/items/p2", "")
		require.Equal(t, http.StatusOK, w.Code)
		require.Len(t, decodeBody(t, w)["items"], 1)

		w = e.do(t, http.MethodDelete, "/api/cart", "")
		require.Equal(t, http.StatusNoContent, w.Code)

		w = e.do(t, http.MethodGet, "/api/cart", "")
		require.Equal(t, http.StatusOK, w.Code)
		body := decodeBody(t, w)
		assert.Empty(t, body["items"])
		assert.EqualValues(t, 0, body["subtotal"])
	})
}

func TestCheckoutFlow(t *testing.T) {
	e := newEnv(t,
		newTestProduct("p1", "Plush Bear", "14.99"),
		newTestProduct("p2", "Wooden Blocks", "9.99"),
	)

	w := e.do(t, http.MethodPost, "/api/addresses", addressBody)
	require.Equal(t, http.StatusCreated, w.Code)
	e.waitForAddress(t)

	e.do(t, http.MethodPost, "/api/cart/items", `{"productId":"p1","quantity":2}`)
	e.do(t, http.MethodPost, "/api/cart/items", `{"productId":"p2"}`)

	w = e.do(t, http.MethodPost, "/api/checkout", `{"paymentMethod":"Credit Card"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	order := decodeBody(t, w)
	assert.InDelta(t, 39.97, order["total"], 0.001)
	assert.Equal(t, "Credit Card", order["paymentMethod"])
	assert.Contains(t, order["address"], "12 Oak Lane")
	require.Len(t, order["items"], 2)

	// Success empties the cart.
	w = e.do(t, http.MethodGet, "/api/cart", "")
	assert.Empty(t, decodeBody(t, w)["items"])

	w = e.do(t, http.MethodGet, "/api/orders", "")
	require.Equal(t, http.StatusOK, w.Code)
	orders := decodeList(t, w)
	require.Len(t, orders, 1)
	assert.InDelta(t, 39.97, orders[0]["total"], 0.001)
}

func TestCheckoutValidation(t *testing.T) {
	t.Run("no address returns 400", func(t *testing.T) {
		e := newEnv(t, newTestProduct("p1", "Plush Bear", "14.99"))
		e.do(t, http.MethodPost, "/api/cart/items", `{"productId":"p1"}`)

		w := e.do(t, http.MethodPost, "/api/checkout", `{"paymentMethod":"Credit Card"}`)
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "no delivery address selected", decodeBody(t, w)["message"])
	})

	t.Run("empty cart returns 400", func(t *testing.T) {
		e := newEnv(t)
		e.do(t, http.MethodPost, "/api/addresses", addressBody)
		e.waitForAddress(t)

		w := e.do(t, http.MethodPost, "/api/checkout", `{"paymentMethod":"PayPal"}`)
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "cart is empty", decodeBody(t, w)["message"])
	})

	t.Run("unknown payment method returns 400", func(t *testing.T) {
		e := newEnv(t, newTestProduct("p1", "Plush Bear", "14.99"))
		e.do(t, http.MethodPost, "/api/addresses", addressBody)
		e.waitForAddress(t)
		e.do(t, http.MethodPost, "/api/cart/items", `{"productId":"p1"}`)

		w := e.do(t, http.MethodPost, "/api/checkout", `{"paymentMethod":"Bitcoin"}`)
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "invalid payment method", decodeBody(t, w)["message"])
	})

	t.Run("unknown addressId returns 409", func(t *testing.T) {
		e := newEnv(t, newTestProduct("p1", "Plush Bear", "14.99"))
		e.do(t, http.MethodPost, "/api/addresses", addressBody)
		e.waitForAddress(t)
		e.do(t, http.MethodPost, "/api/cart/items", `{"productId":"p1"}`)

		w := e.do(t, http.MethodPost, "/api/checkout", `{"addressId":"ghost","paymentMethod":"Credit Card"}`)
		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestCheckoutWriteFailure(t *testing.T) {
	e := newEnv(t, newTestProduct("p1", "Plush Bear", "14.99"))
	e.do(t, http.MethodPost, "/api/addresses", addressBody)
	e.waitForAddress(t)
	e.do(t, http.MethodPost, "/api/cart/items", `{"productId":"p1","quantity":2}`)

	e.store.FailWrites(assert.AnError)
	w := e.do(t, http.MethodPost, "/api/checkout", `{"paymentMethod":"Credit Card"}`)
	require.Equal(t, http.StatusBadGateway, w.Code)

	// The cart survives the failed submission; retry succeeds.
	e.store.FailWrites(nil)
	w = e.do(t, http.MethodGet, "/api/cart", "")
	require.Len(t, decodeBody(t, w)["items"], 1)

	w = e.do(t, http.MethodPost, "/api/checkout", `{"paymentMethod":"Credit Card"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.InDelta(t, 29.98, decodeBody(t, w)["total"], 0.001)
}

func TestAddresses(t *testing.T) {
	e := newEnv(t)

	t.Run("missing fields rejected", func(t *testing.T) {
		w := e.do(t, http.MethodPost, "/api/addresses", `{"label":"Home"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	w := e.do(t, http.MethodPost, "/api/addresses", addressBody)
	require.Equal(t, http.StatusCreated, w.Code)
	first := decodeBody(t, w)
	assert.Equal(t, true, first["isDefault"], "first address becomes the default")

	w = e.do(t, http.MethodPost, "/api/addresses",
		`{"label":"Work","street":"90 Pine Road","city":"Springfield","postalCode":"62705","phone":"555-0102"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	second := decodeBody(t, w)
	assert.Equal(t, false, second["isDefault"])

	w = e.do(t, http.MethodPost, "/api/addresses/"+second["id"].(string)+"/default", "")
	require.Equal(t, http.StatusNoContent, w.Code)

	w = e.do(t, http.MethodGet, "/api/addresses", "")
	require.Equal(t, http.StatusOK, w.Code)
	addrs := decodeList(t, w)
	require.Len(t, addrs, 2)
	defaults := 0
	for _, a := range addrs {
		if a["isDefault"] == true {
			defaults++
			assert.Equal(t, "Work", a["label"])
		}
	}
	assert.Equal(t, 1, defaults, "exactly one default after reassignment")

	t.Run("set default on unknown id returns 409", func(t *testing.T) {
		w := e.do(t, http.MethodPost, "/api/addresses/ghost/default", "")
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("delete", func(t *testing.T) {
		w := e.do(t, http.MethodDelete, "/api/addresses/"+first["id"].(string), "")
		require.Equal(t, http.StatusNoContent, w.Code)

		w = e.do(t, http.MethodGet, "/api/addresses", "")
		assert.Len(t, decodeList(t, w), 1)
	})
}

func TestPaymentMethods(t *testing.T) {
	e := newEnv(t)

	t.Run("last4 validated", func(t *testing.T) {
		w := e.do(t, http.MethodPost, "/api/payment-methods",
			`{"label":"Visa","last4":"12x4","expiry":"12/27"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w = e.do(t, http.MethodPost, "/api/payment-methods",
			`{"label":"Visa","last4":"12345","expiry":"12/27"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	w := e.do(t, http.MethodPost, "/api/payment-methods",
		`{"label":"Visa","last4":"4242","expiry":"12/27"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	created := decodeBody(t, w)
	assert.Equal(t, "4242", created["last4"])

	w = e.do(t, http.MethodPut, "/api/payment-methods/"+created["id"].(string),
		`{"label":"Visa Gold","last4":"4242","expiry":"01/30"}`)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = e.do(t, http.MethodGet, "/api/payment-methods", "")
	methods := decodeList(t, w)
	require.Len(t, methods, 1)
	assert.Equal(t, "Visa Gold", methods[0]["label"])
	assert.Equal(t, "01/30", methods[0]["expiry"])

	w = e.do(t, http.MethodDelete, "/api/payment-methods/"+created["id"].(string), "")
	require.Equal(t, http.StatusNoContent, w.Code)

	w = e.do(t, http.MethodGet, "/api/payment-methods", "")
	assert.Empty(t, decodeList(t, w))
}

func TestPaymentMethodSelection(t *testing.T) {
	e := newEnv(t)
	s, err := e.sessions.Get("s1", testUserID)
	require.NoError(t, err)

	w := e.do(t, http.MethodPost, "/api/payment-methods",
		`{"label":"Visa","last4":"4242","expiry":"12/27"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	visa := decodeBody(t, w)["id"].(string)

	// The first saved method is auto-selected once the snapshot lands.
	waitFor(t, func() bool {
		_, ok := s.Payments.Selected()
		return ok
	})
	w = e.do(t, http.MethodGet, "/api/payment-methods/selected", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Visa", decodeBody(t, w)["label"])

	w = e.do(t, http.MethodPost, "/api/payment-methods",
		`{"label":"Amex","last4":"0005","expiry":"03/29"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	amex := decodeBody(t, w)["id"].(string)
	waitFor(t, func() bool { return len(s.Payments.Items()) == 2 })

	w = e.do(t, http.MethodPost, "/api/payment-methods/"+amex+"/select", "")
	require.Equal(t, http.StatusNoContent, w.Code)
	w = e.do(t, http.MethodGet, "/api/payment-methods/selected", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Amex", decodeBody(t, w)["label"])

	// Deleting the chosen method clears the selection, and the remaining
	// method is not silently picked in its place.
	w = e.do(t, http.MethodDelete, "/api/payment-methods/"+amex, "")
	require.Equal(t, http.StatusNoContent, w.Code)
	waitFor(t, func() bool {
		_, ok := s.Payments.Selected()
		return !ok
	})
	w = e.do(t, http.MethodGet, "/api/payment-methods/selected", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Selecting an id that is gone conflicts; re-picking the survivor works.
	w = e.do(t, http.MethodPost, "/api/payment-methods/"+amex+"/select", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	w = e.do(t, http.MethodPost, "/api/payment-methods/"+visa+"/select", "")
	require.Equal(t, http.StatusNoContent, w.Code)
	w = e.do(t, http.MethodGet, "/api/payment-methods/selected", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Visa", decodeBody(t, w)["label"])
}
