// Package handler implements the JSON HTTP surface over the storefront core:
// catalog reads, session cart mutations, checkout submission, and account
// data (addresses, payment methods, order history).
package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/playtopia/storefront/internal/auth"
	"github.com/playtopia/storefront/internal/domain/account"
	"github.com/playtopia/storefront/internal/domain/cart"
	"github.com/playtopia/storefront/internal/domain/catalog"
	"github.com/playtopia/storefront/internal/domain/checkout"
	"github.com/playtopia/storefront/internal/session"
	"github.com/playtopia/storefront/internal/store"
)

// maxBodyBytes caps request bodies; every payload here is small.
const maxBodyBytes = 64 << 10

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// ImageBaseURL is prepended to relative image paths in product responses.
	// When empty, image paths are returned as stored.
	ImageBaseURL string
}

// Handler serves the storefront API, delegating to the domain services.
type Handler struct {
	products catalog.Repository
	accounts *account.Service
	sessions *session.Manager
	store    store.Store
	authn    *auth.Authenticator
	identity auth.Provider

	imageBaseURL string
}

// New constructs a Handler with the required dependencies.
func New(
	cfg Config,
	products catalog.Repository,
	accounts *account.Service,
	sessions *session.Manager,
	st store.Store,
	authn *auth.Authenticator,
) *Handler {
	return &Handler{
		products:     products,
		accounts:     accounts,
		sessions:     sessions,
		store:        st,
		authn:        authn,
		identity:     auth.ContextProvider{},
		imageBaseURL: cfg.ImageBaseURL,
	}
}

// Routes registers all API routes on mux. Catalog reads are public; the rest
// require an API key.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/products", h.ListProducts)
	mux.HandleFunc("GET /api/products/{id}", h.GetProduct)

	secured := h.requireAuth

	mux.HandleFunc("GET /api/cart", secured(h.GetCart))
	mux.HandleFunc("POST /api/cart/items", secured(h.AddCartItem))
	mux.HandleFunc("PUT /api/cart/items/{id}", secured(h.SetCartItemQuantity))
	mux.HandleFunc("DELETE /api/cart/items/{id}", secured(h.RemoveCartItem))
	mux.HandleFunc("DELETE /api/cart", secured(h.ClearCart))

	mux.HandleFunc("POST /api/checkout", secured(h.Checkout))
	mux.HandleFunc("GET /api/orders", secured(h.ListOrders))

	mux.HandleFunc("GET /api/addresses", secured(h.ListAddresses))
	mux.HandleFunc("POST /api/addresses", secured(h.CreateAddress))
	mux.HandleFunc("DELETE /api/addresses/{id}", secured(h.DeleteAddress))
	mux.HandleFunc("POST /api/addresses/{id}/default", secured(h.SetDefaultAddress))

	mux.HandleFunc("GET /api/payment-methods", secured(h.ListPaymentMethods))
	mux.HandleFunc("POST /api/payment-methods", secured(h.CreatePaymentMethod))
	mux.HandleFunc("PUT /api/payment-methods/{id}", secured(h.UpdatePaymentMethod))
	mux.HandleFunc("DELETE /api/payment-methods/{id}", secured(h.DeletePaymentMethod))
	mux.HandleFunc("GET /api/payment-methods/selected", secured(h.GetSelectedPaymentMethod))
	mux.HandleFunc("POST /api/payment-methods/{id}/select", secured(h.SelectPaymentMethod))
}

// sessionFor resolves the caller's session from the X-Session-ID header.
func (h *Handler) sessionFor(r *http.Request) (*session.Session, error) {
	id := r.Header.Get("X-Session-ID")
	if id == "" {
		return nil, errBadRequest("X-Session-ID header required")
	}
	userID, ok := h.identity.CurrentUserID(r.Context())
	if !ok {
		return nil, auth.ErrUnauthorized
	}
	return h.sessions.Get(id, userID)
}

func readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, errBadRequest("read request body")
	}
	return body, nil
}

// apiError is a caller-visible error with an HTTP status.
type apiError struct {
	status  int
	message string
}

func (e *apiError) Error() string { return e.message }

func errBadRequest(msg string) error {
	return &apiError{status: http.StatusBadRequest, message: msg}
}

func errNotFound(msg string) error {
	return &apiError{status: http.StatusNotFound, message: msg}
}

// writeJSON sends an encoded jx buffer.
func writeJSON(w http.ResponseWriter, status int, e *jx.Encoder) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// writeError maps domain errors to {code, message} responses. Unexpected
// errors are logged and returned as 500 without internal detail.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	message := "internal error"

	var (
		aErr  *apiError
		iqErr *cart.InvalidQuantityError
		wErr  *store.WriteError
	)
	switch {
	case errors.As(err, &aErr):
		status, message = aErr.status, aErr.message
	case errors.As(err, &iqErr):
		status, message = http.StatusUnprocessableEntity, iqErr.Error()
	case errors.Is(err, cart.ErrLineNotFound):
		status, message = http.StatusNotFound, "cart line not found"
	case errors.Is(err, catalog.ErrNotFound):
		status, message = http.StatusNotFound, "product not found"
	case errors.Is(err, checkout.ErrEmptyCart):
		status, message = http.StatusBadRequest, "cart is empty"
	case errors.Is(err, checkout.ErrNoAddress):
		status, message = http.StatusBadRequest, "no delivery address selected"
	case errors.Is(err, checkout.ErrInvalidPaymentMethod):
		status, message = http.StatusBadRequest, "invalid payment method"
	case errors.Is(err, checkout.ErrSubmitInFlight):
		status, message = http.StatusConflict, "submission already in progress"
	case errors.Is(err, account.ErrStaleSelection):
		status, message = http.StatusConflict, "selection no longer exists"
	case errors.As(err, &wErr):
		// Recoverable: state is unchanged, an explicit retry is safe.
		status, message = http.StatusBadGateway, "store write failed, retry"
	case errors.Is(err, auth.ErrUnauthorized):
		status, message = http.StatusUnauthorized, "unauthorized"
	default:
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
	}

	e := &jx.Encoder{}
	e.ObjStart()
	e.FieldStart("code")
	e.Int(status)
	e.FieldStart("message")
	e.Str(message)
	e.ObjEnd()
	writeJSON(w, status, e)
}
