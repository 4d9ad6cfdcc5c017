package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/platform/auth"
	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/services"
)

// CheckoutHandlers turns the current cart into an order. The endpoint requires an
// Idempotency-Key when an idempotency middleware is configured.
type CheckoutHandlers struct {
	authn       *auth.Authenticator
	checkout    services.CheckoutService
	idempotency func(http.Handler) http.Handler
}

// NewCheckoutHandlers constructs checkout handlers. idempotency may be nil.
func NewCheckoutHandlers(authn *auth.Authenticator, checkout services.CheckoutService, idempotency func(http.Handler) http.Handler) *CheckoutHandlers {
	return &CheckoutHandlers{authn: authn, checkout: checkout, idempotency: idempotency}
}

// Routes wires POST /me/checkout.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	if h.idempotency != nil {
		r.With(h.idempotency).Post("/", h.createCheckout)
		return
	}
	r.Post("/", h.createCheckout)
}

type checkoutRequest struct {
	AddressID     string `json:"address_id"`
	PaymentMethod string `json:"payment_method"`
}

type checkoutResponse struct {
	Order        orderPayload `json:"order"`
	ClientSecret string       `json:"client_secret,omitempty"`
}

func (h *CheckoutHandlers) createCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		writeUnavailable(ctx, w, "checkout")
		return
	}
	userID, ok := requireUserID(ctx, w)
	if !ok {
		return
	}

	var req checkoutRequest
	if err := httpx.DecodeJSON(r, &req, httpx.DefaultBodyLimit); err != nil {
		httpx.WriteDecodeError(w, r, err)
		return
	}
	method := domain.PaymentMethod(strings.ToLower(strings.TrimSpace(req.PaymentMethod)))
	if !method.Valid() {
		writeInvalidRequest(ctx, w, "payment_method must be one of cod, online, wallet")
		return
	}
	if strings.TrimSpace(req.AddressID) == "" {
		writeInvalidRequest(ctx, w, "address_id is required")
		return
	}

	result, err := h.checkout.Checkout(ctx, services.CheckoutCommand{
		UserID:        userID,
		AddressID:     strings.TrimSpace(req.AddressID),
		PaymentMethod: method,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.Header().Set("Location", "/api/v1/me/orders/"+result.Order.ID)
	httpx.WriteJSON(w, http.StatusCreated, checkoutResponse{
		Order:        buildOrderPayload(result.Order),
		ClientSecret: result.ClientSecret,
	})
}
