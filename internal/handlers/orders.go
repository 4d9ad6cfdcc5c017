package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hanko-field/storefront/internal/platform/auth"
	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/services"
)

// OrderHandlers exposes the shopper's orders: listing, cancellation, returns and payment retries.
type OrderHandlers struct {
	authn       *auth.Authenticator
	orders      services.OrderService
	checkout    services.CheckoutService
	idempotency func(http.Handler) http.Handler
}

// NewOrderHandlers constructs order handlers. idempotency guards payment retries and may be nil.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, checkout services.CheckoutService, idempotency func(http.Handler) http.Handler) *OrderHandlers {
	return &OrderHandlers{
		authn:       authn,
		orders:      orders,
		checkout:    checkout,
		idempotency: idempotency,
	}
}

// Routes registers the /me/orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Post("/{orderID}:cancel", h.cancelOrder)
	r.Post("/{orderID}/items/{itemID}:cancel", h.cancelItem)
	r.Post("/{orderID}/items/{itemID}:return", h.requestReturn)
	if h.idempotency != nil {
		r.With(h.idempotency).Post("/{orderID}:retry-payment", h.retryPayment)
	} else {
		r.Post("/{orderID}:retry-payment", h.retryPayment)
	}
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order")
		return
	}
	userID, ok := requireUserID(ctx, w)
	if !ok {
		return
	}

	query := r.URL.Query()
	statuses, err := parseOrderStatuses(query["status"])
	if err != nil {
		writeInvalidRequest(ctx, w, err.Error())
		return
	}
	from, to, err := parseDateRange(query.Get("from"), query.Get("to"))
	if err != nil {
		writeInvalidRequest(ctx, w, err.Error())
		return
	}
	page, ok := parsePagination(ctx, w, r)
	if !ok {
		return
	}

	result, err := h.orders.ListOrders(ctx, services.OrderListFilter{
		UserID:     userID,
		Statuses:   statuses,
		From:       from,
		To:         to,
		Pagination: page,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildOrderList(result))
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order")
		return
	}
	userID, ok := requireUserID(ctx, w)
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(ctx, services.OrderQuery{
		OrderID: strings.TrimSpace(chi.URLParam(r, "orderID")),
		Actor:   services.Actor{UserID: userID},
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order")
		return
	}
	userID, ok := requireUserID(ctx, w)
	if !ok {
		return
	}
	var req reasonRequest
	if err := httpx.DecodeJSON(r, &req, httpx.DefaultBodyLimit); err != nil {
		httpx.WriteDecodeError(w, r, err)
		return
	}

	order, err := h.orders.CancelOrder(ctx, services.CancelOrderCommand{
		OrderID: strings.TrimSpace(chi.URLParam(r, "orderID")),
		Actor:   services.Actor{UserID: userID},
		Reason:  req.Reason,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) cancelItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order")
		return
	}
	userID, ok := requireUserID(ctx, w)
	if !ok {
		return
	}
	var req reasonRequest
	if err := httpx.DecodeJSON(r, &req, httpx.DefaultBodyLimit); err != nil {
		httpx.WriteDecodeError(w, r, err)
		return
	}

	order, err := h.orders.CancelItem(ctx, services.CancelItemCommand{
		OrderID: strings.TrimSpace(chi.URLParam(r, "orderID")),
		ItemID:  strings.TrimSpace(chi.URLParam(r, "itemID")),
		Actor:   services.Actor{UserID: userID},
		Reason:  req.Reason,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) requestReturn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order")
		return
	}
	userID, ok := requireUserID(ctx, w)
	if !ok {
		return
	}
	var req reasonRequest
	if err := httpx.DecodeJSON(r, &req, httpx.DefaultBodyLimit); err != nil {
		httpx.WriteDecodeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Reason) == "" {
		writeInvalidRequest(ctx, w, "reason is required")
		return
	}

	order, err := h.orders.RequestReturn(ctx, services.ReturnRequestCommand{
		OrderID: strings.TrimSpace(chi.URLParam(r, "orderID")),
		ItemID:  strings.TrimSpace(chi.URLParam(r, "itemID")),
		UserID:  userID,
		Reason:  req.Reason,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusAccepted, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) retryPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		writeUnavailable(ctx, w, "checkout")
		return
	}
	userID, ok := requireUserID(ctx, w)
	if !ok {
		return
	}

	result, err := h.checkout.RetryPayment(ctx, services.RetryPaymentCommand{
		UserID:  userID,
		OrderID: strings.TrimSpace(chi.URLParam(r, "orderID")),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, checkoutResponse{
		Order:        buildOrderPayload(result.Order),
		ClientSecret: result.ClientSecret,
	})
}
