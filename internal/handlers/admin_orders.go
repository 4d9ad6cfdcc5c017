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

// AdminOrderHandlers exposes order fulfilment operations to staff.
type AdminOrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewAdminOrderHandlers constructs staff order handlers.
func NewAdminOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *AdminOrderHandlers {
	return &AdminOrderHandlers{authn: authn, orders: orders}
}

// Routes registers /admin/orders endpoints.
func (h *AdminOrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Route("/orders", func(rt chi.Router) {
		if h.authn != nil {
			rt.Use(h.authn.RequireFirebaseAuth(auth.RoleStaff, auth.RoleAdmin))
		}
		rt.Get("/", h.listOrders)
		rt.Get("/{orderID}", h.getOrder)
		rt.Post("/{orderID}:transition", h.transitionStatus)
		rt.Post("/{orderID}:cancel", h.cancelOrder)
		rt.Post("/{orderID}/items/{itemID}:cancel", h.cancelItem)
		rt.Post("/{orderID}/items/{itemID}:resolve-return", h.resolveReturn)
	})
}

type transitionRequest struct {
	Status  string `json:"status"`
	Comment string `json:"comment"`
}

type resolveReturnRequest struct {
	Approve *bool  `json:"approve"`
	Comment string `json:"comment"`
}

func (h *AdminOrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order")
		return
	}
	if _, ok := requireUserID(ctx, w); !ok {
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
		UserID:     strings.TrimSpace(query.Get("user_id")),
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

func (h *AdminOrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order")
		return
	}
	staffID, ok := requireUserID(ctx, w)
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(ctx, services.OrderQuery{
		OrderID: strings.TrimSpace(chi.URLParam(r, "orderID")),
		Actor:   services.Actor{UserID: staffID, Admin: true},
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminOrderHandlers) transitionStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order")
		return
	}
	staffID, ok := requireUserID(ctx, w)
	if !ok {
		return
	}
	var req transitionRequest
	if err := httpx.DecodeJSON(r, &req, httpx.DefaultBodyLimit); err != nil {
		httpx.WriteDecodeError(w, r, err)
		return
	}
	target := domain.OrderStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	if _, known := knownOrderStatuses[target]; !known {
		writeInvalidRequest(ctx, w, "status must be a known order status")
		return
	}

	order, err := h.orders.TransitionStatus(ctx, services.OrderStatusTransitionCommand{
		OrderID:      strings.TrimSpace(chi.URLParam(r, "orderID")),
		TargetStatus: target,
		Comment:      req.Comment,
		ActorID:      staffID,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminOrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order")
		return
	}
	staffID, ok := requireUserID(ctx, w)
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
		Actor:   services.Actor{UserID: staffID, Admin: true},
		Reason:  req.Reason,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminOrderHandlers) cancelItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order")
		return
	}
	staffID, ok := requireUserID(ctx, w)
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
		Actor:   services.Actor{UserID: staffID, Admin: true},
		Reason:  req.Reason,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminOrderHandlers) resolveReturn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order")
		return
	}
	staffID, ok := requireUserID(ctx, w)
	if !ok {
		return
	}
	var req resolveReturnRequest
	if err := httpx.DecodeJSON(r, &req, httpx.DefaultBodyLimit); err != nil {
		httpx.WriteDecodeError(w, r, err)
		return
	}
	if req.Approve == nil {
		writeInvalidRequest(ctx, w, "approve is required")
		return
	}

	order, err := h.orders.ResolveReturn(ctx, services.ResolveReturnCommand{
		OrderID: strings.TrimSpace(chi.URLParam(r, "orderID")),
		ItemID:  strings.TrimSpace(chi.URLParam(r, "itemID")),
		Approve: *req.Approve,
		Comment: req.Comment,
		ActorID: staffID,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}
