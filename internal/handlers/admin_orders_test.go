package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/services"
)

func adminOrdersRouter(h *AdminOrderHandlers) chi.Router {
	r := chi.NewRouter()
	r.Route("/admin", h.Routes)
	return r
}

func TestAdminOrderHandlers_ListAndGet(t *testing.T) {
	var listed services.OrderListFilter
	var queried services.OrderQuery
	orders := &stubOrderService{
		listFunc: func(_ context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
			listed = filter
			return domain.CursorPage[services.Order]{Items: []services.Order{sampleOrder("ord_1")}}, nil
		},
		getFunc: func(_ context.Context, query services.OrderQuery) (services.Order, error) {
			queried = query
			return sampleOrder(query.OrderID), nil
		},
	}
	router := adminOrdersRouter(NewAdminOrderHandlers(nil, orders))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, newAuthedRequest(http.MethodGet, "/admin/orders?user_id=user-9&status=delivered", "", "staff-1", "staff"))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "user-9", listed.UserID)
	require.Equal(t, []services.OrderStatus{domain.OrderStatusDelivered}, listed.Statuses)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, newAuthedRequest(http.MethodGet, "/admin/orders/ord_3", "", "staff-1", "staff"))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "ord_3", queried.OrderID)
	require.True(t, queried.Actor.Admin)
}

func TestAdminOrderHandlers_TransitionStatus(t *testing.T) {
	var captured services.OrderStatusTransitionCommand
	orders := &stubOrderService{transitionFunc: func(_ context.Context, cmd services.OrderStatusTransitionCommand) (services.Order, error) {
		captured = cmd
		if cmd.TargetStatus == domain.OrderStatusPending {
			return services.Order{}, services.ErrInvalidTransition
		}
		order := sampleOrder(cmd.OrderID)
		order.Status = cmd.TargetStatus
		return order, nil
	}}
	router := adminOrdersRouter(NewAdminOrderHandlers(nil, orders))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, newAuthedRequest(http.MethodPost, "/admin/orders/ord_1:transition", `{"status":"shipped","comment":"handed to carrier"}`, "staff-1", "staff"))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, services.OrderStatusTransitionCommand{
		OrderID:      "ord_1",
		TargetStatus: domain.OrderStatusShipped,
		Comment:      "handed to carrier",
		ActorID:      "staff-1",
	}, captured)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, newAuthedRequest(http.MethodPost, "/admin/orders/ord_1:transition", `{"status":"pending"}`, "staff-1", "staff"))
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, newAuthedRequest(http.MethodPost, "/admin/orders/ord_1:transition", `{"status":"teleported"}`, "staff-1", "staff"))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAdminOrderHandlers_ResolveReturn(t *testing.T) {
	var captured services.ResolveReturnCommand
	orders := &stubOrderService{resolveFunc: func(_ context.Context, cmd services.ResolveReturnCommand) (services.Order, error) {
		captured = cmd
		return sampleOrder(cmd.OrderID), nil
	}}
	router := adminOrdersRouter(NewAdminOrderHandlers(nil, orders))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, newAuthedRequest(http.MethodPost, "/admin/orders/ord_1/items/itm_1:resolve-return", `{"approve":true,"comment":"ok"}`, "staff-1", "staff"))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, services.ResolveReturnCommand{OrderID: "ord_1", ItemID: "itm_1", Approve: true, Comment: "ok", ActorID: "staff-1"}, captured)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, newAuthedRequest(http.MethodPost, "/admin/orders/ord_1/items/itm_1:resolve-return", `{"comment":"?"}`, "staff-1", "staff"))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAdminOrderHandlers_CancelItemAsAdmin(t *testing.T) {
	var captured services.CancelItemCommand
	orders := &stubOrderService{cancelItemFunc: func(_ context.Context, cmd services.CancelItemCommand) (services.Order, error) {
		captured = cmd
		return sampleOrder(cmd.OrderID), nil
	}}

	rr := httptest.NewRecorder()
	adminOrdersRouter(NewAdminOrderHandlers(nil, orders)).ServeHTTP(rr,
		newAuthedRequest(http.MethodPost, "/admin/orders/ord_1/items/itm_1:cancel", `{"reason":"out of stock"}`, "staff-1", "staff"))

	require.Equal(t, http.StatusOK, rr.Code)
	require.True(t, captured.Actor.Admin)
	require.Equal(t, "itm_1", captured.ItemID)
	require.Equal(t, "out of stock", captured.Reason)
}
