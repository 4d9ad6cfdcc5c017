package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/services"
)

func cartRouter(h *CartHandlers) chi.Router {
	r := chi.NewRouter()
	r.Route("/me/cart", h.Routes)
	return r
}

func TestCartHandlers_GetCart(t *testing.T) {
	updated := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	carts := &stubCartService{getFunc: func(_ context.Context, userID string) (services.CartView, error) {
		return services.CartView{
			Cart: services.Cart{
				UserID: userID,
				Items: []services.CartItem{
					{ProductID: "prd_1", Quantity: 2, UnitPrice: 1500},
				},
				Coupon:    &domain.CartCoupon{Code: "SPRING10", Discount: 300},
				UpdatedAt: updated,
			},
			Subtotal: 3000,
			Discount: 300,
			Total:    2700,
		}, nil
	}}

	rr := httptest.NewRecorder()
	cartRouter(NewCartHandlers(nil, carts)).ServeHTTP(rr, newAuthedRequest(http.MethodGet, "/me/cart", "", "user-1"))

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, updated.Format(http.TimeFormat), rr.Header().Get("Last-Modified"))
	cart := decodeBody(t, rr)["cart"].(map[string]any)
	require.Equal(t, "user-1", cart["user_id"])
	require.EqualValues(t, 3000, cart["subtotal"])
	require.EqualValues(t, 2700, cart["total"])
	items := cart["items"].([]any)
	require.Len(t, items, 1)
	require.EqualValues(t, 3000, items[0].(map[string]any)["line_total"])
	require.Equal(t, "SPRING10", cart["coupon"].(map[string]any)["code"])
}

func TestCartHandlers_RequiresIdentity(t *testing.T) {
	rr := httptest.NewRecorder()
	cartRouter(NewCartHandlers(nil, &stubCartService{})).ServeHTTP(rr, newAuthedRequest(http.MethodGet, "/me/cart", "", ""))

	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Equal(t, "unauthenticated", decodeBody(t, rr)["error"])
}

func TestCartHandlers_AddItem(t *testing.T) {
	var captured services.CartItemCommand
	carts := &stubCartService{addFunc: func(_ context.Context, cmd services.CartItemCommand) (services.CartView, error) {
		captured = cmd
		return services.CartView{Cart: services.Cart{UserID: cmd.UserID}}, nil
	}}
	router := cartRouter(NewCartHandlers(nil, carts))

	t.Run("valid", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, newAuthedRequest(http.MethodPost, "/me/cart/items", `{"product_id":" prd_1 ","quantity":3}`, "user-1"))

		require.Equal(t, http.StatusOK, rr.Code)
		require.Equal(t, services.CartItemCommand{UserID: "user-1", ProductID: "prd_1", Quantity: 3}, captured)
	})

	t.Run("non-positive quantity", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, newAuthedRequest(http.MethodPost, "/me/cart/items", `{"product_id":"prd_1","quantity":0}`, "user-1"))

		require.Equal(t, http.StatusBadRequest, rr.Code)
		require.Equal(t, "invalid_request", decodeBody(t, rr)["error"])
	})

	t.Run("out of stock", func(t *testing.T) {
		carts.addFunc = func(context.Context, services.CartItemCommand) (services.CartView, error) {
			return services.CartView{}, fmt.Errorf("add prd_1: %w", services.ErrInsufficientStock)
		}
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, newAuthedRequest(http.MethodPost, "/me/cart/items", `{"product_id":"prd_1","quantity":99}`, "user-1"))

		require.Equal(t, http.StatusConflict, rr.Code)
		require.Equal(t, "insufficient_stock", decodeBody(t, rr)["error"])
	})
}

func TestCartHandlers_UpdateAndRemoveItem(t *testing.T) {
	var updated services.CartItemCommand
	var removedProduct string
	carts := &stubCartService{
		updateFunc: func(_ context.Context, cmd services.CartItemCommand) (services.CartView, error) {
			updated = cmd
			return services.CartView{}, nil
		},
		removeFunc: func(_ context.Context, _ string, productID string) (services.CartView, error) {
			removedProduct = productID
			return services.CartView{}, nil
		},
	}
	router := cartRouter(NewCartHandlers(nil, carts))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, newAuthedRequest(http.MethodPut, "/me/cart/items/prd_9", `{"quantity":4}`, "user-1"))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "prd_9", updated.ProductID)
	require.Equal(t, 4, updated.Quantity)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, newAuthedRequest(http.MethodPut, "/me/cart/items/prd_9", `{"quantity":0}`, "user-1"))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, newAuthedRequest(http.MethodDelete, "/me/cart/items/prd_9", "", "user-1"))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "prd_9", removedProduct)
}

func TestCartHandlers_ApplyCouponRejected(t *testing.T) {
	cases := []struct {
		reason string
		status int
	}{
		{reason: services.CouponReasonNotFound, status: http.StatusNotFound},
		{reason: services.CouponReasonUsageLimit, status: http.StatusConflict},
		{reason: services.CouponReasonExpired, status: http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.reason, func(t *testing.T) {
			carts := &stubCartService{applyCouponFunc: func(_ context.Context, _ string, code string) (services.CartView, error) {
				return services.CartView{}, &services.CouponRejectedError{Code: code, Reason: tc.reason}
			}}
			rr := httptest.NewRecorder()
			cartRouter(NewCartHandlers(nil, carts)).ServeHTTP(rr, newAuthedRequest(http.MethodPut, "/me/cart/coupon", `{"code":"SPRING10"}`, "user-1"))

			require.Equal(t, tc.status, rr.Code)
			body := decodeBody(t, rr)
			require.Equal(t, "coupon_rejected", body["error"])
			require.Equal(t, tc.reason, body["reason"])
		})
	}
}

func TestCartHandlers_ApplyCouponRateLimited(t *testing.T) {
	calls := 0
	carts := &stubCartService{applyCouponFunc: func(context.Context, string, string) (services.CartView, error) {
		calls++
		return services.CartView{}, nil
	}}
	router := cartRouter(NewCartHandlers(nil, carts))

	for i := 0; i < defaultCouponAttemptsPerWindow; i++ {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, newAuthedRequest(http.MethodPut, "/me/cart/coupon", `{"code":"GUESS"}`, "user-1"))
		require.Equal(t, http.StatusOK, rr.Code)
	}

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, newAuthedRequest(http.MethodPut, "/me/cart/coupon", `{"code":"GUESS"}`, "user-1"))
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	require.NotEmpty(t, rr.Header().Get("Retry-After"))
	require.Equal(t, defaultCouponAttemptsPerWindow, calls)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, newAuthedRequest(http.MethodPut, "/me/cart/coupon", `{"code":"GUESS"}`, "user-2"))
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestCartHandlers_RemoveCoupon(t *testing.T) {
	removed := false
	carts := &stubCartService{removeCouponFunc: func(_ context.Context, userID string) (services.CartView, error) {
		removed = true
		return services.CartView{Cart: services.Cart{UserID: userID}}, nil
	}}

	rr := httptest.NewRecorder()
	cartRouter(NewCartHandlers(nil, carts)).ServeHTTP(rr, newAuthedRequest(http.MethodDelete, "/me/cart/coupon", "", "user-1"))

	require.Equal(t, http.StatusOK, rr.Code)
	require.True(t, removed)
}

func TestCartHandlers_ServiceUnavailable(t *testing.T) {
	rr := httptest.NewRecorder()
	cartRouter(NewCartHandlers(nil, nil)).ServeHTTP(rr, newAuthedRequest(http.MethodGet, "/me/cart", "", "user-1"))

	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.Equal(t, "cart_service_unavailable", decodeBody(t, rr)["error"])
}
