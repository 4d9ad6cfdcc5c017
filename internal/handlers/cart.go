package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hanko-field/storefront/internal/platform/auth"
	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/services"
)

// CartHandlers exposes authenticated cart endpoints for the current user.
type CartHandlers struct {
	authn         *auth.Authenticator
	carts         services.CartService
	couponLimiter *windowLimiter
}

// NewCartHandlers constructs handlers enforcing Firebase authentication before invoking the cart
// service. Coupon attempts are throttled per user to slow down code guessing.
func NewCartHandlers(authn *auth.Authenticator, carts services.CartService) *CartHandlers {
	return &CartHandlers{
		authn:         authn,
		carts:         carts,
		couponLimiter: newWindowLimiter(defaultCouponAttemptsPerWindow, defaultCouponAttemptWindow, time.Now),
	}
}

// Routes wires the /me/cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.getCart)
	r.Post("/items", h.addItem)
	r.Put("/items/{productID}", h.updateItem)
	r.Delete("/items/{productID}", h.removeItem)
	r.With(perUserLimit(h.couponLimiter, time.Now)).Put("/coupon", h.applyCoupon)
	r.Delete("/coupon", h.removeCoupon)
}

type cartItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type applyCouponRequest struct {
	Code string `json:"code"`
}

type cartResponse struct {
	Cart cartPayload `json:"cart"`
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, func(ctx context.Context, userID string) (services.CartView, bool, error) {
		view, err := h.carts.GetCart(ctx, userID)
		return view, true, err
	})
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, func(ctx context.Context, userID string) (services.CartView, bool, error) {
		var req cartItemRequest
		if err := httpx.DecodeJSON(r, &req, httpx.DefaultBodyLimit); err != nil {
			httpx.WriteDecodeError(w, r, err)
			return services.CartView{}, false, nil
		}
		if strings.TrimSpace(req.ProductID) == "" || req.Quantity <= 0 {
			writeInvalidRequest(ctx, w, "product_id and a positive quantity are required")
			return services.CartView{}, false, nil
		}
		view, err := h.carts.AddItem(ctx, services.CartItemCommand{
			UserID:    userID,
			ProductID: strings.TrimSpace(req.ProductID),
			Quantity:  req.Quantity,
		})
		return view, true, err
	})
}

func (h *CartHandlers) updateItem(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, func(ctx context.Context, userID string) (services.CartView, bool, error) {
		var req cartItemRequest
		if err := httpx.DecodeJSON(r, &req, httpx.DefaultBodyLimit); err != nil {
			httpx.WriteDecodeError(w, r, err)
			return services.CartView{}, false, nil
		}
		if req.Quantity <= 0 {
			writeInvalidRequest(ctx, w, "quantity must be positive; use DELETE to remove an item")
			return services.CartView{}, false, nil
		}
		view, err := h.carts.UpdateItemQuantity(ctx, services.CartItemCommand{
			UserID:    userID,
			ProductID: strings.TrimSpace(chi.URLParam(r, "productID")),
			Quantity:  req.Quantity,
		})
		return view, true, err
	})
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, func(ctx context.Context, userID string) (services.CartView, bool, error) {
		view, err := h.carts.RemoveItem(ctx, userID, strings.TrimSpace(chi.URLParam(r, "productID")))
		return view, true, err
	})
}

func (h *CartHandlers) applyCoupon(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, func(ctx context.Context, userID string) (services.CartView, bool, error) {
		var req applyCouponRequest
		if err := httpx.DecodeJSON(r, &req, httpx.DefaultBodyLimit); err != nil {
			httpx.WriteDecodeError(w, r, err)
			return services.CartView{}, false, nil
		}
		if strings.TrimSpace(req.Code) == "" {
			writeInvalidRequest(ctx, w, "code is required")
			return services.CartView{}, false, nil
		}
		view, err := h.carts.ApplyCoupon(ctx, userID, req.Code)
		return view, true, err
	})
}

func (h *CartHandlers) removeCoupon(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, func(ctx context.Context, userID string) (services.CartView, bool, error) {
		view, err := h.carts.RemoveCoupon(ctx, userID)
		return view, true, err
	})
}

// serve runs op for the authenticated user. op returns false when it already wrote a response.
func (h *CartHandlers) serve(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, userID string) (services.CartView, bool, error)) {
	ctx := r.Context()
	if h.carts == nil {
		writeUnavailable(ctx, w, "cart")
		return
	}
	userID, ok := requireUserID(ctx, w)
	if !ok {
		return
	}

	view, handled, err := op(ctx, userID)
	if !handled {
		return
	}
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	setNoStore(w)
	if !view.Cart.UpdatedAt.IsZero() {
		w.Header().Set("Last-Modified", view.Cart.UpdatedAt.UTC().Format(http.TimeFormat))
	}
	httpx.WriteJSON(w, http.StatusOK, cartResponse{Cart: buildCartPayload(view)})
}
