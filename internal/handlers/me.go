package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hanko-field/storefront/internal/platform/auth"
	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/services"
)

// MeHandlers exposes the wallet and coupon discovery endpoints for the current user.
type MeHandlers struct {
	authn   *auth.Authenticator
	wallets services.WalletLedger
	coupons services.CouponService
	carts   services.CartService
}

// NewMeHandlers constructs handlers enforcing Firebase authentication. carts is used to
// derive the cart total when the client does not pass one.
func NewMeHandlers(authn *auth.Authenticator, wallets services.WalletLedger, coupons services.CouponService, carts services.CartService) *MeHandlers {
	return &MeHandlers{
		authn:   authn,
		wallets: wallets,
		coupons: coupons,
		carts:   carts,
	}
}

// Routes wires /me/wallet and /me/coupons onto the provided router.
func (h *MeHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Group(func(r chi.Router) {
		if h.authn != nil {
			r.Use(h.authn.RequireFirebaseAuth())
		}
		r.Get("/wallet", h.getWallet)
		r.Get("/wallet/transactions", h.listWalletTransactions)
		r.Get("/coupons/available", h.listAvailableCoupons)
	})
}

func (h *MeHandlers) getWallet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.wallets == nil {
		writeUnavailable(ctx, w, "wallet")
		return
	}
	userID, ok := requireUserID(ctx, w)
	if !ok {
		return
	}

	wallet, err := h.wallets.GetWallet(ctx, userID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	setNoStore(w)
	httpx.WriteJSON(w, http.StatusOK, walletResponse{Wallet: walletPayload{
		UserID:    userID,
		Balance:   wallet.Balance,
		UpdatedAt: formatTime(wallet.UpdatedAt),
	}})
}

func (h *MeHandlers) listWalletTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.wallets == nil {
		writeUnavailable(ctx, w, "wallet")
		return
	}
	userID, ok := requireUserID(ctx, w)
	if !ok {
		return
	}
	page, ok := parsePagination(ctx, w, r)
	if !ok {
		return
	}

	result, err := h.wallets.ListTransactions(ctx, userID, page)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	resp := walletTransactionListResponse{
		Items:         make([]walletTransactionPayload, 0, len(result.Items)),
		NextPageToken: result.NextPageToken,
	}
	for _, txn := range result.Items {
		resp.Items = append(resp.Items, buildWalletTransactionPayload(txn))
	}
	setNoStore(w)
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *MeHandlers) listAvailableCoupons(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.coupons == nil {
		writeUnavailable(ctx, w, "coupon")
		return
	}
	userID, ok := requireUserID(ctx, w)
	if !ok {
		return
	}

	var cartTotal int64
	if raw := strings.TrimSpace(r.URL.Query().Get("cart_total")); raw != "" {
		total, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || total < 0 {
			writeInvalidRequest(ctx, w, "cart_total must be a non-negative integer")
			return
		}
		cartTotal = total
	} else if h.carts != nil {
		view, err := h.carts.GetCart(ctx, userID)
		if err != nil {
			writeServiceError(ctx, w, err)
			return
		}
		cartTotal = view.Subtotal
	}

	available, err := h.coupons.ListAvailable(ctx, userID, cartTotal)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	resp := availableCouponsResponse{CartTotal: cartTotal, Items: make([]availableCouponPayload, 0, len(available))}
	for _, entry := range available {
		resp.Items = append(resp.Items, availableCouponPayload{
			Code:            entry.Coupon.Code,
			Description:     entry.Coupon.Description,
			DiscountPercent: entry.Coupon.DiscountPercent,
			MaxDiscount:     entry.Coupon.MaxDiscount,
			MinPurchase:     entry.Coupon.MinPurchase,
			ExpiresAt:       formatTime(entry.Coupon.ExpiresAt),
			Discount:        entry.Discount,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

type walletResponse struct {
	Wallet walletPayload `json:"wallet"`
}

type walletTransactionListResponse struct {
	Items         []walletTransactionPayload `json:"items"`
	NextPageToken string                     `json:"next_page_token,omitempty"`
}

type availableCouponPayload struct {
	Code            string `json:"code"`
	Description     string `json:"description,omitempty"`
	DiscountPercent int    `json:"discount_percent"`
	MaxDiscount     *int64 `json:"max_discount,omitempty"`
	MinPurchase     int64  `json:"min_purchase"`
	ExpiresAt       string `json:"expires_at,omitempty"`
	Discount        int64  `json:"discount"`
}

type availableCouponsResponse struct {
	CartTotal int64                    `json:"cart_total"`
	Items     []availableCouponPayload `json:"items"`
}
