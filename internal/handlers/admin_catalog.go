package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/platform/auth"
	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/services"
)

// AdminCatalogHandlers exposes product, offer and coupon administration.
type AdminCatalogHandlers struct {
	authn   *auth.Authenticator
	catalog services.CatalogService
	offers  services.OfferService
	coupons services.CouponService
}

// NewAdminCatalogHandlers constructs admin catalog handlers.
func NewAdminCatalogHandlers(authn *auth.Authenticator, catalog services.CatalogService, offers services.OfferService, coupons services.CouponService) *AdminCatalogHandlers {
	return &AdminCatalogHandlers{authn: authn, catalog: catalog, offers: offers, coupons: coupons}
}

// Routes registers admin catalog endpoints.
func (h *AdminCatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Group(func(rt chi.Router) {
		if h.authn != nil {
			rt.Use(h.authn.RequireFirebaseAuth(auth.RoleStaff, auth.RoleAdmin))
		}
		rt.Get("/products", h.listProducts)
		rt.Post("/products", h.createProduct)
		rt.Put("/products/{productID}", h.updateProduct)
		rt.Post("/products/{productID}:restock", h.restockProduct)

		rt.Get("/offers", h.listOffers)
		rt.Post("/offers", h.createOffer)
		rt.Get("/offers/{offerID}", h.getOffer)
		rt.Put("/offers/{offerID}", h.updateOffer)
		rt.Post("/offers/{offerID}:deactivate", h.deactivateOffer)

		rt.Get("/coupons", h.listCoupons)
		rt.Post("/coupons", h.createCoupon)
		rt.Put("/coupons/{couponID}", h.updateCoupon)
		rt.Post("/coupons/{couponID}:deactivate", h.deactivateCoupon)
	})
}

type adminProductRequest struct {
	Name         string `json:"name"`
	CategoryID   string `json:"category_id"`
	BasePrice    int64  `json:"base_price"`
	Active       *bool  `json:"active"`
	InitialStock int    `json:"initial_stock"`
}

type restockRequest struct {
	Quantity int `json:"quantity"`
}

type adminOfferRequest struct {
	Name            string    `json:"name"`
	Kind            string    `json:"kind"`
	ProductIDs      []string  `json:"product_ids"`
	CategoryID      string    `json:"category_id"`
	DiscountPercent int       `json:"discount_percent"`
	StartsAt        time.Time `json:"starts_at"`
	EndsAt          time.Time `json:"ends_at"`
	Active          *bool     `json:"active"`
}

type adminCouponRequest struct {
	Code            string    `json:"code"`
	Description     string    `json:"description"`
	DiscountPercent int       `json:"discount_percent"`
	MaxDiscount     *int64    `json:"max_discount"`
	MinPurchase     int64     `json:"min_purchase"`
	StartsAt        time.Time `json:"starts_at"`
	ExpiresAt       time.Time `json:"expires_at"`
	Active          *bool     `json:"active"`
	GlobalLimit     *int      `json:"global_limit"`
	PerUserLimit    int       `json:"per_user_limit"`
}

type offerResponse struct {
	Offer offerPayload `json:"offer"`
}

type offerListResponse struct {
	Items []offerPayload `json:"items"`
}

type couponResponse struct {
	Coupon couponPayload `json:"coupon"`
}

type couponListResponse struct {
	Items []couponPayload `json:"items"`
}

func boolOrDefault(value *bool, fallback bool) bool {
	if value == nil {
		return fallback
	}
	return *value
}

func (h *AdminCatalogHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeUnavailable(ctx, w, "catalog")
		return
	}
	page, ok := parsePagination(ctx, w, r)
	if !ok {
		return
	}
	activeOnly := false
	if raw := strings.TrimSpace(r.URL.Query().Get("active")); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			writeInvalidRequest(ctx, w, "active must be a boolean")
			return
		}
		activeOnly = parsed
	}

	result, err := h.catalog.ListProducts(ctx, services.ProductFilter{
		CategoryID: strings.TrimSpace(r.URL.Query().Get("category")),
		ActiveOnly: activeOnly,
		Pagination: page,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	resp := productListResponse{Items: make([]productPayload, 0, len(result.Items)), NextPageToken: result.NextPageToken}
	for _, product := range result.Items {
		resp.Items = append(resp.Items, buildProductPayload(product))
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *AdminCatalogHandlers) createProduct(w http.ResponseWriter, r *http.Request) {
	h.saveProduct(w, r, "")
}

func (h *AdminCatalogHandlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	h.saveProduct(w, r, strings.TrimSpace(chi.URLParam(r, "productID")))
}

func (h *AdminCatalogHandlers) saveProduct(w http.ResponseWriter, r *http.Request, productID string) {
	ctx := r.Context()
	if h.catalog == nil {
		writeUnavailable(ctx, w, "catalog")
		return
	}
	var req adminProductRequest
	if err := httpx.DecodeJSON(r, &req, httpx.DefaultBodyLimit); err != nil {
		httpx.WriteDecodeError(w, r, err)
		return
	}

	product, err := h.catalog.UpsertProduct(ctx, services.UpsertProductCommand{
		ProductID:    productID,
		Name:         req.Name,
		CategoryID:   req.CategoryID,
		BasePrice:    req.BasePrice,
		Active:       boolOrDefault(req.Active, true),
		InitialStock: req.InitialStock,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeCreatedOrOK(w, r.Method == http.MethodPost, productResponse{Product: buildProductPayload(product)})
}

func (h *AdminCatalogHandlers) restockProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeUnavailable(ctx, w, "catalog")
		return
	}
	var req restockRequest
	if err := httpx.DecodeJSON(r, &req, httpx.DefaultBodyLimit); err != nil {
		httpx.WriteDecodeError(w, r, err)
		return
	}
	if req.Quantity <= 0 {
		writeInvalidRequest(ctx, w, "quantity must be positive")
		return
	}

	product, err := h.catalog.Restock(ctx, strings.TrimSpace(chi.URLParam(r, "productID")), req.Quantity)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, productResponse{Product: buildProductPayload(product)})
}

func (h *AdminCatalogHandlers) listOffers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.offers == nil {
		writeUnavailable(ctx, w, "offer")
		return
	}
	var filter services.OfferListFilter
	query := r.URL.Query()
	if raw := strings.ToLower(strings.TrimSpace(query.Get("kind"))); raw != "" {
		kind := domain.OfferKind(raw)
		if kind != domain.OfferKindProduct && kind != domain.OfferKindCategory {
			writeInvalidRequest(ctx, w, "kind must be product or category")
			return
		}
		filter.Kind = &kind
	}
	if raw := strings.ToLower(strings.TrimSpace(query.Get("status"))); raw != "" {
		status := domain.OfferStatus(raw)
		if status != domain.OfferStatusActive && status != domain.OfferStatusInactive {
			writeInvalidRequest(ctx, w, "status must be active or inactive")
			return
		}
		filter.Status = &status
	}

	offers, err := h.offers.ListOffers(ctx, filter)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	resp := offerListResponse{Items: make([]offerPayload, 0, len(offers))}
	for _, offer := range offers {
		resp.Items = append(resp.Items, buildOfferPayload(offer))
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *AdminCatalogHandlers) getOffer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.offers == nil {
		writeUnavailable(ctx, w, "offer")
		return
	}
	offer, err := h.offers.GetOffer(ctx, strings.TrimSpace(chi.URLParam(r, "offerID")))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, offerResponse{Offer: buildOfferPayload(offer)})
}

func (h *AdminCatalogHandlers) createOffer(w http.ResponseWriter, r *http.Request) {
	h.saveOffer(w, r, "")
}

func (h *AdminCatalogHandlers) updateOffer(w http.ResponseWriter, r *http.Request) {
	h.saveOffer(w, r, strings.TrimSpace(chi.URLParam(r, "offerID")))
}

func (h *AdminCatalogHandlers) saveOffer(w http.ResponseWriter, r *http.Request, offerID string) {
	ctx := r.Context()
	if h.offers == nil {
		writeUnavailable(ctx, w, "offer")
		return
	}
	var req adminOfferRequest
	if err := httpx.DecodeJSON(r, &req, httpx.DefaultBodyLimit); err != nil {
		httpx.WriteDecodeError(w, r, err)
		return
	}

	cmd := services.UpsertOfferCommand{
		OfferID:         offerID,
		Name:            req.Name,
		Kind:            domain.OfferKind(strings.ToLower(strings.TrimSpace(req.Kind))),
		ProductIDs:      req.ProductIDs,
		CategoryID:      req.CategoryID,
		DiscountPercent: req.DiscountPercent,
		StartsAt:        req.StartsAt,
		EndsAt:          req.EndsAt,
		Active:          boolOrDefault(req.Active, true),
	}
	var (
		offer services.Offer
		err   error
	)
	if offerID == "" {
		offer, err = h.offers.CreateOffer(ctx, cmd)
	} else {
		offer, err = h.offers.UpdateOffer(ctx, cmd)
	}
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeCreatedOrOK(w, offerID == "", offerResponse{Offer: buildOfferPayload(offer)})
}

func (h *AdminCatalogHandlers) deactivateOffer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.offers == nil {
		writeUnavailable(ctx, w, "offer")
		return
	}
	offer, err := h.offers.DeactivateOffer(ctx, strings.TrimSpace(chi.URLParam(r, "offerID")))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, offerResponse{Offer: buildOfferPayload(offer)})
}

func (h *AdminCatalogHandlers) listCoupons(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.coupons == nil {
		writeUnavailable(ctx, w, "coupon")
		return
	}
	activeOnly := false
	if raw := strings.TrimSpace(r.URL.Query().Get("active")); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			writeInvalidRequest(ctx, w, "active must be a boolean")
			return
		}
		activeOnly = parsed
	}

	coupons, err := h.coupons.ListCoupons(ctx, activeOnly)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	resp := couponListResponse{Items: make([]couponPayload, 0, len(coupons))}
	for _, coupon := range coupons {
		resp.Items = append(resp.Items, buildCouponPayload(coupon))
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *AdminCatalogHandlers) createCoupon(w http.ResponseWriter, r *http.Request) {
	h.saveCoupon(w, r, "")
}

func (h *AdminCatalogHandlers) updateCoupon(w http.ResponseWriter, r *http.Request) {
	h.saveCoupon(w, r, strings.TrimSpace(chi.URLParam(r, "couponID")))
}

func (h *AdminCatalogHandlers) saveCoupon(w http.ResponseWriter, r *http.Request, couponID string) {
	ctx := r.Context()
	if h.coupons == nil {
		writeUnavailable(ctx, w, "coupon")
		return
	}
	var req adminCouponRequest
	if err := httpx.DecodeJSON(r, &req, httpx.DefaultBodyLimit); err != nil {
		httpx.WriteDecodeError(w, r, err)
		return
	}

	cmd := services.UpsertCouponCommand{
		CouponID:        couponID,
		Code:            req.Code,
		Description:     req.Description,
		DiscountPercent: req.DiscountPercent,
		MaxDiscount:     req.MaxDiscount,
		MinPurchase:     req.MinPurchase,
		StartsAt:        req.StartsAt,
		ExpiresAt:       req.ExpiresAt,
		Active:          boolOrDefault(req.Active, true),
		GlobalLimit:     req.GlobalLimit,
		PerUserLimit:    req.PerUserLimit,
	}
	var (
		coupon services.Coupon
		err    error
	)
	if couponID == "" {
		coupon, err = h.coupons.CreateCoupon(ctx, cmd)
	} else {
		coupon, err = h.coupons.UpdateCoupon(ctx, cmd)
	}
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeCreatedOrOK(w, couponID == "", couponResponse{Coupon: buildCouponPayload(coupon)})
}

func (h *AdminCatalogHandlers) deactivateCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.coupons == nil {
		writeUnavailable(ctx, w, "coupon")
		return
	}
	coupon, err := h.coupons.DeactivateCoupon(ctx, strings.TrimSpace(chi.URLParam(r, "couponID")))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, couponResponse{Coupon: buildCouponPayload(coupon)})
}
