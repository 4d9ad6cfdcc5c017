package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/platform/auth"
	"github.com/hanko-field/storefront/internal/services"
)

func newAuthedRequest(method, target, body, uid string, roles ...string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if uid != "" {
		req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: uid, Roles: roles}))
	}
	return req
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

type stubCartService struct {
	getFunc          func(ctx context.Context, userID string) (services.CartView, error)
	addFunc          func(ctx context.Context, cmd services.CartItemCommand) (services.CartView, error)
	updateFunc       func(ctx context.Context, cmd services.CartItemCommand) (services.CartView, error)
	removeFunc       func(ctx context.Context, userID, productID string) (services.CartView, error)
	applyCouponFunc  func(ctx context.Context, userID, code string) (services.CartView, error)
	removeCouponFunc func(ctx context.Context, userID string) (services.CartView, error)
}

func (s *stubCartService) GetCart(ctx context.Context, userID string) (services.CartView, error) {
	if s.getFunc != nil {
		return s.getFunc(ctx, userID)
	}
	return services.CartView{Cart: services.Cart{UserID: userID}}, nil
}

func (s *stubCartService) AddItem(ctx context.Context, cmd services.CartItemCommand) (services.CartView, error) {
	if s.addFunc != nil {
		return s.addFunc(ctx, cmd)
	}
	return services.CartView{}, nil
}

func (s *stubCartService) UpdateItemQuantity(ctx context.Context, cmd services.CartItemCommand) (services.CartView, error) {
	if s.updateFunc != nil {
		return s.updateFunc(ctx, cmd)
	}
	return services.CartView{}, nil
}

func (s *stubCartService) RemoveItem(ctx context.Context, userID, productID string) (services.CartView, error) {
	if s.removeFunc != nil {
		return s.removeFunc(ctx, userID, productID)
	}
	return services.CartView{}, nil
}

func (s *stubCartService) ApplyCoupon(ctx context.Context, userID, code string) (services.CartView, error) {
	if s.applyCouponFunc != nil {
		return s.applyCouponFunc(ctx, userID, code)
	}
	return services.CartView{}, nil
}

func (s *stubCartService) RemoveCoupon(ctx context.Context, userID string) (services.CartView, error) {
	if s.removeCouponFunc != nil {
		return s.removeCouponFunc(ctx, userID)
	}
	return services.CartView{}, nil
}

type stubCheckoutService struct {
	checkoutFunc func(ctx context.Context, cmd services.CheckoutCommand) (services.CheckoutResult, error)
	retryFunc    func(ctx context.Context, cmd services.RetryPaymentCommand) (services.CheckoutResult, error)
	callbackFunc func(ctx context.Context, cmd services.PaymentCallbackCommand) (services.Order, error)
}

func (s *stubCheckoutService) Checkout(ctx context.Context, cmd services.CheckoutCommand) (services.CheckoutResult, error) {
	if s.checkoutFunc != nil {
		return s.checkoutFunc(ctx, cmd)
	}
	return services.CheckoutResult{}, nil
}

func (s *stubCheckoutService) RetryPayment(ctx context.Context, cmd services.RetryPaymentCommand) (services.CheckoutResult, error) {
	if s.retryFunc != nil {
		return s.retryFunc(ctx, cmd)
	}
	return services.CheckoutResult{}, nil
}

func (s *stubCheckoutService) HandlePaymentCallback(ctx context.Context, cmd services.PaymentCallbackCommand) (services.Order, error) {
	if s.callbackFunc != nil {
		return s.callbackFunc(ctx, cmd)
	}
	return services.Order{}, nil
}

type stubOrderService struct {
	getFunc        func(ctx context.Context, query services.OrderQuery) (services.Order, error)
	listFunc       func(ctx context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error)
	cancelFunc     func(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error)
	cancelItemFunc func(ctx context.Context, cmd services.CancelItemCommand) (services.Order, error)
	returnFunc     func(ctx context.Context, cmd services.ReturnRequestCommand) (services.Order, error)
	resolveFunc    func(ctx context.Context, cmd services.ResolveReturnCommand) (services.Order, error)
	transitionFunc func(ctx context.Context, cmd services.OrderStatusTransitionCommand) (services.Order, error)
}

func (s *stubOrderService) GetOrder(ctx context.Context, query services.OrderQuery) (services.Order, error) {
	if s.getFunc != nil {
		return s.getFunc(ctx, query)
	}
	return services.Order{}, services.ErrNotFound
}

func (s *stubOrderService) ListOrders(ctx context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
	if s.listFunc != nil {
		return s.listFunc(ctx, filter)
	}
	return domain.CursorPage[services.Order]{}, nil
}

func (s *stubOrderService) CancelOrder(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
	if s.cancelFunc != nil {
		return s.cancelFunc(ctx, cmd)
	}
	return services.Order{}, nil
}

func (s *stubOrderService) CancelItem(ctx context.Context, cmd services.CancelItemCommand) (services.Order, error) {
	if s.cancelItemFunc != nil {
		return s.cancelItemFunc(ctx, cmd)
	}
	return services.Order{}, nil
}

func (s *stubOrderService) RequestReturn(ctx context.Context, cmd services.ReturnRequestCommand) (services.Order, error) {
	if s.returnFunc != nil {
		return s.returnFunc(ctx, cmd)
	}
	return services.Order{}, nil
}

func (s *stubOrderService) ResolveReturn(ctx context.Context, cmd services.ResolveReturnCommand) (services.Order, error) {
	if s.resolveFunc != nil {
		return s.resolveFunc(ctx, cmd)
	}
	return services.Order{}, nil
}

func (s *stubOrderService) TransitionStatus(ctx context.Context, cmd services.OrderStatusTransitionCommand) (services.Order, error) {
	if s.transitionFunc != nil {
		return s.transitionFunc(ctx, cmd)
	}
	return services.Order{}, nil
}

type stubAddressService struct {
	listFunc   func(ctx context.Context, userID string) ([]services.Address, error)
	upsertFunc func(ctx context.Context, cmd services.UpsertAddressCommand) (services.Address, error)
}

func (s *stubAddressService) ListAddresses(ctx context.Context, userID string) ([]services.Address, error) {
	if s.listFunc != nil {
		return s.listFunc(ctx, userID)
	}
	return nil, nil
}

func (s *stubAddressService) UpsertAddress(ctx context.Context, cmd services.UpsertAddressCommand) (services.Address, error) {
	if s.upsertFunc != nil {
		return s.upsertFunc(ctx, cmd)
	}
	return cmd.Address, nil
}

type stubWalletLedger struct {
	wallet   services.Wallet
	page     domain.CursorPage[services.WalletTransaction]
	err      error
	lastPage services.Pagination
}

func (s *stubWalletLedger) Credit(context.Context, services.WalletEntryCommand) (services.WalletTransaction, error) {
	return services.WalletTransaction{}, s.err
}

func (s *stubWalletLedger) Debit(context.Context, services.WalletEntryCommand) (services.WalletTransaction, error) {
	return services.WalletTransaction{}, s.err
}

func (s *stubWalletLedger) GetWallet(context.Context, string) (services.Wallet, error) {
	return s.wallet, s.err
}

func (s *stubWalletLedger) ListTransactions(_ context.Context, _ string, page services.Pagination) (domain.CursorPage[services.WalletTransaction], error) {
	s.lastPage = page
	return s.page, s.err
}

type stubCouponService struct {
	availableFunc func(ctx context.Context, userID string, cartTotal int64) ([]services.CouponValidation, error)
	createFunc    func(ctx context.Context, cmd services.UpsertCouponCommand) (services.Coupon, error)
	updateFunc    func(ctx context.Context, cmd services.UpsertCouponCommand) (services.Coupon, error)
	coupons       []services.Coupon
}

func (s *stubCouponService) Validate(context.Context, services.ValidateCouponCommand) (services.CouponValidation, error) {
	return services.CouponValidation{}, nil
}

func (s *stubCouponService) ListAvailable(ctx context.Context, userID string, cartTotal int64) ([]services.CouponValidation, error) {
	if s.availableFunc != nil {
		return s.availableFunc(ctx, userID, cartTotal)
	}
	return nil, nil
}

func (s *stubCouponService) CreateCoupon(ctx context.Context, cmd services.UpsertCouponCommand) (services.Coupon, error) {
	if s.createFunc != nil {
		return s.createFunc(ctx, cmd)
	}
	return services.Coupon{ID: "cpn_new", Code: cmd.Code}, nil
}

func (s *stubCouponService) UpdateCoupon(ctx context.Context, cmd services.UpsertCouponCommand) (services.Coupon, error) {
	if s.updateFunc != nil {
		return s.updateFunc(ctx, cmd)
	}
	return services.Coupon{ID: cmd.CouponID, Code: cmd.Code}, nil
}

func (s *stubCouponService) DeactivateCoupon(_ context.Context, couponID string) (services.Coupon, error) {
	return services.Coupon{ID: couponID, Active: false}, nil
}

func (s *stubCouponService) ListCoupons(context.Context, bool) ([]services.Coupon, error) {
	return s.coupons, nil
}

type stubOfferService struct {
	createFunc func(ctx context.Context, cmd services.UpsertOfferCommand) (services.Offer, error)
	lastFilter services.OfferListFilter
	offers     []services.Offer
}

func (s *stubOfferService) CreateOffer(ctx context.Context, cmd services.UpsertOfferCommand) (services.Offer, error) {
	if s.createFunc != nil {
		return s.createFunc(ctx, cmd)
	}
	return services.Offer{ID: "off_new", Name: cmd.Name, Kind: cmd.Kind}, nil
}

func (s *stubOfferService) UpdateOffer(_ context.Context, cmd services.UpsertOfferCommand) (services.Offer, error) {
	return services.Offer{ID: cmd.OfferID, Name: cmd.Name, Kind: cmd.Kind}, nil
}

func (s *stubOfferService) DeactivateOffer(_ context.Context, offerID string) (services.Offer, error) {
	return services.Offer{ID: offerID, Status: domain.OfferStatusInactive}, nil
}

func (s *stubOfferService) GetOffer(_ context.Context, offerID string) (services.Offer, error) {
	for _, offer := range s.offers {
		if offer.ID == offerID {
			return offer, nil
		}
	}
	return services.Offer{}, services.ErrNotFound
}

func (s *stubOfferService) ListOffers(_ context.Context, filter services.OfferListFilter) ([]services.Offer, error) {
	s.lastFilter = filter
	return s.offers, nil
}

type stubCatalogService struct {
	products    map[string]services.Product
	lastFilter  services.ProductFilter
	upsertFunc  func(ctx context.Context, cmd services.UpsertProductCommand) (services.Product, error)
	restockFunc func(ctx context.Context, productID string, qty int) (services.Product, error)
}

func (s *stubCatalogService) ListProducts(_ context.Context, filter services.ProductFilter) (domain.CursorPage[services.Product], error) {
	s.lastFilter = filter
	var page domain.CursorPage[services.Product]
	for _, product := range s.products {
		page.Items = append(page.Items, product)
	}
	return page, nil
}

func (s *stubCatalogService) GetProduct(_ context.Context, productID string) (services.Product, error) {
	product, ok := s.products[productID]
	if !ok {
		return services.Product{}, services.ErrNotFound
	}
	return product, nil
}

func (s *stubCatalogService) UpsertProduct(ctx context.Context, cmd services.UpsertProductCommand) (services.Product, error) {
	if s.upsertFunc != nil {
		return s.upsertFunc(ctx, cmd)
	}
	return services.Product{ID: cmd.ProductID, Name: cmd.Name, Active: cmd.Active}, nil
}

func (s *stubCatalogService) Restock(ctx context.Context, productID string, qty int) (services.Product, error) {
	if s.restockFunc != nil {
		return s.restockFunc(ctx, productID, qty)
	}
	return services.Product{ID: productID, Stock: qty}, nil
}

type stubPricingService struct {
	quote services.PriceQuote
	err   error
}

func (s *stubPricingService) QuoteProduct(_ context.Context, productID string) (services.PriceQuote, error) {
	if s.err != nil {
		return services.PriceQuote{}, s.err
	}
	quote := s.quote
	quote.ProductID = productID
	return quote, nil
}

type stubReportService struct {
	snapshots  []services.OrderSnapshot
	export     services.ReportExport
	err        error
	lastFilter services.ReportFilter
}

func (s *stubReportService) OrderSnapshots(_ context.Context, filter services.ReportFilter) ([]services.OrderSnapshot, error) {
	s.lastFilter = filter
	return s.snapshots, s.err
}

func (s *stubReportService) ExportOrders(_ context.Context, filter services.ReportFilter) (services.ReportExport, error) {
	s.lastFilter = filter
	return s.export, s.err
}

type stubSystemService struct {
	report services.HealthReport
	err    error
}

func (s *stubSystemService) HealthReport(context.Context) (services.HealthReport, error) {
	return s.report, s.err
}
