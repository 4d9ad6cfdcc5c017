package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/payments"
	"github.com/hanko-field/storefront/internal/repositories/memory"
)

type stubGateway struct {
	signer *payments.CallbackSigner

	mu       sync.Mutex
	seq      int
	err      error
	requests []payments.IntentRequest
}

func (g *stubGateway) CreateIntent(_ context.Context, req payments.IntentRequest) (payments.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return payments.Intent{}, g.err
	}
	g.seq++
	g.requests = append(g.requests, req)
	id := fmt.Sprintf("pi_%d", g.seq)
	return payments.Intent{ID: id, Provider: "local", ClientSecret: id + "_secret", Amount: req.Amount, Currency: req.Currency}, nil
}

func (g *stubGateway) VerifyCallback(intentID, externalPaymentID, signature string) bool {
	return g.signer.Verify(intentID, externalPaymentID, signature)
}

type recordingEvents struct {
	mu     sync.Mutex
	events []OrderEvent
}

func (r *recordingEvents) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingEvents) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, event := range r.events {
		out = append(out, event.Type)
	}
	return out
}

type checkoutFixture struct {
	store    *memory.Store
	now      time.Time
	gateway  *stubGateway
	signer   *payments.CallbackSigner
	events   *recordingEvents
	wallet   WalletLedger
	checkout CheckoutService
	orders   OrderService
}

func newCheckoutFixture(t *testing.T, products ...domain.Product) *checkoutFixture {
	t.Helper()
	ctx := context.Background()
	f := &checkoutFixture{
		store:  memory.NewStore(),
		now:    time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
		events: &recordingEvents{},
	}
	seedProducts(t, f.store, products...)
	for _, user := range []string{"u1", "u2"} {
		if _, err := f.store.Addresses().Upsert(ctx, user, domain.Address{ID: "addr_" + user, Recipient: "Recipient " + user, Line1: "1 Main St", City: "Springfield", PostalCode: "12345", Country: "US"}); err != nil {
			t.Fatalf("seed address: %v", err)
		}
	}

	signer, err := payments.NewCallbackSigner("callback-secret")
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	f.signer = signer
	f.gateway = &stubGateway{signer: signer}
	clock := func() time.Time { return f.now }

	stock, err := NewStockLedger(StockLedgerDeps{Products: f.store.Products()})
	if err != nil {
		t.Fatalf("new stock ledger: %v", err)
	}
	f.wallet = newTestWalletLedger(t, f.store)
	coupons := newTestCouponService(t, f.store, f.now)

	f.checkout, err = NewCheckoutService(CheckoutServiceDeps{
		Carts:     f.store.Carts(),
		Products:  f.store.Products(),
		Addresses: f.store.Addresses(),
		Orders:    f.store.Orders(),
		Coupons:   coupons,
		Stock:     stock,
		Wallet:    f.wallet,
		Gateway:   f.gateway,
		Events:    f.events,
		Currency:  "usd",
		Clock:     clock,
	})
	if err != nil {
		t.Fatalf("new checkout service: %v", err)
	}
	f.orders, err = NewOrderService(OrderServiceDeps{
		Orders: f.store.Orders(),
		Clock:  clock,
		Events: f.events,
	})
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}
	return f
}

func (f *checkoutFixture) fillCart(t *testing.T, userID string, coupon string, items ...domain.CartItem) {
	t.Helper()
	cart := domain.Cart{UserID: userID, Items: items, UpdatedAt: f.now}
	if coupon != "" {
		cart.Coupon = &domain.CartCoupon{Code: coupon}
	}
	if _, err := f.store.Carts().UpsertCart(context.Background(), cart); err != nil {
		t.Fatalf("seed cart: %v", err)
	}
}

func (f *checkoutFixture) fund(t *testing.T, userID string, amount int64) {
	t.Helper()
	if _, err := f.wallet.Credit(context.Background(), WalletEntryCommand{UserID: userID, Amount: amount, Description: "top up"}); err != nil {
		t.Fatalf("fund wallet: %v", err)
	}
}

func (f *checkoutFixture) balance(t *testing.T, userID string) int64 {
	t.Helper()
	wallet, err := f.wallet.GetWallet(context.Background(), userID)
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	return wallet.Balance
}

func (f *checkoutFixture) place(t *testing.T, userID string, method domain.PaymentMethod) CheckoutResult {
	t.Helper()
	result, err := f.checkout.Checkout(context.Background(), CheckoutCommand{UserID: userID, AddressID: "addr_" + userID, PaymentMethod: method})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	return result
}

func (f *checkoutFixture) ordersOf(t *testing.T, userID string) []Order {
	t.Helper()
	page, err := f.orders.ListOrders(context.Background(), OrderListFilter{UserID: userID})
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	return page.Items
}

func assertHistoryTail(t *testing.T, order Order) {
	t.Helper()
	if n := len(order.History); n == 0 || order.History[n-1].Status != order.Status {
		t.Fatalf("order history tail does not match status %s: %+v", order.Status, order.History)
	}
	for _, item := range order.Items {
		if n := len(item.History); n == 0 || item.History[n-1].Status != item.Status {
			t.Fatalf("item %s history tail does not match status %s", item.ID, item.Status)
		}
	}
}

func testProducts() []domain.Product {
	return []domain.Product{
		{ID: "p1", Name: "Brush", BasePrice: 1000, Stock: 5, Active: true},
		{ID: "p2", Name: "Ink", BasePrice: 500, Stock: 5, Active: true},
	}
}

func TestCheckoutWalletOrderCompletesSynchronously(t *testing.T) {
	ctx := context.Background()
	f := newCheckoutFixture(t, testProducts()...)
	seedCoupon(t, f.store, domain.Coupon{
		ID: "cpn_1", Code: "SAVE10", DiscountPercent: 10, MaxDiscount: int64Ptr(200), Active: true,
		StartsAt: f.now.Add(-time.Hour), ExpiresAt: f.now.Add(30 * 24 * time.Hour), PerUserLimit: 1,
	})
	f.fund(t, "u1", 5000)
	f.fillCart(t, "u1", "SAVE10",
		domain.CartItem{ProductID: "p1", Quantity: 2, UnitPrice: 1000},
		domain.CartItem{ProductID: "p2", Quantity: 1, UnitPrice: 500},
	)

	result := f.place(t, "u1", domain.PaymentMethodWallet)
	order := result.Order

	if order.Subtotal != 2500 || order.Discount != 200 || order.Total != 2300 {
		t.Fatalf("unexpected totals subtotal=%d discount=%d total=%d", order.Subtotal, order.Discount, order.Total)
	}
	if order.Status != domain.OrderStatusProcessing || order.Payment.Status != domain.PaymentStatusCompleted {
		t.Fatalf("expected processing/completed, got %s/%s", order.Status, order.Payment.Status)
	}
	if order.Currency != "USD" || order.CouponCode == nil || *order.CouponCode != "SAVE10" {
		t.Fatalf("unexpected currency or coupon: %s %v", order.Currency, order.CouponCode)
	}
	assertHistoryTail(t, order)

	if got := f.balance(t, "u1"); got != 2700 {
		t.Fatalf("expected wallet balance 2700, got %d", got)
	}
	if stockOf(t, f.store, "p1") != 3 || stockOf(t, f.store, "p2") != 4 {
		t.Fatalf("unexpected stock p1=%d p2=%d", stockOf(t, f.store, "p1"), stockOf(t, f.store, "p2"))
	}
	coupon, err := f.store.Coupons().Get(ctx, "cpn_1")
	if err != nil {
		t.Fatalf("get coupon: %v", err)
	}
	if coupon.UsedCount != 1 || len(coupon.Usages) != 1 || coupon.Usages[0].OrderID != order.ID {
		t.Fatalf("expected one usage for order %s, got %+v", order.ID, coupon.Usages)
	}
	cart, err := f.store.Carts().GetCart(ctx, "u1")
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if len(cart.Items) != 0 || cart.Coupon != nil {
		t.Fatalf("expected cart to be emptied, got %+v", cart)
	}
	if types := f.events.types(); len(types) != 1 || types[0] != orderEventCreated {
		t.Fatalf("expected order.created event, got %v", types)
	}
}

func TestCheckoutSnapshotsShippingAddress(t *testing.T) {
	ctx := context.Background()
	f := newCheckoutFixture(t, testProducts()...)
	f.fillCart(t, "u1", "", domain.CartItem{ProductID: "p1", Quantity: 1, UnitPrice: 1000})

	order := f.place(t, "u1", domain.PaymentMethodCOD).Order

	if _, err := f.store.Addresses().Upsert(ctx, "u1", domain.Address{ID: "addr_u1", Recipient: "Someone Else", Line1: "9 Elm St", City: "Shelbyville", Country: "US"}); err != nil {
		t.Fatalf("edit address: %v", err)
	}
	stored, err := f.orders.GetOrder(ctx, OrderQuery{OrderID: order.ID, Actor: Actor{UserID: "u1"}})
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if stored.ShippingAddress.Recipient != "Recipient u1" || stored.ShippingAddress.Line1 != "1 Main St" {
		t.Fatalf("address edit leaked into order: %+v", stored.ShippingAddress)
	}
	if stored.Status != domain.OrderStatusProcessing || stored.Payment.Status != domain.PaymentStatusPending {
		t.Fatalf("expected cod order processing/pending, got %s/%s", stored.Status, stored.Payment.Status)
	}
}

func TestCheckoutIsAllOrNothingOnInsufficientStock(t *testing.T) {
	ctx := context.Background()
	f := newCheckoutFixture(t,
		domain.Product{ID: "p1", Name: "Brush", BasePrice: 1000, Stock: 5, Active: true},
		domain.Product{ID: "p2", Name: "Ink", BasePrice: 500, Stock: 1, Active: true},
	)
	f.fillCart(t, "u1", "",
		domain.CartItem{ProductID: "p1", Quantity: 2, UnitPrice: 1000},
		domain.CartItem{ProductID: "p2", Quantity: 2, UnitPrice: 500},
	)

	_, err := f.checkout.Checkout(ctx, CheckoutCommand{UserID: "u1", AddressID: "addr_u1", PaymentMethod: domain.PaymentMethodCOD})
	if !errors.Is(err, ErrInsufficientStock) || !errors.Is(err, ErrConflict) {
		t.Fatalf("expected insufficient stock conflict, got %v", err)
	}
	if stockOf(t, f.store, "p1") != 5 || stockOf(t, f.store, "p2") != 1 {
		t.Fatalf("stock changed after failed checkout: p1=%d p2=%d", stockOf(t, f.store, "p1"), stockOf(t, f.store, "p2"))
	}
	if orders := f.ordersOf(t, "u1"); len(orders) != 0 {
		t.Fatalf("expected no orders, got %d", len(orders))
	}
	cart, _ := f.store.Carts().GetCart(ctx, "u1")
	if len(cart.Items) != 2 {
		t.Fatalf("expected cart to be kept, got %+v", cart.Items)
	}
}

func TestCheckoutWalletShortfallReleasesStock(t *testing.T) {
	f := newCheckoutFixture(t, testProducts()...)
	f.fund(t, "u1", 999)
	f.fillCart(t, "u1", "", domain.CartItem{ProductID: "p1", Quantity: 1, UnitPrice: 1000})

	_, err := f.checkout.Checkout(context.Background(), CheckoutCommand{UserID: "u1", AddressID: "addr_u1", PaymentMethod: domain.PaymentMethodWallet})
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if got := stockOf(t, f.store, "p1"); got != 5 {
		t.Fatalf("expected stock released, got %d", got)
	}
	if got := f.balance(t, "u1"); got != 999 {
		t.Fatalf("expected wallet untouched, got %d", got)
	}
}

func TestCheckoutGatewayFailureCompensates(t *testing.T) {
	f := newCheckoutFixture(t, testProducts()...)
	f.gateway.err = errors.New("gateway down")
	f.fillCart(t, "u1", "", domain.CartItem{ProductID: "p1", Quantity: 3, UnitPrice: 1000})

	_, err := f.checkout.Checkout(context.Background(), CheckoutCommand{UserID: "u1", AddressID: "addr_u1", PaymentMethod: domain.PaymentMethodOnline})
	if !errors.Is(err, ErrExternalFailure) {
		t.Fatalf("expected external failure, got %v", err)
	}
	if got := stockOf(t, f.store, "p1"); got != 5 {
		t.Fatalf("expected stock released, got %d", got)
	}
	if orders := f.ordersOf(t, "u1"); len(orders) != 0 {
		t.Fatalf("expected no orders, got %d", len(orders))
	}
}

func TestCheckoutMissingAddressCompensates(t *testing.T) {
	f := newCheckoutFixture(t, testProducts()...)
	f.fillCart(t, "u1", "", domain.CartItem{ProductID: "p1", Quantity: 1, UnitPrice: 1000})

	_, err := f.checkout.Checkout(context.Background(), CheckoutCommand{UserID: "u1", AddressID: "addr_missing", PaymentMethod: domain.PaymentMethodCOD})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if got := stockOf(t, f.store, "p1"); got != 5 {
		t.Fatalf("expected stock released, got %d", got)
	}
}

func TestCheckoutRejectsEmptyCart(t *testing.T) {
	f := newCheckoutFixture(t, testProducts()...)
	_, err := f.checkout.Checkout(context.Background(), CheckoutCommand{UserID: "u1", AddressID: "addr_u1", PaymentMethod: domain.PaymentMethodCOD})
	if !errors.Is(err, ErrEmptyCart) || !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected empty cart, got %v", err)
	}
	_, err = f.checkout.Checkout(context.Background(), CheckoutCommand{UserID: "u1", AddressID: "addr_u1", PaymentMethod: "barter"})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid method, got %v", err)
	}
}

func TestCheckoutConcurrentRequestsForLastUnits(t *testing.T) {
	f := newCheckoutFixture(t, domain.Product{ID: "p1", Name: "Brush", BasePrice: 1000, Stock: 2, Active: true})
	for _, user := range []string{"u1", "u2"} {
		f.fillCart(t, user, "", domain.CartItem{ProductID: "p1", Quantity: 2, UnitPrice: 1000})
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, user := range []string{"u1", "u2"} {
		wg.Add(1)
		go func(i int, user string) {
			defer wg.Done()
			_, errs[i] = f.checkout.Checkout(context.Background(), CheckoutCommand{UserID: user, AddressID: "addr_" + user, PaymentMethod: domain.PaymentMethodCOD})
		}(i, user)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case !errors.Is(err, ErrConflict):
			t.Fatalf("expected conflict for the losing checkout, got %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one checkout to succeed, got %d", succeeded)
	}
	if got := stockOf(t, f.store, "p1"); got != 0 {
		t.Fatalf("expected stock 0, got %d", got)
	}
}

func TestCheckoutCouponGlobalLimitRace(t *testing.T) {
	f := newCheckoutFixture(t, domain.Product{ID: "p1", Name: "Brush", BasePrice: 1000, Stock: 10, Active: true})
	seedCoupon(t, f.store, domain.Coupon{
		ID: "cpn_1", Code: "ONCE", DiscountPercent: 50, Active: true, GlobalLimit: intPtr(1),
		StartsAt: f.now.Add(-time.Hour), ExpiresAt: f.now.Add(time.Hour),
	})
	for _, user := range []string{"u1", "u2"} {
		f.fillCart(t, user, "ONCE", domain.CartItem{ProductID: "p1", Quantity: 1, UnitPrice: 1000})
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, user := range []string{"u1", "u2"} {
		wg.Add(1)
		go func(i int, user string) {
			defer wg.Done()
			_, errs[i] = f.checkout.Checkout(context.Background(), CheckoutCommand{UserID: user, AddressID: "addr_" + user, PaymentMethod: domain.PaymentMethodCOD})
		}(i, user)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case !errors.Is(err, ErrCouponLimitReached):
			t.Fatalf("expected coupon limit for the losing checkout, got %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one checkout to succeed, got %d", succeeded)
	}
	if got := stockOf(t, f.store, "p1"); got != 9 {
		t.Fatalf("expected losing checkout to release stock, got %d", got)
	}
	coupon, _ := f.store.Coupons().Get(context.Background(), "cpn_1")
	if coupon.UsedCount != 1 {
		t.Fatalf("expected one recorded usage, got %d", coupon.UsedCount)
	}
}

func TestPaymentCallbackCompletesOnlineOrderIdempotently(t *testing.T) {
	ctx := context.Background()
	f := newCheckoutFixture(t, testProducts()...)
	f.fillCart(t, "u1", "", domain.CartItem{ProductID: "p1", Quantity: 1, UnitPrice: 1000})

	result := f.place(t, "u1", domain.PaymentMethodOnline)
	if result.Order.Status != domain.OrderStatusPending || result.Order.Payment.Status != domain.PaymentStatusPending {
		t.Fatalf("expected pending/pending, got %s/%s", result.Order.Status, result.Order.Payment.Status)
	}
	if result.ClientSecret != "pi_1_secret" || result.Order.Payment.IntentID != "pi_1" {
		t.Fatalf("unexpected intent %q / %q", result.ClientSecret, result.Order.Payment.IntentID)
	}
	if req := f.gateway.requests[0]; req.Amount != 1000 || req.ReceiptRef != result.Order.ID || req.Metadata["order_id"] != result.Order.ID || req.Metadata["attempt"] != "1" {
		t.Fatalf("unexpected intent request %+v", req)
	}

	cmd := PaymentCallbackCommand{IntentID: "pi_1", ExternalPaymentID: "ch_1", Signature: f.signer.Sign("pi_1", "ch_1")}
	paid, err := f.checkout.HandlePaymentCallback(ctx, cmd)
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	if paid.Status != domain.OrderStatusProcessing || paid.Payment.Status != domain.PaymentStatusCompleted || paid.Payment.ExternalPaymentID != "ch_1" {
		t.Fatalf("unexpected order after callback: %s/%s", paid.Status, paid.Payment.Status)
	}
	assertHistoryTail(t, paid)

	replayed, err := f.checkout.HandlePaymentCallback(ctx, cmd)
	if err != nil {
		t.Fatalf("replayed callback: %v", err)
	}
	if replayed.Version != paid.Version {
		t.Fatalf("expected replay to be a no-op, version %d -> %d", paid.Version, replayed.Version)
	}
}

func TestPaymentCallbackTamperedSignatureFailsPaymentOnly(t *testing.T) {
	ctx := context.Background()
	f := newCheckoutFixture(t, testProducts()...)
	f.fillCart(t, "u1", "", domain.CartItem{ProductID: "p1", Quantity: 2, UnitPrice: 1000})
	placed := f.place(t, "u1", domain.PaymentMethodOnline).Order

	order, err := f.checkout.HandlePaymentCallback(ctx, PaymentCallbackCommand{IntentID: "pi_1", ExternalPaymentID: "ch_1", Signature: f.signer.Sign("pi_1", "ch_forged")})
	if !errors.Is(err, ErrInvalidSignature) || !errors.Is(err, ErrExternalFailure) {
		t.Fatalf("expected invalid signature, got %v", err)
	}
	if order.Payment.Status != domain.PaymentStatusFailed {
		t.Fatalf("expected payment failed, got %s", order.Payment.Status)
	}
	if order.Status != placed.Status || len(order.History) != len(placed.History) {
		t.Fatalf("order status changed on tampered callback: %s", order.Status)
	}
	if got := stockOf(t, f.store, "p1"); got != 3 {
		t.Fatalf("expected stock to stay reserved, got %d", got)
	}

	retried, err := f.checkout.RetryPayment(ctx, RetryPaymentCommand{UserID: "u1", OrderID: placed.ID})
	if err != nil {
		t.Fatalf("retry payment: %v", err)
	}
	if retried.Order.Payment.Status != domain.PaymentStatusPending || retried.Order.Payment.IntentID != "pi_2" || retried.Order.Payment.Attempts != 2 {
		t.Fatalf("unexpected payment after retry: %+v", retried.Order.Payment)
	}
	if got := stockOf(t, f.store, "p1"); got != 3 {
		t.Fatalf("retry must not reserve again, stock %d", got)
	}

	paid, err := f.checkout.HandlePaymentCallback(ctx, PaymentCallbackCommand{IntentID: "pi_2", ExternalPaymentID: "ch_2", Signature: f.signer.Sign("pi_2", "ch_2")})
	if err != nil {
		t.Fatalf("callback after retry: %v", err)
	}
	if paid.Status != domain.OrderStatusProcessing || paid.Payment.Status != domain.PaymentStatusCompleted {
		t.Fatalf("unexpected order after retry callback: %s/%s", paid.Status, paid.Payment.Status)
	}
}

func TestPaymentCallbackRecordsCapturesThatCannotSettle(t *testing.T) {
	ctx := context.Background()
	f := newCheckoutFixture(t, testProducts()...)
	f.fillCart(t, "u1", "", domain.CartItem{ProductID: "p1", Quantity: 1, UnitPrice: 1000})
	placed := f.place(t, "u1", domain.PaymentMethodOnline).Order

	if _, err := f.checkout.HandlePaymentCallback(ctx, PaymentCallbackCommand{IntentID: "pi_1", ExternalPaymentID: "ch_1", Signature: "forged"}); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected invalid signature, got %v", err)
	}

	genuine := PaymentCallbackCommand{IntentID: "pi_1", ExternalPaymentID: "ch_1", Signature: f.signer.Sign("pi_1", "ch_1")}
	order, err := f.checkout.HandlePaymentCallback(ctx, genuine)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected failed payment to stay failed, got %v", err)
	}
	if order.Payment.Status != domain.PaymentStatusFailed || !slices.Equal(order.Payment.UnmatchedCaptures, []string{"ch_1"}) {
		t.Fatalf("expected capture recorded on failed payment, got %+v", order.Payment)
	}
	replayed, err := f.checkout.HandlePaymentCallback(ctx, genuine)
	if !errors.Is(err, ErrInvalidTransition) || replayed.Version != order.Version {
		t.Fatalf("expected replay without write, got version %d -> %d (%v)", order.Version, replayed.Version, err)
	}

	if _, err := f.checkout.RetryPayment(ctx, RetryPaymentCommand{UserID: "u1", OrderID: placed.ID}); err != nil {
		t.Fatalf("retry payment: %v", err)
	}
	if _, err := f.checkout.HandlePaymentCallback(ctx, PaymentCallbackCommand{IntentID: "pi_1", ExternalPaymentID: "ch_9", Signature: "forged"}); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected invalid signature for replaced intent, got %v", err)
	}
	late, err := f.checkout.HandlePaymentCallback(ctx, PaymentCallbackCommand{IntentID: "pi_1", ExternalPaymentID: "ch_late", Signature: f.signer.Sign("pi_1", "ch_late")})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected replaced intent to be rejected, got %v", err)
	}
	if late.ID != placed.ID || late.Payment.Status != domain.PaymentStatusPending || late.Payment.IntentID != "pi_2" {
		t.Fatalf("expected current attempt untouched, got %+v", late.Payment)
	}
	if !slices.Equal(late.Payment.UnmatchedCaptures, []string{"ch_1", "ch_late"}) || !slices.Equal(late.Payment.PreviousIntentIDs, []string{"pi_1"}) {
		t.Fatalf("unexpected reconciliation record %+v", late.Payment)
	}

	paid, err := f.checkout.HandlePaymentCallback(ctx, PaymentCallbackCommand{IntentID: "pi_2", ExternalPaymentID: "ch_2", Signature: f.signer.Sign("pi_2", "ch_2")})
	if err != nil {
		t.Fatalf("callback for current intent: %v", err)
	}
	if paid.Payment.Status != domain.PaymentStatusCompleted || len(paid.Payment.UnmatchedCaptures) != 2 {
		t.Fatalf("unexpected payment after settling current intent: %+v", paid.Payment)
	}
}

func TestRetryPaymentRequiresFailedOnlinePaymentOfOwner(t *testing.T) {
	ctx := context.Background()
	f := newCheckoutFixture(t, testProducts()...)
	f.fillCart(t, "u1", "", domain.CartItem{ProductID: "p1", Quantity: 1, UnitPrice: 1000})
	placed := f.place(t, "u1", domain.PaymentMethodOnline).Order

	if _, err := f.checkout.RetryPayment(ctx, RetryPaymentCommand{UserID: "u1", OrderID: placed.ID}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict while payment pending, got %v", err)
	}
	if _, err := f.checkout.RetryPayment(ctx, RetryPaymentCommand{UserID: "u2", OrderID: placed.ID}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized for another user, got %v", err)
	}
}

func TestPaymentCallbackAfterCancellationRefundsWallet(t *testing.T) {
	ctx := context.Background()
	f := newCheckoutFixture(t, testProducts()...)
	f.fillCart(t, "u1", "", domain.CartItem{ProductID: "p1", Quantity: 1, UnitPrice: 1000})
	placed := f.place(t, "u1", domain.PaymentMethodOnline).Order

	if _, err := f.orders.CancelOrder(ctx, CancelOrderCommand{OrderID: placed.ID, Actor: Actor{UserID: "u1"}}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got := f.balance(t, "u1"); got != 0 {
		t.Fatalf("unpaid cancellation must not credit wallet, got %d", got)
	}

	order, err := f.checkout.HandlePaymentCallback(ctx, PaymentCallbackCommand{IntentID: "pi_1", ExternalPaymentID: "ch_1", Signature: f.signer.Sign("pi_1", "ch_1")})
	if err != nil {
		t.Fatalf("late callback: %v", err)
	}
	if order.Status != domain.OrderStatusCancelled || order.Payment.Status != domain.PaymentStatusRefunded {
		t.Fatalf("expected cancelled/refunded, got %s/%s", order.Status, order.Payment.Status)
	}
	if got := f.balance(t, "u1"); got != 1000 {
		t.Fatalf("expected captured amount credited, got %d", got)
	}
	if got := stockOf(t, f.store, "p1"); got != 5 {
		t.Fatalf("expected stock released once, got %d", got)
	}
}
