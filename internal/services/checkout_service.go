package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/payments"
	"github.com/hanko-field/storefront/internal/repositories"
)

const (
	checkoutStageValidate = "validate"
	checkoutStageReserve  = "reserve"
	checkoutStageAddress  = "address"
	checkoutStagePayment  = "payment"
	checkoutStagePersist  = "persist"

	gatewayActor = "gateway"
)

// CheckoutServiceDeps wires the dependencies required by the checkout service.
type CheckoutServiceDeps struct {
	Carts       repositories.CartRepository
	Products    repositories.ProductRepository
	Addresses   repositories.AddressRepository
	Orders      repositories.OrderRepository
	Coupons     CouponService
	Stock       StockLedger
	Wallet      WalletLedger
	Gateway     PaymentGateway
	Events      OrderEventPublisher
	Metrics     MetricsRecorder
	Currency    string
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type checkoutService struct {
	carts     repositories.CartRepository
	products  repositories.ProductRepository
	addresses repositories.AddressRepository
	orders    repositories.OrderRepository
	coupons   CouponService
	stock     StockLedger
	wallet    WalletLedger
	gateway   PaymentGateway
	events    OrderEventPublisher
	metrics   MetricsRecorder
	currency  string
	now       func() time.Time
	newID     func() string
	logger    func(context.Context, string, map[string]any)
}

// NewCheckoutService constructs a CheckoutService validating required dependencies.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	switch {
	case deps.Carts == nil:
		return nil, errors.New("checkout service: cart repository is required")
	case deps.Products == nil:
		return nil, errors.New("checkout service: product repository is required")
	case deps.Addresses == nil:
		return nil, errors.New("checkout service: address repository is required")
	case deps.Orders == nil:
		return nil, errors.New("checkout service: order repository is required")
	case deps.Coupons == nil:
		return nil, errors.New("checkout service: coupon service is required")
	case deps.Stock == nil:
		return nil, errors.New("checkout service: stock ledger is required")
	case deps.Wallet == nil:
		return nil, errors.New("checkout service: wallet ledger is required")
	case deps.Gateway == nil:
		return nil, errors.New("checkout service: payment gateway is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "USD"
	}

	return &checkoutService{
		carts:     deps.Carts,
		products:  deps.Products,
		addresses: deps.Addresses,
		orders:    deps.Orders,
		coupons:   deps.Coupons,
		stock:     deps.Stock,
		wallet:    deps.Wallet,
		gateway:   deps.Gateway,
		events:    deps.Events,
		metrics:   metricsOrNoop(deps.Metrics),
		currency:  currency,
		now: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// Checkout runs the order creation saga. Stock is reserved all-or-nothing, the address is
// snapshotted, payment is taken or deferred according to the method, and the order is stored
// together with its coupon usage. Any failure undoes the completed steps newest first.
func (s *checkoutService) Checkout(ctx context.Context, cmd CheckoutCommand) (CheckoutResult, error) {
	userID := strings.TrimSpace(cmd.UserID)
	addressID := strings.TrimSpace(cmd.AddressID)
	if userID == "" || addressID == "" {
		return CheckoutResult{}, fmt.Errorf("%w: user id and address id are required", ErrInvalidInput)
	}
	if !cmd.PaymentMethod.Valid() {
		return CheckoutResult{}, fmt.Errorf("%w: unsupported payment method %q", ErrInvalidInput, cmd.PaymentMethod)
	}

	cart, err := s.carts.GetCart(ctx, userID)
	if err != nil {
		if isRepoNotFound(err) {
			return CheckoutResult{}, ErrEmptyCart
		}
		return CheckoutResult{}, mapRepositoryError("checkout.cart", err)
	}
	if len(cart.Items) == 0 {
		return CheckoutResult{}, ErrEmptyCart
	}

	now := s.now()
	order := Order{
		ID:            orderIDPrefix + s.newID(),
		UserID:        userID,
		Currency:      s.currency,
		PaymentMethod: cmd.PaymentMethod,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	// (1) recompute line subtotals from the cart snapshot and revalidate the coupon
	if err := s.buildItems(ctx, &order, cart); err != nil {
		s.metrics.CheckoutFailed(ctx, checkoutStageValidate)
		return CheckoutResult{}, err
	}
	usage, err := s.applyCoupon(ctx, &order, cart, now)
	if err != nil {
		s.metrics.CheckoutFailed(ctx, checkoutStageValidate)
		return CheckoutResult{}, err
	}

	// (2) reserve stock for every line or none
	lines := make([]StockLine, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, StockLine{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	if err := s.stock.ReserveAll(ctx, lines); err != nil {
		s.metrics.CheckoutFailed(ctx, checkoutStageReserve)
		return CheckoutResult{}, err
	}
	var tx saga
	tx.push("stock.release", func(ctx context.Context) error {
		return s.stock.ReleaseAll(ctx, lines)
	})

	// (3) snapshot the shipping address
	address, err := s.addresses.Get(ctx, userID, addressID)
	if err != nil {
		return CheckoutResult{}, s.abort(ctx, &tx, order, checkoutStageAddress, mapRepositoryError("checkout.address", err))
	}
	order.ShippingAddress = snapshotAddress(address)

	// (4) take or defer payment
	var clientSecret string
	switch cmd.PaymentMethod {
	case domain.PaymentMethodWallet:
		if order.Total > 0 {
			if _, err := s.wallet.Debit(ctx, WalletEntryCommand{
				UserID:      userID,
				Amount:      order.Total,
				Description: "Payment for order " + order.ID,
				OrderID:     order.ID,
			}); err != nil {
				return CheckoutResult{}, s.abort(ctx, &tx, order, checkoutStagePayment, err)
			}
			total := order.Total
			tx.push("wallet.reverse", func(ctx context.Context) error {
				_, err := s.wallet.Credit(ctx, WalletEntryCommand{
					UserID:      userID,
					Amount:      total,
					Description: "Reversal of payment for order " + order.ID,
					OrderID:     order.ID,
				})
				return err
			})
		}
		order.Status = domain.OrderStatusProcessing
		order.Payment = domain.OrderPayment{Status: domain.PaymentStatusCompleted, Provider: string(domain.PaymentMethodWallet), CollectedAmount: order.Total, UpdatedAt: now}
	case domain.PaymentMethodCOD:
		order.Status = domain.OrderStatusProcessing
		order.Payment = domain.OrderPayment{Status: domain.PaymentStatusPending, Provider: string(domain.PaymentMethodCOD), UpdatedAt: now}
	case domain.PaymentMethodOnline:
		intent, err := s.gateway.CreateIntent(ctx, payments.IntentRequest{
			Amount:     order.Total,
			Currency:   order.Currency,
			ReceiptRef: order.ID,
			Metadata:   intentMetadata(order, 1),
		})
		if err != nil {
			return CheckoutResult{}, s.abort(ctx, &tx, order, checkoutStagePayment, fmt.Errorf("%w: create intent: %v", ErrExternalFailure, err))
		}
		order.Status = domain.OrderStatusPending
		order.Payment = domain.OrderPayment{
			Status:    domain.PaymentStatusPending,
			Provider:  intent.Provider,
			IntentID:  intent.ID,
			Attempts:  1,
			UpdatedAt: now,
		}
		clientSecret = intent.ClientSecret
	}

	order.History = initialHistory(order.Status, now, "Order placed", userID)
	for i := range order.Items {
		order.Items[i].Status = order.Status
		order.Items[i].History = initialHistory(order.Status, now, "Order placed", userID)
	}

	// (5) create the order and record coupon usage in one write
	if err := s.orders.Create(ctx, order, usage); err != nil {
		return CheckoutResult{}, s.abort(ctx, &tx, order, checkoutStagePersist, mapRepositoryError("checkout.persist", err))
	}

	// (6) empty the cart; the order already exists so a failure here is not fatal
	if err := s.carts.ClearCart(ctx, userID, now); err != nil {
		s.logger(ctx, "checkout.cart_clear_failed", map[string]any{
			"userID":  userID,
			"orderID": order.ID,
			"error":   err.Error(),
		})
	}

	s.metrics.CheckoutCompleted(ctx, order.PaymentMethod, order.Total)
	publishOrderEvent(ctx, s.events, s.logger, OrderEvent{
		Type:          orderEventCreated,
		OrderID:       order.ID,
		UserID:        order.UserID,
		CurrentStatus: string(order.Status),
		ActorID:       userID,
		OccurredAt:    now,
		Metadata: map[string]any{
			"total":         order.Total,
			"paymentMethod": string(order.PaymentMethod),
			"paymentStatus": string(order.Payment.Status),
		},
	})

	return CheckoutResult{Order: order, ClientSecret: clientSecret}, nil
}

// RetryPayment issues a new gateway intent for an online order whose payment failed. Stock stays
// reserved from the original checkout.
func (s *checkoutService) RetryPayment(ctx context.Context, cmd RetryPaymentCommand) (CheckoutResult, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return CheckoutResult{}, fmt.Errorf("%w: order id is required", ErrInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return CheckoutResult{}, mapRepositoryError("checkout.retry", err)
	}
	if order.UserID != strings.TrimSpace(cmd.UserID) {
		return CheckoutResult{}, fmt.Errorf("%w: order %s belongs to another user", ErrUnauthorized, order.ID)
	}
	if order.PaymentMethod != domain.PaymentMethodOnline {
		return CheckoutResult{}, fmt.Errorf("%w: payment retry requires an online payment", ErrInvalidTransition)
	}
	if order.Payment.Status != domain.PaymentStatusFailed {
		return CheckoutResult{}, fmt.Errorf("%w: payment is %s", ErrInvalidTransition, order.Payment.Status)
	}
	if order.Status != domain.OrderStatusPending {
		return CheckoutResult{}, fmt.Errorf("%w: order is %s", ErrInvalidTransition, order.Status)
	}

	attempt := order.Payment.Attempts + 1
	intent, err := s.gateway.CreateIntent(ctx, payments.IntentRequest{
		Amount:     order.Total,
		Currency:   order.Currency,
		ReceiptRef: fmt.Sprintf("%s-%d", order.ID, attempt),
		Metadata:   intentMetadata(order, attempt),
	})
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("%w: create intent: %v", ErrExternalFailure, err)
	}

	now := s.now()
	expected := order.Version
	prev := order.Payment.Status
	if err := transitionPayment(&order.Payment, domain.PaymentStatusPending, now); err != nil {
		return CheckoutResult{}, err
	}
	if order.Payment.IntentID != "" {
		order.Payment.PreviousIntentIDs = append(order.Payment.PreviousIntentIDs, order.Payment.IntentID)
	}
	order.Payment.IntentID = intent.ID
	order.Payment.Provider = intent.Provider
	order.Payment.ExternalPaymentID = ""
	order.Payment.Attempts = attempt
	order.UpdatedAt = now

	updated, err := s.orders.Apply(ctx, repositories.OrderMutation{Order: order, ExpectedVersion: expected})
	if err != nil {
		return CheckoutResult{}, mapRepositoryError("checkout.retry", err)
	}
	publishPaymentChange(ctx, s.publish, updated, prev, updated.UserID, now)
	return CheckoutResult{Order: updated, ClientSecret: intent.ClientSecret}, nil
}

// HandlePaymentCallback settles the payment bound to the callback's intent. A forged signature
// marks a pending payment failed and leaves order status and stock untouched. Replays of an
// already settled callback are acknowledged without writing. A genuine capture that can no
// longer settle the order, because the payment failed or the intent was replaced by a retry, is
// recorded in UnmatchedCaptures for reconciliation.
func (s *checkoutService) HandlePaymentCallback(ctx context.Context, cmd PaymentCallbackCommand) (Order, error) {
	intentID := strings.TrimSpace(cmd.IntentID)
	externalID := strings.TrimSpace(cmd.ExternalPaymentID)
	if intentID == "" || externalID == "" {
		return Order{}, fmt.Errorf("%w: intent id and payment id are required", ErrInvalidInput)
	}
	order, err := s.orders.FindByPaymentIntent(ctx, intentID)
	if err != nil {
		return Order{}, mapRepositoryError("checkout.callback", err)
	}

	valid := s.gateway.VerifyCallback(intentID, externalID, strings.TrimSpace(cmd.Signature))
	s.metrics.CallbackVerified(ctx, valid)
	now := s.now()
	expected := order.Version
	prev := order.Payment.Status
	superseded := order.Payment.IntentID != intentID

	if !valid {
		s.logger(ctx, "payment.callback.invalid_signature", map[string]any{"orderID": order.ID, "intentID": intentID})
		if superseded || order.Payment.Status != domain.PaymentStatusPending {
			return order, ErrInvalidSignature
		}
		if err := transitionPayment(&order.Payment, domain.PaymentStatusFailed, now); err != nil {
			return Order{}, err
		}
		order.UpdatedAt = now
		updated, err := s.orders.Apply(ctx, repositories.OrderMutation{Order: order, ExpectedVersion: expected})
		if err != nil {
			return Order{}, mapRepositoryError("checkout.callback", err)
		}
		publishPaymentChange(ctx, s.publish, updated, prev, gatewayActor, now)
		return updated, ErrInvalidSignature
	}

	if superseded {
		return s.recordUnmatchedCapture(ctx, order, intentID, externalID, now,
			fmt.Errorf("%w: intent %s was replaced by %s", ErrInvalidTransition, intentID, order.Payment.IntentID))
	}
	switch order.Payment.Status {
	case domain.PaymentStatusCompleted, domain.PaymentStatusRefunded:
		if order.Payment.ExternalPaymentID == externalID {
			return order, nil
		}
		return Order{}, fmt.Errorf("%w: intent %s already settled by another payment", ErrConflict, intentID)
	case domain.PaymentStatusFailed:
		return s.recordUnmatchedCapture(ctx, order, intentID, externalID, now,
			fmt.Errorf("%w: payment for intent %s already failed", ErrInvalidTransition, intentID))
	}

	if err := transitionPayment(&order.Payment, domain.PaymentStatusCompleted, now); err != nil {
		return Order{}, err
	}
	order.Payment.ExternalPaymentID = externalID
	order.Payment.CollectedAmount = order.Total

	mutation := repositories.OrderMutation{ExpectedVersion: expected}
	prevStatus := order.Status
	if order.Status == domain.OrderStatusPending {
		if err := transitionOrder(&order, domain.OrderStatusProcessing, now, "Payment confirmed", gatewayActor); err != nil {
			return Order{}, err
		}
		for i := range order.Items {
			if order.Items[i].Status == domain.OrderStatusPending {
				if err := transitionItem(&order.Items[i], domain.OrderStatusProcessing, now, "Payment confirmed", gatewayActor); err != nil {
					return Order{}, err
				}
			}
		}
	}
	// items cancelled while the payment was pending are refunded now that it was captured
	refund := settleCancelledShare(&order)
	if refund > 0 {
		if err := applyRefund(&order, refund, now); err != nil {
			return Order{}, err
		}
		mutation.WalletCredits = []domain.WalletTransaction{newRefundCredit(s.newID(), order, refund, "Refund for items cancelled before payment of order "+order.ID, now)}
	}
	order.UpdatedAt = now
	mutation.Order = order

	updated, err := s.orders.Apply(ctx, mutation)
	if err != nil {
		return Order{}, mapRepositoryError("checkout.callback", err)
	}
	if refund > 0 {
		s.metrics.RefundCredited(ctx, refund)
	}
	publishPaymentChange(ctx, s.publish, updated, prev, gatewayActor, now)
	if updated.Status != prevStatus {
		publishOrderEvent(ctx, s.events, s.logger, OrderEvent{
			Type:           orderEventStatusChanged,
			OrderID:        updated.ID,
			UserID:         updated.UserID,
			PreviousStatus: string(prevStatus),
			CurrentStatus:  string(updated.Status),
			ActorID:        gatewayActor,
			OccurredAt:     now,
		})
	}
	return updated, nil
}

// recordUnmatchedCapture keeps a genuine gateway payment on the order without changing payment
// status. Replays of an already recorded capture do not write again.
func (s *checkoutService) recordUnmatchedCapture(ctx context.Context, order domain.Order, intentID, externalID string, now time.Time, cause error) (Order, error) {
	s.logger(ctx, "payment.callback.unmatched_capture_invariant", map[string]any{
		"orderID":           order.ID,
		"intentID":          intentID,
		"currentIntentID":   order.Payment.IntentID,
		"externalPaymentID": externalID,
		"paymentStatus":     string(order.Payment.Status),
	})
	if slices.Contains(order.Payment.UnmatchedCaptures, externalID) {
		return order, cause
	}
	expected := order.Version
	order.Payment.UnmatchedCaptures = append(order.Payment.UnmatchedCaptures, externalID)
	order.UpdatedAt = now
	updated, err := s.orders.Apply(ctx, repositories.OrderMutation{Order: order, ExpectedVersion: expected})
	if err != nil {
		return Order{}, mapRepositoryError("checkout.callback", err)
	}
	return updated, cause
}

func (s *checkoutService) buildItems(ctx context.Context, order *Order, cart Cart) error {
	items := slices.Clone(cart.Items)
	slices.SortFunc(items, func(a, b CartItem) int { return strings.Compare(a.ProductID, b.ProductID) })

	order.Items = make([]domain.OrderItem, 0, len(items))
	order.Subtotal = 0
	for _, line := range items {
		if line.Quantity <= 0 || line.UnitPrice < 0 {
			return fmt.Errorf("%w: invalid cart line for product %s", ErrInvalidInput, line.ProductID)
		}
		product, err := s.products.Get(ctx, line.ProductID)
		if err != nil {
			return mapRepositoryError("checkout.product", err)
		}
		if !product.Active {
			return fmt.Errorf("%w: product %s is no longer available", ErrInvalidInput, product.ID)
		}
		subtotal := line.UnitPrice * int64(line.Quantity)
		order.Items = append(order.Items, domain.OrderItem{
			ID:          orderItemIDPrefix + s.newID(),
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			Subtotal:    subtotal,
		})
		order.Subtotal += subtotal
	}
	order.Total = order.Subtotal
	return nil
}

func (s *checkoutService) applyCoupon(ctx context.Context, order *Order, cart Cart, now time.Time) (*domain.CouponUsage, error) {
	if cart.Coupon == nil || strings.TrimSpace(cart.Coupon.Code) == "" {
		return nil, nil
	}
	validation, err := s.coupons.Validate(ctx, ValidateCouponCommand{Code: cart.Coupon.Code, CartTotal: order.Subtotal, UserID: order.UserID})
	if err != nil {
		return nil, err
	}
	code := validation.Coupon.Code
	order.CouponCode = &code
	order.Discount = validation.Discount
	order.Total = order.Subtotal - order.Discount
	return &domain.CouponUsage{
		CouponID: validation.Coupon.ID,
		Code:     code,
		UserID:   order.UserID,
		OrderID:  order.ID,
		UsedAt:   now,
	}, nil
}

func (s *checkoutService) abort(ctx context.Context, tx *saga, order Order, stage string, cause error) error {
	s.metrics.CheckoutFailed(ctx, stage)
	s.logger(ctx, "checkout.aborted", map[string]any{
		"orderID": order.ID,
		"userID":  order.UserID,
		"stage":   stage,
		"error":   cause.Error(),
	})
	err := tx.compensate(ctx, func(step string, err error) {
		s.logger(ctx, "checkout.compensation_failed", map[string]any{
			"orderID": order.ID,
			"step":    step,
			"error":   err.Error(),
		})
	})
	if err != nil {
		return errors.Join(cause, fmt.Errorf("%w: compensation incomplete: %v", ErrInvariantViolation, err))
	}
	return cause
}

func (s *checkoutService) publish(ctx context.Context, event OrderEvent) {
	publishOrderEvent(ctx, s.events, s.logger, event)
}

// settleCancelledShare marks cancelled, unrefunded items as refunded and returns their share of
// the order total.
func settleCancelledShare(order *Order) int64 {
	amounts := itemRefundAmounts(*order)
	var share int64
	for i := range order.Items {
		item := &order.Items[i]
		if item.Status == domain.OrderStatusCancelled && item.RefundedAmount == 0 {
			item.RefundedAmount = amounts[i]
			share += amounts[i]
		}
	}
	return share
}

func snapshotAddress(addr domain.Address) domain.Address {
	out := addr
	if addr.Line2 != nil {
		v := *addr.Line2
		out.Line2 = &v
	}
	if addr.State != nil {
		v := *addr.State
		out.State = &v
	}
	if addr.Phone != nil {
		v := *addr.Phone
		out.Phone = &v
	}
	return out
}

func intentMetadata(order domain.Order, attempt int) map[string]string {
	return map[string]string{
		"order_id": order.ID,
		"user_id":  order.UserID,
		"attempt":  strconv.Itoa(attempt),
	}
}
