package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

const (
	orderEventCreated         = "order.created"
	orderEventStatusChanged   = "order.status.changed"
	orderEventPaymentChanged  = "order.payment.changed"
	orderEventRefunded        = "order.refunded"
	orderEventReturnRequested = "order.return.requested"

	orderIDPrefix     = "ord_"
	orderItemIDPrefix = "itm_"

	// ReturnWindow is measured from the item's latest delivered history entry.
	ReturnWindow = 7 * 24 * time.Hour
)

var fulfilmentTargets = []domain.OrderStatus{
	domain.OrderStatusProcessing,
	domain.OrderStatusShipped,
	domain.OrderStatusDelivered,
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string
	OrderID        string
	UserID         string
	ItemID         string
	PreviousStatus string
	CurrentStatus  string
	ActorID        string
	OccurredAt     time.Time
	Metadata       map[string]any
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Metrics     MetricsRecorder
	// Sanitize cleans free-text comments before they enter status history.
	Sanitize func(string) string
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders   repositories.OrderRepository
	clock    func() time.Time
	newID    func() string
	events   OrderEventPublisher
	metrics  MetricsRecorder
	sanitize func(string) string
	logger   func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	sanitize := deps.Sanitize
	if sanitize == nil {
		sanitize = strings.TrimSpace
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders: deps.Orders,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:    idGen,
		events:   deps.Events,
		metrics:  metricsOrNoop(deps.Metrics),
		sanitize: sanitize,
		logger:   logger,
	}, nil
}

func (s *orderService) GetOrder(ctx context.Context, query OrderQuery) (Order, error) {
	return s.loadOrder(ctx, query.OrderID, query.Actor)
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error) {
	page, err := s.orders.List(ctx, repositories.OrderListFilter{
		UserID:     strings.TrimSpace(filter.UserID),
		Statuses:   filter.Statuses,
		CreatedAt:  domain.RangeQuery[time.Time]{From: filter.From, To: filter.To},
		Pagination: filter.Pagination,
	})
	if err != nil {
		return domain.CursorPage[Order]{}, mapRepositoryError("order.list", err)
	}
	return page, nil
}

// CancelOrder cancels every item that is not cancelled yet, releasing their stock and crediting
// a paid order back to the wallet.
func (s *orderService) CancelOrder(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	order, err := s.loadOrder(ctx, cmd.OrderID, cmd.Actor)
	if err != nil {
		return Order{}, err
	}
	if !slices.Contains(cancellableStatuses, order.Status) {
		return Order{}, fmt.Errorf("%w: order %s is %s", ErrInvalidTransition, order.ID, order.Status)
	}

	now := s.now()
	expected := order.Version
	prevStatus := order.Status
	comment := s.comment(cmd.Reason, "Order cancelled")
	actor := cmd.Actor.ID()
	refundable := paidForRefund(order)
	amounts := itemRefundAmounts(order)

	var (
		releases []repositories.StockRelease
		refund   int64
	)
	for i := range order.Items {
		item := &order.Items[i]
		if item.Status == domain.OrderStatusCancelled {
			continue
		}
		if err := transitionItem(item, domain.OrderStatusCancelled, now, comment, actor); err != nil {
			return Order{}, err
		}
		releases = append(releases, repositories.StockRelease{ProductID: item.ProductID, Quantity: item.Quantity})
		if refundable {
			item.RefundedAmount = amounts[i]
			refund += amounts[i]
		}
	}
	if err := transitionOrder(&order, domain.OrderStatusCancelled, now, comment, actor); err != nil {
		return Order{}, err
	}

	updated, err := s.commit(ctx, &order, expected, releases, refund, "Refund for cancelled order "+order.ID, now)
	if err != nil {
		return Order{}, err
	}

	s.publishStatusChange(ctx, updated, "", prevStatus, actor, now, map[string]any{"reason": comment})
	s.publishRefund(ctx, updated, "", refund, actor, now)
	return updated, nil
}

func (s *orderService) CancelItem(ctx context.Context, cmd CancelItemCommand) (Order, error) {
	order, err := s.loadOrder(ctx, cmd.OrderID, cmd.Actor)
	if err != nil {
		return Order{}, err
	}
	idx, ok := findItem(&order, strings.TrimSpace(cmd.ItemID))
	if !ok {
		return Order{}, fmt.Errorf("%w: item %s not found in order %s", ErrNotFound, cmd.ItemID, order.ID)
	}
	if !slices.Contains(cancellableStatuses, order.Status) {
		return Order{}, fmt.Errorf("%w: order %s is %s", ErrInvalidTransition, order.ID, order.Status)
	}

	now := s.now()
	expected := order.Version
	prevStatus := order.Status
	comment := s.comment(cmd.Reason, "Item cancelled")
	actor := cmd.Actor.ID()

	item := &order.Items[idx]
	if err := transitionItem(item, domain.OrderStatusCancelled, now, comment, actor); err != nil {
		return Order{}, err
	}
	var refund int64
	if paidForRefund(order) {
		refund = itemRefundAmounts(order)[idx]
		item.RefundedAmount = refund
	}
	if err := reconcileOrderStatus(&order, now, comment, actor); err != nil {
		return Order{}, err
	}

	releases := []repositories.StockRelease{{ProductID: item.ProductID, Quantity: item.Quantity}}
	updated, err := s.commit(ctx, &order, expected, releases, refund, fmt.Sprintf("Refund for cancelled item %s of order %s", item.ID, order.ID), now)
	if err != nil {
		return Order{}, err
	}

	s.publishStatusChange(ctx, updated, item.ID, prevStatus, actor, now, map[string]any{"reason": comment})
	s.publishRefund(ctx, updated, item.ID, refund, actor, now)
	return updated, nil
}

// RequestReturn files a return for a delivered item within ReturnWindow of its delivery.
func (s *orderService) RequestReturn(ctx context.Context, cmd ReturnRequestCommand) (Order, error) {
	order, err := s.loadOrder(ctx, cmd.OrderID, Actor{UserID: cmd.UserID})
	if err != nil {
		return Order{}, err
	}
	idx, ok := findItem(&order, strings.TrimSpace(cmd.ItemID))
	if !ok {
		return Order{}, fmt.Errorf("%w: item %s not found in order %s", ErrNotFound, cmd.ItemID, order.ID)
	}
	item := &order.Items[idx]
	if item.Return != nil {
		return Order{}, fmt.Errorf("%w: return already requested for item %s", ErrConflict, item.ID)
	}
	if item.Status != domain.OrderStatusDelivered {
		return Order{}, fmt.Errorf("%w: item %s is %s", ErrInvalidTransition, item.ID, item.Status)
	}
	deliveredAt, ok := latestStatusAt(item.History, domain.OrderStatusDelivered)
	if !ok {
		s.logger(ctx, "order.return.missing_delivery", map[string]any{"orderID": order.ID, "itemID": item.ID})
		return Order{}, fmt.Errorf("%w: item %s has no delivery record", ErrInvariantViolation, item.ID)
	}

	now := s.now()
	if now.Sub(deliveredAt) > ReturnWindow {
		return Order{}, fmt.Errorf("%w: item %s delivered at %s", ErrReturnWindowExpired, item.ID, deliveredAt.Format(time.RFC3339))
	}

	expected := order.Version
	prevStatus := order.Status
	reason := s.sanitize(cmd.Reason)
	actor := strings.TrimSpace(cmd.UserID)
	if err := transitionItem(item, domain.OrderStatusRefundProcessing, now, s.comment(reason, "Return requested"), actor); err != nil {
		return Order{}, err
	}
	item.Return = &domain.ItemReturn{Reason: reason, RequestedAt: now}
	if err := reconcileOrderStatus(&order, now, "Return requested", actor); err != nil {
		return Order{}, err
	}

	updated, err := s.commit(ctx, &order, expected, nil, 0, "", now)
	if err != nil {
		return Order{}, err
	}
	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventReturnRequested,
		OrderID:        updated.ID,
		UserID:         updated.UserID,
		ItemID:         item.ID,
		PreviousStatus: string(prevStatus),
		CurrentStatus:  string(updated.Status),
		ActorID:        actor,
		OccurredAt:     now,
		Metadata:       map[string]any{"reason": reason},
	})
	return updated, nil
}

// ResolveReturn approves or rejects a pending return. Approval credits the item's share of the
// payment to the wallet and restocks the item; rejection returns it to delivered.
func (s *orderService) ResolveReturn(ctx context.Context, cmd ResolveReturnCommand) (Order, error) {
	order, err := s.loadOrder(ctx, cmd.OrderID, Actor{Admin: true})
	if err != nil {
		return Order{}, err
	}
	idx, ok := findItem(&order, strings.TrimSpace(cmd.ItemID))
	if !ok {
		return Order{}, fmt.Errorf("%w: item %s not found in order %s", ErrNotFound, cmd.ItemID, order.ID)
	}
	item := &order.Items[idx]
	if item.Status != domain.OrderStatusRefundProcessing || item.Return == nil || item.Return.ResolvedAt != nil {
		return Order{}, fmt.Errorf("%w: item %s has no pending return", ErrInvalidTransition, item.ID)
	}

	now := s.now()
	expected := order.Version
	prevStatus := order.Status
	comment := s.sanitize(cmd.Comment)
	actor := Actor{UserID: strings.TrimSpace(cmd.ActorID), Admin: true}.ID()
	approved := cmd.Approve

	var (
		releases []repositories.StockRelease
		refund   int64
	)
	if approved {
		if err := transitionItem(item, domain.OrderStatusReturned, now, s.comment(comment, "Return approved"), actor); err != nil {
			return Order{}, err
		}
		releases = append(releases, repositories.StockRelease{ProductID: item.ProductID, Quantity: item.Quantity})
		if order.Payment.Status == domain.PaymentStatusCompleted {
			refund = itemRefundAmounts(order)[idx]
			item.RefundedAmount = refund
		}
	} else {
		if err := transitionItem(item, domain.OrderStatusDelivered, now, s.comment(comment, "Return rejected"), actor); err != nil {
			return Order{}, err
		}
	}
	item.Return.ResolvedAt = &now
	item.Return.Approved = &approved
	item.Return.AdminComment = comment

	if err := reconcileOrderStatus(&order, now, s.comment(comment, "Return resolved"), actor); err != nil {
		return Order{}, err
	}

	updated, err := s.commit(ctx, &order, expected, releases, refund, fmt.Sprintf("Refund for returned item %s of order %s", item.ID, order.ID), now)
	if err != nil {
		return Order{}, err
	}
	s.publishStatusChange(ctx, updated, item.ID, prevStatus, actor, now, map[string]any{"approved": approved})
	s.publishRefund(ctx, updated, item.ID, refund, actor, now)
	return updated, nil
}

// TransitionStatus advances fulfilment. The order and every non-cancelled item move together;
// delivering a cash-on-delivery order records the payment as collected.
func (s *orderService) TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error) {
	if !slices.Contains(fulfilmentTargets, cmd.TargetStatus) {
		return Order{}, fmt.Errorf("%w: unsupported target status %q", ErrInvalidInput, cmd.TargetStatus)
	}
	order, err := s.loadOrder(ctx, cmd.OrderID, Actor{Admin: true})
	if err != nil {
		return Order{}, err
	}
	if order.PaymentMethod == domain.PaymentMethodOnline && order.Payment.Status != domain.PaymentStatusCompleted {
		return Order{}, fmt.Errorf("%w: order %s is awaiting payment", ErrInvalidTransition, order.ID)
	}

	now := s.now()
	expected := order.Version
	prevStatus := order.Status
	prevPayment := order.Payment.Status
	actor := Actor{UserID: strings.TrimSpace(cmd.ActorID), Admin: true}.ID()
	comment := s.comment(cmd.Comment, "Order "+string(cmd.TargetStatus))

	if err := transitionOrder(&order, cmd.TargetStatus, now, comment, actor); err != nil {
		return Order{}, err
	}
	for i := range order.Items {
		item := &order.Items[i]
		if item.Status == domain.OrderStatusCancelled {
			continue
		}
		if err := transitionItem(item, cmd.TargetStatus, now, comment, actor); err != nil {
			return Order{}, err
		}
	}
	if cmd.TargetStatus == domain.OrderStatusDelivered && order.PaymentMethod == domain.PaymentMethodCOD && order.Payment.Status == domain.PaymentStatusPending {
		if err := transitionPayment(&order.Payment, domain.PaymentStatusCompleted, now); err != nil {
			return Order{}, err
		}
		// Items cancelled before delivery were never paid for.
		order.Payment.CollectedAmount = uncancelledAmount(order)
	}

	updated, err := s.commit(ctx, &order, expected, nil, 0, "", now)
	if err != nil {
		return Order{}, err
	}
	s.publishStatusChange(ctx, updated, "", prevStatus, actor, now, nil)
	if updated.Payment.Status != prevPayment {
		s.publishPaymentChange(ctx, updated, prevPayment, actor, now)
	}
	return updated, nil
}

// commit records the refund on the payment and persists the order with its stock releases and
// wallet credit as one atomic write guarded by the version read at load time.
func (s *orderService) commit(ctx context.Context, order *domain.Order, expected int64, releases []repositories.StockRelease, refund int64, description string, now time.Time) (Order, error) {
	mutation := repositories.OrderMutation{ExpectedVersion: expected, StockReleases: releases}
	if refund > 0 {
		if err := applyRefund(order, refund, now); err != nil {
			s.logger(ctx, "order.refund.invariant", map[string]any{"orderID": order.ID, "amount": refund, "error": err.Error()})
			return Order{}, err
		}
		mutation.WalletCredits = []domain.WalletTransaction{newRefundCredit(s.newID(), *order, refund, description, now)}
	}
	order.UpdatedAt = now
	mutation.Order = *order

	updated, err := s.orders.Apply(ctx, mutation)
	if err != nil {
		mapped := mapRepositoryError("order.apply", err)
		if errors.Is(mapped, ErrInvariantViolation) {
			s.logger(ctx, "order.apply.invariant", map[string]any{"orderID": order.ID, "error": err.Error()})
		}
		return Order{}, mapped
	}
	if refund > 0 {
		s.metrics.RefundCredited(ctx, refund)
	}
	return updated, nil
}

func (s *orderService) loadOrder(ctx context.Context, orderID string, actor Actor) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, mapRepositoryError("order.get", err)
	}
	if !actor.Admin && order.UserID != strings.TrimSpace(actor.UserID) {
		return Order{}, fmt.Errorf("%w: order %s belongs to another user", ErrUnauthorized, order.ID)
	}
	return order, nil
}

func (s *orderService) comment(raw, fallback string) string {
	if cleaned := s.sanitize(raw); cleaned != "" {
		return cleaned
	}
	return fallback
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) publishStatusChange(ctx context.Context, order Order, itemID string, prev domain.OrderStatus, actor string, at time.Time, metadata map[string]any) {
	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        order.ID,
		UserID:         order.UserID,
		ItemID:         itemID,
		PreviousStatus: string(prev),
		CurrentStatus:  string(order.Status),
		ActorID:        actor,
		OccurredAt:     at,
		Metadata:       metadata,
	})
}

func (s *orderService) publishRefund(ctx context.Context, order Order, itemID string, amount int64, actor string, at time.Time) {
	if amount <= 0 {
		return
	}
	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventRefunded,
		OrderID:       order.ID,
		UserID:        order.UserID,
		ItemID:        itemID,
		CurrentStatus: string(order.Payment.Status),
		ActorID:       actor,
		OccurredAt:    at,
		Metadata:      map[string]any{"amount": amount, "refundedTotal": order.Payment.RefundedAmount},
	})
}

func (s *orderService) publishPaymentChange(ctx context.Context, order Order, prev domain.PaymentStatus, actor string, at time.Time) {
	publishPaymentChange(ctx, s.publishEvent, order, prev, actor, at)
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	publishOrderEvent(ctx, s.events, s.logger, event)
}

func publishPaymentChange(ctx context.Context, publish func(context.Context, OrderEvent), order Order, prev domain.PaymentStatus, actor string, at time.Time) {
	publish(ctx, OrderEvent{
		Type:           orderEventPaymentChanged,
		OrderID:        order.ID,
		UserID:         order.UserID,
		PreviousStatus: string(prev),
		CurrentStatus:  string(order.Payment.Status),
		ActorID:        actor,
		OccurredAt:     at,
		Metadata:       map[string]any{"method": string(order.PaymentMethod), "intentId": order.Payment.IntentID},
	})
}

func publishOrderEvent(ctx context.Context, events OrderEventPublisher, logger func(context.Context, string, map[string]any), event OrderEvent) {
	if events == nil {
		return
	}
	if event.Metadata != nil {
		event.Metadata = maps.Clone(event.Metadata)
	}
	if err := events.PublishOrderEvent(ctx, event); err != nil {
		logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": event.CurrentStatus,
		})
	}
}

// paidForRefund reports whether cancelling the order returns money to the wallet.
func paidForRefund(order domain.Order) bool {
	return order.PaymentMethod.Refundable() && order.Payment.Status == domain.PaymentStatusCompleted
}
