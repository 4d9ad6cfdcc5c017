package services

import (
	"fmt"
	"slices"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
)

var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:          {domain.OrderStatusProcessing, domain.OrderStatusCancelled},
	domain.OrderStatusProcessing:       {domain.OrderStatusShipped, domain.OrderStatusCancelled},
	domain.OrderStatusShipped:          {domain.OrderStatusDelivered},
	domain.OrderStatusDelivered:        {domain.OrderStatusRefundProcessing, domain.OrderStatusReturned},
	domain.OrderStatusRefundProcessing: {domain.OrderStatusReturned, domain.OrderStatusDelivered},
}

var paymentStateTransitions = map[domain.PaymentStatus][]domain.PaymentStatus{
	domain.PaymentStatusPending:   {domain.PaymentStatusCompleted, domain.PaymentStatusFailed},
	domain.PaymentStatusCompleted: {domain.PaymentStatusRefunded},
	domain.PaymentStatusFailed:    {domain.PaymentStatusPending},
}

var cancellableStatuses = []domain.OrderStatus{
	domain.OrderStatusPending,
	domain.OrderStatusProcessing,
}

func canTransition(current, target domain.OrderStatus) bool {
	return slices.Contains(orderStateTransitions[current], target)
}

func canTransitionPayment(current, target domain.PaymentStatus) bool {
	return slices.Contains(paymentStateTransitions[current], target)
}

// transitionOrder is the only writer of Order.Status. It appends the history entry in the same
// step so the history tail always equals the current status.
func transitionOrder(order *domain.Order, target domain.OrderStatus, at time.Time, comment, actor string) error {
	if !canTransition(order.Status, target) {
		return fmt.Errorf("%w: order %s cannot move from %s to %s", ErrInvalidTransition, order.ID, order.Status, target)
	}
	order.Status = target
	order.History = append(order.History, domain.StatusHistoryEntry{Status: target, At: at, Comment: comment, Actor: actor})
	order.UpdatedAt = at
	return nil
}

// transitionItem is the only writer of OrderItem.Status.
func transitionItem(item *domain.OrderItem, target domain.OrderStatus, at time.Time, comment, actor string) error {
	if !canTransition(item.Status, target) {
		return fmt.Errorf("%w: item %s cannot move from %s to %s", ErrInvalidTransition, item.ID, item.Status, target)
	}
	item.Status = target
	item.History = append(item.History, domain.StatusHistoryEntry{Status: target, At: at, Comment: comment, Actor: actor})
	return nil
}

func transitionPayment(payment *domain.OrderPayment, target domain.PaymentStatus, at time.Time) error {
	if payment.Status == target {
		return nil
	}
	if !canTransitionPayment(payment.Status, target) {
		return fmt.Errorf("%w: payment cannot move from %s to %s", ErrInvalidTransition, payment.Status, target)
	}
	payment.Status = target
	payment.UpdatedAt = at
	return nil
}

// initialHistory seeds a freshly created order or item.
func initialHistory(status domain.OrderStatus, at time.Time, comment, actor string) []domain.StatusHistoryEntry {
	return []domain.StatusHistoryEntry{{Status: status, At: at, Comment: comment, Actor: actor}}
}

// reconcileOrderStatus derives the order status from its items after an item level change:
// every item cancelled cancels the order, a pending return puts it in refund-processing and
// every remaining item returned completes the return.
func reconcileOrderStatus(order *domain.Order, at time.Time, comment, actor string) error {
	target := derivedOrderStatus(*order)
	if target == order.Status {
		return nil
	}
	return transitionOrder(order, target, at, comment, actor)
}

func derivedOrderStatus(order domain.Order) domain.OrderStatus {
	active := 0
	returned := 0
	refunding := false
	for _, item := range order.Items {
		switch item.Status {
		case domain.OrderStatusCancelled:
			continue
		case domain.OrderStatusReturned:
			returned++
		case domain.OrderStatusRefundProcessing:
			refunding = true
		}
		active++
	}
	switch {
	case len(order.Items) > 0 && active == 0:
		return domain.OrderStatusCancelled
	case refunding:
		return domain.OrderStatusRefundProcessing
	case active > 0 && returned == active:
		return domain.OrderStatusReturned
	case order.Status == domain.OrderStatusRefundProcessing:
		return domain.OrderStatusDelivered
	}
	return order.Status
}

// latestStatusAt returns the timestamp of the newest history entry with the given status.
func latestStatusAt(history []domain.StatusHistoryEntry, status domain.OrderStatus) (time.Time, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Status == status {
			return history[i].At, true
		}
	}
	return time.Time{}, false
}

// itemRefundAmounts splits the order total across items: each item pays its subtotal minus a
// half-up pro-rata share of the order discount and the last item absorbs the rounding remainder,
// so the amounts always sum to Order.Total.
func itemRefundAmounts(order domain.Order) []int64 {
	amounts := make([]int64, len(order.Items))
	if len(order.Items) == 0 {
		return amounts
	}
	var allocated int64
	for i, item := range order.Items {
		if i == len(order.Items)-1 {
			amounts[i] = item.Subtotal - (order.Discount - allocated)
			break
		}
		share := int64(0)
		if order.Subtotal > 0 {
			share = (order.Discount*item.Subtotal*2 + order.Subtotal) / (order.Subtotal * 2)
		}
		allocated += share
		amounts[i] = item.Subtotal - share
	}
	return amounts
}

// collectedAmount is what the customer actually paid. Orders written before the amount was
// tracked fall back to the order total.
func collectedAmount(order domain.Order) int64 {
	if order.Payment.CollectedAmount > 0 {
		return order.Payment.CollectedAmount
	}
	return order.Total
}

// uncancelledAmount sums the refundable shares of items still live on the order.
func uncancelledAmount(order domain.Order) int64 {
	amounts := itemRefundAmounts(order)
	var sum int64
	for i, item := range order.Items {
		if item.Status == domain.OrderStatusCancelled {
			continue
		}
		sum += amounts[i]
	}
	return sum
}

// applyRefund records a refund against the payment, flipping it to refunded once the collected
// amount has been returned in full.
func applyRefund(order *domain.Order, amount int64, at time.Time) error {
	if amount <= 0 {
		return nil
	}
	if order.Payment.Status != domain.PaymentStatusCompleted {
		return fmt.Errorf("%w: refund on %s payment", ErrInvariantViolation, order.Payment.Status)
	}
	paid := collectedAmount(*order)
	if order.Payment.RefundedAmount+amount > paid {
		return fmt.Errorf("%w: refund of %d exceeds paid total %d", ErrInvariantViolation, order.Payment.RefundedAmount+amount, paid)
	}
	order.Payment.RefundedAmount += amount
	order.Payment.UpdatedAt = at
	if order.Payment.RefundedAmount == paid {
		return transitionPayment(&order.Payment, domain.PaymentStatusRefunded, at)
	}
	return nil
}

func findItem(order *domain.Order, itemID string) (int, bool) {
	for i := range order.Items {
		if order.Items[i].ID == itemID {
			return i, true
		}
	}
	return -1, false
}
