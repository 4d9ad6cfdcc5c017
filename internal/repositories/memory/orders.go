package memory

import (
	"context"
	"slices"
	"strings"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/platform/pagination"
	"github.com/hanko-field/storefront/internal/repositories"
)

type orderRepo struct{ s *Store }

func (r orderRepo) Create(_ context.Context, order domain.Order, usage *domain.CouponUsage) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.orders[order.ID]; ok {
		return conflict("orders.create", "order %s already exists", order.ID)
	}

	var coupon domain.Coupon
	if usage != nil {
		var ok bool
		coupon, ok = r.s.coupons[usage.CouponID]
		if !ok {
			return repositories.NewCouponUsageError(repositories.CouponUsageCouponNotFound, usage.Code, "coupon no longer exists")
		}
		if coupon.GlobalLimitReached() {
			return repositories.NewCouponUsageError(repositories.CouponUsageGlobalLimit, coupon.Code, "usage limit reached")
		}
		if coupon.UserLimitReached(usage.UserID) {
			return repositories.NewCouponUsageError(repositories.CouponUsageUserLimit, coupon.Code, "user usage limit reached")
		}
	}

	if usage != nil {
		coupon = cloneCoupon(coupon)
		coupon.Usages = append(coupon.Usages, *usage)
		coupon.UsedCount++
		coupon.UpdatedAt = usage.UsedAt
		r.s.coupons[coupon.ID] = coupon
	}
	r.s.orders[order.ID] = cloneOrder(order)
	return nil
}

func (r orderRepo) Apply(_ context.Context, mutation repositories.OrderMutation) (domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	orderID := mutation.Order.ID
	stored, ok := r.s.orders[orderID]
	if !ok {
		return domain.Order{}, notFound("orders.apply", "order %s not found", orderID)
	}
	if stored.Version != mutation.ExpectedVersion {
		return domain.Order{}, &repositories.VersionConflictError{OrderID: orderID, Expected: mutation.ExpectedVersion, Actual: stored.Version}
	}

	// validate every effect before writing anything
	for _, release := range mutation.StockReleases {
		if release.Quantity <= 0 {
			return domain.Order{}, repositories.NewStockError(repositories.StockErrorInvalidQuantity, release.ProductID, "quantity must be > 0", nil)
		}
		if _, ok := r.s.products[release.ProductID]; !ok {
			return domain.Order{}, repositories.NewStockError(repositories.StockErrorProductNotFound, release.ProductID, "stock "+release.ProductID+" not found", nil)
		}
	}
	pending := make(map[string]int64)
	for _, credit := range mutation.WalletCredits {
		if err := r.s.checkWalletLocked(credit); err != nil {
			return domain.Order{}, err
		}
		pending[credit.UserID] += credit.Signed()
		if r.s.wallets[credit.UserID].Balance+pending[credit.UserID] < 0 {
			return domain.Order{}, repositories.NewWalletError(repositories.WalletErrorNegativeBalance, credit.UserID, "balance would become negative")
		}
	}

	for _, release := range mutation.StockReleases {
		if _, err := r.s.adjustStockLocked("orders.apply", release.ProductID, release.Quantity, false); err != nil {
			return domain.Order{}, err
		}
	}
	for _, credit := range mutation.WalletCredits {
		r.s.applyWalletLocked(credit)
	}

	next := cloneOrder(mutation.Order)
	next.Version = stored.Version + 1
	r.s.orders[orderID] = next
	return cloneOrder(next), nil
}

func (r orderRepo) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	order, ok := r.s.orders[orderID]
	if !ok {
		return domain.Order{}, notFound("orders.get", "order %s not found", orderID)
	}
	return cloneOrder(order), nil
}

func (r orderRepo) FindByPaymentIntent(_ context.Context, intentID string) (domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, order := range r.s.orders {
		if intentID == "" {
			break
		}
		if order.Payment.IntentID == intentID || slices.Contains(order.Payment.PreviousIntentIDs, intentID) {
			return cloneOrder(order), nil
		}
	}
	return domain.Order{}, notFound("orders.findByIntent", "no order for intent %s", intentID)
}

func (r orderRepo) List(_ context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var items []domain.Order
	for _, order := range r.s.orders {
		if filter.UserID != "" && order.UserID != filter.UserID {
			continue
		}
		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, order.Status) {
			continue
		}
		if from := filter.CreatedAt.From; from != nil && order.CreatedAt.Before(*from) {
			continue
		}
		if to := filter.CreatedAt.To; to != nil && !order.CreatedAt.Before(*to) {
			continue
		}
		items = append(items, cloneOrder(order))
	}
	return paginate(items, filter.Pagination, func(o domain.Order) (time.Time, string) { return o.CreatedAt, o.ID })
}

func paginate[T any](items []T, page domain.Pagination, key func(T) (time.Time, string)) (domain.CursorPage[T], error) {
	slices.SortFunc(items, func(a, b T) int {
		at, aid := key(a)
		bt, bid := key(b)
		if c := bt.Compare(at); c != 0 {
			return c
		}
		return strings.Compare(bid, aid)
	})
	cursor, err := pagination.DecodeToken(page.PageToken)
	if err != nil {
		return domain.CursorPage[T]{}, err
	}
	size := pagination.ClampPageSize(page.PageSize)

	out := make([]T, 0, size)
	var next string
	for _, item := range items {
		at, id := key(item)
		if !cursor.After(at, id) {
			continue
		}
		if len(out) == size {
			last := out[len(out)-1]
			lastAt, lastID := key(last)
			next, err = pagination.EncodeToken(pagination.Cursor{CreatedAt: lastAt, ID: lastID})
			if err != nil {
				return domain.CursorPage[T]{}, err
			}
			break
		}
		out = append(out, item)
	}
	return domain.CursorPage[T]{Items: out, NextPageToken: next}, nil
}

func cloneOrder(order domain.Order) domain.Order {
	out := order
	out.Items = make([]domain.OrderItem, len(order.Items))
	for i, item := range order.Items {
		copied := item
		copied.History = slices.Clone(item.History)
		if item.Return != nil {
			ret := *item.Return
			copied.Return = &ret
		}
		out.Items[i] = copied
	}
	out.History = slices.Clone(order.History)
	out.Payment.PreviousIntentIDs = slices.Clone(order.Payment.PreviousIntentIDs)
	out.Payment.UnmatchedCaptures = slices.Clone(order.Payment.UnmatchedCaptures)
	if order.CouponCode != nil {
		code := *order.CouponCode
		out.CouponCode = &code
	}
	return out
}

func cloneOffer(offer domain.Offer) domain.Offer {
	offer.ProductIDs = slices.Clone(offer.ProductIDs)
	return offer
}

func cloneCoupon(coupon domain.Coupon) domain.Coupon {
	coupon.Usages = slices.Clone(coupon.Usages)
	if coupon.MaxDiscount != nil {
		v := *coupon.MaxDiscount
		coupon.MaxDiscount = &v
	}
	if coupon.GlobalLimit != nil {
		v := *coupon.GlobalLimit
		coupon.GlobalLimit = &v
	}
	return coupon
}

func cloneCart(cart domain.Cart) domain.Cart {
	cart.Items = slices.Clone(cart.Items)
	if cart.Coupon != nil {
		c := *cart.Coupon
		cart.Coupon = &c
	}
	return cart
}
