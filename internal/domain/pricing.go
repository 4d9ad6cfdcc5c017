package domain

import (
	"slices"
	"time"
)

// PercentOf returns pct percent of amount in minor units, rounded half-up.
func PercentOf(amount int64, pct int) int64 {
	if amount <= 0 || pct <= 0 {
		return 0
	}
	if pct >= 100 {
		return amount
	}
	return (amount*int64(pct) + 50) / 100
}

// DiscountedPrice applies a percentage discount to a base price, rounding half-up.
func DiscountedPrice(base int64, pct int) int64 {
	if pct <= 0 {
		return base
	}
	if pct >= 100 {
		return 0
	}
	return (base*int64(100-pct) + 50) / 100
}

// ActiveAt reports whether the offer is enabled and at falls inside [StartsAt, EndsAt).
func (o Offer) ActiveAt(at time.Time) bool {
	if o.Status != OfferStatusActive {
		return false
	}
	return !at.Before(o.StartsAt) && at.Before(o.EndsAt)
}

// AppliesTo reports whether the offer targets the product directly or through its category.
func (o Offer) AppliesTo(p Product) bool {
	switch o.Kind {
	case OfferKindProduct:
		return slices.Contains(o.ProductIDs, p.ID)
	case OfferKindCategory:
		return o.CategoryID != "" && o.CategoryID == p.CategoryID
	}
	return false
}

// Conflicts reports whether two offers of the same kind share a target and overlapping windows.
// Inactive offers never conflict.
func (o Offer) Conflicts(other Offer) bool {
	if o.ID != "" && o.ID == other.ID {
		return false
	}
	if o.Status != OfferStatusActive || other.Status != OfferStatusActive {
		return false
	}
	if o.Kind != other.Kind {
		return false
	}
	if !o.StartsAt.Before(other.EndsAt) || !other.StartsAt.Before(o.EndsAt) {
		return false
	}
	switch o.Kind {
	case OfferKindCategory:
		return o.CategoryID == other.CategoryID
	case OfferKindProduct:
		for _, id := range o.ProductIDs {
			if slices.Contains(other.ProductIDs, id) {
				return true
			}
		}
	}
	return false
}

// UsageCountFor returns how many times the user has redeemed the coupon.
func (c Coupon) UsageCountFor(userID string) int {
	count := 0
	for _, usage := range c.Usages {
		if usage.UserID == userID {
			count++
		}
	}
	return count
}

// GlobalLimitReached reports whether the coupon has no redemptions left.
func (c Coupon) GlobalLimitReached() bool {
	return c.GlobalLimit != nil && c.UsedCount >= *c.GlobalLimit
}

// UserLimitReached reports whether the user exhausted their redemptions.
func (c Coupon) UserLimitReached(userID string) bool {
	return c.PerUserLimit > 0 && c.UsageCountFor(userID) >= c.PerUserLimit
}

// CouponDiscount computes min(total*pct/100, MaxDiscount).
func (c Coupon) CouponDiscount(total int64) int64 {
	discount := PercentOf(total, c.DiscountPercent)
	if c.MaxDiscount != nil && discount > *c.MaxDiscount {
		discount = *c.MaxDiscount
	}
	if discount > total {
		discount = total
	}
	return discount
}
