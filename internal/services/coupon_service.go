package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

const couponIDPrefix = "cpn_"

// CouponServiceDeps bundles dependencies required to construct a CouponService implementation.
type CouponServiceDeps struct {
	Coupons     repositories.CouponRepository
	Clock       func() time.Time
	IDGenerator func() string
}

type couponService struct {
	repo  repositories.CouponRepository
	clock func() time.Time
	newID func() string
}

// NewCouponService wires a CouponService backed by the provided repository.
func NewCouponService(deps CouponServiceDeps) (CouponService, error) {
	if deps.Coupons == nil {
		return nil, errors.New("coupon service: coupon repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	return &couponService{
		repo:  deps.Coupons,
		clock: func() time.Time { return clock().UTC() },
		newID: idGen,
	}, nil
}

// Validate evaluates the coupon against the cart total and user. It never records usage.
func (s *couponService) Validate(ctx context.Context, cmd ValidateCouponCommand) (CouponValidation, error) {
	code := normalizeCouponCode(cmd.Code)
	if code == "" {
		return CouponValidation{}, fmt.Errorf("%w: coupon code is required", ErrInvalidInput)
	}
	if cmd.CartTotal < 0 {
		return CouponValidation{}, fmt.Errorf("%w: cart total must not be negative", ErrInvalidInput)
	}

	coupon, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		if isRepoNotFound(err) {
			return CouponValidation{}, &CouponRejectedError{Code: code, Reason: CouponReasonNotFound}
		}
		return CouponValidation{}, mapRepositoryError("coupon.find", err)
	}

	if reason := evaluateCoupon(coupon, cmd.CartTotal, strings.TrimSpace(cmd.UserID), s.clock()); reason != "" {
		return CouponValidation{}, &CouponRejectedError{Code: coupon.Code, Reason: reason}
	}
	return CouponValidation{Coupon: coupon, Discount: coupon.CouponDiscount(cmd.CartTotal)}, nil
}

// ListAvailable returns every coupon that currently validates for the user and cart total,
// largest discount first.
func (s *couponService) ListAvailable(ctx context.Context, userID string, cartTotal int64) ([]CouponValidation, error) {
	coupons, err := s.repo.List(ctx, repositories.CouponListFilter{ActiveOnly: true})
	if err != nil {
		return nil, mapRepositoryError("coupon.list", err)
	}
	now := s.clock()
	userID = strings.TrimSpace(userID)
	var out []CouponValidation
	for _, coupon := range coupons {
		if evaluateCoupon(coupon, cartTotal, userID, now) != "" {
			continue
		}
		out = append(out, CouponValidation{Coupon: coupon, Discount: coupon.CouponDiscount(cartTotal)})
	}
	slices.SortStableFunc(out, func(a, b CouponValidation) int {
		switch {
		case a.Discount > b.Discount:
			return -1
		case a.Discount < b.Discount:
			return 1
		}
		return strings.Compare(a.Coupon.Code, b.Coupon.Code)
	})
	return out, nil
}

// evaluateCoupon returns the first failing reason or an empty string.
func evaluateCoupon(coupon domain.Coupon, cartTotal int64, userID string, now time.Time) string {
	switch {
	case !coupon.Active:
		return CouponReasonInactive
	case !coupon.StartsAt.IsZero() && now.Before(coupon.StartsAt):
		return CouponReasonNotStarted
	case !coupon.ExpiresAt.IsZero() && !now.Before(coupon.ExpiresAt):
		return CouponReasonExpired
	case cartTotal < coupon.MinPurchase:
		return CouponReasonMinimumNotMet
	case coupon.GlobalLimitReached():
		return CouponReasonUsageLimit
	case coupon.UserLimitReached(userID):
		return CouponReasonUserUsageLimit
	}
	return ""
}

func (s *couponService) CreateCoupon(ctx context.Context, cmd UpsertCouponCommand) (Coupon, error) {
	coupon, err := buildCoupon(cmd)
	if err != nil {
		return Coupon{}, err
	}
	now := s.clock()
	coupon.ID = couponIDPrefix + s.newID()
	coupon.CreatedAt = now
	coupon.UpdatedAt = now
	if err := s.repo.Insert(ctx, coupon); err != nil {
		return Coupon{}, mapRepositoryError("coupon.create", err)
	}
	return coupon, nil
}

func (s *couponService) UpdateCoupon(ctx context.Context, cmd UpsertCouponCommand) (Coupon, error) {
	couponID := strings.TrimSpace(cmd.CouponID)
	if couponID == "" {
		return Coupon{}, fmt.Errorf("%w: coupon id is required", ErrInvalidInput)
	}
	existing, err := s.repo.Get(ctx, couponID)
	if err != nil {
		return Coupon{}, mapRepositoryError("coupon.get", err)
	}
	coupon, err := buildCoupon(cmd)
	if err != nil {
		return Coupon{}, err
	}
	coupon.ID = existing.ID
	coupon.CreatedAt = existing.CreatedAt
	coupon.UpdatedAt = s.clock()
	coupon.UsedCount = existing.UsedCount
	coupon.Usages = existing.Usages
	if err := s.repo.Update(ctx, coupon); err != nil {
		return Coupon{}, mapRepositoryError("coupon.update", err)
	}
	return coupon, nil
}

func (s *couponService) DeactivateCoupon(ctx context.Context, couponID string) (Coupon, error) {
	couponID = strings.TrimSpace(couponID)
	if couponID == "" {
		return Coupon{}, fmt.Errorf("%w: coupon id is required", ErrInvalidInput)
	}
	coupon, err := s.repo.Get(ctx, couponID)
	if err != nil {
		return Coupon{}, mapRepositoryError("coupon.get", err)
	}
	if !coupon.Active {
		return coupon, nil
	}
	coupon.Active = false
	coupon.UpdatedAt = s.clock()
	if err := s.repo.Update(ctx, coupon); err != nil {
		return Coupon{}, mapRepositoryError("coupon.deactivate", err)
	}
	return coupon, nil
}

func (s *couponService) ListCoupons(ctx context.Context, activeOnly bool) ([]Coupon, error) {
	coupons, err := s.repo.List(ctx, repositories.CouponListFilter{ActiveOnly: activeOnly})
	if err != nil {
		return nil, mapRepositoryError("coupon.list", err)
	}
	return coupons, nil
}

func buildCoupon(cmd UpsertCouponCommand) (Coupon, error) {
	code := normalizeCouponCode(cmd.Code)
	if code == "" {
		return Coupon{}, fmt.Errorf("%w: coupon code is required", ErrInvalidInput)
	}
	if cmd.DiscountPercent <= 0 || cmd.DiscountPercent > 100 {
		return Coupon{}, fmt.Errorf("%w: discount percent must be between 1 and 100", ErrInvalidInput)
	}
	if cmd.MaxDiscount != nil && *cmd.MaxDiscount < 0 {
		return Coupon{}, fmt.Errorf("%w: max discount must not be negative", ErrInvalidInput)
	}
	if cmd.MinPurchase < 0 {
		return Coupon{}, fmt.Errorf("%w: minimum purchase must not be negative", ErrInvalidInput)
	}
	if !cmd.StartsAt.IsZero() && !cmd.ExpiresAt.IsZero() && !cmd.StartsAt.Before(cmd.ExpiresAt) {
		return Coupon{}, fmt.Errorf("%w: coupon window must satisfy start < expiry", ErrInvalidInput)
	}
	if cmd.GlobalLimit != nil && *cmd.GlobalLimit < 0 {
		return Coupon{}, fmt.Errorf("%w: usage limit must not be negative", ErrInvalidInput)
	}
	if cmd.PerUserLimit < 0 {
		return Coupon{}, fmt.Errorf("%w: per-user limit must not be negative", ErrInvalidInput)
	}
	return Coupon{
		Code:            code,
		Description:     strings.TrimSpace(cmd.Description),
		DiscountPercent: cmd.DiscountPercent,
		MaxDiscount:     cmd.MaxDiscount,
		MinPurchase:     cmd.MinPurchase,
		StartsAt:        cmd.StartsAt.UTC(),
		ExpiresAt:       cmd.ExpiresAt.UTC(),
		Active:          cmd.Active,
		GlobalLimit:     cmd.GlobalLimit,
		PerUserLimit:    cmd.PerUserLimit,
	}, nil
}

func normalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
