package firestore

import (
	"context"
	"errors"
	"slices"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/hanko-field/storefront/internal/domain"
	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
	"github.com/hanko-field/storefront/internal/repositories"
)

const couponsCollection = "coupons"

// CouponRepository persists coupon definitions. Redemptions are appended by OrderRepository.Create.
type CouponRepository struct {
	provider *pfirestore.Provider
	coupons  *pfirestore.Collection[couponDocument]
}

// NewCouponRepository constructs a Firestore-backed coupon repository.
func NewCouponRepository(provider *pfirestore.Provider) (*CouponRepository, error) {
	if provider == nil {
		return nil, errors.New("coupon repository requires firestore provider")
	}
	return &CouponRepository{
		provider: provider,
		coupons:  pfirestore.NewCollection[couponDocument](provider, couponsCollection),
	}, nil
}

func (r *CouponRepository) Get(ctx context.Context, couponID string) (domain.Coupon, error) {
	doc, err := r.coupons.Get(ctx, couponID)
	if err != nil {
		return domain.Coupon{}, err
	}
	return doc.toDomain(couponID), nil
}

// FindByCode matches the upper-cased code stored on every coupon.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (domain.Coupon, error) {
	normalized := normalizeCouponCode(code)
	docs, err := r.coupons.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("code", "==", normalized).Limit(1)
	})
	if err != nil {
		return domain.Coupon{}, err
	}
	if len(docs) == 0 {
		return domain.Coupon{}, pfirestore.NotFound("coupons.findByCode", "coupon %s not found", normalized)
	}
	return docs[0].Data.toDomain(docs[0].ID), nil
}

func (r *CouponRepository) List(ctx context.Context, filter repositories.CouponListFilter) ([]domain.Coupon, error) {
	docs, err := r.coupons.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.ActiveOnly {
			q = q.Where("active", "==", true)
		}
		return q.OrderBy("code", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Coupon, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.Data.toDomain(doc.ID))
	}
	return out, nil
}

func (r *CouponRepository) Insert(ctx context.Context, coupon domain.Coupon) error {
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.coupons.Ref(ctx, coupon.ID)
		if err != nil {
			return err
		}
		if _, found, err := pfirestore.GetTx[couponDocument](tx, ref); err != nil {
			return err
		} else if found {
			return pfirestore.Conflict("coupons.insert", "coupon %s already exists", coupon.ID)
		}
		if err := r.ensureCodeFree(ctx, tx, "coupons.insert", coupon); err != nil {
			return err
		}
		coupon.Code = normalizeCouponCode(coupon.Code)
		return tx.Create(ref, newCouponDocument(coupon))
	})
	return pfirestore.WrapError("coupons.insert", err)
}

// Update replaces the coupon settings while keeping the stored usage counter and history.
func (r *CouponRepository) Update(ctx context.Context, coupon domain.Coupon) error {
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.coupons.Ref(ctx, coupon.ID)
		if err != nil {
			return err
		}
		stored, found, err := pfirestore.GetTx[couponDocument](tx, ref)
		if err != nil {
			return err
		}
		if !found {
			return pfirestore.NotFound("coupons.update", "coupon %s not found", coupon.ID)
		}
		if err := r.ensureCodeFree(ctx, tx, "coupons.update", coupon); err != nil {
			return err
		}
		current := stored.toDomain(coupon.ID)
		coupon.Code = normalizeCouponCode(coupon.Code)
		coupon.UsedCount = current.UsedCount
		coupon.Usages = slices.Clone(current.Usages)
		return tx.Set(ref, newCouponDocument(coupon))
	})
	return pfirestore.WrapError("coupons.update", err)
}

func (r *CouponRepository) ensureCodeFree(ctx context.Context, tx *firestore.Transaction, op string, coupon domain.Coupon) error {
	base, err := r.coupons.Base(ctx)
	if err != nil {
		return err
	}
	code := normalizeCouponCode(coupon.Code)
	docs, err := pfirestore.DocumentsTx[couponDocument](tx, base.Where("code", "==", code).Limit(2))
	if err != nil {
		return err
	}
	for _, doc := range docs {
		if doc.ID != coupon.ID {
			return pfirestore.Conflict(op, "coupon code %s already exists", code)
		}
	}
	return nil
}

func normalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
