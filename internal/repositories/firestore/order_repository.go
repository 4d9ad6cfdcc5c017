package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/hanko-field/storefront/internal/domain"
	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
	"github.com/hanko-field/storefront/internal/platform/pagination"
	"github.com/hanko-field/storefront/internal/repositories"
)

const ordersCollection = "orders"

// OrderRepository persists orders. Create and Apply run as single Firestore transactions that
// also touch coupons, product stock and wallets.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.Collection[orderDocument]
	coupons  *pfirestore.Collection[couponDocument]
	products *pfirestore.Collection[productDocument]
	wallets  *pfirestore.Collection[walletDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		provider: provider,
		orders:   pfirestore.NewCollection[orderDocument](provider, ordersCollection),
		coupons:  pfirestore.NewCollection[couponDocument](provider, couponsCollection),
		products: pfirestore.NewCollection[productDocument](provider, productsCollection),
		wallets:  pfirestore.NewCollection[walletDocument](provider, walletsCollection),
	}, nil
}

func (r *OrderRepository) Create(ctx context.Context, order domain.Order, usage *domain.CouponUsage) error {
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order repository: order id is required")
	}
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.orders.Ref(ctx, order.ID)
		if err != nil {
			return err
		}
		if _, found, err := pfirestore.GetTx[orderDocument](tx, orderRef); err != nil {
			return err
		} else if found {
			return pfirestore.Conflict("orders.create", "order %s already exists", order.ID)
		}

		var (
			couponRef *firestore.DocumentRef
			coupon    domain.Coupon
		)
		if usage != nil {
			couponRef, err = r.coupons.Ref(ctx, usage.CouponID)
			if err != nil {
				return err
			}
			doc, found, err := pfirestore.GetTx[couponDocument](tx, couponRef)
			if err != nil {
				return err
			}
			if !found {
				return repositories.NewCouponUsageError(repositories.CouponUsageCouponNotFound, usage.Code, "coupon no longer exists")
			}
			coupon = doc.toDomain(usage.CouponID)
			if coupon.GlobalLimitReached() {
				return repositories.NewCouponUsageError(repositories.CouponUsageGlobalLimit, coupon.Code, "usage limit reached")
			}
			if coupon.UserLimitReached(usage.UserID) {
				return repositories.NewCouponUsageError(repositories.CouponUsageUserLimit, coupon.Code, "user usage limit reached")
			}
		}

		if err := tx.Create(orderRef, newOrderDocument(order)); err != nil {
			return err
		}
		if usage != nil {
			coupon.Usages = append(coupon.Usages, *usage)
			coupon.UsedCount++
			coupon.UpdatedAt = usage.UsedAt
			return tx.Set(couponRef, newCouponDocument(coupon))
		}
		return nil
	})
	return pfirestore.WrapError("orders.create", err)
}

// Apply reads the order, every released product and every credited wallet, validates all
// effects, and only then writes. Any failure leaves every document untouched.
func (r *OrderRepository) Apply(ctx context.Context, mutation repositories.OrderMutation) (domain.Order, error) {
	orderID := mutation.Order.ID
	var saved domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.orders.Ref(ctx, orderID)
		if err != nil {
			return err
		}
		stored, found, err := pfirestore.GetTx[orderDocument](tx, orderRef)
		if err != nil {
			return err
		}
		if !found {
			return pfirestore.NotFound("orders.apply", "order %s not found", orderID)
		}
		if stored.Version != mutation.ExpectedVersion {
			return &repositories.VersionConflictError{OrderID: orderID, Expected: mutation.ExpectedVersion, Actual: stored.Version}
		}

		type stockWrite struct {
			ref   *firestore.DocumentRef
			stock int
		}
		stock := make(map[string]*stockWrite)
		var touched []string
		for _, release := range mutation.StockReleases {
			if release.Quantity <= 0 {
				return repositories.NewStockError(repositories.StockErrorInvalidQuantity, release.ProductID, "quantity must be > 0", nil)
			}
			if _, ok := stock[release.ProductID]; ok {
				continue
			}
			ref, err := r.products.Ref(ctx, release.ProductID)
			if err != nil {
				return err
			}
			doc, err := readStockTx(tx, ref, release.ProductID)
			if err != nil {
				return err
			}
			stock[release.ProductID] = &stockWrite{ref: ref, stock: doc.Stock}
			touched = append(touched, release.ProductID)
		}

		ledger := newWalletLedger(r.wallets)
		for _, credit := range mutation.WalletCredits {
			if err := ledger.read(ctx, tx, credit.UserID); err != nil {
				return err
			}
		}

		for _, release := range mutation.StockReleases {
			stock[release.ProductID].stock += release.Quantity
		}
		for _, credit := range mutation.WalletCredits {
			if err := ledger.stage(credit); err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		for _, productID := range touched {
			w := stock[productID]
			if err := tx.Update(w.ref, []firestore.Update{{Path: "stock", Value: w.stock}, {Path: "updatedAt", Value: now}}); err != nil {
				return err
			}
		}
		if err := ledger.write(tx); err != nil {
			return err
		}

		next := mutation.Order
		next.Version = stored.Version + 1
		if err := tx.Set(orderRef, newOrderDocument(next)); err != nil {
			return err
		}
		saved = next
		return nil
	})
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.apply", err)
	}
	return saved, nil
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.toDomain(orderID), nil
}

func (r *OrderRepository) FindByPaymentIntent(ctx context.Context, intentID string) (domain.Order, error) {
	intentID = strings.TrimSpace(intentID)
	if intentID == "" {
		return domain.Order{}, pfirestore.NotFound("orders.findByIntent", "payment intent id is required")
	}
	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("payment.intentId", "==", intentID).Limit(1)
	})
	if err != nil {
		return domain.Order{}, err
	}
	if len(docs) == 0 {
		docs, err = r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
			return q.Where("payment.previousIntentIds", "array-contains", intentID).Limit(1)
		})
		if err != nil {
			return domain.Order{}, err
		}
	}
	if len(docs) == 0 {
		return domain.Order{}, pfirestore.NotFound("orders.findByIntent", "no order for intent %s", intentID)
	}
	return docs[0].Data.toDomain(docs[0].ID), nil
}

// List pages orders newest first. Filters on user, status and creation window need composite
// indexes on (userId|status, createdAt desc, __name__ desc).
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	size := pagination.ClampPageSize(filter.Pagination.PageSize)

	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		if userID := strings.TrimSpace(filter.UserID); userID != "" {
			q = q.Where("userId", "==", userID)
		}
		if len(filter.Statuses) > 0 {
			statuses := make([]string, 0, len(filter.Statuses))
			for _, status := range filter.Statuses {
				statuses = append(statuses, string(status))
			}
			q = q.Where("status", "in", statuses)
		}
		if from := filter.CreatedAt.From; from != nil {
			q = q.Where("createdAt", ">=", from.UTC())
		}
		if to := filter.CreatedAt.To; to != nil {
			q = q.Where("createdAt", "<", to.UTC())
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if !cursor.IsZero() {
			q = q.StartAfter(cursor.CreatedAt, cursor.ID)
		}
		return q.Limit(size + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	page := domain.CursorPage[domain.Order]{Items: make([]domain.Order, 0, len(docs))}
	for _, doc := range docs {
		if len(page.Items) == size {
			last := page.Items[size-1]
			page.NextPageToken, err = pagination.EncodeToken(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
			if err != nil {
				return domain.CursorPage[domain.Order]{}, err
			}
			break
		}
		page.Items = append(page.Items, doc.Data.toDomain(doc.ID))
	}
	return page, nil
}
