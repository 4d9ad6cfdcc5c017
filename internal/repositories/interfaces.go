package repositories

import (
	"context"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Products() ProductRepository
	Offers() OfferRepository
	Coupons() CouponRepository
	Carts() CartRepository
	Addresses() AddressRepository
	Orders() OrderRepository
	Wallets() WalletRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// ProductRepository persists catalog products and owns the per-product stock counter.
// Reserve and Release are the only operations allowed to change Product.Stock.
type ProductRepository interface {
	Get(ctx context.Context, productID string) (domain.Product, error)
	List(ctx context.Context, filter ProductListFilter) (domain.CursorPage[domain.Product], error)
	Upsert(ctx context.Context, product domain.Product) (domain.Product, error)
	// Reserve decrements stock by qty when at least qty units are available, returning the
	// remaining stock. It fails with a StockError without mutating anything otherwise.
	Reserve(ctx context.Context, productID string, qty int) (int, error)
	// Release increments stock by qty unconditionally and returns the new stock level.
	Release(ctx context.Context, productID string, qty int) (int, error)
}

// ProductListFilter narrows product listings.
type ProductListFilter struct {
	CategoryID string
	ActiveOnly bool
	Pagination domain.Pagination
}

// OfferRepository persists offers and enforces the non-overlap invariant on writes.
type OfferRepository interface {
	Get(ctx context.Context, offerID string) (domain.Offer, error)
	// ListActive returns active offers whose window contains at.
	ListActive(ctx context.Context, at time.Time) ([]domain.Offer, error)
	List(ctx context.Context, filter OfferListFilter) ([]domain.Offer, error)
	// Insert stores a new offer, failing with a conflict when it overlaps an active offer of the
	// same kind and target.
	Insert(ctx context.Context, offer domain.Offer) error
	// Update replaces an offer applying the same overlap guard as Insert.
	Update(ctx context.Context, offer domain.Offer) error
}

// OfferListFilter narrows admin offer listings.
type OfferListFilter struct {
	Kind   *domain.OfferKind
	Status *domain.OfferStatus
}

// CouponRepository persists coupons. Usage counters are only written by OrderRepository.Create.
type CouponRepository interface {
	Get(ctx context.Context, couponID string) (domain.Coupon, error)
	FindByCode(ctx context.Context, code string) (domain.Coupon, error)
	List(ctx context.Context, filter CouponListFilter) ([]domain.Coupon, error)
	Insert(ctx context.Context, coupon domain.Coupon) error
	// Update persists coupon settings. UsedCount and Usages are preserved from the stored copy.
	Update(ctx context.Context, coupon domain.Coupon) error
}

// CouponListFilter narrows coupon listings.
type CouponListFilter struct {
	ActiveOnly bool
}

// CartRepository owns per-user cart persistence.
type CartRepository interface {
	GetCart(ctx context.Context, userID string) (domain.Cart, error)
	UpsertCart(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	ClearCart(ctx context.Context, userID string, at time.Time) error
}

// AddressRepository manages the user address book.
type AddressRepository interface {
	List(ctx context.Context, userID string) ([]domain.Address, error)
	Get(ctx context.Context, userID string, addressID string) (domain.Address, error)
	Upsert(ctx context.Context, userID string, address domain.Address) (domain.Address, error)
}

// OrderRepository persists orders. Create and Apply are the atomic write paths of the
// order lifecycle; every other mutation of an order is a defect.
type OrderRepository interface {
	// Create inserts the order and, when usage is present, appends the coupon usage and
	// increments the coupon counter in the same transaction. Caps are re-checked inside the
	// transaction and reported as a CouponUsageError.
	Create(ctx context.Context, order domain.Order, usage *domain.CouponUsage) error
	// Apply persists a mutated order together with its stock releases and wallet credits.
	// The stored order version must equal mutation.ExpectedVersion.
	Apply(ctx context.Context, mutation OrderMutation) (domain.Order, error)
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByPaymentIntent(ctx context.Context, intentID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
}

// OrderMutation describes one atomic order lifecycle write.
type OrderMutation struct {
	Order           domain.Order
	ExpectedVersion int64
	StockReleases   []StockRelease
	WalletCredits   []domain.WalletTransaction
}

// StockRelease returns quantity units of a product to the stock ledger.
type StockRelease struct {
	ProductID string
	Quantity  int
}

// OrderListFilter narrows order listings for users, admins and report exports.
type OrderListFilter struct {
	UserID     string
	Statuses   []domain.OrderStatus
	CreatedAt  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

// WalletRepository persists wallets and their append-only transaction log.
type WalletRepository interface {
	// Get returns the wallet or a not-found error when the user never had one.
	Get(ctx context.Context, userID string) (domain.Wallet, error)
	// Apply appends the transaction and updates the balance atomically, creating the wallet
	// lazily. Debits that would overdraw fail with a WalletError.
	Apply(ctx context.Context, txn domain.WalletTransaction) (domain.Wallet, error)
	ListTransactions(ctx context.Context, userID string, page domain.Pagination) (domain.CursorPage[domain.WalletTransaction], error)
}
