// Package memory provides a process-local repository backend. A single mutex serialises every
// write so the atomicity guarantees match the Firestore transactions used in production.
package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

// Error implements repositories.RepositoryError for the in-memory backend.
type Error struct {
	op       string
	msg      string
	notFound bool
	conflict bool
}

func (e *Error) Error() string       { return fmt.Sprintf("%s: %s", e.op, e.msg) }
func (e *Error) IsNotFound() bool    { return e.notFound }
func (e *Error) IsConflict() bool    { return e.conflict }
func (e *Error) IsUnavailable() bool { return false }

func notFound(op, format string, args ...any) error {
	return &Error{op: op, msg: fmt.Sprintf(format, args...), notFound: true}
}

func conflict(op, format string, args ...any) error {
	return &Error{op: op, msg: fmt.Sprintf(format, args...), conflict: true}
}

// Store is an in-memory implementation of repositories.Registry.
type Store struct {
	mu sync.Mutex

	products     map[string]domain.Product
	offers       map[string]domain.Offer
	coupons      map[string]domain.Coupon
	carts        map[string]domain.Cart
	addresses    map[string]map[string]domain.Address
	orders       map[string]domain.Order
	wallets      map[string]domain.Wallet
	transactions map[string][]domain.WalletTransaction

	now func() time.Time
}

var _ repositories.Registry = (*Store)(nil)

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{
		products:     make(map[string]domain.Product),
		offers:       make(map[string]domain.Offer),
		coupons:      make(map[string]domain.Coupon),
		carts:        make(map[string]domain.Cart),
		addresses:    make(map[string]map[string]domain.Address),
		orders:       make(map[string]domain.Order),
		wallets:      make(map[string]domain.Wallet),
		transactions: make(map[string][]domain.WalletTransaction),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Close implements repositories.Registry.
func (s *Store) Close(context.Context) error { return nil }

func (s *Store) Products() repositories.ProductRepository   { return productRepo{s} }
func (s *Store) Offers() repositories.OfferRepository       { return offerRepo{s} }
func (s *Store) Coupons() repositories.CouponRepository     { return couponRepo{s} }
func (s *Store) Carts() repositories.CartRepository         { return cartRepo{s} }
func (s *Store) Addresses() repositories.AddressRepository  { return addressRepo{s} }
func (s *Store) Orders() repositories.OrderRepository       { return orderRepo{s} }
func (s *Store) Wallets() repositories.WalletRepository     { return walletRepo{s} }

// WalletTransactions returns a copy of the full ledger of a user, oldest first.
func (s *Store) WalletTransactions(userID string) []domain.WalletTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.transactions[userID])
}

type productRepo struct{ s *Store }

func (r productRepo) Get(_ context.Context, productID string) (domain.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	product, ok := r.s.products[productID]
	if !ok {
		return domain.Product{}, notFound("products.get", "product %s not found", productID)
	}
	return product, nil
}

func (r productRepo) List(_ context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var items []domain.Product
	for _, product := range r.s.products {
		if filter.CategoryID != "" && product.CategoryID != filter.CategoryID {
			continue
		}
		if filter.ActiveOnly && !product.Active {
			continue
		}
		items = append(items, product)
	}
	slices.SortFunc(items, func(a, b domain.Product) int { return strings.Compare(a.ID, b.ID) })
	return domain.CursorPage[domain.Product]{Items: items}, nil
}

func (r productRepo) Upsert(_ context.Context, product domain.Product) (domain.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.now()
	if existing, ok := r.s.products[product.ID]; ok {
		product.CreatedAt = existing.CreatedAt
		product.Stock = existing.Stock
	} else if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	r.s.products[product.ID] = product
	return product, nil
}

func (r productRepo) Reserve(_ context.Context, productID string, qty int) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.adjustStockLocked("products.reserve", productID, qty, true)
}

func (r productRepo) Release(_ context.Context, productID string, qty int) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.adjustStockLocked("products.release", productID, qty, false)
}

func (s *Store) adjustStockLocked(op, productID string, qty int, reserve bool) (int, error) {
	if qty <= 0 {
		return 0, &repositories.StockError{Op: op, Code: repositories.StockErrorInvalidQuantity, ProductID: productID, Message: "quantity must be > 0"}
	}
	delta := qty
	if reserve {
		delta = -qty
	}
	product, ok := s.products[productID]
	if !ok {
		err := repositories.NewStockError(repositories.StockErrorProductNotFound, productID, fmt.Sprintf("stock %s not found", productID), nil)
		err.Op = op
		return 0, err
	}
	if product.Stock+delta < 0 {
		err := repositories.NewStockError(repositories.StockErrorInsufficient, productID, fmt.Sprintf("insufficient stock for %s", productID), nil)
		err.Op = op
		return product.Stock, err
	}
	product.Stock += delta
	product.UpdatedAt = s.now()
	s.products[productID] = product
	return product.Stock, nil
}

type offerRepo struct{ s *Store }

func (r offerRepo) Get(_ context.Context, offerID string) (domain.Offer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	offer, ok := r.s.offers[offerID]
	if !ok {
		return domain.Offer{}, notFound("offers.get", "offer %s not found", offerID)
	}
	return cloneOffer(offer), nil
}

func (r offerRepo) ListActive(_ context.Context, at time.Time) ([]domain.Offer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Offer
	for _, offer := range r.s.offers {
		if offer.ActiveAt(at) {
			out = append(out, cloneOffer(offer))
		}
	}
	slices.SortFunc(out, func(a, b domain.Offer) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (r offerRepo) List(_ context.Context, filter repositories.OfferListFilter) ([]domain.Offer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Offer
	for _, offer := range r.s.offers {
		if filter.Kind != nil && offer.Kind != *filter.Kind {
			continue
		}
		if filter.Status != nil && offer.Status != *filter.Status {
			continue
		}
		out = append(out, cloneOffer(offer))
	}
	slices.SortFunc(out, func(a, b domain.Offer) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (r offerRepo) Insert(_ context.Context, offer domain.Offer) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.offers[offer.ID]; ok {
		return conflict("offers.insert", "offer %s already exists", offer.ID)
	}
	if err := r.s.checkOverlapLocked(offer); err != nil {
		return err
	}
	r.s.offers[offer.ID] = cloneOffer(offer)
	return nil
}

func (r offerRepo) Update(_ context.Context, offer domain.Offer) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.offers[offer.ID]; !ok {
		return notFound("offers.update", "offer %s not found", offer.ID)
	}
	if err := r.s.checkOverlapLocked(offer); err != nil {
		return err
	}
	r.s.offers[offer.ID] = cloneOffer(offer)
	return nil
}

func (s *Store) checkOverlapLocked(offer domain.Offer) error {
	for _, existing := range s.offers {
		if offer.Conflicts(existing) {
			return &repositories.OfferOverlapError{OfferID: offer.ID, ConflictingID: existing.ID}
		}
	}
	return nil
}

type couponRepo struct{ s *Store }

func (r couponRepo) Get(_ context.Context, couponID string) (domain.Coupon, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	coupon, ok := r.s.coupons[couponID]
	if !ok {
		return domain.Coupon{}, notFound("coupons.get", "coupon %s not found", couponID)
	}
	return cloneCoupon(coupon), nil
}

func (r couponRepo) FindByCode(_ context.Context, code string) (domain.Coupon, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	coupon, ok := r.s.couponByCodeLocked(code)
	if !ok {
		return domain.Coupon{}, notFound("coupons.findByCode", "coupon %s not found", code)
	}
	return cloneCoupon(coupon), nil
}

func (s *Store) couponByCodeLocked(code string) (domain.Coupon, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	for _, coupon := range s.coupons {
		if strings.EqualFold(coupon.Code, code) {
			return coupon, true
		}
	}
	return domain.Coupon{}, false
}

func (r couponRepo) List(_ context.Context, filter repositories.CouponListFilter) ([]domain.Coupon, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Coupon
	for _, coupon := range r.s.coupons {
		if filter.ActiveOnly && !coupon.Active {
			continue
		}
		out = append(out, cloneCoupon(coupon))
	}
	slices.SortFunc(out, func(a, b domain.Coupon) int { return strings.Compare(a.Code, b.Code) })
	return out, nil
}

func (r couponRepo) Insert(_ context.Context, coupon domain.Coupon) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.coupons[coupon.ID]; ok {
		return conflict("coupons.insert", "coupon %s already exists", coupon.ID)
	}
	if _, ok := r.s.couponByCodeLocked(coupon.Code); ok {
		return conflict("coupons.insert", "coupon code %s already exists", coupon.Code)
	}
	r.s.coupons[coupon.ID] = cloneCoupon(coupon)
	return nil
}

func (r couponRepo) Update(_ context.Context, coupon domain.Coupon) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.coupons[coupon.ID]
	if !ok {
		return notFound("coupons.update", "coupon %s not found", coupon.ID)
	}
	if other, ok := r.s.couponByCodeLocked(coupon.Code); ok && other.ID != coupon.ID {
		return conflict("coupons.update", "coupon code %s already exists", coupon.Code)
	}
	coupon.UsedCount = existing.UsedCount
	coupon.Usages = slices.Clone(existing.Usages)
	r.s.coupons[coupon.ID] = cloneCoupon(coupon)
	return nil
}

type cartRepo struct{ s *Store }

func (r cartRepo) GetCart(_ context.Context, userID string) (domain.Cart, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cart, ok := r.s.carts[userID]
	if !ok {
		return domain.Cart{}, notFound("carts.get", "cart %s not found", userID)
	}
	return cloneCart(cart), nil
}

func (r cartRepo) UpsertCart(_ context.Context, cart domain.Cart) (domain.Cart, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.carts[cart.UserID] = cloneCart(cart)
	return cloneCart(cart), nil
}

func (r cartRepo) ClearCart(_ context.Context, userID string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.carts[userID] = domain.Cart{UserID: userID, UpdatedAt: at}
	return nil
}

type addressRepo struct{ s *Store }

func (r addressRepo) List(_ context.Context, userID string) ([]domain.Address, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Address
	for _, addr := range r.s.addresses[userID] {
		out = append(out, addr)
	}
	slices.SortFunc(out, func(a, b domain.Address) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (r addressRepo) Get(_ context.Context, userID, addressID string) (domain.Address, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	addr, ok := r.s.addresses[userID][addressID]
	if !ok {
		return domain.Address{}, notFound("addresses.get", "address %s not found", addressID)
	}
	return addr, nil
}

func (r addressRepo) Upsert(_ context.Context, userID string, address domain.Address) (domain.Address, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	book, ok := r.s.addresses[userID]
	if !ok {
		book = make(map[string]domain.Address)
		r.s.addresses[userID] = book
	}
	book[address.ID] = address
	return address, nil
}

type walletRepo struct{ s *Store }

func (r walletRepo) Get(_ context.Context, userID string) (domain.Wallet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	wallet, ok := r.s.wallets[userID]
	if !ok {
		return domain.Wallet{}, notFound("wallets.get", "wallet %s not found", userID)
	}
	return wallet, nil
}

func (r walletRepo) Apply(_ context.Context, txn domain.WalletTransaction) (domain.Wallet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.checkWalletLocked(txn); err != nil {
		return domain.Wallet{}, err
	}
	return r.s.applyWalletLocked(txn), nil
}

func (s *Store) checkWalletLocked(txn domain.WalletTransaction) error {
	if txn.Amount <= 0 {
		return repositories.NewWalletError(repositories.WalletErrorInvalidAmount, txn.UserID, "amount must be > 0")
	}
	if s.wallets[txn.UserID].Balance+txn.Signed() < 0 {
		if txn.Type == domain.WalletTransactionDebit {
			return repositories.NewWalletError(repositories.WalletErrorInsufficientBalance, txn.UserID, "insufficient wallet balance")
		}
		return repositories.NewWalletError(repositories.WalletErrorNegativeBalance, txn.UserID, "balance would become negative")
	}
	return nil
}

func (s *Store) applyWalletLocked(txn domain.WalletTransaction) domain.Wallet {
	wallet, ok := s.wallets[txn.UserID]
	if !ok {
		wallet = domain.Wallet{UserID: txn.UserID, CreatedAt: txn.CreatedAt}
	}
	wallet.Balance += txn.Signed()
	wallet.UpdatedAt = txn.CreatedAt
	s.wallets[txn.UserID] = wallet
	s.transactions[txn.UserID] = append(s.transactions[txn.UserID], txn)
	return wallet
}

func (r walletRepo) ListTransactions(_ context.Context, userID string, page domain.Pagination) (domain.CursorPage[domain.WalletTransaction], error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ledger := slices.Clone(r.s.transactions[userID])
	return paginate(ledger, page, func(t domain.WalletTransaction) (time.Time, string) { return t.CreatedAt, t.ID })
}
