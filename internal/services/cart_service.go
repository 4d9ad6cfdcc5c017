package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

var (
	errCartRepositoryRequired = errors.New("cart service: repository is required")
	errCartPricingRequired    = errors.New("cart service: pricing service is required")
	errCartCouponsRequired    = errors.New("cart service: coupon service is required")
)

const maxCartLineQuantity = 99

// CartServiceDeps wires the repository, pricing and coupon dependencies for cart operations.
type CartServiceDeps struct {
	Carts    repositories.CartRepository
	Products repositories.ProductRepository
	Pricing  PricingService
	Coupons  CouponService
	Clock    func() time.Time
	Logger   func(context.Context, string, map[string]any)
}

type cartService struct {
	repo     repositories.CartRepository
	products repositories.ProductRepository
	pricing  PricingService
	coupons  CouponService
	now      func() time.Time
	logger   func(context.Context, string, map[string]any)
}

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil || deps.Products == nil {
		return nil, errCartRepositoryRequired
	}
	if deps.Pricing == nil {
		return nil, errCartPricingRequired
	}
	if deps.Coupons == nil {
		return nil, errCartCouponsRequired
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &cartService{
		repo:     deps.Carts,
		products: deps.Products,
		pricing:  deps.Pricing,
		coupons:  deps.Coupons,
		now:      func() time.Time { return clock().UTC() },
		logger:   logger,
	}, nil
}

// GetCart returns the user's cart, or an empty one when nothing was added yet.
func (s *cartService) GetCart(ctx context.Context, userID string) (CartView, error) {
	cart, err := s.load(ctx, userID)
	if err != nil {
		return CartView{}, err
	}
	return cartView(cart), nil
}

// AddItem adds quantity units of a product. A new line locks the price quoted now; an existing
// line keeps its original price and only grows in quantity.
func (s *cartService) AddItem(ctx context.Context, cmd CartItemCommand) (CartView, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return CartView{}, fmt.Errorf("%w: product id is required", ErrInvalidInput)
	}
	if cmd.Quantity <= 0 {
		return CartView{}, fmt.Errorf("%w: quantity must be greater than zero", ErrInvalidInput)
	}
	cart, err := s.load(ctx, cmd.UserID)
	if err != nil {
		return CartView{}, err
	}

	now := s.now()
	idx := indexOfCartItem(cart.Items, productID)
	quantity := cmd.Quantity
	if idx >= 0 {
		quantity += cart.Items[idx].Quantity
	}
	if err := s.checkAvailable(ctx, productID, quantity); err != nil {
		return CartView{}, err
	}

	if idx >= 0 {
		cart.Items[idx].Quantity = quantity
	} else {
		quote, err := s.pricing.QuoteProduct(ctx, productID)
		if err != nil {
			return CartView{}, err
		}
		cart.Items = append(cart.Items, domain.CartItem{
			ProductID: productID,
			Quantity:  quantity,
			UnitPrice: quote.Price,
			AddedAt:   now,
		})
	}
	return s.save(ctx, cart, now)
}

// UpdateItemQuantity sets the quantity of an existing line; zero removes it.
func (s *cartService) UpdateItemQuantity(ctx context.Context, cmd CartItemCommand) (CartView, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return CartView{}, fmt.Errorf("%w: product id is required", ErrInvalidInput)
	}
	if cmd.Quantity < 0 {
		return CartView{}, fmt.Errorf("%w: quantity must not be negative", ErrInvalidInput)
	}
	cart, err := s.load(ctx, cmd.UserID)
	if err != nil {
		return CartView{}, err
	}
	idx := indexOfCartItem(cart.Items, productID)
	if idx < 0 {
		return CartView{}, fmt.Errorf("%w: product %s is not in the cart", ErrNotFound, productID)
	}
	if cmd.Quantity == 0 {
		cart.Items = slices.Delete(cart.Items, idx, idx+1)
	} else {
		if err := s.checkAvailable(ctx, productID, cmd.Quantity); err != nil {
			return CartView{}, err
		}
		cart.Items[idx].Quantity = cmd.Quantity
	}
	return s.save(ctx, cart, s.now())
}

func (s *cartService) RemoveItem(ctx context.Context, userID, productID string) (CartView, error) {
	productID = strings.TrimSpace(productID)
	cart, err := s.load(ctx, userID)
	if err != nil {
		return CartView{}, err
	}
	idx := indexOfCartItem(cart.Items, productID)
	if idx < 0 {
		return CartView{}, fmt.Errorf("%w: product %s is not in the cart", ErrNotFound, productID)
	}
	cart.Items = slices.Delete(cart.Items, idx, idx+1)
	return s.save(ctx, cart, s.now())
}

// ApplyCoupon validates the code against the current subtotal and stores it with its discount.
// Usage is only recorded when an order is created.
func (s *cartService) ApplyCoupon(ctx context.Context, userID, code string) (CartView, error) {
	cart, err := s.load(ctx, userID)
	if err != nil {
		return CartView{}, err
	}
	if len(cart.Items) == 0 {
		return CartView{}, ErrEmptyCart
	}
	validation, err := s.coupons.Validate(ctx, ValidateCouponCommand{Code: code, CartTotal: cartSubtotal(cart), UserID: cart.UserID})
	if err != nil {
		return CartView{}, err
	}
	cart.Coupon = &domain.CartCoupon{Code: validation.Coupon.Code, Discount: validation.Discount}
	return s.persist(ctx, cart, s.now())
}

func (s *cartService) RemoveCoupon(ctx context.Context, userID string) (CartView, error) {
	cart, err := s.load(ctx, userID)
	if err != nil {
		return CartView{}, err
	}
	if cart.Coupon == nil {
		return cartView(cart), nil
	}
	cart.Coupon = nil
	return s.persist(ctx, cart, s.now())
}

func (s *cartService) load(ctx context.Context, userID string) (Cart, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return Cart{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	cart, err := s.repo.GetCart(ctx, uid)
	if err != nil {
		if isRepoNotFound(err) {
			return Cart{UserID: uid}, nil
		}
		return Cart{}, mapRepositoryError("cart.get", err)
	}
	cart.UserID = uid
	return cart, nil
}

func (s *cartService) checkAvailable(ctx context.Context, productID string, quantity int) error {
	if quantity > maxCartLineQuantity {
		return fmt.Errorf("%w: at most %d units per product", ErrInvalidInput, maxCartLineQuantity)
	}
	product, err := s.products.Get(ctx, productID)
	if err != nil {
		return mapRepositoryError("cart.product", err)
	}
	if !product.Active {
		return fmt.Errorf("%w: product %s is not available", ErrInvalidInput, productID)
	}
	if product.Stock < quantity {
		return fmt.Errorf("%w: product %s has %d units left", ErrInsufficientStock, productID, product.Stock)
	}
	return nil
}

// save recomputes the applied coupon against the new subtotal before persisting. A coupon that
// no longer validates is dropped rather than failing the cart change.
func (s *cartService) save(ctx context.Context, cart Cart, now time.Time) (CartView, error) {
	if len(cart.Items) == 0 {
		cart.Coupon = nil
	}
	if cart.Coupon != nil {
		subtotal := cartSubtotal(cart)
		validation, err := s.coupons.Validate(ctx, ValidateCouponCommand{Code: cart.Coupon.Code, CartTotal: subtotal, UserID: cart.UserID})
		var rejected *CouponRejectedError
		switch {
		case err == nil:
			cart.Coupon.Discount = validation.Discount
		case errors.As(err, &rejected):
			s.logger(ctx, "cart.coupon_dropped", map[string]any{
				"userID": cart.UserID,
				"code":   cart.Coupon.Code,
				"error":  err.Error(),
			})
			cart.Coupon = nil
		default:
			return CartView{}, err
		}
	}
	return s.persist(ctx, cart, now)
}

func (s *cartService) persist(ctx context.Context, cart Cart, now time.Time) (CartView, error) {
	cart.UpdatedAt = now
	saved, err := s.repo.UpsertCart(ctx, cart)
	if err != nil {
		return CartView{}, mapRepositoryError("cart.upsert", err)
	}
	return cartView(saved), nil
}

func cartView(cart Cart) CartView {
	view := CartView{Cart: cart, Subtotal: cartSubtotal(cart)}
	if cart.Coupon != nil {
		view.Discount = min(cart.Coupon.Discount, view.Subtotal)
	}
	view.Total = view.Subtotal - view.Discount
	return view
}

func cartSubtotal(cart Cart) int64 {
	var total int64
	for _, item := range cart.Items {
		total += item.UnitPrice * int64(item.Quantity)
	}
	return total
}

func indexOfCartItem(items []domain.CartItem, productID string) int {
	return slices.IndexFunc(items, func(item domain.CartItem) bool {
		return item.ProductID == productID
	})
}
