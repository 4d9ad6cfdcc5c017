package services

import (
	"context"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/payments"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination        = domain.Pagination
	Product           = domain.Product
	Offer             = domain.Offer
	Coupon            = domain.Coupon
	Cart              = domain.Cart
	CartItem          = domain.CartItem
	Address           = domain.Address
	Order             = domain.Order
	OrderItem         = domain.OrderItem
	OrderStatus       = domain.OrderStatus
	PaymentStatus     = domain.PaymentStatus
	PaymentMethod     = domain.PaymentMethod
	Wallet            = domain.Wallet
	WalletTransaction = domain.WalletTransaction
	HealthReport      = domain.HealthReport
)

// PricingService resolves effective unit prices from base prices and active offers.
type PricingService interface {
	QuoteProduct(ctx context.Context, productID string) (PriceQuote, error)
}

// PriceQuote is the effective price of a product at a point in time.
type PriceQuote struct {
	ProductID       string
	BasePrice       int64
	Price           int64
	DiscountPercent int
	OfferID         string
	OfferKind       domain.OfferKind
	QuotedAt        time.Time
}

// OfferService manages offers and rejects overlapping windows for the same target.
type OfferService interface {
	CreateOffer(ctx context.Context, cmd UpsertOfferCommand) (Offer, error)
	UpdateOffer(ctx context.Context, cmd UpsertOfferCommand) (Offer, error)
	DeactivateOffer(ctx context.Context, offerID string) (Offer, error)
	GetOffer(ctx context.Context, offerID string) (Offer, error)
	ListOffers(ctx context.Context, filter OfferListFilter) ([]Offer, error)
}

// UpsertOfferCommand carries admin input for creating or replacing an offer.
type UpsertOfferCommand struct {
	OfferID         string
	Name            string
	Kind            domain.OfferKind
	ProductIDs      []string
	CategoryID      string
	DiscountPercent int
	StartsAt        time.Time
	EndsAt          time.Time
	Active          bool
}

// OfferListFilter narrows admin offer listings.
type OfferListFilter struct {
	Kind   *domain.OfferKind
	Status *domain.OfferStatus
}

// CouponService validates coupons without side effects and manages coupon definitions.
type CouponService interface {
	Validate(ctx context.Context, cmd ValidateCouponCommand) (CouponValidation, error)
	ListAvailable(ctx context.Context, userID string, cartTotal int64) ([]CouponValidation, error)
	CreateCoupon(ctx context.Context, cmd UpsertCouponCommand) (Coupon, error)
	UpdateCoupon(ctx context.Context, cmd UpsertCouponCommand) (Coupon, error)
	DeactivateCoupon(ctx context.Context, couponID string) (Coupon, error)
	ListCoupons(ctx context.Context, activeOnly bool) ([]Coupon, error)
}

// ValidateCouponCommand identifies the coupon and the cart it is evaluated against.
type ValidateCouponCommand struct {
	Code      string
	CartTotal int64
	UserID    string
}

// CouponValidation is the outcome of a successful validation.
type CouponValidation struct {
	Coupon   Coupon
	Discount int64
}

// UpsertCouponCommand carries admin input for creating or replacing a coupon.
type UpsertCouponCommand struct {
	CouponID        string
	Code            string
	Description     string
	DiscountPercent int
	MaxDiscount     *int64
	MinPurchase     int64
	StartsAt        time.Time
	ExpiresAt       time.Time
	Active          bool
	GlobalLimit     *int
	PerUserLimit    int
}

// CartService exposes the per-user cart.
type CartService interface {
	GetCart(ctx context.Context, userID string) (CartView, error)
	AddItem(ctx context.Context, cmd CartItemCommand) (CartView, error)
	UpdateItemQuantity(ctx context.Context, cmd CartItemCommand) (CartView, error)
	RemoveItem(ctx context.Context, userID, productID string) (CartView, error)
	ApplyCoupon(ctx context.Context, userID, code string) (CartView, error)
	RemoveCoupon(ctx context.Context, userID string) (CartView, error)
}

// CartItemCommand adds or updates one cart line.
type CartItemCommand struct {
	UserID    string
	ProductID string
	Quantity  int
}

// CartView is the cart with totals derived from its locked unit prices.
type CartView struct {
	Cart     Cart
	Subtotal int64
	Discount int64
	Total    int64
}

// StockLedger is the only writer of product stock.
type StockLedger interface {
	Reserve(ctx context.Context, productID string, qty int) error
	Release(ctx context.Context, productID string, qty int) error
	// ReserveAll reserves every line or none of them.
	ReserveAll(ctx context.Context, lines []StockLine) error
	ReleaseAll(ctx context.Context, lines []StockLine) error
}

// StockLine is one product quantity moving through the stock ledger.
type StockLine struct {
	ProductID string
	Quantity  int
}

// WalletLedger is the only writer of wallet balances.
type WalletLedger interface {
	Credit(ctx context.Context, cmd WalletEntryCommand) (WalletTransaction, error)
	Debit(ctx context.Context, cmd WalletEntryCommand) (WalletTransaction, error)
	GetWallet(ctx context.Context, userID string) (Wallet, error)
	ListTransactions(ctx context.Context, userID string, page Pagination) (domain.CursorPage[WalletTransaction], error)
}

// WalletEntryCommand describes one wallet movement.
type WalletEntryCommand struct {
	UserID      string
	Amount      int64
	Description string
	OrderID     string
}

// PaymentGateway is the black-box payment capability used by checkout.
type PaymentGateway interface {
	CreateIntent(ctx context.Context, req payments.IntentRequest) (payments.Intent, error)
	VerifyCallback(intentID, externalPaymentID, signature string) bool
}

// CheckoutService turns carts into orders and drives payment completion.
type CheckoutService interface {
	Checkout(ctx context.Context, cmd CheckoutCommand) (CheckoutResult, error)
	RetryPayment(ctx context.Context, cmd RetryPaymentCommand) (CheckoutResult, error)
	HandlePaymentCallback(ctx context.Context, cmd PaymentCallbackCommand) (Order, error)
}

// CheckoutCommand starts a checkout for the user's current cart.
type CheckoutCommand struct {
	UserID        string
	AddressID     string
	PaymentMethod PaymentMethod
}

// CheckoutResult returns the created order and, for online payments, the intent secret.
type CheckoutResult struct {
	Order        Order
	ClientSecret string
}

// RetryPaymentCommand requests a fresh gateway intent for a failed payment.
type RetryPaymentCommand struct {
	UserID  string
	OrderID string
}

// PaymentCallbackCommand is the payload posted by the gateway.
type PaymentCallbackCommand struct {
	IntentID          string
	ExternalPaymentID string
	Signature         string
}

// OrderService drives post-checkout order lifecycle transitions.
type OrderService interface {
	GetOrder(ctx context.Context, query OrderQuery) (Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
	CancelOrder(ctx context.Context, cmd CancelOrderCommand) (Order, error)
	CancelItem(ctx context.Context, cmd CancelItemCommand) (Order, error)
	RequestReturn(ctx context.Context, cmd ReturnRequestCommand) (Order, error)
	ResolveReturn(ctx context.Context, cmd ResolveReturnCommand) (Order, error)
	TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error)
}

// Actor identifies who performs an order action. UserID is empty for staff.
type Actor struct {
	UserID string
	Admin  bool
}

// ID returns the identifier recorded in status history.
func (a Actor) ID() string {
	if a.Admin && a.UserID == "" {
		return "admin"
	}
	return a.UserID
}

// OrderQuery loads one order, enforcing ownership for non-admin actors.
type OrderQuery struct {
	OrderID string
	Actor   Actor
}

// OrderListFilter narrows order listings.
type OrderListFilter struct {
	UserID     string
	Statuses   []OrderStatus
	From       *time.Time
	To         *time.Time
	Pagination Pagination
}

// CancelOrderCommand cancels every remaining item of an order.
type CancelOrderCommand struct {
	OrderID string
	Actor   Actor
	Reason  string
}

// CancelItemCommand cancels one item of an order.
type CancelItemCommand struct {
	OrderID string
	ItemID  string
	Actor   Actor
	Reason  string
}

// ReturnRequestCommand files a return for one delivered item.
type ReturnRequestCommand struct {
	OrderID string
	ItemID  string
	UserID  string
	Reason  string
}

// ResolveReturnCommand approves or rejects a pending return.
type ResolveReturnCommand struct {
	OrderID string
	ItemID  string
	Approve bool
	Comment string
	ActorID string
}

// OrderStatusTransitionCommand advances fulfilment status from the admin console.
type OrderStatusTransitionCommand struct {
	OrderID      string
	TargetStatus OrderStatus
	Comment      string
	ActorID      string
}

// ReportService exposes read-only order snapshots to reporting collaborators.
type ReportService interface {
	OrderSnapshots(ctx context.Context, filter ReportFilter) ([]OrderSnapshot, error)
	ExportOrders(ctx context.Context, filter ReportFilter) (ReportExport, error)
}

// ReportFilter selects orders created in [From, To) with optional status restriction.
type ReportFilter struct {
	From     time.Time
	To       time.Time
	Statuses []OrderStatus
}

// OrderSnapshot is an immutable reporting view of an order.
type OrderSnapshot struct {
	OrderID        string
	UserID         string
	Status         OrderStatus
	PaymentMethod  PaymentMethod
	PaymentStatus  PaymentStatus
	Currency       string
	Subtotal       int64
	Discount       int64
	Total          int64
	RefundedAmount int64
	ItemCount      int
	CouponCode     string
	CreatedAt      time.Time
}

// ReportExport describes a stored export object.
type ReportExport struct {
	Location  string
	Rows      int
	CreatedAt time.Time
}

// SystemService reports dependency health for readiness probes.
type SystemService interface {
	HealthReport(ctx context.Context) (HealthReport, error)
}

// CatalogService exposes products to shoppers and product administration to staff.
// Stock changes after creation go through the stock ledger only.
type CatalogService interface {
	ListProducts(ctx context.Context, filter ProductFilter) (domain.CursorPage[Product], error)
	GetProduct(ctx context.Context, productID string) (Product, error)
	UpsertProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error)
	Restock(ctx context.Context, productID string, qty int) (Product, error)
}

// ProductFilter narrows product listings.
type ProductFilter struct {
	CategoryID string
	ActiveOnly bool
	Pagination Pagination
}

// UpsertProductCommand creates or edits a product. InitialStock is only honoured on creation.
type UpsertProductCommand struct {
	ProductID    string
	Name         string
	CategoryID   string
	BasePrice    int64
	Active       bool
	InitialStock int
}

// AddressService manages the user address book consumed by checkout.
type AddressService interface {
	ListAddresses(ctx context.Context, userID string) ([]Address, error)
	UpsertAddress(ctx context.Context, cmd UpsertAddressCommand) (Address, error)
}

// UpsertAddressCommand creates an address when AddressID is empty and replaces it otherwise.
type UpsertAddressCommand struct {
	UserID    string
	AddressID string
	Address   Address
}
