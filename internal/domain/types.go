package domain

import "time"

// OrderStatus enumerates the lifecycle states shared by orders and their line items.
type OrderStatus string

const (
	OrderStatusPending          OrderStatus = "pending"
	OrderStatusProcessing       OrderStatus = "processing"
	OrderStatusShipped          OrderStatus = "shipped"
	OrderStatusDelivered        OrderStatus = "delivered"
	OrderStatusCancelled        OrderStatus = "cancelled"
	OrderStatusRefundProcessing OrderStatus = "refund-processing"
	OrderStatusReturned         OrderStatus = "returned"
)

// IsTerminal reports whether no further transition can leave the status.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCancelled || s == OrderStatusReturned
}

// PaymentStatus enumerates the payment lifecycle of an order.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// PaymentMethod identifies how the customer pays for an order.
type PaymentMethod string

const (
	PaymentMethodCOD    PaymentMethod = "cod"
	PaymentMethodOnline PaymentMethod = "online"
	PaymentMethodWallet PaymentMethod = "wallet"
)

// Valid reports whether the method is one of the supported payment methods.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCOD, PaymentMethodOnline, PaymentMethodWallet:
		return true
	}
	return false
}

// Refundable reports whether captured funds for the method are returned to the wallet.
func (m PaymentMethod) Refundable() bool {
	return m == PaymentMethodOnline || m == PaymentMethodWallet
}

// Product is the catalog entry consumed by pricing and the stock ledger.
type Product struct {
	ID         string
	Name       string
	CategoryID string
	BasePrice  int64
	Stock      int
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// OfferKind discriminates the target of a time-bounded offer.
type OfferKind string

const (
	OfferKindProduct  OfferKind = "product"
	OfferKindCategory OfferKind = "category"
)

// OfferStatus toggles whether an offer participates in pricing.
type OfferStatus string

const (
	OfferStatusActive   OfferStatus = "active"
	OfferStatusInactive OfferStatus = "inactive"
)

// Offer is a percentage discount scoped to a set of products or a single category.
type Offer struct {
	ID              string
	Name            string
	Kind            OfferKind
	ProductIDs      []string
	CategoryID      string
	DiscountPercent int
	StartsAt        time.Time
	EndsAt          time.Time
	Status          OfferStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Coupon is a user-redeemable discount code with global and per-user limits.
type Coupon struct {
	ID              string
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
	UsedCount       int
	Usages          []CouponUsage
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CouponUsage records one redemption of a coupon by an order.
type CouponUsage struct {
	CouponID string
	Code     string
	UserID   string
	OrderID  string
	UsedAt   time.Time
}

// Cart is the per-user collection of lines awaiting checkout.
type Cart struct {
	UserID    string
	Items     []CartItem
	Coupon    *CartCoupon
	UpdatedAt time.Time
}

// CartItem snapshots quantity and unit price at add time.
type CartItem struct {
	ProductID string
	Quantity  int
	UnitPrice int64
	AddedAt   time.Time
}

// CartCoupon captures the coupon applied to a cart with its computed discount.
type CartCoupon struct {
	Code     string
	Discount int64
}

// Address is an address-book entry; orders copy it by value.
type Address struct {
	ID         string
	Recipient  string
	Line1      string
	Line2      *string
	City       string
	State      *string
	PostalCode string
	Country    string
	Phone      *string
	IsDefault  bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// StatusHistoryEntry is one append-only record of a status change.
type StatusHistoryEntry struct {
	Status  OrderStatus
	At      time.Time
	Comment string
	Actor   string
}

// Order is created once at checkout and mutated only by lifecycle transitions.
type Order struct {
	ID              string
	UserID          string
	ShippingAddress Address
	Items           []OrderItem
	Currency        string
	Subtotal        int64
	Discount        int64
	Total           int64
	CouponCode      *string
	PaymentMethod   PaymentMethod
	Payment         OrderPayment
	Status          OrderStatus
	History         []StatusHistoryEntry
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OrderItem snapshots a purchased line at order time.
type OrderItem struct {
	ID             string
	ProductID      string
	ProductName    string
	Quantity       int
	UnitPrice      int64
	Subtotal       int64
	Status         OrderStatus
	History        []StatusHistoryEntry
	Return         *ItemReturn
	RefundedAmount int64
}

// ItemReturn tracks a return request filed against a single item.
type ItemReturn struct {
	Reason       string
	RequestedAt  time.Time
	ResolvedAt   *time.Time
	Approved     *bool
	AdminComment string
}

// OrderPayment holds the payment state of an order. PreviousIntentIDs lists intents replaced by
// a retry; UnmatchedCaptures lists gateway payments that arrived after the payment had already
// failed or been superseded and await manual reconciliation.
type OrderPayment struct {
	Status            PaymentStatus
	Provider          string
	IntentID          string
	PreviousIntentIDs []string
	ExternalPaymentID string
	UnmatchedCaptures []string
	Attempts          int
	CollectedAmount   int64
	RefundedAmount    int64
	UpdatedAt         time.Time
}

// WalletTransactionType distinguishes wallet credits from debits.
type WalletTransactionType string

const (
	WalletTransactionCredit WalletTransactionType = "credit"
	WalletTransactionDebit  WalletTransactionType = "debit"
)

// Wallet is a per-user balance kept in lock-step with its transaction log.
type Wallet struct {
	UserID    string
	Balance   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// WalletTransaction is an immutable wallet ledger record.
type WalletTransaction struct {
	ID          string
	UserID      string
	Type        WalletTransactionType
	Amount      int64
	Description string
	OrderID     string
	CreatedAt   time.Time
}

// Signed returns the transaction amount with debits negated.
func (t WalletTransaction) Signed() int64 {
	if t.Type == WalletTransactionDebit {
		return -t.Amount
	}
	return t.Amount
}

// CursorPage represents a paginated result set.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// Pagination captures cursor based paging input.
type Pagination struct {
	PageSize  int
	PageToken string
}

// RangeQuery describes an optional inclusive lower / exclusive upper bound.
type RangeQuery[T any] struct {
	From *T
	To   *T
}

// HealthStatus summarises dependency health.
type HealthStatus string

const (
	HealthStatusOK       HealthStatus = "ok"
	HealthStatusDegraded HealthStatus = "degraded"
	HealthStatusError    HealthStatus = "error"
)

// HealthCheck is the outcome of one dependency probe.
type HealthCheck struct {
	Status    HealthStatus
	Detail    string
	Latency   time.Duration
	CheckedAt time.Time
}

// HealthReport aggregates dependency probes for readiness endpoints.
type HealthReport struct {
	Status      HealthStatus
	Checks      map[string]HealthCheck
	Version     string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}
