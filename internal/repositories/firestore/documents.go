package firestore

import (
	"slices"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
)

type productDocument struct {
	Name       string    `firestore:"name"`
	CategoryID string    `firestore:"categoryId"`
	BasePrice  int64     `firestore:"basePrice"`
	Stock      int       `firestore:"stock"`
	Active     bool      `firestore:"active"`
	CreatedAt  time.Time `firestore:"createdAt"`
	UpdatedAt  time.Time `firestore:"updatedAt"`
}

func newProductDocument(p domain.Product) productDocument {
	return productDocument{
		Name:       p.Name,
		CategoryID: p.CategoryID,
		BasePrice:  p.BasePrice,
		Stock:      p.Stock,
		Active:     p.Active,
		CreatedAt:  p.CreatedAt.UTC(),
		UpdatedAt:  p.UpdatedAt.UTC(),
	}
}

func (d productDocument) toDomain(id string) domain.Product {
	return domain.Product{
		ID:         id,
		Name:       d.Name,
		CategoryID: d.CategoryID,
		BasePrice:  d.BasePrice,
		Stock:      d.Stock,
		Active:     d.Active,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

type offerDocument struct {
	Name            string    `firestore:"name"`
	Kind            string    `firestore:"kind"`
	ProductIDs      []string  `firestore:"productIds,omitempty"`
	CategoryID      string    `firestore:"categoryId,omitempty"`
	DiscountPercent int       `firestore:"discountPercent"`
	StartsAt        time.Time `firestore:"startsAt"`
	EndsAt          time.Time `firestore:"endsAt"`
	Status          string    `firestore:"status"`
	CreatedAt       time.Time `firestore:"createdAt"`
	UpdatedAt       time.Time `firestore:"updatedAt"`
}

func newOfferDocument(o domain.Offer) offerDocument {
	return offerDocument{
		Name:            o.Name,
		Kind:            string(o.Kind),
		ProductIDs:      slices.Clone(o.ProductIDs),
		CategoryID:      o.CategoryID,
		DiscountPercent: o.DiscountPercent,
		StartsAt:        o.StartsAt.UTC(),
		EndsAt:          o.EndsAt.UTC(),
		Status:          string(o.Status),
		CreatedAt:       o.CreatedAt.UTC(),
		UpdatedAt:       o.UpdatedAt.UTC(),
	}
}

func (d offerDocument) toDomain(id string) domain.Offer {
	return domain.Offer{
		ID:              id,
		Name:            d.Name,
		Kind:            domain.OfferKind(d.Kind),
		ProductIDs:      slices.Clone(d.ProductIDs),
		CategoryID:      d.CategoryID,
		DiscountPercent: d.DiscountPercent,
		StartsAt:        d.StartsAt,
		EndsAt:          d.EndsAt,
		Status:          domain.OfferStatus(d.Status),
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

type couponDocument struct {
	Code            string                `firestore:"code"`
	Description     string                `firestore:"description,omitempty"`
	DiscountPercent int                   `firestore:"discountPercent"`
	MaxDiscount     *int64                `firestore:"maxDiscount"`
	MinPurchase     int64                 `firestore:"minPurchase"`
	StartsAt        time.Time             `firestore:"startsAt"`
	ExpiresAt       time.Time             `firestore:"expiresAt"`
	Active          bool                  `firestore:"active"`
	GlobalLimit     *int                  `firestore:"globalLimit"`
	PerUserLimit    int                   `firestore:"perUserLimit"`
	UsedCount       int                   `firestore:"usedCount"`
	Usages          []couponUsageDocument `firestore:"usages"`
	CreatedAt       time.Time             `firestore:"createdAt"`
	UpdatedAt       time.Time             `firestore:"updatedAt"`
}

type couponUsageDocument struct {
	UserID  string    `firestore:"userId"`
	OrderID string    `firestore:"orderId"`
	UsedAt  time.Time `firestore:"usedAt"`
}

func newCouponDocument(c domain.Coupon) couponDocument {
	doc := couponDocument{
		Code:            c.Code,
		Description:     c.Description,
		DiscountPercent: c.DiscountPercent,
		MaxDiscount:     c.MaxDiscount,
		MinPurchase:     c.MinPurchase,
		StartsAt:        c.StartsAt.UTC(),
		ExpiresAt:       c.ExpiresAt.UTC(),
		Active:          c.Active,
		GlobalLimit:     c.GlobalLimit,
		PerUserLimit:    c.PerUserLimit,
		UsedCount:       c.UsedCount,
		Usages:          make([]couponUsageDocument, 0, len(c.Usages)),
		CreatedAt:       c.CreatedAt.UTC(),
		UpdatedAt:       c.UpdatedAt.UTC(),
	}
	for _, usage := range c.Usages {
		doc.Usages = append(doc.Usages, couponUsageDocument{UserID: usage.UserID, OrderID: usage.OrderID, UsedAt: usage.UsedAt.UTC()})
	}
	return doc
}

func (d couponDocument) toDomain(id string) domain.Coupon {
	coupon := domain.Coupon{
		ID:              id,
		Code:            d.Code,
		Description:     d.Description,
		DiscountPercent: d.DiscountPercent,
		MaxDiscount:     d.MaxDiscount,
		MinPurchase:     d.MinPurchase,
		StartsAt:        d.StartsAt,
		ExpiresAt:       d.ExpiresAt,
		Active:          d.Active,
		GlobalLimit:     d.GlobalLimit,
		PerUserLimit:    d.PerUserLimit,
		UsedCount:       d.UsedCount,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
	for _, usage := range d.Usages {
		coupon.Usages = append(coupon.Usages, domain.CouponUsage{
			CouponID: id,
			Code:     d.Code,
			UserID:   usage.UserID,
			OrderID:  usage.OrderID,
			UsedAt:   usage.UsedAt,
		})
	}
	return coupon
}

type cartDocument struct {
	Items     []cartItemDocument  `firestore:"items"`
	Coupon    *cartCouponDocument `firestore:"coupon"`
	UpdatedAt time.Time           `firestore:"updatedAt"`
}

type cartItemDocument struct {
	ProductID string    `firestore:"productId"`
	Quantity  int       `firestore:"quantity"`
	UnitPrice int64     `firestore:"unitPrice"`
	AddedAt   time.Time `firestore:"addedAt"`
}

type cartCouponDocument struct {
	Code     string `firestore:"code"`
	Discount int64  `firestore:"discount"`
}

func newCartDocument(c domain.Cart) cartDocument {
	doc := cartDocument{Items: make([]cartItemDocument, 0, len(c.Items)), UpdatedAt: c.UpdatedAt.UTC()}
	for _, item := range c.Items {
		doc.Items = append(doc.Items, cartItemDocument{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			AddedAt:   item.AddedAt.UTC(),
		})
	}
	if c.Coupon != nil {
		doc.Coupon = &cartCouponDocument{Code: c.Coupon.Code, Discount: c.Coupon.Discount}
	}
	return doc
}

func (d cartDocument) toDomain(userID string) domain.Cart {
	cart := domain.Cart{UserID: userID, UpdatedAt: d.UpdatedAt}
	for _, item := range d.Items {
		cart.Items = append(cart.Items, domain.CartItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			AddedAt:   item.AddedAt,
		})
	}
	if d.Coupon != nil {
		cart.Coupon = &domain.CartCoupon{Code: d.Coupon.Code, Discount: d.Coupon.Discount}
	}
	return cart
}

// addressDocument carries ID only when embedded in an order; address-book entries are keyed by
// document ID.
type addressDocument struct {
	ID         string    `firestore:"id,omitempty"`
	Recipient  string    `firestore:"recipient"`
	Line1      string    `firestore:"line1"`
	Line2      *string   `firestore:"line2"`
	City       string    `firestore:"city"`
	State      *string   `firestore:"state"`
	PostalCode string    `firestore:"postalCode"`
	Country    string    `firestore:"country"`
	Phone      *string   `firestore:"phone"`
	IsDefault  bool      `firestore:"isDefault"`
	CreatedAt  time.Time `firestore:"createdAt"`
	UpdatedAt  time.Time `firestore:"updatedAt"`
}

func newAddressDocument(a domain.Address) addressDocument {
	return addressDocument{
		Recipient:  a.Recipient,
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
		Phone:      a.Phone,
		IsDefault:  a.IsDefault,
		CreatedAt:  a.CreatedAt.UTC(),
		UpdatedAt:  a.UpdatedAt.UTC(),
	}
}

func (d addressDocument) toDomain(id string) domain.Address {
	return domain.Address{
		ID:         id,
		Recipient:  d.Recipient,
		Line1:      d.Line1,
		Line2:      d.Line2,
		City:       d.City,
		State:      d.State,
		PostalCode: d.PostalCode,
		Country:    d.Country,
		Phone:      d.Phone,
		IsDefault:  d.IsDefault,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

// orderDocument embeds the shipping address by value; later address-book edits never reach it.
type orderDocument struct {
	UserID          string              `firestore:"userId"`
	ShippingAddress addressDocument     `firestore:"shippingAddress"`
	Items           []orderItemDocument `firestore:"items"`
	Currency        string              `firestore:"currency"`
	Subtotal        int64               `firestore:"subtotal"`
	Discount        int64               `firestore:"discount"`
	Total           int64               `firestore:"total"`
	CouponCode      *string             `firestore:"couponCode"`
	PaymentMethod   string              `firestore:"paymentMethod"`
	Payment         paymentDocument     `firestore:"payment"`
	Status          string              `firestore:"status"`
	History         []historyDocument   `firestore:"history"`
	Version         int64               `firestore:"version"`
	CreatedAt       time.Time           `firestore:"createdAt"`
	UpdatedAt       time.Time           `firestore:"updatedAt"`
}

type orderItemDocument struct {
	ID             string              `firestore:"id"`
	ProductID      string              `firestore:"productId"`
	ProductName    string              `firestore:"productName"`
	Quantity       int                 `firestore:"quantity"`
	UnitPrice      int64               `firestore:"unitPrice"`
	Subtotal       int64               `firestore:"subtotal"`
	Status         string              `firestore:"status"`
	History        []historyDocument   `firestore:"history"`
	Return         *itemReturnDocument `firestore:"return"`
	RefundedAmount int64               `firestore:"refundedAmount"`
}

type itemReturnDocument struct {
	Reason       string     `firestore:"reason"`
	RequestedAt  time.Time  `firestore:"requestedAt"`
	ResolvedAt   *time.Time `firestore:"resolvedAt"`
	Approved     *bool      `firestore:"approved"`
	AdminComment string     `firestore:"adminComment,omitempty"`
}

type historyDocument struct {
	Status  string    `firestore:"status"`
	At      time.Time `firestore:"at"`
	Comment string    `firestore:"comment,omitempty"`
	Actor   string    `firestore:"actor,omitempty"`
}

type paymentDocument struct {
	Status            string    `firestore:"status"`
	Provider          string    `firestore:"provider,omitempty"`
	IntentID          string    `firestore:"intentId,omitempty"`
	PreviousIntentIDs []string  `firestore:"previousIntentIds,omitempty"`
	ExternalPaymentID string    `firestore:"externalPaymentId,omitempty"`
	UnmatchedCaptures []string  `firestore:"unmatchedCaptures,omitempty"`
	Attempts          int       `firestore:"attempts"`
	CollectedAmount   int64     `firestore:"collectedAmount,omitempty"`
	RefundedAmount    int64     `firestore:"refundedAmount"`
	UpdatedAt         time.Time `firestore:"updatedAt"`
}

func newOrderDocument(o domain.Order) orderDocument {
	doc := orderDocument{
		UserID:          o.UserID,
		ShippingAddress: shippingAddressDocument(o.ShippingAddress),
		Items:           make([]orderItemDocument, 0, len(o.Items)),
		Currency:        o.Currency,
		Subtotal:        o.Subtotal,
		Discount:        o.Discount,
		Total:           o.Total,
		CouponCode:      o.CouponCode,
		PaymentMethod:   string(o.PaymentMethod),
		Payment: paymentDocument{
			Status:            string(o.Payment.Status),
			Provider:          o.Payment.Provider,
			IntentID:          o.Payment.IntentID,
			PreviousIntentIDs: o.Payment.PreviousIntentIDs,
			ExternalPaymentID: o.Payment.ExternalPaymentID,
			UnmatchedCaptures: o.Payment.UnmatchedCaptures,
			Attempts:          o.Payment.Attempts,
			CollectedAmount:   o.Payment.CollectedAmount,
			RefundedAmount:    o.Payment.RefundedAmount,
			UpdatedAt:         o.Payment.UpdatedAt.UTC(),
		},
		Status:    string(o.Status),
		History:   newHistoryDocuments(o.History),
		Version:   o.Version,
		CreatedAt: o.CreatedAt.UTC(),
		UpdatedAt: o.UpdatedAt.UTC(),
	}
	for _, item := range o.Items {
		itemDoc := orderItemDocument{
			ID:             item.ID,
			ProductID:      item.ProductID,
			ProductName:    item.ProductName,
			Quantity:       item.Quantity,
			UnitPrice:      item.UnitPrice,
			Subtotal:       item.Subtotal,
			Status:         string(item.Status),
			History:        newHistoryDocuments(item.History),
			RefundedAmount: item.RefundedAmount,
		}
		if ret := item.Return; ret != nil {
			itemDoc.Return = &itemReturnDocument{
				Reason:       ret.Reason,
				RequestedAt:  ret.RequestedAt.UTC(),
				ResolvedAt:   ret.ResolvedAt,
				Approved:     ret.Approved,
				AdminComment: ret.AdminComment,
			}
		}
		doc.Items = append(doc.Items, itemDoc)
	}
	return doc
}

func shippingAddressDocument(a domain.Address) addressDocument {
	doc := newAddressDocument(a)
	doc.ID = a.ID
	return doc
}

func (d orderDocument) toDomain(id string) domain.Order {
	order := domain.Order{
		ID:              id,
		UserID:          d.UserID,
		ShippingAddress: d.ShippingAddress.toDomain(d.ShippingAddress.ID),
		Items:           make([]domain.OrderItem, 0, len(d.Items)),
		Currency:        d.Currency,
		Subtotal:        d.Subtotal,
		Discount:        d.Discount,
		Total:           d.Total,
		CouponCode:      d.CouponCode,
		PaymentMethod:   domain.PaymentMethod(d.PaymentMethod),
		Payment: domain.OrderPayment{
			Status:            domain.PaymentStatus(d.Payment.Status),
			Provider:          d.Payment.Provider,
			IntentID:          d.Payment.IntentID,
			PreviousIntentIDs: d.Payment.PreviousIntentIDs,
			ExternalPaymentID: d.Payment.ExternalPaymentID,
			UnmatchedCaptures: d.Payment.UnmatchedCaptures,
			Attempts:          d.Payment.Attempts,
			CollectedAmount:   d.Payment.CollectedAmount,
			RefundedAmount:    d.Payment.RefundedAmount,
			UpdatedAt:         d.Payment.UpdatedAt,
		},
		Status:    domain.OrderStatus(d.Status),
		History:   historyToDomain(d.History),
		Version:   d.Version,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	for _, item := range d.Items {
		out := domain.OrderItem{
			ID:             item.ID,
			ProductID:      item.ProductID,
			ProductName:    item.ProductName,
			Quantity:       item.Quantity,
			UnitPrice:      item.UnitPrice,
			Subtotal:       item.Subtotal,
			Status:         domain.OrderStatus(item.Status),
			History:        historyToDomain(item.History),
			RefundedAmount: item.RefundedAmount,
		}
		if ret := item.Return; ret != nil {
			out.Return = &domain.ItemReturn{
				Reason:       ret.Reason,
				RequestedAt:  ret.RequestedAt,
				ResolvedAt:   ret.ResolvedAt,
				Approved:     ret.Approved,
				AdminComment: ret.AdminComment,
			}
		}
		order.Items = append(order.Items, out)
	}
	return order
}

func newHistoryDocuments(entries []domain.StatusHistoryEntry) []historyDocument {
	out := make([]historyDocument, 0, len(entries))
	for _, entry := range entries {
		out = append(out, historyDocument{Status: string(entry.Status), At: entry.At.UTC(), Comment: entry.Comment, Actor: entry.Actor})
	}
	return out
}

func historyToDomain(entries []historyDocument) []domain.StatusHistoryEntry {
	out := make([]domain.StatusHistoryEntry, 0, len(entries))
	for _, entry := range entries {
		out = append(out, domain.StatusHistoryEntry{Status: domain.OrderStatus(entry.Status), At: entry.At, Comment: entry.Comment, Actor: entry.Actor})
	}
	return out
}

type walletDocument struct {
	Balance   int64     `firestore:"balance"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

type walletTransactionDocument struct {
	Type        string    `firestore:"type"`
	Amount      int64     `firestore:"amount"`
	Description string    `firestore:"description,omitempty"`
	OrderID     string    `firestore:"orderId,omitempty"`
	CreatedAt   time.Time `firestore:"createdAt"`
}

func newWalletTransactionDocument(t domain.WalletTransaction) walletTransactionDocument {
	return walletTransactionDocument{
		Type:        string(t.Type),
		Amount:      t.Amount,
		Description: t.Description,
		OrderID:     t.OrderID,
		CreatedAt:   t.CreatedAt.UTC(),
	}
}

func (d walletTransactionDocument) toDomain(userID, id string) domain.WalletTransaction {
	return domain.WalletTransaction{
		ID:          id,
		UserID:      userID,
		Type:        domain.WalletTransactionType(d.Type),
		Amount:      d.Amount,
		Description: d.Description,
		OrderID:     d.OrderID,
		CreatedAt:   d.CreatedAt,
	}
}
