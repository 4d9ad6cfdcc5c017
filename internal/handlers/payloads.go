package handlers

import (
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/services"
)

type productPayload struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	CategoryID string `json:"category_id,omitempty"`
	BasePrice  int64  `json:"base_price"`
	Stock      int    `json:"stock"`
	Active     bool   `json:"active"`
	CreatedAt  string `json:"created_at,omitempty"`
	UpdatedAt  string `json:"updated_at,omitempty"`
}

func buildProductPayload(product services.Product) productPayload {
	return productPayload{
		ID:         product.ID,
		Name:       product.Name,
		CategoryID: product.CategoryID,
		BasePrice:  product.BasePrice,
		Stock:      product.Stock,
		Active:     product.Active,
		CreatedAt:  formatTime(product.CreatedAt),
		UpdatedAt:  formatTime(product.UpdatedAt),
	}
}

type priceQuotePayload struct {
	ProductID       string `json:"product_id"`
	BasePrice       int64  `json:"base_price"`
	Price           int64  `json:"price"`
	DiscountPercent int    `json:"discount_percent"`
	OfferID         string `json:"offer_id,omitempty"`
	OfferKind       string `json:"offer_kind,omitempty"`
	QuotedAt        string `json:"quoted_at"`
}

func buildPriceQuotePayload(quote services.PriceQuote) priceQuotePayload {
	return priceQuotePayload{
		ProductID:       quote.ProductID,
		BasePrice:       quote.BasePrice,
		Price:           quote.Price,
		DiscountPercent: quote.DiscountPercent,
		OfferID:         quote.OfferID,
		OfferKind:       string(quote.OfferKind),
		QuotedAt:        formatTime(quote.QuotedAt),
	}
}

type cartPayload struct {
	UserID     string             `json:"user_id"`
	ItemsCount int                `json:"items_count"`
	Items      []cartItemPayload  `json:"items"`
	Coupon     *cartCouponPayload `json:"coupon,omitempty"`
	Subtotal   int64              `json:"subtotal"`
	Discount   int64              `json:"discount"`
	Total      int64              `json:"total"`
	UpdatedAt  string             `json:"updated_at,omitempty"`
}

type cartItemPayload struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	LineTotal int64  `json:"line_total"`
	AddedAt   string `json:"added_at,omitempty"`
}

type cartCouponPayload struct {
	Code     string `json:"code"`
	Discount int64  `json:"discount"`
}

func buildCartPayload(view services.CartView) cartPayload {
	payload := cartPayload{
		UserID:     view.Cart.UserID,
		ItemsCount: len(view.Cart.Items),
		Items:      make([]cartItemPayload, 0, len(view.Cart.Items)),
		Subtotal:   view.Subtotal,
		Discount:   view.Discount,
		Total:      view.Total,
		UpdatedAt:  formatTime(view.Cart.UpdatedAt),
	}
	for _, item := range view.Cart.Items {
		payload.Items = append(payload.Items, cartItemPayload{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			LineTotal: item.UnitPrice * int64(item.Quantity),
			AddedAt:   formatTime(item.AddedAt),
		})
	}
	if view.Cart.Coupon != nil {
		payload.Coupon = &cartCouponPayload{Code: view.Cart.Coupon.Code, Discount: view.Cart.Coupon.Discount}
	}
	return payload
}

type addressPayload struct {
	ID         string  `json:"id,omitempty"`
	Recipient  string  `json:"recipient"`
	Line1      string  `json:"line1"`
	Line2      *string `json:"line2,omitempty"`
	City       string  `json:"city"`
	State      *string `json:"state,omitempty"`
	PostalCode string  `json:"postal_code"`
	Country    string  `json:"country"`
	Phone      *string `json:"phone,omitempty"`
	IsDefault  bool    `json:"is_default"`
	CreatedAt  string  `json:"created_at,omitempty"`
	UpdatedAt  string  `json:"updated_at,omitempty"`
}

func buildAddressPayload(addr services.Address) addressPayload {
	return addressPayload{
		ID:         addr.ID,
		Recipient:  addr.Recipient,
		Line1:      addr.Line1,
		Line2:      addr.Line2,
		City:       addr.City,
		State:      addr.State,
		PostalCode: addr.PostalCode,
		Country:    addr.Country,
		Phone:      addr.Phone,
		IsDefault:  addr.IsDefault,
		CreatedAt:  formatTime(addr.CreatedAt),
		UpdatedAt:  formatTime(addr.UpdatedAt),
	}
}

type historyPayload struct {
	Status  string `json:"status"`
	At      string `json:"at"`
	Comment string `json:"comment,omitempty"`
	Actor   string `json:"actor,omitempty"`
}

func buildHistoryPayload(entries []domain.StatusHistoryEntry) []historyPayload {
	out := make([]historyPayload, 0, len(entries))
	for _, entry := range entries {
		out = append(out, historyPayload{
			Status:  string(entry.Status),
			At:      formatTime(entry.At),
			Comment: entry.Comment,
			Actor:   entry.Actor,
		})
	}
	return out
}

type orderPayload struct {
	ID              string              `json:"id"`
	UserID          string              `json:"user_id"`
	Status          string              `json:"status"`
	ShippingAddress addressPayload      `json:"shipping_address"`
	Items           []orderItemPayload  `json:"items"`
	Currency        string              `json:"currency"`
	Subtotal        int64               `json:"subtotal"`
	Discount        int64               `json:"discount"`
	Total           int64               `json:"total"`
	CouponCode      string              `json:"coupon_code,omitempty"`
	PaymentMethod   string              `json:"payment_method"`
	Payment         orderPaymentPayload `json:"payment"`
	History         []historyPayload    `json:"history"`
	Version         int64               `json:"version"`
	CreatedAt       string              `json:"created_at"`
	UpdatedAt       string              `json:"updated_at,omitempty"`
}

type orderItemPayload struct {
	ID             string             `json:"id"`
	ProductID      string             `json:"product_id"`
	ProductName    string             `json:"product_name"`
	Quantity       int                `json:"quantity"`
	UnitPrice      int64              `json:"unit_price"`
	Subtotal       int64              `json:"subtotal"`
	Status         string             `json:"status"`
	RefundedAmount int64              `json:"refunded_amount,omitempty"`
	Return         *itemReturnPayload `json:"return,omitempty"`
	History        []historyPayload   `json:"history"`
}

type itemReturnPayload struct {
	Reason       string `json:"reason"`
	RequestedAt  string `json:"requested_at"`
	ResolvedAt   string `json:"resolved_at,omitempty"`
	Approved     *bool  `json:"approved,omitempty"`
	AdminComment string `json:"admin_comment,omitempty"`
}

type orderPaymentPayload struct {
	Status            string   `json:"status"`
	Provider          string   `json:"provider,omitempty"`
	IntentID          string   `json:"intent_id,omitempty"`
	ExternalPaymentID string   `json:"external_payment_id,omitempty"`
	UnmatchedCaptures []string `json:"unmatched_captures,omitempty"`
	Attempts          int      `json:"attempts"`
	CollectedAmount   int64    `json:"collected_amount,omitempty"`
	RefundedAmount    int64    `json:"refunded_amount"`
	UpdatedAt         string   `json:"updated_at,omitempty"`
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:              order.ID,
		UserID:          order.UserID,
		Status:          string(order.Status),
		ShippingAddress: buildAddressPayload(order.ShippingAddress),
		Items:           make([]orderItemPayload, 0, len(order.Items)),
		Currency:        strings.ToUpper(order.Currency),
		Subtotal:        order.Subtotal,
		Discount:        order.Discount,
		Total:           order.Total,
		PaymentMethod:   string(order.PaymentMethod),
		Payment: orderPaymentPayload{
			Status:            string(order.Payment.Status),
			Provider:          order.Payment.Provider,
			IntentID:          order.Payment.IntentID,
			ExternalPaymentID: order.Payment.ExternalPaymentID,
			UnmatchedCaptures: order.Payment.UnmatchedCaptures,
			Attempts:          order.Payment.Attempts,
			CollectedAmount:   order.Payment.CollectedAmount,
			RefundedAmount:    order.Payment.RefundedAmount,
			UpdatedAt:         formatTime(order.Payment.UpdatedAt),
		},
		History:   buildHistoryPayload(order.History),
		Version:   order.Version,
		CreatedAt: formatTime(order.CreatedAt),
		UpdatedAt: formatTime(order.UpdatedAt),
	}
	if order.CouponCode != nil {
		payload.CouponCode = *order.CouponCode
	}
	for _, item := range order.Items {
		entry := orderItemPayload{
			ID:             item.ID,
			ProductID:      item.ProductID,
			ProductName:    item.ProductName,
			Quantity:       item.Quantity,
			UnitPrice:      item.UnitPrice,
			Subtotal:       item.Subtotal,
			Status:         string(item.Status),
			RefundedAmount: item.RefundedAmount,
			History:        buildHistoryPayload(item.History),
		}
		if ret := item.Return; ret != nil {
			entry.Return = &itemReturnPayload{
				Reason:       ret.Reason,
				RequestedAt:  formatTime(ret.RequestedAt),
				Approved:     ret.Approved,
				AdminComment: ret.AdminComment,
			}
			if ret.ResolvedAt != nil {
				entry.Return.ResolvedAt = formatTime(*ret.ResolvedAt)
			}
		}
		payload.Items = append(payload.Items, entry)
	}
	return payload
}

type orderSummaryPayload struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	PaymentMethod string `json:"payment_method"`
	PaymentStatus string `json:"payment_status"`
	ItemsCount    int    `json:"items_count"`
	Total         int64  `json:"total"`
	Currency      string `json:"currency"`
	CreatedAt     string `json:"created_at"`
}

func buildOrderSummary(order services.Order) orderSummaryPayload {
	return orderSummaryPayload{
		ID:            order.ID,
		Status:        string(order.Status),
		PaymentMethod: string(order.PaymentMethod),
		PaymentStatus: string(order.Payment.Status),
		ItemsCount:    len(order.Items),
		Total:         order.Total,
		Currency:      strings.ToUpper(order.Currency),
		CreatedAt:     formatTime(order.CreatedAt),
	}
}

type orderListResponse struct {
	Items         []orderSummaryPayload `json:"items"`
	NextPageToken string                `json:"next_page_token,omitempty"`
}

func buildOrderList(page domain.CursorPage[services.Order]) orderListResponse {
	resp := orderListResponse{
		Items:         make([]orderSummaryPayload, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
	}
	for _, order := range page.Items {
		resp.Items = append(resp.Items, buildOrderSummary(order))
	}
	return resp
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type walletPayload struct {
	UserID    string `json:"user_id"`
	Balance   int64  `json:"balance"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

type walletTransactionPayload struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Amount      int64  `json:"amount"`
	Description string `json:"description,omitempty"`
	OrderID     string `json:"order_id,omitempty"`
	CreatedAt   string `json:"created_at"`
}

func buildWalletTransactionPayload(txn services.WalletTransaction) walletTransactionPayload {
	return walletTransactionPayload{
		ID:          txn.ID,
		Type:        string(txn.Type),
		Amount:      txn.Amount,
		Description: txn.Description,
		OrderID:     txn.OrderID,
		CreatedAt:   formatTime(txn.CreatedAt),
	}
}

type offerPayload struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Kind            string   `json:"kind"`
	ProductIDs      []string `json:"product_ids,omitempty"`
	CategoryID      string   `json:"category_id,omitempty"`
	DiscountPercent int      `json:"discount_percent"`
	StartsAt        string   `json:"starts_at"`
	EndsAt          string   `json:"ends_at"`
	Status          string   `json:"status"`
	CreatedAt       string   `json:"created_at,omitempty"`
	UpdatedAt       string   `json:"updated_at,omitempty"`
}

func buildOfferPayload(offer services.Offer) offerPayload {
	return offerPayload{
		ID:              offer.ID,
		Name:            offer.Name,
		Kind:            string(offer.Kind),
		ProductIDs:      offer.ProductIDs,
		CategoryID:      offer.CategoryID,
		DiscountPercent: offer.DiscountPercent,
		StartsAt:        formatTime(offer.StartsAt),
		EndsAt:          formatTime(offer.EndsAt),
		Status:          string(offer.Status),
		CreatedAt:       formatTime(offer.CreatedAt),
		UpdatedAt:       formatTime(offer.UpdatedAt),
	}
}

type couponPayload struct {
	ID              string `json:"id"`
	Code            string `json:"code"`
	Description     string `json:"description,omitempty"`
	DiscountPercent int    `json:"discount_percent"`
	MaxDiscount     *int64 `json:"max_discount,omitempty"`
	MinPurchase     int64  `json:"min_purchase"`
	StartsAt        string `json:"starts_at"`
	ExpiresAt       string `json:"expires_at"`
	Active          bool   `json:"active"`
	GlobalLimit     *int   `json:"global_limit,omitempty"`
	PerUserLimit    int    `json:"per_user_limit"`
	UsedCount       int    `json:"used_count"`
}

func buildCouponPayload(coupon services.Coupon) couponPayload {
	return couponPayload{
		ID:              coupon.ID,
		Code:            coupon.Code,
		Description:     coupon.Description,
		DiscountPercent: coupon.DiscountPercent,
		MaxDiscount:     coupon.MaxDiscount,
		MinPurchase:     coupon.MinPurchase,
		StartsAt:        formatTime(coupon.StartsAt),
		ExpiresAt:       formatTime(coupon.ExpiresAt),
		Active:          coupon.Active,
		GlobalLimit:     coupon.GlobalLimit,
		PerUserLimit:    coupon.PerUserLimit,
		UsedCount:       coupon.UsedCount,
	}
}

type orderSnapshotPayload struct {
	OrderID        string `json:"order_id"`
	UserID         string `json:"user_id"`
	Status         string `json:"status"`
	PaymentMethod  string `json:"payment_method"`
	PaymentStatus  string `json:"payment_status"`
	Currency       string `json:"currency"`
	Subtotal       int64  `json:"subtotal"`
	Discount       int64  `json:"discount"`
	Total          int64  `json:"total"`
	RefundedAmount int64  `json:"refunded_amount"`
	ItemCount      int    `json:"item_count"`
	CouponCode     string `json:"coupon_code,omitempty"`
	CreatedAt      string `json:"created_at"`
}

func buildSnapshotPayload(snapshot services.OrderSnapshot) orderSnapshotPayload {
	return orderSnapshotPayload{
		OrderID:        snapshot.OrderID,
		UserID:         snapshot.UserID,
		Status:         string(snapshot.Status),
		PaymentMethod:  string(snapshot.PaymentMethod),
		PaymentStatus:  string(snapshot.PaymentStatus),
		Currency:       snapshot.Currency,
		Subtotal:       snapshot.Subtotal,
		Discount:       snapshot.Discount,
		Total:          snapshot.Total,
		RefundedAmount: snapshot.RefundedAmount,
		ItemCount:      snapshot.ItemCount,
		CouponCode:     snapshot.CouponCode,
		CreatedAt:      formatTime(snapshot.CreatedAt),
	}
}

func parseOrderStatuses(values []string) ([]services.OrderStatus, error) {
	raw := parseFilterValues(values)
	if len(raw) == 0 {
		return nil, nil
	}
	out := make([]services.OrderStatus, 0, len(raw))
	for _, value := range raw {
		status := domain.OrderStatus(value)
		if _, ok := knownOrderStatuses[status]; !ok {
			return nil, fmt.Errorf("unknown order status %q", value)
		}
		out = append(out, status)
	}
	return out, nil
}

var knownOrderStatuses = map[domain.OrderStatus]struct{}{
	domain.OrderStatusPending:          {},
	domain.OrderStatusProcessing:       {},
	domain.OrderStatusShipped:          {},
	domain.OrderStatusDelivered:        {},
	domain.OrderStatusCancelled:        {},
	domain.OrderStatusRefundProcessing: {},
	domain.OrderStatusReturned:         {},
}

// parseDateRange reads optional from/to query values. The upper bound is exclusive.
func parseDateRange(fromRaw, toRaw string) (*time.Time, *time.Time, error) {
	var from, to *time.Time
	if strings.TrimSpace(fromRaw) != "" {
		ts, err := parseTimeParam(fromRaw)
		if err != nil {
			return nil, nil, errors.New("from must be an RFC3339 timestamp or date")
		}
		from = &ts
	}
	if strings.TrimSpace(toRaw) != "" {
		ts, err := parseTimeParam(toRaw)
		if err != nil {
			return nil, nil, errors.New("to must be an RFC3339 timestamp or date")
		}
		to = &ts
	}
	if from != nil && to != nil && !from.Before(*to) {
		return nil, nil, errors.New("from must be before to")
	}
	return from, to, nil
}
