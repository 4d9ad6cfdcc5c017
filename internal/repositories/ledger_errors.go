package repositories

import "fmt"

// WalletErrorCode enumerates failure reasons for wallet ledger writes.
type WalletErrorCode string

const (
	// WalletErrorInsufficientBalance indicates a debit larger than the balance.
	WalletErrorInsufficientBalance WalletErrorCode = "wallet_insufficient_balance"
	// WalletErrorInvalidAmount indicates a non-positive transaction amount.
	WalletErrorInvalidAmount WalletErrorCode = "wallet_invalid_amount"
	// WalletErrorNegativeBalance indicates the stored balance would become negative.
	// It is never produced by valid input.
	WalletErrorNegativeBalance WalletErrorCode = "wallet_negative_balance"
)

// WalletError wraps wallet-specific failures with machine readable codes.
type WalletError struct {
	Op      string
	Code    WalletErrorCode
	UserID  string
	Message string
}

// Error implements the error interface.
func (e *WalletError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// NewWalletError constructs a typed wallet error.
func NewWalletError(code WalletErrorCode, userID, message string) *WalletError {
	if message == "" {
		message = string(code)
	}
	return &WalletError{Code: code, UserID: userID, Message: message}
}

// CouponUsageErrorCode enumerates reasons a coupon redemption was refused at write time.
type CouponUsageErrorCode string

const (
	// CouponUsageGlobalLimit indicates the coupon has no redemptions left.
	CouponUsageGlobalLimit CouponUsageErrorCode = "coupon_global_limit"
	// CouponUsageUserLimit indicates the user exhausted their redemptions.
	CouponUsageUserLimit CouponUsageErrorCode = "coupon_user_limit"
	// CouponUsageCouponNotFound indicates the coupon vanished before redemption.
	CouponUsageCouponNotFound CouponUsageErrorCode = "coupon_not_found"
)

// CouponUsageError reports a refused coupon redemption.
type CouponUsageError struct {
	Code    CouponUsageErrorCode
	Coupon  string
	Message string
}

// Error implements the error interface.
func (e *CouponUsageError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("coupon %s: %s", e.Coupon, e.Message)
}

// NewCouponUsageError constructs a typed coupon usage error.
func NewCouponUsageError(code CouponUsageErrorCode, coupon, message string) *CouponUsageError {
	if message == "" {
		message = string(code)
	}
	return &CouponUsageError{Code: code, Coupon: coupon, Message: message}
}

// OfferOverlapError reports an offer whose window overlaps an existing offer for the same target.
type OfferOverlapError struct {
	OfferID       string
	ConflictingID string
}

// Error implements the error interface.
func (e *OfferOverlapError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("offer %s overlaps offer %s for the same target", e.OfferID, e.ConflictingID)
}

// VersionConflictError reports an optimistic concurrency failure on an order write.
type VersionConflictError struct {
	OrderID  string
	Expected int64
	Actual   int64
}

// Error implements the error interface.
func (e *VersionConflictError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("order %s: expected version %d but found %d", e.OrderID, e.Expected, e.Actual)
}

// IsNotFound implements RepositoryError.
func (e *VersionConflictError) IsNotFound() bool { return false }

// IsConflict implements RepositoryError.
func (e *VersionConflictError) IsConflict() bool { return true }

// IsUnavailable implements RepositoryError.
func (e *VersionConflictError) IsUnavailable() bool { return false }
