package services

import (
	"errors"
	"fmt"

	"github.com/hanko-field/storefront/internal/platform/pagination"
	"github.com/hanko-field/storefront/internal/repositories"
)

var (
	// ErrNotFound indicates the target entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates an invalid state transition or an exhausted limit.
	ErrConflict = errors.New("conflict")
	// ErrUnauthorized indicates the acting user does not own the target entity.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrExternalFailure indicates the payment gateway failed or a callback was not authentic.
	ErrExternalFailure = errors.New("external failure")
	// ErrInvariantViolation is an internal defect. It is logged and never rendered verbatim.
	ErrInvariantViolation = errors.New("invariant violation")
	// ErrInvalidInput indicates the caller supplied malformed input.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnavailable indicates a backing store could not be reached.
	ErrUnavailable = errors.New("unavailable")
)

var (
	ErrInsufficientStock   = fmt.Errorf("%w: insufficient stock", ErrConflict)
	ErrInsufficientBalance = fmt.Errorf("%w: insufficient wallet balance", ErrConflict)
	ErrInvalidTransition   = fmt.Errorf("%w: invalid status transition", ErrConflict)
	ErrReturnWindowExpired = fmt.Errorf("%w: return window expired", ErrConflict)
	ErrCouponLimitReached  = fmt.Errorf("%w: coupon usage limit reached", ErrConflict)
	ErrOfferOverlap        = fmt.Errorf("%w: offer overlaps an active offer for the same target", ErrConflict)
	ErrEmptyCart           = fmt.Errorf("%w: cart is empty", ErrInvalidInput)
	ErrInvalidSignature    = fmt.Errorf("%w: callback signature mismatch", ErrExternalFailure)
)

// Coupon rejection reasons in evaluation order.
const (
	CouponReasonNotFound       = "coupon_not_found"
	CouponReasonInactive       = "coupon_inactive"
	CouponReasonNotStarted     = "coupon_not_started"
	CouponReasonExpired        = "coupon_expired"
	CouponReasonMinimumNotMet  = "minimum_purchase_not_met"
	CouponReasonUsageLimit     = "usage_limit_reached"
	CouponReasonUserUsageLimit = "user_limit_reached"
)

// CouponRejectedError reports why a coupon cannot be applied.
type CouponRejectedError struct {
	Code   string
	Reason string
}

func (e *CouponRejectedError) Error() string {
	return fmt.Sprintf("coupon %q rejected: %s", e.Code, e.Reason)
}

// Unwrap maps the reason onto the error taxonomy.
func (e *CouponRejectedError) Unwrap() error {
	switch e.Reason {
	case CouponReasonNotFound:
		return ErrNotFound
	case CouponReasonUsageLimit, CouponReasonUserUsageLimit:
		return ErrCouponLimitReached
	default:
		return ErrInvalidInput
	}
}

// mapRepositoryError translates persistence failures into the service taxonomy. Typed ledger
// errors are matched before the generic RepositoryError categories.
func mapRepositoryError(op string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pagination.ErrInvalidPageToken) {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		switch stockErr.Code {
		case repositories.StockErrorInsufficient:
			return fmt.Errorf("%w: product %s", ErrInsufficientStock, stockErr.ProductID)
		case repositories.StockErrorProductNotFound:
			return fmt.Errorf("%w: product %s", ErrNotFound, stockErr.ProductID)
		case repositories.StockErrorInvalidQuantity:
			return fmt.Errorf("%w: %s", ErrInvalidInput, stockErr.Message)
		}
	}

	var walletErr *repositories.WalletError
	if errors.As(err, &walletErr) {
		switch walletErr.Code {
		case repositories.WalletErrorInsufficientBalance:
			return ErrInsufficientBalance
		case repositories.WalletErrorInvalidAmount:
			return fmt.Errorf("%w: %s", ErrInvalidInput, walletErr.Message)
		case repositories.WalletErrorNegativeBalance:
			return fmt.Errorf("%w: %s: %v", ErrInvariantViolation, op, err)
		}
	}

	var usageErr *repositories.CouponUsageError
	if errors.As(err, &usageErr) {
		if usageErr.Code == repositories.CouponUsageCouponNotFound {
			return &CouponRejectedError{Code: usageErr.Coupon, Reason: CouponReasonNotFound}
		}
		reason := CouponReasonUsageLimit
		if usageErr.Code == repositories.CouponUsageUserLimit {
			reason = CouponReasonUserUsageLimit
		}
		return &CouponRejectedError{Code: usageErr.Coupon, Reason: reason}
	}

	var overlapErr *repositories.OfferOverlapError
	if errors.As(err, &overlapErr) {
		return fmt.Errorf("%w: conflicts with %s", ErrOfferOverlap, overlapErr.ConflictingID)
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
		}
	}

	return fmt.Errorf("%s: %w", op, err)
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
