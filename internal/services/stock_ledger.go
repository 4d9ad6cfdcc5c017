package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/hanko-field/storefront/internal/repositories"
)

// StockLedgerDeps bundles the collaborators required to construct the stock ledger.
type StockLedgerDeps struct {
	Products repositories.ProductRepository
	Metrics  MetricsRecorder
	Logger   func(ctx context.Context, event string, fields map[string]any)
	// ReleaseAttempts bounds the retries of a rollback release.
	ReleaseAttempts int
}

type stockLedger struct {
	products        repositories.ProductRepository
	metrics         MetricsRecorder
	logger          func(context.Context, string, map[string]any)
	releaseAttempts int
}

// NewStockLedger wires the stock ledger over the product repository's atomic counters.
func NewStockLedger(deps StockLedgerDeps) (StockLedger, error) {
	if deps.Products == nil {
		return nil, errors.New("stock ledger: product repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	attempts := deps.ReleaseAttempts
	if attempts <= 0 {
		attempts = defaultCompensationAttempts
	}
	return &stockLedger{
		products:        deps.Products,
		metrics:         metricsOrNoop(deps.Metrics),
		logger:          logger,
		releaseAttempts: attempts,
	}, nil
}

func (l *stockLedger) Reserve(ctx context.Context, productID string, qty int) error {
	productID = strings.TrimSpace(productID)
	if productID == "" || qty <= 0 {
		return fmt.Errorf("%w: product id and positive quantity are required", ErrInvalidInput)
	}
	if _, err := l.products.Reserve(ctx, productID, qty); err != nil {
		mapped := mapRepositoryError("stock.reserve", err)
		if errors.Is(mapped, ErrInsufficientStock) {
			l.metrics.StockConflict(ctx, productID)
		}
		return mapped
	}
	return nil
}

func (l *stockLedger) Release(ctx context.Context, productID string, qty int) error {
	productID = strings.TrimSpace(productID)
	if productID == "" || qty <= 0 {
		return fmt.Errorf("%w: product id and positive quantity are required", ErrInvalidInput)
	}
	if _, err := l.products.Release(ctx, productID, qty); err != nil {
		return mapRepositoryError("stock.release", err)
	}
	return nil
}

// ReserveAll reserves the aggregated lines in product id order. When any line fails the lines
// reserved so far are released before the error is returned.
func (l *stockLedger) ReserveAll(ctx context.Context, lines []StockLine) error {
	normalized, err := normaliseStockLines(lines)
	if err != nil {
		return err
	}

	reserved := make([]StockLine, 0, len(normalized))
	for _, line := range normalized {
		if err := l.Reserve(ctx, line.ProductID, line.Quantity); err != nil {
			if rollbackErr := l.rollback(ctx, reserved); rollbackErr != nil {
				return errors.Join(err, rollbackErr)
			}
			return err
		}
		reserved = append(reserved, line)
	}
	return nil
}

// ReleaseAll returns every line to stock, retrying each release independently.
func (l *stockLedger) ReleaseAll(ctx context.Context, lines []StockLine) error {
	normalized, err := normaliseStockLines(lines)
	if err != nil {
		return err
	}
	return l.rollback(ctx, normalized)
}

func (l *stockLedger) rollback(ctx context.Context, lines []StockLine) error {
	ctx = context.WithoutCancel(ctx)
	var errs []error
	for i := len(lines) - 1; i >= 0; i-- {
		line := lines[i]
		err := retryCompensation(ctx, l.releaseAttempts, func(ctx context.Context) error {
			return l.Release(ctx, line.ProductID, line.Quantity)
		})
		if err != nil {
			l.logger(ctx, "stock.release.failed", map[string]any{
				"productID": line.ProductID,
				"quantity":  line.Quantity,
				"error":     err.Error(),
			})
			errs = append(errs, fmt.Errorf("%w: release %s: %v", ErrInvariantViolation, line.ProductID, err))
		}
	}
	return errors.Join(errs...)
}

func normaliseStockLines(lines []StockLine) ([]StockLine, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: at least one stock line is required", ErrInvalidInput)
	}
	aggregated := make(map[string]int, len(lines))
	for _, line := range lines {
		productID := strings.TrimSpace(line.ProductID)
		if productID == "" {
			return nil, fmt.Errorf("%w: line product id is required", ErrInvalidInput)
		}
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity for %s must be positive", ErrInvalidInput, productID)
		}
		aggregated[productID] += line.Quantity
	}
	out := make([]StockLine, 0, len(aggregated))
	for productID, qty := range aggregated {
		out = append(out, StockLine{ProductID: productID, Quantity: qty})
	}
	slices.SortFunc(out, func(a, b StockLine) int { return strings.Compare(a.ProductID, b.ProductID) })
	return out, nil
}
