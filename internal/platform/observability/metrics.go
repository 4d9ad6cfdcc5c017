package observability

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	domain "github.com/hanko-field/storefront/internal/domain"
)

const meterName = "github.com/hanko-field/storefront/internal/platform/observability"

// Metrics records order engine counters through OpenTelemetry instruments.
type Metrics struct {
	checkouts      metric.Int64Counter
	checkoutAmount metric.Int64Histogram
	checkoutFails  metric.Int64Counter
	stockConflicts metric.Int64Counter
	refunds        metric.Int64Counter
	refundAmount   metric.Int64Counter
	callbacks      metric.Int64Counter
	verifications  metric.Int64Counter
	verifyLatency  metric.Float64Histogram
}

// NewMetrics registers the instruments on the given meter, or the global provider's meter when nil.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(meterName)
	}
	var (
		m    Metrics
		errs []error
		err  error
	)
	m.checkouts, err = meter.Int64Counter("storefront.checkout.completed", metric.WithDescription("Completed checkouts by payment method"))
	errs = append(errs, err)
	m.checkoutAmount, err = meter.Int64Histogram("storefront.checkout.total", metric.WithUnit("{minor_unit}"), metric.WithDescription("Order totals at checkout"))
	errs = append(errs, err)
	m.checkoutFails, err = meter.Int64Counter("storefront.checkout.failed", metric.WithDescription("Aborted checkouts by stage"))
	errs = append(errs, err)
	m.stockConflicts, err = meter.Int64Counter("storefront.stock.conflicts", metric.WithDescription("Reservations rejected for insufficient stock"))
	errs = append(errs, err)
	m.refunds, err = meter.Int64Counter("storefront.wallet.refunds", metric.WithDescription("Refunds credited to wallets"))
	errs = append(errs, err)
	m.refundAmount, err = meter.Int64Counter("storefront.wallet.refunded_amount", metric.WithUnit("{minor_unit}"), metric.WithDescription("Amount refunded to wallets"))
	errs = append(errs, err)
	m.callbacks, err = meter.Int64Counter("storefront.payment.callbacks", metric.WithDescription("Gateway callbacks by signature validity"))
	errs = append(errs, err)
	m.verifications, err = meter.Int64Counter("storefront.auth.verifications", metric.WithDescription("Service token verifications by outcome"))
	errs = append(errs, err)
	m.verifyLatency, err = meter.Float64Histogram("storefront.auth.verification.latency", metric.WithUnit("ms"))
	errs = append(errs, err)
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Metrics) CheckoutCompleted(ctx context.Context, method domain.PaymentMethod, total int64) {
	attrs := metric.WithAttributes(attribute.String("payment_method", string(method)))
	m.checkouts.Add(ctx, 1, attrs)
	m.checkoutAmount.Record(ctx, total, attrs)
}

func (m *Metrics) CheckoutFailed(ctx context.Context, stage string) {
	m.checkoutFails.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
}

func (m *Metrics) StockConflict(ctx context.Context, productID string) {
	m.stockConflicts.Add(ctx, 1, metric.WithAttributes(attribute.String("product_id", productID)))
}

func (m *Metrics) RefundCredited(ctx context.Context, amount int64) {
	m.refunds.Add(ctx, 1)
	m.refundAmount.Add(ctx, amount)
}

func (m *Metrics) CallbackVerified(ctx context.Context, valid bool) {
	m.callbacks.Add(ctx, 1, metric.WithAttributes(attribute.Bool("valid", valid)))
}

func (m *Metrics) RecordVerification(ctx context.Context, kind string, success bool, reason string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.Bool("success", success),
		attribute.String("reason", reason),
	)
	m.verifications.Add(ctx, 1, attrs)
	m.verifyLatency.Record(ctx, float64(duration)/float64(time.Millisecond), attrs)
}
