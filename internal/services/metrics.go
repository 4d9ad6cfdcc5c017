package services

import "context"

// MetricsRecorder receives business counters from the order engine.
type MetricsRecorder interface {
	CheckoutCompleted(ctx context.Context, method PaymentMethod, total int64)
	CheckoutFailed(ctx context.Context, stage string)
	StockConflict(ctx context.Context, productID string)
	RefundCredited(ctx context.Context, amount int64)
	CallbackVerified(ctx context.Context, valid bool)
}

type noopMetrics struct{}

func (noopMetrics) CheckoutCompleted(context.Context, PaymentMethod, int64) {}
func (noopMetrics) CheckoutFailed(context.Context, string)                  {}
func (noopMetrics) StockConflict(context.Context, string)                   {}
func (noopMetrics) RefundCredited(context.Context, int64)                   {}
func (noopMetrics) CallbackVerified(context.Context, bool)                  {}

func metricsOrNoop(m MetricsRecorder) MetricsRecorder {
	if m == nil {
		return noopMetrics{}
	}
	return m
}
