package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

const (
	maxReportRange    = 366 * 24 * time.Hour
	reportPageSize    = 100
	reportContentType = "application/x-ndjson"
)

// ReportWriter stores an export object and returns its location.
type ReportWriter interface {
	WriteObject(ctx context.Context, name, contentType string, data []byte) (string, error)
}

// ReportServiceDeps wires the order repository and export sink.
type ReportServiceDeps struct {
	Orders      repositories.OrderRepository
	Writer      ReportWriter
	PathFor     func(generatedAt time.Time, exportID string) string
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type reportService struct {
	orders  repositories.OrderRepository
	writer  ReportWriter
	pathFor func(time.Time, string) string
	now     func() time.Time
	newID   func() string
	logger  func(context.Context, string, map[string]any)
}

// NewReportService constructs the read-only reporting surface over orders.
func NewReportService(deps ReportServiceDeps) (ReportService, error) {
	if deps.Orders == nil {
		return nil, errors.New("report service: order repository is required")
	}
	if deps.Writer == nil {
		return nil, errors.New("report service: writer is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	pathFor := deps.PathFor
	if pathFor == nil {
		pathFor = func(at time.Time, id string) string {
			return fmt.Sprintf("reports/orders/%s/%s.jsonl", at.Format("2006/01/02"), id)
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &reportService{
		orders:  deps.Orders,
		writer:  deps.Writer,
		pathFor: pathFor,
		now:     func() time.Time { return clock().UTC() },
		newID:   idGen,
		logger:  logger,
	}, nil
}

// OrderSnapshots returns every order created in the window, newest first.
func (s *reportService) OrderSnapshots(ctx context.Context, filter ReportFilter) ([]OrderSnapshot, error) {
	if err := validateReportFilter(filter); err != nil {
		return nil, err
	}
	from, to := filter.From.UTC(), filter.To.UTC()
	query := repositories.OrderListFilter{
		Statuses:   slices.Clone(filter.Statuses),
		CreatedAt:  domain.RangeQuery[time.Time]{From: &from, To: &to},
		Pagination: domain.Pagination{PageSize: reportPageSize},
	}

	var snapshots []OrderSnapshot
	for {
		page, err := s.orders.List(ctx, query)
		if err != nil {
			return nil, mapRepositoryError("report.orders", err)
		}
		for _, order := range page.Items {
			snapshots = append(snapshots, snapshotOrder(order))
		}
		if page.NextPageToken == "" {
			return snapshots, nil
		}
		query.Pagination.PageToken = page.NextPageToken
	}
}

// ExportOrders writes the snapshots as JSON lines through the configured writer.
func (s *reportService) ExportOrders(ctx context.Context, filter ReportFilter) (ReportExport, error) {
	snapshots, err := s.OrderSnapshots(ctx, filter)
	if err != nil {
		return ReportExport{}, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, snap := range snapshots {
		if err := enc.Encode(newSnapshotRecord(snap)); err != nil {
			return ReportExport{}, fmt.Errorf("report service: encode snapshot %s: %w", snap.OrderID, err)
		}
	}

	now := s.now()
	name := s.pathFor(now, s.newID())
	location, err := s.writer.WriteObject(ctx, name, reportContentType, buf.Bytes())
	if err != nil {
		s.logger(ctx, "report.export.failed", map[string]any{"object": name, "error": err.Error()})
		return ReportExport{}, fmt.Errorf("%w: write export: %v", ErrUnavailable, err)
	}
	s.logger(ctx, "report.export.completed", map[string]any{"location": location, "rows": len(snapshots)})
	return ReportExport{Location: location, Rows: len(snapshots), CreatedAt: now}, nil
}

func validateReportFilter(filter ReportFilter) error {
	if filter.From.IsZero() || filter.To.IsZero() {
		return fmt.Errorf("%w: from and to are required", ErrInvalidInput)
	}
	if !filter.From.Before(filter.To) {
		return fmt.Errorf("%w: from must be before to", ErrInvalidInput)
	}
	if filter.To.Sub(filter.From) > maxReportRange {
		return fmt.Errorf("%w: range must not exceed %d days", ErrInvalidInput, int(maxReportRange/(24*time.Hour)))
	}
	return nil
}

func snapshotOrder(order Order) OrderSnapshot {
	snap := OrderSnapshot{
		OrderID:        order.ID,
		UserID:         order.UserID,
		Status:         order.Status,
		PaymentMethod:  order.PaymentMethod,
		PaymentStatus:  order.Payment.Status,
		Currency:       order.Currency,
		Subtotal:       order.Subtotal,
		Discount:       order.Discount,
		Total:          order.Total,
		RefundedAmount: order.Payment.RefundedAmount,
		CreatedAt:      order.CreatedAt,
	}
	for _, item := range order.Items {
		snap.ItemCount += item.Quantity
	}
	if order.CouponCode != nil {
		snap.CouponCode = *order.CouponCode
	}
	return snap
}

type snapshotRecord struct {
	OrderID        string    `json:"orderId"`
	UserID         string    `json:"userId"`
	Status         string    `json:"status"`
	PaymentMethod  string    `json:"paymentMethod"`
	PaymentStatus  string    `json:"paymentStatus"`
	Currency       string    `json:"currency"`
	Subtotal       int64     `json:"subtotal"`
	Discount       int64     `json:"discount"`
	Total          int64     `json:"total"`
	RefundedAmount int64     `json:"refundedAmount"`
	ItemCount      int       `json:"itemCount"`
	CouponCode     string    `json:"couponCode,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

func newSnapshotRecord(snap OrderSnapshot) snapshotRecord {
	return snapshotRecord{
		OrderID:        snap.OrderID,
		UserID:         snap.UserID,
		Status:         string(snap.Status),
		PaymentMethod:  string(snap.PaymentMethod),
		PaymentStatus:  string(snap.PaymentStatus),
		Currency:       snap.Currency,
		Subtotal:       snap.Subtotal,
		Discount:       snap.Discount,
		Total:          snap.Total,
		RefundedAmount: snap.RefundedAmount,
		ItemCount:      snap.ItemCount,
		CouponCode:     snap.CouponCode,
		CreatedAt:      snap.CreatedAt,
	}
}
