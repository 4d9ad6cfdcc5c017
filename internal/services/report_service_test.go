package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
)

type recordingWriter struct {
	name        string
	contentType string
	data        []byte
	err         error
}

func (w *recordingWriter) WriteObject(_ context.Context, name, contentType string, data []byte) (string, error) {
	if w.err != nil {
		return "", w.err
	}
	w.name, w.contentType, w.data = name, contentType, append([]byte(nil), data...)
	return "gs://reports/" + name, nil
}

func TestReportSnapshotsFilterByWindowAndStatus(t *testing.T) {
	ctx := context.Background()
	f := newCheckoutFixture(t, testProducts()...)
	start := f.now

	f.fillCart(t, "u1", "", domain.CartItem{ProductID: "p1", Quantity: 2, UnitPrice: 1000})
	first := f.place(t, "u1", domain.PaymentMethodCOD).Order

	f.now = start.Add(24 * time.Hour)
	f.fillCart(t, "u2", "", domain.CartItem{ProductID: "p2", Quantity: 1, UnitPrice: 500})
	second := f.place(t, "u2", domain.PaymentMethodCOD).Order
	if _, err := f.orders.CancelOrder(ctx, CancelOrderCommand{OrderID: second.ID, Actor: Actor{UserID: "u2"}}); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	f.now = start.Add(72 * time.Hour)
	f.fillCart(t, "u1", "", domain.CartItem{ProductID: "p2", Quantity: 1, UnitPrice: 500})
	f.place(t, "u1", domain.PaymentMethodCOD)

	svc, err := NewReportService(ReportServiceDeps{Orders: f.store.Orders(), Writer: &recordingWriter{}})
	if err != nil {
		t.Fatalf("new report service: %v", err)
	}

	snaps, err := svc.OrderSnapshots(ctx, ReportFilter{From: start, To: start.Add(48 * time.Hour)})
	if err != nil {
		t.Fatalf("snapshots: %v", err)
	}
	if len(snaps) != 2 || snaps[0].OrderID != second.ID || snaps[1].OrderID != first.ID {
		t.Fatalf("expected the two orders in the window newest first, got %+v", snaps)
	}
	if snaps[1].ItemCount != 2 || snaps[1].Total != 2000 {
		t.Fatalf("unexpected snapshot %+v", snaps[1])
	}

	snaps, err = svc.OrderSnapshots(ctx, ReportFilter{From: start, To: start.Add(48 * time.Hour), Statuses: []OrderStatus{domain.OrderStatusCancelled}})
	if err != nil {
		t.Fatalf("snapshots by status: %v", err)
	}
	if len(snaps) != 1 || snaps[0].OrderID != second.ID {
		t.Fatalf("expected only the cancelled order, got %+v", snaps)
	}
}

func TestReportExportWritesJSONLines(t *testing.T) {
	ctx := context.Background()
	f := newCheckoutFixture(t, testProducts()...)
	f.fillCart(t, "u1", "", domain.CartItem{ProductID: "p1", Quantity: 1, UnitPrice: 1000})
	placed := f.place(t, "u1", domain.PaymentMethodCOD).Order

	writer := &recordingWriter{}
	svc, err := NewReportService(ReportServiceDeps{
		Orders:      f.store.Orders(),
		Writer:      writer,
		Clock:       func() time.Time { return f.now },
		IDGenerator: func() string { return "EXPORT1" },
	})
	if err != nil {
		t.Fatalf("new report service: %v", err)
	}

	export, err := svc.ExportOrders(ctx, ReportFilter{From: f.now.Add(-time.Hour), To: f.now.Add(time.Hour)})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if export.Rows != 1 || export.Location != "gs://reports/reports/orders/2025/06/01/EXPORT1.jsonl" {
		t.Fatalf("unexpected export %+v", export)
	}
	if writer.contentType != reportContentType {
		t.Fatalf("unexpected content type %q", writer.contentType)
	}
	lines := bytes.Split(bytes.TrimSpace(writer.data), []byte("\n"))
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %d", len(lines))
	}
	var record map[string]any
	if err := json.Unmarshal(lines[0], &record); err != nil {
		t.Fatalf("decode line: %v", err)
	}
	if record["orderId"] != placed.ID || record["paymentMethod"] != "cod" {
		t.Fatalf("unexpected record %v", record)
	}
}

func TestReportRejectsInvalidWindowAndWriterFailure(t *testing.T) {
	ctx := context.Background()
	f := newCheckoutFixture(t, testProducts()...)
	writer := &recordingWriter{err: errors.New("bucket unavailable")}
	svc, err := NewReportService(ReportServiceDeps{Orders: f.store.Orders(), Writer: writer})
	if err != nil {
		t.Fatalf("new report service: %v", err)
	}

	if _, err := svc.OrderSnapshots(ctx, ReportFilter{From: f.now, To: f.now}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid window, got %v", err)
	}
	if _, err := svc.OrderSnapshots(ctx, ReportFilter{From: f.now, To: f.now.Add(400 * 24 * time.Hour)}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected range too large, got %v", err)
	}
	if _, err := svc.ExportOrders(ctx, ReportFilter{From: f.now, To: f.now.Add(time.Hour)}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected unavailable on writer failure, got %v", err)
	}
}
