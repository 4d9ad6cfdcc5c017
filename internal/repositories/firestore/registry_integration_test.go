//go:build integration

package firestore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
	pconfig "github.com/hanko-field/storefront/internal/platform/config"
	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
	"github.com/hanko-field/storefront/internal/repositories"
)

const firestoreEmulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"

func TestStockReservationsNeverOversell(t *testing.T) {
	reg := newEmulatorRegistry(t)
	ctx := context.Background()

	if _, err := reg.Products().Upsert(ctx, domain.Product{ID: "p1", Name: "Brush", BasePrice: 1000, Stock: 5, Active: true}); err != nil {
		t.Fatalf("seed product: %v", err)
	}

	const workers = 12
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := reg.Products().Reserve(ctx, "p1", 1)
			var stockErr *repositories.StockError
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.As(err, &stockErr) && stockErr.Code == repositories.StockErrorInsufficient:
			default:
				t.Errorf("reserve: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := succeeded.Load(); got != 5 {
		t.Fatalf("expected exactly 5 reservations, got %d", got)
	}
	product, err := reg.Products().Get(ctx, "p1")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.Stock != 0 {
		t.Fatalf("expected stock 0, got %d", product.Stock)
	}
}

func TestOrderCreateEnforcesCouponLimits(t *testing.T) {
	reg := newEmulatorRegistry(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	limit := 1
	coupon := domain.Coupon{
		ID: "c1", Code: "save10", DiscountPercent: 10, Active: true,
		StartsAt: now.Add(-time.Hour), ExpiresAt: now.Add(time.Hour),
		GlobalLimit: &limit, PerUserLimit: 1, CreatedAt: now, UpdatedAt: now,
	}
	if err := reg.Coupons().Insert(ctx, coupon); err != nil {
		t.Fatalf("insert coupon: %v", err)
	}
	found, err := reg.Coupons().FindByCode(ctx, " Save10 ")
	if err != nil || found.ID != "c1" || found.Code != "SAVE10" {
		t.Fatalf("find by code: %+v %v", found, err)
	}

	first := testOrder("o1", "u1", now)
	usage := &domain.CouponUsage{CouponID: "c1", Code: "SAVE10", UserID: "u1", OrderID: "o1", UsedAt: now}
	if err := reg.Orders().Create(ctx, first, usage); err != nil {
		t.Fatalf("create first order: %v", err)
	}

	second := testOrder("o2", "u2", now)
	usage = &domain.CouponUsage{CouponID: "c1", Code: "SAVE10", UserID: "u2", OrderID: "o2", UsedAt: now}
	err = reg.Orders().Create(ctx, second, usage)
	var usageErr *repositories.CouponUsageError
	if !errors.As(err, &usageErr) || usageErr.Code != repositories.CouponUsageGlobalLimit {
		t.Fatalf("expected global limit error, got %v", err)
	}
	if _, err := reg.Orders().FindByID(ctx, "o2"); err == nil {
		t.Fatalf("expected rejected order to be absent")
	}

	stored, err := reg.Coupons().Get(ctx, "c1")
	if err != nil {
		t.Fatalf("get coupon: %v", err)
	}
	if stored.UsedCount != 1 || len(stored.Usages) != 1 || stored.Usages[0].OrderID != "o1" {
		t.Fatalf("unexpected coupon usage %+v", stored)
	}

	stored.Description = "updated"
	stored.UsedCount = 0
	if err := reg.Coupons().Update(ctx, stored); err != nil {
		t.Fatalf("update coupon: %v", err)
	}
	if again, _ := reg.Coupons().Get(ctx, "c1"); again.UsedCount != 1 || again.Description != "updated" {
		t.Fatalf("expected usage counters preserved, got %+v", again)
	}
}

func TestOrderApplyIsAtomic(t *testing.T) {
	reg := newEmulatorRegistry(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	if _, err := reg.Products().Upsert(ctx, domain.Product{ID: "p1", Name: "Brush", BasePrice: 1000, Stock: 3, Active: true}); err != nil {
		t.Fatalf("seed product: %v", err)
	}
	order := testOrder("o1", "u1", now)
	order.Payment.IntentID = "pi_1"
	if err := reg.Orders().Create(ctx, order, nil); err != nil {
		t.Fatalf("create order: %v", err)
	}

	byIntent, err := reg.Orders().FindByPaymentIntent(ctx, "pi_1")
	if err != nil || byIntent.ID != "o1" {
		t.Fatalf("find by intent: %+v %v", byIntent, err)
	}

	cancelled := order
	cancelled.Status = domain.OrderStatusCancelled
	credit := domain.WalletTransaction{ID: "wt1", UserID: "u1", Type: domain.WalletTransactionCredit, Amount: 1000, OrderID: "o1", CreatedAt: now}

	_, err = reg.Orders().Apply(ctx, repositories.OrderMutation{
		Order:           cancelled,
		ExpectedVersion: 7,
		StockReleases:   []repositories.StockRelease{{ProductID: "p1", Quantity: 1}},
		WalletCredits:   []domain.WalletTransaction{credit},
	})
	var versionErr *repositories.VersionConflictError
	if !errors.As(err, &versionErr) {
		t.Fatalf("expected version conflict, got %v", err)
	}
	if product, _ := reg.Products().Get(ctx, "p1"); product.Stock != 3 {
		t.Fatalf("expected untouched stock after conflict, got %d", product.Stock)
	}

	_, err = reg.Orders().Apply(ctx, repositories.OrderMutation{
		Order:           cancelled,
		ExpectedVersion: order.Version,
		StockReleases:   []repositories.StockRelease{{ProductID: "p1", Quantity: 1}, {ProductID: "missing", Quantity: 1}},
		WalletCredits:   []domain.WalletTransaction{credit},
	})
	var stockErr *repositories.StockError
	if !errors.As(err, &stockErr) || stockErr.Code != repositories.StockErrorProductNotFound {
		t.Fatalf("expected missing product error, got %v", err)
	}
	if _, err := reg.Wallets().Get(ctx, "u1"); err == nil {
		t.Fatalf("expected no wallet after failed apply")
	}

	saved, err := reg.Orders().Apply(ctx, repositories.OrderMutation{
		Order:           cancelled,
		ExpectedVersion: order.Version,
		StockReleases:   []repositories.StockRelease{{ProductID: "p1", Quantity: 1}},
		WalletCredits:   []domain.WalletTransaction{credit},
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if saved.Version != order.Version+1 || saved.Status != domain.OrderStatusCancelled {
		t.Fatalf("unexpected saved order %+v", saved)
	}
	if product, _ := reg.Products().Get(ctx, "p1"); product.Stock != 4 {
		t.Fatalf("expected stock 4, got %d", product.Stock)
	}
	wallet, err := reg.Wallets().Get(ctx, "u1")
	if err != nil || wallet.Balance != 1000 {
		t.Fatalf("expected wallet credited, got %+v %v", wallet, err)
	}
}

func TestWalletLedgerAndPaging(t *testing.T) {
	reg := newEmulatorRegistry(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	for i := 0; i < 3; i++ {
		txn := domain.WalletTransaction{
			ID: fmt.Sprintf("wt%d", i), UserID: "u1", Type: domain.WalletTransactionCredit,
			Amount: 100, CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if _, err := reg.Wallets().Apply(ctx, txn); err != nil {
			t.Fatalf("credit %d: %v", i, err)
		}
	}
	_, err := reg.Wallets().Apply(ctx, domain.WalletTransaction{ID: "wt-debit", UserID: "u1", Type: domain.WalletTransactionDebit, Amount: 500, CreatedAt: base})
	var walletErr *repositories.WalletError
	if !errors.As(err, &walletErr) || walletErr.Code != repositories.WalletErrorInsufficientBalance {
		t.Fatalf("expected insufficient balance, got %v", err)
	}

	page, err := reg.Wallets().ListTransactions(ctx, "u1", domain.Pagination{PageSize: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Items) != 2 || page.Items[0].ID != "wt2" || page.NextPageToken == "" {
		t.Fatalf("unexpected first page %+v", page)
	}
	page, err = reg.Wallets().ListTransactions(ctx, "u1", domain.Pagination{PageSize: 2, PageToken: page.NextPageToken})
	if err != nil {
		t.Fatalf("list second page: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != "wt0" || page.NextPageToken != "" {
		t.Fatalf("unexpected second page %+v", page)
	}
}

func testOrder(id, userID string, at time.Time) domain.Order {
	return domain.Order{
		ID:              id,
		UserID:          userID,
		ShippingAddress: domain.Address{ID: "addr_1", Recipient: "Ada", Line1: "1 Main", City: "Town", PostalCode: "1000", Country: "US"},
		Items: []domain.OrderItem{{
			ID: id + "-1", ProductID: "p1", ProductName: "Brush", Quantity: 1, UnitPrice: 1000, Subtotal: 1000,
			Status: domain.OrderStatusPending,
		}},
		Currency:      "USD",
		Subtotal:      1000,
		Total:         1000,
		PaymentMethod: domain.PaymentMethodOnline,
		Payment:       domain.OrderPayment{Status: domain.PaymentStatusPending},
		Status:        domain.OrderStatusPending,
		History:       []domain.StatusHistoryEntry{{Status: domain.OrderStatusPending, At: at}},
		Version:       1,
		CreatedAt:     at,
		UpdatedAt:     at,
	}
}

// newEmulatorRegistry starts a fresh emulator per test so documents never leak between tests.
func newEmulatorRegistry(t *testing.T) *Registry {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test skipped in short mode")
	}
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available: " + err.Error())
	}
	ensureDockerDaemon(t)

	port := freePort(t)
	endpoint := fmt.Sprintf("127.0.0.1:%d", port)
	containerID := startFirestoreEmulator(t, port)
	t.Cleanup(func() { stopContainer(containerID) })
	waitForEndpoint(t, endpoint, 30*time.Second)

	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{ProjectID: "storefront-test", EmulatorHost: endpoint})
	reg, err := NewRegistry(provider)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	t.Cleanup(func() { _ = reg.Close(context.Background()) })
	return reg
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unable to allocate port: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func startFirestoreEmulator(t *testing.T, port int) string {
	t.Helper()
	out, err := exec.Command("docker", "run", "-d", "--rm",
		"-p", fmt.Sprintf("%d:8080", port),
		firestoreEmulatorImage,
		"gcloud", "beta", "emulators", "firestore", "start", "--host-port=0.0.0.0:8080", "--quiet",
	).CombinedOutput()
	if err != nil {
		t.Fatalf("failed to start firestore emulator: %v - %s", err, string(out))
	}
	id := strings.TrimSpace(string(out))
	if len(id) > 12 {
		id = id[:12]
	}
	return id
}

func ensureDockerDaemon(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := exec.CommandContext(ctx, "docker", "info").Run(); err != nil {
		t.Skip("docker daemon unavailable: " + err.Error())
	}
}

func stopContainer(id string) {
	if id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = exec.CommandContext(ctx, "docker", "stop", id).Run()
}

func waitForEndpoint(t *testing.T, endpoint string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", endpoint, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("emulator at %s did not become ready", endpoint)
}
