package di

import (
	"context"
	"testing"
	"time"

	"github.com/hanko-field/storefront/internal/payments"
	"github.com/hanko-field/storefront/internal/platform/config"
	"github.com/hanko-field/storefront/internal/repositories"
	"github.com/hanko-field/storefront/internal/repositories/memory"
	"github.com/hanko-field/storefront/internal/services"
)

func testGateway(t *testing.T) *payments.Manager {
	t.Helper()
	signer, err := payments.NewCallbackSigner("test-secret")
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	manager, err := payments.NewManager(map[string]payments.Provider{
		payments.ProviderLocal: payments.NewLocalProvider(),
	}, signer, payments.WithDefaultProvider(payments.ProviderLocal))
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	return manager
}

func TestNewContainer_BuildsServices(t *testing.T) {
	health, err := repositories.NewDependencyHealthRepository([]repositories.DependencyCheck{{
		Name:  "memory",
		Check: func(context.Context) error { return nil },
	}}, time.Now)
	if err != nil {
		t.Fatalf("health repository: %v", err)
	}

	cfg := config.Config{Payments: config.PaymentsConfig{Currency: "JPY"}}
	container, err := NewContainer(context.Background(), cfg, memory.NewStore(), Infrastructure{
		Gateway: testGateway(t),
		Health:  health,
		Build:   services.BuildInfo{Version: "test"},
	})
	if err != nil {
		t.Fatalf("NewContainer: %v", err)
	}
	t.Cleanup(func() { _ = container.Close(context.Background()) })

	svc := container.Services
	if svc.Pricing == nil || svc.Offers == nil || svc.Coupons == nil || svc.Carts == nil {
		t.Fatalf("expected pricing, offers, coupons and carts to be wired: %+v", svc)
	}
	if svc.Stock == nil || svc.Wallet == nil || svc.Catalog == nil || svc.Addresses == nil {
		t.Fatalf("expected stock, wallet, catalog and addresses to be wired: %+v", svc)
	}
	if svc.Checkout == nil || svc.Orders == nil || svc.System == nil {
		t.Fatalf("expected checkout, orders and system to be wired: %+v", svc)
	}
	if svc.Reports != nil {
		t.Fatalf("expected reports to stay unwired without a writer")
	}
}

func TestNewContainer_RequiresGateway(t *testing.T) {
	if _, err := NewContainer(context.Background(), config.Config{}, memory.NewStore(), Infrastructure{}); err == nil {
		t.Fatalf("expected error without payment gateway")
	}
}

func TestNewContainer_RequiresRegistry(t *testing.T) {
	if _, err := NewContainer(context.Background(), config.Config{}, nil, Infrastructure{Gateway: testGateway(t)}); err == nil {
		t.Fatalf("expected error without registry")
	}
}
