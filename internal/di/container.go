package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hanko-field/storefront/internal/platform/config"
	"github.com/hanko-field/storefront/internal/platform/observability"
	"github.com/hanko-field/storefront/internal/platform/textutil"
	"github.com/hanko-field/storefront/internal/repositories"
	"github.com/hanko-field/storefront/internal/services"
)

const commentLimit = 500

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Pricing   services.PricingService
	Offers    services.OfferService
	Coupons   services.CouponService
	Carts     services.CartService
	Stock     services.StockLedger
	Wallet    services.WalletLedger
	Catalog   services.CatalogService
	Addresses services.AddressService
	Checkout  services.CheckoutService
	Orders    services.OrderService
	Reports   services.ReportService
	System    services.SystemService
}

// Infrastructure carries the adapters built outside the container: the payment gateway, event
// publisher, report writer and health checks all depend on clients owned by the caller.
type Infrastructure struct {
	Gateway      services.PaymentGateway
	Events       services.OrderEventPublisher
	ReportWriter services.ReportWriter
	ReportPath   func(time.Time, string) string
	Metrics      services.MetricsRecorder
	Health       repositories.HealthRepository
	Build        services.BuildInfo
	Logger       *zap.Logger
	Clock        func() time.Time
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring provides Firestore-backed
// registries while tests supply the in-memory store.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, infra Infrastructure) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}
	if infra.Gateway == nil {
		return nil, errors.New("payment gateway is required")
	}

	svc, err := buildServices(ctx, reg, cfg, infra)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, reg repositories.Registry, cfg config.Config, infra Infrastructure) (Services, error) {
	var svc Services

	clock := infra.Clock
	if clock == nil {
		clock = time.Now
	}
	base := infra.Logger
	if base == nil {
		base = zap.NewNop()
	}
	logFor := func(name string) func(context.Context, string, map[string]any) {
		return observability.ServiceLogger(base.Named(name))
	}

	pricing, err := services.NewPricingEngine(services.PricingEngineDeps{
		Products: reg.Products(),
		Offers:   reg.Offers(),
		Clock:    clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build pricing engine: %w", err)
	}
	svc.Pricing = pricing

	svc.Offers, err = services.NewOfferService(services.OfferServiceDeps{
		Offers: reg.Offers(),
		Clock:  clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build offer service: %w", err)
	}

	svc.Coupons, err = services.NewCouponService(services.CouponServiceDeps{
		Coupons: reg.Coupons(),
		Clock:   clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build coupon service: %w", err)
	}

	svc.Carts, err = services.NewCartService(services.CartServiceDeps{
		Carts:    reg.Carts(),
		Products: reg.Products(),
		Pricing:  svc.Pricing,
		Coupons:  svc.Coupons,
		Clock:    clock,
		Logger:   logFor("cart"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}

	svc.Stock, err = services.NewStockLedger(services.StockLedgerDeps{
		Products: reg.Products(),
		Metrics:  infra.Metrics,
		Logger:   logFor("stock"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build stock ledger: %w", err)
	}

	svc.Wallet, err = services.NewWalletLedger(services.WalletLedgerDeps{
		Wallets: reg.Wallets(),
		Clock:   clock,
		Logger:  logFor("wallet"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build wallet ledger: %w", err)
	}

	svc.Catalog, err = services.NewCatalogService(services.CatalogServiceDeps{
		Products: reg.Products(),
		Stock:    svc.Stock,
		Clock:    clock,
		Logger:   logFor("catalog"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}

	svc.Addresses, err = services.NewAddressService(services.AddressServiceDeps{
		Addresses: reg.Addresses(),
		Clock:     clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build address service: %w", err)
	}

	svc.Checkout, err = services.NewCheckoutService(services.CheckoutServiceDeps{
		Carts:     reg.Carts(),
		Products:  reg.Products(),
		Addresses: reg.Addresses(),
		Orders:    reg.Orders(),
		Coupons:   svc.Coupons,
		Stock:     svc.Stock,
		Wallet:    svc.Wallet,
		Gateway:   infra.Gateway,
		Events:    infra.Events,
		Metrics:   infra.Metrics,
		Currency:  cfg.Payments.Currency,
		Clock:     clock,
		Logger:    logFor("checkout"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build checkout service: %w", err)
	}

	svc.Orders, err = services.NewOrderService(services.OrderServiceDeps{
		Orders:   reg.Orders(),
		Clock:    clock,
		Events:   infra.Events,
		Metrics:  infra.Metrics,
		Sanitize: textutil.PlainTextSanitizer(commentLimit),
		Logger:   logFor("orders"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}

	if infra.ReportWriter != nil {
		svc.Reports, err = services.NewReportService(services.ReportServiceDeps{
			Orders:  reg.Orders(),
			Writer:  infra.ReportWriter,
			PathFor: infra.ReportPath,
			Clock:   clock,
			Logger:  logFor("reports"),
		})
		if err != nil {
			return Services{}, fmt.Errorf("build report service: %w", err)
		}
	}

	if infra.Health != nil {
		svc.System, err = services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: infra.Health,
			Clock:            clock,
			Build:            infra.Build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
	}

	return svc, nil
}
