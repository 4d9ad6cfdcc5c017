package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/hanko-field/storefront/internal/di"
	"github.com/hanko-field/storefront/internal/handlers"
	"github.com/hanko-field/storefront/internal/payments"
	"github.com/hanko-field/storefront/internal/platform/auth"
	"github.com/hanko-field/storefront/internal/platform/config"
	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
	"github.com/hanko-field/storefront/internal/platform/idempotency"
	"github.com/hanko-field/storefront/internal/platform/jobs"
	"github.com/hanko-field/storefront/internal/platform/observability"
	"github.com/hanko-field/storefront/internal/platform/secrets"
	platformstorage "github.com/hanko-field/storefront/internal/platform/storage"
	"github.com/hanko-field/storefront/internal/repositories"
	firestoreRepo "github.com/hanko-field/storefront/internal/repositories/firestore"
	"github.com/hanko-field/storefront/internal/repositories/memory"
	"github.com/hanko-field/storefront/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	bootLogger, err := observability.NewLogger("info")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}

	envValues, err := config.EnvironmentValues()
	if err != nil {
		bootLogger.Fatal("failed to read environment values", zap.Error(err))
	}

	resolver, err := newSecretResolver(ctx, bootLogger, envValues)
	if err != nil {
		bootLogger.Fatal("failed to initialise secret resolver", zap.Error(err))
	}
	defer func() {
		if err := resolver.Close(); err != nil {
			bootLogger.Warn("secret resolver close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(resolver),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			bootLogger.Fatal("missing required secrets", zap.Strings("secrets", missing.Names()))
		}
		var invalid *config.ValidationError
		if errors.As(err, &invalid) {
			bootLogger.Fatal("invalid configuration", zap.Strings("fields", invalid.Fields()))
		}
		bootLogger.Fatal("failed to load configuration", zap.Error(err))
	}

	baseLogger, err := observability.NewLogger(cfg.Logging.Level)
	if err != nil {
		bootLogger.Fatal("failed to initialise logger", zap.Error(err))
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("storefront")

	metrics, err := observability.NewMetrics(nil)
	if err != nil {
		logger.Fatal("failed to register metrics", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)
	var checks []repositories.DependencyCheck

	var (
		registry          repositories.Registry
		firestoreProvider *pfirestore.Provider
	)
	switch cfg.Store.Backend {
	case config.StoreBackendFirestore:
		firestoreProvider = pfirestore.NewProvider(cfg.Firestore, firestoreClientOptions(cfg)...)
		registry, err = firestoreRepo.NewRegistry(firestoreProvider)
		if err != nil {
			logger.Fatal("failed to initialise firestore repositories", zap.Error(err))
		}
		checks = append(checks, repositories.DependencyCheck{
			Name:    "firestore",
			Timeout: 1500 * time.Millisecond,
			Check:   firestoreProvider.Ping,
		})
	default:
		logger.Warn("using in-memory store; data is lost on restart")
		registry = memory.NewStore()
		checks = append(checks, repositories.DependencyCheck{
			Name:  "memory",
			Check: func(context.Context) error { return nil },
		})
	}

	gateway, err := newPaymentGateway(cfg, logger.Named("payments"))
	if err != nil {
		logger.Fatal("failed to initialise payment gateway", zap.Error(err))
	}

	var events services.OrderEventPublisher
	if topicID := strings.TrimSpace(cfg.Events.Topic); topicID != "" {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.Events.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
		topic := pubsubClient.Topic(topicID)
		defer topic.Stop()
		publisher, err := jobs.NewPubSubOrderEventPublisher(topic)
		if err != nil {
			logger.Fatal("failed to initialise order event publisher", zap.Error(err))
		}
		events = publisher
	} else {
		logger.Info("order events disabled; no topic configured")
	}

	reportWriter, closeReports, err := newReportWriter(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to initialise report writer", zap.Error(err))
	}
	defer closeReports()
	reportPath, err := platformstorage.ReportPathFunc(cfg.Reports.Prefix)
	if err != nil {
		logger.Fatal("invalid report prefix", zap.Error(err))
	}

	if secretCheck := secretManagerCheck(resolver, envValues); secretCheck != nil {
		checks = append(checks, *secretCheck)
	}
	health, err := repositories.NewDependencyHealthRepository(checks, time.Now)
	if err != nil {
		logger.Fatal("failed to initialise health checks", zap.Error(err))
	}

	infra := di.Infrastructure{
		Gateway:      gateway,
		Events:       events,
		ReportWriter: reportWriter,
		ReportPath:   reportPath,
		Metrics:      metrics,
		Health:       health,
		Build:        buildInfo,
		Logger:       logger,
		Clock:        time.Now,
	}
	container, err := di.NewContainer(ctx, cfg, registry, infra)
	if err != nil {
		logger.Fatal("failed to build services", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("repository close error", zap.Error(err))
		}
	}()

	idemStore, closeIdem, err := newIdempotencyStore(ctx, cfg, firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise idempotency store", zap.Error(err))
	}
	defer closeIdem()
	idempotencyMiddleware := idempotency.Middleware(idemStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
	)

	authenticator, err := newAuthenticator(ctx, cfg, logger.Named("auth"))
	if err != nil {
		logger.Fatal("failed to initialise authenticator", zap.Error(err))
	}
	oidcMiddleware := buildOIDCMiddleware(logger.Named("auth"), cfg, metrics)

	svc := container.Services
	productHandlers := handlers.NewProductHandlers(svc.Catalog, svc.Pricing)
	meHandlers := handlers.NewMeHandlers(authenticator, svc.Wallet, svc.Coupons, svc.Carts)
	cartHandlers := handlers.NewCartHandlers(authenticator, svc.Carts)
	addressHandlers := handlers.NewAddressHandlers(authenticator, svc.Addresses)
	checkoutHandlers := handlers.NewCheckoutHandlers(authenticator, svc.Checkout, idempotencyMiddleware)
	orderHandlers := handlers.NewOrderHandlers(authenticator, svc.Orders, svc.Checkout, idempotencyMiddleware)
	adminOrderHandlers := handlers.NewAdminOrderHandlers(authenticator, svc.Orders)
	adminCatalogHandlers := handlers.NewAdminCatalogHandlers(authenticator, svc.Catalog, svc.Offers, svc.Coupons)
	webhookHandlers := handlers.NewPaymentWebhookHandlers(svc.Checkout)

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RequestLoggerMiddleware(),
		observability.RecoveryMiddleware(logger.Named("http")),
	}

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthSystemService(svc.System),
	)

	var opts []handlers.Option
	opts = append(opts, handlers.WithMiddlewares(middlewares...))
	opts = append(opts, handlers.WithHealthHandlers(healthHandlers))
	opts = append(opts, handlers.WithProductRoutes(productHandlers.Routes))
	opts = append(opts, handlers.WithMeRoutes(func(r chi.Router) {
		meHandlers.Routes(r)
		r.Route("/cart", cartHandlers.Routes)
		r.Route("/addresses", addressHandlers.Routes)
		r.Route("/checkout", checkoutHandlers.Routes)
		r.Route("/orders", orderHandlers.Routes)
	}))
	opts = append(opts, handlers.WithAdminRoutes(func(r chi.Router) {
		adminOrderHandlers.Routes(r)
		adminCatalogHandlers.Routes(r)
	}))
	opts = append(opts, handlers.WithWebhookRoutes(webhookHandlers.Routes))
	if svc.Reports != nil {
		reportHandlers := handlers.NewReportHandlers(svc.Reports)
		opts = append(opts, handlers.WithInternalRoutes(reportHandlers.Routes))
	}
	if oidcMiddleware != nil {
		opts = append(opts, handlers.WithInternalMiddlewares(oidcMiddleware))
	}

	router := handlers.NewRouter(opts...)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("storefront api listening",
			zap.String("store", cfg.Store.Backend),
			zap.String("environment", buildInfo.Environment))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	environment := strings.TrimSpace(cfg.Security.Environment)
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		Environment: environment,
		StartedAt:   started,
	}
}

func newSecretResolver(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Resolver, error) {
	project := strings.TrimSpace(env["API_SECRET_DEFAULT_PROJECT_ID"])
	if project == "" {
		project = strings.TrimSpace(env["API_FIREBASE_PROJECT_ID"])
	}
	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
	}
	if project != "" {
		opts = append(opts, secrets.WithProject(project))
	}
	if path := strings.TrimSpace(env["API_SECRET_FALLBACK_FILE"]); path != "" {
		opts = append(opts, secrets.WithFallbackFile(path))
	}
	if creds := strings.TrimSpace(env["API_FIREBASE_CREDENTIALS_FILE"]); creds != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(creds)))
	}
	return secrets.NewResolver(ctx, opts...)
}

func requiredSecretNames(env map[string]string) []string {
	required := []string{"Payments.CallbackSecret"}
	if strings.EqualFold(strings.TrimSpace(env["API_PAYMENTS_DEFAULT_PROVIDER"]), payments.ProviderStripe) {
		required = append(required, "Payments.StripeAPIKey")
	}
	if strings.EqualFold(strings.TrimSpace(env["API_IDEMPOTENCY_BACKEND"]), "redis") &&
		strings.TrimSpace(env["API_REDIS_PASSWORD"]) != "" {
		required = append(required, "Redis.Password")
	}
	return required
}

// secretManagerCheck probes Secret Manager when the deployment names a health reference.
func secretManagerCheck(resolver *secrets.Resolver, env map[string]string) *repositories.DependencyCheck {
	ref := strings.TrimSpace(env["API_SECRET_HEALTH_REFERENCE"])
	if resolver == nil || ref == "" {
		return nil
	}
	return &repositories.DependencyCheck{
		Name:    "secretManager",
		Timeout: time.Second,
		Check: func(ctx context.Context) error {
			_, err := resolver.ResolveSecret(ctx, ref)
			return err
		},
	}
}

func firestoreClientOptions(cfg config.Config) []pfirestore.ProviderOption {
	if cfg.Firebase.CredentialsFile == "" {
		return nil
	}
	return []pfirestore.ProviderOption{
		pfirestore.WithClientOptions(option.WithCredentialsFile(cfg.Firebase.CredentialsFile)),
	}
}

func newPaymentGateway(cfg config.Config, logger *zap.Logger) (*payments.Manager, error) {
	signer, err := payments.NewCallbackSigner(cfg.Payments.CallbackSecret)
	if err != nil {
		return nil, err
	}

	providers := make(map[string]payments.Provider)
	if cfg.Payments.DefaultProvider == payments.ProviderLocal || cfg.Security.Environment == "local" {
		providers[payments.ProviderLocal] = payments.NewLocalProvider()
	}
	if key := strings.TrimSpace(cfg.Payments.StripeAPIKey); key != "" {
		stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey:    key,
			AccountID: cfg.Payments.StripeAccountID,
			Logger:    observability.ServiceLogger(logger.Named("stripe")),
		})
		if err != nil {
			return nil, fmt.Errorf("stripe provider: %w", err)
		}
		providers[payments.ProviderStripe] = stripeProvider
	}

	return payments.NewManager(providers, signer,
		payments.WithDefaultProvider(cfg.Payments.DefaultProvider),
		payments.WithCurrencyRoutes(cfg.Payments.CurrencyRoutes),
	)
}

func newReportWriter(ctx context.Context, cfg config.Config) (services.ReportWriter, func(), error) {
	noop := func() {}
	if bucket := strings.TrimSpace(cfg.Reports.Bucket); bucket != "" {
		var opts []option.ClientOption
		if cfg.Firebase.CredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.Firebase.CredentialsFile))
		}
		client, err := cloudstorage.NewClient(ctx, opts...)
		if err != nil {
			return nil, noop, fmt.Errorf("storage client: %w", err)
		}
		writer, err := platformstorage.NewGCSWriter(client, bucket)
		if err != nil {
			_ = client.Close()
			return nil, noop, err
		}
		return writer, func() { _ = client.Close() }, nil
	}
	if dir := strings.TrimSpace(cfg.Reports.Dir); dir != "" {
		writer, err := platformstorage.NewDirWriter(dir)
		if err != nil {
			return nil, noop, err
		}
		return writer, noop, nil
	}
	return nil, noop, nil
}

func newIdempotencyStore(ctx context.Context, cfg config.Config, provider *pfirestore.Provider) (idempotency.Store, func(), error) {
	noop := func() {}
	switch cfg.Idempotency.Backend {
	case "redis":
		client, err := idempotency.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, noop, err
		}
		store, err := idempotency.NewRedisStore(client)
		if err != nil {
			_ = client.Close()
			return nil, noop, err
		}
		return store, func() { _ = client.Close() }, nil
	case "firestore":
		if provider == nil {
			return nil, noop, errors.New("idempotency: firestore backend requires the firestore store")
		}
		client, err := provider.Client(ctx)
		if err != nil {
			return nil, noop, err
		}
		store, err := idempotency.NewFirestoreStore(client)
		if err != nil {
			return nil, noop, err
		}
		return store, noop, nil
	default:
		return idempotency.NewMemoryStore(), noop, nil
	}
}

func newAuthenticator(ctx context.Context, cfg config.Config, logger *zap.Logger) (*auth.Authenticator, error) {
	if cfg.Firebase.Disabled {
		logger.Warn("firebase auth disabled; trusting development identity headers")
		return auth.NewAuthenticator(nil, auth.WithDevelopmentHeaders()), nil
	}
	verifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		return nil, err
	}
	return auth.NewAuthenticator(verifier), nil
}

func buildOIDCMiddleware(logger *zap.Logger, cfg config.Config, metrics auth.MetricsRecorder) func(http.Handler) http.Handler {
	if strings.TrimSpace(cfg.Security.OIDC.JWKSURL) == "" {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cache := auth.NewJWKSCache(cfg.Security.OIDC.JWKSURL, auth.WithJWKSLogger(logger))
	opts := []auth.OIDCOption{auth.WithOIDCLogger(logger)}
	if metrics != nil {
		opts = append(opts, auth.WithOIDCMetrics(metrics))
	}
	validator := auth.NewOIDCValidator(cache, opts...)

	audience := strings.TrimSpace(cfg.Security.OIDC.Audience)
	if audience == "" {
		logger.Warn("auth: OIDC audience not configured; internal routes will reject requests")
	}
	return validator.RequireOIDC(audience, cfg.Security.OIDC.Issuers)
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}
