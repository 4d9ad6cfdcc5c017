package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func baseEnv() map[string]string {
	return map[string]string{
		"API_FIREBASE_PROJECT_ID":      "shop-dev",
		"API_PAYMENTS_CALLBACK_SECRET": "cb-secret",
	}
}

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), WithEnvMap(baseEnv()), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Store.Backend != StoreBackendMemory {
		t.Errorf("expected memory backend, got %s", cfg.Store.Backend)
	}
	if cfg.Firestore.ProjectID != "shop-dev" || cfg.Events.ProjectID != "shop-dev" {
		t.Errorf("expected projects to default to firebase project, got %s / %s", cfg.Firestore.ProjectID, cfg.Events.ProjectID)
	}
	if cfg.Payments.Currency != "USD" || cfg.Payments.DefaultProvider != "local" {
		t.Errorf("unexpected payments defaults: %+v", cfg.Payments)
	}
	if cfg.Reports.Prefix != "reports/orders" {
		t.Errorf("unexpected report prefix %q", cfg.Reports.Prefix)
	}
	if len(cfg.Security.OIDC.Issuers) != 1 || cfg.Security.OIDC.JWKSURL != defaultOIDCJWKSURL {
		t.Errorf("unexpected oidc defaults: %+v", cfg.Security.OIDC)
	}
	if cfg.Idempotency.Header != defaultIdempotencyHeader || cfg.Idempotency.TTL != defaultIdempotencyTTL {
		t.Errorf("unexpected idempotency defaults: %+v", cfg.Idempotency)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("unexpected log level %q", cfg.Logging.Level)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"API_SERVER_PORT":                "9090",
		"API_SERVER_WRITE_TIMEOUT":       "25s",
		"API_STORE_BACKEND":              "Firestore",
		"API_FIREBASE_PROJECT_ID":        "shop-prod",
		"API_FIRESTORE_PROJECT_ID":       "shop-db",
		"API_PAYMENTS_CURRENCY":          "jpy",
		"API_PAYMENTS_DEFAULT_PROVIDER":  "stripe",
		"API_PAYMENTS_CURRENCY_ROUTES":   "usd=stripe, jpy=local,bad",
		"API_PAYMENTS_STRIPE_API_KEY":    "sm://stripe-key",
		"API_PAYMENTS_CALLBACK_SECRET":   "secret://projects/shop/secrets/callback",
		"API_EVENTS_ORDER_TOPIC":         "order-events",
		"API_REPORTS_BUCKET":             "shop-reports",
		"API_REPORTS_PREFIX":             "/exports/orders/",
		"API_IDEMPOTENCY_BACKEND":        "redis",
		"API_REDIS_ADDR":                 "localhost:6379",
		"API_REDIS_DB":                   "2",
		"API_SECURITY_ENVIRONMENT":       "PROD",
		"API_SECURITY_OIDC_AUDIENCE":     "https://shop.example.com",
		"API_SECURITY_OIDC_ISSUERS":      "https://accounts.google.com, https://cloud.google.com/iap",
		"LOG_LEVEL":                      "DEBUG",
	}
	var refs []string
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		refs = append(refs, ref)
		return "resolved:" + ref, nil
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" || cfg.Server.WriteTimeout != 25*time.Second {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Store.Backend != StoreBackendFirestore || cfg.Firestore.ProjectID != "shop-db" {
		t.Errorf("unexpected store config: %+v / %+v", cfg.Store, cfg.Firestore)
	}
	if cfg.Payments.Currency != "JPY" {
		t.Errorf("expected upper-cased currency, got %s", cfg.Payments.Currency)
	}
	if len(cfg.Payments.CurrencyRoutes) != 2 || cfg.Payments.CurrencyRoutes["USD"] != "stripe" || cfg.Payments.CurrencyRoutes["JPY"] != "local" {
		t.Errorf("unexpected currency routes: %v", cfg.Payments.CurrencyRoutes)
	}
	if cfg.Payments.StripeAPIKey != "resolved:secret://stripe-key" {
		t.Errorf("expected sm:// normalised and resolved, got %s", cfg.Payments.StripeAPIKey)
	}
	if cfg.Payments.CallbackSecret != "resolved:secret://projects/shop/secrets/callback" {
		t.Errorf("unexpected callback secret %s", cfg.Payments.CallbackSecret)
	}
	if len(refs) != 2 {
		t.Errorf("expected two secret lookups, got %v", refs)
	}
	if cfg.Reports.Prefix != "exports/orders" || cfg.Reports.Bucket != "shop-reports" {
		t.Errorf("unexpected reports config: %+v", cfg.Reports)
	}
	if cfg.Redis.DB != 2 || cfg.Idempotency.Backend != "redis" {
		t.Errorf("unexpected redis config: %+v", cfg.Redis)
	}
	if cfg.Security.Environment != "prod" || len(cfg.Security.OIDC.Issuers) != 2 {
		t.Errorf("unexpected security config: %+v", cfg.Security)
	}
	if cfg.Events.Topic != "order-events" || cfg.Events.ProjectID != "shop-db" {
		t.Errorf("unexpected events config: %+v", cfg.Events)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected lower-cased log level, got %s", cfg.Logging.Level)
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "# local overrides\nexport API_FIREBASE_PROJECT_ID=\"dotenv-project\"\nAPI_PAYMENTS_CALLBACK_SECRET='dot-secret'\nAPI_SERVER_PORT=7070\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(path), WithoutSystemEnv(), WithEnvMap(map[string]string{"API_SERVER_PORT": "6060"}))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Firebase.ProjectID != "dotenv-project" || cfg.Payments.CallbackSecret != "dot-secret" {
		t.Errorf("expected dotenv values, got %+v / %+v", cfg.Firebase, cfg.Payments)
	}
	if cfg.Server.Port != "6060" {
		t.Errorf("expected explicit map to win over dotenv, got %s", cfg.Server.Port)
	}
}

func TestLoadValidationErrors(t *testing.T) {
	env := map[string]string{
		"API_STORE_BACKEND":       "postgres",
		"API_PAYMENTS_CURRENCY":   "XXXX",
		"API_IDEMPOTENCY_BACKEND": "redis",
	}
	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	want := map[string]bool{
		"Store.Backend":           true,
		"Firebase.ProjectID":      true,
		"Payments.Currency":       true,
		"Payments.CallbackSecret": true,
		"Redis.Addr":              true,
	}
	fields := validation.Fields()
	if len(fields) != len(want) {
		t.Fatalf("unexpected fields %v", fields)
	}
	for _, field := range fields {
		if !want[field] {
			t.Errorf("unexpected field %s", field)
		}
	}
}

func TestLoadFirebaseDisabledOnlyLocally(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_DISABLED":        "true",
		"API_PAYMENTS_CALLBACK_SECRET": "cb",
	}
	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !cfg.Firebase.Disabled {
		t.Fatalf("expected firebase disabled")
	}

	env["API_SECURITY_ENVIRONMENT"] = "prod"
	_, err = Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestLoadSecretResolverError(t *testing.T) {
	env := baseEnv()
	env["API_PAYMENTS_STRIPE_API_KEY"] = "sm://stripe-key"
	resolverErr := errors.New("permission denied")
	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""),
		WithSecretResolver(SecretResolverFunc(func(context.Context, string) (string, error) {
			return "", resolverErr
		})))
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected secret error, got %v", err)
	}
	if secretErr.Ref != "secret://stripe-key" || !errors.Is(err, resolverErr) {
		t.Fatalf("unexpected secret error %+v", secretErr)
	}
}

func TestLoadWithoutResolverRejectsSecretReferences(t *testing.T) {
	env := baseEnv()
	env["API_PAYMENTS_CALLBACK_SECRET"] = "sm://callback"
	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if !errors.Is(err, errSecretResolverNotConfigured) {
		t.Fatalf("expected resolver not configured, got %v", err)
	}
}

func TestLoadMissingRequiredSecrets(t *testing.T) {
	_, err := Load(context.Background(), WithEnvMap(baseEnv()), WithoutSystemEnv(), WithEnvFile(""),
		WithRequiredSecrets("Payments.CallbackSecret", "Payments.StripeAPIKey", "Payments.StripeAPIKey"))
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected missing secrets error, got %v", err)
	}
	if names := missing.Names(); len(names) != 1 || names[0] != "Payments.StripeAPIKey" {
		t.Fatalf("unexpected missing names %v", names)
	}
}

func TestEnvironmentValuesMergesSources(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("A=dotenv\nB=dotenv\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	values, err := EnvironmentValues(WithEnvFile(path), WithoutSystemEnv(), WithEnvMap(map[string]string{"B": "explicit", "C": "explicit"}))
	if err != nil {
		t.Fatalf("EnvironmentValues: %v", err)
	}
	if values["A"] != "dotenv" || values["B"] != "explicit" || values["C"] != "explicit" {
		t.Fatalf("unexpected merged values %v", values)
	}
}
