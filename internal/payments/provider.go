package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/currency"
)

// ErrUnsupportedProvider is returned when the manager cannot locate a provider.
var ErrUnsupportedProvider = errors.New("payments: unsupported provider")

// ErrInvalidRequest is returned when an intent request fails validation before reaching a provider.
var ErrInvalidRequest = errors.New("payments: invalid request")

// IntentRequest captures what a provider needs to open a payment intent for an order.
type IntentRequest struct {
	Amount   int64
	Currency string
	// ReceiptRef ties the intent to the order and doubles as the provider idempotency key.
	ReceiptRef        string
	PreferredProvider string
	Metadata          map[string]string
}

// Intent is the provider handle returned to the client to complete payment.
type Intent struct {
	ID           string
	Provider     string
	ClientSecret string
	Amount       int64
	Currency     string
}

// Provider defines the contract for PSP adapters to implement.
type Provider interface {
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
}

// Manager coordinates provider selection and callback verification.
type Manager struct {
	providers       map[string]Provider
	defaultProvider string
	currencyRoutes  map[string]string
	verifier        *CallbackSigner
}

// ManagerOption configures optional behaviour when building a Manager.
type ManagerOption func(*Manager)

// WithDefaultProvider overrides the default provider for currencies without explicit routing.
func WithDefaultProvider(provider string) ManagerOption {
	return func(m *Manager) {
		m.defaultProvider = provider
	}
}

// WithCurrencyRoutes configures static currency to provider mappings.
func WithCurrencyRoutes(routes map[string]string) ManagerOption {
	return func(m *Manager) {
		if len(routes) == 0 {
			return
		}
		if m.currencyRoutes == nil {
			m.currencyRoutes = make(map[string]string, len(routes))
		}
		for k, v := range routes {
			m.currencyRoutes[strings.ToUpper(strings.TrimSpace(k))] = strings.TrimSpace(v)
		}
	}
}

// NewManager constructs a Manager over the supplied providers. Callbacks are checked with verifier.
func NewManager(providers map[string]Provider, verifier *CallbackSigner, opts ...ManagerOption) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	if verifier == nil {
		return nil, errors.New("payments: callback verifier is required")
	}
	copyMap := make(map[string]Provider, len(providers))
	for k, v := range providers {
		key := strings.TrimSpace(strings.ToLower(k))
		if key == "" || v == nil {
			return nil, fmt.Errorf("payments: invalid provider registration for key %q", k)
		}
		copyMap[key] = v
	}
	m := &Manager{
		providers: copyMap,
		verifier:  verifier,
	}
	if _, ok := copyMap[ProviderStripe]; ok {
		m.defaultProvider = ProviderStripe
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Manager) resolveProvider(preferred, currencyCode string) (string, Provider, error) {
	if m == nil {
		return "", nil, errors.New("payments: manager is nil")
	}
	if provider := strings.TrimSpace(strings.ToLower(preferred)); provider != "" {
		if p, ok := m.providers[provider]; ok {
			return provider, p, nil
		}
	}
	if currencyCode != "" && m.currencyRoutes != nil {
		if providerKey, ok := m.currencyRoutes[currencyCode]; ok {
			provider := strings.TrimSpace(strings.ToLower(providerKey))
			if p, ok := m.providers[provider]; ok {
				return provider, p, nil
			}
		}
	}
	if def := strings.TrimSpace(strings.ToLower(m.defaultProvider)); def != "" {
		if p, ok := m.providers[def]; ok {
			return def, p, nil
		}
	}
	if len(m.providers) == 1 {
		for key, p := range m.providers {
			return key, p, nil
		}
	}
	return "", nil, ErrUnsupportedProvider
}

// CreateIntent validates the request and delegates to the resolved provider.
func (m *Manager) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	normalized, err := normalizeRequest(req)
	if err != nil {
		return Intent{}, err
	}
	key, provider, err := m.resolveProvider(normalized.PreferredProvider, normalized.Currency)
	if err != nil {
		return Intent{}, err
	}
	intent, err := provider.CreateIntent(ctx, normalized)
	if err != nil {
		return Intent{}, err
	}
	intent.Provider = key
	return intent, nil
}

// VerifyCallback reports whether signature authenticates the pair of intent and payment ids.
func (m *Manager) VerifyCallback(intentID, externalPaymentID, signature string) bool {
	if m == nil || m.verifier == nil {
		return false
	}
	return m.verifier.Verify(intentID, externalPaymentID, signature)
}

func normalizeRequest(req IntentRequest) (IntentRequest, error) {
	if req.Amount < 0 {
		return IntentRequest{}, fmt.Errorf("%w: amount must not be negative", ErrInvalidRequest)
	}
	unit, err := currency.ParseISO(strings.TrimSpace(req.Currency))
	if err != nil {
		return IntentRequest{}, fmt.Errorf("%w: currency %q: %v", ErrInvalidRequest, req.Currency, err)
	}
	req.Currency = unit.String()
	req.Metadata, err = normalizeMetadata(req.Metadata)
	if err != nil {
		return IntentRequest{}, err
	}
	req.ReceiptRef = strings.TrimSpace(req.ReceiptRef)
	if req.ReceiptRef == "" {
		return IntentRequest{}, fmt.Errorf("%w: receipt reference is required", ErrInvalidRequest)
	}
	return req, nil
}
