package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedProvider is returned when the manager cannot locate a provider.
var ErrUnsupportedProvider = errors.New("payments: unsupported provider")

// ErrSignatureMismatch is returned when a payment confirmation fails verification.
var ErrSignatureMismatch = errors.New("payments: signature mismatch")

// OrderRequest captures the payload required to open a gateway order.
type OrderRequest struct {
	// Amount is the order total in the currency's minor unit (paise).
	Amount   int64
	Currency string
	// Receipt carries the storefront order number for reconciliation.
	Receipt  string
	Metadata map[string]string
}

// GatewayOrder represents the provider-side order the payment widget consumes.
type GatewayOrder struct {
	ID       string
	Provider string
	Amount   int64
	Currency string
	// KeyID is the publishable credential the client widget initialises with.
	KeyID string
}

// SignatureRequest carries a client-reported payment confirmation for verification.
type SignatureRequest struct {
	OrderID   string
	PaymentID string
	Signature string
}

// Provider defines the contract for payment gateway adapters.
type Provider interface {
	Name() string
	CreateOrder(ctx context.Context, req OrderRequest) (GatewayOrder, error)
	// VerifySignature checks the gateway's confirmation signature over the
	// order and payment identifiers. Returns ErrSignatureMismatch when the
	// signature does not authenticate.
	VerifySignature(req SignatureRequest) error
}

// Manager coordinates provider selection by name.
type Manager struct {
	providers       map[string]Provider
	defaultProvider string
}

// ManagerOption configures optional behaviour when building a Manager.
type ManagerOption func(*Manager)

// WithDefaultProvider overrides the provider used when the caller names none.
func WithDefaultProvider(provider string) ManagerOption {
	return func(m *Manager) {
		m.defaultProvider = strings.TrimSpace(strings.ToLower(provider))
	}
}

// NewManager constructs a Manager over the supplied providers.
func NewManager(providers map[string]Provider, opts ...ManagerOption) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	copyMap := make(map[string]Provider, len(providers))
	for k, v := range providers {
		key := strings.TrimSpace(strings.ToLower(k))
		if key == "" || v == nil {
			return nil, fmt.Errorf("payments: invalid provider registration for key %q", k)
		}
		copyMap[key] = v
	}
	m := &Manager{providers: copyMap}
	if _, ok := copyMap["razorpay"]; ok {
		m.defaultProvider = "razorpay"
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Resolve returns the provider registered under name, or the default when
// name is empty.
func (m *Manager) Resolve(name string) (Provider, error) {
	if m == nil || len(m.providers) == 0 {
		return nil, errors.New("payments: no providers registered")
	}
	key := strings.TrimSpace(strings.ToLower(name))
	if key == "" {
		key = m.defaultProvider
	}
	if key != "" {
		if p, ok := m.providers[key]; ok {
			return p, nil
		}
	}
	if len(m.providers) == 1 {
		for _, p := range m.providers {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, name)
}

// CreateOrder delegates to the resolved provider.
func (m *Manager) CreateOrder(ctx context.Context, name string, req OrderRequest) (GatewayOrder, error) {
	provider, err := m.Resolve(name)
	if err != nil {
		return GatewayOrder{}, err
	}
	order, err := provider.CreateOrder(ctx, req)
	if err != nil {
		return GatewayOrder{}, err
	}
	order.Provider = provider.Name()
	return order, nil
}

// VerifySignature delegates to the resolved provider.
func (m *Manager) VerifySignature(name string, req SignatureRequest) error {
	provider, err := m.Resolve(name)
	if err != nil {
		return err
	}
	return provider.VerifySignature(req)
}
