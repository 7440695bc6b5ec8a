package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// StripeLogger defines the logging contract for Stripe provider operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey string
	// SigningSecret keys the confirmation signature scheme shared with the
	// storefront widget.
	SigningSecret string
	Backends      *stripe.Backends
	Logger        StripeLogger
	// Intents overrides the API client, mainly for tests.
	Intents stripePaymentIntentAPI
}

// StripeProvider implements Provider using Stripe PaymentIntents.
type StripeProvider struct {
	intents       stripePaymentIntentAPI
	apiKey        string
	signingSecret string
	logger        StripeLogger
}

// NewStripeProvider constructs a Stripe Provider using the given configuration.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Intents == nil {
		return nil, errors.New("stripe: api key is required")
	}
	signingSecret := strings.TrimSpace(cfg.SigningSecret)
	if signingSecret == "" {
		return nil, errors.New("stripe: signing secret is required")
	}

	intents := cfg.Intents
	if intents == nil {
		sc := client.New(apiKey, cfg.Backends)
		intents = sc.PaymentIntents
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeProvider{
		intents:       intents,
		apiKey:        apiKey,
		signingSecret: signingSecret,
		logger:        logger,
	}, nil
}

// Name implements Provider.
func (p *StripeProvider) Name() string { return "stripe" }

// CreateOrder opens a PaymentIntent for the given amount.
func (p *StripeProvider) CreateOrder(ctx context.Context, req OrderRequest) (GatewayOrder, error) {
	if p == nil || p.intents == nil {
		return GatewayOrder{}, errors.New("stripe: provider is not configured")
	}
	if req.Amount <= 0 {
		return GatewayOrder{}, errors.New("stripe: amount must be positive")
	}
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "inr"
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(currency),
	}
	params.Context = ctx
	if receipt := strings.TrimSpace(req.Receipt); receipt != "" {
		params.AddMetadata("order_number", receipt)
	}
	for k, v := range gatewayMetadata(req.Metadata) {
		params.AddMetadata(k, v)
	}

	intent, err := p.intents.New(params)
	if err != nil {
		p.logger(ctx, "stripe.create_intent_failed", map[string]any{"error": err.Error()})
		return GatewayOrder{}, err
	}

	return GatewayOrder{
		ID:       intent.ID,
		Provider: p.Name(),
		Amount:   intent.Amount,
		Currency: strings.ToUpper(string(intent.Currency)),
		KeyID:    p.apiKey,
	}, nil
}

// VerifySignature checks the storefront confirmation signature: hex encoded
// HMAC-SHA256 of "orderID|paymentID" keyed by the signing secret.
func (p *StripeProvider) VerifySignature(req SignatureRequest) error {
	if p == nil {
		return errors.New("stripe: provider is nil")
	}
	orderID := strings.TrimSpace(req.OrderID)
	paymentID := strings.TrimSpace(req.PaymentID)
	signature := strings.TrimSpace(req.Signature)
	if orderID == "" || paymentID == "" || signature == "" {
		return ErrSignatureMismatch
	}

	mac := hmac.New(sha256.New, []byte(p.signingSecret))
	mac.Write([]byte(orderID + "|" + paymentID))
	expected := hex.EncodeToString(mac.Sum(nil))

	if subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(signature))) != 1 {
		return ErrSignatureMismatch
	}
	return nil
}
