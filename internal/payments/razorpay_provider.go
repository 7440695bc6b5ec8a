package payments

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	razorpayBaseURL        = "https://api.razorpay.com/v1"
	razorpayRequestTimeout = 15 * time.Second
	razorpayMaxResponse    = 1 << 20
)

// RazorpayLogger defines the logging contract for Razorpay provider operations.
type RazorpayLogger func(ctx context.Context, event string, fields map[string]any)

// RazorpayProviderConfig configures the RazorpayProvider.
type RazorpayProviderConfig struct {
	KeyID     string
	KeySecret string
	BaseURL   string
	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
	Logger     RazorpayLogger
}

// RazorpayProvider implements Provider against the Razorpay Orders API.
type RazorpayProvider struct {
	keyID     string
	keySecret string
	baseURL   string
	client    *http.Client
	logger    RazorpayLogger
}

// NewRazorpayProvider constructs a Razorpay Provider using the given configuration.
func NewRazorpayProvider(cfg RazorpayProviderConfig) (*RazorpayProvider, error) {
	keyID := strings.TrimSpace(cfg.KeyID)
	keySecret := strings.TrimSpace(cfg.KeySecret)
	if keyID == "" || keySecret == "" {
		return nil, errors.New("razorpay: key id and secret are required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = razorpayBaseURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: razorpayRequestTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &RazorpayProvider{
		keyID:     keyID,
		keySecret: keySecret,
		baseURL:   baseURL,
		client:    client,
		logger:    logger,
	}, nil
}

// Name implements Provider.
func (p *RazorpayProvider) Name() string { return "razorpay" }

type razorpayOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt,omitempty"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type razorpayOrderResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

type razorpayErrorResponse struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// CreateOrder opens a gateway order for the given amount.
func (p *RazorpayProvider) CreateOrder(ctx context.Context, req OrderRequest) (GatewayOrder, error) {
	if p == nil {
		return GatewayOrder{}, errors.New("razorpay: provider is nil")
	}
	if req.Amount <= 0 {
		return GatewayOrder{}, errors.New("razorpay: amount must be positive")
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "INR"
	}

	payload, err := json.Marshal(razorpayOrderRequest{
		Amount:   req.Amount,
		Currency: currency,
		Receipt:  strings.TrimSpace(req.Receipt),
		Notes:    gatewayMetadata(req.Metadata),
	})
	if err != nil {
		return GatewayOrder{}, fmt.Errorf("razorpay: encode order: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/orders", bytes.NewReader(payload))
	if err != nil {
		return GatewayOrder{}, fmt.Errorf("razorpay: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(p.keyID, p.keySecret)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return GatewayOrder{}, fmt.Errorf("razorpay: create order: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, razorpayMaxResponse))
	if err != nil {
		return GatewayOrder{}, fmt.Errorf("razorpay: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr razorpayErrorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Description != "" {
			p.logger(ctx, "razorpay.create_order_failed", map[string]any{
				"status": resp.StatusCode,
				"code":   apiErr.Error.Code,
			})
			return GatewayOrder{}, fmt.Errorf("razorpay: create order: %s (%s)", apiErr.Error.Description, apiErr.Error.Code)
		}
		return GatewayOrder{}, fmt.Errorf("razorpay: create order: unexpected status %d", resp.StatusCode)
	}

	var decoded razorpayOrderResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return GatewayOrder{}, fmt.Errorf("razorpay: decode response: %w", err)
	}
	if decoded.ID == "" {
		return GatewayOrder{}, errors.New("razorpay: response missing order id")
	}

	return GatewayOrder{
		ID:       decoded.ID,
		Provider: p.Name(),
		Amount:   decoded.Amount,
		Currency: decoded.Currency,
		KeyID:    p.keyID,
	}, nil
}

// VerifySignature checks the checkout confirmation signature: hex encoded
// HMAC-SHA256 of "orderID|paymentID" keyed by the API secret.
func (p *RazorpayProvider) VerifySignature(req SignatureRequest) error {
	if p == nil {
		return errors.New("razorpay: provider is nil")
	}
	orderID := strings.TrimSpace(req.OrderID)
	paymentID := strings.TrimSpace(req.PaymentID)
	signature := strings.TrimSpace(req.Signature)
	if orderID == "" || paymentID == "" || signature == "" {
		return ErrSignatureMismatch
	}

	mac := hmac.New(sha256.New, []byte(p.keySecret))
	mac.Write([]byte(orderID + "|" + paymentID))
	expected := hex.EncodeToString(mac.Sum(nil))

	if subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(signature))) != 1 {
		return ErrSignatureMismatch
	}
	return nil
}
