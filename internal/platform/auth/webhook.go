package auth

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
)

// Payment gateways sign webhook deliveries with a shared secret: the
// HMAC-SHA256 digest of the raw request body arrives hex or base64 encoded in
// a provider-specific header. Replay suppression is handled downstream by the
// idempotent payment application, so verification here is stateless.

const defaultWebhookSignatureHeader = "X-Webhook-Signature"

var providerSignatureHeaders = map[string]string{
	"razorpay": "X-Razorpay-Signature",
	"stripe":   "Stripe-Signature",
}

// WebhookSecret is a signing secret resolved for an incoming delivery.
type WebhookSecret struct {
	// Provider is the short gateway key taken from the webhook path, e.g. "razorpay".
	Provider string
	// Name is the configuration key the secret was found under.
	Name string
	// Secret is the shared signing key.
	Secret string
}

// WebhookSecretResolver maps a request to the secret that should have signed it.
type WebhookSecretResolver func(r *http.Request) (WebhookSecret, bool)

// WebhookVerifier authenticates gateway webhook deliveries before they reach
// the payment reconciliation handlers.
type WebhookVerifier struct {
	resolve       WebhookSecretResolver
	defaultHeader string
	logger        Logger
}

// WebhookOption adjusts verifier construction.
type WebhookOption func(*WebhookVerifier)

// WithWebhookLogger overrides the verifier logger.
func WithWebhookLogger(logger Logger) WebhookOption {
	return func(v *WebhookVerifier) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithWebhookSignatureHeader overrides the fallback header consulted for
// providers without a well-known signature header.
func WithWebhookSignatureHeader(name string) WebhookOption {
	return func(v *WebhookVerifier) {
		if name = strings.TrimSpace(name); name != "" {
			v.defaultHeader = name
		}
	}
}

// NewWebhookVerifier builds a verifier around the secret resolver.
func NewWebhookVerifier(resolve WebhookSecretResolver, opts ...WebhookOption) *WebhookVerifier {
	v := &WebhookVerifier{
		resolve:       resolve,
		defaultHeader: defaultWebhookSignatureHeader,
		logger:        log.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

// RequireSignature rejects deliveries whose body signature does not match the
// provider's shared secret. The body is restored for the next handler.
func (v *WebhookVerifier) RequireSignature() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil || v.resolve == nil {
				respondAuthError(w, http.StatusServiceUnavailable, "verification_unavailable", "webhook verification not configured")
				return
			}

			secret, ok := v.resolve(r)
			if !ok || strings.TrimSpace(secret.Secret) == "" {
				respondAuthError(w, http.StatusUnauthorized, "unknown_provider", "webhook provider not recognised")
				return
			}

			header := v.defaultHeader
			if known, ok := providerSignatureHeaders[strings.ToLower(secret.Provider)]; ok {
				header = known
			}

			signature, err := parseSignatureHeader(r.Header.Get(header))
			if err != nil {
				if errors.Is(err, errSignatureMissing) {
					respondAuthError(w, http.StatusUnauthorized, "signature_missing", "webhook signature header missing")
					return
				}
				respondAuthError(w, http.StatusUnauthorized, "signature_invalid", "webhook signature encoding invalid")
				return
			}

			body, err := readAndRestoreBody(r)
			if err != nil {
				respondAuthError(w, http.StatusBadRequest, "invalid_body", "unable to read body for signature verification")
				return
			}

			mac := hmac.New(sha256.New, []byte(secret.Secret))
			_, _ = mac.Write(body)
			if !hmac.Equal(signature, mac.Sum(nil)) {
				if v.logger != nil {
					v.logger.Printf("auth: webhook signature mismatch for provider %s", secret.Provider)
				}
				respondAuthError(w, http.StatusUnauthorized, "signature_mismatch", "webhook signature verification failed")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

var errSignatureMissing = errors.New("auth: webhook signature missing")

// parseSignatureHeader accepts a bare hex or base64 digest, or the Stripe
// style "t=...,v1=<digest>" composite, and returns the raw digest bytes.
func parseSignatureHeader(value string) ([]byte, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, errSignatureMissing
	}

	if strings.Contains(value, "=") && strings.Contains(value, "v1=") {
		for _, part := range strings.Split(value, ",") {
			part = strings.TrimSpace(part)
			if digest, ok := strings.CutPrefix(part, "v1="); ok {
				value = strings.TrimSpace(digest)
				break
			}
		}
	}

	if decoded, err := hex.DecodeString(value); err == nil {
		return decoded, nil
	}
	if decoded, err := base64.StdEncoding.DecodeString(value); err == nil {
		return decoded, nil
	}
	return nil, errors.New("auth: webhook signature must be hex or base64")
}

func readAndRestoreBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}
