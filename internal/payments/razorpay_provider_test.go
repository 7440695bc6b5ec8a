package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newRazorpayForTest(t *testing.T, baseURL string) *RazorpayProvider {
	t.Helper()
	provider, err := NewRazorpayProvider(RazorpayProviderConfig{
		KeyID:     "rzp_test_key",
		KeySecret: "rzp_test_secret",
		BaseURL:   baseURL,
	})
	if err != nil {
		t.Fatalf("NewRazorpayProvider: %v", err)
	}
	return provider
}

func TestRazorpayCreateOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/orders" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "rzp_test_key" || pass != "rzp_test_secret" {
			t.Fatalf("missing or wrong basic auth")
		}
		var body razorpayOrderRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body.Amount != 54000 || body.Currency != "INR" {
			t.Fatalf("unexpected order payload %+v", body)
		}
		if body.Receipt != "MK-20250615-A1B2C3" {
			t.Fatalf("expected receipt, got %q", body.Receipt)
		}
		_ = json.NewEncoder(w).Encode(razorpayOrderResponse{
			ID:       "order_rzp123",
			Amount:   body.Amount,
			Currency: body.Currency,
			Status:   "created",
		})
	}))
	defer server.Close()

	provider := newRazorpayForTest(t, server.URL)
	order, err := provider.CreateOrder(context.Background(), OrderRequest{
		Amount:   54000,
		Currency: "inr",
		Receipt:  "MK-20250615-A1B2C3",
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if order.ID != "order_rzp123" {
		t.Fatalf("unexpected order id %q", order.ID)
	}
	if order.KeyID != "rzp_test_key" {
		t.Fatalf("expected publishable key id, got %q", order.KeyID)
	}
}

func TestRazorpayCreateOrderSurfacesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"amount exceeds maximum"}}`))
	}))
	defer server.Close()

	provider := newRazorpayForTest(t, server.URL)
	_, err := provider.CreateOrder(context.Background(), OrderRequest{Amount: 1})
	if err == nil || !strings.Contains(err.Error(), "amount exceeds maximum") {
		t.Fatalf("expected API error description, got %v", err)
	}
}

func TestRazorpayCreateOrderRejectsNonPositiveAmount(t *testing.T) {
	provider := newRazorpayForTest(t, "http://localhost:0")
	if _, err := provider.CreateOrder(context.Background(), OrderRequest{Amount: 0}); err == nil {
		t.Fatal("expected error for zero amount")
	}
}

func TestRazorpayVerifySignature(t *testing.T) {
	provider := newRazorpayForTest(t, "http://localhost:0")

	mac := hmac.New(sha256.New, []byte("rzp_test_secret"))
	mac.Write([]byte("order_rzp123|pay_rzp456"))
	good := hex.EncodeToString(mac.Sum(nil))

	if err := provider.VerifySignature(SignatureRequest{
		OrderID:   "order_rzp123",
		PaymentID: "pay_rzp456",
		Signature: good,
	}); err != nil {
		t.Fatalf("expected signature to verify, got %v", err)
	}

	// uppercase hex from the widget still verifies
	if err := provider.VerifySignature(SignatureRequest{
		OrderID:   "order_rzp123",
		PaymentID: "pay_rzp456",
		Signature: strings.ToUpper(good),
	}); err != nil {
		t.Fatalf("expected case-insensitive verify, got %v", err)
	}

	cases := []SignatureRequest{
		{OrderID: "order_rzp123", PaymentID: "pay_rzp456", Signature: "deadbeef"},
		{OrderID: "order_other", PaymentID: "pay_rzp456", Signature: good},
		{OrderID: "order_rzp123", PaymentID: "pay_other", Signature: good},
		{OrderID: "", PaymentID: "pay_rzp456", Signature: good},
		{OrderID: "order_rzp123", PaymentID: "pay_rzp456", Signature: ""},
	}
	for i, req := range cases {
		if err := provider.VerifySignature(req); !errors.Is(err, ErrSignatureMismatch) {
			t.Fatalf("case %d: expected ErrSignatureMismatch, got %v", i, err)
		}
	}
}
