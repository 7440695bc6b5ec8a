package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/makhaana-store/api/internal/domain"
	"github.com/makhaana-store/api/internal/services"
)

type stubPaymentService struct {
	createFn  func(ctx context.Context, cmd services.CreateGatewayOrderCommand) (services.GatewayOrder, error)
	verifyFn  func(ctx context.Context, cmd services.VerifyPaymentCommand) (services.PaymentResult, error)
	confirmFn func(ctx context.Context, cmd services.ConfirmPaymentCommand) (services.PaymentResult, error)
}

func (s *stubPaymentService) CreateGatewayOrder(ctx context.Context, cmd services.CreateGatewayOrderCommand) (services.GatewayOrder, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.GatewayOrder{}, nil
}

func (s *stubPaymentService) VerifyAndApply(ctx context.Context, cmd services.VerifyPaymentCommand) (services.PaymentResult, error) {
	if s.verifyFn != nil {
		return s.verifyFn(ctx, cmd)
	}
	return services.PaymentResult{}, nil
}

func (s *stubPaymentService) ApplyConfirmation(ctx context.Context, cmd services.ConfirmPaymentCommand) (services.PaymentResult, error) {
	if s.confirmFn != nil {
		return s.confirmFn(ctx, cmd)
	}
	return services.PaymentResult{}, nil
}

func newPaymentRouter(h *PaymentHandlers) chi.Router {
	r := chi.NewRouter()
	h.Routes(r)
	return r
}

func TestPaymentHandlerCreateGatewayOrder(t *testing.T) {
	payments := &stubPaymentService{
		createFn: func(_ context.Context, cmd services.CreateGatewayOrderCommand) (services.GatewayOrder, error) {
			if cmd.OrderNumber != "MK-20250615-A1B2C3" {
				t.Fatalf("unexpected order number %q", cmd.OrderNumber)
			}
			return services.GatewayOrder{
				Provider:        "razorpay",
				ProviderOrderID: "order_abc123",
				Amount:          54000,
				Currency:        "INR",
				KeyID:           "rzp_test_key",
			}, nil
		},
	}
	router := newPaymentRouter(NewPaymentHandlers(payments))

	req := httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(`{"orderNumber":"MK-20250615-A1B2C3"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var body gatewayOrderResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.ProviderOrderID != "order_abc123" || body.Amount != 54000 || body.KeyID != "rzp_test_key" {
		t.Fatalf("unexpected payload %+v", body)
	}
}

func TestPaymentHandlerCreateGatewayOrderErrors(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "not found", err: services.ErrPaymentOrderNotFound, wantStatus: http.StatusNotFound},
		{name: "invalid input", err: services.ErrPaymentInvalidInput, wantStatus: http.StatusBadRequest},
		{name: "unavailable", err: services.ErrPaymentUnavailable, wantStatus: http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payments := &stubPaymentService{
				createFn: func(context.Context, services.CreateGatewayOrderCommand) (services.GatewayOrder, error) {
					return services.GatewayOrder{}, tc.err
				},
			}
			router := newPaymentRouter(NewPaymentHandlers(payments))

			req := httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(`{"orderNumber":"MK-1"}`))
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tc.wantStatus, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestPaymentHandlerVerifySuccess(t *testing.T) {
	payments := &stubPaymentService{
		verifyFn: func(_ context.Context, cmd services.VerifyPaymentCommand) (services.PaymentResult, error) {
			if cmd.ProviderPaymentID != "pay_xyz" || cmd.Signature == "" {
				t.Fatalf("unexpected command %+v", cmd)
			}
			return services.PaymentResult{
				Order: domain.Order{
					OrderNumber:   cmd.OrderNumber,
					Status:        domain.OrderStatusConfirmed,
					PaymentStatus: domain.PaymentStatusPaid,
					Total:         54000,
				},
				Applied: true,
			}, nil
		},
	}
	router := newPaymentRouter(NewPaymentHandlers(payments))

	body := `{"orderNumber":"MK-20250615-A1B2C3","providerOrderId":"order_abc123","providerPaymentId":"pay_xyz","signature":"deadbeef"}`
	req := httptest.NewRequest(http.MethodPost, "/verify", strings.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp paymentResultResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Applied || resp.Order.PaymentStatus != string(domain.PaymentStatusPaid) {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestPaymentHandlerVerifyRejectsBadSignature(t *testing.T) {
	payments := &stubPaymentService{
		verifyFn: func(context.Context, services.VerifyPaymentCommand) (services.PaymentResult, error) {
			return services.PaymentResult{}, services.ErrPaymentInvalidSignature
		},
	}
	router := newPaymentRouter(NewPaymentHandlers(payments))

	body := `{"orderNumber":"MK-1","providerOrderId":"order_1","providerPaymentId":"pay_1","signature":"bogus"}`
	req := httptest.NewRequest(http.MethodPost, "/verify", strings.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "invalid_signature") {
		t.Fatalf("expected invalid_signature code, got %s", rr.Body.String())
	}
}

func TestPaymentHandlerVerifyRejectsMalformedBody(t *testing.T) {
	router := newPaymentRouter(NewPaymentHandlers(&stubPaymentService{}))

	req := httptest.NewRequest(http.MethodPost, "/verify", strings.NewReader("{not-json"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}
