package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/makhaana-store/api/internal/domain"
	"github.com/makhaana-store/api/internal/payments"
	"github.com/makhaana-store/api/internal/repositories"
)

var (
	// ErrPaymentInvalidInput indicates the caller supplied invalid input parameters.
	ErrPaymentInvalidInput = errors.New("payments: invalid input")
	// ErrPaymentOrderNotFound indicates the referenced order does not exist.
	ErrPaymentOrderNotFound = errors.New("payments: order not found")
	// ErrPaymentInvalidSignature indicates the gateway signature failed verification.
	ErrPaymentInvalidSignature = errors.New("payments: invalid signature")
	// ErrPaymentUnavailable indicates payment dependencies are currently unavailable.
	ErrPaymentUnavailable = errors.New("payments: unavailable")
)

// paymentGateway abstracts payments.Manager for easier testing.
type paymentGateway interface {
	CreateOrder(ctx context.Context, name string, req payments.OrderRequest) (payments.GatewayOrder, error)
	VerifySignature(name string, req payments.SignatureRequest) error
}

// PaymentServiceDeps wires the dependencies required by the payment service.
type PaymentServiceDeps struct {
	Orders    repositories.OrderRepository
	Gateway   paymentGateway
	Publisher EventPublisher
	Currency  string
	Clock     func() time.Time
	Logger    Logger
}

type paymentService struct {
	orders    repositories.OrderRepository
	gateway   paymentGateway
	publisher EventPublisher
	currency  string
	now       func() time.Time
	logger    Logger
}

// NewPaymentService constructs a PaymentService validating required dependencies.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Orders == nil {
		return nil, errors.New("payment service: order repository is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("payment service: gateway manager is required")
	}
	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "INR"
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &paymentService{
		orders:    deps.Orders,
		gateway:   deps.Gateway,
		publisher: deps.Publisher,
		currency:  currency,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// CreateGatewayOrder opens a provider-side order for the stored total. The
// amount always comes from the persisted order, never from the client.
func (s *paymentService) CreateGatewayOrder(ctx context.Context, cmd CreateGatewayOrderCommand) (GatewayOrder, error) {
	if s == nil || s.orders == nil || s.gateway == nil {
		return GatewayOrder{}, ErrPaymentUnavailable
	}
	number := strings.TrimSpace(cmd.OrderNumber)
	if number == "" {
		return GatewayOrder{}, fmt.Errorf("%w: order number is required", ErrPaymentInvalidInput)
	}

	order, err := s.orders.FindByNumber(ctx, number)
	if err != nil {
		return GatewayOrder{}, s.translatePaymentError(err)
	}
	if order.PaymentStatus == domain.PaymentStatusPaid {
		return GatewayOrder{}, fmt.Errorf("%w: order %s is already paid", ErrPaymentInvalidInput, number)
	}

	metadata := make(map[string]string, len(cmd.Metadata)+1)
	for k, v := range cmd.Metadata {
		metadata[k] = v
	}
	// The order number rides along so webhook deliveries can find their way
	// back without a provider-id index.
	metadata["order_number"] = order.OrderNumber

	gw, err := s.gateway.CreateOrder(ctx, cmd.Provider, payments.OrderRequest{
		Amount:   int64(order.Total),
		Currency: s.currency,
		Receipt:  order.OrderNumber,
		Metadata: metadata,
	})
	if err != nil {
		if errors.Is(err, payments.ErrUnsupportedProvider) {
			return GatewayOrder{}, fmt.Errorf("%w: %v", ErrPaymentInvalidInput, err)
		}
		return GatewayOrder{}, fmt.Errorf("%w: %v", ErrPaymentUnavailable, err)
	}

	return GatewayOrder{
		Provider:        gw.Provider,
		ProviderOrderID: gw.ID,
		Amount:          domain.Money(gw.Amount),
		Currency:        gw.Currency,
		KeyID:           gw.KeyID,
	}, nil
}

// VerifyAndApply authenticates a client-reported confirmation and marks the
// order paid. Replays of an already-recorded payment return Applied=false.
func (s *paymentService) VerifyAndApply(ctx context.Context, cmd VerifyPaymentCommand) (PaymentResult, error) {
	if s == nil || s.orders == nil || s.gateway == nil {
		return PaymentResult{}, ErrPaymentUnavailable
	}
	number := strings.TrimSpace(cmd.OrderNumber)
	orderID := strings.TrimSpace(cmd.ProviderOrderID)
	paymentID := strings.TrimSpace(cmd.ProviderPaymentID)
	if number == "" || orderID == "" || paymentID == "" {
		return PaymentResult{}, fmt.Errorf("%w: order number and provider ids are required", ErrPaymentInvalidInput)
	}

	if err := s.gateway.VerifySignature(cmd.Provider, payments.SignatureRequest{
		OrderID:   orderID,
		PaymentID: paymentID,
		Signature: cmd.Signature,
	}); err != nil {
		if errors.Is(err, payments.ErrSignatureMismatch) {
			s.logger(ctx, "payments.signature_rejected", map[string]any{
				"orderNumber": number,
				"provider":    cmd.Provider,
			})
			return PaymentResult{}, ErrPaymentInvalidSignature
		}
		if errors.Is(err, payments.ErrUnsupportedProvider) {
			return PaymentResult{}, fmt.Errorf("%w: %v", ErrPaymentInvalidInput, err)
		}
		return PaymentResult{}, fmt.Errorf("%w: %v", ErrPaymentUnavailable, err)
	}

	return s.apply(ctx, number, cmd.Provider, orderID, paymentID, cmd.Method)
}

// ApplyConfirmation records a server-to-server confirmation whose transport
// authenticity was already established by webhook middleware.
func (s *paymentService) ApplyConfirmation(ctx context.Context, cmd ConfirmPaymentCommand) (PaymentResult, error) {
	if s == nil || s.orders == nil {
		return PaymentResult{}, ErrPaymentUnavailable
	}
	number := strings.TrimSpace(cmd.OrderNumber)
	orderID := strings.TrimSpace(cmd.ProviderOrderID)
	paymentID := strings.TrimSpace(cmd.ProviderPaymentID)
	if number == "" || orderID == "" || paymentID == "" {
		return PaymentResult{}, fmt.Errorf("%w: order number and provider ids are required", ErrPaymentInvalidInput)
	}
	return s.apply(ctx, number, cmd.Provider, orderID, paymentID, cmd.Method)
}

func (s *paymentService) apply(ctx context.Context, orderNumber, provider, providerOrderID, providerPaymentID, method string) (PaymentResult, error) {
	order, applied, err := s.orders.ApplyPayment(ctx, repositories.ApplyPaymentSpec{
		OrderNumber:       orderNumber,
		Gateway:           strings.TrimSpace(strings.ToLower(provider)),
		ProviderOrderID:   providerOrderID,
		ProviderPaymentID: providerPaymentID,
		Method:            strings.TrimSpace(method),
	})
	if err != nil {
		return PaymentResult{}, s.translatePaymentError(err)
	}

	if applied {
		s.publish(ctx, "order.paid", map[string]any{
			"orderNumber":       order.OrderNumber,
			"providerPaymentId": providerPaymentID,
			"amount":            int64(order.Total),
		})
	} else {
		s.logger(ctx, "payments.duplicate_confirmation", map[string]any{
			"orderNumber":       order.OrderNumber,
			"providerPaymentId": providerPaymentID,
		})
	}
	return PaymentResult{Order: order, Applied: applied}, nil
}

func (s *paymentService) translatePaymentError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrPaymentOrderNotFound
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrPaymentUnavailable, err)
		}
	}
	return err
}

func (s *paymentService) publish(ctx context.Context, eventType string, payload map[string]any) {
	if s.publisher == nil {
		return
	}
	if _, err := s.publisher.Publish(ctx, domain.Event{
		Type:       eventType,
		OccurredAt: s.now(),
		Payload:    payload,
	}); err != nil {
		s.logger(ctx, "payments.event_publish_failed", map[string]any{
			"eventType": eventType,
			"error":     err.Error(),
		})
	}
}
