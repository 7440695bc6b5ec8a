package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/makhaana-store/api/internal/domain"
	"github.com/makhaana-store/api/internal/repositories"
)

const (
	orderNumberPrefix       = "MK"
	orderNumberRandomLength = 6
	// Crockford base32: no I, L, O, U, so numbers read unambiguously on
	// packing slips and support calls.
	orderNumberAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

	maxCheckoutQuantityPerLine = 50
)

var (
	// ErrCheckoutInvalidInput indicates the caller supplied invalid input parameters.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutEmptyCart indicates the checkout request carried no items.
	ErrCheckoutEmptyCart = errors.New("checkout: empty cart")
	// ErrCheckoutInvalidVariant indicates an item references a missing or inactive variant.
	ErrCheckoutInvalidVariant = errors.New("checkout: invalid variant")
	// ErrCheckoutInsufficientStock indicates an item exceeds available stock.
	ErrCheckoutInsufficientStock = errors.New("checkout: insufficient stock")
	// ErrCheckoutUnavailable indicates checkout dependencies are currently unavailable.
	ErrCheckoutUnavailable = errors.New("checkout: unavailable")
)

// CheckoutServiceDeps wires the dependencies required by the checkout service.
type CheckoutServiceDeps struct {
	Orders    repositories.OrderRepository
	Pricing   PricingService
	Publisher EventPublisher
	Clock     func() time.Time
	Logger    Logger
}

type checkoutService struct {
	orders    repositories.OrderRepository
	pricing   PricingService
	publisher EventPublisher
	now       func() time.Time
	logger    Logger
}

// NewCheckoutService constructs a CheckoutService validating required dependencies.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Orders == nil {
		return nil, errors.New("checkout service: order repository is required")
	}
	if deps.Pricing == nil {
		return nil, errors.New("checkout service: pricing service is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &checkoutService{
		orders:    deps.Orders,
		pricing:   deps.Pricing,
		publisher: deps.Publisher,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// PlaceOrder validates the cart, resolves pricing, and runs the atomic
// checkout write. Item prices are always taken from the stored variants, never
// from the request.
func (s *checkoutService) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (PlaceOrderResult, error) {
	if s == nil || s.orders == nil || s.pricing == nil {
		return PlaceOrderResult{}, ErrCheckoutUnavailable
	}

	lines, err := normaliseCartLines(cmd.Items)
	if err != nil {
		return PlaceOrderResult{}, err
	}
	shipping, err := normaliseShipping(cmd.Shipping)
	if err != nil {
		return PlaceOrderResult{}, err
	}

	resolveCharge, err := s.pricing.ChargeResolver(ctx)
	if err != nil {
		return PlaceOrderResult{}, fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
	}

	userID := cmd.UserID
	if userID != nil {
		trimmed := strings.TrimSpace(*userID)
		if trimmed == "" {
			userID = nil
		} else {
			userID = &trimmed
		}
	}

	order, err := s.orders.PlaceOrder(ctx, repositories.PlaceOrderSpec{
		NextOrderNumber:       s.nextOrderNumber,
		UserID:                userID,
		Shipping:              shipping,
		Items:                 lines,
		ResolveDeliveryCharge: resolveCharge,
		InitialStatus:         domain.OrderStatusPending,
	})
	if err != nil {
		return PlaceOrderResult{}, s.translateCheckoutError(err)
	}

	if userID != nil {
		// Earlier guest orders under the same email get attached to the
		// account. Failures only cost the linkage, never the order.
		if linked, linkErr := s.orders.LinkGuestOrders(ctx, shipping.Email, *userID); linkErr != nil {
			s.logger(ctx, "checkout.link_guest_orders_failed", map[string]any{
				"orderNumber": order.OrderNumber,
				"error":       linkErr.Error(),
			})
		} else if linked > 0 {
			s.logger(ctx, "checkout.guest_orders_linked", map[string]any{
				"orderNumber": order.OrderNumber,
				"linked":      linked,
			})
		}
	}

	s.publish(ctx, "order.placed", map[string]any{
		"orderNumber": order.OrderNumber,
		"total":       int64(order.Total),
		"items":       len(order.Items),
	})

	return PlaceOrderResult{Order: order}, nil
}

func (s *checkoutService) nextOrderNumber() (string, error) {
	var buf [orderNumberRandomLength]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("order number: %w", err)
	}
	suffix := make([]byte, orderNumberRandomLength)
	for i, b := range buf {
		suffix[i] = orderNumberAlphabet[int(b)%len(orderNumberAlphabet)]
	}
	return fmt.Sprintf("%s-%s-%s", orderNumberPrefix, s.now().Format("20060102"), suffix), nil
}

func (s *checkoutService) translateCheckoutError(err error) error {
	var checkoutErr *repositories.CheckoutError
	if errors.As(err, &checkoutErr) {
		switch checkoutErr.Code {
		case repositories.CheckoutErrorInvalidVariant:
			return fmt.Errorf("%w: %s", ErrCheckoutInvalidVariant, checkoutErr.Message)
		case repositories.CheckoutErrorInsufficientStock:
			return fmt.Errorf("%w: %s", ErrCheckoutInsufficientStock, checkoutErr.ProductName)
		}
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
		return fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
	}
	return err
}

func (s *checkoutService) publish(ctx context.Context, eventType string, payload map[string]any) {
	if s.publisher == nil {
		return
	}
	if _, err := s.publisher.Publish(ctx, domain.Event{
		Type:       eventType,
		OccurredAt: s.now(),
		Payload:    payload,
	}); err != nil {
		s.logger(ctx, "checkout.event_publish_failed", map[string]any{
			"eventType": eventType,
			"error":     err.Error(),
		})
	}
}

func normaliseCartLines(items []CartLine) ([]repositories.OrderLine, error) {
	if len(items) == 0 {
		return nil, ErrCheckoutEmptyCart
	}
	lines := make([]repositories.OrderLine, 0, len(items))
	for i, item := range items {
		variantID := strings.TrimSpace(item.VariantID)
		if variantID == "" {
			return nil, fmt.Errorf("%w: item %d is missing a variant id", ErrCheckoutInvalidInput, i)
		}
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: item %d has non-positive quantity", ErrCheckoutInvalidInput, i)
		}
		if item.Quantity > maxCheckoutQuantityPerLine {
			return nil, fmt.Errorf("%w: item %d exceeds the per-line quantity limit", ErrCheckoutInvalidInput, i)
		}
		lines = append(lines, repositories.OrderLine{VariantID: variantID, Quantity: item.Quantity})
	}
	return lines, nil
}

func normaliseShipping(in domain.ShippingDetails) (domain.ShippingDetails, error) {
	out := domain.ShippingDetails{
		FullName:     strings.TrimSpace(in.FullName),
		Phone:        strings.TrimSpace(in.Phone),
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		AddressLine1: strings.TrimSpace(in.AddressLine1),
		AddressLine2: strings.TrimSpace(in.AddressLine2),
		City:         strings.TrimSpace(in.City),
		State:        strings.TrimSpace(in.State),
		Pincode:      strings.TrimSpace(in.Pincode),
	}
	switch {
	case out.FullName == "":
		return domain.ShippingDetails{}, fmt.Errorf("%w: full name is required", ErrCheckoutInvalidInput)
	case out.Phone == "":
		return domain.ShippingDetails{}, fmt.Errorf("%w: phone is required", ErrCheckoutInvalidInput)
	case out.Email == "" || !strings.Contains(out.Email, "@"):
		return domain.ShippingDetails{}, fmt.Errorf("%w: a valid email is required", ErrCheckoutInvalidInput)
	case out.AddressLine1 == "":
		return domain.ShippingDetails{}, fmt.Errorf("%w: address is required", ErrCheckoutInvalidInput)
	case out.City == "":
		return domain.ShippingDetails{}, fmt.Errorf("%w: city is required", ErrCheckoutInvalidInput)
	case out.State == "":
		return domain.ShippingDetails{}, fmt.Errorf("%w: state is required", ErrCheckoutInvalidInput)
	case out.Pincode == "":
		return domain.ShippingDetails{}, fmt.Errorf("%w: pincode is required", ErrCheckoutInvalidInput)
	}
	return out, nil
}
