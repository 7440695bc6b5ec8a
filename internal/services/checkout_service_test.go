package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	domain "github.com/makhaana-store/api/internal/domain"
	"github.com/makhaana-store/api/internal/repositories"
)

type stubOrderRepo struct {
	placeFn       func(ctx context.Context, spec repositories.PlaceOrderSpec) (domain.Order, error)
	findFn        func(ctx context.Context, orderNumber string) (domain.Order, error)
	listEmailFn   func(ctx context.Context, email string) ([]domain.Order, error)
	listUserFn    func(ctx context.Context, userID string) ([]domain.Order, error)
	listFn        func(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error)
	updateFn      func(ctx context.Context, orderNumber string, status domain.OrderStatus, actor string) (domain.Order, error)
	historyFn     func(ctx context.Context, orderNumber string) ([]domain.StatusHistoryEntry, error)
	applyFn       func(ctx context.Context, spec repositories.ApplyPaymentSpec) (domain.Order, bool, error)
	linkGuestsFn  func(ctx context.Context, email string, userID string) (int, error)
}

func (s *stubOrderRepo) PlaceOrder(ctx context.Context, spec repositories.PlaceOrderSpec) (domain.Order, error) {
	if s.placeFn != nil {
		return s.placeFn(ctx, spec)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderRepo) FindByNumber(ctx context.Context, orderNumber string) (domain.Order, error) {
	if s.findFn != nil {
		return s.findFn(ctx, orderNumber)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderRepo) ListByEmail(ctx context.Context, email string) ([]domain.Order, error) {
	if s.listEmailFn != nil {
		return s.listEmailFn(ctx, email)
	}
	return nil, errors.New("not implemented")
}

func (s *stubOrderRepo) ListByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	if s.listUserFn != nil {
		return s.listUserFn(ctx, userID)
	}
	return nil, errors.New("not implemented")
}

func (s *stubOrderRepo) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[domain.Order]{}, errors.New("not implemented")
}

func (s *stubOrderRepo) UpdateStatus(ctx context.Context, orderNumber string, status domain.OrderStatus, actor string) (domain.Order, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, orderNumber, status, actor)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderRepo) ListStatusHistory(ctx context.Context, orderNumber string) ([]domain.StatusHistoryEntry, error) {
	if s.historyFn != nil {
		return s.historyFn(ctx, orderNumber)
	}
	return nil, nil
}

func (s *stubOrderRepo) ApplyPayment(ctx context.Context, spec repositories.ApplyPaymentSpec) (domain.Order, bool, error) {
	if s.applyFn != nil {
		return s.applyFn(ctx, spec)
	}
	return domain.Order{}, false, errors.New("not implemented")
}

func (s *stubOrderRepo) LinkGuestOrders(ctx context.Context, email string, userID string) (int, error) {
	if s.linkGuestsFn != nil {
		return s.linkGuestsFn(ctx, email, userID)
	}
	return 0, nil
}

type stubPricingService struct {
	resolverFn func(ctx context.Context) (func(domain.Money) (domain.Money, error), error)
	listFn     func(ctx context.Context) ([]domain.DeliveryRule, error)
	replaceFn  func(ctx context.Context, rules []domain.DeliveryRule) error
}

func (s *stubPricingService) ResolveDeliveryCharge(ctx context.Context, subtotal domain.Money) (domain.Money, error) {
	resolve, err := s.ChargeResolver(ctx)
	if err != nil {
		return 0, err
	}
	return resolve(subtotal)
}

func (s *stubPricingService) ChargeResolver(ctx context.Context) (func(domain.Money) (domain.Money, error), error) {
	if s.resolverFn != nil {
		return s.resolverFn(ctx)
	}
	return func(domain.Money) (domain.Money, error) { return 0, nil }, nil
}

func (s *stubPricingService) ListRules(ctx context.Context) ([]domain.DeliveryRule, error) {
	if s.listFn != nil {
		return s.listFn(ctx)
	}
	return nil, nil
}

func (s *stubPricingService) ReplaceRules(ctx context.Context, rules []domain.DeliveryRule) error {
	if s.replaceFn != nil {
		return s.replaceFn(ctx, rules)
	}
	return nil
}

type captureEvents struct {
	events []domain.Event
	err    error
}

func (c *captureEvents) Publish(_ context.Context, event domain.Event) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	c.events = append(c.events, event)
	return "msg-1", nil
}

func validShipping() domain.ShippingDetails {
	return domain.ShippingDetails{
		FullName:     "Asha Rao",
		Phone:        "9876543210",
		Email:        "Asha@Example.com",
		AddressLine1: "12 Lake View Road",
		City:         "Pune",
		State:        "Maharashtra",
		Pincode:      "411001",
	}
}

func newCheckoutServiceForTest(t *testing.T, orders *stubOrderRepo, pricing PricingService, publisher EventPublisher) CheckoutService {
	t.Helper()
	svc, err := NewCheckoutService(CheckoutServiceDeps{
		Orders:    orders,
		Pricing:   pricing,
		Publisher: publisher,
		Clock:     func() time.Time { return time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("NewCheckoutService: %v", err)
	}
	return svc
}

func TestCheckoutServicePlaceOrderRejectsEmptyCart(t *testing.T) {
	svc := newCheckoutServiceForTest(t, &stubOrderRepo{}, &stubPricingService{}, nil)

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderCommand{Shipping: validShipping()})
	if !errors.Is(err, ErrCheckoutEmptyCart) {
		t.Fatalf("expected ErrCheckoutEmptyCart, got %v", err)
	}
}

func TestCheckoutServicePlaceOrderValidatesLinesAndShipping(t *testing.T) {
	svc := newCheckoutServiceForTest(t, &stubOrderRepo{}, &stubPricingService{}, nil)

	cases := []struct {
		name string
		cmd  PlaceOrderCommand
	}{
		{
			name: "missing variant id",
			cmd: PlaceOrderCommand{
				Items:    []CartLine{{VariantID: "  ", Quantity: 1}},
				Shipping: validShipping(),
			},
		},
		{
			name: "zero quantity",
			cmd: PlaceOrderCommand{
				Items:    []CartLine{{VariantID: "var-1", Quantity: 0}},
				Shipping: validShipping(),
			},
		},
		{
			name: "quantity over limit",
			cmd: PlaceOrderCommand{
				Items:    []CartLine{{VariantID: "var-1", Quantity: maxCheckoutQuantityPerLine + 1}},
				Shipping: validShipping(),
			},
		},
		{
			name: "missing email",
			cmd: PlaceOrderCommand{
				Items: []CartLine{{VariantID: "var-1", Quantity: 1}},
				Shipping: func() domain.ShippingDetails {
					s := validShipping()
					s.Email = "not-an-email"
					return s
				}(),
			},
		},
		{
			name: "missing pincode",
			cmd: PlaceOrderCommand{
				Items: []CartLine{{VariantID: "var-1", Quantity: 1}},
				Shipping: func() domain.ShippingDetails {
					s := validShipping()
					s.Pincode = ""
					return s
				}(),
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.PlaceOrder(context.Background(), tc.cmd); !errors.Is(err, ErrCheckoutInvalidInput) {
				t.Fatalf("expected ErrCheckoutInvalidInput, got %v", err)
			}
		})
	}
}

func TestCheckoutServicePlaceOrderSuccessPublishesEvent(t *testing.T) {
	orders := &stubOrderRepo{}
	events := &captureEvents{}
	var capturedSpec repositories.PlaceOrderSpec

	orders.placeFn = func(_ context.Context, spec repositories.PlaceOrderSpec) (domain.Order, error) {
		capturedSpec = spec
		number, err := spec.NextOrderNumber()
		if err != nil {
			t.Fatalf("NextOrderNumber: %v", err)
		}
		charge, err := spec.ResolveDeliveryCharge(50000)
		if err != nil {
			t.Fatalf("ResolveDeliveryCharge: %v", err)
		}
		return domain.Order{
			OrderNumber:    number,
			Shipping:       spec.Shipping,
			Items:          []domain.OrderItem{{VariantID: "var-1", Quantity: 2}},
			Subtotal:       50000,
			DeliveryCharge: charge,
			Total:          50000 + charge,
			Status:         domain.OrderStatusPending,
		}, nil
	}

	pricing := &stubPricingService{
		resolverFn: func(context.Context) (func(domain.Money) (domain.Money, error), error) {
			return func(subtotal domain.Money) (domain.Money, error) {
				if subtotal != 50000 {
					t.Fatalf("unexpected subtotal %d", subtotal)
				}
				return 4000, nil
			}, nil
		},
	}

	svc := newCheckoutServiceForTest(t, orders, pricing, events)
	result, err := svc.PlaceOrder(context.Background(), PlaceOrderCommand{
		Items:    []CartLine{{VariantID: "var-1", Quantity: 2}},
		Shipping: validShipping(),
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	pattern := regexp.MustCompile(`^MK-20250615-[0-9A-HJKMNP-TV-Z]{6}$`)
	if !pattern.MatchString(result.Order.OrderNumber) {
		t.Fatalf("unexpected order number %q", result.Order.OrderNumber)
	}
	if result.Order.Total != 54000 {
		t.Fatalf("expected total 54000, got %d", result.Order.Total)
	}
	if capturedSpec.Shipping.Email != "asha@example.com" {
		t.Fatalf("expected lowercased email, got %q", capturedSpec.Shipping.Email)
	}
	if capturedSpec.InitialStatus != domain.OrderStatusPending {
		t.Fatalf("expected pending initial status, got %q", capturedSpec.InitialStatus)
	}
	if len(events.events) != 1 || events.events[0].Type != "order.placed" {
		t.Fatalf("expected one order.placed event, got %+v", events.events)
	}
}

func TestCheckoutServicePlaceOrderTranslatesStockErrors(t *testing.T) {
	orders := &stubOrderRepo{
		placeFn: func(context.Context, repositories.PlaceOrderSpec) (domain.Order, error) {
			return domain.Order{}, &repositories.CheckoutError{
				Code:        repositories.CheckoutErrorInsufficientStock,
				Message:     "stock short",
				ProductName: "Peri Peri Makhana",
			}
		},
	}
	svc := newCheckoutServiceForTest(t, orders, &stubPricingService{}, nil)

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderCommand{
		Items:    []CartLine{{VariantID: "var-1", Quantity: 3}},
		Shipping: validShipping(),
	})
	if !errors.Is(err, ErrCheckoutInsufficientStock) {
		t.Fatalf("expected ErrCheckoutInsufficientStock, got %v", err)
	}
	if !strings.Contains(err.Error(), "Peri Peri Makhana") {
		t.Fatalf("expected product name in error, got %q", err.Error())
	}
}

func TestCheckoutServicePlaceOrderLinksGuestOrders(t *testing.T) {
	linked := false
	orders := &stubOrderRepo{
		placeFn: func(_ context.Context, spec repositories.PlaceOrderSpec) (domain.Order, error) {
			number, _ := spec.NextOrderNumber()
			return domain.Order{OrderNumber: number, Status: domain.OrderStatusPending}, nil
		},
		linkGuestsFn: func(_ context.Context, email string, userID string) (int, error) {
			linked = true
			if email != "asha@example.com" {
				t.Fatalf("unexpected link email %q", email)
			}
			if userID != "user-7" {
				t.Fatalf("unexpected link user %q", userID)
			}
			return 2, nil
		},
	}
	svc := newCheckoutServiceForTest(t, orders, &stubPricingService{}, nil)

	userID := "user-7"
	if _, err := svc.PlaceOrder(context.Background(), PlaceOrderCommand{
		Items:    []CartLine{{VariantID: "var-1", Quantity: 1}},
		Shipping: validShipping(),
		UserID:   &userID,
	}); err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if !linked {
		t.Fatal("expected guest orders to be linked")
	}
}
