package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/makhaana-store/api/internal/domain"
)

type stubDeliveryRuleRepo struct {
	listFn    func(ctx context.Context) ([]domain.DeliveryRule, error)
	replaceFn func(ctx context.Context, rules []domain.DeliveryRule) error
}

func (s *stubDeliveryRuleRepo) List(ctx context.Context) ([]domain.DeliveryRule, error) {
	if s.listFn != nil {
		return s.listFn(ctx)
	}
	return nil, nil
}

func (s *stubDeliveryRuleRepo) Replace(ctx context.Context, rules []domain.DeliveryRule) error {
	if s.replaceFn != nil {
		return s.replaceFn(ctx, rules)
	}
	return nil
}

func standardRules() []domain.DeliveryRule {
	return []domain.DeliveryRule{
		{ID: "r1", MinOrderValue: 0, MaxOrderValue: 49899, Charge: 5000},
		{ID: "r2", MinOrderValue: 49900, MaxOrderValue: 99899, Charge: 2500},
		{ID: "r3", MinOrderValue: 99900, Charge: 0},
	}
}

func newPricingServiceForTest(t *testing.T, repo *stubDeliveryRuleRepo) PricingService {
	t.Helper()
	svc, err := NewPricingService(PricingServiceDeps{Rules: repo, FallbackCharge: 5000})
	if err != nil {
		t.Fatalf("NewPricingService: %v", err)
	}
	return svc
}

func TestPricingServiceResolveDeliveryCharge(t *testing.T) {
	repo := &stubDeliveryRuleRepo{
		listFn: func(context.Context) ([]domain.DeliveryRule, error) {
			return standardRules(), nil
		},
	}
	svc := newPricingServiceForTest(t, repo)

	cases := []struct {
		name     string
		subtotal domain.Money
		want     domain.Money
	}{
		{name: "small order", subtotal: 30000, want: 5000},
		{name: "range start boundary", subtotal: 49900, want: 2500},
		{name: "range end boundary", subtotal: 99899, want: 2500},
		{name: "free delivery", subtotal: 150000, want: 0},
		{name: "no upper bound on last tier", subtotal: 925000000, want: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := svc.ResolveDeliveryCharge(context.Background(), tc.subtotal)
			if err != nil {
				t.Fatalf("ResolveDeliveryCharge: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected charge %d, got %d", tc.want, got)
			}
		})
	}
}

func TestPricingServiceFallsBackOnRuleGap(t *testing.T) {
	repo := &stubDeliveryRuleRepo{
		listFn: func(context.Context) ([]domain.DeliveryRule, error) {
			return []domain.DeliveryRule{
				{ID: "r1", MinOrderValue: 0, MaxOrderValue: 10000, Charge: 1000},
			}, nil
		},
	}
	svc := newPricingServiceForTest(t, repo)

	got, err := svc.ResolveDeliveryCharge(context.Background(), 20000)
	if err != nil {
		t.Fatalf("ResolveDeliveryCharge: %v", err)
	}
	if got != 5000 {
		t.Fatalf("expected fallback charge 5000, got %d", got)
	}
}

func TestPricingServiceChargeResolverIsPure(t *testing.T) {
	calls := 0
	repo := &stubDeliveryRuleRepo{
		listFn: func(context.Context) ([]domain.DeliveryRule, error) {
			calls++
			return standardRules(), nil
		},
	}
	svc := newPricingServiceForTest(t, repo)

	resolve, err := svc.ChargeResolver(context.Background())
	if err != nil {
		t.Fatalf("ChargeResolver: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := resolve(50000); err != nil {
			t.Fatalf("resolve: %v", err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected a single rule load, got %d", calls)
	}
}

func TestPricingServiceReplaceRulesValidation(t *testing.T) {
	svc := newPricingServiceForTest(t, &stubDeliveryRuleRepo{})

	cases := []struct {
		name  string
		rules []domain.DeliveryRule
	}{
		{name: "empty table", rules: nil},
		{
			name: "inverted range",
			rules: []domain.DeliveryRule{
				{MinOrderValue: 5000, MaxOrderValue: 1000, Charge: 100},
			},
		},
		{
			name: "negative charge",
			rules: []domain.DeliveryRule{
				{MinOrderValue: 0, MaxOrderValue: 1000, Charge: -1},
			},
		},
		{
			name: "overlapping ranges",
			rules: []domain.DeliveryRule{
				{MinOrderValue: 0, MaxOrderValue: 5000, Charge: 100},
				{MinOrderValue: 5000, MaxOrderValue: 9000, Charge: 50},
			},
		},
		{
			name: "negative range end",
			rules: []domain.DeliveryRule{
				{MinOrderValue: 0, MaxOrderValue: -1, Charge: 100},
			},
		},
		{
			name: "open ended rule not last",
			rules: []domain.DeliveryRule{
				{MinOrderValue: 0, Charge: 100},
				{MinOrderValue: 5000, MaxOrderValue: 9000, Charge: 50},
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := svc.ReplaceRules(context.Background(), tc.rules); !errors.Is(err, ErrPricingInvalidRules) {
				t.Fatalf("expected ErrPricingInvalidRules, got %v", err)
			}
		})
	}
}

func TestPricingServiceReplaceRulesAcceptsOpenEndedLastTier(t *testing.T) {
	var stored []domain.DeliveryRule
	repo := &stubDeliveryRuleRepo{
		replaceFn: func(_ context.Context, rules []domain.DeliveryRule) error {
			stored = rules
			return nil
		},
	}
	svc := newPricingServiceForTest(t, repo)

	err := svc.ReplaceRules(context.Background(), []domain.DeliveryRule{
		{MinOrderValue: 0, MaxOrderValue: 49899, Charge: 5000},
		{MinOrderValue: 49900, Charge: 0},
	})
	if err != nil {
		t.Fatalf("ReplaceRules: %v", err)
	}
	if len(stored) != 2 || !stored[1].OpenEnded() {
		t.Fatalf("expected last rule stored open ended, got %+v", stored)
	}
}

func TestPricingServiceReplaceRulesSortsBeforeStoring(t *testing.T) {
	var stored []domain.DeliveryRule
	repo := &stubDeliveryRuleRepo{
		replaceFn: func(_ context.Context, rules []domain.DeliveryRule) error {
			stored = rules
			return nil
		},
	}
	svc := newPricingServiceForTest(t, repo)

	err := svc.ReplaceRules(context.Background(), []domain.DeliveryRule{
		{MinOrderValue: 49900, MaxOrderValue: 99899, Charge: 2500},
		{MinOrderValue: 0, MaxOrderValue: 49899, Charge: 5000},
	})
	if err != nil {
		t.Fatalf("ReplaceRules: %v", err)
	}
	if len(stored) != 2 || stored[0].MinOrderValue != 0 || stored[1].MinOrderValue != 49900 {
		t.Fatalf("expected rules sorted by range start, got %+v", stored)
	}
}
