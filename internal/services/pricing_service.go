package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	domain "github.com/makhaana-store/api/internal/domain"
	"github.com/makhaana-store/api/internal/repositories"
)

var (
	// ErrPricingInvalidRules indicates a replacement rule table failed validation.
	ErrPricingInvalidRules = errors.New("pricing: invalid rules")
	// ErrPricingUnavailable indicates the rule table could not be loaded.
	ErrPricingUnavailable = errors.New("pricing: unavailable")
)

// PricingServiceDeps wires the dependencies required by the pricing service.
type PricingServiceDeps struct {
	Rules          repositories.DeliveryRuleRepository
	FallbackCharge domain.Money
	Logger         Logger
}

type pricingService struct {
	rules    repositories.DeliveryRuleRepository
	fallback domain.Money
	logger   Logger
}

// NewPricingService constructs a PricingService validating required dependencies.
func NewPricingService(deps PricingServiceDeps) (PricingService, error) {
	if deps.Rules == nil {
		return nil, errors.New("pricing service: delivery rule repository is required")
	}
	if deps.FallbackCharge < 0 {
		return nil, errors.New("pricing service: fallback charge must not be negative")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &pricingService{
		rules:    deps.Rules,
		fallback: deps.FallbackCharge,
		logger:   logger,
	}, nil
}

// ResolveDeliveryCharge loads the rule table and maps the subtotal to a charge.
func (s *pricingService) ResolveDeliveryCharge(ctx context.Context, subtotal domain.Money) (domain.Money, error) {
	resolve, err := s.ChargeResolver(ctx)
	if err != nil {
		return 0, err
	}
	return resolve(subtotal)
}

// ChargeResolver loads the rule table once and returns a pure resolver. The
// closure performs no I/O, so storage transactions may call it repeatedly
// across retries.
func (s *pricingService) ChargeResolver(ctx context.Context) (func(domain.Money) (domain.Money, error), error) {
	if s == nil || s.rules == nil {
		return nil, ErrPricingUnavailable
	}
	rules, err := s.rules.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPricingUnavailable, err)
	}

	fallback := s.fallback
	logger := s.logger
	return func(subtotal domain.Money) (domain.Money, error) {
		for _, rule := range rules {
			if rule.Contains(subtotal) {
				return rule.Charge, nil
			}
		}
		// A gap in the rule table is a configuration defect; orders still
		// complete on the configured fallback.
		logger(ctx, "pricing.rule_miss", map[string]any{
			"subtotal": int64(subtotal),
			"fallback": int64(fallback),
			"rules":    len(rules),
		})
		return fallback, nil
	}, nil
}

// ListRules returns the rule table ordered by range start.
func (s *pricingService) ListRules(ctx context.Context) ([]domain.DeliveryRule, error) {
	if s == nil || s.rules == nil {
		return nil, ErrPricingUnavailable
	}
	rules, err := s.rules.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPricingUnavailable, err)
	}
	return rules, nil
}

// ReplaceRules validates and atomically swaps the rule table. Ranges must be
// well formed, non-overlapping, and charges non-negative. A max of zero
// leaves the range open ended; only the last rule may be open ended.
func (s *pricingService) ReplaceRules(ctx context.Context, rules []domain.DeliveryRule) error {
	if s == nil || s.rules == nil {
		return ErrPricingUnavailable
	}
	if len(rules) == 0 {
		return fmt.Errorf("%w: at least one rule is required", ErrPricingInvalidRules)
	}

	sorted := make([]domain.DeliveryRule, len(rules))
	copy(sorted, rules)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].MinOrderValue < sorted[j].MinOrderValue
	})

	for i, rule := range sorted {
		if rule.MinOrderValue < 0 {
			return fmt.Errorf("%w: rule %d has negative range start", ErrPricingInvalidRules, i)
		}
		if rule.MaxOrderValue < 0 {
			return fmt.Errorf("%w: rule %d has negative range end", ErrPricingInvalidRules, i)
		}
		if !rule.OpenEnded() && rule.MaxOrderValue < rule.MinOrderValue {
			return fmt.Errorf("%w: rule %d range is inverted", ErrPricingInvalidRules, i)
		}
		if rule.Charge < 0 {
			return fmt.Errorf("%w: rule %d has negative charge", ErrPricingInvalidRules, i)
		}
		if i > 0 {
			if sorted[i-1].OpenEnded() {
				return fmt.Errorf("%w: rule %d is open ended but not last", ErrPricingInvalidRules, i-1)
			}
			if rule.MinOrderValue <= sorted[i-1].MaxOrderValue {
				return fmt.Errorf("%w: rules %d and %d overlap", ErrPricingInvalidRules, i-1, i)
			}
		}
	}

	if err := s.rules.Replace(ctx, sorted); err != nil {
		return fmt.Errorf("%w: %v", ErrPricingUnavailable, err)
	}
	return nil
}
