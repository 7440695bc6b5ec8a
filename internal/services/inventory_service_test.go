package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/makhaana-store/api/internal/domain"
	"github.com/makhaana-store/api/internal/repositories"
)

type stubCatalogRepo struct {
	getFn         func(ctx context.Context, variantID string) (domain.Variant, error)
	listActiveFn  func(ctx context.Context, variantIDs []string) ([]domain.Variant, error)
	listFn        func(ctx context.Context) ([]domain.Variant, error)
	updatePriceFn func(ctx context.Context, variantID string, price domain.Money, mrp *domain.Money) (domain.Variant, error)
}

func (s *stubCatalogRepo) GetVariant(ctx context.Context, variantID string) (domain.Variant, error) {
	if s.getFn != nil {
		return s.getFn(ctx, variantID)
	}
	return domain.Variant{}, errors.New("not implemented")
}

func (s *stubCatalogRepo) ListActiveVariants(ctx context.Context, variantIDs []string) ([]domain.Variant, error) {
	if s.listActiveFn != nil {
		return s.listActiveFn(ctx, variantIDs)
	}
	return nil, nil
}

func (s *stubCatalogRepo) ListVariants(ctx context.Context) ([]domain.Variant, error) {
	if s.listFn != nil {
		return s.listFn(ctx)
	}
	return nil, nil
}

func (s *stubCatalogRepo) UpdatePrice(ctx context.Context, variantID string, price domain.Money, mrp *domain.Money) (domain.Variant, error) {
	if s.updatePriceFn != nil {
		return s.updatePriceFn(ctx, variantID, price, mrp)
	}
	return domain.Variant{}, errors.New("not implemented")
}

type stubInventoryRepo struct {
	adjustFn  func(ctx context.Context, adj repositories.StockAdjustment) (domain.Variant, domain.InventoryLogEntry, error)
	entriesFn func(ctx context.Context, variantID string, pager domain.Pagination) (domain.CursorPage[domain.InventoryLogEntry], error)
	driftFn   func(ctx context.Context) ([]domain.InventoryDrift, error)
}

func (s *stubInventoryRepo) AdjustStock(ctx context.Context, adj repositories.StockAdjustment) (domain.Variant, domain.InventoryLogEntry, error) {
	if s.adjustFn != nil {
		return s.adjustFn(ctx, adj)
	}
	return domain.Variant{}, domain.InventoryLogEntry{}, errors.New("not implemented")
}

func (s *stubInventoryRepo) ListEntries(ctx context.Context, variantID string, pager domain.Pagination) (domain.CursorPage[domain.InventoryLogEntry], error) {
	if s.entriesFn != nil {
		return s.entriesFn(ctx, variantID, pager)
	}
	return domain.CursorPage[domain.InventoryLogEntry]{}, nil
}

func (s *stubInventoryRepo) CollectDrift(ctx context.Context) ([]domain.InventoryDrift, error) {
	if s.driftFn != nil {
		return s.driftFn(ctx)
	}
	return nil, nil
}

func newInventoryServiceForTest(t *testing.T, catalog *stubCatalogRepo, inventory *stubInventoryRepo) InventoryService {
	t.Helper()
	svc, err := NewInventoryService(InventoryServiceDeps{Catalog: catalog, Inventory: inventory})
	if err != nil {
		t.Fatalf("NewInventoryService: %v", err)
	}
	return svc
}

func TestInventoryServiceAdjustStockRecordsDelta(t *testing.T) {
	inventory := &stubInventoryRepo{
		adjustFn: func(_ context.Context, adj repositories.StockAdjustment) (domain.Variant, domain.InventoryLogEntry, error) {
			if adj.Reason != domain.InventoryReasonAdminAdjustment {
				t.Fatalf("expected admin adjustment reason, got %q", adj.Reason)
			}
			if adj.Actor != "ops@makhaana.store" {
				t.Fatalf("unexpected actor %q", adj.Actor)
			}
			return domain.Variant{ID: adj.VariantID, StockQuantity: adj.NewQuantity},
				domain.InventoryLogEntry{VariantID: adj.VariantID, Delta: adj.NewQuantity - 10}, nil
		},
	}
	svc := newInventoryServiceForTest(t, &stubCatalogRepo{}, inventory)

	variant, entry, err := svc.AdjustStock(context.Background(), AdjustStockCommand{
		VariantID:   "var-1",
		NewQuantity: 25,
		Actor:       "ops@makhaana.store",
	})
	if err != nil {
		t.Fatalf("AdjustStock: %v", err)
	}
	if variant.StockQuantity != 25 {
		t.Fatalf("expected stock 25, got %d", variant.StockQuantity)
	}
	if entry.Delta != 15 {
		t.Fatalf("expected delta 15, got %d", entry.Delta)
	}
}

func TestInventoryServiceAdjustStockValidation(t *testing.T) {
	svc := newInventoryServiceForTest(t, &stubCatalogRepo{}, &stubInventoryRepo{})

	if _, _, err := svc.AdjustStock(context.Background(), AdjustStockCommand{VariantID: "", NewQuantity: 5}); !errors.Is(err, ErrInventoryInvalidInput) {
		t.Fatalf("expected ErrInventoryInvalidInput for missing id, got %v", err)
	}
	if _, _, err := svc.AdjustStock(context.Background(), AdjustStockCommand{VariantID: "var-1", NewQuantity: -1}); !errors.Is(err, ErrInventoryInvalidInput) {
		t.Fatalf("expected ErrInventoryInvalidInput for negative quantity, got %v", err)
	}
}

func TestInventoryServiceAdjustStockUnknownVariant(t *testing.T) {
	inventory := &stubInventoryRepo{
		adjustFn: func(context.Context, repositories.StockAdjustment) (domain.Variant, domain.InventoryLogEntry, error) {
			return domain.Variant{}, domain.InventoryLogEntry{},
				repositories.NewInventoryError(repositories.InventoryErrorVariantNotFound, "variant var-9 not found", nil)
		},
	}
	svc := newInventoryServiceForTest(t, &stubCatalogRepo{}, inventory)

	if _, _, err := svc.AdjustStock(context.Background(), AdjustStockCommand{VariantID: "var-9", NewQuantity: 5}); !errors.Is(err, ErrInventoryVariantNotFound) {
		t.Fatalf("expected ErrInventoryVariantNotFound, got %v", err)
	}
}

func TestInventoryServiceUpdateVariantPriceAndStock(t *testing.T) {
	priceUpdated := false
	catalog := &stubCatalogRepo{
		getFn: func(_ context.Context, variantID string) (domain.Variant, error) {
			return domain.Variant{ID: variantID, UnitPrice: 19900, StockQuantity: 10}, nil
		},
		updatePriceFn: func(_ context.Context, variantID string, price domain.Money, mrp *domain.Money) (domain.Variant, error) {
			priceUpdated = true
			if price != 24900 {
				t.Fatalf("expected price 24900, got %d", price)
			}
			if mrp == nil || *mrp != 29900 {
				t.Fatalf("expected mrp 29900, got %+v", mrp)
			}
			return domain.Variant{ID: variantID, UnitPrice: price, MRP: mrp, StockQuantity: 10}, nil
		},
	}
	inventory := &stubInventoryRepo{
		adjustFn: func(_ context.Context, adj repositories.StockAdjustment) (domain.Variant, domain.InventoryLogEntry, error) {
			return domain.Variant{ID: adj.VariantID, UnitPrice: 24900, StockQuantity: adj.NewQuantity}, domain.InventoryLogEntry{}, nil
		},
	}
	svc := newInventoryServiceForTest(t, catalog, inventory)

	price := domain.Money(24900)
	mrp := domain.Money(29900)
	stock := int64(40)
	variant, err := svc.UpdateVariant(context.Background(), UpdateVariantCommand{
		VariantID: "var-1",
		Price:     &price,
		MRP:       &mrp,
		Stock:     &stock,
	})
	if err != nil {
		t.Fatalf("UpdateVariant: %v", err)
	}
	if !priceUpdated {
		t.Fatal("expected price update to reach the catalog")
	}
	if variant.StockQuantity != 40 {
		t.Fatalf("expected stock 40, got %d", variant.StockQuantity)
	}
}

func TestInventoryServiceUpdateVariantValidation(t *testing.T) {
	catalog := &stubCatalogRepo{
		getFn: func(_ context.Context, variantID string) (domain.Variant, error) {
			return domain.Variant{ID: variantID, UnitPrice: 19900}, nil
		},
	}
	svc := newInventoryServiceForTest(t, catalog, &stubInventoryRepo{})

	t.Run("nothing to update", func(t *testing.T) {
		if _, err := svc.UpdateVariant(context.Background(), UpdateVariantCommand{VariantID: "var-1"}); !errors.Is(err, ErrInventoryInvalidInput) {
			t.Fatalf("expected ErrInventoryInvalidInput, got %v", err)
		}
	})

	t.Run("mrp below price", func(t *testing.T) {
		price := domain.Money(24900)
		mrp := domain.Money(20000)
		if _, err := svc.UpdateVariant(context.Background(), UpdateVariantCommand{
			VariantID: "var-1",
			Price:     &price,
			MRP:       &mrp,
		}); !errors.Is(err, ErrInventoryInvalidInput) {
			t.Fatalf("expected ErrInventoryInvalidInput, got %v", err)
		}
	})

	t.Run("non-positive price", func(t *testing.T) {
		price := domain.Money(0)
		if _, err := svc.UpdateVariant(context.Background(), UpdateVariantCommand{
			VariantID: "var-1",
			Price:     &price,
		}); !errors.Is(err, ErrInventoryInvalidInput) {
			t.Fatalf("expected ErrInventoryInvalidInput, got %v", err)
		}
	})
}

func TestInventoryServiceAuditLedgerReportsDrift(t *testing.T) {
	inventory := &stubInventoryRepo{
		driftFn: func(context.Context) ([]domain.InventoryDrift, error) {
			return []domain.InventoryDrift{
				{VariantID: "var-1", ExpectedStock: 12, ActualStock: 10},
			}, nil
		},
	}
	svc := newInventoryServiceForTest(t, &stubCatalogRepo{}, inventory)

	drifts, err := svc.AuditLedger(context.Background())
	if err != nil {
		t.Fatalf("AuditLedger: %v", err)
	}
	if len(drifts) != 1 || drifts[0].VariantID != "var-1" {
		t.Fatalf("unexpected drift report %+v", drifts)
	}
}
