package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/makhaana-store/api/internal/domain"
	"github.com/makhaana-store/api/internal/repositories"
)

var (
	// ErrInventoryInvalidInput indicates the caller supplied invalid input parameters.
	ErrInventoryInvalidInput = errors.New("inventory: invalid input")
	// ErrInventoryVariantNotFound indicates the referenced variant does not exist.
	ErrInventoryVariantNotFound = errors.New("inventory: variant not found")
	// ErrInventoryUnavailable indicates inventory dependencies are currently unavailable.
	ErrInventoryUnavailable = errors.New("inventory: unavailable")
)

// InventoryServiceDeps wires the dependencies required by the inventory service.
type InventoryServiceDeps struct {
	Catalog   repositories.CatalogRepository
	Inventory repositories.InventoryRepository
	Clock     func() time.Time
	Logger    Logger
}

type inventoryService struct {
	catalog   repositories.CatalogRepository
	inventory repositories.InventoryRepository
	now       func() time.Time
	logger    Logger
}

// NewInventoryService constructs an InventoryService validating required dependencies.
func NewInventoryService(deps InventoryServiceDeps) (InventoryService, error) {
	if deps.Catalog == nil {
		return nil, errors.New("inventory service: catalog repository is required")
	}
	if deps.Inventory == nil {
		return nil, errors.New("inventory service: inventory repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &inventoryService{
		catalog:   deps.Catalog,
		inventory: deps.Inventory,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// AdjustStock sets the variant's stock and records the delta in the ledger.
func (s *inventoryService) AdjustStock(ctx context.Context, cmd AdjustStockCommand) (domain.Variant, domain.InventoryLogEntry, error) {
	if s == nil || s.inventory == nil {
		return domain.Variant{}, domain.InventoryLogEntry{}, ErrInventoryUnavailable
	}
	variantID := strings.TrimSpace(cmd.VariantID)
	if variantID == "" {
		return domain.Variant{}, domain.InventoryLogEntry{}, fmt.Errorf("%w: variant id is required", ErrInventoryInvalidInput)
	}
	if cmd.NewQuantity < 0 {
		return domain.Variant{}, domain.InventoryLogEntry{}, fmt.Errorf("%w: quantity must not be negative", ErrInventoryInvalidInput)
	}

	variant, entry, err := s.inventory.AdjustStock(ctx, repositories.StockAdjustment{
		VariantID:   variantID,
		NewQuantity: cmd.NewQuantity,
		Reason:      domain.InventoryReasonAdminAdjustment,
		Actor:       strings.TrimSpace(cmd.Actor),
	})
	if err != nil {
		return domain.Variant{}, domain.InventoryLogEntry{}, s.translateInventoryError(err)
	}

	s.logger(ctx, "inventory.stock_adjusted", map[string]any{
		"variantId": variant.ID,
		"delta":     entry.Delta,
		"quantity":  variant.StockQuantity,
	})
	return variant, entry, nil
}

// UpdateVariant applies an admin edit: price, MRP, stock, in any combination.
// Price edits never rewrite historical order snapshots.
func (s *inventoryService) UpdateVariant(ctx context.Context, cmd UpdateVariantCommand) (domain.Variant, error) {
	if s == nil || s.catalog == nil || s.inventory == nil {
		return domain.Variant{}, ErrInventoryUnavailable
	}
	variantID := strings.TrimSpace(cmd.VariantID)
	if variantID == "" {
		return domain.Variant{}, fmt.Errorf("%w: variant id is required", ErrInventoryInvalidInput)
	}
	if cmd.Price == nil && cmd.MRP == nil && cmd.Stock == nil {
		return domain.Variant{}, fmt.Errorf("%w: nothing to update", ErrInventoryInvalidInput)
	}

	variant, err := s.catalog.GetVariant(ctx, variantID)
	if err != nil {
		return domain.Variant{}, s.translateInventoryError(err)
	}

	if cmd.Price != nil || cmd.MRP != nil {
		price := variant.UnitPrice
		if cmd.Price != nil {
			if *cmd.Price <= 0 {
				return domain.Variant{}, fmt.Errorf("%w: price must be positive", ErrInventoryInvalidInput)
			}
			price = *cmd.Price
		}
		mrp := variant.MRP
		if cmd.MRP != nil {
			if *cmd.MRP < price {
				return domain.Variant{}, fmt.Errorf("%w: mrp must not undercut the selling price", ErrInventoryInvalidInput)
			}
			mrp = cmd.MRP
		}
		variant, err = s.catalog.UpdatePrice(ctx, variantID, price, mrp)
		if err != nil {
			return domain.Variant{}, s.translateInventoryError(err)
		}
	}

	if cmd.Stock != nil {
		variant, _, err = s.AdjustStock(ctx, AdjustStockCommand{
			VariantID:   variantID,
			NewQuantity: *cmd.Stock,
			Actor:       cmd.Actor,
		})
		if err != nil {
			return domain.Variant{}, err
		}
	}
	return variant, nil
}

// ListLedger returns ledger entries for a variant, newest first.
func (s *inventoryService) ListLedger(ctx context.Context, variantID string, pager domain.Pagination) (domain.CursorPage[domain.InventoryLogEntry], error) {
	if s == nil || s.inventory == nil {
		return domain.CursorPage[domain.InventoryLogEntry]{}, ErrInventoryUnavailable
	}
	variantID = strings.TrimSpace(variantID)
	if variantID == "" {
		return domain.CursorPage[domain.InventoryLogEntry]{}, fmt.Errorf("%w: variant id is required", ErrInventoryInvalidInput)
	}
	page, err := s.inventory.ListEntries(ctx, variantID, pager)
	if err != nil {
		return domain.CursorPage[domain.InventoryLogEntry]{}, s.translateInventoryError(err)
	}
	return page, nil
}

// AuditLedger reconciles the ledger against live counters and reports drift.
func (s *inventoryService) AuditLedger(ctx context.Context) ([]domain.InventoryDrift, error) {
	if s == nil || s.inventory == nil {
		return nil, ErrInventoryUnavailable
	}
	drifts, err := s.inventory.CollectDrift(ctx)
	if err != nil {
		return nil, s.translateInventoryError(err)
	}
	if len(drifts) > 0 {
		s.logger(ctx, "inventory.drift_detected", map[string]any{"variants": len(drifts)})
	}
	return drifts, nil
}

func (s *inventoryService) translateInventoryError(err error) error {
	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		switch invErr.Code {
		case repositories.InventoryErrorVariantNotFound:
			return ErrInventoryVariantNotFound
		case repositories.InventoryErrorNegativeQuantity:
			return fmt.Errorf("%w: %s", ErrInventoryInvalidInput, invErr.Message)
		}
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrInventoryVariantNotFound
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrInventoryUnavailable, err)
		}
	}
	return err
}
