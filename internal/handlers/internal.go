package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/makhaana-store/api/internal/platform/httpx"
	"github.com/makhaana-store/api/internal/services"
)

// InternalHandlers exposes operational endpoints for scheduled jobs. The
// /internal group is guarded by OIDC middleware configured at router level.
type InternalHandlers struct {
	inventory services.InventoryService
}

// NewInternalHandlers constructs a new InternalHandlers instance.
func NewInternalHandlers(inventory services.InventoryService) *InternalHandlers {
	return &InternalHandlers{inventory: inventory}
}

// Routes registers the /internal endpoints.
func (h *InternalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/inventory/audit", h.auditInventory)
}

type driftPayload struct {
	VariantID     string `json:"variantId"`
	SKU           string `json:"sku,omitempty"`
	InitialStock  int64  `json:"initialStock"`
	LedgerDelta   int64  `json:"ledgerDelta"`
	ExpectedStock int64  `json:"expectedStock"`
	ActualStock   int64  `json:"actualStock"`
}

func (h *InternalHandlers) auditInventory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.inventory == nil {
		httpx.WriteError(ctx, w, httpx.NewError("inventory_service_unavailable", "inventory service unavailable", http.StatusServiceUnavailable))
		return
	}

	drifts, err := h.inventory.AuditLedger(ctx)
	if err != nil {
		writeInventoryError(ctx, w, err)
		return
	}

	items := make([]driftPayload, 0, len(drifts))
	for _, drift := range drifts {
		items = append(items, driftPayload{
			VariantID:     drift.VariantID,
			SKU:           drift.SKU,
			InitialStock:  drift.InitialStock,
			LedgerDelta:   drift.LedgerDelta,
			ExpectedStock: drift.ExpectedStock,
			ActualStock:   drift.ActualStock,
		})
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"drift":   items,
		"healthy": len(items) == 0,
	})
}
