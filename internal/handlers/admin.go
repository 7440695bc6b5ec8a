package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/makhaana-store/api/internal/domain"
	"github.com/makhaana-store/api/internal/platform/auth"
	"github.com/makhaana-store/api/internal/platform/httpx"
	"github.com/makhaana-store/api/internal/platform/pagination"
	"github.com/makhaana-store/api/internal/services"
)

const (
	defaultAdminPageSize = 25
	maxAdminPageSize     = 100
	maxAdminBodySize     = 32 * 1024
)

// GET /admin/orders supports ?orderBy=createdAt|total and ?filter on status
// equality and total (paise) bounds.
var adminOrderListOptions = pagination.Options{
	DefaultPageSize:    defaultAdminPageSize,
	MaxPageSize:        maxAdminPageSize,
	AllowedOrderFields: []string{"createdAt", "total"},
	AllowedFilterFields: map[string][]pagination.Operator{
		"status": {pagination.OperatorEqual},
		"total":  {pagination.OperatorGreaterEqual, pagination.OperatorLessEqual},
	},
}

// adminOrderFilterFromParams translates the parsed query into the service
// filter. The bare ?status= parameter is kept for older admin clients; a
// status filter clause wins over it.
func adminOrderFilterFromParams(r *http.Request, params pagination.Params) (services.AdminOrderFilter, error) {
	filter := services.AdminOrderFilter{
		Status:    strings.TrimSpace(r.URL.Query().Get("status")),
		PageSize:  params.PageSize,
		PageToken: params.PageToken,
	}

	for _, clause := range params.Filters {
		switch clause.Field {
		case "status":
			filter.Status = clause.Value
		case "total":
			paise, err := strconv.ParseInt(clause.Value, 10, 64)
			if err != nil || paise < 0 {
				return services.AdminOrderFilter{}, fmt.Errorf("total filter must be a non-negative amount in paise, got %q", clause.Value)
			}
			amount := domain.Money(paise)
			if clause.Op == pagination.OperatorGreaterEqual {
				filter.MinTotal = &amount
			} else {
				filter.MaxTotal = &amount
			}
		}
	}

	if len(params.Orders) > 0 {
		order := params.Orders[0]
		filter.SortBy = order.Field
		filter.SortOrder = domain.SortAsc
		if order.Desc {
			filter.SortOrder = domain.SortDesc
		}
	}
	return filter, nil
}

// AdminHandlers exposes the back-office endpoints.
type AdminHandlers struct {
	authn     *auth.Authenticator
	orders    services.OrderService
	inventory services.InventoryService
	pricing   services.PricingService
	contact   services.ContactService
}

// AdminHandlersDeps wires the services the admin surface needs.
type AdminHandlersDeps struct {
	Authenticator *auth.Authenticator
	Orders        services.OrderService
	Inventory     services.InventoryService
	Pricing       services.PricingService
	Contact       services.ContactService
}

// NewAdminHandlers constructs a new AdminHandlers instance.
func NewAdminHandlers(deps AdminHandlersDeps) *AdminHandlers {
	return &AdminHandlers{
		authn:     deps.Authenticator,
		orders:    deps.Orders,
		inventory: deps.Inventory,
		pricing:   deps.Pricing,
		contact:   deps.Contact,
	}
}

// Routes registers the /admin endpoints.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleAdmin, auth.RoleStaff))
	}
	r.Get("/orders", h.listOrders)
	r.Patch("/orders/{orderNumber}/status", h.updateOrderStatus)
	r.Patch("/variants/{variantID}", h.updateVariant)
	r.Get("/variants/{variantID}/ledger", h.listLedger)
	r.Get("/delivery-rules", h.listDeliveryRules)
	r.Put("/delivery-rules", h.replaceDeliveryRules)
	r.Get("/messages", h.listMessages)
	r.Post("/messages/{messageID}/read", h.markMessageRead)
}

func (h *AdminHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	params, err := pagination.FromRequest(r, adminOrderListOptions)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	filter, err := adminOrderFilterFromParams(r, params)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.orders.List(ctx, filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderPayload(order))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"orders":        items,
		"nextPageToken": page.NextPageToken,
	})
}

type updateOrderStatusRequest struct {
	Status string `json:"status"`
}

func (h *AdminHandlers) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	data, err := readLimitedBody(r, maxAdminBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req updateOrderStatusRequest
	if err := json.Unmarshal(data, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	order, err := h.orders.TransitionStatus(ctx, services.TransitionStatusCommand{
		OrderNumber: chi.URLParam(r, "orderNumber"),
		Status:      domain.OrderStatus(strings.TrimSpace(req.Status)),
		Actor:       adminActor(ctx),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

type updateVariantRequest struct {
	Price *int64 `json:"price,omitempty"`
	MRP   *int64 `json:"mrp,omitempty"`
	Stock *int64 `json:"stock,omitempty"`
}

type variantPayload struct {
	ID            string `json:"id"`
	ProductName   string `json:"productName"`
	FlavourName   string `json:"flavourName,omitempty"`
	SizeLabel     string `json:"sizeLabel,omitempty"`
	SKU           string `json:"sku,omitempty"`
	UnitPrice     int64  `json:"unitPrice"`
	MRP           *int64 `json:"mrp,omitempty"`
	StockQuantity int64  `json:"stockQuantity"`
	Active        bool   `json:"active"`
}

func (h *AdminHandlers) updateVariant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.inventory == nil {
		httpx.WriteError(ctx, w, httpx.NewError("inventory_service_unavailable", "inventory service unavailable", http.StatusServiceUnavailable))
		return
	}

	data, err := readLimitedBody(r, maxAdminBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req updateVariantRequest
	if err := json.Unmarshal(data, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	cmd := services.UpdateVariantCommand{
		VariantID: chi.URLParam(r, "variantID"),
		Stock:     req.Stock,
		Actor:     adminActor(ctx),
	}
	if req.Price != nil {
		price := domain.Money(*req.Price)
		cmd.Price = &price
	}
	if req.MRP != nil {
		mrp := domain.Money(*req.MRP)
		cmd.MRP = &mrp
	}

	variant, err := h.inventory.UpdateVariant(ctx, cmd)
	if err != nil {
		writeInventoryError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildVariantPayload(variant))
}

type ledgerEntryPayload struct {
	ID            string `json:"id"`
	VariantID     string `json:"variantId"`
	Delta         int64  `json:"delta"`
	Reason        string `json:"reason"`
	ReferenceType string `json:"referenceType,omitempty"`
	ReferenceID   string `json:"referenceId,omitempty"`
	Actor         string `json:"actor,omitempty"`
	CreatedAt     string `json:"createdAt,omitempty"`
}

func (h *AdminHandlers) listLedger(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.inventory == nil {
		httpx.WriteError(ctx, w, httpx.NewError("inventory_service_unavailable", "inventory service unavailable", http.StatusServiceUnavailable))
		return
	}

	pager, err := parsePagination(r, defaultAdminPageSize, maxAdminPageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.inventory.ListLedger(ctx, chi.URLParam(r, "variantID"), pager)
	if err != nil {
		writeInventoryError(ctx, w, err)
		return
	}

	items := make([]ledgerEntryPayload, 0, len(page.Items))
	for _, entry := range page.Items {
		payload := ledgerEntryPayload{
			ID:            entry.ID,
			VariantID:     entry.VariantID,
			Delta:         entry.Delta,
			Reason:        string(entry.Reason),
			ReferenceType: entry.ReferenceType,
			ReferenceID:   entry.ReferenceID,
			Actor:         entry.Actor,
		}
		if !entry.CreatedAt.IsZero() {
			payload.CreatedAt = entry.CreatedAt.UTC().Format(time.RFC3339)
		}
		items = append(items, payload)
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"entries":       items,
		"nextPageToken": page.NextPageToken,
	})
}

// deliveryRulePayload mirrors domain.DeliveryRule; a maxOrderValue of 0
// marks the rule open ended.
type deliveryRulePayload struct {
	ID            string `json:"id,omitempty"`
	MinOrderValue int64  `json:"minOrderValue"`
	MaxOrderValue int64  `json:"maxOrderValue"`
	Charge        int64  `json:"charge"`
}

func (h *AdminHandlers) listDeliveryRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.pricing == nil {
		httpx.WriteError(ctx, w, httpx.NewError("pricing_unavailable", "pricing service unavailable", http.StatusServiceUnavailable))
		return
	}

	rules, err := h.pricing.ListRules(ctx)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("pricing_unavailable", "failed to load delivery rules", http.StatusServiceUnavailable))
		return
	}

	items := make([]deliveryRulePayload, 0, len(rules))
	for _, rule := range rules {
		items = append(items, deliveryRulePayload{
			ID:            rule.ID,
			MinOrderValue: int64(rule.MinOrderValue),
			MaxOrderValue: int64(rule.MaxOrderValue),
			Charge:        int64(rule.Charge),
		})
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"rules": items})
}

type replaceDeliveryRulesRequest struct {
	Rules []deliveryRulePayload `json:"rules"`
}

func (h *AdminHandlers) replaceDeliveryRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.pricing == nil {
		httpx.WriteError(ctx, w, httpx.NewError("pricing_unavailable", "pricing service unavailable", http.StatusServiceUnavailable))
		return
	}

	data, err := readLimitedBody(r, maxAdminBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req replaceDeliveryRulesRequest
	if err := json.Unmarshal(data, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	rules := make([]domain.DeliveryRule, 0, len(req.Rules))
	for _, rule := range req.Rules {
		rules = append(rules, domain.DeliveryRule{
			ID:            rule.ID,
			MinOrderValue: domain.Money(rule.MinOrderValue),
			MaxOrderValue: domain.Money(rule.MaxOrderValue),
			Charge:        domain.Money(rule.Charge),
		})
	}

	if err := h.pricing.ReplaceRules(ctx, rules); err != nil {
		switch {
		case errors.Is(err, services.ErrPricingInvalidRules):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_rules", err.Error(), http.StatusBadRequest))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("pricing_unavailable", "failed to replace delivery rules", http.StatusServiceUnavailable))
		}
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"replaced": len(rules)})
}

func (h *AdminHandlers) listMessages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.contact == nil {
		httpx.WriteError(ctx, w, httpx.NewError("contact_service_unavailable", "contact service unavailable", http.StatusServiceUnavailable))
		return
	}

	pager, err := parsePagination(r, defaultAdminPageSize, maxAdminPageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.contact.List(ctx, pager)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("contact_service_unavailable", "failed to list messages", http.StatusServiceUnavailable))
		return
	}

	items := make([]contactMessagePayload, 0, len(page.Items))
	for _, message := range page.Items {
		items = append(items, buildContactMessagePayload(message))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"messages":      items,
		"nextPageToken": page.NextPageToken,
	})
}

func (h *AdminHandlers) markMessageRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.contact == nil {
		httpx.WriteError(ctx, w, httpx.NewError("contact_service_unavailable", "contact service unavailable", http.StatusServiceUnavailable))
		return
	}

	if err := h.contact.MarkRead(ctx, chi.URLParam(r, "messageID")); err != nil {
		switch {
		case errors.Is(err, services.ErrContactInvalidInput):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("contact_service_unavailable", "failed to update message", http.StatusServiceUnavailable))
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func buildVariantPayload(variant domain.Variant) variantPayload {
	payload := variantPayload{
		ID:            variant.ID,
		ProductName:   variant.ProductName,
		FlavourName:   variant.FlavourName,
		SizeLabel:     variant.SizeLabel,
		SKU:           variant.SKU,
		UnitPrice:     int64(variant.UnitPrice),
		StockQuantity: variant.StockQuantity,
		Active:        variant.Active,
	}
	if variant.MRP != nil {
		mrp := int64(*variant.MRP)
		payload.MRP = &mrp
	}
	return payload
}

func adminActor(ctx context.Context) string {
	if identity, ok := auth.IdentityFromContext(ctx); ok && identity != nil {
		if email := strings.TrimSpace(identity.Email); email != "" {
			return email
		}
		if uid := strings.TrimSpace(identity.UID); uid != "" {
			return uid
		}
	}
	return "admin"
}

func writeInventoryError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrInventoryInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrInventoryVariantNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("variant_not_found", "variant not found", http.StatusNotFound))
	case errors.Is(err, services.ErrInventoryUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("inventory_service_unavailable", "inventory service temporarily unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("inventory_error", "failed to process inventory request", http.StatusInternalServerError))
	}
}
