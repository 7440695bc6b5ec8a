package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/makhaana-store/api/internal/domain"
	"github.com/makhaana-store/api/internal/platform/auth"
	"github.com/makhaana-store/api/internal/platform/httpx"
	"github.com/makhaana-store/api/internal/services"
)

const maxPlaceOrderBodySize = 32 * 1024

// CheckoutHandlers exposes the storefront checkout and tracking endpoints.
type CheckoutHandlers struct {
	checkout services.CheckoutService
	orders   services.OrderService
	pricing  services.PricingService
}

// NewCheckoutHandlers constructs a new CheckoutHandlers instance.
func NewCheckoutHandlers(checkout services.CheckoutService, orders services.OrderService, pricing services.PricingService) *CheckoutHandlers {
	return &CheckoutHandlers{
		checkout: checkout,
		orders:   orders,
		pricing:  pricing,
	}
}

// Routes registers the public checkout endpoints directly on the API group.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/orders", h.placeOrder)
	r.Get("/orders/track", h.trackOrders)
	r.Get("/delivery/charge", h.deliveryCharge)
}

type cartLinePayload struct {
	VariantID string `json:"variantId"`
	Quantity  int64  `json:"quantity"`
}

type shippingPayload struct {
	FullName     string `json:"fullName"`
	Phone        string `json:"phone"`
	Email        string `json:"email"`
	AddressLine1 string `json:"addressLine1"`
	AddressLine2 string `json:"addressLine2,omitempty"`
	City         string `json:"city"`
	State        string `json:"state"`
	Pincode      string `json:"pincode"`
}

type placeOrderRequest struct {
	Items    []cartLinePayload `json:"items"`
	Shipping shippingPayload   `json:"shipping"`
}

type orderItemPayload struct {
	VariantID   string `json:"variantId"`
	ProductName string `json:"productName"`
	FlavourName string `json:"flavourName,omitempty"`
	SizeLabel   string `json:"sizeLabel,omitempty"`
	UnitPrice   int64  `json:"unitPrice"`
	Quantity    int64  `json:"quantity"`
	LineTotal   int64  `json:"lineTotal"`
}

type orderPayload struct {
	OrderNumber    string             `json:"orderNumber"`
	Status         string             `json:"status"`
	PaymentStatus  string             `json:"paymentStatus"`
	Shipping       shippingPayload    `json:"shipping"`
	Items          []orderItemPayload `json:"items"`
	Subtotal       int64              `json:"subtotal"`
	DeliveryCharge int64              `json:"deliveryCharge"`
	Discount       int64              `json:"discount,omitempty"`
	Total          int64              `json:"total"`
	CreatedAt      string             `json:"createdAt,omitempty"`
}

type statusHistoryPayload struct {
	Status    string `json:"status"`
	ChangedBy string `json:"changedBy,omitempty"`
	ChangedAt string `json:"changedAt,omitempty"`
}

type trackedOrderPayload struct {
	orderPayload
	History []statusHistoryPayload `json:"history"`
}

func (h *CheckoutHandlers) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}

	data, err := readLimitedBody(r, maxPlaceOrderBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req placeOrderRequest
	if err := json.Unmarshal(data, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	cmd := services.PlaceOrderCommand{
		Shipping: domain.ShippingDetails{
			FullName:     req.Shipping.FullName,
			Phone:        req.Shipping.Phone,
			Email:        req.Shipping.Email,
			AddressLine1: req.Shipping.AddressLine1,
			AddressLine2: req.Shipping.AddressLine2,
			City:         req.Shipping.City,
			State:        req.Shipping.State,
			Pincode:      req.Shipping.Pincode,
		},
	}
	for _, item := range req.Items {
		cmd.Items = append(cmd.Items, services.CartLine{VariantID: item.VariantID, Quantity: item.Quantity})
	}
	if identity, ok := auth.IdentityFromContext(ctx); ok && identity != nil {
		if uid := strings.TrimSpace(identity.UID); uid != "" {
			cmd.UserID = &uid
		}
	}

	result, err := h.checkout.PlaceOrder(ctx, cmd)
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, buildOrderPayload(result.Order))
}

func (h *CheckoutHandlers) trackOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	views, err := h.orders.Track(ctx, services.TrackQuery{
		OrderNumber: query.Get("orderNumber"),
		Email:       query.Get("email"),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]trackedOrderPayload, 0, len(views))
	for _, view := range views {
		payload := trackedOrderPayload{orderPayload: buildOrderPayload(view.Order)}
		for _, entry := range view.History {
			historyEntry := statusHistoryPayload{
				Status:    string(entry.Status),
				ChangedBy: entry.ChangedBy,
			}
			if !entry.ChangedAt.IsZero() {
				historyEntry.ChangedAt = entry.ChangedAt.UTC().Format(time.RFC3339)
			}
			payload.History = append(payload.History, historyEntry)
		}
		items = append(items, payload)
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{"orders": items})
}

func (h *CheckoutHandlers) deliveryCharge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.pricing == nil {
		httpx.WriteError(ctx, w, httpx.NewError("pricing_unavailable", "pricing service unavailable", http.StatusServiceUnavailable))
		return
	}

	raw := strings.TrimSpace(r.URL.Query().Get("subtotal"))
	subtotal, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || subtotal < 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "subtotal must be a non-negative amount in paise", http.StatusBadRequest))
		return
	}

	charge, err := h.pricing.ResolveDeliveryCharge(ctx, domain.Money(subtotal))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("pricing_unavailable", "failed to resolve delivery charge", http.StatusServiceUnavailable))
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"subtotal":       subtotal,
		"deliveryCharge": int64(charge),
		"total":          subtotal + int64(charge),
	})
}

func buildOrderPayload(order domain.Order) orderPayload {
	payload := orderPayload{
		OrderNumber:   order.OrderNumber,
		Status:        string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		Shipping: shippingPayload{
			FullName:     order.Shipping.FullName,
			Phone:        order.Shipping.Phone,
			Email:        order.Shipping.Email,
			AddressLine1: order.Shipping.AddressLine1,
			AddressLine2: order.Shipping.AddressLine2,
			City:         order.Shipping.City,
			State:        order.Shipping.State,
			Pincode:      order.Shipping.Pincode,
		},
		Subtotal:       int64(order.Subtotal),
		DeliveryCharge: int64(order.DeliveryCharge),
		Discount:       int64(order.Discount),
		Total:          int64(order.Total),
	}
	if !order.CreatedAt.IsZero() {
		payload.CreatedAt = order.CreatedAt.UTC().Format(time.RFC3339)
	}
	for _, item := range order.Items {
		payload.Items = append(payload.Items, orderItemPayload{
			VariantID:   item.VariantID,
			ProductName: item.ProductName,
			FlavourName: item.FlavourName,
			SizeLabel:   item.SizeLabel,
			UnitPrice:   int64(item.UnitPrice),
			Quantity:    item.Quantity,
			LineTotal:   int64(item.LineTotal),
		})
	}
	return payload
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errEmptyBody):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("request_too_large", "request body exceeds limit", http.StatusRequestEntityTooLarge))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "failed to read request body", http.StatusBadRequest))
	}
}

func writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCheckoutEmptyCart):
		httpx.WriteError(ctx, w, httpx.NewError("empty_cart", "cart must contain at least one item", http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutInvalidVariant):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_variant", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrCheckoutInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout temporarily unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("checkout_error", "failed to place order", http.StatusInternalServerError))
	}
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderInvalidStatus):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_status", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service temporarily unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}
