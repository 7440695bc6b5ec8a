package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/makhaana-store/api/internal/platform/httpx"
	"github.com/makhaana-store/api/internal/services"
)

const maxWebhookBodySize = 256 * 1024

// WebhookHandlers receives server-to-server payment notifications. Transport
// authenticity (HMAC over the raw body) is enforced by group middleware before
// these handlers run.
type WebhookHandlers struct {
	payments services.PaymentService
	logger   services.Logger
}

// NewWebhookHandlers constructs a new WebhookHandlers instance.
func NewWebhookHandlers(payments services.PaymentService, logger services.Logger) *WebhookHandlers {
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &WebhookHandlers{payments: payments, logger: logger}
}

// Routes registers the /webhooks endpoints.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/payments/{provider}", h.handlePaymentEvent)
}

type webhookPaymentEntity struct {
	ID      string            `json:"id"`
	OrderID string            `json:"order_id"`
	Method  string            `json:"method"`
	Notes   map[string]string `json:"notes"`
}

type webhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity webhookPaymentEntity `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// capturedEvents are the notifications that mark an order as paid. Everything
// else is acknowledged and dropped.
var capturedEvents = map[string]struct{}{
	"payment.captured": {},
	"order.paid":       {},
}

func (h *WebhookHandlers) handlePaymentEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}

	provider := strings.TrimSpace(chi.URLParam(r, "provider"))

	data, err := readLimitedBody(r, maxWebhookBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var event webhookEvent
	if err := json.Unmarshal(data, &event); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "event body must be valid JSON", http.StatusBadRequest))
		return
	}

	if _, ok := capturedEvents[strings.TrimSpace(event.Event)]; !ok {
		h.logger(ctx, "webhooks.event_ignored", map[string]any{
			"provider": provider,
			"event":    event.Event,
		})
		writeJSONResponse(w, http.StatusOK, map[string]any{"status": "ignored"})
		return
	}

	entity := event.Payload.Payment.Entity
	orderNumber := strings.TrimSpace(entity.Notes["order_number"])
	if orderNumber == "" || entity.ID == "" || entity.OrderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "event payload is missing payment identifiers", http.StatusBadRequest))
		return
	}

	result, err := h.payments.ApplyConfirmation(ctx, services.ConfirmPaymentCommand{
		OrderNumber:       orderNumber,
		Provider:          provider,
		ProviderOrderID:   entity.OrderID,
		ProviderPaymentID: entity.ID,
		Method:            entity.Method,
	})
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"applied": result.Applied,
	})
}
