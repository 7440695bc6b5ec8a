package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/makhaana-store/api/internal/domain"
	"github.com/makhaana-store/api/internal/platform/httpx"
	"github.com/makhaana-store/api/internal/services"
)

const maxContactBodySize = 16 * 1024

// ContactHandlers exposes the storefront contact endpoint.
type ContactHandlers struct {
	contact services.ContactService
}

// NewContactHandlers constructs a new ContactHandlers instance.
func NewContactHandlers(contact services.ContactService) *ContactHandlers {
	return &ContactHandlers{contact: contact}
}

// Routes registers the public contact endpoint directly on the API group.
func (h *ContactHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/contact", h.submitMessage)
}

type submitMessageRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone,omitempty"`
	Subject string `json:"subject,omitempty"`
	Message string `json:"message"`
}

type contactMessagePayload struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
	Subject   string `json:"subject,omitempty"`
	Message   string `json:"message"`
	Read      bool   `json:"read"`
	CreatedAt string `json:"createdAt,omitempty"`
}

func (h *ContactHandlers) submitMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.contact == nil {
		httpx.WriteError(ctx, w, httpx.NewError("contact_service_unavailable", "contact service unavailable", http.StatusServiceUnavailable))
		return
	}

	data, err := readLimitedBody(r, maxContactBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req submitMessageRequest
	if err := json.Unmarshal(data, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	message, err := h.contact.Submit(ctx, services.SubmitMessageCommand{
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		Subject: req.Subject,
		Message: req.Message,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrContactInvalidInput):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("contact_error", "failed to submit message", http.StatusInternalServerError))
		}
		return
	}

	writeJSONResponse(w, http.StatusCreated, buildContactMessagePayload(message))
}

func buildContactMessagePayload(message domain.ContactMessage) contactMessagePayload {
	payload := contactMessagePayload{
		ID:      message.ID,
		Name:    message.Name,
		Email:   message.Email,
		Phone:   message.Phone,
		Subject: message.Subject,
		Message: message.Message,
		Read:    message.Read,
	}
	if !message.CreatedAt.IsZero() {
		payload.CreatedAt = message.CreatedAt.UTC().Format(time.RFC3339)
	}
	return payload
}
