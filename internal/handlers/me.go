package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/makhaana-store/api/internal/platform/auth"
	"github.com/makhaana-store/api/internal/platform/httpx"
	"github.com/makhaana-store/api/internal/services"
)

// MeHandlers exposes endpoints scoped to the authenticated customer.
type MeHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewMeHandlers constructs a new MeHandlers instance.
func NewMeHandlers(authn *auth.Authenticator, orders services.OrderService) *MeHandlers {
	return &MeHandlers{authn: authn, orders: orders}
}

// Routes registers the /me endpoints.
func (h *MeHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/orders", h.listOrders)
	r.Get("/profile", h.profile)
}

// profile returns the customer's account details. The Firebase record is
// loaded lazily; when no profile loader is wired the response carries the
// token claims alone.
func (h *MeHandlers) profile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	payload := map[string]any{
		"uid":   identity.UID,
		"email": identity.Email,
		"roles": identity.Roles,
	}
	record, err := identity.User(ctx)
	switch {
	case errors.Is(err, auth.ErrUserLoaderUnavailable):
	case err != nil:
		httpx.WriteError(ctx, w, httpx.NewError("profile_unavailable", "unable to load account profile", http.StatusServiceUnavailable))
		return
	case record != nil && record.UserInfo != nil:
		payload["displayName"] = record.DisplayName
		payload["phoneNumber"] = record.PhoneNumber
		payload["emailVerified"] = record.EmailVerified
		if identity.Email == "" {
			payload["email"] = record.Email
		}
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *MeHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	orders, err := h.orders.ListForUser(ctx, identity.UID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderPayload, 0, len(orders))
	for _, order := range orders {
		items = append(items, buildOrderPayload(order))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"orders": items})
}
