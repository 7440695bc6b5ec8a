package services

import (
	"context"
	"time"

	domain "github.com/makhaana-store/api/internal/domain"
)

// Logger is the structured event sink services use for diagnostic output.
// Implementations typically forward to zap.
type Logger func(ctx context.Context, event string, fields map[string]any)

// EventPublisher emits order lifecycle events after state changes commit.
// Publish failures never fail the triggering request.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event) (string, error)
}

// CartLine is one requested item in a checkout.
type CartLine struct {
	VariantID string
	Quantity  int64
}

// PlaceOrderCommand carries the checkout request.
type PlaceOrderCommand struct {
	Items    []CartLine
	Shipping domain.ShippingDetails
	UserID   *string
}

// PlaceOrderResult reports the created order.
type PlaceOrderResult struct {
	Order domain.Order
}

// CheckoutService runs the atomic checkout transaction.
type CheckoutService interface {
	PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (PlaceOrderResult, error)
}

// PricingService resolves delivery charges and manages the rule table.
type PricingService interface {
	ResolveDeliveryCharge(ctx context.Context, subtotal domain.Money) (domain.Money, error)
	// ChargeResolver loads the rule table once and returns a pure resolver
	// safe to call repeatedly inside a storage transaction.
	ChargeResolver(ctx context.Context) (func(subtotal domain.Money) (domain.Money, error), error)
	ListRules(ctx context.Context) ([]domain.DeliveryRule, error)
	ReplaceRules(ctx context.Context, rules []domain.DeliveryRule) error
}

// TrackQuery selects orders by exact order number or by email.
type TrackQuery struct {
	OrderNumber string
	Email       string
}

// OrderView couples an order with its status history.
type OrderView struct {
	Order   domain.Order
	History []domain.StatusHistoryEntry
}

// TransitionStatusCommand requests an administrative status change.
type TransitionStatusCommand struct {
	OrderNumber string
	Status      domain.OrderStatus
	Actor       string
}

// AdminOrderFilter narrows back-office order listings. SortBy accepts
// "createdAt" (the default, newest first) or "total"; MinTotal and MaxTotal
// are in paise.
type AdminOrderFilter struct {
	Status    string
	MinTotal  *domain.Money
	MaxTotal  *domain.Money
	SortBy    string
	SortOrder domain.SortOrder
	PageSize  int
	PageToken string
}

// OrderService exposes tracking, listings, and the status machine.
type OrderService interface {
	Track(ctx context.Context, query TrackQuery) ([]OrderView, error)
	ListForUser(ctx context.Context, userID string) ([]domain.Order, error)
	List(ctx context.Context, filter AdminOrderFilter) (domain.CursorPage[domain.Order], error)
	TransitionStatus(ctx context.Context, cmd TransitionStatusCommand) (domain.Order, error)
}

// CreateGatewayOrderCommand asks a payment provider for a gateway order.
type CreateGatewayOrderCommand struct {
	OrderNumber string
	Provider    string
	Metadata    map[string]string
}

// GatewayOrder describes the provider-side order the client widget needs.
type GatewayOrder struct {
	Provider        string
	ProviderOrderID string
	Amount          domain.Money
	Currency        string
	KeyID           string
}

// VerifyPaymentCommand carries a client-side payment confirmation.
type VerifyPaymentCommand struct {
	OrderNumber       string
	Provider          string
	ProviderOrderID   string
	ProviderPaymentID string
	Signature         string
	Method            string
}

// ConfirmPaymentCommand carries a server-to-server (webhook) confirmation
// whose transport authenticity was already verified by middleware.
type ConfirmPaymentCommand struct {
	OrderNumber       string
	Provider          string
	ProviderOrderID   string
	ProviderPaymentID string
	Method            string
}

// PaymentResult reports the post-application order state.
type PaymentResult struct {
	Order   domain.Order
	Applied bool
}

// PaymentService creates gateway orders and reconciles confirmations.
type PaymentService interface {
	CreateGatewayOrder(ctx context.Context, cmd CreateGatewayOrderCommand) (GatewayOrder, error)
	VerifyAndApply(ctx context.Context, cmd VerifyPaymentCommand) (PaymentResult, error)
	ApplyConfirmation(ctx context.Context, cmd ConfirmPaymentCommand) (PaymentResult, error)
}

// AdjustStockCommand requests an administrative stock correction.
type AdjustStockCommand struct {
	VariantID   string
	NewQuantity int64
	Actor       string
}

// UpdateVariantCommand updates price and/or stock on a variant.
type UpdateVariantCommand struct {
	VariantID string
	Price     *domain.Money
	MRP       *domain.Money
	Stock     *int64
	Actor     string
}

// InventoryService owns the stock ledger and admin variant edits.
type InventoryService interface {
	AdjustStock(ctx context.Context, cmd AdjustStockCommand) (domain.Variant, domain.InventoryLogEntry, error)
	UpdateVariant(ctx context.Context, cmd UpdateVariantCommand) (domain.Variant, error)
	ListLedger(ctx context.Context, variantID string, pager domain.Pagination) (domain.CursorPage[domain.InventoryLogEntry], error)
	AuditLedger(ctx context.Context) ([]domain.InventoryDrift, error)
}

// SubmitMessageCommand carries a storefront contact enquiry.
type SubmitMessageCommand struct {
	Name    string
	Email   string
	Phone   string
	Subject string
	Message string
}

// ContactService stores and lists customer enquiries.
type ContactService interface {
	Submit(ctx context.Context, cmd SubmitMessageCommand) (domain.ContactMessage, error)
	List(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.ContactMessage], error)
	MarkRead(ctx context.Context, messageID string) error
}

// BuildInfo captures runtime metadata exposed via health endpoints.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// SystemHealthReport extends the repository health report with build metadata.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]domain.SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}

// SystemService aggregates readiness reporting.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}
