package repositories

import (
	"context"

	domain "github.com/makhaana-store/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Catalog() CatalogRepository
	Orders() OrderRepository
	Inventory() InventoryRepository
	DeliveryRules() DeliveryRuleRepository
	Messages() MessageRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// CatalogRepository reads purchasable variants and applies admin price edits.
// Stock mutation goes through InventoryRepository only.
type CatalogRepository interface {
	GetVariant(ctx context.Context, variantID string) (domain.Variant, error)
	// ListActiveVariants returns only active variants among the requested ids.
	// Missing or inactive ids are simply absent from the result.
	ListActiveVariants(ctx context.Context, variantIDs []string) ([]domain.Variant, error)
	ListVariants(ctx context.Context) ([]domain.Variant, error)
	UpdatePrice(ctx context.Context, variantID string, price domain.Money, mrp *domain.Money) (domain.Variant, error)
}

// OrderLine identifies one requested cart entry.
type OrderLine struct {
	VariantID string
	Quantity  int64
}

// PlaceOrderSpec carries everything the checkout transaction needs. The
// callbacks must be pure: Firestore may retry the transaction on contention
// and will invoke them again.
type PlaceOrderSpec struct {
	// NextOrderNumber produces a candidate order number. Called once per
	// transaction attempt; an AlreadyExists collision retries with a fresh
	// candidate.
	NextOrderNumber func() (string, error)
	UserID          *string
	Shipping        domain.ShippingDetails
	Items           []OrderLine
	// ResolveDeliveryCharge maps the computed subtotal to a delivery charge.
	ResolveDeliveryCharge func(subtotal domain.Money) (domain.Money, error)
	Discount              domain.Money
	InitialStatus         domain.OrderStatus
}

// ApplyPaymentSpec records a verified gateway payment against an order.
type ApplyPaymentSpec struct {
	OrderNumber       string
	Gateway           string
	ProviderOrderID   string
	ProviderPaymentID string
	Method            string
}

// OrderSortField names a field admin order listings may be ordered by.
type OrderSortField string

const (
	// OrderSortCreatedAt orders by placement time.
	OrderSortCreatedAt OrderSortField = "createdAt"
	// OrderSortTotal orders by the grand total in paise.
	OrderSortTotal OrderSortField = "total"
)

// OrderSort is the primary ordering of an admin listing. The zero value means
// newest first.
type OrderSort struct {
	Field OrderSortField
	Desc  bool
}

// OrderListFilter narrows admin order listings. Firestore requires the
// inequality field to be the primary order, so MinTotal/MaxTotal may only be
// combined with Sort on the total.
type OrderListFilter struct {
	Status   *domain.OrderStatus
	MinTotal *domain.Money
	MaxTotal *domain.Money
	Sort     OrderSort
	Pager    domain.Pagination
}

// OrderRepository owns the order aggregate: the atomic checkout write, status
// transitions, payment application, and read paths.
type OrderRepository interface {
	// PlaceOrder runs the whole checkout write set in one transaction:
	// load variants, check stock, freeze item snapshots, create the order,
	// decrement stock, and append ledger entries. Any failure leaves no
	// partial state behind.
	PlaceOrder(ctx context.Context, spec PlaceOrderSpec) (domain.Order, error)
	FindByNumber(ctx context.Context, orderNumber string) (domain.Order, error)
	ListByEmail(ctx context.Context, email string) ([]domain.Order, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	// UpdateStatus sets the current status and appends one history entry in
	// the same transaction.
	UpdateStatus(ctx context.Context, orderNumber string, status domain.OrderStatus, actor string) (domain.Order, error)
	ListStatusHistory(ctx context.Context, orderNumber string) ([]domain.StatusHistoryEntry, error)
	// ApplyPayment marks the order paid and records the payment. The payment
	// document is keyed by the provider payment id, so duplicate deliveries
	// collapse into a no-op; applied reports whether this call changed state.
	ApplyPayment(ctx context.Context, spec ApplyPaymentSpec) (order domain.Order, applied bool, err error)
	// LinkGuestOrders attaches userID to prior guest orders carrying the
	// email. Best-effort reconciliation outside the checkout transaction.
	LinkGuestOrders(ctx context.Context, email string, userID string) (int, error)
}

// StockAdjustment describes an administrative stock correction.
type StockAdjustment struct {
	VariantID   string
	NewQuantity int64
	Reason      domain.InventoryChangeReason
	Actor       string
}

// InventoryRepository maintains the append-only stock ledger and the live
// counters on variants.
type InventoryRepository interface {
	// AdjustStock sets the variant's stock to NewQuantity and appends a
	// ledger entry with delta = new - previous, transactionally.
	AdjustStock(ctx context.Context, adj StockAdjustment) (domain.Variant, domain.InventoryLogEntry, error)
	ListEntries(ctx context.Context, variantID string, pager domain.Pagination) (domain.CursorPage[domain.InventoryLogEntry], error)
	// CollectDrift reconciles ledger deltas plus initial stock against the
	// live counter for every variant and reports mismatches.
	CollectDrift(ctx context.Context) ([]domain.InventoryDrift, error)
}

// DeliveryRuleRepository stores the subtotal-to-charge rule table.
type DeliveryRuleRepository interface {
	List(ctx context.Context) ([]domain.DeliveryRule, error)
	// Replace swaps the whole rule table atomically.
	Replace(ctx context.Context, rules []domain.DeliveryRule) error
}

// MessageRepository stores customer contact messages.
type MessageRepository interface {
	Insert(ctx context.Context, message domain.ContactMessage) error
	List(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.ContactMessage], error)
	MarkRead(ctx context.Context, messageID string) error
}

// HealthRepository aggregates dependency probes for readiness checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
