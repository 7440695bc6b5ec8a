package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// Money is an amount in minor currency units (paise for INR). All monetary
// arithmetic in the engine happens on this type; rupee values are converted
// at the storage boundary.
type Money int64

// Rupees returns the whole-rupee part of the amount.
func (m Money) Rupees() int64 { return int64(m) / 100 }

// MoneyFromRupees converts a whole-rupee amount to minor units.
func MoneyFromRupees(r int64) Money { return Money(r * 100) }

// Variant is a purchasable combination of product, flavour, and packet size.
// The order engine reads everything except StockQuantity as immutable; stock
// is owned by the inventory ledger.
type Variant struct {
	ID            string
	ProductName   string
	FlavourName   string
	SizeLabel     string
	SKU           string
	UnitPrice     Money
	MRP           *Money
	StockQuantity int64
	InitialStock  int64
	Active        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// OrderStatus enumerates fulfillment states for an order.
type OrderStatus string

const (
	// OrderStatusPending indicates the order awaits payment confirmation.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed indicates payment completed and fulfillment may begin.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusProcessing indicates the order is being packed.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped indicates the order left the warehouse.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusOutForDelivery indicates last-mile delivery is underway.
	OrderStatusOutForDelivery OrderStatus = "out_for_delivery"
	// OrderStatusDelivered indicates the order reached the customer. Terminal.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled indicates the order was abandoned or rejected. Terminal.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Terminal reports whether no further status change is allowed.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// Valid reports whether the status is one of the defined values.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing,
		OrderStatusShipped, OrderStatusOutForDelivery, OrderStatusDelivered,
		OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// PaymentStatus enumerates payment states for an order.
type PaymentStatus string

const (
	// PaymentStatusPending indicates no successful payment yet.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusPaid indicates a verified successful payment.
	PaymentStatusPaid PaymentStatus = "paid"
	// PaymentStatusFailed indicates the last payment attempt failed.
	PaymentStatusFailed PaymentStatus = "failed"
)

// ShippingDetails holds the contact and delivery address captured at checkout.
type ShippingDetails struct {
	FullName     string
	Phone        string
	Email        string
	AddressLine1 string
	AddressLine2 string
	City         string
	State        string
	Pincode      string
}

// OrderItem is a frozen snapshot of a variant at order time. Snapshot fields
// are copies, never references, so later catalog edits cannot alter history.
type OrderItem struct {
	ID          string
	VariantID   string
	ProductName string
	FlavourName string
	SizeLabel   string
	SKU         string
	UnitPrice   Money
	Quantity    int64
	LineTotal   Money
}

// Order is the aggregate root persisted by checkout. Totals and items are
// immutable after creation; only status fields and the user link may change.
type Order struct {
	OrderNumber    string
	UserID         *string
	Shipping       ShippingDetails
	Items          []OrderItem
	Subtotal       Money
	DeliveryCharge Money
	Discount       Money
	Total          Money
	Status         OrderStatus
	PaymentStatus  PaymentStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// StatusHistoryEntry records one status transition on an order.
type StatusHistoryEntry struct {
	ID        string
	Status    OrderStatus
	ChangedBy string
	ChangedAt time.Time
}

// Payment records one payment attempt against an order. At most one entry
// per order reaches "success".
type Payment struct {
	ID                string
	OrderNumber       string
	Gateway           string
	ProviderOrderID   string
	ProviderPaymentID string
	Method            string
	Amount            Money
	Status            string
	CreatedAt         time.Time
}

// InventoryChangeReason classifies entries in the inventory ledger.
type InventoryChangeReason string

const (
	// InventoryReasonOrderPlaced marks a decrement caused by checkout.
	InventoryReasonOrderPlaced InventoryChangeReason = "order_placed"
	// InventoryReasonAdminAdjustment marks a manual stock correction.
	InventoryReasonAdminAdjustment InventoryChangeReason = "admin_adjustment"
	// InventoryReasonOrderCancelled marks stock returned by a cancellation.
	InventoryReasonOrderCancelled InventoryChangeReason = "order_cancelled"
)

// InventoryLogEntry is one append-only record of a stock change.
type InventoryLogEntry struct {
	ID            string
	VariantID     string
	Delta         int64
	Reason        InventoryChangeReason
	ReferenceType string
	ReferenceID   string
	Actor         string
	CreatedAt     time.Time
}

// DeliveryRule maps an inclusive subtotal range to a flat delivery charge.
// MaxOrderValue zero marks the range open ended, so a table like
// [0,19999] [20000,49999] [50000,0] covers every subtotal.
type DeliveryRule struct {
	ID            string
	MinOrderValue Money
	MaxOrderValue Money
	Charge        Money
}

// OpenEnded reports whether the rule has no upper bound.
func (r DeliveryRule) OpenEnded() bool {
	return r.MaxOrderValue == 0
}

// Contains reports whether the subtotal falls inside the rule's range.
func (r DeliveryRule) Contains(subtotal Money) bool {
	if subtotal < r.MinOrderValue {
		return false
	}
	return r.OpenEnded() || subtotal <= r.MaxOrderValue
}

// ContactMessage is a customer enquiry captured by the storefront.
type ContactMessage struct {
	ID        string
	Name      string
	Email     string
	Phone     string
	Subject   string
	Message   string
	Read      bool
	CreatedAt time.Time
}

// InventoryDrift reports a mismatch between the ledger and the live stock
// counter for one variant.
type InventoryDrift struct {
	VariantID     string
	SKU           string
	InitialStock  int64
	LedgerDelta   int64
	ExpectedStock int64
	ActualStock   int64
}

// CursorPage wraps a page of results with the token for the next page.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// HealthStatus describes the outcome of a dependency probe.
type HealthStatus string

const (
	// HealthStatusOK indicates the dependency responded normally.
	HealthStatusOK HealthStatus = "ok"
	// HealthStatusDegraded indicates the dependency responded with an error.
	HealthStatusDegraded HealthStatus = "degraded"
	// HealthStatusError indicates the dependency timed out or was unreachable.
	HealthStatusError HealthStatus = "error"
)

// SystemHealthCheck captures one dependency probe result.
type SystemHealthCheck struct {
	Status    HealthStatus
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency probes for readiness reporting.
type SystemHealthReport struct {
	Status      HealthStatus
	Checks      map[string]SystemHealthCheck
	GeneratedAt time.Time
}

// Event is a lifecycle notification published after a state change commits.
type Event struct {
	ID         string
	Type       string
	OccurredAt time.Time
	Payload    map[string]any
}
