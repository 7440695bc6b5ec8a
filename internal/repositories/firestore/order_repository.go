package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/makhaana-store/api/internal/domain"
	pfirestore "github.com/makhaana-store/api/internal/platform/firestore"
	"github.com/makhaana-store/api/internal/repositories"
)

const (
	ordersCollection        = "orders"
	orderItemsCollection    = "items"
	statusHistoryCollection = "statusHistory"
	orderPaymentsCollection = "payments"

	maxOrderNumberAttempts = 5
	defaultOrderPageSize   = 25
	maxOrderPageSize       = 100

	paymentRecordSuccess = "success"
)

var errOrderNumberCollision = errors.New("order number already taken")

type shippingDocument struct {
	FullName     string `firestore:"fullName"`
	Phone        string `firestore:"phone"`
	Email        string `firestore:"email"`
	AddressLine1 string `firestore:"addressLine1"`
	AddressLine2 string `firestore:"addressLine2,omitempty"`
	City         string `firestore:"city"`
	State        string `firestore:"state"`
	Pincode      string `firestore:"pincode"`
}

type orderDocument struct {
	UserID         string           `firestore:"userId"`
	Email          string           `firestore:"email"`
	Shipping       shippingDocument `firestore:"shipping"`
	Subtotal       int64            `firestore:"subtotal"`
	DeliveryCharge int64            `firestore:"deliveryCharge"`
	Discount       int64            `firestore:"discount"`
	Total          int64            `firestore:"total"`
	Status         string           `firestore:"status"`
	PaymentStatus  string           `firestore:"paymentStatus"`
	CreatedAt      time.Time        `firestore:"createdAt"`
	UpdatedAt      time.Time        `firestore:"updatedAt"`
}

type orderItemDocument struct {
	VariantID   string `firestore:"variantId"`
	ProductName string `firestore:"productName"`
	FlavourName string `firestore:"flavourName"`
	SizeLabel   string `firestore:"sizeLabel"`
	SKU         string `firestore:"sku"`
	UnitPrice   int64  `firestore:"unitPrice"`
	Quantity    int64  `firestore:"quantity"`
	LineTotal   int64  `firestore:"lineTotal"`
}

type statusHistoryDocument struct {
	Status    string    `firestore:"status"`
	ChangedBy string    `firestore:"changedBy"`
	ChangedAt time.Time `firestore:"changedAt"`
}

type paymentDocument struct {
	Gateway           string    `firestore:"gateway"`
	ProviderOrderID   string    `firestore:"providerOrderId"`
	ProviderPaymentID string    `firestore:"providerPaymentId"`
	Method            string    `firestore:"method"`
	Amount            int64     `firestore:"amount"`
	Status            string    `firestore:"status"`
	CreatedAt         time.Time `firestore:"createdAt"`
}

func (d orderDocument) toDomain(orderNumber string, items []domain.OrderItem) domain.Order {
	order := domain.Order{
		OrderNumber: orderNumber,
		Shipping: domain.ShippingDetails{
			FullName:     d.Shipping.FullName,
			Phone:        d.Shipping.Phone,
			Email:        d.Shipping.Email,
			AddressLine1: d.Shipping.AddressLine1,
			AddressLine2: d.Shipping.AddressLine2,
			City:         d.Shipping.City,
			State:        d.Shipping.State,
			Pincode:      d.Shipping.Pincode,
		},
		Items:          items,
		Subtotal:       domain.Money(d.Subtotal),
		DeliveryCharge: domain.Money(d.DeliveryCharge),
		Discount:       domain.Money(d.Discount),
		Total:          domain.Money(d.Total),
		Status:         domain.OrderStatus(d.Status),
		PaymentStatus:  domain.PaymentStatus(d.PaymentStatus),
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
	if d.UserID != "" {
		userID := d.UserID
		order.UserID = &userID
	}
	return order
}

func (d orderItemDocument) toDomain(id string) domain.OrderItem {
	return domain.OrderItem{
		ID:          id,
		VariantID:   d.VariantID,
		ProductName: d.ProductName,
		FlavourName: d.FlavourName,
		SizeLabel:   d.SizeLabel,
		SKU:         d.SKU,
		UnitPrice:   domain.Money(d.UnitPrice),
		Quantity:    d.Quantity,
		LineTotal:   domain.Money(d.LineTotal),
	}
}

// OrderRepository owns the order aggregate and its subcollections.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.Collection[orderDocument]
	variants *pfirestore.Collection[variantDocument]
}

// NewOrderRepository constructs a Firestore backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	orders := pfirestore.NewCollection[orderDocument](provider, ordersCollection)
	variants := pfirestore.NewCollection[variantDocument](provider, variantsCollection)
	return &OrderRepository{provider: provider, orders: orders, variants: variants}, nil
}

// PlaceOrder executes the whole checkout write set in one transaction. The
// transaction reads every requested variant, validates activity and stock,
// freezes item snapshots, creates the order, decrements stock, and appends
// one ledger entry per line. A colliding order number retries with a fresh
// candidate; everything else aborts without partial state.
func (r *OrderRepository) PlaceOrder(ctx context.Context, spec repositories.PlaceOrderSpec) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	if spec.NextOrderNumber == nil {
		return domain.Order{}, errors.New("order place: order number generator is required")
	}
	if spec.ResolveDeliveryCharge == nil {
		return domain.Order{}, errors.New("order place: delivery charge resolver is required")
	}
	if len(spec.Items) == 0 {
		return domain.Order{}, repositories.NewCheckoutError(repositories.CheckoutErrorInvalidVariant, "order place: no items", nil)
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Order{}, err
	}

	var placed domain.Order
	for attempt := 0; attempt < maxOrderNumberAttempts; attempt++ {
		orderNumber, err := spec.NextOrderNumber()
		if err != nil {
			return domain.Order{}, fmt.Errorf("order place: generate order number: %w", err)
		}
		orderNumber = strings.TrimSpace(orderNumber)
		if orderNumber == "" {
			return domain.Order{}, errors.New("order place: empty order number generated")
		}

		placed, err = r.placeOrderOnce(ctx, client, orderNumber, spec)
		if err == nil {
			return placed, nil
		}
		if errors.Is(err, errOrderNumberCollision) {
			continue
		}
		return domain.Order{}, err
	}

	return domain.Order{}, repositories.NewCheckoutError(repositories.CheckoutErrorNumberExhausted,
		fmt.Sprintf("order place: gave up after %d order number collisions", maxOrderNumberAttempts), nil)
}

func (r *OrderRepository) placeOrderOnce(ctx context.Context, client *firestore.Client, orderNumber string, spec repositories.PlaceOrderSpec) (domain.Order, error) {
	var result domain.Order

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		now := time.Now().UTC()
		orderRef := client.Collection(ordersCollection).Doc(orderNumber)

		// Reads first: order number availability, then every variant.
		if _, err := tx.Get(orderRef); err == nil {
			return errOrderNumberCollision
		} else if status.Code(err) != codes.NotFound {
			return err
		}

		seen := make(map[string]struct{}, len(spec.Items))
		type loadedLine struct {
			ref  *firestore.DocumentRef
			doc  variantDocument
			line repositories.OrderLine
		}
		lines := make([]loadedLine, 0, len(spec.Items))
		for _, line := range spec.Items {
			variantID := strings.TrimSpace(line.VariantID)
			if variantID == "" || line.Quantity <= 0 {
				return repositories.NewCheckoutError(repositories.CheckoutErrorInvalidVariant,
					fmt.Sprintf("order place: invalid line for variant %q", line.VariantID), nil)
			}
			if _, dup := seen[variantID]; dup {
				return repositories.NewCheckoutError(repositories.CheckoutErrorInvalidVariant,
					fmt.Sprintf("order place: duplicate variant %s", variantID), nil)
			}
			seen[variantID] = struct{}{}

			variantRef := client.Collection(variantsCollection).Doc(variantID)
			snap, err := tx.Get(variantRef)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					return repositories.NewCheckoutError(repositories.CheckoutErrorInvalidVariant,
						fmt.Sprintf("order place: variant %s not found", variantID), err)
				}
				return err
			}
			var doc variantDocument
			if err := snap.DataTo(&doc); err != nil {
				return fmt.Errorf("decode variant %s: %w", variantID, err)
			}
			if !doc.Active {
				return repositories.NewCheckoutError(repositories.CheckoutErrorInvalidVariant,
					fmt.Sprintf("order place: variant %s is inactive", variantID), nil)
			}
			if doc.StockQuantity < line.Quantity {
				return &repositories.CheckoutError{
					Code:        repositories.CheckoutErrorInsufficientStock,
					Message:     fmt.Sprintf("order place: insufficient stock for %s", doc.ProductName),
					ProductName: doc.ProductName,
				}
			}
			lines = append(lines, loadedLine{ref: variantRef, doc: doc, line: repositories.OrderLine{VariantID: variantID, Quantity: line.Quantity}})
		}

		var subtotal int64
		items := make([]orderItemDocument, 0, len(lines))
		for _, loaded := range lines {
			lineTotal := loaded.doc.UnitPrice * loaded.line.Quantity
			subtotal += lineTotal
			items = append(items, orderItemDocument{
				VariantID:   loaded.line.VariantID,
				ProductName: loaded.doc.ProductName,
				FlavourName: loaded.doc.FlavourName,
				SizeLabel:   loaded.doc.SizeLabel,
				SKU:         loaded.doc.SKU,
				UnitPrice:   loaded.doc.UnitPrice,
				Quantity:    loaded.line.Quantity,
				LineTotal:   lineTotal,
			})
		}

		deliveryCharge, err := spec.ResolveDeliveryCharge(domain.Money(subtotal))
		if err != nil {
			return fmt.Errorf("order place: resolve delivery charge: %w", err)
		}
		discount := int64(spec.Discount)
		total := subtotal + int64(deliveryCharge) - discount

		initialStatus := spec.InitialStatus
		if !initialStatus.Valid() {
			initialStatus = domain.OrderStatusPending
		}

		userID := ""
		if spec.UserID != nil {
			userID = strings.TrimSpace(*spec.UserID)
		}
		orderDoc := orderDocument{
			UserID: userID,
			Email:  strings.ToLower(strings.TrimSpace(spec.Shipping.Email)),
			Shipping: shippingDocument{
				FullName:     spec.Shipping.FullName,
				Phone:        spec.Shipping.Phone,
				Email:        spec.Shipping.Email,
				AddressLine1: spec.Shipping.AddressLine1,
				AddressLine2: spec.Shipping.AddressLine2,
				City:         spec.Shipping.City,
				State:        spec.Shipping.State,
				Pincode:      spec.Shipping.Pincode,
			},
			Subtotal:       subtotal,
			DeliveryCharge: int64(deliveryCharge),
			Discount:       discount,
			Total:          total,
			Status:         string(initialStatus),
			PaymentStatus:  string(domain.PaymentStatusPending),
			CreatedAt:      now,
			UpdatedAt:      now,
		}

		// Writes: order, items, stock decrements, ledger entries, history.
		if err := tx.Create(orderRef, orderDoc); err != nil {
			if status.Code(err) == codes.AlreadyExists {
				return errOrderNumberCollision
			}
			return err
		}

		domainItems := make([]domain.OrderItem, 0, len(items))
		for _, item := range items {
			itemRef := orderRef.Collection(orderItemsCollection).NewDoc()
			if err := tx.Create(itemRef, item); err != nil {
				return err
			}
			domainItems = append(domainItems, item.toDomain(itemRef.ID))
		}

		for i, loaded := range lines {
			doc := loaded.doc
			doc.StockQuantity -= items[i].Quantity
			doc.UpdatedAt = now
			if err := tx.Set(loaded.ref, doc); err != nil {
				return err
			}

			logRef := client.Collection(inventoryLogsCollection).NewDoc()
			entry := inventoryLogDocument{
				VariantID:     loaded.line.VariantID,
				Delta:         -items[i].Quantity,
				Reason:        string(domain.InventoryReasonOrderPlaced),
				ReferenceType: "order",
				ReferenceID:   orderNumber,
				CreatedAt:     now,
			}
			if err := tx.Create(logRef, entry); err != nil {
				return err
			}
		}

		historyRef := orderRef.Collection(statusHistoryCollection).NewDoc()
		if err := tx.Create(historyRef, statusHistoryDocument{
			Status:    string(initialStatus),
			ChangedBy: "system",
			ChangedAt: now,
		}); err != nil {
			return err
		}

		result = orderDoc.toDomain(orderNumber, domainItems)
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return result, nil
}

// FindByNumber loads an order with its item snapshots.
func (r *OrderRepository) FindByNumber(ctx context.Context, orderNumber string) (domain.Order, error) {
	if r == nil || r.orders == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderNumber = strings.TrimSpace(orderNumber)
	doc, err := r.orders.Get(ctx, orderNumber)
	if err != nil {
		return domain.Order{}, err
	}
	items, err := r.loadItems(ctx, orderNumber)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID, items), nil
}

func (r *OrderRepository) loadItems(ctx context.Context, orderNumber string) ([]domain.OrderItem, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	iter := client.Collection(ordersCollection).Doc(orderNumber).Collection(orderItemsCollection).Documents(ctx)
	defer iter.Stop()

	var items []domain.OrderItem
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("orders.items", err)
		}
		var item orderItemDocument
		if err := snap.DataTo(&item); err != nil {
			return nil, fmt.Errorf("decode order item %s: %w", snap.Ref.ID, err)
		}
		items = append(items, item.toDomain(snap.Ref.ID))
	}
	return items, nil
}

// ListByEmail returns all orders carrying the email, newest first.
func (r *OrderRepository) ListByEmail(ctx context.Context, email string) ([]domain.Order, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, errors.New("order list: email is required")
	}
	return r.listOrders(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("email", "==", email).OrderBy("createdAt", firestore.Desc)
	})
}

// ListByUser returns all orders linked to the user, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.New("order list: user id is required")
	}
	return r.listOrders(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("userId", "==", userID).OrderBy("createdAt", firestore.Desc)
	})
}

func (r *OrderRepository) listOrders(ctx context.Context, build pfirestore.QueryBuilder) ([]domain.Order, error) {
	if r == nil || r.orders == nil {
		return nil, errors.New("order repository not initialised")
	}
	docs, err := r.orders.Query(ctx, build)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		items, err := r.loadItems(ctx, doc.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, doc.Data.toDomain(doc.ID, items))
	}
	return out, nil
}

// List returns a page of orders for the back office. The default ordering is
// newest first; admin listings may instead sort by total and bound it with
// min/max filters, in which case the cursor carries the last total.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.orders == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}

	pageSize := filter.Pager.PageSize
	if pageSize <= 0 {
		pageSize = defaultOrderPageSize
	}
	if pageSize > maxOrderPageSize {
		pageSize = maxOrderPageSize
	}

	sort := filter.Sort
	if sort.Field == "" {
		sort = repositories.OrderSort{Field: repositories.OrderSortCreatedAt, Desc: true}
	}
	if (filter.MinTotal != nil || filter.MaxTotal != nil) && sort.Field != repositories.OrderSortTotal {
		return domain.CursorPage[domain.Order]{}, errors.New("order list: total filters require ordering by total")
	}

	var startAfter []any
	switch sort.Field {
	case repositories.OrderSortTotal:
		cursor, err := decodeAmountCursor(filter.Pager.PageToken)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
		if cursor != nil {
			startAfter = []any{cursor.total, cursor.id}
		}
	default:
		cursor, err := decodeTimestampCursor(filter.Pager.PageToken)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
		if cursor != nil {
			startAfter = []any{cursor.at, cursor.id}
		}
	}

	direction := firestore.Asc
	if sort.Desc {
		direction = firestore.Desc
	}

	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.Status != nil {
			q = q.Where("status", "==", string(*filter.Status))
		}
		if filter.MinTotal != nil {
			q = q.Where("total", ">=", int64(*filter.MinTotal))
		}
		if filter.MaxTotal != nil {
			q = q.Where("total", "<=", int64(*filter.MaxTotal))
		}
		q = q.OrderBy(string(sort.Field), direction).OrderBy(firestore.DocumentID, firestore.Asc)
		if startAfter != nil {
			q = q.StartAfter(startAfter...)
		}
		return q.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	page := domain.CursorPage[domain.Order]{}
	for i, doc := range docs {
		if i == pageSize {
			last := docs[pageSize-1]
			var token string
			var tokenErr error
			if sort.Field == repositories.OrderSortTotal {
				token, tokenErr = encodeAmountCursor(last.Data.Total, last.ID)
			} else {
				token, tokenErr = encodeTimestampCursor(last.Data.CreatedAt, last.ID)
			}
			if tokenErr == nil {
				page.NextPageToken = token
			}
			break
		}
		items, err := r.loadItems(ctx, doc.ID)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
		page.Items = append(page.Items, doc.Data.toDomain(doc.ID, items))
	}
	return page, nil
}

// UpdateStatus sets the current status and appends one history entry transactionally.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderNumber string, newStatus domain.OrderStatus, actor string) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" {
		return domain.Order{}, errors.New("order status: order number is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Order{}, err
	}

	var updated orderDocument
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		now := time.Now().UTC()
		orderRef := client.Collection(ordersCollection).Doc(orderNumber)
		snap, err := tx.Get(orderRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return pfirestore.WrapError("orders.get", err)
			}
			return err
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode order %s: %w", orderNumber, err)
		}

		doc.Status = string(newStatus)
		doc.UpdatedAt = now
		if err := tx.Set(orderRef, doc); err != nil {
			return err
		}

		historyRef := orderRef.Collection(statusHistoryCollection).NewDoc()
		if err := tx.Create(historyRef, statusHistoryDocument{
			Status:    string(newStatus),
			ChangedBy: actor,
			ChangedAt: now,
		}); err != nil {
			return err
		}

		updated = doc
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	items, err := r.loadItems(ctx, orderNumber)
	if err != nil {
		return domain.Order{}, err
	}
	return updated.toDomain(orderNumber, items), nil
}

// ListStatusHistory returns all status transitions for an order, oldest first.
func (r *OrderRepository) ListStatusHistory(ctx context.Context, orderNumber string) ([]domain.StatusHistoryEntry, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("order repository not initialised")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}

	iter := client.Collection(ordersCollection).Doc(strings.TrimSpace(orderNumber)).
		Collection(statusHistoryCollection).
		OrderBy("changedAt", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var entries []domain.StatusHistoryEntry
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("orders.history", err)
		}
		var doc statusHistoryDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode status history %s: %w", snap.Ref.ID, err)
		}
		entries = append(entries, domain.StatusHistoryEntry{
			ID:        snap.Ref.ID,
			Status:    domain.OrderStatus(doc.Status),
			ChangedBy: doc.ChangedBy,
			ChangedAt: doc.ChangedAt,
		})
	}
	return entries, nil
}

// ApplyPayment marks the order paid and records the gateway payment. The
// payment document id is the provider payment id, so re-delivery of the same
// confirmation collapses into a no-op.
func (r *OrderRepository) ApplyPayment(ctx context.Context, spec repositories.ApplyPaymentSpec) (domain.Order, bool, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, false, errors.New("order repository not initialised")
	}
	orderNumber := strings.TrimSpace(spec.OrderNumber)
	paymentID := strings.TrimSpace(spec.ProviderPaymentID)
	if orderNumber == "" || paymentID == "" {
		return domain.Order{}, false, errors.New("order payment: order number and provider payment id are required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Order{}, false, err
	}

	var (
		updated orderDocument
		applied bool
	)
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		now := time.Now().UTC()
		orderRef := client.Collection(ordersCollection).Doc(orderNumber)
		paymentRef := orderRef.Collection(orderPaymentsCollection).Doc(paymentID)

		snap, err := tx.Get(orderRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return pfirestore.WrapError("orders.get", err)
			}
			return err
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode order %s: %w", orderNumber, err)
		}

		if _, err := tx.Get(paymentRef); err == nil {
			// Duplicate delivery: payment already recorded.
			updated = doc
			applied = false
			return nil
		} else if status.Code(err) != codes.NotFound {
			return err
		}

		if err := tx.Create(paymentRef, paymentDocument{
			Gateway:           spec.Gateway,
			ProviderOrderID:   spec.ProviderOrderID,
			ProviderPaymentID: paymentID,
			Method:            spec.Method,
			Amount:            doc.Total,
			Status:            paymentRecordSuccess,
			CreatedAt:         now,
		}); err != nil {
			return err
		}

		doc.PaymentStatus = string(domain.PaymentStatusPaid)
		// Move pending orders to confirmed; never walk back fulfillment.
		if doc.Status == string(domain.OrderStatusPending) {
			doc.Status = string(domain.OrderStatusConfirmed)
			historyRef := orderRef.Collection(statusHistoryCollection).NewDoc()
			if err := tx.Create(historyRef, statusHistoryDocument{
				Status:    string(domain.OrderStatusConfirmed),
				ChangedBy: "payment",
				ChangedAt: now,
			}); err != nil {
				return err
			}
		}
		doc.UpdatedAt = now
		if err := tx.Set(orderRef, doc); err != nil {
			return err
		}

		updated = doc
		applied = true
		return nil
	})
	if err != nil {
		return domain.Order{}, false, err
	}

	items, err := r.loadItems(ctx, orderNumber)
	if err != nil {
		return domain.Order{}, false, err
	}
	return updated.toDomain(orderNumber, items), applied, nil
}

// LinkGuestOrders attaches the user id to guest orders carrying the email.
func (r *OrderRepository) LinkGuestOrders(ctx context.Context, email string, userID string) (int, error) {
	if r == nil || r.provider == nil {
		return 0, errors.New("order repository not initialised")
	}
	email = strings.ToLower(strings.TrimSpace(email))
	userID = strings.TrimSpace(userID)
	if email == "" || userID == "" {
		return 0, errors.New("order link: email and user id are required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return 0, err
	}

	iter := client.Collection(ordersCollection).
		Where("email", "==", email).
		Where("userId", "==", "").
		Documents(ctx)
	defer iter.Stop()

	linked := 0
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return linked, pfirestore.WrapError("orders.link", err)
		}
		if _, err := snap.Ref.Update(ctx, []firestore.Update{
			{Path: "userId", Value: userID},
			{Path: "updatedAt", Value: time.Now().UTC()},
		}); err != nil {
			return linked, pfirestore.WrapError("orders.link", err)
		}
		linked++
	}
	return linked, nil
}
