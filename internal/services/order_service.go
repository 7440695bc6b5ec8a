package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/makhaana-store/api/internal/domain"
	"github.com/makhaana-store/api/internal/repositories"
)

var (
	// ErrOrderInvalidInput indicates the caller supplied invalid input parameters.
	ErrOrderInvalidInput = errors.New("orders: invalid input")
	// ErrOrderNotFound indicates no order matched the supplied identifier.
	ErrOrderNotFound = errors.New("orders: not found")
	// ErrOrderInvalidStatus indicates the requested status is not part of the machine.
	ErrOrderInvalidStatus = errors.New("orders: invalid status")
	// ErrOrderUnavailable indicates order dependencies are currently unavailable.
	ErrOrderUnavailable = errors.New("orders: unavailable")
)

// OrderServiceDeps wires the dependencies required by the order service.
type OrderServiceDeps struct {
	Orders    repositories.OrderRepository
	Publisher EventPublisher
	Clock     func() time.Time
	Logger    Logger
}

type orderService struct {
	orders    repositories.OrderRepository
	publisher EventPublisher
	now       func() time.Time
	logger    Logger
}

// NewOrderService constructs an OrderService validating required dependencies.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &orderService{
		orders:    deps.Orders,
		publisher: deps.Publisher,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Track returns orders matched by exact order number or by email, each with
// its status history. Order number wins when both are supplied.
func (s *orderService) Track(ctx context.Context, query TrackQuery) ([]OrderView, error) {
	if s == nil || s.orders == nil {
		return nil, ErrOrderUnavailable
	}

	number := strings.TrimSpace(query.OrderNumber)
	email := strings.ToLower(strings.TrimSpace(query.Email))

	var (
		orders []domain.Order
		err    error
	)
	switch {
	case number != "":
		var order domain.Order
		order, err = s.orders.FindByNumber(ctx, number)
		if err == nil {
			orders = []domain.Order{order}
		}
	case email != "":
		orders, err = s.orders.ListByEmail(ctx, email)
	default:
		return nil, fmt.Errorf("%w: an order number or email is required", ErrOrderInvalidInput)
	}
	if err != nil {
		return nil, s.translateOrderError(err)
	}
	if len(orders) == 0 {
		return nil, ErrOrderNotFound
	}

	views := make([]OrderView, 0, len(orders))
	for _, order := range orders {
		history, err := s.orders.ListStatusHistory(ctx, order.OrderNumber)
		if err != nil {
			return nil, s.translateOrderError(err)
		}
		views = append(views, OrderView{Order: order, History: history})
	}
	return views, nil
}

// ListForUser returns the authenticated customer's orders, newest first.
func (s *orderService) ListForUser(ctx context.Context, userID string) ([]domain.Order, error) {
	if s == nil || s.orders == nil {
		return nil, ErrOrderUnavailable
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	orders, err := s.orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, s.translateOrderError(err)
	}
	return orders, nil
}

// List returns a back-office page of orders with optional status filtering.
func (s *orderService) List(ctx context.Context, filter AdminOrderFilter) (domain.CursorPage[domain.Order], error) {
	if s == nil || s.orders == nil {
		return domain.CursorPage[domain.Order]{}, ErrOrderUnavailable
	}

	repoFilter := repositories.OrderListFilter{
		MinTotal: filter.MinTotal,
		MaxTotal: filter.MaxTotal,
		Pager:    domain.Pagination{PageSize: filter.PageSize, PageToken: strings.TrimSpace(filter.PageToken)},
	}
	if raw := strings.TrimSpace(filter.Status); raw != "" {
		status := domain.OrderStatus(raw)
		if !status.Valid() {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("%w: %q", ErrOrderInvalidStatus, raw)
		}
		repoFilter.Status = &status
	}

	sort, err := adminOrderSort(filter)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	repoFilter.Sort = sort

	page, err := s.orders.List(ctx, repoFilter)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, s.translateOrderError(err)
	}
	return page, nil
}

// adminOrderSort resolves the requested ordering. Total-range filters must
// sort on the total because Firestore needs the inequality field first in the
// order-by chain.
func adminOrderSort(filter AdminOrderFilter) (repositories.OrderSort, error) {
	hasTotalFilter := filter.MinTotal != nil || filter.MaxTotal != nil

	field := repositories.OrderSortCreatedAt
	switch strings.TrimSpace(filter.SortBy) {
	case "", string(repositories.OrderSortCreatedAt):
		if hasTotalFilter {
			if filter.SortBy != "" {
				return repositories.OrderSort{}, fmt.Errorf("%w: total filters require ordering by total", ErrOrderInvalidInput)
			}
			field = repositories.OrderSortTotal
		}
	case string(repositories.OrderSortTotal):
		field = repositories.OrderSortTotal
	default:
		return repositories.OrderSort{}, fmt.Errorf("%w: cannot order by %q", ErrOrderInvalidInput, filter.SortBy)
	}

	desc := true
	switch filter.SortOrder {
	case "", domain.SortDesc:
	case domain.SortAsc:
		desc = false
	default:
		return repositories.OrderSort{}, fmt.Errorf("%w: invalid sort order %q", ErrOrderInvalidInput, filter.SortOrder)
	}

	return repositories.OrderSort{Field: field, Desc: desc}, nil
}

// TransitionStatus applies an administrative status change and records it in
// the append-only history. Any known status may follow any other; the shop is
// small enough that undo beats a strict transition table.
func (s *orderService) TransitionStatus(ctx context.Context, cmd TransitionStatusCommand) (domain.Order, error) {
	if s == nil || s.orders == nil {
		return domain.Order{}, ErrOrderUnavailable
	}

	number := strings.TrimSpace(cmd.OrderNumber)
	if number == "" {
		return domain.Order{}, fmt.Errorf("%w: order number is required", ErrOrderInvalidInput)
	}
	if !cmd.Status.Valid() {
		return domain.Order{}, fmt.Errorf("%w: %q", ErrOrderInvalidStatus, cmd.Status)
	}
	actor := strings.TrimSpace(cmd.Actor)
	if actor == "" {
		actor = "admin"
	}

	order, err := s.orders.UpdateStatus(ctx, number, cmd.Status, actor)
	if err != nil {
		return domain.Order{}, s.translateOrderError(err)
	}

	s.publish(ctx, "order.status_changed", map[string]any{
		"orderNumber": order.OrderNumber,
		"status":      string(order.Status),
		"actor":       actor,
	})
	return order, nil
}

func (s *orderService) translateOrderError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrOrderNotFound
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
		}
	}
	return err
}

func (s *orderService) publish(ctx context.Context, eventType string, payload map[string]any) {
	if s.publisher == nil {
		return
	}
	if _, err := s.publisher.Publish(ctx, domain.Event{
		Type:       eventType,
		OccurredAt: s.now(),
		Payload:    payload,
	}); err != nil {
		s.logger(ctx, "orders.event_publish_failed", map[string]any{
			"eventType": eventType,
			"error":     err.Error(),
		})
	}
}
