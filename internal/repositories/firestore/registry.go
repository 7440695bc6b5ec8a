package firestore

import (
	"context"
	"errors"

	"github.com/makhaana-store/api/internal/platform/firestore"
	"github.com/makhaana-store/api/internal/repositories"
)

// Registry bundles the Firestore backed repositories behind the
// repositories.Registry interface.
type Registry struct {
	provider *firestore.Provider

	catalog       *CatalogRepository
	orders        *OrderRepository
	inventory     *InventoryRepository
	deliveryRules *DeliveryRuleRepository
	messages      *MessageRepository
	health        repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// RegistryDeps configures registry construction.
type RegistryDeps struct {
	Provider *firestore.Provider
	// Health is built by the caller so probes can cover dependencies the
	// registry does not own, pub/sub among them.
	Health repositories.HealthRepository
}

// NewRegistry constructs every Firestore repository over a shared provider.
func NewRegistry(deps RegistryDeps) (*Registry, error) {
	if deps.Provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}
	if deps.Health == nil {
		return nil, errors.New("registry requires health repository")
	}

	catalog, err := NewCatalogRepository(deps.Provider)
	if err != nil {
		return nil, err
	}
	orders, err := NewOrderRepository(deps.Provider)
	if err != nil {
		return nil, err
	}
	inventory, err := NewInventoryRepository(deps.Provider)
	if err != nil {
		return nil, err
	}
	deliveryRules, err := NewDeliveryRuleRepository(deps.Provider)
	if err != nil {
		return nil, err
	}
	messages, err := NewMessageRepository(deps.Provider)
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider:      deps.Provider,
		catalog:       catalog,
		orders:        orders,
		inventory:     inventory,
		deliveryRules: deliveryRules,
		messages:      messages,
		health:        deps.Health,
	}, nil
}

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

// Catalog implements repositories.Registry.
func (r *Registry) Catalog() repositories.CatalogRepository { return r.catalog }

// Orders implements repositories.Registry.
func (r *Registry) Orders() repositories.OrderRepository { return r.orders }

// Inventory implements repositories.Registry.
func (r *Registry) Inventory() repositories.InventoryRepository { return r.inventory }

// DeliveryRules implements repositories.Registry.
func (r *Registry) DeliveryRules() repositories.DeliveryRuleRepository { return r.deliveryRules }

// Messages implements repositories.Registry.
func (r *Registry) Messages() repositories.MessageRepository { return r.messages }

// Health implements repositories.Registry.
func (r *Registry) Health() repositories.HealthRepository { return r.health }
