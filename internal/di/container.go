package di

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/makhaana-store/api/internal/domain"
	"github.com/makhaana-store/api/internal/payments"
	"github.com/makhaana-store/api/internal/platform/config"
	"github.com/makhaana-store/api/internal/repositories"
	"github.com/makhaana-store/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Pricing   services.PricingService
	Checkout  services.CheckoutService
	Orders    services.OrderService
	Payments  services.PaymentService
	Inventory services.InventoryService
	Contact   services.ContactService
	System    services.SystemService
}

// Container wires repositories, services, and payment infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Gateway      *payments.Manager
	Services     Services
}

// ContainerDeps carries the externally constructed dependencies NewContainer assembles from.
type ContainerDeps struct {
	Registry  repositories.Registry
	Publisher services.EventPublisher
	Logger    services.Logger
	Build     services.BuildInfo
	Clock     func() time.Time
}

// NewContainer constructs the runtime dependencies. Production wiring provides real
// implementations, while tests can supply in-memory registries.
func NewContainer(ctx context.Context, cfg config.Config, deps ContainerDeps) (*Container, error) {
	if deps.Registry == nil {
		return nil, errors.New("repositories registry is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	gateway, err := buildGateway(cfg.Payments)
	if err != nil {
		return nil, err
	}

	svc, err := buildServices(cfg, deps, gateway, clock)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: deps.Registry,
		Gateway:      gateway,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildGateway(cfg config.PaymentsConfig) (*payments.Manager, error) {
	providers := make(map[string]payments.Provider)

	if strings.TrimSpace(cfg.RazorpayKeyID) != "" {
		razorpay, err := payments.NewRazorpayProvider(payments.RazorpayProviderConfig{
			KeyID:     cfg.RazorpayKeyID,
			KeySecret: cfg.RazorpayKeySecret,
		})
		if err != nil {
			return nil, fmt.Errorf("build razorpay provider: %w", err)
		}
		providers["razorpay"] = razorpay
	}

	if strings.TrimSpace(cfg.StripeAPIKey) != "" {
		stripe, err := payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey:        cfg.StripeAPIKey,
			SigningSecret: cfg.StripeWebhookSecret,
		})
		if err != nil {
			return nil, fmt.Errorf("build stripe provider: %w", err)
		}
		providers["stripe"] = stripe
	}

	if len(providers) == 0 {
		return nil, nil
	}

	var opts []payments.ManagerOption
	if provider := strings.TrimSpace(cfg.DefaultProvider); provider != "" {
		if _, ok := providers[strings.ToLower(provider)]; ok {
			opts = append(opts, payments.WithDefaultProvider(provider))
		}
	}
	return payments.NewManager(providers, opts...)
}

func buildServices(cfg config.Config, deps ContainerDeps, gateway *payments.Manager, clock func() time.Time) (Services, error) {
	var svc Services
	reg := deps.Registry

	if rulesRepo := reg.DeliveryRules(); rulesRepo != nil {
		pricingSvc, err := services.NewPricingService(services.PricingServiceDeps{
			Rules:          rulesRepo,
			FallbackCharge: domain.Money(cfg.Pricing.FallbackDeliveryFee),
			Logger:         deps.Logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build pricing service: %w", err)
		}
		svc.Pricing = pricingSvc
	}

	ordersRepo := reg.Orders()
	if ordersRepo != nil && svc.Pricing != nil {
		checkoutSvc, err := services.NewCheckoutService(services.CheckoutServiceDeps{
			Orders:    ordersRepo,
			Pricing:   svc.Pricing,
			Publisher: deps.Publisher,
			Clock:     clock,
			Logger:    deps.Logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build checkout service: %w", err)
		}
		svc.Checkout = checkoutSvc
	}

	if ordersRepo != nil {
		orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
			Orders:    ordersRepo,
			Publisher: deps.Publisher,
			Clock:     clock,
			Logger:    deps.Logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build order service: %w", err)
		}
		svc.Orders = orderSvc
	}

	if ordersRepo != nil && gateway != nil {
		paymentSvc, err := services.NewPaymentService(services.PaymentServiceDeps{
			Orders:    ordersRepo,
			Gateway:   gateway,
			Publisher: deps.Publisher,
			Clock:     clock,
			Logger:    deps.Logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build payment service: %w", err)
		}
		svc.Payments = paymentSvc
	}

	if inventoryRepo := reg.Inventory(); inventoryRepo != nil {
		inventorySvc, err := services.NewInventoryService(services.InventoryServiceDeps{
			Catalog:   reg.Catalog(),
			Inventory: inventoryRepo,
			Clock:     clock,
			Logger:    deps.Logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build inventory service: %w", err)
		}
		svc.Inventory = inventorySvc
	}

	if messagesRepo := reg.Messages(); messagesRepo != nil {
		contactSvc, err := services.NewContactService(services.ContactServiceDeps{
			Messages: messagesRepo,
			Clock:    clock,
			Logger:   deps.Logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build contact service: %w", err)
		}
		svc.Contact = contactSvc
	}

	if healthRepo := reg.Health(); healthRepo != nil {
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            clock,
			Build:            deps.Build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}
