package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/makhaana-store/api/internal/platform/httpx"
)

// RouteRegistrar registers a set of routes against the provided router.
type RouteRegistrar func(r chi.Router)

// Route groups under /api/v1. Checkout and contact register at the API root
// because their paths (/orders, /delivery/charge, /contact) have no shared
// prefix; the rest each own a subtree.
const (
	groupCheckout = "checkout"
	groupPayments = "payments"
	groupContact  = "contact"
	groupMe       = "me"
	groupAdmin    = "admin"
	groupWebhooks = "webhooks"
	groupInternal = "internal"
)

type routerConfig struct {
	basePath    string
	middlewares []func(http.Handler) http.Handler
	health      *HealthHandlers

	registrars  map[string]RouteRegistrar
	groupExtras map[string][]func(http.Handler) http.Handler
}

// Option customises the router configuration before construction.
type Option func(*routerConfig)

const (
	defaultAPIPrefix  = "/api/v1"
	defaultTimeout    = 60 * time.Second
	errorNotFoundCode = "route_not_found"
)

func (cfg *routerConfig) register(group string, reg RouteRegistrar) {
	cfg.registrars[group] = reg
}

// NewRouter builds the chi router: shared middleware, JSON 404/405 bodies,
// health probes at the root, and the storefront route groups under /api/v1.
// Groups without a registrar answer 501 so a partially wired deploy fails
// loudly instead of 404ing.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		basePath: defaultAPIPrefix,
		middlewares: []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Timeout(defaultTimeout),
		},
		registrars:  make(map[string]RouteRegistrar),
		groupExtras: make(map[string][]func(http.Handler) http.Handler),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	r := chi.NewRouter()
	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError(errorNotFoundCode, fmt.Sprintf("no route for %s", req.URL.Path), http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})

	// Probes stay outside the API prefix so Cloud Run health checks need no
	// path rewriting.
	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)

	r.Route(cfg.basePath, func(api chi.Router) {
		mountAtRoot(api, cfg, groupCheckout, "/orders", "/orders/track", "/delivery/charge")
		mountGroup(api, cfg, groupPayments, "/payments")
		mountAtRoot(api, cfg, groupContact, "/contact")
		mountGroup(api, cfg, groupMe, "/me")
		mountGroup(api, cfg, groupAdmin, "/admin")
		mountGroup(api, cfg, groupWebhooks, "/webhooks")
		mountGroup(api, cfg, groupInternal, "/internal")
	})

	return r
}

// mountGroup attaches the group's registrar under path together with any
// group-scoped middleware. Without a registrar the whole subtree answers 501.
func mountGroup(api chi.Router, cfg routerConfig, group, path string) {
	api.Route(path, func(sub chi.Router) {
		for _, mw := range cfg.groupExtras[group] {
			if mw != nil {
				sub.Use(mw)
			}
		}
		if reg := cfg.registrars[group]; reg != nil {
			reg(sub)
			return
		}
		stub := notImplementedHandler(group)
		sub.HandleFunc("/*", stub)
		sub.HandleFunc("/", stub)
		sub.NotFound(stub)
		sub.MethodNotAllowed(stub)
	})
}

// mountAtRoot runs the registrar directly against the API root. The fallback
// paths are the routes the registrar would have claimed; they answer 501 when
// the group is not wired.
func mountAtRoot(api chi.Router, cfg routerConfig, group string, fallbackPaths ...string) {
	if reg := cfg.registrars[group]; reg != nil {
		reg(api)
		return
	}
	for _, path := range fallbackPaths {
		api.HandleFunc(path, notImplementedHandler(group))
	}
}

func notImplementedHandler(group string) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("not_implemented", fmt.Sprintf("%s routes not implemented", group), http.StatusNotImplemented))
	}
}

// WithMiddlewares appends additional global middleware to the router.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithHealthHandlers overrides the handlers behind /healthz and /readyz.
func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) {
		cfg.health = h
	}
}

// WithCheckoutRoutes wires the storefront checkout endpoints.
func WithCheckoutRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.register(groupCheckout, reg) }
}

// WithPaymentRoutes wires the payment endpoints.
func WithPaymentRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.register(groupPayments, reg) }
}

// WithContactRoutes wires the contact-form endpoint.
func WithContactRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.register(groupContact, reg) }
}

// WithMeRoutes wires the customer-scoped endpoints.
func WithMeRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.register(groupMe, reg) }
}

// WithAdminRoutes wires the back-office endpoints.
func WithAdminRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.register(groupAdmin, reg) }
}

// WithWebhookRoutes wires the payment gateway webhook endpoints.
func WithWebhookRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.register(groupWebhooks, reg) }
}

// WithWebhookMiddlewares adds middleware scoped to the /webhooks group.
func WithWebhookMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.groupExtras[groupWebhooks] = append(cfg.groupExtras[groupWebhooks], mw...)
	}
}

// WithInternalRoutes wires the service-to-service endpoints.
func WithInternalRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.register(groupInternal, reg) }
}

// WithInternalMiddlewares adds middleware scoped to the /internal group.
func WithInternalMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.groupExtras[groupInternal] = append(cfg.groupExtras[groupInternal], mw...)
	}
}
