package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/makhaana-store/api/internal/di"
	"github.com/makhaana-store/api/internal/handlers"
	"github.com/makhaana-store/api/internal/platform/auth"
	"github.com/makhaana-store/api/internal/platform/config"
	pfirestore "github.com/makhaana-store/api/internal/platform/firestore"
	"github.com/makhaana-store/api/internal/platform/idempotency"
	"github.com/makhaana-store/api/internal/platform/jobs"
	"github.com/makhaana-store/api/internal/platform/observability"
	"github.com/makhaana-store/api/internal/platform/secrets"
	"github.com/makhaana-store/api/internal/repositories"
	firestoreRepo "github.com/makhaana-store/api/internal/repositories/firestore"
	"github.com/makhaana-store/api/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = baseLogger.Sync() }()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("environment read failed", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("secret fetcher init failed", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("configuration load failed", zap.Error(err))
	}

	build := buildInfoFromEnv(envValues, cfg, startedAt)

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("firestore init failed", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	var publisher services.EventPublisher
	var eventsTopic *pubsub.Topic
	if cfg.Events.Enabled {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.Events.ProjectID)
		if err != nil {
			logger.Fatal("pubsub init failed", zap.Error(err))
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
		eventsTopic = pubsubClient.Topic(cfg.Events.Topic)
		defer eventsTopic.Stop()
		publisher, err = jobs.NewPubSubEventPublisher(eventsTopic)
		if err != nil {
			logger.Fatal("event publisher init failed", zap.Error(err))
		}
	}

	healthRepo, err := newHealthRepository(firestoreClient, eventsTopic, fetcher)
	if err != nil {
		logger.Fatal("health repository init failed", zap.Error(err))
	}

	registry, err := firestoreRepo.NewRegistry(firestoreRepo.RegistryDeps{
		Provider: firestoreProvider,
		Health:   healthRepo,
	})
	if err != nil {
		logger.Fatal("repository registry init failed", zap.Error(err))
	}

	container, err := di.NewContainer(ctx, cfg, di.ContainerDeps{
		Registry:  registry,
		Publisher: publisher,
		Logger:    serviceLogger(logger.Named("services")),
		Build:     build,
		Clock:     time.Now,
	})
	if err != nil {
		logger.Fatal("service assembly failed", zap.Error(err))
	}

	idempotencyStore := idempotency.NewFirestoreStore(firestoreClient)
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(observability.NewPrintfAdapter(logger.Named("idempotency"))),
	)
	stopJanitor := startIdempotencyJanitor(logger.Named("idempotency"), idempotencyStore, cfg.Idempotency)

	oidcMiddleware := buildOIDCMiddleware(logger.Named("auth"), cfg)
	webhookMiddleware := buildWebhookMiddleware(logger.Named("auth"), cfg)

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("firebase verifier init failed", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier, auth.WithUserGetter(firebaseVerifier))

	checkoutHandlers := handlers.NewCheckoutHandlers(
		container.Services.Checkout,
		container.Services.Orders,
		container.Services.Pricing,
	)
	paymentHandlers := handlers.NewPaymentHandlers(container.Services.Payments)
	contactHandlers := handlers.NewContactHandlers(container.Services.Contact)
	meHandlers := handlers.NewMeHandlers(authenticator, container.Services.Orders)
	adminHandlers := handlers.NewAdminHandlers(handlers.AdminHandlersDeps{
		Authenticator: authenticator,
		Orders:        container.Services.Orders,
		Inventory:     container.Services.Inventory,
		Pricing:       container.Services.Pricing,
		Contact:       container.Services.Contact,
	})
	webhookHandlers := handlers.NewWebhookHandlers(container.Services.Payments, serviceLogger(logger.Named("webhooks")))
	internalHandlers := handlers.NewInternalHandlers(container.Services.Inventory)
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(build),
		handlers.WithHealthSystemService(container.Services.System),
	)

	projectID := traceProjectID(cfg)
	opts := []handlers.Option{
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger.Named("http")),
			observability.TraceMiddleware(projectID),
			observability.RecoveryMiddleware(logger.Named("http")),
			observability.RequestLoggerMiddleware(projectID),
			idempotencyMiddleware,
		),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithCheckoutRoutes(checkoutHandlers.Routes),
		handlers.WithPaymentRoutes(paymentHandlers.Routes),
		handlers.WithContactRoutes(contactHandlers.Routes),
		handlers.WithMeRoutes(meHandlers.Routes),
		handlers.WithAdminRoutes(adminHandlers.Routes),
		handlers.WithWebhookRoutes(webhookHandlers.Routes),
		handlers.WithInternalRoutes(internalHandlers.Routes),
	}
	if oidcMiddleware != nil {
		opts = append(opts, handlers.WithInternalMiddlewares(oidcMiddleware))
	}
	if webhookMiddleware != nil {
		opts = append(opts, handlers.WithWebhookMiddlewares(webhookMiddleware))
	}

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handlers.NewRouter(opts...),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("makhaana-store api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	stopJanitor()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// startIdempotencyJanitor periodically prunes expired webhook replay records.
// The returned function stops the loop and waits for an in-flight sweep.
func startIdempotencyJanitor(logger *zap.Logger, store *idempotency.FirestoreStore, cfg config.IdempotencyConfig) func() {
	if cfg.CleanupInterval <= 0 {
		return func() {}
	}

	ticker := time.NewTicker(cfg.CleanupInterval)
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ticker.C:
				sweepCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
				removed, err := store.CleanupExpired(sweepCtx, time.Now().UTC(), cfg.CleanupBatchSize)
				cancel()
				switch {
				case err != nil:
					logger.Error("idempotency cleanup error", zap.Error(err))
				case removed > 0:
					logger.Info("idempotency cleanup removed records", zap.Int("count", removed))
				}
			case <-done:
				return
			}
		}
	}()

	return func() {
		ticker.Stop()
		close(done)
		wg.Wait()
	}
}

// serviceLogger adapts a zap logger to the structured event callback the
// service layer accepts.
func serviceLogger(logger *zap.Logger) services.Logger {
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields)+1)
		zFields = append(zFields, zap.String("event", event))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Info("service event", zFields...)
	}
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	return services.BuildInfo{
		Version:     valueOr(env["API_BUILD_VERSION"], "dev"),
		CommitSHA:   valueOr(env["API_BUILD_COMMIT_SHA"], "unknown"),
		Environment: valueOr(cfg.Security.Environment, "local"),
		StartedAt:   started,
	}
}

func valueOr(value, fallback string) string {
	if value = strings.TrimSpace(value); value != "" {
		return value
	}
	return fallback
}

// newHealthRepository wires one readiness probe per configured backend.
func newHealthRepository(client *firestore.Client, topic *pubsub.Topic, fetcher *secrets.Fetcher) (repositories.HealthRepository, error) {
	var checks []repositories.DependencyCheck
	if client != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:    "firestore",
			Timeout: 1500 * time.Millisecond,
			Check: func(ctx context.Context) error {
				// Listing collections exercises auth and connectivity
				// without touching order data.
				_, err := client.Collections(ctx).Next()
				if errors.Is(err, iterator.Done) {
					return nil
				}
				return err
			},
		})
	}
	if topic != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:    "pubsub",
			Timeout: 1500 * time.Millisecond,
			Check: func(ctx context.Context) error {
				exists, err := topic.Exists(ctx)
				if err != nil {
					return err
				}
				if !exists {
					return fmt.Errorf("topic %s does not exist", topic.ID())
				}
				return nil
			},
		})
	}
	if fetcher != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:    "secretManager",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				// NotFound still proves the Secret Manager API answered.
				_, err := fetcher.Resolve(ctx, "secret://system/healthz?version=latest")
				if status.Code(err) == codes.NotFound {
					return nil
				}
				return err
			},
		})
	}
	if len(checks) == 0 {
		return nil, errors.New("health: no dependency checks configured")
	}
	return repositories.NewDependencyHealthRepository(checks)
}

func buildOIDCMiddleware(logger *zap.Logger, cfg config.Config) func(http.Handler) http.Handler {
	if strings.TrimSpace(cfg.Security.OIDC.JWKSURL) == "" {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	adapter := observability.NewPrintfAdapter(logger)
	validator := auth.NewOIDCValidator(
		auth.NewJWKSCache(cfg.Security.OIDC.JWKSURL, auth.WithJWKSLogger(adapter)),
		auth.WithOIDCLogger(adapter),
	)

	audience := strings.TrimSpace(cfg.Security.OIDC.Audience)
	if audience == "" {
		logger.Warn("auth: OIDC audience not configured; internal routes will reject requests")
	}
	if len(cfg.Security.OIDC.Issuers) == 0 {
		logger.Warn("auth: OIDC issuers not configured; internal routes will reject requests")
	}
	return validator.RequireOIDC(audience, cfg.Security.OIDC.Issuers)
}

func buildWebhookMiddleware(logger *zap.Logger, cfg config.Config) func(http.Handler) http.Handler {
	signingKeys := make(map[string]string)
	for key, value := range cfg.Security.HMAC.Secrets {
		if strings.TrimSpace(value) != "" {
			signingKeys[strings.ToLower(key)] = value
		}
	}
	// Gateway webhook secrets configured under Payments double as signing keys
	// for their provider path.
	for path, secret := range map[string]string{
		"payments/razorpay": cfg.Payments.RazorpayWebhookSecret,
		"payments/stripe":   cfg.Payments.StripeWebhookSecret,
	} {
		if secret != "" && signingKeys[path] == "" {
			signingKeys[path] = secret
		}
	}
	if len(signingKeys) == 0 {
		return nil
	}

	verifier := auth.NewWebhookVerifier(webhookSecretResolver(signingKeys),
		auth.WithWebhookLogger(observability.NewPrintfAdapter(logger)),
		auth.WithWebhookSignatureHeader(cfg.Security.HMAC.SignatureHeader),
	)
	return verifier.RequireSignature()
}

// webhookSecretResolver maps /webhooks/<group>/<provider> paths onto configured
// secrets, trying "group/provider", then "group", then "default".
func webhookSecretResolver(signingKeys map[string]string) auth.WebhookSecretResolver {
	return func(r *http.Request) (auth.WebhookSecret, bool) {
		_, path, found := strings.Cut(r.URL.Path, "/webhooks/")
		if !found {
			path = r.URL.Path
		}
		path = strings.ToLower(strings.Trim(path, "/"))

		segments := strings.Split(path, "/")
		provider := segments[len(segments)-1]

		var candidates []string
		if len(segments) >= 2 {
			candidates = append(candidates, strings.Join(segments[:2], "/"))
		}
		if path != "" {
			candidates = append(candidates, segments[0])
		}
		candidates = append(candidates, "default")

		for _, candidate := range candidates {
			if secret := signingKeys[candidate]; secret != "" {
				return auth.WebhookSecret{Provider: provider, Name: candidate, Secret: secret}, true
			}
		}
		return auth.WebhookSecret{}, false
	}
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	opts := []secrets.Option{
		secrets.WithEnvironment(valueOr(strings.ToLower(env["API_SECURITY_ENVIRONMENT"]), "local")),
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(valueOr(env["API_SECRET_FALLBACK_FILE"], ".secrets.local")),
	}
	if projectMap := splitPairs(env["API_SECRET_PROJECT_IDS"]); len(projectMap) > 0 {
		opts = append(opts, secrets.WithProjectMap(projectMap))
	}
	if project := valueOr(env["API_SECRET_DEFAULT_PROJECT_ID"], strings.TrimSpace(env["API_FIREBASE_PROJECT_ID"])); project != "" {
		opts = append(opts, secrets.WithDefaultProject(project))
	}
	if pins := secretVersionPins(env["API_SECRET_VERSION_PINS"]); len(pins) > 0 {
		opts = append(opts, secrets.WithVersionPins(pins))
	}
	if credentials := strings.TrimSpace(env["API_FIREBASE_CREDENTIALS_FILE"]); credentials != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentials)))
	}
	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists the config fields Load must resolve to non-empty
// secrets. Stripe credentials become mandatory only once an API key is
// configured; Razorpay is the default gateway and always required.
func requiredSecretNames(env map[string]string) []string {
	required := []string{
		"Payments.RazorpayKeySecret",
		"Payments.RazorpayWebhookSecret",
	}
	if strings.TrimSpace(env["API_PAYMENTS_STRIPE_API_KEY"]) != "" {
		required = append(required, "Payments.StripeAPIKey", "Payments.StripeWebhookSecret")
	}
	for key := range splitPairs(env["API_SECURITY_HMAC_SECRETS"]) {
		required = append(required, fmt.Sprintf("Security.HMAC.Secrets[%s]", key))
	}

	slices.Sort(required)
	return slices.Compact(required)
}

// splitPairs parses "name=value,name=value" with lowercased names. The same
// shape configures HMAC signing keys and per-environment secret projects.
func splitPairs(raw string) map[string]string {
	pairs := make(map[string]string)
	for _, entry := range strings.Split(raw, ",") {
		name, value, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		name = strings.ToLower(strings.TrimSpace(name))
		value = strings.TrimSpace(value)
		if name != "" && value != "" {
			pairs[name] = value
		}
	}
	return pairs
}

// secretVersionPins parses "ref=version,..." entries, canonicalising each ref
// to secret:// form while preserving an optional "env:" style prefix.
func secretVersionPins(raw string) map[string]string {
	pins := make(map[string]string)
	for _, entry := range strings.Split(raw, ",") {
		ref, version, ok := strings.Cut(strings.TrimSpace(entry), "=")
		if !ok {
			continue
		}
		ref = strings.TrimSpace(ref)
		version = strings.TrimSpace(version)
		if ref == "" || version == "" {
			continue
		}

		var prefix string
		if idx := strings.Index(ref, ":"); idx > 0 && !strings.HasPrefix(ref[idx:], "://") {
			prefix = strings.ToLower(strings.TrimSpace(ref[:idx])) + ":"
			ref = strings.TrimSpace(ref[idx+1:])
		}
		if rest, ok := strings.CutPrefix(ref, "sm://"); ok {
			ref = "secret://" + rest
		} else if !strings.HasPrefix(ref, "secret://") {
			ref = "secret://" + ref
		}
		pins[prefix+ref] = version
	}
	return pins
}
