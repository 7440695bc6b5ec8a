package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type fakeAccessClient struct {
	mu     sync.Mutex
	values map[string]string
	errs   map[string]error
	calls  map[string]int
}

func newFakeAccessClient() *fakeAccessClient {
	return &fakeAccessClient{
		values: make(map[string]string),
		errs:   make(map[string]error),
		calls:  make(map[string]int),
	}
}

func (f *fakeAccessClient) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := req.GetName()
	f.calls[name]++
	if err, ok := f.errs[name]; ok && err != nil {
		return nil, err
	}
	if value, ok := f.values[name]; ok {
		return &secretmanagerpb.AccessSecretVersionResponse{
			Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
		}, nil
	}
	return nil, status.Error(codes.NotFound, "not found")
}

func (f *fakeAccessClient) Close() error { return nil }

func (f *fakeAccessClient) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func writeFallbackFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".secrets.local")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write fallback file: %v", err)
	}
	return path
}

func TestResolveCachesRemoteSecret(t *testing.T) {
	ctx := context.Background()

	client := newFakeAccessClient()
	resource := "projects/makhaana-prod/secrets/razorpay_key_secret/versions/latest"
	client.values[resource] = "rzp_live_secret"

	fetcher, err := NewFetcher(ctx,
		WithSecretManagerClient(client),
		WithDefaultProject("makhaana-prod"),
		WithLogger(zap.NewNop()),
	)
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	defer fetcher.Close()

	for j := 0; j < 2; j++ {
		got, err := fetcher.Resolve(ctx, "secret://razorpay_key_secret")
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if got != "rzp_live_secret" {
			t.Fatalf("expected rzp_live_secret, got %s", got)
		}
	}

	if calls := client.callCount(resource); calls != 1 {
		t.Fatalf("expected a single remote fetch, got %d", calls)
	}
}

func TestResolveFallsBackWhenSecretManagerUnavailable(t *testing.T) {
	ctx := context.Background()

	fallbackPath := writeFallbackFile(t, "secret://razorpay_key_secret=rzp_test_secret\n")

	client := newFakeAccessClient()
	client.errs["projects/makhaana-prod/secrets/razorpay_key_secret/versions/latest"] = status.Error(codes.PermissionDenied, "denied")

	fetcher, err := NewFetcher(ctx,
		WithSecretManagerClient(client),
		WithDefaultProject("makhaana-prod"),
		WithFallbackFile(fallbackPath),
	)
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	defer fetcher.Close()

	got, err := fetcher.Resolve(ctx, "secret://razorpay_key_secret")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "rzp_test_secret" {
		t.Fatalf("expected fallback value, got %s", got)
	}
}

func TestResolveDoesNotFallBackOnNotFound(t *testing.T) {
	ctx := context.Background()

	fallbackPath := writeFallbackFile(t, "secret://razorpay_key_secret=rzp_test_secret\n")

	client := newFakeAccessClient()
	client.errs["projects/makhaana-prod/secrets/razorpay_key_secret/versions/latest"] = status.Error(codes.NotFound, "missing")

	fetcher, err := NewFetcher(ctx,
		WithSecretManagerClient(client),
		WithDefaultProject("makhaana-prod"),
		WithFallbackFile(fallbackPath),
	)
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	defer fetcher.Close()

	if _, err := fetcher.Resolve(ctx, "secret://razorpay_key_secret"); err == nil {
		t.Fatal("expected an error for a missing secret, not the fallback value")
	}
}

func TestResolveUsesVersionPins(t *testing.T) {
	ctx := context.Background()

	client := newFakeAccessClient()
	pinned := "projects/makhaana-prod/secrets/razorpay_webhook_secret/versions/7"
	client.values[pinned] = "whsec_v7"

	fetcher, err := NewFetcher(ctx,
		WithSecretManagerClient(client),
		WithDefaultProject("makhaana-prod"),
		WithVersionPins(map[string]string{"secret://razorpay_webhook_secret": "7"}),
	)
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	defer fetcher.Close()

	got, err := fetcher.Resolve(ctx, "secret://razorpay_webhook_secret")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "whsec_v7" {
		t.Fatalf("expected whsec_v7, got %s", got)
	}
	if calls := client.callCount(pinned); calls != 1 {
		t.Fatalf("expected the pinned version to be fetched once, got %d", calls)
	}
}

func TestResolveUsesEnvironmentProjectMap(t *testing.T) {
	ctx := context.Background()

	client := newFakeAccessClient()
	client.values["projects/makhaana-staging/secrets/stripe_api_key/versions/latest"] = "sk_test_123"

	fetcher, err := NewFetcher(ctx,
		WithSecretManagerClient(client),
		WithEnvironment("staging"),
		WithDefaultProject("makhaana-prod"),
		WithProjectMap(map[string]string{"staging": "makhaana-staging"}),
	)
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	defer fetcher.Close()

	got, err := fetcher.Resolve(ctx, "secret://stripe_api_key")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "sk_test_123" {
		t.Fatalf("expected sk_test_123, got %s", got)
	}
}

func TestNewFetcherWithoutCredentialsUsesFallback(t *testing.T) {
	ctx := context.Background()

	original := newSecretManagerClient
	newSecretManagerClient = func(context.Context, ...option.ClientOption) (*secretmanager.Client, error) {
		return nil, errors.New("no credentials")
	}
	t.Cleanup(func() { newSecretManagerClient = original })

	fallbackPath := writeFallbackFile(t, "# local development secrets\nsecret://razorpay_key_secret=rzp_test_secret\n")

	fetcher, err := NewFetcher(ctx, WithFallbackFile(fallbackPath))
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	defer fetcher.Close()

	got, err := fetcher.Resolve(ctx, "secret://razorpay_key_secret")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "rzp_test_secret" {
		t.Fatalf("expected rzp_test_secret, got %s", got)
	}
}

func TestParseReferenceRejectsOtherSchemes(t *testing.T) {
	if _, err := parseReference("vault://razorpay_key_secret"); err == nil {
		t.Fatal("expected an error for a non-secret scheme")
	}
	if _, err := parseReference("  "); err == nil {
		t.Fatal("expected an error for an empty reference")
	}
}
