package payments

import (
	"context"
	"errors"
	"testing"
)

type fakeProvider struct {
	name     string
	createFn func(ctx context.Context, req OrderRequest) (GatewayOrder, error)
	verifyFn func(req SignatureRequest) error
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) CreateOrder(ctx context.Context, req OrderRequest) (GatewayOrder, error) {
	if f.createFn != nil {
		return f.createFn(ctx, req)
	}
	return GatewayOrder{ID: "ord-1"}, nil
}

func (f *fakeProvider) VerifySignature(req SignatureRequest) error {
	if f.verifyFn != nil {
		return f.verifyFn(req)
	}
	return nil
}

func TestManagerResolvePrefersRazorpayDefault(t *testing.T) {
	manager, err := NewManager(map[string]Provider{
		"razorpay": &fakeProvider{name: "razorpay"},
		"stripe":   &fakeProvider{name: "stripe"},
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	provider, err := manager.Resolve("")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if provider.Name() != "razorpay" {
		t.Fatalf("expected razorpay default, got %q", provider.Name())
	}
}

func TestManagerResolveByNameIsCaseInsensitive(t *testing.T) {
	manager, err := NewManager(map[string]Provider{
		"razorpay": &fakeProvider{name: "razorpay"},
		"stripe":   &fakeProvider{name: "stripe"},
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	provider, err := manager.Resolve(" Stripe ")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if provider.Name() != "stripe" {
		t.Fatalf("expected stripe, got %q", provider.Name())
	}
}

func TestManagerResolveUnknownProvider(t *testing.T) {
	manager, err := NewManager(map[string]Provider{
		"razorpay": &fakeProvider{name: "razorpay"},
		"stripe":   &fakeProvider{name: "stripe"},
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	if _, err := manager.Resolve("paytm"); !errors.Is(err, ErrUnsupportedProvider) {
		t.Fatalf("expected ErrUnsupportedProvider, got %v", err)
	}
}

func TestManagerSingleProviderWinsWithoutDefault(t *testing.T) {
	manager, err := NewManager(map[string]Provider{
		"stripe": &fakeProvider{name: "stripe"},
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	provider, err := manager.Resolve("")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if provider.Name() != "stripe" {
		t.Fatalf("expected the lone provider, got %q", provider.Name())
	}
}

func TestManagerCreateOrderStampsProviderName(t *testing.T) {
	manager, err := NewManager(map[string]Provider{
		"razorpay": &fakeProvider{
			name: "razorpay",
			createFn: func(_ context.Context, req OrderRequest) (GatewayOrder, error) {
				return GatewayOrder{ID: "ord-1", Amount: req.Amount}, nil
			},
		},
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	order, err := manager.CreateOrder(context.Background(), "", OrderRequest{Amount: 100})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if order.Provider != "razorpay" {
		t.Fatalf("expected provider name stamped, got %q", order.Provider)
	}
}

func TestManagerWithDefaultProviderOverride(t *testing.T) {
	manager, err := NewManager(map[string]Provider{
		"razorpay": &fakeProvider{name: "razorpay"},
		"stripe":   &fakeProvider{name: "stripe"},
	}, WithDefaultProvider("stripe"))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	provider, err := manager.Resolve("")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if provider.Name() != "stripe" {
		t.Fatalf("expected stripe override, got %q", provider.Name())
	}
}
