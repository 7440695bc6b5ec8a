package idempotency

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type stubStore struct {
	beginFn   func(ctx context.Context, attempt Attempt, now time.Time, ttl time.Duration) (Claim, error)
	finishFn  func(ctx context.Context, attempt Attempt, reply StoredReply, now time.Time, ttl time.Duration) error
	abandonFn func(ctx context.Context, attempt Attempt) error
}

func (s *stubStore) Begin(ctx context.Context, attempt Attempt, now time.Time, ttl time.Duration) (Claim, error) {
	if s.beginFn != nil {
		return s.beginFn(ctx, attempt, now, ttl)
	}
	return Claim{Outcome: OutcomeProceed}, nil
}

func (s *stubStore) Finish(ctx context.Context, attempt Attempt, reply StoredReply, now time.Time, ttl time.Duration) error {
	if s.finishFn != nil {
		return s.finishFn(ctx, attempt, reply, now, ttl)
	}
	return nil
}

func (s *stubStore) Abandon(ctx context.Context, attempt Attempt) error {
	if s.abandonFn != nil {
		return s.abandonFn(ctx, attempt)
	}
	return nil
}

func (s *stubStore) CleanupExpired(context.Context, time.Time, int) (int, error) {
	return 0, nil
}

func checkoutRequest(key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	return req
}

func TestMiddlewareReplaysStoredResponse(t *testing.T) {
	store := NewMemoryStore()
	calls := 0
	handler := Middleware(store)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.Header().Set("Location", "/api/v1/orders/MKH-1042")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"order_number":"MKH-1042"}`))
	}))

	body := `{"items":[{"variant_id":"peri-peri-100g","quantity":2}]}`

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, checkoutRequest("chk-7f3a", body))
	if first.Code != http.StatusCreated {
		t.Fatalf("first attempt: expected 201, got %d", first.Code)
	}
	if first.Header().Get(replayHeaderName) != "" {
		t.Fatal("first attempt must not be marked as a replay")
	}

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, checkoutRequest("chk-7f3a", body))
	if second.Code != http.StatusCreated {
		t.Fatalf("retry: expected 201, got %d", second.Code)
	}
	if second.Header().Get(replayHeaderName) != "true" {
		t.Error("retry must carry the replay header")
	}
	if second.Body.String() != first.Body.String() {
		t.Errorf("retry body %q differs from original %q", second.Body.String(), first.Body.String())
	}
	if second.Header().Get("Location") != "/api/v1/orders/MKH-1042" {
		t.Errorf("retry lost the Location header: %q", second.Header().Get("Location"))
	}
	if calls != 1 {
		t.Errorf("handler ran %d times, want 1", calls)
	}
}

func TestMiddlewareRejectsKeyReuseWithDifferentBody(t *testing.T) {
	store := NewMemoryStore()
	handler := Middleware(store)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, checkoutRequest("chk-reuse", `{"items":[{"variant_id":"classic-250g","quantity":1}]}`))
	if first.Code != http.StatusCreated {
		t.Fatalf("first attempt: expected 201, got %d", first.Code)
	}

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, checkoutRequest("chk-reuse", `{"items":[{"variant_id":"classic-250g","quantity":5}]}`))
	if second.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", second.Code)
	}
	if !strings.Contains(second.Body.String(), "idempotency_key_conflict") {
		t.Errorf("expected idempotency_key_conflict, got %s", second.Body.String())
	}
}

func TestMiddlewareReportsInFlightAttempt(t *testing.T) {
	store := &stubStore{
		beginFn: func(context.Context, Attempt, time.Time, time.Duration) (Claim, error) {
			return Claim{Outcome: OutcomeInFlight}, nil
		},
	}
	handler := Middleware(store)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run while the key is held")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, checkoutRequest("chk-held", `{}`))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "idempotency_in_progress") {
		t.Errorf("expected idempotency_in_progress, got %s", rec.Body.String())
	}
}

func TestMiddlewareRequiresKeyOnMutatingRequests(t *testing.T) {
	handler := Middleware(NewMemoryStore())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run without an idempotency key")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, checkoutRequest("", `{}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "idempotency_key_required") {
		t.Errorf("expected idempotency_key_required, got %s", rec.Body.String())
	}
}

func TestMiddlewareIgnoresReads(t *testing.T) {
	called := false
	handler := Middleware(NewMemoryStore())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !called {
		t.Fatal("GET requests must pass through without a key")
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestMiddlewareReleasesKeyWhenPersistFails(t *testing.T) {
	abandoned := false
	store := &stubStore{
		finishFn: func(context.Context, Attempt, StoredReply, time.Time, time.Duration) error {
			return errors.New("firestore unavailable")
		},
		abandonFn: func(context.Context, Attempt) error {
			abandoned = true
			return nil
		},
	}
	handler := Middleware(store)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, checkoutRequest("chk-persist", `{}`))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if !abandoned {
		t.Error("key must be released so the customer can retry")
	}
}

func TestMemoryStoreExpiresAttempts(t *testing.T) {
	store := NewMemoryStore()
	attempt := Attempt{Key: "chk-ttl", Requester: "anonymous", Digest: "d1"}
	start := time.Now().UTC()

	if err := store.Finish(context.Background(), attempt, StoredReply{Status: http.StatusCreated}, start, time.Minute); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	claim, err := store.Begin(context.Background(), attempt, start.Add(30*time.Second), time.Minute)
	if err != nil {
		t.Fatalf("Begin inside window: %v", err)
	}
	if claim.Outcome != OutcomeReplay {
		t.Fatalf("expected replay inside the window, got %v", claim.Outcome)
	}

	claim, err = store.Begin(context.Background(), attempt, start.Add(2*time.Minute), time.Minute)
	if err != nil {
		t.Fatalf("Begin after window: %v", err)
	}
	if claim.Outcome != OutcomeProceed {
		t.Fatalf("expected a fresh claim after the window, got %v", claim.Outcome)
	}

	removed, err := store.CleanupExpired(context.Background(), start.Add(5*time.Minute), 10)
	if err != nil {
		t.Fatalf("CleanupExpired: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 expired attempt removed, got %d", removed)
	}
}
