package idempotency

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/makhaana-store/api/internal/platform/auth"
	"github.com/makhaana-store/api/internal/platform/httpx"
)

const (
	defaultHeaderName = "Idempotency-Key"
	replayHeaderName  = "X-Idempotent-Replay"
)

// Logger is the minimal logging contract used by the middleware.
type Logger interface {
	Printf(format string, args ...any)
}

type guard struct {
	store  Store
	header string
	ttl    time.Duration
	now    func() time.Time
	logger Logger
}

// MiddlewareOption adjusts middleware behaviour.
type MiddlewareOption func(*guard)

// WithHeader overrides the header carrying the idempotency key.
func WithHeader(name string) MiddlewareOption {
	return func(g *guard) {
		if name = strings.TrimSpace(name); name != "" {
			g.header = name
		}
	}
}

// WithTTL overrides how long completed attempts stay replayable.
func WithTTL(ttl time.Duration) MiddlewareOption {
	return func(g *guard) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

// WithLogger injects a logger for persistence failures.
func WithLogger(logger Logger) MiddlewareOption {
	return func(g *guard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithClock injects a time source for tests.
func WithClock(now func() time.Time) MiddlewareOption {
	return func(g *guard) {
		if now != nil {
			g.now = now
		}
	}
}

// Middleware guards mutating routes with Idempotency-Key semantics: the first
// attempt runs the handler and stores its response; identical retries get the
// stored response back; a reused key with a different request is rejected.
func Middleware(store Store, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	if store == nil {
		return func(next http.Handler) http.Handler { return next }
	}

	g := &guard{
		store:  store,
		header: defaultHeaderName,
		ttl:    DefaultTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !mutating(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			g.serve(w, r, next)
		})
	}
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func (g *guard) serve(w http.ResponseWriter, r *http.Request, next http.Handler) {
	ctx := r.Context()

	key := strings.TrimSpace(r.Header.Get(g.header))
	if key == "" {
		httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_required", "missing "+g.header+" header", http.StatusBadRequest))
		return
	}

	body, err := bufferBody(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_body", "unable to read request body", http.StatusBadRequest))
		return
	}

	attempt := Attempt{
		Key:       key,
		Requester: requesterFrom(ctx),
		Digest:    requestDigest(r, body),
	}

	claim, err := g.store.Begin(ctx, attempt, g.now().UTC(), g.ttl)
	if err != nil {
		g.fail(ctx, w, key, err)
		return
	}

	switch claim.Outcome {
	case OutcomeReplay:
		writeReply(w, claim.Reply)
		return
	case OutcomeInFlight:
		httpx.WriteError(ctx, w, httpx.NewError("idempotency_in_progress", "another request with this idempotency key is still processing", http.StatusConflict))
		return
	}

	buffer := newReplyBuffer(w)
	next.ServeHTTP(buffer, r)

	reply := buffer.reply()
	if err := g.store.Finish(ctx, attempt, reply, g.now().UTC(), g.ttl); err != nil {
		if g.logger != nil {
			g.logger.Printf("idempotency: persist reply for key %s: %v", key, err)
		}
		if abandonErr := g.store.Abandon(ctx, attempt); abandonErr != nil && g.logger != nil {
			g.logger.Printf("idempotency: release key %s after persist failure: %v", key, abandonErr)
		}
		httpx.WriteError(ctx, w, httpx.NewError("idempotency_store_error", "unable to persist idempotency state", http.StatusInternalServerError))
		return
	}

	if err := buffer.flush(); err != nil && g.logger != nil {
		g.logger.Printf("idempotency: flush response for key %s: %v", key, err)
	}
}

func (g *guard) fail(ctx context.Context, w http.ResponseWriter, key string, err error) {
	if errors.Is(err, ErrKeyReused) {
		httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_conflict", "idempotency key already used for a different request", http.StatusConflict))
		return
	}
	if g.logger != nil {
		g.logger.Printf("idempotency: claim key %s: %v", key, err)
	}
	httpx.WriteError(ctx, w, httpx.NewError("idempotency_store_error", "unable to process idempotency key", http.StatusInternalServerError))
}

func bufferBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}

// requesterFrom scopes keys to the caller: a signed-in customer's uid, a
// service account subject on internal routes, otherwise a shared bucket for
// guest checkouts.
func requesterFrom(ctx context.Context) string {
	if identity, ok := auth.IdentityFromContext(ctx); ok && identity != nil && identity.UID != "" {
		return identity.UID
	}
	if svc, ok := auth.ServiceIdentityFromContext(ctx); ok && svc != nil && svc.Subject != "" {
		return svc.Subject
	}
	return "anonymous"
}

func requestDigest(r *http.Request, body []byte) string {
	parts := []string{
		strings.ToUpper(r.Method),
		r.URL.Path,
		r.URL.RawQuery,
		r.Header.Get("Content-Type"),
	}
	if len(body) > 0 {
		parts = append(parts, hashHex(body))
	}
	return hashHex([]byte(strings.Join(parts, "\n")))
}

func writeReply(w http.ResponseWriter, reply StoredReply) {
	header := w.Header()
	for name := range header {
		header.Del(name)
	}
	for name, values := range reply.Header {
		for _, value := range values {
			header.Add(name, value)
		}
	}
	header.Set(replayHeaderName, "true")

	status := reply.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(reply.Body) > 0 {
		_, _ = w.Write(reply.Body)
	}
}

// replyBuffer captures the handler's response so it can be persisted before
// reaching the wire. Nothing is written to the parent until flush.
type replyBuffer struct {
	parent http.ResponseWriter
	header http.Header
	status int
	body   bytes.Buffer
}

func newReplyBuffer(parent http.ResponseWriter) *replyBuffer {
	return &replyBuffer{parent: parent, header: make(http.Header)}
}

func (b *replyBuffer) Header() http.Header { return b.header }

func (b *replyBuffer) WriteHeader(status int) {
	if b.status == 0 && status > 0 {
		b.status = status
	}
}

func (b *replyBuffer) Write(data []byte) (int, error) {
	if b.status == 0 {
		b.status = http.StatusOK
	}
	return b.body.Write(data)
}

func (b *replyBuffer) reply() StoredReply {
	status := b.status
	if status == 0 {
		status = http.StatusOK
	}
	reply := StoredReply{Status: status, Header: b.header.Clone()}
	if b.body.Len() > 0 {
		reply.Body = b.body.Bytes()
	}
	return reply
}

func (b *replyBuffer) flush() error {
	dst := b.parent.Header()
	for name := range dst {
		dst.Del(name)
	}
	for name, values := range b.header {
		for _, value := range values {
			dst.Add(name, value)
		}
	}

	status := b.status
	if status == 0 {
		status = http.StatusOK
	}
	b.parent.WriteHeader(status)
	if b.body.Len() == 0 {
		return nil
	}
	_, err := b.parent.Write(b.body.Bytes())
	return err
}
