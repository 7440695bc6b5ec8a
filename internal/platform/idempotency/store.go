package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"
)

// Customers on flaky connections retry POST /checkout, and gateways redeliver
// webhooks. The first attempt's response is stored under the Idempotency-Key
// and replayed verbatim to identical retries, so an order is never placed (or
// a payment applied) twice for the same key.

// DefaultTTL bounds how long a completed attempt can still be replayed.
const DefaultTTL = 24 * time.Hour

// ErrKeyReused is returned when an idempotency key arrives with a request that
// does not match the one it was first used for.
var ErrKeyReused = errors.New("idempotency: key reused with a different request")

// Attempt identifies one idempotent request: the customer-supplied key, the
// authenticated requester it is scoped to, and a digest of the request itself.
type Attempt struct {
	Key       string
	Requester string
	Digest    string
}

// id is the storage document id. Keys are scoped per requester so two
// customers picking the same key never collide.
func (a Attempt) id() string {
	return hashHex([]byte(strings.TrimSpace(a.Key) + "|" + a.Requester))
}

// Outcome is the verdict on an attempt.
type Outcome int

const (
	// OutcomeProceed means this key is fresh and the handler should run.
	OutcomeProceed Outcome = iota
	// OutcomeReplay means a stored reply exists and must be returned as-is.
	OutcomeReplay
	// OutcomeInFlight means another request holds the key right now.
	OutcomeInFlight
)

// StoredReply is the response captured for replay.
type StoredReply struct {
	Status int
	Header http.Header
	Body   []byte
}

// Claim is the result of Begin: the outcome plus, on replay, the stored reply.
type Claim struct {
	Outcome Outcome
	Reply   StoredReply
}

// Store persists attempt state across retries.
type Store interface {
	// Begin claims the attempt's key, or reports the stored reply / in-flight holder.
	Begin(ctx context.Context, attempt Attempt, now time.Time, ttl time.Duration) (Claim, error)
	// Finish stores the handler's reply for replay to later retries.
	Finish(ctx context.Context, attempt Attempt, reply StoredReply, now time.Time, ttl time.Duration) error
	// Abandon releases the key so the customer can retry after a failure.
	Abandon(ctx context.Context, attempt Attempt) error
	// CleanupExpired removes up to limit attempts whose replay window has passed.
	CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

func hashHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Hop-by-hop and negotiated headers must not be replayed into a later connection.
var unsafeReplayHeaders = map[string]struct{}{
	"Content-Length":      {},
	"Date":                {},
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailers":            {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
}

func replayableHeaders(header http.Header) map[string][]string {
	if len(header) == 0 {
		return nil
	}
	kept := make(map[string][]string, len(header))
	for name, values := range header {
		canonical := http.CanonicalHeaderKey(name)
		if _, unsafe := unsafeReplayHeaders[canonical]; unsafe {
			continue
		}
		kept[canonical] = append([]string(nil), values...)
	}
	if len(kept) == 0 {
		return nil
	}
	return kept
}
