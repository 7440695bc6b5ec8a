package idempotency

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultCollection = "idempotency_attempts"
	txMaxAttempts     = 5
)

const (
	stateHeld = "held"
	stateDone = "done"
)

// FirestoreStore persists attempts in Firestore so replay protection survives
// restarts and works across instances. Claims run inside transactions: two
// concurrent checkouts with the same key race on the same document and only
// one proceeds.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

// FirestoreOption adjusts store construction.
type FirestoreOption func(*FirestoreStore)

// WithCollection overrides the attempts collection name.
func WithCollection(name string) FirestoreOption {
	return func(s *FirestoreStore) {
		if name != "" {
			s.collection = name
		}
	}
}

// NewFirestoreStore constructs a Firestore-backed store.
func NewFirestoreStore(client *firestore.Client, opts ...FirestoreOption) *FirestoreStore {
	store := &FirestoreStore{client: client, collection: defaultCollection}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store
}

type attemptDoc struct {
	Key         string              `firestore:"key"`
	Requester   string              `firestore:"requester"`
	Digest      string              `firestore:"digest"`
	State       string              `firestore:"state"`
	ReplyStatus int                 `firestore:"reply_status"`
	ReplyHeader map[string][]string `firestore:"reply_header"`
	ReplyBody   []byte              `firestore:"reply_body"`
	CreatedAt   time.Time           `firestore:"created_at"`
	ExpiresAt   time.Time           `firestore:"expires_at"`
}

func newAttemptDoc(attempt Attempt, now time.Time, ttl time.Duration) attemptDoc {
	return attemptDoc{
		Key:       attempt.Key,
		Requester: attempt.Requester,
		Digest:    attempt.Digest,
		State:     stateHeld,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

func (d attemptDoc) storedReply() StoredReply {
	return StoredReply{
		Status: d.ReplyStatus,
		Header: headersFromStorage(d.ReplyHeader),
		Body:   d.ReplyBody,
	}
}

// Begin implements Store.
func (s *FirestoreStore) Begin(ctx context.Context, attempt Attempt, now time.Time, ttl time.Duration) (Claim, error) {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	ref := s.client.Collection(s.collection).Doc(attempt.id())

	var claim Claim
	err := s.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			claim = Claim{Outcome: OutcomeProceed}
			return tx.Set(ref, newAttemptDoc(attempt, now, ttl))
		}
		if err != nil {
			return err
		}

		var doc attemptDoc
		if err := snap.DataTo(&doc); err != nil {
			return err
		}
		if doc.Digest != attempt.Digest {
			return ErrKeyReused
		}
		if !doc.ExpiresAt.IsZero() && !now.Before(doc.ExpiresAt) {
			// Replay window elapsed; the key is fresh again.
			claim = Claim{Outcome: OutcomeProceed}
			return tx.Set(ref, newAttemptDoc(attempt, now, ttl))
		}
		if doc.State == stateDone {
			claim = Claim{Outcome: OutcomeReplay, Reply: doc.storedReply()}
			return nil
		}
		claim = Claim{Outcome: OutcomeInFlight}
		return nil
	}, firestore.MaxAttempts(txMaxAttempts))

	return claim, err
}

// Finish implements Store.
func (s *FirestoreStore) Finish(ctx context.Context, attempt Attempt, reply StoredReply, now time.Time, ttl time.Duration) error {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	ref := s.client.Collection(s.collection).Doc(attempt.id())

	header := replayableHeaders(reply.Header)
	var body []byte
	if len(reply.Body) > 0 {
		body = append([]byte(nil), reply.Body...)
	}

	return s.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		doc := newAttemptDoc(attempt, now, ttl)
		snap, err := tx.Get(ref)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}
		if err == nil {
			if err := snap.DataTo(&doc); err != nil {
				return err
			}
			if doc.Digest != attempt.Digest {
				return ErrKeyReused
			}
		}

		doc.State = stateDone
		doc.ReplyStatus = reply.Status
		doc.ReplyHeader = header
		doc.ReplyBody = body
		doc.ExpiresAt = now.Add(ttl)
		return tx.Set(ref, doc)
	}, firestore.MaxAttempts(txMaxAttempts))
}

// Abandon implements Store.
func (s *FirestoreStore) Abandon(ctx context.Context, attempt Attempt) error {
	_, err := s.client.Collection(s.collection).Doc(attempt.id()).Delete(ctx)
	if status.Code(err) == codes.NotFound {
		return nil
	}
	return err
}

// CleanupExpired implements Store. It is invoked from a background sweeper in
// the API process.
func (s *FirestoreStore) CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	now = now.UTC()
	if limit <= 0 {
		limit = 100
	}

	docs, err := s.client.Collection(s.collection).
		Where("expires_at", "<=", now).
		Limit(limit).
		Documents(ctx).
		GetAll()
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, nil
	}

	batch := s.client.Batch()
	for _, doc := range docs {
		batch.Delete(doc.Ref)
	}
	if _, err := batch.Commit(ctx); err != nil {
		return 0, err
	}
	return len(docs), nil
}
