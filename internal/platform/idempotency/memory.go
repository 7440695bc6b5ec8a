package idempotency

import (
	"context"
	"net/http"
	"sync"
	"time"
)

type memoryRecord struct {
	attempt   Attempt
	done      bool
	reply     StoredReply
	expiresAt time.Time
}

// MemoryStore keeps attempts in process memory. It backs local development
// and tests; production uses the Firestore store.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]memoryRecord
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]memoryRecord)}
}

// Begin implements Store.
func (s *MemoryStore) Begin(_ context.Context, attempt Attempt, now time.Time, ttl time.Duration) (Claim, error) {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[attempt.id()]
	if !ok || !now.Before(record.expiresAt) {
		s.records[attempt.id()] = memoryRecord{attempt: attempt, expiresAt: now.Add(ttl)}
		return Claim{Outcome: OutcomeProceed}, nil
	}
	if record.attempt.Digest != attempt.Digest {
		return Claim{}, ErrKeyReused
	}
	if record.done {
		return Claim{Outcome: OutcomeReplay, Reply: record.reply}, nil
	}
	return Claim{Outcome: OutcomeInFlight}, nil
}

// Finish implements Store.
func (s *MemoryStore) Finish(_ context.Context, attempt Attempt, reply StoredReply, now time.Time, ttl time.Duration) error {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[attempt.id()]
	if ok && record.attempt.Digest != attempt.Digest {
		return ErrKeyReused
	}

	stored := StoredReply{Status: reply.Status, Header: headersFromStorage(replayableHeaders(reply.Header))}
	if len(reply.Body) > 0 {
		stored.Body = append([]byte(nil), reply.Body...)
	}
	s.records[attempt.id()] = memoryRecord{
		attempt:   attempt,
		done:      true,
		reply:     stored,
		expiresAt: now.Add(ttl),
	}
	return nil
}

// Abandon implements Store.
func (s *MemoryStore) Abandon(_ context.Context, attempt Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, attempt.id())
	return nil
}

// CleanupExpired implements Store.
func (s *MemoryStore) CleanupExpired(_ context.Context, now time.Time, limit int) (int, error) {
	now = now.UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, record := range s.records {
		if limit > 0 && removed >= limit {
			break
		}
		if now.Before(record.expiresAt) {
			continue
		}
		delete(s.records, id)
		removed++
	}
	return removed, nil
}

func headersFromStorage(values map[string][]string) http.Header {
	if len(values) == 0 {
		return http.Header{}
	}
	header := make(http.Header, len(values))
	for name, vals := range values {
		header[name] = append([]string(nil), vals...)
	}
	return header
}
