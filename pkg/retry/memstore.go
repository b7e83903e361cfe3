package retry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrEntryNotFound indicates the retry id does not exist in the store.
var ErrEntryNotFound = fmt.Errorf("retry entry not found")

// MemoryStore is the in-memory reference Store, suitable for tests and
// single-process deployments. Terminal entries are kept for inspection but
// never returned by GetDueRetries.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry

	backoffSeconds int
	now            func() time.Time
}

// NewMemoryStore creates an in-memory store scheduling first attempts one
// backoff interval out. backoffSeconds <= 0 falls back to the default.
func NewMemoryStore(backoffSeconds int) *MemoryStore {
	if backoffSeconds <= 0 {
		backoffSeconds = DefaultBackoffSeconds
	}
	return &MemoryStore{
		entries:        make(map[string]*Entry),
		backoffSeconds: backoffSeconds,
		now:            time.Now,
	}
}

// SetClock overrides the store's clock. Test hook.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Enqueue records a failed callback for later replay.
func (s *MemoryStore) Enqueue(ctx context.Context, shipmentID string, payload map[string]any, headers map[string]string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	e := &Entry{
		ID:          uuid.New().String(),
		ShipmentID:  shipmentID,
		Payload:     clonePayload(payload),
		Headers:     cloneHeaders(headers),
		Attempts:    0,
		NextRetryAt: ComputeNextRetryAt(1, s.backoffSeconds, now),
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.entries[e.ID] = e
	return e.ID, nil
}

// GetDueRetries returns pending entries due at or before now, oldest due
// time first.
func (s *MemoryStore) GetDueRetries(ctx context.Context, limit int) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.now()

	due := make([]*Entry, 0)
	for _, e := range s.entries {
		if e.Status == StatusPending && !e.NextRetryAt.After(now) {
			copied := *e
			copied.Payload = clonePayload(e.Payload)
			copied.Headers = cloneHeaders(e.Headers)
			due = append(due, &copied)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].NextRetryAt.Before(due[j].NextRetryAt)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

// MarkSucceeded terminates the entry as succeeded.
func (s *MemoryStore) MarkSucceeded(ctx context.Context, id string) error {
	return s.update(id, func(e *Entry) {
		e.Status = StatusSucceeded
	})
}

// MarkFailed records a failed attempt and reschedules the entry.
func (s *MemoryStore) MarkFailed(ctx context.Context, id string, lastError string, nextRetryAt time.Time) error {
	return s.update(id, func(e *Entry) {
		e.Attempts++
		e.LastError = lastError
		e.NextRetryAt = nextRetryAt
		e.Status = StatusPending
	})
}

// MarkExhausted terminates the entry as exhausted.
func (s *MemoryStore) MarkExhausted(ctx context.Context, id string, lastError string) error {
	return s.update(id, func(e *Entry) {
		if lastError != "" {
			e.LastError = lastError
		}
		e.Status = StatusExhausted
	})
}

// Get returns a copy of the entry by id. Used by tests and inspection
// endpoints.
func (s *MemoryStore) Get(id string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	copied := *e
	copied.Payload = clonePayload(e.Payload)
	copied.Headers = cloneHeaders(e.Headers)
	return &copied, nil
}

// Count returns the number of stored entries, terminal included.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *MemoryStore) update(id string, apply func(*Entry)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	apply(e)
	e.UpdatedAt = s.now()
	return nil
}

func clonePayload(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneHeaders(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
