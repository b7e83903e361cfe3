// Package retry implements the callback retry queue: durable entries for
// transiently failed provider callbacks, exponential backoff scheduling,
// and the processor that replays due entries through the shipment flow.
package retry

import (
	"context"
	"time"
)

// Status represents the lifecycle state of a retry entry.
type Status string

const (
	// StatusPending indicates the entry is scheduled for a future attempt.
	StatusPending Status = "pending"
	// StatusSucceeded indicates the replay went through. Terminal.
	StatusSucceeded Status = "succeeded"
	// StatusExhausted indicates the entry used all permitted attempts and
	// will never be retried again. Terminal.
	StatusExhausted Status = "exhausted"
)

// Entry is one queued callback replay. The payload and headers are stored
// verbatim so the provider can re-verify signatures on replay. The
// shipment is referenced by id only; the processor re-resolves it before
// every attempt.
type Entry struct {
	ID         string
	ShipmentID string
	Payload    map[string]any
	Headers    map[string]string

	// Attempts counts completed replay attempts. A freshly enqueued entry
	// has 0; a pending entry always has a non-zero NextRetryAt.
	Attempts    int
	NextRetryAt time.Time
	LastError   string
	Status      Status

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store is the durable record of failed callback attempts. The interface
// is deliberately flat so a SQL implementation can add a claim/lease
// column for horizontal scaling without changing the processor.
type Store interface {
	// Enqueue records a transiently failed callback and schedules its
	// first replay one backoff interval from now. Returns the retry id.
	Enqueue(ctx context.Context, shipmentID string, payload map[string]any, headers map[string]string) (string, error)

	// GetDueRetries returns up to limit pending entries whose NextRetryAt
	// has passed, ordered by due time.
	GetDueRetries(ctx context.Context, limit int) ([]*Entry, error)

	// MarkSucceeded terminates the entry as succeeded.
	MarkSucceeded(ctx context.Context, id string) error

	// MarkFailed records a failed attempt: increments Attempts, stores the
	// error, and reschedules the entry at nextRetryAt.
	MarkFailed(ctx context.Context, id string, lastError string, nextRetryAt time.Time) error

	// MarkExhausted terminates the entry as exhausted, recording the last
	// error when non-empty.
	MarkExhausted(ctx context.Context, id string, lastError string) error
}
