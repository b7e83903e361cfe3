package shipment

import (
	"context"
)

// Repository is the persistence boundary for shipments. Implementations
// should perform an optimistic-concurrency check on Save (compare the
// stored Version against the one on the record) to avoid lost updates from
// concurrent callbacks; MemoryRepository does.
type Repository interface {
	// GetByID returns the current shipment record, or an error matching
	// ErrShipmentNotFound.
	GetByID(ctx context.Context, id string) (*Shipment, error)

	// Create persists a new shipment, assigning its ID.
	Create(ctx context.Context, sh *Shipment) (*Shipment, error)

	// Save persists the full record.
	Save(ctx context.Context, sh *Shipment) (*Shipment, error)

	// UpdateStatus sets the status and any extra fields by id, bypassing
	// the caller's in-memory copy.
	UpdateStatus(ctx context.Context, id string, status Status, fields map[string]string) (*Shipment, error)
}

// Order exposes what providers need from the originating order when
// registering a shipment with the carrier.
type Order interface {
	Reference() string
	TotalWeight() float64
	Parcels() []Parcel
	SenderAddress() Address
	ReceiverAddress() Address
}

// OrderResolver resolves order ids to core Order values. Implemented by
// the host application.
type OrderResolver interface {
	Resolve(ctx context.Context, orderID string) (Order, error)
}

// CallbackEnqueuer is the slice of the retry store the flow needs: record
// a transiently failed callback for later replay.
type CallbackEnqueuer interface {
	Enqueue(ctx context.Context, shipmentID string, payload map[string]any, headers map[string]string) (string, error)
}
