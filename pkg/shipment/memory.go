package shipment

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MemoryRepository is an in-memory Repository for tests and single-process
// deployments. Records are copied in and out so callers never share memory
// with the store, and Save performs a compare-and-swap on Version.
type MemoryRepository struct {
	mu        sync.RWMutex
	shipments map[string]Shipment
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		shipments: make(map[string]Shipment),
	}
}

// GetByID returns a copy of the current record.
func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*Shipment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sh, ok := r.shipments[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrShipmentNotFound, id)
	}
	return &sh, nil
}

// Create persists a new shipment, assigning an ID when the caller left it
// empty.
func (r *MemoryRepository) Create(ctx context.Context, sh *Shipment) (*Shipment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sh.ID == "" {
		sh.ID = uuid.New().String()
	}
	sh.Version = 1
	r.shipments[sh.ID] = *sh
	return sh, nil
}

// Save stores the record if the caller's Version matches the stored one,
// then bumps the version. A mismatch means another writer got there first.
func (r *MemoryRepository) Save(ctx context.Context, sh *Shipment) (*Shipment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.shipments[sh.ID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrShipmentNotFound, sh.ID)
	}
	if stored.Version != sh.Version {
		return nil, fmt.Errorf("%w: %s (have %d, stored %d)",
			ErrStaleShipment, sh.ID, sh.Version, stored.Version)
	}
	sh.Version++
	r.shipments[sh.ID] = *sh
	return sh, nil
}

// UpdateStatus sets the status and any known extra fields by id.
func (r *MemoryRepository) UpdateStatus(ctx context.Context, id string, status Status, fields map[string]string) (*Shipment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sh, ok := r.shipments[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrShipmentNotFound, id)
	}
	sh.Status = status
	for k, v := range fields {
		switch k {
		case "external_id":
			sh.ExternalID = v
		case "tracking_number":
			sh.TrackingNumber = v
		case "label_url":
			sh.LabelURL = v
		}
	}
	sh.Version++
	r.shipments[id] = sh
	return &sh, nil
}

// Count returns the number of stored shipments.
func (r *MemoryRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.shipments)
}
