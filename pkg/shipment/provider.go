package shipment

import (
	"context"
)

// CreateResult holds the provider identifiers assigned when a shipment is
// registered with the carrier.
type CreateResult struct {
	ExternalID     string
	TrackingNumber string
}

// LabelInfo describes a generated shipping label.
type LabelInfo struct {
	Format LabelFormat
	URL    string
}

// StatusResult is the provider's view of a shipment's current status.
// Status is the provider's raw status string, mapped through
// EventForStatus by callers.
type StatusResult struct {
	Status string
}

// Provider defines the interface that all delivery providers must
// implement. Implementations are registered in a Registry under their slug.
//
// All calls may block on network I/O; transient transport failures must
// surface as errors matching ErrCommunication so the flow classifies them
// as retryable.
type Provider interface {
	// Slug returns the provider identifier (e.g., "delivery-sim").
	Slug() string

	// CreateShipment registers the shipment with the carrier and returns
	// the carrier-side identifiers.
	CreateShipment(ctx context.Context, sh *Shipment, order Order) (*CreateResult, error)

	// CreateLabel generates (or fetches) the shipping label.
	CreateLabel(ctx context.Context, sh *Shipment) (*LabelInfo, error)

	// VerifyCallback checks the authenticity and shape of an inbound
	// callback. A failure matching ErrInvalidCallback is permanent and
	// must never be retried.
	VerifyCallback(ctx context.Context, payload map[string]any, headers map[string]string) error

	// HandleCallback interprets a verified callback and applies the
	// resulting guarded transition to the shipment. Illegal or unknown
	// statuses are silent no-ops to tolerate duplicate and out-of-order
	// webhooks.
	HandleCallback(ctx context.Context, sh *Shipment, payload map[string]any, headers map[string]string) error

	// FetchShipmentStatus asks the carrier for the shipment's current status.
	FetchShipmentStatus(ctx context.Context, sh *Shipment) (*StatusResult, error)

	// CancelShipment cancels the shipment with the carrier. The bool
	// reports whether the carrier actually cancelled it.
	CancelShipment(ctx context.Context, sh *Shipment) (bool, error)
}
