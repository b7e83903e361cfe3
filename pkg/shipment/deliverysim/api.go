package deliverysim

import (
	"context"
)

// APIClient defines the interface for delivery simulator API operations.
// This abstraction allows for mock implementations during testing and a
// real HTTP implementation in production.
type APIClient interface {
	// RegisterShipment registers a shipment with the simulator.
	RegisterShipment(ctx context.Context, req *RegisterRequest) (*RegisterResponse, error)

	// CreateLabel generates a hosted label for the shipment.
	CreateLabel(ctx context.Context, externalID string) (*LabelResponse, error)

	// GetStatus fetches the simulator's current status for the shipment.
	GetStatus(ctx context.Context, externalID string) (*StatusResponse, error)

	// ConfirmEvent acknowledges a callback event with the simulator. The
	// simulator requires this round trip before the event counts as
	// delivered to us.
	ConfirmEvent(ctx context.Context, externalID string, status string) error

	// CancelShipment cancels the shipment.
	CancelShipment(ctx context.Context, externalID string) (*CancelResponse, error)
}

// RegisterRequest registers a new shipment with the simulator.
// POST /delivery-sim/register
type RegisterRequest struct {
	Reference     string  `json:"reference"`
	WeightKG      float64 `json:"weight_kg"`
	SenderCity    string  `json:"sender_city"`
	SenderCountry string  `json:"sender_country"`
	ReceiverCity  string  `json:"receiver_city"`
	ReceiverZip   string  `json:"receiver_zip"`
}

// RegisterResponse is the simulator's registration result.
type RegisterResponse struct {
	ExternalID     string `json:"external_id"`
	TrackingNumber string `json:"tracking_number"`
}

// LabelResponse describes a hosted label.
// GET /delivery-sim/label/{external_id}
type LabelResponse struct {
	ExternalID string `json:"external_id"`
	Format     string `json:"format"`
	URL        string `json:"url"`
}

// StatusResponse is the simulator's status view.
// GET /delivery-sim/status/{external_id}
type StatusResponse struct {
	ExternalID string `json:"external_id"`
	Status     string `json:"status"`
}

// CancelResponse reports the cancellation outcome.
// POST /delivery-sim/cancel/{external_id}
type CancelResponse struct {
	ExternalID string `json:"external_id"`
	Cancelled  bool   `json:"cancelled"`
}

// APIError represents an error response from the simulator API.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}
