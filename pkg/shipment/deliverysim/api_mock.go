package deliverysim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tournevent/sendparcel/pkg/shipment"
)

// MockAPIClient is a mock implementation of APIClient for testing. It
// keeps registered shipments in memory and supports per-call hooks plus a
// blanket error switch.
type MockAPIClient struct {
	// SimulateErrors makes every call fail with a communication error.
	SimulateErrors  bool
	SimulateLatency time.Duration

	OnRegisterShipment func(ctx context.Context, req *RegisterRequest) (*RegisterResponse, error)
	OnCreateLabel      func(ctx context.Context, externalID string) (*LabelResponse, error)
	OnGetStatus        func(ctx context.Context, externalID string) (*StatusResponse, error)
	OnConfirmEvent     func(ctx context.Context, externalID string, status string) error
	OnCancelShipment   func(ctx context.Context, externalID string) (*CancelResponse, error)

	mu        sync.Mutex
	shipments map[string]string // external id -> status
}

// NewMockAPIClient creates a new mock API client with default behavior.
func NewMockAPIClient() *MockAPIClient {
	return &MockAPIClient{
		shipments: make(map[string]string),
	}
}

func (m *MockAPIClient) simulate() error {
	if m.SimulateLatency > 0 {
		time.Sleep(m.SimulateLatency)
	}
	if m.SimulateErrors {
		return fmt.Errorf("%w: simulated network failure", shipment.ErrCommunication)
	}
	return nil
}

// RegisterShipment registers a mock shipment.
func (m *MockAPIClient) RegisterShipment(ctx context.Context, req *RegisterRequest) (*RegisterResponse, error) {
	if err := m.simulate(); err != nil {
		return nil, err
	}
	if m.OnRegisterShipment != nil {
		return m.OnRegisterShipment(ctx, req)
	}

	externalID := "sim-" + uuid.New().String()[:8]
	m.mu.Lock()
	m.shipments[externalID] = "created"
	m.mu.Unlock()

	return &RegisterResponse{
		ExternalID:     externalID,
		TrackingNumber: "SIM-" + externalID,
	}, nil
}

// CreateLabel returns a mock hosted label.
func (m *MockAPIClient) CreateLabel(ctx context.Context, externalID string) (*LabelResponse, error) {
	if err := m.simulate(); err != nil {
		return nil, err
	}
	if m.OnCreateLabel != nil {
		return m.OnCreateLabel(ctx, externalID)
	}
	return &LabelResponse{
		ExternalID: externalID,
		Format:     "pdf",
		URL:        fmt.Sprintf("https://labels.delivery-sim.mock/%s.pdf", externalID),
	}, nil
}

// GetStatus returns the mock shipment status.
func (m *MockAPIClient) GetStatus(ctx context.Context, externalID string) (*StatusResponse, error) {
	if err := m.simulate(); err != nil {
		return nil, err
	}
	if m.OnGetStatus != nil {
		return m.OnGetStatus(ctx, externalID)
	}

	m.mu.Lock()
	status, ok := m.shipments[externalID]
	m.mu.Unlock()
	if !ok {
		return nil, &APIError{Code: "NOT_FOUND", Message: "unknown shipment " + externalID}
	}
	return &StatusResponse{ExternalID: externalID, Status: status}, nil
}

// SetStatus overrides the mock shipment status. Test hook.
func (m *MockAPIClient) SetStatus(externalID, status string) {
	m.mu.Lock()
	m.shipments[externalID] = status
	m.mu.Unlock()
}

// ConfirmEvent acknowledges a mock callback event.
func (m *MockAPIClient) ConfirmEvent(ctx context.Context, externalID string, status string) error {
	if err := m.simulate(); err != nil {
		return err
	}
	if m.OnConfirmEvent != nil {
		return m.OnConfirmEvent(ctx, externalID, status)
	}
	m.mu.Lock()
	m.shipments[externalID] = status
	m.mu.Unlock()
	return nil
}

// CancelShipment cancels a mock shipment.
func (m *MockAPIClient) CancelShipment(ctx context.Context, externalID string) (*CancelResponse, error) {
	if err := m.simulate(); err != nil {
		return nil, err
	}
	if m.OnCancelShipment != nil {
		return m.OnCancelShipment(ctx, externalID)
	}
	m.mu.Lock()
	m.shipments[externalID] = "cancelled"
	m.mu.Unlock()
	return &CancelResponse{ExternalID: externalID, Cancelled: true}, nil
}
