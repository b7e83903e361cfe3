// Package mock provides a mock provider implementation for testing.
package mock

import (
	"context"
	"fmt"
	"time"

	"github.com/tournevent/sendparcel/pkg/shipment"
)

// Provider is a mock delivery provider for testing. Zero value behavior is
// a well-behaved carrier; the hook fields override individual operations.
type Provider struct {
	slug string

	// Error hooks. When set, the corresponding operation returns the error.
	CreateErr error
	LabelErr  error
	VerifyErr error
	HandleErr error
	StatusErr error
	CancelErr error

	// StatusValue is what FetchShipmentStatus reports. Defaults to the
	// shipment's own status.
	StatusValue string

	// CancelRefused makes CancelShipment report false without erroring.
	CancelRefused bool

	// Calls records invoked operation names in order.
	Calls []string
}

// New creates a new mock provider.
func New(slug string) *Provider {
	return &Provider{slug: slug}
}

// Slug returns the provider slug.
func (p *Provider) Slug() string {
	return p.slug
}

// CreateShipment returns deterministic-looking provider identifiers.
func (p *Provider) CreateShipment(ctx context.Context, sh *shipment.Shipment, order shipment.Order) (*shipment.CreateResult, error) {
	p.Calls = append(p.Calls, "create_shipment")
	if p.CreateErr != nil {
		return nil, p.CreateErr
	}
	externalID := fmt.Sprintf("%s-ext-%d", p.slug, time.Now().UnixNano())
	return &shipment.CreateResult{
		ExternalID:     externalID,
		TrackingNumber: fmt.Sprintf("TRK-%s", externalID),
	}, nil
}

// CreateLabel returns a mock hosted label.
func (p *Provider) CreateLabel(ctx context.Context, sh *shipment.Shipment) (*shipment.LabelInfo, error) {
	p.Calls = append(p.Calls, "create_label")
	if p.LabelErr != nil {
		return nil, p.LabelErr
	}
	return &shipment.LabelInfo{
		Format: shipment.LabelPDF,
		URL:    fmt.Sprintf("https://labels.%s.mock/%s.pdf", p.slug, sh.ID),
	}, nil
}

// VerifyCallback returns VerifyErr when set.
func (p *Provider) VerifyCallback(ctx context.Context, payload map[string]any, headers map[string]string) error {
	p.Calls = append(p.Calls, "verify_callback")
	return p.VerifyErr
}

// HandleCallback applies the payload's status as a guarded transition,
// mirroring how real providers interpret callbacks.
func (p *Provider) HandleCallback(ctx context.Context, sh *shipment.Shipment, payload map[string]any, headers map[string]string) error {
	p.Calls = append(p.Calls, "handle_callback")
	if p.HandleErr != nil {
		return p.HandleErr
	}
	status, _ := payload["status"].(string)
	event, ok := shipment.EventForStatus(status)
	if !ok {
		return nil
	}
	if !sh.MayTrigger(event) {
		return nil
	}
	return sh.Trigger(event)
}

// FetchShipmentStatus reports StatusValue, or the shipment's own status.
func (p *Provider) FetchShipmentStatus(ctx context.Context, sh *shipment.Shipment) (*shipment.StatusResult, error) {
	p.Calls = append(p.Calls, "fetch_shipment_status")
	if p.StatusErr != nil {
		return nil, p.StatusErr
	}
	status := p.StatusValue
	if status == "" {
		status = string(sh.Status)
	}
	return &shipment.StatusResult{Status: status}, nil
}

// CancelShipment cancels unless CancelRefused is set.
func (p *Provider) CancelShipment(ctx context.Context, sh *shipment.Shipment) (bool, error) {
	p.Calls = append(p.Calls, "cancel_shipment")
	if p.CancelErr != nil {
		return false, p.CancelErr
	}
	return !p.CancelRefused, nil
}
