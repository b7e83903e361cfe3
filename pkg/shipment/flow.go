package shipment

import (
	"context"
	"errors"
	"fmt"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Flow orchestrates provider calls with state-machine transitions. It is
// stateless and safe to share across goroutines; every operation works on
// the shipment record it is handed.
type Flow struct {
	registry *Registry
	repo     Repository
	retries  CallbackEnqueuer // nil disables the enqueue side effect
	logger   *otelzap.Logger
}

// NewFlow creates a shipment flow. retries may be nil when the host has no
// retry queue; HandleCallback then only classifies.
func NewFlow(registry *Registry, repo Repository, retries CallbackEnqueuer, logger *otelzap.Logger) *Flow {
	return &Flow{
		registry: registry,
		repo:     repo,
		retries:  retries,
		logger:   logger,
	}
}

// CreateShipment creates a shipment for the order with the given provider:
// the record starts in "new", the provider registers it with the carrier,
// and on success it transitions to "created" carrying the provider's
// identifiers.
func (f *Flow) CreateShipment(ctx context.Context, order Order, providerSlug string) (*Shipment, error) {
	provider, err := f.registry.Get(providerSlug)
	if err != nil {
		return nil, err
	}

	sh := &Shipment{
		Status:         StatusNew,
		Provider:       providerSlug,
		OrderReference: order.Reference(),
	}
	sh, err = f.repo.Create(ctx, sh)
	if err != nil {
		return nil, fmt.Errorf("creating shipment record: %w", err)
	}

	result, err := provider.CreateShipment(ctx, sh, order)
	if err != nil {
		f.logger.Ctx(ctx).Error("Provider shipment creation failed",
			zap.String("shipment_id", sh.ID),
			zap.String("provider", providerSlug),
			zap.Error(err),
		)
		return nil, err
	}

	sh.ExternalID = result.ExternalID
	sh.TrackingNumber = result.TrackingNumber
	if err := sh.Trigger(EventMarkCreated); err != nil {
		return nil, err
	}
	return f.repo.Save(ctx, sh)
}

// CreateLabel fetches the shipping label from the provider and transitions
// the shipment to "label_ready". Requesting a label from a state the
// transition is illegal from is a synchronous caller error.
func (f *Flow) CreateLabel(ctx context.Context, sh *Shipment) (*Shipment, error) {
	if sh.Status != StatusLabelReady && !sh.MayTrigger(EventMarkLabelReady) {
		return nil, &InvalidTransitionError{
			Current: sh.Status,
			Event:   EventMarkLabelReady,
			Allowed: transitions[EventMarkLabelReady].sources,
		}
	}

	provider, err := f.registry.Get(sh.Provider)
	if err != nil {
		return nil, err
	}

	label, err := provider.CreateLabel(ctx, sh)
	if err != nil {
		f.logger.Ctx(ctx).Error("Label creation failed",
			zap.String("shipment_id", sh.ID),
			zap.String("provider", sh.Provider),
			zap.Error(err),
		)
		return nil, err
	}

	sh.LabelURL = label.URL
	if err := sh.Trigger(EventMarkLabelReady); err != nil {
		return nil, err
	}
	return f.repo.Save(ctx, sh)
}

// RefreshStatus pulls the provider's view of the shipment and reconciles
// it forward. Unknown statuses and transitions that are illegal from the
// current state (e.g. the provider reporting "in_transit" after the
// shipment was delivered) are silent no-ops, logged for monitoring.
func (f *Flow) RefreshStatus(ctx context.Context, sh *Shipment) (*Shipment, error) {
	provider, err := f.registry.Get(sh.Provider)
	if err != nil {
		return nil, err
	}

	result, err := provider.FetchShipmentStatus(ctx, sh)
	if err != nil {
		return nil, err
	}

	event, ok := EventForStatus(result.Status)
	if !ok {
		f.logger.Ctx(ctx).Warn("Unknown provider status ignored",
			zap.String("shipment_id", sh.ID),
			zap.String("provider", sh.Provider),
			zap.String("status", result.Status),
		)
		return sh, nil
	}
	if sh.Status == transitions[event].target {
		return sh, nil
	}
	if !sh.MayTrigger(event) {
		f.logger.Ctx(ctx).Debug("Stale provider status ignored",
			zap.String("shipment_id", sh.ID),
			zap.String("current_status", string(sh.Status)),
			zap.String("provider_status", result.Status),
		)
		return sh, nil
	}

	if err := sh.Trigger(event); err != nil {
		return nil, err
	}
	return f.repo.Save(ctx, sh)
}

// Cancel asks the provider to cancel the shipment and records the
// cancellation when the carrier confirms it.
func (f *Flow) Cancel(ctx context.Context, sh *Shipment) (*Shipment, error) {
	if !sh.MayTrigger(EventMarkCancelled) {
		return nil, &InvalidTransitionError{
			Current: sh.Status,
			Event:   EventMarkCancelled,
			Allowed: transitions[EventMarkCancelled].sources,
		}
	}

	provider, err := f.registry.Get(sh.Provider)
	if err != nil {
		return nil, err
	}

	cancelled, err := provider.CancelShipment(ctx, sh)
	if err != nil {
		return nil, err
	}
	if !cancelled {
		return nil, NewProviderError(sh.Provider, "CANCEL_REFUSED",
			"carrier refused cancellation")
	}

	if err := sh.Trigger(EventMarkCancelled); err != nil {
		return nil, err
	}
	return f.repo.Save(ctx, sh)
}

// HandleCallback drives an inbound provider callback through verification,
// interpretation, and persistence. Classification:
//
//   - verification failure (ErrInvalidCallback): permanent, propagated
//     without touching the retry queue;
//   - communication failure (ErrCommunication or a retryable provider
//     error): a retry entry is enqueued as a side effect, then the error
//     still propagates so the boundary can answer 502;
//   - anything else: propagated untouched.
func (f *Flow) HandleCallback(ctx context.Context, sh *Shipment, payload map[string]any, headers map[string]string) (*Shipment, error) {
	updated, err := f.applyCallback(ctx, sh, payload, headers)
	if err != nil && IsRetryable(err) && f.retries != nil {
		retryID, enqErr := f.retries.Enqueue(ctx, sh.ID, payload, headers)
		if enqErr != nil {
			f.logger.Ctx(ctx).Error("Failed to enqueue callback retry",
				zap.String("shipment_id", sh.ID),
				zap.Error(enqErr),
			)
		} else {
			f.logger.Ctx(ctx).Info("Callback enqueued for retry",
				zap.String("shipment_id", sh.ID),
				zap.String("retry_id", retryID),
				zap.Error(err),
			)
		}
	}
	return updated, err
}

// ReplayCallback re-drives a previously failed callback through the same
// verification and interpretation path, without the enqueue side effect.
// The retry processor uses it so replays never spawn duplicate entries.
func (f *Flow) ReplayCallback(ctx context.Context, sh *Shipment, payload map[string]any, headers map[string]string) (*Shipment, error) {
	return f.applyCallback(ctx, sh, payload, headers)
}

func (f *Flow) applyCallback(ctx context.Context, sh *Shipment, payload map[string]any, headers map[string]string) (*Shipment, error) {
	provider, err := f.registry.Get(sh.Provider)
	if err != nil {
		return nil, err
	}

	if err := provider.VerifyCallback(ctx, payload, headers); err != nil {
		if errors.Is(err, ErrInvalidCallback) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidCallback, err)
	}

	before := sh.Status
	if err := provider.HandleCallback(ctx, sh, payload, headers); err != nil {
		return nil, err
	}
	if sh.Status == before {
		// Duplicate or out-of-order webhook; nothing to persist.
		return sh, nil
	}

	return f.repo.Save(ctx, sh)
}
