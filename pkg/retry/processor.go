package retry

import (
	"context"
	"errors"
	"time"

	"github.com/tournevent/sendparcel/pkg/shipment"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// ProcessorConfig holds retry processing knobs.
type ProcessorConfig struct {
	// MaxAttempts is the number of replay attempts before an entry is
	// exhausted. Defaults to DefaultMaxAttempts.
	MaxAttempts int

	// BackoffSeconds is the base delay for exponential backoff. Defaults
	// to DefaultBackoffSeconds.
	BackoffSeconds int
}

// Processor drains due retry entries and replays them through the
// shipment flow. It assumes at most one active processor at a time; a
// store-level lease is needed before running more.
type Processor struct {
	cfg    ProcessorConfig
	store  Store
	repo   shipment.Repository
	flow   *shipment.Flow
	logger *otelzap.Logger
	now    func() time.Time
}

// NewProcessor creates a retry processor.
func NewProcessor(cfg ProcessorConfig, store Store, repo shipment.Repository, flow *shipment.Flow, logger *otelzap.Logger) *Processor {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.BackoffSeconds <= 0 {
		cfg.BackoffSeconds = DefaultBackoffSeconds
	}
	return &Processor{
		cfg:    cfg,
		store:  store,
		repo:   repo,
		flow:   flow,
		logger: logger,
		now:    time.Now,
	}
}

// SetClock overrides the processor's clock. Test hook.
func (p *Processor) SetClock(now func() time.Time) {
	p.now = now
}

// ProcessDueRetries fetches up to maxBatch due entries and processes each
// independently: a failure on one entry never aborts the batch. Returns
// the number of entries processed, whatever their outcome.
func (p *Processor) ProcessDueRetries(ctx context.Context, maxBatch int) (int, error) {
	entries, err := p.store.GetDueRetries(ctx, maxBatch)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, entry := range entries {
		p.processEntry(ctx, entry)
		processed++
	}
	return processed, nil
}

func (p *Processor) processEntry(ctx context.Context, entry *Entry) {
	log := p.logger.Ctx(ctx)

	// Entries that somehow ran out of attempts without being terminated
	// are exhausted on sight.
	if entry.Attempts >= p.cfg.MaxAttempts {
		log.Warn("Retry already exhausted",
			zap.String("retry_id", entry.ID),
			zap.String("shipment_id", entry.ShipmentID),
			zap.Int("attempts", entry.Attempts),
		)
		p.markExhausted(ctx, entry, "")
		return
	}

	// Always act on the current record, never a cached one.
	sh, err := p.repo.GetByID(ctx, entry.ShipmentID)
	if err != nil {
		if errors.Is(err, shipment.ErrShipmentNotFound) {
			log.Error("Shipment gone, exhausting retry",
				zap.String("retry_id", entry.ID),
				zap.String("shipment_id", entry.ShipmentID),
			)
			p.markExhausted(ctx, entry, err.Error())
			return
		}
		p.recordFailure(ctx, entry, err)
		return
	}

	if _, err := p.flow.ReplayCallback(ctx, sh, entry.Payload, entry.Headers); err != nil {
		p.recordFailure(ctx, entry, err)
		return
	}

	if err := p.store.MarkSucceeded(ctx, entry.ID); err != nil {
		log.Error("Failed to mark retry succeeded",
			zap.String("retry_id", entry.ID), zap.Error(err))
		return
	}
	log.Info("Callback retry succeeded",
		zap.String("retry_id", entry.ID),
		zap.String("shipment_id", entry.ShipmentID),
		zap.Int("attempts", entry.Attempts),
	)
}

// recordFailure counts a failed attempt: exhaust past the cap, otherwise
// reschedule with exponential backoff.
func (p *Processor) recordFailure(ctx context.Context, entry *Entry, cause error) {
	log := p.logger.Ctx(ctx)
	attempts := entry.Attempts + 1

	if attempts >= p.cfg.MaxAttempts {
		log.Warn("Retry exhausted",
			zap.String("retry_id", entry.ID),
			zap.String("shipment_id", entry.ShipmentID),
			zap.Int("attempts", attempts),
			zap.Error(cause),
		)
		p.markExhausted(ctx, entry, cause.Error())
		return
	}

	nextRetryAt := ComputeNextRetryAt(attempts, p.cfg.BackoffSeconds, p.now())
	if err := p.store.MarkFailed(ctx, entry.ID, cause.Error(), nextRetryAt); err != nil {
		log.Error("Failed to reschedule retry",
			zap.String("retry_id", entry.ID), zap.Error(err))
		return
	}
	log.Info("Retry attempt failed, rescheduled",
		zap.String("retry_id", entry.ID),
		zap.String("shipment_id", entry.ShipmentID),
		zap.Int("attempts", attempts),
		zap.Time("next_retry_at", nextRetryAt),
		zap.Error(cause),
	)
}

func (p *Processor) markExhausted(ctx context.Context, entry *Entry, lastError string) {
	if err := p.store.MarkExhausted(ctx, entry.ID, lastError); err != nil {
		p.logger.Ctx(ctx).Error("Failed to mark retry exhausted",
			zap.String("retry_id", entry.ID), zap.Error(err))
	}
}
