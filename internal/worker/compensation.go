// Package worker runs the background jobs of the ledger: the compensation
// retry loop and the cron-driven maintenance jobs.
package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"sendflow/internal/models"
	"sendflow/internal/store"
)

const defaultBatchSize = 100

type Retrier interface {
	Retry(ctx context.Context, c *models.Compensation, maxAttempts int) error
}

// CompensationWorker retries compensations left pending by aborted sagas.
type CompensationWorker struct {
	comps       store.CompensationStore
	retrier     Retrier
	interval    time.Duration
	maxAttempts int
	// staleAfter is how long an armed compensation may exist before its saga
	// is assumed to have died mid-flight.
	staleAfter time.Duration
	logger     zerolog.Logger
	now        func() time.Time
}

func NewCompensationWorker(
	comps store.CompensationStore,
	retrier Retrier,
	interval time.Duration,
	maxAttempts int,
	logger zerolog.Logger,
) *CompensationWorker {
	return &CompensationWorker{
		comps:       comps,
		retrier:     retrier,
		interval:    interval,
		maxAttempts: maxAttempts,
		staleAfter:  10 * time.Minute,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (w *CompensationWorker) Run(ctx context.Context) {
	w.logger.Info().Dur("interval", w.interval).Int("max_attempts", w.maxAttempts).Msg("Compensation worker started")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("Compensation worker stopped")
			return
		case <-ticker.C:
			w.process(ctx)
		}
	}
}

func (w *CompensationWorker) process(ctx context.Context) {
	pending, err := w.comps.FetchCompensations(ctx, models.CompensationPending, w.now(), defaultBatchSize)
	if err != nil {
		w.logger.Error().Err(err).Msg("Failed to fetch pending compensations")
		return
	}

	if len(pending) > 0 {
		w.logger.Info().Int("count", len(pending)).Msg("Retrying pending compensations")
	}
	for _, c := range pending {
		if err := w.retrier.Retry(ctx, c, w.maxAttempts); err != nil {
			w.logger.Error().Err(err).
				Str("compensation_id", c.ID).
				Str("saga_id", c.SagaID).
				Int("attempts", c.Attempts).
				Msg("Compensation retry failed")
		}
	}

	// Applying rows this old were claimed by a retrier that died before
	// recording the outcome. Back in the queue, the ledger reference check
	// decides whether the inverse landed.
	abandoned, err := w.comps.FetchCompensations(ctx, models.CompensationApplying, w.now().Add(-w.staleAfter), defaultBatchSize)
	if err != nil {
		w.logger.Error().Err(err).Msg("Failed to fetch abandoned compensations")
		return
	}
	for _, c := range abandoned {
		if err := w.comps.ClaimCompensation(ctx, c.ID, models.CompensationApplying, models.CompensationPending); err != nil {
			w.logger.Error().Err(err).Str("compensation_id", c.ID).Msg("Failed to requeue compensation")
			continue
		}
		w.logger.Warn().Str("compensation_id", c.ID).Str("saga_id", c.SagaID).Msg("Requeued abandoned compensation")
	}

	// Armed rows this old belong to sagas that never committed or aborted.
	// Whether the forward step landed needs an operator, so they are only reported.
	stale, err := w.comps.FetchCompensations(ctx, models.CompensationArmed, w.now().Add(-w.staleAfter), defaultBatchSize)
	if err != nil {
		w.logger.Error().Err(err).Msg("Failed to fetch stale compensations")
		return
	}
	for _, c := range stale {
		w.logger.Warn().
			Str("compensation_id", c.ID).
			Str("saga_id", c.SagaID).
			Str("operation", c.Operation).
			Str("reference", c.Reference).
			Int("account_id", c.AccountID).
			Str("forward_reference", c.ForwardReference()).
			Msg("Saga left unfinished")
	}
}
