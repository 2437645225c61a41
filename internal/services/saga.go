package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"sendflow/internal/models"
	"sendflow/internal/store"
)

// ErrCompensationIncomplete is returned by Abort when at least one inverse
// could not be applied and was left in the compensation log.
var ErrCompensationIncomplete = errors.New("compensation left pending")

// SagaRunner executes multi-step balance mutations. Every forward step is
// preceded by a durable record of its inverse, so an aborted saga can be
// rolled back later even if the process dies halfway.
type SagaRunner struct {
	ledger store.Ledger
	comps  store.CompensationStore
	logger zerolog.Logger
}

func NewSagaRunner(ledger store.Ledger, comps store.CompensationStore, logger zerolog.Logger) *SagaRunner {
	return &SagaRunner{
		ledger: ledger,
		comps:  comps,
		logger: logger,
	}
}

type Saga struct {
	id        string
	operation string
	reference string
	runner    *SagaRunner
	applied   []*models.Compensation
}

// Start opens a saga for operation on the record identified by reference.
func (r *SagaRunner) Start(operation, reference string) *Saga {
	return &Saga{
		id:        uuid.NewString(),
		operation: operation,
		reference: reference,
		runner:    r,
	}
}

func (s *Saga) ID() string {
	return s.id
}

// Apply runs one Balance Primitive call as a saga step.
func (s *Saga) Apply(ctx context.Context, accountID int, delta decimal.Decimal) (decimal.Decimal, error) {
	c := models.NewCompensation(s.id, s.operation, s.reference, accountID, delta.Neg())
	if err := s.runner.comps.RecordCompensation(ctx, c); err != nil {
		return decimal.Zero, fmt.Errorf("failed to record compensation: %w", err)
	}

	balance, err := s.runner.ledger.IncrementBalance(ctx, accountID, delta, c.ForwardReference())
	if err != nil {
		c.Status = models.CompensationReleased
		if uerr := s.runner.comps.UpdateCompensation(ctx, c); uerr != nil {
			s.runner.logger.Error().Err(uerr).Str("compensation_id", c.ID).Msg("Error releasing compensation of failed step")
		}
		return decimal.Zero, err
	}

	balanceMutations.WithLabelValues(direction(delta)).Inc()
	s.applied = append(s.applied, c)
	return balance, nil
}

// Commit releases every armed compensation of the saga.
func (s *Saga) Commit(ctx context.Context) {
	if len(s.applied) == 0 {
		return
	}
	if err := s.runner.comps.ReleaseSaga(ctx, s.id); err != nil {
		// Money has moved; an armed row left behind is reported by the worker.
		s.runner.logger.Error().Err(err).
			Str("saga_id", s.id).
			Str("operation", s.operation).
			Msg("Error releasing saga compensations")
	}
}

// Abort applies the inverses of the applied steps in reverse order. Rows stay
// armed while Abort applies them; only inverses that fail become pending for
// the compensation worker.
func (s *Saga) Abort(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)
	var failed int
	for i := len(s.applied) - 1; i >= 0; i-- {
		c := s.applied[i]
		if err := s.runner.apply(ctx, c); err != nil {
			failed++
			c.Status = models.CompensationPending
		}
		s.runner.save(ctx, c)
	}
	s.applied = nil

	s.runner.logger.Warn().
		Str("saga_id", s.id).
		Str("operation", s.operation).
		Str("reference", s.reference).
		Int("failed", failed).
		Msg("Saga aborted")

	if failed > 0 {
		return fmt.Errorf("%d of saga %s: %w", failed, s.id, ErrCompensationIncomplete)
	}
	return nil
}

// Retry re-applies a pending compensation. The row is claimed first, so
// concurrent retriers never apply the same inverse twice; a row claimed
// elsewhere is skipped. An inverse already present in the ledger is only
// marked applied. Once attempts reach maxAttempts the row is discarded.
func (r *SagaRunner) Retry(ctx context.Context, c *models.Compensation, maxAttempts int) error {
	err := r.comps.ClaimCompensation(ctx, c.ID, models.CompensationPending, models.CompensationApplying)
	if errors.Is(err, store.ErrStaleStatus) {
		r.logger.Debug().Str("compensation_id", c.ID).Msg("Compensation already claimed")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to claim compensation: %w", err)
	}
	c.Status = models.CompensationApplying

	done, err := r.ledger.HasReference(ctx, c.AccountID, c.InverseReference())
	if err != nil {
		c.Status = models.CompensationPending
		r.save(ctx, c)
		return fmt.Errorf("failed to check compensation reference: %w", err)
	}
	if done {
		c.Status = models.CompensationApplied
		compensationsTotal.WithLabelValues("applied").Inc()
		return r.comps.UpdateCompensation(ctx, c)
	}

	if err := r.apply(ctx, c); err != nil {
		c.Status = models.CompensationPending
		if maxAttempts > 0 && c.Attempts >= maxAttempts {
			c.Status = models.CompensationDiscarded
			compensationsTotal.WithLabelValues("discarded").Inc()
			r.logger.Error().
				Str("compensation_id", c.ID).
				Str("saga_id", c.SagaID).
				Int("account_id", c.AccountID).
				Str("delta", c.Delta.String()).
				Int("attempts", c.Attempts).
				Msg("Compensation discarded after maximum attempts")
		}
		if uerr := r.comps.UpdateCompensation(ctx, c); uerr != nil {
			return uerr
		}
		return err
	}
	r.save(ctx, c)
	return nil
}

// apply writes the inverse to the ledger and records the outcome on c. The
// caller persists c.
func (r *SagaRunner) apply(ctx context.Context, c *models.Compensation) error {
	c.Attempts++
	_, err := r.ledger.IncrementBalance(ctx, c.AccountID, c.Delta, c.InverseReference())
	if err != nil {
		c.LastError = err.Error()
		compensationsTotal.WithLabelValues("failed").Inc()
		r.logger.Error().Err(err).
			Str("compensation_id", c.ID).
			Str("saga_id", c.SagaID).
			Int("account_id", c.AccountID).
			Str("delta", c.Delta.String()).
			Msg("Error applying compensation")
		return err
	}

	c.LastError = ""
	c.Status = models.CompensationApplied
	compensationsTotal.WithLabelValues("applied").Inc()
	return nil
}

func (r *SagaRunner) save(ctx context.Context, c *models.Compensation) {
	if err := r.comps.UpdateCompensation(ctx, c); err != nil {
		r.logger.Error().Err(err).
			Str("compensation_id", c.ID).
			Str("status", string(c.Status)).
			Msg("Error recording compensation")
	}
}

func direction(delta decimal.Decimal) string {
	if delta.IsNegative() {
		return "debit"
	}
	return "credit"
}
