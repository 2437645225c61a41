package worker

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

type Reconciler interface {
	ReconcileAll(ctx context.Context) (int, error)
}

type Expirer interface {
	ExpirePendingTransfers(ctx context.Context, ttl time.Duration) (int, error)
}

type ScheduleConfig struct {
	Reconcile          string
	Expiry             string
	PendingTransferTTL time.Duration
}

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron       *cron.Cron
	reconciler Reconciler
	expirer    Expirer
	config     ScheduleConfig
	logger     zerolog.Logger
}

func NewScheduler(reconciler Reconciler, expirer Expirer, cfg ScheduleConfig, logger zerolog.Logger) *Scheduler {
	c := cron.New(cron.WithChain(cron.Recover(cron.PrintfLogger(&logger))))
	return &Scheduler{
		cron:       c,
		reconciler: reconciler,
		expirer:    expirer,
		config:     cfg,
		logger:     logger,
	}
}

// Start registers the jobs and starts the cron scheduler. A job with an
// invalid schedule is logged and skipped.
func (s *Scheduler) Start() {
	if _, err := s.cron.AddFunc(s.config.Reconcile, s.Reconcile); err != nil {
		s.logger.Error().Err(err).Str("schedule", s.config.Reconcile).Msg("Failed to schedule reconciliation job")
	} else {
		s.logger.Info().Str("schedule", s.config.Reconcile).Msg("Scheduled reconciliation job")
	}

	if _, err := s.cron.AddFunc(s.config.Expiry, s.ExpirePendingTransfers); err != nil {
		s.logger.Error().Err(err).Str("schedule", s.config.Expiry).Msg("Failed to schedule pending transfer expiry job")
	} else {
		s.logger.Info().Str("schedule", s.config.Expiry).Msg("Scheduled pending transfer expiry job")
	}

	s.cron.Start()
}

// Stop stops the scheduler; the returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) Reconcile() {
	s.logger.Info().Msg("Starting balance reconciliation job")
	mismatches, err := s.reconciler.ReconcileAll(context.Background())
	if err != nil {
		s.logger.Error().Err(err).Msg("Balance reconciliation job failed")
		return
	}
	if mismatches > 0 {
		s.logger.Warn().Int("discrepancies", mismatches).Msg("Balance reconciliation found discrepancies")
	}
}

func (s *Scheduler) ExpirePendingTransfers() {
	expired, err := s.expirer.ExpirePendingTransfers(context.Background(), s.config.PendingTransferTTL)
	if err != nil {
		s.logger.Error().Err(err).Msg("Pending transfer expiry job failed")
		return
	}
	s.logger.Info().Int("expired", expired).Msg("Pending transfer expiry job finished")
}
