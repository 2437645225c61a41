package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sendflow/internal/models"
	"sendflow/internal/services"
	"sendflow/internal/store/memstore"
)

func seedPending(t *testing.T, mem *memstore.Store, accountID int, delta string) *models.Compensation {
	t.Helper()
	c := models.NewCompensation("saga-1", "withdrawal.confirm", "w-1", accountID, decimal.RequireFromString(delta))
	c.Status = models.CompensationPending
	c.UpdatedAt = time.Now().UTC().Add(-time.Minute)
	require.NoError(t, mem.RecordCompensation(context.Background(), c))
	return c
}

func TestCompensationWorker_AppliesPendingCompensations(t *testing.T) {
	mem := memstore.New()
	id := mem.Seed(models.User{FullName: "Awa", Phone: "+237650000001", Country: "CM"}, decimal.RequireFromString("5000"))
	seedPending(t, mem, id, "5000")

	runner := services.NewSagaRunner(mem, mem, zerolog.Nop())
	w := NewCompensationWorker(mem, runner, time.Millisecond, 5, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	w.Run(ctx)

	b, err := mem.GetBalance(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, b.Amount.Equal(decimal.RequireFromString("10000")), "got %s", b.Amount)

	applied, err := mem.FetchCompensations(context.Background(), models.CompensationApplied, time.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Len(t, applied, 1)
}

type stubRetrier struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (s *stubRetrier) Retry(_ context.Context, c *models.Compensation, _ int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, c.ID)
	return s.err
}

func TestCompensationWorker_ContinuesAfterRetryError(t *testing.T) {
	mem := memstore.New()
	first := seedPending(t, mem, 1, "10")
	second := seedPending(t, mem, 1, "20")

	retrier := &stubRetrier{err: errors.New("ledger unavailable")}
	w := NewCompensationWorker(mem, retrier, time.Hour, 5, zerolog.Nop())
	w.process(context.Background())

	assert.ElementsMatch(t, []string{first.ID, second.ID}, retrier.calls)
}

func TestCompensationWorker_LeavesArmedCompensations(t *testing.T) {
	mem := memstore.New()
	id := mem.Seed(models.User{FullName: "Awa", Phone: "+237650000001", Country: "CM"}, decimal.RequireFromString("100"))
	c := models.NewCompensation("saga-2", "deposit", "r-1", id, decimal.RequireFromString("50"))
	require.NoError(t, mem.RecordCompensation(context.Background(), c))

	retrier := &stubRetrier{}
	w := NewCompensationWorker(mem, retrier, time.Hour, 5, zerolog.Nop())
	w.now = func() time.Time { return time.Now().UTC().Add(time.Hour) }
	w.process(context.Background())

	assert.Empty(t, retrier.calls)
	armed, err := mem.FetchCompensations(context.Background(), models.CompensationArmed, time.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Len(t, armed, 1)
}

func TestCompensationWorker_RequeuesAbandonedClaims(t *testing.T) {
	mem := memstore.New()
	c := models.NewCompensation("saga-3", "transfer.claim", "p-1", 1, decimal.RequireFromString("10"))
	c.Status = models.CompensationApplying
	require.NoError(t, mem.RecordCompensation(context.Background(), c))

	retrier := &stubRetrier{}
	w := NewCompensationWorker(mem, retrier, time.Hour, 5, zerolog.Nop())
	w.process(context.Background())
	assert.Empty(t, retrier.calls)

	w.now = func() time.Time { return time.Now().UTC().Add(time.Hour) }
	w.process(context.Background())

	// Requeued on the second pass, retried on the next.
	w.process(context.Background())
	assert.Equal(t, []string{c.ID}, retrier.calls)
}

type fakeJobs struct {
	reconciled int
	ttl        time.Duration
	err        error
}

func (f *fakeJobs) ReconcileAll(context.Context) (int, error) {
	f.reconciled++
	return 2, f.err
}

func (f *fakeJobs) ExpirePendingTransfers(_ context.Context, ttl time.Duration) (int, error) {
	f.ttl = ttl
	return 1, f.err
}

func TestScheduler_JobsCallServices(t *testing.T) {
	jobs := &fakeJobs{}
	s := NewScheduler(jobs, jobs, ScheduleConfig{
		Reconcile:          "@hourly",
		Expiry:             "*/15 * * * *",
		PendingTransferTTL: 72 * time.Hour,
	}, zerolog.Nop())

	s.Reconcile()
	s.ExpirePendingTransfers()
	assert.Equal(t, 1, jobs.reconciled)
	assert.Equal(t, 72*time.Hour, jobs.ttl)

	s.Start()
	assert.Len(t, s.cron.Entries(), 2)
	<-s.Stop().Done()
}

func TestScheduler_SkipsInvalidSchedule(t *testing.T) {
	jobs := &fakeJobs{}
	s := NewScheduler(jobs, jobs, ScheduleConfig{Reconcile: "not a schedule", Expiry: "@daily"}, zerolog.Nop())
	s.Start()
	defer s.Stop()
	assert.Len(t, s.cron.Entries(), 1)
}
