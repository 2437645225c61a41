package services

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

	"sendflow/internal/events"
	"sendflow/internal/fees"
	"sendflow/internal/models"
	"sendflow/internal/store/memstore"
)

var (
	errInjected = errors.New("injected ledger failure")
	farFuture   = time.Now().Add(24 * time.Hour)
)

// faultyStore lets a test fail selected Balance Primitive calls.
type faultyStore struct {
	*memstore.Store

	mu     sync.Mutex
	fail   func(accountID int, delta decimal.Decimal, reference string) bool
	before func(accountID int, delta decimal.Decimal, reference string)
}

func (f *faultyStore) failWhen(fn func(accountID int, delta decimal.Decimal, reference string) bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = fn
}

// beforeIncrement runs fn ahead of every Balance Primitive call, outside any lock.
func (f *faultyStore) beforeIncrement(fn func(accountID int, delta decimal.Decimal, reference string)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.before = fn
}

func (f *faultyStore) IncrementBalance(ctx context.Context, accountID int, delta decimal.Decimal, reference string) (decimal.Decimal, error) {
	f.mu.Lock()
	fn, before := f.fail, f.before
	f.mu.Unlock()
	if before != nil {
		before(accountID, delta, reference)
	}
	if fn != nil && fn(accountID, delta, reference) {
		return decimal.Zero, errInjected
	}
	return f.Store.IncrementBalance(ctx, accountID, delta, reference)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func (p *recordingPublisher) find(eventType string) (events.Event, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.events {
		if e.Type == eventType {
			return e, true
		}
	}
	return events.Event{}, false
}

type harness struct {
	t         *testing.T
	ctx       context.Context
	mem       *memstore.Store
	store     *faultyStore
	published *recordingPublisher
	deps      Deps
	cfg       fees.Config
	platform  int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mem := memstore.New()
	fs := &faultyStore{Store: mem}
	platform := mem.Seed(models.User{
		FullName: "SendFlow Platform",
		Phone:    "+237600000000",
		Email:    "platform@sendflow.test",
		Role:     models.RoleAdmin,
		Country:  "CM",
	}, decimal.Zero)
	published := &recordingPublisher{}
	logger := zerolog.Nop()

	return &harness{
		t:         t,
		ctx:       context.Background(),
		mem:       mem,
		store:     fs,
		published: published,
		deps: Deps{
			Store:             fs,
			Sagas:             NewSagaRunner(fs, fs, logger),
			Publisher:         published,
			PlatformAccountID: platform,
			Logger:            logger,
		},
		cfg:      fees.DefaultConfig(),
		platform: platform,
	}
}

func (h *harness) calc() *fees.Calculator {
	return fees.NewCalculator(h.cfg)
}

func (h *harness) account(name, phone string, role models.Role, country string, balance string) models.Session {
	h.t.Helper()
	id := h.mem.Seed(models.User{
		FullName: name,
		Phone:    phone,
		Email:    phone + "@sendflow.test",
		Role:     role,
		Country:  country,
	}, decimal.RequireFromString(balance))
	return h.session(id)
}

func (h *harness) session(id int) models.Session {
	h.t.Helper()
	u, err := h.mem.GetProfile(h.ctx, id)
	require.NoError(h.t, err)
	return models.Session{UserID: u.ID, Role: u.Role, Country: u.Country, Phone: u.Phone, Email: u.Email}
}

func (h *harness) balance(id int) decimal.Decimal {
	h.t.Helper()
	b, err := h.mem.GetBalance(h.ctx, id)
	require.NoError(h.t, err)
	return b.Amount
}

func (h *harness) assertBalance(id int, want string) {
	h.t.Helper()
	got := h.balance(id)
	assert.Truef(h.t, got.Equal(decimal.RequireFromString(want)), "account %d: want %s, got %s", id, want, got)
}

// total sums every stored balance.
func (h *harness) total() decimal.Decimal {
	h.t.Helper()
	ids, err := h.mem.ListAccountIDs(h.ctx)
	require.NoError(h.t, err)
	sum := decimal.Zero
	for _, id := range ids {
		sum = sum.Add(h.balance(id))
	}
	return sum
}

func (h *harness) pendingCompensations() []*models.Compensation {
	h.t.Helper()
	comps, err := h.mem.FetchCompensations(h.ctx, models.CompensationPending, farFuture, 100)
	require.NoError(h.t, err)
	return comps
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
