// Package memstore is an in-process implementation of store.Store. Every call
// holds a single mutex, which gives the same per-call atomicity as the MySQL
// row lock. It backs STORE_DRIVER=memory and the protocol tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"sendflow/internal/models"
	"sendflow/internal/store"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	mu sync.Mutex

	profiles      map[int]*models.User
	history       []*models.BalanceHistory
	transfers     []*models.Transfer
	pending       map[string]*models.PendingTransfer
	withdrawals   map[string]*models.Withdrawal
	activeCodes   map[string]string
	requests      map[string]*models.WithdrawalRequest
	recharges     []*models.Recharge
	compensations map[string]*models.Compensation

	nextProfileID  int
	nextTransferID int
	nextHistoryID  int

	now func() time.Time
}

func New() *Store {
	return &Store{
		profiles:      map[int]*models.User{},
		pending:       map[string]*models.PendingTransfer{},
		withdrawals:   map[string]*models.Withdrawal{},
		activeCodes:   map[string]string{},
		requests:      map[string]*models.WithdrawalRequest{},
		compensations: map[string]*models.Compensation{},
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source used for created/updated timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Seed creates a profile holding balance. The opening balance is recorded in
// the history so reconciliation sees it.
func (s *Store) Seed(u models.User, balance decimal.Decimal) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextProfileID++
	u.ID = s.nextProfileID
	u.CreatedAt = s.now()
	u.UpdatedAt = u.CreatedAt
	u.Balance = decimal.Zero
	s.profiles[u.ID] = &u
	if !balance.IsZero() {
		_, _ = s.incrementLocked(u.ID, balance, "seed")
	}
	return u.ID
}

func (s *Store) incrementLocked(accountID int, delta decimal.Decimal, reference string) (decimal.Decimal, error) {
	p, ok := s.profiles[accountID]
	if !ok {
		return decimal.Zero, fmt.Errorf("account %d: %w", accountID, store.ErrNotFound)
	}
	next := p.Balance.Add(delta)
	if next.IsNegative() {
		return decimal.Zero, store.ErrInsufficientFunds
	}
	p.Balance = next
	p.UpdatedAt = s.now()
	s.nextHistoryID++
	s.history = append(s.history, &models.BalanceHistory{
		ID:           s.nextHistoryID,
		UserID:       accountID,
		Balance:      next,
		ChangeAmount: delta,
		Reference:    reference,
		CreatedAt:    p.UpdatedAt,
	})
	return next, nil
}

func (s *Store) IncrementBalance(_ context.Context, accountID int, delta decimal.Decimal, reference string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.incrementLocked(accountID, delta, reference)
}

func (s *Store) GetBalance(_ context.Context, accountID int) (*models.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[accountID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &models.Balance{UserID: p.ID, Amount: p.Balance, LastUpdatedAt: p.UpdatedAt}, nil
}

func (s *Store) BalanceHistory(_ context.Context, accountID, limit, offset int) ([]*models.BalanceHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.BalanceHistory
	for i := len(s.history) - 1; i >= 0; i-- {
		if s.history[i].UserID == accountID {
			h := *s.history[i]
			out = append(out, &h)
		}
	}
	return page(out, limit, offset), nil
}

func (s *Store) SumBalanceHistory(_ context.Context, accountID int) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := decimal.Zero
	for _, h := range s.history {
		if h.UserID == accountID {
			total = total.Add(h.ChangeAmount)
		}
	}
	return total, nil
}

func (s *Store) BalanceAt(_ context.Context, accountID int, at time.Time) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	balance := decimal.Zero
	for _, h := range s.history {
		if h.UserID == accountID && !h.CreatedAt.After(at) {
			balance = h.Balance
		}
	}
	return balance, nil
}

func (s *Store) HasReference(_ context.Context, accountID int, reference string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.history {
		if h.UserID == accountID && h.Reference == reference {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) CreateProfile(_ context.Context, u *models.User) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.profiles {
		if (u.Email != "" && p.Email == u.Email) || (u.Phone != "" && p.Phone == u.Phone) {
			return 0, store.ErrDuplicateProfile
		}
	}
	s.nextProfileID++
	cp := *u
	cp.ID = s.nextProfileID
	cp.Balance = decimal.Zero
	cp.CreatedAt = s.now()
	cp.UpdatedAt = cp.CreatedAt
	s.profiles[cp.ID] = &cp
	return cp.ID, nil
}

func (s *Store) GetProfile(_ context.Context, id int) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *Store) GetProfileByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.profiles {
		if p.Email == email {
			cp := *p
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) FindProfileByIdentifier(_ context.Context, identifier string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p := s.findLocked(identifier); p != nil {
		cp := *p
		return &cp, nil
	}
	return nil, store.ErrNotFound
}

func (s *Store) findLocked(identifier string) *models.User {
	if identifier == "" {
		return nil
	}
	for _, id := range s.sortedIDsLocked() {
		p := s.profiles[id]
		if p.Phone == identifier || p.Email == identifier {
			return p
		}
	}
	return nil
}

func (s *Store) SearchProfiles(_ context.Context, term string, excludeID, limit int) ([]*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.User
	for _, id := range s.sortedIDsLocked() {
		p := s.profiles[id]
		if id == excludeID {
			continue
		}
		if strings.Contains(p.Phone, term) || strings.Contains(p.Email, term) {
			cp := *p
			out = append(out, &cp)
		}
	}
	return page(out, limit, 0), nil
}

func (s *Store) ListAccountIDs(_ context.Context) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedIDsLocked(), nil
}

func (s *Store) sortedIDsLocked() []int {
	ids := make([]int, 0, len(s.profiles))
	for id := range s.profiles {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (s *Store) UpdateRole(_ context.Context, id int, role models.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return store.ErrNotFound
	}
	p.Role = role
	return nil
}

// ProcessMoneyTransfer validates every leg before writing any of them, so a
// failure leaves no partial mutation.
func (s *Store) ProcessMoneyTransfer(_ context.Context, req models.MoneyTransfer) (*models.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recipient := s.findLocked(req.RecipientIdentifier)
	if recipient == nil {
		return nil, store.ErrRecipientNotFound
	}
	if recipient.ID == req.SenderID {
		return nil, store.ErrSelfTransfer
	}
	sender, ok := s.profiles[req.SenderID]
	if !ok {
		return nil, fmt.Errorf("sender %d: %w", req.SenderID, store.ErrNotFound)
	}
	if _, ok := s.profiles[req.PlatformAccountID]; !ok && req.PlatformCommission.IsPositive() {
		return nil, fmt.Errorf("platform account %d: %w", req.PlatformAccountID, store.ErrNotFound)
	}
	if sender.Balance.LessThan(req.Debit()) {
		return nil, store.ErrInsufficientFunds
	}

	s.nextTransferID++
	reference := fmt.Sprintf("transfer:%d", s.nextTransferID)
	recipientID := recipient.ID

	_, _ = s.incrementLocked(req.SenderID, req.Debit().Neg(), reference)
	_, _ = s.incrementLocked(recipientID, req.Amount, reference)
	if req.AgentCommission.IsPositive() {
		_, _ = s.incrementLocked(req.SenderID, req.AgentCommission, reference)
	}
	if req.PlatformCommission.IsPositive() {
		_, _ = s.incrementLocked(req.PlatformAccountID, req.PlatformCommission, reference)
	}

	t := &models.Transfer{
		ID:                  s.nextTransferID,
		SenderID:            req.SenderID,
		RecipientID:         &recipientID,
		RecipientIdentifier: req.RecipientIdentifier,
		Amount:              req.Amount,
		Fee:                 req.Fee,
		AgentCommission:     req.AgentCommission,
		PlatformCommission:  req.PlatformCommission,
		Status:              models.TransferCompleted,
		CreatedAt:           s.now(),
	}
	s.transfers = append(s.transfers, t)
	cp := *t
	return &cp, nil
}

func (s *Store) ListTransfers(_ context.Context, userID, limit, offset int) ([]*models.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Transfer
	for i := len(s.transfers) - 1; i >= 0; i-- {
		t := s.transfers[i]
		if t.SenderID == userID || (t.RecipientID != nil && *t.RecipientID == userID) {
			cp := *t
			out = append(out, &cp)
		}
	}
	return page(out, limit, offset), nil
}

func (s *Store) CreatePendingTransfer(_ context.Context, p *models.PendingTransfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.pending {
		if existing.ClaimCode == p.ClaimCode {
			return store.ErrDuplicateCode
		}
	}
	cp := *p
	s.pending[p.ID] = &cp
	return nil
}

func (s *Store) GetPendingTransfer(_ context.Context, id string) (*models.PendingTransfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *Store) GetPendingTransferByCode(_ context.Context, code string) (*models.PendingTransfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.pending {
		if p.ClaimCode == code {
			cp := *p
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) UpdatePendingTransferStatus(_ context.Context, id string, from, to models.PendingTransferStatus, claimedBy *int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[id]
	if !ok || p.Status != from {
		return store.ErrStaleStatus
	}
	p.Status = to
	p.ClaimedBy = claimedBy
	if to == models.PendingTransferClaimed {
		at := s.now()
		p.ClaimedAt = &at
	} else {
		p.ClaimedAt = nil
	}
	return nil
}

func (s *Store) ListPendingTransfersBefore(_ context.Context, before time.Time, limit int) ([]*models.PendingTransfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.PendingTransfer
	for _, p := range s.pending {
		if p.Status == models.PendingTransferPending && p.CreatedAt.Before(before) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return page(out, limit, 0), nil
}

func (s *Store) CreateWithdrawal(_ context.Context, w *models.Withdrawal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.activeCodes[w.VerificationCode]; taken {
		return store.ErrDuplicateCode
	}
	cp := *w
	s.withdrawals[w.ID] = &cp
	if cp.Status.Open() {
		s.activeCodes[w.VerificationCode] = w.ID
	}
	return nil
}

func (s *Store) GetWithdrawal(_ context.Context, id string) (*models.Withdrawal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.withdrawals[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *w
	return &cp, nil
}

func (s *Store) FindOpenWithdrawalByCode(_ context.Context, code string) (*models.Withdrawal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.activeCodes[code]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *s.withdrawals[id]
	return &cp, nil
}

func (s *Store) UpdateWithdrawalStatus(_ context.Context, id string, from, to models.WithdrawalStatus, upd models.WithdrawalUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.withdrawals[id]
	if !ok || w.Status != from {
		return store.ErrStaleStatus
	}
	w.Status = to
	if upd.AgentID != nil {
		agentID := *upd.AgentID
		w.AgentID = &agentID
	}
	w.Fee = upd.Fee
	w.AgentCommission = upd.AgentCommission
	w.PlatformCommission = upd.PlatformCommission
	w.UpdatedAt = s.now()
	if !to.Open() {
		delete(s.activeCodes, w.VerificationCode)
	}
	return nil
}

func (s *Store) ListWithdrawalsByUser(_ context.Context, userID int) ([]*models.Withdrawal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Withdrawal
	for _, w := range s.withdrawals {
		if w.UserID == userID {
			cp := *w
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) CreateWithdrawalRequest(_ context.Context, r *models.WithdrawalRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.requests[r.ID] = &cp
	return nil
}

func (s *Store) GetWithdrawalRequest(_ context.Context, id string) (*models.WithdrawalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *Store) ListPendingRequestsForUser(_ context.Context, userID int) ([]*models.WithdrawalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.WithdrawalRequest
	for _, r := range s.requests {
		if r.UserID == userID && r.Status == models.RequestPending {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) UpdateWithdrawalRequestStatus(_ context.Context, r *models.WithdrawalRequest, from, to models.WithdrawalRequestStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.requests[r.ID]
	if !ok || existing.Status != from {
		return store.ErrStaleStatus
	}
	existing.Status = to
	existing.Fee = r.Fee
	existing.AgentCommission = r.AgentCommission
	existing.PlatformCommission = r.PlatformCommission
	existing.UpdatedAt = s.now()
	return nil
}

func (s *Store) CreateRecharge(_ context.Context, r *models.Recharge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.recharges = append(s.recharges, &cp)
	return nil
}

func (s *Store) ListRechargesByAgent(_ context.Context, agentID, limit, offset int) ([]*models.Recharge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Recharge
	for i := len(s.recharges) - 1; i >= 0; i-- {
		if s.recharges[i].AgentID == agentID {
			cp := *s.recharges[i]
			out = append(out, &cp)
		}
	}
	return page(out, limit, offset), nil
}

func (s *Store) RecordCompensation(_ context.Context, c *models.Compensation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.compensations[c.ID] = &cp
	return nil
}

func (s *Store) UpdateCompensation(_ context.Context, c *models.Compensation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.compensations[c.ID]
	if !ok {
		return store.ErrNotFound
	}
	c.UpdatedAt = s.now()
	existing.Status = c.Status
	existing.Attempts = c.Attempts
	existing.LastError = c.LastError
	existing.UpdatedAt = c.UpdatedAt
	return nil
}

func (s *Store) ClaimCompensation(_ context.Context, id string, from, to models.CompensationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.compensations[id]
	if !ok {
		return store.ErrNotFound
	}
	if c.Status != from {
		return store.ErrStaleStatus
	}
	c.Status = to
	c.UpdatedAt = s.now()
	return nil
}

func (s *Store) ReleaseSaga(_ context.Context, sagaID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.compensations {
		if c.SagaID == sagaID && c.Status == models.CompensationArmed {
			c.Status = models.CompensationReleased
			c.UpdatedAt = s.now()
		}
	}
	return nil
}

func (s *Store) FetchCompensations(_ context.Context, status models.CompensationStatus, before time.Time, limit int) ([]*models.Compensation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Compensation
	for _, c := range s.compensations {
		if c.Status == status && !c.UpdatedAt.After(before) {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return page(out, limit, 0), nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
