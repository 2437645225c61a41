package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"sendflow/internal/models"
)

const withdrawalColumns = "id, user_id, agent_id, amount, withdrawal_phone, verification_code, fee, agent_commission, platform_commission, status, created_at, updated_at"

func scanWithdrawal(row rowScanner) (*models.Withdrawal, error) {
	var w models.Withdrawal
	var agentID sql.NullInt64
	err := row.Scan(&w.ID, &w.UserID, &agentID, &w.Amount, &w.WithdrawalPhone, &w.VerificationCode,
		&w.Fee, &w.AgentCommission, &w.PlatformCommission, &w.Status, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	w.AgentID = intPtr(agentID)
	return &w, nil
}

// CreateWithdrawal relies on the UNIQUE active_code column: it holds the code
// while the withdrawal is open and is NULL afterwards.
func (s *MySQLStore) CreateWithdrawal(ctx context.Context, w *models.Withdrawal) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO withdrawals
			(id, user_id, agent_id, amount, withdrawal_phone, verification_code, active_code,
			 fee, agent_commission, platform_commission, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.UserID, nullableInt(w.AgentID), w.Amount, w.WithdrawalPhone, w.VerificationCode, w.VerificationCode,
		w.Fee, w.AgentCommission, w.PlatformCommission, w.Status, w.CreatedAt, w.UpdatedAt,
	)
	if isDuplicate(err) {
		return ErrDuplicateCode
	}
	if err != nil {
		return fmt.Errorf("failed to create withdrawal: %w", err)
	}
	return nil
}

func (s *MySQLStore) GetWithdrawal(ctx context.Context, id string) (*models.Withdrawal, error) {
	return scanWithdrawal(s.db.QueryRowContext(ctx, "SELECT "+withdrawalColumns+" FROM withdrawals WHERE id = ?", id))
}

func (s *MySQLStore) FindOpenWithdrawalByCode(ctx context.Context, code string) (*models.Withdrawal, error) {
	return scanWithdrawal(s.db.QueryRowContext(ctx,
		"SELECT "+withdrawalColumns+" FROM withdrawals WHERE active_code = ? AND status IN (?, ?)",
		code, models.WithdrawalPending, models.WithdrawalAgentPending,
	))
}

func (s *MySQLStore) UpdateWithdrawalStatus(ctx context.Context, id string, from, to models.WithdrawalStatus, upd models.WithdrawalUpdate) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE withdrawals
		SET status = ?,
			active_code = CASE WHEN ? THEN active_code ELSE NULL END,
			agent_id = COALESCE(?, agent_id),
			fee = ?, agent_commission = ?, platform_commission = ?,
			updated_at = NOW()
		WHERE id = ? AND status = ?`,
		to, to.Open(), nullableInt(upd.AgentID),
		upd.Fee, upd.AgentCommission, upd.PlatformCommission,
		id, from,
	)
	return affectedOne(res, err)
}

func (s *MySQLStore) ListWithdrawalsByUser(ctx context.Context, userID int) ([]*models.Withdrawal, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+withdrawalColumns+" FROM withdrawals WHERE user_id = ? ORDER BY created_at DESC",
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	defer rows.Close()

	var withdrawals []*models.Withdrawal
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		withdrawals = append(withdrawals, w)
	}
	return withdrawals, rows.Err()
}

const requestColumns = "id, agent_id, user_id, amount, withdrawal_phone, fee, agent_commission, platform_commission, status, created_at, updated_at"

func scanWithdrawalRequest(row rowScanner) (*models.WithdrawalRequest, error) {
	var r models.WithdrawalRequest
	err := row.Scan(&r.ID, &r.AgentID, &r.UserID, &r.Amount, &r.WithdrawalPhone,
		&r.Fee, &r.AgentCommission, &r.PlatformCommission, &r.Status, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &r, nil
}

func (s *MySQLStore) CreateWithdrawalRequest(ctx context.Context, r *models.WithdrawalRequest) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO withdrawal_requests
			(id, agent_id, user_id, amount, withdrawal_phone, fee, agent_commission, platform_commission, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.AgentID, r.UserID, r.Amount, r.WithdrawalPhone,
		r.Fee, r.AgentCommission, r.PlatformCommission, r.Status, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create withdrawal request: %w", err)
	}
	return nil
}

func (s *MySQLStore) GetWithdrawalRequest(ctx context.Context, id string) (*models.WithdrawalRequest, error) {
	return scanWithdrawalRequest(s.db.QueryRowContext(ctx, "SELECT "+requestColumns+" FROM withdrawal_requests WHERE id = ?", id))
}

func (s *MySQLStore) ListPendingRequestsForUser(ctx context.Context, userID int) ([]*models.WithdrawalRequest, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+requestColumns+" FROM withdrawal_requests WHERE user_id = ? AND status = ? ORDER BY created_at DESC",
		userID, models.RequestPending,
	)
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	defer rows.Close()

	var requests []*models.WithdrawalRequest
	for rows.Next() {
		r, err := scanWithdrawalRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, r)
	}
	return requests, rows.Err()
}

func (s *MySQLStore) UpdateWithdrawalRequestStatus(ctx context.Context, r *models.WithdrawalRequest, from, to models.WithdrawalRequestStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE withdrawal_requests
		SET status = ?, fee = ?, agent_commission = ?, platform_commission = ?, updated_at = NOW()
		WHERE id = ? AND status = ?`,
		to, r.Fee, r.AgentCommission, r.PlatformCommission, r.ID, from,
	)
	return affectedOne(res, err)
}

func (s *MySQLStore) CreateRecharge(ctx context.Context, r *models.Recharge) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO recharges (id, agent_id, recipient_id, amount, agent_commission, status, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		r.ID, r.AgentID, r.RecipientID, r.Amount, r.AgentCommission, r.Status, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create recharge: %w", err)
	}
	return nil
}

func (s *MySQLStore) ListRechargesByAgent(ctx context.Context, agentID, limit, offset int) ([]*models.Recharge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent_id, recipient_id, amount, agent_commission, status, created_at
		FROM recharges
		WHERE agent_id = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`,
		agentID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	defer rows.Close()

	var recharges []*models.Recharge
	for rows.Next() {
		var r models.Recharge
		if err := rows.Scan(&r.ID, &r.AgentID, &r.RecipientID, &r.Amount, &r.AgentCommission, &r.Status, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning recharge: %w", err)
		}
		recharges = append(recharges, &r)
	}
	return recharges, rows.Err()
}
