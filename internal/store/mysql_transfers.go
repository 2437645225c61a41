package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sendflow/internal/models"
)

func (s *MySQLStore) ProcessMoneyTransfer(ctx context.Context, req models.MoneyTransfer) (*models.Transfer, error) {
	var transfer *models.Transfer
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var recipientID int
		err := tx.QueryRowContext(ctx,
			"SELECT id FROM profiles WHERE phone = ? OR email = ? LIMIT 1",
			req.RecipientIdentifier, req.RecipientIdentifier,
		).Scan(&recipientID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrRecipientNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to resolve recipient: %w", err)
		}
		if recipientID == req.SenderID {
			return ErrSelfTransfer
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO transfers
				(sender_id, recipient_id, recipient_identifier, amount, fee, agent_commission, platform_commission, status)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			req.SenderID, recipientID, req.RecipientIdentifier, req.Amount, req.Fee,
			req.AgentCommission, req.PlatformCommission, models.TransferPending,
		)
		if err != nil {
			return fmt.Errorf("failed to create transfer: %w", err)
		}
		transferID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get transfer ID: %w", err)
		}
		reference := fmt.Sprintf("transfer:%d", transferID)

		if _, err := incrementInTx(ctx, tx, req.SenderID, req.Debit().Neg(), reference); err != nil {
			return fmt.Errorf("failed to debit sender: %w", err)
		}
		if _, err := incrementInTx(ctx, tx, recipientID, req.Amount, reference); err != nil {
			return fmt.Errorf("failed to credit recipient: %w", err)
		}
		if req.AgentCommission.IsPositive() {
			if _, err := incrementInTx(ctx, tx, req.SenderID, req.AgentCommission, reference); err != nil {
				return fmt.Errorf("failed to credit agent commission: %w", err)
			}
		}
		if req.PlatformCommission.IsPositive() {
			if _, err := incrementInTx(ctx, tx, req.PlatformAccountID, req.PlatformCommission, reference); err != nil {
				return fmt.Errorf("failed to credit platform commission: %w", err)
			}
		}

		if _, err := tx.ExecContext(ctx,
			"UPDATE transfers SET status = ? WHERE id = ?",
			models.TransferCompleted, transferID,
		); err != nil {
			return fmt.Errorf("failed to update transfer status: %w", err)
		}

		transfer, err = scanTransfer(tx.QueryRowContext(ctx, "SELECT "+transferColumns+" FROM transfers WHERE id = ?", transferID))
		return err
	})
	if err != nil {
		return nil, err
	}
	return transfer, nil
}

const transferColumns = "id, sender_id, recipient_id, recipient_identifier, amount, fee, agent_commission, platform_commission, status, created_at"

func scanTransfer(row rowScanner) (*models.Transfer, error) {
	var t models.Transfer
	var recipientID sql.NullInt64
	err := row.Scan(&t.ID, &t.SenderID, &recipientID, &t.RecipientIdentifier, &t.Amount, &t.Fee,
		&t.AgentCommission, &t.PlatformCommission, &t.Status, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	t.RecipientID = intPtr(recipientID)
	return &t, nil
}

func (s *MySQLStore) ListTransfers(ctx context.Context, userID, limit, offset int) ([]*models.Transfer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+transferColumns+`
		FROM transfers
		WHERE sender_id = ? OR recipient_id = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`,
		userID, userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	defer rows.Close()

	var transfers []*models.Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		transfers = append(transfers, t)
	}
	return transfers, rows.Err()
}

const pendingTransferColumns = "id, sender_id, recipient_identifier, amount, fee, claim_code, status, claimed_by, created_at, claimed_at"

func scanPendingTransfer(row rowScanner) (*models.PendingTransfer, error) {
	var p models.PendingTransfer
	var claimedBy sql.NullInt64
	var claimedAt sql.NullTime
	err := row.Scan(&p.ID, &p.SenderID, &p.RecipientIdentifier, &p.Amount, &p.Fee, &p.ClaimCode,
		&p.Status, &claimedBy, &p.CreatedAt, &claimedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	p.ClaimedBy = intPtr(claimedBy)
	if claimedAt.Valid {
		p.ClaimedAt = &claimedAt.Time
	}
	return &p, nil
}

func (s *MySQLStore) CreatePendingTransfer(ctx context.Context, p *models.PendingTransfer) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_transfers (id, sender_id, recipient_identifier, amount, fee, claim_code, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.SenderID, p.RecipientIdentifier, p.Amount, p.Fee, p.ClaimCode, p.Status, p.CreatedAt,
	)
	if isDuplicate(err) {
		return ErrDuplicateCode
	}
	if err != nil {
		return fmt.Errorf("failed to create pending transfer: %w", err)
	}
	return nil
}

func (s *MySQLStore) GetPendingTransfer(ctx context.Context, id string) (*models.PendingTransfer, error) {
	return scanPendingTransfer(s.db.QueryRowContext(ctx,
		"SELECT "+pendingTransferColumns+" FROM pending_transfers WHERE id = ?", id))
}

func (s *MySQLStore) GetPendingTransferByCode(ctx context.Context, code string) (*models.PendingTransfer, error) {
	return scanPendingTransfer(s.db.QueryRowContext(ctx,
		"SELECT "+pendingTransferColumns+" FROM pending_transfers WHERE claim_code = ?", code))
}

func (s *MySQLStore) UpdatePendingTransferStatus(ctx context.Context, id string, from, to models.PendingTransferStatus, claimedBy *int) error {
	var claimedAt sql.NullTime
	if to == models.PendingTransferClaimed {
		claimedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE pending_transfers SET status = ?, claimed_by = ?, claimed_at = ? WHERE id = ? AND status = ?",
		to, nullableInt(claimedBy), claimedAt, id, from,
	)
	return affectedOne(res, err)
}

func (s *MySQLStore) ListPendingTransfersBefore(ctx context.Context, before time.Time, limit int) ([]*models.PendingTransfer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+pendingTransferColumns+`
		FROM pending_transfers
		WHERE status = ? AND created_at < ?
		ORDER BY created_at ASC
		LIMIT ?`,
		models.PendingTransferPending, before, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	defer rows.Close()

	var pending []*models.PendingTransfer
	for rows.Next() {
		p, err := scanPendingTransfer(rows)
		if err != nil {
			return nil, err
		}
		pending = append(pending, p)
	}
	return pending, rows.Err()
}
