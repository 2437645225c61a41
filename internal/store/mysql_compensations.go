package store

import (
	"context"
	"fmt"
	"time"

	"sendflow/internal/models"
)

func (s *MySQLStore) RecordCompensation(ctx context.Context, c *models.Compensation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO compensations
			(id, saga_id, operation, reference, account_id, delta, status, attempts, last_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.SagaID, c.Operation, c.Reference, c.AccountID, c.Delta,
		c.Status, c.Attempts, c.LastError, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record compensation: %w", err)
	}
	return nil
}

func (s *MySQLStore) UpdateCompensation(ctx context.Context, c *models.Compensation) error {
	c.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		"UPDATE compensations SET status = ?, attempts = ?, last_error = ?, updated_at = ? WHERE id = ?",
		c.Status, c.Attempts, c.LastError, c.UpdatedAt, c.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update compensation: %w", err)
	}
	return nil
}

func (s *MySQLStore) ClaimCompensation(ctx context.Context, id string, from, to models.CompensationStatus) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE compensations SET status = ?, updated_at = ? WHERE id = ? AND status = ?",
		to, time.Now().UTC(), id, from,
	)
	return affectedOne(res, err)
}

func (s *MySQLStore) ReleaseSaga(ctx context.Context, sagaID string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE compensations SET status = ?, updated_at = NOW() WHERE saga_id = ? AND status = ?",
		models.CompensationReleased, sagaID, models.CompensationArmed,
	)
	if err != nil {
		return fmt.Errorf("failed to release saga: %w", err)
	}
	return nil
}

func (s *MySQLStore) FetchCompensations(ctx context.Context, status models.CompensationStatus, before time.Time, limit int) ([]*models.Compensation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, saga_id, operation, reference, account_id, delta, status, attempts, last_error, created_at, updated_at
		FROM compensations
		WHERE status = ? AND updated_at <= ?
		ORDER BY created_at ASC
		LIMIT ?`,
		status, before, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	defer rows.Close()

	var comps []*models.Compensation
	for rows.Next() {
		var c models.Compensation
		if err := rows.Scan(&c.ID, &c.SagaID, &c.Operation, &c.Reference, &c.AccountID, &c.Delta,
			&c.Status, &c.Attempts, &c.LastError, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("error scanning compensation: %w", err)
		}
		comps = append(comps, &c)
	}
	return comps, rows.Err()
}
