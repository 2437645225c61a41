package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"

	"sendflow/internal/models"
)

const mysqlDuplicateEntry = 1062

// MySQLStore implements Store on top of database/sql. The DSN must set
// parseTime=true.
type MySQLStore struct {
	db *sql.DB
}

func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

func (s *MySQLStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *MySQLStore) IncrementBalance(ctx context.Context, accountID int, delta decimal.Decimal, reference string) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		balance, err = incrementInTx(ctx, tx, accountID, delta, reference)
		return err
	})
	return balance, err
}

// incrementInTx locks the profile row, applies delta and appends a
// balance_history row. It is the single place where a balance is written.
func incrementInTx(ctx context.Context, tx *sql.Tx, accountID int, delta decimal.Decimal, reference string) (decimal.Decimal, error) {
	var current decimal.Decimal
	err := tx.QueryRowContext(ctx,
		"SELECT balance FROM profiles WHERE id = ? FOR UPDATE",
		accountID,
	).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, fmt.Errorf("account %d: %w", accountID, ErrNotFound)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to fetch balance: %w", err)
	}

	next := current.Add(delta)
	if next.IsNegative() {
		return decimal.Zero, ErrInsufficientFunds
	}

	if _, err = tx.ExecContext(ctx,
		"UPDATE profiles SET balance = ?, updated_at = NOW() WHERE id = ?",
		next, accountID,
	); err != nil {
		return decimal.Zero, fmt.Errorf("failed to update balance: %w", err)
	}

	if _, err = tx.ExecContext(ctx,
		"INSERT INTO balance_history (user_id, balance, change_amount, reference) VALUES (?, ?, ?, ?)",
		accountID, next, delta, reference,
	); err != nil {
		return decimal.Zero, fmt.Errorf("failed to record balance history: %w", err)
	}

	return next, nil
}

func (s *MySQLStore) GetBalance(ctx context.Context, accountID int) (*models.Balance, error) {
	var b models.Balance
	err := s.db.QueryRowContext(ctx,
		"SELECT id, balance, updated_at FROM profiles WHERE id = ?",
		accountID,
	).Scan(&b.UserID, &b.Amount, &b.LastUpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &b, nil
}

func (s *MySQLStore) BalanceHistory(ctx context.Context, accountID, limit, offset int) ([]*models.BalanceHistory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, balance, change_amount, reference, created_at
		FROM balance_history
		WHERE user_id = ?
		ORDER BY id DESC
		LIMIT ? OFFSET ?`,
		accountID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	defer rows.Close()

	var history []*models.BalanceHistory
	for rows.Next() {
		var h models.BalanceHistory
		if err := rows.Scan(&h.ID, &h.UserID, &h.Balance, &h.ChangeAmount, &h.Reference, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning balance history: %w", err)
		}
		history = append(history, &h)
	}
	return history, rows.Err()
}

func (s *MySQLStore) SumBalanceHistory(ctx context.Context, accountID int) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := s.db.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(change_amount), 0) FROM balance_history WHERE user_id = ?",
		accountID,
	).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("database error: %w", err)
	}
	return total, nil
}

func (s *MySQLStore) BalanceAt(ctx context.Context, accountID int, at time.Time) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.db.QueryRowContext(ctx, `
		SELECT balance FROM balance_history
		WHERE user_id = ? AND created_at <= ?
		ORDER BY id DESC
		LIMIT 1`,
		accountID, at,
	).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("database error: %w", err)
	}
	return balance, nil
}

func (s *MySQLStore) HasReference(ctx context.Context, accountID int, reference string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM balance_history WHERE user_id = ? AND reference = ?",
		accountID, reference,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("database error: %w", err)
	}
	return n > 0, nil
}

func isDuplicate(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry
}

func affectedOne(res sql.Result, err error) error {
	if err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	if n == 0 {
		return ErrStaleStatus
	}
	return nil
}

func nullableInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}
