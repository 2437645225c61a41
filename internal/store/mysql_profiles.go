package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"sendflow/internal/models"
)

const profileColumns = "id, full_name, phone, email, password_hash, role, country, balance, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.FullName, &u.Phone, &u.Email, &u.PasswordHash, &u.Role, &u.Country, &u.Balance, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &u, nil
}

func (s *MySQLStore) CreateProfile(ctx context.Context, u *models.User) (int, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO profiles (full_name, phone, email, password_hash, role, country, balance) VALUES (?, ?, ?, ?, ?, ?, 0)",
		u.FullName, u.Phone, u.Email, u.PasswordHash, u.Role, u.Country,
	)
	if isDuplicate(err) {
		return 0, ErrDuplicateProfile
	}
	if err != nil {
		return 0, fmt.Errorf("failed to create profile: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get profile ID: %w", err)
	}
	return int(id), nil
}

func (s *MySQLStore) GetProfile(ctx context.Context, id int) (*models.User, error) {
	return scanProfile(s.db.QueryRowContext(ctx, "SELECT "+profileColumns+" FROM profiles WHERE id = ?", id))
}

func (s *MySQLStore) GetProfileByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanProfile(s.db.QueryRowContext(ctx, "SELECT "+profileColumns+" FROM profiles WHERE email = ?", email))
}

func (s *MySQLStore) FindProfileByIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	return scanProfile(s.db.QueryRowContext(ctx,
		"SELECT "+profileColumns+" FROM profiles WHERE phone = ? OR email = ? LIMIT 1",
		identifier, identifier,
	))
}

func (s *MySQLStore) SearchProfiles(ctx context.Context, term string, excludeID, limit int) ([]*models.User, error) {
	like := "%" + term + "%"
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+profileColumns+" FROM profiles WHERE (phone LIKE ? OR email LIKE ?) AND id <> ? ORDER BY full_name LIMIT ?",
		like, like, excludeID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *MySQLStore) ListAccountIDs(ctx context.Context) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM profiles ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("database error: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *MySQLStore) UpdateRole(ctx context.Context, id int, role models.Role) error {
	if _, err := s.db.ExecContext(ctx, "UPDATE profiles SET role = ? WHERE id = ?", role, id); err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}
	return nil
}
