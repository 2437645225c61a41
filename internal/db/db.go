package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog"
)

// InitDB opens the MySQL pool. The DSN must carry parseTime=true so DATETIME
// columns scan into time.Time.
func InitDB(ctx context.Context, dbURL string, logger zerolog.Logger) (*sql.DB, error) {
	db, err := sql.Open("mysql", dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database not responding: %w", err)
	}

	logger.Info().Msg("Connected to database")
	return db, nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS profiles (
		id INT AUTO_INCREMENT PRIMARY KEY,
		full_name VARCHAR(150) NOT NULL,
		phone VARCHAR(32) NOT NULL,
		email VARCHAR(150) NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		role VARCHAR(20) NOT NULL DEFAULT 'user',
		country VARCHAR(2) NOT NULL DEFAULT '',
		balance DECIMAL(20,2) NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		UNIQUE KEY uq_profiles_phone (phone),
		UNIQUE KEY uq_profiles_email (email)
	);`,
	`CREATE TABLE IF NOT EXISTS balance_history (
		id INT AUTO_INCREMENT PRIMARY KEY,
		user_id INT NOT NULL,
		balance DECIMAL(20,2) NOT NULL,
		change_amount DECIMAL(20,2) NOT NULL,
		reference VARCHAR(128) NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		INDEX idx_user_id (user_id),
		INDEX idx_created_at (created_at),
		INDEX idx_reference (reference),
		FOREIGN KEY (user_id) REFERENCES profiles(id) ON DELETE CASCADE
	);`,
	`CREATE TABLE IF NOT EXISTS transfers (
		id INT AUTO_INCREMENT PRIMARY KEY,
		sender_id INT NOT NULL,
		recipient_id INT NULL,
		recipient_identifier VARCHAR(150) NOT NULL,
		amount DECIMAL(20,2) NOT NULL,
		fee DECIMAL(20,2) NOT NULL,
		agent_commission DECIMAL(20,2) NOT NULL DEFAULT 0,
		platform_commission DECIMAL(20,2) NOT NULL DEFAULT 0,
		status VARCHAR(20) NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		INDEX idx_sender (sender_id),
		INDEX idx_recipient (recipient_id)
	);`,
	`CREATE TABLE IF NOT EXISTS pending_transfers (
		id CHAR(36) PRIMARY KEY,
		sender_id INT NOT NULL,
		recipient_identifier VARCHAR(150) NOT NULL,
		amount DECIMAL(20,2) NOT NULL,
		fee DECIMAL(20,2) NOT NULL,
		claim_code VARCHAR(16) NOT NULL,
		status VARCHAR(20) NOT NULL,
		claimed_by INT NULL,
		created_at DATETIME NOT NULL,
		claimed_at DATETIME NULL,
		UNIQUE KEY uq_pending_claim_code (claim_code),
		INDEX idx_pending_status (status, created_at)
	);`,
	`CREATE TABLE IF NOT EXISTS withdrawals (
		id CHAR(36) PRIMARY KEY,
		user_id INT NOT NULL,
		agent_id INT NULL,
		amount DECIMAL(20,2) NOT NULL,
		withdrawal_phone VARCHAR(32) NOT NULL,
		verification_code VARCHAR(16) NOT NULL,
		active_code VARCHAR(16) NULL,
		fee DECIMAL(20,2) NOT NULL DEFAULT 0,
		agent_commission DECIMAL(20,2) NOT NULL DEFAULT 0,
		platform_commission DECIMAL(20,2) NOT NULL DEFAULT 0,
		status VARCHAR(20) NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE KEY uq_withdrawals_active_code (active_code),
		INDEX idx_withdrawals_user (user_id)
	);`,
	`CREATE TABLE IF NOT EXISTS withdrawal_requests (
		id CHAR(36) PRIMARY KEY,
		agent_id INT NOT NULL,
		user_id INT NOT NULL,
		amount DECIMAL(20,2) NOT NULL,
		withdrawal_phone VARCHAR(32) NOT NULL,
		fee DECIMAL(20,2) NOT NULL DEFAULT 0,
		agent_commission DECIMAL(20,2) NOT NULL DEFAULT 0,
		platform_commission DECIMAL(20,2) NOT NULL DEFAULT 0,
		status VARCHAR(20) NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		INDEX idx_requests_user (user_id, status)
	);`,
	`CREATE TABLE IF NOT EXISTS recharges (
		id CHAR(36) PRIMARY KEY,
		agent_id INT NOT NULL,
		recipient_id INT NOT NULL,
		amount DECIMAL(20,2) NOT NULL,
		agent_commission DECIMAL(20,2) NOT NULL DEFAULT 0,
		status VARCHAR(20) NOT NULL,
		created_at DATETIME NOT NULL,
		INDEX idx_recharges_agent (agent_id, created_at)
	);`,
	`CREATE TABLE IF NOT EXISTS compensations (
		id CHAR(36) PRIMARY KEY,
		saga_id CHAR(36) NOT NULL,
		operation VARCHAR(64) NOT NULL,
		reference VARCHAR(128) NOT NULL,
		account_id INT NOT NULL,
		delta DECIMAL(20,2) NOT NULL,
		status VARCHAR(20) NOT NULL,
		attempts INT NOT NULL DEFAULT 0,
		last_error TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		INDEX idx_compensations_saga (saga_id),
		INDEX idx_compensations_status (status, updated_at)
	);`,
}

func RunMigrations(ctx context.Context, db *sql.DB, logger zerolog.Logger) error {
	for i, q := range migrations {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	logger.Info().Int("statements", len(migrations)).Msg("Migrations completed")
	return nil
}
