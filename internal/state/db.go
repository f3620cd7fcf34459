package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is a global database connection pool.
var DB *sql.DB

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// DSN renders the lib/pq connection string.
func (cfg DBConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)
}

// InitDB initializes the database connection pool.
func InitDB(cfg DBConfig) error {
	return InitDBWithDSN(cfg.DSN())
}

// InitDBWithDSN initializes the pool from a raw connection string.
func InitDBWithDSN(dsn string) error {
	var err error
	DB, err = sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(25)
	DB.SetConnMaxLifetime(5 * time.Minute)

	err = DB.Ping()
	if err != nil {
		DB.Close()
		DB = nil
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("Successfully connected to the PostgreSQL database!")
	return nil
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		log.Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
	}
}

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
func EnsureSchema() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	schemaSQL := `
		CREATE TABLE IF NOT EXISTS vault_configs (
			config_id SERIAL PRIMARY KEY,
			vault_address VARCHAR(255) NOT NULL,
			version INTEGER NOT NULL DEFAULT 1,
			is_active BOOLEAN NOT NULL DEFAULT FALSE,
			activated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			params JSONB NOT NULL,
			CONSTRAINT uq_vault_configs_vault_version UNIQUE (vault_address, version)
		);
		CREATE INDEX IF NOT EXISTS idx_vault_configs_vault_active ON vault_configs(vault_address, is_active, activated_at DESC);

		CREATE TABLE IF NOT EXISTS vault_operations (
			operation_id UUID PRIMARY KEY,
			invocation_id UUID NOT NULL,
			vault_address VARCHAR(255) NOT NULL,
			kind VARCHAR(50) NOT NULL,
			caller VARCHAR(255) NOT NULL DEFAULT '',
			strategies TEXT[],
			payload JSONB,
			operation_timestamp TIMESTAMPTZ NOT NULL,
			recorded_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_vault_operations_timestamp ON vault_operations(vault_address, operation_timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_vault_operations_kind ON vault_operations(kind);

		CREATE TABLE IF NOT EXISTS report_snapshots (
			snapshot_id SERIAL PRIMARY KEY,
			operation_id UUID NOT NULL REFERENCES vault_operations(operation_id) ON DELETE CASCADE,
			vault_address VARCHAR(255) NOT NULL,
			strategy_address VARCHAR(255) NOT NULL,
			prev_balance NUMERIC(78, 0) NOT NULL,
			gains_or_losses NUMERIC(78, 0) NOT NULL,
			locked_fee NUMERIC(78, 0) NOT NULL,
			snapshot_timestamp TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_report_snapshots_strategy ON report_snapshots(vault_address, strategy_address, snapshot_timestamp DESC);

		-- One row per keeper job
		CREATE TABLE IF NOT EXISTS job_runs (
			job_name VARCHAR(100) PRIMARY KEY,
			run_count INTEGER NOT NULL DEFAULT 0,
			failure_count INTEGER NOT NULL DEFAULT 0,
			last_error TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`
	_, err := DB.Exec(schemaSQL)
	if err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	log.Info().Msg("Database schema ensured.")
	return nil
}

// DropSchema removes every table created by EnsureSchema.
func DropSchema() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}
	_, err := DB.Exec(`
		DROP TABLE IF EXISTS report_snapshots CASCADE;
		DROP TABLE IF EXISTS vault_operations CASCADE;
		DROP TABLE IF EXISTS vault_configs CASCADE;
		DROP TABLE IF EXISTS job_runs CASCADE;
	`)
	if err != nil {
		return fmt.Errorf("failed to drop schema: %w", err)
	}
	log.Warn().Msg("Database schema dropped.")
	return nil
}

// TestDBConnection tests if the database connection is healthy
func TestDBConnection() error {
	if DB == nil {
		return fmt.Errorf("database connection is nil")
	}

	// Use a short timeout context for health checks
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := DB.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}
