// Package db provides PostgreSQL persistence for factorization jobs, their
// logs and results, CSV uploads, and user accounts.
package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store wraps a PostgreSQL connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// Connect establishes a connection pool to the database.
func Connect(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping verifies the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate creates the schema if it does not exist. Statements are idempotent
// so repeated startup runs are safe.
func (s *Store) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS jobs (
			id UUID PRIMARY KEY,
			n TEXT NOT NULL,
			mode TEXT NOT NULL,
			status TEXT NOT NULL,
			lower_bound TEXT NOT NULL DEFAULT '',
			upper_bound TEXT NOT NULL DEFAULT '',
			use_equation BOOLEAN NOT NULL DEFAULT TRUE,
			algorithm_policy JSONB NOT NULL DEFAULT '{}'::jsonb,
			progress_percent DOUBLE PRECISION NOT NULL DEFAULT 0,
			current_stage TEXT NOT NULL DEFAULT '',
			current_candidate TEXT NOT NULL DEFAULT '',
			error_message TEXT NOT NULL DEFAULT '',
			factors_found JSONB,
			checkpoint JSONB,
			upload_token UUID,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			started_at TIMESTAMPTZ,
			finished_at TIMESTAMPTZ,
			total_time_seconds DOUBLE PRECISION NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs (status)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs (created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_upload_token ON jobs (upload_token) WHERE upload_token IS NOT NULL`,
		`CREATE TABLE IF NOT EXISTS job_logs (
			id BIGSERIAL PRIMARY KEY,
			job_id UUID NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
			seq BIGINT NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			level TEXT NOT NULL,
			stage TEXT NOT NULL DEFAULT '',
			message TEXT NOT NULL,
			payload JSONB,
			UNIQUE (job_id, seq)
		)`,
		`CREATE TABLE IF NOT EXISTS job_results (
			id BIGSERIAL PRIMARY KEY,
			job_id UUID NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
			factor TEXT NOT NULL,
			is_prime BOOLEAN NOT NULL,
			certificate JSONB,
			found_by_algorithm TEXT NOT NULL,
			elapsed_ms BIGINT NOT NULL DEFAULT 0,
			found_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_job_results_job_id ON job_results (job_id)`,
		`CREATE TABLE IF NOT EXISTS uploads (
			token UUID PRIMARY KEY,
			filename TEXT NOT NULL,
			row_count INT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS upload_rows (
			id BIGSERIAL PRIMARY KEY,
			token UUID NOT NULL REFERENCES uploads(token) ON DELETE CASCADE,
			line INT NOT NULL,
			n TEXT NOT NULL,
			lower_bound TEXT NOT NULL DEFAULT '',
			upper_bound TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_upload_rows_token ON upload_rows (token)`,
		`CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			name TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}
	return nil
}

// ResetStaleRunning puts jobs left in the running state by a previous
// process back to pending so they are picked up again on startup. Their
// checkpoint, if any, carries the resume position. Returns the number of
// jobs touched.
func (s *Store) ResetStaleRunning(ctx context.Context) (int64, error) {
	result, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = 'pending' WHERE status = 'running'`,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reset stale jobs: %w", err)
	}
	return result.RowsAffected(), nil
}
