// Package cache provides a local SQLite store of completed factorizations.
// The engine consults it before running any stage and writes every success
// back, so repeated submissions of the same target return instantly.
package cache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jonathan/factor-engine/internal/engine"
)

// Cache memoizes factorizations keyed by a SHA-256 of the target's decimal
// form, keeping keys fixed-width even for hundred-digit targets.
type Cache struct {
	db *sql.DB
}

// Open opens the cache database at path, creating the schema if needed.
func Open(path string) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open factor cache: %w", err)
	}

	// A single writer avoids SQLITE_BUSY under concurrent job completion.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS factor_cache (
		n_hash TEXT PRIMARY KEY,
		n TEXT NOT NULL,
		factors TEXT NOT NULL,
		algorithm TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create factor cache schema: %w", err)
	}

	return &Cache{db: db}, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Lookup returns the cached factorization of n, or (nil, nil) on a miss.
func (c *Cache) Lookup(ctx context.Context, n string) (*engine.CachedFactorization, error) {
	var factorsJSON, algorithm string
	err := c.db.QueryRowContext(ctx,
		`SELECT factors, algorithm FROM factor_cache WHERE n_hash = ?`,
		hashKey(n),
	).Scan(&factorsJSON, &algorithm)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query factor cache: %w", err)
	}

	var factors []string
	if err := json.Unmarshal([]byte(factorsJSON), &factors); err != nil {
		return nil, fmt.Errorf("failed to decode cached factors: %w", err)
	}

	return &engine.CachedFactorization{Factors: factors, Algorithm: algorithm}, nil
}

// Store saves a completed factorization, replacing any previous entry for n.
func (c *Cache) Store(ctx context.Context, n string, factors []string, algorithm string) error {
	factorsJSON, err := json.Marshal(factors)
	if err != nil {
		return fmt.Errorf("failed to encode factors: %w", err)
	}

	_, err = c.db.ExecContext(ctx,
		`INSERT INTO factor_cache (n_hash, n, factors, algorithm, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (n_hash) DO UPDATE SET factors = excluded.factors, algorithm = excluded.algorithm`,
		hashKey(n), n, string(factorsJSON), algorithm, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to store factorization: %w", err)
	}
	return nil
}

// Count returns the number of cached factorizations.
func (c *Cache) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM factor_cache`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count cache entries: %w", err)
	}
	return n, nil
}

func hashKey(n string) string {
	sum := sha256.Sum256([]byte(n))
	return hex.EncodeToString(sum[:])
}
