package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/factor-engine/internal/types"
)

// CreateUpload stores an upload and its parsed rows in one transaction.
func (s *Store) CreateUpload(ctx context.Context, upload *types.Upload, rows []types.UploadRow) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO uploads (token, filename, row_count, created_at)
		 VALUES ($1, $2, $3, $4)`,
		upload.Token, upload.Filename, upload.RowCount, upload.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create upload: %w", err)
	}

	for _, row := range rows {
		_, err = tx.Exec(ctx,
			`INSERT INTO upload_rows (token, line, n, lower_bound, upper_bound)
			 VALUES ($1, $2, $3, $4, $5)`,
			upload.Token, row.Line, row.N, row.LowerBound, row.UpperBound,
		)
		if err != nil {
			return fmt.Errorf("failed to store upload row %d: %w", row.Line, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit upload: %w", err)
	}
	return nil
}

// GetUpload retrieves an upload by token. Returns (nil, nil) when no row exists.
func (s *Store) GetUpload(ctx context.Context, token uuid.UUID) (*types.Upload, error) {
	var upload types.Upload
	err := s.pool.QueryRow(ctx,
		`SELECT token, filename, row_count, created_at FROM uploads WHERE token = $1`,
		token,
	).Scan(&upload.Token, &upload.Filename, &upload.RowCount, &upload.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get upload: %w", err)
	}
	return &upload, nil
}

// ListUploadRows retrieves an upload's rows in file order.
func (s *Store) ListUploadRows(ctx context.Context, token uuid.UUID) ([]types.UploadRow, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT line, n, lower_bound, upper_bound FROM upload_rows
		 WHERE token = $1 ORDER BY line ASC`,
		token,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list upload rows: %w", err)
	}
	defer rows.Close()

	var out []types.UploadRow
	for rows.Next() {
		var r types.UploadRow
		if err := rows.Scan(&r.Line, &r.N, &r.LowerBound, &r.UpperBound); err != nil {
			return nil, fmt.Errorf("failed to scan upload row: %w", err)
		}
		out = append(out, r)
	}
	return out, nil
}
