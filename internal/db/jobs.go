package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/factor-engine/internal/types"
)

const jobColumns = `id, n, mode, status, lower_bound, upper_bound, use_equation,
	algorithm_policy, progress_percent, current_stage, current_candidate,
	error_message, factors_found, checkpoint, upload_token,
	created_at, started_at, finished_at, total_time_seconds`

// SaveJob inserts the job or updates the stored row with the job's full
// current state. The engine calls this on every status and checkpoint change,
// so the row always reflects the latest snapshot.
func (s *Store) SaveJob(ctx context.Context, job *types.Job) error {
	policyJSON, err := json.Marshal(job.Policy)
	if err != nil {
		return fmt.Errorf("failed to marshal policy: %w", err)
	}

	var factorsJSON []byte
	if job.FactorsFound != nil {
		if factorsJSON, err = json.Marshal(job.FactorsFound); err != nil {
			return fmt.Errorf("failed to marshal factors: %w", err)
		}
	}

	var checkpointJSON []byte
	if job.Checkpoint != nil {
		if checkpointJSON, err = json.Marshal(job.Checkpoint); err != nil {
			return fmt.Errorf("failed to marshal checkpoint: %w", err)
		}
	}

	var uploadToken *string
	if job.UploadToken != "" {
		uploadToken = &job.UploadToken
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO jobs (id, n, mode, status, lower_bound, upper_bound, use_equation,
			algorithm_policy, progress_percent, current_stage, current_candidate,
			error_message, factors_found, checkpoint, upload_token,
			created_at, started_at, finished_at, total_time_seconds)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		 ON CONFLICT (id) DO UPDATE SET
			status = $4, lower_bound = $5, upper_bound = $6, use_equation = $7,
			algorithm_policy = $8, progress_percent = $9, current_stage = $10,
			current_candidate = $11, error_message = $12, factors_found = $13,
			checkpoint = $14, started_at = $17, finished_at = $18, total_time_seconds = $19`,
		job.ID, job.N, job.Mode, job.Status, job.LowerBound, job.UpperBound, job.UseEquation,
		policyJSON, job.ProgressPercent, job.CurrentStage, job.CurrentCandidate,
		job.ErrorMessage, factorsJSON, checkpointJSON, uploadToken,
		job.CreatedAt, job.StartedAt, job.FinishedAt, job.TotalTimeSeconds,
	)
	if err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID. Returns (nil, nil) when no row exists.
func (s *Store) GetJob(ctx context.Context, jobID uuid.UUID) (*types.Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, jobID)

	job, err := scanJob(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// JobFilters holds optional filters for listing jobs.
type JobFilters struct {
	Status      string
	Mode        string
	UploadToken string
	Limit       int
	Offset      int
}

// ListJobs retrieves jobs newest first with optional filters.
func (s *Store) ListJobs(ctx context.Context, filters JobFilters) ([]*types.Job, error) {
	if filters.Limit == 0 {
		filters.Limit = 50
	}

	query := `SELECT ` + jobColumns + ` FROM jobs WHERE 1=1`
	args := []any{}
	argNum := 1

	if filters.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, filters.Status)
		argNum++
	}
	if filters.Mode != "" {
		query += fmt.Sprintf(" AND mode = $%d", argNum)
		args = append(args, filters.Mode)
		argNum++
	}
	if filters.UploadToken != "" {
		query += fmt.Sprintf(" AND upload_token = $%d", argNum)
		args = append(args, filters.UploadToken)
		argNum++
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argNum, argNum+1)
	args = append(args, filters.Limit, filters.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*types.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// ListResumable retrieves jobs that a restarted engine should pick back up:
// pending jobs plus paused jobs with a checkpoint.
func (s *Store) ListResumable(ctx context.Context) ([]*types.Job, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM jobs
		 WHERE status = 'pending' OR (status = 'paused' AND checkpoint IS NOT NULL)
		 ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list resumable jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*types.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// DeleteJob deletes a job and its logs and results via cascade.
func (s *Store) DeleteJob(ctx context.Context, jobID uuid.UUID) error {
	result, err := s.pool.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("job not found: %s", jobID)
	}
	return nil
}

func scanJob(row pgx.Row) (*types.Job, error) {
	var job types.Job
	var policyJSON, factorsJSON, checkpointJSON []byte
	var uploadToken *string

	err := row.Scan(
		&job.ID, &job.N, &job.Mode, &job.Status, &job.LowerBound, &job.UpperBound,
		&job.UseEquation, &policyJSON, &job.ProgressPercent, &job.CurrentStage,
		&job.CurrentCandidate, &job.ErrorMessage, &factorsJSON, &checkpointJSON,
		&uploadToken, &job.CreatedAt, &job.StartedAt, &job.FinishedAt,
		&job.TotalTimeSeconds,
	)
	if err != nil {
		return nil, err
	}

	if len(policyJSON) > 0 {
		if err := json.Unmarshal(policyJSON, &job.Policy); err != nil {
			return nil, fmt.Errorf("failed to unmarshal policy: %w", err)
		}
	}
	if len(factorsJSON) > 0 {
		if err := json.Unmarshal(factorsJSON, &job.FactorsFound); err != nil {
			return nil, fmt.Errorf("failed to unmarshal factors: %w", err)
		}
	}
	if len(checkpointJSON) > 0 {
		var cp types.Checkpoint
		if err := json.Unmarshal(checkpointJSON, &cp); err != nil {
			return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
		}
		job.Checkpoint = &cp
	}
	if uploadToken != nil {
		job.UploadToken = *uploadToken
	}

	return &job, nil
}
