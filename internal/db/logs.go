package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/jonathan/factor-engine/internal/types"
)

// AppendLog stores one log entry. Replays of an already-stored (job_id, seq)
// pair are ignored so crash-recovery re-emission stays idempotent.
func (s *Store) AppendLog(ctx context.Context, entry *types.JobLog) error {
	var payloadJSON []byte
	if entry.Payload != nil {
		var err error
		if payloadJSON, err = json.Marshal(entry.Payload); err != nil {
			return fmt.Errorf("failed to marshal log payload: %w", err)
		}
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO job_logs (job_id, seq, timestamp, level, stage, message, payload)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (job_id, seq) DO NOTHING`,
		entry.JobID, entry.Seq, entry.Timestamp, entry.Level, entry.Stage, entry.Message, payloadJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to append log: %w", err)
	}
	return nil
}

// ListLogs retrieves a job's log entries ordered by sequence number.
func (s *Store) ListLogs(ctx context.Context, jobID uuid.UUID, skip, limit int) ([]*types.JobLog, error) {
	if limit == 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx,
		`SELECT job_id, seq, timestamp, level, stage, message, payload
		 FROM job_logs WHERE job_id = $1
		 ORDER BY seq ASC LIMIT $2 OFFSET $3`,
		jobID, limit, skip,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list logs: %w", err)
	}
	defer rows.Close()

	var logs []*types.JobLog
	for rows.Next() {
		var entry types.JobLog
		var payloadJSON []byte
		if err := rows.Scan(&entry.JobID, &entry.Seq, &entry.Timestamp, &entry.Level,
			&entry.Stage, &entry.Message, &payloadJSON); err != nil {
			return nil, fmt.Errorf("failed to scan log: %w", err)
		}
		if len(payloadJSON) > 0 {
			if err := json.Unmarshal(payloadJSON, &entry.Payload); err != nil {
				return nil, fmt.Errorf("failed to unmarshal log payload: %w", err)
			}
		}
		logs = append(logs, &entry)
	}
	return logs, nil
}

// MaxLogSeq returns the highest stored sequence number for a job, or zero
// when the job has no logs. Used to re-seed the engine's counter on resume.
func (s *Store) MaxLogSeq(ctx context.Context, jobID uuid.UUID) (int64, error) {
	var seq int64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM job_logs WHERE job_id = $1`,
		jobID,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("failed to get max log seq: %w", err)
	}
	return seq, nil
}

// AppendResult stores one discovered factor.
func (s *Store) AppendResult(ctx context.Context, result *types.JobResult) error {
	var certJSON []byte
	if len(result.Certificate) > 0 {
		certJSON = result.Certificate
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO job_results (job_id, factor, is_prime, certificate, found_by_algorithm, elapsed_ms, found_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		result.JobID, result.Factor, result.IsPrime, certJSON,
		result.FoundByAlgorithm, result.ElapsedMS, result.FoundAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append result: %w", err)
	}
	return nil
}

// ListResults retrieves a job's discovered factors in discovery order.
func (s *Store) ListResults(ctx context.Context, jobID uuid.UUID) ([]*types.JobResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT job_id, factor, is_prime, certificate, found_by_algorithm, elapsed_ms, found_at
		 FROM job_results WHERE job_id = $1 ORDER BY id ASC`,
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	defer rows.Close()

	var results []*types.JobResult
	for rows.Next() {
		var r types.JobResult
		var certJSON []byte
		if err := rows.Scan(&r.JobID, &r.Factor, &r.IsPrime, &certJSON,
			&r.FoundByAlgorithm, &r.ElapsedMS, &r.FoundAt); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		if len(certJSON) > 0 {
			r.Certificate = json.RawMessage(certJSON)
		}
		results = append(results, &r)
	}
	return results, nil
}
