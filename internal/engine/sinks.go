package engine

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/jonathan/factor-engine/internal/types"
)

// Sink receives everything the engine emits: append-only logs, discovered
// factors, and job snapshots after every state change. Implementations must
// be safe for concurrent use; the engine calls them from worker goroutines.
type Sink interface {
	AppendLog(ctx context.Context, entry types.JobLog) error
	AppendResult(ctx context.Context, result types.JobResult) error
	UpdateJob(ctx context.Context, job types.Job) error
}

// MemorySink keeps everything in process memory. It backs the CLI, tests,
// and servers running without a database.
type MemorySink struct {
	mu      sync.RWMutex
	logs    map[uuid.UUID][]types.JobLog
	results map[uuid.UUID][]types.JobResult
	jobs    map[uuid.UUID]types.Job
}

// NewMemorySink returns an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{
		logs:    make(map[uuid.UUID][]types.JobLog),
		results: make(map[uuid.UUID][]types.JobResult),
		jobs:    make(map[uuid.UUID]types.Job),
	}
}

// AppendLog stores one log entry.
func (s *MemorySink) AppendLog(_ context.Context, entry types.JobLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs[entry.JobID] = append(s.logs[entry.JobID], entry)
	return nil
}

// AppendResult stores one discovered factor.
func (s *MemorySink) AppendResult(_ context.Context, result types.JobResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[result.JobID] = append(s.results[result.JobID], result)
	return nil
}

// UpdateJob stores the latest job snapshot.
func (s *MemorySink) UpdateJob(_ context.Context, job types.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}

// Logs returns a copy of the log history for one job, in append order.
func (s *MemorySink) Logs(jobID uuid.UUID) []types.JobLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.JobLog(nil), s.logs[jobID]...)
}

// Results returns a copy of the factors recorded for one job.
func (s *MemorySink) Results(jobID uuid.UUID) []types.JobResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.JobResult(nil), s.results[jobID]...)
}

// Job returns the last snapshot stored for the id.
func (s *MemorySink) Job(jobID uuid.UUID) (types.Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	return job, ok
}

// MultiSink fans every write out to each member sink. The first error is
// returned after all members have been tried.
type MultiSink []Sink

// AppendLog forwards the entry to every member.
func (m MultiSink) AppendLog(ctx context.Context, entry types.JobLog) error {
	var first error
	for _, s := range m {
		if err := s.AppendLog(ctx, entry); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// AppendResult forwards the result to every member.
func (m MultiSink) AppendResult(ctx context.Context, result types.JobResult) error {
	var first error
	for _, s := range m {
		if err := s.AppendResult(ctx, result); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// UpdateJob forwards the snapshot to every member.
func (m MultiSink) UpdateJob(ctx context.Context, job types.Job) error {
	var first error
	for _, s := range m {
		if err := s.UpdateJob(ctx, job); err != nil && first == nil {
			first = err
		}
	}
	return first
}
