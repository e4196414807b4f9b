package db

import (
	"context"

	"github.com/jonathan/factor-engine/internal/types"
)

// Sink adapts the Store to the engine's event sink interface so every log
// line, result, and job snapshot the engine emits lands in PostgreSQL.
type Sink struct {
	store *Store
}

// NewSink returns a Sink writing through the given store.
func NewSink(store *Store) *Sink {
	return &Sink{store: store}
}

// AppendLog stores one log entry.
func (s *Sink) AppendLog(ctx context.Context, entry types.JobLog) error {
	return s.store.AppendLog(ctx, &entry)
}

// AppendResult stores one discovered factor.
func (s *Sink) AppendResult(ctx context.Context, result types.JobResult) error {
	return s.store.AppendResult(ctx, &result)
}

// UpdateJob stores the latest job snapshot.
func (s *Sink) UpdateJob(ctx context.Context, job types.Job) error {
	return s.store.SaveJob(ctx, &job)
}
