// Package engine owns the factorization job lifecycle: submission,
// scheduling across the algorithm stages, pause/resume/cancel control,
// checkpointing, and emission of logs, results and job snapshots through a
// pluggable sink. The numeric work itself lives in internal/stages; the
// engine decides what runs, records what happened, and guarantees that
// terminal jobs never change again.
package engine

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/factor-engine/internal/metrics"
	"github.com/jonathan/factor-engine/internal/numeric"
	"github.com/jonathan/factor-engine/internal/types"
)

// CachedFactorization is a previously computed split of some N.
type CachedFactorization struct {
	Factors   []string
	Algorithm string
}

// FactorCache is a local store of completed factorizations, consulted before
// any stage runs and written back on success.
type FactorCache interface {
	// Lookup returns nil, nil on a miss.
	Lookup(ctx context.Context, n string) (*CachedFactorization, error)
	Store(ctx context.Context, n string, factors []string, algorithm string) error
}

// RemoteFactorization is what an external factor database reported.
// Status carries the database's own code: "FF" means fully factored.
type RemoteFactorization struct {
	Status  string
	Factors []string
}

// RemoteLookup queries an external factor database such as factordb.com.
type RemoteLookup interface {
	Lookup(ctx context.Context, n string) (*RemoteFactorization, error)
}

// jobEntry is the engine's mutable record for one job. Everything in it is
// guarded by Engine.mu; control flags are polled by the running stage at
// checkpoint boundaries.
type jobEntry struct {
	job       *types.Job
	executing bool
	pause     bool
	cancel    bool
	resume    bool
	logSeq    int64
}

// Engine registers jobs and executes them. All exported methods are safe
// for concurrent use.
type Engine struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*jobEntry

	sink            Sink
	cache           FactorCache
	lookup          RemoteLookup
	collector       *metrics.Collector
	checkpointEvery uint64
}

// Option configures an Engine.
type Option func(*Engine)

// WithSink replaces the default in-memory sink.
func WithSink(s Sink) Option {
	return func(e *Engine) {
		if s != nil {
			e.sink = s
		}
	}
}

// WithFactorCache attaches a local factor cache.
func WithFactorCache(c FactorCache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithRemoteLookup attaches an external factor database client.
func WithRemoteLookup(l RemoteLookup) Option {
	return func(e *Engine) { e.lookup = l }
}

// WithMetrics attaches a Prometheus collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(e *Engine) { e.collector = c }
}

// WithCheckpointInterval overrides the work-unit interval between control
// polls. Mainly for tests, which want responsive pause and cancel.
func WithCheckpointInterval(n uint64) Option {
	return func(e *Engine) { e.checkpointEvery = n }
}

// New creates an Engine. With no options it logs to an in-memory sink and
// runs without cache, remote lookup or metrics.
func New(opts ...Option) *Engine {
	e := &Engine{
		jobs: make(map[uuid.UUID]*jobEntry),
		sink: NewMemorySink(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Sink returns the sink the engine writes to.
func (e *Engine) Sink() Sink { return e.sink }

// Submit validates and registers a new job in pending status. A target or
// bounds that fail numeric validation still registers the job, directly in
// failed status with the rejection in its error message and log history,
// and the validation error is returned alongside the snapshot.
func (e *Engine) Submit(ctx context.Context, req types.CreateJobRequest) (*types.Job, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	mode := req.Mode
	if mode == "" {
		mode = types.ModeAuto
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("invalid request: unknown mode %q", mode)
	}

	policy := types.DefaultPolicy()
	if req.Policy != nil {
		policy = *req.Policy
		policy.Normalize()
	}

	useEquation := true
	if req.UseEquation != nil {
		useEquation = *req.UseEquation
	}
	switch mode {
	case types.ModeEquationGuided:
		useEquation = true
	case types.ModeRangeScan:
		useEquation = false
	}

	job := &types.Job{
		ID:          uuid.New(),
		N:           strings.TrimSpace(req.N),
		Mode:        mode,
		LowerBound:  strings.TrimSpace(req.LowerBound),
		UpperBound:  strings.TrimSpace(req.UpperBound),
		UseEquation: useEquation,
		Policy:      policy,
		Status:      types.StatusPending,
		UploadToken: req.UploadToken,
		CreatedAt:   time.Now().UTC(),
	}
	entry := &jobEntry{job: job}

	e.mu.Lock()
	e.jobs[job.ID] = entry
	e.mu.Unlock()
	e.collector.RecordJobSubmitted()

	if err := validateTarget(job); err != nil {
		e.rejectSubmission(ctx, entry, err)
		snap, _ := e.GetState(job.ID)
		return snap, err
	}

	e.appendLog(ctx, entry, types.LogInfo, types.StageInitialization, "Job created", map[string]any{
		"n_digits": len(strings.TrimPrefix(job.N, "-")),
		"mode":     string(mode),
	})
	e.publish(ctx, entry)

	snap, _ := e.GetState(job.ID)
	return snap, nil
}

// validateTarget applies the numeric rules a submission must satisfy: N is
// an integer greater than 1, bounds (when present) are positive integers in
// order, and range scans carry both bounds.
func validateTarget(job *types.Job) error {
	if _, err := numeric.ParseTarget(job.N); err != nil {
		return &InvalidInputError{Reason: err.Error()}
	}
	if job.Mode == types.ModeRangeScan && (job.LowerBound == "" || job.UpperBound == "") {
		return &InvalidInputError{Reason: "range_scan requires lower_bound and upper_bound"}
	}
	var lower, upper *big.Int
	if job.LowerBound != "" {
		v, err := numeric.ParseInt(job.LowerBound)
		if err != nil || v.Sign() <= 0 {
			return &InvalidInputError{Reason: fmt.Sprintf("lower_bound %q is not a positive integer", job.LowerBound)}
		}
		lower = v
	}
	if job.UpperBound != "" {
		v, err := numeric.ParseInt(job.UpperBound)
		if err != nil || v.Sign() <= 0 {
			return &InvalidInputError{Reason: fmt.Sprintf("upper_bound %q is not a positive integer", job.UpperBound)}
		}
		upper = v
	}
	if lower != nil && upper != nil && lower.Cmp(upper) > 0 {
		return &InvalidInputError{Reason: "lower_bound exceeds upper_bound"}
	}
	return nil
}

// rejectSubmission finalizes a job that failed validation. No stages run.
func (e *Engine) rejectSubmission(ctx context.Context, entry *jobEntry, reason error) {
	now := time.Now().UTC()
	e.mu.Lock()
	entry.job.Status = types.StatusFailed
	entry.job.ErrorMessage = reason.Error()
	entry.job.FinishedAt = &now
	e.mu.Unlock()

	e.appendLog(ctx, entry, types.LogError, types.StageInitialization, reason.Error(), nil)
	e.publish(ctx, entry)
	e.collector.RecordJobFinished(string(types.StatusFailed))
}

// Control requests a state transition. Pause and cancel of a running job
// are flags the stage observes at its next checkpoint; cancel of a pending
// or paused job takes effect immediately. Resume marks a paused job
// claimable again. Requests that do not apply to the job's current status
// are ignored, and terminal jobs never change.
func (e *Engine) Control(ctx context.Context, id uuid.UUID, action types.ControlAction) (*types.Job, error) {
	if !action.Valid() {
		return nil, fmt.Errorf("unknown control action %q", action)
	}

	e.mu.Lock()
	entry, ok := e.jobs[id]
	if !ok {
		e.mu.Unlock()
		return nil, ErrJobNotFound
	}

	cancelledNow := false
	switch action {
	case types.ControlPause:
		if entry.job.Status == types.StatusRunning && !entry.cancel {
			entry.pause = true
		}
	case types.ControlResume:
		if entry.job.Status == types.StatusPaused {
			entry.resume = true
		}
	case types.ControlCancel:
		switch entry.job.Status {
		case types.StatusRunning:
			entry.cancel = true
			entry.pause = false
		case types.StatusPending, types.StatusPaused:
			now := time.Now().UTC()
			entry.job.Status = types.StatusCancelled
			entry.job.FinishedAt = &now
			if entry.job.StartedAt != nil {
				entry.job.TotalTimeSeconds = now.Sub(*entry.job.StartedAt).Seconds()
			}
			cancelledNow = true
		}
	}
	snap := entry.job.Clone()
	e.mu.Unlock()

	if cancelledNow {
		e.appendLog(ctx, entry, types.LogInfo, types.StageControl, "Job cancelled by user", nil)
		e.publish(ctx, entry)
		e.collector.RecordJobFinished(string(types.StatusCancelled))
	}
	return snap, nil
}

// Restore registers a previously persisted job without altering it, so a
// restarted process can pick up the work the last one left behind. Only
// pending and paused jobs are restorable; logSeq seeds the log sequence
// counter so new entries continue after the persisted history.
func (e *Engine) Restore(job *types.Job, logSeq int64) error {
	if job == nil || job.ID == uuid.Nil {
		return fmt.Errorf("cannot restore a job without an id")
	}
	switch job.Status {
	case types.StatusPending, types.StatusPaused:
	default:
		return &NotRunnableError{Status: job.Status}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.jobs[job.ID]; exists {
		return fmt.Errorf("job %s is already registered", job.ID)
	}
	e.jobs[job.ID] = &jobEntry{job: job.Clone(), logSeq: logSeq}
	return nil
}

// Forget removes a terminal job from the in-memory registry. Active jobs
// are refused with ErrJobActive; cancel them first.
func (e *Engine) Forget(id uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if !entry.job.Status.Terminal() {
		return ErrJobActive
	}
	delete(e.jobs, id)
	return nil
}

// GetState returns a deep-copied snapshot of the job. Callers may mutate
// the returned value freely.
func (e *Engine) GetState(id uuid.UUID) (*types.Job, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	entry, ok := e.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return entry.job.Clone(), nil
}

// List returns snapshots of every registered job, newest first.
func (e *Engine) List() []*types.Job {
	e.mu.RLock()
	out := make([]*types.Job, 0, len(e.jobs))
	for _, entry := range e.jobs {
		out = append(out, entry.job.Clone())
	}
	e.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// appendLog assigns the next sequence number and writes the entry to the
// sink. Sink failures are logged, never propagated: losing a log line must
// not fail a job.
func (e *Engine) appendLog(ctx context.Context, entry *jobEntry, level types.LogLevel, stage, message string, payload map[string]any) {
	e.mu.Lock()
	entry.logSeq++
	rec := types.JobLog{
		JobID:     entry.job.ID,
		Seq:       entry.logSeq,
		Timestamp: time.Now().UTC(),
		Level:     level,
		Stage:     stage,
		Message:   message,
		Payload:   payload,
	}
	e.mu.Unlock()

	if err := e.sink.AppendLog(ctx, rec); err != nil {
		log.Printf("failed to append log for job %s: %v", rec.JobID, err)
	}
}

// publish writes the current job snapshot to the sink.
func (e *Engine) publish(ctx context.Context, entry *jobEntry) {
	e.mu.RLock()
	snap := entry.job.Clone()
	e.mu.RUnlock()

	if err := e.sink.UpdateJob(ctx, *snap); err != nil {
		log.Printf("failed to persist job %s: %v", snap.ID, err)
	}
}
