package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/factor-engine/internal/types"
)

// streamPollInterval is how often the stream handler checks for new log
// entries and job state.
const streamPollInterval = time.Second

// streamPageSize caps one log fetch during streaming.
const streamPageSize = 500

// handleJobStream streams a job's history and live progress as SSE. The
// persisted log is replayed first, then new entries and progress snapshots
// flow until the job reaches a terminal status.
func (s *Server) handleJobStream(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid job ID")
		return
	}

	job, err := s.liveJob(r, id)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Database error: "+err.Error())
		return
	}
	if job == nil {
		s.errorResponse(w, http.StatusNotFound, "Job not found")
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	ticker := time.NewTicker(streamPollInterval)
	defer ticker.Stop()

	var lastSeq int64
	for {
		lastSeq, err = s.streamLogsAfter(r, sse, id, lastSeq)
		if err != nil {
			sse.WriteError(err.Error())
			return
		}

		job, err = s.liveJob(r, id)
		if err != nil || job == nil {
			sse.WriteError("job state unavailable")
			return
		}

		if err := sse.WriteEvent("progress", map[string]any{
			"status":            job.Status,
			"progress_percent":  job.ProgressPercent,
			"current_stage":     job.CurrentStage,
			"current_candidate": job.CurrentCandidate,
		}); err != nil {
			return
		}

		if job.Status.Terminal() {
			sse.WriteComplete(id.String(), string(job.Status))
			return
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

// streamLogsAfter emits persisted log entries with sequence numbers above
// lastSeq and returns the new high-water mark. Sequence numbers are dense
// per job, so the mark doubles as the row offset.
func (s *Server) streamLogsAfter(r *http.Request, sse *SSEWriter, id uuid.UUID, lastSeq int64) (int64, error) {
	for {
		logs, err := s.store.ListLogs(r.Context(), id, int(lastSeq), streamPageSize)
		if err != nil {
			return lastSeq, err
		}
		for _, entry := range logs {
			if entry.Seq <= lastSeq {
				continue
			}
			if err := sse.WriteEvent("log", entry); err != nil {
				return lastSeq, err
			}
			lastSeq = entry.Seq
		}
		if len(logs) < streamPageSize {
			return lastSeq, nil
		}
	}
}

// liveJob returns the freshest snapshot available: the engine's when the
// job is registered in this process, otherwise the stored row.
func (s *Server) liveJob(r *http.Request, id uuid.UUID) (*types.Job, error) {
	if job, err := s.engine.GetState(id); err == nil {
		return job, nil
	}
	return s.store.GetJob(r.Context(), id)
}
