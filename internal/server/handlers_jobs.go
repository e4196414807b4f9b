package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/jonathan/factor-engine/internal/db"
	"github.com/jonathan/factor-engine/internal/engine"
	"github.com/jonathan/factor-engine/internal/types"
)

// handleCreateJob submits a factorization job and queues it for execution.
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req types.CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	job, err := s.engine.Submit(r.Context(), req)
	if err != nil {
		var invalid *engine.InvalidInputError
		if errors.As(err, &invalid) && job != nil {
			// The rejection is part of the job's history; return the failed
			// snapshot so the client can see what was recorded.
			s.jsonResponse(w, http.StatusBadRequest, map[string]any{
				"error": err.Error(),
				"job":   job,
			})
			return
		}
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.queue.Enqueue(job.ID); err != nil {
		// The job stays registered as pending; a restart re-queues it.
		s.errorResponse(w, HTTPStatus(err), "Job accepted but not queued: "+err.Error())
		return
	}

	s.jsonResponse(w, http.StatusCreated, job)
}

// handleListJobs returns jobs newest first with optional filters.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	filters := db.JobFilters{
		Status:      r.URL.Query().Get("status"),
		Mode:        r.URL.Query().Get("mode"),
		UploadToken: r.URL.Query().Get("upload_token"),
	}

	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			s.errorResponse(w, http.StatusBadRequest, "Invalid limit parameter")
			return
		}
		filters.Limit = limit
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			s.errorResponse(w, http.StatusBadRequest, "Invalid offset parameter")
			return
		}
		filters.Offset = offset
	}

	jobs, err := s.store.ListJobs(r.Context(), filters)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Database error: "+err.Error())
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// handleGetJob returns one job. The live engine snapshot wins when the job
// is registered in this process; otherwise the stored row is served, which
// covers jobs finished before the last restart.
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid job ID")
		return
	}

	job, err := s.engine.GetState(id)
	if err != nil {
		if !errors.Is(err, engine.ErrJobNotFound) {
			s.errorResponse(w, http.StatusInternalServerError, err.Error())
			return
		}
		job, err = s.store.GetJob(r.Context(), id)
		if err != nil {
			s.errorResponse(w, http.StatusInternalServerError, "Database error: "+err.Error())
			return
		}
		if job == nil {
			s.errorResponse(w, http.StatusNotFound, "Job not found")
			return
		}
	}

	s.jsonResponse(w, http.StatusOK, job)
}

// handleControlJob applies pause, resume, or cancel to a job.
func (s *Server) handleControlJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid job ID")
		return
	}

	var req types.ControlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		s.errorResponse(w, http.StatusBadRequest, extractValidationErrors(err))
		return
	}

	job, err := s.engine.Control(r.Context(), id, req.Action)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}

	// A resumed job needs a worker; put it back on the queue.
	if req.Action == types.ControlResume && job.Status == types.StatusPaused {
		if err := s.queue.Enqueue(id); err != nil {
			s.errorResponse(w, HTTPStatus(err), "Resume accepted but not queued: "+err.Error())
			return
		}
	}

	s.jsonResponse(w, http.StatusOK, job)
}

// handleDeleteJob removes a terminal job from the registry and the database.
func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid job ID")
		return
	}

	// An active job cannot be deleted. Absence from the registry is fine:
	// jobs finished before the last restart live only in the database.
	if err := s.engine.Forget(id); err != nil && !errors.Is(err, engine.ErrJobNotFound) {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}

	if err := s.store.DeleteJob(r.Context(), id); err != nil {
		if isNotFound(err) {
			s.errorResponse(w, http.StatusNotFound, "Job not found")
			return
		}
		s.errorResponse(w, http.StatusInternalServerError, "Database error: "+err.Error())
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]string{"message": "Job deleted"})
}

// handleJobLogs returns the persisted log history for a job.
func (s *Server) handleJobLogs(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid job ID")
		return
	}

	skip := 0
	limit := 0
	if v := r.URL.Query().Get("skip"); v != "" {
		if skip, err = strconv.Atoi(v); err != nil || skip < 0 {
			s.errorResponse(w, http.StatusBadRequest, "Invalid skip parameter")
			return
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 0 {
			s.errorResponse(w, http.StatusBadRequest, "Invalid limit parameter")
			return
		}
	}

	if !s.jobExists(r, id) {
		s.errorResponse(w, http.StatusNotFound, "Job not found")
		return
	}

	logs, err := s.store.ListLogs(r.Context(), id, skip, limit)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Database error: "+err.Error())
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"job_id": id,
		"logs":   logs,
		"count":  len(logs),
	})
}

// handleJobResults returns the factors recorded for a job.
func (s *Server) handleJobResults(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid job ID")
		return
	}

	if !s.jobExists(r, id) {
		s.errorResponse(w, http.StatusNotFound, "Job not found")
		return
	}

	results, err := s.store.ListResults(r.Context(), id)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Database error: "+err.Error())
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"job_id":  id,
		"results": results,
		"count":   len(results),
	})
}

// jobExists reports whether the job is known to the engine or the store.
func (s *Server) jobExists(r *http.Request, id uuid.UUID) bool {
	if _, err := s.engine.GetState(id); err == nil {
		return true
	}
	job, err := s.store.GetJob(r.Context(), id)
	return err == nil && job != nil
}
