package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/factor-engine/internal/batch"
	"github.com/jonathan/factor-engine/internal/ingestion"
	"github.com/jonathan/factor-engine/internal/types"
)

// maxUploadBytes caps CSV uploads. Targets are short decimal strings, so
// even a generous batch fits well under this.
const maxUploadBytes = 10 << 20

// handleUploadCSV ingests a CSV of factorization targets. The rows are
// stored under a fresh token; job creation is a separate call so the caller
// can inspect parse errors first.
func (s *Server) handleUploadCSV(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid multipart form: "+err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Missing file field")
		return
	}
	defer file.Close()

	result, err := ingestion.ParseCSV(file)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Failed to parse CSV: "+err.Error())
		return
	}
	if result.Empty() {
		s.errorResponse(w, http.StatusBadRequest, "CSV file is empty")
		return
	}

	upload := &types.Upload{
		Token:     uuid.New(),
		Filename:  header.Filename,
		RowCount:  len(result.Rows),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateUpload(r.Context(), upload, result.Rows); err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Database error: "+err.Error())
		return
	}

	s.jsonResponse(w, http.StatusCreated, map[string]any{
		"upload": upload,
		"errors": result.Errors,
	})
}

// handleGetUpload returns an upload and its parsed rows.
func (s *Server) handleGetUpload(w http.ResponseWriter, r *http.Request) {
	token, err := uuid.Parse(r.PathValue("token"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid upload token")
		return
	}

	upload, err := s.store.GetUpload(r.Context(), token)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Database error: "+err.Error())
		return
	}
	if upload == nil {
		s.errorResponse(w, http.StatusNotFound, "Upload not found")
		return
	}

	rows, err := s.store.ListUploadRows(r.Context(), token)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Database error: "+err.Error())
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"upload": upload,
		"rows":   rows,
	})
}

// handleUploadJobs creates one job per uploaded row. Before any job runs,
// the whole batch goes through the shared-factor prescan; its report rides
// along in the response so callers see inputs that split against each other.
func (s *Server) handleUploadJobs(w http.ResponseWriter, r *http.Request) {
	token, err := uuid.Parse(r.PathValue("token"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid upload token")
		return
	}

	upload, err := s.store.GetUpload(r.Context(), token)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Database error: "+err.Error())
		return
	}
	if upload == nil {
		s.errorResponse(w, http.StatusNotFound, "Upload not found")
		return
	}

	rows, err := s.store.ListUploadRows(r.Context(), token)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Database error: "+err.Error())
		return
	}
	if len(rows) == 0 {
		s.errorResponse(w, http.StatusBadRequest, "Upload has no usable rows")
		return
	}

	targets := make([]string, len(rows))
	for i, row := range rows {
		targets[i] = row.N
	}
	reports, err := batch.Preprocess(targets)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Prescan failed: "+err.Error())
		return
	}
	for i := range reports {
		reports[i].Line = rows[i].Line
	}

	jobs := make([]*types.Job, 0, len(rows))
	var failures []map[string]any
	for _, row := range rows {
		req := types.CreateJobRequest{
			N:           row.N,
			Mode:        types.ModeCSVInput,
			LowerBound:  row.LowerBound,
			UpperBound:  row.UpperBound,
			UploadToken: token.String(),
		}
		job, err := s.engine.Submit(r.Context(), req)
		if job != nil {
			jobs = append(jobs, job)
		}
		if err != nil {
			failures = append(failures, map[string]any{
				"line":  row.Line,
				"error": err.Error(),
			})
			continue
		}
		if err := s.queue.Enqueue(job.ID); err != nil {
			failures = append(failures, map[string]any{
				"line":  row.Line,
				"error": "not queued: " + err.Error(),
			})
		}
	}

	s.jsonResponse(w, http.StatusCreated, map[string]any{
		"upload_token": token,
		"jobs":         jobs,
		"prescan":      reports,
		"errors":       failures,
		"count":        len(jobs),
	})
}
