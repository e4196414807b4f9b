package server

import (
	"log"
	"net/http"
	"strconv"

	"github.com/jonathan/factor-engine/internal/db"
)

// exportLimitDefault is the job cap for an export without an explicit limit.
// Exports are for offline analysis, so the default is far above the list
// endpoint's page size.
const exportLimitDefault = 1000

// handleExportJobs returns an XLSX workbook of jobs and their factors,
// honoring the same filters as the list endpoint.
func (s *Server) handleExportJobs(w http.ResponseWriter, r *http.Request) {
	filters := db.JobFilters{
		Status:      r.URL.Query().Get("status"),
		Mode:        r.URL.Query().Get("mode"),
		UploadToken: r.URL.Query().Get("upload_token"),
		Limit:       exportLimitDefault,
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			s.errorResponse(w, http.StatusBadRequest, "Invalid limit parameter")
			return
		}
		filters.Limit = limit
	}

	data, err := s.exporter.ExportJobsXLSX(r.Context(), filters)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Export failed: "+err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="jobs.xlsx"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		log.Printf("Error writing export response: %v", err)
	}
}
