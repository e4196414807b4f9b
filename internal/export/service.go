// Package export renders jobs and their discovered factors to XLSX workbooks.
package export

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/factor-engine/internal/db"
	"github.com/jonathan/factor-engine/internal/types"
)

// resultConcurrency bounds how many per-job result queries run at once.
const resultConcurrency = 4

// Store is the slice of the persistence layer the exporter needs.
type Store interface {
	ListJobs(ctx context.Context, filters db.JobFilters) ([]*types.Job, error)
	ListResults(ctx context.Context, jobID uuid.UUID) ([]*types.JobResult, error)
}

// Service produces XLSX bytes for job exports.
type Service struct {
	store Store
}

// NewService returns an exporter reading from the given store.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// ExportJobsXLSX returns a workbook with one sheet of jobs matching the
// filters and one sheet of every factor those jobs found.
func (s *Service) ExportJobsXLSX(ctx context.Context, filters db.JobFilters) ([]byte, error) {
	jobs, err := s.store.ListJobs(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}

	// Per-job result queries are independent; fetch them in parallel with
	// each goroutine writing its own slot.
	results := make([][]*types.JobResult, len(jobs))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(resultConcurrency)
	for i, job := range jobs {
		g.Go(func() error {
			rs, err := s.store.ListResults(gCtx, job.ID)
			if err != nil {
				return fmt.Errorf("query results for job %s: %w", job.ID, err)
			}
			results[i] = rs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := writeJobsSheet(f, jobs); err != nil {
		return nil, err
	}
	if err := writeResultsSheet(f, jobs, results); err != nil {
		return nil, err
	}

	// Drop the default sheet so the workbook opens on Jobs.
	_ = f.DeleteSheet("Sheet1")
	if index, err := f.GetSheetIndex("Jobs"); err == nil {
		f.SetActiveSheet(index)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func writeJobsSheet(f *excelize.File, jobs []*types.Job) error {
	const sheet = "Jobs"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	headers := []string{
		"ID",
		"N",
		"Digits",
		"Mode",
		"Status",
		"Stage",
		"Progress %",
		"Factors",
		"Error",
		"Created At",
		"Started At",
		"Finished At",
		"Total Time (s)",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, job := range jobs {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		write(1, job.ID.String())
		write(2, truncate(job.N, 60))
		write(3, len(job.N))
		write(4, string(job.Mode))
		write(5, string(job.Status))
		write(6, job.CurrentStage)
		write(7, job.ProgressPercent)
		write(8, truncate(strings.Join(job.FactorsFound, " × "), 80))
		write(9, truncate(job.ErrorMessage, 140))
		write(10, job.CreatedAt.Format(time.RFC3339))
		write(11, formatTime(job.StartedAt))
		write(12, formatTime(job.FinishedAt))
		write(13, job.TotalTimeSeconds)

		row++
	}

	// Widen a few columns
	_ = f.SetColWidth(sheet, "A", "A", 38) // job id
	_ = f.SetColWidth(sheet, "B", "B", 40) // target
	_ = f.SetColWidth(sheet, "H", "H", 40) // factors
	_ = f.SetColWidth(sheet, "I", "I", 48) // error
	_ = f.SetColWidth(sheet, "J", "L", 22) // timestamps

	return nil
}

func writeResultsSheet(f *excelize.File, jobs []*types.Job, results [][]*types.JobResult) error {
	const sheet = "Results"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	headers := []string{
		"Job ID",
		"Factor",
		"Digits",
		"Prime",
		"Found By",
		"Elapsed (ms)",
		"Found At",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for i := range jobs {
		for _, r := range results[i] {
			write := func(col int, v any) {
				cell, _ := excelize.CoordinatesToCellName(col, row)
				_ = f.SetCellValue(sheet, cell, v)
			}

			write(1, r.JobID.String())
			write(2, truncate(r.Factor, 60))
			write(3, len(r.Factor))
			write(4, r.IsPrime)
			write(5, r.FoundByAlgorithm)
			write(6, r.ElapsedMS)
			write(7, r.FoundAt.Format(time.RFC3339))

			row++
		}
	}

	_ = f.SetColWidth(sheet, "A", "A", 38)
	_ = f.SetColWidth(sheet, "B", "B", 40)
	_ = f.SetColWidth(sheet, "G", "G", 22)

	return nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
