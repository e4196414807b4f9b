package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jonathan/factor-engine/internal/db"
	"github.com/jonathan/factor-engine/internal/export"
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export jobs and results to an XLSX workbook",
	Long: `Read jobs from the PostgreSQL store and write an XLSX workbook with a Jobs
sheet and a Results sheet. DATABASE_URL (or --db-url) selects the store.`,
	RunE: runExport,
}

var (
	exportOut    string
	exportDBURL  string
	exportStatus string
	exportMode   string
	exportLimit  int
	exportOffset int
)

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "jobs.xlsx", "Output file path")
	exportCmd.Flags().StringVar(&exportDBURL, "db-url", "", "PostgreSQL connection URL (defaults to DATABASE_URL env var)")
	exportCmd.Flags().StringVar(&exportStatus, "status", "", "Only include jobs with this status")
	exportCmd.Flags().StringVar(&exportMode, "mode", "", "Only include jobs with this mode")
	exportCmd.Flags().IntVar(&exportLimit, "limit", 1000, "Maximum number of jobs to export")
	exportCmd.Flags().IntVar(&exportOffset, "offset", 0, "Number of jobs to skip")

	rootCmd.AddCommand(exportCmd)
}

func runExport(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	dbURL := exportDBURL
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable or --db-url flag is required")
	}
	if exportLimit < 1 {
		return fmt.Errorf("--limit must be at least 1")
	}

	database, err := db.Connect(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	svc := export.NewService(database)
	data, err := svc.ExportJobsXLSX(ctx, db.JobFilters{
		Status: exportStatus,
		Mode:   exportMode,
		Limit:  exportLimit,
		Offset: exportOffset,
	})
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	if err := os.WriteFile(exportOut, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", exportOut, err)
	}

	_, _ = fmt.Fprintf(os.Stdout, "Successfully exported jobs to %s\n", exportOut)
	return nil
}
