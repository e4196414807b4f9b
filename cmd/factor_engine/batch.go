package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/jonathan/factor-engine/internal/batch"
	"github.com/jonathan/factor-engine/internal/engine"
	"github.com/jonathan/factor-engine/internal/ingestion"
	"github.com/jonathan/factor-engine/internal/observability"
	"github.com/jonathan/factor-engine/internal/types"
	"github.com/spf13/cobra"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Factor a CSV of numbers with a shared-factor prescan",
	Long: `Parse a CSV of targets ("n[,lower[,upper]]" per row, optional header), run
the batch-GCD prescan to expose factors shared between rows, then factor
every row through the stage pipeline with bounded parallelism.`,
	RunE: runBatch,
}

var (
	batchCSVPath     string
	batchPrescanOnly bool
	batchParallel    int
	batchPolicyPath  string
	batchJSON        bool
)

func init() {
	batchCmd.Flags().StringVarP(&batchCSVPath, "csv", "f", "", "Path to the CSV file (required)")
	batchCmd.Flags().BoolVar(&batchPrescanOnly, "prescan-only", false, "Stop after the shared-factor prescan")
	batchCmd.Flags().IntVar(&batchParallel, "parallel", 2, "How many jobs run at once")
	batchCmd.Flags().StringVar(&batchPolicyPath, "policy", "", "Path to an algorithm policy JSON file applied to every job")
	batchCmd.Flags().BoolVar(&batchJSON, "json", false, "Print the prescan and outcomes as JSON")

	_ = batchCmd.MarkFlagRequired("csv")

	rootCmd.AddCommand(batchCmd)
}

// batchOutcome is the per-row summary printed after the run.
type batchOutcome struct {
	Line    int      `json:"line,omitempty"`
	N       string   `json:"n"`
	Status  string   `json:"status,omitempty"`
	Factors []string `json:"factors,omitempty"`
	Error   string   `json:"error,omitempty"`
}

func runBatch(_ *cobra.Command, _ []string) error {
	if batchParallel < 1 {
		return fmt.Errorf("--parallel must be at least 1")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	f, err := os.Open(batchCSVPath)
	if err != nil {
		return fmt.Errorf("failed to open CSV file %s: %w", batchCSVPath, err)
	}
	parsed, err := ingestion.ParseCSV(f)
	_ = f.Close()
	if err != nil {
		return fmt.Errorf("failed to parse CSV: %w", err)
	}

	for _, rowErr := range parsed.Errors {
		_, _ = fmt.Fprintf(os.Stderr, "Warning: line %d: %s\n", rowErr.Line, rowErr.Message)
	}
	if len(parsed.Rows) == 0 {
		return fmt.Errorf("no usable rows in %s", batchCSVPath)
	}

	targets := make([]string, len(parsed.Rows))
	for i, row := range parsed.Rows {
		targets[i] = row.N
	}
	reports, err := batch.Preprocess(targets)
	if err != nil {
		return fmt.Errorf("prescan failed: %w", err)
	}
	for i := range reports {
		reports[i].Line = parsed.Rows[i].Line
	}

	if !batchJSON {
		observability.NewPrinter(os.Stdout).PrintPrescan(reports)
	}

	if batchPrescanOnly {
		if batchJSON {
			return printBatchJSON(reports, nil)
		}
		return nil
	}

	var policy *types.Policy
	if batchPolicyPath != "" {
		if policy, err = loadPolicy(batchPolicyPath); err != nil {
			return err
		}
	}

	sink := engine.NewMemorySink()
	e := engine.New(engine.WithSink(sink))

	outcomes := make([]batchOutcome, len(parsed.Rows))
	jobs := make([]*types.Job, len(parsed.Rows))
	for i, row := range parsed.Rows {
		outcomes[i] = batchOutcome{Line: row.Line, N: row.N}
		job, err := e.Submit(ctx, types.CreateJobRequest{
			N:          row.N,
			Mode:       types.ModeCSVInput,
			LowerBound: row.LowerBound,
			UpperBound: row.UpperBound,
			Policy:     policy,
		})
		if err != nil {
			outcomes[i].Status = string(types.StatusFailed)
			outcomes[i].Error = err.Error()
			continue
		}
		jobs[i] = job
	}

	// Rows factor independently; a failure in one must not stop the rest, so
	// outcomes are recorded per slot and the goroutines never return errors.
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(batchParallel)
	for i, job := range jobs {
		if job == nil {
			continue
		}
		g.Go(func() error {
			if err := e.Execute(gCtx, job.ID); err != nil &&
				!errors.Is(err, context.Canceled) && outcomes[i].Error == "" {
				outcomes[i].Error = err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for i, job := range jobs {
		if job == nil {
			failed++
			continue
		}
		final, err := e.GetState(job.ID)
		if err != nil {
			outcomes[i].Status = string(types.StatusFailed)
			outcomes[i].Error = err.Error()
			failed++
			continue
		}
		outcomes[i].Status = string(final.Status)
		outcomes[i].Factors = final.FactorsFound
		if final.Status == types.StatusFailed {
			outcomes[i].Error = final.ErrorMessage
			failed++
		}
	}

	if batchJSON {
		if err := printBatchJSON(reports, outcomes); err != nil {
			return err
		}
	} else {
		printBatchSummary(outcomes)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d jobs failed", failed, len(parsed.Rows))
	}
	return nil
}

func printBatchSummary(outcomes []batchOutcome) {
	for _, o := range outcomes {
		label := o.N
		if o.Line > 0 {
			label = fmt.Sprintf("line %d: %s", o.Line, o.N)
		}
		switch types.Status(o.Status) {
		case types.StatusCompleted:
			_, _ = fmt.Fprintf(os.Stdout, "%s = %s\n", label, strings.Join(o.Factors, " x "))
		case types.StatusPaused:
			_, _ = fmt.Fprintf(os.Stdout, "%s interrupted before completion\n", label)
		default:
			_, _ = fmt.Fprintf(os.Stdout, "%s failed: %s\n", label, o.Error)
		}
	}
}

func printBatchJSON(reports []batch.Report, outcomes []batchOutcome) error {
	out := struct {
		Prescan []batch.Report `json:"prescan"`
		Jobs    []batchOutcome `json:"jobs,omitempty"`
	}{Prescan: reports, Jobs: outcomes}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	_, _ = fmt.Fprintln(os.Stdout, string(data))
	return nil
}
