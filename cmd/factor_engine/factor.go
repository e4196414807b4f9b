package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonathan/factor-engine/internal/cache"
	"github.com/jonathan/factor-engine/internal/config"
	"github.com/jonathan/factor-engine/internal/engine"
	"github.com/jonathan/factor-engine/internal/lookup"
	"github.com/jonathan/factor-engine/internal/observability"
	"github.com/jonathan/factor-engine/internal/types"
	"github.com/spf13/cobra"
)

var factorCmd = &cobra.Command{
	Use:   "factor <n>",
	Short: "Factor a number locally",
	Long: `Run a factorization job in-process and print the outcome. The job runs the
same stage pipeline as the API server. Ctrl-C checkpoints the search and
reports the job as paused instead of discarding progress.`,
	Args: cobra.ExactArgs(1),
	RunE: runFactor,
}

var (
	factorMode       string
	factorLower      string
	factorUpper      string
	factorNoEquation bool
	factorPolicyPath string
	factorCachePath  string
	factorFactorDB   bool
	factorTimeout    time.Duration
	factorSeed       int64
	factorJSON       bool
	factorVerbose    bool
)

func init() {
	factorCmd.Flags().StringVarP(&factorMode, "mode", "m", "auto", "Job mode: auto, equation_guided, or range_scan")
	factorCmd.Flags().StringVar(&factorLower, "lower", "", "Lower bound for the candidate search")
	factorCmd.Flags().StringVar(&factorUpper, "upper", "", "Upper bound for the candidate search")
	factorCmd.Flags().BoolVar(&factorNoEquation, "no-equation", false, "Skip equation-guided bound tightening")
	factorCmd.Flags().StringVar(&factorPolicyPath, "policy", "", "Path to an algorithm policy JSON file")
	factorCmd.Flags().StringVar(&factorCachePath, "cache", "", "Path to a SQLite factor cache (checked before running, updated on success)")
	factorCmd.Flags().BoolVar(&factorFactorDB, "factordb", false, "Consult factordb.com before local stages (requires network)")
	factorCmd.Flags().DurationVar(&factorTimeout, "timeout", 0, "Fail the run after this long (0 = no limit)")
	factorCmd.Flags().Int64Var(&factorSeed, "seed", 0, "Seed for rho/ECM randomness (0 = from entropy)")
	factorCmd.Flags().BoolVar(&factorJSON, "json", false, "Print the job and results as JSON")
	factorCmd.Flags().BoolVarP(&factorVerbose, "verbose", "v", false, "Stream job log lines to stderr while the search runs")

	rootCmd.AddCommand(factorCmd)
}

func runFactor(_ *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if factorTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, factorTimeout)
		defer cancel()
	}

	req := types.CreateJobRequest{
		N:          args[0],
		Mode:       types.Mode(factorMode),
		LowerBound: factorLower,
		UpperBound: factorUpper,
	}
	if factorNoEquation {
		useEquation := false
		req.UseEquation = &useEquation
	}
	if factorPolicyPath != "" {
		policy, err := loadPolicy(factorPolicyPath)
		if err != nil {
			return err
		}
		req.Policy = policy
	}
	if factorSeed != 0 {
		if req.Policy == nil {
			policy := types.DefaultPolicy()
			req.Policy = &policy
		}
		req.Policy.RandSeed = factorSeed
	}

	sink := engine.NewMemorySink()
	var engineSink engine.Sink = sink
	if factorVerbose && !factorJSON {
		engineSink = engine.MultiSink{sink, logSink{out: os.Stderr}}
	}
	opts := []engine.Option{engine.WithSink(engineSink)}

	if factorCachePath != "" {
		factorCache, err := cache.Open(factorCachePath)
		if err != nil {
			return fmt.Errorf("failed to open factor cache: %w", err)
		}
		defer func() { _ = factorCache.Close() }()
		opts = append(opts, engine.WithFactorCache(factorCache))
	}
	if factorFactorDB {
		fdb := config.Default().FactorDB
		opts = append(opts, engine.WithRemoteLookup(lookup.New(fdb.BaseURL, fdb.Timeout)))
	}

	e := engine.New(opts...)

	job, err := e.Submit(ctx, req)
	if err != nil {
		return fmt.Errorf("submission rejected: %w", err)
	}

	// A cancelled context means Ctrl-C parked the job as paused; a deadline
	// means the timeout failed it. Both outcomes are reported below.
	if err := e.Execute(ctx, job.ID); err != nil &&
		!errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("execution failed: %w", err)
	}

	final, err := e.GetState(job.ID)
	if err != nil {
		return err
	}
	results := sink.Results(job.ID)

	if factorJSON {
		if err := printFactorJSON(final, results); err != nil {
			return err
		}
	} else {
		printer := observability.NewPrinter(os.Stdout)
		printer.PrintJob(final)
		if len(results) > 0 {
			printer.PrintResults(results)
		}
	}

	if final.Status == types.StatusFailed {
		return fmt.Errorf("factorization failed: %s", final.ErrorMessage)
	}
	return nil
}

func printFactorJSON(job *types.Job, results []types.JobResult) error {
	out := struct {
		Job     *types.Job        `json:"job"`
		Results []types.JobResult `json:"results"`
	}{Job: job, Results: results}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	_, _ = fmt.Fprintln(os.Stdout, string(data))
	return nil
}

// logSink mirrors job log lines to a writer so long searches show progress
// as it happens. Results and job snapshots stay with the memory sink.
type logSink struct {
	out io.Writer
}

func (s logSink) AppendLog(_ context.Context, entry types.JobLog) error {
	stage := entry.Stage
	if stage == "" {
		stage = "-"
	}
	_, _ = fmt.Fprintf(s.out, "[%s] %s: %s\n", entry.Level, stage, entry.Message)
	return nil
}

func (s logSink) AppendResult(context.Context, types.JobResult) error { return nil }

func (s logSink) UpdateJob(context.Context, types.Job) error { return nil }
