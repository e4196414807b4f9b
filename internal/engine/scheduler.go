package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/factor-engine/internal/equation"
	"github.com/jonathan/factor-engine/internal/numeric"
	"github.com/jonathan/factor-engine/internal/stages"
	"github.com/jonathan/factor-engine/internal/types"
)

// Execute claims the job and runs its stage plan to the next stopping
// point: a factor, exhaustion of every stage, a control transition, or
// context cancellation. Pending jobs are claimed directly; paused jobs are
// claimed and resumed from their checkpoint. Execute returns once the job
// has stopped; the job snapshot carries the outcome.
func (e *Engine) Execute(ctx context.Context, id uuid.UUID) error {
	e.mu.Lock()
	entry, ok := e.jobs[id]
	if !ok {
		e.mu.Unlock()
		return ErrJobNotFound
	}
	if entry.executing {
		e.mu.Unlock()
		return ErrAlreadyExecuting
	}
	switch entry.job.Status {
	case types.StatusPending, types.StatusPaused:
	default:
		status := entry.job.Status
		e.mu.Unlock()
		return &NotRunnableError{Status: status}
	}
	resumed := entry.job.Status == types.StatusPaused
	entry.executing = true
	entry.pause = false
	entry.resume = false
	entry.job.Status = types.StatusRunning
	if entry.job.StartedAt == nil {
		now := time.Now().UTC()
		entry.job.StartedAt = &now
	}
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		entry.executing = false
		e.mu.Unlock()
	}()
	e.collector.JobStarted()
	defer e.collector.JobStopped()

	e.publish(ctx, entry)
	r := &run{e: e, entry: entry, id: id, resumed: resumed}
	return r.execute(ctx)
}

// run is the per-execution state of one Execute call.
type run struct {
	e       *Engine
	entry   *jobEntry
	id      uuid.UUID
	resumed bool

	n       *big.Int
	target  string
	mode    types.Mode
	policy  types.Policy
	started time.Time

	// completed accumulates stages that exhausted, across suspensions.
	completed []string

	// Progress bookkeeping for the stage currently running. stagePct is
	// monotonic within a stage and resets when the next stage begins.
	stagePct float64
	lastProg stages.Progress
	haveProg bool
}

func (r *run) execute(ctx context.Context) error {
	e := r.e
	e.mu.RLock()
	job := r.entry.job.Clone()
	e.mu.RUnlock()

	r.target = job.N
	r.mode = job.Mode
	r.policy = job.Policy
	r.started = *job.StartedAt

	var cp *types.Checkpoint
	if job.Checkpoint != nil {
		cp = job.Checkpoint.Clone()
		r.completed = append([]string(nil), cp.CompletedStages...)
	}

	n, err := numeric.ParseTarget(job.N)
	if err != nil {
		r.fail(ctx, (&InvalidInputError{Reason: err.Error()}).Error())
		return nil
	}
	r.n = n

	if r.resumed {
		stage := ""
		if cp != nil {
			stage = cp.Stage
		}
		r.info(ctx, types.StageControl, "Job resumed", map[string]any{
			"stage":            stage,
			"completed_stages": r.completed,
		})
	} else {
		r.info(ctx, types.StageInitialization,
			fmt.Sprintf("Starting factorization of %d-digit number", numeric.Digits(n)),
			map[string]any{"n": job.N, "mode": string(r.mode)})
	}

	if numeric.IsPrimeFast(n) {
		r.warn(ctx, types.StagePrimalityCheck, "Input is probably prime; no non-trivial factors exist", nil)
	}

	// Known-answer shortcuts only make sense on a fresh automatic run; a
	// resumed job already has stage state worth keeping.
	if !r.resumed && cp == nil {
		if r.tryCache(ctx) || r.tryRemote(ctx) {
			return nil
		}
	}

	params := stages.Params{
		Policy:          r.policy,
		CheckpointEvery: e.checkpointEvery,
		Seed:            r.policy.RandSeed,
	}
	searchReady := false
	switch {
	case r.mode == types.ModeRangeScan:
		lower, _ := numeric.ParseInt(job.LowerBound)
		upper, _ := numeric.ParseInt(job.UpperBound)
		if lower == nil || upper == nil {
			r.fail(ctx, (&InvalidInputError{Reason: "range_scan requires lower_bound and upper_bound"}).Error())
			return nil
		}
		params.Lower, params.Upper = lower, upper
		searchReady = true
		r.info(ctx, types.StageEquation, "Using caller-supplied scan range", map[string]any{
			"lower_bound": job.LowerBound,
			"upper_bound": job.UpperBound,
		})
	case job.UseEquation:
		solver, err := equation.NewSolver(n)
		if err != nil {
			r.fail(ctx, (&InvalidInputError{Reason: err.Error()}).Error())
			return nil
		}
		params.Solver = solver
		params.Lower, params.Upper = r.prepareBounds(ctx, job, solver)
		searchReady = params.Lower != nil && params.Upper != nil
	}

	plan, err := stages.Plan(r.mode, r.policy, searchReady)
	if err != nil {
		r.fail(ctx, err.Error())
		return nil
	}
	if len(plan) == 0 {
		r.warn(ctx, types.StageComplete, "No factorization stages enabled by policy", nil)
		r.fail(ctx, AllStagesExhaustedMessage)
		return nil
	}

	for i, def := range plan {
		if cp != nil && cp.Completed(def.Name) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return r.interrupted(def.Name, err)
		}

		r.beginStage(ctx, def.Name)
		rt := stages.Runtime{
			StageIndex: i + 1,
			Log:        r.stageLogger(def.Name),
			Checkpoint: r.stageCheckpoint(def.Name),
			Resume:     cp,
		}
		stageStart := time.Now()
		factor, err := def.Run(ctx, r.n, params, rt)
		e.collector.ObserveStageDuration(def.Name, time.Since(stageStart).Seconds())

		switch {
		case err == nil && factor != nil:
			r.finishFound(factor, def.Name)
			return nil
		case errors.Is(err, stages.ErrExhausted):
			r.stageExhausted(ctx, def.Name)
		case errors.Is(err, errPauseRequested):
			r.suspend(def.Name, "Job paused by user")
			return nil
		case errors.Is(err, errCancelRequested):
			r.finishCancelled()
			return nil
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return r.interrupted(def.Name, err)
		default:
			r.fail(ctx, fmt.Sprintf("stage %s failed: %v", def.Name, err))
			return err
		}
	}

	r.warn(ctx, types.StageComplete, "No factors found with the configured algorithms", nil)
	r.fail(ctx, AllStagesExhaustedMessage)
	return nil
}

// prepareBounds runs the cubic analysis and returns the prime-scan window.
// Caller-supplied bounds win over the solver; solver bounds are persisted
// onto the job so an inspected or resumed job shows its window.
func (r *run) prepareBounds(ctx context.Context, job *types.Job, solver *equation.Solver) (*big.Int, *big.Int) {
	if job.LowerBound != "" && job.UpperBound != "" {
		lower, lerr := numeric.ParseInt(job.LowerBound)
		upper, uerr := numeric.ParseInt(job.UpperBound)
		if lerr == nil && uerr == nil {
			r.info(ctx, types.StageEquation, "Using caller-supplied search bounds", map[string]any{
				"lower_bound": job.LowerBound,
				"upper_bound": job.UpperBound,
			})
			return lower, upper
		}
	}

	bounds := solver.InitialBounds()
	r.event(ctx, types.LogInfo, types.StageEquation, "Equation analysis complete", solver.DiagnosticReport())
	if bounds.UsedFallback {
		if bounds.Converged {
			r.warn(ctx, types.StageEquation, "Cubic root falls outside the usable window; using the digit-based lower bound", nil)
		} else {
			r.warn(ctx, types.StageEquation,
				fmt.Sprintf("Newton iteration did not converge after %d steps; using the digit-based lower bound", bounds.Iterations), nil)
		}
	}
	r.info(ctx, types.StageEquation,
		fmt.Sprintf("Trurl bounds: lower = 10^%.1f, upper = 10^%.1f",
			numeric.ApproxLog10(bounds.Lower), numeric.ApproxLog10(bounds.Upper)),
		map[string]any{
			"lower_bound":       bounds.Lower.String(),
			"upper_bound":       bounds.Upper.String(),
			"newton_iterations": bounds.Iterations,
			"newton_converged":  bounds.Converged,
		})

	r.spotCheckInverse(ctx, solver, bounds.Lower, bounds.Upper)
	r.event(ctx, types.LogInfo, types.StageEquation, "Search strategy selected", equation.SearchStrategy(bounds.Lower, bounds.Upper))

	r.e.mu.Lock()
	if r.entry.job.LowerBound == "" {
		r.entry.job.LowerBound = bounds.Lower.String()
	}
	if r.entry.job.UpperBound == "" {
		r.entry.job.UpperBound = bounds.Upper.String()
	}
	r.e.mu.Unlock()
	r.e.publish(ctx, r.entry)

	return bounds.Lower, bounds.Upper
}

// spotCheckInverse samples the search window at its thirds and verifies the
// inverse relationship pairwise: a larger x must give a smaller y. Failures
// are informational; the Trurl model is a heuristic and the scan proceeds
// either way.
func (r *run) spotCheckInverse(ctx context.Context, solver *equation.Solver, lower, upper *big.Int) {
	span := new(big.Int).Sub(upper, lower)
	third := new(big.Int).Div(span, big.NewInt(3))
	if third.Sign() <= 0 {
		return
	}
	checked, held := 0, 0
	prev := lower
	for i := int64(1); i <= 3; i++ {
		x := new(big.Int).Add(lower, new(big.Int).Mul(third, big.NewInt(i)))
		checked++
		if solver.VerifyInverseRelationship(prev, x) {
			held++
		} else {
			r.warn(ctx, types.StageEquation,
				fmt.Sprintf("Inverse relationship does not hold between x = %s and x = %s", prev, x), nil)
		}
		prev = x
	}
	r.info(ctx, types.StageEquation,
		fmt.Sprintf("Inverse relationship held on %d/%d sample pairs", held, checked), nil)
}

// tryCache consults the local factor cache. Returns true when the job was
// finished from a hit.
func (r *run) tryCache(ctx context.Context) bool {
	if r.e.cache == nil {
		return false
	}
	if r.mode != types.ModeAuto && r.mode != types.ModeCSVInput {
		return false
	}
	hit, err := r.e.cache.Lookup(ctx, r.target)
	if err != nil {
		r.warn(ctx, types.StageInitialization, fmt.Sprintf("Factor cache lookup failed: %v", err), nil)
		return false
	}
	if hit == nil || len(hit.Factors) == 0 {
		return false
	}
	r.info(ctx, types.StageInitialization, "Factor cache hit; skipping computation", map[string]any{
		"factors": hit.Factors,
		"method":  hit.Algorithm,
	})
	r.finishKnown(ctx, hit.Factors, types.AlgorithmFactorCache)
	return true
}

// tryRemote consults the external factor database when the policy allows
// it. Only a full factorization short-circuits the job; anything else is
// logged and the local stages run.
func (r *run) tryRemote(ctx context.Context) bool {
	if r.e.lookup == nil || !r.policy.UseFactorDB {
		return false
	}
	if r.mode != types.ModeAuto && r.mode != types.ModeCSVInput {
		return false
	}
	res, err := r.e.lookup.Lookup(ctx, r.target)
	if err != nil {
		r.warn(ctx, types.StageInitialization, fmt.Sprintf("FactorDB lookup failed: %v", err), nil)
		return false
	}
	if res == nil {
		return false
	}
	if res.Status == "FF" && len(res.Factors) >= 2 {
		r.info(ctx, types.StageInitialization, "FactorDB reported a full factorization", map[string]any{
			"factors": res.Factors,
		})
		r.storeCache(ctx, res.Factors, types.AlgorithmFactorDB)
		r.finishKnown(ctx, res.Factors, types.AlgorithmFactorDB)
		return true
	}
	r.info(ctx, types.StageInitialization,
		fmt.Sprintf("FactorDB status %s; continuing with local stages", res.Status), nil)
	return false
}

// beginStage resets per-stage progress and marks the job as working on the
// named stage.
func (r *run) beginStage(ctx context.Context, stage string) {
	e := r.e
	e.mu.Lock()
	r.stagePct = 0
	r.haveProg = false
	job := r.entry.job
	job.CurrentStage = stage
	job.ProgressPercent = 0
	job.CurrentCandidate = ""
	e.mu.Unlock()
	e.publish(ctx, r.entry)
}

// stageLogger adapts the engine's log pipeline for a stage. Stage logs use
// a background context so entries emitted during cancellation still land.
func (r *run) stageLogger(stage string) func(types.LogLevel, string, map[string]any) {
	return func(level types.LogLevel, message string, payload map[string]any) {
		r.e.appendLog(context.Background(), r.entry, level, stage, message, payload)
	}
}

// stageCheckpoint persists stage progress and polls the control flags. A
// cancel outranks a pause when both arrived in the same interval.
func (r *run) stageCheckpoint(stage string) func(stages.Progress) error {
	return func(p stages.Progress) error {
		e := r.e
		e.mu.Lock()
		cancelled := r.entry.cancel
		paused := r.entry.pause
		if p.Percent > r.stagePct {
			r.stagePct = p.Percent
		}
		r.lastProg = p
		r.haveProg = true
		job := r.entry.job
		job.ProgressPercent = r.stagePct
		if p.Candidate != nil {
			job.CurrentCandidate = p.Candidate.String()
		}
		job.Checkpoint = r.checkpointLocked(stage, p)
		e.mu.Unlock()

		e.publish(context.Background(), r.entry)
		if cancelled {
			return errCancelRequested
		}
		if paused {
			return errPauseRequested
		}
		return nil
	}
}

// checkpointLocked builds the persisted checkpoint for the current
// position. Caller holds e.mu.
func (r *run) checkpointLocked(stage string, p stages.Progress) *types.Checkpoint {
	cp := &types.Checkpoint{
		Stage:           stage,
		CompletedStages: append([]string(nil), r.completed...),
		Tested:          p.Tested,
		UpdatedAt:       time.Now().UTC(),
	}
	if p.Candidate != nil {
		cp.Position = p.Candidate.String()
	}
	if p.Rho != nil {
		rho := *p.Rho
		cp.Rho = &rho
	}
	if p.ECM != nil {
		ecm := *p.ECM
		cp.ECM = &ecm
	}
	return cp
}

// stageExhausted records that a stage ran out of work so resumption never
// repeats it, and clears the stage-specific checkpoint state.
func (r *run) stageExhausted(ctx context.Context, stage string) {
	r.completed = append(r.completed, stage)
	e := r.e
	e.mu.Lock()
	job := r.entry.job
	job.CurrentCandidate = ""
	job.Checkpoint = &types.Checkpoint{
		CompletedStages: append([]string(nil), r.completed...),
		UpdatedAt:       time.Now().UTC(),
	}
	e.mu.Unlock()

	r.info(ctx, stage, fmt.Sprintf("Stage %s exhausted without finding a factor", stage), nil)
	e.publish(ctx, r.entry)
}

// finishFound records the factor and its cofactor, writes the cache, and
// completes the job. The cofactor rides along even when composite; the log
// says what to do with it.
func (r *run) finishFound(factor *big.Int, stage string) {
	ctx := context.Background()
	elapsed := time.Since(r.started).Milliseconds()
	r.info(ctx, stage, fmt.Sprintf("Found factor via %s: %s", stagePhrase(stage), factor), nil)

	cofactor := new(big.Int).Quo(r.n, factor)
	factors := []string{factor.String(), cofactor.String()}
	r.recordResult(ctx, factor, stage, elapsed)
	switch {
	case cofactor.Cmp(factor) == 0:
		r.info(ctx, stage, fmt.Sprintf("Perfect square: %s appears twice", factor), nil)
	case numeric.IsPrimeFast(cofactor):
		r.info(ctx, stage, fmt.Sprintf("Cofactor %s is prime", cofactor), nil)
		r.recordResult(ctx, cofactor, stage, elapsed)
	default:
		r.warn(ctx, stage, fmt.Sprintf("Cofactor %s is composite; submit it as a new job to factor further", cofactor), nil)
	}

	r.storeCache(ctx, factors, stage)
	r.complete(ctx, factors)
}

// finishKnown completes a job from an already known factorization (cache or
// remote database hit).
func (r *run) finishKnown(ctx context.Context, factors []string, algorithm string) {
	elapsed := time.Since(r.started).Milliseconds()
	seen := make(map[string]bool, len(factors))
	for _, f := range factors {
		if seen[f] {
			continue
		}
		seen[f] = true
		v, err := numeric.ParseInt(f)
		if err != nil {
			continue
		}
		r.recordResult(ctx, v, algorithm, elapsed)
	}
	r.complete(ctx, factors)
}

// recordResult emits one JobResult, with a primality certificate when the
// factor proves prime.
func (r *run) recordResult(ctx context.Context, factor *big.Int, algorithm string, elapsedMS int64) {
	res := types.JobResult{
		JobID:            r.id,
		Factor:           factor.String(),
		IsPrime:          numeric.IsPrimeFast(factor),
		FoundByAlgorithm: algorithm,
		ElapsedMS:        elapsedMS,
		FoundAt:          time.Now().UTC(),
	}
	if res.IsPrime {
		if cert := numeric.GenerateCertificate(factor); cert != nil {
			if raw, err := cert.JSON(); err == nil {
				res.Certificate = raw
			}
		}
	}
	if err := r.e.sink.AppendResult(ctx, res); err != nil {
		log.Printf("failed to append result for job %s: %v", r.id, err)
	}
	r.e.collector.RecordFactorFound(algorithm)
}

// storeCache writes a completed split back to the local cache.
func (r *run) storeCache(ctx context.Context, factors []string, algorithm string) {
	if r.e.cache == nil {
		return
	}
	if err := r.e.cache.Store(ctx, r.target, factors, algorithm); err != nil {
		r.warn(ctx, types.StageComplete, fmt.Sprintf("Factor cache store failed: %v", err), nil)
	}
}

// complete finalizes a successful job.
func (r *run) complete(ctx context.Context, factors []string) {
	e := r.e
	now := time.Now().UTC()
	e.mu.Lock()
	job := r.entry.job
	job.Status = types.StatusCompleted
	job.FactorsFound = append([]string(nil), factors...)
	job.ProgressPercent = 100
	job.CurrentStage = types.StageComplete
	job.CurrentCandidate = ""
	job.Checkpoint = nil
	job.FinishedAt = &now
	if job.StartedAt != nil {
		job.TotalTimeSeconds = now.Sub(*job.StartedAt).Seconds()
	}
	e.mu.Unlock()

	r.info(ctx, types.StageComplete,
		fmt.Sprintf("Factorization complete: %s", strings.Join(factors, " x ")),
		map[string]any{"factors": factors})
	e.publish(ctx, r.entry)
	e.collector.RecordJobFinished(string(types.StatusCompleted))
}

// fail finalizes an unsuccessful job with the given error message.
func (r *run) fail(ctx context.Context, message string) {
	e := r.e
	now := time.Now().UTC()
	e.mu.Lock()
	job := r.entry.job
	job.Status = types.StatusFailed
	job.ErrorMessage = message
	job.CurrentCandidate = ""
	job.FinishedAt = &now
	if job.StartedAt != nil {
		job.TotalTimeSeconds = now.Sub(*job.StartedAt).Seconds()
	}
	e.mu.Unlock()

	r.event(ctx, types.LogError, "", message, nil)
	e.publish(ctx, r.entry)
	e.collector.RecordJobFinished(string(types.StatusFailed))
}

// suspend parks the job in paused status. The checkpoint written by the
// last progress report already points at the right position; when the
// pause landed before any report, a stage-only checkpoint is recorded so
// resumption still skips completed stages.
func (r *run) suspend(stage, message string) {
	ctx := context.Background()
	e := r.e
	e.mu.Lock()
	r.entry.pause = false
	job := r.entry.job
	job.Status = types.StatusPaused
	if r.haveProg {
		job.Checkpoint = r.checkpointLocked(stage, r.lastProg)
	} else if job.Checkpoint == nil {
		job.Checkpoint = &types.Checkpoint{
			Stage:           stage,
			CompletedStages: append([]string(nil), r.completed...),
			UpdatedAt:       time.Now().UTC(),
		}
	}
	e.mu.Unlock()

	r.info(ctx, types.StageControl, message, nil)
	e.publish(ctx, r.entry)
}

// finishCancelled finalizes a cancellation observed at a checkpoint.
func (r *run) finishCancelled() {
	ctx := context.Background()
	e := r.e
	now := time.Now().UTC()
	e.mu.Lock()
	r.entry.cancel = false
	r.entry.pause = false
	job := r.entry.job
	job.Status = types.StatusCancelled
	job.FinishedAt = &now
	if job.StartedAt != nil {
		job.TotalTimeSeconds = now.Sub(*job.StartedAt).Seconds()
	}
	e.mu.Unlock()

	r.info(ctx, types.StageControl, "Job cancelled by user", nil)
	e.publish(ctx, r.entry)
	e.collector.RecordJobFinished(string(types.StatusCancelled))
}

// interrupted handles the execution context ending underneath the job. A
// deadline is a per-job timeout and fails the job; anything else is a
// shutdown, so the job parks with a recovery checkpoint instead.
func (r *run) interrupted(stage string, cause error) error {
	if errors.Is(cause, context.DeadlineExceeded) {
		r.fail(context.Background(), "job execution timed out")
		return cause
	}
	r.suspend(stage, "Execution interrupted; job paused with a recovery checkpoint")
	return cause
}

func (r *run) event(ctx context.Context, level types.LogLevel, stage, message string, payload map[string]any) {
	r.e.appendLog(ctx, r.entry, level, stage, message, payload)
}

func (r *run) info(ctx context.Context, stage, message string, payload map[string]any) {
	r.event(ctx, types.LogInfo, stage, message, payload)
}

func (r *run) warn(ctx context.Context, stage, message string, payload map[string]any) {
	r.event(ctx, types.LogWarning, stage, message, payload)
}

// stagePhrase is the human name used in "Found factor via ..." logs.
func stagePhrase(stage string) string {
	switch stage {
	case types.StageTrialDivision:
		return "trial division"
	case types.StagePollardRho:
		return "Pollard's rho"
	case types.StageECM:
		return "ECM"
	case types.StageEquationSearch:
		return "equation-guided search"
	default:
		return stage
	}
}
