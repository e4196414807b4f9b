// Package stages implements the factorization pipeline stages: trial
// division, Pollard's rho, elliptic curve stage one, and the
// equation-guided prime scan. Stages are pure workers; the engine owns
// state, persistence and control, and talks to a running stage through the
// Runtime harness.
package stages

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/jonathan/factor-engine/internal/equation"
	"github.com/jonathan/factor-engine/internal/types"
)

// ErrExhausted signals that a stage ran to completion without finding a
// factor. The engine moves on to the next planned stage.
var ErrExhausted = errors.New("stage exhausted without finding a factor")

// DefaultCheckpointInterval is the number of work units between control
// polls when the engine does not override it.
const DefaultCheckpointInterval = 10_000

// Params carries the per-job configuration a stage needs beyond the
// modulus itself.
type Params struct {
	Policy types.Policy

	// Lower and Upper bound the equation-guided scan. Both are required by
	// the search stage and ignored by the others.
	Lower *big.Int
	Upper *big.Int

	// Solver is set when equation analysis ran for this job; the search
	// stage uses it for progress estimation and constraint verification.
	Solver *equation.Solver

	// CheckpointEvery is the work-unit interval between control polls.
	// Zero means DefaultCheckpointInterval.
	CheckpointEvery uint64

	// Seed pins the randomized stages for reproducibility. Zero draws
	// from the clock.
	Seed int64
}

func (p Params) interval() uint64 {
	if p.CheckpointEvery == 0 {
		return DefaultCheckpointInterval
	}
	return p.CheckpointEvery
}

// Progress is a checkpoint snapshot a stage reports back to the engine.
// Candidate and the stage-specific states are optional.
type Progress struct {
	Percent   float64
	Candidate *big.Int
	Tested    uint64
	Rho       *types.RhoState
	ECM       *types.ECMState
}

// Runtime is the harness the engine hands to a running stage. Checkpoint
// persists progress and polls control signals; a non-nil error tells the
// stage to abort immediately and return that error unchanged.
type Runtime struct {
	StageIndex int
	Log        func(level types.LogLevel, message string, payload map[string]any)
	Checkpoint func(p Progress) error
	Resume     *types.Checkpoint
}

// Event emits a structured log entry through the engine.
func (rt Runtime) Event(level types.LogLevel, message string, payload map[string]any) {
	if rt.Log != nil {
		rt.Log(level, message, payload)
	}
}

// Infof logs an INFO message.
func (rt Runtime) Infof(format string, args ...any) {
	rt.Event(types.LogInfo, fmt.Sprintf(format, args...), nil)
}

// Warnf logs a WARNING message.
func (rt Runtime) Warnf(format string, args ...any) {
	rt.Event(types.LogWarning, fmt.Sprintf(format, args...), nil)
}

// Errorf logs an ERROR message.
func (rt Runtime) Errorf(format string, args ...any) {
	rt.Event(types.LogError, fmt.Sprintf(format, args...), nil)
}

func (rt Runtime) report(p Progress) error {
	if rt.Checkpoint == nil {
		return nil
	}
	return rt.Checkpoint(p)
}

// resumeFor returns the checkpoint only when it belongs to the named
// stage; resume state from another stage is meaningless here.
func (rt Runtime) resumeFor(stage string) *types.Checkpoint {
	if rt.Resume == nil || rt.Resume.Stage != stage {
		return nil
	}
	return rt.Resume
}

// linearPercent maps position into [0, 100] against limit.
func linearPercent(position, limit *big.Int) float64 {
	if limit.Sign() <= 0 {
		return 0
	}
	p, _ := new(big.Float).Quo(
		new(big.Float).SetInt(position),
		new(big.Float).SetInt(limit),
	).Float64()
	pct := p * 100
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}
