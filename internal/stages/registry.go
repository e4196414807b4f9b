package stages

import (
	"context"
	"fmt"
	"math/big"

	"github.com/jonathan/factor-engine/internal/types"
)

// RunFunc executes one stage against n. It returns a non-trivial factor,
// or ErrExhausted when the stage ran out of work, or the control error
// delivered through the checkpoint callback.
type RunFunc func(ctx context.Context, n *big.Int, params Params, rt Runtime) (*big.Int, error)

// Definition names a stage and binds its runner.
type Definition struct {
	Name string
	Run  RunFunc
}

// DependencyError reports a stage planned without its prerequisite in
// place.
type DependencyError struct {
	Stage   string
	Missing string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("stage %s requires %s", e.Stage, e.Missing)
}

// Plan returns the ordered stage list for a job. Auto (and CSV-sourced)
// jobs run every enabled algorithm cheapest-first; the guided modes run
// only the bounded prime scan. searchReady tells Plan whether a usable
// search window exists. An empty plan is valid and simply exhausts
// immediately.
func Plan(mode types.Mode, policy types.Policy, searchReady bool) ([]Definition, error) {
	switch mode {
	case types.ModeEquationGuided, types.ModeRangeScan:
		if !searchReady {
			return nil, &DependencyError{Stage: types.StageEquationSearch, Missing: "search bounds"}
		}
		return []Definition{searchDefinition()}, nil
	default:
		var plan []Definition
		if policy.UseTrialDivision {
			plan = append(plan, trialDefinition())
		}
		if policy.UsePollardRho {
			plan = append(plan, rhoDefinition())
		}
		if policy.UseECM {
			plan = append(plan, ecmDefinition())
		}
		if policy.UseEquationBounds && searchReady {
			plan = append(plan, searchDefinition())
		}
		return plan, nil
	}
}
