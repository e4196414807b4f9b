package stages

import (
	"context"
	"fmt"
	"math/big"

	"github.com/jonathan/factor-engine/internal/equation"
	"github.com/jonathan/factor-engine/internal/numeric"
	"github.com/jonathan/factor-engine/internal/primes"
	"github.com/jonathan/factor-engine/internal/types"
)

func searchDefinition() Definition {
	return Definition{Name: types.StageEquationSearch, Run: runEquationSearch}
}

// boundLabel renders a bound compactly: decimal when readable, power of
// ten above twenty digits.
func boundLabel(b *big.Int) string {
	if numeric.Digits(b) <= 20 {
		return b.String()
	}
	return fmt.Sprintf("10^%.1f", numeric.ApproxLog10(b))
}

// runEquationSearch scans primes in [lower, upper] for a divisor of n.
// The window comes from equation analysis or from user-supplied range
// bounds; spans beyond the feasibility ceiling are refused up front rather
// than ground through.
func runEquationSearch(ctx context.Context, n *big.Int, params Params, rt Runtime) (*big.Int, error) {
	if params.Lower == nil || params.Upper == nil {
		return nil, &DependencyError{Stage: types.StageEquationSearch, Missing: "search bounds"}
	}

	lower := new(big.Int).Set(params.Lower)
	upper := numeric.Min(params.Upper, numeric.Isqrt(n))
	upper = new(big.Int).Set(upper)

	span := new(big.Int).Sub(upper, lower)
	spanLimit := params.Policy.SearchSpanLimit
	if spanLimit == 0 {
		spanLimit = types.DefaultSearchSpanLimit
	}
	if span.Sign() > 0 && span.Cmp(new(big.Int).SetUint64(spanLimit)) > 0 {
		rt.Warnf("Search span 10^%.1f exceeds the feasibility ceiling 10^%.1f; refusing to scan",
			numeric.ApproxLog10(span), numeric.ApproxLog10(new(big.Int).SetUint64(spanLimit)))
		return nil, ErrExhausted
	}

	start := new(big.Int).Set(lower)
	var tested uint64
	if cp := rt.resumeFor(types.StageEquationSearch); cp != nil && cp.Position != "" {
		if pos, err := numeric.ParseInt(cp.Position); err == nil && pos.Cmp(start) >= 0 {
			start = pos.Add(pos, one)
			tested = cp.Tested
			rt.Infof("Resuming prime scan from %s", boundLabel(start))
		}
	}

	rt.Infof("Stage %d: Equation-guided prime scan in [%s, %s]",
		rt.StageIndex, boundLabel(lower), boundLabel(upper))

	every := params.interval()
	it := primes.NewIterator(start, upper)
	mod := new(big.Int)
	for {
		p, ok := it.Next()
		if !ok {
			break
		}
		if mod.Mod(n, p).Sign() == 0 {
			if factor, ok := verifiedSearchHit(n, p, params, rt); ok {
				return factor, nil
			}
		}
		tested++
		if tested%every == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			err := rt.report(Progress{
				Percent:   equation.EstimateProgress(p, lower, upper),
				Candidate: p,
				Tested:    tested,
			})
			if err != nil {
				return nil, err
			}
		}
	}
	return nil, ErrExhausted
}

// verifiedSearchHit cross-checks a divisor before handing it back: the
// cofactor product must reconstruct n exactly, and when a solver is
// attached the equation constraints are recorded against the hit. A failed
// integrity check logs the violation and lets the scan continue.
func verifiedSearchHit(n, p *big.Int, params Params, rt Runtime) (*big.Int, bool) {
	cofactor := new(big.Int).Quo(n, p)
	if new(big.Int).Mul(p, cofactor).Cmp(n) != 0 {
		rt.Event(types.LogError, fmt.Sprintf("Integrity violation: %s * %s does not reconstruct the modulus", p, cofactor), map[string]any{
			"candidate": p.String(),
			"cofactor":  cofactor.String(),
		})
		return nil, false
	}

	if params.Solver != nil {
		constraints, err := params.Solver.VerifyAllConstraints(p)
		if err == nil {
			rt.Event(types.LogInfo, fmt.Sprintf("Constraint verification for factor %s", p), map[string]any{
				"pnp_equals_xy":        constraints.PnpEqualsXY,
				"y_equation_match":     constraints.YEquationMatch,
				"x_is_smaller":         constraints.XIsSmaller,
				"inverse_relationship": constraints.InverseHolds,
				"inverse_applicable":   constraints.InverseApplicable,
			})
			if !constraints.AllHold() {
				rt.Warnf("Constraint check incomplete for %s; recording factor anyway", p)
			}
		}
	}
	return p, true
}
