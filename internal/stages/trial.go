package stages

import (
	"context"
	"math/big"

	"github.com/jonathan/factor-engine/internal/numeric"
	"github.com/jonathan/factor-engine/internal/primes"
	"github.com/jonathan/factor-engine/internal/types"
)

func trialDefinition() Definition {
	return Definition{Name: types.StageTrialDivision, Run: runTrialDivision}
}

// runTrialDivision tests prime divisors up to min(limit, isqrt(n)). It is
// the only stage guaranteed to find the smallest factor when one is in
// range.
func runTrialDivision(ctx context.Context, n *big.Int, params Params, rt Runtime) (*big.Int, error) {
	limitVal := params.Policy.TrialDivisionLimit
	if limitVal == 0 {
		limitVal = types.DefaultTrialDivisionLimit
	}
	limit := new(big.Int).SetUint64(limitVal)
	if root := numeric.Isqrt(n); root.Cmp(limit) < 0 {
		limit = root
	}

	start := big.NewInt(2)
	var tested uint64
	if cp := rt.resumeFor(types.StageTrialDivision); cp != nil && cp.Position != "" {
		if pos, err := numeric.ParseInt(cp.Position); err == nil {
			start = pos.Add(pos, big.NewInt(1))
			tested = cp.Tested
			rt.Infof("Resuming trial division from %s", start.String())
		}
	}

	rt.Infof("Stage %d: Trial division up to %s", rt.StageIndex, limit.String())

	every := params.interval()
	it := primes.NewIterator(start, limit)
	mod := new(big.Int)
	for {
		p, ok := it.Next()
		if !ok {
			break
		}
		if mod.Mod(n, p).Sign() == 0 {
			return p, nil
		}
		tested++
		if tested%every == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			err := rt.report(Progress{
				Percent:   linearPercent(p, limit),
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
