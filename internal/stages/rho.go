package stages

import (
	"context"
	"math/big"
	"math/rand"
	"time"

	"github.com/jonathan/factor-engine/internal/types"
)

// rhoBatchSize is the number of rho steps folded into one product before a
// single GCD, with a step-by-step replay when the product collapses.
const rhoBatchSize = 16

var one = big.NewInt(1)

func rhoDefinition() Definition {
	return Definition{Name: types.StagePollardRho, Run: runPollardRho}
}

// rhoWalk is the full state of a Brent-cycle rho walk, serializable for
// pause and resume.
type rhoWalk struct {
	x, y, c    *big.Int
	power, lam uint64
	iteration  uint64 // cumulative across restarts
	budget     uint64 // remaining in the current round
	restarts   int
}

func newRhoWalk(rng *rand.Rand, n *big.Int, budget uint64) *rhoWalk {
	// x in [2, n-2], c in [1, n-1]
	x := new(big.Int).Rand(rng, new(big.Int).Sub(n, big.NewInt(3)))
	x.Add(x, big.NewInt(2))
	c := new(big.Int).Rand(rng, new(big.Int).Sub(n, one))
	c.Add(c, one)
	return &rhoWalk{x: x, y: new(big.Int).Set(x), c: c, power: 1, budget: budget}
}

func restoreRhoWalk(s *types.RhoState) *rhoWalk {
	x, okX := new(big.Int).SetString(s.X, 10)
	y, okY := new(big.Int).SetString(s.Y, 10)
	c, okC := new(big.Int).SetString(s.C, 10)
	if !okX || !okY || !okC {
		return nil
	}
	return &rhoWalk{
		x: x, y: y, c: c,
		power: s.Power, lam: s.Lam,
		iteration: s.Iteration, budget: s.Budget, restarts: s.Restarts,
	}
}

func (w *rhoWalk) state() *types.RhoState {
	return &types.RhoState{
		X: w.x.String(), Y: w.y.String(), C: w.c.String(),
		Power: w.power, Lam: w.lam,
		Iteration: w.iteration, Budget: w.budget, Restarts: w.restarts,
	}
}

// step advances the walk once: Brent's cycle detection snapshots y at
// power-of-two intervals, then x moves through x^2 + c mod n.
func (w *rhoWalk) step(n *big.Int) {
	if w.power == w.lam {
		w.y.Set(w.x)
		w.power <<= 1
		w.lam = 0
	}
	w.x.Mul(w.x, w.x).Add(w.x, w.c).Mod(w.x, n)
	w.lam++
}

// advanceBatch folds up to rhoBatchSize steps into one GCD. It returns a
// non-trivial factor, or degenerate=true when the walk closed its cycle
// without splitting n and needs new parameters.
func (w *rhoWalk) advanceBatch(n *big.Int) (factor *big.Int, degenerate bool) {
	sx := new(big.Int).Set(w.x)
	sy := new(big.Int).Set(w.y)
	spower, slam := w.power, w.lam

	q := big.NewInt(1)
	diff := new(big.Int)
	steps := 0
	for steps < rhoBatchSize && w.budget > 0 {
		w.step(n)
		diff.Sub(w.x, w.y).Abs(diff)
		q.Mul(q, diff).Mod(q, n)
		steps++
		w.iteration++
		w.budget--
	}
	if steps == 0 {
		return nil, false
	}

	g := new(big.Int).GCD(nil, nil, q, n)
	if g.Cmp(one) == 0 {
		return nil, false
	}
	if g.Cmp(n) < 0 {
		return g, false
	}

	// The batched product collapsed to a multiple of n. Replay the same
	// steps singly to recover the factor the batch skipped over.
	r := &rhoWalk{x: sx, y: sy, c: w.c, power: spower, lam: slam}
	for i := 0; i < steps; i++ {
		r.step(n)
		diff.Sub(r.x, r.y).Abs(diff)
		d := new(big.Int).GCD(nil, nil, diff, n)
		if d.Cmp(one) > 0 {
			if d.Cmp(n) < 0 {
				return d, false
			}
			return nil, true
		}
	}
	return nil, true
}

// restartRound reseeds the walk with fresh parameters and half the
// previous round's budget. Returns false once the budget underflows.
func (w *rhoWalk) restartRound(rng *rand.Rand, n *big.Int, totalBudget uint64) bool {
	w.restarts++
	next := totalBudget >> uint(w.restarts)
	if next == 0 {
		return false
	}
	fresh := newRhoWalk(rng, n, next)
	w.x, w.y, w.c = fresh.x, fresh.y, fresh.c
	w.power, w.lam = fresh.power, fresh.lam
	w.budget = next
	return true
}

// runPollardRho hunts for a factor with Brent's variant of Pollard's rho.
// Degenerate rounds restart with new random parameters and a halved
// budget, up to the policy retry cap.
func runPollardRho(ctx context.Context, n *big.Int, params Params, rt Runtime) (*big.Int, error) {
	if n.Cmp(big.NewInt(4)) < 0 {
		return nil, ErrExhausted
	}
	if n.Bit(0) == 0 {
		return big.NewInt(2), nil
	}

	budgetTotal := params.Policy.PollardRhoIterations
	if budgetTotal == 0 {
		budgetTotal = types.DefaultPollardRhoIterations
	}
	retries := params.Policy.PollardRhoRetries
	if retries == 0 {
		retries = types.DefaultPollardRhoRetries
	}
	seed := params.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	var w *rhoWalk
	if cp := rt.resumeFor(types.StagePollardRho); cp != nil && cp.Rho != nil {
		if w = restoreRhoWalk(cp.Rho); w != nil {
			rt.Infof("Resuming Pollard's rho at iteration %d", w.iteration)
		}
	}
	if w == nil {
		w = newRhoWalk(rng, n, budgetTotal)
		rt.Infof("Stage %d: Pollard's rho with %d iteration budget", rt.StageIndex, budgetTotal)
	}

	every := params.interval()
	lastMark := w.iteration
	for {
		factor, degenerate := w.advanceBatch(n)
		if factor != nil {
			return factor, nil
		}
		if degenerate || w.budget == 0 {
			if w.restarts >= retries || !w.restartRound(rng, n, budgetTotal) {
				return nil, ErrExhausted
			}
			rt.Infof("Pollard's rho restarting with new parameters (restart %d, budget %d)", w.restarts, w.budget)
		}
		if w.iteration-lastMark >= every {
			lastMark = w.iteration
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			pct := float64(w.iteration) / float64(budgetTotal) * 100
			if pct > 100 {
				pct = 100
			}
			err := rt.report(Progress{Percent: pct, Tested: w.iteration, Rho: w.state()})
			if err != nil {
				return nil, err
			}
		}
	}
}
