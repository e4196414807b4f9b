package stages

import (
	"context"
	"math/big"
	"math/bits"
	"math/rand"
	"time"

	"github.com/jonathan/factor-engine/internal/primes"
	"github.com/jonathan/factor-engine/internal/types"
)

// ecmPollPrimes is how many prime-power multiplications run between
// control polls inside a single curve.
const ecmPollPrimes = 10_000

func ecmDefinition() Definition {
	return Definition{Name: types.StageECM, Run: runECM}
}

// ecmPoint is a point on a Montgomery curve in X:Z coordinates.
type ecmPoint struct {
	x, z *big.Int
}

// montgomeryCurve holds the modulus and the curve constant (A+2)/4 used by
// the x-only arithmetic.
type montgomeryCurve struct {
	n, a24 *big.Int
}

// double computes 2P.
func (c *montgomeryCurve) double(p *ecmPoint) *ecmPoint {
	u := new(big.Int).Add(p.x, p.z)
	u.Mul(u, u).Mod(u, c.n)
	v := new(big.Int).Sub(p.x, p.z)
	v.Mul(v, v).Mod(v, c.n)

	x2 := new(big.Int).Mul(u, v)
	x2.Mod(x2, c.n)

	t := new(big.Int).Sub(u, v) // 4*X*Z
	z2 := new(big.Int).Mul(c.a24, t)
	z2.Add(z2, v).Mul(z2, t).Mod(z2, c.n)
	return &ecmPoint{x: x2, z: z2}
}

// add computes P+Q given their difference P-Q.
func (c *montgomeryCurve) add(p, q, diff *ecmPoint) *ecmPoint {
	u := new(big.Int).Sub(p.x, p.z)
	u.Mul(u, new(big.Int).Add(q.x, q.z)).Mod(u, c.n)
	v := new(big.Int).Add(p.x, p.z)
	v.Mul(v, new(big.Int).Sub(q.x, q.z)).Mod(v, c.n)

	sum := new(big.Int).Add(u, v)
	sum.Mul(sum, sum).Mul(sum, diff.z).Mod(sum, c.n)

	sub := new(big.Int).Sub(u, v)
	sub.Mul(sub, sub).Mul(sub, diff.x).Mod(sub, c.n)
	return &ecmPoint{x: sum, z: sub}
}

// mul computes k*P with the Montgomery ladder; the running pair always
// differs by P, which the x-only addition needs.
func (c *montgomeryCurve) mul(p *ecmPoint, k uint64) *ecmPoint {
	if k == 0 {
		return &ecmPoint{x: big.NewInt(1), z: big.NewInt(0)}
	}
	if k == 1 {
		return &ecmPoint{x: new(big.Int).Set(p.x), z: new(big.Int).Set(p.z)}
	}
	r0 := &ecmPoint{x: new(big.Int).Set(p.x), z: new(big.Int).Set(p.z)}
	r1 := c.double(p)
	for i := bits.Len64(k) - 2; i >= 0; i-- {
		if (k>>uint(i))&1 == 1 {
			r0 = c.add(r0, r1, p)
			r1 = c.double(r1)
		} else {
			r1 = c.add(r0, r1, p)
			r0 = c.double(r0)
		}
	}
	return r0
}

// suyamaCurve builds a Montgomery curve and starting point from Suyama's
// parameterization of sigma. A failed inversion either exposes a factor of
// n outright or marks the curve degenerate.
func suyamaCurve(n, sigma *big.Int) (curve *montgomeryCurve, start *ecmPoint, factor *big.Int) {
	u := new(big.Int).Mul(sigma, sigma)
	u.Sub(u, big.NewInt(5)).Mod(u, n)
	v := new(big.Int).Mul(big.NewInt(4), sigma)
	v.Mod(v, n)

	// a24 = (v-u)^3 * (3u+v) / (16 * u^3 * v)
	num := new(big.Int).Sub(v, u)
	cube := new(big.Int).Mul(num, num)
	cube.Mul(cube, num)
	t := new(big.Int).Mul(big.NewInt(3), u)
	t.Add(t, v)
	num = cube.Mul(cube, t)
	num.Mod(num, n)

	uCubed := new(big.Int).Mul(u, u)
	uCubed.Mul(uCubed, u).Mod(uCubed, n)
	den := new(big.Int).Mul(big.NewInt(16), uCubed)
	den.Mul(den, v).Mod(den, n)

	inv := new(big.Int).ModInverse(den, n)
	if inv == nil {
		g := new(big.Int).GCD(nil, nil, den, n)
		if g.Cmp(one) > 0 && g.Cmp(n) < 0 {
			return nil, nil, g
		}
		return nil, nil, nil
	}

	a24 := new(big.Int).Mul(num, inv)
	a24.Mod(a24, n)

	x := new(big.Int).Set(uCubed)
	z := new(big.Int).Mul(v, v)
	z.Mul(z, v).Mod(z, n)
	return &montgomeryCurve{n: n, a24: a24}, &ecmPoint{x: x, z: z}, nil
}

// nextSigma draws a Suyama parameter >= 6 from the pinned stream.
func nextSigma(rng *rand.Rand) *big.Int {
	return big.NewInt(6 + rng.Int63n(1<<30))
}

// runCurveStage1 multiplies the start point by every prime power up to b1
// and reads a factor out of gcd(Z, n). poll runs between blocks so pause
// and cancel stay responsive inside long curves.
func runCurveStage1(n *big.Int, curve *montgomeryCurve, point *ecmPoint, b1 uint64, primeList []uint64, poll func() error) (*big.Int, error) {
	for i, p := range primeList {
		pp := p
		for pp <= b1/p {
			pp *= p
		}
		point = curve.mul(point, pp)
		if (i+1)%ecmPollPrimes == 0 {
			if err := poll(); err != nil {
				return nil, err
			}
		}
	}
	g := new(big.Int).GCD(nil, nil, point.z, n)
	if g.Cmp(one) > 0 && g.Cmp(n) < 0 {
		return g, nil
	}
	return nil, nil
}

// runECM runs stage-one ECM over the configured (B1, curves) ladder.
// Curves are the checkpoint unit: an interrupted curve is redone from its
// start on resume, with the sigma stream pinned by the recorded seed.
func runECM(ctx context.Context, n *big.Int, params Params, rt Runtime) (*big.Int, error) {
	if n.Cmp(big.NewInt(4)) < 0 {
		return nil, ErrExhausted
	}
	if n.Bit(0) == 0 {
		return big.NewInt(2), nil
	}
	three := big.NewInt(3)
	if new(big.Int).Mod(n, three).Sign() == 0 {
		return three, nil
	}

	ladder := params.Policy.ECMStages
	if len(ladder) == 0 {
		ladder = types.DefaultECMStages()
	}
	totalCurves := 0
	for _, st := range ladder {
		totalCurves += st.Curves
	}
	if totalCurves == 0 {
		return nil, ErrExhausted
	}

	seed := params.Seed
	startStage, startCurve := 0, 0
	resumed := false
	if cp := rt.resumeFor(types.StageECM); cp != nil && cp.ECM != nil && cp.ECM.StageIndex < len(ladder) {
		seed = cp.ECM.Seed
		startStage = cp.ECM.StageIndex
		startCurve = cp.ECM.Curve
		resumed = true
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	// Replay the sigma stream up to the checkpointed curve so resumed runs
	// see the same curves they would have seen uninterrupted.
	done := 0
	for si := 0; si < startStage; si++ {
		done += ladder[si].Curves
	}
	done += startCurve
	for i := 0; i < done; i++ {
		nextSigma(rng)
	}

	if resumed {
		rt.Infof("Resuming ECM at stage %d, curve %d", startStage+1, startCurve+1)
	} else {
		rt.Infof("Stage %d: ECM with %d B1 levels, %d curves total", rt.StageIndex, len(ladder), totalCurves)
	}

	for si := startStage; si < len(ladder); si++ {
		st := ladder[si]
		if st.Curves <= 0 || st.B1 < 2 {
			continue
		}
		primeList := primes.SmallPrimes(st.B1)
		rt.Infof("ECM B1 = %d with %d curves", st.B1, st.Curves)

		first := 0
		if si == startStage {
			first = startCurve
		}
		for curve := first; curve < st.Curves; curve++ {
			state := &types.ECMState{StageIndex: si, Curve: curve, Seed: seed}
			progress := Progress{
				Percent: float64(done) / float64(totalCurves) * 100,
				Tested:  uint64(done),
				ECM:     state,
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := rt.report(progress); err != nil {
				return nil, err
			}
			poll := func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				return rt.report(progress)
			}

			sigma := nextSigma(rng)
			curveParams, point, factor := suyamaCurve(n, sigma)
			if factor != nil {
				return factor, nil
			}
			if curveParams != nil {
				factor, err := runCurveStage1(n, curveParams, point, st.B1, primeList, poll)
				if err != nil {
					return nil, err
				}
				if factor != nil {
					return factor, nil
				}
			}
			done++
		}
	}
	return nil, ErrExhausted
}
