package equation

import (
	"math"
	"math/big"

	"github.com/jonathan/factor-engine/internal/numeric"
)

// DiagnosticReport summarizes the equation analysis for a modulus: the
// derived bounds, the narrowing coefficient, and where the bounds sit
// relative to the decreasing region of y(x). The payload is JSON-friendly
// and feeds both the job log and the analyze endpoint.
func (s *Solver) DiagnosticReport() map[string]any {
	b := s.InitialBounds()

	lowerExp := numeric.ApproxLog10(b.Lower)
	upperExp := numeric.ApproxLog10(b.Upper)
	coefficient := 0.0
	if s.digits > 0 {
		coefficient = lowerExp / float64(s.digits)
	}

	critical := s.CriticalPoint()
	testX := new(big.Int).Add(b.Lower, b.Upper)
	testX.Rsh(testX, 1)
	if testX.Sign() <= 0 {
		testX = big.NewInt(1)
	}
	testConstraint, _ := s.ConstraintValue(testX)

	report := map[string]any{
		"digits":                     s.digits,
		"sqrt_exp":                   numeric.ApproxLog10(s.sqrtN),
		"lower_bound":                b.Lower.String(),
		"upper_bound":                b.Upper.String(),
		"lower_exp":                  lowerExp,
		"upper_exp":                  upperExp,
		"used_fallback":              b.UsedFallback,
		"newton_converged":           b.Converged,
		"newton_iterations":          b.Iterations,
		"trurl_coefficient":          coefficient,
		"matches_rsa260_pattern":     math.Abs(coefficient-rsa260Coefficient) < 0.01,
		"critical_point_exp":         numeric.ApproxLog10(critical),
		"crossover_below_sqrt":       critical.Cmp(s.sqrtN) < 0,
		"lower_in_decreasing_region": b.Lower.Cmp(critical) < 0,
		"upper_in_decreasing_region": b.Upper.Cmp(critical) < 0,
		"test_x":                     testX.String(),
		"test_constraint_value":      testConstraint,
	}
	if y, err := s.YFromX(testX); err == nil {
		report["test_y_exp"] = numeric.ApproxLog10(y)
	}
	return report
}

// SearchStrategy describes the scan the bounds imply: the span, and a
// prime-counting estimate of how many candidates it holds. Estimates are
// carried as exponents so hundred-digit spans survive JSON encoding.
func SearchStrategy(lower, upper *big.Int) map[string]any {
	span := new(big.Int).Sub(upper, lower)
	if span.Sign() < 0 {
		span = big.NewInt(0)
	}

	logSpan := numeric.ApproxLog10(span)
	lnUpper := numeric.ApproxLog10(upper) * math.Ln10
	estExp := 0.0
	if lnUpper > 0 && span.Sign() > 0 {
		estExp = logSpan - math.Log10(lnUpper)
	}

	strategy := map[string]any{
		"strategy":             "sequential_prime_scan",
		"span":                 span.String(),
		"span_digits":          numeric.Digits(span),
		"estimated_primes_exp": estExp,
	}
	if est := math.Pow(10, estExp); !math.IsInf(est, 0) && span.Sign() > 0 {
		strategy["estimated_primes"] = est
	}
	return strategy
}
