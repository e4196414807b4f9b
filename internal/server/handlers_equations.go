package server

import (
	"fmt"
	"math"
	"math/big"
	"net/http"
	"strconv"

	"github.com/jonathan/factor-engine/internal/equation"
	"github.com/jonathan/factor-engine/internal/numeric"
)

// Curve point limits mirror what a chart can usefully display.
const (
	defaultCurvePoints = 500
	minCurvePoints     = 10
	maxCurvePoints     = 2000
)

// handleEquationCurve computes points of y = (((N²/x) + x²) / N) for
// visualization, log-spaced between x_min and x_max.
func (s *Server) handleEquationCurve(w http.ResponseWriter, r *http.Request) {
	n, err := numeric.ParseTarget(r.URL.Query().Get("n"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid number format: "+err.Error())
		return
	}
	solver, err := equation.NewSolver(n)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	points := defaultCurvePoints
	if v := r.URL.Query().Get("points"); v != "" {
		if points, err = strconv.Atoi(v); err != nil {
			s.errorResponse(w, http.StatusBadRequest, "Invalid points parameter")
			return
		}
	}
	if points < minCurvePoints || points > maxCurvePoints {
		s.errorResponse(w, http.StatusBadRequest,
			fmt.Sprintf("points must be between %d and %d", minCurvePoints, maxCurvePoints))
		return
	}

	bounds := solver.InitialBounds()

	xMin := new(big.Int).Set(bounds.Lower)
	if v := r.URL.Query().Get("x_min"); v != "" {
		if xMin, err = numeric.ParseInt(v); err != nil || xMin.Sign() <= 0 {
			s.errorResponse(w, http.StatusBadRequest, "Invalid x_min parameter")
			return
		}
	}
	// The default window is capped so the chart shows a readable range
	// rather than the full span out to sqrt(N).
	xMax := numeric.Min(bounds.Upper, new(big.Int).Mul(bounds.Lower, big.NewInt(1000)))
	if v := r.URL.Query().Get("x_max"); v != "" {
		if xMax, err = numeric.ParseInt(v); err != nil || xMax.Sign() <= 0 {
			s.errorResponse(w, http.StatusBadRequest, "Invalid x_max parameter")
			return
		}
	}
	if xMin.Cmp(xMax) >= 0 {
		s.errorResponse(w, http.StatusBadRequest, "x_min must be < x_max")
		return
	}

	logMin := numeric.ApproxLog10(xMin)
	logMax := numeric.ApproxLog10(xMax)
	step := (logMax - logMin) / float64(points-1)

	curvePoints := make([]map[string]any, 0, points)
	for i := 0; i < points; i++ {
		x := pow10ToInt(logMin + float64(i)*step)
		x = numeric.Max(x, xMin)
		x = numeric.Min(x, xMax)

		y, err := solver.YFromX(x)
		if err != nil {
			continue
		}
		constraint, err := solver.ConstraintValue(x)
		if err != nil {
			continue
		}
		curvePoints = append(curvePoints, map[string]any{
			"x":            x.String(),
			"y":            y.String(),
			"constraint":   constraint,
			"is_candidate": math.Abs(constraint-2.0) < 0.1,
			"is_factor":    solver.VerifyFactor(x),
		})
	}

	diagnostic := solver.DiagnosticReport()
	diagnostic["sqrt_n"] = solver.SqrtN().String()
	diagnostic["equation"] = "y = (((N²/x) + x²) / N)"
	diagnostic["constraint_ideal"] = 2.0

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"n":                n.String(),
		"x_min":            xMin.String(),
		"x_max":            xMax.String(),
		"points_requested": points,
		"points_computed":  len(curvePoints),
		"curve_points":     curvePoints,
		"bounds": map[string]any{
			"lower":     bounds.Lower.String(),
			"upper":     bounds.Upper.String(),
			"crossover": bounds.Root.String(),
		},
		"diagnostic": diagnostic,
	})
}

// pow10ToInt returns 10^exp as an integer, keeping enough of the fractional
// part of exp for smooth chart spacing at any magnitude.
func pow10ToInt(exp float64) *big.Int {
	if exp <= 0 {
		return big.NewInt(1)
	}
	k := int(exp)
	mant := int64(math.Pow(10, exp-float64(k)) * 1e6)
	x := numeric.Pow10(k)
	x.Mul(x, big.NewInt(mant))
	return x.Quo(x, big.NewInt(1_000_000))
}

// handleEquationBounds analyzes a target without running a job: derived
// bounds, search strategy, diagnostics, and algorithm recommendations by
// size. An optional x parameter runs the full constraint verification
// against that candidate.
func (s *Server) handleEquationBounds(w http.ResponseWriter, r *http.Request) {
	n, err := numeric.ParseTarget(r.URL.Query().Get("n"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid number format: "+err.Error())
		return
	}
	solver, err := equation.NewSolver(n)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	bounds := solver.InitialBounds()
	strategy := equation.SearchStrategy(bounds.Lower, bounds.Upper)
	digits := solver.Digits()

	response := map[string]any{
		"n":      n.String(),
		"digits": digits,
		"bounds": map[string]any{
			"lower":     bounds.Lower.String(),
			"upper":     bounds.Upper.String(),
			"crossover": bounds.Root.String(),
			"converged": bounds.Converged,
		},
		"strategy":   strategy,
		"diagnostic": solver.DiagnosticReport(),
		"recommendations": map[string]any{
			"use_equation_guided":      digits > 20,
			"estimated_primes_to_test": strategy["estimated_primes"],
			"suggested_algorithms":     suggestedAlgorithms(digits),
		},
	}

	if v := r.URL.Query().Get("x"); v != "" {
		x, err := numeric.ParseInt(v)
		if err != nil || x.Sign() <= 0 {
			s.errorResponse(w, http.StatusBadRequest, "Invalid x parameter")
			return
		}
		constraints, err := solver.VerifyAllConstraints(x)
		if err != nil {
			s.errorResponse(w, http.StatusBadRequest, err.Error())
			return
		}
		response["constraint_check"] = map[string]any{
			"x":        x.String(),
			"checks":   constraints,
			"all_hold": constraints.AllHold(),
		}
	}

	s.jsonResponse(w, http.StatusOK, response)
}

// suggestedAlgorithms maps target size to the algorithms worth running.
func suggestedAlgorithms(digits int) []string {
	switch {
	case digits < 20:
		return []string{"trial_division", "pollard_rho"}
	case digits < 40:
		return []string{"pollard_rho", "ecm"}
	case digits < 60:
		return []string{"ecm", "equation_guided"}
	case digits < 90:
		return []string{"ecm", "equation_guided", "quadratic_sieve"}
	default:
		return []string{"ecm", "gnfs"}
	}
}
