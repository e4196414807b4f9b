package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getJSON(t *testing.T, handler http.HandlerFunc, url string) (int, map[string]any) {
	t.Helper()

	req := httptest.NewRequest("GET", url, nil)
	w := httptest.NewRecorder()
	handler(w, req)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return w.Code, body
}

func TestHandleEquationBounds(t *testing.T) {
	s, _ := newTestServer(t)

	code, body := getJSON(t, s.handleEquationBounds, "/equations/bounds?n=8633")
	require.Equal(t, http.StatusOK, code)

	assert.Equal(t, "8633", body["n"])
	assert.EqualValues(t, 4, body["digits"])

	// Newton lands on 94 for 8633; 90% margin and isqrt give the window.
	bounds := body["bounds"].(map[string]any)
	assert.Equal(t, "84", bounds["lower"])
	assert.Equal(t, "92", bounds["upper"])
	assert.Equal(t, "94", bounds["crossover"])
	assert.Equal(t, true, bounds["converged"])

	strategy := body["strategy"].(map[string]any)
	assert.Equal(t, "sequential_prime_scan", strategy["strategy"])
	assert.Equal(t, "8", strategy["span"])

	recs := body["recommendations"].(map[string]any)
	assert.Equal(t, false, recs["use_equation_guided"])
	algos := recs["suggested_algorithms"].([]any)
	assert.Equal(t, []any{"trial_division", "pollard_rho"}, algos)

	diag := body["diagnostic"].(map[string]any)
	assert.EqualValues(t, 4, diag["digits"])
	assert.Equal(t, false, diag["used_fallback"])
}

func TestHandleEquationBounds_ConstraintCheck(t *testing.T) {
	s, _ := newTestServer(t)

	code, body := getJSON(t, s.handleEquationBounds, "/equations/bounds?n=8633&x=89")
	require.Equal(t, http.StatusOK, code)

	check := body["constraint_check"].(map[string]any)
	assert.Equal(t, "89", check["x"])
	assert.Equal(t, true, check["all_hold"])

	checks := check["checks"].(map[string]any)
	assert.Equal(t, true, checks["pnp_equals_xy"])
	assert.Equal(t, true, checks["x_is_smaller"])
}

func TestHandleEquationBounds_NonFactorX(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/equations/bounds?n=8633&x=10", nil)
	w := httptest.NewRecorder()
	s.handleEquationBounds(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleEquationBounds_InvalidN(t *testing.T) {
	s, _ := newTestServer(t)

	for _, url := range []string{
		"/equations/bounds",
		"/equations/bounds?n=banana",
		"/equations/bounds?n=-7",
	} {
		req := httptest.NewRequest("GET", url, nil)
		w := httptest.NewRecorder()
		s.handleEquationBounds(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code, url)
	}
}

func TestHandleEquationCurve(t *testing.T) {
	s, _ := newTestServer(t)

	code, body := getJSON(t, s.handleEquationCurve, "/equations/curve?n=8633&points=50")
	require.Equal(t, http.StatusOK, code)

	assert.Equal(t, "8633", body["n"])
	assert.EqualValues(t, 50, body["points_requested"])
	assert.EqualValues(t, 50, body["points_computed"])
	assert.Equal(t, "84", body["x_min"])
	assert.Equal(t, "92", body["x_max"])

	points := body["curve_points"].([]any)
	require.Len(t, points, 50)
	first := points[0].(map[string]any)
	for _, key := range []string{"x", "y", "constraint", "is_candidate", "is_factor"} {
		assert.Contains(t, first, key)
	}

	bounds := body["bounds"].(map[string]any)
	assert.Equal(t, "94", bounds["crossover"])

	diag := body["diagnostic"].(map[string]any)
	assert.Equal(t, "92", diag["sqrt_n"])
	assert.Equal(t, "y = (((N²/x) + x²) / N)", diag["equation"])
	assert.EqualValues(t, 2.0, diag["constraint_ideal"])
}

func TestHandleEquationCurve_PointLimits(t *testing.T) {
	s, _ := newTestServer(t)

	for _, url := range []string{
		"/equations/curve?n=8633&points=5",
		"/equations/curve?n=8633&points=5000",
		"/equations/curve?n=8633&points=abc",
	} {
		req := httptest.NewRequest("GET", url, nil)
		w := httptest.NewRecorder()
		s.handleEquationCurve(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code, url)
	}
}

func TestHandleEquationCurve_BadWindow(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/equations/curve?n=8633&x_min=50&x_max=40", nil)
	w := httptest.NewRecorder()
	s.handleEquationCurve(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSuggestedAlgorithms(t *testing.T) {
	cases := []struct {
		digits int
		want   []string
	}{
		{10, []string{"trial_division", "pollard_rho"}},
		{25, []string{"pollard_rho", "ecm"}},
		{45, []string{"ecm", "equation_guided"}},
		{70, []string{"ecm", "equation_guided", "quadratic_sieve"}},
		{120, []string{"ecm", "gnfs"}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, suggestedAlgorithms(tc.digits), "digits=%d", tc.digits)
	}
}
