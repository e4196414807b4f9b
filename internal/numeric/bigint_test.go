package numeric

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInt_Valid(t *testing.T) {
	n, err := ParseInt("  143 ")

	require.NoError(t, err)
	assert.Equal(t, "143", n.String())
}

func TestParseInt_RejectsNonInteger(t *testing.T) {
	for _, raw := range []string{"", "abc", "12.5", "0x1f", "1e10", "12 34"} {
		_, err := ParseInt(raw)
		assert.Error(t, err, "input %q", raw)
	}
}

func TestParseTarget_AcceptsLargeValue(t *testing.T) {
	n, err := ParseTarget("1000036000099")

	require.NoError(t, err)
	assert.Equal(t, "1000036000099", n.String())
}

func TestParseTarget_RejectsBelowTwo(t *testing.T) {
	for _, raw := range []string{"1", "0", "-5"} {
		_, err := ParseTarget(raw)
		assert.Error(t, err, "input %q", raw)
	}
}

func TestFloorDiv_MatchesFloorSemantics(t *testing.T) {
	cases := []struct {
		a, b, want int64
	}{
		{7, 2, 3},
		{-7, 2, -4},
		{7, -2, -4},
		{-7, -2, 3},
		{6, 3, 2},
		{-6, 3, -2},
		{0, 5, 0},
	}
	for _, tc := range cases {
		got := FloorDiv(big.NewInt(tc.a), big.NewInt(tc.b))
		assert.Equal(t, tc.want, got.Int64(), "%d // %d", tc.a, tc.b)
	}
}

func TestFloorDiv_LargeNegativeDivisor(t *testing.T) {
	// (10^30 + 1) // -(10^15) floors away from zero.
	a := new(big.Int).Add(Pow10(30), big.NewInt(1))
	b := new(big.Int).Neg(Pow10(15))

	got := FloorDiv(a, b)

	want := new(big.Int).Neg(Pow10(15))
	want.Sub(want, big.NewInt(1))
	assert.Equal(t, want.String(), got.String())
}

func TestIsqrt_Exact(t *testing.T) {
	assert.Equal(t, int64(11), Isqrt(big.NewInt(143)).Int64())
	assert.Equal(t, int64(12), Isqrt(big.NewInt(144)).Int64())
	assert.Equal(t, Pow10(20).String(), Isqrt(Pow10(40)).String())
}

func TestDigits(t *testing.T) {
	assert.Equal(t, 1, Digits(big.NewInt(0)))
	assert.Equal(t, 1, Digits(big.NewInt(7)))
	assert.Equal(t, 3, Digits(big.NewInt(143)))
	assert.Equal(t, 3, Digits(big.NewInt(-143)))
	assert.Equal(t, 51, Digits(Pow10(50)))
}

func TestApproxLog10(t *testing.T) {
	assert.InDelta(t, 3.0, ApproxLog10(big.NewInt(1000)), 1e-9)
	assert.InDelta(t, 50.0, ApproxLog10(Pow10(50)), 1e-9)
	assert.Equal(t, 0.0, ApproxLog10(big.NewInt(0)))

	// 2 * 10^30 has a 15-digit prefix path.
	n := new(big.Int).Mul(big.NewInt(2), Pow10(30))
	assert.InDelta(t, 30.30103, ApproxLog10(n), 1e-4)
}

func TestScaleByPercent(t *testing.T) {
	assert.Equal(t, int64(11), ScaleByPercent(big.NewInt(13), 90).Int64())
	assert.Equal(t, int64(0), ScaleByPercent(big.NewInt(1), 90).Int64())

	want := new(big.Int).Mul(big.NewInt(9), Pow10(29))
	assert.Equal(t, want.String(), ScaleByPercent(Pow10(30), 90).String())
}

func TestMinMax(t *testing.T) {
	a, b := big.NewInt(3), big.NewInt(8)

	assert.Equal(t, a, Min(a, b))
	assert.Equal(t, b, Max(a, b))
	assert.Equal(t, a, Min(a, a))
}
