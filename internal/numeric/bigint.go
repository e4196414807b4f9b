// Package numeric provides the arbitrary-precision arithmetic substrate for
// the factorization engine: exact big-integer helpers, primality testing and
// primality certificates. Everything here is side-effect free.
package numeric

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
)

var (
	zero = big.NewInt(0)
	one  = big.NewInt(1)
	two  = big.NewInt(2)
	ten  = big.NewInt(10)
)

// ParseInt parses a decimal string into a big integer. Leading and trailing
// whitespace is tolerated; anything else that is not a plain base-10 integer
// is rejected.
func ParseInt(s string) (*big.Int, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil, fmt.Errorf("empty value")
	}
	n, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("%q is not an integer", s)
	}
	return n, nil
}

// ParseTarget parses a factorization target: a decimal integer >= 2.
func ParseTarget(s string) (*big.Int, error) {
	n, err := ParseInt(s)
	if err != nil {
		return nil, err
	}
	if n.Cmp(two) < 0 {
		return nil, fmt.Errorf("target must be an integer greater than 1, got %s", n.String())
	}
	return n, nil
}

// Isqrt returns the integer square root of n. Panics if n is negative,
// matching math/big.
func Isqrt(n *big.Int) *big.Int {
	return new(big.Int).Sqrt(n)
}

// FloorDiv returns floor(a/b) for any sign combination. big.Int.Quo
// truncates toward zero and big.Int.Div is Euclidean; the Newton iteration
// in the equation solver needs true floor semantics for negative divisors.
func FloorDiv(a, b *big.Int) *big.Int {
	q, r := new(big.Int).QuoRem(a, b, new(big.Int))
	if r.Sign() != 0 && (r.Sign() < 0) != (b.Sign() < 0) {
		q.Sub(q, one)
	}
	return q
}

// Pow10 returns 10^k for k >= 0.
func Pow10(k int) *big.Int {
	if k < 0 {
		return big.NewInt(0)
	}
	return new(big.Int).Exp(ten, big.NewInt(int64(k)), nil)
}

// Digits returns the number of decimal digits of |n|. Digits(0) == 1.
func Digits(n *big.Int) int {
	s := n.Text(10)
	if strings.HasPrefix(s, "-") {
		return len(s) - 1
	}
	return len(s)
}

// ApproxLog10 returns log10(n) for positive n, accurate enough for progress
// reporting and "10^x" log lines at any magnitude. Returns 0 for n <= 0.
func ApproxLog10(n *big.Int) float64 {
	if n.Sign() <= 0 {
		return 0
	}
	s := n.Text(10)
	const prefix = 15
	if len(s) <= prefix {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return float64(len(s) - 1)
		}
		return math.Log10(v)
	}
	lead, err := strconv.ParseFloat(s[:prefix], 64)
	if err != nil {
		return float64(len(s) - 1)
	}
	return math.Log10(lead) + float64(len(s)-prefix)
}

// ScaleByPercent returns n*percent/100 in exact integer arithmetic
// (floored). Used for bound margins so huge values never pass through a
// float.
func ScaleByPercent(n *big.Int, percent int64) *big.Int {
	scaled := new(big.Int).Mul(n, big.NewInt(percent))
	return scaled.Quo(scaled, big.NewInt(100))
}

// Min returns the smaller of a and b (shared backing not copied).
func Min(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

// Max returns the larger of a and b (shared backing not copied).
func Max(a, b *big.Int) *big.Int {
	if a.Cmp(b) >= 0 {
		return a
	}
	return b
}
