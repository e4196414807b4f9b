package numeric

import (
	"math"
	"math/big"
)

// smallPrimes covers every prime that fits the quick divisibility screen
// run before the heavier probabilistic tests.
var smallPrimes = []int64{2, 3, 5, 7, 11, 13, 17, 19, 23, 29, 31, 37}

var maxUint64 = new(big.Int).SetUint64(math.MaxUint64)

// IsProbablePrime reports whether n is probably prime using the given number
// of Miller-Rabin rounds. Non-positive rounds fall back to 40.
func IsProbablePrime(n *big.Int, rounds int) bool {
	if n.Cmp(two) < 0 {
		return false
	}
	if rounds <= 0 {
		rounds = 40
	}
	return n.ProbablyPrime(rounds)
}

// IsPrimeFast is the engine's primality check: Baillie-PSW for values that
// fit in 64 bits, where it is known to be exact, and 40 Miller-Rabin rounds
// above that.
func IsPrimeFast(n *big.Int) bool {
	if n.Cmp(maxUint64) <= 0 {
		return IsPrimeBPSW(n)
	}
	return IsProbablePrime(n, 40)
}

// IsPrimeBPSW runs the Baillie-PSW test: a small-prime screen, a strong
// Miller-Rabin test to base 2, then a strong Lucas test with Selfridge
// parameters. No composite below 2^64 passes all three.
func IsPrimeBPSW(n *big.Int) bool {
	if n.Cmp(two) < 0 {
		return false
	}
	for _, p := range smallPrimes {
		pb := big.NewInt(p)
		if n.Cmp(pb) == 0 {
			return true
		}
		if new(big.Int).Mod(n, pb).Sign() == 0 {
			return false
		}
	}
	if !millerRabinBase2(n) {
		return false
	}
	return strongLucasSelfridge(n)
}

// millerRabinBase2 runs a single strong probable-prime test to base 2.
// Callers must ensure n is odd and greater than 2.
func millerRabinBase2(n *big.Int) bool {
	nm1 := new(big.Int).Sub(n, one)
	s := nm1.TrailingZeroBits()
	d := new(big.Int).Rsh(nm1, s)

	x := new(big.Int).Exp(two, d, n)
	if x.Cmp(one) == 0 || x.Cmp(nm1) == 0 {
		return true
	}
	for i := uint(1); i < s; i++ {
		x.Mul(x, x).Mod(x, n)
		if x.Cmp(nm1) == 0 {
			return true
		}
	}
	return false
}

// strongLucasSelfridge runs the strong Lucas probable-prime test using
// Selfridge's method A to pick D: walk 5, -7, 9, -11, ... until
// Jacobi(D/n) == -1. Callers must ensure n is odd and coprime to the small
// prime screen.
func strongLucasSelfridge(n *big.Int) bool {
	disc := big.NewInt(5)
	million := big.NewInt(1_000_000)
	for {
		j := big.Jacobi(disc, n)
		if j == -1 {
			break
		}
		if j == 0 {
			// D shares a factor with n, so n is composite unless n == |D|.
			return new(big.Int).Abs(disc).Cmp(n) == 0
		}
		if new(big.Int).Abs(disc).Cmp(million) > 0 {
			// Jacobi never hit -1 in a long walk; that only happens for
			// perfect squares, which are composite here.
			r := Isqrt(n)
			if new(big.Int).Mul(r, r).Cmp(n) == 0 {
				return false
			}
			break
		}
		if disc.Sign() > 0 {
			disc.Add(disc, two).Neg(disc)
		} else {
			disc.Sub(disc, two).Neg(disc)
		}
	}

	p := big.NewInt(1)
	q := new(big.Int).Sub(one, disc)
	q.Quo(q, big.NewInt(4))

	// n+1 = d * 2^s with d odd.
	np1 := new(big.Int).Add(n, one)
	s := np1.TrailingZeroBits()
	d := new(big.Int).Rsh(np1, s)

	u, v, qk := lucasUV(p, q, disc, d, n)
	if u.Sign() == 0 {
		return true
	}
	for r := uint(0); r < s; r++ {
		if v.Sign() == 0 {
			return true
		}
		// V_{2k} = V^2 - 2*Q^k
		v.Mul(v, v).Sub(v, new(big.Int).Lsh(qk, 1)).Mod(v, n)
		qk.Mul(qk, qk).Mod(qk, n)
	}
	return false
}

// lucasUV computes U_k, V_k and Q^k mod n for the Lucas sequence with
// parameters (P, Q) and discriminant D = P^2 - 4Q, by the binary method.
// n must be odd.
func lucasUV(p, q, disc, k, n *big.Int) (*big.Int, *big.Int, *big.Int) {
	u := big.NewInt(1)
	v := new(big.Int).Mod(p, n)
	qk := new(big.Int).Mod(q, n)

	tmp := new(big.Int)
	for i := k.BitLen() - 2; i >= 0; i-- {
		// Doubling: U_{2k} = U*V, V_{2k} = V^2 - 2*Q^k.
		u2 := new(big.Int).Mul(u, v)
		u2.Mod(u2, n)
		v2 := new(big.Int).Mul(v, v)
		v2.Sub(v2, tmp.Lsh(qk, 1)).Mod(v2, n)
		u, v = u2, v2
		qk.Mul(qk, qk).Mod(qk, n)

		if k.Bit(i) == 1 {
			// Addition: U_{k+1} = (P*U + V)/2, V_{k+1} = (D*U + P*V)/2.
			un := new(big.Int).Mul(p, u)
			un.Add(un, v)
			vn := new(big.Int).Mul(disc, u)
			vn.Add(vn, tmp.Mul(p, v))
			u = halveMod(un, n)
			v = halveMod(vn, n)
			qk.Mul(qk, q).Mod(qk, n)
		}
	}
	return u, v, qk
}

// halveMod returns t/2 mod n for odd n, reducing t first so the parity
// trick works for negative intermediates.
func halveMod(t, n *big.Int) *big.Int {
	t.Mod(t, n)
	if t.Bit(0) == 1 {
		t.Add(t, n)
	}
	return t.Rsh(t, 1)
}
