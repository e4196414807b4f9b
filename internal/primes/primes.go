// Package primes generates prime candidates for the factorization stages.
// Ranges that fit comfortably in 64 bits use a segmented sieve; larger
// ranges fall back to an incremental mod-30 wheel walk filtered by
// Baillie-PSW, which stays practical at any magnitude.
package primes

import (
	"math/big"

	"github.com/jonathan/factor-engine/internal/numeric"
)

// SmallPrimes returns every prime p <= limit by a plain sieve of
// Eratosthenes. Callers keep limit within sieving range; stage-one ECM
// bounds and trial-division limits are validated upstream.
func SmallPrimes(limit uint64) []uint64 {
	if limit < 2 {
		return nil
	}
	composite := make([]bool, limit+1)
	for p := uint64(2); p*p <= limit; p++ {
		if composite[p] {
			continue
		}
		for m := p * p; m <= limit; m += p {
			composite[m] = true
		}
	}
	out := make([]uint64, 0, limit/2)
	for p := uint64(2); p <= limit; p++ {
		if !composite[p] {
			out = append(out, p)
		}
	}
	return out
}

// NextPrime returns the smallest prime strictly greater than n.
func NextPrime(n *big.Int) *big.Int {
	c := new(big.Int).Set(n)
	for {
		c = advanceCandidate(c)
		if numeric.IsPrimeFast(c) {
			return c
		}
	}
}

// wheelStep maps a residue mod 30 to the distance to the next candidate
// coprime to 2, 3 and 5.
var wheelStep [30]uint8

func init() {
	allowed := map[int]bool{1: true, 7: true, 11: true, 13: true, 17: true, 19: true, 23: true, 29: true}
	for r := 0; r < 30; r++ {
		d := 1
		for !allowed[(r+d)%30] {
			d++
		}
		wheelStep[r] = uint8(d)
	}
}

var (
	bigTwo   = big.NewInt(2)
	bigThree = big.NewInt(3)
	bigFive  = big.NewInt(5)
	bigSeven = big.NewInt(7)
	big30    = big.NewInt(30)
)

// advanceCandidate returns the next value after c that is 2, 3, 5 or
// coprime to the wheel, allocating a fresh big.Int.
func advanceCandidate(c *big.Int) *big.Int {
	switch {
	case c.Cmp(bigTwo) < 0:
		return new(big.Int).Set(bigTwo)
	case c.Cmp(bigThree) < 0:
		return new(big.Int).Set(bigThree)
	case c.Cmp(bigFive) < 0:
		return new(big.Int).Set(bigFive)
	case c.Cmp(bigSeven) < 0:
		return new(big.Int).Set(bigSeven)
	}
	r := new(big.Int).Mod(c, big30).Int64()
	return new(big.Int).Add(c, big.NewInt(int64(wheelStep[r])))
}
