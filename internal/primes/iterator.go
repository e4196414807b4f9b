package primes

import (
	"math/big"

	"github.com/jonathan/factor-engine/internal/numeric"
)

const (
	// segmentSpan is the window sieved at a time on the fast path.
	segmentSpan = 1 << 20
	// sievePathMax bounds the fast path; above it the base-prime sieve
	// would no longer fit in memory and the wheel walk takes over.
	sievePathMax = uint64(1) << 46
)

// Iterator emits the primes in [lo, hi] in ascending order. It is not safe
// for concurrent use. Restarting from a checkpoint is done by constructing
// a new Iterator with lo set just past the last tested candidate.
type Iterator struct {
	exhausted bool

	// sieve path
	small bool
	cur   uint64
	hiU   uint64
	base  []uint64
	seg   []bool
	segLo uint64

	// wheel path
	hi   *big.Int
	last *big.Int
}

// NewIterator builds an iterator over [lo, hi]. Bounds below 2 are clamped;
// an empty range yields no primes.
func NewIterator(lo, hi *big.Int) *Iterator {
	if hi.IsUint64() && hi.Uint64() <= sievePathMax {
		it := &Iterator{small: true, hiU: hi.Uint64()}
		if lo.Sign() > 0 && lo.IsUint64() {
			it.cur = lo.Uint64()
		}
		if lo.Cmp(hi) > 0 {
			it.exhausted = true
			return it
		}
		it.base = SmallPrimes(numeric.Isqrt(hi).Uint64())
		return it
	}
	return newWheelIterator(lo, hi)
}

// newWheelIterator always takes the arbitrary-precision path, regardless of
// range size.
func newWheelIterator(lo, hi *big.Int) *Iterator {
	it := &Iterator{
		hi:   new(big.Int).Set(hi),
		last: new(big.Int).Sub(lo, big.NewInt(1)),
	}
	if lo.Cmp(hi) > 0 {
		it.exhausted = true
	}
	return it
}

// Next returns the next prime in range, or false once the range is
// exhausted.
func (it *Iterator) Next() (*big.Int, bool) {
	if it.exhausted {
		return nil, false
	}
	if it.small {
		return it.nextSieved()
	}
	return it.nextWheel()
}

func (it *Iterator) nextSieved() (*big.Int, bool) {
	if it.cur < 2 {
		it.cur = 2
	}
	for it.cur <= it.hiU {
		if it.seg == nil || it.cur >= it.segLo+uint64(len(it.seg)) {
			it.sieveSegment(it.cur)
		}
		p := it.cur
		it.cur++
		if !it.seg[p-it.segLo] {
			return new(big.Int).SetUint64(p), true
		}
	}
	it.exhausted = true
	return nil, false
}

func (it *Iterator) sieveSegment(lo uint64) {
	span := uint64(segmentSpan)
	if lo+span-1 > it.hiU {
		span = it.hiU - lo + 1
	}
	seg := make([]bool, span)
	for _, p := range it.base {
		start := p * p
		if start < lo {
			start = ((lo + p - 1) / p) * p
		}
		for m := start; m < lo+span; m += p {
			seg[m-lo] = true
		}
	}
	it.seg = seg
	it.segLo = lo
}

func (it *Iterator) nextWheel() (*big.Int, bool) {
	c := it.last
	for {
		c = advanceCandidate(c)
		if c.Cmp(it.hi) > 0 {
			it.exhausted = true
			return nil, false
		}
		it.last = c
		if numeric.IsPrimeFast(c) {
			return new(big.Int).Set(c), true
		}
	}
}
