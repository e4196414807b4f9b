// Package batch finds prime factors shared across many targets at once using
// Bernstein's product and remainder tree batch GCD. A shared prime between
// two semiprimes splits both instantly, so CSV uploads run this as a prescan
// before any per-job factoring starts.
package batch

import (
	"fmt"
	"math/big"

	"github.com/jonathan/factor-engine/internal/numeric"
	"github.com/jonathan/factor-engine/internal/primes"
)

// trialLimit bounds the trial division used to split composite shared factors.
const trialLimit = 1 << 16

// Report describes what the prescan learned about one input.
type Report struct {
	Index         int      `json:"index"`
	Line          int      `json:"line,omitempty"`
	N             string   `json:"n"`
	SharedFactors []string `json:"shared_factors"`
	Remaining     string   `json:"remaining"`
	Trivial       bool     `json:"trivial"`
}

// FindShared returns, for each input index with a non-trivial shared factor,
// the prime factors that input shares with the rest of the batch.
//
// The remainder of the full product modulo n² equals n·((P/n) mod n), so
// gcd(n, remainder/n) is exactly the part of n shared with the others. A zero
// remainder means every prime of n appears elsewhere too; those inputs are
// split by pairwise GCD against the rest of the batch instead.
func FindShared(numbers []*big.Int) map[int][]*big.Int {
	results := make(map[int][]*big.Int)
	if len(numbers) < 2 {
		return results
	}

	tree := buildProductTree(numbers)
	remainders := buildRemainderTree(tree)

	for i, n := range numbers {
		if n.Sign() <= 0 || n.Cmp(big.NewInt(1)) == 0 {
			continue
		}

		r := remainders[i]
		var g *big.Int
		if r.Sign() == 0 {
			g = pairwiseShared(i, numbers)
		} else {
			g = new(big.Int).GCD(nil, nil, n, new(big.Int).Quo(r, n))
		}

		if g.Cmp(big.NewInt(1)) > 0 {
			results[i] = splitFactor(g, i, numbers)
		}
	}
	return results
}

// buildProductTree builds the levels of pairwise products, level 0 being the
// inputs and the last level the product of everything.
func buildProductTree(numbers []*big.Int) [][]*big.Int {
	tree := [][]*big.Int{numbers}

	for len(tree[len(tree)-1]) > 1 {
		prev := tree[len(tree)-1]
		next := make([]*big.Int, 0, (len(prev)+1)/2)
		for i := 0; i < len(prev); i += 2 {
			if i+1 < len(prev) {
				next = append(next, new(big.Int).Mul(prev[i], prev[i+1]))
			} else {
				next = append(next, prev[i])
			}
		}
		tree = append(tree, next)
	}
	return tree
}

// buildRemainderTree walks the product tree from the root down, reducing the
// running remainder modulo the square of each node, and returns the full
// product modulo n² for every input n.
func buildRemainderTree(tree [][]*big.Int) []*big.Int {
	root := tree[len(tree)-1][0]
	remainders := []*big.Int{root}

	for level := len(tree) - 2; level >= 0; level-- {
		nodes := tree[level]
		next := make([]*big.Int, 0, len(nodes))
		for i, r := range remainders {
			left := i * 2
			if left < len(nodes) {
				sq := new(big.Int).Mul(nodes[left], nodes[left])
				next = append(next, new(big.Int).Mod(r, sq))
			}
			right := i*2 + 1
			if right < len(nodes) {
				sq := new(big.Int).Mul(nodes[right], nodes[right])
				next = append(next, new(big.Int).Mod(r, sq))
			}
		}
		remainders = next
	}
	return remainders
}

// pairwiseShared collects the product of primes numbers[i] shares with any
// other input, one pairwise GCD at a time. Only used for the rare inputs
// whose remainder came back zero.
func pairwiseShared(i int, numbers []*big.Int) *big.Int {
	n := numbers[i]
	shared := big.NewInt(1)
	rest := new(big.Int).Set(n)

	for j, m := range numbers {
		if j == i || rest.Cmp(big.NewInt(1)) == 0 {
			continue
		}
		g := new(big.Int).GCD(nil, nil, rest, m)
		for g.Cmp(big.NewInt(1)) > 0 {
			shared.Mul(shared, g)
			rest.Quo(rest, g)
			g = new(big.Int).GCD(nil, nil, rest, m)
		}
	}
	return shared
}

// splitFactor breaks a shared factor into primes. Pairwise GCDs against the
// batch peel off the shared primes directly; small trial division and a
// primality check mop up whatever is left.
func splitFactor(g *big.Int, i int, numbers []*big.Int) []*big.Int {
	var factors []*big.Int
	rest := new(big.Int).Set(g)

	for j, m := range numbers {
		if j == i {
			continue
		}
		d := new(big.Int).GCD(nil, nil, rest, m)
		for d.Cmp(big.NewInt(1)) > 0 && d.Cmp(rest) < 0 {
			if numeric.IsPrimeBPSW(d) {
				factors = append(factors, new(big.Int).Set(d))
				rest.Quo(rest, d)
			} else {
				break
			}
			d = new(big.Int).GCD(nil, nil, rest, m)
		}
	}

	for _, p := range primes.SmallPrimes(trialLimit) {
		if rest.Cmp(big.NewInt(1)) == 0 {
			break
		}
		bp := new(big.Int).SetUint64(p)
		for new(big.Int).Mod(rest, bp).Sign() == 0 {
			factors = append(factors, new(big.Int).Set(bp))
			rest.Quo(rest, bp)
		}
	}

	if rest.Cmp(big.NewInt(1)) > 0 {
		factors = append(factors, rest)
	}

	sortFactors(factors)
	return factors
}

func sortFactors(factors []*big.Int) {
	for i := 1; i < len(factors); i++ {
		for j := i; j > 0 && factors[j].Cmp(factors[j-1]) < 0; j-- {
			factors[j], factors[j-1] = factors[j-1], factors[j]
		}
	}
}

// Preprocess parses decimal targets, runs the shared-factor scan, and builds
// a per-input report: the shared primes, the cofactor left after dividing
// them out, and whether that finished the factorization outright.
func Preprocess(targets []string) ([]Report, error) {
	numbers := make([]*big.Int, len(targets))
	for i, t := range targets {
		n, err := numeric.ParseInt(t)
		if err != nil {
			return nil, fmt.Errorf("target %d: %w", i, err)
		}
		numbers[i] = n
	}

	shared := FindShared(numbers)

	reports := make([]Report, len(numbers))
	for i, n := range numbers {
		report := Report{
			Index:         i,
			N:             n.String(),
			SharedFactors: []string{},
			Remaining:     n.String(),
		}

		if factors, ok := shared[i]; ok {
			remaining := new(big.Int).Set(n)
			for _, f := range factors {
				report.SharedFactors = append(report.SharedFactors, f.String())
				for new(big.Int).Mod(remaining, f).Sign() == 0 {
					remaining.Quo(remaining, f)
				}
			}
			report.Remaining = remaining.String()
			report.Trivial = remaining.Cmp(big.NewInt(1)) == 0
		}

		reports[i] = report
	}
	return reports, nil
}
