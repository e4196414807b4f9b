// Command gen_semiprimes emits random balanced semiprimes for exercising the
// factorization engine.
//
// Each output line is the decimal product of two distinct random primes of
// equal bit length, so stdout can be fed straight into the batch command's
// CSV reader. The factors are echoed to stderr for checking results later.
//
// Usage:
//
//	go run cmd/tools/gen_semiprimes/main.go [digits] [count]
//
// digits is the approximate decimal size of each semiprime (default 40,
// minimum 2) and count is the number of lines to emit (default 10).
package main

import (
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"os"
	"strconv"

	"github.com/jonathan/factor-engine/internal/numeric"
)

func main() {
	digits := 40
	count := 10

	args := os.Args[1:]
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v < 2 {
			fmt.Fprintf(os.Stderr, "ERROR: digits must be an integer >= 2, got %q\n", args[0])
			os.Exit(1)
		}
		digits = v
	}
	if len(args) > 1 {
		v, err := strconv.Atoi(args[1])
		if err != nil || v < 1 {
			fmt.Fprintf(os.Stderr, "ERROR: count must be an integer >= 1, got %q\n", args[1])
			os.Exit(1)
		}
		count = v
	}

	// Each prime carries half the decimal digits; log2(10) converts to bits.
	bits := int(math.Ceil(float64(digits) / 2 * math.Log2(10)))

	fmt.Fprintf(os.Stderr, "Generating %d balanced semiprimes of ~%d digits (%d-bit primes)\n", count, digits, bits)

	for i := 0; i < count; i++ {
		p := mustPrime(bits)
		q := mustPrime(bits)
		for q.Cmp(p) == 0 {
			q = mustPrime(bits)
		}

		n := new(big.Int).Mul(p, q)
		fmt.Println(n.String())
		fmt.Fprintf(os.Stderr, "  %d digits: %s = %s x %s\n", numeric.Digits(n), n.String(), p.String(), q.String())
	}
}

func mustPrime(bits int) *big.Int {
	p, err := rand.Prime(rand.Reader, bits)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: prime generation failed: %v\n", err)
		os.Exit(1)
	}
	return p
}
