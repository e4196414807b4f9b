package numeric

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsPrimeBPSW_KnownPrimes(t *testing.T) {
	for _, p := range []int64{2, 3, 5, 7, 97, 101, 1009, 10007, 104729, 1000003} {
		assert.True(t, IsPrimeBPSW(big.NewInt(p)), "%d should be prime", p)
	}

	// 2^61 - 1 is a Mersenne prime.
	m61 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 61), big.NewInt(1))
	assert.True(t, IsPrimeBPSW(m61))
}

func TestIsPrimeBPSW_KnownComposites(t *testing.T) {
	for _, c := range []int64{0, 1, 4, 25, 561, 41041, 1018081} {
		assert.False(t, IsPrimeBPSW(big.NewInt(c)), "%d should be composite", c)
	}
}

func TestIsPrimeBPSW_StrongPseudoprimesBase2(t *testing.T) {
	// 2047 = 23*89 and 3277 = 29*113 pass the base-2 Miller-Rabin leg but
	// must be rejected by the Lucas leg.
	assert.True(t, millerRabinBase2(big.NewInt(2047)))
	assert.False(t, IsPrimeBPSW(big.NewInt(2047)))
	assert.False(t, IsPrimeBPSW(big.NewInt(3277)))
}

func TestIsPrimeBPSW_PerfectSquare(t *testing.T) {
	// 1009^2: squares are where the Selfridge walk can run long.
	sq := new(big.Int).Mul(big.NewInt(1009), big.NewInt(1009))
	assert.False(t, IsPrimeBPSW(sq))
}

func TestIsPrimeFast_BeyondUint64(t *testing.T) {
	// 2^89 - 1 is prime; 2^67 - 1 = 193707721 * 761838257287 is not.
	m89 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 89), big.NewInt(1))
	m67 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 67), big.NewInt(1))

	assert.True(t, IsPrimeFast(m89))
	assert.False(t, IsPrimeFast(m67))
}

func TestIsPrimeFast_AgreesWithStdlibBelowUint64(t *testing.T) {
	for n := int64(2); n < 2000; n++ {
		nb := big.NewInt(n)
		require.Equal(t, nb.ProbablyPrime(20), IsPrimeFast(nb), "disagreement at %d", n)
	}
}

func TestIsProbablePrime_DefaultsRounds(t *testing.T) {
	assert.True(t, IsProbablePrime(big.NewInt(97), 0))
	assert.False(t, IsProbablePrime(big.NewInt(96), -3))
	assert.False(t, IsProbablePrime(big.NewInt(1), 40))
}
