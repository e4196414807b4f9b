package stages

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/factor-engine/internal/types"
)

// ecmTestTarget = 1009 * 10000000019. The 1009 side has a curve group
// order of at most ~1070, always B1-smooth at 10000, so stage one peels it
// off within a few curves.
func ecmTestTarget() *big.Int {
	return big.NewInt(10090000019171)
}

func ecmTestPolicy() types.Policy {
	return types.Policy{ECMStages: []types.ECMStage{{B1: 10_000, Curves: 8}}}
}

func TestECM_FindsSmoothOrderFactor(t *testing.T) {
	h := &harness{}
	params := Params{Seed: 42, Policy: ecmTestPolicy()}

	n := ecmTestTarget()
	factor, err := runECM(context.Background(), n, params, h.runtime())

	require.NoError(t, err)
	assert.Equal(t, 0, new(big.Int).Mod(n, factor).Sign())
	assert.Contains(t, []string{"1009", "10000000019"}, factor.String())
	assert.True(t, h.loggedContaining("ECM"))
}

func TestECM_EvenTarget(t *testing.T) {
	factor, err := runECM(context.Background(), big.NewInt(38), Params{Seed: 1}, (&harness{}).runtime())

	require.NoError(t, err)
	assert.Equal(t, int64(2), factor.Int64())
}

func TestECM_MultipleOfThree(t *testing.T) {
	factor, err := runECM(context.Background(), big.NewInt(1000000000041), Params{Seed: 1}, (&harness{}).runtime())

	require.NoError(t, err)
	assert.Equal(t, int64(3), factor.Int64())
}

func TestECM_ExhaustsWhenB1TooSmall(t *testing.T) {
	// 1000000016000000063 = 1000000007 * 1000000009; neither curve order
	// is 20-smooth in practice.
	n, ok := new(big.Int).SetString("1000000016000000063", 10)
	require.True(t, ok)
	params := Params{Seed: 3, Policy: types.Policy{ECMStages: []types.ECMStage{{B1: 20, Curves: 2}}}}

	_, err := runECM(context.Background(), n, params, (&harness{}).runtime())

	assert.ErrorIs(t, err, ErrExhausted)
}

func TestECM_PauseAndResumeReplaysSigmaStream(t *testing.T) {
	paused := &harness{failAfter: 1}
	params := Params{Seed: 42, Policy: ecmTestPolicy()}

	// The first curve-boundary report fails, standing in for a pause.
	n := ecmTestTarget()
	_, err := runECM(context.Background(), n, params, paused.runtime())

	require.ErrorIs(t, err, errStop)
	state := paused.lastProgress().ECM
	require.NotNil(t, state)
	assert.Equal(t, int64(42), state.Seed)

	resumed := &harness{}
	rt := resumed.runtime()
	rt.Resume = &types.Checkpoint{Stage: types.StageECM, ECM: state}

	factor, err := runECM(context.Background(), n, params, rt)

	require.NoError(t, err)
	assert.Equal(t, 0, new(big.Int).Mod(n, factor).Sign())
	assert.True(t, resumed.loggedContaining("Resuming ECM"))
}

func TestMontgomeryLadder_ScalarConsistency(t *testing.T) {
	// Work over a prime modulus so the group law holds everywhere; check
	// 6P = 2*(3P) and 5P = 3P + 2P in projective X:Z coordinates.
	p := big.NewInt(10007)
	curve, point, factor := suyamaCurve(p, big.NewInt(6))
	require.Nil(t, factor)
	require.NotNil(t, curve)

	sameXZ := func(a, b *ecmPoint) bool {
		lhs := new(big.Int).Mul(a.x, b.z)
		lhs.Mod(lhs, p)
		rhs := new(big.Int).Mul(b.x, a.z)
		rhs.Mod(rhs, p)
		return lhs.Cmp(rhs) == 0
	}

	p2 := curve.mul(point, 2)
	p3 := curve.mul(point, 3)

	assert.True(t, sameXZ(curve.mul(point, 6), curve.double(p3)))
	assert.True(t, sameXZ(curve.mul(point, 5), curve.add(p3, p2, point)))
}

func TestSuyamaCurve_DeterministicFromSigma(t *testing.T) {
	n := ecmTestTarget()

	c1, pt1, _ := suyamaCurve(n, big.NewInt(7))
	c2, pt2, _ := suyamaCurve(n, big.NewInt(7))

	require.NotNil(t, c1)
	require.NotNil(t, c2)
	assert.Equal(t, c1.a24.String(), c2.a24.String())
	assert.Equal(t, pt1.x.String(), pt2.x.String())
}
