package stages

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/factor-engine/internal/types"
)

func TestTrialDivision_FindsSmallestFactor(t *testing.T) {
	h := &harness{}

	factor, err := runTrialDivision(context.Background(), big.NewInt(143), Params{}, h.runtime())

	require.NoError(t, err)
	assert.Equal(t, int64(11), factor.Int64())
	assert.True(t, h.loggedContaining("Trial division up to 11"))
}

func TestTrialDivision_EvenTarget(t *testing.T) {
	h := &harness{}

	factor, err := runTrialDivision(context.Background(), big.NewInt(1000000000006), Params{}, h.runtime())

	require.NoError(t, err)
	assert.Equal(t, int64(2), factor.Int64())
}

func TestTrialDivision_ExhaustsWhenLimitTooLow(t *testing.T) {
	h := &harness{}
	params := Params{Policy: types.Policy{TrialDivisionLimit: 50}}

	// 10403 = 101 * 103, both past the limit.
	_, err := runTrialDivision(context.Background(), big.NewInt(10403), params, h.runtime())

	assert.ErrorIs(t, err, ErrExhausted)
}

func TestTrialDivision_ResumeSkipsTestedCandidates(t *testing.T) {
	h := &harness{}
	rt := h.runtime()
	rt.Resume = &types.Checkpoint{
		Stage:    types.StageTrialDivision,
		Position: "97",
		Tested:   25,
	}

	factor, err := runTrialDivision(context.Background(), big.NewInt(10403), Params{}, rt)

	require.NoError(t, err)
	assert.Equal(t, int64(101), factor.Int64())
	assert.True(t, h.loggedContaining("Resuming trial division from 98"))
}

func TestTrialDivision_CheckpointsCarryPosition(t *testing.T) {
	h := &harness{}
	params := Params{CheckpointEvery: 10_000}

	// 1000036000099 = 1000003 * 1000033; the scan crosses several
	// checkpoint intervals before the hit.
	factor, err := runTrialDivision(context.Background(), big.NewInt(1000036000099), params, h.runtime())

	require.NoError(t, err)
	assert.Equal(t, int64(1000003), factor.Int64())
	require.NotEmpty(t, h.progress)

	prev := -1.0
	for _, p := range h.progress {
		require.NotNil(t, p.Candidate)
		assert.GreaterOrEqual(t, p.Percent, prev)
		prev = p.Percent
	}
}

func TestTrialDivision_AbortsWhenCheckpointFails(t *testing.T) {
	h := &harness{failAfter: 1}
	params := Params{CheckpointEvery: 100}

	_, err := runTrialDivision(context.Background(), big.NewInt(1000036000099), params, h.runtime())

	assert.ErrorIs(t, err, errStop)
	assert.Len(t, h.progress, 1)
}

func TestTrialDivision_HonorsContextCancellation(t *testing.T) {
	h := &harness{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	params := Params{CheckpointEvery: 100}

	_, err := runTrialDivision(ctx, big.NewInt(1000036000099), params, h.runtime())

	assert.ErrorIs(t, err, context.Canceled)
}
