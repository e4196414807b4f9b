package stages

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/factor-engine/internal/types"
)

func planNames(t *testing.T, mode types.Mode, policy types.Policy, searchReady bool) []string {
	t.Helper()
	plan, err := Plan(mode, policy, searchReady)
	require.NoError(t, err)
	names := make([]string, len(plan))
	for i, def := range plan {
		names[i] = def.Name
	}
	return names
}

func TestPlan_AutoRunsCheapestFirst(t *testing.T) {
	names := planNames(t, types.ModeAuto, types.DefaultPolicy(), true)

	assert.Equal(t, []string{
		types.StageTrialDivision,
		types.StagePollardRho,
		types.StageECM,
		types.StageEquationSearch,
	}, names)
}

func TestPlan_AutoSkipsDisabledStages(t *testing.T) {
	policy := types.DefaultPolicy()
	policy.UsePollardRho = false
	policy.UseECM = false

	names := planNames(t, types.ModeAuto, policy, false)

	assert.Equal(t, []string{types.StageTrialDivision}, names)
}

func TestPlan_AllDisabledIsEmpty(t *testing.T) {
	names := planNames(t, types.ModeAuto, types.Policy{}, false)

	assert.Empty(t, names)
}

func TestPlan_GuidedModesRunOnlyTheScan(t *testing.T) {
	for _, mode := range []types.Mode{types.ModeEquationGuided, types.ModeRangeScan} {
		names := planNames(t, mode, types.DefaultPolicy(), true)
		assert.Equal(t, []string{types.StageEquationSearch}, names, "mode %s", mode)
	}
}

func TestPlan_GuidedModeNeedsBounds(t *testing.T) {
	_, err := Plan(types.ModeEquationGuided, types.DefaultPolicy(), false)

	var depErr *DependencyError
	require.True(t, errors.As(err, &depErr))
	assert.Equal(t, types.StageEquationSearch, depErr.Stage)
}

func TestPlan_CSVModeBehavesLikeAuto(t *testing.T) {
	names := planNames(t, types.ModeCSVInput, types.DefaultPolicy(), false)

	assert.Equal(t, []string{
		types.StageTrialDivision,
		types.StagePollardRho,
		types.StageECM,
	}, names)
}
