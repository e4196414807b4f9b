package observability

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/factor-engine/internal/batch"
	"github.com/jonathan/factor-engine/internal/equation"
	"github.com/jonathan/factor-engine/internal/numeric"
	"github.com/jonathan/factor-engine/internal/types"
)

func TestPrintJob(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	job := &types.Job{
		ID:               uuid.New(),
		N:                "8633",
		Mode:             types.ModeAuto,
		Status:           types.StatusCompleted,
		ProgressPercent:  100,
		CurrentStage:     types.StageComplete,
		FactorsFound:     []string{"89", "97"},
		TotalTimeSeconds: 0.42,
	}

	p.PrintJob(job)
	output := buf.String()

	assert.Contains(t, output, "FACTORIZATION JOB")
	assert.Contains(t, output, "8633")
	assert.Contains(t, output, "completed")
	assert.Contains(t, output, "100.0%")
	assert.Contains(t, output, "• 89")
	assert.Contains(t, output, "• 97")
	assert.Contains(t, output, "0.42s")
}

func TestPrintJob_Nil(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintJob(nil)

	assert.Empty(t, buf.String())
}

func TestPrintJob_FailedShowsError(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintJob(&types.Job{
		ID:           uuid.New(),
		N:            "101",
		Mode:         types.ModeAuto,
		Status:       types.StatusFailed,
		ErrorMessage: "all enabled stages exhausted without finding a factor",
	})
	output := buf.String()

	assert.Contains(t, output, "failed")
	assert.Contains(t, output, "Error:")
}

func TestPrintResults(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	results := []types.JobResult{
		{
			Factor:           "89",
			IsPrime:          true,
			Certificate:      []byte(`{"kind":"bpsw"}`),
			FoundByAlgorithm: types.StageTrialDivision,
			ElapsedMS:        3,
		},
		{
			Factor:           "97",
			IsPrime:          true,
			FoundByAlgorithm: types.StageTrialDivision,
			ElapsedMS:        3,
		},
	}

	p.PrintResults(results)
	output := buf.String()

	assert.Contains(t, output, "FACTORS FOUND")
	assert.Contains(t, output, "Found 2 prime factors")
	assert.Contains(t, output, "✓prime")
	assert.Contains(t, output, "✓certificate")
	assert.Contains(t, output, "trial_division")
}

func TestPrintResults_Empty(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintResults(nil)

	assert.Empty(t, buf.String())
}

func TestPrintBounds(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	n, err := numeric.ParseTarget("8633")
	require.NoError(t, err)
	solver, err := equation.NewSolver(n)
	require.NoError(t, err)

	p.PrintBounds("8633", solver.Digits(), solver.InitialBounds())
	output := buf.String()

	assert.Contains(t, output, "EQUATION ANALYSIS")
	assert.Contains(t, output, "Digits:    4")
	assert.Contains(t, output, "Lower:     84")
	assert.Contains(t, output, "Upper:     92")
	assert.Contains(t, output, "Crossover: 94")
	assert.Contains(t, output, "Newton converged")
}

func TestPrintPrescan_NoSharedFactors(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	reports, err := batch.Preprocess([]string{"143", "8633"})
	require.NoError(t, err)

	p.PrintPrescan(reports)

	assert.Contains(t, buf.String(), "NO SHARED FACTORS")
}

func TestPrintPrescan_SharedFactors(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	// 143 and 187 share the prime 11.
	reports, err := batch.Preprocess([]string{"143", "187"})
	require.NoError(t, err)
	reports[0].Line = 2
	reports[1].Line = 3

	p.PrintPrescan(reports)
	output := buf.String()

	assert.Contains(t, output, "BATCH PRESCAN")
	assert.Contains(t, output, "2 of 2 inputs share factors")
	assert.Contains(t, output, "line 2")
	assert.Contains(t, output, "shared: 11")
	assert.Contains(t, output, "remaining: 13")
}

func TestTruncateMiddle(t *testing.T) {
	long := strings.Repeat("9", 80)
	short := "12345"

	assert.Equal(t, short, truncateMiddle(short, 40))

	got := truncateMiddle(long, 41)
	assert.Less(t, len(got), len(long))
	assert.Contains(t, got, "...")
	assert.True(t, strings.HasPrefix(got, "9999"))
	assert.True(t, strings.HasSuffix(got, "9999"))
}
