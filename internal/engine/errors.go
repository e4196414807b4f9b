package engine

import (
	"errors"
	"fmt"

	"github.com/jonathan/factor-engine/internal/types"
)

// ErrJobNotFound is returned for an unknown job id.
var ErrJobNotFound = errors.New("job not found")

// ErrAlreadyExecuting is returned when Execute is called on a job that
// another goroutine is already running.
var ErrAlreadyExecuting = errors.New("job is already being executed")

// ErrJobActive is returned by Forget for a job that has not reached a
// terminal status.
var ErrJobActive = errors.New("job is still active")

// AllStagesExhaustedMessage is the error recorded on a job when every
// planned stage ran out of work without producing a factor.
const AllStagesExhaustedMessage = "all enabled stages exhausted without finding a factor"

// Control sentinels delivered to a running stage through its checkpoint
// callback. Stages return them unchanged; they never escape the engine.
var (
	errPauseRequested  = errors.New("pause requested")
	errCancelRequested = errors.New("cancel requested")
)

// InvalidInputError rejects a submission whose target or bounds failed
// numeric validation. The job is still registered, in failed status, so the
// rejection is visible in job history.
type InvalidInputError struct {
	Reason string
}

func (e *InvalidInputError) Error() string {
	return "invalid input: " + e.Reason
}

// NotRunnableError reports an Execute call on a job that is not in a
// claimable state.
type NotRunnableError struct {
	Status types.Status
}

func (e *NotRunnableError) Error() string {
	return fmt.Sprintf("job is %s and cannot be executed", e.Status)
}
