// Package types provides type definitions for structured data used throughout the factor-engine system.
package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a factorization job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is final. Terminal jobs are immutable.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusPaused, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Mode selects which part of the stage plan a job runs.
type Mode string

const (
	// ModeAuto runs the full stage ladder: trial division, Pollard-rho,
	// ECM, then the equation-guided prime search.
	ModeAuto Mode = "auto"
	// ModeEquationGuided runs only the cubic solve and the prime search
	// over the derived bounds.
	ModeEquationGuided Mode = "equation_guided"
	// ModeRangeScan iterates primes over user-supplied bounds with no
	// cubic solve.
	ModeRangeScan Mode = "range_scan"
	// ModeCSVInput marks jobs created from a CSV upload. Execution is
	// identical to auto, with per-row bounds when the row carried them.
	ModeCSVInput Mode = "csv_input"
)

// Valid reports whether m is a known mode value.
func (m Mode) Valid() bool {
	switch m {
	case ModeAuto, ModeEquationGuided, ModeRangeScan, ModeCSVInput:
		return true
	}
	return false
}

// ControlAction is an external request to change a running job's state.
type ControlAction string

const (
	ControlPause  ControlAction = "pause"
	ControlResume ControlAction = "resume"
	ControlCancel ControlAction = "cancel"
)

// Valid reports whether a is a known control action.
func (a ControlAction) Valid() bool {
	return a == ControlPause || a == ControlResume || a == ControlCancel
}

// Stage tags used in logs, checkpoints and results.
const (
	StageInitialization = "initialization"
	StagePrimalityCheck = "primality_check"
	StageEquation       = "equation"
	StageTrialDivision  = "trial_division"
	StagePollardRho     = "pollard_rho"
	StageECM            = "ecm"
	StageEquationSearch = "equation_search"
	StageControl        = "control"
	StageComplete       = "complete"
)

// Pseudo-algorithm tags for factors that were not found by a search stage.
const (
	AlgorithmFactorCache = "factor_cache"
	AlgorithmFactorDB    = "factordb"
)

// Job represents one factorization attempt. The target N and all bounds and
// factors are decimal strings so values survive JSON and storage round trips
// with no precision loss.
type Job struct {
	ID               uuid.UUID   `json:"id"`
	N                string      `json:"n"`
	Mode             Mode        `json:"mode"`
	LowerBound       string      `json:"lower_bound,omitempty"`
	UpperBound       string      `json:"upper_bound,omitempty"`
	UseEquation      bool        `json:"use_equation"`
	Policy           Policy      `json:"algorithm_policy"`
	Status           Status      `json:"status"`
	ProgressPercent  float64     `json:"progress_percent"`
	CurrentStage     string      `json:"current_stage,omitempty"`
	CurrentCandidate string      `json:"current_candidate,omitempty"`
	ErrorMessage     string      `json:"error_message,omitempty"`
	FactorsFound     []string    `json:"factors_found,omitempty"`
	Checkpoint       *Checkpoint `json:"checkpoint,omitempty"`
	UploadToken      string      `json:"upload_token,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
	StartedAt        *time.Time  `json:"started_at,omitempty"`
	FinishedAt       *time.Time  `json:"finished_at,omitempty"`
	TotalTimeSeconds float64     `json:"total_time_seconds"`
}

// Clone returns a deep copy of the job, safe to hand out as a snapshot while
// the scheduler keeps mutating the original.
func (j *Job) Clone() *Job {
	c := *j
	if j.FactorsFound != nil {
		c.FactorsFound = append([]string(nil), j.FactorsFound...)
	}
	if j.Checkpoint != nil {
		c.Checkpoint = j.Checkpoint.Clone()
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		c.FinishedAt = &t
	}
	if j.Policy.ECMStages != nil {
		c.Policy.ECMStages = append([]ECMStage(nil), j.Policy.ECMStages...)
	}
	return &c
}

// Checkpoint captures where a suspended job stopped so resumption does not
// redo completed work. Position is the last candidate tested in the current
// stage; stage-specific resume state rides in the typed sub-records.
type Checkpoint struct {
	Stage           string    `json:"stage"`
	CompletedStages []string  `json:"completed_stages,omitempty"`
	Position        string    `json:"position,omitempty"`
	Tested          uint64    `json:"tested,omitempty"`
	Rho             *RhoState `json:"rho,omitempty"`
	ECM             *ECMState `json:"ecm,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Clone returns a deep copy of the checkpoint.
func (c *Checkpoint) Clone() *Checkpoint {
	d := *c
	if c.CompletedStages != nil {
		d.CompletedStages = append([]string(nil), c.CompletedStages...)
	}
	if c.Rho != nil {
		r := *c.Rho
		d.Rho = &r
	}
	if c.ECM != nil {
		e := *c.ECM
		d.ECM = &e
	}
	return &d
}

// Completed reports whether the named stage already ran to exhaustion before
// the checkpoint was taken.
func (c *Checkpoint) Completed(stage string) bool {
	for _, s := range c.CompletedStages {
		if s == stage {
			return true
		}
	}
	return false
}

// RhoState is the full Pollard-rho iteration state, serialized so a resumed
// job continues the same pseudo-random walk instead of starting a new one.
type RhoState struct {
	X         string `json:"x"`
	Y         string `json:"y"`
	C         string `json:"c"`
	Power     uint64 `json:"power"`
	Lam       uint64 `json:"lam"`
	Iteration uint64 `json:"iteration"`
	Budget    uint64 `json:"budget"`
	Restarts  int    `json:"restarts"`
}

// ECMState records how far the staged ECM run got. Curve parameters are
// regenerated deterministically from Seed, so storing indexes is enough.
type ECMState struct {
	StageIndex int   `json:"stage_index"`
	Curve      int   `json:"curve"`
	Seed       int64 `json:"seed"`
}

// LogLevel classifies a JobLog entry.
type LogLevel string

const (
	LogInfo    LogLevel = "INFO"
	LogWarning LogLevel = "WARNING"
	LogError   LogLevel = "ERROR"
)

// JobLog is one append-only, time-ordered event in a job's history. Seq is
// assigned by the engine and is strictly increasing per job.
type JobLog struct {
	JobID     uuid.UUID      `json:"job_id"`
	Seq       int64          `json:"seq"`
	Timestamp time.Time      `json:"timestamp"`
	Level     LogLevel       `json:"level"`
	Stage     string         `json:"stage,omitempty"`
	Message   string         `json:"message"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// JobResult is one discovered factor. Factor is decimal text; Certificate,
// when present, is a primality certificate document in JSON form.
type JobResult struct {
	JobID            uuid.UUID       `json:"job_id"`
	Factor           string          `json:"factor"`
	IsPrime          bool            `json:"is_prime"`
	Certificate      json.RawMessage `json:"certificate,omitempty"`
	FoundByAlgorithm string          `json:"found_by_algorithm"`
	ElapsedMS        int64           `json:"elapsed_ms"`
	FoundAt          time.Time       `json:"found_at"`
}
