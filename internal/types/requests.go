package types

import "github.com/go-playground/validator/v10"

// CreateJobRequest is the submission payload shared by the HTTP API and the
// CLI. N must be the decimal text of a positive integer; the engine performs
// the authoritative numeric validation on top of the structural checks here.
type CreateJobRequest struct {
	N           string  `json:"n" validate:"required"`
	Mode        Mode    `json:"mode,omitempty"`
	LowerBound  string  `json:"lower_bound,omitempty" validate:"omitempty,number"`
	UpperBound  string  `json:"upper_bound,omitempty" validate:"omitempty,number"`
	UseEquation *bool   `json:"use_equation,omitempty"`
	Policy      *Policy `json:"algorithm_policy,omitempty"`
	UploadToken string  `json:"upload_token,omitempty" validate:"omitempty,uuid4"`
}

// Validate validates the CreateJobRequest using the validator.
func (r *CreateJobRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// ControlRequest asks for a state transition on an existing job.
type ControlRequest struct {
	Action ControlAction `json:"action" validate:"required,oneof=pause resume cancel"`
}

// Validate validates the ControlRequest using the validator.
func (r *ControlRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}
