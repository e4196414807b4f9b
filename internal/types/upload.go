package types

import (
	"time"

	"github.com/google/uuid"
)

// Upload is one ingested CSV file. Rows are stored separately and jobs
// created from the upload carry its token.
type Upload struct {
	Token     uuid.UUID `json:"token"`
	Filename  string    `json:"filename"`
	RowCount  int       `json:"rows"`
	CreatedAt time.Time `json:"created_at"`
}

// UploadRow is one parsed CSV line: a target N and optional explicit bounds.
// Line is the 1-based position in the source file, kept so errors and job
// provenance can point back at the original row.
type UploadRow struct {
	Line       int    `json:"line"`
	N          string `json:"n"`
	LowerBound string `json:"lower_bound,omitempty"`
	UpperBound string `json:"upper_bound,omitempty"`
}
