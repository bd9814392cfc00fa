package model

import (
	"encoding/json"
	"time"
)

// RunStatus is the state of a pipeline run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one recomputation of E1 over the workspace.
type Run struct {
	ID        string          `json:"id"`
	Status    RunStatus       `json:"status"`
	Report    json.RawMessage `json:"report,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Terminal reports whether the run has finished.
func (r *Run) Terminal() bool {
	return r.Status == RunStatusComplete || r.Status == RunStatusFailed
}
