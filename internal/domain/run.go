package domain

import (
	"time"

	"github.com/google/uuid"
)

// Trigger names what started a run.
type Trigger string

const (
	TriggerManual    Trigger = "manual"
	TriggerScheduled Trigger = "scheduled"
)

// RunSummary holds the counts of one completed run.
type RunSummary struct {
	Total     int `json:"total"`
	Eligible  int `json:"eligible"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// RunRecord is the history entry written for every run, failed or not.
type RunRecord struct {
	ID         uuid.UUID `json:"id" db:"id"`
	Trigger    Trigger   `json:"trigger" db:"trigger"`
	Depth      int       `json:"depth" db:"depth"`
	StartedAt  time.Time `json:"started_at" db:"started_at"`
	FinishedAt time.Time `json:"finished_at" db:"finished_at"`
	Total      int       `json:"total" db:"total"`
	Eligible   int       `json:"eligible" db:"eligible"`
	Succeeded  int       `json:"succeeded" db:"succeeded"`
	Failed     int       `json:"failed" db:"failed"`
	Error      string    `json:"error,omitempty" db:"error"`

	Outcomes []KudoOutcome `json:"-" db:"-"`
}

// Summary returns the counts of the record.
func (r *RunRecord) Summary() *RunSummary {
	return &RunSummary{
		Total:     r.Total,
		Eligible:  r.Eligible,
		Succeeded: r.Succeeded,
		Failed:    r.Failed,
	}
}

// ExecutionState describes the controller mode and whether a run is in flight.
type ExecutionState int

const (
	StateIdle ExecutionState = iota
	StateRunning
	StateScheduledIdle
	StateScheduledRunning
)

func (s ExecutionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateScheduledIdle:
		return "scheduled_idle"
	case StateScheduledRunning:
		return "scheduled_running"
	default:
		return "unknown"
	}
}
