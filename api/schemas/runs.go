package schemas

import "time"

// -- Run History Schemas --

// RunStatus is the terminal state of an automation run as stored in history.
type RunStatus string

const (
	RunCompleted RunStatus = "COMPLETED"
	RunAborted   RunStatus = "ABORTED"
	RunFailed    RunStatus = "FAILED"
)

func (s RunStatus) String() string { return string(s) }

// StepRecord is the persisted view of a single step outcome.
type StepRecord struct {
	Name             string `json:"name"`
	Success          bool   `json:"success"`
	MatchedCandidate *int   `json:"matched_candidate,omitempty"`
	Error            string `json:"error,omitempty"`
	DurationMs       int64  `json:"duration_ms"`
}

// RunRecord summarises one automation run. It never carries the caller's credentials.
type RunRecord struct {
	ID          string            `json:"id"`
	StartedAt   time.Time         `json:"started_at"`
	FinishedAt  time.Time         `json:"finished_at"`
	Status      RunStatus         `json:"status"`
	AbortedStep string            `json:"aborted_step,omitempty"`
	Error       string            `json:"error,omitempty"`
	Steps       []StepRecord      `json:"steps"`
	Result      *AutomationResult `json:"result,omitempty"`
}
