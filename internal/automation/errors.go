// internal/automation/errors.go
package automation

import (
	"errors"
	"fmt"
)

// ErrNotFound is the sentinel for a target that no candidate located.
// It is an ordinary outcome, not an infrastructure failure.
var ErrNotFound = errors.New("element not found")

// SelectorNotFoundError names the step whose target could not be located.
type SelectorNotFoundError struct {
	Step     string
	Attempts int
}

func (e *SelectorNotFoundError) Error() string {
	return fmt.Sprintf("%s: no candidate matched after %d attempt(s)", e.Step, e.Attempts)
}

func (e *SelectorNotFoundError) Unwrap() error { return ErrNotFound }

// StepExecutionError is an action that failed on a resolved element.
type StepExecutionError struct {
	Step   string
	Action Action
	Err    error
}

func (e *StepExecutionError) Error() string {
	return fmt.Sprintf("%s: %s failed: %v", e.Step, e.Action, e.Err)
}

func (e *StepExecutionError) Unwrap() error { return e.Err }

// CriticalStepFailure aborts a run. Err is the step's own failure.
type CriticalStepFailure struct {
	Step string
	Err  error
}

func (e *CriticalStepFailure) Error() string {
	return fmt.Sprintf("critical step %q failed: %v", e.Step, e.Err)
}

func (e *CriticalStepFailure) Unwrap() error { return e.Err }

// RunCancelledError ends a run whose context expired between steps. Step is
// the step that did not start, or the last step when After is set.
type RunCancelledError struct {
	Step  string
	After bool
	Err   error
}

func (e *RunCancelledError) Error() string {
	if e.After {
		return fmt.Sprintf("run cancelled after step %q: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("run cancelled before step %q: %v", e.Step, e.Err)
}

func (e *RunCancelledError) Unwrap() error { return e.Err }

// SessionError covers acquiring the browser, opening the tab and the
// initial navigation. No step runs after one.
type SessionError struct {
	Op  string
	Err error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("browser session: %s: %v", e.Op, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

// ExtractionError is a failed query against the final page. The affected
// result fields keep their defaults.
type ExtractionError struct {
	Query string
	Err   error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extracting %s: %v", e.Query, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// IsFatal reports whether err ends a run.
func IsFatal(err error) bool {
	var critical *CriticalStepFailure
	var cancelled *RunCancelledError
	var session *SessionError
	return errors.As(err, &critical) || errors.As(err, &cancelled) || errors.As(err, &session)
}
