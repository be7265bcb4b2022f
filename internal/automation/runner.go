// internal/automation/runner.go
package automation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/conductor/api/schemas"
	"github.com/xkilldash9x/conductor/internal/browser"
)

// State is the runner's position in a workflow.
type State string

const (
	StatePending   State = "PENDING"
	StateRunning   State = "RUNNING"
	StateAdvancing State = "ADVANCING"
	StateAborted   State = "ABORTED"
	StateCompleted State = "COMPLETED"
)

// ExecutionOutcome records how one step went. Ordinary failures end up in
// Err rather than being returned by the runner.
type ExecutionOutcome struct {
	Step             string
	Success          bool
	MatchedCandidate *int
	Err              error
	Duration         time.Duration
}

// RunReport is the runner's record of a single run.
type RunReport struct {
	RunID string
	State State
	// Current is the index of the step being run, or -1 before the first.
	Current     int
	Outcomes    []ExecutionOutcome
	AbortedStep string
}

// NewRunReport returns a report in the Pending state.
func NewRunReport(runID string) *RunReport {
	return &RunReport{RunID: runID, State: StatePending, Current: -1}
}

// StepRecords converts the outcomes for run history.
func (r *RunReport) StepRecords() []schemas.StepRecord {
	records := make([]schemas.StepRecord, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		rec := schemas.StepRecord{
			Name:             o.Step,
			Success:          o.Success,
			MatchedCandidate: o.MatchedCandidate,
			DurationMs:       o.Duration.Milliseconds(),
		}
		if o.Err != nil {
			rec.Error = o.Err.Error()
		}
		records = append(records, rec)
	}
	return records
}

// Runner walks a workflow's steps in order. Only critical steps can stop it.
type Runner struct {
	resolver *Resolver
	executor *StepExecutor
	logger   *zap.Logger
}

func NewRunner(resolver *Resolver, executor *StepExecutor, logger *zap.Logger) *Runner {
	return &Runner{
		resolver: resolver,
		executor: executor,
		logger:   logger.Named("runner"),
	}
}

// Run executes steps against page, recording each outcome on report. It
// returns nil once every step has been attempted (report.State is then
// StateCompleted), a *CriticalStepFailure when a critical step fails, and a
// *RunCancelledError when ctx ends between steps or during the last settle.
// The caller owns the page and its session.
func (r *Runner) Run(ctx context.Context, page browser.Page, steps []WorkflowStep, report *RunReport) error {
	log := r.logger.With(zap.String("run_id", report.RunID))

	for i, step := range steps {
		// Cancellation is only observed between steps.
		if err := ctx.Err(); err != nil {
			return r.cancel(report, step.Name, false, context.Cause(ctx), log)
		}

		report.State = StateRunning
		report.Current = i
		outcome := r.runStep(ctx, page, step, log)
		report.Outcomes = append(report.Outcomes, outcome)

		if outcome.Err != nil {
			if step.Critical {
				return r.abort(report, step.Name, outcome.Err, log)
			}
			log.Warn("Step failed, continuing.", zap.String("step", step.Name), zap.Error(outcome.Err))
		}

		report.State = StateAdvancing
		if err := sleep(ctx, step.Settle); err != nil {
			log.Debug("Settle interrupted.", zap.String("step", step.Name), zap.Error(err))
		}
	}

	// A settle cut short after the last step leaves nothing worth extracting.
	if err := ctx.Err(); err != nil && len(steps) > 0 {
		return r.cancel(report, steps[len(steps)-1].Name, true, context.Cause(ctx), log)
	}

	report.State = StateCompleted
	log.Info("Workflow completed.",
		zap.Int("steps", len(steps)),
		zap.Int("succeeded", countSucceeded(report.Outcomes)))
	return nil
}

func (r *Runner) runStep(ctx context.Context, page browser.Page, step WorkflowStep, log *zap.Logger) ExecutionOutcome {
	start := time.Now()
	outcome := ExecutionOutcome{Step: step.Name}
	slog := log.With(zap.String("step", step.Name))
	slog.Debug("Running step.", zap.String("action", string(step.Action)), zap.Bool("critical", step.Critical))

	el, err := r.resolver.Resolve(ctx, page, step.Candidates, step.Name, step.Attempts, step.Timeout)
	if err != nil {
		outcome.Err = err
		if errors.Is(err, ErrNotFound) && step.FallbackKey != "" {
			slog.Info("Target not found, pressing fallback key.", zap.String("key", step.FallbackKey))
			if perr := page.Press(ctx, step.FallbackKey); perr != nil {
				slog.Warn("Fallback key press failed.", zap.Error(perr))
			}
		}
		outcome.Duration = time.Since(start)
		return outcome
	}

	matched := el.Candidate
	outcome.MatchedCandidate = &matched
	if err := r.executor.Execute(ctx, page, step, el); err != nil {
		outcome.Err = err
	} else {
		outcome.Success = true
	}
	outcome.Duration = time.Since(start)
	return outcome
}

func (r *Runner) abort(report *RunReport, step string, err error, log *zap.Logger) error {
	report.State = StateAborted
	report.AbortedStep = step
	log.Error("Workflow aborted.", zap.String("step", step), zap.Error(err))
	return &CriticalStepFailure{Step: step, Err: err}
}

func (r *Runner) cancel(report *RunReport, step string, after bool, err error, log *zap.Logger) error {
	report.State = StateAborted
	report.AbortedStep = step
	log.Warn("Workflow cancelled.", zap.String("step", step), zap.Bool("after_step", after), zap.Error(err))
	return &RunCancelledError{Step: step, After: after, Err: err}
}

func countSucceeded(outcomes []ExecutionOutcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Success {
			n++
		}
	}
	return n
}

// String summarises the report for logs.
func (r *RunReport) String() string {
	return fmt.Sprintf("run %s: %s after %d step(s)", r.RunID, r.State, len(r.Outcomes))
}
