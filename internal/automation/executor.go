// internal/automation/executor.go
package automation

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/conductor/internal/browser"
)

// StepExecutor performs a step's action on its resolved element.
type StepExecutor struct {
	logger *zap.Logger
}

func NewStepExecutor(logger *zap.Logger) *StepExecutor {
	return &StepExecutor{logger: logger.Named("executor")}
}

// Execute runs step.Action against el. Failures come back as *StepExecutionError.
func (e *StepExecutor) Execute(ctx context.Context, page browser.Page, step WorkflowStep, el Element) error {
	var err error
	switch step.Action {
	case ActionType:
		err = e.typeText(ctx, page, step, el)
	case ActionClick:
		err = page.Click(ctx, el.Selector)
	case ActionSelect:
		err = page.Select(ctx, el.Selector, step.Value)
	case ActionEvaluate:
		err = page.Evaluate(ctx, browser.ElementScript(el.Selector, step.Script), nil)
	default:
		err = fmt.Errorf("unsupported action %q", step.Action)
	}
	if err != nil {
		return &StepExecutionError{Step: step.Name, Action: step.Action, Err: err}
	}

	value := step.Value
	if step.Sensitive {
		value = "[redacted]"
	}
	e.logger.Debug("Action performed.",
		zap.String("step", step.Name),
		zap.String("action", string(step.Action)),
		zap.String("value", value))
	return nil
}

func (e *StepExecutor) typeText(ctx context.Context, page browser.Page, step WorkflowStep, el Element) error {
	if step.Clear {
		if err := page.Clear(ctx, el.Selector); err != nil {
			return fmt.Errorf("clearing field: %w", err)
		}
	}
	// Click first so the field has focus, as a user would.
	if err := page.Click(ctx, el.Selector); err != nil {
		return fmt.Errorf("focusing field: %w", err)
	}
	if err := page.Type(ctx, el.Selector, step.Value); err != nil {
		return fmt.Errorf("typing: %w", err)
	}
	if step.PressAfter != "" {
		if err := page.Press(ctx, step.PressAfter); err != nil {
			return fmt.Errorf("pressing %s: %w", step.PressAfter, err)
		}
	}
	return nil
}
