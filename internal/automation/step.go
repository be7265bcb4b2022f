// internal/automation/step.go
package automation

import (
	"time"

	"github.com/xkilldash9x/conductor/api/schemas"
)

// Action is what a step does with its resolved element.
type Action string

const (
	ActionType     Action = "type"
	ActionClick    Action = "click"
	ActionSelect   Action = "select"
	ActionEvaluate Action = "evaluate"
)

// ValueSource says where a type or select step gets its text: an input
// field when Field is set, otherwise Constant. Default replaces an empty
// input value.
type ValueSource struct {
	Field    string `yaml:"field,omitempty" json:"field,omitempty"`
	Constant string `yaml:"constant,omitempty" json:"constant,omitempty"`
	Default  string `yaml:"default,omitempty" json:"default,omitempty"`
}

// Resolve returns the value for one run.
func (v ValueSource) Resolve(in schemas.AutomationInput) string {
	if v.Field == "" {
		return v.Constant
	}
	if value, _ := in.Field(v.Field); value != "" {
		return value
	}
	return v.Default
}

// WorkflowStep is one resolve, act and settle unit, bound to a run's input.
// Steps are built by Definition.Build and not modified afterwards.
type WorkflowStep struct {
	Name       string
	Action     Action
	Candidates []SelectorCandidate
	// Value is the resolved text for type and select steps.
	Value string
	// Sensitive values are never logged.
	Sensitive bool
	// Timeout bounds the visibility wait of each candidate.
	Timeout  time.Duration
	Attempts int
	Critical bool
	Settle   time.Duration

	// Clear empties the field with key events before typing.
	Clear bool
	// PressAfter is a key sent once the text has been typed.
	PressAfter string
	// FallbackKey is pressed when no candidate resolves.
	FallbackKey string
	// Script is a function body run with the element bound to el.
	Script string
}
