// internal/automation/definition.go
package automation

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/conductor/api/schemas"
	"github.com/xkilldash9x/conductor/internal/config"
)

//go:embed workflows/incomeconductor.yaml
var defaultWorkflow []byte

// Definition is a workflow as written in YAML. Build binds it to one run's input.
type Definition struct {
	Name     string           `yaml:"name" validate:"required"`
	Defaults StepDefaults     `yaml:"defaults"`
	Steps    []StepDefinition `yaml:"steps" validate:"required,min=1,dive"`
}

// StepDefaults fill in step fields left at zero.
type StepDefaults struct {
	Timeout  time.Duration `yaml:"timeout" validate:"gte=0"`
	Attempts int           `yaml:"attempts" validate:"gte=0"`
	Settle   time.Duration `yaml:"settle" validate:"gte=0"`
}

// StepDefinition is the YAML form of a WorkflowStep.
type StepDefinition struct {
	Name       string              `yaml:"name" validate:"required"`
	Action     Action              `yaml:"action" validate:"required,oneof=type click select evaluate"`
	Candidates []SelectorCandidate `yaml:"candidates" validate:"required,min=1,dive"`
	Value      *ValueSource        `yaml:"value,omitempty"`
	Timeout    time.Duration       `yaml:"timeout,omitempty" validate:"gte=0"`
	Attempts   int                 `yaml:"attempts,omitempty" validate:"gte=0"`
	Critical   bool                `yaml:"critical,omitempty"`
	Settle     time.Duration       `yaml:"settle,omitempty" validate:"gte=0"`
	Clear      bool                `yaml:"clear,omitempty"`
	PressAfter string              `yaml:"press_after,omitempty"`
	// FallbackKey is pressed when the target cannot be found.
	FallbackKey string `yaml:"fallback_key,omitempty"`
	Script      string `yaml:"script,omitempty"`
	// ClientSelection replaces the candidates' index or text with the
	// configured client selection policy.
	ClientSelection bool `yaml:"client_selection,omitempty"`
}

var definitionValidator = newDefinitionValidator()

func newDefinitionValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// DefaultDefinition returns the embedded workflow.
func DefaultDefinition() (*Definition, error) {
	return ParseDefinition(defaultWorkflow)
}

// LoadDefinition reads a workflow file, or the embedded workflow when path is empty.
func LoadDefinition(path string) (*Definition, error) {
	if path == "" {
		return DefaultDefinition()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading workflow file: %w", err)
	}
	def, err := ParseDefinition(data)
	if err != nil {
		return nil, fmt.Errorf("workflow file %s: %w", path, err)
	}
	return def, nil
}

// ParseDefinition decodes and validates a YAML workflow. Unknown keys are rejected.
func ParseDefinition(data []byte) (*Definition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var def Definition
	if err := dec.Decode(&def); err != nil {
		return nil, fmt.Errorf("decoding workflow: %w", err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// Validate checks the struct tags and the rules between fields.
func (d *Definition) Validate() error {
	if err := definitionValidator.Struct(d); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			key := strings.TrimPrefix(fe.Namespace(), "Definition.")
			msgs = append(msgs, fmt.Sprintf("%s failed '%s' validation", key, fe.Tag()))
		}
		return fmt.Errorf("invalid workflow: %s", strings.Join(msgs, "; "))
	}

	seen := make(map[string]bool, len(d.Steps))
	for i, s := range d.Steps {
		if seen[s.Name] {
			return fmt.Errorf("invalid workflow: steps[%d]: duplicate step name %q", i, s.Name)
		}
		seen[s.Name] = true
		if err := s.validate(); err != nil {
			return fmt.Errorf("invalid workflow: steps[%d] (%s): %w", i, s.Name, err)
		}
	}
	return nil
}

func (s StepDefinition) validate() error {
	for j, c := range s.Candidates {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("candidates[%d]: %w", j, err)
		}
	}
	switch s.Action {
	case ActionType, ActionSelect:
		if s.Value == nil {
			return fmt.Errorf("%s step needs a value", s.Action)
		}
		if s.Value.Field != "" {
			if _, ok := (schemas.AutomationInput{}).Field(s.Value.Field); !ok {
				return fmt.Errorf("unknown input field %q", s.Value.Field)
			}
		}
	case ActionEvaluate:
		if strings.TrimSpace(s.Script) == "" {
			return errors.New("evaluate step needs a script")
		}
	}
	return nil
}

// Build binds the definition to a run's input and the client selection
// policy. The returned steps are independent of the definition.
func (d *Definition) Build(in schemas.AutomationInput, sel config.ClientSelectionConfig) []WorkflowStep {
	steps := make([]WorkflowStep, 0, len(d.Steps))
	for _, s := range d.Steps {
		step := WorkflowStep{
			Name:        s.Name,
			Action:      s.Action,
			Candidates:  append([]SelectorCandidate(nil), s.Candidates...),
			Timeout:     firstDuration(s.Timeout, d.Defaults.Timeout),
			Attempts:    firstInt(s.Attempts, d.Defaults.Attempts, 1),
			Critical:    s.Critical,
			Settle:      firstDuration(s.Settle, d.Defaults.Settle),
			Clear:       s.Clear,
			PressAfter:  s.PressAfter,
			FallbackKey: s.FallbackKey,
			Script:      s.Script,
		}
		if s.Value != nil {
			step.Value = s.Value.Resolve(in)
			step.Sensitive = s.Value.Field == schemas.FieldPassword
		}
		if s.ClientSelection {
			step.Candidates = applyClientSelection(step.Candidates, sel)
		}
		steps = append(steps, step)
	}
	return steps
}

// applyClientSelection points each candidate at the configured client entry.
func applyClientSelection(candidates []SelectorCandidate, sel config.ClientSelectionConfig) []SelectorCandidate {
	out := make([]SelectorCandidate, 0, len(candidates))
	for _, c := range candidates {
		switch sel.Mode {
		case config.ClientSelectText:
			out = append(out, WithTextContaining(c.Pattern, sel.Name))
		case config.ClientSelectFirst:
			out = append(out, Nth(c.Pattern, 0))
		default:
			out = append(out, Nth(c.Pattern, sel.Index))
		}
	}
	return out
}

func firstDuration(values ...time.Duration) time.Duration {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

func firstInt(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
