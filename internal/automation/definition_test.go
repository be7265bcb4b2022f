// internal/automation/definition_test.go
package automation

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/conductor/api/schemas"
	"github.com/xkilldash9x/conductor/internal/config"
)

func TestDefaultDefinition(t *testing.T) {
	def, err := DefaultDefinition()
	require.NoError(t, err)
	assert.Equal(t, "incomeconductor", def.Name)

	names := make([]string, 0, len(def.Steps))
	for _, s := range def.Steps {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{
		"username", "password", "login_button",
		"plan_card", "client_link", "profile_link",
		"birthday", "save_changes", "plans_link", "plan_menu", "edit_plan",
		"confirm_ok", "done_button",
		"investment_amount", "clients_tab", "retirement_age", "longevity",
		"retirement_month", "retirement_year", "update_button",
	}, names)

	steps := def.Build(schemas.AutomationInput{Username: "joe@example.com", Password: "pw"},
		config.ClientSelectionConfig{Mode: config.ClientSelectIndex, Index: 1})

	byName := make(map[string]WorkflowStep, len(steps))
	for _, s := range steps {
		byName[s.Name] = s
	}

	t.Run("CredentialsAreCritical", func(t *testing.T) {
		for name, s := range byName {
			critical := name == "username" || name == "password"
			assert.Equal(t, critical, s.Critical, name)
		}
		assert.Equal(t, 3, byName["username"].Attempts)
		assert.Equal(t, "joe@example.com", byName["username"].Value)
		assert.True(t, byName["password"].Sensitive)
		assert.False(t, byName["username"].Sensitive)
	})

	t.Run("EmptyInputUsesDefaults", func(t *testing.T) {
		assert.Equal(t, "07/01/1967", byName["birthday"].Value)
		assert.Equal(t, "130000", byName["investment_amount"].Value)
		assert.Equal(t, "62", byName["retirement_age"].Value)
		assert.Equal(t, "100", byName["longevity"].Value)
		assert.Equal(t, "1", byName["retirement_month"].Value)
		assert.Equal(t, "2030", byName["retirement_year"].Value)
	})

	t.Run("StepDefaultsApply", func(t *testing.T) {
		assert.Equal(t, 2*time.Second, byName["clients_tab"].Timeout)
		assert.Equal(t, 1, byName["clients_tab"].Attempts)
		assert.Equal(t, 500*time.Millisecond, byName["plan_card"].Timeout)
	})

	t.Run("LoginFallsBackToEnter", func(t *testing.T) {
		assert.Equal(t, "Enter", byName["login_button"].FallbackKey)
	})

	t.Run("LongevityIsClearedAndSubmitted", func(t *testing.T) {
		assert.True(t, byName["longevity"].Clear)
		assert.Equal(t, "Enter", byName["longevity"].PressAfter)
	})

	t.Run("AttributeCandidatesCompile", func(t *testing.T) {
		for _, s := range steps {
			for _, c := range s.Candidates {
				if c.Strategy == LocateAttribute {
					_, err := c.CSSSelector()
					assert.NoError(t, err, "%s: %s", s.Name, c)
				}
			}
		}
	})
}

func TestClientSelection(t *testing.T) {
	def, err := DefaultDefinition()
	require.NoError(t, err)

	clientStep := func(sel config.ClientSelectionConfig) WorkflowStep {
		for _, s := range def.Build(schemas.AutomationInput{}, sel) {
			if s.Name == "client_link" {
				return s
			}
		}
		t.Fatal("client_link step missing")
		return WorkflowStep{}
	}

	byIndex := clientStep(config.ClientSelectionConfig{Mode: config.ClientSelectIndex, Index: 4})
	assert.Equal(t, []SelectorCandidate{Nth(`a[href*="/clients/view/"]`, 4)}, byIndex.Candidates)

	first := clientStep(config.ClientSelectionConfig{Mode: config.ClientSelectFirst})
	assert.Equal(t, []SelectorCandidate{Nth(`a[href*="/clients/view/"]`, 0)}, first.Candidates)

	byName := clientStep(config.ClientSelectionConfig{Mode: config.ClientSelectText, Name: "Average, Joe"})
	assert.Equal(t, []SelectorCandidate{WithTextContaining(`a[href*="/clients/view/"]`, "Average, Joe")}, byName.Candidates)

	// Build copies candidates, so the definition keeps its own.
	assert.Equal(t, 1, def.Steps[4].Candidates[0].Index)
}

func TestParseDefinitionErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "NoSteps",
			yaml: "name: empty\nsteps: []\n",
			want: "steps failed 'min' validation",
		},
		{
			name: "UnknownAction",
			yaml: "name: w\nsteps:\n  - name: a\n    action: hover\n    candidates: [{strategy: css, pattern: '#a'}]\n",
			want: "action failed 'oneof' validation",
		},
		{
			name: "UnknownStrategy",
			yaml: "name: w\nsteps:\n  - name: a\n    action: click\n    candidates: [{strategy: xpath, pattern: '//a'}]\n",
			want: "strategy failed 'oneof' validation",
		},
		{
			name: "TypeWithoutValue",
			yaml: "name: w\nsteps:\n  - name: a\n    action: type\n    candidates: [{strategy: css, pattern: '#a'}]\n",
			want: "type step needs a value",
		},
		{
			name: "UnknownField",
			yaml: "name: w\nsteps:\n  - name: a\n    action: type\n    value: {field: ssn}\n    candidates: [{strategy: css, pattern: '#a'}]\n",
			want: `unknown input field "ssn"`,
		},
		{
			name: "EvaluateWithoutScript",
			yaml: "name: w\nsteps:\n  - name: a\n    action: evaluate\n    candidates: [{strategy: css, pattern: '#a'}]\n",
			want: "evaluate step needs a script",
		},
		{
			name: "DuplicateNames",
			yaml: "name: w\nsteps:\n  - name: a\n    action: click\n    candidates: [{strategy: css, pattern: '#a'}]\n  - name: a\n    action: click\n    candidates: [{strategy: css, pattern: '#b'}]\n",
			want: `duplicate step name "a"`,
		},
		{
			name: "UnknownKey",
			yaml: "name: w\nsteps:\n  - name: a\n    action: click\n    selector: '#a'\n    candidates: [{strategy: css, pattern: '#a'}]\n",
			want: "field selector not found",
		},
		{
			name: "TextWithoutText",
			yaml: "name: w\nsteps:\n  - name: a\n    action: click\n    candidates: [{strategy: text, pattern: span}]\n",
			want: "requires text",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseDefinition([]byte(tc.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoadDefinition(t *testing.T) {
	t.Run("EmptyPathUsesEmbedded", func(t *testing.T) {
		def, err := LoadDefinition("")
		require.NoError(t, err)
		assert.Equal(t, "incomeconductor", def.Name)
	})

	t.Run("FromFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "workflow.yaml")
		content := "name: custom\ndefaults: {timeout: 1s, settle: 10ms}\nsteps:\n  - name: go\n    action: click\n    candidates: [{strategy: css, pattern: '#go'}]\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		def, err := LoadDefinition(path)
		require.NoError(t, err)
		steps := def.Build(schemas.AutomationInput{}, config.ClientSelectionConfig{})
		require.Len(t, steps, 1)
		assert.Equal(t, time.Second, steps[0].Timeout)
		assert.Equal(t, 10*time.Millisecond, steps[0].Settle)
		assert.Equal(t, 1, steps[0].Attempts)
	})

	t.Run("MissingFile", func(t *testing.T) {
		_, err := LoadDefinition(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.ErrorContains(t, err, "reading workflow file")
	})
}

func TestValueSource(t *testing.T) {
	in := schemas.AutomationInput{RetirementAge: "65"}
	assert.Equal(t, "65", ValueSource{Field: schemas.FieldRetirementAge, Default: "62"}.Resolve(in))
	assert.Equal(t, "100", ValueSource{Field: schemas.FieldLongevityEstimate, Default: "100"}.Resolve(in))
	assert.Equal(t, "fixed", ValueSource{Constant: "fixed"}.Resolve(in))
}
