// internal/automation/selector_test.go
package automation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/conductor/internal/browser"
)

func TestSelectorCandidateCSS(t *testing.T) {
	tests := []struct {
		name      string
		candidate SelectorCandidate
		want      string
		wantErr   bool
	}{
		{"Plain", CSS(`input[type="email"]`), `input[type="email"]`, false},
		{"AttributeContains", SelectorCandidate{Strategy: LocateAttribute, Pattern: "input", Text: "placeholder*=email"}, `input[placeholder*="email" i]`, false},
		{"AttributeExactQuoted", SelectorCandidate{Strategy: LocateAttribute, Pattern: "button", Text: `name="go"`}, `button[name="go" i]`, false},
		{"AttributePrefix", SelectorCandidate{Strategy: LocateAttribute, Pattern: "a", Text: "href^=/clients"}, `a[href^="/clients" i]`, false},
		{"AttributeAmpersand", SelectorCandidate{Strategy: LocateAttribute, Pattern: "input", Text: "placeholder*=a&b"}, `input[placeholder*="a&b" i]`, false},
		{"AttributeAngleBrackets", SelectorCandidate{Strategy: LocateAttribute, Pattern: "input", Text: "title*=<x>"}, `input[title*="<x>" i]`, false},
		{"AttributeMalformed", SelectorCandidate{Strategy: LocateAttribute, Pattern: "input", Text: "email"}, "", true},
		{"TextHasNoCSS", WithText("span", "Save changes"), "", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.candidate.CSSSelector()
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestSelectorCandidateMatch(t *testing.T) {
	assert.Equal(t, browser.Match{Selector: "span", Text: "Save changes"}, WithText("span", "Save changes").Match())
	assert.Equal(t, browser.Match{Selector: "button", Text: "ok", Contains: true}, WithTextContaining("button", "ok").Match())
	assert.Equal(t, browser.Match{Selector: "a", Index: 1}, Nth("a", 1).Match())

	assert.True(t, CSS("#a").Static())
	assert.False(t, Nth("a", 1).Static())
}

func TestSelectorCandidateValidate(t *testing.T) {
	assert.NoError(t, CSS("#a").Validate())
	assert.NoError(t, Nth("a", 2).Validate())
	assert.Error(t, SelectorCandidate{Strategy: LocateText, Pattern: "span"}.Validate())
	assert.Error(t, SelectorCandidate{Strategy: "xpath", Pattern: "//a"}.Validate())
	assert.Error(t, CSS("  ").Validate())
}

func TestSelectorCandidateString(t *testing.T) {
	assert.Equal(t, "css(#a)", CSS("#a").String())
	assert.Equal(t, `text(span, "Save changes")`, WithText("span", "Save changes").String())
	assert.Equal(t, "index(a, 1)", Nth("a", 1).String())
}
