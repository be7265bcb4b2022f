// internal/automation/selector.go
package automation

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/conductor/internal/browser"
)

// LocatorStrategy names how a SelectorCandidate's pattern is interpreted.
type LocatorStrategy string

const (
	// LocateCSS uses Pattern as a compound CSS selector.
	LocateCSS LocatorStrategy = "css"
	// LocateAttribute scopes Pattern by an attribute fragment in Text, such as
	// `placeholder*=email`, matched case-insensitively.
	LocateAttribute LocatorStrategy = "attribute"
	// LocateText picks elements matching Pattern whose trimmed text equals Text.
	LocateText LocatorStrategy = "text"
	// LocateTextContains is LocateText with a case-insensitive substring match.
	LocateTextContains LocatorStrategy = "text-contains"
	// LocateIndex picks the Index-th element (0-based) matching Pattern.
	LocateIndex LocatorStrategy = "index"
)

// SelectorCandidate is one locator tried while resolving a step's target.
type SelectorCandidate struct {
	Strategy LocatorStrategy `yaml:"strategy" json:"strategy" validate:"required,oneof=css attribute text text-contains index"`
	Pattern  string          `yaml:"pattern" json:"pattern" validate:"required"`
	Text     string          `yaml:"text,omitempty" json:"text,omitempty"`
	Index    int             `yaml:"index,omitempty" json:"index,omitempty" validate:"gte=0"`
}

// CSS is shorthand for a plain CSS candidate.
func CSS(pattern string) SelectorCandidate {
	return SelectorCandidate{Strategy: LocateCSS, Pattern: pattern}
}

// WithText is shorthand for an exact text match candidate.
func WithText(pattern, text string) SelectorCandidate {
	return SelectorCandidate{Strategy: LocateText, Pattern: pattern, Text: text}
}

// WithTextContaining is shorthand for a case-insensitive substring candidate.
func WithTextContaining(pattern, text string) SelectorCandidate {
	return SelectorCandidate{Strategy: LocateTextContains, Pattern: pattern, Text: text}
}

// Nth is shorthand for an index candidate.
func Nth(pattern string, index int) SelectorCandidate {
	return SelectorCandidate{Strategy: LocateIndex, Pattern: pattern, Index: index}
}

func (c SelectorCandidate) String() string {
	switch c.Strategy {
	case LocateText, LocateTextContains:
		return fmt.Sprintf("%s(%s, %q)", c.Strategy, c.Pattern, c.Text)
	case LocateIndex:
		return fmt.Sprintf("%s(%s, %d)", c.Strategy, c.Pattern, c.Index)
	case LocateAttribute:
		return fmt.Sprintf("%s(%s[%s])", c.Strategy, c.Pattern, c.Text)
	}
	return string(c.Strategy) + "(" + c.Pattern + ")"
}

// Static reports whether the candidate compiles to plain CSS. Other
// candidates are addressed by tagging the matching element first.
func (c SelectorCandidate) Static() bool {
	return c.Strategy == LocateCSS || c.Strategy == LocateAttribute
}

// CSSSelector returns the CSS selector for a static candidate.
func (c SelectorCandidate) CSSSelector() (string, error) {
	switch c.Strategy {
	case LocateCSS:
		return c.Pattern, nil
	case LocateAttribute:
		return attributeSelector(c.Pattern, c.Text)
	}
	return "", fmt.Errorf("candidate %s has no plain CSS form", c)
}

// Match returns the browser.Match used to tag a dynamic candidate's element.
func (c SelectorCandidate) Match() browser.Match {
	switch c.Strategy {
	case LocateText:
		return browser.Match{Selector: c.Pattern, Text: c.Text}
	case LocateTextContains:
		return browser.Match{Selector: c.Pattern, Text: c.Text, Contains: true}
	case LocateIndex:
		return browser.Match{Selector: c.Pattern, Index: c.Index}
	}
	return browser.Match{Selector: c.Pattern}
}

// Validate checks the strategy specific fields.
func (c SelectorCandidate) Validate() error {
	switch c.Strategy {
	case LocateCSS, LocateIndex:
	case LocateText, LocateTextContains:
		if c.Text == "" {
			return fmt.Errorf("candidate %s requires text", c)
		}
	case LocateAttribute:
		if _, err := attributeSelector(c.Pattern, c.Text); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown locator strategy %q", c.Strategy)
	}
	if strings.TrimSpace(c.Pattern) == "" {
		return fmt.Errorf("candidate %s requires a pattern", c)
	}
	return nil
}

var attributeOperators = []string{"*=", "^=", "$=", "~=", "|=", "="}

// attributeSelector compiles scope plus a fragment such as `id*=email` to
// `scope[id*="email" i]`.
func attributeSelector(scope, fragment string) (string, error) {
	for _, op := range attributeOperators {
		name, value, found := strings.Cut(fragment, op)
		if !found {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			break
		}
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		return fmt.Sprintf(`%s[%s%s%s i]`, scope, name, op, browser.CSSString(value)), nil
	}
	return "", fmt.Errorf("attribute fragment %q must look like name*=value", fragment)
}
