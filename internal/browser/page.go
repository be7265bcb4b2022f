// internal/browser/page.go
package browser

import (
	"context"
	"errors"
)

// ErrPageClosed is returned by a Page once its underlying target has gone away.
// Callers treat it as an infrastructure failure rather than a missing element.
var ErrPageClosed = errors.New("browser page is closed")

// ReadinessPolicy selects the navigation event a Page waits for.
type ReadinessPolicy string

const (
	ReadyLoad             ReadinessPolicy = "load"
	ReadyDOMContentLoaded ReadinessPolicy = "domcontentloaded"
	ReadyNetworkIdle      ReadinessPolicy = "networkidle"
)

// Page is a single browser tab as seen by the automation engine.
//
// Selectors are CSS selectors. Every operation acts on the first element the
// selector matches and honours ctx for cancellation.
type Page interface {
	// Navigate loads url and waits according to the session's readiness policy.
	Navigate(ctx context.Context, url string) error
	// WaitReady blocks until the document has a body.
	WaitReady(ctx context.Context) error
	// WaitVisible blocks until selector matches a visible element.
	WaitVisible(ctx context.Context, selector string) error
	// Exists reports whether selector matches any element right now.
	Exists(ctx context.Context, selector string) (bool, error)
	ScrollIntoView(ctx context.Context, selector string) error
	Click(ctx context.Context, selector string) error
	// Clear focuses the element, selects all of its content and deletes it
	// using key events so framework bound inputs observe the change.
	Clear(ctx context.Context, selector string) error
	Type(ctx context.Context, selector, text string) error
	// Press sends a single named key (for example "Enter") to the focused element.
	Press(ctx context.Context, key string) error
	// Select chooses the option with the given value in a <select> element.
	Select(ctx context.Context, selector, value string) error
	// Evaluate runs a JavaScript expression and decodes its result into res, which may be nil.
	Evaluate(ctx context.Context, script string, res interface{}) error
	// Mark tags the element described by m with ref (see RefSelector) and
	// reports whether such an element was found.
	Mark(ctx context.Context, m Match, ref string) (bool, error)
	HTML(ctx context.Context) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)
	// Inputs lists every <input> element on the page.
	Inputs(ctx context.Context) ([]InputDescriptor, error)
	URL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
}

// Session owns a connected browser. Close is safe to call more than once.
type Session interface {
	ID() string
	NewPage(ctx context.Context) (Page, error)
	Close(ctx context.Context) error
}

// InputDescriptor summarises an <input> element for diagnostics.
type InputDescriptor struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	ID          string `json:"id"`
	Placeholder string `json:"placeholder"`
	ClassName   string `json:"className"`
}
