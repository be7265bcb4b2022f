// internal/automation/helpers_test.go
package automation

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"go.uber.org/goleak"

	"github.com/xkilldash9x/conductor/internal/browser"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// -- Fake Page --

// fakeElement is one node of the fake DOM, keyed by the CSS selector that finds it.
type fakeElement struct {
	visible bool
}

// fakePage is an in-memory browser.Page. WaitVisible blocks until ctx ends
// for hidden or missing elements, like a real visibility wait.
type fakePage struct {
	mu       sync.Mutex
	elements map[string]fakeElement
	// matches maps a dynamic match onto the element key it finds.
	matches map[browser.Match]string
	marks   map[string]string
	html    string
	closed  bool

	failOn map[string]error
	calls  []string
}

func newFakePage() *fakePage {
	return &fakePage{
		elements: make(map[string]fakeElement),
		matches:  make(map[browser.Match]string),
		marks:    make(map[string]string),
		failOn:   make(map[string]error),
	}
}

func (p *fakePage) add(selector string, visible bool) *fakePage {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.elements[selector] = fakeElement{visible: visible}
	return p
}

func (p *fakePage) addMatch(m browser.Match, key string, visible bool) *fakePage {
	p.add(key, visible)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.matches[m] = key
	return p
}

func (p *fakePage) fail(op string, err error) *fakePage {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failOn[op] = err
	return p
}

func (p *fakePage) record(op string, args ...interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	call := op
	for _, a := range args {
		call += fmt.Sprintf(" %v", a)
	}
	p.calls = append(p.calls, call)
	if p.closed {
		return browser.ErrPageClosed
	}
	return p.failOn[op]
}

func (p *fakePage) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *fakePage) lookup(selector string) (fakeElement, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if key, ok := p.marks[selector]; ok {
		selector = key
	}
	el, ok := p.elements[selector]
	return el, ok
}

func (p *fakePage) Navigate(_ context.Context, url string) error { return p.record("Navigate", url) }
func (p *fakePage) WaitReady(context.Context) error { return p.record("WaitReady") }

func (p *fakePage) WaitVisible(ctx context.Context, selector string) error {
	if err := p.record("WaitVisible", selector); err != nil {
		return err
	}
	if el, ok := p.lookup(selector); ok && el.visible {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (p *fakePage) Exists(_ context.Context, selector string) (bool, error) {
	if err := p.record("Exists", selector); err != nil {
		return false, err
	}
	_, ok := p.lookup(selector)
	return ok, nil
}

func (p *fakePage) ScrollIntoView(_ context.Context, selector string) error {
	return p.record("ScrollIntoView", selector)
}

func (p *fakePage) Click(_ context.Context, selector string) error {
	return p.record("Click", selector)
}

func (p *fakePage) Clear(_ context.Context, selector string) error {
	return p.record("Clear", selector)
}

func (p *fakePage) Type(_ context.Context, selector, text string) error {
	return p.record("Type", selector, text)
}

func (p *fakePage) Press(_ context.Context, key string) error { return p.record("Press", key) }

func (p *fakePage) Select(_ context.Context, selector, value string) error {
	return p.record("Select", selector, value)
}

func (p *fakePage) Evaluate(_ context.Context, script string, _ interface{}) error {
	return p.record("Evaluate", script)
}

func (p *fakePage) Mark(_ context.Context, m browser.Match, ref string) (bool, error) {
	if err := p.record("Mark", m.Selector); err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	key, ok := p.matches[m]
	if !ok {
		return false, nil
	}
	p.marks[browser.RefSelector(ref)] = key
	return true, nil
}

func (p *fakePage) HTML(ctx context.Context) (string, error) {
	if err := p.record("HTML"); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.html, nil
}

func (p *fakePage) Screenshot(context.Context) ([]byte, error) {
	if err := p.record("Screenshot"); err != nil {
		return nil, err
	}
	return []byte("\x89PNG"), nil
}

func (p *fakePage) Inputs(context.Context) ([]browser.InputDescriptor, error) {
	if err := p.record("Inputs"); err != nil {
		return nil, err
	}
	return []browser.InputDescriptor{{Type: "text", Name: "q"}}, nil
}

func (p *fakePage) URL(context.Context) (string, error) {
	return "https://app.example.com/login", p.record("URL")
}

func (p *fakePage) Title(context.Context) (string, error) {
	return "Sign in", p.record("Title")
}

func (p *fakePage) countCalls(prefix string) int {
	n := 0
	for _, c := range p.Calls() {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

// -- Fake Session and Provider --

type fakeSession struct {
	page       *fakePage
	newPageErr error
	closes     atomic.Int32
}

func (s *fakeSession) ID() string { return "fake-session" }

func (s *fakeSession) NewPage(context.Context) (browser.Page, error) {
	if s.newPageErr != nil {
		return nil, s.newPageErr
	}
	return s.page, nil
}

func (s *fakeSession) Close(context.Context) error {
	s.closes.Add(1)
	return nil
}

type fakeProvider struct {
	session  *fakeSession
	err      error
	acquired atomic.Int32
}

func (f *fakeProvider) Acquire(context.Context) (browser.Session, error) {
	f.acquired.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.session, nil
}
