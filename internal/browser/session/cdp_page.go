// internal/browser/session/cdp_page.go
package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/xkilldash9x/conductor/internal/browser"
)

// cdpPage implements browser.Page for one chromedp tab.
type cdpPage struct {
	ctx    context.Context // tab context carrying the CDP target
	cancel context.CancelFunc
	idle   *idleTracker
	opts   pageOptions
	logger *zap.Logger
}

var _ browser.Page = (*cdpPage)(nil)

// run executes actions on the tab, canceled by whichever of the tab or ctx ends first.
func (p *cdpPage) run(ctx context.Context, actions ...chromedp.Action) error {
	if p.ctx.Err() != nil {
		return browser.ErrPageClosed
	}
	runCtx, cancel := CombineContext(p.ctx, ctx)
	defer cancel()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if p.ctx.Err() != nil {
			return fmt.Errorf("%w: %v", browser.ErrPageClosed, err)
		}
		return opError(ctx, err)
	}
	return nil
}

// bounded applies the per-action timeout on top of ctx.
func (p *cdpPage) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.opts.ActionTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.opts.ActionTimeout)
}

func evaluateByValue(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithReturnByValue(true).WithAwaitPromise(true)
}

// -- Navigation and Waiting --

func (p *cdpPage) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, p.opts.NavigationTimeout)
	defer cancel()

	// chromedp.Navigate returns after the load event, which also covers
	// the domcontentloaded policy.
	if err := p.run(navCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigating to %s: %w", url, err)
	}

	if p.opts.WaitUntil == browser.ReadyNetworkIdle {
		if err := p.idle.Wait(navCtx, p.opts.PostLoadWait); err != nil {
			return fmt.Errorf("waiting for network idle on %s: %w", url, err)
		}
	}
	return nil
}

func (p *cdpPage) WaitReady(ctx context.Context) error {
	return p.run(ctx, chromedp.WaitReady("body", chromedp.ByQuery))
}

func (p *cdpPage) WaitVisible(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (p *cdpPage) Exists(ctx context.Context, selector string) (bool, error) {
	var found bool
	err := p.Evaluate(ctx, browser.ExistsScript(selector), &found)
	return found, err
}

func (p *cdpPage) ScrollIntoView(ctx context.Context, selector string) error {
	var scrolled bool
	if err := p.Evaluate(ctx, browser.ScrollIntoViewScript(selector), &scrolled); err != nil {
		return err
	}
	if !scrolled {
		return fmt.Errorf("scroll into view: no element matches %q", selector)
	}
	return nil
}

// -- Interaction --

func (p *cdpPage) Click(ctx context.Context, selector string) error {
	opCtx, cancel := p.bounded(ctx)
	defer cancel()
	// NodeReady lets present but not yet visible elements be clicked.
	return p.run(opCtx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeReady))
}

func (p *cdpPage) Clear(ctx context.Context, selector string) error {
	opCtx, cancel := p.bounded(ctx)
	defer cancel()

	selectAllDown := input.DispatchKeyEvent(input.KeyDown).
		WithModifiers(input.ModifierCtrl).
		WithKey("a").
		WithCode("KeyA").
		WithWindowsVirtualKeyCode(65).
		WithCommands([]string{"selectAll"})
	selectAllUp := input.DispatchKeyEvent(input.KeyUp).
		WithModifiers(input.ModifierCtrl).
		WithKey("a").
		WithCode("KeyA").
		WithWindowsVirtualKeyCode(65)

	return p.run(opCtx,
		chromedp.Focus(selector, chromedp.ByQuery, chromedp.NodeReady),
		selectAllDown,
		selectAllUp,
		chromedp.KeyEvent(kb.Backspace),
	)
}

func (p *cdpPage) Type(ctx context.Context, selector, text string) error {
	opCtx, cancel := p.bounded(ctx)
	defer cancel()
	return p.run(opCtx, chromedp.SendKeys(selector, text, chromedp.ByQuery, chromedp.NodeReady))
}

func (p *cdpPage) Press(ctx context.Context, key string) error {
	opCtx, cancel := p.bounded(ctx)
	defer cancel()
	return p.run(opCtx, chromedp.KeyEvent(keyFor(key)))
}

func (p *cdpPage) Select(ctx context.Context, selector, value string) error {
	var ok bool
	if err := p.Evaluate(ctx, browser.SelectScript(selector, value), &ok); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("select %q: option %q not available", selector, value)
	}
	return nil
}

// -- Scripting and Inspection --

func (p *cdpPage) Evaluate(ctx context.Context, script string, res interface{}) error {
	opCtx, cancel := p.bounded(ctx)
	defer cancel()

	// Asking for the remote object keeps undefined and null results from
	// being reported as errors; res is simply left untouched for them.
	var obj *runtime.RemoteObject
	if err := p.run(opCtx, chromedp.Evaluate(script, &obj, evaluateByValue)); err != nil {
		return fmt.Errorf("evaluating script: %w", err)
	}
	if res == nil || obj == nil || len(obj.Value) == 0 {
		return nil
	}
	if err := json.Unmarshal([]byte(obj.Value), res); err != nil {
		return fmt.Errorf("decoding script result: %w", err)
	}
	return nil
}

func (p *cdpPage) Mark(ctx context.Context, m browser.Match, ref string) (bool, error) {
	var marked bool
	err := p.Evaluate(ctx, browser.MarkScript(m, ref), &marked)
	return marked, err
}

func (p *cdpPage) HTML(ctx context.Context) (string, error) {
	opCtx, cancel := p.bounded(ctx)
	defer cancel()

	var html string
	if err := p.run(opCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("reading page html: %w", err)
	}
	return html, nil
}

func (p *cdpPage) Screenshot(ctx context.Context) ([]byte, error) {
	opCtx, cancel := p.bounded(ctx)
	defer cancel()

	var buf []byte
	if err := p.run(opCtx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("capturing screenshot: %w", err)
	}
	return buf, nil
}

func (p *cdpPage) Inputs(ctx context.Context) ([]browser.InputDescriptor, error) {
	var inputs []browser.InputDescriptor
	err := p.Evaluate(ctx, browser.InputsScript, &inputs)
	return inputs, err
}

func (p *cdpPage) URL(ctx context.Context) (string, error) {
	var location string
	err := p.run(ctx, chromedp.Location(&location))
	return location, err
}

func (p *cdpPage) Title(ctx context.Context) (string, error) {
	var title string
	err := p.run(ctx, chromedp.Title(&title))
	return title, err
}

// keyFor maps the key names used in workflow definitions onto chromedp's kb
// constants. Unknown names are sent as literal text.
func keyFor(name string) string {
	switch name {
	case "Enter":
		return kb.Enter
	case "Tab":
		return kb.Tab
	case "Escape":
		return kb.Escape
	case "Backspace":
		return kb.Backspace
	case "Delete":
		return kb.Delete
	case "ArrowDown":
		return kb.ArrowDown
	case "ArrowUp":
		return kb.ArrowUp
	}
	return name
}
