// internal/browser/session/pw_page.go
package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/conductor/internal/browser"
)

// pwPage implements browser.Page on top of a Playwright page. Playwright
// calls are not context aware, so each call derives its timeout from ctx.
type pwPage struct {
	page   playwright.Page
	opts   pageOptions
	logger *zap.Logger
}

var _ browser.Page = (*pwPage)(nil)

// ready fails fast when ctx is done or the page is gone.
func (p *pwPage) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.page.IsClosed() {
		return browser.ErrPageClosed
	}
	return nil
}

func (p *pwPage) first(selector string) playwright.Locator {
	return p.page.Locator(selector).First()
}

func waitUntilFor(policy browser.ReadinessPolicy) *playwright.WaitUntilState {
	switch policy {
	case browser.ReadyDOMContentLoaded:
		return playwright.WaitUntilStateDomcontentloaded
	case browser.ReadyNetworkIdle:
		return playwright.WaitUntilStateNetworkidle
	default:
		return playwright.WaitUntilStateLoad
	}
}

func (p *pwPage) Navigate(ctx context.Context, url string) error {
	if err := p.ready(ctx); err != nil {
		return err
	}
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: waitUntilFor(p.opts.WaitUntil),
		Timeout:   timeoutFor(ctx, p.opts.NavigationTimeout),
	})
	if err != nil {
		return fmt.Errorf("navigating to %s: %w", url, pwError(err))
	}
	return nil
}

func (p *pwPage) WaitReady(ctx context.Context) error {
	if err := p.ready(ctx); err != nil {
		return err
	}
	return pwError(p.first("body").WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateAttached,
		Timeout: timeoutFor(ctx, 0),
	}))
}

func (p *pwPage) WaitVisible(ctx context.Context, selector string) error {
	if err := p.ready(ctx); err != nil {
		return err
	}
	return pwError(p.first(selector).WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: timeoutFor(ctx, 0),
	}))
}

func (p *pwPage) Exists(ctx context.Context, selector string) (bool, error) {
	if err := p.ready(ctx); err != nil {
		return false, err
	}
	n, err := p.page.Locator(selector).Count()
	if err != nil {
		return false, pwError(err)
	}
	return n > 0, nil
}

func (p *pwPage) ScrollIntoView(ctx context.Context, selector string) error {
	if err := p.ready(ctx); err != nil {
		return err
	}
	return pwError(p.first(selector).ScrollIntoViewIfNeeded(playwright.LocatorScrollIntoViewIfNeededOptions{
		Timeout: timeoutFor(ctx, p.opts.ActionTimeout),
	}))
}

func (p *pwPage) Click(ctx context.Context, selector string) error {
	if err := p.ready(ctx); err != nil {
		return err
	}
	return pwError(p.first(selector).Click(playwright.LocatorClickOptions{
		Timeout: timeoutFor(ctx, p.opts.ActionTimeout),
	}))
}

func (p *pwPage) Clear(ctx context.Context, selector string) error {
	if err := p.ready(ctx); err != nil {
		return err
	}
	if err := p.first(selector).Focus(playwright.LocatorFocusOptions{
		Timeout: timeoutFor(ctx, p.opts.ActionTimeout),
	}); err != nil {
		return pwError(err)
	}
	kbd := p.page.Keyboard()
	if err := kbd.Press("Control+A"); err != nil {
		return pwError(err)
	}
	return pwError(kbd.Press("Backspace"))
}

func (p *pwPage) Type(ctx context.Context, selector, text string) error {
	if err := p.ready(ctx); err != nil {
		return err
	}
	return pwError(p.first(selector).PressSequentially(text, playwright.LocatorPressSequentiallyOptions{
		Timeout: timeoutFor(ctx, p.opts.ActionTimeout),
	}))
}

func (p *pwPage) Press(ctx context.Context, key string) error {
	if err := p.ready(ctx); err != nil {
		return err
	}
	return pwError(p.page.Keyboard().Press(key))
}

func (p *pwPage) Select(ctx context.Context, selector, value string) error {
	if err := p.ready(ctx); err != nil {
		return err
	}
	values := []string{value}
	selected, err := p.first(selector).SelectOption(playwright.SelectOptionValues{Values: &values},
		playwright.LocatorSelectOptionOptions{Timeout: timeoutFor(ctx, p.opts.ActionTimeout)})
	if err != nil {
		return pwError(err)
	}
	if len(selected) == 0 {
		return fmt.Errorf("select %q: option %q not available", selector, value)
	}
	return nil
}

func (p *pwPage) Evaluate(ctx context.Context, script string, res interface{}) error {
	if err := p.ready(ctx); err != nil {
		return err
	}
	out, err := p.page.Evaluate(script)
	if err != nil {
		return fmt.Errorf("evaluating script: %w", pwError(err))
	}
	if res == nil || out == nil {
		return nil
	}
	// Round trip through JSON so res gets the same decoding as the CDP adapter.
	raw, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("encoding script result: %w", err)
	}
	if err := json.Unmarshal(raw, res); err != nil {
		return fmt.Errorf("decoding script result: %w", err)
	}
	return nil
}

func (p *pwPage) Mark(ctx context.Context, m browser.Match, ref string) (bool, error) {
	var marked bool
	err := p.Evaluate(ctx, browser.MarkScript(m, ref), &marked)
	return marked, err
}

func (p *pwPage) HTML(ctx context.Context) (string, error) {
	if err := p.ready(ctx); err != nil {
		return "", err
	}
	html, err := p.page.Content()
	if err != nil {
		return "", fmt.Errorf("reading page html: %w", pwError(err))
	}
	return html, nil
}

func (p *pwPage) Screenshot(ctx context.Context) ([]byte, error) {
	if err := p.ready(ctx); err != nil {
		return nil, err
	}
	buf, err := p.page.Screenshot(playwright.PageScreenshotOptions{
		Timeout: timeoutFor(ctx, p.opts.ActionTimeout),
	})
	if err != nil {
		return nil, fmt.Errorf("capturing screenshot: %w", pwError(err))
	}
	return buf, nil
}

func (p *pwPage) Inputs(ctx context.Context) ([]browser.InputDescriptor, error) {
	var inputs []browser.InputDescriptor
	err := p.Evaluate(ctx, browser.InputsScript, &inputs)
	return inputs, err
}

func (p *pwPage) URL(ctx context.Context) (string, error) {
	if err := p.ready(ctx); err != nil {
		return "", err
	}
	return p.page.URL(), nil
}

func (p *pwPage) Title(ctx context.Context) (string, error) {
	if err := p.ready(ctx); err != nil {
		return "", err
	}
	title, err := p.page.Title()
	return title, pwError(err)
}
