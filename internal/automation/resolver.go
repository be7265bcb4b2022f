// internal/automation/resolver.go
package automation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/conductor/internal/browser"
	"github.com/xkilldash9x/conductor/internal/config"
)

const (
	// defaultVisibleTimeout bounds a candidate's visibility wait when the
	// step does not set one.
	defaultVisibleTimeout = 2 * time.Second
	markPollInterval      = 100 * time.Millisecond
)

// ResolverOptions are the waits applied around each resolution attempt.
type ResolverOptions struct {
	ReadinessTimeout time.Duration
	ReadinessPause   time.Duration
	RetryDelay       time.Duration
	ScrollPause      time.Duration
}

// ResolverOptionsFromConfig copies the resolver waits out of the automation config.
func ResolverOptionsFromConfig(cfg config.AutomationConfig) ResolverOptions {
	return ResolverOptions{
		ReadinessTimeout: cfg.ReadinessTimeout,
		ReadinessPause:   cfg.ReadinessPause,
		RetryDelay:       cfg.RetryDelay,
		ScrollPause:      cfg.ScrollPause,
	}
}

// Element is a resolved target. Selector addresses it on the page.
type Element struct {
	Selector  string
	Candidate int
	// Visible is false when the element was only found in the DOM.
	Visible bool
}

// Resolver locates a step's target from its ordered candidates.
type Resolver struct {
	opts   ResolverOptions
	diag   *Diagnostics
	logger *zap.Logger
	newRef func() string
}

// NewResolver creates a resolver. diag may be nil to skip diagnostics.
func NewResolver(opts ResolverOptions, diag *Diagnostics, logger *zap.Logger) *Resolver {
	return &Resolver{
		opts:   opts,
		diag:   diag,
		logger: logger.Named("resolver"),
		newRef: uuid.NewString,
	}
}

// Resolve makes up to attempts passes over candidates. Within a pass the
// first visible candidate wins; failing that, the first candidate present
// in the DOM is scrolled into view and returned. A target that is never
// found yields a *SelectorNotFoundError; any other error means the page or
// ctx is gone.
func (r *Resolver) Resolve(ctx context.Context, page browser.Page, candidates []SelectorCandidate, name string, attempts int, timeout time.Duration) (Element, error) {
	if attempts < 1 {
		attempts = 1
	}
	if timeout <= 0 {
		timeout = defaultVisibleTimeout
	}
	refBase := r.newRef()
	log := r.logger.With(zap.String("step", name))

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Element{}, context.Cause(ctx)
		}
		alog := log.With(zap.Int("attempt", attempt))
		alog.Debug("Resolving target.", zap.Int("candidates", len(candidates)))

		r.awaitReadiness(ctx, page)
		if err := sleep(ctx, r.opts.ReadinessPause); err != nil {
			return Element{}, err
		}

		el, err := r.scan(ctx, page, candidates, refBase, timeout, alog)
		if err == nil {
			alog.Debug("Target resolved.",
				zap.Int("candidate", el.Candidate),
				zap.Stringer("locator", candidates[el.Candidate]),
				zap.Bool("visible", el.Visible))
			return el, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return Element{}, err
		}

		if attempt == 1 && r.diag != nil {
			r.diag.Snapshot(ctx, page, name, attempt)
		}
		if attempt < attempts {
			alog.Debug("No candidate matched, retrying.", zap.Duration("delay", r.opts.RetryDelay))
			if err := sleep(ctx, r.opts.RetryDelay); err != nil {
				return Element{}, err
			}
		}
	}

	if r.diag != nil {
		r.diag.Exhausted(ctx, page, name, attempts)
	}
	return Element{}, &SelectorNotFoundError{Step: name, Attempts: attempts}
}

// awaitReadiness gives the document a bounded chance to settle. Failures are
// ignored; the candidate probes surface real problems.
func (r *Resolver) awaitReadiness(ctx context.Context, page browser.Page) {
	readyCtx := ctx
	if r.opts.ReadinessTimeout > 0 {
		var cancel context.CancelFunc
		readyCtx, cancel = context.WithTimeout(ctx, r.opts.ReadinessTimeout)
		defer cancel()
	}
	if err := page.WaitReady(readyCtx); err != nil {
		r.logger.Debug("Readiness wait did not complete.", zap.Error(err))
	}
}

// scan runs one pass over the candidates.
func (r *Resolver) scan(ctx context.Context, page browser.Page, candidates []SelectorCandidate, refBase string, timeout time.Duration, log *zap.Logger) (Element, error) {
	var present *Element
	for i, c := range candidates {
		ref := fmt.Sprintf("%s-%d", refBase, i)
		sel, visible, found, err := r.probe(ctx, page, c, ref, timeout)
		if err != nil {
			if fatalProbe(ctx, err) {
				return Element{}, err
			}
			log.Debug("Candidate probe failed.", zap.Int("candidate", i), zap.Stringer("locator", c), zap.Error(err))
			continue
		}
		if visible {
			return Element{Selector: sel, Candidate: i, Visible: true}, nil
		}
		if found && present == nil {
			present = &Element{Selector: sel, Candidate: i}
		}
	}

	if present == nil {
		return Element{}, ErrNotFound
	}
	if err := page.ScrollIntoView(ctx, present.Selector); err != nil {
		if fatalProbe(ctx, err) {
			return Element{}, err
		}
		log.Debug("Scroll into view failed.", zap.Int("candidate", present.Candidate), zap.Error(err))
	}
	if err := sleep(ctx, r.opts.ScrollPause); err != nil {
		return Element{}, err
	}
	return *present, nil
}

// probe checks one candidate: a visibility wait bounded by timeout, then a
// presence check.
func (r *Resolver) probe(ctx context.Context, page browser.Page, c SelectorCandidate, ref string, timeout time.Duration) (sel string, visible, found bool, err error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if c.Static() {
		sel, err = c.CSSSelector()
		if err != nil {
			return "", false, false, err
		}
		if err := page.WaitVisible(waitCtx, sel); err == nil {
			return sel, true, true, nil
		} else if fatalProbe(ctx, err) {
			return "", false, false, err
		}
		found, err = page.Exists(ctx, sel)
		return sel, false, found, err
	}

	sel = browser.RefSelector(ref)
	marked, err := pollMark(waitCtx, page, c.Match(), ref)
	if err != nil && fatalProbe(ctx, err) {
		return "", false, false, err
	}
	if marked {
		if err := page.WaitVisible(waitCtx, sel); err == nil {
			return sel, true, true, nil
		} else if fatalProbe(ctx, err) {
			return "", false, false, err
		}
	}
	found, err = page.Mark(ctx, c.Match(), ref)
	return sel, false, found, err
}

// pollMark retries Mark until it tags an element or ctx ends.
func pollMark(ctx context.Context, page browser.Page, m browser.Match, ref string) (bool, error) {
	for {
		marked, err := page.Mark(ctx, m, ref)
		if err != nil || marked {
			return marked, err
		}
		if err := sleep(ctx, markPollInterval); err != nil {
			return false, nil
		}
	}
}

// fatalProbe reports whether a probe error should stop resolution: the page
// is gone or the caller's ctx has ended.
func fatalProbe(ctx context.Context, err error) bool {
	return errors.Is(err, browser.ErrPageClosed) || ctx.Err() != nil
}
