// internal/browser/session/cdp_session.go
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/conductor/internal/browser"
)

// cdpSession is a browser driven over the DevTools protocol by chromedp,
// either launched locally or reached through a remote allocator.
type cdpSession struct {
	id     string
	opts   pageOptions
	logger *zap.Logger

	// browserCtx carries the chromedp browser; it is detached from any
	// request context and ends only in Close.
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc

	mu    sync.Mutex
	pages []*cdpPage

	closeOnce sync.Once
	closeErr  error
}

var _ browser.Session = (*cdpSession)(nil)

// startCDPSession connects a chromedp browser on top of an allocator context.
// ctx bounds only the connection attempt. The allocator is released on failure.
func startCDPSession(ctx context.Context, allocCtx context.Context, allocCancel context.CancelFunc, opts pageOptions, logger *zap.Logger, mode string) (*cdpSession, error) {
	id := uuid.NewString()
	log := logger.With(zap.String("session_id", id), zap.String("mode", mode))

	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(log.Sugar().Debugf),
		chromedp.WithErrorf(log.Sugar().Debugf),
	)

	// The first Run allocates the browser, so it must use browserCtx itself.
	if err := startBounded(ctx, browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("connecting to browser: %w", err)
	}

	return &cdpSession{
		id:            id,
		opts:          opts,
		logger:        log,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
	}, nil
}

// startBounded performs a first Run on target, whose cancellation would tear
// down what the Run creates, and gives up early when ctx ends.
func startBounded(ctx context.Context, target context.Context, actions ...chromedp.Action) error {
	done := make(chan error, 1)
	go func() {
		done <- chromedp.Run(target, actions...)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}

func (s *cdpSession) ID() string { return s.id }

// NewPage opens a new tab with the viewport and user agent applied.
func (s *cdpSession) NewPage(ctx context.Context) (browser.Page, error) {
	if s.browserCtx.Err() != nil {
		return nil, browser.ErrPageClosed
	}

	tabCtx, tabCancel := chromedp.NewContext(s.browserCtx)
	idle := newIdleTracker(s.logger.Named("network_idle"))
	chromedp.ListenTarget(tabCtx, idle.handle)

	setup := []chromedp.Action{
		network.Enable(),
		chromedp.EmulateViewport(s.opts.ViewportWidth, s.opts.ViewportHeight),
	}
	if s.opts.UserAgent != "" {
		setup = append(setup, emulation.SetUserAgentOverride(s.opts.UserAgent))
	}

	if err := startBounded(ctx, tabCtx, setup...); err != nil {
		tabCancel()
		return nil, fmt.Errorf("opening tab: %w", err)
	}

	page := &cdpPage{
		ctx:    tabCtx,
		cancel: tabCancel,
		idle:   idle,
		opts:   s.opts,
		logger: s.logger.Named("page"),
	}
	s.mu.Lock()
	s.pages = append(s.pages, page)
	s.mu.Unlock()

	s.logger.Debug("Tab opened.")
	return page, nil
}

// Close shuts the browser down. Only the first call does any work.
func (s *cdpSession) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.logger.Info("Closing session.")

		done := make(chan error, 1)
		go func() {
			done <- chromedp.Cancel(s.browserCtx)
		}()
		select {
		case err := <-done:
			if err != nil {
				s.closeErr = fmt.Errorf("closing browser: %w", err)
			}
		case <-ctx.Done():
			s.closeErr = fmt.Errorf("closing browser: %w", context.Cause(ctx))
		}

		s.mu.Lock()
		for _, page := range s.pages {
			page.cancel()
		}
		s.pages = nil
		s.mu.Unlock()

		s.browserCancel()
		s.allocCancel()
	})
	return s.closeErr
}
