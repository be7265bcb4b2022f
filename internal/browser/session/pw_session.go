// internal/browser/session/pw_session.go
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/conductor/internal/browser"
	"github.com/xkilldash9x/conductor/internal/config"
	"github.com/xkilldash9x/conductor/internal/observability"
)

// RemoteHeader connects to a hosted browser over CDP through the Playwright
// driver, sending the token as a bearer Authorization header.
type RemoteHeader struct {
	endpoint string
	token    string
	opts     pageOptions
	logger   *zap.Logger
}

// NewRemoteHeader creates the header-token remote strategy.
func NewRemoteHeader(cfg config.BrowserConfig, logger *zap.Logger) *RemoteHeader {
	return &RemoteHeader{
		endpoint: cfg.RemoteEndpoint,
		token:    cfg.Token,
		opts:     pageOptionsFromConfig(cfg),
		logger:   logger.Named("remote_header"),
	}
}

func (r *RemoteHeader) Name() string { return config.StrategyRemoteHeader }

func (r *RemoteHeader) Connect(ctx context.Context) (browser.Session, error) {
	headers, err := authHeaders(r.endpoint, r.token)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.logger.Debug("Connecting to remote browser over CDP", zap.String("endpoint", r.endpoint), observability.Secret("token", r.token))
	pw, err := playwright.Run(&playwright.RunOptions{Verbose: false})
	if err != nil {
		return nil, fmt.Errorf("starting playwright driver: %w", err)
	}

	remote, err := pw.Chromium.ConnectOverCDP(r.endpoint, playwright.BrowserTypeConnectOverCDPOptions{
		Headers: headers,
		Timeout: timeoutFor(ctx, 0),
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("connecting over CDP: %w", err)
	}

	contextOpts := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  int(r.opts.ViewportWidth),
			Height: int(r.opts.ViewportHeight),
		},
	}
	if r.opts.UserAgent != "" {
		contextOpts.UserAgent = playwright.String(r.opts.UserAgent)
	}
	bctx, err := remote.NewContext(contextOpts)
	if err != nil {
		_ = remote.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("creating browser context: %w", err)
	}

	id := uuid.NewString()
	return &pwSession{
		id:      id,
		pw:      pw,
		browser: remote,
		context: bctx,
		opts:    r.opts,
		logger:  r.logger.With(zap.String("session_id", id), zap.String("mode", config.StrategyRemoteHeader)),
	}, nil
}

// authHeaders builds the CDP handshake headers for a bearer token.
func authHeaders(endpoint, token string) (map[string]string, error) {
	if token == "" {
		return nil, ErrTokenMissing
	}
	if endpoint == "" {
		return nil, errors.New("remote browser endpoint is not configured")
	}
	return map[string]string{"Authorization": "Bearer " + token}, nil
}

// timeoutFor converts the time left on ctx into a Playwright timeout in
// milliseconds, capped by limit when limit is positive. Nil means the
// Playwright default applies.
func timeoutFor(ctx context.Context, limit time.Duration) *float64 {
	remaining := limit
	if deadline, ok := ctx.Deadline(); ok {
		left := time.Until(deadline)
		if left <= 0 {
			left = time.Millisecond
		}
		if remaining <= 0 || left < remaining {
			remaining = left
		}
	}
	if remaining <= 0 {
		return nil
	}
	return playwright.Float(float64(remaining.Milliseconds()))
}

// pwSession is a remote browser driven through a Playwright BrowserContext.
type pwSession struct {
	id      string
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	opts    pageOptions
	logger  *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

var _ browser.Session = (*pwSession)(nil)

func (s *pwSession) ID() string { return s.id }

func (s *pwSession) NewPage(ctx context.Context) (browser.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	page, err := s.context.NewPage()
	if err != nil {
		return nil, fmt.Errorf("opening tab: %w", pwError(err))
	}
	s.logger.Debug("Tab opened.")
	return &pwPage{page: page, opts: s.opts, logger: s.logger.Named("page")}, nil
}

// Close tears down the context, the browser connection and the driver, in
// that order. Only the first call does any work.
func (s *pwSession) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.logger.Info("Closing session.")
		done := make(chan error, 1)
		go func() {
			done <- errors.Join(
				ignoreClosed(s.context.Close()),
				ignoreClosed(s.browser.Close()),
				s.pw.Stop(),
			)
		}()
		select {
		case err := <-done:
			if err != nil {
				s.closeErr = fmt.Errorf("closing browser: %w", err)
			}
		case <-ctx.Done():
			s.closeErr = fmt.Errorf("closing browser: %w", context.Cause(ctx))
		}
	})
	return s.closeErr
}

// pwError maps a closed target onto browser.ErrPageClosed.
func pwError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, playwright.ErrTargetClosed) {
		return fmt.Errorf("%w: %v", browser.ErrPageClosed, err)
	}
	return err
}

func ignoreClosed(err error) error {
	if errors.Is(err, playwright.ErrTargetClosed) {
		return nil
	}
	return err
}
