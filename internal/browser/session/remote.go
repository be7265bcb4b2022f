// internal/browser/session/remote.go
package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/conductor/internal/browser"
	"github.com/xkilldash9x/conductor/internal/config"
	"github.com/xkilldash9x/conductor/internal/observability"
)

// ErrTokenMissing is returned by the remote strategies when no token is configured.
var ErrTokenMissing = errors.New("remote browser token is not configured")

// RemoteToken connects to a hosted browser, passing the token in the query string.
type RemoteToken struct {
	endpoint string
	token    string
	opts     pageOptions
	logger   *zap.Logger
}

// NewRemoteToken creates the query-token remote strategy.
func NewRemoteToken(cfg config.BrowserConfig, logger *zap.Logger) *RemoteToken {
	return &RemoteToken{
		endpoint: cfg.RemoteEndpoint,
		token:    cfg.Token,
		opts:     pageOptionsFromConfig(cfg),
		logger:   logger.Named("remote_token"),
	}
}

func (r *RemoteToken) Name() string { return config.StrategyRemoteToken }

func (r *RemoteToken) Connect(ctx context.Context) (browser.Session, error) {
	wsURL, err := tokenURL(r.endpoint, r.token)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("Connecting to remote browser", zap.String("endpoint", r.endpoint), observability.Secret("token", r.token))
	// NoModifyURL keeps chromedp from rewriting the endpoint to a /json/version lookup.
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(Detach(ctx), wsURL, chromedp.NoModifyURL)
	return startCDPSession(ctx, allocCtx, allocCancel, r.opts, r.logger, config.StrategyRemoteToken)
}

// tokenURL adds the token query parameter to endpoint, keeping any existing query.
func tokenURL(endpoint, token string) (string, error) {
	if token == "" {
		return "", ErrTokenMissing
	}
	if endpoint == "" {
		return "", errors.New("remote browser endpoint is not configured")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parsing remote endpoint: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
