// internal/browser/session/factory.go
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/conductor/internal/browser"
	"github.com/xkilldash9x/conductor/internal/config"
)

// Strategy is one way of obtaining a connected browser.
type Strategy interface {
	Name() string
	Connect(ctx context.Context) (browser.Session, error)
}

// ConnectError is returned by Factory.Acquire when every strategy failed.
// It unwraps to the individual strategy failures.
type ConnectError struct {
	err error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("browser connection failed: %v", e.err)
}

func (e *ConnectError) Unwrap() error { return e.err }

// pageOptions are the per-tab settings every adapter applies.
type pageOptions struct {
	ViewportWidth     int64
	ViewportHeight    int64
	UserAgent         string
	NavigationTimeout time.Duration
	ActionTimeout     time.Duration
	WaitUntil         browser.ReadinessPolicy
	PostLoadWait      time.Duration
}

func pageOptionsFromConfig(cfg config.BrowserConfig) pageOptions {
	return pageOptions{
		ViewportWidth:     int64(cfg.Viewport.Width),
		ViewportHeight:    int64(cfg.Viewport.Height),
		UserAgent:         cfg.UserAgent,
		NavigationTimeout: cfg.NavigationTimeout,
		ActionTimeout:     cfg.ActionTimeout,
		WaitUntil:         browser.ReadinessPolicy(cfg.WaitUntil),
		PostLoadWait:      cfg.PostLoadWait,
	}
}

// Factory acquires sessions by trying its strategies in order.
type Factory struct {
	strategies     []Strategy
	connectTimeout time.Duration
	logger         *zap.Logger
}

// NewFactory builds a factory over an explicit strategy list. A zero
// connectTimeout leaves each attempt bounded only by the caller's context.
func NewFactory(logger *zap.Logger, connectTimeout time.Duration, strategies ...Strategy) *Factory {
	return &Factory{
		strategies:     strategies,
		connectTimeout: connectTimeout,
		logger:         logger.Named("session_factory"),
	}
}

// NewFactoryFromConfig builds the strategies named in cfg.Strategies.
func NewFactoryFromConfig(cfg config.BrowserConfig, logger *zap.Logger) (*Factory, error) {
	strategies := make([]Strategy, 0, len(cfg.Strategies))
	for _, name := range cfg.Strategies {
		switch name {
		case config.StrategyLocal:
			strategies = append(strategies, NewLocalLaunch(cfg, logger))
		case config.StrategyRemoteToken:
			strategies = append(strategies, NewRemoteToken(cfg, logger))
		case config.StrategyRemoteHeader:
			strategies = append(strategies, NewRemoteHeader(cfg, logger))
		default:
			return nil, fmt.Errorf("unknown browser strategy %q", name)
		}
	}
	return NewFactory(logger, cfg.ConnectTimeout, strategies...), nil
}

// Acquire returns a session from the first strategy that connects.
func (f *Factory) Acquire(ctx context.Context) (browser.Session, error) {
	if len(f.strategies) == 0 {
		return nil, &ConnectError{err: errors.New("no browser strategies configured")}
	}

	var failures []error
	for _, strategy := range f.strategies {
		if err := ctx.Err(); err != nil {
			failures = append(failures, err)
			break
		}

		log := f.logger.With(zap.String("strategy", strategy.Name()))
		log.Debug("Attempting browser connection.")

		sess, err := f.connect(ctx, strategy)
		if err == nil {
			log.Info("Browser session acquired.", zap.String("session_id", sess.ID()))
			return sess, nil
		}

		log.Warn("Browser connection strategy failed.", zap.Error(err))
		failures = append(failures, fmt.Errorf("%s: %w", strategy.Name(), err))
	}
	return nil, &ConnectError{err: errors.Join(failures...)}
}

func (f *Factory) connect(ctx context.Context, strategy Strategy) (browser.Session, error) {
	if f.connectTimeout <= 0 {
		return strategy.Connect(ctx)
	}
	connectCtx, cancel := context.WithTimeout(ctx, f.connectTimeout)
	defer cancel()
	return strategy.Connect(connectCtx)
}
