// internal/browser/session/factory_test.go
package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/conductor/internal/browser"
	"github.com/xkilldash9x/conductor/internal/config"
)

// -- Test Doubles --

type stubSession struct{ id string }

func (s *stubSession) ID() string { return s.id }

func (s *stubSession) NewPage(context.Context) (browser.Page, error) {
	return nil, errors.New("not implemented")
}

func (s *stubSession) Close(context.Context) error { return nil }

type stubStrategy struct {
	name string
	err  error
	// block, when set, makes Connect wait for ctx to end.
	block bool

	mu    sync.Mutex
	calls int
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Connect(ctx context.Context) (browser.Session, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.err != nil {
		return nil, s.err
	}
	return &stubSession{id: s.name + "-session"}, nil
}

func (s *stubStrategy) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// -- Factory --

func TestFactoryAcquire(t *testing.T) {
	t.Run("FirstSuccessWins", func(t *testing.T) {
		first := &stubStrategy{name: "remote-token"}
		second := &stubStrategy{name: "local"}
		f := NewFactory(zap.NewNop(), 0, first, second)

		sess, err := f.Acquire(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "remote-token-session", sess.ID())
		assert.Equal(t, 0, second.callCount(), "later strategies must not be tried after a success")
	})

	t.Run("FallsBackInOrder", func(t *testing.T) {
		core, logs := observer.New(zapcore.WarnLevel)
		first := &stubStrategy{name: "remote-token", err: ErrTokenMissing}
		second := &stubStrategy{name: "remote-header", err: errors.New("handshake rejected")}
		third := &stubStrategy{name: "local"}
		f := NewFactory(zap.New(core), 0, first, second, third)

		sess, err := f.Acquire(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "local-session", sess.ID())
		assert.Equal(t, 1, first.callCount())
		assert.Equal(t, 1, second.callCount())
		assert.Equal(t, 2, logs.FilterMessage("Browser connection strategy failed.").Len())
	})

	t.Run("AllFailAggregates", func(t *testing.T) {
		handshake := errors.New("handshake rejected")
		f := NewFactory(zap.NewNop(), 0,
			&stubStrategy{name: "remote-token", err: ErrTokenMissing},
			&stubStrategy{name: "local", err: handshake},
		)

		sess, err := f.Acquire(context.Background())
		assert.Nil(t, sess)

		var connErr *ConnectError
		require.ErrorAs(t, err, &connErr)
		assert.ErrorIs(t, err, ErrTokenMissing)
		assert.ErrorIs(t, err, handshake)
		assert.Contains(t, err.Error(), "browser connection failed")
		assert.Contains(t, err.Error(), "remote-token:")
		assert.Contains(t, err.Error(), "local:")
	})

	t.Run("NoStrategies", func(t *testing.T) {
		_, err := NewFactory(zap.NewNop(), 0).Acquire(context.Background())
		var connErr *ConnectError
		require.ErrorAs(t, err, &connErr)
		assert.Contains(t, err.Error(), "no browser strategies configured")
	})

	t.Run("ConnectTimeoutBoundsEachAttempt", func(t *testing.T) {
		slow := &stubStrategy{name: "remote-token", block: true}
		fast := &stubStrategy{name: "local"}
		f := NewFactory(zap.NewNop(), 20*time.Millisecond, slow, fast)

		sess, err := f.Acquire(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "local-session", sess.ID())
	})

	t.Run("StopsWhenContextEnds", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		later := &stubStrategy{name: "local"}
		f := NewFactory(zap.NewNop(), 0, later)

		_, err := f.Acquire(ctx)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 0, later.callCount())
	})
}

func TestNewFactoryFromConfig(t *testing.T) {
	cfg := config.BrowserConfig{
		Strategies: []string{config.StrategyRemoteToken, config.StrategyRemoteHeader, config.StrategyLocal},
		Viewport:   config.ViewportConfig{Width: 1920, Height: 1080},
	}

	f, err := NewFactoryFromConfig(cfg, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, f.strategies, 3)
	assert.Equal(t, config.StrategyRemoteToken, f.strategies[0].Name())
	assert.Equal(t, config.StrategyRemoteHeader, f.strategies[1].Name())
	assert.Equal(t, config.StrategyLocal, f.strategies[2].Name())

	cfg.Strategies = []string{"carrier-pigeon"}
	_, err = NewFactoryFromConfig(cfg, zap.NewNop())
	assert.ErrorContains(t, err, `unknown browser strategy "carrier-pigeon"`)
}

func TestRemoteStrategiesRequireToken(t *testing.T) {
	cfg := config.BrowserConfig{RemoteEndpoint: "wss://browser.example.com"}

	_, err := NewRemoteToken(cfg, zap.NewNop()).Connect(context.Background())
	assert.ErrorIs(t, err, ErrTokenMissing)

	_, err = NewRemoteHeader(cfg, zap.NewNop()).Connect(context.Background())
	assert.ErrorIs(t, err, ErrTokenMissing)
}
