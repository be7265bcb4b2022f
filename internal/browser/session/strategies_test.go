// internal/browser/session/strategies_test.go
package session

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/conductor/internal/browser"
	"github.com/xkilldash9x/conductor/internal/config"
)

func TestTokenURL(t *testing.T) {
	t.Run("AddsToken", func(t *testing.T) {
		got, err := tokenURL("wss://production-sfo.browserless.io", "s3cret")
		require.NoError(t, err)
		assert.Equal(t, "wss://production-sfo.browserless.io?token=s3cret", got)
	})

	t.Run("KeepsExistingQuery", func(t *testing.T) {
		got, err := tokenURL("wss://browser.example.com/chromium?stealth=true", "a b")
		require.NoError(t, err)
		u, err := url.Parse(got)
		require.NoError(t, err)
		assert.Equal(t, "true", u.Query().Get("stealth"))
		assert.Equal(t, "a b", u.Query().Get("token"))
	})

	t.Run("MissingToken", func(t *testing.T) {
		_, err := tokenURL("wss://browser.example.com", "")
		assert.ErrorIs(t, err, ErrTokenMissing)
	})

	t.Run("MissingEndpoint", func(t *testing.T) {
		_, err := tokenURL("", "s3cret")
		assert.ErrorContains(t, err, "endpoint is not configured")
	})
}

func TestAuthHeaders(t *testing.T) {
	headers, err := authHeaders("wss://browser.example.com", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Authorization": "Bearer s3cret"}, headers)

	_, err = authHeaders("wss://browser.example.com", "")
	assert.ErrorIs(t, err, ErrTokenMissing)
}

func TestTimeoutFor(t *testing.T) {
	t.Run("NoDeadlineNoLimit", func(t *testing.T) {
		assert.Nil(t, timeoutFor(context.Background(), 0))
	})

	t.Run("LimitOnly", func(t *testing.T) {
		got := timeoutFor(context.Background(), 10*time.Second)
		require.NotNil(t, got)
		assert.Equal(t, 10000.0, *got)
	})

	t.Run("DeadlineShorterThanLimit", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		got := timeoutFor(ctx, 10*time.Second)
		require.NotNil(t, got)
		assert.LessOrEqual(t, *got, 2000.0)
		assert.Greater(t, *got, 0.0)
	})

	t.Run("ExpiredDeadline", func(t *testing.T) {
		ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
		defer cancel()
		got := timeoutFor(ctx, 0)
		require.NotNil(t, got)
		assert.Equal(t, 1.0, *got)
	})
}

func TestWaitUntilFor(t *testing.T) {
	assert.Equal(t, playwright.WaitUntilStateLoad, waitUntilFor(browser.ReadyLoad))
	assert.Equal(t, playwright.WaitUntilStateDomcontentloaded, waitUntilFor(browser.ReadyDOMContentLoaded))
	assert.Equal(t, playwright.WaitUntilStateNetworkidle, waitUntilFor(browser.ReadyNetworkIdle))
	assert.Equal(t, playwright.WaitUntilStateLoad, waitUntilFor(""))
}

func TestPWError(t *testing.T) {
	assert.NoError(t, pwError(nil))
	assert.ErrorIs(t, pwError(playwright.ErrTargetClosed), browser.ErrPageClosed)
	assert.NoError(t, ignoreClosed(playwright.ErrTargetClosed))
}

func TestResolveExecPath(t *testing.T) {
	dir := t.TempDir()
	binary := filepath.Join(dir, "chromium")
	require.NoError(t, os.WriteFile(binary, []byte("#!/bin/sh\n"), 0o755))

	t.Run("FirstExistingWins", func(t *testing.T) {
		got, ok := resolveExecPath([]string{filepath.Join(dir, "missing"), " ", dir, binary})
		assert.True(t, ok)
		assert.Equal(t, binary, got)
	})

	t.Run("NoneExist", func(t *testing.T) {
		_, ok := resolveExecPath([]string{filepath.Join(dir, "missing")})
		assert.False(t, ok)
	})
}

func TestLocalAllocatorOptions(t *testing.T) {
	base := config.BrowserConfig{
		Headless:  true,
		UserAgent: "conductor-test",
		Viewport:  config.ViewportConfig{Width: 1920, Height: 1080},
	}
	baseCount := len(NewLocalLaunch(base, zap.NewNop()).allocatorOptions())

	withArgs := base
	withArgs.Args = []string{"--lang=en-US", "--mute-audio", "--", ""}
	got := NewLocalLaunch(withArgs, zap.NewNop()).allocatorOptions()
	assert.Len(t, got, baseCount+2, "empty flag names are skipped")

	headful := base
	headful.Headless = false
	assert.Len(t, NewLocalLaunch(headful, zap.NewNop()).allocatorOptions(), baseCount-1)
}
