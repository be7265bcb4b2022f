// internal/browser/session/local.go
package session

import (
	"context"
	"os"
	"strings"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/conductor/internal/browser"
	"github.com/xkilldash9x/conductor/internal/config"
)

// LocalLaunch starts a Chrome process on this machine.
type LocalLaunch struct {
	cfg    config.BrowserConfig
	opts   pageOptions
	logger *zap.Logger
}

// NewLocalLaunch creates the local launch strategy.
func NewLocalLaunch(cfg config.BrowserConfig, logger *zap.Logger) *LocalLaunch {
	return &LocalLaunch{cfg: cfg, opts: pageOptionsFromConfig(cfg), logger: logger.Named("local")}
}

func (l *LocalLaunch) Name() string { return config.StrategyLocal }

// Connect launches the browser. The process lives until the session is closed.
func (l *LocalLaunch) Connect(ctx context.Context) (browser.Session, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(Detach(ctx), l.allocatorOptions()...)
	return startCDPSession(ctx, allocCtx, allocCancel, l.opts, l.logger, config.StrategyLocal)
}

// allocatorOptions builds the exec allocator flag set from configuration.
func (l *LocalLaunch) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-accelerated-2d-canvas", true),
		chromedp.Flag("no-zygote", true),
		chromedp.WindowSize(l.cfg.Viewport.Width, l.cfg.Viewport.Height),
	}
	if l.cfg.Headless {
		opts = append(opts, chromedp.Headless)
	}
	if l.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(l.cfg.UserAgent))
	}

	if path, ok := resolveExecPath(l.cfg.ExecPaths); ok {
		opts = append(opts, chromedp.ExecPath(path))
	} else if len(l.cfg.ExecPaths) > 0 {
		l.logger.Warn("None of the configured browser binaries exist; falling back to the default lookup.",
			zap.Strings("exec_paths", l.cfg.ExecPaths))
	}

	// Extra flags: "--name=value" or a bare "--name" switch.
	for _, arg := range l.cfg.Args {
		key, value, found := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if key == "" {
			continue
		}
		if found {
			opts = append(opts, chromedp.Flag(key, value))
		} else {
			opts = append(opts, chromedp.Flag(key, true))
		}
	}
	return opts
}

// resolveExecPath returns the first candidate that exists as a regular file.
func resolveExecPath(candidates []string) (string, bool) {
	for _, candidate := range candidates {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}
	}
	return "", false
}
