// internal/automation/diagnostics.go
package automation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/conductor/internal/browser"
)

const diagnosticsTimeout = 5 * time.Second

// Diagnostics records page state when a target cannot be found. It only
// logs and writes files; nothing it does feeds back into a run.
type Diagnostics struct {
	dir    string
	logger *zap.Logger
}

// NewDiagnostics writes screenshots under dir. An empty dir disables them.
func NewDiagnostics(dir string, logger *zap.Logger) *Diagnostics {
	return &Diagnostics{dir: dir, logger: logger.Named("diagnostics")}
}

// Snapshot saves a screenshot as <dir>/<step>_attempt_<n>.png and logs the
// page's input elements.
func (d *Diagnostics) Snapshot(ctx context.Context, page browser.Page, step string, attempt int) {
	ctx, cancel := context.WithTimeout(ctx, diagnosticsTimeout)
	defer cancel()
	log := d.logger.With(zap.String("step", step), zap.Int("attempt", attempt))

	if d.dir != "" {
		if path, err := d.saveScreenshot(ctx, page, step, attempt); err != nil {
			log.Debug("Diagnostic screenshot failed.", zap.Error(err))
		} else {
			log.Info("Diagnostic screenshot saved.", zap.String("path", path))
		}
	}

	inputs, err := page.Inputs(ctx)
	if err != nil {
		log.Debug("Input inventory failed.", zap.Error(err))
		return
	}
	log.Warn("Target not found on first attempt.", zap.Any("inputs", inputs))
}

// Exhausted logs where the page ended up after the last attempt.
func (d *Diagnostics) Exhausted(ctx context.Context, page browser.Page, step string, attempts int) {
	ctx, cancel := context.WithTimeout(ctx, diagnosticsTimeout)
	defer cancel()

	fields := []zap.Field{zap.String("step", step), zap.Int("attempts", attempts)}
	if url, err := page.URL(ctx); err == nil {
		fields = append(fields, zap.String("url", url))
	}
	if title, err := page.Title(ctx); err == nil {
		fields = append(fields, zap.String("title", title))
	}
	if inputs, err := page.Inputs(ctx); err == nil {
		fields = append(fields, zap.Any("inputs", inputs))
	}
	d.logger.Warn("Target not found after all attempts.", fields...)
}

func (d *Diagnostics) saveScreenshot(ctx context.Context, page browser.Page, step string, attempt int) (string, error) {
	buf, err := page.Screenshot(ctx)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating diagnostics dir: %w", err)
	}
	path := filepath.Join(d.dir, fmt.Sprintf("%s_attempt_%d.png", fileSafe(step), attempt))
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return "", fmt.Errorf("writing screenshot: %w", err)
	}
	return path, nil
}

// fileSafe maps a step name onto characters safe in a file name.
func fileSafe(name string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, name)
	if safe == "" {
		return "step"
	}
	return safe
}

// sleep waits for d or until ctx ends.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-t.C:
		return nil
	}
}
