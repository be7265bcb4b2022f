// internal/browser/session/network_idle.go
package session

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"go.uber.org/zap"
)

const (
	// idleMaxInflight is the number of open requests still considered idle,
	// which tolerates long-polling and analytics beacons.
	idleMaxInflight = 2
	// defaultQuietPeriod applies when no post-load wait is configured.
	defaultQuietPeriod = 500 * time.Millisecond
)

// idleTracker follows in-flight network requests for one tab so navigation
// can wait for the network to settle.
type idleTracker struct {
	mu       sync.Mutex
	inflight map[network.RequestID]struct{}
	logger   *zap.Logger
}

func newIdleTracker(logger *zap.Logger) *idleTracker {
	return &idleTracker{
		inflight: make(map[network.RequestID]struct{}),
		logger:   logger,
	}
}

// handle is registered with chromedp.ListenTarget; it must not block.
func (t *idleTracker) handle(ev interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		t.inflight[e.RequestID] = struct{}{}
	case *network.EventLoadingFinished:
		delete(t.inflight, e.RequestID)
	case *network.EventLoadingFailed:
		delete(t.inflight, e.RequestID)
	}
}

func (t *idleTracker) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inflight)
}

// Wait returns once no more than idleMaxInflight requests have been open for
// a full quiet period.
func (t *idleTracker) Wait(ctx context.Context, quiet time.Duration) error {
	if quiet <= 0 {
		quiet = defaultQuietPeriod
	}
	interval := quiet / 4
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastBusy := time.Now()
	for {
		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case <-ticker.C:
			if n := t.count(); n > idleMaxInflight {
				lastBusy = time.Now()
				t.logger.Debug("Waiting for network idle.", zap.Int("inflight_requests", n))
			} else if time.Since(lastBusy) >= quiet {
				return nil
			}
		}
	}
}
