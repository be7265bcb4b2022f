// internal/browser/session/context_utils.go
package session

import (
	"context"
)

// CombineContext derives a context from primary that is also canceled when op
// is done. Values (such as the chromedp target) come from primary only, and
// context.Cause on the result reports why op ended, so a per-operation
// deadline surfaces as context.DeadlineExceeded.
func CombineContext(primary, op context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancelCause(primary)
	stop := context.AfterFunc(op, func() {
		cancel(context.Cause(op))
	})
	return combined, func() {
		stop()
		cancel(context.Canceled)
	}
}

// Detach returns a context that keeps the values of ctx but is never canceled
// by it. Browser allocators are started on a detached context so that a
// session outlives the request that acquired it until Close is called.
func Detach(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

// opError picks the most useful error after a failed browser operation: the
// cause of the caller's context when it ended, the raw error otherwise.
func opError(op context.Context, err error) error {
	if op.Err() != nil {
		return context.Cause(op)
	}
	return err
}
