// internal/automation/context_utils.go
package automation

import (
	"context"
	"time"
)

// CombineContext returns a context that carries ctx1's values and deadline and
// is also canceled when ctx2 ends. ctx1 is typically a browser tab context
// holding the CDP target; ctx2 carries the caller's deadline. When ctx2 is the
// reason for cancellation, context.Cause reports ctx2's cause.
func CombineContext(ctx1, ctx2 context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancelCause(ctx1)
	stop := context.AfterFunc(ctx2, func() {
		cancel(context.Cause(ctx2))
	})
	return combined, func() {
		stop()
		cancel(context.Canceled)
	}
}

// valueOnlyContext keeps the values of its parent but none of its deadline or
// cancellation.
type valueOnlyContext struct {
	context.Context
}

func (valueOnlyContext) Deadline() (deadline time.Time, ok bool) { return }
func (valueOnlyContext) Done() <-chan struct{}                   { return nil }
func (valueOnlyContext) Err() error                              { return nil }

// Detach returns a context with ctx's values that is never canceled with ctx.
// Cleanup that must run after the caller's deadline uses it.
func Detach(ctx context.Context) context.Context {
	return valueOnlyContext{ctx}
}
