// internal/automation/errors.go
package automation

import (
	"errors"
	"fmt"
	"time"
)

// Error taxonomy shared by every component that drives a Surface.
var (
	// ErrNotFound: an element wait timed out or the element is absent.
	ErrNotFound = errors.New("element not found")
	// ErrStale: a previously located handle no longer refers to a live element.
	// This is the only class the retry layer retries.
	ErrStale = errors.New("stale element reference")
	// ErrTransient: a retried step exhausted its attempts.
	ErrTransient = errors.New("transient failure")
	// ErrContextTimeout: an expected new window or frame did not appear in time.
	ErrContextTimeout = errors.New("context did not appear in time")
	// ErrNoSuchContext: the addressed window or tab no longer exists.
	ErrNoSuchContext = errors.New("no such browsing context")
	// ErrSessionLost: the source or target context is gone. Aborts the batch.
	ErrSessionLost = errors.New("session lost")
)

// TimeoutError describes an element wait that expired. It unwraps to
// ErrNotFound so callers can classify it with errors.Is.
type TimeoutError struct {
	Locator   Locator
	Condition Condition
	Timeout   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s waiting for %s to be %s", e.Timeout, e.Locator, e.Condition)
}

func (e *TimeoutError) Unwrap() error { return ErrNotFound }
