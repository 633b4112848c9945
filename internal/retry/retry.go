// Package retry re-runs UI steps that fail because the page re-rendered under
// them. Only stale-reference failures are retried; every other error passes
// through on the first attempt.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nelakvee/recordsync/internal/automation"
)

const (
	DefaultMaxAttempts = 4
	DefaultDelay       = 3 * time.Second
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Policy is a bounded fixed-delay retry strategy.
type Policy struct {
	// MaxAttempts counts the initial attempt.
	MaxAttempts int
	// Delay is the fixed wait between attempts.
	Delay time.Duration
	// Sleep defaults to a context-aware timer.
	Sleep SleepFunc
	Logger *zap.Logger
}

// NewDefaultPolicy returns the standard policy: four attempts, three seconds
// apart, stale references only.
func NewDefaultPolicy(logger *zap.Logger) *Policy {
	return &Policy{
		MaxAttempts: DefaultMaxAttempts,
		Delay:       DefaultDelay,
		Logger:      logger,
	}
}

// TransientFailure is returned when every attempt of a step failed with a
// retryable error.
type TransientFailure struct {
	Step     string
	Attempts int
	Last     error
}

func (e *TransientFailure) Error() string {
	return fmt.Sprintf("%s: gave up after %d attempts: %v", e.Step, e.Attempts, e.Last)
}

// Unwrap exposes both the transient class and the last underlying error.
func (e *TransientFailure) Unwrap() []error {
	return []error{automation.ErrTransient, e.Last}
}

// IsStale reports whether err belongs to the stale-reference class.
func IsStale(err error) bool {
	return errors.Is(err, automation.ErrStale)
}

// Do runs fn until it succeeds, fails with a non-retryable error, the context
// ends, or MaxAttempts is reached.
func (p *Policy) Do(ctx context.Context, step string, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		last = fn(ctx)
		if last == nil {
			return nil
		}
		if !IsStale(last) {
			return last
		}
		if attempt == attempts {
			break
		}
		logger.Warn("Retrying step after stale reference",
			zap.String("step", step),
			zap.Int("attempt", attempt),
			zap.Duration("delay", p.Delay),
			zap.Error(last))
		if err := sleep(ctx, p.Delay); err != nil {
			return fmt.Errorf("%s: retry wait interrupted: %w", step, err)
		}
	}
	return &TransientFailure{Step: step, Attempts: attempts, Last: last}
}

// Sleep blocks for d, returning early with the context error if ctx ends first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
