package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/nelakvee/recordsync/internal/automation"
)

// recordingSleep captures requested delays without waiting.
type recordingSleep struct {
	delays []time.Duration
}

func (r *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func newTestPolicy() (*Policy, *recordingSleep) {
	rs := &recordingSleep{}
	p := NewDefaultPolicy(zap.NewNop())
	p.Sleep = rs.sleep
	return p, rs
}

func TestDo_AlwaysStaleExhaustsAttempts(t *testing.T) {
	p, rs := newTestPolicy()
	calls := 0
	err := p.Do(context.Background(), "type key", func(ctx context.Context) error {
		calls++
		return fmt.Errorf("send keys: %w", automation.ErrStale)
	})

	require.Error(t, err)
	assert.Equal(t, 4, calls)
	assert.Equal(t, []time.Duration{3 * time.Second, 3 * time.Second, 3 * time.Second}, rs.delays)

	var tf *TransientFailure
	require.True(t, errors.As(err, &tf))
	assert.Equal(t, 4, tf.Attempts)
	assert.Equal(t, "type key", tf.Step)
	assert.ErrorIs(t, err, automation.ErrTransient)
	assert.ErrorIs(t, err, automation.ErrStale)
}

func TestDo_SucceedsAfterStale(t *testing.T) {
	p, rs := newTestPolicy()
	calls := 0
	err := p.Do(context.Background(), "type key", func(ctx context.Context) error {
		calls++
		if calls < 4 {
			return automation.ErrStale
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 4, calls, "three stale failures then success uses every attempt")
	assert.Equal(t, []time.Duration{DefaultDelay, DefaultDelay, DefaultDelay}, rs.delays)
}

func TestDo_NonRetryablePassesThrough(t *testing.T) {
	p, rs := newTestPolicy()
	calls := 0
	timeout := &automation.TimeoutError{Locator: automation.ID("x"), Condition: automation.Visible, Timeout: time.Second}
	err := p.Do(context.Background(), "wait", func(ctx context.Context) error {
		calls++
		return timeout
	})

	assert.Equal(t, 1, calls)
	assert.Empty(t, rs.delays)
	assert.Same(t, timeout, err)
	assert.ErrorIs(t, err, automation.ErrNotFound)
}

func TestDo_ContextCancelledDuringWait(t *testing.T) {
	p := NewDefaultPolicy(nil)
	p.Delay = time.Hour
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := p.Do(ctx, "click", func(ctx context.Context) error {
		calls++
		cancel()
		return automation.ErrStale
	})

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDo_LogsEachRetry(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	p, _ := newTestPolicy()
	p.Logger = zap.New(core)

	_ = p.Do(context.Background(), "type key", func(ctx context.Context) error {
		return automation.ErrStale
	})

	entries := logs.FilterMessage("Retrying step after stale reference").All()
	require.Len(t, entries, 3)
	assert.Equal(t, int64(1), entries[0].ContextMap()["attempt"])
}

func TestSleep(t *testing.T) {
	require.NoError(t, Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
}
