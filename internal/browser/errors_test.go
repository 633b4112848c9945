// internal/browser/errors_test.go
package browser

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nelakvee/recordsync/internal/automation"
)

func TestClassify(t *testing.T) {
	live := context.Background()

	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, classify(live, live, "op", nil))
	})

	t.Run("stale messages", func(t *testing.T) {
		err := classify(live, live, "read text", errors.New("Execution context was destroyed, most likely because of a navigation"))
		assert.ErrorIs(t, err, automation.ErrStale)
		assert.Contains(t, err.Error(), "read text")
	})

	t.Run("gone target", func(t *testing.T) {
		err := classify(live, live, "click", errors.New("No target with given id found"))
		assert.ErrorIs(t, err, automation.ErrNoSuchContext)
	})

	t.Run("closed tab context", func(t *testing.T) {
		tabCtx, cancel := context.WithCancel(context.Background())
		cancel()
		err := classify(live, tabCtx, "click", context.Canceled)
		assert.ErrorIs(t, err, automation.ErrNoSuchContext)
	})

	t.Run("caller cancellation wins", func(t *testing.T) {
		callerCtx, cancel := context.WithCancel(context.Background())
		cancel()
		err := classify(callerCtx, live, "click", errors.New("target closed"))
		assert.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, automation.ErrNoSuchContext)
	})

	t.Run("taxonomy errors pass through", func(t *testing.T) {
		err := classify(live, live, "locate", automation.ErrNotFound)
		assert.ErrorIs(t, err, automation.ErrNotFound)
	})

	t.Run("unknown errors are wrapped", func(t *testing.T) {
		cause := errors.New("boom")
		err := classify(live, live, "navigate", cause)
		assert.ErrorIs(t, err, cause)
		assert.NotErrorIs(t, err, automation.ErrStale)
	})
}
