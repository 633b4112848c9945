// internal/browser/errors.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nelakvee/recordsync/internal/automation"
)

// CDP reports these when the document an element or script belonged to was
// replaced underneath it.
var staleMessages = []string{
	"cannot find context with specified id",
	"execution context was destroyed",
	"inspected target navigated or closed",
	"no node with given id",
	"node is detached",
	"could not find node with given id",
}

// And these when the tab itself is gone.
var goneMessages = []string{
	"no target with given id",
	"target closed",
	"session with given id not found",
}

// classify maps a chromedp failure onto the automation error taxonomy.
// callerCtx is the context the operation was invoked with; tabCtx is the
// chromedp context of the tab it ran in.
func classify(callerCtx, tabCtx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if callerErr := callerCtx.Err(); callerErr != nil {
		return fmt.Errorf("%s: %w", op, callerErr)
	}
	if tabCtx != nil && tabCtx.Err() != nil {
		return fmt.Errorf("%s: %w: %w", op, automation.ErrNoSuchContext, err)
	}
	if errors.Is(err, automation.ErrStale) ||
		errors.Is(err, automation.ErrNoSuchContext) ||
		errors.Is(err, automation.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, err)
	}

	msg := strings.ToLower(err.Error())
	for _, m := range goneMessages {
		if strings.Contains(msg, m) {
			return fmt.Errorf("%s: %w: %w", op, automation.ErrNoSuchContext, err)
		}
	}
	for _, m := range staleMessages {
		if strings.Contains(msg, m) {
			return fmt.Errorf("%s: %w: %w", op, automation.ErrStale, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
