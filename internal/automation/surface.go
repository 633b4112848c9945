// internal/automation/surface.go
package automation

import (
	"context"
	"time"
)

// Finder locates elements in the focused context and frame.
type Finder interface {
	// WaitFor blocks until loc satisfies cond or timeout elapses. On timeout it
	// returns a *TimeoutError. For Absent the returned Element is zero.
	WaitFor(ctx context.Context, loc Locator, cond Condition, timeout time.Duration) (Element, error)
	// LocateAll returns every element matching loc without waiting.
	LocateAll(ctx context.Context, loc Locator) ([]Element, error)
	// LocateWithin resolves loc relative to parent without waiting.
	LocateWithin(ctx context.Context, parent Element, loc Locator) (Element, error)
	// IsVisible reports whether loc currently resolves to a visible element.
	IsVisible(ctx context.Context, loc Locator) (bool, error)
}

// Interactor performs user-level actions on located elements.
type Interactor interface {
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	Click(ctx context.Context, el Element) error
	// TypeText sends text one character at a time with delay between keystrokes.
	TypeText(ctx context.Context, el Element, text string, delay time.Duration) error
	Text(ctx context.Context, el Element) (string, error)
}

// ContextSwitcher manages top-level contexts and the frame stack of the
// focused context.
type ContextSwitcher interface {
	Contexts(ctx context.Context) ([]ContextID, error)
	CurrentContext() ContextID
	SwitchToContext(ctx context.Context, id ContextID) error
	// WaitForNewContext blocks until a context not listed in known exists and
	// returns it. On timeout it returns an error wrapping ErrContextTimeout.
	WaitForNewContext(ctx context.Context, known []ContextID, timeout time.Duration) (ContextID, error)
	// OpenContext opens a blank tab and focuses it.
	OpenContext(ctx context.Context) (ContextID, error)
	CloseCurrentContext(ctx context.Context) error
	SwitchToFrame(ctx context.Context, frame Element) error
	SwitchToDefaultContent(ctx context.Context) error
}

// Scripter is the DOM escape hatch for interactions the pages do not support
// through synthesized input.
type Scripter interface {
	ClearValue(ctx context.Context, el Element) error
	ScrollIntoView(ctx context.Context, el Element) error
	DispatchClick(ctx context.Context, el Element) error
}

// Screenshotter captures the focused context to an image file.
type Screenshotter interface {
	Screenshot(ctx context.Context, path string) error
}

// Surface is the full automation capability set the engine drives.
type Surface interface {
	Finder
	Interactor
	ContextSwitcher
	Scripter
	Screenshotter
	Close() error
}

// ContainsContext reports whether id is listed in ids.
func ContainsContext(ids []ContextID, id ContextID) bool {
	for _, c := range ids {
		if c == id {
			return true
		}
	}
	return false
}
