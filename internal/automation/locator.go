// internal/automation/locator.go
package automation

import (
	"fmt"
	"strings"
)

// Strategy is the selector language of a Locator.
type Strategy string

const (
	ByID    Strategy = "id"
	ByCSS   Strategy = "css"
	ByXPath Strategy = "xpath"
)

// Locator is a declarative selector for a UI element. Locator tables are loaded
// from configuration so that a UI change on either system is a data edit.
type Locator struct {
	By       Strategy `mapstructure:"by" yaml:"by" json:"by"`
	Selector string   `mapstructure:"selector" yaml:"selector" json:"selector"`
}

// ID, CSS and XPath are shorthand constructors.
func ID(id string) Locator      { return Locator{By: ByID, Selector: id} }
func CSS(sel string) Locator    { return Locator{By: ByCSS, Selector: sel} }
func XPath(expr string) Locator { return Locator{By: ByXPath, Selector: expr} }

func (l Locator) String() string {
	return fmt.Sprintf("%s=%s", l.By, l.Selector)
}

// IsZero reports whether the locator is unset.
func (l Locator) IsZero() bool {
	return l.Selector == ""
}

// KeyPlaceholder is replaced by the record key in locators that are bound
// per item, such as a type-ahead suggestion pinned to one key.
const KeyPlaceholder = "{key}"

// Bind returns a copy of l with every KeyPlaceholder replaced by key. A
// locator without the placeholder is returned unchanged.
func (l Locator) Bind(key string) Locator {
	l.Selector = strings.ReplaceAll(l.Selector, KeyPlaceholder, key)
	return l
}

// Validate checks that the locator has a known strategy and a selector.
func (l Locator) Validate() error {
	if strings.TrimSpace(l.Selector) == "" {
		return fmt.Errorf("locator selector is empty")
	}
	switch l.By {
	case ByID, ByCSS, ByXPath:
		return nil
	default:
		return fmt.Errorf("unknown locator strategy %q", l.By)
	}
}

// Condition is the state a wait blocks on.
type Condition int

const (
	// Present: attached to the DOM.
	Present Condition = iota
	// Visible: present and rendered with a non-empty box.
	Visible
	// Clickable: visible and not disabled.
	Clickable
	// Absent: not attached, or attached but not visible.
	Absent
)

func (c Condition) String() string {
	switch c {
	case Present:
		return "present"
	case Visible:
		return "visible"
	case Clickable:
		return "clickable"
	case Absent:
		return "absent"
	default:
		return fmt.Sprintf("condition(%d)", int(c))
	}
}

// ContextID identifies a top-level browsing context (a tab or window).
type ContextID string

// Element is an opaque handle to a located element. Ref is interpreted only by
// the Surface that produced it and becomes invalid when the page re-renders.
type Element struct {
	Ref string
}

// IsZero reports whether the handle is empty.
func (e Element) IsZero() bool { return e.Ref == "" }
