// Package automationtest provides an in-memory automation.Surface for tests.
package automationtest

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/nelakvee/recordsync/internal/automation"
)

// Node is a scripted element. Context scopes it to one browsing context; an
// empty Context makes it visible from every context.
type Node struct {
	Context  automation.ContextID
	Present  bool
	Visible  bool
	Disabled bool
	Text     string
	Value    string
}

// Fake is a scriptable, recording Surface. Elements are keyed by selector;
// child elements resolved with LocateWithin are keyed "<parentRef> >> <selector>".
type Fake struct {
	mu sync.Mutex

	Nodes map[string]*Node
	// Lists backs LocateAll.
	Lists map[string][]automation.Element
	// OnClick runs after a click on the given ref, under no lock.
	OnClick map[string]func(f *Fake)
	// Failures are consumed one per call, keyed "<Op>:<ref-or-selector>".
	Failures map[string][]error

	contexts []automation.ContextID
	current  automation.ContextID
	frames   []string
	closed   bool
	nextTab  int

	calls       []string
	Screenshots []string
}

// NewFake returns a fake with a single open context.
func NewFake(initial automation.ContextID) *Fake {
	return &Fake{
		Nodes:    make(map[string]*Node),
		Lists:    make(map[string][]automation.Element),
		OnClick:  make(map[string]func(f *Fake)),
		Failures: make(map[string][]error),
		contexts: []automation.ContextID{initial},
		current:  initial,
	}
}

var _ automation.Surface = (*Fake)(nil)

// -- Scripting helpers --

// Set registers (or replaces) a node for selector.
func (f *Fake) Set(selector string, n Node) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := n
	f.Nodes[selector] = &cp
	return f
}

// Show registers a present, visible, enabled node.
func (f *Fake) Show(selector, text string) *Fake {
	return f.Set(selector, Node{Present: true, Visible: true, Text: text})
}

// Hide makes a registered node absent.
func (f *Fake) Hide(selector string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n, ok := f.Nodes[selector]; ok {
		n.Present = false
		n.Visible = false
	}
}

// Fail queues errors returned by successive calls to op on key.
func (f *Fake) Fail(op, key string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := op + ":" + key
	f.Failures[k] = append(f.Failures[k], errs...)
}

// AddContext opens a context as a page script or popup would.
func (f *Fake) AddContext(id automation.ContextID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contexts = append(f.contexts, id)
}

// DropContext removes a context as if the user closed it.
func (f *Fake) DropContext(id automation.ContextID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removeLocked(id)
}

// Calls returns a copy of the recorded call log.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// Count returns how many recorded calls equal call.
func (f *Fake) Count(call string) int {
	n := 0
	for _, c := range f.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

// FrameDepth returns the current frame stack depth.
func (f *Fake) FrameDepth() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

// Value returns what has been typed into selector.
func (f *Fake) Value(selector string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n, ok := f.Nodes[selector]; ok {
		return n.Value
	}
	return ""
}

// Closed reports whether Close was called.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// -- internals --

func (f *Fake) record(format string, args ...any) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *Fake) failure(op, key string) error {
	k := op + ":" + key
	q := f.Failures[k]
	if len(q) == 0 {
		return nil
	}
	f.Failures[k] = q[1:]
	return q[0]
}

func (f *Fake) node(ref string) (*Node, bool) {
	n, ok := f.Nodes[ref]
	if !ok {
		return nil, false
	}
	if n.Context != "" && n.Context != f.current {
		return nil, false
	}
	return n, true
}

func (f *Fake) removeLocked(id automation.ContextID) {
	for i, c := range f.contexts {
		if c == id {
			f.contexts = append(f.contexts[:i], f.contexts[i+1:]...)
			return
		}
	}
}

func satisfies(n *Node, ok bool, cond automation.Condition) bool {
	switch cond {
	case automation.Present:
		return ok && n.Present
	case automation.Visible:
		return ok && n.Present && n.Visible
	case automation.Clickable:
		return ok && n.Present && n.Visible && !n.Disabled
	case automation.Absent:
		return !ok || !n.Present || !n.Visible
	}
	return false
}

// -- automation.Finder --

func (f *Fake) WaitFor(ctx context.Context, loc automation.Locator, cond automation.Condition, timeout time.Duration) (automation.Element, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("WaitFor(%s,%s)", loc.Selector, cond)
	if err := ctx.Err(); err != nil {
		return automation.Element{}, err
	}
	if err := f.failure("WaitFor", loc.Selector); err != nil {
		return automation.Element{}, err
	}
	n, ok := f.node(loc.Selector)
	if !satisfies(n, ok, cond) {
		return automation.Element{}, &automation.TimeoutError{Locator: loc, Condition: cond, Timeout: timeout}
	}
	if cond == automation.Absent {
		return automation.Element{}, nil
	}
	return automation.Element{Ref: loc.Selector}, nil
}

func (f *Fake) LocateAll(ctx context.Context, loc automation.Locator) ([]automation.Element, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("LocateAll(%s)", loc.Selector)
	if err := f.failure("LocateAll", loc.Selector); err != nil {
		return nil, err
	}
	out := make([]automation.Element, len(f.Lists[loc.Selector]))
	copy(out, f.Lists[loc.Selector])
	return out, nil
}

func (f *Fake) LocateWithin(ctx context.Context, parent automation.Element, loc automation.Locator) (automation.Element, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ref := parent.Ref + " >> " + loc.Selector
	f.record("LocateWithin(%s)", ref)
	if err := f.failure("LocateWithin", ref); err != nil {
		return automation.Element{}, err
	}
	if n, ok := f.node(ref); !ok || !n.Present {
		return automation.Element{}, fmt.Errorf("%s: %w", ref, automation.ErrNotFound)
	}
	return automation.Element{Ref: ref}, nil
}

func (f *Fake) IsVisible(ctx context.Context, loc automation.Locator) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("IsVisible(%s)", loc.Selector)
	n, ok := f.node(loc.Selector)
	return satisfies(n, ok, automation.Visible), nil
}

// -- automation.Interactor --

func (f *Fake) Navigate(ctx context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Navigate(%s)", url)
	return f.failure("Navigate", url)
}

func (f *Fake) Reload(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Reload(%s)", f.current)
	return f.failure("Reload", string(f.current))
}

func (f *Fake) Click(ctx context.Context, el automation.Element) error {
	f.mu.Lock()
	f.record("Click(%s)", el.Ref)
	if err := f.failure("Click", el.Ref); err != nil {
		f.mu.Unlock()
		return err
	}
	hook := f.OnClick[el.Ref]
	f.mu.Unlock()
	if hook != nil {
		hook(f)
	}
	return nil
}

func (f *Fake) TypeText(ctx context.Context, el automation.Element, text string, delay time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("TypeText(%s,%s)", el.Ref, text)
	if err := f.failure("TypeText", el.Ref); err != nil {
		return err
	}
	if n, ok := f.node(el.Ref); ok {
		n.Value += text
	}
	return nil
}

func (f *Fake) Text(ctx context.Context, el automation.Element) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Text(%s)", el.Ref)
	if err := f.failure("Text", el.Ref); err != nil {
		return "", err
	}
	n, ok := f.node(el.Ref)
	if !ok {
		return "", fmt.Errorf("%s: %w", el.Ref, automation.ErrStale)
	}
	return n.Text, nil
}

// -- automation.ContextSwitcher --

func (f *Fake) Contexts(ctx context.Context) ([]automation.ContextID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Contexts")
	if err := f.failure("Contexts", ""); err != nil {
		return nil, err
	}
	out := make([]automation.ContextID, len(f.contexts))
	copy(out, f.contexts)
	return out, nil
}

func (f *Fake) CurrentContext() automation.ContextID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *Fake) SwitchToContext(ctx context.Context, id automation.ContextID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SwitchToContext(%s)", id)
	if err := f.failure("SwitchToContext", string(id)); err != nil {
		return err
	}
	if !automation.ContainsContext(f.contexts, id) {
		return fmt.Errorf("%s: %w", id, automation.ErrNoSuchContext)
	}
	f.current = id
	f.frames = nil
	return nil
}

func (f *Fake) WaitForNewContext(ctx context.Context, known []automation.ContextID, timeout time.Duration) (automation.ContextID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("WaitForNewContext")
	if err := f.failure("WaitForNewContext", ""); err != nil {
		return "", err
	}
	for _, c := range f.contexts {
		if !automation.ContainsContext(known, c) {
			return c, nil
		}
	}
	return "", fmt.Errorf("no new context after %s: %w", timeout, automation.ErrContextTimeout)
}

func (f *Fake) OpenContext(ctx context.Context) (automation.ContextID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextTab++
	id := automation.ContextID(fmt.Sprintf("tab-%d", f.nextTab))
	f.record("OpenContext(%s)", id)
	f.contexts = append(f.contexts, id)
	f.current = id
	f.frames = nil
	return id, nil
}

func (f *Fake) CloseCurrentContext(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CloseCurrentContext(%s)", f.current)
	if err := f.failure("CloseCurrentContext", string(f.current)); err != nil {
		return err
	}
	f.removeLocked(f.current)
	f.current = ""
	f.frames = nil
	return nil
}

func (f *Fake) SwitchToFrame(ctx context.Context, frame automation.Element) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SwitchToFrame(%s)", frame.Ref)
	if err := f.failure("SwitchToFrame", frame.Ref); err != nil {
		return err
	}
	f.frames = append(f.frames, frame.Ref)
	return nil
}

func (f *Fake) SwitchToDefaultContent(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SwitchToDefaultContent")
	f.frames = nil
	return nil
}

// -- automation.Scripter --

func (f *Fake) ClearValue(ctx context.Context, el automation.Element) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ClearValue(%s)", el.Ref)
	if n, ok := f.node(el.Ref); ok {
		n.Value = ""
	}
	return nil
}

func (f *Fake) ScrollIntoView(ctx context.Context, el automation.Element) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ScrollIntoView(%s)", el.Ref)
	return nil
}

func (f *Fake) DispatchClick(ctx context.Context, el automation.Element) error {
	f.mu.Lock()
	f.record("DispatchClick(%s)", el.Ref)
	if err := f.failure("DispatchClick", el.Ref); err != nil {
		f.mu.Unlock()
		return err
	}
	hook := f.OnClick[el.Ref]
	f.mu.Unlock()
	if hook != nil {
		hook(f)
	}
	return nil
}

// -- automation.Screenshotter --

func (f *Fake) Screenshot(ctx context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Screenshot")
	f.Screenshots = append(f.Screenshots, path)
	return os.WriteFile(path, []byte("png"), 0o644)
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Close")
	f.closed = true
	return nil
}
