// internal/browser/browser.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/nelakvee/recordsync/internal/automation"
	"github.com/nelakvee/recordsync/internal/config"
	"github.com/nelakvee/recordsync/internal/retry"
)

const defaultPollInterval = 250 * time.Millisecond

// ErrNotInteractable is returned when a click targets an element that is
// hidden or disabled.
var ErrNotInteractable = errors.New("element not interactable")

// tab is an attached page target.
type tab struct {
	ctx context.Context
	// cancel closes the target. Nil for the root tab, whose cancel owns the
	// whole browser.
	cancel context.CancelFunc
}

// Browser drives a single Chrome instance over CDP and implements
// automation.Surface. Elements are addressed by a ref attribute written into
// the page when they are located; frames are a stack of such refs resolved
// from the top document on every call, so only same-origin frames can be
// entered.
type Browser struct {
	logger  *zap.Logger
	poll    time.Duration
	persona Persona

	allocCancel context.CancelFunc
	rootCtx     context.Context
	rootCancel  context.CancelFunc
	rootID      automation.ContextID

	seq atomic.Uint64

	mu      sync.Mutex
	tabs    map[automation.ContextID]*tab
	current automation.ContextID
	frames  []string
	closed  bool
}

var _ automation.Surface = (*Browser)(nil)

// New launches Chrome and focuses its first tab.
func New(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Browser, error) {
	log := logger.Named("browser")
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, ExecOptions(cfg)...)
	rootCtx, rootCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(log.Sugar().Debugf),
		chromedp.WithErrorf(log.Sugar().Debugf))

	persona := PersonaFromConfig(cfg)
	if err := chromedp.Run(rootCtx, persona.Tasks()...); err != nil {
		rootCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	rootID := automation.ContextID(chromedp.FromContext(rootCtx).Target.TargetID)
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}

	b := &Browser{
		logger:      log,
		poll:        poll,
		persona:     persona,
		allocCancel: allocCancel,
		rootCtx:     rootCtx,
		rootCancel:  rootCancel,
		rootID:      rootID,
		tabs:        map[automation.ContextID]*tab{rootID: {ctx: rootCtx}},
		current:     rootID,
	}
	log.Info("Browser launched.",
		zap.String("context", string(rootID)),
		zap.Bool("headless", cfg.Headless),
		zap.Bool("persona", !persona.IsZero()))
	return b, nil
}

// -- internal plumbing --

func (b *Browser) currentTab() (*tab, []string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, nil, fmt.Errorf("browser is closed: %w", automation.ErrNoSuchContext)
	}
	t, ok := b.tabs[b.current]
	if !ok {
		return nil, nil, fmt.Errorf("no focused context: %w", automation.ErrNoSuchContext)
	}
	return t, append([]string(nil), b.frames...), nil
}

// run executes actions in the focused tab, bounded by ctx.
func (b *Browser) run(ctx context.Context, op string, actions ...chromedp.Action) error {
	t, _, err := b.currentTab()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	runCtx, cancel := automation.CombineContext(t.ctx, ctx)
	defer cancel()
	return classify(ctx, t.ctx, op, chromedp.Run(runCtx, actions...))
}

// browserExec returns ctx carrying the browser-level CDP executor.
func (b *Browser) browserExec(ctx context.Context) context.Context {
	return cdp.WithExecutor(ctx, chromedp.FromContext(b.rootCtx).Browser)
}

func (b *Browser) locate(ctx context.Context, parent string, loc automation.Locator) (locateResult, error) {
	var res locateResult
	if err := loc.Validate(); err != nil {
		return res, err
	}
	_, frames, err := b.currentTab()
	if err != nil {
		return res, err
	}
	op := "locate " + loc.String()
	prefix := fmt.Sprintf("e%d", b.seq.Add(1))
	if err := b.run(ctx, op, chromedp.Evaluate(locateScript(frames, parent, loc, prefix), &res)); err != nil {
		return res, err
	}
	if !res.Document {
		return res, fmt.Errorf("%s: frame detached: %w", op, automation.ErrStale)
	}
	if res.ParentMissing {
		return res, fmt.Errorf("%s: parent %s: %w", op, parent, automation.ErrStale)
	}
	return res, nil
}

// callElement evaluates body against the tagged element el.
func callElement[T any](ctx context.Context, b *Browser, op string, el automation.Element, body string) (T, error) {
	var res elementResult[T]
	if el.IsZero() {
		return res.Value, fmt.Errorf("%s: empty element: %w", op, automation.ErrStale)
	}
	_, frames, err := b.currentTab()
	if err != nil {
		return res.Value, fmt.Errorf("%s: %w", op, err)
	}
	if err := b.run(ctx, op, chromedp.Evaluate(elementScript(frames, el.Ref, body), &res)); err != nil {
		return res.Value, err
	}
	if !res.Found {
		return res.Value, fmt.Errorf("%s %s: %w", op, el.Ref, automation.ErrStale)
	}
	return res.Value, nil
}

// satisfied reports whether the located nodes meet cond. The first node is
// the one a wait returns.
func satisfied(nodes []nodeState, cond automation.Condition) (automation.Element, bool) {
	switch cond {
	case automation.Absent:
		return automation.Element{}, len(nodes) == 0 || !nodes[0].Visible
	case automation.Present:
		if len(nodes) > 0 {
			return automation.Element{Ref: nodes[0].Ref}, true
		}
	case automation.Visible:
		if len(nodes) > 0 && nodes[0].Visible {
			return automation.Element{Ref: nodes[0].Ref}, true
		}
	case automation.Clickable:
		if len(nodes) > 0 && nodes[0].Visible && nodes[0].Enabled {
			return automation.Element{Ref: nodes[0].Ref}, true
		}
	}
	return automation.Element{}, false
}

// -- Finder --

// WaitFor polls the focused document until loc satisfies cond. Stale
// results while the page is changing are polled through.
func (b *Browser) WaitFor(ctx context.Context, loc automation.Locator, cond automation.Condition, timeout time.Duration) (automation.Element, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(b.poll)
	defer ticker.Stop()

	expired := func() error {
		return &automation.TimeoutError{Locator: loc, Condition: cond, Timeout: timeout}
	}

	for {
		res, err := b.locate(waitCtx, "", loc)
		switch {
		case err == nil:
			if el, ok := satisfied(res.Nodes, cond); ok {
				return el, nil
			}
		case errors.Is(err, automation.ErrStale):
		default:
			if ctx.Err() == nil && waitCtx.Err() != nil {
				return automation.Element{}, expired()
			}
			return automation.Element{}, err
		}

		select {
		case <-ctx.Done():
			return automation.Element{}, ctx.Err()
		case <-waitCtx.Done():
			return automation.Element{}, expired()
		case <-ticker.C:
		}
	}
}

func (b *Browser) LocateAll(ctx context.Context, loc automation.Locator) ([]automation.Element, error) {
	res, err := b.locate(ctx, "", loc)
	if err != nil {
		return nil, err
	}
	out := make([]automation.Element, len(res.Nodes))
	for i, n := range res.Nodes {
		out[i] = automation.Element{Ref: n.Ref}
	}
	return out, nil
}

func (b *Browser) LocateWithin(ctx context.Context, parent automation.Element, loc automation.Locator) (automation.Element, error) {
	if parent.IsZero() {
		return automation.Element{}, fmt.Errorf("locate %s: empty parent: %w", loc, automation.ErrStale)
	}
	res, err := b.locate(ctx, parent.Ref, loc)
	if err != nil {
		return automation.Element{}, err
	}
	if len(res.Nodes) == 0 {
		return automation.Element{}, fmt.Errorf("locate %s within %s: %w", loc, parent.Ref, automation.ErrNotFound)
	}
	return automation.Element{Ref: res.Nodes[0].Ref}, nil
}

func (b *Browser) IsVisible(ctx context.Context, loc automation.Locator) (bool, error) {
	res, err := b.locate(ctx, "", loc)
	if err != nil {
		return false, err
	}
	return len(res.Nodes) > 0 && res.Nodes[0].Visible, nil
}

// -- Interactor --

func (b *Browser) Navigate(ctx context.Context, url string) error {
	b.resetFrames()
	return b.run(ctx, "navigate", chromedp.Navigate(url))
}

func (b *Browser) Reload(ctx context.Context) error {
	b.resetFrames()
	return b.run(ctx, "reload", chromedp.Reload())
}

// Click moves the mouse to the element's center and presses the left button.
func (b *Browser) Click(ctx context.Context, el automation.Element) error {
	pt, err := callElement[clickPoint](ctx, b, "click", el, bodyClickPoint)
	if err != nil {
		return err
	}
	if !pt.Visible || !pt.Enabled {
		return fmt.Errorf("click %s: %w", el.Ref, ErrNotInteractable)
	}
	return b.run(ctx, "click", chromedp.MouseClickXY(pt.X, pt.Y))
}

// TypeText focuses el and sends one key event per rune, pausing delay
// between keystrokes.
func (b *Browser) TypeText(ctx context.Context, el automation.Element, text string, delay time.Duration) error {
	if _, err := callElement[bool](ctx, b, "focus", el, bodyFocus); err != nil {
		return err
	}
	first := true
	for _, r := range text {
		if !first && delay > 0 {
			if err := retry.Sleep(ctx, delay); err != nil {
				return err
			}
		}
		first = false
		if err := b.run(ctx, "type", chromedp.KeyEvent(string(r))); err != nil {
			return err
		}
	}
	return nil
}

// Text returns an input's value or any other element's rendered text.
func (b *Browser) Text(ctx context.Context, el automation.Element) (string, error) {
	return callElement[string](ctx, b, "read text", el, bodyText)
}

// -- Scripter --

func (b *Browser) ClearValue(ctx context.Context, el automation.Element) error {
	_, err := callElement[bool](ctx, b, "clear value", el, bodyClear)
	return err
}

func (b *Browser) ScrollIntoView(ctx context.Context, el automation.Element) error {
	_, err := callElement[bool](ctx, b, "scroll into view", el, bodyScroll)
	return err
}

func (b *Browser) DispatchClick(ctx context.Context, el automation.Element) error {
	_, err := callElement[bool](ctx, b, "dispatch click", el, bodyDispatchClick)
	return err
}

// -- ContextSwitcher --

// Contexts lists the open page targets.
func (b *Browser) Contexts(ctx context.Context) ([]automation.ContextID, error) {
	infos, err := target.GetTargets().Do(b.browserExec(ctx))
	if err != nil {
		return nil, classify(ctx, nil, "list contexts", err)
	}
	ids := make([]automation.ContextID, 0, len(infos))
	for _, info := range infos {
		if info.Type == "page" {
			ids = append(ids, automation.ContextID(info.TargetID))
		}
	}
	return ids, nil
}

func (b *Browser) CurrentContext() automation.ContextID {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

func (b *Browser) SwitchToContext(ctx context.Context, id automation.ContextID) error {
	ids, err := b.Contexts(ctx)
	if err != nil {
		return err
	}
	if !automation.ContainsContext(ids, id) {
		b.forget(id)
		return fmt.Errorf("switch to %s: %w", id, automation.ErrNoSuchContext)
	}
	if err := b.attach(ctx, id); err != nil {
		return err
	}

	b.mu.Lock()
	b.current = id
	b.frames = nil
	b.mu.Unlock()

	if err := b.run(ctx, "bring to front", page.BringToFront()); err != nil {
		b.logger.Debug("Could not bring context to front.", zap.String("context", string(id)), zap.Error(err))
	}
	b.logger.Debug("Switched context.", zap.String("context", string(id)))
	return nil
}

// WaitForNewContext polls the target list until a page outside known shows up.
func (b *Browser) WaitForNewContext(ctx context.Context, known []automation.ContextID, timeout time.Duration) (automation.ContextID, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(b.poll)
	defer ticker.Stop()

	for {
		ids, err := b.Contexts(waitCtx)
		if err == nil {
			for _, id := range ids {
				if !automation.ContainsContext(known, id) {
					return id, nil
				}
			}
		} else if ctx.Err() != nil {
			return "", ctx.Err()
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-waitCtx.Done():
			return "", fmt.Errorf("no new window within %s: %w", timeout, automation.ErrContextTimeout)
		case <-ticker.C:
		}
	}
}

// OpenContext opens a blank tab and focuses it.
func (b *Browser) OpenContext(ctx context.Context) (automation.ContextID, error) {
	tid, err := target.CreateTarget("about:blank").Do(b.browserExec(ctx))
	if err != nil {
		return "", classify(ctx, nil, "open context", err)
	}
	id := automation.ContextID(tid)
	if err := b.SwitchToContext(ctx, id); err != nil {
		return "", err
	}
	return id, nil
}

// CloseCurrentContext closes the focused tab. Nothing is focused afterwards
// until SwitchToContext is called.
func (b *Browser) CloseCurrentContext(ctx context.Context) error {
	b.mu.Lock()
	id := b.current
	t := b.tabs[id]
	b.current = ""
	b.frames = nil
	delete(b.tabs, id)
	b.mu.Unlock()

	if t == nil {
		return fmt.Errorf("close context: %w", automation.ErrNoSuchContext)
	}
	if t.cancel != nil {
		// Cancelling an attached chromedp context closes its target.
		t.cancel()
		return nil
	}
	runCtx, cancel := automation.CombineContext(t.ctx, ctx)
	defer cancel()
	return classify(ctx, t.ctx, "close context", chromedp.Run(runCtx, page.Close()))
}

func (b *Browser) SwitchToFrame(ctx context.Context, frame automation.Element) error {
	ok, err := callElement[bool](ctx, b, "switch to frame", frame, bodyIsFrame)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("switch to frame %s: not a same-origin frame: %w", frame.Ref, automation.ErrNotFound)
	}
	b.mu.Lock()
	b.frames = append(b.frames, frame.Ref)
	b.mu.Unlock()
	return nil
}

func (b *Browser) SwitchToDefaultContent(ctx context.Context) error {
	b.resetFrames()
	return nil
}

// -- Screenshotter --

func (b *Browser) Screenshot(ctx context.Context, path string) error {
	var buf []byte
	if err := b.run(ctx, "screenshot", chromedp.FullScreenshot(&buf, 100)); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create screenshot directory: %w", err)
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("failed to write screenshot: %w", err)
	}
	return nil
}

// Close shuts down every tab and the browser process. Safe to call twice.
func (b *Browser) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	tabs := b.tabs
	b.tabs = nil
	b.current = ""
	b.mu.Unlock()

	for _, t := range tabs {
		if t.cancel != nil {
			t.cancel()
		}
	}
	b.rootCancel()
	b.allocCancel()
	b.logger.Info("Browser closed.")
	return nil
}

// attach makes sure a chromedp context exists for id.
func (b *Browser) attach(ctx context.Context, id automation.ContextID) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("attach %s: browser is closed: %w", id, automation.ErrNoSuchContext)
	}
	if _, ok := b.tabs[id]; ok {
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	tabCtx, cancel := chromedp.NewContext(b.rootCtx, chromedp.WithTargetID(target.ID(id)))
	runCtx, stop := automation.CombineContext(tabCtx, ctx)
	err := chromedp.Run(runCtx, b.persona.Tasks()...)
	stop()
	if err != nil {
		cancel()
		return classify(ctx, tabCtx, "attach "+string(id), err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		cancel()
		return fmt.Errorf("attach %s: browser is closed: %w", id, automation.ErrNoSuchContext)
	}
	if _, ok := b.tabs[id]; ok {
		cancel()
		return nil
	}
	b.tabs[id] = &tab{ctx: tabCtx, cancel: cancel}
	return nil
}

// forget drops a tab whose target is already gone.
func (b *Browser) forget(id automation.ContextID) {
	b.mu.Lock()
	t, ok := b.tabs[id]
	if ok {
		delete(b.tabs, id)
	}
	b.mu.Unlock()
	if ok && t.cancel != nil {
		t.cancel()
	}
}

func (b *Browser) resetFrames() {
	b.mu.Lock()
	b.frames = nil
	b.mu.Unlock()
}
