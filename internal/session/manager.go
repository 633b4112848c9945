// Package session establishes and tracks the authenticated source and target
// browsing contexts for a run.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nelakvee/recordsync/internal/automation"
	"github.com/nelakvee/recordsync/internal/config"
)

// ErrAuthentication marks a fatal login failure on either system.
var ErrAuthentication = errors.New("authentication failed")

const checkpointPrompt = "Complete multi-factor authentication in the browser window."

// Manager owns the source and target context handles. Authentication happens
// once per run and is never retried.
type Manager struct {
	surface    automation.Surface
	checkpoint Checkpoint
	cfg        config.Interface
	logger     *zap.Logger

	mu     sync.Mutex
	state  State
	source automation.ContextID
	target automation.ContextID
}

// NewManager creates a session manager in the Uninitialized state.
func NewManager(surface automation.Surface, checkpoint Checkpoint, cfg config.Interface, logger *zap.Logger) *Manager {
	return &Manager{
		surface:    surface,
		checkpoint: checkpoint,
		cfg:        cfg,
		logger:     logger.Named("session"),
		state:      Uninitialized,
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SourceContext returns the authenticated source handle.
func (m *Manager) SourceContext() automation.ContextID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.source
}

// TargetContext returns the authenticated target handle.
func (m *Manager) TargetContext() automation.ContextID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.target
}

func (m *Manager) transition(from, to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != from {
		return fmt.Errorf("session: cannot move to %s from %s", to, m.state)
	}
	m.state = to
	return nil
}

func (m *Manager) fail(stage string, err error) error {
	m.mu.Lock()
	m.state = Failed
	m.mu.Unlock()
	m.logger.Error("Authentication failed", zap.String("stage", stage), zap.Error(err))
	return fmt.Errorf("%w: %s: %w", ErrAuthentication, stage, err)
}

// Start authenticates the source, then the target.
func (m *Manager) Start(ctx context.Context) error {
	if err := m.EstablishSource(ctx); err != nil {
		return err
	}
	return m.EstablishTarget(ctx)
}

// EstablishSource signs in to the SSO launcher, waits for the operator
// checkpoint, opens the source application tile and adopts the window it
// opens as the source context.
func (m *Manager) EstablishSource(ctx context.Context) error {
	if err := m.transition(Uninitialized, SourceAuthenticating); err != nil {
		return err
	}
	src := m.cfg.Source()
	timeouts := m.cfg.Timeouts()
	loc := src.Locators
	launcher := m.surface.CurrentContext()
	m.logger.Info("Signing in to source launcher", zap.String("url", src.EntryURL))

	if err := m.navigate(ctx, src.EntryURL, timeouts.Long); err != nil {
		return m.fail("open launcher", err)
	}
	if err := m.fill(ctx, loc.Username, src.Identifier, src.KeystrokeDelay, timeouts.Short); err != nil {
		return m.fail("enter identifier", err)
	}
	if err := m.click(ctx, loc.UsernameSubmit, timeouts.Short); err != nil {
		return m.fail("submit identifier", err)
	}

	m.logger.Info("Waiting for operator to complete multi-factor authentication")
	if err := m.awaitCheckpoint(ctx, src.CheckpointTimeout); err != nil {
		return m.fail("operator checkpoint", err)
	}

	tile, err := m.surface.WaitFor(ctx, loc.AppTile, automation.Clickable, timeouts.Long)
	if err != nil {
		return m.fail("find application tile", err)
	}
	known, err := m.surface.Contexts(ctx)
	if err != nil {
		return m.fail("list contexts", err)
	}
	if err := m.surface.Click(ctx, tile); err != nil {
		return m.fail("open application tile", err)
	}
	source, err := m.surface.WaitForNewContext(ctx, known, timeouts.Long)
	if err != nil {
		return m.fail("wait for source window", err)
	}
	if err := m.surface.SwitchToContext(ctx, source); err != nil {
		return m.fail("switch to source window", err)
	}

	if src.CloseLauncherContext && launcher != "" && launcher != source {
		if err := m.closeContext(ctx, launcher, source); err != nil {
			m.logger.Warn("Could not close launcher context", zap.Error(err))
		}
	}

	m.mu.Lock()
	m.source = source
	m.state = SourceReady
	m.mu.Unlock()
	m.logger.Info("Source session ready", zap.String("context", string(source)))
	return nil
}

// EstablishTarget opens a new context and signs in to the target
// application with username and password.
func (m *Manager) EstablishTarget(ctx context.Context) error {
	if err := m.transition(SourceReady, TargetAuthenticating); err != nil {
		return err
	}
	tgt := m.cfg.Target()
	timeouts := m.cfg.Timeouts()
	loc := tgt.Locators
	m.logger.Info("Signing in to target", zap.String("url", tgt.URL))

	target, err := m.surface.OpenContext(ctx)
	if err != nil {
		return m.fail("open target context", err)
	}
	if err := m.navigate(ctx, tgt.URL, timeouts.Long); err != nil {
		return m.fail("open target", err)
	}
	if err := m.fill(ctx, loc.Username, tgt.Username, tgt.KeystrokeDelay, timeouts.Short); err != nil {
		return m.fail("enter username", err)
	}
	if err := m.fill(ctx, loc.Password, tgt.Password, tgt.KeystrokeDelay, timeouts.Short); err != nil {
		return m.fail("enter password", err)
	}
	if err := m.click(ctx, loc.Submit, timeouts.Short); err != nil {
		return m.fail("submit login", err)
	}
	if !loc.Ready.IsZero() {
		if _, err := m.surface.WaitFor(ctx, loc.Ready, automation.Visible, timeouts.Long); err != nil {
			return m.fail("wait for target landing page", err)
		}
	}

	m.mu.Lock()
	m.target = target
	m.state = Ready
	m.mu.Unlock()
	m.logger.Info("Target session ready", zap.String("context", string(target)))
	return nil
}

// EnsureAlive verifies that both session contexts still exist.
func (m *Manager) EnsureAlive(ctx context.Context) error {
	m.mu.Lock()
	state, source, target := m.state, m.source, m.target
	m.mu.Unlock()
	if state != Ready {
		return fmt.Errorf("%w: session is %s", automation.ErrSessionLost, state)
	}
	ids, err := m.surface.Contexts(ctx)
	if err != nil {
		return fmt.Errorf("%w: listing contexts: %w", automation.ErrSessionLost, err)
	}
	for _, id := range []automation.ContextID{source, target} {
		if !automation.ContainsContext(ids, id) {
			return fmt.Errorf("%w: context %s is gone", automation.ErrSessionLost, id)
		}
	}
	return nil
}

// Close releases every context. It is safe to call more than once.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.state == Closed {
		m.mu.Unlock()
		return nil
	}
	m.state = Closed
	m.mu.Unlock()
	m.logger.Info("Closing browser sessions")
	return m.surface.Close()
}

func (m *Manager) navigate(ctx context.Context, url string, timeout time.Duration) error {
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return m.surface.Navigate(navCtx, url)
}

func (m *Manager) fill(ctx context.Context, loc automation.Locator, value string, delay, timeout time.Duration) error {
	el, err := m.surface.WaitFor(ctx, loc, automation.Clickable, timeout)
	if err != nil {
		return err
	}
	return m.surface.TypeText(ctx, el, value, delay)
}

func (m *Manager) click(ctx context.Context, loc automation.Locator, timeout time.Duration) error {
	el, err := m.surface.WaitFor(ctx, loc, automation.Clickable, timeout)
	if err != nil {
		return err
	}
	return m.surface.Click(ctx, el)
}

func (m *Manager) awaitCheckpoint(ctx context.Context, timeout time.Duration) error {
	if m.checkpoint == nil {
		return errors.New("no operator checkpoint configured")
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return m.checkpoint.Await(ctx, checkpointPrompt)
}

func (m *Manager) closeContext(ctx context.Context, id, returnTo automation.ContextID) error {
	if err := m.surface.SwitchToContext(ctx, id); err != nil {
		return err
	}
	closeErr := m.surface.CloseCurrentContext(ctx)
	if err := m.surface.SwitchToContext(ctx, returnTo); err != nil {
		return errors.Join(closeErr, err)
	}
	return closeErr
}
