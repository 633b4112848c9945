// Package search finds candidate rows for a record key in the source system
// and picks the one whose label matches the expected label.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nelakvee/recordsync/internal/automation"
	"github.com/nelakvee/recordsync/internal/config"
	"github.com/nelakvee/recordsync/internal/normalize"
	"github.com/nelakvee/recordsync/internal/retry"
)

// ErrNoResults is returned when the results container never appears.
var ErrNoResults = errors.New("search returned no results")

// Candidate is one result row. It is only valid until the next search.
type Candidate struct {
	Index int
	Label string
	View  automation.Element
}

// SourceProvider exposes the source context handle.
type SourceProvider interface {
	SourceContext() automation.ContextID
}

// Engine runs searches against the source system.
type Engine struct {
	surface        automation.Surface
	sessions       SourceProvider
	retry          *retry.Policy
	locators       config.SourceLocators
	timeouts       config.TimeoutsConfig
	keystrokeDelay time.Duration
	logger         *zap.Logger
}

// NewEngine creates a search engine bound to the source context.
func NewEngine(surface automation.Surface, sessions SourceProvider, policy *retry.Policy, cfg config.Interface, logger *zap.Logger) *Engine {
	return &Engine{
		surface:        surface,
		sessions:       sessions,
		retry:          policy,
		locators:       cfg.Source().Locators,
		timeouts:       cfg.Timeouts(),
		keystrokeDelay: cfg.Source().KeystrokeDelay,
		logger:         logger.Named("search"),
	}
}

// Search resets the source page, submits key and returns every result row in
// document order. Rows whose label cannot be read are skipped.
func (e *Engine) Search(ctx context.Context, key string) ([]Candidate, error) {
	logger := e.logger.With(zap.String("key", key))

	if err := e.surface.SwitchToContext(ctx, e.sessions.SourceContext()); err != nil {
		return nil, sessionErr("focus source", err)
	}

	reloadCtx, cancel := context.WithTimeout(ctx, e.timeouts.Long)
	err := e.surface.Reload(reloadCtx)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("reload source: %w", err)
	}
	if _, err := e.surface.WaitFor(ctx, e.locators.Overlay, automation.Absent, e.timeouts.Long); err != nil {
		return nil, fmt.Errorf("wait for loading overlay: %w", err)
	}

	err = e.retry.Do(ctx, "enter search key", func(ctx context.Context) error {
		input, err := e.surface.WaitFor(ctx, e.locators.SearchInput, automation.Clickable, e.timeouts.Long)
		if err != nil {
			return err
		}
		if err := e.surface.ClearValue(ctx, input); err != nil {
			return err
		}
		return e.surface.TypeText(ctx, input, key, e.keystrokeDelay)
	})
	if err != nil {
		return nil, fmt.Errorf("enter search key: %w", err)
	}

	err = e.retry.Do(ctx, "submit search", func(ctx context.Context) error {
		button, err := e.surface.WaitFor(ctx, e.locators.SearchButton, automation.Clickable, e.timeouts.Long)
		if err != nil {
			return err
		}
		return e.surface.Click(ctx, button)
	})
	if err != nil {
		return nil, fmt.Errorf("submit search: %w", err)
	}

	if _, err := e.surface.WaitFor(ctx, e.locators.ResultsContainer, automation.Present, e.timeouts.Long); err != nil {
		if errors.Is(err, automation.ErrNotFound) {
			return nil, fmt.Errorf("%w: %w", ErrNoResults, err)
		}
		return nil, fmt.Errorf("wait for results: %w", err)
	}

	rows, err := e.surface.LocateAll(ctx, e.locators.ResultRows)
	if err != nil {
		return nil, fmt.Errorf("list result rows: %w", err)
	}

	candidates := make([]Candidate, 0, len(rows))
	for i, row := range rows {
		c, err := e.readRow(ctx, i, row)
		if err != nil {
			if errors.Is(err, automation.ErrStale) || errors.Is(err, automation.ErrNotFound) {
				logger.Warn("Skipping unreadable result row", zap.Int("row", i), zap.Error(err))
				continue
			}
			return nil, err
		}
		candidates = append(candidates, c)
	}
	logger.Debug("Search complete", zap.Int("rows", len(rows)), zap.Int("candidates", len(candidates)))
	return candidates, nil
}

func (e *Engine) readRow(ctx context.Context, i int, row automation.Element) (Candidate, error) {
	labelEl, err := e.surface.LocateWithin(ctx, row, e.locators.RowLabel)
	if err != nil {
		return Candidate{}, fmt.Errorf("row %d label: %w", i, err)
	}
	label, err := e.surface.Text(ctx, labelEl)
	if err != nil {
		return Candidate{}, fmt.Errorf("row %d label text: %w", i, err)
	}
	view, err := e.surface.LocateWithin(ctx, row, e.locators.RowView)
	if err != nil {
		return Candidate{}, fmt.Errorf("row %d view action: %w", i, err)
	}
	return Candidate{Index: i, Label: strings.TrimSpace(label), View: view}, nil
}

// Match returns the first candidate whose normalized label contains the
// normalized expected label. An empty expected label matches the first
// candidate.
func Match(candidates []Candidate, expected string) (Candidate, bool) {
	want := normalize.Label(expected)
	for _, c := range candidates {
		if strings.Contains(normalize.Label(c.Label), want) {
			return c, true
		}
	}
	return Candidate{}, false
}

func sessionErr(step string, err error) error {
	if errors.Is(err, automation.ErrNoSuchContext) {
		return fmt.Errorf("%s: %w: %w", step, automation.ErrSessionLost, err)
	}
	return fmt.Errorf("%s: %w", step, err)
}
