// Package transfer writes an extracted record into the target system's
// utility form and, when enabled, commits it.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nelakvee/recordsync/api/schemas"
	"github.com/nelakvee/recordsync/internal/automation"
	"github.com/nelakvee/recordsync/internal/config"
	"github.com/nelakvee/recordsync/internal/retry"
)

// TargetProvider exposes the target context handle.
type TargetProvider interface {
	TargetContext() automation.ContextID
}

// Protocol selects a site through the type-ahead search, expands the utility
// section, fills the fields and applies the commit gate. Partially written
// fields are not rolled back on failure.
type Protocol struct {
	surface        automation.Surface
	sessions       TargetProvider
	retry          *retry.Policy
	locators       config.TargetLocators
	timeouts       config.TimeoutsConfig
	settleDelay    time.Duration
	keystrokeDelay time.Duration
	sleep          retry.SleepFunc
	logger         *zap.Logger
}

// NewProtocol creates a transfer protocol bound to the target context.
func NewProtocol(surface automation.Surface, sessions TargetProvider, policy *retry.Policy, cfg config.Interface, logger *zap.Logger) *Protocol {
	return &Protocol{
		surface:        surface,
		sessions:       sessions,
		retry:          policy,
		locators:       cfg.Target().Locators,
		timeouts:       cfg.Timeouts(),
		settleDelay:    cfg.Transfer().SettleDelay,
		keystrokeDelay: cfg.Target().KeystrokeDelay,
		sleep:          retry.Sleep,
		logger:         logger.Named("transfer"),
	}
}

type field struct {
	name  string
	loc   automation.Locator
	value string
}

// Transfer writes rec into the target record identified by key. The commit
// control is always located; it is activated exactly once when commitEnabled
// is true, otherwise the outcome is OutcomeCommitSkipped.
func (p *Protocol) Transfer(ctx context.Context, key string, rec schemas.ExtractedRecord, commitEnabled bool) (schemas.TransferOutcome, error) {
	logger := p.logger.With(zap.String("key", key))

	if err := p.surface.SwitchToContext(ctx, p.sessions.TargetContext()); err != nil {
		if errors.Is(err, automation.ErrNoSuchContext) {
			return schemas.OutcomeNone, fmt.Errorf("focus target: %w: %w", automation.ErrSessionLost, err)
		}
		return schemas.OutcomeNone, fmt.Errorf("focus target: %w", err)
	}

	if err := p.selectSite(ctx, key); err != nil {
		return schemas.OutcomeNone, err
	}
	if err := p.expandSection(ctx); err != nil {
		return schemas.OutcomeNone, err
	}

	fields := []field{
		{"vendor", p.locators.VendorInput, rec.Vendor},
		{"account", p.locators.AccountInput, rec.Account},
		{"meter", p.locators.MeterInput, rec.Meter},
	}
	for _, f := range fields {
		if err := p.fill(ctx, f); err != nil {
			return schemas.OutcomeNone, err
		}
	}

	commit, err := p.surface.WaitFor(ctx, p.locators.Commit, automation.Clickable, p.timeouts.Short)
	if err != nil {
		return schemas.OutcomeNone, fmt.Errorf("locate commit control: %w", err)
	}
	if !commitEnabled {
		logger.Info("Commit disabled; leaving form unsaved")
		return schemas.OutcomeCommitSkipped, nil
	}
	if err := p.surface.Click(ctx, commit); err != nil {
		return schemas.OutcomeNone, fmt.Errorf("commit: %w", err)
	}
	logger.Info("Committed record")
	return schemas.OutcomeCommitted, nil
}

func (p *Protocol) selectSite(ctx context.Context, key string) error {
	err := p.retry.Do(ctx, "enter site key", func(ctx context.Context) error {
		input, err := p.surface.WaitFor(ctx, p.locators.SearchInput, automation.Clickable, p.timeouts.Long)
		if err != nil {
			return err
		}
		if err := p.surface.ClearValue(ctx, input); err != nil {
			return err
		}
		return p.surface.TypeText(ctx, input, key, p.keystrokeDelay)
	})
	if err != nil {
		return fmt.Errorf("enter site key: %w", err)
	}

	// The suggestion list renders asynchronously after typing stops.
	if err := p.sleep(ctx, p.settleDelay); err != nil {
		return fmt.Errorf("wait for suggestions: %w", err)
	}

	// A type-ahead can list a longer key first, so the locator may pin the
	// suggestion to this key.
	loc := p.locators.Suggestion.Bind(key)
	err = p.retry.Do(ctx, "select suggestion", func(ctx context.Context) error {
		suggestion, err := p.surface.WaitFor(ctx, loc, automation.Clickable, p.timeouts.Long)
		if err != nil {
			return err
		}
		return p.surface.Click(ctx, suggestion)
	})
	if err != nil {
		return fmt.Errorf("select suggestion: %w", err)
	}
	return nil
}

// expandSection opens the utility section. It is a no-op when the section is
// already expanded, so repeated calls never collapse it.
func (p *Protocol) expandSection(ctx context.Context) error {
	header, err := p.surface.WaitFor(ctx, p.locators.SectionHeader, automation.Visible, p.timeouts.Long)
	if err != nil {
		return fmt.Errorf("locate section header: %w", err)
	}
	if err := p.surface.ScrollIntoView(ctx, header); err != nil {
		return fmt.Errorf("scroll section header: %w", err)
	}
	expanded, err := p.surface.IsVisible(ctx, p.locators.VendorInput)
	if err != nil {
		return fmt.Errorf("check section state: %w", err)
	}
	if expanded {
		return nil
	}
	if err := p.surface.DispatchClick(ctx, header); err != nil {
		return fmt.Errorf("expand section: %w", err)
	}
	return nil
}

func (p *Protocol) fill(ctx context.Context, f field) error {
	err := p.retry.Do(ctx, "fill "+f.name, func(ctx context.Context) error {
		input, err := p.surface.WaitFor(ctx, f.loc, automation.Clickable, p.timeouts.Short)
		if err != nil {
			return err
		}
		if err := p.surface.ClearValue(ctx, input); err != nil {
			return err
		}
		return p.surface.TypeText(ctx, input, f.value, p.keystrokeDelay)
	})
	if err != nil {
		return fmt.Errorf("fill %s: %w", f.name, err)
	}
	return nil
}
