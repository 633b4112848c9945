// Package extract reads the structured fields of a matched source record from
// its detail view, which opens in a new window and renders inside a frame.
package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/nelakvee/recordsync/api/schemas"
	"github.com/nelakvee/recordsync/internal/automation"
	"github.com/nelakvee/recordsync/internal/config"
)

// ErrIncompleteRecord is returned when a mandatory field reads empty.
var ErrIncompleteRecord = errors.New("extracted record is incomplete")

// SourceProvider exposes the source context handle.
type SourceProvider interface {
	SourceContext() automation.ContextID
}

// Protocol drives the detail view: open it, enter its frame, read the three
// fields, and always return focus to the source context.
type Protocol struct {
	surface   automation.Surface
	sessions  SourceProvider
	locators  config.SourceLocators
	timeouts  config.TimeoutsConfig
	separator string
	logger    *zap.Logger
}

// NewProtocol creates an extraction protocol bound to the source context.
func NewProtocol(surface automation.Surface, sessions SourceProvider, cfg config.Interface, logger *zap.Logger) *Protocol {
	return &Protocol{
		surface:   surface,
		sessions:  sessions,
		locators:  cfg.Source().Locators,
		timeouts:  cfg.Timeouts(),
		separator: cfg.Source().VendorSeparator,
		logger:    logger.Named("extract"),
	}
}

// Extract activates view, reads the record from the detail window and closes
// it. Whatever happens, the focused context is the source context with the
// top-level document selected when Extract returns, unless the source
// context itself is gone, in which case the error wraps ErrSessionLost.
func (p *Protocol) Extract(ctx context.Context, view automation.Element) (rec schemas.ExtractedRecord, err error) {
	source := p.sessions.SourceContext()
	var (
		known  []automation.ContextID
		detail automation.ContextID
	)

	defer func() {
		if cleanupErr := p.cleanup(ctx, source, known, detail); cleanupErr != nil {
			err = errors.Join(err, cleanupErr)
			rec = schemas.ExtractedRecord{}
		}
	}()

	known, err = p.surface.Contexts(ctx)
	if err != nil {
		return rec, fmt.Errorf("list contexts: %w", err)
	}
	if err := p.surface.Click(ctx, view); err != nil {
		return rec, fmt.Errorf("open detail view: %w", err)
	}

	// The first new window is adopted; any other the click opened is closed
	// during cleanup.
	detail, err = p.surface.WaitForNewContext(ctx, known, p.timeouts.Long)
	if err != nil {
		return rec, fmt.Errorf("wait for detail window: %w", err)
	}
	if err := p.surface.SwitchToContext(ctx, detail); err != nil {
		return rec, fmt.Errorf("switch to detail window: %w", err)
	}

	frame, err := p.surface.WaitFor(ctx, p.locators.DetailFrame, automation.Present, p.timeouts.Long)
	if err != nil {
		if errors.Is(err, automation.ErrNotFound) {
			return rec, fmt.Errorf("wait for detail frame: %w: %w", automation.ErrContextTimeout, err)
		}
		return rec, fmt.Errorf("wait for detail frame: %w", err)
	}
	if err := p.surface.SwitchToFrame(ctx, frame); err != nil {
		return rec, fmt.Errorf("enter detail frame: %w", err)
	}

	vendorEl, err := p.surface.WaitFor(ctx, p.locators.Vendor, automation.Visible, p.timeouts.Long)
	if err != nil {
		return rec, fmt.Errorf("wait for vendor field: %w", err)
	}
	vendor, err := p.surface.Text(ctx, vendorEl)
	if err != nil {
		return rec, fmt.Errorf("read vendor: %w", err)
	}
	rec.Vendor = VendorName(vendor, p.separator)

	if rec.Account, err = p.read(ctx, p.locators.Account); err != nil {
		return schemas.ExtractedRecord{}, fmt.Errorf("read account: %w", err)
	}
	if rec.Meter, err = p.read(ctx, p.locators.Meter); err != nil {
		return schemas.ExtractedRecord{}, fmt.Errorf("read meter: %w", err)
	}

	if !rec.Complete() {
		return schemas.ExtractedRecord{}, fmt.Errorf("%w: vendor=%q account=%q meter=%q", ErrIncompleteRecord, rec.Vendor, rec.Account, rec.Meter)
	}
	p.logger.Debug("Extracted record", zap.String("vendor", rec.Vendor), zap.String("account", rec.Account), zap.String("meter", rec.Meter))
	return rec, nil
}

func (p *Protocol) read(ctx context.Context, loc automation.Locator) (string, error) {
	el, err := p.surface.WaitFor(ctx, loc, automation.Present, p.timeouts.Short)
	if err != nil {
		return "", err
	}
	text, err := p.surface.Text(ctx, el)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// cleanup closes every window opened since known was taken, including one
// that appeared after the wait gave up, then refocuses the source context
// with the top-level document selected. It runs on a detached context so that
// a canceled or expired caller context does not skip it.
func (p *Protocol) cleanup(ctx context.Context, source automation.ContextID, known []automation.ContextID, detail automation.ContextID) error {
	cctx, cancel := context.WithTimeout(automation.Detach(ctx), p.timeouts.Short)
	defer cancel()

	var errs []error
	for _, id := range p.opened(cctx, source, known, detail) {
		if err := p.closeContext(cctx, id); err != nil {
			errs = append(errs, fmt.Errorf("cleanup: close window %s: %w", id, err))
		}
	}

	if err := p.surface.SwitchToContext(cctx, source); err != nil {
		if errors.Is(err, automation.ErrNoSuchContext) {
			err = fmt.Errorf("%w: %w", automation.ErrSessionLost, err)
		}
		errs = append(errs, fmt.Errorf("cleanup: return to source: %w", err))
	} else if err := p.surface.SwitchToDefaultContent(cctx); err != nil {
		errs = append(errs, fmt.Errorf("cleanup: reset source frame: %w", err))
	}

	if len(errs) > 0 {
		p.logger.Warn("Detail view cleanup incomplete", zap.Errors("errors", errs))
	}
	return errors.Join(errs...)
}

// opened lists the windows absent from known. A nil known means the view was
// never activated. When listing fails only the adopted detail window is known.
func (p *Protocol) opened(ctx context.Context, source automation.ContextID, known []automation.ContextID, detail automation.ContextID) []automation.ContextID {
	if known == nil {
		return nil
	}
	ids, err := p.surface.Contexts(ctx)
	if err != nil {
		p.logger.Warn("Could not list windows during cleanup", zap.Error(err))
		if detail == "" {
			return nil
		}
		return []automation.ContextID{detail}
	}
	var out []automation.ContextID
	for _, id := range ids {
		if id != source && !automation.ContainsContext(known, id) {
			out = append(out, id)
		}
	}
	return out
}

// closeContext leaves any frame in id and closes it. A window that is already
// gone counts as closed.
func (p *Protocol) closeContext(ctx context.Context, id automation.ContextID) error {
	if p.surface.CurrentContext() != id {
		if err := p.surface.SwitchToContext(ctx, id); err != nil {
			if errors.Is(err, automation.ErrNoSuchContext) {
				return nil
			}
			return err
		}
	}
	if err := p.surface.SwitchToDefaultContent(ctx); err != nil {
		return err
	}
	return p.surface.CloseCurrentContext(ctx)
}

// VendorName returns the portion of raw before the first separator, trimmed.
func VendorName(raw, separator string) string {
	if separator != "" {
		if i := strings.Index(raw, separator); i >= 0 {
			raw = raw[:i]
		}
	}
	return strings.TrimSpace(raw)
}
