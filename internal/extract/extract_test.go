package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nelakvee/recordsync/api/schemas"
	"github.com/nelakvee/recordsync/internal/automation"
	"github.com/nelakvee/recordsync/internal/automation/automationtest"
	"github.com/nelakvee/recordsync/internal/config"
)

type staticSessions struct{ source automation.ContextID }

func (s staticSessions) SourceContext() automation.ContextID { return s.source }

var view = automation.Element{Ref: "row0 >> view"}

// detailPage scripts a source window whose view link opens a "detail" window
// holding the frame and the three fields.
func detailPage(loc config.SourceLocators) *automationtest.Fake {
	f := automationtest.NewFake("portal")
	f.OnClick[view.Ref] = func(f *automationtest.Fake) { f.AddContext("detail") }
	f.Set(loc.DetailFrame.Selector, automationtest.Node{Context: "detail", Present: true, Visible: true})
	f.Set(loc.Vendor.Selector, automationtest.Node{Context: "detail", Present: true, Visible: true, Text: " ACME Power / Billing Dept "})
	f.Set(loc.Account.Selector, automationtest.Node{Context: "detail", Present: true, Visible: true, Text: " 0042-17 "})
	f.Set(loc.Meter.Selector, automationtest.Node{Context: "detail", Present: true, Visible: true, Text: "M-998"})
	return f
}

func newProtocol(fake *automationtest.Fake) (*Protocol, config.SourceLocators) {
	cfg := config.NewDefaultConfig()
	return NewProtocol(fake, staticSessions{source: "portal"}, cfg, zap.NewNop()), cfg.Source().Locators
}

// assertRestored checks that focus is back on the top-level source document
// and the detail window is gone.
func assertRestored(t *testing.T, fake *automationtest.Fake) {
	t.Helper()
	assert.Equal(t, automation.ContextID("portal"), fake.CurrentContext())
	assert.Zero(t, fake.FrameDepth())
	ids, err := fake.Contexts(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, ids, automation.ContextID("detail"))
}

func TestExtract_Success(t *testing.T) {
	loc := config.NewDefaultConfig().Source().Locators
	fake := detailPage(loc)
	p, _ := newProtocol(fake)

	rec, err := p.Extract(context.Background(), view)
	require.NoError(t, err)
	assert.Equal(t, schemas.ExtractedRecord{Vendor: "ACME Power", Account: "0042-17", Meter: "M-998"}, rec)

	calls := fake.Calls()
	require.GreaterOrEqual(t, len(calls), 4)
	assert.Equal(t, []string{
		"SwitchToDefaultContent",
		"CloseCurrentContext(detail)",
		"SwitchToContext(portal)",
		"SwitchToDefaultContent",
	}, calls[len(calls)-4:])
	assertRestored(t, fake)
}

func TestExtract_FailuresAlwaysRestoreFocus(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(f *automationtest.Fake, loc config.SourceLocators)
		wantErr error
		opened  bool
	}{
		{
			name:    "no detail window",
			mutate:  func(f *automationtest.Fake, _ config.SourceLocators) { delete(f.OnClick, view.Ref) },
			wantErr: automation.ErrContextTimeout,
		},
		{
			name:    "frame never appears",
			mutate:  func(f *automationtest.Fake, loc config.SourceLocators) { delete(f.Nodes, loc.DetailFrame.Selector) },
			wantErr: automation.ErrContextTimeout,
			opened:  true,
		},
		{
			name:    "vendor field never visible",
			mutate:  func(f *automationtest.Fake, loc config.SourceLocators) { f.Hide(loc.Vendor.Selector) },
			wantErr: automation.ErrNotFound,
			opened:  true,
		},
		{
			name: "account read goes stale",
			mutate: func(f *automationtest.Fake, loc config.SourceLocators) {
				f.Fail("Text", loc.Account.Selector, automation.ErrStale)
			},
			wantErr: automation.ErrStale,
			opened:  true,
		},
		{
			name: "meter empty",
			mutate: func(f *automationtest.Fake, loc config.SourceLocators) {
				f.Set(loc.Meter.Selector, automationtest.Node{Context: "detail", Present: true, Visible: true, Text: "   "})
			},
			wantErr: ErrIncompleteRecord,
			opened:  true,
		},
		{
			name: "click fails",
			mutate: func(f *automationtest.Fake, _ config.SourceLocators) {
				f.Fail("Click", view.Ref, automation.ErrStale)
			},
			wantErr: automation.ErrStale,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			loc := config.NewDefaultConfig().Source().Locators
			fake := detailPage(loc)
			tc.mutate(fake, loc)
			p, _ := newProtocol(fake)

			rec, err := p.Extract(context.Background(), view)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.wantErr)
			assert.NotErrorIs(t, err, automation.ErrSessionLost)
			assert.Zero(t, rec)
			assertRestored(t, fake)
			if tc.opened {
				assert.Equal(t, 1, fake.Count("CloseCurrentContext(detail)"))
			} else {
				assert.Zero(t, fake.Count("CloseCurrentContext(detail)"))
			}
		})
	}
}

func TestExtract_CleanupRunsAfterCancellation(t *testing.T) {
	loc := config.NewDefaultConfig().Source().Locators
	fake := detailPage(loc)
	p, _ := newProtocol(fake)

	ctx, cancel := context.WithCancel(context.Background())
	fake.OnClick[view.Ref] = func(f *automationtest.Fake) {
		f.AddContext("detail")
		cancel()
	}

	_, err := p.Extract(ctx, view)
	assert.ErrorIs(t, err, context.Canceled)
	assertRestored(t, fake)
}

func TestExtract_ClosesEveryWindowTheClickOpened(t *testing.T) {
	loc := config.NewDefaultConfig().Source().Locators
	fake := detailPage(loc)
	fake.AddContext("inventory")
	fake.OnClick[view.Ref] = func(f *automationtest.Fake) {
		f.AddContext("detail")
		f.AddContext("survey")
	}
	p, _ := newProtocol(fake)

	rec, err := p.Extract(context.Background(), view)
	require.NoError(t, err)
	assert.Equal(t, "M-998", rec.Meter)
	assertRestored(t, fake)

	ids, err := fake.Contexts(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []automation.ContextID{"portal", "inventory"}, ids)
	assert.Equal(t, 1, fake.Count("CloseCurrentContext(detail)"))
	assert.Equal(t, 1, fake.Count("CloseCurrentContext(survey)"))
	assert.Zero(t, fake.Count("CloseCurrentContext(inventory)"))
}

func TestExtract_ClosesWindowOpenedAfterWaitExpired(t *testing.T) {
	loc := config.NewDefaultConfig().Source().Locators
	fake := detailPage(loc)
	fake.Fail("WaitForNewContext", "", automation.ErrContextTimeout)
	p, _ := newProtocol(fake)

	rec, err := p.Extract(context.Background(), view)
	require.Error(t, err)
	assert.ErrorIs(t, err, automation.ErrContextTimeout)
	assert.Zero(t, rec)
	assertRestored(t, fake)
	assert.Equal(t, 1, fake.Count("CloseCurrentContext(detail)"))
}

func TestExtract_CleanupFallsBackToDetailWhenListingFails(t *testing.T) {
	loc := config.NewDefaultConfig().Source().Locators
	fake := detailPage(loc)
	fake.OnClick[view.Ref] = func(f *automationtest.Fake) {
		f.AddContext("detail")
		f.Fail("Contexts", "", automation.ErrTransient)
	}
	p, _ := newProtocol(fake)

	_, err := p.Extract(context.Background(), view)
	require.NoError(t, err)
	assertRestored(t, fake)
}

func TestExtract_SourceLost(t *testing.T) {
	loc := config.NewDefaultConfig().Source().Locators
	fake := detailPage(loc)
	fake.OnClick[view.Ref] = func(f *automationtest.Fake) {
		f.AddContext("detail")
		f.DropContext("portal")
	}
	p, _ := newProtocol(fake)

	_, err := p.Extract(context.Background(), view)
	require.Error(t, err)
	assert.ErrorIs(t, err, automation.ErrSessionLost)
}

func TestVendorName(t *testing.T) {
	assert.Equal(t, "ACME Power", VendorName(" ACME Power / Billing / X", "/"))
	assert.Equal(t, "No Separator", VendorName("No Separator ", "/"))
	assert.Equal(t, "", VendorName("/leading", "/"))
	assert.Equal(t, "A", VendorName("A | B", "|"))
	assert.Equal(t, "A / B", VendorName("A / B", ""))
}
