package transfer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nelakvee/recordsync/api/schemas"
	"github.com/nelakvee/recordsync/internal/automation"
	"github.com/nelakvee/recordsync/internal/automation/automationtest"
	"github.com/nelakvee/recordsync/internal/config"
	"github.com/nelakvee/recordsync/internal/retry"
)

type staticSessions struct{ target automation.ContextID }

func (s staticSessions) TargetContext() automation.ContextID { return s.target }

var record = schemas.ExtractedRecord{Vendor: "ACME Power", Account: "0042-17", Meter: "M-998"}

// targetPage scripts an inventory page whose utility section starts collapsed
// and expands when the header is clicked.
func targetPage(loc config.TargetLocators) *automationtest.Fake {
	f := automationtest.NewFake("inventory")
	f.Show(loc.SearchInput.Selector, "")
	f.Show(loc.Suggestion.Bind("SITE-1").Selector, "SITE-1 Main St")
	f.Show(loc.SectionHeader.Selector, "Utility Info")
	f.Show(loc.Commit.Selector, "Save Utility Information")
	for _, in := range []automation.Locator{loc.VendorInput, loc.AccountInput, loc.MeterInput} {
		f.Set(in.Selector, automationtest.Node{Present: true})
	}
	f.OnClick[loc.SectionHeader.Selector] = func(f *automationtest.Fake) {
		for _, in := range []automation.Locator{loc.VendorInput, loc.AccountInput, loc.MeterInput} {
			f.Set(in.Selector, automationtest.Node{Present: true, Visible: true})
		}
	}
	return f
}

func newProtocol(fake *automationtest.Fake) (*Protocol, *[]time.Duration) {
	cfg := config.NewDefaultConfig()
	policy := retry.NewDefaultPolicy(zap.NewNop())
	policy.Sleep = func(context.Context, time.Duration) error { return nil }
	p := NewProtocol(fake, staticSessions{target: "inventory"}, policy, cfg, zap.NewNop())
	var slept []time.Duration
	p.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return p, &slept
}

func locators() config.TargetLocators {
	return config.NewDefaultConfig().Target().Locators
}

func TestTransfer_CommitDisabled(t *testing.T) {
	loc := locators()
	fake := targetPage(loc)
	p, slept := newProtocol(fake)

	outcome, err := p.Transfer(context.Background(), "SITE-1", record, false)
	require.NoError(t, err)
	assert.Equal(t, schemas.OutcomeCommitSkipped, outcome)

	assert.Equal(t, "SITE-1", fake.Value(loc.SearchInput.Selector))
	assert.Equal(t, "ACME Power", fake.Value(loc.VendorInput.Selector))
	assert.Equal(t, "0042-17", fake.Value(loc.AccountInput.Selector))
	assert.Equal(t, "M-998", fake.Value(loc.MeterInput.Selector))
	assert.Equal(t, 1, fake.Count("Click("+loc.Suggestion.Bind("SITE-1").Selector+")"))
	assert.Equal(t, 1, fake.Count("ScrollIntoView("+loc.SectionHeader.Selector+")"))
	assert.Equal(t, 1, fake.Count("DispatchClick("+loc.SectionHeader.Selector+")"))
	assert.Zero(t, fake.Count("Click("+loc.Commit.Selector+")"))
	assert.Equal(t, 1, fake.Count("WaitFor("+loc.Commit.Selector+",clickable)"))
	assert.Equal(t, []time.Duration{time.Second}, *slept)
}

func TestTransfer_CommitEnabled(t *testing.T) {
	loc := locators()
	fake := targetPage(loc)
	p, _ := newProtocol(fake)

	outcome, err := p.Transfer(context.Background(), "SITE-1", record, true)
	require.NoError(t, err)
	assert.Equal(t, schemas.OutcomeCommitted, outcome)
	assert.Equal(t, 1, fake.Count("Click("+loc.Commit.Selector+")"))
}

func TestTransfer_SectionAlreadyExpanded(t *testing.T) {
	loc := locators()
	fake := targetPage(loc)
	fake.OnClick[loc.SectionHeader.Selector](fake)
	p, _ := newProtocol(fake)

	_, err := p.Transfer(context.Background(), "SITE-1", record, false)
	require.NoError(t, err)
	assert.Zero(t, fake.Count("DispatchClick("+loc.SectionHeader.Selector+")"))
}

func TestTransfer_Failures(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(f *automationtest.Fake, loc config.TargetLocators)
		wantErr   error
		wantTyped bool
	}{
		{
			name:    "no suggestion",
			mutate:  func(f *automationtest.Fake, loc config.TargetLocators) { f.Hide(loc.Suggestion.Bind("SITE-1").Selector) },
			wantErr: automation.ErrNotFound,
		},
		{
			name:    "no section header",
			mutate:  func(f *automationtest.Fake, loc config.TargetLocators) { f.Hide(loc.SectionHeader.Selector) },
			wantErr: automation.ErrNotFound,
		},
		{
			name:      "commit control missing",
			mutate:    func(f *automationtest.Fake, loc config.TargetLocators) { f.Hide(loc.Commit.Selector) },
			wantErr:   automation.ErrNotFound,
			wantTyped: true,
		},
		{
			name: "meter input keeps going stale",
			mutate: func(f *automationtest.Fake, loc config.TargetLocators) {
				f.Fail("TypeText", loc.MeterInput.Selector, automation.ErrStale, automation.ErrStale, automation.ErrStale, automation.ErrStale)
			},
			wantErr:   automation.ErrTransient,
			wantTyped: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			loc := locators()
			fake := targetPage(loc)
			tc.mutate(fake, loc)
			p, _ := newProtocol(fake)

			outcome, err := p.Transfer(context.Background(), "SITE-1", record, true)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.wantErr)
			assert.Equal(t, schemas.OutcomeNone, outcome)
			assert.Zero(t, fake.Count("Click("+loc.Commit.Selector+")"))
			if tc.wantTyped {
				assert.Equal(t, "ACME Power", fake.Value(loc.VendorInput.Selector))
			} else {
				assert.Empty(t, fake.Value(loc.VendorInput.Selector))
			}
		})
	}
}

func TestTransfer_RetriesStaleField(t *testing.T) {
	loc := locators()
	fake := targetPage(loc)
	fake.Fail("TypeText", loc.AccountInput.Selector, automation.ErrStale)
	p, _ := newProtocol(fake)

	_, err := p.Transfer(context.Background(), "SITE-1", record, false)
	require.NoError(t, err)
	assert.Equal(t, "0042-17", fake.Value(loc.AccountInput.Selector))
	assert.Equal(t, 2, fake.Count("TypeText("+loc.AccountInput.Selector+",0042-17)"))
}

func TestTransfer_TargetContextGone(t *testing.T) {
	fake := targetPage(locators())
	fake.DropContext("inventory")
	p, _ := newProtocol(fake)

	_, err := p.Transfer(context.Background(), "SITE-1", record, true)
	assert.ErrorIs(t, err, automation.ErrSessionLost)
}

func TestTransfer_SuggestionPinnedToKey(t *testing.T) {
	loc := locators()
	fake := targetPage(loc)
	fake.Hide(loc.Suggestion.Bind("SITE-1").Selector)
	fake.Show(loc.Suggestion.Bind("SITE-10").Selector, "SITE-10 Harbor Rd")
	p, _ := newProtocol(fake)

	_, err := p.Transfer(context.Background(), "SITE-1", record, true)
	assert.ErrorIs(t, err, automation.ErrNotFound)
	assert.Zero(t, fake.Count("Click("+loc.Suggestion.Bind("SITE-10").Selector+")"))
	assert.Empty(t, fake.Value(loc.VendorInput.Selector))
}

func TestTransfer_UnboundSuggestionLocator(t *testing.T) {
	loc := locators()
	fake := targetPage(loc)
	plain := automation.XPath("//a[contains(@class,'dropdown-item')]")
	fake.Show(plain.Selector, "SITE-1 Main St")
	p, _ := newProtocol(fake)
	p.locators.Suggestion = plain

	_, err := p.Transfer(context.Background(), "SITE-1", record, false)
	require.NoError(t, err)
	assert.Equal(t, 1, fake.Count("Click("+plain.Selector+")"))
}
