package search

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nelakvee/recordsync/internal/automation"
	"github.com/nelakvee/recordsync/internal/automation/automationtest"
	"github.com/nelakvee/recordsync/internal/config"
	"github.com/nelakvee/recordsync/internal/retry"
)

type staticSessions struct{ source automation.ContextID }

func (s staticSessions) SourceContext() automation.ContextID { return s.source }

func locators() config.SourceLocators {
	return config.NewDefaultConfig().Source().Locators
}

func newEngine(fake *automationtest.Fake) *Engine {
	cfg := config.NewDefaultConfig()
	policy := retry.NewDefaultPolicy(zap.NewNop())
	policy.Sleep = func(context.Context, time.Duration) error { return nil }
	return NewEngine(fake, staticSessions{source: "portal"}, policy, cfg, zap.NewNop())
}

func sourcePage(loc config.SourceLocators, labels ...string) *automationtest.Fake {
	f := automationtest.NewFake("portal")
	f.Show(loc.SearchInput.Selector, "")
	f.Show(loc.SearchButton.Selector, "")
	f.Show(loc.ResultsContainer.Selector, "")
	rows := make([]automation.Element, 0, len(labels))
	for i, l := range labels {
		ref := fmt.Sprintf("row%d", i)
		rows = append(rows, automation.Element{Ref: ref})
		f.Show(ref+" >> "+loc.RowLabel.Selector, "  "+l+" ")
		f.Show(ref+" >> "+loc.RowView.Selector, "View...")
	}
	f.Lists[loc.ResultRows.Selector] = rows
	return f
}

func TestMatch(t *testing.T) {
	candidates := []Candidate{
		{Index: 0, Label: "Duke Energy Progress"},
		{Index: 1, Label: "National Grid - NY"},
		{Index: 2, Label: "NATIONAL GRID, NY (Upstate)"},
	}

	t.Run("first containing candidate wins", func(t *testing.T) {
		got, ok := Match(candidates, "Nat'l grid")
		assert.False(t, ok, "apostrophe removal does not expand abbreviations")
		assert.Zero(t, got)

		got, ok = Match(candidates, "national grid ny")
		require.True(t, ok)
		assert.Equal(t, 1, got.Index)
	})

	t.Run("empty expected matches first", func(t *testing.T) {
		got, ok := Match(candidates, "")
		require.True(t, ok)
		assert.Equal(t, 0, got.Index)

		got, ok = Match(candidates, " ... ")
		require.True(t, ok)
		assert.Equal(t, 0, got.Index)
	})

	t.Run("no candidates", func(t *testing.T) {
		_, ok := Match(nil, "")
		assert.False(t, ok)
	})

	t.Run("no match", func(t *testing.T) {
		_, ok := Match(candidates, "Dominion")
		assert.False(t, ok)
	})
}

func TestSearch_ReturnsRowsInOrder(t *testing.T) {
	loc := locators()
	fake := sourcePage(loc, "Duke Energy", "National Grid")
	e := newEngine(fake)

	got, err := e.Search(context.Background(), "SITE-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Duke Energy", got[0].Label)
	assert.Equal(t, "National Grid", got[1].Label)
	assert.Equal(t, automation.Element{Ref: "row1 >> " + loc.RowView.Selector}, got[1].View)

	assert.Equal(t, "SITE-1", fake.Value(loc.SearchInput.Selector))
	calls := fake.Calls()
	assert.Equal(t, "SwitchToContext(portal)", calls[0])
	assert.Equal(t, "Reload(portal)", calls[1])
	assert.Equal(t, "WaitFor("+loc.Overlay.Selector+",absent)", calls[2])
	assert.Equal(t, 1, fake.Count("ClearValue("+loc.SearchInput.Selector+")"))
}

func TestSearch_SkipsStaleRows(t *testing.T) {
	loc := locators()
	fake := sourcePage(loc, "A", "B", "C")
	fake.Fail("Text", "row1 >> "+loc.RowLabel.Selector, automation.ErrStale)
	e := newEngine(fake)

	got, err := e.Search(context.Background(), "K")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []int{0, 2}, []int{got[0].Index, got[1].Index})
}

func TestSearch_NoResultsContainer(t *testing.T) {
	loc := locators()
	fake := sourcePage(loc)
	fake.Hide(loc.ResultsContainer.Selector)
	e := newEngine(fake)

	_, err := e.Search(context.Background(), "K")
	assert.ErrorIs(t, err, ErrNoResults)
	assert.ErrorIs(t, err, automation.ErrNotFound)
}

func TestSearch_OverlayNeverClears(t *testing.T) {
	loc := locators()
	fake := sourcePage(loc, "A")
	fake.Show(loc.Overlay.Selector, "")
	e := newEngine(fake)

	_, err := e.Search(context.Background(), "K")
	require.Error(t, err)
	assert.ErrorIs(t, err, automation.ErrNotFound)
	assert.NotErrorIs(t, err, ErrNoResults)
	assert.Zero(t, fake.Count("TypeText("+loc.SearchInput.Selector+",K)"))
}

func TestSearch_RetriesStaleTyping(t *testing.T) {
	loc := locators()
	fake := sourcePage(loc, "A")
	fake.Fail("TypeText", loc.SearchInput.Selector, automation.ErrStale, automation.ErrStale)
	e := newEngine(fake)

	_, err := e.Search(context.Background(), "K")
	require.NoError(t, err)
	assert.Equal(t, 3, fake.Count("TypeText("+loc.SearchInput.Selector+",K)"))
	// Each attempt clears the field first so the key is never doubled.
	assert.Equal(t, "K", fake.Value(loc.SearchInput.Selector))
}

func TestSearch_SourceContextGone(t *testing.T) {
	loc := locators()
	fake := sourcePage(loc, "A")
	fake.DropContext("portal")
	e := newEngine(fake)

	_, err := e.Search(context.Background(), "K")
	assert.ErrorIs(t, err, automation.ErrSessionLost)
}
