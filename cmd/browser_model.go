package cmd

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"mts/internal/cache"
	"mts/internal/state"
)

// browserState represents the current view state
type browserState int

const (
	stateLoading browserState = iota
	stateEntryList
	stateEntryDetail
	stateError
	stateHelp
)

// entryStore holds the browser's view of the cache
type entryStore = state.Store[state.Collection[cache.EntryInfo], state.Action]

// browserModel is the main Bubble Tea model
type browserModel struct {
	state     browserState
	cache     cache.Admin
	entries   *entryStore
	keys      *KeyDispatcher
	now       func() time.Time
	freshness time.Duration

	// Entry list state
	tableModel table.Model
	visible    []cache.EntryInfo

	// Entry detail state
	selected *cache.EntryInfo
	value    viewport.Model

	search SearchState

	// UI state
	err    error
	width  int
	height int

	// Vim-style key sequences like 'gg', 'yy' and 'dd'
	lastKey string

	statusMessage string

	previousState browserState
	unsubscribe   func()
}

// SearchState filters the entry list by key substring
type SearchState struct {
	Active   bool
	Query    string
	Filtered []cache.EntryInfo
}

// Clear resets the search state
func (s *SearchState) Clear() {
	s.Active = false
	s.Query = ""
	s.Filtered = nil
}

// IsEmpty returns true if no filter is applied
func (s *SearchState) IsEmpty() bool {
	return s.Query == ""
}

// ResultCount returns the number of filtered results
func (s *SearchState) ResultCount() int {
	return len(s.Filtered)
}

// HasResults returns true if there are filtered results
func (s *SearchState) HasResults() bool {
	return s.ResultCount() > 0
}

// Apply recomputes Filtered from entries
func (s *SearchState) Apply(entries []cache.EntryInfo) {
	if s.IsEmpty() {
		s.Filtered = nil
		return
	}
	needle := strings.ToLower(s.Query)
	s.Filtered = s.Filtered[:0]
	for _, e := range entries {
		if strings.Contains(strings.ToLower(e.Key), needle) {
			s.Filtered = append(s.Filtered, e)
		}
	}
}

// Messages for async operations
type entriesLoadedMsg struct {
	entries []cache.EntryInfo
	at      time.Time
}

type valueLoadedMsg struct {
	key   string
	value json.RawMessage
	found bool
}

type entryDeletedMsg struct {
	key string
}

type errorMsg struct {
	err error
}

// Commands for async operations
func loadEntries(c cache.Admin, now func() time.Time) tea.Cmd {
	return func() tea.Msg {
		entries, err := c.Entries(context.Background())
		if err != nil {
			return errorMsg{err}
		}
		return entriesLoadedMsg{entries: entries, at: now()}
	}
}

func loadValue(c cache.Admin, key string) tea.Cmd {
	return func() tea.Msg {
		value, found := c.Get(context.Background(), key)
		return valueLoadedMsg{key: key, value: value, found: found}
	}
}

func deleteEntry(c cache.Admin, key string) tea.Cmd {
	return func() tea.Msg {
		if err := c.Delete(context.Background(), key); err != nil {
			return errorMsg{err}
		}
		return entryDeletedMsg{key}
	}
}
