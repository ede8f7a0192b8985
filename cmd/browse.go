package cmd

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/tidwall/pretty"

	"mts/internal/cache"
	"mts/internal/config"
	"mts/internal/state"
	"mts/internal/utils"
)

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Interactive cache browser",
	Long: `Browse cached search results interactively with a terminal UI.

Navigate entries with vim-style keys, inspect values, copy keys and delete
stale entries. Press ? inside the browser for all shortcuts.

When stdout is not a terminal the entry list is printed instead.`,
	Args: cobra.NoArgs,
	RunE: runBrowse,
}

func init() {
	rootCmd.AddCommand(browseCmd)
}

func runBrowse(cmd *cobra.Command, args []string) error {
	c := openCache()
	defer c.Close()

	if !isatty.IsTerminal(fileDescriptor(cmd)) {
		return runStaticBrowse(cmd, c)
	}

	model := newBrowserModel(c, cfg.Cache.Freshness, time.Now)
	defer model.Close()

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
	if _, err := p.Run(); err != nil {
		// Fallback to static listing if interactive mode fails
		return runStaticBrowse(cmd, c)
	}
	return nil
}

func fileDescriptor(cmd *cobra.Command) uintptr {
	type fder interface{ Fd() uintptr }
	if f, ok := cmd.OutOrStdout().(fder); ok {
		return f.Fd()
	}
	return ^uintptr(0)
}

func runStaticBrowse(cmd *cobra.Command, c cache.Admin) error {
	entries, err := c.Entries(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list cache entries: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(out, "Cache is empty")
		return nil
	}
	renderEntriesTable(out, entries, time.Now(), cfg.Cache.Freshness)
	return nil
}

func newBrowserModel(c cache.Admin, freshness time.Duration, now func() time.Time) *browserModel {
	columns := []table.Column{
		{Title: "Key", Width: config.KeyColumnWidth},
		{Title: "Size", Width: config.SizeColumnWidth},
		{Title: "Written", Width: config.AgeColumnWidth},
		{Title: "Status", Width: 8},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(config.DefaultTableHeight),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(darkGray).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	m := &browserModel{
		state:      stateLoading,
		cache:      c,
		entries:    state.NewCollectionStore[cache.EntryInfo](),
		keys:       NewKeyDispatcher(),
		now:        now,
		freshness:  freshness,
		tableModel: t,
		value:      viewport.New(0, 0),
	}
	m.unsubscribe = m.entries.Subscribe(m.applyCollection)
	return m
}

// Close detaches the model from its entry store
func (m *browserModel) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

// Init implements tea.Model
func (m *browserModel) Init() tea.Cmd {
	m.entries.Dispatch(state.Loading{})
	return loadEntries(m.cache, m.now)
}

// Update implements tea.Model
func (m *browserModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return m, nil

	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case entriesLoadedMsg:
		m.entries.Dispatch(state.Loaded[cache.EntryInfo]{Items: msg.entries, At: msg.at})
		if m.state == stateLoading {
			m.state = stateEntryList
		}
		return m, nil

	case valueLoadedMsg:
		if m.selected == nil || m.selected.Key != msg.key {
			return m, nil
		}
		if !msg.found {
			m.setStatus(fmt.Sprintf("%s is no longer cached", msg.key))
			m.closeDetail()
			m.entries.Dispatch(state.Invalidated{})
			return m, loadEntries(m.cache, m.now)
		}
		m.value.SetContent(string(pretty.Pretty(msg.value)))
		m.value.GotoTop()
		return m, nil

	case entryDeletedMsg:
		m.entries.Dispatch(state.Removed{Key: msg.key})
		m.setStatus(fmt.Sprintf("Deleted %s", msg.key))
		if m.state == stateEntryDetail {
			m.closeDetail()
		}
		return m, nil

	case errorMsg:
		m.entries.Dispatch(state.Failed{Err: msg.err})
		m.err = msg.err
		m.state = stateError
		return m, nil
	}

	return m, nil
}

// View implements tea.Model
func (m *browserModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	switch m.state {
	case stateLoading:
		return m.renderLoading()
	case stateEntryList:
		return m.renderEntryList()
	case stateEntryDetail:
		return m.renderEntryDetail()
	case stateError:
		return m.renderError()
	case stateHelp:
		return m.renderHelp()
	default:
		return "Unknown state"
	}
}

func (m *browserModel) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	return m.keys.Dispatch(m, msg)
}

// applyCollection mirrors the entry store into the table component
func (m *browserModel) applyCollection(c state.Collection[cache.EntryInfo]) {
	m.search.Apply(c.Items)
	m.updateTableRows(c.Items)
}

func (m *browserModel) updateTableRows(all []cache.EntryInfo) {
	m.visible = all
	if !m.search.IsEmpty() {
		m.visible = m.search.Filtered
	}

	now := m.now()
	rows := make([]table.Row, len(m.visible))
	for i, e := range m.visible {
		rows[i] = table.Row{
			e.Key,
			utils.FormatBytes(e.Size),
			utils.FormatAge(e.Timestamp, now),
			entryStatus(e, now, m.freshness),
		}
	}
	m.tableModel.SetRows(rows)

	if n := len(rows); n > 0 && m.tableModel.Cursor() >= n {
		m.tableModel.SetCursor(n - 1)
	}
}

func (m *browserModel) refreshRows() {
	m.applyCollection(m.entries.State())
}

func (m *browserModel) resize() {
	tableHeight := m.height - 8 // header, footer and padding
	if tableHeight < config.MinTableHeight {
		tableHeight = config.MinTableHeight
	}
	m.tableModel.SetHeight(tableHeight)

	m.value.Width = max(m.width-4, 0)
	m.value.Height = tableHeight
}

// currentEntry returns the entry under the cursor
func (m *browserModel) currentEntry() (cache.EntryInfo, bool) {
	i := m.tableModel.Cursor()
	if i < 0 || i >= len(m.visible) {
		return cache.EntryInfo{}, false
	}
	return m.visible[i], true
}

func (m *browserModel) handleNavigation(direction string) {
	if m.state == stateEntryDetail {
		switch direction {
		case "up":
			m.value.SetYOffset(m.value.YOffset - 1)
		case "down":
			m.value.SetYOffset(m.value.YOffset + 1)
		case "top":
			m.value.GotoTop()
		case "bottom":
			m.value.GotoBottom()
		}
		return
	}

	switch direction {
	case "up":
		m.tableModel.MoveUp(1)
	case "down":
		m.tableModel.MoveDown(1)
	case "top":
		m.tableModel.GotoTop()
	case "bottom":
		m.tableModel.GotoBottom()
	}
}

func (m *browserModel) openDetail() tea.Cmd {
	entry, ok := m.currentEntry()
	if !ok {
		return nil
	}
	m.selected = &entry
	m.value.SetContent("")
	m.state = stateEntryDetail
	if !entry.HasValue {
		m.value.SetContent("(timestamp without value)")
		return nil
	}
	return loadValue(m.cache, entry.Key)
}

func (m *browserModel) closeDetail() {
	m.selected = nil
	m.value.SetContent("")
	m.state = stateEntryList
}

func (m *browserModel) refresh() tea.Cmd {
	m.entries.Dispatch(state.Invalidated{})
	m.entries.Dispatch(state.Loading{})
	m.setStatus("Refreshing...")
	return loadEntries(m.cache, m.now)
}

func (m *browserModel) copyCurrentKey() {
	key := ""
	if m.selected != nil {
		key = m.selected.Key
	} else if entry, ok := m.currentEntry(); ok {
		key = entry.Key
	}
	if key == "" {
		return
	}

	if err := utils.CopyToClipboard(key); err != nil {
		m.setStatus(fmt.Sprintf("Copy failed: %v", err))
		return
	}
	m.setStatus(fmt.Sprintf("Copied %s", key))
}

func (m *browserModel) setStatus(msg string) {
	m.statusMessage = msg
}

// handleSearchInput edits the key filter while search mode is active
func (m *browserModel) handleSearchInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEscape:
		m.clearSearchState()
		return m, nil
	case tea.KeyEnter:
		m.search.Active = false
		return m, nil
	case tea.KeyBackspace:
		if r := []rune(m.search.Query); len(r) > 0 {
			m.search.Query = string(r[:len(r)-1])
			m.refreshRows()
		}
		return m, nil
	case tea.KeyUp:
		m.handleNavigation("up")
		return m, nil
	case tea.KeyDown:
		m.handleNavigation("down")
		return m, nil
	case tea.KeyRunes, tea.KeySpace:
		if msg.Type == tea.KeySpace {
			m.search.Query += " "
		} else {
			m.search.Query += string(msg.Runes)
		}
		m.refreshRows()
		m.tableModel.GotoTop()
		return m, nil
	}
	return m, nil
}

func (m *browserModel) clearSearchState() {
	m.search.Clear()
	m.refreshRows()
}
