package cmd

import (
	tea "github.com/charmbracelet/bubbletea"
)

// KeyHandler interface for handling specific key combinations
type KeyHandler interface {
	HandleKey(m *browserModel, msg tea.KeyMsg) (tea.Model, tea.Cmd)
}

// KeyDispatcher handles key routing based on current state and mode
type KeyDispatcher struct {
	handlers map[string]KeyHandler
}

// NewKeyDispatcher creates a new key dispatcher with all handlers
func NewKeyDispatcher() *KeyDispatcher {
	return &KeyDispatcher{
		handlers: map[string]KeyHandler{
			"q":         &quitHandler{},
			"ctrl+c":    &quitHandler{},
			"?":         &helpHandler{},
			"/":         &searchHandler{},
			"esc":       &escapeHandler{},
			"g":         &navigationHandler{key: "g"},
			"G":         &navigationHandler{key: "G"},
			"up":        &navigationHandler{key: "up"},
			"k":         &navigationHandler{key: "up"},
			"down":      &navigationHandler{key: "down"},
			"j":         &navigationHandler{key: "down"},
			"y":         &yankHandler{},
			"d":         &deleteHandler{},
			"r":         &refreshHandler{},
			"enter":     &enterHandler{},
			"l":         &enterHandler{},
			"b":         &backHandler{},
			"h":         &backHandler{},
			"backspace": &backHandler{},
		},
	}
}

// Dispatch handles a key press by routing to the appropriate handler
func (kd *KeyDispatcher) Dispatch(m *browserModel, msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	if m.search.Active {
		return m.handleSearchInput(msg)
	}

	// In help mode only the toggles work; anything else closes help
	if m.state == stateHelp {
		switch key {
		case "q", "ctrl+c", "?", "esc":
		default:
			m.state = m.previousState
			m.lastKey = ""
			return m, nil
		}
	}

	if handler, exists := kd.handlers[key]; exists {
		return handler.HandleKey(m, msg)
	}

	m.lastKey = ""
	return m, nil
}

type quitHandler struct{}

func (h *quitHandler) HandleKey(m *browserModel, msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.lastKey = ""
	return m, tea.Quit
}

// helpHandler toggles help display
type helpHandler struct{}

func (h *helpHandler) HandleKey(m *browserModel, msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.state == stateHelp {
		m.state = m.previousState
	} else {
		m.previousState = m.state
		m.state = stateHelp
	}
	m.lastKey = ""
	return m, nil
}

// searchHandler starts filtering the entry list
type searchHandler struct{}

func (h *searchHandler) HandleKey(m *browserModel, msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.lastKey = ""
	if m.state == stateEntryList {
		m.search.Active = true
	}
	return m, nil
}

type escapeHandler struct{}

func (h *escapeHandler) HandleKey(m *browserModel, msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.lastKey = ""
	switch m.state {
	case stateHelp:
		m.state = m.previousState
	case stateEntryDetail:
		m.closeDetail()
	case stateEntryList:
		if !m.search.IsEmpty() {
			m.clearSearchState()
		}
	}
	return m, nil
}

// navigationHandler handles navigation keys including vim-style sequences
type navigationHandler struct {
	key string
}

func (h *navigationHandler) HandleKey(m *browserModel, msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch h.key {
	case "g":
		if m.lastKey == "g" { // gg sequence - jump to top
			m.handleNavigation("top")
			m.lastKey = ""
			return m, nil
		}
		m.lastKey = "g"
		return m, nil
	case "G":
		m.handleNavigation("bottom")
	case "up":
		m.handleNavigation("up")
	case "down":
		m.handleNavigation("down")
	}

	m.lastKey = ""
	return m, nil
}

// yankHandler copies the current key (yy sequence)
type yankHandler struct{}

func (h *yankHandler) HandleKey(m *browserModel, msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.lastKey == "y" {
		m.copyCurrentKey()
		m.lastKey = ""
		return m, nil
	}
	m.lastKey = "y"
	return m, nil
}

// deleteHandler removes the current entry (dd sequence)
type deleteHandler struct{}

func (h *deleteHandler) HandleKey(m *browserModel, msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.lastKey != "d" {
		m.lastKey = "d"
		return m, nil
	}
	m.lastKey = ""

	if m.state == stateEntryDetail && m.selected != nil {
		return m, deleteEntry(m.cache, m.selected.Key)
	}
	if m.state == stateEntryList {
		if entry, ok := m.currentEntry(); ok {
			return m, deleteEntry(m.cache, entry.Key)
		}
	}
	return m, nil
}

// refreshHandler reloads the entry list from the cache
type refreshHandler struct{}

func (h *refreshHandler) HandleKey(m *browserModel, msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.lastKey = ""
	if m.state != stateEntryList {
		return m, nil
	}
	return m, m.refresh()
}

type enterHandler struct{}

func (h *enterHandler) HandleKey(m *browserModel, msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.lastKey = ""
	if m.state != stateEntryList {
		return m, nil
	}
	return m, m.openDetail()
}

type backHandler struct{}

func (h *backHandler) HandleKey(m *browserModel, msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.lastKey = ""
	if m.state == stateEntryDetail {
		m.closeDetail()
	}
	return m, nil
}
