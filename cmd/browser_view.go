package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"mts/internal/state"
	"mts/internal/utils"
)

// Color palette for consistent theming
var (
	primaryBlue   = lipgloss.Color("39")  // Headers
	primaryGreen  = lipgloss.Color("82")  // Fresh entries
	primaryYellow = lipgloss.Color("220") // Status messages, stale entries
	primaryRed    = lipgloss.Color("196") // Errors

	secondaryGray = lipgloss.Color("244") // Metadata text
	lightGray     = lipgloss.Color("248") // Help descriptions
	darkGray      = lipgloss.Color("240") // Borders
	footerGray    = lipgloss.Color("241") // Footer text

	accentCyan   = lipgloss.Color("86")  // Keys
	accentOrange = lipgloss.Color("208") // Orphan timestamps
)

func (m *browserModel) renderLoading() string {
	return lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(primaryBlue).
		Bold(true).
		Render("🔄 Loading cache entries...")
}

func (m *browserModel) renderHeader() string {
	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(primaryBlue).
		Padding(0, 1)

	c := m.entries.State()
	var size int64
	for _, e := range c.Items {
		size += e.Size
	}

	counts := fmt.Sprintf("%s entries • %s", utils.FormatCount(len(c.Items)), utils.FormatBytes(size))
	if c.Status == state.StatusStale || c.Status == state.StatusLoading {
		counts += " • " + lipgloss.NewStyle().Foreground(primaryYellow).Render(c.Status.String())
	}
	if !c.LoadedAt.IsZero() {
		counts += " • loaded " + utils.FormatAge(c.LoadedAt, m.now())
	}

	metaStyle := lipgloss.NewStyle().Foreground(secondaryGray)
	return headerStyle.Render("🗄  mts cache") + "  " + metaStyle.Render(counts)
}

func (m *browserModel) renderEntryList() string {
	var content strings.Builder

	content.WriteString(m.renderHeader())
	content.WriteString("\n\n")

	emptyStyle := lipgloss.NewStyle().
		Foreground(secondaryGray).
		Italic(true).
		Padding(2, 4)

	switch {
	case len(m.entries.State().Items) == 0:
		content.WriteString(emptyStyle.Render("📋 Cache is empty"))
	case len(m.visible) == 0:
		content.WriteString(emptyStyle.Render(fmt.Sprintf("🔍 No keys match %q", m.search.Query)))
	default:
		content.WriteString(m.tableModel.View())
	}

	content.WriteString(m.renderStatus())
	content.WriteString("\n")
	content.WriteString(m.renderFooter())

	return content.String()
}

func (m *browserModel) renderEntryDetail() string {
	if m.selected == nil {
		return "No entry selected"
	}

	var content strings.Builder
	content.WriteString(m.renderHeader())
	content.WriteString("\n\n")

	keyStyle := lipgloss.NewStyle().Foreground(accentCyan).Bold(true).Padding(0, 1)
	content.WriteString(keyStyle.Render(m.selected.Key))
	content.WriteString("\n")

	now := m.now()
	status := entryStatus(*m.selected, now, m.freshness)
	statusColor := primaryGreen
	switch status {
	case statusStale, statusUntimed:
		statusColor = primaryYellow
	case statusOrphan:
		statusColor = accentOrange
	}

	metaStyle := lipgloss.NewStyle().
		Foreground(secondaryGray).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(darkGray).
		Padding(0, 2)
	meta := fmt.Sprintf("💾 %s • 🕒 Written %s • %s",
		utils.FormatBytes(m.selected.Size),
		utils.FormatAge(m.selected.Timestamp, now),
		lipgloss.NewStyle().Foreground(statusColor).Render(status))
	content.WriteString(metaStyle.Render(meta))
	content.WriteString("\n\n")

	content.WriteString(m.value.View())
	content.WriteString(m.renderStatus())
	content.WriteString("\n")
	content.WriteString(m.renderFooter())

	return content.String()
}

func (m *browserModel) renderStatus() string {
	if m.statusMessage == "" {
		return ""
	}
	statusStyle := lipgloss.NewStyle().
		Foreground(primaryYellow).
		Bold(true).
		Padding(0, 1).
		MarginTop(1).
		Background(lipgloss.Color("237")).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(primaryYellow)
	return "\n" + statusStyle.Render(fmt.Sprintf("ℹ️  %s", m.statusMessage))
}

func (m *browserModel) renderFooter() string {
	footerStyle := lipgloss.NewStyle().
		Foreground(footerGray).
		Padding(1, 1).
		BorderTop(true).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(darkGray)

	if m.search.Active || !m.search.IsEmpty() {
		searchKey := lipgloss.NewStyle().Foreground(primaryBlue).Bold(true).Render("🔍 Search:")
		cursor := ""
		if m.search.Active {
			cursor = "█"
		}
		hint := fmt.Sprintf("%d matches • [Enter] Keep • [Esc] Clear", m.search.ResultCount())
		return footerStyle.Render(fmt.Sprintf("%s %s%s  %s", searchKey, m.search.Query, cursor, hint))
	}

	navKeys := lipgloss.NewStyle().Foreground(primaryBlue).Render("[jk/↑↓]")
	copyKeys := lipgloss.NewStyle().Foreground(primaryYellow).Render("[yy]")
	deleteKeys := lipgloss.NewStyle().Foreground(accentOrange).Render("[dd]")
	helpKeys := lipgloss.NewStyle().Foreground(accentCyan).Render("[?]")
	quitKeys := lipgloss.NewStyle().Foreground(primaryRed).Render("[q]")

	if m.state == stateEntryDetail {
		backKeys := lipgloss.NewStyle().Foreground(accentCyan).Render("[b/Esc]")
		return footerStyle.Render(fmt.Sprintf("⌨️  %s Scroll • %s Copy • %s Delete • %s Back • %s Quit",
			navKeys, copyKeys, deleteKeys, backKeys, quitKeys))
	}

	actionKeys := lipgloss.NewStyle().Foreground(primaryGreen).Render("[Enter]")
	searchKeys := lipgloss.NewStyle().Foreground(primaryBlue).Render("[/]")
	return footerStyle.Render(fmt.Sprintf("⌨️  %s Navigate • %s Inspect • %s Search • %s Copy • %s Delete • %s Help • %s Quit",
		navKeys, actionKeys, searchKeys, copyKeys, deleteKeys, helpKeys, quitKeys))
}

func (m *browserModel) renderError() string {
	errorStyle := lipgloss.NewStyle().
		Foreground(primaryRed).
		Bold(true).
		Padding(2, 4).
		Margin(2, 4).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(primaryRed).
		Background(lipgloss.Color("237"))

	quitKey := lipgloss.NewStyle().Foreground(primaryYellow).Bold(true).Render("[q]")
	return errorStyle.Render(fmt.Sprintf("❌ Error: %s\n\nPress %s to quit", m.err.Error(), quitKey))
}

func (m *browserModel) renderHelp() string {
	var helpContent strings.Builder

	helpStyle := lipgloss.NewStyle().
		Padding(2, 4).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(primaryBlue).
		Background(lipgloss.Color("235"))

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(primaryBlue)

	helpContent.WriteString(titleStyle.Render("🆘 MTS Help"))
	helpContent.WriteString("\n\n")

	if m.previousState == stateEntryDetail {
		helpContent.WriteString(renderShortcuts("Entry Detail:", primaryGreen, [][]string{
			{"jk, ↑↓", "Scroll value"},
			{"gg / G", "Jump to top / bottom"},
			{"yy", "Copy key"},
			{"dd", "Delete entry"},
			{"b, Esc", "Back to entry list"},
		}))
	} else {
		helpContent.WriteString(renderShortcuts("Entry List:", primaryGreen, [][]string{
			{"jk, ↑↓", "Navigate entries"},
			{"gg / G", "Jump to top / bottom"},
			{"Enter, l", "Inspect value"},
			{"/", "Filter keys"},
			{"yy", "Copy key"},
			{"dd", "Delete entry"},
			{"r", "Reload from cache"},
		}))
	}

	helpContent.WriteString("\n")
	helpContent.WriteString(renderShortcuts("Universal Commands:", accentCyan, [][]string{
		{"?", "Toggle this help"},
		{"q, Ctrl+C", "Quit application"},
		{"Esc", "Close help/go back"},
	}))

	helpContent.WriteString("\n")
	footerStyle := lipgloss.NewStyle().Foreground(secondaryGray).Italic(true)
	helpContent.WriteString(footerStyle.Render("Press ? or Esc to close help"))

	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center,
		helpStyle.Render(helpContent.String()))
}

func renderShortcuts(title string, color lipgloss.Color, shortcuts [][]string) string {
	var content strings.Builder

	content.WriteString(lipgloss.NewStyle().Bold(true).Foreground(color).Render(title))
	content.WriteString("\n")

	keyStyle := lipgloss.NewStyle().Foreground(primaryYellow).Bold(true)
	descStyle := lipgloss.NewStyle().Foreground(lightGray)
	for _, shortcut := range shortcuts {
		content.WriteString(fmt.Sprintf("  %s  %s\n",
			keyStyle.Render(fmt.Sprintf("%-10s", shortcut[0])),
			descStyle.Render(shortcut[1])))
	}
	return content.String()
}
