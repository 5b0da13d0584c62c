package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		m.viewport.View(),
		m.renderFooter(),
	)
}

func (m Model) renderHeader() string {
	customer := m.customerID
	if customer == "" {
		customer = "none"
	}
	title := m.theme.Title.Render("riskdesk chat")
	sub := m.theme.Subtitle.Render("  customer: " + customer)
	return title + sub + "\n"
}

func (m Model) renderFooter() string {
	line := m.input.View()
	if m.busy {
		line = m.spinner.View() + m.theme.Muted.Render(" analyzing...")
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.theme.Box.Width(max(10, m.width-2)).Render(line),
		m.help.View(m.keys),
	)
}

func (m Model) renderEntries() string {
	width := max(20, m.width-2)
	var b strings.Builder
	for i, e := range m.entries {
		if i > 0 {
			b.WriteString("\n")
		}
		style := m.theme.Assistant
		prefix := ""
		switch e.role {
		case roleUser:
			style = m.theme.User
			prefix = "you: "
		case roleNotice:
			style = m.theme.Muted
		case roleError:
			style = m.theme.Error
		}
		b.WriteString(style.Width(width).Render(prefix + e.text))
		b.WriteString("\n")
	}
	return b.String()
}
