// Package themes holds the color palettes for the chat console.
package themes

import "github.com/charmbracelet/lipgloss"

// Theme defines the visual style for the console.
type Theme struct {
	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Normal    lipgloss.Style
	User      lipgloss.Style
	Assistant lipgloss.Style
	Notice    lipgloss.Style
	Error     lipgloss.Style
	Warning   lipgloss.Style
	Muted     lipgloss.Style
	Box       lipgloss.Style
	Primary   lipgloss.Color
	Border    lipgloss.Color
}

func build(primary, secondary, fg, muted, border, warn, errColor, info string) Theme {
	return Theme{
		Primary: lipgloss.Color(primary),
		Border:  lipgloss.Color(border),
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(primary)),
		Subtitle: lipgloss.NewStyle().
			Foreground(lipgloss.Color(muted)),
		Normal: lipgloss.NewStyle().
			Foreground(lipgloss.Color(fg)),
		User: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(secondary)),
		Assistant: lipgloss.NewStyle().
			Foreground(lipgloss.Color(fg)),
		Notice: lipgloss.NewStyle().
			Foreground(lipgloss.Color(info)).
			Italic(true),
		Error: lipgloss.NewStyle().
			Foreground(lipgloss.Color(errColor)).
			Bold(true),
		Warning: lipgloss.NewStyle().
			Foreground(lipgloss.Color(warn)),
		Muted: lipgloss.NewStyle().
			Foreground(lipgloss.Color(muted)).
			Italic(true),
		Box: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(border)).
			Padding(0, 1),
	}
}

// Default is the default theme.
var Default = build("#7c3aed", "#a78bfa", "#fafafa", "#737373", "#404040", "#f59e0b", "#ef4444", "#3b82f6")

// CatppuccinMocha is the Catppuccin Mocha theme.
var CatppuccinMocha = build("#cba6f7", "#f5c2e7", "#cdd6f4", "#6c7086", "#45475a", "#f9e2af", "#f38ba8", "#89dceb")

// ByName returns the named theme, or Default.
func ByName(name string) Theme {
	switch name {
	case "catppuccin", "catppuccin-mocha", "mocha":
		return CatppuccinMocha
	default:
		return Default
	}
}
