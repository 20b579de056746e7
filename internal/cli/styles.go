package cli

import "github.com/charmbracelet/lipgloss"

// Styles are the lipgloss styles of the console.
type Styles struct {
	User      lipgloss.Style
	Assistant lipgloss.Style
	Notice    lipgloss.Style // command replies, interruptions
	Error     lipgloss.Style
	Chrome    lipgloss.Style // separator, status bar, spinner text
}

// DefaultStyles returns the colored styles.
func DefaultStyles() Styles {
	faint := lipgloss.NewStyle().Faint(true)
	return Styles{
		User:      lipgloss.NewStyle().Bold(true),
		Assistant: lipgloss.NewStyle(),
		Notice:    faint,
		Error:     lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
		Chrome:    faint,
	}
}

// NoColorStyles renders plain text.
func NoColorStyles() Styles {
	plain := lipgloss.NewStyle()
	return Styles{User: plain, Assistant: plain, Notice: plain, Error: plain, Chrome: plain}
}
