package tui

import (
	"github.com/charmbracelet/lipgloss"
)

// Theme defines the colors and symbols of the terminal UI using lipgloss.
type Theme struct {
	Title   lipgloss.Style
	Label   lipgloss.Style
	Focused lipgloss.Style
	Button  lipgloss.Style
	Cancel  lipgloss.Style
	Status  lipgloss.Style
	Error   lipgloss.Style
	Success lipgloss.Style
	Dim     lipgloss.Style
	Frame   lipgloss.Style

	Bullet string
}

func DefaultTheme() *Theme {
	return &Theme{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6")),
		Label:   lipgloss.NewStyle().Width(18),
		Focused: lipgloss.NewStyle().Width(18).Bold(true).Foreground(lipgloss.Color("6")),
		Button:  lipgloss.NewStyle().Bold(true).Padding(0, 2).Background(lipgloss.Color("2")).Foreground(lipgloss.Color("0")),
		Cancel:  lipgloss.NewStyle().Bold(true).Padding(0, 2).Background(lipgloss.Color("1")).Foreground(lipgloss.Color("15")),
		Status:  lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		Dim:     lipgloss.NewStyle().Faint(true),
		Frame:   lipgloss.NewStyle().Padding(1, 2),

		Bullet: "•",
	}
}
