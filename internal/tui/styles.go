package tui

import "github.com/charmbracelet/lipgloss"

var (
	docStyle      = lipgloss.NewStyle().Margin(1, 2)
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FAFAFA")).Background(lipgloss.Color("#7D56F4")).Padding(0, 1)
	stateStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4")).Bold(true)
	progressStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#A8A8A8"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87")).Bold(true)
	countStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	spinnerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4"))
)
