package ui

import "github.com/charmbracelet/lipgloss"

// Catppuccin Mocha palette.
var (
	colorGreen  = lipgloss.Color("#a6e3a1")
	colorYellow = lipgloss.Color("#f9e2af")
	colorRed    = lipgloss.Color("#f38ba8")
	colorMauve  = lipgloss.Color("#cba6f7")
	colorMuted  = lipgloss.Color("#5a6278")
	colorBright = lipgloss.Color("#cdd6f4")
)

var (
	styleLabel = lipgloss.NewStyle().Foreground(colorMuted)
	styleValue = lipgloss.NewStyle().Bold(true).Foreground(colorBright)
	styleOK    = lipgloss.NewStyle().Bold(true).Foreground(colorGreen)
	styleWarn  = lipgloss.NewStyle().Bold(true).Foreground(colorYellow)
	styleFail  = lipgloss.NewStyle().Bold(true).Foreground(colorRed)
	styleTitle = lipgloss.NewStyle().Bold(true).Foreground(colorMauve)
)
