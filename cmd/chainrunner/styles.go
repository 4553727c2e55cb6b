package main

import "github.com/charmbracelet/lipgloss"

// Semantic colors for terminal output.
var (
	successColor = lipgloss.Color("#8BC34A")
	warningColor = lipgloss.Color("#FFC107")
	errorColor   = lipgloss.Color("#e53935")
	infoColor    = lipgloss.Color("#2196F3")
	mutedColor   = lipgloss.Color("#7a8699")
)

var (
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(infoColor)
	successStyle = lipgloss.NewStyle().Bold(true).Foreground(successColor)
	warningStyle = lipgloss.NewStyle().Foreground(warningColor)
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(errorColor)
	mutedStyle   = lipgloss.NewStyle().Foreground(mutedColor)

	doneMark    = lipgloss.NewStyle().Foreground(successColor).Render("[x]")
	pendingMark = lipgloss.NewStyle().Foreground(warningColor).Render("[ ]")
	manualMark  = lipgloss.NewStyle().Foreground(mutedColor).Render("[M]")
)
