package cli

import "github.com/charmbracelet/lipgloss"

// Shared styles for human-facing command output. The watch pipeline logs
// JSON; these are only for the interactive commands.
var (
	styleOK    = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	styleBad   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	styleWarn  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	styleDim   = lipgloss.NewStyle().Faint(true)
	styleMatch = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true).Underline(true)
	styleName  = lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Bold(true)
)
