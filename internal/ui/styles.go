// internal/ui/styles.go
package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Palette
var (
	colorAccent  = lipgloss.AdaptiveColor{Light: "#5A67D8", Dark: "#7C3AED"}
	colorAccount = lipgloss.AdaptiveColor{Light: "#38B2AC", Dark: "#4FD1C5"}
	colorOK      = lipgloss.AdaptiveColor{Light: "#38A169", Dark: "#48BB78"}
	colorWarn    = lipgloss.AdaptiveColor{Light: "#D69E2E", Dark: "#F6E05E"}
	colorBad     = lipgloss.AdaptiveColor{Light: "#E53E3E", Dark: "#FC8181"}
	colorMuted   = lipgloss.AdaptiveColor{Light: "#718096", Dark: "#A0AEC0"}
)

var (
	TitleStyle    = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	SubtitleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorAccount)
	SuccessStyle  = lipgloss.NewStyle().Foreground(colorOK)
	WarningStyle  = lipgloss.NewStyle().Foreground(colorWarn)
	ErrorStyle    = lipgloss.NewStyle().Foreground(colorBad)
	MutedStyle    = lipgloss.NewStyle().Foreground(colorMuted)
)

// IsTTY returns true if stdout is a terminal
func IsTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// TerminalWidth returns stdout's width, or fallback when it is not a terminal.
func TerminalWidth(fallback int) int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return fallback
	}
	return w
}

// UsageStyle picks a color for a used percentage.
func UsageStyle(used float64) lipgloss.Style {
	switch {
	case used >= 90:
		return ErrorStyle
	case used >= 70:
		return WarningStyle
	default:
		return SuccessStyle
	}
}
