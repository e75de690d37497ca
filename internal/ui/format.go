package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/mattn/go-runewidth"
)

// StatusIcon summarizes a used percentage as an emoji.
func StatusIcon(used float64) string {
	switch {
	case used >= 100:
		return "❌"
	case used >= 90:
		return "🔴"
	case used >= 70:
		return "⚠️"
	default:
		return "✅"
	}
}

// FormatResetIn renders a reset countdown as "2h 5m" or "5m".
func FormatResetIn(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	hours := int(d / time.Hour)
	minutes := int((d % time.Hour) / time.Minute)
	if hours >= 48 {
		return fmt.Sprintf("%dd %dh", hours/24, hours%24)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}

// FormatRate renders a burn rate in percent per minute with its spread.
func FormatRate(velocity, dispersion float64) string {
	return fmt.Sprintf("%+.2f%%/min ±%.2f", velocity, dispersion)
}

// UsageBar renders a static progress bar for a used percentage.
func UsageBar(used float64, width int) string {
	if width <= 0 {
		width = 20
	}
	var fill string
	switch {
	case used >= 90:
		fill = "#FC8181"
	case used >= 70:
		fill = "#F6E05E"
	default:
		fill = "#48BB78"
	}
	bar := progress.New(
		progress.WithSolidFill(fill),
		progress.WithWidth(width),
		progress.WithoutPercentage(),
	)
	return bar.ViewAs(clamp01(used / 100))
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// PadRight pads s with spaces to width display cells. Color codes do not
// count toward the width.
func PadRight(s string, width int) string {
	w := runewidth.StringWidth(stripANSI(s))
	if w >= width {
		return s
	}
	return s + strings.Repeat(" ", width-w)
}

// Truncate shortens s to width display cells, marking the cut with "…".
func Truncate(s string, width int) string {
	if runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, "…")
}

// stripANSI removes CSI escape sequences.
func stripANSI(str string) string {
	var result strings.Builder
	inEscape := false
	for i := 0; i < len(str); i++ {
		if str[i] == '\x1b' && i+1 < len(str) && str[i+1] == '[' {
			inEscape = true
			i++
			continue
		}
		if inEscape {
			if (str[i] >= 'A' && str[i] <= 'Z') || (str[i] >= 'a' && str[i] <= 'z') {
				inEscape = false
			}
			continue
		}
		result.WriteByte(str[i])
	}
	return result.String()
}
