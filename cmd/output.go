// cmd/output.go
package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/codex-usage/codex-usage/internal/apperr"
)

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	goodColor   = color.New(color.FgGreen)
	warnColor   = color.New(color.FgYellow)
	badColor    = color.New(color.FgRed)
	labelColor  = color.New(color.Bold)
	mutedColor  = color.New(color.Faint)
)

const ruleWidth = 50

// printHeader prints a title between two rules
func printHeader(w io.Writer, title string) {
	rule := strings.Repeat("=", ruleWidth)
	fmt.Fprintln(w, rule)
	headerColor.Fprintf(w, "  %s\n", title)
	fmt.Fprintln(w, rule)
}

// printError renders a fatal error with its remediation hint
func printError(w io.Writer, err error) {
	if errors.Is(err, apperr.ErrRunningConflict) {
		warnColor.Fprintln(w, "⚠️  Codex appears to be running. Switching credentials now may sign it out mid-session.")
	}
	badColor.Fprintf(w, "Error: %v\n", err)
	if hint := apperr.HintOf(err); hint != "" {
		fmt.Fprintf(w, "Hint: %s\n", hint)
	}
}

// writeJSON prints v as indented JSON
func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// checkLimit rejects a --limit below one
func checkLimit(n int) error {
	if n < 1 {
		return fmt.Errorf("--limit must be at least 1, got %d", n)
	}
	return nil
}

// percentColor picks a color for a used percentage
func percentColor(used float64) *color.Color {
	switch {
	case used >= 90:
		return badColor
	case used >= 70:
		return warnColor
	default:
		return goodColor
	}
}
