package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/codex-usage/codex-usage/internal/burnrate"
	"github.com/codex-usage/codex-usage/internal/cycle"
	"github.com/codex-usage/codex-usage/internal/monitor"
	"github.com/codex-usage/codex-usage/internal/quota"
)

const (
	labelWidth = 8
	minBar     = 10

	maxNameWidth = 32
)

// SnapshotBlock renders one account's usage as a few lines.
func SnapshotBlock(snap *quota.Snapshot, active bool, width int) string {
	var sb strings.Builder

	title := SubtitleStyle.Render(Truncate(snap.Account, maxNameWidth))
	meta := []string{}
	if snap.Plan != "" {
		meta = append(meta, snap.Plan)
	}
	if snap.AuthType != "" {
		meta = append(meta, snap.AuthType)
	}
	if len(meta) > 0 {
		title += " " + MutedStyle.Render("("+strings.Join(meta, " · ")+")")
	}
	if active {
		title += " " + SuccessStyle.Render("[active]")
	}
	if snap.LimitReached {
		title += " " + ErrorStyle.Render("limit reached")
	}
	sb.WriteString(title + "\n")

	barWidth := width - 48
	if barWidth < minBar {
		barWidth = minBar
	}
	for _, w := range []*quota.Window{snap.Primary, snap.Secondary} {
		if w == nil {
			continue
		}
		sb.WriteString(windowLine(w, barWidth) + "\n")
	}
	if snap.CodeReviewUsed != nil {
		sb.WriteString(fmt.Sprintf("  %s%s\n",
			PadRight("review", labelWidth),
			UsageStyle(*snap.CodeReviewUsed).Render(fmt.Sprintf("%5.1f%% used", *snap.CodeReviewUsed))))
	}
	if snap.Primary == nil && snap.Secondary == nil && snap.CodeReviewUsed == nil {
		sb.WriteString("  " + MutedStyle.Render("no rate limit data") + "\n")
	}
	return sb.String()
}

func windowLine(w *quota.Window, barWidth int) string {
	line := fmt.Sprintf("  %s%s %s %s",
		PadRight(w.Label(), labelWidth),
		UsageBar(w.UsedPercent, barWidth),
		UsageStyle(w.UsedPercent).Render(fmt.Sprintf("%5.1f%% used", w.UsedPercent)),
		StatusIcon(w.UsedPercent))
	if d := w.ResetsIn(); d > 0 {
		line += MutedStyle.Render("  resets in " + FormatResetIn(d))
	}
	return line
}

// RenderFrame renders one watch tick.
func RenderFrame(f monitor.Frame, width int) string {
	var sb strings.Builder

	header := fmt.Sprintf("codex-usage watch · tick %d · %s · every %s",
		f.Tick, f.At.Local().Format("15:04:05"), f.Interval)
	sb.WriteString(TitleStyle.Render(header) + "\n\n")

	if f.Err != nil {
		sb.WriteString(ErrorStyle.Render("error: "+f.Err.Error()) + "\n")
		return sb.String()
	}
	if len(f.Entries) == 0 {
		sb.WriteString(MutedStyle.Render("No accounts to watch.") + "\n")
	}

	for _, e := range f.Entries {
		if e.Err != nil {
			sb.WriteString(SubtitleStyle.Render(Truncate(e.Account, maxNameWidth)) + "\n")
			sb.WriteString("  " + ErrorStyle.Render(e.Err.Error()) + "\n\n")
			continue
		}
		if e.Snapshot == nil {
			continue
		}
		sb.WriteString(SnapshotBlock(e.Snapshot, false, width))
		sb.WriteString("  " + sourceLine(e) + "\n")
		if e.HasRate {
			sb.WriteString(rateLines(e.Snapshot, e.Rate))
		}
		sb.WriteString("\n")
	}

	if line := cycleLine(f.Cycle, f.CycleErr); line != "" {
		sb.WriteString(line + "\n")
	}
	sb.WriteString(MutedStyle.Render("Press Ctrl+C to exit") + "\n")
	return sb.String()
}

func sourceLine(e monitor.Entry) string {
	if e.Source == monitor.SourceCached {
		return MutedStyle.Render(fmt.Sprintf("cached %s ago", e.Age.Truncate(time.Second)))
	}
	return MutedStyle.Render("live")
}

func rateLines(snap *quota.Snapshot, r burnrate.Rate) string {
	var sb strings.Builder
	windows := []struct {
		label string
		used  float64
		rate  burnrate.WindowRate
		ok    bool
	}{
		{"5h", snap.PrimaryUsed(), r.Primary, snap.Primary != nil},
		{"7d", snap.SecondaryUsed(), r.Secondary, snap.Secondary != nil},
	}
	for _, w := range windows {
		if !w.ok {
			continue
		}
		line := fmt.Sprintf("  %s%s", PadRight("rate "+w.label, labelWidth+2), FormatRate(w.rate.Velocity, w.rate.Dispersion))
		if eta, ok := w.rate.Exhaustion(w.used); ok {
			line += WarningStyle.Render("  exhausts in " + FormatResetIn(eta))
		}
		sb.WriteString(line + "\n")
	}
	sb.WriteString(MutedStyle.Render(fmt.Sprintf("  %d samples over %s", r.Samples, r.Span.Truncate(time.Second))) + "\n")
	return sb.String()
}

func cycleLine(r *cycle.Result, err error) string {
	switch {
	case err != nil:
		return ErrorStyle.Render("cycle: " + err.Error())
	case r == nil:
		return ""
	case r.Switched():
		return SuccessStyle.Render(fmt.Sprintf("cycle: switched %s → %s (%s)", r.From, r.To, r.Reason))
	case r.Message != "":
		return MutedStyle.Render("cycle: " + r.State.String() + ", " + r.Message)
	default:
		return MutedStyle.Render("cycle: " + r.State.String())
	}
}
