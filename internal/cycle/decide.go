package cycle

import (
	"fmt"
	"strings"

	"github.com/codex-usage/codex-usage/internal/quota"
)

// Decision is the outcome of evaluating one snapshot against the thresholds.
type Decision struct {
	ShouldCycle        bool
	Reason             string
	Crossed            []string // window labels, primary first
	PrimaryRemaining   float64
	SecondaryRemaining float64
}

// Decide reports whether the measured account should be rotated away from.
// An absent window counts as 100% remaining, so it never triggers.
// Thresholds are inclusive.
func Decide(snap *quota.Snapshot, cfg *Config) Decision {
	d := Decision{
		PrimaryRemaining:   snap.PrimaryRemaining(),
		SecondaryRemaining: snap.SecondaryRemaining(),
	}

	primaryHit := d.PrimaryRemaining <= cfg.Thresholds.FiveHour
	secondaryHit := d.SecondaryRemaining <= cfg.Thresholds.Weekly

	if primaryHit {
		d.Crossed = append(d.Crossed, "5h")
	}
	if secondaryHit {
		d.Crossed = append(d.Crossed, "weekly")
	}

	switch cfg.Mode {
	case ModeAny:
		d.ShouldCycle = primaryHit || secondaryHit
	default:
		d.ShouldCycle = primaryHit && secondaryHit
	}

	measured := fmt.Sprintf("5h: %.0f%% remaining, weekly: %.0f%% remaining",
		d.PrimaryRemaining, d.SecondaryRemaining)
	if d.ShouldCycle {
		d.Reason = fmt.Sprintf("%s threshold crossed (%s)", strings.Join(d.Crossed, "+"), measured)
	} else {
		d.Reason = measured
	}
	return d
}
