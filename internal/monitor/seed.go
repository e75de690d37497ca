package monitor

import (
	"github.com/codex-usage/codex-usage/internal/burnrate"
	"github.com/codex-usage/codex-usage/internal/history"
)

// Seed primes tracker with persisted measurements so burn rates are
// available from the first tick.
func Seed(tracker *burnrate.Tracker, records []history.SnapshotRecord) {
	for _, r := range records {
		tracker.Record(r.Account, burnrate.Sample{
			CapturedAt:    r.CapturedAt,
			PrimaryUsed:   deref(r.FiveHourUsed),
			SecondaryUsed: deref(r.WeeklyUsed),
		})
	}
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
