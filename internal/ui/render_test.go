package ui

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/codex-usage/codex-usage/internal/burnrate"
	"github.com/codex-usage/codex-usage/internal/cycle"
	"github.com/codex-usage/codex-usage/internal/monitor"
	"github.com/codex-usage/codex-usage/internal/quota"
)

func testSnapshot() *quota.Snapshot {
	review := 12.0
	return &quota.Snapshot{
		Account:  "work",
		Status:   "ok",
		Plan:     "plus",
		AuthType: "OAuth (ChatGPT)",
		Primary: &quota.Window{
			UsedPercent: 62, RemainingPercent: 38,
			WindowSeconds: 18000, ResetAfterSeconds: 7500,
		},
		Secondary: &quota.Window{
			UsedPercent: 91, RemainingPercent: 9,
			WindowSeconds: 604800,
		},
		CodeReviewUsed: &review,
	}
}

func TestSnapshotBlock(t *testing.T) {
	out := stripANSI(SnapshotBlock(testSnapshot(), true, 80))

	for _, want := range []string{
		"work", "plus", "[active]",
		"5h", "62.0% used", "✅", "resets in 2h 5m",
		"7d", "91.0% used", "🔴",
		"review", "12.0% used",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("block missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "limit reached") {
		t.Errorf("unexpected limit marker:\n%s", out)
	}
}

func TestSnapshotBlockEmpty(t *testing.T) {
	out := stripANSI(SnapshotBlock(&quota.Snapshot{Account: "bare", LimitReached: true}, false, 40))
	if !strings.Contains(out, "no rate limit data") || !strings.Contains(out, "limit reached") {
		t.Errorf("unexpected block:\n%s", out)
	}
	if strings.Contains(out, "[active]") {
		t.Errorf("inactive account marked active:\n%s", out)
	}
}

func TestRenderFrame(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	frame := monitor.Frame{
		Tick:     3,
		At:       at,
		Interval: 30 * time.Second,
		Entries: []monitor.Entry{
			{
				Account:  "work",
				Snapshot: testSnapshot(),
				Source:   monitor.SourceLive,
				HasRate:  true,
				Rate: burnrate.Rate{
					Primary: burnrate.WindowRate{Velocity: 2, Dispersion: 0.5},
					Samples: 4,
					Span:    3 * time.Minute,
				},
			},
			{
				Account:  "spare",
				Snapshot: testSnapshot().WithAccount("spare"),
				Source:   monitor.SourceCached,
				Age:      42 * time.Second,
			},
			{Account: "broken", Err: errors.New("token expired")},
		},
		Cycle: &cycle.Result{State: cycle.StateSwitching, From: "work", To: "spare", Reason: "5h threshold crossed"},
	}

	out := stripANSI(RenderFrame(frame, 100))
	for _, want := range []string{
		"tick 3", "every 30s",
		"work", "live",
		"+2.00%/min ±0.50", "exhausts in 19m",
		"4 samples over 3m0s",
		"spare", "cached 42s ago",
		"broken", "token expired",
		"cycle: switched work → spare (5h threshold crossed)",
		"Ctrl+C",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("frame missing %q:\n%s", want, out)
		}
	}
}

func TestRenderFrameListError(t *testing.T) {
	out := stripANSI(RenderFrame(monitor.Frame{Err: errors.New("registry unreadable")}, 80))
	if !strings.Contains(out, "error: registry unreadable") {
		t.Errorf("frame = %q", out)
	}
}

func TestCycleLine(t *testing.T) {
	tests := []struct {
		name string
		res  *cycle.Result
		err  error
		want string
	}{
		{"none", nil, nil, ""},
		{"error", nil, errors.New("boom"), "cycle: boom"},
		{"idle", &cycle.Result{State: cycle.StateIdle, Message: "below thresholds"}, nil, "cycle: idle, below thresholds"},
		{"disabled", &cycle.Result{State: cycle.StateDisabled}, nil, "cycle: disabled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripANSI(cycleLine(tt.res, tt.err)); got != tt.want {
				t.Errorf("cycleLine = %q, want %q", got, tt.want)
			}
		})
	}
}
