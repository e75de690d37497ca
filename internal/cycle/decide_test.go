package cycle

import (
	"strings"
	"testing"

	"github.com/codex-usage/codex-usage/internal/quota"
)

func snapshot(primaryRemaining, secondaryRemaining float64) *quota.Snapshot {
	s := &quota.Snapshot{Account: "a"}
	if primaryRemaining >= 0 {
		s.Primary = &quota.Window{UsedPercent: 100 - primaryRemaining, RemainingPercent: primaryRemaining, WindowSeconds: 18000}
	}
	if secondaryRemaining >= 0 {
		s.Secondary = &quota.Window{UsedPercent: 100 - secondaryRemaining, RemainingPercent: secondaryRemaining, WindowSeconds: 604800}
	}
	return s
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name        string
		mode        Mode
		thresholds  Thresholds
		primary     float64 // -1 means absent
		secondary   float64
		want        bool
		wantCrossed []string
	}{
		{"all: only primary crossed", ModeAll, Thresholds{10, 10}, 5, 50, false, []string{"5h"}},
		{"all: both crossed", ModeAll, Thresholds{10, 10}, 5, 5, true, []string{"5h", "weekly"}},
		{"all: inclusive boundary", ModeAll, Thresholds{10, 10}, 10, 10, true, []string{"5h", "weekly"}},
		{"any: primary crossed", ModeAny, Thresholds{10, 10}, 5, 50, true, []string{"5h"}},
		{"any: secondary crossed", ModeAny, Thresholds{10, 10}, 50, 9.5, true, []string{"weekly"}},
		{"any: none crossed", ModeAny, Thresholds{10, 10}, 50, 50, false, nil},
		{"absent windows never trigger", ModeAny, Thresholds{99, 99}, -1, -1, false, nil},
		{"absent secondary blocks all mode", ModeAll, Thresholds{10, 10}, 0, -1, false, []string{"5h"}},
		{"zero thresholds need exhaustion", ModeAll, Thresholds{0, 0}, 0, 0, true, []string{"5h", "weekly"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Mode: tt.mode, Thresholds: tt.thresholds}
			d := Decide(snapshot(tt.primary, tt.secondary), cfg)
			if d.ShouldCycle != tt.want {
				t.Errorf("ShouldCycle = %v, want %v (reason %q)", d.ShouldCycle, tt.want, d.Reason)
			}
			if strings.Join(d.Crossed, ",") != strings.Join(tt.wantCrossed, ",") {
				t.Errorf("Crossed = %v, want %v", d.Crossed, tt.wantCrossed)
			}
			if !strings.Contains(d.Reason, "5h:") || !strings.Contains(d.Reason, "weekly:") {
				t.Errorf("reason should report both windows, got %q", d.Reason)
			}
		})
	}
}

func TestDecideReasonText(t *testing.T) {
	cfg := &Config{Mode: ModeAny, Thresholds: Thresholds{FiveHour: 10, Weekly: 10}}

	d := Decide(snapshot(4, 50), cfg)
	want := "5h threshold crossed (5h: 4% remaining, weekly: 50% remaining)"
	if d.Reason != want {
		t.Errorf("Reason = %q, want %q", d.Reason, want)
	}

	d = Decide(snapshot(40, 50), cfg)
	if d.Reason != "5h: 40% remaining, weekly: 50% remaining" {
		t.Errorf("Reason = %q", d.Reason)
	}
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"and": ModeAll, "ALL": ModeAll, "or": ModeAny, " any ": ModeAny} {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseMode("xor"); err == nil {
		t.Error("expected error for unknown mode")
	}
}
