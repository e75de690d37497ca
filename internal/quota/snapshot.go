// internal/quota/snapshot.go
package quota

import (
	"fmt"
	"time"
)

// Window is one rate-limit window of a usage snapshot.
type Window struct {
	UsedPercent       float64    `json:"used_percent"`
	RemainingPercent  float64    `json:"remaining_percent"`
	WindowSeconds     int64      `json:"window_seconds"`
	ResetAfterSeconds int64      `json:"reset_after_seconds,omitempty"`
	ResetsAt          *time.Time `json:"resets_at,omitempty"`
}

// Label renders the window length the way Codex does: "5h", "7d".
func (w *Window) Label() string {
	if w.WindowSeconds >= 86400 && w.WindowSeconds%86400 == 0 {
		return fmt.Sprintf("%dd", w.WindowSeconds/86400)
	}
	return fmt.Sprintf("%dh", w.WindowSeconds/3600)
}

// ResetsIn returns the time until reset, or zero when unknown.
func (w *Window) ResetsIn() time.Duration {
	return time.Duration(w.ResetAfterSeconds) * time.Second
}

// Snapshot is the canonical usage state of one account at one instant.
// Snapshots are never mutated after they are produced.
type Snapshot struct {
	Account        string    `json:"account_name"`
	CapturedAt     time.Time `json:"captured_at"`
	Status         string    `json:"status"`
	Plan           string    `json:"plan,omitempty"`
	AuthType       string    `json:"auth_type"`
	Primary        *Window   `json:"primary_window,omitempty"`
	Secondary      *Window   `json:"secondary_window,omitempty"`
	CodeReviewUsed *float64  `json:"code_review_used_percent,omitempty"`
	LimitReached   bool      `json:"limit_reached"`
}

// PrimaryRemaining returns the primary window's remaining percent, or 100 when
// the window is absent.
func (s *Snapshot) PrimaryRemaining() float64 {
	if s == nil || s.Primary == nil {
		return 100
	}
	return s.Primary.RemainingPercent
}

// SecondaryRemaining returns the secondary window's remaining percent, or 100
// when the window is absent.
func (s *Snapshot) SecondaryRemaining() float64 {
	if s == nil || s.Secondary == nil {
		return 100
	}
	return s.Secondary.RemainingPercent
}

// PrimaryUsed returns the primary window's used percent, or 0 when absent.
func (s *Snapshot) PrimaryUsed() float64 {
	if s == nil || s.Primary == nil {
		return 0
	}
	return s.Primary.UsedPercent
}

// SecondaryUsed returns the secondary window's used percent, or 0 when absent.
func (s *Snapshot) SecondaryUsed() float64 {
	if s == nil || s.Secondary == nil {
		return 0
	}
	return s.Secondary.UsedPercent
}

// CodeReview returns the code-review used percent, or 0 when absent.
func (s *Snapshot) CodeReview() float64 {
	if s == nil || s.CodeReviewUsed == nil {
		return 0
	}
	return *s.CodeReviewUsed
}

// WithAccount returns a copy of s labelled with a different account name.
func (s *Snapshot) WithAccount(name string) *Snapshot {
	c := *s
	c.Account = name
	return &c
}
