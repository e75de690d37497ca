// internal/burnrate/tracker.go
// Consumption velocity of quota windows derived from recent samples
package burnrate

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/codex-usage/codex-usage/internal/quota"
)

// Capacity is how many samples are kept per account.
const Capacity = 30

// Sample is one usage measurement, in used percent.
type Sample struct {
	CapturedAt     time.Time
	PrimaryUsed    float64
	SecondaryUsed  float64
	CodeReviewUsed float64
}

// SampleFromSnapshot converts a snapshot; absent windows read as 0% used.
func SampleFromSnapshot(s *quota.Snapshot) Sample {
	return Sample{
		CapturedAt:     s.CapturedAt,
		PrimaryUsed:    s.PrimaryUsed(),
		SecondaryUsed:  s.SecondaryUsed(),
		CodeReviewUsed: s.CodeReview(),
	}
}

// WindowRate is the burn rate of one window in percent per minute.
type WindowRate struct {
	Velocity   float64
	Dispersion float64
}

// Exhaustion projects the time until the window reaches 100% from used at the
// current velocity. It reports false when usage is not increasing.
func (w WindowRate) Exhaustion(used float64) (time.Duration, bool) {
	if w.Velocity <= 0 {
		return 0, false
	}
	remaining := 100 - used
	if remaining <= 0 {
		return 0, true
	}
	minutes := remaining / w.Velocity
	return time.Duration(minutes * float64(time.Minute)), true
}

// Rate is the burn rate of every window for one account.
type Rate struct {
	Primary    WindowRate
	Secondary  WindowRate
	CodeReview WindowRate
	Samples    int
	Span       time.Duration
}

// Tracker keeps a bounded sample history per account. It is safe for
// concurrent use.
type Tracker struct {
	mu       sync.Mutex
	capacity int
	samples  map[string][]Sample
}

// NewTracker creates a tracker holding Capacity samples per account.
func NewTracker() *Tracker {
	return &Tracker{capacity: Capacity, samples: make(map[string][]Sample)}
}

// Record appends a sample, dropping the oldest once the account is full.
func (t *Tracker) Record(account string, s Sample) {
	t.mu.Lock()
	defer t.mu.Unlock()

	buf := append(t.samples[account], s)
	if len(buf) > t.capacity {
		buf = append(buf[:0:0], buf[len(buf)-t.capacity:]...)
	}
	t.samples[account] = buf
}

// Len returns how many samples are held for account.
func (t *Tracker) Len(account string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.samples[account])
}

// Accounts returns the tracked account names, sorted.
func (t *Tracker) Accounts() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	names := make([]string, 0, len(t.samples))
	for name := range t.samples {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Rate computes the burn rate for account. It reports false with fewer than
// two samples or when the first and last samples share a timestamp.
func (t *Tracker) Rate(account string) (Rate, bool) {
	t.mu.Lock()
	samples := append([]Sample(nil), t.samples[account]...)
	t.mu.Unlock()

	if len(samples) < 2 {
		return Rate{}, false
	}

	first, last := samples[0], samples[len(samples)-1]
	span := last.CapturedAt.Sub(first.CapturedAt)
	if span <= 0 {
		return Rate{}, false
	}

	return Rate{
		Primary:    windowRate(samples, span, func(s Sample) float64 { return s.PrimaryUsed }),
		Secondary:  windowRate(samples, span, func(s Sample) float64 { return s.SecondaryUsed }),
		CodeReview: windowRate(samples, span, func(s Sample) float64 { return s.CodeReviewUsed }),
		Samples:    len(samples),
		Span:       span,
	}, true
}

func windowRate(samples []Sample, span time.Duration, used func(Sample) float64) WindowRate {
	first, last := samples[0], samples[len(samples)-1]
	velocity := (used(last) - used(first)) / span.Seconds() * 60

	// Each interval is normalized by its own length so uneven polling
	// does not skew the spread.
	var rates []float64
	for i := 1; i < len(samples); i++ {
		dt := samples[i].CapturedAt.Sub(samples[i-1].CapturedAt).Seconds()
		if dt <= 0 {
			continue
		}
		rates = append(rates, (used(samples[i])-used(samples[i-1]))/dt*60)
	}

	return WindowRate{Velocity: velocity, Dispersion: stddev(rates)}
}

// stddev is the population standard deviation; empty input yields 0.
func stddev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))

	var sq float64
	for _, x := range xs {
		d := x - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(xs)))
}
